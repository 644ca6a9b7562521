// Package mempool is a first-seen-relay transaction set: the broadcast
// listener records each unconfirmed tx it accepts here so a duplicate
// inv/tx announcement from another peer is not refetched or
// re-delivered. No compact-block short-ID reconciliation or other
// mempool policy lives here — first-seen relay is all this node does.
package mempool

import (
	"sync"

	"go-testnet-node/internal/chain"
)

// Mempool is a concurrency-safe first-seen set keyed by txid.
type Mempool struct {
	mu  sync.Mutex
	txs map[[32]byte]chain.Transaction
}

func New() *Mempool {
	return &Mempool{txs: make(map[[32]byte]chain.Transaction)}
}

// Add records tx if its txid hasn't been seen yet, reporting whether it
// was newly added.
func (m *Mempool) Add(tx chain.Transaction) (fresh bool, err error) {
	txid, err := tx.TxID()
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.txs[txid]; seen {
		return false, nil
	}
	m.txs[txid] = tx
	return true, nil
}

func (m *Mempool) Get(txid [32]byte) (chain.Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txid]
	return tx, ok
}

func (m *Mempool) Remove(txid [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, txid)
}

func (m *Mempool) Seen(txid [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.txs[txid]
	return ok
}
