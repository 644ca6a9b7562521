// Package utxo implements the UTXO actor: a
// single-owner goroutine serializing every mutation of the unspent-
// output index through a request channel, backed by the leveldb-backed
// persist.UTXOStore and a jellydator/ttlcache/v3 pending-tx cache that
// reverts a pending spend on eviction timeout. P2PKH output
// classification is grounded on
// original_source/src/wallet/transaction_manager.rs's ownership
// matching, reimplemented against script.MatchP2PKH.
package utxo

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go-testnet-node/internal/address"
	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/script"
)

// DefaultPendingTTL is how long an unconfirmed tx's optimistic effect on
// the index survives before it is reverted.
const DefaultPendingTTL = 10 * time.Minute

type requestKind int

const (
	reqUpdateFromBlocks requestKind = iota
	reqGetAvailable
	reqListAvailable
	reqPendingTx
	reqSetAccounts
	reqShutdown
)

type request struct {
	kind     requestKind
	blocks   []chain.SerializedBlock
	accounts []persist.Account
	address  string
	tx       chain.Transaction
	reply    chan response
}

type response struct {
	amount int64
	utxos  []persist.UTXORecord
	err    error
}

// pendingEffect records what an optimistic PendingTx mutation did to the
// store, so an eviction (timeout) can undo it exactly.
type pendingEffect struct {
	removed []persist.UTXORecord
	added   []outpoint
}

type outpoint struct {
	txid [32]byte
	vout uint32
}

// Actor owns the UTXO index exclusively.
type Actor struct {
	requests chan request
	store    *persist.UTXOStore
	pending  *ttlcache.Cache[[32]byte, pendingEffect]
}

// New starts the actor goroutine over store, using ttl for the pending-
// tx eviction window.
func New(store *persist.UTXOStore, ttl time.Duration) *Actor {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	a := &Actor{
		requests: make(chan request),
		store:    store,
		pending: ttlcache.New[[32]byte, pendingEffect](
			ttlcache.WithTTL[[32]byte, pendingEffect](ttl),
		),
	}
	a.pending.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[[32]byte, pendingEffect]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		a.revert(item.Value())
	})
	go a.pending.Start()
	go a.run()
	return a
}

// revert undoes an expired pending effect: restore whatever it deleted,
// delete whatever it optimistically added.
func (a *Actor) revert(eff pendingEffect) {
	for _, rec := range eff.removed {
		_ = a.store.Put(rec)
	}
	for _, op := range eff.added {
		_ = a.store.Delete(op.txid, op.vout)
	}
}

func (a *Actor) call(req request) response {
	req.reply = make(chan response, 1)
	a.requests <- req
	return <-req.reply
}

// UpdateFromBlocks replays a batch of confirmed blocks in order: inputs
// as deletions, outputs as insertions, classified against the most
// recently set accounts' P2PKH hash160. Satisfies
// broadcast.UTXOUpdater.
func (a *Actor) UpdateFromBlocks(blocks []chain.SerializedBlock) error {
	resp := a.call(request{kind: reqUpdateFromBlocks, blocks: blocks})
	return resp.err
}

// UpdateFromBlocksWithAccounts is UpdateFromBlocks but also atomically
// refreshes the tracked account list first, for a caller (IBD at
// startup) that has a fresher account list than any prior SetAccounts
// call. It is the IBD engine's onBlock hook in cmd/nodobtc.
func (a *Actor) UpdateFromBlocksWithAccounts(blocks []chain.SerializedBlock, accounts []persist.Account) error {
	resp := a.call(request{kind: reqUpdateFromBlocks, blocks: blocks, accounts: accounts})
	return resp.err
}

// SetAccounts refreshes the account list used to classify pending-tx
// outputs without also replaying any blocks (called once at startup
// with the accounts loaded or created then).
func (a *Actor) SetAccounts(accounts []persist.Account) {
	a.call(request{kind: reqSetAccounts, accounts: accounts})
}

// GetAvailable sums the value of every UTXO currently indexed under
// address, reflecting a consistent snapshot after the most recently
// accepted message.
func (a *Actor) GetAvailable(address string) (int64, error) {
	resp := a.call(request{kind: reqGetAvailable, address: address})
	return resp.amount, resp.err
}

// ListAvailable returns every UTXO indexed under address, for the
// transaction builder's coin selection.
func (a *Actor) ListAvailable(address string) ([]persist.UTXORecord, error) {
	resp := a.call(request{kind: reqListAvailable, address: address})
	return resp.utxos, resp.err
}

// PendingTx optimistically removes tx's inputs and adds its outputs: on
// confirmation (a later UpdateFromBlocks carrying the same txid) the
// effect is simply superseded; on eviction timeout it is reverted.
func (a *Actor) PendingTx(tx chain.Transaction) {
	a.call(request{kind: reqPendingTx, tx: tx})
}

// Shutdown stops the actor and its pending-tx eviction goroutine.
func (a *Actor) Shutdown() {
	a.call(request{kind: reqShutdown})
	a.pending.Stop()
}

// run is the actor's single goroutine; every mutation of store and
// pending happens here and nowhere else.
func (a *Actor) run() {
	var accounts []persist.Account

	for req := range a.requests {
		switch req.kind {
		case reqUpdateFromBlocks:
			if len(req.accounts) > 0 {
				accounts = req.accounts
			}
			err := a.applyBlocks(req.blocks, accounts)
			req.reply <- response{err: err}

		case reqSetAccounts:
			accounts = req.accounts
			req.reply <- response{}

		case reqGetAvailable:
			recs, err := a.store.ByOwner(req.address)
			if err != nil {
				req.reply <- response{err: err}
				continue
			}
			var total int64
			for _, r := range recs {
				total += r.Value
			}
			req.reply <- response{amount: total}

		case reqListAvailable:
			recs, err := a.store.ByOwner(req.address)
			req.reply <- response{utxos: recs, err: err}

		case reqPendingTx:
			a.applyPending(req.tx, accounts)
			req.reply <- response{}

		case reqShutdown:
			req.reply <- response{}
			return
		}
	}
}

// applyBlocks replays inputs as deletions and outputs as insertions in
// block order, and clears any pending-tx tracking for a txid that just
// confirmed.
func (a *Actor) applyBlocks(blocks []chain.SerializedBlock, accounts []persist.Account) error {
	ownerByHash := ownerIndex(accounts)

	for _, block := range blocks {
		for _, tx := range block.Txs {
			txid, err := tx.TxID()
			if err != nil {
				return fmt.Errorf("%w: txid - %v", nodeerr.ErrValidation, err)
			}

			if len(tx.Inputs) > 0 && !tx.Inputs[0].IsCoinbase() {
				for _, in := range tx.Inputs {
					if err := a.store.Delete(in.PrevHash, in.PrevIndex); err != nil {
						return err
					}
				}
			}

			for vout, out := range tx.Outputs {
				owner := classify(out.Script, ownerByHash)
				if err := a.store.Put(persist.UTXORecord{
					TxID:   txid,
					Vout:   uint32(vout),
					Value:  out.Value,
					Script: out.Script,
					Owner:  owner,
				}); err != nil {
					return err
				}
			}

			a.pending.Delete(txid)
		}
	}
	return nil
}

// applyPending optimistically removes inputs and adds outputs for an
// unconfirmed transaction, tracked so it can be undone.
func (a *Actor) applyPending(tx chain.Transaction, accounts []persist.Account) {
	txid, err := tx.TxID()
	if err != nil {
		return
	}
	if a.pending.Has(txid) {
		return
	}

	ownerByHash := ownerIndex(accounts)
	var eff pendingEffect

	if len(tx.Inputs) > 0 && !tx.Inputs[0].IsCoinbase() {
		for _, in := range tx.Inputs {
			rec, ok, err := a.store.Get(in.PrevHash, in.PrevIndex)
			if err != nil || !ok {
				continue
			}
			if err := a.store.Delete(in.PrevHash, in.PrevIndex); err != nil {
				continue
			}
			eff.removed = append(eff.removed, rec)
		}
	}

	for vout, out := range tx.Outputs {
		owner := classify(out.Script, ownerByHash)
		if owner == "" {
			continue
		}
		rec := persist.UTXORecord{TxID: txid, Vout: uint32(vout), Value: out.Value, Script: out.Script, Owner: owner}
		if err := a.store.Put(rec); err != nil {
			continue
		}
		eff.added = append(eff.added, outpoint{txid: txid, vout: uint32(vout)})
	}

	a.pending.Set(txid, eff, ttlcache.DefaultTTL)
}

// ownerIndex maps each account's P2PKH hash160 (its raw bytes as a
// string, for a comparable map key) to its address.
func ownerIndex(accounts []persist.Account) map[string]string {
	idx := make(map[string]string, len(accounts))
	for _, acc := range accounts {
		hash, err := address.Hash160(acc.Address)
		if err != nil {
			continue
		}
		idx[string(hash)] = acc.Address
	}
	return idx
}

// classify reports the owning address of scriptPubKey, or "" if it
// doesn't match any known account's P2PKH pattern.
func classify(scriptPubKey []byte, ownerByHash map[string]string) string {
	hash, ok := script.MatchP2PKH(scriptPubKey)
	if !ok {
		return ""
	}
	return ownerByHash[string(hash)]
}
