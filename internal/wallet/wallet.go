// Package wallet implements the transaction builder: coin selection, P2PKH script construction, sighash computation,
// ECDSA signing and broadcast. Grounded on
// original_source/src/wallet/user.rs, transaction_manager.rs and
// protocol/send_tx.rs for the build steps; signing uses
// github.com/decred/dcrd/dcrec/secp256k1/v4 via internal/keys.
package wallet

import (
	"fmt"
	"sort"

	"go-testnet-node/internal/address"
	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/keys"
	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/script"
	"go-testnet-node/internal/wire"
)

const sequenceFinal uint32 = 0xFFFFFFFF

// Builder assembles, signs and broadcasts P2PKH transactions against a
// connection pool.
type Builder struct {
	pool *peer.Pool
}

func New(pool *peer.Pool) *Builder {
	return &Builder{pool: pool}
}

// Build selects coins, constructs inputs/outputs, signs every input's
// sighash preimage, and returns the finished (but not yet broadcast)
// transaction.
func (b *Builder) Build(account persist.Account, destAddr string, amount, fee int64, utxos []persist.UTXORecord) (chain.Transaction, error) {
	if amount <= 0 {
		return chain.Transaction{}, fmt.Errorf("%w: amount must be positive", nodeerr.ErrInvalidAccount)
	}
	if fee < 0 {
		return chain.Transaction{}, fmt.Errorf("%w: fee must not be negative", nodeerr.ErrInvalidAccount)
	}

	selected, total, err := selectCoins(utxos, amount+fee)
	if err != nil {
		return chain.Transaction{}, err
	}

	priv, err := keys.ParseWIF(account.SecretKeyWIF)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("%w: parse account key - %v", nodeerr.ErrInvalidAccount, err)
	}

	destScript, err := p2pkhScriptFor(destAddr)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("%w: destination address - %v", nodeerr.ErrDecode, err)
	}
	changeScript, err := p2pkhScriptFor(account.Address)
	if err != nil {
		return chain.Transaction{}, fmt.Errorf("%w: source address - %v", nodeerr.ErrInvalidAccount, err)
	}

	inputs := make([]chain.TxIn, len(selected))
	for i, u := range selected {
		inputs[i] = chain.TxIn{PrevHash: u.TxID, PrevIndex: u.Vout, Sequence: sequenceFinal}
	}

	outputs := []chain.TxOut{{Value: amount, Script: destScript}}
	if change := total - amount - fee; change > 0 {
		outputs = append(outputs, chain.TxOut{Value: change, Script: changeScript})
	}

	tx := chain.Transaction{Version: 1, Inputs: inputs, Outputs: outputs, Locktime: 0}

	pubkey := priv.PublicKey()
	for i, u := range selected {
		sighash, err := tx.SigHash(i, u.Script)
		if err != nil {
			return chain.Transaction{}, fmt.Errorf("%w: sighash for input %d - %v", nodeerr.ErrDecode, i, err)
		}
		derSig := priv.Sign(sighash)
		sigScript, err := script.SigScript(derSig, pubkey).Bytes()
		if err != nil {
			return chain.Transaction{}, err
		}
		tx.Inputs[i].Script = sigScript
	}

	return tx, nil
}

// p2pkhScriptFor decodes a base58check P2PKH address into its raw
// scriptPubKey bytes.
func p2pkhScriptFor(addr string) ([]byte, error) {
	hash, err := address.Hash160(addr)
	if err != nil {
		return nil, err
	}
	return script.P2PKH(hash).Bytes()
}

// selectCoins greedily selects from largest to smallest value until the
// running total meets target, or fails with InsufficientFunds.
func selectCoins(utxos []persist.UTXORecord, target int64) (selected []persist.UTXORecord, total int64, err error) {
	sorted := make([]persist.UTXORecord, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	for _, u := range sorted {
		if total >= target {
			break
		}
		selected = append(selected, u)
		total += u.Value
	}
	if total < target {
		return nil, 0, fmt.Errorf("%w: need %d satoshis, have %d available", nodeerr.ErrInsufficientFunds, target, total)
	}
	return selected, total, nil
}

// Broadcast frames tx as a wire "tx" message and sends it via every
// currently free connection in the pool, best-effort: failures are
// reported through onPeerError but the overall call only fails if no
// peer accepted the send. Each send goes through the pool's Send so it
// is serialized against that connection's broadcast.Listener, which may
// be writing a pong reply or a getdata on the same net.Conn
// concurrently.
func (b *Builder) Broadcast(tx chain.Transaction, onPeerError func(addr string, err error)) error {
	conns := b.pool.FreeSnapshot()
	if len(conns) == 0 {
		return fmt.Errorf("%w: no free connections to broadcast through", nodeerr.ErrNoFreePeer)
	}

	sent := false
	for _, c := range conns {
		if err := b.pool.Send(c.ID, wire.TxMsg{Tx: tx}); err != nil {
			if onPeerError != nil {
				onPeerError(c.Addr, err)
			}
			continue
		}
		sent = true
	}
	if !sent {
		return fmt.Errorf("%w: every peer rejected the broadcast", nodeerr.ErrNoFreePeer)
	}
	return nil
}
