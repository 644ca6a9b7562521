// Package broadcast implements the post-IBD per-peer reader: one long-lived goroutine per Ready connection,
// dispatching headers/inv/tx/ping/block traffic to persistence and the
// UTXO actor. Grounded on
// original_source/src/protocol/block_broadcasting.rs.
package broadcast

import (
	"net"
	"sync"
	"time"

	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/mempool"
	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/wire"
)

// UTXOUpdater is the subset of the UTXO actor's request surface the
// broadcast listener drives.
type UTXOUpdater interface {
	UpdateFromBlocks(blocks []chain.SerializedBlock) error
	PendingTx(tx chain.Transaction)
}

// Dedupe tracks header hashes already persisted so a duplicate block
// announcement during broadcast is silently ignored. One Dedupe is
// shared by every per-peer Listener.
type Dedupe struct {
	mu   sync.Mutex
	seen map[[32]byte]struct{}
}

// NewDedupe seeds the set from the headers already on disk.
func NewDedupe(existing []chain.BlockHeader) *Dedupe {
	d := &Dedupe{seen: make(map[[32]byte]struct{}, len(existing))}
	for _, h := range existing {
		d.seen[h.Hash()] = struct{}{}
	}
	return d
}

// markNew records hash and reports whether it had not been seen before.
func (d *Dedupe) markNew(hash [32]byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[hash]; ok {
		return false
	}
	d.seen[hash] = struct{}{}
	return true
}

// Listener drives one connection's steady-state read loop. Construct
// one per Ready connection after IBD completes and run it in its own
// goroutine.
type Listener struct {
	pool        *peer.Pool
	headers     *persist.HeaderStore
	blocks      *persist.BlockStore
	utxo        UTXOUpdater
	dedupe      *Dedupe
	mempool     *mempool.Mempool
	readTimeout time.Duration
}

// NewListener constructs a Listener. mp is the shared first-seen-relay
// set that suppresses refetching/redelivering a tx every peer
// independently re-announces.
func NewListener(pool *peer.Pool, headers *persist.HeaderStore, blocks *persist.BlockStore, utxo UTXOUpdater, dedupe *Dedupe, mp *mempool.Mempool, readTimeout time.Duration) *Listener {
	return &Listener{pool: pool, headers: headers, blocks: blocks, utxo: utxo, dedupe: dedupe, mempool: mp, readTimeout: readTimeout}
}

// Run reads connID/conn until an I/O error closes it. Every write this
// listener makes (pong replies, getdata requests) goes through
// l.pool.Send(connID, ...) rather than straight to conn, so it is
// serialized against a concurrent wallet.Broadcast on the same
// connection instead of racing it on the wire.
func (l *Listener) Run(connID int32, conn net.Conn) {
	defer l.pool.Drop(connID)

	for {
		command, payloadLen, checksum, err := peer.ReadHeader(conn, l.readTimeout)
		if err != nil {
			if nodeerr.KindOf(err) == nodeerr.KindWrongMagic {
				continue
			}
			return
		}

		switch command {
		case "headers":
			payload, err := peer.ReadPayload(conn, payloadLen, checksum)
			if err != nil {
				return
			}
			if err := l.handleHeaders(connID, conn, payload); err != nil {
				return
			}

		case "inv":
			payload, err := peer.ReadPayload(conn, payloadLen, checksum)
			if err != nil {
				return
			}
			if err := l.handleInv(connID, conn, payload); err != nil {
				return
			}

		case "tx":
			payload, err := peer.ReadPayload(conn, payloadLen, checksum)
			if err != nil {
				return
			}
			msg, err := wire.ParseTxMsg(payload)
			if err != nil {
				return
			}
			if fresh, err := l.mempool.Add(msg.Tx); err == nil && fresh {
				l.utxo.PendingTx(msg.Tx)
			}

		case "ping":
			payload, err := peer.ReadPayload(conn, payloadLen, checksum)
			if err != nil {
				return
			}
			ping, err := wire.ParsePingMsg(payload)
			if err != nil {
				return
			}
			if err := l.pool.Send(connID, wire.PongMsg{Nonce: ping.Nonce}); err != nil {
				return
			}

		case "block":
			payload, err := peer.ReadPayload(conn, payloadLen, checksum)
			if err != nil {
				return
			}
			msg, err := wire.ParseBlockMsg(payload)
			if err != nil {
				return
			}
			if err := l.acceptBlock(msg.Block); err != nil {
				return
			}

		default:
			if err := peer.DiscardPayload(conn, payloadLen); err != nil {
				return
			}
		}
	}
}

// handleHeaders fetches and validates the body for every newly announced
// header.
func (l *Listener) handleHeaders(connID int32, conn net.Conn, payload []byte) error {
	msg, err := wire.ParseHeadersMsg(payload)
	if err != nil {
		return err
	}
	for _, h := range msg.Headers {
		block, err := l.fetchBlock(connID, conn, h.Hash())
		if err != nil {
			return err
		}
		if err := l.acceptBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// handleInv fetches the body for every announced transaction and
// delivers it to the UTXO actor as pending.
func (l *Listener) handleInv(connID int32, conn net.Conn, payload []byte) error {
	msg, err := wire.ParseInvMsg(payload)
	if err != nil {
		return err
	}
	for _, item := range msg.Items {
		if item.Type != wire.InvTx {
			continue
		}
		if l.mempool.Seen(item.Hash) {
			continue
		}
		if err := l.pool.Send(connID, wire.GetDataMsg{Items: []wire.InvItem{item}}); err != nil {
			return err
		}
		command, payloadLen, checksum, err := peer.ReadHeader(conn, l.readTimeout)
		if err != nil {
			return err
		}
		txPayload, err := peer.ReadPayload(conn, payloadLen, checksum)
		if err != nil {
			return err
		}
		if command != "tx" {
			continue
		}
		txMsg, err := wire.ParseTxMsg(txPayload)
		if err != nil {
			return err
		}
		if fresh, err := l.mempool.Add(txMsg.Tx); err == nil && fresh {
			l.utxo.PendingTx(txMsg.Tx)
		}
	}
	return nil
}

// fetchBlock sends getdata(MSG_BLOCK, hash) and reads the reply body.
func (l *Listener) fetchBlock(connID int32, conn net.Conn, hash [32]byte) (chain.SerializedBlock, error) {
	if err := l.pool.Send(connID, wire.GetBlockDataMsg(hash)); err != nil {
		return chain.SerializedBlock{}, err
	}
	command, payloadLen, checksum, err := peer.ReadHeader(conn, l.readTimeout)
	if err != nil {
		return chain.SerializedBlock{}, err
	}
	payload, err := peer.ReadPayload(conn, payloadLen, checksum)
	if err != nil {
		return chain.SerializedBlock{}, err
	}
	if command != "block" {
		return chain.SerializedBlock{}, nodeerr.ErrWireFormat
	}
	msg, err := wire.ParseBlockMsg(payload)
	return msg.Block, err
}

// acceptBlock validates PoW/Merkle, appends the header
// and block record, and delivers the block to the UTXO actor. Invalid
// or already-persisted blocks are silently dropped rather than closing
// the connection.
func (l *Listener) acceptBlock(block chain.SerializedBlock) error {
	valid, err := block.Valid()
	if err != nil || !valid {
		return nil
	}
	if !l.dedupe.markNew(block.Header.Hash()) {
		return nil
	}
	if err := l.headers.AppendBatch([]chain.BlockHeader{block.Header}); err != nil {
		return err
	}
	if err := l.blocks.AppendBatch([]chain.SerializedBlock{block}); err != nil {
		return err
	}
	return l.utxo.UpdateFromBlocks([]chain.SerializedBlock{block})
}
