// Package ibd implements initial block download: a
// serial header catch-up phase followed by a worker-pool body-fetch
// phase per header batch. Grounded on
// original_source/src/protocol/initial_block_download.rs and its
// header_download.rs/block_download.rs helpers for the retry/substitute
// control flow and the "headers land only once every body in the batch
// is validated" ordering guarantee.
package ibd

import (
	"fmt"
	"net"
	"time"

	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/wire"
)

// Config carries the tunables for IBD: worker count, the configurable
// retry budget, the starting timestamp filter, the protocol version
// sent in getheaders, and the per-read timeout.
type Config struct {
	Threads         int
	Retries         int
	StartTimestamp  int64
	ProtocolVersion uint32
	ReadTimeout     time.Duration
}

// Engine drives Phase A/B against a connection pool and the header/block
// file stores. Used from a single goroutine for the lifetime of IBD.
type Engine struct {
	pool    *peer.Pool
	headers *persist.HeaderStore
	blocks  *persist.BlockStore
	cfg     Config
	onBlock func(chain.SerializedBlock)
}

// New constructs an Engine. onBlock, if non-nil, is called for every
// block appended to the blocks file, in chain order — the UTXO actor's
// hook for UpdateFromBlocks.
func New(pool *peer.Pool, headers *persist.HeaderStore, blocks *persist.BlockStore, cfg Config, onBlock func(chain.SerializedBlock)) *Engine {
	return &Engine{pool: pool, headers: headers, blocks: blocks, cfg: cfg, onBlock: onBlock}
}

// Run executes Phase A to completion, fetching bodies via Phase B for
// every batch as it arrives. It returns once the peer reports an empty
// headers payload — a length-1 payload terminates Phase A.
func (e *Engine) Run() error {
	locator, err := e.startingLocator()
	if err != nil {
		return err
	}

	conn, connID, err := e.pool.Acquire()
	if err != nil {
		return err
	}

	retriesLeft := e.cfg.Retries
	for {
		req := wire.GetHeadersMsg{Version: e.cfg.ProtocolVersion, Locators: [][32]byte{locator}}
		if werr := peer.WriteMessage(conn, req); werr != nil {
			conn, connID, err = e.substitute(connID)
			if err != nil {
				return err
			}
			continue
		}

		command, payloadLen, checksum, herr := peer.ReadHeader(conn, e.cfg.ReadTimeout)
		switch {
		case herr == nil:
			// fall through below
		case nodeerr.KindOf(herr) == nodeerr.KindWrongMagic:
			conn, connID, err = e.substitute(connID)
			if err != nil {
				return err
			}
			continue
		default:
			if retriesLeft <= 0 {
				return fmt.Errorf("%w: header read failed after retries - %v", nodeerr.ErrDownloadExhausted, herr)
			}
			retriesLeft--
			conn, connID, err = e.substitute(connID)
			if err != nil {
				return err
			}
			continue
		}

		if command != "headers" {
			// Not the reply we're waiting for; discard and resend.
			if _, perr := peer.ReadPayload(conn, payloadLen, checksum); perr != nil {
				conn, connID, err = e.substitute(connID)
				if err != nil {
					return err
				}
			}
			continue
		}

		if payloadLen == 1 {
			if _, perr := peer.ReadPayload(conn, payloadLen, checksum); perr != nil {
				return fmt.Errorf("%w: read terminal headers payload - %v", nodeerr.ErrWireFormat, perr)
			}
			e.pool.Release(connID)
			return nil
		}

		payload, perr := peer.ReadPayload(conn, payloadLen, checksum)
		if perr != nil {
			conn, connID, err = e.substitute(connID)
			if err != nil {
				return err
			}
			continue
		}
		msg, perr := wire.ParseHeadersMsg(payload)
		if perr != nil {
			return fmt.Errorf("%w: parse headers batch - %v", nodeerr.ErrWireFormat, perr)
		}
		if len(msg.Headers) == 0 {
			e.pool.Release(connID)
			return nil
		}

		filtered := make([]chain.BlockHeader, 0, len(msg.Headers))
		for _, h := range msg.Headers {
			if h.Timestamp().Unix() >= e.cfg.StartTimestamp {
				filtered = append(filtered, h)
			}
		}

		if err := e.fetchAndPersistBatch(msg.Headers, filtered); err != nil {
			return err
		}

		locator = msg.Headers[len(msg.Headers)-1].Hash()
		retriesLeft = e.cfg.Retries
	}
}

// startingLocator resolves Phase A's starting point: the last header on
// disk, or the testnet genesis hash for a fresh node.
func (e *Engine) startingLocator() ([32]byte, error) {
	last, ok, err := e.headers.ReadLast()
	if err != nil {
		return [32]byte{}, err
	}
	if ok {
		return last.Hash(), nil
	}
	return chain.TestnetGenesisHash, nil
}

// substitute swaps connID for a fresh Ready connection, closing the old
// one. The engine holds only a connection handle and asks the pool
// coordinator for a replacement rather than reaching into the pool
// directly.
func (e *Engine) substitute(connID int32) (net.Conn, int32, error) {
	conn, id, err := e.pool.Substitute(connID)
	if err != nil {
		return nil, 0, err
	}
	return conn, id, nil
}
