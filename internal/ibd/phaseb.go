package ibd

import (
	"cmp"
	"fmt"
	"net"
	"slices"
	"sync"

	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/wire"
)

// fetchAndPersistBatch drives Phase B for one header batch and, only if
// every filtered header's body was validated, appends the unfiltered
// headers and the sorted block bodies.
func (e *Engine) fetchAndPersistBatch(unfiltered, filtered []chain.BlockHeader) error {
	if len(filtered) == 0 {
		return e.headers.AppendBatch(unfiltered)
	}

	for attempt := 0; ; attempt++ {
		blocks, err := e.fetchBodies(filtered)
		if err == nil {
			slices.SortFunc(blocks, func(a, b indexedBlock) int { return cmp.Compare(a.index, b.index) })
			ordered := make([]chain.SerializedBlock, len(blocks))
			for i, b := range blocks {
				ordered[i] = b.block
			}
			if err := e.headers.AppendBatch(unfiltered); err != nil {
				return err
			}
			if err := e.blocks.AppendBatch(ordered); err != nil {
				return err
			}
			if e.onBlock != nil {
				for _, b := range ordered {
					e.onBlock(b)
				}
			}
			return nil
		}
		if attempt >= e.cfg.Retries {
			return fmt.Errorf("%w: body fetch batch failed after %d retries - %v", nodeerr.ErrDownloadExhausted, e.cfg.Retries, err)
		}
	}
}

type indexedBlock struct {
	index int
	block chain.SerializedBlock
}

// fetchBodies partitions headers into min(threads, len(headers)) chunks
// of ceil(len/threads) each and fetches every chunk concurrently. It
// fails the whole batch if any chunk's worker could not complete after
// its own retry budget.
func (e *Engine) fetchBodies(headers []chain.BlockHeader) ([]indexedBlock, error) {
	threads := e.cfg.Threads
	if threads <= 0 || threads > len(headers) {
		threads = len(headers)
	}
	chunkSize := (len(headers) + threads - 1) / threads

	var wg sync.WaitGroup
	results := make([]indexedBlock, 0, len(headers))
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(headers); start += chunkSize {
		end := min(start+chunkSize, len(headers))
		chunk := headers[start:end]
		base := start
		wg.Add(1)
		go func() {
			defer wg.Done()
			blocks, err := e.fetchChunk(chunk, base)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results = append(results, blocks...)
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if len(results) != len(headers) {
		return nil, fmt.Errorf("%w: chunk produced %d/%d blocks", nodeerr.ErrDownloadExhausted, len(results), len(headers))
	}
	return results, nil
}

// fetchChunk is one Phase B worker: acquire a connection, fetch every
// header's body in order, substituting and retrying on write/read/magic
// failure up to the configured retry budget.
func (e *Engine) fetchChunk(chunk []chain.BlockHeader, base int) ([]indexedBlock, error) {
	conn, connID, err := e.pool.Acquire()
	if err != nil {
		return nil, err
	}
	defer func() { e.pool.Release(connID) }()

	out := make([]indexedBlock, 0, len(chunk))
	for i, h := range chunk {
		block, newConn, newID, err := e.fetchOneBody(conn, connID, h)
		conn, connID = newConn, newID
		if err != nil {
			return nil, err
		}
		out = append(out, indexedBlock{index: base + i, block: block})
	}
	return out, nil
}

// fetchOneBody fetches and validates a single block body, substituting the connection in place on any
// recoverable write/read/magic/validation failure up to the retry
// budget, and giving up on the chunk once it's exhausted.
func (e *Engine) fetchOneBody(conn net.Conn, connID int32, h chain.BlockHeader) (chain.SerializedBlock, net.Conn, int32, error) {
	hash := h.Hash()
	req := wire.GetBlockDataMsg(hash)

	retriesLeft := e.cfg.Retries
	for {
		if err := peer.WriteMessage(conn, req); err != nil {
			newConn, newID, serr := e.substitute(connID)
			if serr != nil {
				return chain.SerializedBlock{}, conn, connID, serr
			}
			conn, connID = newConn, newID
			if retriesLeft <= 0 {
				return chain.SerializedBlock{}, conn, connID, fmt.Errorf("%w: getdata write failed after retries", nodeerr.ErrDownloadExhausted)
			}
			retriesLeft--
			continue
		}

		command, payloadLen, checksum, herr := peer.ReadHeader(conn, e.cfg.ReadTimeout)
		if herr != nil {
			if retriesLeft <= 0 {
				return chain.SerializedBlock{}, conn, connID, fmt.Errorf("%w: getdata read failed after retries - %v", nodeerr.ErrDownloadExhausted, herr)
			}
			retriesLeft--
			newConn, newID, serr := e.substitute(connID)
			if serr != nil {
				return chain.SerializedBlock{}, conn, connID, serr
			}
			conn, connID = newConn, newID
			continue
		}

		if command != "block" {
			if _, perr := peer.ReadPayload(conn, payloadLen, checksum); perr != nil {
				newConn, newID, serr := e.substitute(connID)
				if serr != nil {
					return chain.SerializedBlock{}, conn, connID, serr
				}
				conn, connID = newConn, newID
				continue
			}
			if retriesLeft <= 0 {
				return chain.SerializedBlock{}, conn, connID, fmt.Errorf("%w: peer kept sending %q instead of block after retries", nodeerr.ErrDownloadExhausted, command)
			}
			retriesLeft--
			continue
		}

		payload, perr := peer.ReadPayload(conn, payloadLen, checksum)
		if perr != nil {
			if retriesLeft <= 0 {
				return chain.SerializedBlock{}, conn, connID, fmt.Errorf("%w: block payload read failed after retries - %v", nodeerr.ErrDownloadExhausted, perr)
			}
			retriesLeft--
			newConn, newID, serr := e.substitute(connID)
			if serr != nil {
				return chain.SerializedBlock{}, conn, connID, serr
			}
			conn, connID = newConn, newID
			continue
		}

		msg, perr := wire.ParseBlockMsg(payload)
		if perr != nil {
			return chain.SerializedBlock{}, conn, connID, fmt.Errorf("%w: parse block - %v", nodeerr.ErrWireFormat, perr)
		}

		valid, verr := msg.Block.Valid()
		if verr != nil || !valid {
			if retriesLeft <= 0 {
				return chain.SerializedBlock{}, conn, connID, fmt.Errorf("%w: block %x failed PoW/Merkle validation after retries", nodeerr.ErrDownloadExhausted, hash)
			}
			retriesLeft--
			newConn, newID, serr := e.substitute(connID)
			if serr != nil {
				return chain.SerializedBlock{}, conn, connID, serr
			}
			conn, connID = newConn, newID
			continue
		}

		return msg.Block, conn, connID, nil
	}
}
