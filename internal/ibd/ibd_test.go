package ibd

import (
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/wire"
)

func TestStartingLocatorGenesisWhenNoHeaders(t *testing.T) {
	store, err := persist.OpenHeaderStore(filepath.Join(t.TempDir(), "headers.dat"))
	require.NoError(t, err)

	e := &Engine{headers: store}
	locator, err := e.startingLocator()
	require.NoError(t, err)
	require.Equal(t, chain.TestnetGenesisHash, locator)
}

func TestStartingLocatorLastHeaderOnDisk(t *testing.T) {
	store, err := persist.OpenHeaderStore(filepath.Join(t.TempDir(), "headers.dat"))
	require.NoError(t, err)

	h1 := chain.BlockHeader{Time: 111}
	h2 := chain.BlockHeader{Time: 222}
	require.NoError(t, store.AppendBatch([]chain.BlockHeader{h1, h2}))

	e := &Engine{headers: store}
	locator, err := e.startingLocator()
	require.NoError(t, err)
	require.Equal(t, h2.Hash(), locator)
}

// TestRunHeaderCatchUpTerminatesOnEmptyBatch drives Phase A end to end
// over an in-memory connection: one round with a stale (pre-start-day)
// header followed by a terminal empty batch. Because the header is
// filtered out by the start-timestamp cutoff, Phase B's PoW/Merkle check
// never runs, keeping the fixture header trivial to construct.
func TestRunHeaderCatchUpTerminatesOnEmptyBatch(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	pool := peer.NewPool(peer.Config{ProtocolVersion: 70015, ReadTimeout: 5 * time.Second})
	defer pool.Shutdown()
	_, err := pool.AddConn(clientConn, "mock:0")
	require.NoError(t, err)

	tmp := t.TempDir()
	headerStore, err := persist.OpenHeaderStore(filepath.Join(tmp, "headers.dat"))
	require.NoError(t, err)
	blockStore, err := persist.OpenBlockStore(filepath.Join(tmp, "blocks.dat"))
	require.NoError(t, err)

	staleHeader := chain.BlockHeader{Time: 1_000}

	done := make(chan error, 1)
	go func() {
		// Round 1: one getheaders request -> one stale header reply.
		if err := discardRequest(serverConn); err != nil {
			done <- err
			return
		}
		replyPayload, err := wire.HeadersMsg{Headers: []chain.BlockHeader{staleHeader}}.Serialize()
		if err != nil {
			done <- err
			return
		}
		if err := writeEnvelope(serverConn, "headers", replyPayload); err != nil {
			done <- err
			return
		}

		// Round 2: terminal empty batch.
		if err := discardRequest(serverConn); err != nil {
			done <- err
			return
		}
		termPayload, err := wire.HeadersMsg{}.Serialize()
		if err != nil {
			done <- err
			return
		}
		done <- writeEnvelope(serverConn, "headers", termPayload)
	}()

	engine := New(pool, headerStore, blockStore, Config{
		Threads:         2,
		Retries:         1,
		StartTimestamp:  2_000_000_000,
		ProtocolVersion: 70015,
		ReadTimeout:     5 * time.Second,
	}, nil)

	require.NoError(t, engine.Run())
	require.NoError(t, <-done)

	onDisk, err := headerStore.ReadAll()
	require.NoError(t, err)
	require.Len(t, onDisk, 1)
	require.Equal(t, staleHeader.Time, onDisk[0].Time)
}

// discardRequest drains one framed message's header and payload without
// inspecting it, unblocking the peer's single Write call on the other
// end of the pipe.
func discardRequest(conn net.Conn) error {
	_, payloadLen, _, err := wire.CheckHeader(conn)
	if err != nil {
		return err
	}
	_, err = io.CopyN(io.Discard, conn, int64(payloadLen))
	return err
}

func writeEnvelope(conn net.Conn, command string, payload []byte) error {
	env, err := wire.NewEnvelope(command, payload)
	if err != nil {
		return err
	}
	framed, err := env.Serialize()
	if err != nil {
		return err
	}
	_, err = conn.Write(framed)
	return err
}
