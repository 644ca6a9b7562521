package peer

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/wire"
)

func writeFramed(t *testing.T, conn net.Conn, command string, payload []byte) {
	t.Helper()
	env, err := wire.NewEnvelope(command, payload)
	require.NoError(t, err)
	framed, err := env.Serialize()
	require.NoError(t, err)
	_, err = conn.Write(framed)
	require.NoError(t, err)
}

func readFramed(t *testing.T, conn net.Conn) (string, []byte) {
	t.Helper()
	command, payloadLen, checksum, err := wire.CheckHeader(conn)
	require.NoError(t, err)
	payload := make([]byte, payloadLen)
	_, err = io.ReadFull(conn, payload)
	require.NoError(t, err)
	require.NoError(t, wire.VerifyChecksum(payload, checksum))
	return command, payload
}

// TestHandshakeOutOfOrderVerackFailsWithHandshakeError drives the
// initiator side against a mock peer that replies with verack before
// version. Handshake must reject it as a HandshakeError rather than
// accepting the connection or hanging.
func TestHandshakeOutOfOrderVerackFailsWithHandshakeError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan error, 1)
	go func() {
		err := Handshake(clientConn, 70015, time.Second)
		done <- err
	}()

	// drain the version the initiator sends first, then reply with
	// verack out of order instead of version.
	command, _ := readFramed(t, serverConn)
	require.Equal(t, "version", command)
	writeFramed(t, serverConn, "verack", nil)

	err := <-done
	require.Error(t, err)
	require.Equal(t, nodeerr.KindHandshake, nodeerr.KindOf(err))
}

// TestHandshakeSucceedsOnCorrectOrder drives the initiator against a
// mock peer that replies version then verack, the required order, and
// checks the initiator completes by sending verack and sendheaders in
// turn.
func TestHandshakeSucceedsOnCorrectOrder(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	done := make(chan error, 1)
	go func() {
		done <- Handshake(clientConn, 70015, time.Second)
	}()

	command, _ := readFramed(t, serverConn)
	require.Equal(t, "version", command)

	versionPayload, err := wire.VersionMsg{
		ProtocolVersion: 70015,
		UserAgent:       "/mock:0/",
	}.Serialize()
	require.NoError(t, err)
	writeFramed(t, serverConn, "version", versionPayload)
	writeFramed(t, serverConn, "verack", nil)

	command, _ = readFramed(t, serverConn)
	require.Equal(t, "verack", command)
	command, _ = readFramed(t, serverConn)
	require.Equal(t, "sendheaders", command)

	require.NoError(t, <-done)
}
