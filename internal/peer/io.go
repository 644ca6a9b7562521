package peer

import (
	"fmt"
	"io"
	"net"
	"time"

	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/wire"
)

// WriteMessage frames and writes msg, retrying partial writes until the
// whole frame lands.
func WriteMessage(conn net.Conn, msg wire.Message) error {
	return writeMessage(conn, msg)
}

// ReadHeader reads just the 24-byte envelope header with the given read
// timeout, returning the command and declared payload length. A
// WrongMagic error is recoverable by the caller: discard and read
// another header.
func ReadHeader(conn net.Conn, timeout time.Duration) (command string, payloadLen uint32, checksum [4]byte, err error) {
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
	return wire.CheckHeader(conn)
}

// ReadPayload reads exactly n bytes and verifies the checksum.
func ReadPayload(conn net.Conn, n uint32, checksum [4]byte) ([]byte, error) {
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload - %v", nodeerr.ErrWireFormat, err)
	}
	if err := wire.VerifyChecksum(payload, checksum); err != nil {
		return nil, err
	}
	return payload, nil
}

// ReadMessage reads one full framed message with the given timeout.
func ReadMessage(conn net.Conn, timeout time.Duration) (command string, payload []byte, err error) {
	return readFramedMessage(conn, timeout)
}

// DiscardPayload reads and drops n bytes without checksum verification,
// for an unrecognised command.
func DiscardPayload(conn net.Conn, n uint32) error {
	_, err := io.CopyN(io.Discard, conn, int64(n))
	return err
}
