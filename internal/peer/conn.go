// Package peer implements the connection pool: DNS
// seed discovery, the version/verack/sendheaders handshake, and
// per-connection framed send/recv. Grounded on
// original_source/src/protocol/connection.rs (handshake byte sequence,
// 10-second dial timeout, DNS lookup) and admin_connections.rs (the
// free/busy connection table, find_free_connection/change_connection).
// The Rust source guards the table with ownership borrowing that
// doesn't translate directly to Go; this is rebuilt as a single-owner
// actor goroutine instead of a shared mutex, reached through the Pool's
// request channel (DESIGN.md).
package peer

import (
	"fmt"
	"io"
	"net"
	"time"

	"go-testnet-node/internal/nodeerr"
	"go-testnet-node/internal/wire"
)

// DialTimeout is the minimum connect timeout.
const DialTimeout = 10 * time.Second

// handshakeDebug, if set via SetHandshakeDebug, receives a full struct
// dump of every envelope the handshake reads, for verbose (DEBUG level)
// diagnostics without paying the dump cost when nobody's listening.
var handshakeDebug func(string)

// SetHandshakeDebug installs fn as the handshake's verbose envelope dumper.
// Pass nil to disable.
func SetHandshakeDebug(fn func(string)) {
	handshakeDebug = fn
}

// State is a connection's position in its lifecycle:
// Dialling -> Handshaking -> Ready(free) <-> Ready(busy) -> Closed.
type State int

const (
	StateDialling State = iota
	StateHandshaking
	StateReadyFree
	StateReadyBusy
	StateClosed
)

// Dial opens a TCP connection with the mandated 10-second timeout.
func Dial(addr string) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, DialTimeout)
}

// Handshake drives the initiator side of the version/verack/sendheaders
// sequence. Any deviation is a HandshakeError and the
// caller must close the connection.
func Handshake(conn net.Conn, protocolVersion uint32, readTimeout time.Duration) error {
	tcpRemote, _ := conn.RemoteAddr().(*net.TCPAddr)
	tcpLocal, _ := conn.LocalAddr().(*net.TCPAddr)

	version := wire.VersionMsg{
		ProtocolVersion: protocolVersion,
		Services:        0,
		Timestamp:       uint64(time.Now().Unix()),
		RecvAddr:        wire.NetAddrFromTCP(tcpRemote, 0),
		TransAddr:       wire.NetAddrFromTCP(tcpLocal, 0),
		Nonce:           uint64(time.Now().UnixNano()),
		UserAgent:       "/go-testnet-node:0.1/",
		StartHeight:     0,
		Relay:           false,
	}
	if err := writeMessage(conn, version); err != nil {
		return fmt.Errorf("%w: send version - %v", nodeerr.ErrHandshake, err)
	}

	command, payload, err := readFramedMessage(conn, readTimeout)
	if err != nil {
		return fmt.Errorf("%w: read version reply - %v", nodeerr.ErrHandshake, err)
	}
	dumpEnvelope(command, payload)
	if command != "version" {
		return fmt.Errorf("%w: expected version, got %q", nodeerr.ErrHandshake, command)
	}
	if _, err := wire.ParseVersionMsg(payload); err != nil {
		return fmt.Errorf("%w: malformed version payload - %v", nodeerr.ErrHandshake, err)
	}

	command, verackPayload, err := readFramedMessage(conn, readTimeout)
	if err != nil {
		return fmt.Errorf("%w: read verack - %v", nodeerr.ErrHandshake, err)
	}
	dumpEnvelope(command, verackPayload)
	if command != "verack" {
		return fmt.Errorf("%w: expected verack, got %q", nodeerr.ErrHandshake, command)
	}

	if err := writeMessage(conn, wire.VerackMsg()); err != nil {
		return fmt.Errorf("%w: send verack - %v", nodeerr.ErrHandshake, err)
	}
	if err := writeMessage(conn, wire.SendHeadersMsg()); err != nil {
		return fmt.Errorf("%w: send sendheaders - %v", nodeerr.ErrHandshake, err)
	}
	return nil
}

// dumpEnvelope hands handshakeDebug a full struct dump of an inbound
// handshake reply, skipped entirely when no debug sink is installed.
func dumpEnvelope(command string, payload []byte) {
	if handshakeDebug == nil {
		return
	}
	env, err := wire.NewEnvelope(command, payload)
	if err != nil {
		return
	}
	handshakeDebug(env.Dump())
}

func writeMessage(conn net.Conn, msg wire.Message) error {
	payload, err := msg.Serialize()
	if err != nil {
		return err
	}
	env, err := wire.NewEnvelope(msg.Command(), payload)
	if err != nil {
		return err
	}
	framed, err := env.Serialize()
	if err != nil {
		return err
	}
	return writeFull(conn, framed)
}

// writeFull retries partial writes until the full frame lands or an
// error occurs.
func writeFull(conn net.Conn, data []byte) error {
	for len(data) > 0 {
		n, err := conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func readFramedMessage(conn net.Conn, timeout time.Duration) (command string, payload []byte, err error) {
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
	command, payloadLen, checksum, err := wire.CheckHeader(conn)
	if err != nil {
		return "", nil, err
	}
	payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return "", nil, err
	}
	if err := wire.VerifyChecksum(payload, checksum); err != nil {
		return "", nil, err
	}
	return command, payload, nil
}
