// Package wire implements the Bitcoin testnet P2P message codec: the
// 24-byte envelope header and the supported payload shapes.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"go-testnet-node/internal/encoding"
	"go-testnet-node/internal/nodeerr"
)

// Message is anything that can be framed into a NetworkEnvelope.
type Message interface {
	Serialize() ([]byte, error)
	Command() string
}

// TestnetMagic is the literal testnet3 magic: stored as a
// plain byte array rather than a numeric type so there is no endianness
// to get wrong on either the read or write side.
var TestnetMagic = [4]byte{0x0b, 0x11, 0x09, 0x07}

// Envelope is the 24-byte wire header plus its payload.
type Envelope struct {
	Magic      [4]byte
	Command    string
	PayloadLen uint32
	Checksum   [4]byte
	Payload    []byte
}

// NewEnvelope frames a payload under the given command.
func NewEnvelope(command string, payload []byte) (Envelope, error) {
	if len(command) > 12 {
		return Envelope{}, fmt.Errorf("wire: command too long: %d bytes (max 12)", len(command))
	}
	hash := encoding.Hash256(payload)
	var checksum [4]byte
	copy(checksum[:], hash[:4])

	return Envelope{
		Magic:      TestnetMagic,
		Command:    command,
		PayloadLen: uint32(len(payload)),
		Checksum:   checksum,
		Payload:    payload,
	}, nil
}

func (e Envelope) String() string {
	return fmt.Sprintf("%s: %d bytes", e.Command, e.PayloadLen)
}

// Dump renders the full envelope structure for verbose handshake logging.
func (e Envelope) Dump() string {
	return spew.Sdump(e)
}

func (e *Envelope) commandBytes() [12]byte {
	var cmd [12]byte
	copy(cmd[:], e.Command)
	return cmd
}

// Serialize writes the 24-byte header followed by the payload.
func (e *Envelope) Serialize() ([]byte, error) {
	buf := make([]byte, 24+len(e.Payload))
	copy(buf[0:4], e.Magic[:])
	cmd := e.commandBytes()
	copy(buf[4:16], cmd[:])
	binary.LittleEndian.PutUint32(buf[16:20], e.PayloadLen)
	copy(buf[20:24], e.Checksum[:])
	copy(buf[24:], e.Payload)
	return buf, nil
}

// CheckHeader reads the 24-byte header only and reports the command and
// declared payload length. A magic mismatch is recoverable by the caller
// (discard and read another header); it does not consume the payload.
func CheckHeader(r io.Reader) (command string, payloadLen uint32, checksum [4]byte, err error) {
	var header [24]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return "", 0, checksum, fmt.Errorf("wire: read header - %w", err)
	}
	if !bytes.Equal(header[0:4], TestnetMagic[:]) {
		return "", 0, checksum, fmt.Errorf("%w: got %x", nodeerr.ErrWrongMagic, header[0:4])
	}
	command = string(bytes.TrimRight(header[4:16], "\x00"))
	payloadLen = binary.LittleEndian.Uint32(header[16:20])
	copy(checksum[:], header[20:24])
	return command, payloadLen, checksum, nil
}

// ParseEnvelope reads a full envelope (header + payload) from r.
func ParseEnvelope(r io.Reader) (Envelope, error) {
	command, payloadLen, checksum, err := CheckHeader(r)
	if err != nil {
		return Envelope{}, err
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("%w: read payload - %v", nodeerr.ErrWireFormat, err)
	}

	if err := VerifyChecksum(payload, checksum); err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Magic:      TestnetMagic,
		Command:    command,
		PayloadLen: payloadLen,
		Checksum:   checksum,
		Payload:    payload,
	}, nil
}

// VerifyChecksum reports whether checksum matches first4(SHA256d(payload)).
func VerifyChecksum(payload []byte, checksum [4]byte) error {
	hash := encoding.Hash256(payload)
	var expected [4]byte
	copy(expected[:], hash[:4])
	if expected != checksum {
		return fmt.Errorf("%w: checksum mismatch: got %x, expected %x", nodeerr.ErrWireFormat, checksum, expected)
	}
	return nil
}
