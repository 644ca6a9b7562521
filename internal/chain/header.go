// Package chain implements the block/header/transaction data model and
// the proof-of-work/Merkle-root validation rules.
package chain

import (
	"encoding/binary"
	"fmt"
	"io"
	"slices"
	"time"

	"go-testnet-node/internal/encoding"
)

// HeaderSize is the fixed wire size of a BlockHeader.
const HeaderSize = 80

// BlockHeader is the 80-byte block header.
type BlockHeader struct {
	Version    int32
	PrevHash   [32]byte // as stored on the wire, little-endian
	MerkleRoot [32]byte
	Time       uint32
	Bits       uint32
	Nonce      uint32
}

// TestnetGenesisHash is the testnet3 genesis block hash, little-endian as
// it appears on the wire. Used as the Phase-A locator when no headers are
// on disk yet.
var TestnetGenesisHash = [32]byte{
	0x43, 0x49, 0x7f, 0xd7, 0xf8, 0x26, 0x95, 0x71,
	0x08, 0xf4, 0xa3, 0x0f, 0xd9, 0xce, 0xc3, 0xae,
	0xba, 0x79, 0x97, 0x20, 0x84, 0xe9, 0x0e, 0xad,
	0x01, 0xea, 0x33, 0x09, 0x00, 0x00, 0x00, 0x00,
}

// ParseHeader reads an 80-byte BlockHeader from r.
func ParseHeader(r io.Reader) (BlockHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return BlockHeader{}, fmt.Errorf("chain: read header - %w", err)
	}
	return decodeHeader(buf), nil
}

func decodeHeader(buf [HeaderSize]byte) BlockHeader {
	var h BlockHeader
	h.Version = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(h.PrevHash[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	h.Time = binary.LittleEndian.Uint32(buf[68:72])
	h.Bits = binary.LittleEndian.Uint32(buf[72:76])
	h.Nonce = binary.LittleEndian.Uint32(buf[76:80])
	return h
}

// Serialize writes the header's canonical 80-byte wire form.
func (h BlockHeader) Serialize() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Time)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return buf
}

// Hash returns SHA256d(serialize(header)), little-endian as it appears on
// the wire and is used for locators/identity.
func (h BlockHeader) Hash() [32]byte {
	sum := encoding.Hash256(h.Serialize())
	var out [32]byte
	copy(out[:], sum)
	return out
}

// ID renders the header hash in the conventional big-endian display order.
func (h BlockHeader) ID() string {
	hash := h.Hash()
	display := make([]byte, 32)
	copy(display, hash[:])
	slices.Reverse(display)
	return fmt.Sprintf("%x", display)
}

// Timestamp interprets Time as a UTC unix timestamp.
func (h BlockHeader) Timestamp() time.Time {
	return time.Unix(int64(h.Time), 0).UTC()
}
