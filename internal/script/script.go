package script

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go-testnet-node/internal/encoding"
)

// Command is one element of a script: either a data push or an opcode.
type Command struct {
	Opcode byte
	Data   []byte
	IsData bool
}

// Script is an ordered stack of commands.
type Script struct {
	Commands []Command
}

func New(cmds []Command) Script {
	return Script{Commands: cmds}
}

// Parse reads a varint-prefixed script from r, following the same push
// rules as scriptSig/scriptPubKey on the wire.
func Parse(r io.Reader) (Script, error) {
	s := New(nil)
	length, err := encoding.ReadVarInt(r)
	if err != nil {
		return Script{}, fmt.Errorf("script: read length - %w", err)
	}

	count := uint64(0)
	for count < length {
		var opByte [1]byte
		if _, err := io.ReadFull(r, opByte[:]); err != nil {
			return Script{}, fmt.Errorf("script: read opcode - %w", err)
		}
		current := opByte[0]
		count++

		switch {
		case current >= 1 && current <= 75:
			data := make([]byte, current)
			if _, err := io.ReadFull(r, data); err != nil {
				return Script{}, fmt.Errorf("script: read push - %w", err)
			}
			s.Commands = append(s.Commands, Command{Data: data, IsData: true})
			count += uint64(current)
		case current == OP_PUSHDATA1:
			var n [1]byte
			if _, err := io.ReadFull(r, n[:]); err != nil {
				return Script{}, fmt.Errorf("script: OP_PUSHDATA1 length - %w", err)
			}
			data := make([]byte, n[0])
			if _, err := io.ReadFull(r, data); err != nil {
				return Script{}, fmt.Errorf("script: OP_PUSHDATA1 data - %w", err)
			}
			s.Commands = append(s.Commands, Command{Data: data, IsData: true})
			count += uint64(len(data)) + 1
		case current == OP_PUSHDATA2:
			var n [2]byte
			if _, err := io.ReadFull(r, n[:]); err != nil {
				return Script{}, fmt.Errorf("script: OP_PUSHDATA2 length - %w", err)
			}
			dataLen := binary.LittleEndian.Uint16(n[:])
			data := make([]byte, dataLen)
			if _, err := io.ReadFull(r, data); err != nil {
				return Script{}, fmt.Errorf("script: OP_PUSHDATA2 data - %w", err)
			}
			s.Commands = append(s.Commands, Command{Data: data, IsData: true})
			count += uint64(dataLen) + 2
		case current == OP_PUSHDATA4:
			var n [4]byte
			if _, err := io.ReadFull(r, n[:]); err != nil {
				return Script{}, fmt.Errorf("script: OP_PUSHDATA4 length - %w", err)
			}
			dataLen := binary.LittleEndian.Uint32(n[:])
			data := make([]byte, dataLen)
			if _, err := io.ReadFull(r, data); err != nil {
				return Script{}, fmt.Errorf("script: OP_PUSHDATA4 data - %w", err)
			}
			s.Commands = append(s.Commands, Command{Data: data, IsData: true})
			count += uint64(dataLen) + 4
		default:
			s.Commands = append(s.Commands, Command{Opcode: current})
		}
	}
	if count != length {
		return Script{}, fmt.Errorf("script: length mismatch: declared %d, consumed %d", length, count)
	}
	return s, nil
}

// Serialize writes the varint-prefixed script.
func (s Script) Serialize() ([]byte, error) {
	var body bytes.Buffer
	for _, cmd := range s.Commands {
		if !cmd.IsData {
			body.WriteByte(cmd.Opcode)
			continue
		}
		n := len(cmd.Data)
		switch {
		case n <= 75:
			body.WriteByte(byte(n))
		case n <= 0xff:
			body.WriteByte(OP_PUSHDATA1)
			body.WriteByte(byte(n))
		case n <= 0xffff:
			body.WriteByte(OP_PUSHDATA2)
			var l [2]byte
			binary.LittleEndian.PutUint16(l[:], uint16(n))
			body.Write(l[:])
		default:
			body.WriteByte(OP_PUSHDATA4)
			var l [4]byte
			binary.LittleEndian.PutUint32(l[:], uint32(n))
			body.Write(l[:])
		}
		body.Write(cmd.Data)
	}

	length, err := encoding.EncodeVarInt(uint64(body.Len()))
	if err != nil {
		return nil, fmt.Errorf("script: serialize length - %w", err)
	}
	return append(length, body.Bytes()...), nil
}

// Bytes returns the raw (un-length-prefixed) command encoding, the form
// stored directly in a TxOut/TxIn's Script field.
func (s Script) Bytes() ([]byte, error) {
	full, err := s.Serialize()
	if err != nil {
		return nil, err
	}
	_, n, err := encoding.ParseVarInt(full)
	if err != nil {
		return nil, err
	}
	return full[n:], nil
}

// P2PKH builds the standard pay-to-public-key-hash scriptPubKey:
// OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG.
func P2PKH(hash160 []byte) Script {
	return New([]Command{
		{Opcode: OP_DUP},
		{Opcode: OP_HASH160},
		{Data: hash160, IsData: true},
		{Opcode: OP_EQUALVERIFY},
		{Opcode: OP_CHECKSIG},
	})
}

// MatchP2PKH reports whether raw is exactly a P2PKH scriptPubKey and, if
// so, returns the embedded pubkey hash.
func MatchP2PKH(raw []byte) (hash160 []byte, ok bool) {
	if len(raw) != 25 {
		return nil, false
	}
	if raw[0] != OP_DUP || raw[1] != OP_HASH160 || raw[2] != 20 {
		return nil, false
	}
	if raw[23] != OP_EQUALVERIFY || raw[24] != OP_CHECKSIG {
		return nil, false
	}
	return raw[3:23], true
}

// SigScript builds a scriptSig of DER-signature-push followed by
// compressed-pubkey-push.
func SigScript(derSigWithHashType, compressedPubkey []byte) Script {
	return New([]Command{
		{Data: derSigWithHashType, IsData: true},
		{Data: compressedPubkey, IsData: true},
	})
}

var errNotP2PKHOrP2SH = errors.New("script: not a recognized P2PKH/P2SH pattern")

// Address renders the script's embedded hash160 as a base58 address,
// selecting the P2PKH or P2SH version byte for the given network.
func (s Script) Address(testnet bool) (string, error) {
	if len(s.Commands) < 3 {
		return "", errNotP2PKHOrP2SH
	}
	if s.Commands[0].Opcode == OP_HASH160 && s.Commands[2].Opcode == OP_EQUAL {
		return p2shAddress(s.Commands[1].Data, testnet), nil
	}
	return p2pkhAddress(s.Commands[2].Data, testnet), nil
}

func p2pkhAddress(hash160 []byte, testnet bool) string {
	prefix := byte(0x00)
	if testnet {
		prefix = 0x6f
	}
	return encoding.EncodeBase58Checksum(append([]byte{prefix}, hash160...))
}

func p2shAddress(hash160 []byte, testnet bool) string {
	prefix := byte(0x05)
	if testnet {
		prefix = 0xc4
	}
	return encoding.EncodeBase58Checksum(append([]byte{prefix}, hash160...))
}
