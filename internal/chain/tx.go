package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"go-testnet-node/internal/encoding"
)

// TxIn is a transaction input. PrevHash/PrevIndex name the
// outpoint being spent; Script carries either the scriptSig (on a fully
// signed transaction) or, transiently, the substituted scriptPubKey used
// while computing a sighash preimage.
type TxIn struct {
	PrevHash [32]byte // little-endian, as stored on the wire
	PrevIndex uint32
	Script   []byte
	Sequence uint32
}

// IsCoinbase reports whether this input has the all-zero, max-index
// outpoint that marks a coinbase transaction.
func (in TxIn) IsCoinbase() bool {
	return in.PrevIndex == 0xffffffff && in.PrevHash == [32]byte{}
}

// TxOut is a transaction output.
type TxOut struct {
	Value  int64
	Script []byte
}

// Transaction is version/inputs/outputs/locktime.
type Transaction struct {
	Version  int32
	Inputs   []TxIn
	Outputs  []TxOut
	Locktime uint32
}

// ParseTransaction reads a legacy (non-segwit) transaction from r.
func ParseTransaction(r io.Reader) (Transaction, error) {
	var buf4 [4]byte
	if _, err := io.ReadFull(r, buf4[:]); err != nil {
		return Transaction{}, fmt.Errorf("chain: read tx version - %w", err)
	}
	version := int32(binary.LittleEndian.Uint32(buf4[:]))

	numIn, err := encoding.ReadVarInt(r)
	if err != nil {
		return Transaction{}, fmt.Errorf("chain: read input count - %w", err)
	}
	inputs := make([]TxIn, numIn)
	for i := range inputs {
		in, err := parseTxIn(r)
		if err != nil {
			return Transaction{}, fmt.Errorf("chain: read input %d - %w", i, err)
		}
		inputs[i] = in
	}

	numOut, err := encoding.ReadVarInt(r)
	if err != nil {
		return Transaction{}, fmt.Errorf("chain: read output count - %w", err)
	}
	outputs := make([]TxOut, numOut)
	for i := range outputs {
		out, err := parseTxOut(r)
		if err != nil {
			return Transaction{}, fmt.Errorf("chain: read output %d - %w", i, err)
		}
		outputs[i] = out
	}

	if _, err := io.ReadFull(r, buf4[:]); err != nil {
		return Transaction{}, fmt.Errorf("chain: read locktime - %w", err)
	}
	locktime := binary.LittleEndian.Uint32(buf4[:])

	return Transaction{
		Version:  version,
		Inputs:   inputs,
		Outputs:  outputs,
		Locktime: locktime,
	}, nil
}

func parseTxIn(r io.Reader) (TxIn, error) {
	var in TxIn
	if _, err := io.ReadFull(r, in.PrevHash[:]); err != nil {
		return TxIn{}, err
	}
	var buf4 [4]byte
	if _, err := io.ReadFull(r, buf4[:]); err != nil {
		return TxIn{}, err
	}
	in.PrevIndex = binary.LittleEndian.Uint32(buf4[:])

	scriptLen, err := encoding.ReadVarInt(r)
	if err != nil {
		return TxIn{}, err
	}
	in.Script = make([]byte, scriptLen)
	if _, err := io.ReadFull(r, in.Script); err != nil {
		return TxIn{}, err
	}

	if _, err := io.ReadFull(r, buf4[:]); err != nil {
		return TxIn{}, err
	}
	in.Sequence = binary.LittleEndian.Uint32(buf4[:])
	return in, nil
}

func parseTxOut(r io.Reader) (TxOut, error) {
	var out TxOut
	var buf8 [8]byte
	if _, err := io.ReadFull(r, buf8[:]); err != nil {
		return TxOut{}, err
	}
	out.Value = int64(binary.LittleEndian.Uint64(buf8[:]))

	scriptLen, err := encoding.ReadVarInt(r)
	if err != nil {
		return TxOut{}, err
	}
	out.Script = make([]byte, scriptLen)
	if _, err := io.ReadFull(r, out.Script); err != nil {
		return TxOut{}, err
	}
	return out, nil
}

// Serialize writes the legacy wire form of the transaction.
func (t Transaction) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], uint32(t.Version))
	buf.Write(v[:])

	inCount, err := encoding.EncodeVarInt(uint64(len(t.Inputs)))
	if err != nil {
		return nil, err
	}
	buf.Write(inCount)
	for _, in := range t.Inputs {
		if err := serializeTxIn(&buf, in); err != nil {
			return nil, err
		}
	}

	outCount, err := encoding.EncodeVarInt(uint64(len(t.Outputs)))
	if err != nil {
		return nil, err
	}
	buf.Write(outCount)
	for _, out := range t.Outputs {
		if err := serializeTxOut(&buf, out); err != nil {
			return nil, err
		}
	}

	var lt [4]byte
	binary.LittleEndian.PutUint32(lt[:], t.Locktime)
	buf.Write(lt[:])

	return buf.Bytes(), nil
}

func serializeTxIn(buf *bytes.Buffer, in TxIn) error {
	buf.Write(in.PrevHash[:])
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], in.PrevIndex)
	buf.Write(idx[:])

	scriptLen, err := encoding.EncodeVarInt(uint64(len(in.Script)))
	if err != nil {
		return err
	}
	buf.Write(scriptLen)
	buf.Write(in.Script)

	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], in.Sequence)
	buf.Write(seq[:])
	return nil
}

func serializeTxOut(buf *bytes.Buffer, out TxOut) error {
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], uint64(out.Value))
	buf.Write(v[:])

	scriptLen, err := encoding.EncodeVarInt(uint64(len(out.Script)))
	if err != nil {
		return err
	}
	buf.Write(scriptLen)
	buf.Write(out.Script)
	return nil
}

// TxID returns SHA256d(serialize(t)), little-endian as stored on the wire
// and used directly as a UTXO key.
func (t Transaction) TxID() ([32]byte, error) {
	ser, err := t.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	sum := encoding.Hash256(ser)
	var out [32]byte
	copy(out[:], sum)
	return out, nil
}

// IDString renders the txid in conventional big-endian display order.
func (t Transaction) IDString() (string, error) {
	id, err := t.TxID()
	if err != nil {
		return "", err
	}
	display := make([]byte, 32)
	copy(display, id[:])
	slices.Reverse(display)
	return fmt.Sprintf("%x", display), nil
}

// SigHash computes the SIGHASH_ALL preimage digest for input i: the
// transaction serialized with input i's script replaced by the prevout's
// scriptPubKey and every other input's script cleared, with the
// SIGHASH_ALL type appended before the final hash. The
// caller supplies prevScriptPubKey — looked up from the UTXO set, never
// fetched over the network.
func (t Transaction) SigHash(i int, prevScriptPubKey []byte) ([]byte, error) {
	if i < 0 || i >= len(t.Inputs) {
		return nil, fmt.Errorf("chain: sighash input index %d out of range", i)
	}

	modifiedInputs := make([]TxIn, len(t.Inputs))
	for j, in := range t.Inputs {
		modifiedInputs[j] = TxIn{
			PrevHash:  in.PrevHash,
			PrevIndex: in.PrevIndex,
			Sequence:  in.Sequence,
		}
		if j == i {
			modifiedInputs[j].Script = prevScriptPubKey
		}
	}

	modified := Transaction{
		Version:  t.Version,
		Inputs:   modifiedInputs,
		Outputs:  t.Outputs,
		Locktime: t.Locktime,
	}

	serialized, err := modified.Serialize()
	if err != nil {
		return nil, err
	}

	var sighashType [4]byte
	binary.LittleEndian.PutUint32(sighashType[:], encoding.SIGHASH_ALL>>24)
	serialized = append(serialized, sighashType[:]...)

	return encoding.Hash256(serialized), nil
}
