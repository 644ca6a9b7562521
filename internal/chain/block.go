package chain

import (
	"bytes"
	"fmt"
	"io"

	"go-testnet-node/internal/encoding"
)

// SerializedBlock is a header followed by its full transaction vector.
type SerializedBlock struct {
	Header BlockHeader
	Txs    []Transaction
}

// ParseBlock reads a header followed by a varint-prefixed transaction
// vector.
func ParseBlock(r io.Reader) (SerializedBlock, error) {
	header, err := ParseHeader(r)
	if err != nil {
		return SerializedBlock{}, err
	}

	numTx, err := encoding.ReadVarInt(r)
	if err != nil {
		return SerializedBlock{}, fmt.Errorf("chain: read tx count - %w", err)
	}
	txs := make([]Transaction, numTx)
	for i := range txs {
		tx, err := ParseTransaction(r)
		if err != nil {
			return SerializedBlock{}, fmt.Errorf("chain: read tx %d/%d - %w", i, numTx, err)
		}
		txs[i] = tx
	}

	return SerializedBlock{Header: header, Txs: txs}, nil
}

// Serialize writes the header followed by the varint-prefixed tx vector.
func (b SerializedBlock) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(b.Header.Serialize())

	count, err := encoding.EncodeVarInt(uint64(len(b.Txs)))
	if err != nil {
		return nil, err
	}
	buf.Write(count)

	for i, tx := range b.Txs {
		ser, err := tx.Serialize()
		if err != nil {
			return nil, fmt.Errorf("chain: serialize tx %d - %w", i, err)
		}
		buf.Write(ser)
	}
	return buf.Bytes(), nil
}

// TxIDs returns the little-endian txid of every transaction, in order,
// for merkle-root validation.
func (b SerializedBlock) TxIDs() ([][32]byte, error) {
	ids := make([][32]byte, len(b.Txs))
	for i, tx := range b.Txs {
		id, err := tx.TxID()
		if err != nil {
			return nil, fmt.Errorf("chain: txid %d - %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// Valid checks both the proof-of-work and merkle-root invariants.
func (b SerializedBlock) Valid() (bool, error) {
	if !ProofOfWorkValid(b.Header) {
		return false, nil
	}
	ids, err := b.TxIDs()
	if err != nil {
		return false, err
	}
	return MerkleRootValid(b.Header, ids), nil
}
