package chain

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// testnetGenesisHeader reconstructs the testnet3 genesis block header
// field-by-field; its hash is TestnetGenesisHash and it is the one
// header guaranteed to satisfy proof-of-work against its own bits.
func testnetGenesisHeader() BlockHeader {
	return BlockHeader{
		Version:    1,
		PrevHash:   [32]byte{},
		MerkleRoot: genesisMerkleRootLE,
		Time:       1296688602,
		Bits:       0x1d00ffff,
		Nonce:      414098458,
	}
}

// genesisMerkleRootLE is the testnet3 genesis coinbase txid, the
// wire/little-endian byte order used inside a BlockHeader.
var genesisMerkleRootLE = [32]byte{
	0x3b, 0xa3, 0xed, 0xfd, 0x7a, 0x7b, 0x12, 0xb2,
	0x7a, 0xc7, 0x2c, 0x3e, 0x67, 0x76, 0x8f, 0x61,
	0x7f, 0xc8, 0x1b, 0xc3, 0x88, 0x8a, 0x51, 0x32,
	0x3a, 0x9f, 0xb8, 0xaa, 0x4b, 0x1e, 0x5e, 0x4a,
}

func TestHeaderRoundTrip(t *testing.T) {
	h := testnetGenesisHeader()
	ser := h.Serialize()
	require.Len(t, ser, HeaderSize, "a serialized header must be exactly 80 bytes")

	got, err := ParseHeader(bytes.NewReader(ser))
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestHeaderHashMatchesKnownGenesisHash(t *testing.T) {
	h := testnetGenesisHeader()
	require.Equal(t, TestnetGenesisHash, h.Hash())
}

// TestProofOfWorkAcceptsGenesisHeader is scenario A: a real header whose
// hash, interpreted as a little-endian 256-bit integer, falls below its
// decoded target.
func TestProofOfWorkAcceptsGenesisHeader(t *testing.T) {
	h := testnetGenesisHeader()
	require.True(t, ProofOfWorkValid(h))
}

// TestProofOfWorkRejectsTamperedNonce is scenario B: the same header
// with its nonce perturbed no longer hashes below the target, so
// validation must reject it.
func TestProofOfWorkRejectsTamperedNonce(t *testing.T) {
	h := testnetGenesisHeader()
	h.Nonce++
	require.False(t, ProofOfWorkValid(h))
}

func TestTxRoundTrip(t *testing.T) {
	tx := Transaction{
		Version: 1,
		Inputs: []TxIn{
			{PrevHash: [32]byte{1, 2, 3}, PrevIndex: 0, Script: []byte{0x01, 0x02}, Sequence: 0xffffffff},
		},
		Outputs: []TxOut{
			{Value: 5000, Script: []byte{0x76, 0xa9, 0x14}},
		},
		Locktime: 0,
	}

	ser, err := tx.Serialize()
	require.NoError(t, err)

	got, err := ParseTransaction(bytes.NewReader(ser))
	require.NoError(t, err)
	require.Equal(t, tx, got)
}

func TestMerkleRootValidSingleTx(t *testing.T) {
	var txid [32]byte
	txid[0] = 0xAB
	h := BlockHeader{MerkleRoot: txid}
	require.True(t, MerkleRootValid(h, [][32]byte{txid}), "a single-tx block's merkle root is that tx's own id")
}

func TestMerkleRootInvalidWhenRootDoesNotMatch(t *testing.T) {
	var txid, wrongRoot [32]byte
	txid[0] = 0xAB
	wrongRoot[0] = 0xCD
	h := BlockHeader{MerkleRoot: wrongRoot}
	require.False(t, MerkleRootValid(h, [][32]byte{txid}))
}
