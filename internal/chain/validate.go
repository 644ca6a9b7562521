package chain

import (
	"go-testnet-node/internal/bigint"
	"go-testnet-node/internal/encoding"
)

// BitsToTarget decodes a compact nBits encoding into a 256-bit target:
// the top byte is the exponent, the low three bytes are the
// coefficient, and target = coefficient * 256^(exponent-3).
func BitsToTarget(bits uint32) bigint.Uint256 {
	exponent := bits >> 24
	coefficient := bigint.FromUint32(bits & 0x00ffffff)

	if exponent <= 3 {
		// 256^(exponent-3) is a division here: drop the low bytes of
		// the coefficient instead of multiplying.
		return bigint.FromUint32((bits & 0x00ffffff) >> (8 * (3 - exponent)))
	}
	shift := bigint.FromUint64(256).Pow(exponent - 3)
	return coefficient.Mul(shift)
}

// ProofOfWorkValid reports whether the header's hash, interpreted as a
// 256-bit little-endian integer, is strictly below its decoded target.
func ProofOfWorkValid(h BlockHeader) bool {
	hash := h.Hash()
	proof := bigint.FromLEBytes(hash)
	target := BitsToTarget(h.Bits)
	return proof.Less(target)
}

// MerkleRootValid reports whether header.MerkleRoot equals the root
// computed from txids, each taken little-endian as they are stored on
// the wire.
func MerkleRootValid(h BlockHeader, txids [][32]byte) bool {
	hashes := make([][]byte, len(txids))
	for i, id := range txids {
		cp := make([]byte, 32)
		copy(cp, id[:])
		hashes[i] = cp
	}
	root := encoding.MerkleRoot(hashes)
	return [32]byte(root) == h.MerkleRoot
}
