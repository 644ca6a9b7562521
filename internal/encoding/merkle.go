package encoding

// MerkleParent hashes a pair of sibling hashes into their parent, per
// Bitcoin's merkle tree construction.
func MerkleParent(l, r []byte) []byte {
	combined := make([]byte, 0, len(l)+len(r))
	combined = append(combined, l...)
	combined = append(combined, r...)
	return Hash256(combined)
}

// MerkleParentLevel reduces one level of a merkle tree. An odd number of
// hashes duplicates the last one, per the standard Bitcoin rule.
func MerkleParentLevel(hashes [][]byte) [][]byte {
	if len(hashes)%2 != 0 {
		hashes = append(hashes, hashes[len(hashes)-1])
	}
	plevel := make([][]byte, 0, len(hashes)/2)
	for i := 0; i < len(hashes); i += 2 {
		plevel = append(plevel, MerkleParent(hashes[i], hashes[i+1]))
	}
	return plevel
}

// MerkleRoot reduces a list of leaf hashes down to a single root, repeatedly
// applying MerkleParentLevel. Returns nil for an empty input.
func MerkleRoot(hashes [][]byte) []byte {
	if len(hashes) == 0 {
		return nil
	}
	currentHashes := hashes
	for len(currentHashes) > 1 {
		currentHashes = MerkleParentLevel(currentHashes)
	}
	return currentHashes[0]
}
