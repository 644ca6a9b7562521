package encoding

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// SIGHASH_ALL holds the hash-type value 0x01 in its top byte:
// SIGHASH_ALL>>24 is appended to the preimage as a 4-byte little-endian
// value (01 00 00 00) before signing, and as a single byte after a DER
// signature.
const SIGHASH_ALL uint32 = 0x01000000

// Hash256 is Bitcoin's double-SHA256, used for txids, block hashes and
// merkle parents.
func Hash256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// Hash160 is SHA256 followed by RIPEMD160, used to derive P2PKH pubkey
// hashes and addresses.
func Hash160(data []byte) []byte {
	h1 := sha256.Sum256(data)

	hasher := ripemd160.New()
	hasher.Write(h1[:])
	return hasher.Sum(nil)
}
