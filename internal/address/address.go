// Package address derives and decodes testnet P2PKH addresses used by
// the Account and wallet model. Trimmed to P2PKH only — this node never
// produces a P2SH or segwit/bech32 address, so those code paths have no
// caller here.
package address

import (
	"fmt"

	"go-testnet-node/internal/encoding"
)

// TestnetP2PKHVersion is the base58 version byte for a testnet P2PKH
// address.
const TestnetP2PKHVersion byte = 0x6f

// FromHash160 encodes a 20-byte hash160 as a base58check testnet P2PKH
// address.
func FromHash160(hash160 []byte) (string, error) {
	if len(hash160) != 20 {
		return "", fmt.Errorf("address: hash160 must be 20 bytes, got %d", len(hash160))
	}
	versioned := append([]byte{TestnetP2PKHVersion}, hash160...)
	return encoding.EncodeBase58Checksum(versioned), nil
}

// FromPublicKey derives a testnet P2PKH address directly from a
// (compressed) public key.
func FromPublicKey(pubkey []byte) (string, error) {
	return FromHash160(encoding.Hash160(pubkey))
}

// Hash160 decodes a base58check P2PKH address back to its embedded
// hash160, verifying the checksum. The version byte is stripped without
// being checked, and the length of the result is not checked.
func Hash160(addr string) ([]byte, error) {
	decoded, err := encoding.DecodeBase58(addr)
	if err != nil {
		return nil, fmt.Errorf("address: decode %q - %w", addr, err)
	}
	return decoded, nil
}
