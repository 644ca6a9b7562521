// Package keys wraps secp256k1 key material and WIF encoding for the
// Account model and transaction signing. Signing goes through
// github.com/decred/dcrd/dcrec/secp256k1/v4 rather than a hand-rolled
// curve implementation (see DESIGN.md).
package keys

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"go-testnet-node/internal/encoding"
)

const (
	wifPrefixMainnet    byte = 0x80
	wifPrefixTestnet    byte = 0xef
	wifCompressedSuffix byte = 0x01
)

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// NewPrivateKey wraps raw 32-byte secret key material.
func NewPrivateKey(secret []byte) (*PrivateKey, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("keys: secret must be 32 bytes, got %d", len(secret))
	}
	priv := secp256k1.PrivKeyFromBytes(secret)
	return &PrivateKey{key: priv}, nil
}

// PublicKey returns the compressed SEC-encoded public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Sign produces a DER-encoded ECDSA signature over hash with the
// SIGHASH_ALL byte appended.
func (pk *PrivateKey) Sign(hash []byte) []byte {
	sig := ecdsa.Sign(pk.key, hash)
	der := sig.Serialize()
	return append(der, byte(encoding.SIGHASH_ALL>>24))
}

// WIF encodes the private key in Wallet Import Format, always compressed,
// with the testnet prefix when testnet is true and the mainnet prefix
// otherwise.
func (pk *PrivateKey) WIF(testnet bool) string {
	secretBytes := pk.key.Serialize()

	prefix := wifPrefixMainnet
	if testnet {
		prefix = wifPrefixTestnet
	}

	result := make([]byte, 0, 34)
	result = append(result, prefix)
	result = append(result, secretBytes...)
	result = append(result, wifCompressedSuffix)

	return encoding.EncodeBase58Checksum(result)
}

// ParseWIF decodes a WIF-encoded secret key.
func ParseWIF(wif string) (*PrivateKey, error) {
	decoded, err := encoding.DecodeBase58(wif)
	if err != nil {
		return nil, fmt.Errorf("keys: decode WIF - %w", err)
	}
	// DecodeBase58 already stripped the leading version byte.
	if len(decoded) == 33 {
		decoded = decoded[:32] // drop compressed-pubkey suffix marker
	}
	return NewPrivateKey(decoded)
}
