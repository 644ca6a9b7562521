// Package nodeerr defines the sentinel error kinds the core can raise and
// how each kind maps onto the process exit codes.
package nodeerr

import "errors"

// Kind classifies an error for the purposes of propagation policy:
// recover locally, drop a peer, or surface to the top level.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindWrongMagic
	KindHandshake
	KindWireFormat
	KindValidation
	KindNoFreePeer
	KindDownloadExhausted
	KindPersistence
	KindWallet
)

var (
	// ErrConfigMissing means a required configuration key had no value.
	ErrConfigMissing = errors.New("config: required key missing")
	// ErrConfigUnreadable means the configuration file could not be parsed.
	ErrConfigUnreadable = errors.New("config: file unreadable")

	// ErrWrongMagic means a message header carried a magic value that did
	// not match the configured network. Recovered locally by discarding
	// and re-reading.
	ErrWrongMagic = errors.New("wire: wrong magic")

	// ErrHandshake means the peer deviated from the version/verack/
	// sendheaders sequence. The connection is dropped.
	ErrHandshake = errors.New("peer: handshake failed")

	// ErrWireFormat covers truncated payloads, bad lengths and checksum
	// mismatches.
	ErrWireFormat = errors.New("wire: malformed message")

	// ErrValidation covers PoW and Merkle-root failures.
	ErrValidation = errors.New("validation failed")

	// ErrNoFreePeer means the pool had no Ready(free) connection and
	// re-dialling did not produce one.
	ErrNoFreePeer = errors.New("peer: no free connection")

	// ErrDownloadExhausted means retries were exhausted during IBD.
	ErrDownloadExhausted = errors.New("ibd: download exhausted retries")

	// ErrPersistence is fatal for IBD but not for the process: queries
	// against already-persisted data keep working.
	ErrPersistence = errors.New("persistence error")

	// ErrInsufficientFunds, ErrInvalidAccount, ErrDecode are user-visible,
	// recoverable at the UI level.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidAccount    = errors.New("wallet: invalid account")
	ErrDecode            = errors.New("decode error")
)

// KindOf classifies err using errors.Is against the sentinels above.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrConfigMissing), errors.Is(err, ErrConfigUnreadable):
		return KindConfig
	case errors.Is(err, ErrWrongMagic):
		return KindWrongMagic
	case errors.Is(err, ErrHandshake):
		return KindHandshake
	case errors.Is(err, ErrWireFormat):
		return KindWireFormat
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNoFreePeer):
		return KindNoFreePeer
	case errors.Is(err, ErrDownloadExhausted):
		return KindDownloadExhausted
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInvalidAccount), errors.Is(err, ErrDecode):
		return KindWallet
	default:
		return KindUnknown
	}
}

// ExitCode maps an error to the process exit codes:
// 0 success, 1 config error, 2 fatal network error, 3 persistence error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 1
	case KindPersistence:
		return 3
	case KindWrongMagic, KindHandshake, KindWireFormat, KindNoFreePeer, KindDownloadExhausted:
		return 2
	default:
		return 2
	}
}
