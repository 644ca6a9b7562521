package persist

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go-testnet-node/internal/nodeerr"
)

// Account is a process-lifetime wallet identity persisted to an
// append-only file.
type Account struct {
	SecretKeyWIF string
	Address      string
	Label        string
}

// AccountStore is the append-only accounts file: three
// length-prefixed strings per account (secret key WIF, address, label),
// with an 8-byte native-byte-order length prefix. Fields are written as
// given and not base58-encoded by the store: the WIF and address are
// base58 text already, the label is stored as plain text.
type AccountStore struct {
	mu   sync.Mutex
	path string
}

func OpenAccountStore(path string) (*AccountStore, error) {
	return &AccountStore{path: path}, nil
}

func (s *AccountStore) Append(a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open accounts file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()

	for _, field := range []string{a.SecretKeyWIF, a.Address, a.Label} {
		if err := writeLengthPrefixed(f, field); err != nil {
			return fmt.Errorf("%w: write account field - %v", nodeerr.ErrPersistence, err)
		}
	}
	return f.Sync()
}

func writeLengthPrefixed(w io.Writer, field string) error {
	var length [8]byte
	binary.NativeEndian.PutUint64(length[:], uint64(len(field)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, field)
	return err
}

// ReadAll decodes every persisted account.
func (s *AccountStore) ReadAll() ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open accounts file - %v", nodeerr.ErrPersistence, err)
	}
	defer f.Close()

	var out []Account
	for {
		wif, err := readLengthPrefixed(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read account - %v", nodeerr.ErrPersistence, err)
		}
		addr, err := readLengthPrefixed(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read account address - %v", nodeerr.ErrPersistence, err)
		}
		label, err := readLengthPrefixed(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read account label - %v", nodeerr.ErrPersistence, err)
		}
		out = append(out, Account{SecretKeyWIF: wif, Address: addr, Label: label})
	}
	return out, nil
}

func readLengthPrefixed(r io.Reader) (string, error) {
	var length [8]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return "", err
	}
	n := binary.NativeEndian.Uint64(length[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
