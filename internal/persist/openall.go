package persist

import "go-testnet-node/internal/config"

// Stores bundles every on-disk handle the node touches: the three
// append-only flat files plus the leveldb-backed UTXO index.
type Stores struct {
	Headers  *HeaderStore
	Blocks   *BlockStore
	Accounts *AccountStore
	UTXO     *UTXOStore
}

// OpenAll opens every store named in cfg, truncating any dangling
// partial record left by a prior crash.
func OpenAll(cfg config.Config) (*Stores, error) {
	headers, err := OpenHeaderStore(cfg.HeadersFile)
	if err != nil {
		return nil, err
	}
	blocks, err := OpenBlockStore(cfg.BlocksFile)
	if err != nil {
		return nil, err
	}
	accounts, err := OpenAccountStore(cfg.AccountsFile)
	if err != nil {
		return nil, err
	}
	utxoStore, err := OpenUTXOStore(cfg.UTXODir)
	if err != nil {
		return nil, err
	}
	return &Stores{Headers: headers, Blocks: blocks, Accounts: accounts, UTXO: utxoStore}, nil
}

// Close releases the leveldb handle; the flat-file stores hold no
// persistent file descriptor between calls.
func (s *Stores) Close() error {
	return s.UTXO.Close()
}
