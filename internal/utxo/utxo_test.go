package utxo

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-testnet-node/internal/address"
	"go-testnet-node/internal/chain"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/script"
)

func newTestAccount(t *testing.T) persist.Account {
	t.Helper()
	hash160 := make([]byte, 20)
	hash160[0] = 0x01
	addr, err := address.FromHash160(hash160)
	require.NoError(t, err)
	return persist.Account{Address: addr, Label: "test"}
}

func coinbaseTx(t *testing.T, out chain.TxOut) chain.Transaction {
	t.Helper()
	return chain.Transaction{
		Version: 1,
		Inputs: []chain.TxIn{{
			PrevHash:  [32]byte{},
			PrevIndex: 0xffffffff,
		}},
		Outputs: []chain.TxOut{out},
	}
}

func newStore(t *testing.T) *persist.UTXOStore {
	t.Helper()
	store, err := persist.OpenUTXOStore(filepath.Join(t.TempDir(), "utxo"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpdateFromBlocksCreditsOwnedOutput(t *testing.T) {
	acc := newTestAccount(t)
	hash160, err := address.Hash160(acc.Address)
	require.NoError(t, err)
	scriptPubKey, err := script.P2PKH(hash160).Bytes()
	require.NoError(t, err)

	tx := coinbaseTx(t, chain.TxOut{Value: 5000, Script: scriptPubKey})
	block := chain.SerializedBlock{Txs: []chain.Transaction{tx}}

	a := New(newStore(t), time.Minute)
	defer a.Shutdown()
	a.SetAccounts([]persist.Account{acc})

	require.NoError(t, a.UpdateFromBlocks([]chain.SerializedBlock{block}))

	amount, err := a.GetAvailable(acc.Address)
	require.NoError(t, err)
	require.Equal(t, int64(5000), amount)
}

func TestUpdateFromBlocksSpendsInput(t *testing.T) {
	acc := newTestAccount(t)
	hash160, err := address.Hash160(acc.Address)
	require.NoError(t, err)
	scriptPubKey, err := script.P2PKH(hash160).Bytes()
	require.NoError(t, err)

	fundingTx := coinbaseTx(t, chain.TxOut{Value: 5000, Script: scriptPubKey})
	fundingID, err := fundingTx.TxID()
	require.NoError(t, err)

	spendTx := chain.Transaction{
		Version: 1,
		Inputs:  []chain.TxIn{{PrevHash: fundingID, PrevIndex: 0}},
		Outputs: []chain.TxOut{{Value: 4000, Script: []byte("not a match")}},
	}

	a := New(newStore(t), time.Minute)
	defer a.Shutdown()
	a.SetAccounts([]persist.Account{acc})

	require.NoError(t, a.UpdateFromBlocks([]chain.SerializedBlock{{Txs: []chain.Transaction{fundingTx}}}))
	require.NoError(t, a.UpdateFromBlocks([]chain.SerializedBlock{{Txs: []chain.Transaction{spendTx}}}))

	amount, err := a.GetAvailable(acc.Address)
	require.NoError(t, err)
	require.Equal(t, int64(0), amount)
}

func TestPendingTxIsOptimisticUntilConfirmed(t *testing.T) {
	acc := newTestAccount(t)
	hash160, err := address.Hash160(acc.Address)
	require.NoError(t, err)
	scriptPubKey, err := script.P2PKH(hash160).Bytes()
	require.NoError(t, err)

	tx := coinbaseTx(t, chain.TxOut{Value: 1234, Script: scriptPubKey})

	a := New(newStore(t), time.Minute)
	defer a.Shutdown()
	a.SetAccounts([]persist.Account{acc})

	a.PendingTx(tx)

	amount, err := a.GetAvailable(acc.Address)
	require.NoError(t, err)
	require.Equal(t, int64(1234), amount)

	utxos, err := a.ListAvailable(acc.Address)
	require.NoError(t, err)
	require.Len(t, utxos, 1)
}

func TestClassifyIgnoresNonP2PKHScript(t *testing.T) {
	notP2PKH := make([]byte, 25)
	_, ok := script.MatchP2PKH(notP2PKH)
	require.False(t, ok)
}
