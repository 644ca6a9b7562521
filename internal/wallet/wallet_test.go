package wallet

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/require"

	"go-testnet-node/internal/address"
	"go-testnet-node/internal/encoding"
	"go-testnet-node/internal/keys"
	"go-testnet-node/internal/peer"
	"go-testnet-node/internal/persist"
	"go-testnet-node/internal/script"
	"go-testnet-node/internal/wire"
)

func newFundedAccount(t *testing.T) (persist.Account, *keys.PrivateKey) {
	t.Helper()
	secret := bytes.Repeat([]byte{0x07}, 32)
	priv, err := keys.NewPrivateKey(secret)
	require.NoError(t, err)
	addr, err := address.FromPublicKey(priv.PublicKey())
	require.NoError(t, err)
	return persist.Account{SecretKeyWIF: priv.WIF(true), Address: addr}, priv
}

func TestBuildSelectsCoinsAndSignsEachInput(t *testing.T) {
	account, priv := newFundedAccount(t)
	srcHash160, err := address.Hash160(account.Address)
	require.NoError(t, err)
	srcScript, err := script.P2PKH(srcHash160).Bytes()
	require.NoError(t, err)

	dest, _ := newFundedAccount(t)

	utxos := []persist.UTXORecord{
		{TxID: [32]byte{1}, Vout: 0, Value: 6000, Script: srcScript},
		{TxID: [32]byte{2}, Vout: 1, Value: 5000, Script: srcScript},
	}

	b := New(nil)
	tx, err := b.Build(account, dest.Address, 7000, 100, utxos)
	require.NoError(t, err)

	require.Len(t, tx.Inputs, 2, "should select both UTXOs to cover amount+fee")
	require.Len(t, tx.Outputs, 2, "change output expected")
	require.Equal(t, int64(7000), tx.Outputs[0].Value)
	require.Equal(t, int64(6000+5000-7000-100), tx.Outputs[1].Value)

	for i, u := range utxos {
		sighash, err := tx.SigHash(i, u.Script)
		require.NoError(t, err)

		sigScript, err := parseSigScript(t, tx.Inputs[i].Script)
		require.NoError(t, err)
		der := sigScript[0][:len(sigScript[0])-1] // drop SIGHASH_ALL byte
		sig, err := ecdsa.ParseDERSignature(der)
		require.NoError(t, err)
		pub, err := secp256k1.ParsePubKey(sigScript[1])
		require.NoError(t, err)
		require.True(t, sig.Verify(sighash, pub), "signature must verify for input %d", i)
		_ = priv
	}
}

func TestBuildFailsOnInsufficientFunds(t *testing.T) {
	account, _ := newFundedAccount(t)
	dest, _ := newFundedAccount(t)
	utxos := []persist.UTXORecord{{TxID: [32]byte{1}, Vout: 0, Value: 100}}

	b := New(nil)
	_, err := b.Build(account, dest.Address, 1000, 0, utxos)
	require.Error(t, err)
}

func TestBuildOmitsChangeOutputWhenExact(t *testing.T) {
	account, _ := newFundedAccount(t)
	srcHash160, err := address.Hash160(account.Address)
	require.NoError(t, err)
	srcScript, err := script.P2PKH(srcHash160).Bytes()
	require.NoError(t, err)
	dest, _ := newFundedAccount(t)

	utxos := []persist.UTXORecord{{TxID: [32]byte{1}, Vout: 0, Value: 1100, Script: srcScript}}

	b := New(nil)
	tx, err := b.Build(account, dest.Address, 1000, 100, utxos)
	require.NoError(t, err)
	require.Len(t, tx.Outputs, 1, "no change output when inputs exactly cover amount+fee")
}

func TestBroadcastSendsToEveryFreeConnection(t *testing.T) {
	account, _ := newFundedAccount(t)
	srcHash160, err := address.Hash160(account.Address)
	require.NoError(t, err)
	srcScript, err := script.P2PKH(srcHash160).Bytes()
	require.NoError(t, err)
	dest, _ := newFundedAccount(t)
	utxos := []persist.UTXORecord{{TxID: [32]byte{9}, Vout: 0, Value: 2000, Script: srcScript}}

	pool := peer.NewPool(peer.Config{})
	defer pool.Shutdown()

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	_, err = pool.AddConn(serverConn, "mock:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain the whole frame: a net.Pipe write blocks until every
		// byte of it has been read.
		_, payloadLen, _, err := wire.CheckHeader(clientConn)
		if err != nil {
			return
		}
		_, _ = io.CopyN(io.Discard, clientConn, int64(payloadLen))
	}()

	b := New(pool)
	tx, err := b.Build(account, dest.Address, 1000, 100, utxos)
	require.NoError(t, err)

	require.NoError(t, b.Broadcast(tx, func(addr string, err error) {
		t.Fatalf("unexpected peer error from %s: %v", addr, err)
	}))
	<-done
}

// parseSigScript decodes a raw (unprefixed) scriptSig into its two data
// pushes: the DER signature (with trailing SIGHASH_ALL byte) and the
// compressed public key.
func parseSigScript(t *testing.T, raw []byte) ([][]byte, error) {
	t.Helper()
	prefix, err := encoding.EncodeVarInt(uint64(len(raw)))
	if err != nil {
		return nil, err
	}
	s, err := script.Parse(bytes.NewReader(append(prefix, raw...)))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(s.Commands))
	for _, cmd := range s.Commands {
		out = append(out, cmd.Data)
	}
	return out, nil
}
