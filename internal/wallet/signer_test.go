package wallet

import (
	"encoding/json"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignerBase58(t *testing.T) {
	w := solana.NewWallet()

	s, err := NewSigner(w.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), s.PublicKey())
}

func TestNewSignerKeygenJSON(t *testing.T) {
	w := solana.NewWallet()
	ints := make([]int, len(w.PrivateKey))
	for i, b := range w.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	s, err := NewSigner(string(raw))
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), s.PublicKey())
}

func TestNewSignerRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "not-base58-!!!", "[1,2,3]", "[300]"} {
		_, err := NewSigner(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestSignTx(t *testing.T) {
	w := solana.NewWallet()
	s, err := NewSigner(w.PrivateKey.String())
	require.NoError(t, err)

	blockhash, err := solana.HashFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	ix := solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(w.PublicKey(), true, true)},
		[]byte{0},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(w.PublicKey()))
	require.NoError(t, err)

	require.NoError(t, s.SignTx(tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}
