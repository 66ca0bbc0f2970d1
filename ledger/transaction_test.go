package ledger

import (
	"crypto/ed25519"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T, address string) (*KeySigner, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return NewKeySigner(address, priv), pub
}

func TestNewTransactionValidation(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		recipient string
		amount    uint64
		wantErr   bool
	}{
		{name: "valid transfer", sender: "alice", recipient: "bob", amount: 10},
		{name: "system sender is allowed", sender: SystemAddress, recipient: "bob", amount: 10},
		{name: "empty recipient", sender: "alice", recipient: "", amount: 10, wantErr: true},
		{name: "zero amount", sender: "alice", recipient: "bob", amount: 0, wantErr: true},
		{name: "self transfer", sender: "alice", recipient: "alice", amount: 10, wantErr: true},
		{name: "amount past balance range", sender: "alice", recipient: "bob", amount: uint64(math.MaxInt64) + 1, wantErr: true},
		{name: "amount at balance range limit", sender: "alice", recipient: "bob", amount: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := NewTransaction(tt.sender, tt.recipient, tt.amount)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransaction)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, tx.ID)
			require.NotZero(t, tx.Timestamp)
			require.Equal(t, KindTransfer, tx.Kind)
		})
	}
}

func TestNewContractTransaction(t *testing.T) {
	payload := &ContractPayload{ContentID: "content-1", ContentHash: "abc"}

	tx, err := NewContractTransaction(SystemAddress, "artist", 1, KindContentRegistration, payload)
	require.NoError(t, err)
	require.Equal(t, KindContentRegistration, tx.Kind)
	require.Equal(t, "content-1", tx.Payload.ContentID)

	_, err = NewContractTransaction("alice", "bob", 1, KindContentLicense, nil)
	require.ErrorIs(t, err, ErrInvalidTransaction)

	_, err = NewContractTransaction("alice", "bob", 1, TxKind("BOGUS"), payload)
	require.ErrorIs(t, err, ErrInvalidTransaction)
}

func TestComputeHashExcludesSignatureAndID(t *testing.T) {
	tx, err := NewTransaction("alice", "bob", 25)
	require.NoError(t, err)

	before := tx.ComputeHash()
	tx.ID = "some-other-id"
	tx.Signature = []byte("sig")
	require.Equal(t, before, tx.ComputeHash())

	tx.Amount = 26
	require.NotEqual(t, before, tx.ComputeHash())
}

func TestSignRequiresSenderOwnership(t *testing.T) {
	signer, _ := testKeypair(t, "mallory")

	tx, err := NewTransaction("alice", "bob", 5)
	require.NoError(t, err)

	err = tx.Sign(signer)
	require.ErrorIs(t, err, ErrAuthorization)
	require.Empty(t, tx.Signature)
}

func TestValidate(t *testing.T) {
	signer, pub := testKeypair(t, "alice")
	verifier := &Ed25519Verifier{Keys: map[string]ed25519.PublicKey{"alice": pub}}

	t.Run("system transactions always pass", func(t *testing.T) {
		tx, err := NewTransaction(SystemAddress, "bob", 50)
		require.NoError(t, err)
		require.True(t, tx.IsSystem())
		require.NoError(t, tx.Validate(verifier))
	})

	t.Run("unsigned non-system transaction is rejected", func(t *testing.T) {
		tx, err := NewTransaction("alice", "bob", 5)
		require.NoError(t, err)
		require.ErrorIs(t, tx.Validate(verifier), ErrUnsignedTransaction)
	})

	t.Run("signed transaction verifies", func(t *testing.T) {
		tx, err := NewTransaction("alice", "bob", 5)
		require.NoError(t, err)
		require.NoError(t, tx.Sign(signer))
		require.NoError(t, tx.Validate(verifier))
	})

	t.Run("tampering after signing is detected", func(t *testing.T) {
		tx, err := NewTransaction("alice", "bob", 5)
		require.NoError(t, err)
		require.NoError(t, tx.Sign(signer))
		tx.Amount = 500
		require.Error(t, tx.Validate(verifier))
	})

	t.Run("unknown sender is rejected", func(t *testing.T) {
		other, _ := testKeypair(t, "carol")
		tx, err := NewTransaction("carol", "bob", 5)
		require.NoError(t, err)
		require.NoError(t, tx.Sign(other))
		require.ErrorIs(t, tx.Validate(verifier), ErrInvalidTransaction)
	})

	t.Run("nil verifier falls back to presence check", func(t *testing.T) {
		tx, err := NewTransaction("alice", "bob", 5)
		require.NoError(t, err)
		tx.Signature = []byte("anything")
		require.NoError(t, tx.Validate(nil))
	})
}
