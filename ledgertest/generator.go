// Package ledgertest generates accounts, transactions and chains for tests.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	mathrand "math/rand"

	"github.com/osash4/dujyo-ledger/ledger"
)

// Account holds a complete key pair plus the signer bound to it.
type Account struct {
	Address    string
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	Signer     *ledger.KeySigner
}

// NewAccount generates a fresh ed25519 account under the given address.
func NewAccount(address string) Account {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic("generating keypair: " + err.Error())
	}
	return Account{
		Address:    address,
		PrivateKey: priv,
		PublicKey:  pub,
		Signer:     ledger.NewKeySigner(address, priv),
	}
}

// Accounts generates count fresh accounts named acct-0, acct-1, ...
func Accounts(count int) []Account {
	out := make([]Account, count)
	for i := range out {
		out[i] = NewAccount(fmt.Sprintf("acct-%d", i))
	}
	return out
}

// Verifier builds an Ed25519Verifier covering the given accounts.
func Verifier(accounts ...Account) *ledger.Ed25519Verifier {
	keys := make(map[string]ed25519.PublicKey, len(accounts))
	for _, a := range accounts {
		keys[a.Address] = a.PublicKey
	}
	return &ledger.Ed25519Verifier{Keys: keys}
}

// SignedTransfer creates a transfer from an account and signs it.
func SignedTransfer(from Account, to string, amount uint64) *ledger.Transaction {
	tx, err := ledger.NewTransaction(from.Address, to, amount)
	if err != nil {
		panic("building transfer: " + err.Error())
	}
	if err := tx.Sign(from.Signer); err != nil {
		panic("signing transfer: " + err.Error())
	}
	return tx
}

// SystemGrant creates a system-issued transfer to the recipient. System
// transactions need no signature.
func SystemGrant(to string, amount uint64) *ledger.Transaction {
	tx, err := ledger.NewTransaction(ledger.SystemAddress, to, amount)
	if err != nil {
		panic("building grant: " + err.Error())
	}
	return tx
}

// MineInto queues the transactions and mines them into one block at
// difficulty 1, which keeps the nonce search trivially fast in tests.
func MineInto(l *ledger.Ledger, txs ...*ledger.Transaction) *ledger.Block {
	for _, tx := range txs {
		if err := l.AddTransaction(tx); err != nil {
			panic("queueing transaction: " + err.Error())
		}
	}
	block, err := l.MinePending(context.Background(), 1, "")
	if err != nil {
		panic("mining block: " + err.Error())
	}
	return block
}

// Chain builds a ledger whose chain funds each account with grantAmount via
// a system grant and then carries blockCount further blocks of random
// transfers between the accounts. Deterministic under the given seed.
func Chain(accounts []Account, grantAmount uint64, blockCount, txsPerBlock int, seed int64) *ledger.Ledger {
	if len(accounts) < 2 {
		panic("need at least 2 accounts")
	}

	l := ledger.New(ledger.Config{Verifier: Verifier(accounts...)})

	grants := make([]*ledger.Transaction, len(accounts))
	for i, a := range accounts {
		grants[i] = SystemGrant(a.Address, grantAmount)
	}
	MineInto(l, grants...)

	r := mathrand.New(mathrand.NewSource(seed))
	for i := 0; i < blockCount; i++ {
		txs := make([]*ledger.Transaction, 0, txsPerBlock)
		for j := 0; j < txsPerBlock; j++ {
			fromIdx := r.Intn(len(accounts))
			toIdx := r.Intn(len(accounts))
			for toIdx == fromIdx {
				toIdx = r.Intn(len(accounts))
			}
			amount := uint64(r.Intn(100) + 1)
			txs = append(txs, SignedTransfer(accounts[fromIdx], accounts[toIdx].Address, amount))
		}
		MineInto(l, txs...)
	}
	return l
}
