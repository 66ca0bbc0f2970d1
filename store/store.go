// Package store persists the ledger's block sequence. The natural external
// representation is the ordered block list in the same canonical encoding
// used for hashing, so re-hashing on load reproduces the stored hashes
// exactly.
package store

import (
	"github.com/osash4/dujyo-ledger/ledger"
)

// ChainStore saves and loads an ordered block sequence. The in-memory
// ledger remains authoritative; a store is an external collaborator wired
// by the daemon.
type ChainStore interface {
	Save(blocks []*ledger.Block) error
	Load() ([]*ledger.Block, error)
}
