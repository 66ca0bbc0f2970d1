package ledger

import (
	"context"
	"strings"

	"github.com/osash4/dujyo-ledger/ledger/codec"
)

// GenesisPreviousHash is the fixed previous-hash sentinel of the genesis
// block.
const GenesisPreviousHash = "0"

// Block is an ordered batch of transactions plus chain-linkage metadata.
// The stored hash is maintained exclusively through ComputeHash: it is set
// at construction, updated during mining, and resealed when the ledger
// assigns the previous hash at append time. It is never hand-set.
type Block struct {
	Timestamp    int64          `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previousHash"`
	Validator    string         `json:"validator,omitempty"`
	Nonce        uint64         `json:"nonce"`
	Hash         string         `json:"hash"`
}

type blockPreimage struct {
	PreviousHash string       `json:"previousHash"`
	Timestamp    int64        `json:"timestamp"`
	Transactions []txPreimage `json:"transactions"`
	Validator    string       `json:"validator,omitempty"`
	Nonce        uint64       `json:"nonce"`
}

// NewBlock creates a block over the given transaction batch and seals its
// hash. The previous hash may be a placeholder; the ledger assigns the real
// one at append time.
func NewBlock(timestamp int64, txs []*Transaction, previousHash, validator string) *Block {
	b := &Block{
		Timestamp:    timestamp,
		Transactions: txs,
		PreviousHash: previousHash,
		Validator:    validator,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash recomputes the block digest from previous hash, timestamp,
// transactions (element by element, in order), validator and nonce.
func (b *Block) ComputeHash() string {
	pre := blockPreimage{
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		Validator:    b.Validator,
		Nonce:        b.Nonce,
	}
	if len(b.Transactions) > 0 {
		pre.Transactions = make([]txPreimage, len(b.Transactions))
		for i, tx := range b.Transactions {
			pre.Transactions[i] = tx.preimage()
		}
	}
	return codec.Sum(pre)
}

// seal points the block at the given predecessor and recomputes its hash.
// Only the ledger calls this, once, at append time.
func (b *Block) seal(previousHash string) {
	b.PreviousHash = previousHash
	b.Hash = b.ComputeHash()
}

// Mine searches for a nonce whose hash carries the required number of
// leading '0' hex characters. The search cost grows exponentially with
// difficulty (expected 16^difficulty attempts), so callers run it off the
// critical path; the context is checked between nonce increments and
// cancellation aborts the search without mutating linkage.
func (b *Block) Mine(ctx context.Context, difficulty int) error {
	target := strings.Repeat("0", difficulty)
	for !strings.HasPrefix(b.Hash, target) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.Nonce++
		b.Hash = b.ComputeHash()
	}
	return nil
}

// MeetsDifficulty reports whether the stored hash satisfies the difficulty
// target.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	return strings.HasPrefix(b.Hash, strings.Repeat("0", difficulty))
}
