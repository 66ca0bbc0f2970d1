// Package ledger implements the in-process ledger core: a hash-chained
// block sequence with chain-validity verification, balance derivation by
// transaction replay, and a pending pool batched into mined blocks.
//
// The ledger performs no I/O itself; persistence, transport and the HTTP
// facade are external collaborators.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config configures a Ledger instance.
type Config struct {
	// Verifier checks signatures on non-system transactions. Nil falls back
	// to NoopVerifier (signature presence only).
	Verifier SignatureVerifier
	// Logger is optional; nil silences the ledger.
	Logger *logrus.Logger
}

// Ledger owns the append-only chain of blocks. Index 0 is the fixed genesis
// block. Mutation follows a single-writer discipline: one mine/append in
// flight at a time, with readers always observing fully linked blocks.
type Ledger struct {
	mu      sync.RWMutex // guards chain and pending
	mineMu  sync.Mutex   // serializes mine/append cycles
	chain   []*Block
	pending []*Transaction

	verifier SignatureVerifier
	log      *logrus.Entry
}

// New creates a ledger holding only the genesis block. The genesis block has
// no transactions, the fixed previous-hash sentinel, and is not mined.
func New(cfg Config) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Ledger{
		chain:    []*Block{NewBlock(0, nil, GenesisPreviousHash, "")},
		verifier: cfg.Verifier,
		log:      logger.WithField("component", "ledger"),
	}
}

// Restore builds a ledger from a previously saved chain, typically loaded
// through a store. The chain must start at a genesis block and be fully
// valid.
func Restore(cfg Config, blocks []*Block) (*Ledger, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("cannot restore from an empty chain")
	}
	if blocks[0].PreviousHash != GenesisPreviousHash {
		return nil, fmt.Errorf("first block is not genesis: previous hash %q", blocks[0].PreviousHash)
	}
	l := New(cfg)
	l.chain = blocks
	if !l.IsChainValid() {
		return nil, fmt.Errorf("restored chain failed validation")
	}
	return l, nil
}

// Height returns the number of blocks in the chain.
func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// LatestBlock returns the last block of the chain. The chain is never empty
// post-construction, so this always succeeds.
func (l *Ledger) LatestBlock() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1]
}

// Chain returns a snapshot copy of the block sequence.
func (l *Ledger) Chain() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Block, len(l.chain))
	copy(out, l.chain)
	return out
}

// AddTransaction validates tx and queues it in the pending pool. The pool is
// flushed into the next mined block, so a submitted transaction is included
// in exactly one block. On failure the pool is unchanged.
func (l *Ledger) AddTransaction(tx *Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if err := tx.Validate(l.verifier); err != nil {
		l.log.WithFields(logrus.Fields{
			"tx":     tx.ID,
			"sender": tx.Sender,
		}).WithError(err).Warn("rejected transaction")
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	l.mu.Lock()
	l.pending = append(l.pending, tx)
	depth := len(l.pending)
	l.mu.Unlock()

	l.log.WithFields(logrus.Fields{
		"tx":      tx.ID,
		"kind":    tx.Kind,
		"pending": depth,
	}).Debug("transaction queued")
	return nil
}

// PendingCount returns the current depth of the pending pool.
func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// MinePending drains the pending pool into a candidate block, mines it at
// the given difficulty and appends it. The validator tag, if non-empty, is
// stamped on the block (it never gates mining). On cancellation the drained
// transactions are returned to the front of the pool.
func (l *Ledger) MinePending(ctx context.Context, difficulty int, validator string) (*Block, error) {
	l.mineMu.Lock()
	defer l.mineMu.Unlock()

	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return nil, ErrNoPendingTransactions
	}
	txs := l.pending
	l.pending = nil
	l.mu.Unlock()

	candidate := NewBlock(time.Now().UnixMilli(), txs, GenesisPreviousHash, validator)
	if err := l.appendLocked(ctx, candidate, difficulty); err != nil {
		l.mu.Lock()
		l.pending = append(txs, l.pending...)
		l.mu.Unlock()
		return nil, err
	}
	return candidate, nil
}

// AppendBlock links the candidate to the current chain head, mines it at the
// given difficulty and appends it. Once appended a block is permanent.
func (l *Ledger) AppendBlock(ctx context.Context, candidate *Block, difficulty int) error {
	l.mineMu.Lock()
	defer l.mineMu.Unlock()
	return l.appendLocked(ctx, candidate, difficulty)
}

// appendLocked runs one mine/append cycle. Callers hold mineMu, so the chain
// head observed here cannot move before the append. The mining search itself
// runs outside the chain lock: reads stay available throughout.
func (l *Ledger) appendLocked(ctx context.Context, candidate *Block, difficulty int) error {
	l.mu.RLock()
	head := l.chain[len(l.chain)-1].Hash
	l.mu.RUnlock()

	candidate.seal(head)

	start := time.Now()
	if err := candidate.Mine(ctx, difficulty); err != nil {
		l.log.WithError(err).Warn("mining aborted")
		return fmt.Errorf("mining block: %w", err)
	}

	l.mu.Lock()
	l.chain = append(l.chain, candidate)
	height := len(l.chain)
	l.mu.Unlock()

	l.log.WithFields(logrus.Fields{
		"height":   height,
		"hash":     shortHash(candidate.Hash),
		"txs":      len(candidate.Transactions),
		"nonce":    candidate.Nonce,
		"duration": time.Since(start),
	}).Info("block appended")
	return nil
}

// IsChainValid re-verifies the whole chain: every block's stored hash must
// match its recomputed hash, link to its predecessor's hash, and carry only
// valid transactions. It short-circuits at the first violation and never
// returns an error; invalidity is the diagnostic.
func (l *Ledger) IsChainValid() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := 1; i < len(l.chain); i++ {
		current, previous := l.chain[i], l.chain[i-1]
		if current.Hash != current.ComputeHash() {
			l.log.WithField("height", i).Warn("block hash does not match recomputed hash")
			return false
		}
		if current.PreviousHash != previous.Hash {
			l.log.WithField("height", i).Warn("block does not link to predecessor")
			return false
		}
		for _, tx := range current.Transactions {
			if err := tx.Validate(l.verifier); err != nil {
				l.log.WithFields(logrus.Fields{"height": i, "tx": tx.ID}).Warn("block carries invalid transaction")
				return false
			}
		}
	}
	return true
}

// Balance derives the net balance of an address by replaying every
// transaction in chain order, then in-block order. There is no persisted
// running total; the replay is idempotent and side-effect-free.
func (l *Ledger) Balance(address string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var balance int64
	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			if tx.Sender == address {
				balance -= int64(tx.Amount)
			}
			if tx.Recipient == address {
				balance += int64(tx.Amount)
			}
		}
	}
	return balance
}

// Accounts returns every distinct address observed as sender or recipient
// across the chain, sorted. The system sentinel is not an account.
func (l *Ledger) Accounts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			if tx.Sender != SystemAddress {
				seen[tx.Sender] = struct{}{}
			}
			seen[tx.Recipient] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for addr := range seen {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// TransactionsFor returns the committed transactions touching an address,
// in chain order.
func (l *Ledger) TransactionsFor(address string) []*Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Transaction
	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			if tx.Sender == address || tx.Recipient == address {
				out = append(out, tx)
			}
		}
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
