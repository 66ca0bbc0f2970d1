package miner

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/ledgertest"
	"github.com/osash4/dujyo-ledger/stake"
)

type recordingPublisher struct {
	mu     sync.Mutex
	blocks []*ledger.Block
}

func (p *recordingPublisher) Publish(_ context.Context, _ int, block *ledger.Block) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocks = append(p.blocks, block)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.blocks)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestFlushMinesPendingPool(t *testing.T) {
	l := ledger.New(ledger.Config{})
	pub := &recordingPublisher{}
	w := NewWorker(l, Config{Difficulty: 1, Publisher: pub})

	require.NoError(t, l.AddTransaction(ledgertest.SystemGrant("alice", 10)))

	w.Start(context.Background())
	defer w.Stop()
	w.Flush()

	waitFor(t, func() bool { return l.Height() == 2 })
	waitFor(t, func() bool { return pub.count() == 1 })
	require.Zero(t, l.PendingCount())
	require.True(t, l.IsChainValid())
}

func TestFlushWithEmptyPoolIsNoop(t *testing.T) {
	l := ledger.New(ledger.Config{})
	w := NewWorker(l, Config{Difficulty: 1})

	w.Start(context.Background())
	w.Flush()
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	require.Equal(t, 1, l.Height())
}

func TestIntervalMining(t *testing.T) {
	l := ledger.New(ledger.Config{})
	w := NewWorker(l, Config{Difficulty: 1, Interval: 20 * time.Millisecond})

	require.NoError(t, l.AddTransaction(ledgertest.SystemGrant("alice", 10)))

	w.Start(context.Background())
	defer w.Stop()

	waitFor(t, func() bool { return l.Height() == 2 })
}

func TestValidatorStamping(t *testing.T) {
	l := ledger.New(ledger.Config{})
	registry := stake.NewRegistry(stake.Config{Source: rand.NewSource(1)})
	require.NoError(t, registry.Add("v1", 100))

	w := NewWorker(l, Config{Difficulty: 1, Registry: registry})
	require.NoError(t, l.AddTransaction(ledgertest.SystemGrant("alice", 10)))

	w.Start(context.Background())
	defer w.Stop()
	w.Flush()

	waitFor(t, func() bool { return l.Height() == 2 })
	require.Equal(t, "v1", l.LatestBlock().Validator)
}

// Selection never gates mining: with no registered validators the block is
// produced with an empty validator tag.
func TestMiningProceedsWithoutValidators(t *testing.T) {
	l := ledger.New(ledger.Config{})
	registry := stake.NewRegistry(stake.Config{Source: rand.NewSource(1)})

	w := NewWorker(l, Config{Difficulty: 1, Registry: registry})
	require.NoError(t, l.AddTransaction(ledgertest.SystemGrant("alice", 10)))

	w.Start(context.Background())
	defer w.Stop()
	w.Flush()

	waitFor(t, func() bool { return l.Height() == 2 })
	require.Empty(t, l.LatestBlock().Validator)
}

func TestStopReturnsUnminedTransactions(t *testing.T) {
	l := ledger.New(ledger.Config{})
	// Unreachable difficulty keeps the nonce search running until Stop.
	w := NewWorker(l, Config{Difficulty: 14})

	require.NoError(t, l.AddTransaction(ledgertest.SystemGrant("alice", 10)))

	w.Start(context.Background())
	w.Flush()
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	require.Equal(t, 1, l.Height())
	require.Equal(t, 1, l.PendingCount())
}
