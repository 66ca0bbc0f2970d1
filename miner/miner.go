// Package miner runs block production off the critical path. A single
// worker goroutine owns the mine/append cycle, so ledger reads stay
// responsive during a nonce search and the single-writer discipline holds
// by construction.
package miner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/metrics"
	"github.com/osash4/dujyo-ledger/stake"
)

// BlockPublisher receives blocks after they are appended. Satisfied by
// events.Publisher.
type BlockPublisher interface {
	Publish(ctx context.Context, height int, block *ledger.Block) error
}

// Config configures a Worker.
type Config struct {
	// Difficulty is the number of leading '0' hex characters a mined hash
	// must carry.
	Difficulty int
	// Interval between automatic flushes of the pending pool. Zero disables
	// the timer; mining then happens only on Flush.
	Interval time.Duration
	// Registry, when set, is consulted for a validator tag stamped on each
	// produced block. Selection never gates mining: proof of work and the
	// stake registry stay independent subsystems.
	Registry *stake.Registry
	// Publisher, when set, receives appended blocks.
	Publisher BlockPublisher
	Logger    *logrus.Logger
}

// Worker drains the ledger's pending pool into mined blocks.
type Worker struct {
	ledger    *ledger.Ledger
	cfg       Config
	log       *logrus.Entry
	flush     chan struct{}
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWorker creates a stopped worker over the given ledger.
func NewWorker(l *ledger.Ledger, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	if cfg.Difficulty < 1 {
		cfg.Difficulty = 1
	}
	return &Worker{
		ledger: l,
		cfg:    cfg,
		log:    logger.WithField("component", "miner"),
		flush:  make(chan struct{}, 1),
	}
}

// Start launches the mining loop.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.runCtx, w.cancel = context.WithCancel(ctx)
		w.wg.Add(1)
		go w.run()
		w.log.WithField("difficulty", w.cfg.Difficulty).Info("mining worker started")
	})
}

// Stop cancels any in-flight nonce search and waits for the loop to exit.
// Drained-but-unmined transactions return to the pending pool.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.log.Info("mining worker stopped")
	})
}

// Flush requests an immediate mining pass. Non-blocking; a pass already
// pending coalesces.
func (w *Worker) Flush() {
	select {
	case w.flush <- struct{}{}:
	default:
	}
}

func (w *Worker) run() {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.cfg.Interval > 0 {
		t := time.NewTicker(w.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-w.runCtx.Done():
			return
		case <-w.flush:
			w.minePending()
		case <-tick:
			w.minePending()
		}
	}
}

func (w *Worker) minePending() {
	if w.ledger.PendingCount() == 0 {
		return
	}

	validator := ""
	if w.cfg.Registry != nil {
		if v, err := w.cfg.Registry.Select(); err == nil {
			validator = v.Address
		} else if !errors.Is(err, stake.ErrNoEligibleValidator) {
			w.log.WithError(err).Warn("validator selection failed")
		}
	}

	start := time.Now()
	block, err := w.ledger.MinePending(w.runCtx, w.cfg.Difficulty, validator)
	if err != nil {
		if errors.Is(err, ledger.ErrNoPendingTransactions) {
			return
		}
		w.log.WithError(err).Warn("mining pass failed")
		return
	}
	metrics.BlocksMined.Inc()
	metrics.MiningDuration.Observe(time.Since(start).Seconds())
	metrics.MempoolDepth.Set(float64(w.ledger.PendingCount()))

	if w.cfg.Publisher != nil {
		if err := w.cfg.Publisher.Publish(w.runCtx, w.ledger.Height(), block); err != nil {
			w.log.WithError(err).Warn("publishing mined block")
		}
	}
}
