// Package events publishes appended blocks to a Kafka topic so downstream
// services (reward accounting, dashboards) can follow the chain without
// polling the API. Publishing is asynchronous and best-effort: a failed
// delivery is counted and logged, never retried against the chain.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/metrics"
)

const queueSize = 256

// Config holds the publisher knobs. A disabled publisher is a valid no-op
// collaborator.
type Config struct {
	Enabled bool
	Topic   string
	Brokers []string
	Acks    int
}

// Validate checks internal consistency before use.
func (c Config) Validate() error {
	if c.Acks != -1 && c.Acks != 0 && c.Acks != 1 {
		return fmt.Errorf("acks must be -1, 0, or 1: %d", c.Acks)
	}
	if c.Enabled {
		if c.Topic == "" {
			return errors.New("topic is required when events are enabled")
		}
		if len(c.Brokers) == 0 {
			return errors.New("at least one broker is required when events are enabled")
		}
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// blockEvent is the wire payload for one appended block.
type blockEvent struct {
	Type   string        `json:"type"`
	Height int           `json:"height"`
	Block  *ledger.Block `json:"block"`
}

// Publisher delivers block events through a bounded queue drained by a
// single background goroutine.
type Publisher struct {
	cfg     Config
	log     *logrus.Entry
	writer  messageWriter
	closer  func() error
	enabled bool

	queue     chan publishRequest
	stateMu   sync.Mutex // guards runCtx and cancel against Start racing Publish/Stop
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

type publishRequest struct {
	key   []byte
	value []byte
}

var errNotStarted = errors.New("event publisher not started")

// NewPublisher constructs a publisher backed by a Kafka writer. When the
// config is disabled every method is a no-op.
func NewPublisher(cfg Config, logger *logrus.Logger) (*Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.WithField("component", "events")
	if !cfg.Enabled {
		log.Info("event publishing disabled")
		return &Publisher{cfg: cfg, log: log}, nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequiredAcks(cfg.Acks),
		Balancer:     &kafka.Hash{},
	}
	return newPublisherWithWriter(cfg, log, w, w.Close), nil
}

// newPublisherWithWriter wires an explicit writer. Used in tests.
func newPublisherWithWriter(cfg Config, log *logrus.Entry, w messageWriter, closer func() error) *Publisher {
	return &Publisher{
		cfg:     cfg,
		log:     log,
		writer:  w,
		closer:  closer,
		enabled: true,
		queue:   make(chan publishRequest, queueSize),
	}
}

// Start launches the delivery loop.
func (p *Publisher) Start(ctx context.Context) {
	if !p.enabled {
		return
	}
	p.startOnce.Do(func() {
		p.stateMu.Lock()
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.stateMu.Unlock()
		p.wg.Add(1)
		go p.run()
		p.log.WithField("topic", p.cfg.Topic).Info("event publisher started")
	})
}

// Stop shuts the loop down, draining queued events first.
func (p *Publisher) Stop() {
	if !p.enabled {
		return
	}
	p.stopOnce.Do(func() {
		p.stateMu.Lock()
		cancel := p.cancel
		p.stateMu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.wg.Wait()
		if p.closer != nil {
			if err := p.closer(); err != nil {
				p.log.WithError(err).Error("closing kafka writer")
			}
		}
		metrics.EventQueueDepth.Set(0)
		p.log.Info("event publisher stopped")
	})
}

// Publish queues a block for asynchronous delivery, keyed by block hash.
func (p *Publisher) Publish(ctx context.Context, height int, block *ledger.Block) error {
	if !p.enabled {
		return nil
	}
	p.stateMu.Lock()
	runCtx := p.runCtx
	p.stateMu.Unlock()
	if runCtx == nil {
		return errNotStarted
	}
	value, err := json.Marshal(blockEvent{Type: "block.appended", Height: height, Block: block})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("fail").Inc()
		return fmt.Errorf("encoding block event: %w", err)
	}
	select {
	case <-runCtx.Done():
		metrics.EventsPublished.WithLabelValues("fail").Inc()
		return errors.New("event publisher stopped")
	default:
	}
	req := publishRequest{key: []byte(block.Hash), value: value}
	select {
	case p.queue <- req:
		metrics.EventQueueDepth.Set(float64(len(p.queue)))
		return nil
	case <-ctx.Done():
		metrics.EventsPublished.WithLabelValues("fail").Inc()
		return ctx.Err()
	case <-runCtx.Done():
		metrics.EventsPublished.WithLabelValues("fail").Inc()
		return errors.New("event publisher stopped")
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			return
		case req := <-p.queue:
			metrics.EventQueueDepth.Set(float64(len(p.queue)))
			p.deliver(req)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case req := <-p.queue:
			metrics.EventQueueDepth.Set(float64(len(p.queue)))
			p.deliver(req)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(req publishRequest) {
	err := p.writer.WriteMessages(context.Background(), kafka.Message{Key: req.key, Value: req.value})
	if err != nil {
		metrics.EventsPublished.WithLabelValues("fail").Inc()
		p.log.WithError(err).Error("publishing block event")
		return
	}
	metrics.EventsPublished.WithLabelValues("ok").Inc()
}
