// Command dujyod runs the dujyo ledger daemon: the in-process ledger core
// behind an HTTP facade, with a background mining worker and an optional
// Kafka chain-event publisher.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/osash4/dujyo-ledger/api"
	"github.com/osash4/dujyo-ledger/config"
	"github.com/osash4/dujyo-ledger/events"
	"github.com/osash4/dujyo-ledger/ledger"
	"github.com/osash4/dujyo-ledger/miner"
	"github.com/osash4/dujyo-ledger/stake"
	"github.com/osash4/dujyo-ledger/store"
)

func main() {
	app := cli.NewApp()
	app.Name = "dujyod"
	app.Usage = "dujyo ledger daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "http.addr",
			Usage: "HTTP listen address",
		},
		cli.IntFlag{
			Name:  "difficulty",
			Usage: "Leading zero hex characters required of mined block hashes",
		},
		cli.DurationFlag{
			Name:  "mine.interval",
			Usage: "Interval between automatic mining passes (0 disables the timer)",
		},
		cli.Uint64Flag{
			Name:  "stake.minimum",
			Usage: "Minimum stake accepted at validator registration",
		},
		cli.StringFlag{
			Name:  "store.path",
			Usage: "Chain snapshot file (empty disables persistence)",
		},
		cli.StringFlag{
			Name:  "log.level",
			Usage: "Log level (trace|debug|info|warn|error)",
		},
		cli.BoolFlag{
			Name:  "events",
			Usage: "Enable Kafka chain-event publishing",
		},
		cli.StringFlag{
			Name:  "events.topic",
			Usage: "Kafka topic for chain events",
		},
		cli.StringSliceFlag{
			Name:  "events.broker",
			Usage: "Kafka broker address (repeatable)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(level)
	log := logger.WithField("component", "dujyod")

	l, chainStore, err := buildLedger(cfg, logger)
	if err != nil {
		return err
	}
	log.WithField("height", l.Height()).Info("ledger ready")

	registry := stake.NewRegistry(stake.Config{
		MinimumStake: cfg.MinimumStake,
		Logger:       logger,
	})

	publisher, err := events.NewPublisher(events.Config{
		Enabled: cfg.EventsEnabled,
		Topic:   cfg.EventsTopic,
		Brokers: cfg.EventsBrokers,
		Acks:    cfg.EventsAcks,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher.Start(ctx)
	defer publisher.Stop()

	worker := miner.NewWorker(l, miner.Config{
		Difficulty: cfg.Difficulty,
		Interval:   cfg.MineInterval,
		Registry:   registry,
		Publisher:  publisher,
		Logger:     logger,
	})
	worker.Start(ctx)
	defer worker.Stop()

	server := api.NewServer(api.Config{
		Ledger:     l,
		Registry:   registry,
		Miner:      worker,
		Logger:     logger,
		Difficulty: cfg.Difficulty,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe(cfg.ListenAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	worker.Stop()
	publisher.Stop()
	if chainStore != nil {
		if err := chainStore.Save(l.Chain()); err != nil {
			log.WithError(err).Error("saving chain snapshot")
		} else {
			log.WithField("height", l.Height()).Info("chain snapshot saved")
		}
	}
	// Give the access log writer a moment to flush.
	time.Sleep(50 * time.Millisecond)
	return nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("http.addr") {
		cfg.ListenAddr = c.String("http.addr")
	}
	if c.IsSet("difficulty") {
		cfg.Difficulty = c.Int("difficulty")
	}
	if c.IsSet("mine.interval") {
		cfg.MineInterval = c.Duration("mine.interval")
	}
	if c.IsSet("stake.minimum") {
		cfg.MinimumStake = c.Uint64("stake.minimum")
	}
	if c.IsSet("store.path") {
		cfg.StorePath = c.String("store.path")
	}
	if c.IsSet("log.level") {
		cfg.LogLevel = c.String("log.level")
	}
	if c.IsSet("events") {
		cfg.EventsEnabled = c.Bool("events")
	}
	if c.IsSet("events.topic") {
		cfg.EventsTopic = c.String("events.topic")
	}
	if brokers := c.StringSlice("events.broker"); len(brokers) > 0 {
		cfg.EventsBrokers = brokers
	}
}

// buildLedger restores the chain from the snapshot file when one is
// configured and present, otherwise starts from genesis.
func buildLedger(cfg config.Config, logger *logrus.Logger) (*ledger.Ledger, store.ChainStore, error) {
	ledgerCfg := ledger.Config{Logger: logger}

	if cfg.StorePath == "" {
		return ledger.New(ledgerCfg), nil, nil
	}

	fs := store.NewFileStore(cfg.StorePath)
	blocks, err := fs.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading chain snapshot: %w", err)
	}
	if len(blocks) == 0 {
		return ledger.New(ledgerCfg), fs, nil
	}
	l, err := ledger.Restore(ledgerCfg, blocks)
	if err != nil {
		return nil, nil, fmt.Errorf("restoring chain: %w", err)
	}
	return l, fs, nil
}
