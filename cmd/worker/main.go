// Package main is the entry point for the stockflow outbox worker.
// It relays committed stock alerts from sys_outbox to NATS.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stockflow/internal/infrastructure/alerting"
	"stockflow/internal/infrastructure/cache"
	"stockflow/internal/infrastructure/messaging"
	"stockflow/internal/infrastructure/storage/postgres"
	"stockflow/pkg/config"
	"stockflow/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Info("starting stockflow worker")

	pool, err := postgres.NewPool(ctx, cfg.PoolConfig())
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if cfg.DB.ApplySchema {
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			log.Fatalw("failed to apply schema", "error", err)
		}
	}

	nc, err := messaging.Connect(ctx, cfg.NATS.URL, cfg.App.Name+"-worker")
	if err != nil {
		log.Fatalw("failed to connect to nats", "error", err)
	}
	defer nc.Drain()

	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	filter, err := alerting.NewFilter(cfg.Alerts.Filter)
	if err != nil {
		log.Fatalw("invalid ALERT_FILTER", "error", err)
	}

	// outbox row -> CEL filter -> redis throttle -> NATS
	notifier := alerting.NewFilteredNotifier(
		cache.NewThrottledNotifier(rdb, messaging.NewPublisher(nc, cfg.NATS.Subject), cfg.Alerts.ThrottleTTL),
		filter,
	)

	txManager := postgres.NewTxManager(pool).WithDefaults(cfg.TxOptions())
	relay := postgres.NewOutboxRelay(txManager, cfg.RelayConfig(), messaging.NewAlertHandler(notifier))

	listener := postgres.NewOutboxListener(pool.Unwrap())
	listener.Start(ctx)
	defer listener.Stop()

	w := &worker{
		pool:     pool,
		relay:    relay,
		listener: listener,
		lock:     cache.NewJobLock(rdb),
		cfg:      cfg.Outbox,
		log:      log.WithComponent("worker"),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

type worker struct {
	pool     *postgres.Pool
	relay    *postgres.OutboxRelay
	listener *postgres.OutboxListener
	lock     *cache.JobLock
	cfg      config.OutboxConfig
	log      *logger.Logger
}

// Run relays on every poll tick or NOTIFY wake-up, and sweeps dead messages periodically.
func (w *worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	sweepInterval := w.cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Hour
	}
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case <-w.listener.Wake():
			w.drain(ctx)
		case <-sweepTicker.C:
			w.sweep(ctx, sweepInterval)
			w.pool.LogStats(ctx)
		}
	}
}

// drain processes batches until a batch comes back short.
func (w *worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("published outbox batch", "count", n)
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}

func (w *worker) sweep(ctx context.Context, ttl time.Duration) {
	ran, err := w.lock.TryRun(ctx, "outbox-dlq", ttl, func(ctx context.Context) error {
		moved, err := w.relay.MoveToDLQ(ctx)
		if err != nil {
			return err
		}
		if moved > 0 {
			w.log.Warnw("moved failed outbox messages to DLQ", "count", moved)
		}
		return nil
	})
	if err != nil {
		w.log.Errorw("outbox DLQ sweep failed", "error", err)
		return
	}
	if !ran {
		w.log.Debugw("outbox DLQ sweep held by another worker")
	}
}
