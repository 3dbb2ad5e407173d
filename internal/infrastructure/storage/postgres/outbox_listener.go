package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockflow/pkg/logger"
)

// OutboxChannel is the NOTIFY channel raised when outbox rows are committed.
const OutboxChannel = "stockflow_outbox"

// OutboxListener turns outbox NOTIFY events into relay wake-ups,
// so the relay does not have to wait for its next poll tick.
type OutboxListener struct {
	pool *pgxpool.Pool
	wake chan struct{}

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewOutboxListener creates a listener on pool.
func NewOutboxListener(pool *pgxpool.Pool) *OutboxListener {
	return &OutboxListener{
		pool: pool,
		wake: make(chan struct{}, 1),
	}
}

// Wake returns a channel that receives after one or more notifications.
// Bursts collapse into a single pending signal.
func (l *OutboxListener) Wake() <-chan struct{} {
	return l.wake
}

// Start begins listening in a background goroutine.
func (l *OutboxListener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
}

// Stop cancels the listener and waits for it to exit.
func (l *OutboxListener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

func (l *OutboxListener) listenLoop() {
	defer l.wg.Done()

	for l.ctx.Err() == nil {
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			l.sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(l.ctx, "LISTEN "+OutboxChannel); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "channel", OutboxChannel, "error", err)
			conn.Release()
			l.sleep(time.Second)
			continue
		}

		logger.Info(l.ctx, "listening for outbox notifications", "channel", OutboxChannel)
		l.waitForNotifications(conn)

		// The session still holds LISTEN; drop it rather than returning it to the pool.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}
}

func (l *OutboxListener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		if _, err := conn.Conn().WaitForNotification(l.ctx); err != nil {
			if l.ctx.Err() == nil {
				logger.Warn(l.ctx, "outbox listener lost connection", "error", err)
			}
			return
		}
		l.signal()
	}
}

func (l *OutboxListener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *OutboxListener) sleep(d time.Duration) {
	select {
	case <-l.ctx.Done():
	case <-time.After(d):
	}
}
