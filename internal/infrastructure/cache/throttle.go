// Package cache provides Redis-backed coordination for the alert pipeline:
// a per-item alert throttle and a lock for singleton maintenance jobs.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockflow/internal/domain/registers/stock"
	"stockflow/pkg/logger"
)

const defaultThrottleTTL = 15 * time.Minute

// Client is the subset of *redis.Client the throttle uses.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ThrottledNotifier suppresses repeat alerts for the same item and level within TTL.
// Redis errors fail open: the alert is delivered rather than lost.
type ThrottledNotifier struct {
	client Client
	next   stock.Notifier
	ttl    time.Duration
	prefix string
}

// Compile-time check that ThrottledNotifier implements stock.Notifier.
var _ stock.Notifier = (*ThrottledNotifier)(nil)

// NewThrottledNotifier wraps next. A non-positive ttl uses 15 minutes.
func NewThrottledNotifier(client Client, next stock.Notifier, ttl time.Duration) *ThrottledNotifier {
	if ttl <= 0 {
		ttl = defaultThrottleTTL
	}
	return &ThrottledNotifier{
		client: client,
		next:   next,
		ttl:    ttl,
		prefix: "stockflow:alert:",
	}
}

// Key returns the dedup key for alert.
func (n *ThrottledNotifier) Key(alert stock.StockAlert) string {
	return fmt.Sprintf("%s%s:%s", n.prefix, alert.ItemID, alert.Level)
}

// Notify implements stock.Notifier.
func (n *ThrottledNotifier) Notify(ctx context.Context, alert stock.StockAlert) error {
	key := n.Key(alert)

	first, err := n.client.SetNX(ctx, key, alert.RaisedAt.UTC().Format(time.RFC3339Nano), n.ttl).Result()
	if err != nil {
		logger.Warn(ctx, "alert throttle unavailable, delivering", "key", key, "error", err)
		return n.next.Notify(ctx, alert)
	}
	if !first {
		logger.Debug(ctx, "alert throttled", "key", key)
		return nil
	}

	if err := n.next.Notify(ctx, alert); err != nil {
		// Release the window so the retry is not swallowed.
		if delErr := n.client.Del(ctx, key).Err(); delErr != nil {
			logger.Warn(ctx, "failed to release alert throttle", "key", key, "error", delErr)
		}
		return err
	}
	return nil
}
