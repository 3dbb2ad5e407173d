package postgres

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/registers/stock"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOutboxRelay_PendingQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	relay := NewOutboxRelay(nil, RelayConfig{BatchSize: 50}, nil)
	relay.now = fixedClock(now)

	sql, args, err := relay.pendingQuery().ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, last_error, "+
			"next_retry_at, created_at, published_at FROM sys_outbox "+
			"WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= $2) "+
			"ORDER BY created_at, id LIMIT 50 FOR UPDATE SKIP LOCKED",
		sql)
	assert.Equal(t, []any{OutboxStatusPending, now}, args)
}

func TestOutboxRelay_FailureQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	relay := NewOutboxRelay(nil, RelayConfig{MaxRetries: 3, RetryBackoff: time.Minute}, nil)
	relay.now = fixedClock(now)
	cause := errors.New("broker down")

	tests := []struct {
		name        string
		retryCount  int
		wantStatus  OutboxStatus
		wantAttempt int
	}{
		{name: "first failure stays pending", retryCount: 0, wantStatus: OutboxStatusPending, wantAttempt: 1},
		{name: "below limit stays pending", retryCount: 1, wantStatus: OutboxStatusPending, wantAttempt: 2},
		{name: "limit reached parks message", retryCount: 2, wantStatus: OutboxStatusFailed, wantAttempt: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &OutboxMessage{ID: id.New(), RetryCount: tt.retryCount}

			sql, args, err := relay.failureQuery(msg, cause).ToSql()
			require.NoError(t, err)

			assert.Equal(t,
				"UPDATE sys_outbox SET retry_count = $1, last_error = $2, next_retry_at = $3, status = $4 WHERE id = $5",
				sql)
			require.Len(t, args, 5)
			assert.Equal(t, tt.wantAttempt, args[0])
			assert.Equal(t, "broker down", args[1])
			assert.Equal(t, now.Add(time.Duration(tt.wantAttempt)*time.Minute), args[2])
			assert.Equal(t, tt.wantStatus, args[3])
		})
	}
}

func TestOutboxRelay_PublishedQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	relay := NewOutboxRelay(nil, RelayConfig{}, nil)
	relay.now = fixedClock(now)

	sql, args, err := relay.publishedQuery(&OutboxMessage{ID: id.New()}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE sys_outbox SET status = $1, published_at = $2 WHERE id = $3", sql)
	assert.Equal(t, OutboxStatusPublished, args[0])
	assert.Equal(t, now, args[1])
}

func TestRelayConfig_Defaults(t *testing.T) {
	cfg := RelayConfig{}.withDefaults()

	assert.Equal(t, defaultRelayBatchSize, cfg.BatchSize)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, defaultRetryBackoff, cfg.RetryBackoff)
}

func TestOutboxPublisher_InsertQuery(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pub := NewOutboxPublisher(nil)
	pub.now = fixedClock(now)

	alert := stock.StockAlert{
		ItemID:        id.New(),
		ItemName:      "Bolt",
		Level:         stock.LevelCritical,
		PreviousLevel: stock.LevelOptimal,
		Quantity:      types.MustQuantity("2"),
		RaisedAt:      now,
	}

	q, err := pub.insertQuery([]DomainEvent{
		{AggregateType: AggregateStockItem, AggregateID: alert.ItemID, EventType: EventStockAlert, Payload: alert},
		{AggregateType: AggregateStockItem, AggregateID: alert.ItemID, EventType: EventStockAlert, Payload: alert},
	})
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"INSERT INTO sys_outbox (id,aggregate_type,aggregate_id,event_type,payload,status,created_at) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7),($8,$9,$10,$11,$12,$13,$14)",
		sql)
	require.Len(t, args, 14)
	assert.Equal(t, EventStockAlert, args[3])
	assert.Equal(t, OutboxStatusPending, args[5])
	assert.Equal(t, now, args[6])

	var decoded stock.StockAlert
	require.NoError(t, json.Unmarshal(args[4].([]byte), &decoded))
	assert.Equal(t, alert.ItemID, decoded.ItemID)
	assert.Equal(t, stock.LevelCritical, decoded.Level)
	assert.True(t, decoded.Quantity.Equal(alert.Quantity))
}

func TestOutboxPublisher_InsertQuery_BadPayload(t *testing.T) {
	pub := NewOutboxPublisher(nil)

	_, err := pub.insertQuery([]DomainEvent{{Payload: make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal event payload")
}
