package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/registers/stock"
)

// fakeRedis is an in-process SETNX/DEL store.
type fakeRedis struct {
	keys    map[string]time.Duration
	failSet error
	deleted []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]time.Duration)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if f.failSet != nil {
		return redis.NewBoolResult(false, f.failSet)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			delete(f.keys, k)
			n++
		}
		f.deleted = append(f.deleted, k)
	}
	return redis.NewIntResult(n, nil)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, alert stock.StockAlert) error {
	return m.Called(ctx, alert).Error(0)
}

func testAlert(level stock.StockLevel) stock.StockAlert {
	return stock.StockAlert{
		ItemID:   id.New(),
		ItemName: "Washer",
		Level:    level,
		Quantity: types.MustQuantity("3"),
		RaisedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestThrottledNotifier_SuppressesRepeats(t *testing.T) {
	rdb := newFakeRedis()
	next := &mockNotifier{}
	n := NewThrottledNotifier(rdb, next, time.Minute)
	ctx := context.Background()

	alert := testAlert(stock.LevelLow)
	next.On("Notify", ctx, alert).Return(nil).Once()

	require.NoError(t, n.Notify(ctx, alert))
	require.NoError(t, n.Notify(ctx, alert))

	next.AssertNumberOfCalls(t, "Notify", 1)
	assert.Equal(t, time.Minute, rdb.keys[n.Key(alert)])
}

func TestThrottledNotifier_LevelChangeIsNewAlert(t *testing.T) {
	rdb := newFakeRedis()
	next := &mockNotifier{}
	n := NewThrottledNotifier(rdb, next, 0)
	ctx := context.Background()

	low := testAlert(stock.LevelLow)
	critical := low
	critical.Level = stock.LevelCritical
	next.On("Notify", ctx, mock.Anything).Return(nil)

	require.NoError(t, n.Notify(ctx, low))
	require.NoError(t, n.Notify(ctx, critical))

	next.AssertNumberOfCalls(t, "Notify", 2)
	assert.Equal(t, defaultThrottleTTL, rdb.keys[n.Key(critical)])
}

func TestThrottledNotifier_ReleasesOnFailure(t *testing.T) {
	rdb := newFakeRedis()
	next := &mockNotifier{}
	n := NewThrottledNotifier(rdb, next, time.Minute)
	ctx := context.Background()
	alert := testAlert(stock.LevelCritical)

	next.On("Notify", ctx, alert).Return(errors.New("nats down")).Once()
	next.On("Notify", ctx, alert).Return(nil).Once()

	require.Error(t, n.Notify(ctx, alert))
	assert.Equal(t, []string{n.Key(alert)}, rdb.deleted)

	require.NoError(t, n.Notify(ctx, alert))
	next.AssertNumberOfCalls(t, "Notify", 2)
}

func TestThrottledNotifier_FailsOpen(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failSet = errors.New("connection refused")
	next := &mockNotifier{}
	n := NewThrottledNotifier(rdb, next, time.Minute)
	ctx := context.Background()
	alert := testAlert(stock.LevelLow)

	next.On("Notify", ctx, alert).Return(nil).Twice()

	require.NoError(t, n.Notify(ctx, alert))
	require.NoError(t, n.Notify(ctx, alert))
	next.AssertExpectations(t)
}
