package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
	"stockflow/internal/domain/registers/stock"
)

func seedItem(s *Store, qty string) entity.StockItem {
	it := entity.StockItem{ID: id.New(), Name: "bolt", Quantity: types.MustQuantity(qty), IsActive: true}
	s.PutItem(it)
	return it
}

func TestStore_RunCommitsOnSuccess(t *testing.T) {
	s := NewStore()
	it := seedItem(s, "10")

	err := s.Run(context.Background(), func(ctx context.Context, uow stock.UnitOfWork) error {
		return uow.Items().SetQuantity(ctx, it.ID, types.QuantityFromInt(7))
	})
	require.NoError(t, err)

	got, ok := s.Item(it.ID)
	require.True(t, ok)
	assert.True(t, got.Quantity.Equal(types.QuantityFromInt(7)))
}

func TestStore_RunDiscardsOnError(t *testing.T) {
	s := NewStore()
	it := seedItem(s, "10")
	boom := errors.New("boom")

	err := s.Run(context.Background(), func(ctx context.Context, uow stock.UnitOfWork) error {
		require.NoError(t, uow.Items().SetQuantity(ctx, it.ID, types.QuantityFromInt(7)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := s.Item(it.ID)
	assert.True(t, got.Quantity.Equal(types.QuantityFromInt(10)))
}

func TestStore_ReadOnlyRejectsWrites(t *testing.T) {
	s := NewStore()
	it := seedItem(s, "10")

	err := s.ReadOnly(context.Background(), func(ctx context.Context, uow stock.UnitOfWork) error {
		return uow.Items().SetQuantity(ctx, it.ID, types.QuantityFromInt(1))
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestStore_InjectFault(t *testing.T) {
	s := NewStore()
	it := seedItem(s, "10")
	boom := errors.New("disk full")
	s.InjectFault(func(op string, entityID id.ID) error {
		if op == OpSetQuantity {
			return boom
		}
		return nil
	})

	err := s.Run(context.Background(), func(ctx context.Context, uow stock.UnitOfWork) error {
		return uow.Items().SetQuantity(ctx, it.ID, types.QuantityFromInt(1))
	})
	assert.ErrorIs(t, err, boom)
}

func TestStore_HasOpenOrders(t *testing.T) {
	s := NewStore()
	it := seedItem(s, "10")
	s.PutOrder(purchase_order.Order{
		ID:     id.New(),
		Status: purchase_order.StatusFulfilled,
		Lines: []purchase_order.Line{{
			ID:               id.New(),
			ItemID:           it.ID,
			OrderedQuantity:  types.QuantityFromInt(5),
			ReceivedQuantity: types.ZeroQuantity(),
		}},
	})

	err := s.ReadOnly(context.Background(), func(ctx context.Context, uow stock.UnitOfWork) error {
		items, err := uow.Items().GetManyByIDs(ctx, []id.ID{it.ID, id.New()})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.True(t, items[0].HasOpenOrders())
		assert.Equal(t, 1, items[0].OpenOrderLines)
		return nil
	})
	require.NoError(t, err)
}
