package register_repo

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

func TestItemRepo_SelectQuery(t *testing.T) {
	repo := NewItemRepo(nil)
	ids := id.SortedUnique([]id.ID{id.New(), id.New()})

	tests := []struct {
		name     string
		lock     bool
		wantLock bool
	}{
		{name: "read-write locks rows", lock: true, wantLock: true},
		{name: "read-only skips lock", lock: false, wantLock: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.selectQuery(ids, tt.lock).ToSql()
			require.NoError(t, err)

			assert.Contains(t, sql, "SELECT i.id, i.name, i.quantity, i.reorder_point, i.max_quantity, i.is_active, ")
			assert.Contains(t, sql, "(SELECT COUNT(*) FROM purchase_order_lines l JOIN purchase_orders o ON o.id = l.order_id "+
				"WHERE l.item_id = i.id AND o.status IN ($1,$2,$3) AND l.received_quantity < l.ordered_quantity)")
			assert.Contains(t, sql, "AS open_order_lines")
			assert.Contains(t, sql, "EXISTS(SELECT 1 FROM external_returns er WHERE er.item_id = i.id AND er.status = $4)")
			assert.Contains(t, sql, "AS pending_external_return")
			assert.Contains(t, sql, "FROM stock_items i WHERE i.id IN ($5,$6) ORDER BY i.id")

			if tt.wantLock {
				assert.Contains(t, sql, "ORDER BY i.id FOR UPDATE OF i")
			} else {
				assert.NotContains(t, sql, "FOR UPDATE")
			}

			require.Len(t, args, 6)
			assert.Equal(t, "CREATED", args[0])
			assert.Equal(t, "FULFILLED", args[1])
			assert.Equal(t, "PARTIALLY_RECEIVED", args[2])
			assert.Equal(t, "PENDING", args[3])
		})
	}
}

func TestItemRepo_UpdateQuery(t *testing.T) {
	repo := NewItemRepo(nil)
	qty := types.MustQuantity("12.50")

	sql, args, err := repo.updateQuery(id.New(), qty).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE stock_items SET quantity = $1, updated_at = NOW() WHERE id = $2", sql)
	require.Len(t, args, 2)
	got, ok := args[0].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, got.Equal(qty))
}

func TestMovementRepo_SelectQuery(t *testing.T) {
	repo := NewMovementRepo(nil)

	sql, args, err := repo.selectQuery(id.New()).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, item_id, direction, quantity, reason, order_id, order_line_id, actor_id, created_at "+
			"FROM stock_movements WHERE id = $1",
		sql)
	assert.Len(t, args, 1)
}
