package document_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
)

func TestPurchaseOrderRepo_Columns(t *testing.T) {
	assert.Equal(t, []string{"id", "number", "status"}, orderColumns)
	assert.Equal(t, []string{
		"id", "order_id", "item_id", "ordered_quantity", "received_quantity", "fulfilled_at",
	}, lineColumns)
}

func TestPurchaseOrderRepo_Queries(t *testing.T) {
	repo := NewPurchaseOrderRepo(nil)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		build    func() (string, []any, error)
		wantSQL  string
		wantArgs int
	}{
		{
			name: "lines of order",
			build: func() (string, []any, error) {
				return repo.linesQuery(id.New()).ToSql()
			},
			wantSQL: "SELECT id, order_id, item_id, ordered_quantity, received_quantity, fulfilled_at " +
				"FROM purchase_order_lines WHERE order_id = $1 ORDER BY id",
			wantArgs: 1,
		},
		{
			name: "received quantity",
			build: func() (string, []any, error) {
				return repo.receivedQuery(id.New(), types.MustQuantity("4"), &now).ToSql()
			},
			wantSQL:  "UPDATE purchase_order_lines SET received_quantity = $1, fulfilled_at = $2 WHERE id = $3",
			wantArgs: 3,
		},
		{
			name: "order status",
			build: func() (string, []any, error) {
				return repo.statusQuery(id.New(), purchase_order.StatusReceived).ToSql()
			},
			wantSQL:  "UPDATE purchase_orders SET status = $1, updated_at = NOW() WHERE id = $2",
			wantArgs: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestPurchaseOrderRepo_StatusArg(t *testing.T) {
	repo := NewPurchaseOrderRepo(nil)

	_, args, err := repo.statusQuery(id.New(), purchase_order.StatusPartiallyReceived).ToSql()
	require.NoError(t, err)
	assert.Equal(t, purchase_order.StatusPartiallyReceived, args[0])
}
