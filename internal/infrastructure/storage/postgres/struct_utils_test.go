package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

type TrackedRow struct {
	UpdatedAt time.Time `db:"updated_at"`
}

type itemRow struct {
	entity.StockItem
	TrackedRow
	Note string `db:"-"`
}

func TestExtractDBColumns_Embedded(t *testing.T) {
	cols := ExtractDBColumns[itemRow]()

	expectedCols := []string{
		"id", "name", "quantity", "reorder_point", "max_quantity", "is_active",
		"open_order_lines", "pending_external_return", "updated_at",
	}
	assert.Equal(t, expectedCols, cols)
	assert.NotContains(t, cols, "-")
}

func TestExtractDBColumns_AuditEntry(t *testing.T) {
	assert.Equal(t, []string{
		"id", "entity_type", "entity_id", "field", "actor_id",
		"changes", "changes_compressed", "compression_algo", "created_at",
	}, ExtractDBColumns[AuditEntry]())
}

func TestStructToMap_Embedded(t *testing.T) {
	now := time.Now().UTC()
	reorder := types.MustQuantity("5")
	row := itemRow{
		StockItem: entity.StockItem{
			ID:           id.New(),
			Name:         "Bolt",
			Quantity:     types.MustQuantity("12.5"),
			ReorderPoint: &reorder,
			IsActive:     true,
		},
		TrackedRow: TrackedRow{UpdatedAt: now},
		Note:       "ignored",
	}

	m := StructToMap(row)

	assert.Equal(t, row.ID, m["id"])
	assert.Equal(t, "Bolt", m["name"])
	assert.Equal(t, &reorder, m["reorder_point"])
	assert.Equal(t, true, m["is_active"])
	assert.Equal(t, now, m["updated_at"])
	assert.NotContains(t, m, "-")
	assert.Len(t, m, 9)
}

func TestStructToMap_Pointer(t *testing.T) {
	actor := &entity.Actor{ID: id.New(), Name: "ops", IsActive: false}

	m := StructToMap(actor)

	assert.Equal(t, actor.ID, m["id"])
	assert.Equal(t, "ops", m["name"])
	assert.Equal(t, false, m["is_active"])
}

func TestStructToMap_NonStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}
