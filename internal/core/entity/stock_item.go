package entity

import (
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// StockItem is the engine's view of an inventory item.
// Owned by the persistence layer; the engine reads a snapshot and writes back only Quantity.
type StockItem struct {
	ID           id.ID           `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Quantity     types.Quantity  `db:"quantity" json:"quantity"`
	ReorderPoint *types.Quantity `db:"reorder_point" json:"reorderPoint,omitempty"`
	MaxQuantity  *types.Quantity `db:"max_quantity" json:"maxQuantity,omitempty"`
	IsActive     bool            `db:"is_active" json:"isActive"`

	// Derived when loading; not stored on the item row.
	OpenOrderLines        int  `db:"open_order_lines" json:"openOrderLines"`
	PendingExternalReturn bool `db:"pending_external_return" json:"pendingExternalReturn"`
}

// HasOpenOrders reports whether goods for the item are still on order.
func (i StockItem) HasOpenOrders() bool {
	return i.OpenOrderLines > 0
}

// Actor is a user or service account that can be attached to stock operations.
type Actor struct {
	ID       id.ID  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	IsActive bool   `db:"is_active" json:"isActive"`
}
