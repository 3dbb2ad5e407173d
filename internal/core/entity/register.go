// Package entity provides core domain entities.
package entity

import (
	"time"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Direction defines movement direction for stock operations.
type Direction string

const (
	// DirectionInbound increases stock (receipt, return).
	DirectionInbound Direction = "INBOUND"
	// DirectionOutbound decreases stock (usage, withdrawal).
	DirectionOutbound Direction = "OUTBOUND"
)

// IsValid reports whether d is one of the defined directions.
func (d Direction) IsValid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Opposite returns the direction that undoes d.
func (d Direction) Opposite() Direction {
	if d == DirectionInbound {
		return DirectionOutbound
	}
	return DirectionInbound
}

// Signed returns q with the sign implied by d: inbound positive, outbound negative.
func (d Direction) Signed(q types.Quantity) types.Quantity {
	if d == DirectionOutbound {
		return q.Neg()
	}
	return q
}

// StockMovement is the ledger record of a previously applied stock operation.
// Movements are immutable; edits are expressed as new operations that supersede them.
// The ledger is owned by the calling service; the engine only reads it to build reversals.
type StockMovement struct {
	ID          id.ID          `db:"id" json:"id"`
	ItemID      id.ID          `db:"item_id" json:"itemId"`
	Direction   Direction      `db:"direction" json:"direction"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	Reason      string         `db:"reason" json:"reason,omitempty"`
	OrderID     *id.ID         `db:"order_id" json:"orderId,omitempty"`
	OrderLineID *id.ID         `db:"order_line_id" json:"orderLineId,omitempty"`
	ActorID     *id.ID         `db:"actor_id" json:"actorId,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
}

// SignedQuantity returns quantity with sign based on direction.
func (m *StockMovement) SignedQuantity() types.Quantity {
	return m.Direction.Signed(m.Quantity)
}
