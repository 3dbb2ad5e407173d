// Package purchase_order provides the purchase order document as seen by stock receipts:
// header status, lines with ordered vs. received quantity, and the receipt status machine.
package purchase_order

import (
	"time"

	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Order is a purchase order header together with all of its lines.
type Order struct {
	ID     id.ID  `db:"id" json:"id"`
	Number string `db:"number" json:"number"`
	Status Status `db:"status" json:"status"`

	// Table part: ordered items
	Lines []Line `db:"-" json:"lines"`
}

// Line is the per-item entry of a purchase order.
// Invariant: 0 <= ReceivedQuantity <= OrderedQuantity after every commit.
type Line struct {
	ID               id.ID          `db:"id" json:"id"`
	OrderID          id.ID          `db:"order_id" json:"orderId"`
	ItemID           id.ID          `db:"item_id" json:"itemId"`
	OrderedQuantity  types.Quantity `db:"ordered_quantity" json:"orderedQuantity"`
	ReceivedQuantity types.Quantity `db:"received_quantity" json:"receivedQuantity"`

	// FulfilledAt is set when the line first receives goods and cleared when a reversal brings it back to zero.
	FulfilledAt *time.Time `db:"fulfilled_at" json:"fulfilledAt,omitempty"`
}

// Remaining returns how much can still be received on the line.
func (l Line) Remaining() types.Quantity {
	return l.OrderedQuantity.Sub(l.ReceivedQuantity)
}

// IsFullyReceived returns true if all ordered quantity has been received.
func (l Line) IsFullyReceived() bool {
	return l.ReceivedQuantity.GreaterThanOrEqual(l.OrderedQuantity)
}

// WithinBounds reports whether received stays inside [0, ordered] for this line.
func (l Line) WithinBounds(received types.Quantity) bool {
	return !received.IsNegative() && received.LessThanOrEqual(l.OrderedQuantity)
}

// OpenUnder reports whether the line still expects goods while its order is in status.
func (l Line) OpenUnder(status Status) bool {
	return status.IsOpen() && !l.IsFullyReceived()
}
