// Package stock is the atomic stock-mutation engine.
//
// A batch of operations is first planned against a consistent snapshot
// (Calculator) and only then committed (Updater). Both phases run inside the
// same UnitOfWork so the commit never acts on stale reads.
package stock

import (
	"context"
	"time"

	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
)

// ItemRepository reads and writes stock item quantities.
type ItemRepository interface {
	// GetManyByIDs returns the items that exist among ids, locked for update.
	// Missing ids are simply absent from the result.
	GetManyByIDs(ctx context.Context, ids []id.ID) ([]entity.StockItem, error)

	// SetQuantity overwrites the stored quantity of an item.
	SetQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity) error
}

// OrderRepository reads purchase orders and writes receipt state.
// Getters return an apperror NOT_FOUND error for unknown ids.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID id.ID) (*purchase_order.Order, error)
	GetOrderLine(ctx context.Context, lineID id.ID) (*purchase_order.Line, error)

	// GetLines returns all lines of an order ordered by id.
	GetLines(ctx context.Context, orderID id.ID) ([]purchase_order.Line, error)

	SetReceivedQuantity(ctx context.Context, lineID id.ID, received types.Quantity, fulfilledAt *time.Time) error
	SetOrderStatus(ctx context.Context, orderID id.ID, status purchase_order.Status) error
}

// ActorRepository resolves acting users.
type ActorRepository interface {
	GetActor(ctx context.Context, actorID id.ID) (*entity.Actor, error)
}

// MovementRepository reads the movement ledger. Used only to reverse superseded movements.
type MovementRepository interface {
	GetMovement(ctx context.Context, movementID id.ID) (*entity.StockMovement, error)
}

// AuditRecord describes one field mutation made by a commit.
type AuditRecord struct {
	EntityType string    `json:"entityType"`
	EntityID   id.ID     `json:"entityId"`
	Field      string    `json:"field"`
	OldValue   string    `json:"oldValue"`
	NewValue   string    `json:"newValue"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    *id.ID    `json:"actorId,omitempty"`
	At         time.Time `json:"at"`
}

// AuditSink records mutations. A failing sink never rolls back a commit.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// StockAlert is raised when an item's stock level degrades to LOW or CRITICAL.
type StockAlert struct {
	ItemID        id.ID           `json:"itemId"`
	ItemName      string          `json:"itemName"`
	Level         StockLevel      `json:"level"`
	PreviousLevel StockLevel      `json:"previousLevel"`
	Quantity      types.Quantity  `json:"quantity"`
	ReorderPoint  *types.Quantity `json:"reorderPoint,omitempty"`
	HasOpenOrders bool            `json:"hasOpenOrders"`
	RaisedAt      time.Time       `json:"raisedAt"`
}

// Notifier receives stock alerts. Best effort: errors are logged, never returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, alert StockAlert) error
}

// UnitOfWork exposes the repositories bound to one transaction.
// Plan and commit of a batch must use the same UnitOfWork.
type UnitOfWork interface {
	Items() ItemRepository
	Orders() OrderRepository
	Actors() ActorRepository
	Movements() MovementRepository
	Audit() AuditSink
}

// Runner executes a function inside a fresh unit of work.
// Run commits when fn returns nil and rolls back otherwise.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error

	// ReadOnly runs fn in a unit of work that rejects writes.
	ReadOnly(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// NopNotifier drops every alert.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, StockAlert) error { return nil }
