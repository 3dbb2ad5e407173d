package stock

import (
	"context"
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/documents/purchase_order"
)

// Snapshot is the consistent state a batch is planned against.
// Entities that do not exist are absent from the maps.
type Snapshot struct {
	Items     map[id.ID]entity.StockItem
	Orders    map[id.ID]purchase_order.Order
	Lines     map[id.ID]purchase_order.Line
	Actors    map[id.ID]entity.Actor
	Movements map[id.ID]entity.StockMovement
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Items:     make(map[id.ID]entity.StockItem),
		Orders:    make(map[id.ID]purchase_order.Order),
		Lines:     make(map[id.ID]purchase_order.Line),
		Actors:    make(map[id.ID]entity.Actor),
		Movements: make(map[id.ID]entity.StockMovement),
	}
}

// AddOrder registers an order together with its lines.
func (s *Snapshot) AddOrder(order purchase_order.Order) {
	s.Orders[order.ID] = order
	for _, l := range order.Lines {
		s.Lines[l.ID] = l
	}
}

// LoadSnapshot reads everything batch references through uow.
// Items are requested once, in ascending id order, so concurrent batches lock rows in the same order.
func LoadSnapshot(ctx context.Context, uow UnitOfWork, batch []Operation) (*Snapshot, error) {
	snap := NewSnapshot()

	// Superseded movements first: they can reference further items and order lines.
	var movementIDs []id.ID
	for _, op := range batch {
		if op.SupersedesOperationID != nil {
			movementIDs = append(movementIDs, *op.SupersedesOperationID)
		}
	}
	for _, mid := range id.SortedUnique(movementIDs) {
		m, err := uow.Movements().GetMovement(ctx, mid)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get movement %s: %w", mid, err)
		}
		snap.Movements[mid] = *m
	}

	var itemIDs, lineIDs, orderIDs, actorIDs []id.ID
	for _, op := range batch {
		itemIDs = append(itemIDs, op.ItemID)
		if op.OrderLineID != nil {
			lineIDs = append(lineIDs, *op.OrderLineID)
		}
		if op.OrderID != nil {
			orderIDs = append(orderIDs, *op.OrderID)
		}
		if op.ActorID != nil {
			actorIDs = append(actorIDs, *op.ActorID)
		}
	}
	for _, m := range snap.Movements {
		itemIDs = append(itemIDs, m.ItemID)
		if m.OrderLineID != nil {
			lineIDs = append(lineIDs, *m.OrderLineID)
		}
		if m.OrderID != nil {
			orderIDs = append(orderIDs, *m.OrderID)
		}
	}

	items, err := uow.Items().GetManyByIDs(ctx, id.SortedUnique(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	for _, it := range items {
		snap.Items[it.ID] = it
	}

	for _, lid := range id.SortedUnique(lineIDs) {
		line, err := uow.Orders().GetOrderLine(ctx, lid)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get order line %s: %w", lid, err)
		}
		snap.Lines[lid] = *line
		orderIDs = append(orderIDs, line.OrderID)
	}

	for _, oid := range id.SortedUnique(orderIDs) {
		order, err := uow.Orders().GetOrder(ctx, oid)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get order %s: %w", oid, err)
		}
		lines, err := uow.Orders().GetLines(ctx, oid)
		if err != nil {
			return nil, fmt.Errorf("get lines of order %s: %w", oid, err)
		}
		order.Lines = lines
		snap.AddOrder(*order)
	}

	for _, aid := range id.SortedUnique(actorIDs) {
		actor, err := uow.Actors().GetActor(ctx, aid)
		if err != nil {
			if apperror.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get actor %s: %w", aid, err)
		}
		snap.Actors[aid] = *actor
	}

	return snap, nil
}
