// Package memory provides an in-memory implementation of the stock engine ports.
//
// Each unit of work operates on a private copy of the state which replaces the
// shared state only when the unit of work succeeds, so a failed batch leaves no
// trace. Writers are serialized.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
	"stockflow/internal/domain/registers/stock"
)

// Fault operations passed to a FaultFunc.
const (
	OpSetQuantity         = "items.set_quantity"
	OpSetReceivedQuantity = "orders.set_received_quantity"
	OpSetOrderStatus      = "orders.set_status"
	OpAuditRecord         = "audit.record"
)

// ErrReadOnly is returned by writes inside a read-only unit of work.
var ErrReadOnly = errors.New("memory: write in read-only unit of work")

// FaultFunc may fail a write before it is applied. Used to simulate storage failures.
type FaultFunc func(op string, entityID id.ID) error

// Compile-time checks.
var (
	_ stock.Runner     = (*Store)(nil)
	_ stock.UnitOfWork = (*unitOfWork)(nil)
)

type state struct {
	items     map[id.ID]entity.StockItem
	orders    map[id.ID]purchase_order.Order
	lines     map[id.ID]purchase_order.Line
	actors    map[id.ID]entity.Actor
	movements map[id.ID]entity.StockMovement
	audit     []stock.AuditRecord
}

func newState() *state {
	return &state{
		items:     make(map[id.ID]entity.StockItem),
		orders:    make(map[id.ID]purchase_order.Order),
		lines:     make(map[id.ID]purchase_order.Line),
		actors:    make(map[id.ID]entity.Actor),
		movements: make(map[id.ID]entity.StockMovement),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.actors {
		c.actors[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	c.audit = append([]stock.AuditRecord(nil), s.audit...)
	return c
}

// Store is a copy-on-commit in-memory store.
type Store struct {
	mu    sync.RWMutex
	state *state
	fault FaultFunc
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// InjectFault installs f for subsequent units of work. Pass nil to clear.
func (s *Store) InjectFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// Run implements stock.Runner.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context, uow stock.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, &unitOfWork{state: work, fault: s.fault}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ReadOnly implements stock.Runner.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, uow stock.UnitOfWork) error) error {
	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	return fn(ctx, &unitOfWork{state: work, readOnly: true})
}

// --- Seeding and inspection ---

// PutItem inserts or replaces an item.
func (s *Store) PutItem(item entity.StockItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.items[item.ID] = item
}

// PutOrder inserts or replaces an order with its lines.
func (s *Store) PutOrder(order purchase_order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range order.Lines {
		l.OrderID = order.ID
		s.state.lines[l.ID] = l
	}
	order.Lines = nil
	s.state.orders[order.ID] = order
}

// PutActor inserts or replaces an actor.
func (s *Store) PutActor(actor entity.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.actors[actor.ID] = actor
}

// PutMovement inserts a ledger movement.
func (s *Store) PutMovement(m entity.StockMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.movements[m.ID] = m
}

// Item returns the committed item.
func (s *Store) Item(itemID id.ID) (entity.StockItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.state.items[itemID]
	return it, ok
}

// Line returns the committed order line.
func (s *Store) Line(lineID id.ID) (purchase_order.Line, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.lines[lineID]
	return l, ok
}

// Order returns the committed order with its lines.
func (s *Store) Order(orderID id.ID) (purchase_order.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.orders[orderID]
	if !ok {
		return o, false
	}
	o.Lines = s.state.linesOf(orderID)
	return o, true
}

// AuditLog returns committed audit records.
func (s *Store) AuditLog() []stock.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]stock.AuditRecord(nil), s.state.audit...)
}

func (s *state) linesOf(orderID id.ID) []purchase_order.Line {
	var out []purchase_order.Line
	for _, l := range s.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sortLines(out)
	return out
}

func sortLines(lines []purchase_order.Line) {
	slices.SortFunc(lines, func(a, b purchase_order.Line) int {
		return id.Compare(a.ID, b.ID)
	})
}

func (s *state) openOrderLines(itemID id.ID) int {
	n := 0
	for _, l := range s.lines {
		if l.ItemID == itemID && l.OpenUnder(s.orders[l.OrderID].Status) {
			n++
		}
	}
	return n
}

// --- Unit of work ---

type unitOfWork struct {
	state    *state
	fault    FaultFunc
	readOnly bool
}

func (u *unitOfWork) Items() stock.ItemRepository         { return itemRepo{u} }
func (u *unitOfWork) Orders() stock.OrderRepository       { return orderRepo{u} }
func (u *unitOfWork) Actors() stock.ActorRepository       { return actorRepo{u} }
func (u *unitOfWork) Movements() stock.MovementRepository { return movementRepo{u} }
func (u *unitOfWork) Audit() stock.AuditSink              { return auditSink{u} }

func (u *unitOfWork) write(ctx context.Context, op string, entityID id.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.readOnly {
		return ErrReadOnly
	}
	if u.fault != nil {
		return u.fault(op, entityID)
	}
	return nil
}

type itemRepo struct{ u *unitOfWork }

func (r itemRepo) GetManyByIDs(ctx context.Context, ids []id.ID) ([]entity.StockItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]entity.StockItem, 0, len(ids))
	for _, itemID := range id.SortedUnique(ids) {
		it, ok := r.u.state.items[itemID]
		if !ok {
			continue
		}
		it.OpenOrderLines = r.u.state.openOrderLines(itemID)
		out = append(out, it)
	}
	return out, nil
}

func (r itemRepo) SetQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity) error {
	if err := r.u.write(ctx, OpSetQuantity, itemID); err != nil {
		return err
	}
	it, ok := r.u.state.items[itemID]
	if !ok {
		return apperror.NewNotFound("stock_item", itemID)
	}
	it.Quantity = quantity
	r.u.state.items[itemID] = it
	return nil
}

type orderRepo struct{ u *unitOfWork }

func (r orderRepo) GetOrder(ctx context.Context, orderID id.ID) (*purchase_order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, ok := r.u.state.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("purchase_order", orderID)
	}
	return &o, nil
}

func (r orderRepo) GetOrderLine(ctx context.Context, lineID id.ID) (*purchase_order.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, ok := r.u.state.lines[lineID]
	if !ok {
		return nil, apperror.NewNotFound("purchase_order_line", lineID)
	}
	return &l, nil
}

func (r orderRepo) GetLines(ctx context.Context, orderID id.ID) ([]purchase_order.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.u.state.linesOf(orderID), nil
}

func (r orderRepo) SetReceivedQuantity(ctx context.Context, lineID id.ID, received types.Quantity, fulfilledAt *time.Time) error {
	if err := r.u.write(ctx, OpSetReceivedQuantity, lineID); err != nil {
		return err
	}
	l, ok := r.u.state.lines[lineID]
	if !ok {
		return apperror.NewNotFound("purchase_order_line", lineID)
	}
	l.ReceivedQuantity = received
	l.FulfilledAt = fulfilledAt
	r.u.state.lines[lineID] = l
	return nil
}

func (r orderRepo) SetOrderStatus(ctx context.Context, orderID id.ID, status purchase_order.Status) error {
	if err := r.u.write(ctx, OpSetOrderStatus, orderID); err != nil {
		return err
	}
	o, ok := r.u.state.orders[orderID]
	if !ok {
		return apperror.NewNotFound("purchase_order", orderID)
	}
	o.Status = status
	r.u.state.orders[orderID] = o
	return nil
}

type actorRepo struct{ u *unitOfWork }

func (r actorRepo) GetActor(ctx context.Context, actorID id.ID) (*entity.Actor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := r.u.state.actors[actorID]
	if !ok {
		return nil, apperror.NewNotFound("actor", actorID)
	}
	return &a, nil
}

type movementRepo struct{ u *unitOfWork }

func (r movementRepo) GetMovement(ctx context.Context, movementID id.ID) (*entity.StockMovement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, ok := r.u.state.movements[movementID]
	if !ok {
		return nil, apperror.NewNotFound("stock_movement", movementID)
	}
	return &m, nil
}

type auditSink struct{ u *unitOfWork }

func (a auditSink) Record(ctx context.Context, rec stock.AuditRecord) error {
	if err := a.u.write(ctx, OpAuditRecord, rec.EntityID); err != nil {
		return err
	}
	a.u.state.audit = append(a.u.state.audit, rec)
	return nil
}
