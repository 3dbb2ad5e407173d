package stock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
)

type mockItems struct{ mock.Mock }

func (m *mockItems) GetManyByIDs(ctx context.Context, ids []id.ID) ([]entity.StockItem, error) {
	args := m.Called(ctx, ids)
	items, _ := args.Get(0).([]entity.StockItem)
	return items, args.Error(1)
}

func (m *mockItems) SetQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity) error {
	return m.Called(ctx, itemID, quantity).Error(0)
}

type mockOrders struct{ mock.Mock }

func (m *mockOrders) GetOrder(ctx context.Context, orderID id.ID) (*purchase_order.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(*purchase_order.Order)
	return o, args.Error(1)
}

func (m *mockOrders) GetOrderLine(ctx context.Context, lineID id.ID) (*purchase_order.Line, error) {
	args := m.Called(ctx, lineID)
	l, _ := args.Get(0).(*purchase_order.Line)
	return l, args.Error(1)
}

func (m *mockOrders) GetLines(ctx context.Context, orderID id.ID) ([]purchase_order.Line, error) {
	args := m.Called(ctx, orderID)
	lines, _ := args.Get(0).([]purchase_order.Line)
	return lines, args.Error(1)
}

func (m *mockOrders) SetReceivedQuantity(ctx context.Context, lineID id.ID, received types.Quantity, fulfilledAt *time.Time) error {
	return m.Called(ctx, lineID, received, fulfilledAt).Error(0)
}

func (m *mockOrders) SetOrderStatus(ctx context.Context, orderID id.ID, status purchase_order.Status) error {
	return m.Called(ctx, orderID, status).Error(0)
}

type mockActors struct{ mock.Mock }

func (m *mockActors) GetActor(ctx context.Context, actorID id.ID) (*entity.Actor, error) {
	args := m.Called(ctx, actorID)
	a, _ := args.Get(0).(*entity.Actor)
	return a, args.Error(1)
}

type mockMovements struct{ mock.Mock }

func (m *mockMovements) GetMovement(ctx context.Context, movementID id.ID) (*entity.StockMovement, error) {
	args := m.Called(ctx, movementID)
	mv, _ := args.Get(0).(*entity.StockMovement)
	return mv, args.Error(1)
}

type mockAudit struct{ mock.Mock }

func (m *mockAudit) Record(ctx context.Context, rec AuditRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(ctx context.Context, alert StockAlert) error {
	return m.Called(ctx, alert).Error(0)
}

type mockUnitOfWork struct {
	items     *mockItems
	orders    *mockOrders
	actors    *mockActors
	movements *mockMovements
	audit     *mockAudit
}

func newMockUnitOfWork() *mockUnitOfWork {
	return &mockUnitOfWork{
		items:     &mockItems{},
		orders:    &mockOrders{},
		actors:    &mockActors{},
		movements: &mockMovements{},
		audit:     &mockAudit{},
	}
}

func (u *mockUnitOfWork) Items() ItemRepository         { return u.items }
func (u *mockUnitOfWork) Orders() OrderRepository       { return u.orders }
func (u *mockUnitOfWork) Actors() ActorRepository       { return u.actors }
func (u *mockUnitOfWork) Movements() MovementRepository { return u.movements }
func (u *mockUnitOfWork) Audit() AuditSink              { return u.audit }
