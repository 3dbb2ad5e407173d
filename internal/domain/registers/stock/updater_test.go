package stock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestUpdater_RejectsPlanThatCannotProceed(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("50")
	plan := NewCalculator().Calculate([]Operation{outbound(item.ID, "60")}, snapshotOf(item))

	_, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, nil)

	assert.True(t, apperror.HasCode(err, apperror.CodePlanNotExecutable))
	uow.items.AssertNotCalled(t, "SetQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdater_RejectsNilPlan(t *testing.T) {
	_, err := NewUpdater(nil, clock).Commit(context.Background(), newMockUnitOfWork(), nil, nil)
	assert.True(t, apperror.HasCode(err, apperror.CodePlanNotExecutable))
}

func TestUpdater_WritesItemsAndAudits(t *testing.T) {
	uow := newMockUnitOfWork()
	a, b := newItem("10"), newItem("10")
	plan := NewCalculator().Calculate([]Operation{
		inbound(a.ID, "5"),
		outbound(b.ID, "1"),
		inbound(b.ID, "1"),
	}, snapshotOf(a, b))
	require.True(t, plan.CanProceed)

	uow.items.On("SetQuantity", mock.Anything, a.ID, mock.MatchedBy(func(q types.Quantity) bool {
		return q.Equal(qty("15"))
	})).Return(nil).Once()
	uow.audit.On("Record", mock.Anything, mock.MatchedBy(func(rec AuditRecord) bool {
		return rec.EntityID == a.ID && rec.OldValue == "10" && rec.NewValue == "15" && rec.At.Equal(fixedNow)
	})).Return(nil).Once()

	result, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, nil)

	require.NoError(t, err)
	require.Len(t, result.ItemChanges, 1, "zero net change is not written")
	assert.Equal(t, a.ID, result.ItemChanges[0].ItemID)
	uow.items.AssertExpectations(t)
	uow.audit.AssertExpectations(t)
}

func TestUpdater_WriteFailureAborts(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("10")
	plan := NewCalculator().Calculate([]Operation{inbound(item.ID, "5")}, snapshotOf(item))
	boom := errors.New("connection reset")

	uow.items.On("SetQuantity", mock.Anything, item.ID, mock.Anything).Return(boom)

	result, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, nil)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)
	uow.audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestUpdater_AuditFailureIsWarning(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("10")
	plan := NewCalculator().Calculate([]Operation{inbound(item.ID, "5")}, snapshotOf(item))

	uow.items.On("SetQuantity", mock.Anything, item.ID, mock.Anything).Return(nil)
	uow.audit.On("Record", mock.Anything, mock.Anything).Return(errors.New("audit down"))

	result, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, nil)

	require.NoError(t, err)
	assert.True(t, HasIssue(result.Warnings, apperror.CodeInternal))
}

func TestUpdater_CancelledContextAborts(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("10")
	plan := NewCalculator().Calculate([]Operation{inbound(item.ID, "5")}, snapshotOf(item))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewUpdater(nil, clock).Commit(ctx, uow, plan, nil)

	assert.ErrorIs(t, err, context.Canceled)
	uow.items.AssertNotCalled(t, "SetQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdater_InactiveCommittingActor(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("10")
	plan := NewCalculator().Calculate([]Operation{inbound(item.ID, "5")}, snapshotOf(item))
	actor := &entity.Actor{ID: id.New(), IsActive: false}

	uow.actors.On("GetActor", mock.Anything, actor.ID).Return(actor, nil)

	_, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, &actor.ID)

	assert.True(t, apperror.HasCode(err, apperror.CodeInactiveResource))
	uow.items.AssertNotCalled(t, "SetQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdater_OrderLineAndStatus(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("50")
	order, line := orderWithLine(item.ID, purchase_order.StatusFulfilled, "40", "10")
	snap := snapshotOf(item)
	snap.AddOrder(order)

	op := inbound(item.ID, "30")
	op.OrderLineID = idPtr(line.ID)
	plan := NewCalculator().Calculate([]Operation{op}, snap)
	require.True(t, plan.CanProceed)

	receivedLine := line
	receivedLine.ReceivedQuantity = qty("40")

	uow.items.On("SetQuantity", mock.Anything, item.ID, mock.Anything).Return(nil)
	uow.orders.On("SetReceivedQuantity", mock.Anything, line.ID, mock.Anything, (*time.Time)(nil)).Return(nil)
	uow.orders.On("GetOrder", mock.Anything, order.ID).Return(&purchase_order.Order{ID: order.ID, Status: purchase_order.StatusFulfilled}, nil)
	uow.orders.On("GetLines", mock.Anything, order.ID).Return([]purchase_order.Line{receivedLine}, nil)
	uow.orders.On("SetOrderStatus", mock.Anything, order.ID, purchase_order.StatusReceived).Return(nil).Once()
	uow.audit.On("Record", mock.Anything, mock.Anything).Return(nil)

	result, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, nil)

	require.NoError(t, err)
	require.Len(t, result.StatusTransitions, 1)
	assert.Equal(t, purchase_order.StatusReceived, result.StatusTransitions[0].To)
	require.Len(t, result.LineChanges, 1)
	uow.orders.AssertExpectations(t)
	uow.audit.AssertNumberOfCalls(t, "Record", 3)
	for _, call := range uow.audit.Calls {
		assert.Equal(t, string(ReasonOrderReceived), call.Arguments.Get(1).(AuditRecord).Reason)
	}
}

func TestUpdater_AuditReasonsFollowContributingOperations(t *testing.T) {
	uow := newMockUnitOfWork()
	item := newItem("60")
	order, line := orderWithLine(item.ID, purchase_order.StatusReceived, "10", "10")
	snap := snapshotOf(item)
	snap.AddOrder(order)
	movement := entity.StockMovement{
		ID: id.New(), ItemID: item.ID, Direction: entity.DirectionInbound, Quantity: qty("10"),
		Reason: string(ReasonOrderReceived), OrderID: idPtr(order.ID), OrderLineID: idPtr(line.ID),
	}
	snap.Movements[movement.ID] = movement

	edit := inbound(item.ID, "4")
	edit.Reason = ReasonManualAdjustment
	edit.SupersedesOperationID = idPtr(movement.ID)
	plan := NewCalculator().Calculate([]Operation{edit}, snap)
	require.True(t, plan.CanProceed)

	reopened := line
	reopened.ReceivedQuantity = qty("0")

	uow.items.On("SetQuantity", mock.Anything, item.ID, mock.Anything).Return(nil)
	uow.orders.On("SetReceivedQuantity", mock.Anything, line.ID, mock.Anything, (*time.Time)(nil)).Return(nil)
	uow.orders.On("GetOrder", mock.Anything, order.ID).Return(&purchase_order.Order{ID: order.ID, Status: purchase_order.StatusReceived}, nil)
	uow.orders.On("GetLines", mock.Anything, order.ID).Return([]purchase_order.Line{reopened}, nil)
	uow.orders.On("SetOrderStatus", mock.Anything, order.ID, purchase_order.StatusFulfilled).Return(nil).Once()

	reasons := make(map[string]string)
	uow.audit.On("Record", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		rec := args.Get(1).(AuditRecord)
		reasons[rec.EntityType] = rec.Reason
	}).Return(nil)

	_, err := NewUpdater(nil, clock).Commit(context.Background(), uow, plan, nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		AuditEntityItem:      string(ReasonManualAdjustment),
		AuditEntityOrderLine: reversalMarker,
		AuditEntityOrder:     reversalMarker,
	}, reasons)
}

func TestAuditReason(t *testing.T) {
	assert.Equal(t, "ORDER_RECEIVED", auditReason([]Reason{ReasonOrderReceived}, true))
	assert.Equal(t, "RETURN,MANUAL_ADJUSTMENT", auditReason([]Reason{ReasonReturn, ReasonManualAdjustment}, false))
	assert.Equal(t, reversalMarker, auditReason(nil, true))
	assert.Empty(t, auditReason(nil, false))
}

func TestFulfilledAt(t *testing.T) {
	earlier := fixedNow.Add(-time.Hour)

	got := fulfilledAt(LineChange{Before: qty("0"), After: qty("5")}, fixedNow)
	require.NotNil(t, got)
	assert.Equal(t, fixedNow, *got)

	got = fulfilledAt(LineChange{Before: qty("5"), After: qty("8"), FulfilledAt: &earlier}, fixedNow)
	assert.Equal(t, &earlier, got)

	assert.Nil(t, fulfilledAt(LineChange{Before: qty("5"), After: qty("0"), FulfilledAt: &earlier}, fixedNow))
}

func TestUpdater_AlertsOnDegradation(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	item := newItem("30")
	item.ReorderPoint = qptr("20")
	plan := NewCalculator().Calculate([]Operation{outbound(item.ID, "15")}, snapshotOf(item))

	uow.items.On("SetQuantity", mock.Anything, item.ID, mock.Anything).Return(nil)
	uow.audit.On("Record", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(a StockAlert) bool {
		return a.ItemID == item.ID && a.Level == LevelCritical && a.PreviousLevel == LevelOptimal
	})).Return(nil).Once()

	result, err := NewUpdater(notifier, clock).Commit(context.Background(), uow, plan, nil)

	require.NoError(t, err)
	assert.Len(t, result.Alerts, 1)
	notifier.AssertExpectations(t)
}

func TestUpdater_NotifyFailureDoesNotAbort(t *testing.T) {
	uow := newMockUnitOfWork()
	notifier := &mockNotifier{}
	item := newItem("30")
	item.ReorderPoint = qptr("20")
	plan := NewCalculator().Calculate([]Operation{outbound(item.ID, "15")}, snapshotOf(item))

	uow.items.On("SetQuantity", mock.Anything, item.ID, mock.Anything).Return(nil)
	uow.audit.On("Record", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("nats down"))

	result, err := NewUpdater(notifier, clock).Commit(context.Background(), uow, plan, nil)

	require.NoError(t, err)
	assert.Empty(t, result.Alerts)
	assert.True(t, HasIssue(result.Warnings, apperror.CodeInternal))
}
