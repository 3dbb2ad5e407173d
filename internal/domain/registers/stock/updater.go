package stock

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
	"stockflow/pkg/logger"
)

// Audit entity types.
const (
	AuditEntityItem      = "stock_item"
	AuditEntityOrderLine = "purchase_order_line"
	AuditEntityOrder     = "purchase_order"
)

// ItemChange is an executed item quantity write.
type ItemChange struct {
	ItemID id.ID          `json:"itemId"`
	Before types.Quantity `json:"before"`
	After  types.Quantity `json:"after"`
	Delta  types.Quantity `json:"delta"`
	Level  StockLevel     `json:"level"`
}

// StatusTransition is an executed order status change.
type StatusTransition struct {
	OrderID id.ID                 `json:"orderId"`
	From    purchase_order.Status `json:"from"`
	To      purchase_order.Status `json:"to"`
}

// CommitResult is returned after a successful commit.
type CommitResult struct {
	ItemChanges       []ItemChange       `json:"itemChanges"`
	LineChanges       []LineChange       `json:"lineChanges"`
	StatusTransitions []StatusTransition `json:"statusTransitions"`
	Alerts            []StockAlert       `json:"alerts,omitempty"`
	Warnings          []Issue            `json:"warnings,omitempty"`
	Elapsed           time.Duration      `json:"elapsed"`
}

// Updater is the commit phase. All writes go through the caller's UnitOfWork;
// any write error is returned so the transaction boundary rolls everything back.
type Updater struct {
	notifier Notifier
	now      func() time.Time
}

// NewUpdater creates an updater. A nil notifier drops alerts.
func NewUpdater(notifier Notifier, now func() time.Time) *Updater {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Updater{notifier: notifier, now: now}
}

// Commit applies plan. It refuses plans that cannot proceed without touching storage.
func (u *Updater) Commit(ctx context.Context, uow UnitOfWork, plan *Plan, actorID *id.ID) (*CommitResult, error) {
	start := u.now()

	if plan == nil {
		return nil, apperror.NewPlanNotExecutable(0, 0)
	}
	if !plan.CanProceed {
		return nil, apperror.NewPlanNotExecutable(len(plan.GlobalErrors), plan.InvalidItems())
	}

	if actorID != nil {
		actor, err := uow.Actors().GetActor(ctx, *actorID)
		if err != nil {
			return nil, fmt.Errorf("get committing actor: %w", err)
		}
		if !actor.IsActive {
			return nil, apperror.NewInactiveResource("actor", actorID.String())
		}
	}

	result := &CommitResult{
		Warnings: plan.Warnings(),
	}

	if err := u.writeItems(ctx, uow, plan, actorID, result); err != nil {
		return nil, err
	}
	if err := u.writeLines(ctx, uow, plan, actorID, result); err != nil {
		return nil, err
	}
	if err := u.updateOrderStatuses(ctx, uow, plan, actorID, result); err != nil {
		return nil, err
	}

	u.emitAlerts(ctx, plan, result)

	result.Elapsed = u.now().Sub(start)

	logger.Info(ctx, "stock batch committed",
		"items", len(result.ItemChanges),
		"lines", len(result.LineChanges),
		"status_transitions", len(result.StatusTransitions),
		"alerts", len(result.Alerts),
		"elapsed", result.Elapsed,
	)

	return result, nil
}

func (u *Updater) writeItems(ctx context.Context, uow UnitOfWork, plan *Plan, actorID *id.ID, result *CommitResult) error {
	for _, r := range plan.Results {
		if r.NetChange.IsZero() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := uow.Items().SetQuantity(ctx, r.ItemID, r.FinalQuantity); err != nil {
			return fmt.Errorf("set quantity of item %s: %w", r.ItemID, err)
		}

		result.ItemChanges = append(result.ItemChanges, ItemChange{
			ItemID: r.ItemID,
			Before: r.CurrentQuantity,
			After:  r.FinalQuantity,
			Delta:  r.NetChange,
			Level:  r.StockLevel,
		})

		u.audit(ctx, uow, result, AuditRecord{
			EntityType: AuditEntityItem,
			EntityID:   r.ItemID,
			Field:      "quantity",
			OldValue:   r.CurrentQuantity.String(),
			NewValue:   r.FinalQuantity.String(),
			Reason:     auditReason(r.Reasons(), r.HasReversal()),
			ActorID:    actorID,
		})
	}
	return nil
}

func (u *Updater) writeLines(ctx context.Context, uow UnitOfWork, plan *Plan, actorID *id.ID, result *CommitResult) error {
	for _, lc := range plan.LineChanges {
		if err := ctx.Err(); err != nil {
			return err
		}

		lc.FulfilledAt = fulfilledAt(lc, u.now())
		if err := uow.Orders().SetReceivedQuantity(ctx, lc.LineID, lc.After, lc.FulfilledAt); err != nil {
			return fmt.Errorf("set received quantity of line %s: %w", lc.LineID, err)
		}
		result.LineChanges = append(result.LineChanges, lc)

		u.audit(ctx, uow, result, AuditRecord{
			EntityType: AuditEntityOrderLine,
			EntityID:   lc.LineID,
			Field:      "received_quantity",
			OldValue:   lc.Before.String(),
			NewValue:   lc.After.String(),
			Reason:     auditReason(lc.Reasons, lc.Reversal),
			ActorID:    actorID,
		})
	}
	return nil
}

// fulfilledAt is set when a line first receives goods and cleared when it returns to zero.
func fulfilledAt(lc LineChange, now time.Time) *time.Time {
	switch {
	case !lc.After.IsPositive():
		return nil
	case !lc.Before.IsPositive():
		return &now
	default:
		return lc.FulfilledAt
	}
}

func (u *Updater) updateOrderStatuses(ctx context.Context, uow UnitOfWork, plan *Plan, actorID *id.ID, result *CommitResult) error {
	reasons := make(map[id.ID][]Reason)
	reversal := make(map[id.ID]bool)
	for _, lc := range plan.LineChanges {
		for _, r := range lc.Reasons {
			if !slices.Contains(reasons[lc.OrderID], r) {
				reasons[lc.OrderID] = append(reasons[lc.OrderID], r)
			}
		}
		reversal[lc.OrderID] = reversal[lc.OrderID] || lc.Reversal
	}

	for _, orderID := range plan.TouchedOrders() {
		if err := ctx.Err(); err != nil {
			return err
		}

		order, err := uow.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order %s: %w", orderID, err)
		}
		lines, err := uow.Orders().GetLines(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get lines of order %s: %w", orderID, err)
		}

		next := purchase_order.NextStatus(order.Status, lines)
		if next == order.Status {
			continue
		}
		if err := uow.Orders().SetOrderStatus(ctx, orderID, next); err != nil {
			return fmt.Errorf("set status of order %s: %w", orderID, err)
		}

		result.StatusTransitions = append(result.StatusTransitions, StatusTransition{
			OrderID: orderID,
			From:    order.Status,
			To:      next,
		})

		u.audit(ctx, uow, result, AuditRecord{
			EntityType: AuditEntityOrder,
			EntityID:   orderID,
			Field:      "status",
			OldValue:   order.Status.String(),
			NewValue:   next.String(),
			Reason:     auditReason(reasons[orderID], reversal[orderID]),
			ActorID:    actorID,
		})
	}
	return nil
}

// audit records one mutation; failures become warnings.
func (u *Updater) audit(ctx context.Context, uow UnitOfWork, result *CommitResult, rec AuditRecord) {
	rec.At = u.now()
	if err := uow.Audit().Record(ctx, rec); err != nil {
		logger.Warn(ctx, "failed to record audit entry",
			"entity_type", rec.EntityType,
			"entity_id", rec.EntityID,
			"field", rec.Field,
			"error", err,
		)
		result.Warnings = append(result.Warnings,
			newIssue(apperror.CodeInternal, "audit entry could not be recorded").
				forItem(rec.EntityID).
				with("entityType", rec.EntityType).
				with("field", rec.Field))
	}
}

// emitAlerts notifies about items whose level degraded to LOW or CRITICAL.
func (u *Updater) emitAlerts(ctx context.Context, plan *Plan, result *CommitResult) {
	for _, r := range plan.Results {
		if r.NetChange.IsZero() || !r.StockLevel.DegradedFrom(r.LevelBefore) {
			continue
		}
		alert := StockAlert{
			ItemID:        r.ItemID,
			ItemName:      r.ItemName,
			Level:         r.StockLevel,
			PreviousLevel: r.LevelBefore,
			Quantity:      r.FinalQuantity,
			ReorderPoint:  r.item.ReorderPoint,
			HasOpenOrders: r.HasOpenOrders,
			RaisedAt:      u.now(),
		}
		if err := u.notifier.Notify(ctx, alert); err != nil {
			logger.Warn(ctx, "failed to send stock alert", "item_id", r.ItemID, "level", r.StockLevel, "error", err)
			result.Warnings = append(result.Warnings,
				newIssue(apperror.CodeInternal, "stock alert could not be sent").forItem(r.ItemID))
			continue
		}
		result.Alerts = append(result.Alerts, alert)
	}
}

// reversalMarker is the audit reason of a change caused only by undoing superseded movements.
const reversalMarker = "REVERSAL"

func auditReason(reasons []Reason, reversal bool) string {
	if len(reasons) == 0 && reversal {
		return reversalMarker
	}
	return joinReasons(reasons)
}

func joinReasons(reasons []Reason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}
