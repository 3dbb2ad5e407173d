package stock

import (
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
)

// Reason is the business reason of a stock movement. The set is closed.
type Reason string

const (
	ReasonOrderReceived            Reason = "ORDER_RECEIVED"
	ReasonProductionUsage          Reason = "PRODUCTION_USAGE"
	ReasonReturn                   Reason = "RETURN"
	ReasonBorrow                   Reason = "BORROW"
	ReasonExternalWithdrawal       Reason = "EXTERNAL_WITHDRAWAL"
	ReasonExternalWithdrawalReturn Reason = "EXTERNAL_WITHDRAWAL_RETURN"
	ReasonManualAdjustment         Reason = "MANUAL_ADJUSTMENT"
)

// IsValid reports whether r is a recognized reason.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonOrderReceived, ReasonProductionUsage, ReasonReturn, ReasonBorrow,
		ReasonExternalWithdrawal, ReasonExternalWithdrawalReturn, ReasonManualAdjustment:
		return true
	}
	return false
}

// String returns the string representation of Reason.
func (r Reason) String() string {
	return string(r)
}

// ResolveReason derives the effective reason of a movement.
//
// Priority: a recognized explicit reason wins; otherwise OUTBOUND is
// production usage; INBOUND is an external-withdrawal return when the item has
// one pending, a return when an actor is attached, and an order receipt
// otherwise. Returns false when direction is unknown and no explicit reason applies.
func ResolveReason(direction entity.Direction, actorPresent, pendingExternalReturn bool, explicit Reason) (Reason, bool) {
	if explicit.IsValid() {
		return explicit, true
	}

	switch direction {
	case entity.DirectionOutbound:
		return ReasonProductionUsage, true
	case entity.DirectionInbound:
		switch {
		case pendingExternalReturn:
			return ReasonExternalWithdrawalReturn, true
		case actorPresent:
			return ReasonReturn, true
		default:
			return ReasonOrderReceived, true
		}
	}
	return "", false
}

// requiredDirection lists reasons that only make sense in one direction.
// MANUAL_ADJUSTMENT is allowed both ways.
var requiredDirection = map[Reason]entity.Direction{
	ReasonOrderReceived:            entity.DirectionInbound,
	ReasonReturn:                   entity.DirectionInbound,
	ReasonExternalWithdrawalReturn: entity.DirectionInbound,
	ReasonProductionUsage:          entity.DirectionOutbound,
	ReasonBorrow:                   entity.DirectionOutbound,
	ReasonExternalWithdrawal:       entity.DirectionOutbound,
}

// CheckReasonDirection verifies that a reason is consistent with the movement direction
// and actor presence. Returns nil when consistent.
func CheckReasonDirection(reason Reason, direction entity.Direction, actorPresent bool) *Issue {
	if want, ok := requiredDirection[reason]; ok && want != direction {
		issue := newIssue(apperror.CodeReasonDirectionMismatch,
			fmt.Sprintf("reason %s requires %s direction", reason, want)).
			with("reason", string(reason)).
			with("direction", string(direction))
		return &issue
	}
	if reason == ReasonBorrow && !actorPresent {
		issue := newIssue(apperror.CodeReasonDirectionMismatch, "reason BORROW requires an actor").
			with("reason", string(reason))
		return &issue
	}
	return nil
}
