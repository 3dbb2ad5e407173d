package stock

import (
	"fmt"

	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Operation is one requested quantity change against one stock item.
// Operations are immutable values built by the caller; the engine never persists them.
type Operation struct {
	ItemID    id.ID            `json:"itemId"`
	Quantity  types.Quantity   `json:"quantity"`
	Direction entity.Direction `json:"direction"`

	// Reason is optional; when empty it is derived by ResolveReason.
	Reason Reason `json:"reason,omitempty"`

	OrderID     *id.ID `json:"orderId,omitempty"`
	OrderLineID *id.ID `json:"orderLineId,omitempty"`
	ActorID     *id.ID `json:"actorId,omitempty"`

	// SupersedesOperationID references a ledger movement this operation edits.
	// The movement is reversed before this operation is applied.
	SupersedesOperationID *id.ID `json:"supersedesOperationId,omitempty"`
}

// Delta returns the signed quantity change this operation requests.
func (o Operation) Delta() types.Quantity {
	return o.Direction.Signed(o.Quantity)
}

// HasOrderLink reports whether the operation references an order or order line.
func (o Operation) HasOrderLink() bool {
	return o.OrderID != nil || o.OrderLineID != nil
}

// String implements fmt.Stringer for log output.
func (o Operation) String() string {
	return fmt.Sprintf("%s %s item=%s", o.Direction, o.Quantity.String(), o.ItemID)
}

// Issue is a validation error or warning attached to a plan.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// ItemID is nil for batch-level issues.
	ItemID *id.ID `json:"itemId,omitempty"`

	// OperationIndex is the position in the batch, or -1 when the issue is not tied to one operation.
	OperationIndex int `json:"operationIndex"`

	Details map[string]any `json:"details,omitempty"`
}

func newIssue(code, message string) Issue {
	return Issue{Code: code, Message: message, OperationIndex: -1}
}

func (i Issue) forItem(itemID id.ID) Issue {
	i.ItemID = &itemID
	return i
}

func (i Issue) at(index int) Issue {
	i.OperationIndex = index
	return i
}

func (i Issue) with(key string, value any) Issue {
	details := make(map[string]any, len(i.Details)+1)
	for k, v := range i.Details {
		details[k] = v
	}
	details[key] = value
	i.Details = details
	return i
}

// String formats the issue for logs.
func (i Issue) String() string {
	if i.OperationIndex >= 0 {
		return fmt.Sprintf("%s: %s (operation %d)", i.Code, i.Message, i.OperationIndex)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// HasIssue reports whether any issue in the list carries code.
func HasIssue(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}
