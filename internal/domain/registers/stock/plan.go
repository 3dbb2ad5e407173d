package stock

import (
	"time"

	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// StockLevel classifies a resulting quantity. Never persisted.
type StockLevel string

const (
	LevelNegative    StockLevel = "NEGATIVE_STOCK"
	LevelCritical    StockLevel = "CRITICAL"
	LevelLow         StockLevel = "LOW"
	LevelOptimal     StockLevel = "OPTIMAL"
	LevelOverstocked StockLevel = "OVERSTOCKED"
)

// rank orders levels from worst to best; OVERSTOCKED ranks above OPTIMAL.
func (l StockLevel) rank() int {
	switch l {
	case LevelNegative:
		return 0
	case LevelCritical:
		return 1
	case LevelLow:
		return 2
	case LevelOptimal:
		return 3
	case LevelOverstocked:
		return 4
	}
	return -1
}

// IsAlerting reports whether the level should raise a stock alert.
func (l StockLevel) IsAlerting() bool {
	return l == LevelLow || l == LevelCritical
}

// DegradedFrom reports whether moving from prev to l is a degradation into an alerting level.
func (l StockLevel) DegradedFrom(prev StockLevel) bool {
	return l.IsAlerting() && l.rank() < prev.rank()
}

// ClassifyLevel computes the stock level of quantity q.
// Below the reorder point an item is LOW when goods are already on order and CRITICAL otherwise.
func ClassifyLevel(q types.Quantity, reorderPoint, maxQuantity *types.Quantity, hasOpenOrders bool) StockLevel {
	switch {
	case q.IsNegative():
		return LevelNegative
	case maxQuantity != nil && q.GreaterThan(*maxQuantity):
		return LevelOverstocked
	case reorderPoint != nil && q.LessThan(*reorderPoint):
		if hasOpenOrders {
			return LevelLow
		}
		return LevelCritical
	default:
		return LevelOptimal
	}
}

// Contribution is one signed delta folded into an item's net change.
type Contribution struct {
	OperationIndex int              `json:"operationIndex"`
	Reversal       bool             `json:"reversal"`
	MovementID     *id.ID           `json:"movementId,omitempty"`
	Direction      entity.Direction `json:"direction"`
	Quantity       types.Quantity   `json:"quantity"`
	Delta          types.Quantity   `json:"delta"`
	Reason         Reason           `json:"reason,omitempty"`
}

// CalculationResult is the planned outcome for one item.
type CalculationResult struct {
	ItemID          id.ID          `json:"itemId"`
	ItemName        string         `json:"itemName"`
	CurrentQuantity types.Quantity `json:"currentQuantity"`
	FinalQuantity   types.Quantity `json:"finalQuantity"`
	NetChange       types.Quantity `json:"netChange"`
	Valid           bool           `json:"valid"`
	Errors          []Issue        `json:"errors,omitempty"`
	Warnings        []Issue        `json:"warnings,omitempty"`
	StockLevel      StockLevel     `json:"stockLevel"`
	LevelBefore     StockLevel     `json:"levelBefore"`
	// HasOpenOrders is evaluated after the planned line changes.
	HasOpenOrders   bool           `json:"hasOpenOrders"`
	Operations      []Contribution `json:"operations"`

	item entity.StockItem
}

// Reasons returns the distinct reasons of the contributing operations, in batch order.
func (r *CalculationResult) Reasons() []Reason {
	var out []Reason
	seen := make(map[Reason]struct{})
	for _, c := range r.Operations {
		if c.Reversal || c.Reason == "" {
			continue
		}
		if _, ok := seen[c.Reason]; ok {
			continue
		}
		seen[c.Reason] = struct{}{}
		out = append(out, c.Reason)
	}
	return out
}

// HasReversal reports whether any contribution undoes a superseded movement.
func (r *CalculationResult) HasReversal() bool {
	for _, c := range r.Operations {
		if c.Reversal {
			return true
		}
	}
	return false
}

// LineChange is a planned write of an order line's received quantity.
type LineChange struct {
	OrderID         id.ID          `json:"orderId"`
	LineID          id.ID          `json:"lineId"`
	ItemID          id.ID          `json:"itemId"`
	OrderedQuantity types.Quantity `json:"orderedQuantity"`
	Before          types.Quantity `json:"before"`
	After           types.Quantity `json:"after"`
	Delta           types.Quantity `json:"delta"`
	FulfilledAt     *time.Time     `json:"fulfilledAt,omitempty"`

	// Reasons of the operations booked against the line; Reversal is set when a superseded receipt was undone.
	Reasons  []Reason `json:"reasons,omitempty"`
	Reversal bool     `json:"reversal,omitempty"`
}

// Plan is the read-only outcome of validating a batch against a snapshot.
// A plan is consumed once by the Updater or the Analyzer and never persisted.
type Plan struct {
	Results         []CalculationResult `json:"results"`
	GlobalErrors    []Issue             `json:"globalErrors,omitempty"`
	GlobalWarnings  []Issue             `json:"globalWarnings,omitempty"`
	IsValid         bool                `json:"isValid"`
	CanProceed      bool                `json:"canProceed"`
	AffectedItems   []id.ID             `json:"affectedItems"`
	TotalOperations int                 `json:"totalOperations"`
	LineChanges     []LineChange        `json:"lineChanges,omitempty"`
}

// Rejected builds the plan for a batch that failed before planning.
func Rejected(totalOperations int, issues []Issue) *Plan {
	return &Plan{
		GlobalErrors:    issues,
		TotalOperations: totalOperations,
	}
}

// Result returns the result for itemID.
func (p *Plan) Result(itemID id.ID) (*CalculationResult, bool) {
	for i := range p.Results {
		if p.Results[i].ItemID == itemID {
			return &p.Results[i], true
		}
	}
	return nil, false
}

// Errors returns global errors followed by item errors, in item order.
func (p *Plan) Errors() []Issue {
	out := append([]Issue(nil), p.GlobalErrors...)
	for _, r := range p.Results {
		out = append(out, r.Errors...)
	}
	return out
}

// Warnings returns global warnings followed by item warnings.
func (p *Plan) Warnings() []Issue {
	out := append([]Issue(nil), p.GlobalWarnings...)
	for _, r := range p.Results {
		out = append(out, r.Warnings...)
	}
	return out
}

// InvalidItems counts results that carry errors.
func (p *Plan) InvalidItems() int {
	n := 0
	for _, r := range p.Results {
		if !r.Valid {
			n++
		}
	}
	return n
}

// TouchedOrders returns the orders whose lines the plan writes, ascending.
func (p *Plan) TouchedOrders() []id.ID {
	ids := make([]id.ID, 0, len(p.LineChanges))
	for _, lc := range p.LineChanges {
		ids = append(ids, lc.OrderID)
	}
	return id.SortedUnique(ids)
}

func (p *Plan) finalize() {
	p.IsValid = true
	for _, r := range p.Results {
		if !r.Valid {
			p.IsValid = false
			break
		}
	}
	if len(p.Results) == 0 && len(p.GlobalErrors) > 0 {
		p.IsValid = false
	}
	p.CanProceed = p.IsValid && len(p.GlobalErrors) == 0
}
