package stock

import (
	"fmt"
	"slices"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
)

// Calculator is the planning phase. It is pure: it reads a Snapshot and
// returns a Plan without mutating anything, so it is safe to retry or dry-run.
type Calculator struct{}

// NewCalculator creates a calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// itemAcc accumulates the contributions to one item.
type itemAcc struct {
	item          entity.StockItem
	contributions []Contribution
	net           types.Quantity
	errors        []Issue
	warnings      []Issue
	orders        map[id.ID]struct{}
}

func (a *itemAcc) add(c Contribution) {
	a.contributions = append(a.contributions, c)
	a.net = a.net.Add(c.Delta)
}

func (a *itemAcc) fail(issue Issue) {
	a.errors = append(a.errors, issue.forItem(a.item.ID))
}

func (a *itemAcc) warn(issue Issue) {
	a.warnings = append(a.warnings, issue.forItem(a.item.ID))
}

// lineAcc accumulates received-quantity deltas for one order line.
type lineAcc struct {
	line     purchase_order.Line
	delta    types.Quantity
	itemID   id.ID
	first    int
	reasons  []Reason
	reversal bool
}

// calculation holds the working state of one Calculate call.
type calculation struct {
	snap            *Snapshot
	plan            *Plan
	items           map[id.ID]*itemAcc
	lines           map[id.ID]*lineAcc
	inactiveActors  map[id.ID]int
	cancelledOrders map[id.ID]int
}

// Calculate plans batch against snap.
func (c *Calculator) Calculate(batch []Operation, snap *Snapshot) *Plan {
	calc := &calculation{
		snap:            snap,
		plan:            &Plan{TotalOperations: len(batch)},
		items:           make(map[id.ID]*itemAcc),
		lines:           make(map[id.ID]*lineAcc),
		inactiveActors:  make(map[id.ID]int),
		cancelledOrders: make(map[id.ID]int),
	}

	edits := calc.checkReferences(batch)
	if !calc.referencesResolved() {
		calc.plan.finalize()
		return calc.plan
	}

	for i, op := range batch {
		if op.SupersedesOperationID != nil && edits[*op.SupersedesOperationID] == i {
			calc.foldReversal(i, snap.Movements[*op.SupersedesOperationID])
		}
		calc.foldOperation(i, op)
	}

	calc.checkLines()
	calc.buildResults()
	calc.globalChecks()

	calc.plan.finalize()
	return calc.plan
}

// checkReferences reports duplicate edits and missing items or movements as global errors.
// It returns, per superseded movement, the index of the first operation editing it.
func (c *calculation) checkReferences(batch []Operation) map[id.ID]int {
	edits := make(map[id.ID]int)
	for i, op := range batch {
		sid := op.SupersedesOperationID
		if sid == nil {
			continue
		}
		if first, dup := edits[*sid]; dup {
			c.plan.GlobalErrors = append(c.plan.GlobalErrors,
				newIssue(apperror.CodeDuplicateEdit,
					fmt.Sprintf("movement %s is edited by operations %d and %d", *sid, first, i)).
					at(i).with("movementId", sid.String()).with("firstOperation", first))
			continue
		}
		edits[*sid] = i
		if _, ok := c.snap.Movements[*sid]; !ok {
			c.plan.GlobalErrors = append(c.plan.GlobalErrors,
				newIssue(apperror.CodeResourceNotFound,
					fmt.Sprintf("superseded movement %s not found", *sid)).
					at(i).with("entity", "movement").with("id", sid.String()))
		}
	}

	var itemIDs []id.ID
	for _, op := range batch {
		itemIDs = append(itemIDs, op.ItemID)
	}
	for _, m := range c.snap.Movements {
		itemIDs = append(itemIDs, m.ItemID)
	}
	for _, itemID := range id.SortedUnique(itemIDs) {
		if _, ok := c.snap.Items[itemID]; !ok {
			c.plan.GlobalErrors = append(c.plan.GlobalErrors,
				newIssue(apperror.CodeResourceNotFound,
					fmt.Sprintf("stock item %s not found", itemID)).
					forItem(itemID).with("entity", "stock_item").with("id", itemID.String()))
		}
	}
	return edits
}

// referencesResolved reports whether every item and superseded movement exists.
// Without them no meaningful per-item plan can be built.
func (c *calculation) referencesResolved() bool {
	for _, issue := range c.plan.GlobalErrors {
		if issue.Code == apperror.CodeResourceNotFound {
			return false
		}
	}
	return true
}

func (c *calculation) acc(itemID id.ID) *itemAcc {
	a, ok := c.items[itemID]
	if !ok {
		a = &itemAcc{
			item:   c.snap.Items[itemID],
			net:    types.ZeroQuantity(),
			orders: make(map[id.ID]struct{}),
		}
		c.items[itemID] = a
	}
	return a
}

// foldReversal adds the inverse of a superseded movement to the movement's own item.
// When an edit moves to another item, the two items receive independent deltas.
func (c *calculation) foldReversal(index int, m entity.StockMovement) {
	mid := m.ID
	dir := m.Direction.Opposite()
	c.acc(m.ItemID).add(Contribution{
		OperationIndex: index,
		Reversal:       true,
		MovementID:     &mid,
		Direction:      dir,
		Quantity:       m.Quantity,
		Delta:          dir.Signed(m.Quantity),
		Reason:         Reason(m.Reason),
	})

	if m.OrderLineID == nil {
		return
	}
	line, ok := c.snap.Lines[*m.OrderLineID]
	if !ok {
		c.acc(m.ItemID).fail(newIssue(apperror.CodeResourceNotFound,
			fmt.Sprintf("order line %s of superseded movement not found", *m.OrderLineID)).
			at(index).with("entity", "order_line").with("id", m.OrderLineID.String()))
		return
	}

	a := c.acc(m.ItemID)
	if order, ok := c.snap.Orders[line.OrderID]; ok {
		a.orders[order.ID] = struct{}{}
		if order.Status == purchase_order.StatusCancelled {
			if _, seen := c.cancelledOrders[order.ID]; !seen {
				c.cancelledOrders[order.ID] = index
			}
			a.fail(newIssue(apperror.CodeOrderNotReceivable,
				fmt.Sprintf("purchase order %s is cancelled; its receipts cannot be reversed", order.Number)).
				at(index).with("orderId", order.ID.String()).with("status", order.Status.String()))
			return
		}
	}
	c.lineDelta(line, m.ItemID, index, m.SignedQuantity().Neg(), "")
}

func (c *calculation) foldOperation(index int, op Operation) {
	a := c.acc(op.ItemID)
	actorPresent := op.ActorID != nil

	reason, _ := ResolveReason(op.Direction, actorPresent, a.item.PendingExternalReturn, op.Reason)
	a.add(Contribution{
		OperationIndex: index,
		Direction:      op.Direction,
		Quantity:       op.Quantity,
		Delta:          op.Delta(),
		Reason:         reason,
	})

	if issue := CheckReasonDirection(reason, op.Direction, actorPresent); issue != nil {
		a.fail(issue.at(index))
	}

	if actorPresent {
		actor, ok := c.snap.Actors[*op.ActorID]
		switch {
		case !ok:
			a.fail(newIssue(apperror.CodeResourceNotFound, fmt.Sprintf("actor %s not found", *op.ActorID)).
				at(index).with("entity", "actor").with("id", op.ActorID.String()))
		case !actor.IsActive:
			a.fail(newIssue(apperror.CodeInactiveResource, fmt.Sprintf("actor %s is inactive", actor.Name)).
				at(index).with("entity", "actor").with("id", actor.ID.String()))
			if _, seen := c.inactiveActors[actor.ID]; !seen {
				c.inactiveActors[actor.ID] = index
			}
		}
	}

	if op.HasOrderLink() {
		c.foldOrderLink(index, op, reason, a)
	}
}

func (c *calculation) foldOrderLink(index int, op Operation, reason Reason, a *itemAcc) {
	orderID := op.OrderID
	var line *purchase_order.Line
	if op.OrderLineID != nil {
		if l, ok := c.snap.Lines[*op.OrderLineID]; ok {
			line = &l
			if orderID == nil {
				orderID = &l.OrderID
			}
		}
	}

	var order *purchase_order.Order
	if orderID != nil {
		if o, ok := c.snap.Orders[*orderID]; ok {
			order = &o
			a.orders[o.ID] = struct{}{}
			if o.Status == purchase_order.StatusCancelled {
				if _, seen := c.cancelledOrders[o.ID]; !seen {
					c.cancelledOrders[o.ID] = index
				}
			}
		}
	}

	if reason != ReasonOrderReceived {
		a.warn(newIssue(apperror.CodeOrderLinkIgnored,
			fmt.Sprintf("order linkage ignored for reason %s", reason)).at(index))
		return
	}

	switch {
	case orderID == nil && op.OrderLineID != nil:
		a.fail(newIssue(apperror.CodeResourceNotFound, fmt.Sprintf("order line %s not found", *op.OrderLineID)).
			at(index).with("entity", "order_line").with("id", op.OrderLineID.String()))
		return
	case order == nil:
		a.fail(newIssue(apperror.CodeResourceNotFound, fmt.Sprintf("purchase order %s not found", *orderID)).
			at(index).with("entity", "purchase_order").with("id", orderID.String()))
		return
	}

	if !order.Status.CanReceive() {
		a.fail(newIssue(apperror.CodeOrderNotReceivable,
			fmt.Sprintf("purchase order %s in status %s cannot receive goods", order.Number, order.Status)).
			at(index).with("orderId", order.ID.String()).with("status", order.Status.String()))
		return
	}

	if line == nil {
		if op.OrderLineID != nil {
			a.fail(newIssue(apperror.CodeResourceNotFound, fmt.Sprintf("order line %s not found", *op.OrderLineID)).
				at(index).with("entity", "order_line").with("id", op.OrderLineID.String()))
			return
		}
		resolved, ok := uniqueLineForItem(order, op.ItemID)
		if !ok {
			a.fail(newIssue(apperror.CodeOrderConstraintViolation,
				fmt.Sprintf("purchase order %s has no single line for the item", order.Number)).
				at(index).with("orderId", order.ID.String()))
			return
		}
		line = &resolved
	}

	if line.OrderID != order.ID {
		a.fail(newIssue(apperror.CodeOrderConstraintViolation, "order line does not belong to the order").
			at(index).with("lineId", line.ID.String()).with("orderId", order.ID.String()))
		return
	}
	if line.ItemID != op.ItemID {
		a.fail(newIssue(apperror.CodeOrderConstraintViolation, "order line is for a different item").
			at(index).with("lineId", line.ID.String()).with("lineItemId", line.ItemID.String()))
		return
	}

	c.lineDelta(*line, op.ItemID, index, op.Delta(), reason)
}

func uniqueLineForItem(order *purchase_order.Order, itemID id.ID) (purchase_order.Line, bool) {
	var found []purchase_order.Line
	for _, l := range order.Lines {
		if l.ItemID == itemID {
			found = append(found, l)
		}
	}
	if len(found) != 1 {
		return purchase_order.Line{}, false
	}
	return found[0], true
}

// lineDelta folds delta into the line. An empty reason marks a reversal.
func (c *calculation) lineDelta(line purchase_order.Line, itemID id.ID, index int, delta types.Quantity, reason Reason) {
	la, ok := c.lines[line.ID]
	if !ok {
		la = &lineAcc{line: line, delta: types.ZeroQuantity(), itemID: itemID, first: index}
		c.lines[line.ID] = la
	}
	la.delta = la.delta.Add(delta)
	switch {
	case reason == "":
		la.reversal = true
	case !slices.Contains(la.reasons, reason):
		la.reasons = append(la.reasons, reason)
	}
}

// checkLines enforces 0 <= received <= ordered on the aggregate delta of every line.
func (c *calculation) checkLines() {
	ids := make([]id.ID, 0, len(c.lines))
	for lid := range c.lines {
		ids = append(ids, lid)
	}
	slices.SortFunc(ids, id.Compare)

	for _, lid := range ids {
		la := c.lines[lid]
		after := la.line.ReceivedQuantity.Add(la.delta)
		if !la.line.WithinBounds(after) {
			c.acc(la.itemID).fail(newIssue(apperror.CodeOrderConstraintViolation,
				fmt.Sprintf("received quantity %s would leave [0, %s]", after.String(), la.line.OrderedQuantity.String())).
				at(la.first).
				with("lineId", lid.String()).
				with("ordered", la.line.OrderedQuantity.String()).
				with("received", la.line.ReceivedQuantity.String()).
				with("remaining", la.line.Remaining().String()).
				with("resulting", after.String()))
			continue
		}
		if la.delta.IsZero() {
			continue
		}
		c.plan.LineChanges = append(c.plan.LineChanges, LineChange{
			OrderID:         la.line.OrderID,
			LineID:          lid,
			ItemID:          la.line.ItemID,
			OrderedQuantity: la.line.OrderedQuantity,
			Before:          la.line.ReceivedQuantity,
			After:           after,
			Delta:           la.delta,
			FulfilledAt:     la.line.FulfilledAt,
			Reasons:         la.reasons,
			Reversal:        la.reversal,
		})
	}
}

// buildResults validates item constraints and emits results in ascending item order.
func (c *calculation) buildResults() {
	ids := make([]id.ID, 0, len(c.items))
	for itemID := range c.items {
		ids = append(ids, itemID)
	}
	slices.SortFunc(ids, id.Compare)

	for _, itemID := range ids {
		a := c.items[itemID]
		item := a.item
		final := item.Quantity.Add(a.net)

		if !item.IsActive {
			a.fail(newIssue(apperror.CodeInactiveResource, fmt.Sprintf("stock item %s is inactive", item.Name)).
				with("entity", "stock_item").with("id", item.ID.String()))
		}
		if final.IsNegative() {
			a.fail(newIssue(apperror.CodeInsufficientStock,
				fmt.Sprintf("stock of %s would go negative: %s available, net change %s",
					item.Name, item.Quantity.String(), a.net.String())).
				with("available", item.Quantity.String()).
				with("requested", a.net.Neg().String()).
				with("resulting", final.String()))
		}
		if item.MaxQuantity != nil && final.GreaterThan(*item.MaxQuantity) {
			a.fail(newIssue(apperror.CodeStockLimitExceeded,
				fmt.Sprintf("stock of %s would exceed its maximum %s", item.Name, item.MaxQuantity.String())).
				with("max", item.MaxQuantity.String()).
				with("resulting", final.String()))
		}

		if len(a.orders) > 1 {
			orders := make([]string, 0, len(a.orders))
			for oid := range a.orders {
				orders = append(orders, oid.String())
			}
			slices.Sort(orders)
			a.warn(newIssue(apperror.CodeOrderContention,
				fmt.Sprintf("item is touched by operations of %d different orders", len(a.orders))).
				with("orders", orders))
		}

		openAfter := item.OpenOrderLines + c.openLinesDelta(itemID) > 0
		level := ClassifyLevel(final, item.ReorderPoint, item.MaxQuantity, openAfter)
		switch level {
		case LevelLow:
			a.warn(newIssue(apperror.CodeLowStock, fmt.Sprintf("%s is below its reorder point; goods are on order", item.Name)))
		case LevelCritical:
			a.warn(newIssue(apperror.CodeCriticalStock, fmt.Sprintf("%s is below its reorder point with nothing on order", item.Name)))
		}

		c.plan.Results = append(c.plan.Results, CalculationResult{
			ItemID:          item.ID,
			ItemName:        item.Name,
			CurrentQuantity: item.Quantity,
			FinalQuantity:   final,
			NetChange:       a.net,
			Valid:           len(a.errors) == 0,
			Errors:          a.errors,
			Warnings:        a.warnings,
			StockLevel:      level,
			LevelBefore:     ClassifyLevel(item.Quantity, item.ReorderPoint, item.MaxQuantity, item.HasOpenOrders()),
			HasOpenOrders:   openAfter,
			Operations:      a.contributions,
			item:            item,
		})
		c.plan.AffectedItems = append(c.plan.AffectedItems, item.ID)
	}
}

// openLinesDelta is the change in the number of open order lines of itemID once
// the planned line deltas are applied. Receipts can close a line; reversals can reopen one.
func (c *calculation) openLinesDelta(itemID id.ID) int {
	n := 0
	for _, la := range c.lines {
		if la.line.ItemID != itemID || la.delta.IsZero() {
			continue
		}
		order, ok := c.snap.Orders[la.line.OrderID]
		if !ok {
			continue
		}
		after := la.line
		after.ReceivedQuantity = after.ReceivedQuantity.Add(la.delta)
		if la.line.OpenUnder(order.Status) {
			n--
		}
		// Any order that is not cancelled becomes open again once a line is short.
		if order.Status != purchase_order.StatusCancelled && !after.IsFullyReceived() {
			n++
		}
	}
	return n
}

// globalChecks adds one global error per inactive actor and per cancelled order referenced by the batch.
func (c *calculation) globalChecks() {
	for _, aid := range sortedKeys(c.inactiveActors) {
		c.plan.GlobalErrors = append(c.plan.GlobalErrors,
			newIssue(apperror.CodeInactiveResource, fmt.Sprintf("actor %s is inactive", aid)).
				at(c.inactiveActors[aid]).with("entity", "actor").with("id", aid.String()))
	}
	for _, oid := range sortedKeys(c.cancelledOrders) {
		c.plan.GlobalErrors = append(c.plan.GlobalErrors,
			newIssue(apperror.CodeOrderNotReceivable, fmt.Sprintf("purchase order %s is cancelled", oid)).
				at(c.cancelledOrders[oid]).with("orderId", oid.String()))
	}
}

func sortedKeys(m map[id.ID]int) []id.ID {
	out := make([]id.ID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.SortFunc(out, id.Compare)
	return out
}
