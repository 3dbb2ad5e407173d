// Package alerting decides which stock alerts leave the process.
// A Filter evaluates a CEL expression against each alert; FilteredNotifier
// applies it in front of any stock.Notifier.
package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"stockflow/internal/domain/registers/stock"
	"stockflow/pkg/logger"
)

// Filter is a compiled alert predicate. The zero value and a nil *Filter allow every alert.
//
// Variables available to the expression:
//
//	level, previous_level, item_id, item_name  string
//	quantity, reorder_point                    double (reorder_point is 0 when unset)
//	has_reorder_point, has_open_orders         bool
//
// Example: level == "CRITICAL" || (level == "LOW" && !has_open_orders)
type Filter struct {
	expr    string
	program cel.Program
}

// NewFilter compiles expr. An empty expression yields a filter that allows everything.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &Filter{}, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("level", cel.StringType),
		cel.Variable("previous_level", cel.StringType),
		cel.Variable("item_id", cel.StringType),
		cel.Variable("item_name", cel.StringType),
		cel.Variable("quantity", cel.DoubleType),
		cel.Variable("reorder_point", cel.DoubleType),
		cel.Variable("has_reorder_point", cel.BoolType),
		cel.Variable("has_open_orders", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compile alert filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("alert filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build alert filter program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Allow reports whether alert passes the filter.
func (f *Filter) Allow(alert stock.StockAlert) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	out, _, err := f.program.Eval(activation(alert))
	if err != nil {
		return false, fmt.Errorf("evaluate alert filter: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("alert filter returned %T, want bool", out.Value())
	}
	return allowed, nil
}

func activation(alert stock.StockAlert) map[string]any {
	vars := map[string]any{
		"level":             string(alert.Level),
		"previous_level":    string(alert.PreviousLevel),
		"item_id":           alert.ItemID.String(),
		"item_name":         alert.ItemName,
		"quantity":          alert.Quantity.InexactFloat64(),
		"reorder_point":     0.0,
		"has_reorder_point": alert.ReorderPoint != nil,
		"has_open_orders":   alert.HasOpenOrders,
	}
	if alert.ReorderPoint != nil {
		vars["reorder_point"] = alert.ReorderPoint.InexactFloat64()
	}
	return vars
}

// FilteredNotifier forwards only the alerts its Filter allows.
type FilteredNotifier struct {
	next   stock.Notifier
	filter *Filter
}

// Compile-time check that FilteredNotifier implements stock.Notifier.
var _ stock.Notifier = (*FilteredNotifier)(nil)

// NewFilteredNotifier wraps next with filter.
func NewFilteredNotifier(next stock.Notifier, filter *Filter) *FilteredNotifier {
	return &FilteredNotifier{next: next, filter: filter}
}

// Notify implements stock.Notifier.
func (n *FilteredNotifier) Notify(ctx context.Context, alert stock.StockAlert) error {
	allowed, err := n.filter.Allow(alert)
	if err != nil {
		return err
	}
	if !allowed {
		logger.Debug(ctx, "alert filtered out",
			"item_id", alert.ItemID,
			"level", alert.Level,
			"filter", n.filter.String(),
		)
		return nil
	}
	return n.next.Notify(ctx, alert)
}
