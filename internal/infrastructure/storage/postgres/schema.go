package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

// Table names shared by the repositories and sinks.
const (
	TableItems           = "stock_items"
	TableOrders          = "purchase_orders"
	TableOrderLines      = "purchase_order_lines"
	TableActors          = "actors"
	TableMovements       = "stock_movements"
	TableExternalReturns = "external_returns"
	TableAudit           = "sys_audit"
	TableOutbox          = "sys_outbox"
	TableOutboxDLQ       = "sys_outbox_dlq"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates missing tables and indexes.
func EnsureSchema(ctx context.Context, pool *Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
