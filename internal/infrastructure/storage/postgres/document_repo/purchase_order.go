// Package document_repo provides the PostgreSQL purchase order repository.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
)

// Compile-time check that PurchaseOrderRepo implements stock.OrderRepository.
var _ stock.OrderRepository = (*PurchaseOrderRepo)(nil)

var (
	orderColumns = postgres.ExtractDBColumns[purchase_order.Order]()
	lineColumns  = postgres.ExtractDBColumns[purchase_order.Line]()
)

// PurchaseOrderRepo reads purchase orders and writes their receipt state.
type PurchaseOrderRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewPurchaseOrderRepo creates a new purchase order repository.
func NewPurchaseOrderRepo(txManager *postgres.TxManager) *PurchaseOrderRepo {
	return &PurchaseOrderRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetOrder returns the order header. Lines are loaded separately with GetLines.
func (r *PurchaseOrderRepo) GetOrder(ctx context.Context, orderID id.ID) (*purchase_order.Order, error) {
	q := r.builder.
		Select(orderColumns...).
		From(postgres.TableOrders).
		Where(squirrel.Eq{"id": orderID})

	var order purchase_order.Order
	if err := r.get(ctx, q, &order, "purchase_order", orderID); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderLine returns one order line.
func (r *PurchaseOrderRepo) GetOrderLine(ctx context.Context, lineID id.ID) (*purchase_order.Line, error) {
	q := r.builder.
		Select(lineColumns...).
		From(postgres.TableOrderLines).
		Where(squirrel.Eq{"id": lineID})

	var line purchase_order.Line
	if err := r.get(ctx, q, &line, "purchase_order_line", lineID); err != nil {
		return nil, err
	}
	return &line, nil
}

// GetLines returns all lines of an order ordered by id.
func (r *PurchaseOrderRepo) GetLines(ctx context.Context, orderID id.ID) ([]purchase_order.Line, error) {
	sql, args, err := r.linesQuery(orderID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var lines []purchase_order.Line
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	return lines, nil
}

func (r *PurchaseOrderRepo) linesQuery(orderID id.ID) squirrel.SelectBuilder {
	return r.builder.
		Select(lineColumns...).
		From(postgres.TableOrderLines).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("id")
}

// SetReceivedQuantity stores the received quantity and fulfilment time of a line.
func (r *PurchaseOrderRepo) SetReceivedQuantity(ctx context.Context, lineID id.ID, received types.Quantity, fulfilledAt *time.Time) error {
	return r.exec(ctx, r.receivedQuery(lineID, received, fulfilledAt), "purchase_order_line", lineID)
}

func (r *PurchaseOrderRepo) receivedQuery(lineID id.ID, received types.Quantity, fulfilledAt *time.Time) squirrel.UpdateBuilder {
	return r.builder.Update(postgres.TableOrderLines).
		Set("received_quantity", received).
		Set("fulfilled_at", fulfilledAt).
		Where(squirrel.Eq{"id": lineID})
}

// SetOrderStatus stores a new order status.
func (r *PurchaseOrderRepo) SetOrderStatus(ctx context.Context, orderID id.ID, status purchase_order.Status) error {
	return r.exec(ctx, r.statusQuery(orderID, status), "purchase_order", orderID)
}

func (r *PurchaseOrderRepo) statusQuery(orderID id.ID, status purchase_order.Status) squirrel.UpdateBuilder {
	return r.builder.Update(postgres.TableOrders).
		Set("status", status).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": orderID})
}

func (r *PurchaseOrderRepo) get(ctx context.Context, q squirrel.SelectBuilder, dst any, entity string, entityID id.ID) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build select: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, entityID.String())
		}
		return fmt.Errorf("get %s: %w", entity, err)
	}
	return nil
}

func (r *PurchaseOrderRepo) exec(ctx context.Context, q squirrel.UpdateBuilder, entity string, entityID id.ID) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, postgres.MapWriteError(err, entity, entityID.String()))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(entity, entityID.String())
	}
	return nil
}
