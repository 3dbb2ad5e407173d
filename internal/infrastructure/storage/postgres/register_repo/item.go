// Package register_repo provides PostgreSQL implementations of the stock item and movement repositories.
// Repositories resolve their querier from the context, so they join whatever
// transaction the TxManager has open.
package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
	"stockflow/internal/domain/documents/purchase_order"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
)

// Compile-time check that ItemRepo implements stock.ItemRepository.
var _ stock.ItemRepository = (*ItemRepo)(nil)

// openOrderStatuses are the order statuses whose unreceived lines count as open.
var openOrderStatuses = []string{
	string(purchase_order.StatusCreated),
	string(purchase_order.StatusFulfilled),
	string(purchase_order.StatusPartiallyReceived),
}

const pendingReturnStatus = "PENDING"

// ItemRepo implements stock.ItemRepository.
type ItemRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewItemRepo creates a new stock item repository.
func NewItemRepo(txManager *postgres.TxManager) *ItemRepo {
	return &ItemRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetManyByIDs returns the existing items among ids in ascending id order.
// Inside a read-write transaction the rows are locked FOR UPDATE in that order,
// which serialises concurrent batches on shared items without deadlocks.
func (r *ItemRepo) GetManyByIDs(ctx context.Context, ids []id.ID) ([]entity.StockItem, error) {
	ids = id.SortedUnique(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	sql, args, err := r.selectQuery(ids, r.shouldLock(ctx)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var items []entity.StockItem
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &items, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock items: %w", err)
	}
	return items, nil
}

// shouldLock reports whether row locks can be taken: read-only transactions reject FOR UPDATE.
func (r *ItemRepo) shouldLock(ctx context.Context) bool {
	tx := r.txManager.GetTx(ctx)
	return tx != nil && !tx.ReadOnly()
}

func (r *ItemRepo) selectQuery(ids []id.ID, lock bool) squirrel.SelectBuilder {
	openOrders := r.builder.
		Select("COUNT(*)").
		From(postgres.TableOrderLines + " l").
		Join(postgres.TableOrders + " o ON o.id = l.order_id").
		Where("l.item_id = i.id").
		Where(squirrel.Eq{"o.status": openOrderStatuses}).
		Where("l.received_quantity < l.ordered_quantity")

	pendingReturns := r.builder.
		Select("1").
		From(postgres.TableExternalReturns + " er").
		Where("er.item_id = i.id").
		Where(squirrel.Eq{"er.status": pendingReturnStatus})

	q := r.builder.
		Select("i.id", "i.name", "i.quantity", "i.reorder_point", "i.max_quantity", "i.is_active").
		Column(squirrel.Alias(squirrel.Expr("?", openOrders), "open_order_lines")).
		Column(squirrel.Alias(squirrel.Expr("EXISTS(?)", pendingReturns), "pending_external_return")).
		From(postgres.TableItems + " i").
		Where(squirrel.Eq{"i.id": ids}).
		OrderBy("i.id")

	if lock {
		q = q.Suffix("FOR UPDATE OF i")
	}
	return q
}

// SetQuantity overwrites the stored quantity of an item.
func (r *ItemRepo) SetQuantity(ctx context.Context, itemID id.ID, quantity types.Quantity) error {
	sql, args, err := r.updateQuery(itemID, quantity).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update stock quantity: %w", postgres.MapWriteError(err, postgres.TableItems, itemID.String()))
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(postgres.TableItems, itemID.String())
	}
	return nil
}

func (r *ItemRepo) updateQuery(itemID id.ID, quantity types.Quantity) squirrel.UpdateBuilder {
	return r.builder.Update(postgres.TableItems).
		Set("quantity", quantity).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": itemID})
}
