package register_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
)

// Compile-time check that MovementRepo implements stock.MovementRepository.
var _ stock.MovementRepository = (*MovementRepo)(nil)

var movementColumns = postgres.ExtractDBColumns[entity.StockMovement]()

// MovementRepo reads the movement ledger.
type MovementRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement ledger repository.
func NewMovementRepo(txManager *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetMovement returns a ledger movement by id.
func (r *MovementRepo) GetMovement(ctx context.Context, movementID id.ID) (*entity.StockMovement, error) {
	sql, args, err := r.selectQuery(movementID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var m entity.StockMovement
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(postgres.TableMovements, movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}
	return &m, nil
}

func (r *MovementRepo) selectQuery(movementID id.ID) squirrel.SelectBuilder {
	return r.builder.
		Select(movementColumns...).
		From(postgres.TableMovements).
		Where(squirrel.Eq{"id": movementID})
}
