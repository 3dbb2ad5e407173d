package postgres

import (
	"context"

	"stockflow/internal/domain/registers/stock"
)

// Compile-time check that Store implements stock.Runner.
var _ stock.Runner = (*Store)(nil)

// Repositories are the tx-aware repositories a Store hands out.
// Each one resolves its querier from the context, so the same values serve every unit of work.
type Repositories struct {
	Items     stock.ItemRepository
	Orders    stock.OrderRepository
	Actors    stock.ActorRepository
	Movements stock.MovementRepository
	Audit     stock.AuditSink
}

// Store runs stock units of work inside Postgres transactions.
type Store struct {
	txManager *TxManager
	repos     Repositories
}

// NewStore creates a Store bound to txManager.
func NewStore(txManager *TxManager, repos Repositories) *Store {
	return &Store{txManager: txManager, repos: repos}
}

// Run executes fn in a read-write transaction with the manager's default options.
func (s *Store) Run(ctx context.Context, fn func(ctx context.Context, uow stock.UnitOfWork) error) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx, unitOfWork{s.repos})
	})
}

// ReadOnly executes fn in a read-only transaction; any write fails in the database.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context, uow stock.UnitOfWork) error) error {
	return s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		return fn(ctx, unitOfWork{s.repos})
	})
}

type unitOfWork struct {
	repos Repositories
}

func (u unitOfWork) Items() stock.ItemRepository         { return u.repos.Items }
func (u unitOfWork) Orders() stock.OrderRepository       { return u.repos.Orders }
func (u unitOfWork) Actors() stock.ActorRepository       { return u.repos.Actors }
func (u unitOfWork) Movements() stock.MovementRepository { return u.repos.Movements }
func (u unitOfWork) Audit() stock.AuditSink              { return u.repos.Audit }
