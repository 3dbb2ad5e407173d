// Package auth_repo provides the PostgreSQL actor repository.
package auth_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/entity"
	"stockflow/internal/core/id"
	"stockflow/internal/domain/registers/stock"
	"stockflow/internal/infrastructure/storage/postgres"
)

// Compile-time check that ActorRepo implements stock.ActorRepository.
var _ stock.ActorRepository = (*ActorRepo)(nil)

// ActorRepo implements stock.ActorRepository.
type ActorRepo struct {
	txManager *postgres.TxManager
}

// NewActorRepo creates a new actor repository.
func NewActorRepo(txManager *postgres.TxManager) *ActorRepo {
	return &ActorRepo{txManager: txManager}
}

// GetActor retrieves an actor by ID.
func (r *ActorRepo) GetActor(ctx context.Context, actorID id.ID) (*entity.Actor, error) {
	q := r.txManager.GetQuerier(ctx)

	query := `
		SELECT id, name, is_active
		FROM actors
		WHERE id = $1
	`

	var actor entity.Actor
	err := q.QueryRow(ctx, query, actorID).Scan(&actor.ID, &actor.Name, &actor.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("actor", actorID.String())
		}
		return nil, fmt.Errorf("get actor: %w", err)
	}

	return &actor, nil
}
