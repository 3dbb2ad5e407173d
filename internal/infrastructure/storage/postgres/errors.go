package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"stockflow/internal/core/apperror"
)

// SQLSTATEs mapped to application error codes.
const (
	stateSerializationFailure  = "40001"
	stateDeadlockDetected      = "40P01"
	stateInsufficientPrivilege = "42501"
)

// MapWriteError turns driver errors of a row write into AppErrors callers can branch on.
// Serialization failures and deadlocks become CONCURRENT_MODIFICATION; a missing
// privilege becomes FORBIDDEN. Anything else is returned unchanged.
func MapWriteError(err error, entity string, entityID any) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case stateSerializationFailure, stateDeadlockDetected:
		return apperror.NewConcurrentModification(entity, entityID).WithCause(err)
	case stateInsufficientPrivilege:
		return apperror.NewForbidden(fmt.Sprintf("no privilege to write %s", entity)).WithCause(err)
	}
	return err
}
