package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"stockflow/internal/core/apperror"
)

func TestMapWriteError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, apperror.CodeConcurrentModification},
		{"deadlock behind wrap", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), apperror.CodeConcurrentModification},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, apperror.CodeForbidden},
		{"check violation unchanged", &pgconn.PgError{Code: "23514"}, ""},
		{"plain error unchanged", errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapWriteError(tt.err, TableItems, "42")

			if tt.wantCode == "" {
				assert.Same(t, tt.err, got)
				return
			}
			assert.True(t, apperror.HasCode(got, tt.wantCode))
			var pgErr *pgconn.PgError
			assert.True(t, errors.As(got, &pgErr), "driver error stays in the chain")
		})
	}
}
