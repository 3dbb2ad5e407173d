package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
)

func TestEngineCalculate_InvalidBatchSkipsStorage(t *testing.T) {
	uow := newMockUnitOfWork()
	engine := NewEngine(DefaultConfig(), nil)

	plan, err := engine.Calculate(context.Background(), uow, []Operation{outbound(id.New(), "0")})

	require.NoError(t, err)
	assert.False(t, plan.CanProceed)
	assert.Empty(t, plan.Results)
	assert.True(t, HasIssue(plan.GlobalErrors, apperror.CodeInvalidQuantity))
	uow.items.AssertNotCalled(t, "GetManyByIDs")
	uow.movements.AssertNotCalled(t, "GetMovement")
}

func TestEngineCalculate_ConfiguredBatchCeiling(t *testing.T) {
	uow := newMockUnitOfWork()
	engine := NewEngine(Config{MaxBatchSize: 1}, nil)
	itemID := id.New()

	plan, err := engine.Calculate(context.Background(), uow, []Operation{inbound(itemID, "1"), inbound(itemID, "1")})

	require.NoError(t, err)
	require.Len(t, plan.GlobalErrors, 1)
	assert.Equal(t, apperror.CodeBatchTooLarge, plan.GlobalErrors[0].Code)
	assert.Equal(t, ErrorTypeConstraint, engine.Analyze(plan, nil).Type)
}
