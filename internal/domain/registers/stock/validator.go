package stock

import (
	"fmt"

	"stockflow/internal/core/apperror"
	"stockflow/internal/core/id"
	"stockflow/internal/core/types"
)

// Validator performs structural checks on a raw batch. It never touches storage.
type Validator struct {
	maxBatchSize int
}

// NewValidator creates a validator with the given batch ceiling.
func NewValidator(maxBatchSize int) *Validator {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultConfig().MaxBatchSize
	}
	return &Validator{maxBatchSize: maxBatchSize}
}

// Validate returns every structural issue found in batch. An empty result means the batch may be planned.
func (v *Validator) Validate(batch []Operation) []Issue {
	if len(batch) == 0 {
		return []Issue{newIssue(apperror.CodeEmptyBatch, "batch contains no operations")}
	}
	if len(batch) > v.maxBatchSize {
		return []Issue{
			newIssue(apperror.CodeBatchTooLarge,
				fmt.Sprintf("batch contains %d operations, limit is %d", len(batch), v.maxBatchSize)).
				with("size", len(batch)).
				with("limit", v.maxBatchSize),
		}
	}

	var issues []Issue
	for i, op := range batch {
		issues = append(issues, v.validateOperation(i, op)...)
	}
	return issues
}

func (v *Validator) validateOperation(index int, op Operation) []Issue {
	var issues []Issue

	if id.IsNil(op.ItemID) {
		issues = append(issues, newIssue(apperror.CodeValidation, "item id is required").at(index))
	}

	switch {
	case !op.Quantity.IsPositive():
		issues = append(issues, newIssue(apperror.CodeInvalidQuantity, "quantity must be positive").
			at(index).with("quantity", op.Quantity.String()))
	case op.Quantity.GreaterThan(types.MaxOperationQuantity):
		issues = append(issues, newIssue(apperror.CodeInvalidQuantity,
			fmt.Sprintf("quantity must not exceed %s", types.MaxOperationQuantity.String())).
			at(index).with("quantity", op.Quantity.String()))
	case !types.HasQuantityScale(op.Quantity):
		issues = append(issues, newIssue(apperror.CodeInvalidQuantity,
			fmt.Sprintf("quantity must have at most %d decimal places", types.QuantityScale)).
			at(index).with("quantity", op.Quantity.String()))
	}

	if !op.Direction.IsValid() {
		issues = append(issues, newIssue(apperror.CodeInvalidDirection,
			fmt.Sprintf("unknown direction %q", op.Direction)).at(index))
	}

	if op.Reason != "" && !op.Reason.IsValid() {
		issues = append(issues, newIssue(apperror.CodeUnknownReason,
			fmt.Sprintf("unknown reason %q", op.Reason)).at(index))
	}

	for i := range issues {
		if !id.IsNil(op.ItemID) {
			issues[i] = issues[i].forItem(op.ItemID)
		}
	}
	return issues
}
