// Package types provides common value types and utilities.
package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Quantity is an exact fixed-point stock quantity.
// Uses decimal.Decimal to avoid floating-point drift; stock quantities carry
// at most QuantityScale fractional digits (Postgres NUMERIC(12,2)).
type Quantity = decimal.Decimal

// QuantityScale is the number of fractional digits allowed on quantities.
const QuantityScale int32 = 2

// MaxOperationQuantity is the largest quantity a single operation may move.
var MaxOperationQuantity = decimal.NewFromInt(999_999)

// NewQuantity parses a quantity from its decimal string form.
// This is the preferred constructor for values coming from outside.
func NewQuantity(s string) (Quantity, error) {
	q, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse quantity %q: %w", s, err)
	}
	return q, nil
}

// MustQuantity parses a quantity and panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	q, err := NewQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

// QuantityFromInt builds a whole-unit quantity.
func QuantityFromInt(v int64) Quantity {
	return decimal.NewFromInt(v)
}

// ZeroQuantity returns zero quantity.
func ZeroQuantity() Quantity {
	return decimal.Zero
}

// HasQuantityScale reports whether q has no more than QuantityScale fractional digits.
func HasQuantityScale(q Quantity) bool {
	return q.Equal(q.Round(QuantityScale))
}
