package stock

import (
	"errors"
	"fmt"
)

// Failure is returned by Engine.Apply when a batch is not committed.
type Failure struct {
	Analysis *ErrorAnalysis
	Plan     *Plan
	Err      error
}

// Error implements error.
func (f *Failure) Error() string {
	if f.Analysis != nil {
		return fmt.Sprintf("stock batch failed: %s %s: %s", f.Analysis.Type, f.Analysis.Code, f.Analysis.RootCause)
	}
	return fmt.Sprintf("stock batch failed: %v", f.Err)
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure extracts a Failure from err.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
