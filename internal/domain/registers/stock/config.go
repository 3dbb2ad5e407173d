package stock

import "time"

// Config holds engine tunables.
type Config struct {
	// MaxBatchSize bounds the operations in one batch. The whole batch runs in
	// one transaction, so this caps lock count and transaction duration.
	MaxBatchSize int

	// Severity escalation thresholds used by the Analyzer.
	SeverityOperationThreshold int
	SeverityItemThreshold      int

	// Now is the clock used for fulfilled timestamps, audit records and alerts.
	Now func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:               1000,
		SeverityOperationThreshold: 100,
		SeverityItemThreshold:      50,
		Now:                        time.Now,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.SeverityOperationThreshold <= 0 {
		c.SeverityOperationThreshold = def.SeverityOperationThreshold
	}
	if c.SeverityItemThreshold <= 0 {
		c.SeverityItemThreshold = def.SeverityItemThreshold
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}
