// Package loadgen drives a running server with synthetic observation batches
// and checks that every batch is fully accounted for.
package loadgen

import "time"

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Batches      int           // Number of batches to submit
	BatchSize    int           // Records per batch
	Workers      int           // Concurrent submitters
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Delay between status polls
	// DuplicateRate and InvalidRate are fractions of records that repeat an
	// earlier record or carry an out-of-range latitude.
	DuplicateRate float64
	InvalidRate   float64
	Seed          uint64
}

// DefaultConfig returns settings suitable for a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:9080",
		Batches:       20,
		BatchSize:     50,
		Workers:       4,
		Timeout:       10 * time.Second,
		PollInterval:  200 * time.Millisecond,
		DuplicateRate: 0.1,
		InvalidRate:   0.05,
		Seed:          42,
	}
}

// Stats summarizes a load run.
type Stats struct {
	BatchesSubmitted int
	BatchesRefused   int
	BatchesFinished  int
	BatchesFailed    int
	Records          int
	Created          int
	Duplicates       int
	Rejected         int
	Mismatches       int
	Duration         time.Duration
}
