package recur

import "time"

// Config holds the configuration for a Recur instance.
type Config struct {
	// Lookahead is how far past today the read path materializes.
	// The horizon passed to Materialize is today + Lookahead.
	Lookahead time.Duration `yaml:"lookahead"`

	// Concurrency is the number of rules advanced in parallel per call.
	Concurrency int `yaml:"concurrency"`

	// MaxConflictRetries bounds how often a rule is recomputed after losing
	// a checkpoint race before the call gives up on it.
	MaxConflictRetries int `yaml:"max_conflict_retries"`

	// RetryBackoff defines the pause before each conflict retry. The last
	// entry repeats when retries outnumber entries.
	RetryBackoff []time.Duration `yaml:"retry_backoff"`

	// MaxInstancesPerRule caps how many instances one call creates for a
	// single rule. Zero means no cap; the horizon still bounds the work.
	MaxInstancesPerRule int `yaml:"max_instances_per_rule"`

	// MaterializeTimeout bounds the synchronous materialization done by
	// ListEvents. Zero leaves only the caller's deadline.
	MaterializeTimeout time.Duration `yaml:"materialize_timeout"`
}

// DefaultRetryBackoff defines the default pauses between conflict retries.
var DefaultRetryBackoff = []time.Duration{
	10 * time.Millisecond,
	50 * time.Millisecond,
	200 * time.Millisecond,
}

// DefaultLookahead is two years.
const DefaultLookahead = 2 * 365 * 24 * time.Hour

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Lookahead:           DefaultLookahead,
		Concurrency:         4,
		MaxConflictRetries:  3,
		RetryBackoff:        DefaultRetryBackoff,
		MaxInstancesPerRule: 0,
		MaterializeTimeout:  10 * time.Second,
	}
}
