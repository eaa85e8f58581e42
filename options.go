package recur

import (
	"log/slog"
	"time"

	"github.com/xraph/recur/observability"
	"github.com/xraph/recur/recurrence"
	"github.com/xraph/recur/store"
)

// Recur is the root recurring-event service.
type Recur struct {
	config       Config
	store        store.Store
	validator    *recurrence.Validator
	materializer *Materializer
	clock        func() time.Time
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	logger       *slog.Logger
}

// Option configures a Recur instance.
type Option func(*Recur) error

// New creates a new Recur with the given options.
func New(opts ...Option) (*Recur, error) {
	r := &Recur{
		config: DefaultConfig(),
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	r.wireServices()
	return r, nil
}

// WithStore sets the persistence backend for the Recur instance.
func WithStore(s store.Store) Option {
	return func(r *Recur) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Recur instance.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recur) error {
		r.logger = logger
		return nil
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(r *Recur) error {
		r.config = cfg
		return nil
	}
}

// WithLookahead sets how far past today the read path materializes.
func WithLookahead(d time.Duration) Option {
	return func(r *Recur) error {
		r.config.Lookahead = d
		return nil
	}
}

// WithConcurrency sets the number of rules advanced in parallel.
func WithConcurrency(n int) Option {
	return func(r *Recur) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithMaxConflictRetries sets how often a rule is retried after a lost race.
func WithMaxConflictRetries(n int) Option {
	return func(r *Recur) error {
		r.config.MaxConflictRetries = n
		return nil
	}
}

// WithRetryBackoff sets the pauses between conflict retries.
func WithRetryBackoff(schedule []time.Duration) Option {
	return func(r *Recur) error {
		r.config.RetryBackoff = schedule
		return nil
	}
}

// WithMaxInstancesPerRule caps the instances created per rule per call.
func WithMaxInstancesPerRule(n int) Option {
	return func(r *Recur) error {
		r.config.MaxInstancesPerRule = n
		return nil
	}
}

// WithMaterializeTimeout bounds the materialization done by ListEvents.
func WithMaterializeTimeout(d time.Duration) Option {
	return func(r *Recur) error {
		r.config.MaterializeTimeout = d
		return nil
	}
}

// WithClock sets the clock the read path derives today from.
func WithClock(clock func() time.Time) Option {
	return func(r *Recur) error {
		r.clock = clock
		return nil
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Recur) error {
		r.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry tracing.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Recur) error {
		r.tracer = t
		return nil
	}
}
