package extension

import (
	"github.com/xraph/recur"
	"github.com/xraph/recur/api"
)

// Config holds configuration for mounting recur inside a host application.
// It can be built programmatically through ExtOption functions or decoded
// from YAML.
type Config struct {
	// Config embeds the core recur configuration.
	recur.Config `json:",inline" yaml:",inline"`

	// BasePath is the URL prefix for every recur route (default: "/recur").
	BasePath string `json:"base_path" yaml:"base_path"`

	// DisableMigrate skips the store migration during Register.
	DisableMigrate bool `json:"disable_migrate" yaml:"disable_migrate"`

	// MaterializeRateLimit caps explicit materialize calls per organization
	// per minute. Zero means unlimited.
	MaterializeRateLimit int `json:"materialize_rate_limit" yaml:"materialize_rate_limit"`

	// FeedSecret, when set, requires a signed token on calendar feeds.
	FeedSecret string `json:"feed_secret" yaml:"feed_secret"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:   recur.DefaultConfig(),
		BasePath: "/recur",
	}
}

// ToRecurOptions converts the embedded Config into recur.Option values.
// Zero fields are left to recur's own defaults.
func (c Config) ToRecurOptions() []recur.Option {
	var opts []recur.Option

	if c.Lookahead > 0 {
		opts = append(opts, recur.WithLookahead(c.Lookahead))
	}
	if c.Concurrency > 0 {
		opts = append(opts, recur.WithConcurrency(c.Concurrency))
	}
	if c.MaxConflictRetries > 0 {
		opts = append(opts, recur.WithMaxConflictRetries(c.MaxConflictRetries))
	}
	if len(c.RetryBackoff) > 0 {
		opts = append(opts, recur.WithRetryBackoff(c.RetryBackoff))
	}
	if c.MaxInstancesPerRule > 0 {
		opts = append(opts, recur.WithMaxInstancesPerRule(c.MaxInstancesPerRule))
	}
	if c.MaterializeTimeout > 0 {
		opts = append(opts, recur.WithMaterializeTimeout(c.MaterializeTimeout))
	}

	return opts
}

// ToHandlerOptions converts the API settings into api.HandlerOption values.
func (c Config) ToHandlerOptions() []api.HandlerOption {
	var opts []api.HandlerOption

	if c.MaterializeRateLimit > 0 {
		opts = append(opts, api.WithMaterializeLimit(c.MaterializeRateLimit))
	}
	if c.FeedSecret != "" {
		opts = append(opts, api.WithFeedSecret(c.FeedSecret))
	}

	return opts
}
