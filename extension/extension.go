package extension

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/recur"
	"github.com/xraph/recur/api"
	"github.com/xraph/recur/store"
)

// Extension mounts recur into a host HTTP application.
type Extension struct {
	config Config
	opts   []recur.Option
	store  store.Store
	logger *slog.Logger

	recur   *recur.Recur
	handler http.Handler
}

// New creates a new recur extension.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register migrates the store unless disabled, then builds the recur
// instance and its API handler. It must run before Handler or Recur.
func (e *Extension) Register(ctx context.Context) error {
	if e.store == nil {
		return recur.ErrNoStore
	}

	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return fmt.Errorf("recur extension: migrate: %w", err)
		}
	}

	opts := append(e.config.ToRecurOptions(),
		recur.WithStore(e.store),
		recur.WithLogger(e.logger),
	)
	opts = append(opts, e.opts...)

	r, err := recur.New(opts...)
	if err != nil {
		return fmt.Errorf("recur extension: %w", err)
	}
	e.recur = r

	var h http.Handler = api.NewHandler(r, e.logger, e.config.ToHandlerOptions()...)
	if prefix := e.BasePath(); prefix != "" {
		h = http.StripPrefix(prefix, h)
	}
	e.handler = h

	e.logger.Info("recur extension registered",
		"base_path", e.BasePath(),
		"lookahead", r.Config().Lookahead,
		"concurrency", r.Config().Concurrency,
	)
	return nil
}

// Handler returns the admin API mounted under BasePath.
func (e *Extension) Handler() http.Handler { return e.handler }

// Recur returns the registered instance, or nil before Register.
func (e *Extension) Recur() *recur.Recur { return e.recur }

// BasePath returns the configured URL prefix without a trailing slash.
func (e *Extension) BasePath() string {
	return strings.TrimRight(e.config.BasePath, "/")
}

// Health reports store connectivity.
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return recur.ErrNoStore
	}
	return e.store.Ping(ctx)
}

// Stop closes the store.
func (e *Extension) Stop() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}
