package extension_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xraph/recur"
	"github.com/xraph/recur/extension"
	"github.com/xraph/recur/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_YAMLInline(t *testing.T) {
	cfg := extension.DefaultConfig()
	err := yaml.Unmarshal([]byte(`
base_path: /api/recur
lookahead: 720h
concurrency: 8
max_conflict_retries: 5
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "/api/recur", cfg.BasePath)
	assert.Equal(t, 720*time.Hour, cfg.Lookahead)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 5, cfg.MaxConflictRetries)
	// Untouched fields keep their defaults.
	assert.Equal(t, recur.DefaultRetryBackoff, cfg.RetryBackoff)
}

func TestConfig_ToRecurOptions(t *testing.T) {
	assert.Empty(t, extension.Config{}.ToRecurOptions())

	cfg := extension.Config{Config: recur.Config{Lookahead: time.Hour, Concurrency: 2}}
	r, err := recur.New(append(cfg.ToRecurOptions(), recur.WithStore(memory.New()))...)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, r.Config().Lookahead)
	assert.Equal(t, 2, r.Config().Concurrency)
	assert.Equal(t, recur.DefaultConfig().MaxConflictRetries, r.Config().MaxConflictRetries)
}

func TestRegister_RequiresStore(t *testing.T) {
	ext := extension.New(extension.WithLogger(discardLogger()))
	assert.ErrorIs(t, ext.Register(context.Background()), recur.ErrNoStore)
	assert.ErrorIs(t, ext.Health(context.Background()), recur.ErrNoStore)
}

func TestRegister_MountsHandler(t *testing.T) {
	ctx := context.Background()
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithLogger(discardLogger()),
		extension.WithBasePath("/recur/"),
		extension.WithRecurOption(recur.WithConcurrency(1)),
	)
	require.NoError(t, ext.Register(ctx))
	require.NotNil(t, ext.Recur())
	assert.Equal(t, "/recur", ext.BasePath())
	assert.Equal(t, 1, ext.Recur().Config().Concurrency)

	srv := httptest.NewServer(ext.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/recur/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStop_ClosesStore(t *testing.T) {
	ctx := context.Background()
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithLogger(discardLogger()),
		extension.WithDisableMigrate(),
	)
	require.NoError(t, ext.Register(ctx))
	require.NoError(t, ext.Health(ctx))

	require.NoError(t, ext.Stop())
	assert.ErrorIs(t, ext.Health(ctx), recur.ErrStoreClosed)
}

func TestConfig_ToHandlerOptions(t *testing.T) {
	assert.Empty(t, extension.DefaultConfig().ToHandlerOptions())

	cfg := extension.Config{MaterializeRateLimit: 10, FeedSecret: "fsec_x"}
	assert.Len(t, cfg.ToHandlerOptions(), 2)
}

func TestRegister_FeedSecret(t *testing.T) {
	cfg := extension.DefaultConfig()
	cfg.BasePath = ""
	cfg.FeedSecret = "fsec_x"

	ext := extension.New(
		extension.WithConfig(cfg),
		extension.WithStore(memory.New()),
		extension.WithLogger(discardLogger()),
	)
	require.NoError(t, ext.Register(context.Background()))

	srv := httptest.NewServer(ext.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/orgs/org_1/calendar.ics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
