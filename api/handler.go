// Package api provides the admin HTTP API for recurring events.
//
// Listing an organization's events is the read path that triggers lazy
// materialization; every other route manages rules and instances directly.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/recur"
	"github.com/xraph/recur/ratelimit"
	"github.com/xraph/recur/recurrence"
	"github.com/xraph/recur/signature"
)

// Handler is the root HTTP handler for the recur admin API.
type Handler struct {
	recur      *recur.Recur
	logger     *slog.Logger
	router     chi.Router
	limiter    *ratelimit.Limiter
	feedSecret string
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMaterializeLimit allows each organization perMinute explicit
// materialize calls. Zero, the default, means unlimited.
func WithMaterializeLimit(perMinute int) HandlerOption {
	return func(h *Handler) {
		h.limiter = ratelimit.New(perMinute)
	}
}

// WithFeedSecret requires a signed token on calendar feed requests.
func WithFeedSecret(secret string) HandlerOption {
	return func(h *Handler) {
		h.feedSecret = secret
	}
}

// NewHandler creates a new admin API handler.
func NewHandler(r *recur.Recur, logger *slog.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		recur:   r,
		logger:  logger,
		router:  chi.NewRouter(),
		limiter: ratelimit.New(0),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.router.Use(h.panicRecovery)
	h.router.Use(chimiddleware.RequestID)
	h.router.Use(h.logging)

	h.router.Get("/health", h.health)

	h.router.Route("/orgs/{orgID}", func(r chi.Router) {
		r.Get("/events", h.listEvents)
		r.Get("/rules", h.listRules)
		r.With(h.rateLimited).Post("/materialize", h.materialize)
		r.With(h.feedAuth).Get("/calendar.ics", h.calendar)
	})

	h.router.Route("/rules", func(r chi.Router) {
		r.Post("/", h.createRule)
		r.Get("/{id}", h.getRule)
		r.Delete("/{id}", h.deleteRule)
	})

	h.router.Route("/events", func(r chi.Router) {
		r.Get("/{id}", h.getEvent)
		r.Patch("/{id}", h.updateEvent)
		r.Delete("/{id}", h.deleteEvent)
	})
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.recur.Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimited rejects an organization's requests once its bucket is empty.
func (h *Handler) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := chi.URLParam(r, "orgID")
		if !h.limiter.Allow(orgID) {
			retry := h.limiter.RetryAfter(orgID)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "materialize rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// feedAuth checks the token query parameter when a feed secret is set.
func (h *Handler) feedAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.feedSecret != "" &&
			!signature.VerifyFeedToken(h.feedSecret, chi.URLParam(r, "orgID"), queryParam(r, "token")) {
			writeError(w, http.StatusForbidden, "invalid feed token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps recur sentinel errors onto HTTP statuses. Anything
// unexpected is logged and answered with a generic 500.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *recurrence.ValidationError
	switch {
	case errors.Is(err, recur.ErrRuleNotFound):
		writeError(w, http.StatusNotFound, "rule not found")
	case errors.Is(err, recur.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, recur.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a non-negative query parameter as int or a default value.
func queryInt(r *http.Request, key string, defaultVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// queryDate parses a YYYY-MM-DD query parameter. It returns nil when absent.
func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := queryParam(r, key)
	if v == "" {
		return nil, nil //nolint:nilnil // absent parameter
	}
	t, err := recurrence.ParseDate(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
