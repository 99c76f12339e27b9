// Package api exposes the identity store to operators over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/uaproxy/internal/identity"
	"github.com/kalambet/uaproxy/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryLister returns recent identity changes, newest first.
type HistoryLister interface {
	History(limit int) ([]storage.IdentityChange, error)
}

type ControlDeps struct {
	Store   *identity.Store
	Pool    *identity.Pool // nil uses identity.DefaultPool
	History HistoryLister  // optional; nil disables /history
	Token   string         // optional bearer token
	Logger  *slog.Logger
}

type setRequest struct {
	UA *json.RawMessage `json:"ua"`
}

type historyEntry struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// NewControlHandler returns the control API router.
func NewControlHandler(deps ControlDeps) http.Handler {
	if deps.Pool == nil {
		deps.Pool = identity.DefaultPool()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/set_ua", handleSetUA(deps))
		r.Get("/get_ua", handleGetUA(deps))
		r.Post("/randomize_ua", handleRandomizeUA(deps))
		r.Get("/history", handleHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleSetUA(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		ua, ok := parseSetRequest(r)
		if !ok || strings.TrimSpace(ua) == "" {
			jsonError(w, http.StatusBadRequest, "Missing UA")
			return
		}

		if err := deps.Store.Set(ua); err != nil {
			writeSetError(w, deps.Logger, err)
			return
		}

		deps.Logger.Info("identity updated", "source", "http", "user_agent", ua)
		writeJSON(w, http.StatusOK, map[string]string{"status": "UA updated"})
	}
}

// parseSetRequest extracts the "ua" string field. Invalid JSON, a missing
// field and a non-string value all report false.
func parseSetRequest(r *http.Request) (string, bool) {
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UA == nil {
		return "", false
	}
	var ua string
	if err := json.Unmarshal(*req.UA, &ua); err != nil {
		return "", false
	}
	return ua, true
}

func handleGetUA(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"user_agent": deps.Store.Get()})
	}
}

func handleRandomizeUA(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ua, err := identity.Randomize(deps.Store, deps.Pool)
		if err != nil {
			writeSetError(w, deps.Logger, err)
			return
		}
		deps.Logger.Info("identity updated", "source", "randomize", "user_agent", ua)
		writeJSON(w, http.StatusOK, map[string]string{"status": "UA updated", "user_agent": ua})
	}
}

func handleHistory(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.History == nil {
			jsonError(w, http.StatusNotFound, "History not available")
			return
		}

		limit := defaultHistoryLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				jsonError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		changes, err := deps.History.History(limit)
		if err != nil {
			deps.Logger.Error("listing identity history", "error", err)
			jsonError(w, http.StatusInternalServerError, "Failed to read history")
			return
		}

		entries := make([]historyEntry, len(changes))
		for i, c := range changes {
			entries[i] = historyEntry{ID: c.ID, UserAgent: c.Value, CreatedAt: c.CreatedAt}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func writeSetError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidInput):
		jsonError(w, http.StatusBadRequest, "Invalid UA")
	case errors.Is(err, identity.ErrDurableWrite):
		logger.Error("identity update not persisted", "error", err)
		jsonError(w, http.StatusInternalServerError, "Failed to persist UA")
	default:
		logger.Error("identity update failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "Internal error")
	}
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("control request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
