package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobwatch/internal/registry"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds what the REST handler needs.
type Deps struct {
	Registry *registry.Registry
	Token    string
	// ScanContext parents bulk scans started over HTTP; they outlive the
	// request. Cancelling it stops a running bulk scan before its next site.
	ScanContext context.Context
	// BulkScans tracks background bulk scans so the server can wait for the
	// in-flight site to be recorded before closing the store.
	BulkScans *sync.WaitGroup
	Logger    *slog.Logger
}

// NewHandler returns the jobwatch REST API. Everything except /health
// requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.ScanContext == nil {
		deps.ScanContext = context.Background()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BulkScans == nil {
		deps.BulkScans = &sync.WaitGroup{}
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(deps.Token))

		r.Get("/sites", handleListSites(deps))
		r.Post("/sites", handleAddSite(deps))
		r.Patch("/sites/{id}", handleRenameSite(deps))
		r.Delete("/sites/{id}", handleDeleteSite(deps))
		r.Post("/sites/{id}/move", handleMoveSite(deps))
		r.Post("/sites/{id}/scan", handleScanSite(deps))
		r.Get("/sites/{id}/result", handleGetResult(deps))
		r.Get("/sites/{id}/export", handleExport(deps))

		r.Get("/scan", handleBulkStatus(deps))
		r.Post("/scan", handleScanAll(deps))
	})

	return r
}

// bearerAuth rejects requests whose Authorization header does not carry
// token. An empty token rejects everything.
func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="jobwatch"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// refuseDuringBulk writes 409 and returns true while a bulk scan runs.
func refuseDuringBulk(w http.ResponseWriter, reg *registry.Registry) bool {
	if !reg.BulkScanning() {
		return false
	}
	httpError(w, http.StatusConflict, "conflict_error", "a bulk scan is running; try again when it finishes")
	return true
}
