package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobwatch/internal/export"
	"github.com/kalambet/jobwatch/internal/registry"
	"github.com/kalambet/jobwatch/internal/scan"
	"github.com/kalambet/jobwatch/internal/sites"
)

// SiteView is the wire form of a watched site.
type SiteView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	URL         string       `json:"url"`
	Keywords    string       `json:"keywords"`
	Domain      string       `json:"domain"`
	Status      sites.Status `json:"status"`
	LastChecked *time.Time   `json:"last_checked"`
	HasResult   bool         `json:"has_result"`
}

// NewSiteView converts an entry to its wire form.
func NewSiteView(e sites.Entry) SiteView {
	return SiteView{
		ID:          e.ID,
		Name:        e.Name,
		URL:         e.URL,
		Keywords:    e.Keywords,
		Domain:      e.Domain(),
		Status:      e.Status,
		LastChecked: e.LastChecked,
		HasResult:   e.HasResult(),
	}
}

func siteViews(entries []sites.Entry) []SiteView {
	out := make([]SiteView, len(entries))
	for i, e := range entries {
		out[i] = NewSiteView(e)
	}
	return out
}

type addSiteRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Keywords string `json:"keywords"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type moveRequest struct {
	Direction string `json:"direction"`
	Index     *int   `json:"index"`
}

// ScanResponse is returned by POST /sites/{id}/scan.
type ScanResponse struct {
	Site   SiteView         `json:"site"`
	Result sites.ScanResult `json:"result"`
}

func handleListSites(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, siteViews(deps.Registry.List()))
	}
}

func handleAddSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req addSiteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if refuseDuringBulk(w, deps.Registry) {
			return
		}

		e, err := deps.Registry.Add(r.Context(), req.Name, req.URL, req.Keywords)
		if errors.Is(err, registry.ErrValidation) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add site: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, NewSiteView(e))
	}
}

func handleRenameSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		var req renameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if refuseDuringBulk(w, deps.Registry) {
			return
		}
		if _, ok := deps.Registry.Get(id); !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "site %s not found", id)
			return
		}
		if !deps.Registry.Rename(r.Context(), id, req.Name) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name must not be empty")
			return
		}
		e, _ := deps.Registry.Get(id)
		writeJSON(w, http.StatusOK, NewSiteView(e))
	}
}

func handleDeleteSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if refuseDuringBulk(w, deps.Registry) {
			return
		}
		id := chi.URLParam(r, "id")
		deleted := deps.Registry.Delete(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": deleted})
	}
}

func handleMoveSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		var req moveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if refuseDuringBulk(w, deps.Registry) {
			return
		}
		if _, ok := deps.Registry.Get(id); !ok {
			httpError(w, http.StatusNotFound, "not_found_error", "site %s not found", id)
			return
		}

		var moved bool
		if req.Index != nil {
			moved = deps.Registry.MoveTo(r.Context(), id, *req.Index)
		} else {
			dir, err := registry.ParseDirection(req.Direction)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			moved = deps.Registry.Move(r.Context(), id, dir)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"moved": moved,
			"sites": siteViews(deps.Registry.List()),
		})
	}
}

func handleScanSite(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := deps.Registry.ScanOne(r.Context(), id)
		if errors.Is(err, registry.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "site %s not found", id)
			return
		}
		var se *scan.ScanError
		if errors.As(err, &se) {
			httpError(w, http.StatusBadGateway, "scan_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "scan failed: %v", err)
			return
		}
		e, _ := deps.Registry.Get(id)
		writeJSON(w, http.StatusOK, ScanResponse{Site: NewSiteView(e), Result: res})
	}
}

func handleGetResult(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, ok := lookupResult(w, deps.Registry, id)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleExport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, ok := lookupResult(w, deps.Registry, id)
		if !ok {
			return
		}
		e, _ := deps.Registry.Get(id)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", export.Filename(e)))
		if err := export.RenderHTML(w, e, res); err != nil {
			deps.Logger.Error("export failed", "site_id", id, "error", err)
		}
	}
}

func lookupResult(w http.ResponseWriter, reg *registry.Registry, id string) (sites.ScanResult, bool) {
	res, err := reg.Result(id)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, registry.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "site %s not found", id)
	case errors.Is(err, registry.ErrNoResult):
		httpError(w, http.StatusNotFound, "not_found_error", "site %s has not been scanned yet", id)
	case errors.Is(err, registry.ErrResultUnreadable):
		httpError(w, http.StatusUnprocessableEntity, "result_unreadable", "stored result for site %s cannot be read; scan it again", id)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "reading result: %v", err)
	}
	return sites.ScanResult{}, false
}

func handleBulkStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"bulk_scanning": deps.Registry.BulkScanning()})
	}
}

func handleScanAll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The flag is claimed before replying so that a follow-up request
		// already sees the bulk scan.
		run, err := deps.Registry.StartScanAll()
		if err != nil {
			httpError(w, http.StatusConflict, "conflict_error", "%v", err)
			return
		}
		n := len(deps.Registry.List())

		deps.BulkScans.Add(1)
		go func() {
			defer deps.BulkScans.Done()
			if _, err := run(deps.ScanContext); err != nil {
				deps.Logger.Warn("bulk scan ended early", "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "sites": n})
	}
}
