package api

import (
	"net/http"
	"strconv"

	"github.com/dennisdiepolder/monti/portalwatch/internal/prefs"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// PreferencesHandler exposes column layout and name filter mutations
type PreferencesHandler struct {
	engine *prefs.Engine
	views  ViewSource
	logger zerolog.Logger
}

// NewPreferencesHandler creates a new PreferencesHandler
func NewPreferencesHandler(engine *prefs.Engine, views ViewSource, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{
		engine: engine,
		views:  views,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// GetColumns handles GET /api/columns
func (h *PreferencesHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Columns())
}

// MoveColumn handles POST /api/columns/{index}/move
func (h *PreferencesHandler) MoveColumn(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid column index", http.StatusBadRequest)
		return
	}

	var req struct {
		Direction int `json:"direction"`
	}
	if !decodeBody(r, &req) || (req.Direction != -1 && req.Direction != 1) {
		http.Error(w, "direction must be -1 or 1", http.StatusBadRequest)
		return
	}

	moved := h.engine.MoveColumn(index, req.Direction)
	writeJSON(w, http.StatusOK, map[string]any{
		"moved":   moved,
		"columns": h.engine.Columns(),
	})
}

// SetColumnVisible handles PUT /api/columns/{name}/visible
func (h *PreferencesHandler) SetColumnVisible(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible *bool `json:"visible"`
	}
	if !decodeBody(r, &req) || req.Visible == nil {
		http.Error(w, "visible is required", http.StatusBadRequest)
		return
	}

	name := chi.URLParam(r, "name")
	if !h.engine.SetColumnVisible(name, *req.Visible) {
		http.Error(w, "unknown column", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Columns())
}

// SetAllColumnsVisible handles PUT /api/columns/visible
func (h *PreferencesHandler) SetAllColumnsVisible(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible *bool `json:"visible"`
	}
	if !decodeBody(r, &req) || req.Visible == nil {
		http.Error(w, "visible is required", http.StatusBadRequest)
		return
	}

	h.engine.SetAllColumnsVisible(*req.Visible)
	writeJSON(w, http.StatusOK, h.engine.Columns())
}

// GetNameOptions handles GET /api/filter/names?q=
func (h *PreferencesHandler) GetNameOptions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	writeJSON(w, http.StatusOK, h.engine.NameOptions(h.views.Names(), query))
}

// ToggleName handles PUT /api/filter/names
func (h *PreferencesHandler) ToggleName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Included bool   `json:"included"`
	}
	if !decodeBody(r, &req) || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	h.engine.ToggleName(req.Name, req.Included)
	writeJSON(w, http.StatusOK, map[string][]string{"selectedNames": h.engine.SelectedNames()})
}

// ClearFilter handles DELETE /api/filter
func (h *PreferencesHandler) ClearFilter(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearFilter()
	writeJSON(w, http.StatusOK, map[string][]string{"selectedNames": h.engine.SelectedNames()})
}
