package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/koios/lotmap/internal/lotmap"
	"github.com/koios/lotmap/internal/metrics"
	"github.com/koios/lotmap/internal/style"
	"github.com/koios/lotmap/internal/viewport"
	"go.uber.org/zap"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) bool

// MapHandler serves map frames and press handling over HTTP
type MapHandler struct {
	sessions    *Sessions
	theme       style.Theme
	defaultArea viewport.DisplayArea
	metrics     *metrics.Collector
	health      HealthCheck
	logger      *zap.Logger
}

// PressResponse is returned by POST /lots/{id}/press
type PressResponse struct {
	Accepted       bool   `json:"accepted"`
	SelectedSpotID string `json:"selected_spot_id,omitempty"`
}

// ValidationResponse is returned for requests that fail validation
type ValidationResponse struct {
	Errors []ValidationError `json:"errors"`
}

// NewMapHandler creates a new map handler. collector and health may be nil.
func NewMapHandler(sessions *Sessions, theme style.Theme, defaultArea viewport.DisplayArea, collector *metrics.Collector, health HealthCheck, logger *zap.Logger) *MapHandler {
	return &MapHandler{
		sessions:    sessions,
		theme:       theme,
		defaultArea: defaultArea,
		metrics:     collector,
		health:      health,
		logger:      logger,
	}
}

// RegisterRoutes registers the map routes
func (h *MapHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/lots", h.handleLots)
	mux.HandleFunc("/lots/", h.handleLotDetails)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}
}

// handleHealth handles GET /health - returns service health status
func (h *MapHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, code := "healthy", http.StatusOK
	if h.health != nil && !h.health(r.Context()) {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "lotmap",
		"version": "1.0.0",
	})
}

// handleLots handles GET /lots - returns the lots with a mounted view
func (h *MapHandler) handleLots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.Lots())
}

// handleLotDetails handles:
// - GET /lots/{id}/map - returns the current frame, long-polling when since is set
// - GET /lots/{id}/map.svg - returns the current frame as SVG
// - POST /lots/{id}/press - presses a spot on a lot already fetched
// - DELETE /lots/{id} - releases the lot's view
func (h *MapHandler) handleLotDetails(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/lots/")
	pathParts := strings.Split(path, "/")

	lotID := pathParts[0]
	if errs := validateID("lot_id", lotID); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: errs})
		return
	}

	if len(pathParts) == 1 {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleRelease(w, lotID)
		return
	}

	if len(pathParts) > 2 {
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	switch pathParts[1] {
	case "map":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleFrame(w, r, lotID)
	case "map.svg":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleSVG(w, r, lotID)
	case "press":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handlePress(w, r, lotID)
	default:
		http.Error(w, "Endpoint not found", http.StatusNotFound)
	}
}

func (h *MapHandler) handleFrame(w http.ResponseWriter, r *http.Request, lotID string) {
	query := r.URL.Query()
	area, errs := parseDisplayArea(query, h.defaultArea)
	wait, waitErrs := parseWait(query)
	errs = append(errs, waitErrs...)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: errs})
		return
	}

	view, ok := h.view(w, lotID)
	if !ok {
		return
	}

	frame := view.Frame(area)
	if wait.enabled && frame.Version <= wait.since {
		ctx, cancel := context.WithTimeout(r.Context(), wait.timeout)
		defer cancel()

		var err error
		frame, err = view.WaitFrame(ctx, wait.since, area)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			// Client went away.
			h.logger.Debug("Frame wait aborted", zap.String("lot_id", lotID), zap.Error(err))
			return
		}
	}

	writeJSON(w, http.StatusOK, frame)

	h.logger.Debug("Served frame",
		zap.String("lot_id", lotID),
		zap.String("state", string(frame.State)),
		zap.Uint64("version", frame.Version),
		zap.Int("spots", len(frame.Spots)))
}

func (h *MapHandler) handleSVG(w http.ResponseWriter, r *http.Request, lotID string) {
	area, errs := parseDisplayArea(r.URL.Query(), h.defaultArea)
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: errs})
		return
	}

	view, ok := h.view(w, lotID)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	if err := renderSVG(w, view.Frame(area), h.theme); err != nil {
		h.logger.Error("Failed to write SVG", zap.String("lot_id", lotID), zap.Error(err))
	}
}

func (h *MapHandler) handlePress(w http.ResponseWriter, r *http.Request, lotID string) {
	var request pressRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Error("Failed to decode press request",
			zap.String("lot_id", lotID),
			zap.Error(err))
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if errs := validateID("spot_id", request.SpotID); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: errs})
		return
	}

	// Presses never mount; the lot must have been fetched first.
	view, ok := h.sessions.Lookup(lotID)
	if !ok {
		http.Error(w, "Lot not mounted", http.StatusNotFound)
		return
	}

	accepted := view.Press(request.SpotID)
	writeJSON(w, http.StatusOK, PressResponse{
		Accepted:       accepted,
		SelectedSpotID: view.Selected(),
	})
}

func (h *MapHandler) handleRelease(w http.ResponseWriter, lotID string) {
	if !h.sessions.Release(lotID) {
		http.Error(w, "Lot not mounted", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// view resolves the session for lotID, writing the error response on failure
func (h *MapHandler) view(w http.ResponseWriter, lotID string) (*lotmap.Map, bool) {
	view, err := h.sessions.Get(lotID)
	if err != nil {
		h.logger.Error("Failed to mount map view", zap.String("lot_id", lotID), zap.Error(err))
		var cfgErr *lotmap.ConfigurationError
		if errors.As(err, &cfgErr) {
			http.Error(w, cfgErr.UserMessage(), http.StatusBadRequest)
			return nil, false
		}
		http.Error(w, "Failed to mount map view", http.StatusInternalServerError)
		return nil, false
	}
	return view, true
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
