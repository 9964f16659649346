package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koios/lotmap/internal/feed"
	"github.com/koios/lotmap/internal/lotmap"
	"github.com/koios/lotmap/internal/metrics"
	"github.com/koios/lotmap/internal/style"
	"github.com/koios/lotmap/internal/viewport"
	"github.com/koios/lotmap/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var testArea = viewport.DisplayArea{Width: 400, Height: 800}

// setupTestHandler creates a MapHandler over an in-memory feed seeded with a
// two-spot lot "lot-a"
func setupTestHandler(t *testing.T) (*MapHandler, *feed.MemoryWatcher, *http.ServeMux) {
	t.Helper()

	watcher := feed.NewMemoryWatcher()
	watcher.PublishSpots("lot-a", []models.Spot{
		{ID: "s1", X: 0, Y: 0, Width: 10, Height: 20, Status: models.StatusAvailable, Label: "A1"},
		{ID: "s2", X: 20, Y: 0, Width: 10, Height: 20, Status: models.StatusOccupied, Label: "A2"},
	})

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	logger := zap.NewNop()
	mapper := style.NewMapper(style.DefaultTheme())
	sessions := NewSessions(watcher, mapper, viewport.DefaultOptions(), logger, collector)
	t.Cleanup(sessions.Close)

	h := NewMapHandler(sessions, mapper.Theme(), testArea, collector, nil, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, watcher, mux
}

func doRequest(mux *http.ServeMux, method, target string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		reader = bytes.NewReader(bodyBytes)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeFrame(t *testing.T, w *httptest.ResponseRecorder) lotmap.Frame {
	t.Helper()
	var frame lotmap.Frame
	if err := json.NewDecoder(w.Body).Decode(&frame); err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	return frame
}

// --- Health endpoint ---

func TestHealth(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	w := doRequest(mux, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status=healthy, got %v", resp["status"])
	}
}

func TestHealth_Unhealthy(t *testing.T) {
	h, _, _ := setupTestHandler(t)
	h.health = func(context.Context) bool { return false }

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.handleHealth(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestHealth_WrongMethod(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	w := doRequest(mux, http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

// --- Frames ---

func TestFrame(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	w := doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	frame := decodeFrame(t, w)
	if frame.State != lotmap.StateReady {
		t.Errorf("State = %s, want ready", frame.State)
	}
	if len(frame.Spots) != 2 {
		t.Fatalf("Expected 2 spots, got %d", len(frame.Spots))
	}

	want := viewport.Bounds{OriginX: -15, OriginY: -15, Width: 60, Height: 50}
	if frame.Viewport.Bounds != want {
		t.Errorf("Bounds = %+v, want %+v", frame.Viewport.Bounds, want)
	}
	if math.Abs(frame.Viewport.Surface.Width-380) > 1e-9 {
		t.Errorf("Surface width = %v, want 380", frame.Viewport.Surface.Width)
	}
}

func TestFrame_DisplayAreaOverride(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	w := doRequest(mux, http.MethodGet, "/lots/lot-a/map?width=200&height=1000", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	frame := decodeFrame(t, w)
	if math.Abs(frame.Viewport.Surface.Width-190) > 1e-9 {
		t.Errorf("Surface width = %v, want 190", frame.Viewport.Surface.Width)
	}
}

func TestFrame_ValidationErrors(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	testCases := []struct {
		name  string
		query string
		field string
	}{
		{"non-numeric width", "width=wide", "width"},
		{"zero height", "height=0", "height"},
		{"huge width", "width=1e9", "width"},
		{"bad since", "since=-1", "since"},
		{"bad timeout", "since=1&timeout=forever", "timeout"},
		{"timeout too long", "since=1&timeout=5m", "timeout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(mux, http.MethodGet, "/lots/lot-a/map?"+tc.query, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", w.Code)
			}
			var resp ValidationResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if len(resp.Errors) == 0 || resp.Errors[0].Field != tc.field {
				t.Errorf("Errors = %+v, want field %s", resp.Errors, tc.field)
			}
		})
	}
}

func TestFrame_EmptyLot(t *testing.T) {
	_, watcher, mux := setupTestHandler(t)
	watcher.Publish("lot-empty", nil)

	frame := decodeFrame(t, doRequest(mux, http.MethodGet, "/lots/lot-empty/map", nil))
	if frame.Message != "No spots configured for Lot lot-empty." {
		t.Errorf("Message = %q", frame.Message)
	}
	if frame.Viewport != viewport.Default() {
		t.Errorf("Viewport = %+v, want default", frame.Viewport)
	}
}

func TestFrame_FeedError(t *testing.T) {
	h, watcher, mux := setupTestHandler(t)

	doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil)
	watcher.Fail("lot-a", errors.New("connection reset"))

	view, ok := h.sessions.Lookup("lot-a")
	if !ok {
		t.Fatal("lot-a not mounted")
	}
	frame := view.Frame(testArea)
	if frame.State != lotmap.StateError || frame.Message != "Failed to load parking spots." {
		t.Errorf("frame = %+v", frame)
	}
	if len(frame.Spots) != 0 {
		t.Errorf("error frame should not render spots")
	}
}

func TestFrame_ReentryAfterFeedError(t *testing.T) {
	_, watcher, mux := setupTestHandler(t)

	doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil)
	watcher.Fail("lot-a", errors.New("connection reset"))
	watcher.PublishSpots("lot-a", []models.Spot{
		{ID: "s1", Width: 10, Height: 20, Status: models.StatusAvailable, Label: "A1"},
	})

	for i := 0; i < 3; i++ {
		frame := decodeFrame(t, doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil))
		if frame.State != lotmap.StateReady || len(frame.Spots) != 1 {
			t.Fatalf("request %d: frame = %+v, want ready with 1 spot", i, frame)
		}
	}

	if got := watcher.Subscriptions("lot-a"); got != 2 {
		t.Errorf("subscriptions = %d, want 2 (one re-subscribe)", got)
	}
	if got := watcher.Active("lot-a"); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestFrame_LongPoll(t *testing.T) {
	_, watcher, mux := setupTestHandler(t)

	first := decodeFrame(t, doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil))

	go func() {
		time.Sleep(50 * time.Millisecond)
		watcher.UpdateStatus("lot-a", "s2", models.StatusAvailable)
	}()

	target := "/lots/lot-a/map?timeout=5s&since=" + uintString(first.Version)
	next := decodeFrame(t, doRequest(mux, http.MethodGet, target, nil))
	if next.Version <= first.Version {
		t.Fatalf("Version = %d, want > %d", next.Version, first.Version)
	}
	for _, spot := range next.Spots {
		if spot.ID == "s2" && spot.Status != models.StatusAvailable {
			t.Errorf("s2 status = %s, want available", spot.Status)
		}
	}
}

func TestFrame_LongPollTimeout(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	first := decodeFrame(t, doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil))

	target := "/lots/lot-a/map?timeout=50ms&since=" + uintString(first.Version)
	w := doRequest(mux, http.MethodGet, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on timeout, got %d", w.Code)
	}
	if frame := decodeFrame(t, w); frame.Version != first.Version {
		t.Errorf("Version = %d, want unchanged %d", frame.Version, first.Version)
	}
}

// --- SVG ---

func TestSVG(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	w := doRequest(mux, http.MethodGet, "/lots/lot-a/map.svg", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %s", ct)
	}

	body := w.Body.String()
	for _, want := range []string{
		`viewBox="-15 -15 60 50"`,
		`data-spot-id="s1"`,
		`fill="#c8e6c9"`,
		`fill="#ffcdd2"`,
		`>A2</text>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("SVG missing %q", want)
		}
	}
}

func TestSVG_EscapesLabels(t *testing.T) {
	_, watcher, mux := setupTestHandler(t)
	watcher.PublishSpots("lot-x", []models.Spot{
		{ID: "x1", Width: 10, Height: 10, Status: models.StatusAvailable, Label: "<b>&"},
	})

	body := doRequest(mux, http.MethodGet, "/lots/lot-x/map.svg", nil).Body.String()
	if strings.Contains(body, "<b>&") {
		t.Error("label was not escaped")
	}
	if !strings.Contains(body, "&lt;b&gt;&amp;") {
		t.Error("escaped label missing")
	}
}

// --- Press ---

func TestPress(t *testing.T) {
	_, _, mux := setupTestHandler(t)
	doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil)

	testCases := []struct {
		name         string
		spotID       string
		wantAccepted bool
		wantSelected string
	}{
		{"occupied spot ignored", "s2", false, ""},
		{"unknown spot ignored", "nope", false, ""},
		{"available spot selected", "s1", true, "s1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(mux, http.MethodPost, "/lots/lot-a/press", map[string]string{"spot_id": tc.spotID})
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp PressResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode: %v", err)
			}
			if resp.Accepted != tc.wantAccepted || resp.SelectedSpotID != tc.wantSelected {
				t.Errorf("resp = %+v, want accepted=%v selected=%q", resp, tc.wantAccepted, tc.wantSelected)
			}
		})
	}

	frame := decodeFrame(t, doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil))
	for _, spot := range frame.Spots {
		if spot.ID == "s1" && (!spot.Selected || spot.Style.Stroke != "#1e90ff") {
			t.Errorf("s1 should render selected, got %+v", spot)
		}
	}
}

func TestPress_BadRequests(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/lots/lot-a/press", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: expected 400, got %d", w.Code)
	}

	w = doRequest(mux, http.MethodPost, "/lots/lot-a/press", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing spot_id: expected 400, got %d", w.Code)
	}

	w = doRequest(mux, http.MethodGet, "/lots/lot-a/press", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET press: expected 405, got %d", w.Code)
	}
}

func TestPress_UnmountedLot(t *testing.T) {
	h, watcher, mux := setupTestHandler(t)

	for _, lotID := range []string{"lot-a", "ghost-1", "ghost-2"} {
		w := doRequest(mux, http.MethodPost, "/lots/"+lotID+"/press", map[string]string{"spot_id": "s1"})
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", lotID, w.Code)
		}
		if got := watcher.Subscriptions(lotID); got != 0 {
			t.Errorf("%s: press subscribed %d times", lotID, got)
		}
	}

	if lots := h.sessions.Lots(); len(lots) != 0 {
		t.Errorf("mounted lots = %v, want none", lots)
	}
}

// --- Lot lifecycle ---

func TestReleaseLot(t *testing.T) {
	_, watcher, mux := setupTestHandler(t)

	doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil)
	if watcher.Active("lot-a") != 1 {
		t.Fatalf("Expected 1 active subscription, got %d", watcher.Active("lot-a"))
	}

	var lots []string
	json.NewDecoder(doRequest(mux, http.MethodGet, "/lots", nil).Body).Decode(&lots)
	if len(lots) != 1 || lots[0] != "lot-a" {
		t.Errorf("lots = %v", lots)
	}

	if w := doRequest(mux, http.MethodDelete, "/lots/lot-a", nil); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if watcher.Active("lot-a") != 0 {
		t.Errorf("subscription still active after release")
	}
	if w := doRequest(mux, http.MethodDelete, "/lots/lot-a", nil); w.Code != http.StatusNotFound {
		t.Errorf("second release: expected 404, got %d", w.Code)
	}
}

func TestLotRouting(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	testCases := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/lots/", http.StatusBadRequest},
		{http.MethodGet, "/lots/lot-a", http.StatusMethodNotAllowed},
		{http.MethodGet, "/lots/lot-a/unknown", http.StatusNotFound},
		{http.MethodGet, "/lots/lot-a/map/extra", http.StatusNotFound},
		{http.MethodPost, "/lots/lot-a/map", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			if w := doRequest(mux, tc.method, tc.target, nil); w.Code != tc.want {
				t.Errorf("Expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, _, mux := setupTestHandler(t)

	doRequest(mux, http.MethodGet, "/lots/lot-a/map", nil)

	w := doRequest(mux, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "lotmap_feed_snapshots_total") {
		t.Error("metrics output missing lotmap_feed_snapshots_total")
	}
}

func uintString(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
