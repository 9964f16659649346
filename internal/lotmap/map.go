package lotmap

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/koios/lotmap/internal/metrics"
	"github.com/koios/lotmap/internal/style"
	"github.com/koios/lotmap/internal/viewport"
	"github.com/koios/lotmap/pkg/models"
	"go.uber.org/zap"
)

const loadingMessage = "Loading parking spots..."

// SelectFunc is told about an accepted press
type SelectFunc func(spotID, label string)

// RenderedSpot is a spot together with everything needed to draw it
type RenderedSpot struct {
	models.Spot
	Style      style.Style `json:"style"`
	LabelColor string      `json:"label_color"`
	FontSize   float64     `json:"font_size"`
	Selected   bool        `json:"selected"`
}

// Frame is one computed render of a map view
type Frame struct {
	LotID          string            `json:"lot_id"`
	State          State             `json:"state"`
	Message        string            `json:"message,omitempty"`
	Version        uint64            `json:"version"`
	Viewport       viewport.Viewport `json:"viewport"`
	SelectedSpotID string            `json:"selected_spot_id,omitempty"`
	Spots          []RenderedSpot    `json:"spots"`
}

// Map is a mounted floor-plan view: the reconciler's list, fitted and styled,
// with presses gated into the selection callback
type Map struct {
	reconciler *Reconciler
	mapper     *style.Mapper
	opts       viewport.Options
	onSelect   SelectFunc
	logger     *zap.Logger
	metrics    *metrics.Collector

	mu         sync.Mutex
	selectedID string
}

// NewMap creates a view over reconciler. onSelect and collector may be nil.
func NewMap(reconciler *Reconciler, mapper *style.Mapper, opts viewport.Options, onSelect SelectFunc, logger *zap.Logger, collector *metrics.Collector) *Map {
	return &Map{
		reconciler: reconciler,
		mapper:     mapper,
		opts:       opts,
		onSelect:   onSelect,
		logger:     logger,
		metrics:    collector,
	}
}

// Reconciler returns the view's reconciler
func (m *Map) Reconciler() *Reconciler {
	return m.reconciler
}

// SetSelected records the parent's current selection
func (m *Map) SetSelected(spotID string) {
	m.mu.Lock()
	m.selectedID = spotID
	m.mu.Unlock()
}

// Selected returns the parent's current selection
func (m *Map) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedID
}

// Frame renders the current state for the given display area
func (m *Map) Frame(area viewport.DisplayArea) Frame {
	return m.frameFor(m.reconciler.Status(), area)
}

// WaitFrame blocks until the feed state moves past version after, then
// renders it. On ctx expiry the current frame is returned with ctx's error.
func (m *Map) WaitFrame(ctx context.Context, after uint64, area viewport.DisplayArea) (Frame, error) {
	st, err := m.reconciler.Wait(ctx, after)
	return m.frameFor(st, area), err
}

func (m *Map) frameFor(st Status, area viewport.DisplayArea) Frame {
	selectedID := m.Selected()

	frame := Frame{
		LotID:          st.LotID,
		State:          st.State,
		Version:        st.Version,
		SelectedSpotID: selectedID,
		Viewport:       viewport.Default(),
		Spots:          []RenderedSpot{},
	}

	switch st.State {
	case StateLoading:
		frame.Message = loadingMessage
		return frame
	case StateError:
		frame.Message = UserMessage(st.Err)
		return frame
	}

	if len(st.Spots) == 0 {
		frame.Message = fmt.Sprintf("No spots configured for Lot %s.", st.LotID)
	}

	frame.Viewport = viewport.Fit(st.Spots, area, m.opts)
	frame.Spots = make([]RenderedSpot, 0, len(st.Spots))
	for _, spot := range st.Spots {
		selected := spot.ID == selectedID
		s := m.mapper.Map(spot.Status, selected)
		frame.Spots = append(frame.Spots, RenderedSpot{
			Spot:       spot,
			Style:      s,
			LabelColor: m.mapper.LabelColor(s),
			FontSize:   style.LabelFontSize(spot),
			Selected:   selected && s.PressAccepted,
		})
	}
	return frame
}

// Press handles a press on spotID and reports whether it was accepted. The
// selection callback runs exactly when the spot is currently available.
func (m *Map) Press(spotID string) bool {
	st := m.reconciler.Status()
	if st.State != StateReady {
		return false
	}

	for _, spot := range st.Spots {
		if spot.ID != spotID {
			continue
		}

		accepted := m.mapper.Map(spot.Status, false).PressAccepted
		if m.metrics != nil {
			m.metrics.Presses.WithLabelValues(st.LotID, strconv.FormatBool(accepted)).Inc()
		}
		if !accepted {
			m.logger.Info("Non-available spot pressed",
				zap.String("lot_id", st.LotID),
				zap.String("spot_id", spot.ID),
				zap.String("status", string(spot.Status)))
			return false
		}

		if m.onSelect != nil {
			m.onSelect(spot.ID, spot.Label)
		}
		return true
	}

	m.logger.Debug("Press on unknown spot", zap.String("lot_id", st.LotID), zap.String("spot_id", spotID))
	return false
}
