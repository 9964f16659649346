// Package style maps a spot's status and selection to its visual treatment
// and decides whether a press on it is accepted.
package style

import (
	"math"

	"github.com/koios/lotmap/pkg/models"
)

const (
	availableOpacity = 1.0
	occupiedOpacity  = 0.9
	unknownOpacity   = 0.8

	labelContrastOpacity = 0.7
	minLabelFontSize     = 6
	labelFontDivisor     = 2.5
)

// Style is the visual treatment of one spot
type Style struct {
	Fill          string  `json:"fill"`
	Stroke        string  `json:"stroke"`
	StrokeWidth   float64 `json:"stroke_width"`
	Opacity       float64 `json:"opacity"`
	PressAccepted bool    `json:"press_accepted"`
}

// Mapper turns status + selection into a Style using a fixed theme
type Mapper struct {
	theme Theme
}

// NewMapper creates a mapper bound to theme
func NewMapper(theme Theme) *Mapper {
	return &Mapper{theme: theme}
}

// Theme returns the mapper's theme
func (m *Mapper) Theme() Theme {
	return m.theme
}

// Map returns the style for a spot. Selection is only honored for available
// spots, so a stale selection on a spot that flipped to occupied renders as
// plain occupied.
func (m *Mapper) Map(status models.SpotStatus, selected bool) Style {
	t := m.theme

	switch status {
	case models.StatusAvailable:
		s := Style{
			Fill:          t.AvailableFill,
			Stroke:        t.Success,
			StrokeWidth:   t.StrokeWidth,
			Opacity:       availableOpacity,
			PressAccepted: true,
		}
		if selected {
			s.Stroke = t.Primary
			s.StrokeWidth = t.SelectedStrokeWidth
		}
		return s

	case models.StatusOccupied:
		return Style{
			Fill:        t.OccupiedFill,
			Stroke:      t.Error,
			StrokeWidth: t.StrokeWidth,
			Opacity:     occupiedOpacity,
		}

	default:
		return Style{
			Fill:        t.DefaultFill,
			Stroke:      t.TextSecondary,
			StrokeWidth: t.StrokeWidth,
			Opacity:     unknownOpacity,
		}
	}
}

// LabelColor picks the label color for a spot drawn with s
func (m *Mapper) LabelColor(s Style) string {
	if s.Opacity > labelContrastOpacity {
		return m.theme.TextPrimary
	}
	return m.theme.TextSecondary
}

// LabelFontSize sizes a spot's label to its shorter side, never below 6 units
func LabelFontSize(spot models.Spot) float64 {
	return math.Max(math.Min(spot.Width, spot.Height)/labelFontDivisor, minLabelFontSize)
}
