package style

import (
	"fmt"
	"reflect"
)

// Theme is the immutable palette and stroke set used to draw a lot
type Theme struct {
	Primary       string `json:"primary"`
	Success       string `json:"success"`
	Error         string `json:"error"`
	TextPrimary   string `json:"text_primary"`
	TextSecondary string `json:"text_secondary"`
	Background    string `json:"background"`
	Border        string `json:"border"`

	AvailableFill string `json:"available_fill"`
	OccupiedFill  string `json:"occupied_fill"`
	DefaultFill   string `json:"default_fill"`

	StrokeWidth         float64 `json:"stroke_width"`
	SelectedStrokeWidth float64 `json:"selected_stroke_width"`
	CornerRadius        float64 `json:"corner_radius"`
}

// DefaultTheme returns the stock palette
func DefaultTheme() Theme {
	return Theme{
		Primary:       "#1e90ff",
		Success:       "#008000",
		Error:         "#ff0000",
		TextPrimary:   "#000000",
		TextSecondary: "#808080",
		Background:    "#f5f5f5",
		Border:        "#d3d3d3",

		AvailableFill: "#c8e6c9",
		OccupiedFill:  "#ffcdd2",
		DefaultFill:   "#e0e0e0",

		StrokeWidth:         0.7,
		SelectedStrokeWidth: 1.5,
		CornerRadius:        2,
	}
}

// Validate checks that every color is #RRGGBB and stroke widths are positive
func (t Theme) Validate() error {
	v := reflect.ValueOf(t)
	typ := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if v.Field(i).Kind() != reflect.String {
			continue
		}
		if c := v.Field(i).String(); !isValidColor(c) {
			return fmt.Errorf("theme color %s must be a valid color (e.g., #FF0000), got %q", typ.Field(i).Name, c)
		}
	}
	if t.StrokeWidth <= 0 || t.SelectedStrokeWidth <= 0 {
		return fmt.Errorf("theme stroke widths must be positive")
	}
	if t.CornerRadius < 0 {
		return fmt.Errorf("theme corner radius must not be negative")
	}
	return nil
}

func isValidColor(color string) bool {
	if len(color) != 7 || color[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		c := color[i]
		if !((c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
