package models

// SpotStatus is the occupancy state reported by the feed. Values other than
// the known constants are kept verbatim and rendered with the neutral style.
type SpotStatus string

const (
	StatusAvailable SpotStatus = "available"
	StatusOccupied  SpotStatus = "occupied"
)

// Known reports whether the status is one the map has a dedicated treatment for
func (s SpotStatus) Known() bool {
	return s == StatusAvailable || s == StatusOccupied
}

// Spot is a render-ready parking spot
type Spot struct {
	ID     string     `json:"id"`
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Status SpotStatus `json:"status"`
	Label  string     `json:"label"`
	LotID  string     `json:"lot_id,omitempty"`
}

// Right returns the x coordinate of the spot's right edge
func (s Spot) Right() float64 {
	return s.X + s.Width
}

// Bottom returns the y coordinate of the spot's bottom edge
func (s Spot) Bottom() float64 {
	return s.Y + s.Height
}

// Document returns the spot as the raw key-value document stored in the feed
func (s Spot) Document() map[string]interface{} {
	doc := map[string]interface{}{
		"x":      s.X,
		"y":      s.Y,
		"width":  s.Width,
		"height": s.Height,
		"status": string(s.Status),
	}
	if s.Label != "" {
		doc["label"] = s.Label
	}
	if s.LotID != "" {
		doc["lotId"] = s.LotID
	}
	return doc
}
