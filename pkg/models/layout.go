package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LotLayout represents a lot layout YAML file
type LotLayout struct {
	ID    string       `yaml:"id" json:"id"`
	Name  string       `yaml:"name" json:"name"`
	Spots []LayoutSpot `yaml:"spots" json:"spots"`

	// Runtime fields (not in the file)
	FilePath string `yaml:"-" json:"filePath"`
}

// LayoutSpot is one spot entry in a layout file
type LayoutSpot struct {
	ID     string  `yaml:"id" json:"id"`
	X      float64 `yaml:"x" json:"x"`
	Y      float64 `yaml:"y" json:"y"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
	Status string  `yaml:"status" json:"status"`
	Label  string  `yaml:"label" json:"label"`
}

// LoadLayout loads a lot layout from the given YAML file
func LoadLayout(path string) (*LotLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}

	var layout LotLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse layout file: %w", err)
	}

	layout.FilePath = path

	if strings.TrimSpace(layout.ID) == "" {
		return nil, fmt.Errorf("layout %s has no lot id", path)
	}

	seen := make(map[string]struct{}, len(layout.Spots))
	for i, spot := range layout.Spots {
		if spot.ID == "" {
			return nil, fmt.Errorf("layout %s: spot #%d has no id", path, i)
		}
		if _, dup := seen[spot.ID]; dup {
			return nil, fmt.Errorf("layout %s: duplicate spot id %q", path, spot.ID)
		}
		seen[spot.ID] = struct{}{}
	}

	return &layout, nil
}

// Spot converts a layout entry into a Spot of the given lot. Missing status
// defaults to available.
func (s LayoutSpot) Spot(lotID string) Spot {
	status := SpotStatus(s.Status)
	if status == "" {
		status = StatusAvailable
	}
	return Spot{
		ID:     s.ID,
		X:      s.X,
		Y:      s.Y,
		Width:  s.Width,
		Height: s.Height,
		Status: status,
		Label:  s.Label,
		LotID:  lotID,
	}
}

// SpotList returns every spot of the layout, in file order
func (l *LotLayout) SpotList() []Spot {
	spots := make([]Spot, 0, len(l.Spots))
	for _, s := range l.Spots {
		spots = append(spots, s.Spot(l.ID))
	}
	return spots
}

// LayoutRegistry manages the collection of known lot layouts
type LayoutRegistry struct {
	layouts map[string]*LotLayout
	skipped map[string]error
}

// NewLayoutRegistry creates a new layout registry
func NewLayoutRegistry() *LayoutRegistry {
	return &LayoutRegistry{
		layouts: make(map[string]*LotLayout),
		skipped: make(map[string]error),
	}
}

// LoadLayouts scans dir for *.yaml / *.yml files and loads every layout.
// Files that fail to load are recorded in Skipped and do not abort the scan.
func (r *LayoutRegistry) LoadLayouts(dir string) error {
	r.layouts = make(map[string]*LotLayout)
	r.skipped = make(map[string]error)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read layouts directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		layout, err := LoadLayout(path)
		if err != nil {
			r.skipped[path] = err
			continue
		}
		if prev, dup := r.layouts[layout.ID]; dup {
			r.skipped[path] = fmt.Errorf("lot %q already defined in %s", layout.ID, prev.FilePath)
			continue
		}
		r.layouts[layout.ID] = layout
	}

	return nil
}

// GetLayout returns a layout by lot ID
func (r *LayoutRegistry) GetLayout(id string) (*LotLayout, bool) {
	layout, exists := r.layouts[id]
	return layout, exists
}

// GetLayoutsList returns all layouts sorted by lot ID
func (r *LayoutRegistry) GetLayoutsList() []*LotLayout {
	layouts := make([]*LotLayout, 0, len(r.layouts))
	for _, layout := range r.layouts {
		layouts = append(layouts, layout)
	}
	sort.Slice(layouts, func(i, j int) bool { return layouts[i].ID < layouts[j].ID })
	return layouts
}

// Skipped returns the files that failed to load on the last scan, with their errors
func (r *LayoutRegistry) Skipped() map[string]error {
	result := make(map[string]error, len(r.skipped))
	for k, v := range r.skipped {
		result[k] = v
	}
	return result
}
