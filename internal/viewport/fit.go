// Package viewport fits an unbounded set of spot rectangles into a bounded,
// aspect-correct drawing surface.
package viewport

import (
	"fmt"
	"math"

	"github.com/koios/lotmap/pkg/models"
)

const (
	// DefaultPadding is added around the spot extent on every side
	DefaultPadding = 15
	// DefaultMaxWidthFraction is the share of the device width the surface may use
	DefaultMaxWidthFraction = 0.95
	// DefaultMaxHeightFraction is the share of the device height the surface may use
	DefaultMaxHeightFraction = 0.6

	fallbackSize   = 100
	minSurfaceSize = 1
)

// DisplayArea is the visible device area, in device units
type DisplayArea struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Options controls padding and the device-relative surface maxima
type Options struct {
	Padding           float64
	MaxWidthFraction  float64
	MaxHeightFraction float64
}

// DefaultOptions returns the stock fitting options
func DefaultOptions() Options {
	return Options{
		Padding:           DefaultPadding,
		MaxWidthFraction:  DefaultMaxWidthFraction,
		MaxHeightFraction: DefaultMaxHeightFraction,
	}
}

// Validate rejects options that cannot produce a drawable surface
func (o Options) Validate() error {
	if o.Padding < 0 || math.IsNaN(o.Padding) || math.IsInf(o.Padding, 0) {
		return fmt.Errorf("padding must be a finite non-negative number, got %v", o.Padding)
	}
	if !positiveFinite(o.MaxWidthFraction) {
		return fmt.Errorf("max width fraction must be positive, got %v", o.MaxWidthFraction)
	}
	if !positiveFinite(o.MaxHeightFraction) {
		return fmt.Errorf("max height fraction must be positive, got %v", o.MaxHeightFraction)
	}
	return nil
}

// Bounds is the visible region in spot coordinates
type Bounds struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// ViewBox formats the bounds as an SVG viewBox attribute value
func (b Bounds) ViewBox() string {
	return fmt.Sprintf("%g %g %g %g", b.OriginX, b.OriginY, b.Width, b.Height)
}

// Contains reports whether the spot rectangle lies inside the bounds
func (b Bounds) Contains(s models.Spot) bool {
	return s.X >= b.OriginX && s.Y >= b.OriginY &&
		s.Right() <= b.OriginX+b.Width && s.Bottom() <= b.OriginY+b.Height
}

// Surface is the drawing surface size, in device units
type Surface struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport is the computed transform from spot space onto the surface
type Viewport struct {
	Bounds  Bounds  `json:"bounds"`
	Surface Surface `json:"surface"`
}

// Scale returns device units per spot unit
func (v Viewport) Scale() float64 {
	if v.Bounds.Width <= 0 {
		return 1
	}
	return v.Surface.Width / v.Bounds.Width
}

// Default is the placeholder viewport used when there is nothing to fit
func Default() Viewport {
	return Viewport{
		Bounds:  Bounds{Width: fallbackSize, Height: fallbackSize},
		Surface: Surface{Width: fallbackSize, Height: fallbackSize},
	}
}

// Fit computes the bounds enclosing every spot (always including the origin
// and the unit point, plus padding) and the largest surface with the same
// aspect ratio that fits the device-relative maxima.
func Fit(spots []models.Spot, area DisplayArea, opts Options) Viewport {
	if len(spots) == 0 {
		return Default()
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range spots {
		minX = math.Min(minX, s.X)
		minY = math.Min(minY, s.Y)
		maxX = math.Max(maxX, s.Right())
		maxY = math.Max(maxY, s.Bottom())
	}

	// The origin and (1,1) are always in frame, even for lots far from it.
	minX = math.Min(minX, 0)
	minY = math.Min(minY, 0)
	maxX = math.Max(maxX, 1)
	maxY = math.Max(maxY, 1)

	pad := opts.Padding
	bounds := Bounds{
		OriginX: minX - pad,
		OriginY: minY - pad,
		Width:   (maxX - minX) + 2*pad,
		Height:  (maxY - minY) + 2*pad,
	}

	return Viewport{Bounds: bounds, Surface: fitSurface(bounds, area, opts)}
}

func fitSurface(bounds Bounds, area DisplayArea, opts Options) Surface {
	aspect := bounds.Width / bounds.Height
	if !positiveFinite(aspect) {
		return Surface{Width: fallbackSize, Height: fallbackSize}
	}

	maxW := area.Width * opts.MaxWidthFraction
	maxH := area.Height * opts.MaxHeightFraction
	if !positiveFinite(maxW) || !positiveFinite(maxH) {
		maxW, maxH = fallbackSize, fallbackSize
	}

	var s Surface
	if aspect > maxW/maxH {
		s = Surface{Width: maxW, Height: maxW / aspect}
	} else {
		s = Surface{Width: maxH * aspect, Height: maxH}
	}

	s.Width = math.Max(s.Width, minSurfaceSize)
	s.Height = math.Max(s.Height, minSurfaceSize)
	return s
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
