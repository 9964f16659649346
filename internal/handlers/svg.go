package handlers

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/koios/lotmap/internal/lotmap"
	"github.com/koios/lotmap/internal/style"
)

// renderSVG writes frame as a standalone SVG document. The surface sets the
// pixel size and the bounds become the viewBox, so spots are drawn in lot
// coordinates.
func renderSVG(out io.Writer, frame lotmap.Frame, theme style.Theme) error {
	var b strings.Builder

	vp := frame.Viewport
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="%s" data-lot-id="%s" data-state="%s">`,
		num(vp.Surface.Width), num(vp.Surface.Height), vp.Bounds.ViewBox(),
		html.EscapeString(frame.LotID), frame.State)
	b.WriteString("\n")

	fmt.Fprintf(&b, `  <rect x="%s" y="%s" width="%s" height="%s" fill="%s"/>`,
		num(vp.Bounds.OriginX), num(vp.Bounds.OriginY),
		num(vp.Bounds.Width), num(vp.Bounds.Height), theme.Background)
	b.WriteString("\n")

	for _, spot := range frame.Spots {
		fmt.Fprintf(&b, `  <g data-spot-id="%s" data-status="%s"`,
			html.EscapeString(spot.ID), html.EscapeString(string(spot.Status)))
		if spot.Selected {
			b.WriteString(` data-selected="true"`)
		}
		b.WriteString(">\n")

		fmt.Fprintf(&b, `    <rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="%s" stroke="%s" stroke-width="%s" opacity="%s"/>`,
			num(spot.X), num(spot.Y), num(spot.Width), num(spot.Height),
			num(theme.CornerRadius), spot.Style.Fill, spot.Style.Stroke,
			num(spot.Style.StrokeWidth), num(spot.Style.Opacity))
		b.WriteString("\n")

		fmt.Fprintf(&b, `    <text x="%s" y="%s" text-anchor="middle" dominant-baseline="central" font-size="%s" fill="%s">%s</text>`,
			num(spot.X+spot.Width/2), num(spot.Y+spot.Height/2),
			num(spot.FontSize), spot.LabelColor, html.EscapeString(spot.Label))
		b.WriteString("\n  </g>\n")
	}

	if frame.Message != "" {
		fill := theme.TextSecondary
		if frame.State == lotmap.StateError {
			fill = theme.Error
		}
		fmt.Fprintf(&b, `  <text x="%s" y="%s" text-anchor="middle" dominant-baseline="central" font-size="%s" fill="%s" data-message="true">%s</text>`,
			num(vp.Bounds.OriginX+vp.Bounds.Width/2), num(vp.Bounds.OriginY+vp.Bounds.Height/2),
			num(messageFontSize(vp.Bounds.Width)), fill, html.EscapeString(frame.Message))
		b.WriteString("\n")
	}

	b.WriteString("</svg>\n")

	_, err := io.WriteString(out, b.String())
	return err
}

// messageFontSize keeps status text legible inside narrow bounds
func messageFontSize(width float64) float64 {
	size := width / 20
	if size < 4 {
		return 4
	}
	if size > 16 {
		return 16
	}
	return size
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
