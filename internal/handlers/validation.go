package handlers

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koios/lotmap/internal/viewport"
)

const (
	maxDisplayDimension = 20000
	maxWaitTimeout      = 60 * time.Second
	defaultWaitTimeout  = 25 * time.Second
	maxIDLength         = 128
)

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// pressRequest is the body of POST /lots/{id}/press
type pressRequest struct {
	SpotID string `json:"spot_id"`
}

// waitParams controls the long-poll behaviour of GET /lots/{id}/map
type waitParams struct {
	enabled bool
	since   uint64
	timeout time.Duration
}

// validateID checks a lot or spot identifier taken from a path or body
func validateID(field, id string) []ValidationError {
	var errors []ValidationError
	switch {
	case strings.TrimSpace(id) == "":
		errors = append(errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field '%s' is required", field),
			Code:    "required",
		})
	case len(id) > maxIDLength:
		errors = append(errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field '%s' must be at most %d characters", field, maxIDLength),
			Code:    "too_long",
		})
	case strings.ContainsAny(id, "/\x00"):
		errors = append(errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("Field '%s' contains invalid characters", field),
			Code:    "invalid_characters",
		})
	}
	return errors
}

// parseDisplayArea reads width/height from the query, falling back to def
// for any dimension that is absent
func parseDisplayArea(query url.Values, def viewport.DisplayArea) (viewport.DisplayArea, []ValidationError) {
	var errors []ValidationError
	area := def

	for _, dim := range []struct {
		field string
		dst   *float64
	}{
		{"width", &area.Width},
		{"height", &area.Height},
	} {
		raw := strings.TrimSpace(query.Get(dim.field))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			errors = append(errors, ValidationError{
				Field:   dim.field,
				Message: fmt.Sprintf("Field '%s' must be a number", dim.field),
				Code:    "invalid_number",
			})
			continue
		}
		if v <= 0 || v > maxDisplayDimension {
			errors = append(errors, ValidationError{
				Field:   dim.field,
				Message: fmt.Sprintf("Field '%s' must be between 0 and %d", dim.field, maxDisplayDimension),
				Code:    "out_of_range",
			})
			continue
		}
		*dim.dst = v
	}

	return area, errors
}

// parseWait reads the since/timeout long-poll parameters
func parseWait(query url.Values) (waitParams, []ValidationError) {
	var errors []ValidationError
	params := waitParams{timeout: defaultWaitTimeout}

	if raw := query.Get("since"); raw != "" {
		since, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errors = append(errors, ValidationError{
				Field:   "since",
				Message: "Field 'since' must be a non-negative integer version",
				Code:    "invalid_version",
			})
		} else {
			params.enabled = true
			params.since = since
		}
	}

	if raw := query.Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			// Bare numbers are seconds.
			secs, serr := strconv.Atoi(raw)
			if serr != nil {
				errors = append(errors, ValidationError{
					Field:   "timeout",
					Message: "Field 'timeout' must be a duration (e.g., 10s)",
					Code:    "invalid_duration",
				})
				return params, errors
			}
			d = time.Duration(secs) * time.Second
		}
		if d <= 0 || d > maxWaitTimeout {
			errors = append(errors, ValidationError{
				Field:   "timeout",
				Message: fmt.Sprintf("Field 'timeout' must be between 0 and %s", maxWaitTimeout),
				Code:    "out_of_range",
			})
			return params, errors
		}
		params.timeout = d
	}

	return params, errors
}
