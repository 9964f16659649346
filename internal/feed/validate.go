package feed

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/koios/lotmap/pkg/models"
)

// ValidationError describes why a record was rejected
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result is the outcome of validating one record: either a Spot or a reason
type Result struct {
	Spot    models.Spot
	Invalid *ValidationError
}

// Valid reports whether the record produced a spot
func (r Result) Valid() bool {
	return r.Invalid == nil
}

var geometryFields = []string{"x", "y", "width", "height"}

// Validate checks a raw record and converts it into a Spot. Geometry fields
// must be finite numbers and status must be a string; label falls back to the
// record ID.
func Validate(rec Record) Result {
	if rec.ID == "" {
		return invalid("id", "record has no id", "missing_id")
	}

	geometry := make([]float64, len(geometryFields))
	for i, field := range geometryFields {
		raw, exists := rec.Data[field]
		if !exists || raw == nil {
			return invalid(field, fmt.Sprintf("field '%s' is required", field), "required")
		}
		n, ok := toNumber(raw)
		if !ok {
			return invalid(field, fmt.Sprintf("field '%s' must be a number", field), "invalid_type")
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return invalid(field, fmt.Sprintf("field '%s' must be finite", field), "not_finite")
		}
		geometry[i] = n
	}

	rawStatus, exists := rec.Data["status"]
	if !exists || rawStatus == nil {
		return invalid("status", "field 'status' is required", "required")
	}
	status, ok := rawStatus.(string)
	if !ok {
		return invalid("status", "field 'status' must be a string", "invalid_type")
	}

	label := rec.ID
	if l, ok := rec.Data["label"].(string); ok && l != "" {
		label = l
	}

	lotID, _ := rec.Data["lotId"].(string)

	return Result{Spot: models.Spot{
		ID:     rec.ID,
		X:      geometry[0],
		Y:      geometry[1],
		Width:  geometry[2],
		Height: geometry[3],
		Status: models.SpotStatus(status),
		Label:  label,
		LotID:  lotID,
	}}
}

func invalid(field, message, code string) Result {
	return Result{Invalid: &ValidationError{Field: field, Message: message, Code: code}}
}

// toNumber accepts the numeric types a decoder or an in-process publisher may
// produce. Numeric-looking strings are not numbers.
func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
