package feed

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/koios/lotmap/pkg/models"
)

func validData() map[string]interface{} {
	return map[string]interface{}{
		"x": 1.0, "y": 2.0, "width": 10.0, "height": 20.0,
		"status": "available", "label": "P1", "lotId": "lot-a",
	}
}

func TestValidateAcceptsWellFormedRecord(t *testing.T) {
	res := Validate(Record{ID: "s1", Data: validData()})
	if !res.Valid() {
		t.Fatalf("expected valid, got %v", res.Invalid)
	}

	want := models.Spot{ID: "s1", X: 1, Y: 2, Width: 10, Height: 20, Status: models.StatusAvailable, Label: "P1", LotID: "lot-a"}
	if res.Spot != want {
		t.Errorf("Spot = %+v, want %+v", res.Spot, want)
	}
}

func TestValidateRejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
		field  string
		code   string
	}{
		{"missing x", func(d map[string]interface{}) { delete(d, "x") }, "x", "required"},
		{"missing width", func(d map[string]interface{}) { delete(d, "width") }, "width", "required"},
		{"nil height", func(d map[string]interface{}) { d["height"] = nil }, "height", "required"},
		{"string y", func(d map[string]interface{}) { d["y"] = "2" }, "y", "invalid_type"},
		{"bool width", func(d map[string]interface{}) { d["width"] = true }, "width", "invalid_type"},
		{"NaN x", func(d map[string]interface{}) { d["x"] = math.NaN() }, "x", "not_finite"},
		{"Inf height", func(d map[string]interface{}) { d["height"] = math.Inf(1) }, "height", "not_finite"},
		{"missing status", func(d map[string]interface{}) { delete(d, "status") }, "status", "required"},
		{"numeric status", func(d map[string]interface{}) { d["status"] = 1 }, "status", "invalid_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			tt.mutate(data)

			res := Validate(Record{ID: "s1", Data: data})
			if res.Valid() {
				t.Fatal("expected record to be rejected")
			}
			if res.Invalid.Field != tt.field {
				t.Errorf("Field = %q, want %q", res.Invalid.Field, tt.field)
			}
			if res.Invalid.Code != tt.code {
				t.Errorf("Code = %q, want %q", res.Invalid.Code, tt.code)
			}
		})
	}
}

func TestValidateRejectsMissingID(t *testing.T) {
	if res := Validate(Record{Data: validData()}); res.Valid() {
		t.Error("expected record without id to be rejected")
	}
}

func TestValidateNumericTypes(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{"int", 5},
		{"int8", int8(5)},
		{"int16", int16(5)},
		{"int64", int64(5)},
		{"float32", float32(5)},
		{"uint", uint(5)},
		{"uint8", uint8(5)},
		{"uint16", uint16(5)},
		{"json.Number", json.Number("5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			data["width"] = tt.value
			res := Validate(Record{ID: "s1", Data: data})
			if !res.Valid() {
				t.Fatalf("expected valid, got %v", res.Invalid)
			}
			if res.Spot.Width != 5 {
				t.Errorf("Width = %v, want 5", res.Spot.Width)
			}
		})
	}

	data := validData()
	data["width"] = json.Number("five")
	if Validate(Record{ID: "s1", Data: data}).Valid() {
		t.Error("malformed json.Number should be rejected")
	}
}

func TestValidateLabelFallsBackToID(t *testing.T) {
	tests := []struct {
		name  string
		label interface{}
		set   bool
	}{
		{"absent", nil, false},
		{"empty", "", true},
		{"not a string", 42, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validData()
			delete(data, "label")
			if tt.set {
				data["label"] = tt.label
			}
			res := Validate(Record{ID: "spot-9", Data: data})
			if !res.Valid() {
				t.Fatalf("expected valid, got %v", res.Invalid)
			}
			if res.Spot.Label != "spot-9" {
				t.Errorf("Label = %q, want spot-9", res.Spot.Label)
			}
		})
	}
}

func TestValidateKeepsUnknownStatus(t *testing.T) {
	data := validData()
	data["status"] = "reserved"

	res := Validate(Record{ID: "s1", Data: data})
	if !res.Valid() {
		t.Fatalf("unknown status must not be discarded: %v", res.Invalid)
	}
	if res.Spot.Status != "reserved" {
		t.Errorf("Status = %q, want reserved", res.Spot.Status)
	}
	if res.Spot.Status.Known() {
		t.Error("reserved should not be a known status")
	}
}

func TestValidateAllowsNonPositiveSize(t *testing.T) {
	data := validData()
	data["width"] = 0.0
	data["height"] = -3.0

	if res := Validate(Record{ID: "s1", Data: data}); !res.Valid() {
		t.Errorf("non-positive size is a data-quality concern, got %v", res.Invalid)
	}
}
