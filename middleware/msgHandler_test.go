package middleware

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/Tk21111/drawsync/config"
)

func TestEncodeEvent_AllFieldsPresent(t *testing.T) {
	b, err := EncodeEvent(config.Drawing(0, 0, 0, 0, ""))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"type", "x0", "y0", "x1", "y1", "color"} {
		if _, ok := m[k]; !ok {
			t.Fatalf("field %q missing from %s", k, b)
		}
	}
	if m["type"] != "drawing" {
		t.Fatalf("type=%v, want drawing", m["type"])
	}
}

func TestDecodeEvent_RoundTrip(t *testing.T) {
	events := []config.DrawEvent{
		config.Drawing(0.125, 1.0/6, 0.25, 0.25, "red"),
		config.Drawing(0, 0, 1, 1, ""),
		config.Drawing(-0.5, 2.75, 1e-9, 0.3333333333333333, "hsl(120, 70%, 55%)"),
		config.Drawing(math.SmallestNonzeroFloat64, math.MaxFloat64, 0.1, 0.2, "#00ff00"),
	}

	for _, e := range events {
		b, err := EncodeEvent(e)
		if err != nil {
			t.Fatalf("encode %+v: %v", e, err)
		}
		got, err := DecodeEvent(b)
		if err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if got != e {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
		}
	}
}

func TestDecodeEvent_AcceptsOutOfRangeAndAnyColor(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"drawing","x0":-3,"y0":12.5,"x1":1,"y1":0,"color":"not-a-color"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.X0 != -3 || got.Y0 != 12.5 {
		t.Fatalf("coordinates were altered: %+v", got)
	}
	if got.Color != "not-a-color" {
		t.Fatalf("color=%q", got.Color)
	}
}

func TestDecodeEvent_IgnoresUnknownFields(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"drawing","x0":0.1,"y0":0.2,"x1":0.3,"y1":0.4,"color":"blue","width":5,"user":"x"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != config.Drawing(0.1, 0.2, 0.3, 0.4, "blue") {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestDecodeEvent_UnknownKind(t *testing.T) {
	got, err := DecodeEvent([]byte(`{"type":"cursor","x":0.5}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if errors.Is(err, ErrDecode) {
		t.Fatalf("unknown kind must not be reported as malformed")
	}
	if got.Kind != config.KindCursor {
		t.Fatalf("kind=%q, want cursor", got.Kind)
	}
}

func TestDecodeEvent_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"type":`,
		"array":            `[{"type":"drawing"}]`,
		"missing type":     `{"x0":0,"y0":0,"x1":0,"y1":0,"color":"red"}`,
		"missing x1":       `{"type":"drawing","x0":0,"y0":0,"y1":0,"color":"red"}`,
		"missing color":    `{"type":"drawing","x0":0,"y0":0,"x1":0,"y1":0}`,
		"null coordinate":  `{"type":"drawing","x0":null,"y0":0,"x1":0,"y1":0,"color":"red"}`,
		"string coord":     `{"type":"drawing","x0":"0.5","y0":0,"x1":0,"y1":0,"color":"red"}`,
		"bool coord":       `{"type":"drawing","x0":0,"y0":true,"x1":0,"y1":0,"color":"red"}`,
		"numeric color":    `{"type":"drawing","x0":0,"y0":0,"x1":0,"y1":0,"color":7}`,
		"non-string type":  `{"type":1,"x0":0,"y0":0,"x1":0,"y1":0,"color":"red"}`,
		"empty payload":    ``,
		"object for coord": `{"type":"drawing","x0":{},"y0":0,"x1":0,"y1":0,"color":"red"}`,
	}

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeEvent([]byte(msg)); !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrDecode, got %v", err)
			}
		})
	}
}

func TestEncodeEvent_RejectsNaN(t *testing.T) {
	if _, err := EncodeEvent(config.Drawing(math.NaN(), 0, 0, 0, "red")); err == nil {
		t.Fatalf("expected error encoding NaN")
	}
}
