package middleware

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Tk21111/drawsync/config"
)

var (
	ErrDecode      = errors.New("decode draw event")
	ErrUnknownKind = errors.New("unknown event kind")
)

// wireMsg mirrors config.DrawEvent with pointer fields so a missing key can
// be told apart from a zero value.
type wireMsg struct {
	Type  *string          `json:"type"`
	X0    *json.RawMessage `json:"x0"`
	Y0    *json.RawMessage `json:"y0"`
	X1    *json.RawMessage `json:"x1"`
	Y1    *json.RawMessage `json:"y1"`
	Color *json.RawMessage `json:"color"`
}

func EncodeEvent(e config.DrawEvent) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode draw event: %w", err)
	}
	return b, nil
}

// DecodeEvent parses one wire message. A message of a kind this build does
// not know is returned with ErrUnknownKind so the caller can skip it; every
// malformed payload matches ErrDecode.
func DecodeEvent(msg []byte) (config.DrawEvent, error) {
	var m wireMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return config.DrawEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if m.Type == nil {
		return config.DrawEvent{}, fmt.Errorf("%w: missing type", ErrDecode)
	}

	kind := config.Kind(*m.Type)
	if !kind.Known() {
		return config.DrawEvent{Kind: kind}, ErrUnknownKind
	}

	e := config.DrawEvent{Kind: kind}

	coords := []struct {
		name string
		raw  *json.RawMessage
		dst  *float64
	}{
		{"x0", m.X0, &e.X0},
		{"y0", m.Y0, &e.Y0},
		{"x1", m.X1, &e.X1},
		{"y1", m.Y1, &e.Y1},
	}
	for _, c := range coords {
		if err := decodeNumber(c.name, c.raw, c.dst); err != nil {
			return config.DrawEvent{}, err
		}
	}

	if m.Color == nil || isNull(*m.Color) {
		return config.DrawEvent{}, fmt.Errorf("%w: missing color", ErrDecode)
	}
	if err := json.Unmarshal(*m.Color, &e.Color); err != nil {
		return config.DrawEvent{}, fmt.Errorf("%w: color is not a string", ErrDecode)
	}

	return e, nil
}

func decodeNumber(name string, raw *json.RawMessage, dst *float64) error {
	if raw == nil || isNull(*raw) {
		return fmt.Errorf("%w: missing %s", ErrDecode, name)
	}
	if err := json.Unmarshal(*raw, dst); err != nil {
		return fmt.Errorf("%w: %s is not a number", ErrDecode, name)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
