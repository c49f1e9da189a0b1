package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/encodeous/dvr/state"
	"github.com/goccy/go-yaml"
)

var ErrMalformedVector = errors.New("malformed distance vector")

// EncodeVector renders a vector as a flat JSON style mapping, e.g. {"A": 0, "B": 3}.
// Names must be valid UTF-8, otherwise the encoder would rewrite them and the peer would learn a name that does not exist.
func EncodeVector(vec state.Vector) ([]byte, error) {
	m := make(map[string]uint32, len(vec))
	for dst, cost := range vec {
		if !utf8.ValidString(string(dst)) {
			return nil, fmt.Errorf("%w: destination %q is not valid utf-8", ErrMalformedVector, string(dst))
		}
		m[string(dst)] = uint32(cost)
	}
	return yaml.MarshalWithOptions(m, yaml.JSON())
}

// DecodeVector parses a payload produced by EncodeVector. Key order does not matter.
// The payload must be a single document holding a mapping from non-empty UTF-8 names to integer costs.
//
// Decoding goes through the YAML parser, so it is looser than strict JSON: unquoted keys ({1: 2}),
// YAML integer forms such as 0x10 and integral floats such as 2.0 are accepted. Exponent forms
// without a fraction (1e3) are read as strings and rejected. EncodeVector never emits any of these.
func DecodeVector(data []byte) (state.Vector, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedVector)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: payload is not valid utf-8", ErrMalformedVector)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var doc any
	err := dec.Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedVector, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after the first document", ErrMalformedVector)
	}
	raw, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a mapping, got %T", ErrMalformedVector, doc)
	}
	vec := make(state.Vector, len(raw))
	for dst, v := range raw {
		if dst == "" {
			return nil, fmt.Errorf("%w: empty destination", ErrMalformedVector)
		}
		if !utf8.ValidString(dst) {
			return nil, fmt.Errorf("%w: destination %q is not valid utf-8", ErrMalformedVector, dst)
		}
		cost, err := toMetric(v)
		if err != nil {
			return nil, fmt.Errorf("%w: destination %s: %w", ErrMalformedVector, dst, err)
		}
		vec[state.NodeId(dst)] = cost
	}
	return vec, nil
}

func toMetric(v any) (state.Metric, error) {
	switch x := v.(type) {
	case uint64:
		if x > uint64(state.MaxMetric) {
			return 0, fmt.Errorf("cost %d out of range", x)
		}
		return state.Metric(x), nil
	case int64:
		if x < 0 || x > int64(state.MaxMetric) {
			return 0, fmt.Errorf("cost %d out of range", x)
		}
		return state.Metric(x), nil
	case int:
		if x < 0 || uint64(x) > uint64(state.MaxMetric) {
			return 0, fmt.Errorf("cost %d out of range", x)
		}
		return state.Metric(x), nil
	case float64:
		if x != math.Trunc(x) || x < 0 || x > float64(state.MaxMetric) {
			return 0, fmt.Errorf("cost %v is not a valid integer cost", x)
		}
		return state.Metric(x), nil
	default:
		return 0, fmt.Errorf("cost %v has unsupported type %T", v, v)
	}
}
