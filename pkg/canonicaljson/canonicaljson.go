// Package canonicaljson produces byte-stable JSON encodings suitable for
// content-addressing: object keys are sorted lexicographically, numbers are
// normalized, and non-finite floats are rejected. Every hash derived in
// settld (payloadHash, chainHash, artifactHash, contractHash) is computed
// over the output of Marshal.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Marshal returns the canonical JSON encoding of v: object keys sorted,
// no insignificant whitespace, numbers rendered deterministically.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}

	return encode(normalized)
}

// normalize round-trips v through encoding/json to obtain a generic
// any-tree (map[string]any / []any / json.Number|string|bool|nil), then
// validates it recursively.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal input: %w", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicaljson: decode intermediate: %w", err)
	}

	if err := validate(generic); err != nil {
		return nil, err
	}

	return generic, nil
}

func validate(v any) error {
	switch val := v.(type) {
	case map[string]any:
		for _, child := range val {
			if err := validate(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := validate(child); err != nil {
				return err
			}
		}
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("canonicaljson: invalid number %q: %w", val, err)
		}

		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("canonicaljson: non-finite number %q is not representable", val)
		}
	}

	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeInto(&buf, v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encodeInto(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}

		buf.Write(encoded)
	case json.Number:
		buf.WriteString(renderNumber(val))
	case map[string]any:
		return encodeObject(buf, val)
	case []any:
		return encodeArray(buf, val)
	default:
		return fmt.Errorf("canonicaljson: unsupported type %T", v)
	}

	return nil
}

func encodeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	buf.WriteByte('{')

	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return err
		}

		buf.Write(keyBytes)
		buf.WriteByte(':')

		if err := encodeInto(buf, m[k]); err != nil {
			return err
		}
	}

	buf.WriteByte('}')

	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')

	for i, item := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}

		if err := encodeInto(buf, item); err != nil {
			return err
		}
	}

	buf.WriteByte(']')

	return nil
}

// renderNumber normalizes integral json.Number values to have no trailing
// ".0" and no exponent, while preserving fractional values verbatim through
// strconv's shortest round-trip representation.
func renderNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}

	f, err := n.Float64()
	if err != nil {
		return n.String()
	}

	return strconv.FormatFloat(f, 'g', -1, 64)
}
