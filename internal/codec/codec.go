// Package codec implements the line-oriented record format shared by every
// input and output stream of the worker.
//
// A record is one line: an opaque key, a single tab, and a JSON object
// payload. Payload values are restricted to a canonical domain (float64,
// string, []any and map[string]any, recursively) so that Decode is the exact
// inverse of Encode.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"strings"

	xerr "github.com/arkilian/xcat/internal/errors"
)

// Separator splits the key from the payload.
const Separator = '\t'

// Payload is the structured part of a record. Numbers are float64, so
// integers are exact only up to 2^53 in magnitude (and beyond that only when
// float64 happens to hold them); Decode rejects integer literals it would
// have to round, such as an upstream SEED of 2^53+1.
type Payload map[string]any

// Decode parses one line into its key and payload. A trailing newline (and
// carriage return) is ignored.
func Decode(line []byte) (string, Payload, error) {
	line = bytes.TrimRight(line, "\r\n")
	idx := bytes.IndexByte(line, Separator)
	if idx < 0 {
		return "", nil, xerr.NewMalformedRecord("missing key separator", nil)
	}
	key := string(line[:idx])
	if key == "" {
		return "", nil, xerr.NewMalformedRecord("empty key", nil)
	}

	dec := json.NewDecoder(bytes.NewReader(line[idx+1:]))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return "", nil, xerr.NewMalformedRecord("payload is not valid JSON", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return "", nil, xerr.NewMalformedRecord("trailing data after payload", err)
	}
	raw, err := toFloats(raw, "$")
	if err != nil {
		return "", nil, xerr.NewMalformedRecord(err.Error(), nil)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return "", nil, xerr.NewMalformedRecord(fmt.Sprintf("payload is %T, want object", raw), nil)
	}
	if err := validate(obj, "$"); err != nil {
		return "", nil, xerr.NewMalformedRecord(err.Error(), nil)
	}
	return key, Payload(obj), nil
}

// Encode renders a record line, including the trailing newline.
func Encode(key string, p Payload) ([]byte, error) {
	if key == "" || strings.ContainsAny(key, "\t\r\n") {
		return nil, xerr.NewUnrepresentable(fmt.Sprintf("invalid key %q", key))
	}
	if p == nil {
		p = Payload{}
	}
	if err := validate(map[string]any(p), "$"); err != nil {
		return nil, xerr.NewUnrepresentable(err.Error())
	}
	body, err := json.Marshal(map[string]any(p))
	if err != nil {
		return nil, xerr.NewUnrepresentable(err.Error())
	}
	out := make([]byte, 0, len(key)+len(body)+2)
	out = append(out, key...)
	out = append(out, Separator)
	out = append(out, body...)
	out = append(out, '\n')
	return out, nil
}

// FromValue converts any JSON-marshalable value into a canonical payload.
// Null fields are dropped; nulls inside arrays are rejected.
func FromValue(v any) (Payload, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, xerr.NewUnrepresentable(err.Error())
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, xerr.NewUnrepresentable(err.Error())
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, xerr.NewUnrepresentable(fmt.Sprintf("%T does not encode to an object", v))
	}
	dropNulls(obj)
	if err := validate(obj, "$"); err != nil {
		return nil, xerr.NewUnrepresentable(err.Error())
	}
	return Payload(obj), nil
}

// Decode unpacks the payload into a typed value, leaving fields absent from
// the payload untouched.
func (p Payload) Decode(v any) error {
	body, err := json.Marshal(map[string]any(p))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// Merge returns a new payload holding p's fields overlaid with other's.
func (p Payload) Merge(other Payload) Payload {
	out := make(Payload, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Validate reports whether p lies in the canonical domain.
func Validate(p Payload) error {
	return validate(map[string]any(p), "$")
}

func validate(v any, path string) error {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("%s: non-finite number", path)
		}
		return nil
	case string:
		return nil
	case []any:
		if val == nil {
			return fmt.Errorf("%s: nil sequence", path)
		}
		for i, elem := range val {
			if err := validate(elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		if val == nil {
			return fmt.Errorf("%s: nil map", path)
		}
		for k, elem := range val {
			if err := validate(elem, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%s: null is not representable", path)
	default:
		return fmt.Errorf("%s: %T is not representable", path, v)
	}
}

// toFloats replaces the json.Number values of a decoded document with
// float64, failing on integer literals that float64 would round.
func toFloats(v any, path string) (any, error) {
	switch val := v.(type) {
	case json.Number:
		lit := val.String()
		if !strings.ContainsAny(lit, ".eE") {
			n, ok := new(big.Int).SetString(lit, 10)
			if !ok {
				return nil, fmt.Errorf("%s: invalid integer %s", path, lit)
			}
			f, acc := new(big.Float).SetInt(n).Float64()
			if acc != big.Exact {
				return nil, fmt.Errorf("%s: integer %s is not exactly representable", path, lit)
			}
			return f, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s: number %s out of range", path, lit)
		}
		return f, nil
	case []any:
		for i, elem := range val {
			conv, err := toFloats(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			val[i] = conv
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			conv, err := toFloats(elem, path+"."+k)
			if err != nil {
				return nil, err
			}
			val[k] = conv
		}
		return val, nil
	default:
		return v, nil
	}
}

func dropNulls(v any) {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			if elem == nil {
				delete(val, k)
				continue
			}
			dropNulls(elem)
		}
	case []any:
		for _, elem := range val {
			dropNulls(elem)
		}
	}
}
