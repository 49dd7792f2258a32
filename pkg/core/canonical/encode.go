// Package canonical produces the byte-stable serialisation that every
// fingerprint in the engine is computed over. Mapping keys are sorted,
// array order is preserved, and numbers are rendered as their decimal
// string — never reconstructed through binary floats.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
)

// Encode returns the canonical bytes for v. Structs are first flattened
// through their JSON form with json.Number preserving the written decimal
// representation, then re-emitted with sorted keys.
func Encode(v interface{}) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := write(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toTree normalises an arbitrary value into the canonical value domain:
// nil, bool, string, json.Number, []interface{}, map[string]interface{}.
func toTree(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case nil, bool, string, json.Number:
		return t, nil
	case decimal.Decimal:
		return json.Number(t.String()), nil
	case *decimal.Decimal:
		if t == nil {
			return nil, nil
		}
		return json.Number(t.String()), nil
	case int:
		return json.Number(strconv.Itoa(t)), nil
	case int64:
		return json.Number(strconv.FormatInt(t, 10)), nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			n, err := toTree(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			n, err := toTree(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		// Structs, slices of structs, float-free round trip: marshal once,
		// then decode with UseNumber so numeric text survives verbatim.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("canonical: marshal: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var tree interface{}
		if err := dec.Decode(&tree); err != nil {
			return nil, fmt.Errorf("canonical: decode: %w", err)
		}
		return tree, nil
	}
}

// write renders a normalised tree deterministically.
func write(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		enc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case json.Number:
		// Decimal strings pass through as-is; this is the number rendering.
		buf.WriteString(string(t))
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := write(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}
