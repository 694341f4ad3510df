// Package jsonx is the canonical JSON codec (C1) used for event payloads,
// metadata, stream metadata, and projection position/state. Every caller
// here deals in dynamic maps (metadata, projection position/state) rather
// than fixed schemas, so it wraps encoding/json directly instead of a
// struct-tag code generator; number precision across a decode/marshal
// round trip is handled by DecodeNumberPreserving, not by a separate raw
// byte-slice type.
package jsonx

import (
	"bytes"
	"encoding/json"
)

// Marshal encodes v without HTML-escaping (</script> etc. survive
// untouched) and without a trailing newline, matching what the store
// writes into payload/metadata columns.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal decodes data into v. Object values land as map[string]interface{}
// and arrays as []interface{}, same as encoding/json's default behavior.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeNumberPreserving decodes any JSON value (object, array, or
// scalar) using json.Number for numeric values so that "0.0" is not
// collapsed into the float64 value 0 (which Marshal would later render
// as "0"). Used for anything read back from the database that might be
// re-serialized later (event payload/metadata, projection position/state).
func DecodeNumberPreserving(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeObjectNumberPreserving is DecodeNumberPreserving for the common
// case of a JSON object (metadata, projection position/state).
func DecodeObjectNumberPreserving(data []byte) (map[string]interface{}, error) {
	v, err := DecodeNumberPreserving(data)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, &json.UnmarshalTypeError{Value: "non-object"}
	}
	return m, nil
}
