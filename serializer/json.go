package serializer

import (
	"bytes"
	"encoding/json"
	"io"
)

// JSON serializes values as JSON. The zero value is ready to use.
type JSON struct {
	// Indent, when non-empty, pretty-prints output with the given indent string.
	Indent string

	// UseNumber tells the decoder to decode numbers into json.Number
	// instead of float64.
	UseNumber bool
}

// NewJSON creates a JSON serializer with default settings.
func NewJSON() *JSON {
	return &JSON{}
}

// ContentType returns "application/json".
func (s *JSON) ContentType() string {
	return "application/json"
}

// Marshal encodes v as JSON.
func (s *JSON) Marshal(v any) ([]byte, error) {
	if s.Indent != "" {
		return json.MarshalIndent(v, "", s.Indent)
	}
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (s *JSON) Unmarshal(data []byte, v any) error {
	if s.UseNumber {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		return dec.Decode(v)
	}
	return json.Unmarshal(data, v)
}

// Encode writes v as JSON to w.
func (s *JSON) Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if s.Indent != "" {
		enc.SetIndent("", s.Indent)
	}
	return enc.Encode(v)
}

// Decode reads a JSON value from r into v.
func (s *JSON) Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	if s.UseNumber {
		dec.UseNumber()
	}
	return dec.Decode(v)
}

// compile-time assertion
var _ Serializer = (*JSON)(nil)
