package serializer

import "io"

// Serializer converts values to and from wire payloads.
type Serializer interface {
	// ContentType returns the media type written by Marshal (e.g. "application/json").
	ContentType() string

	// Marshal encodes a value into a payload.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes a payload into the given destination pointer.
	Unmarshal(data []byte, v any) error

	// Encode writes the encoded value to w. Streaming counterpart of Marshal.
	Encode(w io.Writer, v any) error

	// Decode reads and decodes a value from r. Streaming counterpart of Unmarshal.
	Decode(r io.Reader, v any) error
}
