// Package serialization provides pluggable encoders and decoders for cache
// payloads. JSON is the default; gob is available for value types that do not
// round-trip cleanly through JSON.
package serialization

import (
	"bytes"
	"io"
)

const (
	// JSONType represents the serialization type for JSON format.
	JSONType = "json"

	// GobType represents the serialization type for Gob format.
	GobType = "gob"
)

// Decoder decodes a serialized stream into a value.
type Decoder interface {
	Decode(v any) error
}

// Encoder serializes a value into a stream.
type Encoder interface {
	Encode(v any) error
}

// EncoderFactory builds an Encoder writing to w.
type EncoderFactory func(w io.Writer) Encoder

// DecoderFactory builds a Decoder reading from r.
type DecoderFactory func(r io.Reader) Decoder

// Marshal serializes v to a byte slice using the given factory.
func Marshal(factory EncoderFactory, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := factory(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal deserializes data into v using the given factory.
func Unmarshal(factory DecoderFactory, data []byte, v any) error {
	return factory(bytes.NewReader(data)).Decode(v)
}
