// Package compress provides the reversible payload transform used by the
// in-process cache tier for values above the configured size threshold.
package compress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Compress encodes data with gzip. The result is only useful when it is
// smaller than the input; callers decide whether to keep it.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes a gzip payload. On any decode failure the input is
// returned unchanged, so callers always get bytes back; a corrupted or
// never-compressed payload is surfaced as-is rather than as an error.
func Decompress(data []byte) []byte {
	if !IsCompressed(data) {
		return data
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return data
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(r)
	if err != nil {
		return data
	}
	return out
}

// IsCompressed reports whether data carries the gzip magic header. Decompress
// uses it to pass payloads stored before compression was enabled through
// unchanged.
func IsCompressed(data []byte) bool {
	return len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b
}
