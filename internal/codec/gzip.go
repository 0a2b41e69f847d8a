// Package codec compresses and decompresses content bytes. It uses
// klauspost/compress's gzip implementation as a drop-in replacement for
// the standard library package, for the same throughput reasons the
// rest of the retrieval pack reaches for it.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Error wraps a failure from a specific codec stage.
type Error struct {
	Stage string // "compress" or "decompress"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("codec: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Compress gzips b and returns the compressed buffer.
func Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, &Error{Stage: "compress", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Stage: "compress", Err: err}
	}
	return buf.Bytes(), nil
}

// Decompress gunzips b and returns the original buffer.
func Decompress(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, &Error{Stage: "decompress", Err: err}
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Stage: "decompress", Err: err}
	}
	return out, nil
}
