package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Body is a replayable request payload: inline bytes, a file reopened for
// every request, or nothing.
type Body struct {
	data []byte
	path string
	size int64
}

// NewBody picks an inline body or a file path; at most one may be set.
func NewBody(inline, file string) (Body, error) {
	file = strings.TrimSpace(file)
	switch {
	case inline != "" && file != "":
		return Body{}, errors.New("body and body file cannot both be provided")
	case inline != "":
		return Body{data: []byte(inline), size: int64(len(inline))}, nil
	case file != "":
		info, err := os.Stat(file)
		if err != nil {
			return Body{}, fmt.Errorf("body file: %w", err)
		}
		if info.IsDir() {
			return Body{}, fmt.Errorf("body file %q is a directory", file)
		}
		return Body{path: file, size: info.Size()}, nil
	default:
		return Body{}, nil
	}
}

// Len is the number of bytes Open yields.
func (b Body) Len() int64 { return b.size }

// Empty reports whether requests carry no payload.
func (b Body) Empty() bool { return b.data == nil && b.path == "" }

// Open returns a fresh reader over the payload.
func (b Body) Open() (io.ReadCloser, error) {
	switch {
	case b.path != "":
		return os.Open(b.path)
	case b.data != nil:
		return io.NopCloser(bytes.NewReader(b.data)), nil
	default:
		return http.NoBody, nil
	}
}
