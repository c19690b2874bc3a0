package flow

import (
	"io"

	"github.com/h2non/filetype"
	"github.com/rotisserie/eris"
)

// DefaultMaxBytes is the largest accepted upload.
const DefaultMaxBytes = 2 << 20

var (
	ErrEmptyFile    = eris.New("flow: file is empty")
	ErrFileTooLarge = eris.New("flow: file exceeds the upload size limit")
	ErrNotPDF       = eris.New("flow: file is not a PDF")
)

// ReadPDF reads at most maxBytes from r and checks that the content is a
// PDF.
func ReadPDF(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "flow: read upload")
	}
	switch {
	case len(data) == 0:
		return nil, ErrEmptyFile
	case int64(len(data)) > maxBytes:
		return nil, ErrFileTooLarge
	case !filetype.Is(data, "pdf"):
		return nil, ErrNotPDF
	}
	return data, nil
}
