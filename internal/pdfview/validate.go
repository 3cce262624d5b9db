package pdfview

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Upload limits.
const (
	MaxUploadSize = 50 * 1024 * 1024
	// Files above ImageCheckSize with more than ImageBytesPerPage per page
	// are treated as scanned images.
	ImageCheckSize    = 5 * 1024 * 1024
	ImageBytesPerPage = 2 * 1024 * 1024
)

var (
	ErrNotPDF     = errors.New("only PDF files are allowed")
	ErrTooLarge   = errors.New("file size too large: PDFs over 50MB are not allowed")
	ErrInvalidPDF = errors.New("failed to read PDF")
	ErrNoPages    = errors.New("PDF has no pages")
	ErrImageBased = errors.New("PDF appears to be image-based: only text-based PDFs are allowed")
)

// ValidationResult describes an accepted upload.
type ValidationResult struct {
	FileName  string `json:"file_name"`
	Size      int64  `json:"size"`
	PageCount int    `json:"page_count"`
}

// Validate checks an upload before it is sent anywhere. r is rewound to the
// start before returning successfully.
func Validate(name string, r io.ReadSeeker, size int64) (*ValidationResult, error) {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, name)
	}
	if size > MaxUploadSize {
		return nil, ErrTooLarge
	}

	magic := make([]byte, 5)
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: %s does not start with a PDF header", ErrNotPDF, name)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", name, err)
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pageCount, err := api.PageCount(r, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if pageCount < 1 {
		return nil, ErrNoPages
	}
	if LikelyImageBased(size, pageCount) {
		return nil, ErrImageBased
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind %s: %w", name, err)
	}

	return &ValidationResult{FileName: name, Size: size, PageCount: pageCount}, nil
}

// LikelyImageBased reports whether a document is large and dense enough
// per page that it is probably scanned images rather than text.
func LikelyImageBased(size int64, pageCount int) bool {
	if size <= ImageCheckSize || pageCount < 1 {
		return false
	}
	return size/int64(pageCount) > ImageBytesPerPage
}
