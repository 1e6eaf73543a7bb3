package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	ContentTypePNG = "image/png"

	// DefaultSelector matches the elements the labels page renders with the "label" class.
	DefaultSelector = ".label"

	labelsPageMarker = "Labels"
)

var ErrNotLabelsPage = errors.New("page is not a labels page")

// Blob is an immutable piece of binary data tagged with its content type.
type Blob struct {
	Data        []byte
	ContentType string
}

func (b Blob) Len() int {
	return len(b.Data)
}

// Element is a single label node in a loaded page.
type Element interface {
	Rasterize(ctx context.Context) (Blob, error)
}

// Page is a loaded document that label elements can be queried from.
type Page interface {
	Title(ctx context.Context) (string, error)
	// Labels returns the label elements in DOM order.
	Labels(ctx context.Context) ([]Element, error)
	Close() error
}

type OpenOptions struct {
	Headers map[string]string
}

// Browser opens pages with a rendering engine.
type Browser interface {
	Open(ctx context.Context, url string, options OpenOptions) (Page, error)
	Close() error
}

type RasterizationError struct {
	Index int
	Err   error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("failed to rasterize label %d: %v", e.Index+1, e.Err)
}

func (e *RasterizationError) Unwrap() error {
	return e.Err
}

// IsLabelsPage reports whether a document title belongs to a labels page.
func IsLabelsPage(title string) bool {
	return strings.Contains(title, labelsPageMarker)
}
