// Package extract turns uploaded document bytes into plain text, dispatching
// on the declared content type.
package extract

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	// ErrUnsupportedFormat means no extractor is registered for the content type.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrCorruptDocument means the bytes do not parse as the declared format.
	ErrCorruptDocument = errors.New("corrupt document")
)

// Extractor converts one family of document formats into plain text.
// Implementations must be stateless: Extract reads only its input and is safe
// for concurrent use.
type Extractor interface {
	// ContentTypes lists the media types this extractor handles.
	ContentTypes() []string
	// Extract returns the plain text content of data. It returns
	// ErrCorruptDocument (possibly wrapped) when data does not parse.
	Extract(data []byte) (string, error)
}

// Registry dispatches extraction by content type. It is populated at
// construction and read-only afterwards.
type Registry struct {
	byType map[string]Extractor
}

// NewRegistry builds a registry over the given extractors. Registering two
// extractors for the same content type is a wiring mistake and fails.
func NewRegistry(extractors ...Extractor) (*Registry, error) {
	byType := make(map[string]Extractor)
	for _, e := range extractors {
		for _, ct := range e.ContentTypes() {
			normalized := normalizeContentType(ct)
			if _, exists := byType[normalized]; exists {
				return nil, fmt.Errorf("duplicate extractor for content type %q", normalized)
			}
			byType[normalized] = e
		}
	}
	return &Registry{byType: byType}, nil
}

// DefaultRegistry returns a registry with all built-in extractors.
func DefaultRegistry() (*Registry, error) {
	return NewRegistry(
		NewPlainText(),
		NewCSV(),
		NewPDF(),
	)
}

// Supported reports whether the content type has a registered extractor.
func (r *Registry) Supported(contentType string) bool {
	_, ok := r.byType[normalizeContentType(contentType)]
	return ok
}

// Extract dispatches to the extractor registered for contentType. Parameters
// like charset are stripped before lookup, so "text/plain; charset=utf-8"
// matches "text/plain".
func (r *Registry) Extract(contentType string, data []byte) (string, error) {
	normalized := normalizeContentType(contentType)
	e, ok := r.byType[normalized]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrCorruptDocument)
	}
	text, err := e.Extract(data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %q document: %w", normalized, err)
	}
	return text, nil
}

func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}
