package extract

import (
	"fmt"
	"unicode/utf8"
)

// PlainText handles text/plain and text/markdown. Markdown is treated as
// readable text; its markup survives into the extracted output, which keeps
// headings and list markers visible to retrieval.
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (p *PlainText) ContentTypes() []string {
	return []string{"text/plain", "text/markdown"}
}

func (p *PlainText) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrCorruptDocument)
	}
	return string(data), nil
}
