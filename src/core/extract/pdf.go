package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// PDF extracts the text layer of a PDF document. Scanned PDFs without a text
// layer come back empty rather than erroring; the caller decides what an
// empty document means.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

func (p *PDF) ContentTypes() []string {
	return []string{"application/pdf"}
}

func (p *PDF) Extract(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs instead of returning
	// an error, so extraction is fenced with a recover.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: %v", ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var b bytes.Buffer
	if _, err := io.Copy(&b, plain); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	return b.String(), nil
}
