package extract_test

import (
	"errors"
	"strings"
	"testing"

	"smartassist/src/core/extract"
)

func newRegistry(t *testing.T) *extract.Registry {
	t.Helper()
	r, err := extract.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry() error = %v", err)
	}
	return r
}

func TestRegistryDispatch(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		name        string
		contentType string
		data        []byte
		want        string
		wantErr     error
	}{
		{
			name:        "plain text",
			contentType: "text/plain",
			data:        []byte("hello world"),
			want:        "hello world",
		},
		{
			name:        "content type with charset parameter",
			contentType: "text/plain; charset=utf-8",
			data:        []byte("hello"),
			want:        "hello",
		},
		{
			name:        "markdown",
			contentType: "text/markdown",
			data:        []byte("# Title\n\nBody text."),
			want:        "# Title\n\nBody text.",
		},
		{
			name:        "csv flattened to lines",
			contentType: "text/csv",
			data:        []byte("name,role\nalice,admin\nbob,viewer"),
			want:        "name, role\nalice, admin\nbob, viewer",
		},
		{
			name:        "unsupported type",
			contentType: "application/msword",
			data:        []byte("whatever"),
			wantErr:     extract.ErrUnsupportedFormat,
		},
		{
			name:        "empty document",
			contentType: "text/plain",
			data:        nil,
			wantErr:     extract.ErrCorruptDocument,
		},
		{
			name:        "invalid utf-8",
			contentType: "text/plain",
			data:        []byte{0xff, 0xfe, 0x41},
			wantErr:     extract.ErrCorruptDocument,
		},
		{
			name:        "unbalanced csv quotes",
			contentType: "text/csv",
			data:        []byte("a,\"b\nc,d"),
			wantErr:     extract.ErrCorruptDocument,
		},
		{
			name:        "garbage pdf",
			contentType: "application/pdf",
			data:        []byte("not a pdf at all"),
			wantErr:     extract.ErrCorruptDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Extract(tt.contentType, tt.data)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Extract() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistrySupported(t *testing.T) {
	r := newRegistry(t)

	for ct, want := range map[string]bool{
		"text/plain":               true,
		"text/markdown":            true,
		"text/csv":                 true,
		"application/pdf":          true,
		"TEXT/PLAIN":               true,
		"text/csv; header=present": true,
		"image/png":                false,
		"application/octet-stream": false,
	} {
		if got := r.Supported(ct); got != want {
			t.Errorf("Supported(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	_, err := extract.NewRegistry(extract.NewPlainText(), extract.NewPlainText())
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("NewRegistry() error = %v, want duplicate registration error", err)
	}
}

func TestExtractorsArePure(t *testing.T) {
	r := newRegistry(t)

	// Same input, same output, regardless of prior calls.
	data := []byte("repeatable content")
	first, err := r.Extract("text/plain", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if _, err := r.Extract("text/csv", []byte("x,y")); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	second, err := r.Extract("text/plain", data)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if first != second {
		t.Errorf("extraction not repeatable: %q then %q", first, second)
	}
}
