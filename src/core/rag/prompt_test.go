package rag

import (
	"strings"
	"testing"

	"smartassist/src/core/vectorindex"
)

func TestAssembleContext(t *testing.T) {
	tests := []struct {
		name         string
		hits         []vectorindex.Hit
		maxChars     int
		want         string
		wantIncluded []int64
	}{
		{
			name:         "no hits",
			hits:         nil,
			maxChars:     100,
			want:         "",
			wantIncluded: nil,
		},
		{
			name: "all fit",
			hits: []vectorindex.Hit{
				{ChunkID: 1, Text: "first chunk"},
				{ChunkID: 2, Text: "second chunk"},
			},
			maxChars:     100,
			want:         "first chunk\n\nsecond chunk",
			wantIncluded: []int64{1, 2},
		},
		{
			name: "skips empty texts",
			hits: []vectorindex.Hit{
				{ChunkID: 1, Text: "first"},
				{ChunkID: 2, Text: "   "},
				{ChunkID: 3, Text: "second"},
			},
			maxChars:     100,
			want:         "first\n\nsecond",
			wantIncluded: []int64{1, 3},
		},
		{
			name: "stops after truncated chunk",
			hits: []vectorindex.Hit{
				{ChunkID: 1, Text: "alpha beta gamma delta"},
				{ChunkID: 2, Text: "never included"},
			},
			maxChars:     14,
			want:         "alpha beta",
			wantIncluded: []int64{1},
		},
		{
			name: "zero budget",
			hits: []vectorindex.Hit{
				{ChunkID: 1, Text: "anything"},
			},
			maxChars:     0,
			want:         "",
			wantIncluded: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, included := assembleContext(tt.hits, tt.maxChars)
			if got != tt.want {
				t.Errorf("assembleContext() = %q, want %q", got, tt.want)
			}
			if len(included) != len(tt.wantIncluded) {
				t.Fatalf("included %d hits, want %d", len(included), len(tt.wantIncluded))
			}
			for i, hit := range included {
				if hit.ChunkID != tt.wantIncluded[i] {
					t.Errorf("included[%d].ChunkID = %d, want %d", i, hit.ChunkID, tt.wantIncluded[i])
				}
			}
		})
	}
}

func TestAssembleContextNeverExceedsBudget(t *testing.T) {
	hits := []vectorindex.Hit{
		{Text: strings.Repeat("lorem ipsum dolor sit amet ", 20)},
		{Text: strings.Repeat("consectetur adipiscing elit ", 20)},
		{Text: strings.Repeat("sed do eiusmod tempor ", 20)},
	}

	for _, budget := range []int{10, 50, 200, 1000} {
		got, included := assembleContext(hits, budget)
		if n := len([]rune(got)); n > budget {
			t.Errorf("budget %d: context has %d runes", budget, n)
		}
		if strings.HasSuffix(got, " ") {
			t.Errorf("budget %d: context ends with trailing space", budget)
		}
		if len(included) > len(hits) {
			t.Errorf("budget %d: %d included hits for %d inputs", budget, len(included), len(hits))
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	system, prompt, err := buildPrompt("some context", "what is this?")
	if err != nil {
		t.Fatalf("buildPrompt() error = %v", err)
	}
	if system == "" {
		t.Error("system instruction is empty")
	}
	if !strings.Contains(prompt, "some context") {
		t.Errorf("prompt %q does not contain the context", prompt)
	}
	if !strings.Contains(prompt, "what is this?") {
		t.Errorf("prompt %q does not contain the question", prompt)
	}
}
