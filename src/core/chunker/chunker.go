package chunker

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	DefaultMaxChunkChars = 1500
	DefaultOverlapChars  = 200
)

// Config controls how extracted text is cut into chunks.
type Config struct {
	// MaxChunkChars is the hard upper bound on chunk length, in runes.
	MaxChunkChars int
	// OverlapChars is how many trailing runes of one chunk reappear at the
	// start of the next, so that sentences cut at a boundary keep their
	// surrounding context.
	OverlapChars int
}

func DefaultConfig() Config {
	return Config{
		MaxChunkChars: DefaultMaxChunkChars,
		OverlapChars:  DefaultOverlapChars,
	}
}

func (c Config) Validate() error {
	if c.MaxChunkChars <= 0 {
		return fmt.Errorf("max chunk chars must be positive, got %d", c.MaxChunkChars)
	}
	if c.OverlapChars < 0 || c.OverlapChars >= c.MaxChunkChars {
		return fmt.Errorf("overlap chars must be in [0, max chunk chars), got %d", c.OverlapChars)
	}
	return nil
}

// Piece is one chunk of the source text. Start and End are rune offsets into
// the original text, so pieces can be mapped back to their source span.
type Piece struct {
	Start int
	End   int
	Text  string
}

// Chunker splits text into ordered, overlapping pieces.
type Chunker struct {
	cfg Config
}

func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}
	return &Chunker{cfg: cfg}, nil
}

// Chunk splits text into pieces of at most MaxChunkChars runes. Consecutive
// pieces overlap by OverlapChars runes. Cuts prefer a sentence or line ending
// inside the trailing overlap window over a hard cut mid-sentence.
//
// Whitespace-only input yields no pieces. Input shorter than MaxChunkChars
// yields exactly one piece spanning the whole text.
func (c *Chunker) Chunk(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var pieces []Piece

	start := 0
	for start < len(runes) {
		end := start + c.cfg.MaxChunkChars
		if end >= len(runes) {
			pieces = append(pieces, Piece{
				Start: start,
				End:   len(runes),
				Text:  string(runes[start:]),
			})
			break
		}

		if cut := c.findBreak(runes, start, end); cut > start {
			end = cut
		}

		pieces = append(pieces, Piece{
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})

		next := end - c.cfg.OverlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return pieces
}

// findBreak scans backwards from the hard cut-off, within the overlap window,
// for a sentence or line ending. Returns the rune index just past the break,
// or -1 when the window holds no usable break.
func (c *Chunker) findBreak(runes []rune, start, hardEnd int) int {
	windowStart := hardEnd - c.cfg.OverlapChars
	if windowStart <= start {
		windowStart = start + 1
	}

	for i := hardEnd - 1; i >= windowStart; i-- {
		if !isBreakRune(runes[i]) {
			continue
		}
		// Only treat a sentence ending as a break when it really ends
		// something, i.e. the next rune is whitespace.
		if i+1 < len(runes) && runes[i] != '\n' && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		return i + 1
	}

	return -1
}

func isBreakRune(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
