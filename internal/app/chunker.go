package app

import (
	"strings"
	"unicode"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Chunker splits extracted text into overlapping windows measured in runes,
// preferring to end a window at a sentence or line boundary.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) Split(text string) []string {
	runes := []rune(cleanText(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			for i := end - 1; i > start+c.size/2; i-- {
				if isBoundary(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func isBoundary(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '\n'
}

// cleanText collapses runs of spaces and blank lines but keeps single line
// breaks, which are useful split points.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace, pendingNewline := false, false
	for _, r := range strings.TrimSpace(text) {
		switch {
		case r == '\n' || r == '\r':
			pendingNewline = true
		case unicode.IsSpace(r):
			pendingSpace = true
		default:
			if pendingNewline {
				b.WriteRune('\n')
			} else if pendingSpace {
				b.WriteRune(' ')
			}
			pendingSpace, pendingNewline = false, false
			b.WriteRune(r)
		}
	}
	return b.String()
}
