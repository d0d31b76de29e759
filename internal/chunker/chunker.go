// Package chunker splits transcript text into overlapping windows sized for
// embedding.
package chunker

import "strings"

const (
	// DefaultSize is the chunk budget in runes.
	DefaultSize = 1000
	// DefaultOverlap is how many trailing runes each chunk shares with the next.
	DefaultOverlap = 200
)

// Chunker splits text on a rune budget, preferring natural boundaries
// (paragraph break, sentence end, word break) over hard cuts. Consecutive
// chunks share exactly Overlap runes so local context survives the split.
type Chunker struct {
	Size    int
	Overlap int
}

// New creates a Chunker. Non-positive size or overlap fall back to the
// defaults; overlap is clamped below size so every split makes progress.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= size {
		overlap = size / 5
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split returns the chunk sequence for text. Empty input yields nil; input
// no longer than Size yields a single chunk equal to the input. The result
// is deterministic for a given input and configuration.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + c.Size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			return chunks
		}

		cut := c.findBreak(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))
		start = cut - c.Overlap
	}
}

// findBreak picks the cut position in (start+Overlap, end]: the latest
// paragraph break, else sentence end, else line break, else word break.
// Falls back to a hard cut at end when the window has no boundary past the
// overlap region.
func (c *Chunker) findBreak(runes []rune, start, end int) int {
	low := start + c.Overlap

	for i := end - 1; i > low; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > low; i-- {
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			return i + 1
		}
	}
	for i := end - 1; i > low; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i > low; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}

// Reassemble joins chunks produced by Split back into the original text by
// trimming the shared overlap. Inverse of Split for any input.
func (c *Chunker) Reassemble(chunks []string) string {
	if len(chunks) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, chunk := range chunks[1:] {
		runes := []rune(chunk)
		if len(runes) > c.Overlap {
			runes = runes[c.Overlap:]
		} else {
			runes = nil
		}
		sb.WriteString(string(runes))
	}
	return sb.String()
}
