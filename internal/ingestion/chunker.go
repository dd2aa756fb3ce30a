package ingestion

import "strings"

// Chunker splits documents into overlapping chunks for indexing
type Chunker struct {
	Size    int // target chunk size in characters
	Overlap int // characters carried over between consecutive chunks
}

// NewChunker creates a chunker with the given size and overlap. Invalid
// values fall back to the defaults (1000/200).
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 200
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Split breaks text into chunks of roughly Size characters with Overlap
// characters of context carried between neighbors. Break points prefer
// whitespace so words stay intact.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + c.Size
		if end >= len(text) {
			chunk := strings.TrimSpace(text[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		// Back up to the nearest whitespace to avoid splitting a word
		cut := end
		for cut > start+c.Size/2 && !isSpace(text[cut]) {
			cut--
		}
		if cut == start+c.Size/2 {
			cut = end
		}

		chunk := strings.TrimSpace(text[start:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - c.Overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
