package ingestion

import (
	"strings"
	"testing"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1000, 200)
	chunks := c.Split("just a short document")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "just a short document" {
		t.Errorf("unexpected chunk content: %q", chunks[0])
	}
}

func TestSplitEmptyText(t *testing.T) {
	c := NewChunker(1000, 200)
	if chunks := c.Split("   \n  "); chunks != nil {
		t.Errorf("expected nil for blank text, got %v", chunks)
	}
}

func TestSplitOverlappingChunks(t *testing.T) {
	c := NewChunker(100, 20)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)

	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d exceeds size: %d chars", i, len(chunk))
		}
	}
	// Consecutive chunks share overlap content
	tail := chunks[0][len(chunks[0])-10:]
	if !strings.Contains(chunks[1], strings.TrimSpace(tail)) {
		t.Errorf("expected chunk 1 to carry overlap from chunk 0")
	}
}

func TestSplitPrefersWordBoundaries(t *testing.T) {
	c := NewChunker(50, 10)
	text := strings.Repeat("alpha beta gamma delta epsilon ", 10)

	for i, chunk := range c.Split(text) {
		if strings.HasSuffix(chunk, "alph") || strings.HasSuffix(chunk, "gamm") {
			t.Errorf("chunk %d split mid-word: %q", i, chunk)
		}
	}
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(0, -1)
	if c.Size != 1000 || c.Overlap != 200 {
		t.Errorf("expected defaults 1000/200, got %d/%d", c.Size, c.Overlap)
	}
}
