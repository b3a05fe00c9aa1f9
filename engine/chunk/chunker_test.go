package chunk

import (
	"strings"
	"testing"
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	c := New(Config{MaxSize: 100}, nil)

	text := "A short article body."
	chunks := c.ChunkText(text)

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want the input unchanged", chunks[0])
	}
}

func TestChunkText_SentenceBoundaries(t *testing.T) {
	c := New(Config{MaxSize: 20, MinSize: 5, Overlap: 0, Lookback: 10}, nil)

	text := "Sentence one. Sentence two. Sentence three."
	chunks := c.ChunkText(text)

	want := []string{"Sentence one.", " Sentence two.", " Sentence three."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %q, want %d", len(chunks), chunks, len(want))
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkText_ParagraphPreferredOverSentence(t *testing.T) {
	c := New(Config{MaxSize: 30, MinSize: 2, Overlap: 0, Lookback: 20}, nil)

	// Both a sentence end and a paragraph break fall inside the lookback
	// window; the paragraph break must win.
	text := "First para ends.\n\nSecond paragraph continues for a while after."
	chunks := c.ChunkText(text)

	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("chunk[0] = %q, want it to end at the paragraph break", chunks[0])
	}
}

func TestChunkText_ParagraphBreakAtLookbackLimit(t *testing.T) {
	c := New(Config{MaxSize: 20, MinSize: 2, Overlap: 0, Lookback: 5}, nil)

	// The paragraph break sits exactly lookback characters before the naive
	// boundary, with a closer sentence end inside the window. The paragraph
	// break must still win.
	text := strings.Repeat("a", 14) + "\n\nx. yzzzzz"
	chunks := c.ChunkText(text)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks %q, want 2", len(chunks), chunks)
	}
	if want := strings.Repeat("a", 14) + "\n\n"; chunks[0] != want {
		t.Errorf("chunk[0] = %q, want %q", chunks[0], want)
	}
}

func TestChunkText_OverlapReachesBack(t *testing.T) {
	overlap := 4
	c := New(Config{MaxSize: 20, MinSize: 5, Overlap: overlap, Lookback: 10}, nil)

	chunks := c.ChunkText("Sentence one. Sentence two. Sentence three.")
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}

	tail := chunks[0][len(chunks[0])-overlap:]
	if !strings.HasPrefix(chunks[1], tail) {
		t.Errorf("chunk[1] = %q does not start with chunk[0] tail %q", chunks[1], tail)
	}
}

func TestChunkText_MinSizeDiscardsTrailingFragment(t *testing.T) {
	c := New(Config{MaxSize: 10, MinSize: 8, Overlap: 0, Lookback: 1}, nil)

	// 25 unbroken characters: two full windows plus a 5-char tail below
	// MinSize that must be dropped.
	chunks := c.ChunkText("aaaaaaaaaabbbbbbbbbbccccc")

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks %q, want 2", len(chunks), chunks)
	}
}

func TestChunkText_ForcedProgressTerminates(t *testing.T) {
	// Overlap larger than the produced window would stall the cursor
	// without the forced jump to the boundary.
	c := New(Config{MaxSize: 10, MinSize: 2, Overlap: 8, Lookback: 10}, nil)

	chunks := c.ChunkText("ab cdefghijklmnopqrstuvwxyz")

	if len(chunks) == 0 {
		t.Fatal("got no chunks")
	}
	for i, ch := range chunks {
		if len([]rune(ch)) > 10 {
			t.Errorf("chunk[%d] length %d exceeds max size", i, len([]rune(ch)))
		}
	}
}

func TestProcessDocuments_Metadata(t *testing.T) {
	c := New(Config{MaxSize: 20, MinSize: 5, Overlap: 0, Lookback: 10}, nil)

	pub := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	articles := []domain.Article{{
		ID:      "art-1",
		Title:   "Headline",
		Content: "Sentence one. Sentence two. Sentence three.",
		Source:  "feed-a",
		Link:    "https://example.com/a",
		PubDate: pub,
		Metadata: map[string]string{
			"source": "override-wins",
			"author": "jm",
		},
	}}

	chunks := c.ProcessDocuments(articles)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	for i, ch := range chunks {
		if got := ch.Metadata[KeyDocID]; got != "art-1" {
			t.Errorf("chunk[%d] doc_id = %v", i, got)
		}
		if got := ch.Metadata[KeyDocTitle]; got != "Headline" {
			t.Errorf("chunk[%d] doc_title = %v", i, got)
		}
		if got := ch.Metadata[KeyChunkIndex]; got != i {
			t.Errorf("chunk[%d] chunk_index = %v", i, got)
		}
		if got := ch.Metadata[KeyTotalChunks]; got != 3 {
			t.Errorf("chunk[%d] total_chunks = %v", i, got)
		}
		// Article metadata wins over the document field.
		if got := ch.Metadata["source"]; got != "override-wins" {
			t.Errorf("chunk[%d] source = %v, want article metadata value", i, got)
		}
		if got := ch.Metadata["author"]; got != "jm" {
			t.Errorf("chunk[%d] author = %v", i, got)
		}
		if got := ch.Metadata["link"]; got != "https://example.com/a" {
			t.Errorf("chunk[%d] link = %v", i, got)
		}
		if got := ch.Metadata["pub_date"]; got != "2026-03-14T09:30:00Z" {
			t.Errorf("chunk[%d] pub_date = %v", i, got)
		}
	}
}

func TestProcessDocuments_MultipleArticlesIndependentIndexes(t *testing.T) {
	c := New(Config{MaxSize: 100}, nil)

	chunks := c.ProcessDocuments([]domain.Article{
		{ID: "a", Content: "short one"},
		{ID: "b", Content: "short two"},
	})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	for i, ch := range chunks {
		if got := ch.Metadata[KeyChunkIndex]; got != 0 {
			t.Errorf("chunk[%d] chunk_index = %v, want 0", i, got)
		}
		if got := ch.Metadata[KeyTotalChunks]; got != 1 {
			t.Errorf("chunk[%d] total_chunks = %v, want 1", i, got)
		}
	}
}
