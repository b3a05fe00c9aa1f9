// Package chunk splits article text into bounded, overlapping segments with
// positional and source metadata attached, ready for embedding.
package chunk

import (
	"log/slog"
	"time"

	"github.com/NewsDeskAI/newsdesk/engine/domain"
)

// Reserved metadata keys. These always come from the chunker and take
// precedence over same-named article metadata.
const (
	KeyDocID       = "doc_id"
	KeyDocTitle    = "doc_title"
	KeyChunkIndex  = "chunk_index"
	KeyTotalChunks = "total_chunks"
)

// Default chunking parameters, in characters.
const (
	DefaultMaxSize  = 1000
	DefaultMinSize  = 50
	DefaultOverlap  = 200
	DefaultLookback = 100
)

// Config bounds the chunk windows.
type Config struct {
	// MaxSize is the maximum window length in characters.
	MaxSize int
	// MinSize is the minimum window length; shorter windows are discarded.
	// Trailing fragments below this size are lost, not merged.
	MinSize int
	// Overlap is how far each window reaches back into the previous one.
	Overlap int
	// Lookback bounds how far a window boundary may be pulled back to land
	// on a paragraph, sentence, or word break.
	Lookback int
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MinSize <= 0 {
		c.MinSize = DefaultMinSize
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxSize {
		c.Overlap = DefaultOverlap
		if c.Overlap >= c.MaxSize {
			c.Overlap = c.MaxSize / 5
		}
	}
	if c.Lookback <= 0 {
		c.Lookback = DefaultLookback
	}
	return c
}

// Chunk is a text segment ready for embedding, carrying its document and
// position metadata.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Chunker splits documents into overlapping windows.
type Chunker struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Chunker.
func New(cfg Config, logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{cfg: cfg.withDefaults(), logger: logger}
}

// ChunkText splits text into windows of at most MaxSize characters. A text
// no longer than MaxSize is returned whole as a single chunk. Window
// boundaries are pulled back to the nearest preceding paragraph, sentence,
// or word break when one exists within Lookback characters of the naive
// boundary; otherwise the naive boundary is kept. Each next window starts
// Overlap characters before the previous boundary, with forced progress so
// chunking always terminates.
func (c *Chunker) ChunkText(text string) []string {
	cfg := c.cfg
	runes := []rune(text)
	if len(runes) <= cfg.MaxSize {
		return []string{text}
	}

	var out []string
	cursor := 0
	for cursor < len(runes) {
		end := cursor + cfg.MaxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = breakBoundary(runes, cursor, end, cfg.Lookback)
		}

		if end-cursor >= cfg.MinSize {
			out = append(out, string(runes[cursor:end]))
		} else {
			c.logger.Debug("chunk below minimum size discarded", "len", end-cursor)
		}

		if end >= len(runes) {
			break
		}
		next := end - cfg.Overlap
		if next <= cursor {
			// Overlap would stall the cursor; jump to the boundary.
			next = end
		}
		cursor = next
	}
	return out
}

// breakBoundary pulls the naive window end back to the nearest preceding
// break point, preferring paragraph over sentence over word breaks, but only
// within lookback characters. Returns end unchanged when no break is close
// enough.
func breakBoundary(runes []rune, start, end, lookback int) int {
	low := end - lookback
	if low < start+1 {
		low = start + 1
	}

	// Paragraph break: blank line. low is at least start+1, so runes[i-1]
	// stays inside the window.
	for i := end - 1; i >= low; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// Sentence break: terminal punctuation followed by space, or newline.
	for i := end - 1; i >= low; i-- {
		r := runes[i]
		if r == '\n' {
			return i + 1
		}
		if (r == '.' || r == '!' || r == '?') && i+1 < end && runes[i+1] == ' ' {
			return i + 1
		}
	}
	// Word break.
	for i := end - 1; i >= low; i-- {
		if runes[i] == ' ' {
			return i + 1
		}
	}
	return end
}

// ProcessDocuments chunks every article and tags each resulting chunk with
// dense chunk_index/total_chunks plus the article's own metadata. Article
// metadata wins over same-named document fields; only the reserved keys are
// always taken from the chunker.
func (c *Chunker) ProcessDocuments(articles []domain.Article) []Chunk {
	var out []Chunk
	for _, a := range articles {
		parts := c.ChunkText(a.Content)
		total := len(parts)
		for i, text := range parts {
			meta := make(map[string]any, len(a.Metadata)+7)
			for k, v := range a.Metadata {
				meta[k] = v
			}
			setIfAbsent(meta, "source", a.Source)
			setIfAbsent(meta, "link", a.Link)
			if !a.PubDate.IsZero() {
				setIfAbsent(meta, "pub_date", a.PubDate.UTC().Format(time.RFC3339))
			}
			meta[KeyDocID] = a.ID
			meta[KeyDocTitle] = a.Title
			meta[KeyChunkIndex] = i
			meta[KeyTotalChunks] = total
			out = append(out, Chunk{Text: text, Metadata: meta})
		}
	}
	return out
}

func setIfAbsent(meta map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := meta[key]; !ok {
		meta[key] = value
	}
}
