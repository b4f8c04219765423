// Package retrieval loads the pedagogical content knowledge corpus and
// answers similarity queries against it. Retrieval works at two grains:
// chunks are embedded and matched, but whole documents are returned, so a
// hit anywhere in a document pulls in its full teaching context.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"codementor/internal/config"
	"codementor/internal/embedding"
	"codementor/internal/logging"
)

// ==== TYPES ====

// Chunk is one embedded slice of a corpus document.
type Chunk struct {
	Doc    string // document key, e.g. "variables"
	Text   string
	Vector []float32
}

// Corpus holds the full document texts and their embedded chunks.
type Corpus struct {
	docs   map[string]string
	chunks []Chunk
}

// ==== LOADING ====

// embedBatchSize balances request count against payload size for the
// embedding backends; both handle this comfortably.
const embedBatchSize = 16

// LoadCorpus reads every configured document, chunks it, and embeds all
// chunks. A missing document is an error: the corpus is curated as a unit
// and partial coverage would silently skew retrieval.
func LoadCorpus(ctx context.Context, cfg config.CorpusConfig, engine embedding.Engine) (*Corpus, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "LoadCorpus")
	defer timer.Stop()

	c := &Corpus{docs: make(map[string]string, len(cfg.Documents))}

	for key, filename := range cfg.Documents {
		path := filepath.Join(cfg.Dir, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("corpus document %q: %w", key, err)
		}
		text := string(data)
		c.docs[key] = text
		for _, chunkText := range chunkText(text, cfg.ChunkSize) {
			c.chunks = append(c.chunks, Chunk{Doc: key, Text: chunkText})
		}
	}
	logging.Retrieval("loaded %d documents into %d chunks", len(c.docs), len(c.chunks))

	if err := c.embedAll(ctx, engine); err != nil {
		return nil, err
	}
	return c, nil
}

// embedAll fills in chunk vectors, batching requests and running batches
// in parallel.
func (c *Corpus) embedAll(ctx context.Context, engine embedding.Engine) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(c.chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(c.chunks) {
			end = len(c.chunks)
		}
		batch := c.chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, ch := range batch {
				texts[i] = ch.Text
			}
			vectors, err := engine.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding corpus batch: %w", err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedding corpus batch: got %d vectors for %d chunks", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Vector = vectors[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// NewStaticCorpus wraps already-embedded chunks and document texts. Used
// when the corpus comes from somewhere other than the document loader.
func NewStaticCorpus(docs map[string]string, chunks []Chunk) *Corpus {
	return &Corpus{docs: docs, chunks: chunks}
}

// Document returns the full text of a document by key.
func (c *Corpus) Document(key string) (string, bool) {
	text, ok := c.docs[key]
	return text, ok
}

// Chunks returns the embedded chunks.
func (c *Corpus) Chunks() []Chunk {
	return c.chunks
}

// ==== CHUNKING ====

// chunkText splits text into chunks of at most maxLen bytes, breaking only
// at newlines. A single line longer than maxLen becomes its own oversized
// chunk rather than being split mid-sentence.
func chunkText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 100
	}

	var chunks []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		need := len(line)
		if current.Len() > 0 {
			need += current.Len() + 1
		}
		if need > maxLen && current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if s := current.String(); strings.TrimSpace(s) != "" {
		chunks = append(chunks, s)
	}

	// Drop chunks that are pure whitespace; they embed to noise.
	filtered := chunks[:0]
	for _, ch := range chunks {
		if strings.TrimSpace(ch) != "" {
			filtered = append(filtered, ch)
		}
	}
	return filtered
}
