package retrieval

import (
	"context"
	"fmt"
	"strings"

	"codementor/internal/config"
	"codementor/internal/embedding"
	"codementor/internal/logging"
)

// ==== RELEVANCE INDEX ====

// RelevanceIndex answers two questions against the corpus: which documents
// should ground a prompt, and whether a piece of model output stays on
// curriculum. The two directions use separate cutoffs because they trade
// recall and precision differently.
type RelevanceIndex struct {
	engine embedding.Engine
	corpus *Corpus
	cfg    config.RetrievalConfig
}

// NewRelevanceIndex builds an index over an already-embedded corpus.
func NewRelevanceIndex(engine embedding.Engine, corpus *Corpus, cfg config.RetrievalConfig) *RelevanceIndex {
	return &RelevanceIndex{engine: engine, corpus: corpus, cfg: cfg}
}

// RetrieveContext returns the corpus documents relevant to the query,
// concatenated in match-rank order, along with their keys. Chunks are
// matched, documents are returned: each document appears at most once, at
// the rank of its best chunk. Only matches strictly above the input cutoff
// qualify; with no qualifying match the result is empty, never an error.
func (ix *RelevanceIndex) RetrieveContext(ctx context.Context, query string) (string, []string, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "RetrieveContext")
	defer timer.Stop()

	queryVec, err := ix.engine.Embed(ctx, query)
	if err != nil {
		return "", nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := embedding.FindTopK(queryVec, ix.vectors(), ix.cfg.MaxResults)
	if err != nil {
		return "", nil, fmt.Errorf("searching corpus: %w", err)
	}

	chunks := ix.corpus.Chunks()
	seen := make(map[string]bool)
	var docs []string
	for _, r := range results {
		if r.Similarity <= ix.cfg.InputSimilarityCutoff {
			continue
		}
		doc := chunks[r.Index].Doc
		if seen[doc] {
			continue
		}
		seen[doc] = true
		docs = append(docs, doc)
		if ix.cfg.MaxResults > 0 && len(docs) >= ix.cfg.MaxResults {
			break
		}
	}
	logging.Retrieval("query matched %d documents (from %d chunk hits)", len(docs), len(results))

	var parts []string
	for _, doc := range docs {
		text, ok := ix.corpus.Document(doc)
		if !ok {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), docs, nil
}

// IsRelated reports whether text is close enough to the corpus to pass the
// output filter. The decision rides on the single best chunk: strictly
// below the output cutoff means unrelated. An empty corpus relates to
// nothing.
func (ix *RelevanceIndex) IsRelated(ctx context.Context, text string) (bool, error) {
	textVec, err := ix.engine.Embed(ctx, text)
	if err != nil {
		return false, fmt.Errorf("embedding output text: %w", err)
	}

	results, err := embedding.FindTopK(textVec, ix.vectors(), 1)
	if err != nil {
		return false, fmt.Errorf("searching corpus: %w", err)
	}
	if len(results) == 0 {
		return false, nil
	}
	related := results[0].Similarity >= ix.cfg.OutputSimilarityCutoff
	logging.RetrievalDebug("output relatedness %.3f (cutoff %.2f): %v", results[0].Similarity, ix.cfg.OutputSimilarityCutoff, related)
	return related, nil
}

func (ix *RelevanceIndex) vectors() [][]float32 {
	chunks := ix.corpus.Chunks()
	vectors := make([][]float32, len(chunks))
	for i, ch := range chunks {
		vectors[i] = ch.Vector
	}
	return vectors
}
