package retrieval

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"codementor/internal/config"
)

// fakeEngine returns a fixed vector per text, defaulting to a vector
// orthogonal to everything else in the test corpus.
type fakeEngine struct {
	vectors map[string][]float32
}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 4 }
func (f *fakeEngine) Name() string    { return "fake" }

// unitVec returns a 4d unit vector whose cosine similarity with (1,0,0,0)
// is approximately sim. The rounding through float32 makes it unsuitable
// for cutoff boundaries; those use the exact integer vectors below.
func unitVec(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0, 0}
}

// Integer vectors whose norms are exact floats, so the cosine against
// (1,0,0,0) lands exactly on the cutoff value.
var (
	cosExactlyHalf   = []float32{1, 1, 1, 1} // dot 1, norm 2: cosine 1/2
	cosExactlyPoint3 = []float32{3, 9, 3, 1} // dot 3, norm 10: cosine 3/10
)

func testCorpus(vectors map[string][]float32, chunks []Chunk, docs map[string]string) *Corpus {
	for i := range chunks {
		chunks[i].Vector = vectors[chunks[i].Text]
	}
	return NewStaticCorpus(docs, chunks)
}

func defaultRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		InputSimilarityCutoff:  0.5,
		OutputSimilarityCutoff: 0.3,
		MaxResults:             10,
	}
}

func TestRetrieveContext(t *testing.T) {
	query := []float32{1, 0, 0, 0}
	engine := &fakeEngine{vectors: map[string][]float32{
		"q":          query,
		"loops high": unitVec(0.9),
		"loops mid":  unitVec(0.7),
		"vars low":   unitVec(0.6),
		"io cutoff":  cosExactlyHalf,
		"io far":     unitVec(0.1),
	}}
	corpus := testCorpus(engine.vectors,
		[]Chunk{
			{Doc: "loops", Text: "loops high"},
			{Doc: "loops", Text: "loops mid"},
			{Doc: "vars", Text: "vars low"},
			{Doc: "io", Text: "io cutoff"},
			{Doc: "io", Text: "io far"},
		},
		map[string]string{
			"loops": "all about loops",
			"vars":  "all about variables",
			"io":    "all about io",
		})

	ix := NewRelevanceIndex(engine, corpus, defaultRetrievalConfig())

	got, keys, err := ix.RetrieveContext(context.Background(), "q")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}

	// loops ranks first via its best chunk and appears once despite two
	// qualifying chunks; io sits exactly at the cutoff and is excluded.
	want := "all about loops\n\nall about variables"
	if got != want {
		t.Errorf("context = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]string{"loops", "vars"}, keys); diff != "" {
		t.Errorf("document keys mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(got, "io") {
		t.Error("document at exactly the cutoff must not qualify")
	}

	again, _, err := ix.RetrieveContext(context.Background(), "q")
	if err != nil {
		t.Fatalf("second RetrieveContext: %v", err)
	}
	if diff := cmp.Diff(got, again); diff != "" {
		t.Errorf("retrieval is not idempotent (-first +second):\n%s", diff)
	}
}

func TestRetrieveContextNoMatches(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{
		"q":     {1, 0, 0, 0},
		"chunk": unitVec(0.2),
	}}
	corpus := testCorpus(engine.vectors,
		[]Chunk{{Doc: "loops", Text: "chunk"}},
		map[string]string{"loops": "all about loops"})

	ix := NewRelevanceIndex(engine, corpus, defaultRetrievalConfig())
	got, keys, err := ix.RetrieveContext(context.Background(), "q")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty context, got %q", got)
	}
	if len(keys) != 0 {
		t.Errorf("expected no document keys, got %v", keys)
	}
}

func TestIsRelated(t *testing.T) {
	tests := []struct {
		name  string
		chunk []float32
		want  bool
	}{
		{"well above cutoff", unitVec(0.8), true},
		{"exactly at cutoff", cosExactlyPoint3, true},
		{"below cutoff", unitVec(0.29), false},
		{"far below", unitVec(0.0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{vectors: map[string][]float32{
				"output": {1, 0, 0, 0},
				"chunk":  tt.chunk,
			}}
			corpus := testCorpus(engine.vectors,
				[]Chunk{{Doc: "loops", Text: "chunk"}},
				map[string]string{"loops": "doc"})

			ix := NewRelevanceIndex(engine, corpus, defaultRetrievalConfig())
			got, err := ix.IsRelated(context.Background(), "output")
			if err != nil {
				t.Fatalf("IsRelated: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsRelated(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsRelatedEmptyCorpus(t *testing.T) {
	engine := &fakeEngine{vectors: map[string][]float32{}}
	corpus := testCorpus(nil, nil, map[string]string{})

	ix := NewRelevanceIndex(engine, corpus, defaultRetrievalConfig())
	got, err := ix.IsRelated(context.Background(), "anything")
	if err != nil {
		t.Fatalf("IsRelated: %v", err)
	}
	if got {
		t.Error("empty corpus must relate to nothing")
	}
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{
			name:   "fits in one chunk",
			text:   "short line",
			maxLen: 100,
			want:   []string{"short line"},
		},
		{
			name:   "breaks at newline",
			text:   "aaaa\nbbbb\ncccc",
			maxLen: 9,
			want:   []string{"aaaa\nbbbb", "cccc"},
		},
		{
			name:   "oversized line kept whole",
			text:   "this line is much longer than the limit\nok",
			maxLen: 10,
			want:   []string{"this line is much longer than the limit", "ok"},
		},
		{
			name:   "whitespace only dropped",
			text:   "\n\n   \n",
			maxLen: 100,
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunkText(tt.text, tt.maxLen)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("chunkText mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
