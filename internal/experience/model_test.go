package experience

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codementor/internal/config"
	"codementor/internal/feedback"
	"codementor/internal/store"
)

// stubEngine hands out canned vectors keyed by text.
type stubEngine struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return []float32{9, 9, 9}, nil
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return 3 }
func (s *stubEngine) Name() string    { return "stub" }

func newTestModel(t *testing.T, engine *stubEngine) (*Model, *store.LocalStore) {
	t.Helper()
	st, err := store.NewLocalStore(filepath.Join(t.TempDir(), "mentor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	if engine == nil {
		engine = &stubEngine{}
	}
	return NewModel(st, engine, config.ExperienceConfig{NoveltyCutoff: 0.3}), st
}

func outcomes(met ...bool) []feedback.Unit {
	units := make([]feedback.Unit, len(met))
	for i, m := range met {
		units[i] = &feedback.Outcome{Remark: "check your loop bounds", IsMet: m}
	}
	return units
}

func TestInstructionTierFreshStudent(t *testing.T) {
	m, _ := newTestModel(t, nil)
	assert.Equal(t, TierBeginner, m.InstructionTier())
}

func TestInstructionTierThresholds(t *testing.T) {
	tests := []struct {
		name    string
		history [5]float64
		want    Tier
	}{
		{"all zero", [5]float64{}, TierBeginner},
		{"avg just under beginner cutoff", [5]float64{0.49, 0.49, 0.49, 0.49, 0.49}, TierBeginner},
		{"avg at beginner cutoff", [5]float64{0.5, 0.5, 0.5, 0.5, 0.5}, TierIntermediate},
		{"avg just under intermediate cutoff", [5]float64{0.54, 0.54, 0.54, 0.54, 0.54}, TierIntermediate},
		{"avg at intermediate cutoff", [5]float64{0.55, 0.55, 0.55, 0.55, 0.55}, TierNone},
		{"strong recent rounds", [5]float64{1, 1, 1, 1, 1}, TierNone},
		{"empty slots drag the average", [5]float64{1, 1, 1, 1, 0}, TierNone}, // 0.8
		{"one good round alone", [5]float64{1, 0, 0, 0, 0}, TierBeginner},    // 0.2
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestModel(t, nil)
			m.state = State{RequestCount: 3, RatioHistory: tt.history}
			m.loaded = true
			assert.Equal(t, tt.want, m.InstructionTier())
		})
	}
}

func TestRecordRequestPersists(t *testing.T) {
	m, st := newTestModel(t, nil)
	require.NoError(t, m.RecordRequest())
	require.NoError(t, m.RecordRequest())

	// A second model over the same store sees the count.
	m2 := NewModel(st, &stubEngine{}, config.ExperienceConfig{NoveltyCutoff: 0.3})
	require.NoError(t, m2.RecordRequest())

	var s State
	found, err := st.GetJSON("experience_state", &s)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, s.RequestCount)
}

func TestRecordOutcomeRingBuffer(t *testing.T) {
	m, _ := newTestModel(t, nil)
	ctx := context.Background()

	// Six rounds wrap the five-slot ring: the first ratio gets overwritten.
	ratios := [][]bool{
		{true, true},          // 1.0
		{true, false},         // 0.5
		{false, false},        // 0.0
		{true, true, false},   // 0.67
		{true},                // 1.0
		{false, true, true, true}, // 0.75, lands back in slot 0
	}
	for _, round := range ratios {
		require.NoError(t, m.RecordOutcome(ctx, feedback.KindOutcome, outcomes(round...)))
	}

	assert.InDelta(t, 0.75, m.state.RatioHistory[0], 1e-9)
	assert.InDelta(t, 0.5, m.state.RatioHistory[1], 1e-9)
	assert.Equal(t, 1, m.state.RatioIndex)
}

func TestRecordOutcomeIgnoresUnscoredKinds(t *testing.T) {
	m, _ := newTestModel(t, nil)
	units := []feedback.Unit{&feedback.Understand{Question: "why a loop?", Answer: "repetition"}}
	require.NoError(t, m.RecordOutcome(context.Background(), feedback.KindUnderstand, units))
	assert.Zero(t, m.state.RatioHistory[0])
	assert.Zero(t, m.state.RatioIndex)
}

func TestRecordOutcomeAppendsNegativesToNovelty(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"check your loop bounds": {1, 0, 0},
	}}
	m, st := newTestModel(t, engine)

	units := outcomes(true, false)
	require.NoError(t, m.RecordOutcome(context.Background(), feedback.KindOutcome, units))

	n, err := st.NoveltyCount()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestHasSeenBefore(t *testing.T) {
	engine := &stubEngine{vectors: map[string][]float32{
		"old remark":       {1, 0, 0},
		"nearly the same":  {1, 0.1, 0}, // distance 0.1
		"something else":   {0, 5, 0},   // distance far above cutoff
	}}
	m, st := newTestModel(t, engine)
	ctx := context.Background()

	// Empty index: nothing has been seen.
	assert.False(t, m.HasSeenBefore(ctx, "nearly the same"))

	require.NoError(t, st.AppendNovelty(ctx, "old remark", []float32{1, 0, 0}))

	assert.True(t, m.HasSeenBefore(ctx, "nearly the same"))
	assert.False(t, m.HasSeenBefore(ctx, "something else"))
}

func TestHasSeenBeforeEmbedFailure(t *testing.T) {
	m, _ := newTestModel(t, &stubEngine{err: assert.AnError})
	assert.False(t, m.HasSeenBefore(context.Background(), "anything"))
}

func TestSessionNegativeBuffer(t *testing.T) {
	m, _ := newTestModel(t, nil)

	assert.Empty(t, m.SessionNegatives())

	m.StageNegative("rename that variable")
	m.StageNegative("the loop never terminates")
	assert.Equal(t, []string{"rename that variable", "the loop never terminates"}, m.SessionNegatives())

	m.ClearSessionNegatives()
	assert.Empty(t, m.SessionNegatives())
}
