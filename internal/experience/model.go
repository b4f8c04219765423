// Package experience tracks how a student has been doing and adapts the
// mentor's register to it. Two signals feed the model: a short history of
// positive-feedback ratios, and a novelty index of every negative remark
// the student has already received.
package experience

import (
	"context"
	"fmt"
	"sync"

	"codementor/internal/config"
	"codementor/internal/embedding"
	"codementor/internal/feedback"
	"codementor/internal/logging"
	"codementor/internal/store"
)

// ==== TIERS ====

// Tier is the instruction level derived from recent performance.
type Tier int

const (
	TierBeginner Tier = iota
	TierIntermediate
	TierNone
)

const (
	beginnerThreshold     = 0.50
	intermediateThreshold = 0.55
)

// Instruction returns the sentence injected into the prompt for this tier.
// TierNone contributes nothing.
func (t Tier) Instruction() string {
	switch t {
	case TierBeginner:
		return "The student is a beginner. Use simple language, avoid jargon, and explain any programming term you use."
	case TierIntermediate:
		return "The student has some experience. Keep explanations concise and use common programming terms freely."
	default:
		return ""
	}
}

func (t Tier) String() string {
	switch t {
	case TierBeginner:
		return "beginner"
	case TierIntermediate:
		return "intermediate"
	default:
		return "none"
	}
}

// ==== STATE ====

const stateKey = "experience_state"

// ringSize is the number of feedback rounds the ratio history remembers.
const ringSize = 5

// State is the persisted experience record. Unused history slots stay at
// zero and still count toward the average, so a fresh student reads as a
// beginner until the ring fills with real rounds.
type State struct {
	RequestCount int               `json:"request_count"`
	RatioHistory [ringSize]float64 `json:"ratio_history"`
	RatioIndex   int               `json:"ratio_index"`
}

// ==== MODEL ====

// Model persists experience state in the local store and consults the
// novelty index through the embedding engine. Safe for concurrent use.
type Model struct {
	store  *store.LocalStore
	engine embedding.Engine
	cutoff float64

	mu        sync.Mutex
	state     State
	loaded    bool
	negatives []string
}

// NewModel returns a model backed by the given store. State loads lazily
// on first use.
func NewModel(st *store.LocalStore, engine embedding.Engine, cfg config.ExperienceConfig) *Model {
	return &Model{store: st, engine: engine, cutoff: cfg.NoveltyCutoff}
}

// load pulls persisted state from the store, once. Callers hold m.mu.
func (m *Model) load() error {
	if m.loaded {
		return nil
	}
	if _, err := m.store.GetJSON(stateKey, &m.state); err != nil {
		return fmt.Errorf("loading experience state: %w", err)
	}
	m.loaded = true
	return nil
}

// persist writes state back to the store. Callers hold m.mu.
func (m *Model) persist() error {
	if err := m.store.SetJSON(stateKey, m.state); err != nil {
		return fmt.Errorf("saving experience state: %w", err)
	}
	return nil
}

// RecordRequest counts one feedback request.
func (m *Model) RecordRequest() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(); err != nil {
		return err
	}
	m.state.RequestCount++
	return m.persist()
}

// InstructionTier derives the tier from the ratio history average. A
// student with no recorded requests is a beginner regardless of history.
func (m *Model) InstructionTier() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(); err != nil {
		logging.Experience("tier falling back to beginner: %v", err)
		return TierBeginner
	}

	if m.state.RequestCount == 0 {
		return TierBeginner
	}
	var sum float64
	for _, r := range m.state.RatioHistory {
		sum += r
	}
	avg := sum / ringSize

	switch {
	case avg < beginnerThreshold:
		return TierBeginner
	case avg < intermediateThreshold:
		return TierIntermediate
	default:
		return TierNone
	}
}

// RecordOutcome scores one round of feedback units. The positive ratio
// lands at the ring cursor and the cursor advances; negative remarks are
// embedded and appended to the novelty index so later rounds can tell the
// student has seen them. Kinds that do not score are ignored.
func (m *Model) RecordOutcome(ctx context.Context, kind feedback.Kind, units []feedback.Unit) error {
	desc, err := feedback.DescriptorFor(kind)
	if err != nil || !desc.Scored || len(units) == 0 {
		return nil
	}

	positives := 0
	var negativeRemarks []string
	for _, u := range units {
		if desc.Positive(u) {
			positives++
		} else if remark := desc.FilterText(u); remark != "" {
			negativeRemarks = append(negativeRemarks, remark)
		}
	}
	ratio := float64(positives) / float64(len(units))

	m.mu.Lock()
	if err := m.load(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.state.RatioHistory[m.state.RatioIndex] = ratio
	m.state.RatioIndex = (m.state.RatioIndex + 1) % ringSize
	persistErr := m.persist()
	m.mu.Unlock()
	if persistErr != nil {
		return persistErr
	}
	logging.Experience("recorded %s round: ratio %.2f, %d negative remarks", kind, ratio, len(negativeRemarks))

	for _, remark := range negativeRemarks {
		vector, err := m.engine.Embed(ctx, remark)
		if err != nil {
			return fmt.Errorf("embedding negative remark: %w", err)
		}
		if err := m.store.AppendNovelty(ctx, remark, vector); err != nil {
			return fmt.Errorf("appending to novelty index: %w", err)
		}
	}
	return nil
}

// HasSeenBefore reports whether the student already received substantially
// the same remark. Distance polarity is euclidean: lower means closer, and
// only a strict hit below the cutoff counts. Lookup failures read as
// unseen; a false negative only makes the mentor repeat itself once.
func (m *Model) HasSeenBefore(ctx context.Context, remark string) bool {
	vector, err := m.engine.Embed(ctx, remark)
	if err != nil {
		logging.Experience("novelty embed failed, treating remark as unseen: %v", err)
		return false
	}
	match, found, err := m.store.NearestNovelty(ctx, vector)
	if err != nil {
		logging.Experience("novelty lookup failed, treating remark as unseen: %v", err)
		return false
	}
	if !found {
		return false
	}
	logging.ExperienceDebug("nearest prior remark at distance %.3f (cutoff %.2f)", match.Distance, m.cutoff)
	return match.Distance < m.cutoff
}

// ==== SESSION NEGATIVE BUFFER ====

// StageNegative remembers a negative remark for the current session so an
// "again" round can ask about it later.
func (m *Model) StageNegative(remark string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.negatives = append(m.negatives, remark)
}

// SessionNegatives returns the staged remarks in arrival order.
func (m *Model) SessionNegatives() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.negatives))
	copy(out, m.negatives)
	return out
}

// ClearSessionNegatives empties the buffer, typically at the start of a
// fresh submission.
func (m *Model) ClearSessionNegatives() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.negatives = m.negatives[:0]
}
