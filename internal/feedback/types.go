// Package feedback defines the feedback request and the structured units
// decoded from the chat model's output stream, one variant per request kind.
package feedback

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a feedback request type.
type Kind string

const (
	KindOutcome    Kind = "outcome"    // learning-outcome check
	KindImprove    Kind = "improve"    // improvement suggestions
	KindUnderstand Kind = "understand" // comprehension questions
	KindCustom     Kind = "custom"     // free-form student question
	KindAnnotation Kind = "annotation" // per-line remarks
	KindAgain      Kind = "again"      // re-review after revision
	KindDetail     Kind = "detail"     // expand on one remark
	KindMeaning    Kind = "meaning"    // explain a term from a remark
)

// JSONStream reports whether this kind decodes structured JSON units from
// the model stream. The remaining kinds stream rendered markdown.
func (k Kind) JSONStream() bool {
	switch k {
	case KindOutcome, KindImprove, KindUnderstand, KindAnnotation, KindAgain:
		return true
	}
	return false
}

// Request describes one feedback request. Exactly one of Context (caller
// supplied) or RAGQuery (triggers corpus retrieval) determines the final
// prompt context; Context wins when present. A Request is immutable once its
// stream starts.
type Request struct {
	Kind       Kind
	Program    string
	Prompt     string
	RAGQuery   string
	Context    string
	MaxResults int
}

// =============================================================================
// UNIT VARIANTS
// =============================================================================

// Unit is one structured feedback item decoded from the model stream.
type Unit interface {
	UnitKind() Kind
}

// Outcome reports whether one learning outcome is met.
type Outcome struct {
	Remark    string `json:"remark"`
	IsMet     bool   `json:"ismet"`
	ExtraInfo bool   `json:"extrainfo"`
}

func (*Outcome) UnitKind() Kind { return KindOutcome }

// Improve is one improvement suggestion or piece of praise.
type Improve struct {
	Remark    string `json:"remark"`
	Praise    string `json:"praise"`
	ExtraInfo bool   `json:"extrainfo"`
}

func (*Improve) UnitKind() Kind { return KindImprove }

// Understand is one comprehension question with its expected answer.
type Understand struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (*Understand) UnitKind() Kind { return KindUnderstand }

// Annotation is a remark tied to one program line.
type Annotation struct {
	Line     int    `json:"line"`
	Remark   string `json:"remark"`
	Positive bool   `json:"positive"`
}

func (*Annotation) UnitKind() Kind { return KindAnnotation }

// Again reports whether one earlier remark improved after revision.
type Again struct {
	Remark    string `json:"remark"`
	Improved  bool   `json:"improved"`
	ExtraInfo bool   `json:"extrainfo"`
	NextStep  string `json:"next_step"`
	Hint      string `json:"hint"`
}

func (*Again) UnitKind() Kind { return KindAgain }

// NextStep is synthesized from an Again unit carrying a next_step or hint.
type NextStep struct {
	NextStep string `json:"nextstep"`
	Improved bool   `json:"improved"`
}

func (*NextStep) UnitKind() Kind { return KindAgain }

// =============================================================================
// KIND DESCRIPTORS
// =============================================================================
// One descriptor per JSON-bearing kind drives the orchestrator's generic
// decode/filter/record loop, instead of duplicating that logic per kind.

// Descriptor describes how to decode and score units of one kind.
type Descriptor struct {
	Kind Kind

	// FindNestedRemark: the model sometimes buries the unit in a nested
	// object; search the decoded graph for the first object carrying a
	// "remark" field before decoding.
	FindNestedRemark bool

	// PraiseOverridesRemark: a non-empty praise field replaces the remark
	// before filtering.
	PraiseOverridesRemark bool

	// Scored: units of this kind feed the experience ratio.
	Scored bool

	// ExtraInfoOnNegative: negative units get their extrainfo flag resolved
	// against the novelty index. ExtraInfoAlways does it for every unit.
	ExtraInfoOnNegative bool
	ExtraInfoAlways     bool

	// StageOnNegative: negative remarks are staged into the session buffer
	// consumed by the re-review flow.
	StageOnNegative bool

	// Decode turns a generic JSON object into the typed unit.
	Decode func(obj map[string]interface{}) (Unit, error)

	// FilterText returns the text-bearing field checked for relevance.
	FilterText func(u Unit) string

	// Positive returns the kind's positive-ish field value.
	Positive func(u Unit) bool

	// SetExtraInfo sets the unit's extrainfo flag, when the variant has one.
	SetExtraInfo func(u Unit, v bool)
}

// decodeInto round-trips a generic JSON object into a typed unit.
func decodeInto(obj map[string]interface{}, out Unit) (Unit, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode unit: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to decode unit: %w", err)
	}
	return out, nil
}

var descriptors = map[Kind]*Descriptor{
	KindOutcome: {
		Kind:                KindOutcome,
		FindNestedRemark:    true,
		Scored:              true,
		ExtraInfoOnNegative: true,
		StageOnNegative:     true,
		Decode: func(obj map[string]interface{}) (Unit, error) {
			return decodeInto(obj, &Outcome{})
		},
		FilterText: func(u Unit) string { return u.(*Outcome).Remark },
		Positive:   func(u Unit) bool { return u.(*Outcome).IsMet },
		SetExtraInfo: func(u Unit, v bool) {
			u.(*Outcome).ExtraInfo = v
		},
	},
	KindImprove: {
		Kind:                  KindImprove,
		PraiseOverridesRemark: true,
		ExtraInfoAlways:       true,
		Decode: func(obj map[string]interface{}) (Unit, error) {
			u, err := decodeInto(obj, &Improve{})
			if err != nil {
				return nil, err
			}
			imp := u.(*Improve)
			if imp.Praise != "" {
				imp.Remark = imp.Praise
			}
			return imp, nil
		},
		FilterText: func(u Unit) string { return u.(*Improve).Remark },
		Positive:   func(u Unit) bool { return u.(*Improve).Praise != "" },
		SetExtraInfo: func(u Unit, v bool) {
			u.(*Improve).ExtraInfo = v
		},
	},
	KindUnderstand: {
		Kind: KindUnderstand,
		Decode: func(obj map[string]interface{}) (Unit, error) {
			return decodeInto(obj, &Understand{})
		},
		FilterText: func(u Unit) string { return u.(*Understand).Question },
		Positive:   func(u Unit) bool { return true },
	},
	KindAnnotation: {
		Kind:   KindAnnotation,
		Scored: true,
		Decode: func(obj map[string]interface{}) (Unit, error) {
			return decodeInto(obj, &Annotation{})
		},
		FilterText: func(u Unit) string { return u.(*Annotation).Remark },
		Positive:   func(u Unit) bool { return u.(*Annotation).Positive },
	},
	KindAgain: {
		Kind:                KindAgain,
		Scored:              true,
		ExtraInfoOnNegative: true,
		StageOnNegative:     true,
		Decode: func(obj map[string]interface{}) (Unit, error) {
			return decodeInto(obj, &Again{})
		},
		FilterText: func(u Unit) string { return u.(*Again).Remark },
		Positive:   func(u Unit) bool { return u.(*Again).Improved },
		SetExtraInfo: func(u Unit, v bool) {
			u.(*Again).ExtraInfo = v
		},
	},
}

// DescriptorFor returns the descriptor for a JSON-bearing kind.
func DescriptorFor(kind Kind) (*Descriptor, error) {
	d, ok := descriptors[kind]
	if !ok {
		return nil, fmt.Errorf("kind %q has no structured descriptor", kind)
	}
	return d, nil
}
