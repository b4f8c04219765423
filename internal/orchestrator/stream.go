package orchestrator

import (
	"context"

	"codementor/internal/articulation"
	"codementor/internal/feedback"
	"codementor/internal/logging"
)

// streamUnits drives a JSON round: every fragment feeds the extractor, and
// each completed object runs the per-kind decode/filter path. Accepted
// units go out the moment they exist.
func (o *Orchestrator) streamUnits(ctx context.Context, s *session, events chan<- Event, fragments <-chan string, chatErrs <-chan error) error {
	desc, err := feedback.DescriptorFor(s.req.Kind)
	if err != nil {
		return feedback.NewError("unsupported feedback kind", err)
	}

	extractor := articulation.NewExtractor()

	for fragments != nil || chatErrs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			s.raw.WriteString(frag)

			units, ferr := extractor.Feed(frag)
			if ferr != nil {
				return feedback.NewError("malformed model output", ferr)
			}
			for _, raw := range units {
				unit, extra, herr := o.handleUnit(ctx, s, desc, raw)
				if herr != nil {
					return herr
				}
				if unit != nil {
					if err := o.accept(ctx, s, events, unit, true); err != nil {
						return err
					}
				}
				if extra != nil {
					if err := o.accept(ctx, s, events, extra, false); err != nil {
						return err
					}
				}
			}

		case cerr, ok := <-chatErrs:
			if !ok {
				chatErrs = nil
				continue
			}
			if cerr != nil {
				return feedback.NewError("chat stream failed", cerr)
			}
		}
	}
	return nil
}

// handleUnit decodes one extracted object and runs it through the filter
// chain. A nil unit with nil error means the unit was skipped or rejected;
// the synthesized next-step unit rides along either way.
func (o *Orchestrator) handleUnit(ctx context.Context, s *session, desc *feedback.Descriptor, raw articulation.Unit) (feedback.Unit, feedback.Unit, error) {
	obj := raw.Parsed
	if desc.FindNestedRemark {
		if nested := feedback.FindObjectWithRemark([]byte(raw.RawJSON)); nested != nil {
			obj = nested
		}
	}

	unit, err := desc.Decode(obj)
	if err != nil {
		return nil, nil, feedback.NewError("decoding feedback unit", err)
	}

	// The next step survives even when the carrying unit is filtered out:
	// pointing the student forward never depends on the remark's relevance.
	extra := synthesizeNextStep(unit)

	text := desc.FilterText(unit)
	if text == "" {
		logging.FeedbackDebug("skipping unit without remark text")
		return nil, extra, nil
	}

	negative := !desc.Positive(unit)

	// Negative remarks are staged regardless of the relevance verdict: the
	// again round re-checks what the model found, not what survived the
	// filter.
	if negative && desc.StageOnNegative {
		o.experience.StageNegative(text)
	}

	related, err := o.index.IsRelated(ctx, text)
	if err != nil {
		return nil, extra, feedback.NewError("filtering feedback", err)
	}
	if !related {
		logging.FeedbackDebug("rejecting off-curriculum unit: %q", text)
		return nil, extra, nil
	}

	if desc.SetExtraInfo != nil && (desc.ExtraInfoAlways || (desc.ExtraInfoOnNegative && negative)) {
		desc.SetExtraInfo(unit, o.experience.HasSeenBefore(ctx, text))
	}
	return unit, extra, nil
}

// accept records a unit and yields it. Synthesized units ride along in the
// output but stay out of the experience score.
func (o *Orchestrator) accept(ctx context.Context, s *session, events chan<- Event, unit feedback.Unit, scorable bool) error {
	s.accepted = append(s.accepted, unit)
	if scorable {
		s.scorable = append(s.scorable, unit)
	}
	select {
	case events <- Event{Unit: unit}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// synthesizeNextStep derives a NextStep unit from an again unit that
// carries a concrete next step, falling back to its hint. The synthesized
// unit is always marked improved so it renders as guidance, not criticism.
func synthesizeNextStep(unit feedback.Unit) feedback.Unit {
	again, ok := unit.(*feedback.Again)
	if !ok {
		return nil
	}
	step := again.NextStep
	if step == "" {
		step = again.Hint
	}
	if step == "" {
		return nil
	}
	return &feedback.NextStep{NextStep: step, Improved: true}
}

// streamMarkdown drives a free-text round: fragments accumulate and each
// arrival re-renders the whole text, so the caller can repaint an
// ever-improving snapshot.
func (o *Orchestrator) streamMarkdown(ctx context.Context, s *session, events chan<- Event, fragments <-chan string, chatErrs <-chan error) error {
	for fragments != nil || chatErrs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frag, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			s.raw.WriteString(frag)
			s.final = s.raw.String()

			rendered, rerr := o.renderer.Render(s.final)
			if rerr != nil {
				// Mid-stream markdown is often unterminated; skip the bad
				// snapshot and render again on the next fragment.
				logging.FeedbackDebug("snapshot render failed: %v", rerr)
				continue
			}
			select {
			case events <- Event{Markdown: rendered}:
			case <-ctx.Done():
				return ctx.Err()
			}

		case cerr, ok := <-chatErrs:
			if !ok {
				chatErrs = nil
				continue
			}
			if cerr != nil {
				return feedback.NewError("chat stream failed", cerr)
			}
		}
	}
	return nil
}
