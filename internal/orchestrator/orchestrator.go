// Package orchestrator runs the feedback pipeline end to end: resolve
// context, stream the chat completion, decode and filter units, and settle
// the round's bookkeeping. One round moves through Created, ContextResolved,
// Streaming and Finalized; finalize runs on every exit path.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"codementor/internal/config"
	"codementor/internal/experience"
	"codementor/internal/feedback"
	"codementor/internal/llm"
	"codementor/internal/logging"
	"codementor/internal/markdown"
	"codementor/internal/retrieval"
	"codementor/internal/store"
	"codementor/internal/telemetry"
)

// ==== TYPES ====

// Event is one item delivered to the caller mid-stream. JSON kinds carry a
// decoded Unit; free-text kinds carry a rendered markdown snapshot of
// everything received so far.
type Event struct {
	Unit     feedback.Unit
	Markdown string
}

// Orchestrator ties the pipeline together. A mutex serializes rounds: the
// session buffers and the telemetry record only make sense one round at a
// time.
type Orchestrator struct {
	cfg        *config.Config
	chat       llm.ChatClient
	index      *retrieval.RelevanceIndex
	experience *experience.Model
	telemetry  *telemetry.Client
	store      *store.LocalStore
	renderer   markdown.Renderer

	mu         sync.Mutex
	lastRecord *telemetry.Record
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Chat       llm.ChatClient
	Index      *retrieval.RelevanceIndex
	Experience *experience.Model
	Telemetry  *telemetry.Client
	Store      *store.LocalStore
	Renderer   markdown.Renderer
}

// New builds an orchestrator.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		chat:       deps.Chat,
		index:      deps.Index,
		experience: deps.Experience,
		telemetry:  deps.Telemetry,
		store:      deps.Store,
		renderer:   deps.Renderer,
	}
}

// session is the mutable state of one round, shared between the streaming
// loop and finalize.
type session struct {
	req      feedback.Request
	rec      *telemetry.Record
	raw      strings.Builder
	final    string
	accepted []feedback.Unit // everything yielded, including synthesized units
	scorable []feedback.Unit // primary units only, fed to the experience model
}

// ==== LIFECYCLE ====

// Run executes one feedback round. Events arrive on the first channel in
// stream order; the second carries at most one error and both close when
// the round is finalized. Concurrent calls queue behind each other.
func (o *Orchestrator) Run(ctx context.Context, req feedback.Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		o.mu.Lock()
		defer o.mu.Unlock()

		if err := o.run(ctx, req, events); err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

func (o *Orchestrator) run(ctx context.Context, req feedback.Request, events chan<- Event) (err error) {
	timer := logging.StartTimer(logging.CategoryFeedback, "Run."+string(req.Kind))
	defer timer.Stop()

	if rerr := o.experience.RecordRequest(); rerr != nil {
		logging.Feedback("request count not recorded: %v", rerr)
	}

	contextText, cerr := o.resolveContext(ctx, req)
	if cerr != nil {
		return cerr
	}

	prompt := o.buildPrompt(req)

	// The record keeps the question and context as the student would phrase
	// them; the tier instruction and its separator only shape the chat turn.
	recordQuestion, recordContext := prompt, contextText
	if instruction := o.experience.InstructionTier().Instruction(); instruction != "" {
		prompt = instruction + "\n\n" + prompt + "\n\n"
		contextText += "\n\n"
	}

	// Every stream starts with an empty negative buffer. The again prompt
	// above has already consumed what the previous round staged.
	o.experience.ClearSessionNegatives()

	system := strings.ReplaceAll(o.cfg.Prompts.SystemInstructions, "{context}", contextText)
	user := prompt + "\n\n```\n" + req.Program + "\n```"

	clientID, iderr := o.store.ClientID()
	if iderr != nil {
		logging.Feedback("client id unavailable: %v", iderr)
	}
	s := &session{req: req, rec: o.telemetry.NewRecord(clientID, req.Program, recordQuestion, recordContext)}
	o.lastRecord = s.rec
	o.telemetry.Create(ctx, s.rec)

	defer func() { o.finalize(ctx, s, err) }()

	logging.Feedback("streaming %s round (context %d bytes, prompt %d bytes)", req.Kind, len(contextText), len(prompt))
	fragments, chatErrs := o.chat.StreamChat(ctx, system, user)

	if req.Kind.JSONStream() {
		err = o.streamUnits(ctx, s, events, fragments, chatErrs)
	} else {
		err = o.streamMarkdown(ctx, s, events, fragments, chatErrs)
	}
	if err != nil {
		return err
	}

	if req.Kind == feedback.KindOutcome && len(s.accepted) == 0 {
		return feedback.ErrNoFeedback
	}
	return nil
}

// resolveContext picks the prompt context: an explicit request context
// wins, otherwise the RAG query drives retrieval. The meaning kind asks
// about a term from an earlier remark; it gets the wildcard context so the
// model is not boxed into one document.
func (o *Orchestrator) resolveContext(ctx context.Context, req feedback.Request) (string, error) {
	if req.Kind == feedback.KindMeaning {
		return "*", nil
	}
	if req.Context != "" {
		return req.Context, nil
	}
	if req.RAGQuery == "" {
		return "", nil
	}
	text, docs, err := o.index.RetrieveContext(ctx, req.RAGQuery)
	if err != nil {
		return "", feedback.NewError("resolving context", err)
	}
	logging.FeedbackDebug("retrieved context from %v", docs)
	return text, nil
}

// buildPrompt assembles the user-facing question: configured default when
// the request brings none, and for the again round the staged negative
// remarks as a bulleted list.
func (o *Orchestrator) buildPrompt(req feedback.Request) string {
	prompt := req.Prompt
	if prompt == "" {
		prompt = o.cfg.Question(string(req.Kind))
	}

	if req.Kind == feedback.KindAgain {
		if negatives := o.experience.SessionNegatives(); len(negatives) > 0 {
			var b strings.Builder
			b.WriteString(prompt)
			b.WriteString("\n\nEarlier remarks to re-check:\n")
			for _, remark := range negatives {
				b.WriteString("- ")
				b.WriteString(remark)
				b.WriteString("\n")
			}
			prompt = b.String()
		}
	}
	return prompt
}

// finalize settles the round: record text fields, the experience score, and
// the telemetry update. It runs on every exit path. ErrNoFeedback is the
// one error that stays off the record: the round itself completed cleanly,
// the error exists for the caller.
func (o *Orchestrator) finalize(ctx context.Context, s *session, runErr error) {
	s.rec.FeedbackRaw = s.raw.String()

	if s.final == "" && len(s.accepted) > 0 {
		if data, err := json.Marshal(s.accepted); err == nil {
			s.final = string(data)
		}
	}
	s.rec.FeedbackFinal = s.final

	if runErr != nil && !errors.Is(runErr, feedback.ErrNoFeedback) {
		s.rec.ErrorMessage = runErr.Error()
	}

	// Scoring and telemetry must outlive a cancelled stream context. The
	// experience score settles before the record goes out.
	bg := context.WithoutCancel(ctx)
	if err := o.experience.RecordOutcome(bg, s.req.Kind, s.scorable); err != nil {
		logging.Feedback("outcome not recorded: %v", err)
	}
	o.telemetry.Update(bg, s.rec)

	// The record is kept locally so a later invocation can still rate it.
	if err := o.store.SetJSON(lastRecordKey, s.rec); err != nil {
		logging.Feedback("last record not saved: %v", err)
	}
	logging.Feedback("finalized %s round: %d accepted units", s.req.Kind, len(s.accepted))
}

// ==== RATING ====

const lastRecordKey = "last_record"

// SubmitRating attaches the student's rating to the most recent round and
// pushes the updated record. The round may have run in an earlier process;
// the record is recovered from the store in that case.
func (o *Orchestrator) SubmitRating(ctx context.Context, rating int, comment string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastRecord == nil {
		var rec telemetry.Record
		found, err := o.store.GetJSON(lastRecordKey, &rec)
		if err != nil {
			return fmt.Errorf("loading last feedback record: %w", err)
		}
		if !found {
			return fmt.Errorf("no feedback round to rate")
		}
		o.lastRecord = &rec
	}

	o.lastRecord.Rating = rating
	o.lastRecord.Comment = comment
	o.telemetry.Update(ctx, o.lastRecord)

	if err := o.store.SetJSON(lastRecordKey, o.lastRecord); err != nil {
		logging.Feedback("last record not saved: %v", err)
	}
	return nil
}
