package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codementor/internal/config"
	"codementor/internal/feedback"
)

// ==== STYLES ====

var (
	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#008000"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e19600"))
	labelStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// ==== COMMANDS ====

var outcomeCmd = &cobra.Command{
	Use:   "outcome [program-file]",
	Short: "Check the program against the learning outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runKind(feedback.KindOutcome),
}

var improveCmd = &cobra.Command{
	Use:   "improve [program-file]",
	Short: "Suggest improvements and praise what works",
	Args:  cobra.ExactArgs(1),
	RunE:  runKind(feedback.KindImprove),
}

var understandCmd = &cobra.Command{
	Use:   "understand [program-file]",
	Short: "Generate questions that probe the student's understanding",
	Args:  cobra.ExactArgs(1),
	RunE:  runKind(feedback.KindUnderstand),
}

var annotateCmd = &cobra.Command{
	Use:   "annotate [program-file]",
	Short: "Comment on individual program lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runKind(feedback.KindAnnotation),
}

var againCmd = &cobra.Command{
	Use:   "again [program-file]",
	Short: "Re-check the remarks from the previous round after a revision",
	Args:  cobra.ExactArgs(1),
	RunE:  runKind(feedback.KindAgain),
}

var askCmd = &cobra.Command{
	Use:   "ask [program-file] [question...]",
	Short: "Ask a free-form question about the program",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		questionFlag = strings.Join(args[1:], " ")
		return runKind(feedback.KindCustom)(cmd, args[:1])
	},
}

var detailCmd = &cobra.Command{
	Use:   "detail [program-file] [remark...]",
	Short: "Expand on one earlier remark",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		questionFlag = strings.Join(args[1:], " ")
		return runKind(feedback.KindDetail)(cmd, args[:1])
	},
}

var meaningCmd = &cobra.Command{
	Use:   "meaning [program-file] [term...]",
	Short: "Explain a term used in an earlier remark",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		questionFlag = strings.Join(args[1:], " ")
		return runKind(feedback.KindMeaning)(cmd, args[:1])
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate [1-5] [comment...]",
	Short: "Rate the most recent feedback round",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating, err := strconv.Atoi(args[0])
		if err != nil || rating < 1 || rating > 5 {
			return fmt.Errorf("rating must be a number from 1 to 5")
		}
		comment := strings.Join(args[1:], " ")

		a, err := newLiteApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := commandContext()
		defer cancel()

		if err := a.orch.SubmitRating(ctx, rating, comment); err != nil {
			return err
		}
		fmt.Println("Thanks, rating recorded.")
		return nil
	},
}

func feedbackCommands() []*cobra.Command {
	return []*cobra.Command{
		outcomeCmd, improveCmd, understandCmd, annotateCmd, againCmd,
		askCmd, detailCmd, meaningCmd,
	}
}

// ==== EXECUTION ====

// runKind returns the RunE for a feedback kind taking a program file.
func runKind(kind feedback.Kind) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		program, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading program: %w", err)
		}

		ctx, cancel := commandContext()
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		return streamFeedback(ctx, a, kind, string(program))
	}
}

func streamFeedback(ctx context.Context, a *app, kind feedback.Kind, program string) error {
	req := feedback.Request{
		Kind:    kind,
		Program: program,
		Prompt:  questionFlag,
		Context: contextFlag,
	}
	switch kind {
	case feedback.KindCustom, feedback.KindDetail, feedback.KindMeaning:
		// The student's words complete the configured lead-in, they never
		// replace it.
		req.Prompt = composeQuestion(a.cfg, kind, questionFlag)
	}
	if kind == feedback.KindAnnotation {
		// The model refers to lines by number, so it sees a numbered copy.
		req.Program = numberLines(program)
	}
	if req.Context == "" {
		req.RAGQuery = ragQuery(a, kind)
	}

	logger.Info("Requesting feedback", zap.String("kind", string(kind)))
	events, errCh := a.orch.Run(ctx, req)

	if kind.JSONStream() {
		for event := range events {
			fmt.Println(formatUnit(event.Unit))
		}
	} else if err := runMarkdownView(ctx, events); err != nil {
		return err
	}

	if err := <-errCh; err != nil {
		if errors.Is(err, feedback.ErrNoFeedback) {
			fmt.Println(dimStyle.Render("No feedback this round."))
			return nil
		}
		return err
	}
	return nil
}

// composeQuestion builds the full question for the free-text kinds: the
// configured lead-in followed by the student's own words.
func composeQuestion(cfg *config.Config, kind feedback.Kind, text string) string {
	lead := cfg.Question(string(kind))
	if lead == "" {
		return text
	}
	if text == "" {
		return lead
	}
	return lead + " " + text
}

// ragQuery picks the retrieval query for a round: the student's own
// question when there is one, otherwise the kind's configured question.
func ragQuery(a *app, kind feedback.Kind) string {
	if questionFlag != "" {
		return questionFlag
	}
	return a.cfg.Question(string(kind))
}

// numberLines prefixes each program line with its 1-based number.
func numberLines(program string) string {
	lines := strings.Split(program, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	return b.String()
}

// ==== DISPLAY ====

func formatUnit(u feedback.Unit) string {
	switch v := u.(type) {
	case *feedback.Outcome:
		if v.IsMet {
			return positiveStyle.Render("✓ " + v.Remark)
		}
		return negativeStyle.Render("✗ "+v.Remark) + seenBefore(v.ExtraInfo)
	case *feedback.Improve:
		if v.Praise != "" {
			return positiveStyle.Render("+ " + v.Remark)
		}
		return negativeStyle.Render("~ "+v.Remark) + seenBefore(v.ExtraInfo)
	case *feedback.Understand:
		return labelStyle.Render("Q: ") + v.Question + "\n" + dimStyle.Render("   expected: "+v.Answer)
	case *feedback.Annotation:
		prefix := fmt.Sprintf("line %d: ", v.Line+lineOffset)
		if v.Positive {
			return positiveStyle.Render(prefix + v.Remark)
		}
		return negativeStyle.Render(prefix + v.Remark)
	case *feedback.Again:
		if v.Improved {
			return positiveStyle.Render("✓ improved: " + v.Remark)
		}
		return negativeStyle.Render("✗ still open: "+v.Remark) + seenBefore(v.ExtraInfo)
	case *feedback.NextStep:
		return labelStyle.Render("Next step: ") + v.NextStep
	default:
		return fmt.Sprintf("%v", v)
	}
}

func seenBefore(extraInfo bool) string {
	if !extraInfo {
		return ""
	}
	return dimStyle.Render("  (seen before)")
}
