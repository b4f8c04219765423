package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"codementor/internal/config"
	"codementor/internal/feedback"
)

func TestComposeQuestion(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		kind feedback.Kind
		text string
		want string
	}{
		{
			name: "detail keeps the configured lead-in",
			kind: feedback.KindDetail,
			text: "the loop never terminates",
			want: cfg.Question(string(feedback.KindDetail)) + " the loop never terminates",
		},
		{
			name: "meaning keeps the configured lead-in",
			kind: feedback.KindMeaning,
			text: "off-by-one",
			want: cfg.Question(string(feedback.KindMeaning)) + " off-by-one",
		},
		{
			name: "custom keeps the configured lead-in",
			kind: feedback.KindCustom,
			text: "why does this print twice?",
			want: cfg.Question(string(feedback.KindCustom)) + " why does this print twice?",
		},
		{
			name: "empty text falls back to the lead-in alone",
			kind: feedback.KindDetail,
			text: "",
			want: cfg.Question(string(feedback.KindDetail)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := composeQuestion(cfg, tt.kind, tt.text)
			if got != tt.want {
				t.Errorf("composeQuestion = %q, want %q", got, tt.want)
			}
			if tt.text != "" && !strings.HasSuffix(got, tt.text) {
				t.Errorf("student text missing from %q", got)
			}
		})
	}
}

func TestNumberLines(t *testing.T) {
	got := numberLines("a\nb")
	want := "1: a\n2: b\n"
	if got != want {
		t.Errorf("numberLines = %q, want %q", got, want)
	}
}

func TestMarkdownViewReplacesSnapshots(t *testing.T) {
	var m tea.Model = markdownView{}

	m, _ = m.Update(snapshotMsg("first"))
	m, _ = m.Update(snapshotMsg("first and second"))
	if got := m.View(); got != "first and second" {
		t.Errorf("View = %q, want latest snapshot", got)
	}

	_, cmd := m.Update(streamDoneMsg{})
	if cmd == nil {
		t.Fatal("expected quit command when the stream ends")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("stream end must quit the program")
	}
}
