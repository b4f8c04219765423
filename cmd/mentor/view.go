package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"codementor/internal/orchestrator"
)

// snapshotMsg carries the latest rendered snapshot of a free-text stream.
type snapshotMsg string

// streamDoneMsg signals that the feedback stream finished.
type streamDoneMsg struct{}

// markdownView is the inline view for free-text feedback: each snapshot
// replaces the previous one, so the answer improves in place while it
// streams.
type markdownView struct {
	content string
}

func (markdownView) Init() tea.Cmd { return nil }

func (m markdownView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case snapshotMsg:
		m.content = string(msg)
		return m, nil
	case streamDoneMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m markdownView) View() string { return m.content }

// runMarkdownView drives the snapshot display until the stream closes.
func runMarkdownView(ctx context.Context, events <-chan orchestrator.Event) error {
	p := tea.NewProgram(markdownView{}, tea.WithContext(ctx))
	go func() {
		for event := range events {
			p.Send(snapshotMsg(event.Markdown))
		}
		p.Send(streamDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("rendering feedback stream: %w", err)
	}
	return nil
}
