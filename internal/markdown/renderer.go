// Package markdown renders free-form feedback text for the terminal.
package markdown

import (
	"github.com/charmbracelet/glamour"
)

// Renderer turns markdown into displayable text. Free-text feedback kinds
// render each accumulated snapshot, so implementations must tolerate
// incomplete markdown mid-stream.
type Renderer interface {
	Render(markdown string) (string, error)
}

// TerminalRenderer renders with glamour's automatic terminal styling.
type TerminalRenderer struct {
	renderer *glamour.TermRenderer
}

// NewTerminalRenderer builds a renderer sized to the given wrap width. A
// width of zero keeps glamour's default.
func NewTerminalRenderer(wrapWidth int) (*TerminalRenderer, error) {
	opts := []glamour.TermRendererOption{
		glamour.WithAutoStyle(),
	}
	if wrapWidth > 0 {
		opts = append(opts, glamour.WithWordWrap(wrapWidth))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &TerminalRenderer{renderer: r}, nil
}

func (t *TerminalRenderer) Render(markdown string) (string, error) {
	return t.renderer.Render(markdown)
}

// Passthrough returns markdown unchanged. Used where no terminal is
// attached and in tests.
type Passthrough struct{}

func (Passthrough) Render(markdown string) (string, error) {
	return markdown, nil
}
