package markdown

import (
	"strings"
	"testing"
)

func TestPassthrough(t *testing.T) {
	got, err := Passthrough{}.Render("# heading\n*emphasis*")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "# heading\n*emphasis*" {
		t.Errorf("passthrough changed the text: %q", got)
	}
}

func TestTerminalRenderer(t *testing.T) {
	r, err := NewTerminalRenderer(80)
	if err != nil {
		t.Fatalf("NewTerminalRenderer: %v", err)
	}

	got, err := r.Render("plain text")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, "plain text") {
		t.Errorf("rendered output lost the text: %q", got)
	}

	// Mid-stream snapshots arrive unterminated; rendering must not fail.
	if _, err := r.Render("some **unterminated emph"); err != nil {
		t.Errorf("unterminated markdown: %v", err)
	}
}
