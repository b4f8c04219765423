package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitializeDisabledIsNoOp(t *testing.T) {
	CloseAll()
	if err := Initialize("", false); err != nil {
		t.Fatalf("disabled init should not error: %v", err)
	}
	// Writing must not panic or create files.
	Feedback("this goes nowhere")
	if IsDebugMode() {
		t.Fatal("debug mode should be off")
	}
}

func TestInitializeCreatesLogsDir(t *testing.T) {
	CloseAll()
	dir := t.TempDir()
	if err := Initialize(dir, true); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer func() {
		CloseAll()
		Initialize("", false)
	}()

	Store("stored %d vectors", 3)
	Get(CategoryStore).Warn("slow operation")
	CloseAll()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "store.log"))
	if err != nil {
		t.Fatalf("reading store log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "stored 3 vectors") {
		t.Errorf("missing info line, got: %q", out)
	}
	if !strings.Contains(out, "[WARN] slow operation") {
		t.Errorf("missing warn line, got: %q", out)
	}
}

func TestTimerStopDoesNotPanicWhenDisabled(t *testing.T) {
	CloseAll()
	Initialize("", false)
	timer := StartTimer(CategoryRetrieval, "RetrieveContext")
	timer.Stop()
}
