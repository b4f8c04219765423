package embedding

import "testing"

func TestNewGenAIEngineTaskType(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"default", "", "SEMANTIC_SIMILARITY"},
		{"passthrough", "RETRIEVAL_DOCUMENT", "RETRIEVAL_DOCUMENT"},
		{"unknown_falls_back", "CLUSTERING", "SEMANTIC_SIMILARITY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewGenAIEngine("test-key", "", tt.in)
			if err != nil {
				t.Fatalf("NewGenAIEngine: %v", err)
			}
			if e.taskType != tt.want {
				t.Errorf("taskType = %q, want %q", e.taskType, tt.want)
			}
			if e.model != "gemini-embedding-001" {
				t.Errorf("default model = %q", e.model)
			}
		})
	}
}

func TestNewGenAIEngineRequiresKey(t *testing.T) {
	if _, err := NewGenAIEngine("", "m", ""); err == nil {
		t.Error("expected error without API key")
	}
}
