// Package config holds all CodeMentor configuration. The configuration is an
// explicit object constructed once at startup and passed to every component
// that needs it; there are no mutable package-level settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all CodeMentor configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// DataDir is where the local store, logs and novelty index live.
	DataDir string `yaml:"data_dir"`

	// Chat model configuration
	Chat ChatConfig `yaml:"chat"`

	// Embedding engine configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// PCK corpus configuration
	Corpus CorpusConfig `yaml:"corpus"`

	// Relevance filtering
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Experience tracking
	Experience ExperienceConfig `yaml:"experience"`

	// Datadrop telemetry backend
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Prompt texts
	Prompts PromptsConfig `yaml:"prompts"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ChatConfig configures the chat model client.
type ChatConfig struct {
	Provider string `yaml:"provider"` // anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // ollama, genai

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`
}

// CorpusConfig names the pedagogical-content-knowledge documents.
// Documents maps a stable key (PCK_GOALS, ...) to a filename under Dir.
type CorpusConfig struct {
	Dir       string            `yaml:"dir"`
	Documents map[string]string `yaml:"documents"`
	ChunkSize int               `yaml:"chunk_size"`
}

// RetrievalConfig holds the two similarity cutoffs. They are independent
// tuning knobs: the input cutoff selects prompt context with broad recall,
// the output cutoff filters model output with higher precision.
type RetrievalConfig struct {
	InputSimilarityCutoff  float64 `yaml:"input_similarity_cutoff"`
	OutputSimilarityCutoff float64 `yaml:"output_similarity_cutoff"`
	MaxResults             int     `yaml:"max_results"`
}

// ExperienceConfig configures the experience model.
type ExperienceConfig struct {
	// NoveltyCutoff is a euclidean distance: results strictly below it count
	// as feedback the student has already seen.
	NoveltyCutoff float64 `yaml:"novelty_cutoff"`
}

// TelemetryConfig configures the datadrop backend.
type TelemetryConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout string `yaml:"timeout"`
	Release string `yaml:"release"`
}

// PromptsConfig holds the system instructions and per-kind question texts.
type PromptsConfig struct {
	SystemInstructions string            `yaml:"system_instructions"`
	Questions          map[string]string `yaml:"questions"`
}

// LoggingConfig configures debug file logging.
type LoggingConfig struct {
	DebugMode bool `yaml:"debug_mode"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Name:    "codementor",
		Version: "0.3.0",
		DataDir: filepath.Join(home, ".codementor"),
		Chat: ChatConfig{
			Provider: "anthropic",
			Model:    "claude-3-5-sonnet-20241022",
			Timeout:  "120s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},
		Corpus: CorpusConfig{
			Dir:       "resources",
			ChunkSize: 100,
			Documents: map[string]string{
				"PCK_GOALS":          "1. pck-llm-input-learning-goals.md",
				"PCK_IMPORTANCE":     "2. pck-llm-input-importance.md",
				"PCK_DIFFICULTIES":   "4. pck-llm-input-learning-difficulties.md",
				"PCK_MISTAKES":       "5. pck-llm-input-mistakes-students-make.md",
				"PCK_MISCONCEPTIONS": "6. pck-llm-input-misconceptions.md",
				"PCK_ORDER":          "7. pck-llm-input-learning-goals-order.md",
				"PCK_EXPLAIN":        "8. pck-llm-input-how-to-explain.md",
				"PCK_ASSESS":         "12. pck-llm-input-how-to-assess.md",
			},
		},
		Retrieval: RetrievalConfig{
			InputSimilarityCutoff:  0.5,
			OutputSimilarityCutoff: 0.3,
			MaxResults:             10,
		},
		Experience: ExperienceConfig{
			NoveltyCutoff: 0.3,
		},
		Telemetry: TelemetryConfig{
			BaseURL: "http://localhost:5000/api/v1",
			Timeout: "2s",
			Release: "0.3.0",
		},
		Prompts: PromptsConfig{
			SystemInstructions: "You are a patient programming mentor reviewing a student's program. " +
				"Ground every remark in the reference material below.\n\n{context}",
			Questions: map[string]string{
				"outcome": "For each learning outcome, state whether the program meets it. " +
					"Answer with one JSON object per outcome: {\"remark\": string, \"ismet\": boolean}.",
				"improve": "Suggest improvements the student can make, and praise what is done well. " +
					"Answer with one JSON object per suggestion: {\"remark\": string, \"praise\": string}.",
				"understand": "Write questions that test whether the student understands their own program. " +
					"Answer with one JSON object per question: {\"question\": string, \"answer\": string}.",
				"custom": "Answer the student's question about their program.",
				"annotation": "Comment on individual lines of the numbered program. " +
					"Answer with one JSON object per line worth mentioning: " +
					"{\"line\": number, \"remark\": string, \"positive\": boolean}.",
				"again": "The student revised their program. For each earlier remark below, say whether it improved. " +
					"Answer with one JSON object per remark: " +
					"{\"remark\": string, \"improved\": boolean, \"next_step\": string, \"hint\": string}.",
				"detail":  "Explain the following feedback in more detail:",
				"meaning": "Explain what is meant by",
			},
		},
		Logging: LoggingConfig{DebugMode: false},
	}
}

// Load reads configuration from path, falling back to defaults for anything
// unset. A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnvOverrides lets environment variables override file values.
// Keys never end up in config files checked into a classroom repo.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEMENTOR_CHAT_API_KEY"); v != "" {
		c.Chat.APIKey = v
	}
	if v := os.Getenv("CODEMENTOR_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("CODEMENTOR_TELEMETRY_API_KEY"); v != "" {
		c.Telemetry.APIKey = v
	}
	if v := os.Getenv("CODEMENTOR_TELEMETRY_URL"); v != "" {
		c.Telemetry.BaseURL = v
	}
	if v := os.Getenv("CODEMENTOR_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if os.Getenv("CODEMENTOR_DEBUG") == "true" {
		c.Logging.DebugMode = true
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if c.Retrieval.MaxResults <= 0 {
		return fmt.Errorf("retrieval.max_results must be positive, got %d", c.Retrieval.MaxResults)
	}
	if c.Corpus.ChunkSize <= 0 {
		return fmt.Errorf("corpus.chunk_size must be positive, got %d", c.Corpus.ChunkSize)
	}
	if len(c.Corpus.Documents) == 0 {
		return fmt.Errorf("corpus.documents must name at least one PCK document")
	}
	return nil
}

// ChatTimeout parses the chat timeout, defaulting to two minutes.
func (c *Config) ChatTimeout() time.Duration {
	return parseDuration(c.Chat.Timeout, 2*time.Minute)
}

// TelemetryTimeout parses the telemetry timeout, defaulting to two seconds.
// Telemetry is a side channel; the short timeout keeps it from ever blocking
// the feedback stream.
func (c *Config) TelemetryTimeout() time.Duration {
	return parseDuration(c.Telemetry.Timeout, 2*time.Second)
}

// Question returns the configured question text for a feedback kind.
func (c *Config) Question(kind string) string {
	return c.Prompts.Questions[kind]
}

// StorePath returns the SQLite database path under the data directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "mentor.db")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
