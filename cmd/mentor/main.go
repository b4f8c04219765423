package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codementor/internal/config"
	"codementor/internal/embedding"
	"codementor/internal/experience"
	"codementor/internal/llm"
	"codementor/internal/logging"
	"codementor/internal/markdown"
	"codementor/internal/orchestrator"
	"codementor/internal/retrieval"
	"codementor/internal/store"
	"codementor/internal/telemetry"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Per-request flags
	questionFlag string
	contextFlag  string
	lineOffset   int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mentor",
	Short: "CodeMentor - pedagogical feedback on student programs",
	Long: `CodeMentor reviews a student's program the way a teaching assistant
would: grounded in curated pedagogical content, streamed as it is written,
and filtered so only on-curriculum feedback reaches the student.

Feedback adapts to the student over time. The mentor remembers how recent
rounds went and which remarks the student has already seen.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ~/.codementor/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	for _, cmd := range feedbackCommands() {
		cmd.Flags().StringVarP(&questionFlag, "question", "q", "", "Override the default question for this kind")
		cmd.Flags().StringVar(&contextFlag, "context", "", "Explicit prompt context (skips retrieval)")
		rootCmd.AddCommand(cmd)
	}
	annotateCmd.Flags().IntVar(&lineOffset, "line-offset", 0, "Offset added to displayed line numbers")

	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ==== WIRING ====

// app holds everything a command needs for one invocation.
type app struct {
	cfg   *config.Config
	orch  *orchestrator.Orchestrator
	store *store.LocalStore
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newApp loads config and wires the pipeline. The corpus is read and
// embedded here, so commands that never retrieve (rate) use newLiteApp
// instead.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.NewLocalStore(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building embedding engine: %w", err)
	}

	corpus, err := retrieval.LoadCorpus(ctx, cfg.Corpus, engine)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading corpus: %w", err)
	}

	chat, err := llm.NewClient(cfg.Chat, cfg.ChatTimeout())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building chat client: %w", err)
	}

	renderer, err := markdown.NewTerminalRenderer(100)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building markdown renderer: %w", err)
	}

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Chat:       chat,
		Index:      retrieval.NewRelevanceIndex(engine, corpus, cfg.Retrieval),
		Experience: experience.NewModel(st, engine, cfg.Experience),
		Telemetry:  telemetry.NewClient(cfg.Telemetry, cfg.TelemetryTimeout()),
		Store:      st,
		Renderer:   renderer,
	})
	return &app{cfg: cfg, orch: orch, store: st}, nil
}

// newLiteApp wires only what rating needs: the store and the telemetry
// client. No embedding backend is contacted.
func newLiteApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.NewLocalStore(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Telemetry: telemetry.NewClient(cfg.Telemetry, cfg.TelemetryTimeout()),
		Store:     st,
		Renderer:  markdown.Passthrough{},
	})
	return &app{cfg: cfg, orch: orch, store: st}, nil
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".codementor", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.DataDir, verbose || cfg.Logging.DebugMode); err != nil {
		return nil, fmt.Errorf("initializing debug logging: %w", err)
	}
	return cfg, nil
}

// commandContext derives the operation context with timeout and SIGINT
// handling.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// initConfigCmd writes the default config for editing.
var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		home, _ := os.UserHomeDir()
		path := configPath
		if path == "" {
			path = filepath.Join(home, ".codementor", "config.yaml")
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}
