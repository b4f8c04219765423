// Package logging provides categorized file-based logging for CodeMentor.
// Logs are written to <data dir>/logs/ with a separate file per category.
// Nothing is written unless debug mode is enabled, so a student's machine
// stays clean in normal operation.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup, corpus loading
	CategoryConfig       Category = "config"       // Configuration loading
	CategoryFeedback     Category = "feedback"     // Orchestrator request lifecycle
	CategoryArticulation Category = "articulation" // Stream decoding (JSON extraction)
	CategoryRetrieval    Category = "retrieval"    // PCK context retrieval
	CategoryExperience   Category = "experience"   // Experience level tracking
	CategoryStore        Category = "store"        // Local SQLite store
	CategoryEmbedding    Category = "embedding"    // Embedding engine
	CategoryChat         Category = "chat"         // Chat model streaming
	CategoryTelemetry    Category = "telemetry"    // Datadrop side channel
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	debugMode bool
	logLevel  = LevelInfo
	configMu  sync.RWMutex
)

// Initialize sets up the logging directory. Call once at startup with the
// data directory and the debug flag from configuration. When debug is false
// every call below is a silent no-op.
func Initialize(dataDir string, debug bool) error {
	configMu.Lock()
	debugMode = debug
	if !debug {
		configMu.Unlock()
		return nil
	}
	if dataDir == "" {
		configMu.Unlock()
		return fmt.Errorf("data directory required")
	}

	logsDir = filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		configMu.Unlock()
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logLevel = LevelDebug
	configMu.Unlock()

	Get(CategoryBoot).Info("=== CodeMentor logging initialized ===")
	return nil
}

// IsDebugMode reports whether file logging is active.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return debugMode
}

// Get returns the logger for a category, creating its file on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if IsDebugMode() && logsDir != "" {
		path := filepath.Join(logsDir, string(category)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, levelName, format string, args ...interface{}) {
	if !IsDebugMode() || l.logger == nil {
		return
	}
	configMu.RLock()
	min := logLevel
	configMu.RUnlock()
	if level < min {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] %s", ts, levelName, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// CloseAll closes all open log files. Call on shutdown.
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CATEGORY CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Config(format string, args ...interface{}) { Get(CategoryConfig).Info(format, args...) }

func ConfigDebug(format string, args ...interface{}) { Get(CategoryConfig).Debug(format, args...) }

func Feedback(format string, args ...interface{}) { Get(CategoryFeedback).Info(format, args...) }

func FeedbackDebug(format string, args ...interface{}) { Get(CategoryFeedback).Debug(format, args...) }

func Articulation(format string, args ...interface{}) {
	Get(CategoryArticulation).Info(format, args...)
}

func ArticulationDebug(format string, args ...interface{}) {
	Get(CategoryArticulation).Debug(format, args...)
}

func Retrieval(format string, args ...interface{}) { Get(CategoryRetrieval).Info(format, args...) }

func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

func Experience(format string, args ...interface{}) { Get(CategoryExperience).Info(format, args...) }

func ExperienceDebug(format string, args ...interface{}) {
	Get(CategoryExperience).Debug(format, args...)
}

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

func Chat(format string, args ...interface{}) { Get(CategoryChat).Info(format, args...) }

func ChatDebug(format string, args ...interface{}) { Get(CategoryChat).Debug(format, args...) }

func Telemetry(format string, args ...interface{}) { Get(CategoryTelemetry).Info(format, args...) }

func TelemetryDebug(format string, args ...interface{}) {
	Get(CategoryTelemetry).Debug(format, args...)
}

// =============================================================================
// PERFORMANCE TIMER
// =============================================================================

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time. Operations slower than a second are warned.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	l := Get(t.category)
	if elapsed > time.Second {
		l.Warn("%s took %v (slow)", t.operation, elapsed)
	} else {
		l.Debug("%s completed in %v", t.operation, elapsed)
	}
}
