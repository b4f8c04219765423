package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codementor/internal/feedback"
)

// watchDebounce coalesces the write bursts editors produce on save.
const watchDebounce = 750 * time.Millisecond

var watchKind string

var watchCmd = &cobra.Command{
	Use:   "watch [program-file]",
	Short: "Re-run feedback every time the program is saved",
	Long: `Watches the program file and requests a fresh feedback round on every
save. The first round of a session reviews the program as-is; later rounds
use the revision flow, so the mentor tells the student what improved.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchKind, "kind", "annotation", "Feedback kind for each round (outcome, improve, annotation)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("program file: %w", err)
	}

	kind := feedback.Kind(watchKind)
	if !kind.JSONStream() {
		return fmt.Errorf("kind %q cannot drive watch mode", watchKind)
	}

	// Watch sessions are open-ended; only the signal ends them, not the
	// per-operation timeout.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save and
	// the inode-level watch would die with the old file.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	fmt.Printf("Watching %s, save the file to get feedback (Ctrl-C to stop)\n", path)

	if err := watchRound(ctx, a, kind, path); err != nil {
		return err
	}

	var timer *time.Timer
	fired := make(chan struct{}, 1)
	rounds := 1

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != path || !event.Op.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() { fired <- struct{}{} })
			} else {
				timer.Reset(watchDebounce)
			}

		case <-fired:
			timer = nil
			rounds++
			logger.Info("Program saved, requesting feedback", zap.Int("round", rounds))

			// Every save after the opening round is a revision, so the
			// mentor re-checks the previous remarks instead of starting over.
			if err := watchRound(ctx, a, feedback.KindAgain, path); err != nil {
				return err
			}
			fmt.Println(dimStyle.Render("---"))

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(werr))
		}
	}
}

func watchRound(ctx context.Context, a *app, kind feedback.Kind, path string) error {
	program, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading program: %w", err)
	}
	return streamFeedback(ctx, a, kind, string(program))
}
