package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/shared"
	"github.com/desertthunder/lyrix/internal/tasks"
	"github.com/desertthunder/lyrix/internal/ui"
)

// TUI launches the interactive lyrics browser.
//
// With --fetch, workers run in the background and the song list follows their progress.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	who, err := caller(cmd)
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/lyrix-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, who, a.songs, a.docs)

	if cmd.Bool("fetch") && a.pipeline != nil {
		workerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		progress := make(chan tasks.ProgressUpdate, 50)
		a.pipeline.SetProgress(progress)
		model.WithProgress(progress)

		done := make(chan struct{})
		go func() {
			defer close(done)
			a.queue.Run(workerCtx, max(r.config.Queue.Workers, 1))
		}()
		defer func() {
			cancel()
			<-done
			a.pipeline.SetProgress(nil)
		}()
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
