package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/shared"
	"github.com/desertthunder/lyrix/internal/tasks"
)

// QueueFailed lists fetch jobs retained after exhausting their attempts.
func (r *Runner) QueueFailed(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.pipeline(ctx)
	if err != nil {
		return err
	}

	jobs, err := pipeline.Failed(ctx)
	if err != nil {
		return fmt.Errorf("failed to list failed jobs: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(jobs, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Failed fetch jobs (%d)", len(jobs)))
	for _, job := range jobs {
		var payload tasks.FetchPayload
		if err := job.Decode(&payload); err != nil {
			r.writePlain("%s  %s  (undecodable payload)\n", job.ID, job.Name)
			continue
		}
		r.writePlain("%s  song %s  %d/%d attempts  %s\n", job.ID, payload.SongID, job.Attempts, job.MaxAttempts, job.LastError)
	}
	return nil
}

// QueueRetry moves failed fetch jobs back to waiting.
func (r *Runner) QueueRetry(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.pipeline(ctx)
	if err != nil {
		return err
	}

	n, err := pipeline.RetryFailed(ctx)
	if err != nil {
		return fmt.Errorf("failed to retry jobs: %w", err)
	}
	return r.writePlain("✓ Re-queued %d job(s)\n", n)
}

// Worker runs fetch workers until interrupted, printing progress as jobs run.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.pipeline(ctx)
	if err != nil {
		return err
	}

	workers := cmd.Int("workers")
	if workers < 1 {
		workers = max(r.config.Queue.Workers, 1)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	progress := make(chan tasks.ProgressUpdate, 50)
	pipeline.SetProgress(progress)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("%s\n", update.Message)
		}
	}()

	r.logger.Info("fetch workers started", "workers", workers, "backend", r.config.Queue.Backend)
	r.app.queue.Run(ctx, workers)

	pipeline.SetProgress(nil)
	close(progress)
	<-done
	r.logger.Info("fetch workers stopped")
	return nil
}

// pipeline returns the fetch pipeline, failing when queue.backend is none.
func (r *Runner) pipeline(ctx context.Context) (*tasks.FetchPipeline, error) {
	a, err := r.library(ctx)
	if err != nil {
		return nil, err
	}
	if a.pipeline == nil {
		return nil, fmt.Errorf("%w: lyrics fetching is disabled (queue.backend = none)", shared.ErrServiceUnavailable)
	}
	return a.pipeline, nil
}
