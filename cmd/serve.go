package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/lyrix/internal/server"
	"github.com/desertthunder/lyrix/internal/shared"
)

// Serve runs the HTTP API until interrupted.
//
// Fetch workers run in the same process unless --workers is 0 or fetching is disabled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	a, err := r.library(ctx)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	workers := cmd.Int("workers")
	if workers < 0 {
		workers = r.config.Queue.Workers
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.Logging(shared.WithLogger(r.logger, "component", "http")))
	server.NewAPI(a.songs, a.docs, a.annotations, r.logger).Register(router)

	var wg sync.WaitGroup
	if a.queue != nil && workers > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.queue.Run(ctx, workers)
		}()
	}

	err = server.NewServer(addr, router, r.logger).ListenAndServe(ctx)
	stop()
	wg.Wait()
	return err
}
