package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"readingnotes/internal/catalog"
	"readingnotes/internal/config"
	"readingnotes/internal/listener"
	"readingnotes/internal/logger"
	"readingnotes/internal/pipeline"
	"readingnotes/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logger.New(cfg.LogMode)
	must(err)
	defer log.Sync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	providers, err := catalog.NewProviders(cfg)
	must(err)
	orch := pipeline.NewOrchestrator(db, cfg, log, catalog.NewLocal(db), providers)
	queue := pipeline.NewQueue(cfg.ResolveQueueSize, cfg.ResolveWorkers, func(ctx context.Context, noteID int64) error {
		_, err := orch.Resolve(ctx, noteID)
		return err
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(listener.NewService(db, queue, cfg, log).Run(ctx))

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	must(queue.Close(shutdownCtx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
