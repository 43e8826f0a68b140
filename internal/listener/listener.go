package listener

import (
	"context"
	"errors"
	"time"

	"readingnotes/internal/config"
	"readingnotes/internal/logger"
	"readingnotes/internal/pipeline"
	"readingnotes/internal/storage"
)

const lastBackfillKey = "lastBackfillAt"

// Submitter is the part of the resolve queue the backfill needs.
type Submitter interface {
	Submit(noteID int64) error
}

// Service periodically re-submits notes whose resolve task never ran, e.g.
// because the process restarted or the queue was full.
type Service struct {
	db    *storage.DB
	queue Submitter
	cfg   config.Config
	log   *logger.Logger
}

func NewService(db *storage.DB, queue Submitter, cfg config.Config, log *logger.Logger) *Service {
	return &Service{db: db, queue: queue, cfg: cfg, log: log.With("component", "backfill")}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.BackfillIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if errors.Is(err, pipeline.ErrQueueClosed) {
				return nil
			}
			s.log.Warn("backfill cycle error", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce submits one batch and returns how many notes were queued.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	batch := s.cfg.BackfillBatch
	if batch <= 0 {
		batch = 50
	}
	notes, err := s.db.ListUnresolvedNotes(ctx, batch)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, n := range notes {
		err := s.queue.Submit(n.ID)
		if errors.Is(err, pipeline.ErrQueueFull) {
			s.log.Warn("resolve queue full, deferring rest of batch", "submitted", submitted, "remaining", len(notes)-submitted)
			break
		}
		if err != nil {
			return submitted, err
		}
		submitted++
	}

	if err := s.db.SetMetadata(ctx, lastBackfillKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return submitted, err
	}
	if submitted > 0 {
		s.log.Info("backfill cycle done", "candidates", len(notes), "submitted", submitted)
	}
	return submitted, nil
}
