package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"readingnotes/internal"
	"readingnotes/internal/catalog"
	"readingnotes/internal/config"
	"readingnotes/internal/logger"
	"readingnotes/internal/resolver"
	"readingnotes/internal/storage"
	"readingnotes/internal/util"
)

type Orchestrator struct {
	db       *storage.DB
	finder   *Finder
	matcher  *Matcher
	resolver *resolver.Resolver
	log      *logger.Logger

	localAcceptScore float64
	searchLimit      int
	localLimit       int
}

func NewOrchestrator(db *storage.DB, cfg config.Config, log *logger.Logger, local catalog.Source, providers []catalog.Source) *Orchestrator {
	log = log.With("component", "orchestrator")
	matcher := NewMatcher(cfg)
	return &Orchestrator{
		db:               db,
		finder:           NewFinder(local, providers, matcher, log),
		matcher:          matcher,
		resolver:         resolver.New(db, log),
		log:              log,
		localAcceptScore: cfg.MatchLocalAcceptScore,
		searchLimit:      cfg.MatchSearchLimit,
		localLimit:       cfg.MatchLocalLimit,
	}
}

func (o *Orchestrator) Finder() *Finder {
	return o.finder
}

func (o *Orchestrator) Resolver() *resolver.Resolver {
	return o.resolver
}

type ResolveResult struct {
	NoteID  int64               `json:"noteId"`
	TraceID string              `json:"traceId"`
	Outcome internal.RunOutcome `json:"outcome"`
	Source  string              `json:"source,omitempty"`
	Score   *float64            `json:"score,omitempty"`
	BookID  *int64              `json:"bookId,omitempty"`
}

// Resolve runs one match attempt for a note and records it in runs. Source
// failures are absorbed; the returned error is only set for FAILED runs.
func (o *Orchestrator) Resolve(ctx context.Context, noteID int64) (ResolveResult, error) {
	start := time.Now()
	res := ResolveResult{NoteID: noteID, TraceID: uuid.NewString()}
	timings := map[string]float64{}
	log := o.log.With("traceId", res.TraceID, "noteId", noteID)

	err := o.resolve(ctx, log, &res, timings)
	if err != nil {
		res.Outcome = internal.OutcomeFailed
		log.Error("resolve failed", "error", err)
	}
	timings["totalMs"] = float64(time.Since(start).Milliseconds())

	run := internal.MatchRun{
		TraceID: res.TraceID,
		NoteID:  noteID,
		Outcome: res.Outcome,
		Source:  util.NonEmpty(res.Source),
		Score:   res.Score,
		Timings: timings,
	}
	if runErr := o.db.InsertRun(ctx, run); runErr != nil {
		log.Error("run not recorded", "error", runErr)
	}
	return res, err
}

func (o *Orchestrator) resolve(ctx context.Context, log *logger.Logger, res *ResolveResult, timings map[string]float64) error {
	note, err := o.db.GetNote(ctx, res.NoteID)
	if err != nil {
		return err
	}
	if note == nil {
		res.Outcome = internal.OutcomeSkipped
		log.Warn("note not found")
		return nil
	}
	if note.MatchStatus != internal.MatchPending {
		res.Outcome = internal.OutcomeSkipped
		log.Debug("note already resolved", "status", note.MatchStatus)
		return nil
	}
	title, author := util.Deref(note.RawTitle), util.Deref(note.RawAuthor)
	if strings.TrimSpace(title) == "" || strings.TrimSpace(author) == "" {
		res.Outcome = internal.OutcomeSkipped
		log.Debug("note has no title or author")
		return nil
	}

	step := time.Now()
	local := o.finder.searchLocal(ctx, title, author, o.localLimit)
	timings["localMs"] = float64(time.Since(step).Milliseconds())
	if !local.Empty() {
		m := o.matcher.PickBest(title, author, local.Candidates)
		if m.Best != nil && (m.AutoMatch || m.Score > o.localAcceptScore) {
			return o.link(ctx, log, res, timings, title, author, m)
		}
		log.Debug("no confident local match", "candidates", len(local.Candidates), "score", m.Score)
	}

	step = time.Now()
	external := o.finder.searchProviders(ctx, title, author, o.searchLimit)
	timings["externalMs"] = float64(time.Since(step).Milliseconds())
	if external.Empty() {
		res.Outcome = internal.OutcomeUnmatched
		log.Info("no candidates from any source")
		return nil
	}

	m := o.matcher.PickBest(title, author, external.Candidates)
	if m.Best == nil || !m.AutoMatch {
		res.Outcome = internal.OutcomeUnmatched
		res.Source = external.Source
		res.Score = &m.Score
		log.Info("best candidate below threshold", "source", external.Source, "score", m.Score)
		return nil
	}
	return o.link(ctx, log, res, timings, title, author, m)
}

func (o *Orchestrator) link(ctx context.Context, log *logger.Logger, res *ResolveResult, timings map[string]float64, title, author string, m internal.MatchResult) error {
	best := *m.Best
	res.Source = best.Source
	res.Score = &m.Score

	step := time.Now()
	prov := o.matcher.Provenance(title, author, best, m.Score)
	book, err := o.resolver.LinkAuto(ctx, res.NoteID, best, m.Score, prov)
	timings["linkMs"] = float64(time.Since(step).Milliseconds())

	switch {
	case errors.Is(err, resolver.ErrNoteNotPending), errors.Is(err, resolver.ErrNoteChanged):
		res.Outcome = internal.OutcomeSkipped
		log.Info("note changed while resolving", "reason", err.Error())
		return nil
	case err != nil:
		return err
	}

	res.Outcome = internal.OutcomeLinked
	res.BookID = &book.ID
	return nil
}
