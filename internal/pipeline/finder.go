package pipeline

import (
	"context"
	"sort"

	"readingnotes/internal"
	"readingnotes/internal/catalog"
	"readingnotes/internal/logger"
)

const (
	maxPreviewCandidates = 20
	defaultSearchLimit   = 10
)

// Finder queries the candidate sources: the local catalog first, then the
// external providers in their configured order.
type Finder struct {
	local     catalog.Source
	providers []catalog.Source
	matcher   *Matcher
	log       *logger.Logger
}

func NewFinder(local catalog.Source, providers []catalog.Source, matcher *Matcher, log *logger.Logger) *Finder {
	return &Finder{local: local, providers: providers, matcher: matcher, log: log}
}

// Candidates is the preview used by the manual link flow. Local hits win
// when there are any. Every candidate is scored against the raw input and
// the list is ordered by descending score.
func (f *Finder) Candidates(ctx context.Context, title, author string, limit int) []internal.Candidate {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	res := f.searchLocal(ctx, title, author, limit)
	if res.Empty() {
		f.log.Debug("no local candidates, asking providers", "title", title)
		res = f.searchProviders(ctx, title, author, limit)
	}

	out := make([]internal.Candidate, len(res.Candidates))
	for i, c := range res.Candidates {
		c.Score = f.matcher.Score(title, author, c)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if n := min(limit, maxPreviewCandidates); len(out) > n {
		out = out[:n]
	}
	return out
}

func (f *Finder) searchLocal(ctx context.Context, title, author string, limit int) catalog.Result {
	if f.local == nil {
		return catalog.Result{}
	}
	res := f.local.Search(ctx, title, author, limit)
	if res.Failed() {
		f.log.Warn("local search failed", "error", res.Err)
	}
	return res
}

// searchProviders calls each provider once and stops at the first that
// returns anything. Results are never merged across providers.
func (f *Finder) searchProviders(ctx context.Context, title, author string, limit int) catalog.Result {
	for _, p := range f.providers {
		res := p.Search(ctx, title, author, limit)
		if res.Failed() {
			f.log.Warn("provider search failed", "source", p.Name(), "error", res.Err)
			continue
		}
		if res.Empty() {
			f.log.Debug("provider returned no candidates", "source", p.Name())
			continue
		}
		f.log.Debug("provider selected", "source", p.Name(), "candidates", len(res.Candidates))
		return res
	}
	return catalog.Result{}
}
