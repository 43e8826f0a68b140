package pipeline

import (
	"readingnotes/internal"
	"readingnotes/internal/config"
	"readingnotes/internal/util"
)

// MatcherVersion is stamped into provenance. Bump it whenever scoring,
// weights or the threshold change meaning.
const MatcherVersion = "2025-08-18"

// Matcher picks the best candidate for a raw title/author pair. It holds no
// state between calls.
type Matcher struct {
	AutoThreshold float64
	TitleWeight   float64
	AuthorWeight  float64
}

func NewMatcher(cfg config.Config) *Matcher {
	return &Matcher{
		AutoThreshold: cfg.MatchAutoThreshold,
		TitleWeight:   cfg.MatchTitleWeight,
		AuthorWeight:  cfg.MatchAuthorWeight,
	}
}

// PickBest returns the first strong match (equal normalized titles and
// overlapping authors) with score 1, otherwise the highest combined score.
// Ties keep the earlier candidate.
func (m *Matcher) PickBest(rawTitle, rawAuthor string, candidates []internal.Candidate) internal.MatchResult {
	nt := util.NormalizeTitle(rawTitle)
	na := util.NormalizeAuthor(rawAuthor)

	var best *internal.Candidate
	bestScore := -1.0
	for i := range candidates {
		c := candidates[i]
		if isStrongMatch(nt, rawAuthor, c) {
			c.Score = 1.0
			return internal.MatchResult{Best: &c, Score: 1.0, AutoMatch: true}
		}

		score := m.score(nt, na, c)
		if score > bestScore {
			c.Score = score
			bestScore = score
			best = &c
		}
	}

	if best == nil {
		return internal.MatchResult{Best: nil, Score: 0, AutoMatch: false}
	}
	return internal.MatchResult{Best: best, Score: bestScore, AutoMatch: m.IsAuto(bestScore)}
}

// Score is the weighted similarity of one candidate against raw input.
func (m *Matcher) Score(rawTitle, rawAuthor string, c internal.Candidate) float64 {
	return m.score(util.NormalizeTitle(rawTitle), util.NormalizeAuthor(rawAuthor), c)
}

func (m *Matcher) IsAuto(score float64) bool {
	return score >= m.AutoThreshold
}

func (m *Matcher) score(nt, na string, c internal.Candidate) float64 {
	titleScore := util.JaroWinkler(nt, util.NormalizeTitle(c.Title))
	authorScore := util.JaroWinkler(na, util.NormalizeAuthor(util.Deref(c.Author)))
	return titleScore*m.TitleWeight + authorScore*m.AuthorWeight
}

func isStrongMatch(normTitle, rawAuthor string, c internal.Candidate) bool {
	return normTitle != "" && normTitle == util.NormalizeTitle(c.Title) && util.AuthorsOverlap(rawAuthor, util.Deref(c.Author))
}

// Provenance records why an auto-link was made.
func (m *Matcher) Provenance(rawTitle, rawAuthor string, c internal.Candidate, score float64) internal.Provenance {
	published := ""
	if c.PublishedDate != nil {
		published = c.PublishedDate.String()
	}
	return internal.Provenance{
		Provider: c.Source,
		Score:    score,
		Query:    internal.ProvenanceQuery{Title: rawTitle, Author: rawAuthor},
		Candidate: internal.ProvenanceCandidate{
			Title:         c.Title,
			Author:        util.Deref(c.Author),
			ISBN10:        util.Deref(c.ISBN10),
			ISBN13:        util.Deref(c.ISBN13),
			Publisher:     util.Deref(c.Publisher),
			PublishedDate: published,
			ThumbnailURL:  util.Deref(c.ThumbnailURL),
			ExternalID:    c.ExternalID,
		},
		Matcher: internal.MatcherInfo{
			Threshold: m.AutoThreshold,
			Weights:   internal.MatcherWeights{Title: m.TitleWeight, Author: m.AuthorWeight},
			Version:   MatcherVersion,
		},
	}
}
