package catalog

import (
	"context"
	"strconv"

	"readingnotes/internal"
	"readingnotes/internal/storage"
	"readingnotes/internal/util"
)

const (
	localPrefixLen      = 2
	localPrefilterRows  = 200
	localTitleMinSim    = 0.6
	localAuthorMinSim   = 0.7
	defaultLocalResults = 10
)

// Local searches the catalog already stored in the database. Candidates it
// returns carry the book id as their external id.
type Local struct {
	db *storage.DB
}

func NewLocal(db *storage.DB) *Local {
	return &Local{db: db}
}

func (l *Local) Name() string {
	return internal.SourceLocal
}

func (l *Local) Search(ctx context.Context, title, author string, limit int) Result {
	if limit <= 0 {
		limit = defaultLocalResults
	}
	nt := util.NormalizeTitle(title)
	na := util.NormalizeAuthor(author)

	books, err := l.db.SearchBooks(ctx, util.Prefix(nt, localPrefixLen), na, localPrefilterRows)
	if err != nil {
		return failed(l.Name(), err)
	}

	out := make([]internal.Candidate, 0, min(limit, len(books)))
	for _, b := range books {
		titleSim := util.JaroWinkler(nt, util.NormalizeTitle(b.Title))
		authorSim := 0.0
		if na != "" {
			authorSim = util.JaroWinkler(na, util.NormalizeAuthor(util.Deref(b.Author)))
		}
		if titleSim <= localTitleMinSim && authorSim <= localAuthorMinSim {
			continue
		}
		out = append(out, BookCandidate(b))
		if len(out) >= limit {
			break
		}
	}
	return Result{Source: l.Name(), Candidates: out}
}

// BookCandidate presents a stored catalog row as a LOCAL candidate.
func BookCandidate(b internal.Book) internal.Candidate {
	return internal.Candidate{
		Source:        internal.SourceLocal,
		ExternalID:    strconv.FormatInt(b.ID, 10),
		Title:         b.Title,
		Author:        b.Author,
		ISBN10:        b.ISBN10,
		ISBN13:        b.ISBN13,
		Publisher:     b.Publisher,
		PublishedDate: b.PublishedDate,
		ThumbnailURL:  b.CoverURL,
	}
}
