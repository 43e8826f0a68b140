package catalog

import (
	"context"
	"fmt"
	"strings"

	"readingnotes/internal"
	"readingnotes/internal/config"
)

// Source is one place candidates can come from: the local catalog or an
// external book-search provider.
type Source interface {
	Name() string
	Search(ctx context.Context, title, author string, limit int) Result
}

// Result is what a single search produced. A failed search carries Err and
// no candidates; callers treat it like an empty one.
type Result struct {
	Source     string
	Candidates []internal.Candidate
	Err        error
}

func (r Result) Empty() bool {
	return len(r.Candidates) == 0
}

func (r Result) Failed() bool {
	return r.Err != nil
}

func failed(source string, err error) Result {
	return Result{Source: source, Err: err}
}

// NewProviders builds the external sources in the order given by
// BOOK_PROVIDERS. That order is the fallback priority.
func NewProviders(cfg config.Config) ([]Source, error) {
	out := make([]Source, 0, len(cfg.BookProviders))
	seen := map[string]struct{}{}
	for _, name := range cfg.BookProviders {
		name = strings.ToUpper(strings.TrimSpace(name))
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		var (
			src Source
			err error
		)
		switch name {
		case internal.SourceKakao:
			src, err = NewKakao(cfg)
		case internal.SourceNaver:
			src, err = NewNaver(cfg)
		default:
			return nil, fmt.Errorf("unknown book provider: %s", name)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
