package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"readingnotes/internal"
	"readingnotes/internal/logger"
	"readingnotes/internal/pipeline"
	"readingnotes/internal/resolver"
	"readingnotes/internal/storage"
	"readingnotes/internal/util"
)

var ErrEmptySentence = errors.New("sentence is required")

// Submitter hands a note to background matching.
type Submitter interface {
	Submit(noteID int64) error
}

// Service owns the note write paths. Matching is triggered after the write
// commits and never fails it.
type Service struct {
	db       *storage.DB
	resolver *resolver.Resolver
	finder   *pipeline.Finder
	queue    Submitter
	log      *logger.Logger
}

func NewService(db *storage.DB, res *resolver.Resolver, finder *pipeline.Finder, queue Submitter, log *logger.Logger) *Service {
	return &Service{db: db, resolver: res, finder: finder, queue: queue, log: log.With("component", "notes")}
}

type CreateInput struct {
	Sentence   string     `json:"sentence"`
	Comment    *string    `json:"comment"`
	RawTitle   *string    `json:"rawTitle"`
	RawAuthor  *string    `json:"rawAuthor"`
	RecordedAt *time.Time `json:"recordedAt"`
}

func (s *Service) Create(ctx context.Context, in CreateInput) (internal.Note, error) {
	sentence := strings.TrimSpace(in.Sentence)
	if sentence == "" {
		return internal.Note{}, ErrEmptySentence
	}
	n := internal.Note{
		Sentence:  sentence,
		Comment:   util.NonEmpty(util.Deref(in.Comment)),
		RawTitle:  util.NonEmpty(util.Deref(in.RawTitle)),
		RawAuthor: util.NonEmpty(util.Deref(in.RawAuthor)),
	}
	if in.RecordedAt != nil {
		n.RecordedAt = in.RecordedAt.UTC()
	}

	note, err := s.db.InsertNote(ctx, n)
	if err != nil {
		return internal.Note{}, err
	}
	s.submit(note.ID)
	return note, nil
}

// Update applies a partial edit. Changing the raw title or author drops the
// current link in the same transaction and queues a fresh match.
func (s *Service) Update(ctx context.Context, id int64, u storage.NoteUpdate) (internal.Note, error) {
	if u.Sentence != nil && strings.TrimSpace(*u.Sentence) == "" {
		return internal.Note{}, ErrEmptySentence
	}

	err := s.db.WithTx(ctx, func(tx *storage.DB) error {
		note, err := tx.GetNote(ctx, id)
		if err != nil {
			return err
		}
		if note == nil {
			return resolver.ErrNoteNotFound
		}
		if u.TouchesMatchInput() && note.MatchStatus.Resolved() {
			if err := s.resolver.WithDB(tx).Unlink(ctx, id); err != nil {
				return err
			}
		}
		return tx.UpdateNote(ctx, id, u)
	})
	if err != nil {
		return internal.Note{}, err
	}

	if u.TouchesMatchInput() {
		s.submit(id)
	}
	return s.mustGet(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*internal.Note, error) {
	return s.db.GetNote(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit int) ([]internal.Note, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.db.ListNotes(ctx, strings.ToUpper(strings.TrimSpace(status)), limit)
}

// Link applies a manual pick and returns the note as stored afterwards.
func (s *Service) Link(ctx context.Context, id int64, c internal.Candidate) (internal.Note, error) {
	if _, err := s.resolver.LinkManual(ctx, id, c); err != nil {
		return internal.Note{}, err
	}
	return s.mustGet(ctx, id)
}

func (s *Service) Unlink(ctx context.Context, id int64) (internal.Note, error) {
	if err := s.resolver.Unlink(ctx, id); err != nil {
		return internal.Note{}, err
	}
	return s.mustGet(ctx, id)
}

func (s *Service) Candidates(ctx context.Context, title, author string, limit int) []internal.Candidate {
	return s.finder.Candidates(ctx, title, author, limit)
}

func (s *Service) mustGet(ctx context.Context, id int64) (internal.Note, error) {
	note, err := s.db.GetNote(ctx, id)
	if err != nil {
		return internal.Note{}, err
	}
	if note == nil {
		return internal.Note{}, resolver.ErrNoteNotFound
	}
	return *note, nil
}

func (s *Service) submit(noteID int64) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Submit(noteID); err != nil {
		s.log.Warn("match not queued, left for backfill", "noteId", noteID, "error", err)
	}
}
