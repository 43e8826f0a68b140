package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"readingnotes/internal"
	"readingnotes/internal/logger"
	"readingnotes/internal/storage"
	"readingnotes/internal/util"
)

var (
	ErrNoteNotFound     = errors.New("note not found")
	ErrNoteNotPending   = errors.New("note is no longer pending")
	ErrNoteChanged      = errors.New("note title or author changed since the search")
	ErrBookNotFound     = errors.New("catalog book not found")
	ErrInvalidCandidate = errors.New("candidate has no title")
)

// Resolver turns an accepted candidate into catalog rows and points the note
// at them. Book, link and note writes for one call share a transaction.
type Resolver struct {
	db  *storage.DB
	log *logger.Logger
	now func() time.Time
}

func New(db *storage.DB, log *logger.Logger) *Resolver {
	return &Resolver{db: db, log: log, now: time.Now}
}

// WithDB returns a resolver that works inside an already open transaction.
func (r *Resolver) WithDB(tx *storage.DB) *Resolver {
	return &Resolver{db: tx, log: r.log, now: r.now}
}

// UpsertBook finds or creates the catalog row for a candidate. Candidates
// with an isbn13 are deduplicated on it; others always create a row. LOCAL
// candidates resolve to the row they came from.
func (r *Resolver) UpsertBook(ctx context.Context, c internal.Candidate) (internal.Book, error) {
	var book internal.Book
	err := r.db.WithTx(ctx, func(tx *storage.DB) error {
		var err error
		book, err = upsertBook(ctx, tx, cleanCandidate(c))
		return err
	})
	return book, err
}

// UpsertSourceLink records which provider document maps to book. It returns
// nil for LOCAL candidates and for candidates without an external id.
func (r *Resolver) UpsertSourceLink(ctx context.Context, book internal.Book, c internal.Candidate, metaJSON *string) (*internal.SourceLink, error) {
	var link *internal.SourceLink
	err := r.db.WithTx(ctx, func(tx *storage.DB) error {
		var err error
		link, err = upsertSourceLink(ctx, tx, book, cleanCandidate(c), metaJSON)
		return err
	})
	return link, err
}

// LinkAuto commits an automatic match. It refuses when the note has been
// resolved or edited since the search that produced prov.
func (r *Resolver) LinkAuto(ctx context.Context, noteID int64, c internal.Candidate, score float64, prov internal.Provenance) (internal.Book, error) {
	c = cleanCandidate(c)
	if c.Title == "" {
		return internal.Book{}, ErrInvalidCandidate
	}
	prov.Score = score
	blob, err := json.Marshal(prov)
	if err != nil {
		return internal.Book{}, err
	}
	meta := string(blob)

	var book internal.Book
	err = r.db.WithTx(ctx, func(tx *storage.DB) error {
		note, err := tx.GetNote(ctx, noteID)
		if err != nil {
			return err
		}
		if note == nil {
			return ErrNoteNotFound
		}
		if note.MatchStatus != internal.MatchPending {
			return ErrNoteNotPending
		}
		if util.Deref(note.RawTitle) != prov.Query.Title || util.Deref(note.RawAuthor) != prov.Query.Author {
			return ErrNoteChanged
		}

		book, err = upsertBook(ctx, tx, c)
		if err != nil {
			return err
		}
		link, err := upsertSourceLink(ctx, tx, book, c, &meta)
		if err != nil {
			return err
		}
		return tx.LinkNote(ctx, noteID, internal.MatchResolvedAuto, book.ID, linkID(link), r.now())
	})
	if err != nil {
		return internal.Book{}, err
	}

	r.log.Info("note linked", "noteId", noteID, "bookId", book.ID, "source", c.Source, "score", score)
	return book, nil
}

// LinkManual applies a user's pick. It overrides whatever the note was
// linked to before.
func (r *Resolver) LinkManual(ctx context.Context, noteID int64, c internal.Candidate) (internal.Book, error) {
	c = cleanCandidate(c)
	if c.Title == "" {
		return internal.Book{}, ErrInvalidCandidate
	}

	var book internal.Book
	err := r.db.WithTx(ctx, func(tx *storage.DB) error {
		note, err := tx.GetNote(ctx, noteID)
		if err != nil {
			return err
		}
		if note == nil {
			return ErrNoteNotFound
		}

		book, err = upsertBook(ctx, tx, c)
		if err != nil {
			return err
		}
		link, err := upsertSourceLink(ctx, tx, book, c, nil)
		if err != nil {
			return err
		}
		return tx.LinkNote(ctx, noteID, internal.MatchResolvedManual, book.ID, linkID(link), r.now())
	})
	if err != nil {
		return internal.Book{}, err
	}

	r.log.Info("note linked manually", "noteId", noteID, "bookId", book.ID, "source", c.Source)
	return book, nil
}

// Unlink returns the note to PENDING. The catalog rows are left in place.
func (r *Resolver) Unlink(ctx context.Context, noteID int64) error {
	err := r.db.UnlinkNote(ctx, noteID, r.now())
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNoteNotFound
	}
	return err
}

func upsertBook(ctx context.Context, tx *storage.DB, c internal.Candidate) (internal.Book, error) {
	if c.Source == internal.SourceLocal {
		id, err := strconv.ParseInt(c.ExternalID, 10, 64)
		if err != nil {
			return internal.Book{}, fmt.Errorf("local candidate id %q: %w", c.ExternalID, ErrBookNotFound)
		}
		book, err := tx.GetBook(ctx, id)
		if err != nil {
			return internal.Book{}, err
		}
		if book == nil {
			return internal.Book{}, ErrBookNotFound
		}
		return *book, nil
	}

	if c.ISBN13 == nil {
		return tx.InsertBook(ctx, bookFromCandidate(c))
	}

	existing, err := tx.FindBookByISBN13(ctx, *c.ISBN13)
	if err != nil {
		return internal.Book{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	book, err := tx.InsertBook(ctx, bookFromCandidate(c))
	if err == nil {
		return book, nil
	}
	if !storage.IsUniqueViolation(err) {
		return internal.Book{}, err
	}
	existing, err = tx.FindBookByISBN13(ctx, *c.ISBN13)
	if err != nil {
		return internal.Book{}, err
	}
	if existing == nil {
		return internal.Book{}, fmt.Errorf("isbn13 %s: conflicting row vanished", *c.ISBN13)
	}
	return *existing, nil
}

func upsertSourceLink(ctx context.Context, tx *storage.DB, book internal.Book, c internal.Candidate, metaJSON *string) (*internal.SourceLink, error) {
	if c.Source == "" || c.Source == internal.SourceLocal || c.ExternalID == "" {
		return nil, nil
	}

	link := internal.SourceLink{
		BookID:     book.ID,
		Source:     c.Source,
		ExternalID: c.ExternalID,
		ISBN10:     c.ISBN10,
		ISBN13:     c.ISBN13,
		MetaJSON:   metaJSON,
		SyncedAt:   time.Now().UTC(),
	}

	existing, err := tx.FindLink(ctx, c.Source, c.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		inserted, err := tx.InsertLink(ctx, link)
		if err == nil {
			return &inserted, nil
		}
		if !storage.IsUniqueViolation(err) {
			return nil, err
		}
		existing, err = tx.FindLink(ctx, c.Source, c.ExternalID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("link %s/%s: conflicting row vanished", c.Source, c.ExternalID)
		}
	}

	link.ID = existing.ID
	if err := tx.UpdateLink(ctx, link); err != nil {
		return nil, err
	}
	if link.MetaJSON == nil {
		link.MetaJSON = existing.MetaJSON
	}
	return &link, nil
}

// cleanCandidate trims text and keeps only well formed ISBNs so that ""
// never reaches a unique column.
func cleanCandidate(c internal.Candidate) internal.Candidate {
	c.Source = strings.ToUpper(strings.TrimSpace(c.Source))
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	c.Title = util.NormalizeSpaces(c.Title)
	c.Author = util.NonEmpty(util.Deref(c.Author))
	c.Publisher = util.NonEmpty(util.Deref(c.Publisher))
	c.ThumbnailURL = util.NonEmpty(util.Deref(c.ThumbnailURL))
	c.ISBN10 = isbnOfLength(c.ISBN10, 10)
	c.ISBN13 = isbnOfLength(c.ISBN13, 13)
	return c
}

func isbnOfLength(v *string, n int) *string {
	if v == nil {
		return nil
	}
	clean := util.CleanISBN(*v)
	if len(clean) != n {
		return nil
	}
	return &clean
}

func bookFromCandidate(c internal.Candidate) internal.Book {
	return internal.Book{
		Title:         c.Title,
		Author:        c.Author,
		Publisher:     c.Publisher,
		ISBN10:        c.ISBN10,
		ISBN13:        c.ISBN13,
		PublishedDate: c.PublishedDate,
		CoverURL:      c.ThumbnailURL,
	}
}

func linkID(link *internal.SourceLink) *int64 {
	if link == nil {
		return nil
	}
	return &link.ID
}
