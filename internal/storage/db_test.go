package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingnotes/internal"
	"readingnotes/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBookInsertAndFindByISBN13(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	book, err := db.InsertBook(ctx, internal.Book{
		Title:         "클린 코드",
		Author:        util.StringPtr("로버트 C. 마틴"),
		ISBN13:        util.StringPtr("9788966260959"),
		PublishedDate: &internal.PublishedDate{Year: 2013, Month: 12},
	})
	require.NoError(t, err)
	assert.NotZero(t, book.ID)

	found, err := db.FindBookByISBN13(ctx, "9788966260959")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, book.ID, found.ID)
	assert.Equal(t, "2013-12", found.PublishedDate.String())
	assert.Nil(t, found.ISBN10)

	missing, err := db.FindBookByISBN13(ctx, "0000000000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateISBN13IsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.InsertBook(ctx, internal.Book{Title: "a", ISBN13: util.StringPtr("9781234567897")})
	require.NoError(t, err)
	_, err = db.InsertBook(ctx, internal.Book{Title: "b", ISBN13: util.StringPtr("9781234567897")})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	// books without isbn13 never collide
	_, err = db.InsertBook(ctx, internal.Book{Title: "c"})
	require.NoError(t, err)
	_, err = db.InsertBook(ctx, internal.Book{Title: "c"})
	require.NoError(t, err)
	n, err := db.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSearchBooksPrefilter(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	clean, err := db.InsertBook(ctx, internal.Book{Title: "클린 코드", Author: util.StringPtr("로버트 마틴")})
	require.NoError(t, err)
	arch, err := db.InsertBook(ctx, internal.Book{Title: "클린 아키텍처", Author: util.StringPtr("로버트 마틴")})
	require.NoError(t, err)
	_, err = db.InsertBook(ctx, internal.Book{Title: "리팩터링", Author: util.StringPtr("마틴 파울러")})
	require.NoError(t, err)
	deleted, err := db.InsertBook(ctx, internal.Book{Title: "클린 소프트웨어", Author: util.StringPtr("로버트 마틴")})
	require.NoError(t, err)
	require.NoError(t, db.SetBookDeleted(ctx, deleted.ID, true))

	byPrefix, err := db.SearchBooks(ctx, "클린", "", 50)
	require.NoError(t, err)
	assert.Equal(t, []int64{clean.ID, arch.ID}, bookIDs(byPrefix))

	byAuthor, err := db.SearchBooks(ctx, "", "로버트 마틴", 50)
	require.NoError(t, err)
	assert.Equal(t, []int64{clean.ID, arch.ID}, bookIDs(byAuthor))

	none, err := db.SearchBooks(ctx, "", "", 50)
	require.NoError(t, err)
	assert.Empty(t, none)

	// soft-deleted rows are still reachable by isbn and id
	got, err := db.GetBook(ctx, deleted.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.DeletedAt)
}

func TestLinkUpsertPrimitives(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	book, err := db.InsertBook(ctx, internal.Book{Title: "데미안"})
	require.NoError(t, err)

	link, err := db.InsertLink(ctx, internal.SourceLink{
		BookID: book.ID, Source: internal.SourceKakao, ExternalID: "https://book/1",
		MetaJSON: util.StringPtr(`{"score":1}`),
	})
	require.NoError(t, err)

	_, err = db.InsertLink(ctx, internal.SourceLink{BookID: book.ID, Source: internal.SourceKakao, ExternalID: "https://book/1"})
	assert.True(t, IsUniqueViolation(err))

	link.ISBN13 = util.StringPtr("9788937460449")
	link.MetaJSON = nil
	require.NoError(t, db.UpdateLink(ctx, link))

	found, err := db.FindLink(ctx, internal.SourceKakao, "https://book/1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "9788937460449", *found.ISBN13)
	assert.Equal(t, `{"score":1}`, *found.MetaJSON)
}

func TestNoteLinkLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	book, err := db.InsertBook(ctx, internal.Book{Title: "데미안"})
	require.NoError(t, err)
	note, err := db.InsertNote(ctx, internal.Note{Sentence: "새는 알에서 나오려고 투쟁한다", RawTitle: util.StringPtr("데미안"), RawAuthor: util.StringPtr("헤세")})
	require.NoError(t, err)
	assert.Equal(t, internal.MatchPending, note.MatchStatus)

	require.NoError(t, db.LinkNote(ctx, note.ID, internal.MatchResolvedManual, book.ID, nil, time.Now()))
	got, err := db.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.MatchResolvedManual, got.MatchStatus)
	assert.Equal(t, book.ID, *got.BookID)
	assert.NotNil(t, got.MatchedAt)

	require.NoError(t, db.UnlinkNote(ctx, note.ID, time.Now()))
	got, err = db.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.MatchPending, got.MatchStatus)
	assert.Nil(t, got.BookID)
	assert.NotNil(t, got.MatchedAt)

	assert.ErrorIs(t, db.UnlinkNote(ctx, 9999, time.Now()), ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := db.WithTx(ctx, func(tx *DB) error {
		if _, err := tx.InsertBook(ctx, internal.Book{Title: "rolled back"}); err != nil {
			return err
		}
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := db.CountBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListUnresolvedNotes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	ready, err := db.InsertNote(ctx, internal.Note{Sentence: "s", RawTitle: util.StringPtr("데미안"), RawAuthor: util.StringPtr("헤세")})
	require.NoError(t, err)
	_, err = db.InsertNote(ctx, internal.Note{Sentence: "s", RawTitle: util.StringPtr("데미안")})
	require.NoError(t, err)
	attempted, err := db.InsertNote(ctx, internal.Note{Sentence: "s", RawTitle: util.StringPtr("싯다르타"), RawAuthor: util.StringPtr("헤세")})
	require.NoError(t, err)
	require.NoError(t, db.InsertRun(ctx, internal.MatchRun{TraceID: "t1", NoteID: attempted.ID, Outcome: internal.OutcomeUnmatched}))

	notes, err := db.ListUnresolvedNotes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, ready.ID, notes[0].ID)

	// an edit after the last attempt makes the note eligible again
	require.NoError(t, db.UpdateNote(ctx, attempted.ID, NoteUpdate{RawTitle: util.StringPtr("싯다르타 (개정판)")}))
	notes, err = db.ListUnresolvedNotes(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	runs, err := db.ListRuns(ctx, attempted.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, internal.OutcomeUnmatched, runs[0].Outcome)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	v, err := db.GetMetadata(ctx, "lastBackfillAt")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, db.SetMetadata(ctx, "lastBackfillAt", "x"))
	require.NoError(t, db.SetMetadata(ctx, "lastBackfillAt", "y"))
	v, err = db.GetMetadata(ctx, "lastBackfillAt")
	require.NoError(t, err)
	assert.Equal(t, "y", *v)
}

func bookIDs(books []internal.Book) []int64 {
	out := make([]int64, 0, len(books))
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}
