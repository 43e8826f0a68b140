package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"readingnotes/internal"
)

const noteColumns = `id, sentence, comment, rawTitle, rawAuthor, matchStatus, bookId, linkId, matchedAt, recordedAt, updatedAt`

// NoteUpdate is a partial edit; nil fields are left untouched.
type NoteUpdate struct {
	Sentence  *string
	Comment   *string
	RawTitle  *string
	RawAuthor *string
}

// TouchesMatchInput reports whether the edit changes what the note is
// matched against.
func (u NoteUpdate) TouchesMatchInput() bool {
	return u.RawTitle != nil || u.RawAuthor != nil
}

func (d *DB) InsertNote(ctx context.Context, n internal.Note) (internal.Note, error) {
	now := time.Now().UTC()
	if n.RecordedAt.IsZero() {
		n.RecordedAt = now
	}
	res, err := d.q.ExecContext(ctx, `
INSERT INTO notes (sentence, comment, rawTitle, rawAuthor, matchStatus, recordedAt, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, n.Sentence, n.Comment, n.RawTitle, n.RawAuthor, string(internal.MatchPending), formatTime(n.RecordedAt), formatTime(now))
	if err != nil {
		return internal.Note{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.Note{}, err
	}

	n.ID = id
	n.MatchStatus = internal.MatchPending
	n.BookID = nil
	n.SourceLinkID = nil
	n.MatchedAt = nil
	n.UpdatedAt = now
	return n, nil
}

func (d *DB) GetNote(ctx context.Context, id int64) (*internal.Note, error) {
	n, err := scanNote(d.q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (d *DB) UpdateNote(ctx context.Context, id int64, u NoteUpdate) error {
	res, err := d.q.ExecContext(ctx, `
UPDATE notes SET
  sentence = COALESCE(?, sentence),
  comment = COALESCE(?, comment),
  rawTitle = COALESCE(?, rawTitle),
  rawAuthor = COALESCE(?, rawAuthor),
  updatedAt = ?
WHERE id = ?
`, u.Sentence, u.Comment, u.RawTitle, u.RawAuthor, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// LinkNote points the note at a catalog row. linkID is nil when the match
// came from the local catalog or has no stable external id.
func (d *DB) LinkNote(ctx context.Context, id int64, status internal.MatchStatus, bookID int64, linkID *int64, at time.Time) error {
	res, err := d.q.ExecContext(ctx, `
UPDATE notes SET matchStatus = ?, bookId = ?, linkId = ?, matchedAt = ? WHERE id = ?
`, string(status), bookID, linkID, formatTime(at), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// UnlinkNote returns the note to PENDING. matchedAt records the time of the
// status change.
func (d *DB) UnlinkNote(ctx context.Context, id int64, at time.Time) error {
	res, err := d.q.ExecContext(ctx, `
UPDATE notes SET matchStatus = ?, bookId = NULL, linkId = NULL, matchedAt = ? WHERE id = ?
`, string(internal.MatchPending), formatTime(at), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (d *DB) ListNotes(ctx context.Context, status string, limit int) ([]internal.Note, error) {
	rows, err := d.q.QueryContext(ctx, `
SELECT `+noteColumns+` FROM notes
WHERE (? = '' OR matchStatus = ?)
ORDER BY id ASC
LIMIT ?
`, status, status, limit)
	if err != nil {
		return nil, err
	}
	return collectNotes(rows)
}

// ListUnresolvedNotes returns PENDING notes with both raw fields that have
// had no resolve attempt since their last edit. SKIPPED runs lost a race
// with an edit and do not count as attempts.
func (d *DB) ListUnresolvedNotes(ctx context.Context, limit int) ([]internal.Note, error) {
	rows, err := d.q.QueryContext(ctx, `
SELECT `+noteColumns+` FROM notes n
WHERE n.matchStatus = 'PENDING'
  AND TRIM(COALESCE(n.rawTitle, '')) <> ''
  AND TRIM(COALESCE(n.rawAuthor, '')) <> ''
  AND NOT EXISTS (
    SELECT 1 FROM runs r
    WHERE r.noteId = n.id AND r.outcome <> 'SKIPPED' AND r.createdAt >= n.updatedAt
  )
ORDER BY n.id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	return collectNotes(rows)
}

func (d *DB) GetExportRows(ctx context.Context) ([]internal.NoteExportRow, error) {
	rows, err := d.q.QueryContext(ctx, `
SELECT
  n.id,
  n.sentence,
  n.rawTitle,
  n.rawAuthor,
  n.matchStatus,
  n.matchedAt,
  b.id,
  b.title,
  b.author,
  b.isbn13,
  l.source,
  l.externalId,
  l.metaJson
FROM notes n
LEFT JOIN books b ON b.id = n.bookId
LEFT JOIN links l ON l.id = n.linkId
ORDER BY
  CASE n.matchStatus WHEN 'RESOLVED_AUTO' THEN 1 WHEN 'RESOLVED_MANUAL' THEN 2 ELSE 3 END,
  n.id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.NoteExportRow
	for rows.Next() {
		var row internal.NoteExportRow
		var matchedAt *string
		if err := rows.Scan(
			&row.NoteID,
			&row.Sentence,
			&row.RawTitle,
			&row.RawAuthor,
			&row.MatchStatus,
			&matchedAt,
			&row.BookID,
			&row.BookTitle,
			&row.BookAuthor,
			&row.BookISBN13,
			&row.LinkSource,
			&row.LinkExternalID,
			&row.LinkMetaJSON,
		); err != nil {
			return nil, err
		}
		row.MatchedAt = parseTimePtr(matchedAt)
		out = append(out, row)
	}
	return out, rows.Err()
}

func collectNotes(rows *sql.Rows) ([]internal.Note, error) {
	defer rows.Close()
	var out []internal.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNote(s rowScanner) (internal.Note, error) {
	var n internal.Note
	var status string
	var matchedAt *string
	var recordedAt, updatedAt string
	if err := s.Scan(
		&n.ID, &n.Sentence, &n.Comment, &n.RawTitle, &n.RawAuthor, &status,
		&n.BookID, &n.SourceLinkID, &matchedAt, &recordedAt, &updatedAt,
	); err != nil {
		return internal.Note{}, err
	}
	n.MatchStatus = internal.MatchStatus(status)
	n.MatchedAt = parseTimePtr(matchedAt)
	n.RecordedAt = parseTime(recordedAt)
	n.UpdatedAt = parseTime(updatedAt)
	return n, nil
}
