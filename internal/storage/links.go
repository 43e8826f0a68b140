package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"readingnotes/internal"
)

const linkColumns = `id, bookId, source, externalId, isbn10, isbn13, metaJson, syncedAt`

func (d *DB) FindLink(ctx context.Context, source, externalID string) (*internal.SourceLink, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE source = ? AND externalId = ?`, source, externalID)
	return scanLinkRow(row)
}

func (d *DB) GetLink(ctx context.Context, id int64) (*internal.SourceLink, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)
	return scanLinkRow(row)
}

// InsertLink fails with a unique violation when (source, externalId) already
// exists; callers re-read with FindLink.
func (d *DB) InsertLink(ctx context.Context, l internal.SourceLink) (internal.SourceLink, error) {
	if l.SyncedAt.IsZero() {
		l.SyncedAt = time.Now().UTC()
	}
	res, err := d.q.ExecContext(ctx, `
INSERT INTO links (bookId, source, externalId, isbn10, isbn13, metaJson, syncedAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, l.BookID, l.Source, l.ExternalID, l.ISBN10, l.ISBN13, l.MetaJSON, formatTime(l.SyncedAt))
	if err != nil {
		return internal.SourceLink{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.SourceLink{}, err
	}
	l.ID = id
	return l, nil
}

// UpdateLink repoints an existing link and refreshes its snapshot. A nil
// MetaJSON keeps the stored provenance.
func (d *DB) UpdateLink(ctx context.Context, l internal.SourceLink) error {
	if l.SyncedAt.IsZero() {
		l.SyncedAt = time.Now().UTC()
	}
	res, err := d.q.ExecContext(ctx, `
UPDATE links SET
  bookId = ?,
  isbn10 = ?,
  isbn13 = ?,
  metaJson = COALESCE(?, metaJson),
  syncedAt = ?
WHERE id = ?
`, l.BookID, l.ISBN10, l.ISBN13, l.MetaJSON, formatTime(l.SyncedAt), l.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (d *DB) ListLinksByBook(ctx context.Context, bookID int64) ([]internal.SourceLink, error) {
	rows, err := d.q.QueryContext(ctx, `SELECT `+linkColumns+` FROM links WHERE bookId = ? ORDER BY id ASC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SourceLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLinkRow(row *sql.Row) (*internal.SourceLink, error) {
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanLink(s rowScanner) (internal.SourceLink, error) {
	var l internal.SourceLink
	var syncedAt string
	if err := s.Scan(&l.ID, &l.BookID, &l.Source, &l.ExternalID, &l.ISBN10, &l.ISBN13, &l.MetaJSON, &syncedAt); err != nil {
		return internal.SourceLink{}, err
	}
	l.SyncedAt = parseTime(syncedAt)
	return l, nil
}
