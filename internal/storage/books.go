package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"readingnotes/internal"
	"readingnotes/internal/util"
)

const bookColumns = `id, title, author, publisher, isbn10, isbn13, publishedDate, coverUrl, createdAt, updatedAt, deletedAt`

// InsertBook stores a new catalog row. The normalized title/author used by
// the local search are derived here so every writer keeps them in sync.
func (d *DB) InsertBook(ctx context.Context, b internal.Book) (internal.Book, error) {
	now := time.Now().UTC()
	var published *string
	if b.PublishedDate != nil {
		s := b.PublishedDate.String()
		published = &s
	}

	res, err := d.q.ExecContext(ctx, `
INSERT INTO books (title, author, publisher, isbn10, isbn13, publishedDate, coverUrl, normTitle, normAuthor, createdAt, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, b.Title, b.Author, b.Publisher, b.ISBN10, b.ISBN13, published, b.CoverURL,
		util.NormalizeTitle(b.Title), util.NormalizeAuthor(util.Deref(b.Author)), formatTime(now), formatTime(now))
	if err != nil {
		return internal.Book{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return internal.Book{}, err
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.DeletedAt = nil
	return b, nil
}

// GetBook returns the row regardless of its soft-delete marker.
func (d *DB) GetBook(ctx context.Context, id int64) (*internal.Book, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id)
	return scanBookRow(row)
}

// FindBookByISBN13 also matches soft-deleted rows: they remain valid upsert
// targets.
func (d *DB) FindBookByISBN13(ctx context.Context, isbn13 string) (*internal.Book, error) {
	row := d.q.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE isbn13 = ?`, isbn13)
	return scanBookRow(row)
}

// SearchBooks is the coarse prefilter for the local source: live rows whose
// normalized title starts with titlePrefix, or whose normalized author
// contains (or is contained in) normAuthor.
func (d *DB) SearchBooks(ctx context.Context, titlePrefix, normAuthor string, limit int) ([]internal.Book, error) {
	if titlePrefix == "" && normAuthor == "" {
		return nil, nil
	}
	prefixLen := len([]rune(titlePrefix))

	rows, err := d.q.QueryContext(ctx, `
SELECT `+bookColumns+`
FROM books
WHERE deletedAt IS NULL
  AND (
    (? <> '' AND substr(normTitle, 1, ?) = ?)
    OR (? <> '' AND normAuthor <> '' AND (instr(normAuthor, ?) > 0 OR instr(?, normAuthor) > 0))
  )
ORDER BY id ASC
LIMIT ?
`, titlePrefix, prefixLen, titlePrefix, normAuthor, normAuthor, normAuthor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) SetBookDeleted(ctx context.Context, id int64, deleted bool) error {
	var deletedAt *string
	now := formatTime(time.Now())
	if deleted {
		deletedAt = &now
	}
	res, err := d.q.ExecContext(ctx, `UPDATE books SET deletedAt = ?, updatedAt = ? WHERE id = ?`, deletedAt, now, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (d *DB) CountBooks(ctx context.Context) (int, error) {
	var n int
	err := d.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n)
	return n, err
}

func scanBookRow(row *sql.Row) (*internal.Book, error) {
	b, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBook(s rowScanner) (internal.Book, error) {
	var b internal.Book
	var published, deletedAt *string
	var createdAt, updatedAt string
	if err := s.Scan(
		&b.ID, &b.Title, &b.Author, &b.Publisher, &b.ISBN10, &b.ISBN13,
		&published, &b.CoverURL, &createdAt, &updatedAt, &deletedAt,
	); err != nil {
		return internal.Book{}, err
	}
	if published != nil {
		b.PublishedDate = internal.ParsePublishedDate(*published)
	}
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	b.DeletedAt = parseTimePtr(deletedAt)
	return b, nil
}
