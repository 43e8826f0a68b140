package pipeline

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"readingnotes/internal/util"
)

// ImportRow is one note read from a spreadsheet.
type ImportRow struct {
	Sheet     string
	RowNumber int
	Sentence  string
	Comment   string
	Title     string
	Author    string
}

// ParseNotesXLSX reads notes from every sheet. A header row in the first
// three rows selects the columns when it names distinct sentence and title
// cells; without one the order is sentence,
// comment, title, author. Rows without a sentence are skipped.
func ParseNotesXLSX(content []byte) ([]ImportRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []ImportRow{}
	seen := map[string]struct{}{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		cols := noteColumns{sentence: -1}
		for i, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			if i < 3 && cols.sentence < 0 {
				if inferred, ok := inferNoteColumns(cells); ok {
					cols = inferred
					continue
				}
			}
			if cols.sentence < 0 {
				cols = noteColumns{sentence: 0, comment: 1, title: 2, author: 3}
			}

			r := ImportRow{
				Sheet:     sheet,
				RowNumber: i + 1,
				Sentence:  pickCell(cells, cols.sentence),
				Comment:   pickCell(cells, cols.comment),
				Title:     pickCell(cells, cols.title),
				Author:    pickCell(cells, cols.author),
			}
			if r.Sentence == "" {
				continue
			}
			key := r.Sentence + "|" + r.Title + "|" + r.Author
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}

type noteColumns struct {
	sentence, comment, title, author int
}

// Header cells are labels, not quotes.
const maxHeaderRunes = 12

// inferNoteColumns reports whether cells look like a header row: short
// labels naming both a sentence and a title column, on different cells.
func inferNoteColumns(headers []string) (noteColumns, bool) {
	norm := make([]string, len(headers))
	for i, h := range headers {
		if utf8.RuneCountInString(h) <= maxHeaderRunes {
			norm[i] = strings.ToLower(h)
		}
	}
	cols := noteColumns{
		sentence: findHeaderIndex(norm, []string{"sentence", "quote", "문장", "구절", "인용"}),
		comment:  findHeaderIndex(norm, []string{"comment", "memo", "note", "메모", "코멘트", "생각"}),
		title:    findHeaderIndex(norm, []string{"title", "book", "제목", "책"}),
		author:   findHeaderIndex(norm, []string{"author", "writer", "저자", "지은이", "작가"}),
	}
	ok := cols.sentence >= 0 && cols.title >= 0 && cols.sentence != cols.title
	return cols, ok
}

func findHeaderIndex(headers []string, needles []string) int {
	for i, h := range headers {
		if h == "" {
			continue
		}
		for _, n := range needles {
			if strings.Contains(h, n) {
				return i
			}
		}
	}
	return -1
}

func pickCell(cells []string, idx int) string {
	if idx >= 0 && idx < len(cells) {
		return cells[idx]
	}
	return ""
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}
