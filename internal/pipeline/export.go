package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"readingnotes/internal"
)

var exportHeaders = []string{
	"note_id", "sentence", "raw_title", "raw_author",
	"match_status", "matched_at",
	"book_id", "book_title", "book_author", "book_isbn13",
	"link_source", "link_external_id",
	"provider", "score", "matcher_version",
}

// ExportNotesToXLSX writes one row per note. Provider, score and matcher
// version come from the provenance stored with the link and are written
// only for auto-resolved notes. A manual pick can reuse a link that still
// carries an earlier auto match.
func ExportNotesToXLSX(rows []internal.NoteExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		var prov *internal.Provenance
		if row.MatchStatus == string(internal.MatchResolvedAuto) {
			prov = provenanceOf(row.LinkMetaJSON)
		}

		set(1, row.NoteID)
		set(2, row.Sentence)
		set(3, derefString(row.RawTitle))
		set(4, derefString(row.RawAuthor))
		set(5, row.MatchStatus)
		set(6, formatExportTime(row.MatchedAt))
		set(7, derefInt64(row.BookID))
		set(8, derefString(row.BookTitle))
		set(9, derefString(row.BookAuthor))
		set(10, derefString(row.BookISBN13))
		set(11, derefString(row.LinkSource))
		set(12, derefString(row.LinkExternalID))
		if prov != nil {
			set(13, prov.Provider)
			set(14, prov.Score)
			set(15, prov.Matcher.Version)
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func provenanceOf(meta *string) *internal.Provenance {
	if meta == nil || *meta == "" {
		return nil
	}
	var p internal.Provenance
	if err := json.Unmarshal([]byte(*meta), &p); err != nil {
		return nil
	}
	return &p
}

func formatExportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt64(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}
