package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"readingnotes/internal"
	"readingnotes/internal/util"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestParseNotesXLSXWithHeader(t *testing.T) {
	blob := mkXLSX([][]any{
		{"책 제목", "저자", "문장", "메모"},
		{"데미안", "헤르만 헤세", "새는 알에서 나오려고 투쟁한다.", "다시 읽기"},
		{"", "", "", ""},
		{"싯다르타", "헤르만 헤세", "  강은 어디에나 있다. ", ""},
		{"데미안", "헤르만 헤세", "새는 알에서 나오려고 투쟁한다.", "중복"},
	})

	rows, err := ParseNotesXLSX(blob)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "새는 알에서 나오려고 투쟁한다.", rows[0].Sentence)
	assert.Equal(t, "데미안", rows[0].Title)
	assert.Equal(t, "헤르만 헤세", rows[0].Author)
	assert.Equal(t, "다시 읽기", rows[0].Comment)
	assert.Equal(t, 2, rows[0].RowNumber)

	assert.Equal(t, "강은 어디에나 있다.", rows[1].Sentence)
	assert.Empty(t, rows[1].Comment)
}

func TestParseNotesXLSXPositional(t *testing.T) {
	blob := mkXLSX([][]any{
		{"처음 읽은 날의 기억", "", "데미안", "헤세"},
	})
	rows, err := ParseNotesXLSX(blob)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "데미안", rows[0].Title)
	assert.Equal(t, "헤세", rows[0].Author)
}

func TestParseNotesXLSXQuoteMentioningBookIsNotHeader(t *testing.T) {
	blob := mkXLSX([][]any{
		{"책 속의 한 문장이 나를 바꿨다", "좋았다", "데미안", "헤르만 헤세"},
		{"새는 알에서 나오려고 투쟁한다", "", "데미안", "헤르만 헤세"},
	})
	rows, err := ParseNotesXLSX(blob)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].RowNumber)
	assert.Equal(t, "책 속의 한 문장이 나를 바꿨다", rows[0].Sentence)
	assert.Equal(t, "좋았다", rows[0].Comment)
	for _, r := range rows {
		assert.Equal(t, "데미안", r.Title)
		assert.Equal(t, "헤르만 헤세", r.Author)
	}
}

func TestParseNotesXLSXHeaderNeedsDistinctColumns(t *testing.T) {
	cols, ok := inferNoteColumns([]string{"책 문장", "메모"})
	assert.False(t, ok)
	assert.Equal(t, cols.sentence, cols.title)

	cols, ok = inferNoteColumns([]string{"Quote", "Memo", "Book Title", "Author"})
	require.True(t, ok)
	assert.Equal(t, noteColumns{sentence: 0, comment: 1, title: 2, author: 3}, cols)
}

func TestParseNotesXLSXRejectsGarbage(t *testing.T) {
	_, err := ParseNotesXLSX([]byte("not a spreadsheet"))
	assert.Error(t, err)
}

func TestSmokeResolveAndExport(t *testing.T) {
	ctx := context.Background()
	provider := &fakeSource{name: internal.SourceKakao, candidates: []internal.Candidate{demian(internal.SourceKakao, "https://kakao.test/1")}}
	o, db := newTestOrchestrator(t, provider)

	rows, err := ParseNotesXLSX(mkXLSX([][]any{
		{"문장", "메모", "제목", "저자"},
		{"새는 알에서 나오려고 투쟁한다.", "", "데미안", "헤르만 헤세"},
		{"제목 없는 문장", "", "", ""},
	}))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for _, r := range rows {
		n, err := db.InsertNote(ctx, internal.Note{
			Sentence:  r.Sentence,
			RawTitle:  util.NonEmpty(r.Title),
			RawAuthor: util.NonEmpty(r.Author),
		})
		require.NoError(t, err)
		_, err = o.Resolve(ctx, n.ID)
		require.NoError(t, err)
	}

	export, err := db.GetExportRows(ctx)
	require.NoError(t, err)
	require.Len(t, export, 2)
	assert.Equal(t, string(internal.MatchResolvedAuto), export[0].MatchStatus)
	assert.Equal(t, string(internal.MatchPending), export[1].MatchStatus)

	out := filepath.Join(t.TempDir(), "out", "notes.xlsx")
	require.NoError(t, ExportNotesToXLSX(export, out))
	_, err = os.Stat(out)
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetName(0)

	provider13, _ := f.GetCellValue(sheet, "M2")
	version, _ := f.GetCellValue(sheet, "O2")
	isbn, _ := f.GetCellValue(sheet, "J2")
	assert.Equal(t, internal.SourceKakao, provider13)
	assert.Equal(t, MatcherVersion, version)
	assert.Equal(t, "9788937460449", isbn)

	pending, _ := f.GetCellValue(sheet, "M3")
	assert.Empty(t, pending)
}

func TestExportOmitsProvenanceForManualRelink(t *testing.T) {
	ctx := context.Background()
	candidate := demian(internal.SourceKakao, "https://kakao.test/1")
	provider := &fakeSource{name: internal.SourceKakao, candidates: []internal.Candidate{candidate}}
	o, db := newTestOrchestrator(t, provider)

	note := insertNote(t, db, util.StringPtr("데미안"), util.StringPtr("헤르만 헤세"))
	res, err := o.Resolve(ctx, note.ID)
	require.NoError(t, err)
	require.Equal(t, internal.OutcomeLinked, res.Outcome)

	// same (source, externalId): the link row keeps the auto provenance
	_, err = o.Resolver().LinkManual(ctx, note.ID, candidate)
	require.NoError(t, err)

	export, err := db.GetExportRows(ctx)
	require.NoError(t, err)
	require.Len(t, export, 1)
	require.Equal(t, string(internal.MatchResolvedManual), export[0].MatchStatus)
	require.NotNil(t, export[0].LinkMetaJSON)

	out := filepath.Join(t.TempDir(), "manual.xlsx")
	require.NoError(t, ExportNotesToXLSX(export, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	sheet := f.GetSheetName(0)

	source, _ := f.GetCellValue(sheet, "K2")
	assert.Equal(t, internal.SourceKakao, source)
	for _, cell := range []string{"M2", "N2", "O2"} {
		v, _ := f.GetCellValue(sheet, cell)
		assert.Empty(t, v, cell)
	}
}
