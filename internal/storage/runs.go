package storage

import (
	"context"
	"encoding/json"
	"time"

	"readingnotes/internal"
)

func (d *DB) InsertRun(ctx context.Context, run internal.MatchRun) error {
	timingsJSON, _ := json.Marshal(run.Timings)
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := d.q.ExecContext(ctx, `
INSERT INTO runs (traceId, noteId, outcome, source, score, timingsJson, createdAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.NoteID, string(run.Outcome), run.Source, run.Score, string(timingsJSON), formatTime(run.CreatedAt))
	return err
}

func (d *DB) ListRuns(ctx context.Context, noteID int64) ([]internal.MatchRun, error) {
	rows, err := d.q.QueryContext(ctx, `
SELECT id, traceId, noteId, outcome, source, score, timingsJson, createdAt
FROM runs WHERE noteId = ? ORDER BY id ASC
`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MatchRun
	for rows.Next() {
		var run internal.MatchRun
		var outcome, timingsJSON, createdAt string
		if err := rows.Scan(&run.ID, &run.TraceID, &run.NoteID, &outcome, &run.Source, &run.Score, &timingsJSON, &createdAt); err != nil {
			return nil, err
		}
		run.Outcome = internal.RunOutcome(outcome)
		_ = json.Unmarshal([]byte(timingsJSON), &run.Timings)
		run.CreatedAt = parseTime(createdAt)
		out = append(out, run)
	}
	return out, rows.Err()
}
