// ABOUTME: Database operations for the runs table
// ABOUTME: Records each pipeline cycle's trigger, outcome, and row counts
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harperreed/leadsync/models"
)

const runColumns = `id, trigger, status, started_at, finished_at, messages_seen, records_ingested,
	rows_skipped, rows_appended, duplicates, error_message`

// CreateRun inserts a run in its initial state.
func CreateRun(db *sql.DB, run *models.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	_, err := db.Exec(`
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Trigger, run.Status, run.StartedAt, nullTime(run.FinishedAt),
		run.MessagesSeen, run.RecordsIngested, run.RowsSkipped, run.RowsAppended, run.Duplicates,
		nullString(run.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun stores the run's final status and counts, stamping FinishedAt
// when unset.
func FinishRun(db *sql.DB, run *models.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	res, err := db.Exec(`
		UPDATE runs SET
			status = ?, finished_at = ?, messages_seen = ?, records_ingested = ?,
			rows_skipped = ?, rows_appended = ?, duplicates = ?, error_message = ?
		WHERE id = ?
	`, run.Status, run.FinishedAt, run.MessagesSeen, run.RecordsIngested,
		run.RowsSkipped, run.RowsAppended, run.Duplicates, nullString(run.ErrorMessage), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var finishedAt sql.NullTime
	var errorMessage sql.NullString

	if err := row.Scan(
		&run.ID,
		&run.Trigger,
		&run.Status,
		&run.StartedAt,
		&finishedAt,
		&run.MessagesSeen,
		&run.RecordsIngested,
		&run.RowsSkipped,
		&run.RowsAppended,
		&run.Duplicates,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	run.ErrorMessage = errorMessage.String
	return &run, nil
}

// GetRun returns the run with id, or nil if it does not exist.
func GetRun(db *sql.DB, id string) (*models.Run, error) {
	run, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// LastRun returns the most recent run, or nil when none exist.
func LastRun(db *sql.DB) (*models.Run, error) {
	runs, err := ListRuns(db, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
