// Package store persists sheet results and batch summaries in an embedded
// sqlite database.
//
// All writes are idempotent upserts keyed by sheet or batch id, so the
// pipeline may safely replay a save after a crash or a resubmission. The
// store never falls back to a non-durable medium: if the database cannot be
// opened, construction fails and the caller decides what to do.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ironsheep/omr-scan/internal/aggregate"
	"github.com/ironsheep/omr-scan/internal/batch"
	"github.com/ironsheep/omr-scan/internal/lifecycle"
)

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists. Safe to call against an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach result store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sheet_result (
    sheet_id               TEXT PRIMARY KEY,
    batch_code             TEXT NOT NULL,
    label                  TEXT NOT NULL DEFAULT '',
    template_id            TEXT NOT NULL,
    template_version       TEXT NOT NULL,
    status                 TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'processed', 'review_needed', 'failed')),
    responses              TEXT NOT NULL DEFAULT '[]',
    overall_score          REAL NOT NULL DEFAULT 0,
    overall_confidence     REAL NOT NULL DEFAULT 0,
    rating_scale           INTEGER NOT NULL DEFAULT 0,
    image_quality_score    REAL NOT NULL DEFAULT 0,
    processing_duration_ms INTEGER NOT NULL DEFAULT 0,
    failure_reason         TEXT,
    completed_at           TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sheet_result_batch ON sheet_result(batch_code);

CREATE TABLE IF NOT EXISTS batch_summary (
    batch_code      TEXT PRIMARY KEY,
    total_sheets    INTEGER NOT NULL,
    processed       INTEGER NOT NULL,
    review_needed   INTEGER NOT NULL,
    failed          INTEGER NOT NULL,
    average_score   REAL NOT NULL,
    average_percent REAL NOT NULL,
    complete        INTEGER NOT NULL,
    updated_at      TIMESTAMP NOT NULL
);
`

// SaveSheet upserts one sheet result keyed by sheet id.
func (s *Store) SaveSheet(sheet lifecycle.SheetResult) error {
	responses, err := json.Marshal(sheet.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses: %w", err)
	}

	var completedAt any
	if sheet.CompletedAt != nil {
		completedAt = sheet.CompletedAt.UTC()
	}

	_, err = s.db.Exec(`
		INSERT INTO sheet_result (
			sheet_id, batch_code, label, template_id, template_version, status,
			responses, overall_score, overall_confidence, rating_scale,
			image_quality_score, processing_duration_ms, failure_reason, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sheet_id) DO UPDATE SET
			batch_code             = excluded.batch_code,
			label                  = excluded.label,
			template_id            = excluded.template_id,
			template_version       = excluded.template_version,
			status                 = excluded.status,
			responses              = excluded.responses,
			overall_score          = excluded.overall_score,
			overall_confidence     = excluded.overall_confidence,
			rating_scale           = excluded.rating_scale,
			image_quality_score    = excluded.image_quality_score,
			processing_duration_ms = excluded.processing_duration_ms,
			failure_reason         = excluded.failure_reason,
			completed_at           = excluded.completed_at`,
		sheet.SheetID, sheet.BatchCode, sheet.Label, sheet.TemplateID, sheet.TemplateVersion,
		string(sheet.Status), string(responses), sheet.OverallScore,
		sheet.OverallConfidence, sheet.RatingScale, sheet.ImageQualityScore,
		sheet.ProcessingDurationMs, nullable(sheet.FailureReason), completedAt)
	if err != nil {
		return fmt.Errorf("failed to save sheet %s: %w", sheet.SheetID, err)
	}
	return nil
}

// SaveSummary upserts one batch summary keyed by batch code.
func (s *Store) SaveSummary(sum batch.Summary) error {
	_, err := s.db.Exec(`
		INSERT INTO batch_summary (
			batch_code, total_sheets, processed, review_needed, failed,
			average_score, average_percent, complete, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_code) DO UPDATE SET
			total_sheets    = excluded.total_sheets,
			processed       = excluded.processed,
			review_needed   = excluded.review_needed,
			failed          = excluded.failed,
			average_score   = excluded.average_score,
			average_percent = excluded.average_percent,
			complete        = excluded.complete,
			updated_at      = excluded.updated_at`,
		sum.BatchCode, sum.TotalSheets, sum.Processed, sum.ReviewNeeded,
		sum.Failed, sum.AverageScore, sum.AveragePercent, sum.Complete,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", sum.BatchCode, err)
	}
	return nil
}

// Summary loads the last persisted summary for a batch.
func (s *Store) Summary(batchCode string) (batch.Summary, error) {
	var sum batch.Summary
	err := s.db.QueryRow(`
		SELECT batch_code, total_sheets, processed, review_needed, failed,
		       average_score, average_percent, complete
		FROM batch_summary WHERE batch_code = ?`, batchCode).
		Scan(&sum.BatchCode, &sum.TotalSheets, &sum.Processed, &sum.ReviewNeeded,
			&sum.Failed, &sum.AverageScore, &sum.AveragePercent, &sum.Complete)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("failed to load batch %s: %w", batchCode, err)
	}
	return sum, nil
}

// Sheet loads one sheet result by id.
func (s *Store) Sheet(sheetID string) (lifecycle.SheetResult, error) {
	row := s.db.QueryRow(`
		SELECT sheet_id, batch_code, label, template_id, template_version, status,
		       responses, overall_score, overall_confidence, rating_scale,
		       image_quality_score, processing_duration_ms, failure_reason, completed_at
		FROM sheet_result WHERE sheet_id = ?`, sheetID)
	return scanSheet(row)
}

// SheetsByBatch loads all sheet results of a batch, ordered by sheet id.
func (s *Store) SheetsByBatch(batchCode string) ([]lifecycle.SheetResult, error) {
	rows, err := s.db.Query(`
		SELECT sheet_id, batch_code, label, template_id, template_version, status,
		       responses, overall_score, overall_confidence, rating_scale,
		       image_quality_score, processing_duration_ms, failure_reason, completed_at
		FROM sheet_result WHERE batch_code = ? ORDER BY sheet_id`, batchCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch %s: %w", batchCode, err)
	}
	defer rows.Close()

	var out []lifecycle.SheetResult
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sheet)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSheet(row rowScanner) (lifecycle.SheetResult, error) {
	var sheet lifecycle.SheetResult
	var status, responses string
	var failure sql.NullString
	var completed sql.NullTime

	err := row.Scan(&sheet.SheetID, &sheet.BatchCode, &sheet.Label, &sheet.TemplateID,
		&sheet.TemplateVersion, &status, &responses, &sheet.OverallScore,
		&sheet.OverallConfidence, &sheet.RatingScale, &sheet.ImageQualityScore,
		&sheet.ProcessingDurationMs, &failure, &completed)
	if err != nil {
		return lifecycle.SheetResult{}, fmt.Errorf("failed to scan sheet: %w", err)
	}

	sheet.Status = lifecycle.Status(status)
	if err := json.Unmarshal([]byte(responses), &sheet.Responses); err != nil {
		return lifecycle.SheetResult{}, fmt.Errorf("failed to decode responses: %w", err)
	}
	if sheet.Responses == nil {
		sheet.Responses = []aggregate.Response{}
	}
	if failure.Valid {
		sheet.FailureReason = failure.String
	}
	if completed.Valid {
		t := completed.Time
		sheet.CompletedAt = &t
	}
	return sheet, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
