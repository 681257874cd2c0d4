// Package store persists analyses and classified rows in Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refset/prevd-classifier/internal/classifier"
)

// ErrNotFound is returned when a row id does not exist.
var ErrNotFound = errors.New("row not found")

const schema = `
CREATE TABLE IF NOT EXISTS classification_runs (
	upload_id       TEXT PRIMARY KEY,
	filename        TEXT NOT NULL,
	model_name      TEXT NOT NULL,
	prompt_version  TEXT NOT NULL,
	sample_count    INT NOT NULL,
	row_concurrency INT NOT NULL,
	headers         JSONB NOT NULL,
	total_rows      INT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS classified_rows (
	id                TEXT PRIMARY KEY,
	upload_id         TEXT,
	row_index         INT NOT NULL,
	model_label       TEXT NOT NULL,
	final_label       TEXT NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	is_abuser         BOOLEAN NOT NULL,
	is_discovery_type BOOLEAN NOT NULL,
	payload           JSONB NOT NULL,
	overridden_by     TEXT,
	overridden_at     TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS classified_rows_upload_idx ON classified_rows (upload_id, row_index);
`

// Run is the header record of one analysed upload.
type Run struct {
	UploadID       string
	Filename       string
	ModelName      string
	PromptVersion  string
	SampleCount    int
	RowConcurrency int
	Headers        []string
	TotalRows      int
}

// Row is one stored classification. Payload holds the full row document.
type Row struct {
	ID              string
	UploadID        string
	RowIndex        int
	ModelLabel      classifier.Label
	FinalLabel      classifier.Label
	Confidence      float64
	IsAbuser        bool
	IsDiscoveryType bool
	Payload         json.RawMessage
	OverriddenBy    string
	OverriddenAt    *time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres and verifies the connection
func Open(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, r Run) error {
	if r.UploadID == "" {
		return fmt.Errorf("upload ID required")
	}
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO classification_runs
			(upload_id, filename, model_name, prompt_version, sample_count, row_concurrency, headers, total_rows)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		ON CONFLICT (upload_id) DO NOTHING`,
		r.UploadID, r.Filename, r.ModelName, r.PromptVersion, r.SampleCount, r.RowConcurrency, string(headers), r.TotalRows)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.UploadID, err)
	}
	return nil
}

func (s *Store) SaveRow(ctx context.Context, r Row) error {
	if r.ID == "" {
		return fmt.Errorf("row ID required")
	}
	if len(r.Payload) == 0 {
		r.Payload = json.RawMessage("{}")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO classified_rows
			(id, upload_id, row_index, model_label, final_label, confidence, is_abuser, is_discovery_type, payload)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9::jsonb)`,
		r.ID, r.UploadID, r.RowIndex, string(r.ModelLabel), string(r.FinalLabel),
		r.Confidence, r.IsAbuser, r.IsDiscoveryType, string(r.Payload))
	if err != nil {
		return fmt.Errorf("save row %s: %w", r.ID, err)
	}
	return nil
}

// Override replaces the final label of a row. The model label is kept for audit.
func (s *Store) Override(ctx context.Context, rowID string, label classifier.Label, by string) error {
	if err := validateOverride(rowID, label); err != nil {
		return err
	}
	by = strings.TrimSpace(by)
	if by == "" {
		by = "operator"
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE classified_rows
		SET final_label = $2, overridden_by = $3, overridden_at = now()
		WHERE id = $1`,
		rowID, string(label), by)
	if err != nil {
		return fmt.Errorf("override row %s: %w", rowID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("override row %s: %w", rowID, ErrNotFound)
	}
	return nil
}

func validateOverride(rowID string, label classifier.Label) error {
	if strings.TrimSpace(rowID) == "" {
		return fmt.Errorf("row ID required")
	}
	if _, err := classifier.ParseLabel(string(label)); err != nil {
		return err
	}
	return nil
}

// Rows lists the rows of one upload ordered by row index.
func (s *Store) Rows(ctx context.Context, uploadID string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, COALESCE(upload_id, ''), row_index, model_label, final_label, confidence,
			is_abuser, is_discovery_type, payload, COALESCE(overridden_by, ''), overridden_at
		FROM classified_rows
		WHERE upload_id = $1
		ORDER BY row_index`, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", uploadID, err)
	}

	out, err := pgx.CollectRows(rows, scanRow)
	if err != nil {
		return nil, fmt.Errorf("scan rows of %s: %w", uploadID, err)
	}
	return out, nil
}

func scanRow(row pgx.CollectableRow) (Row, error) {
	var (
		r            Row
		model, final string
		payload      []byte
	)
	err := row.Scan(&r.ID, &r.UploadID, &r.RowIndex, &model, &final, &r.Confidence,
		&r.IsAbuser, &r.IsDiscoveryType, &payload, &r.OverriddenBy, &r.OverriddenAt)
	if err != nil {
		return Row{}, err
	}
	r.ModelLabel = classifier.Label(model)
	r.FinalLabel = classifier.Label(final)
	r.Payload = json.RawMessage(payload)
	return r, nil
}
