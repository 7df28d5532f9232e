package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/github-repo-export/internal/domain"
	apperrors "github.com/kurihiro0119/github-repo-export/internal/errors"
	"github.com/kurihiro0119/github-repo-export/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS export_runs (
		id TEXT PRIMARY KEY,
		org TEXT NOT NULL,
		output_file TEXT NOT NULL,
		properties JSONB NOT NULL,
		debug BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL,
		rows_written INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		summary JSONB,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_export_runs_org_started ON export_runs(org, started_at);

	CREATE TABLE IF NOT EXISTS repo_results (
		id BIGSERIAL,
		run_id TEXT NOT NULL REFERENCES export_runs(id),
		repo TEXT NOT NULL,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (run_id, repo)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateRun inserts a new run
func (s *postgresStorage) CreateRun(ctx context.Context, run *domain.ExportRun) error {
	props, err := storage.EncodeProperties(run.Properties)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO export_runs (id, org, output_file, properties, debug, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		run.Org,
		run.OutputFile,
		props,
		run.Debug,
		string(run.Status),
		run.StartedAt,
	)
	return err
}

// FinishRun stores the final status, counters and summary of a run
func (s *postgresStorage) FinishRun(ctx context.Context, run *domain.ExportRun) error {
	summary, err := storage.EncodeSummary(run.Summary)
	if err != nil {
		return err
	}

	query := `
		UPDATE export_runs
		SET status = $1, rows_written = $2, skipped = $3, error_message = $4, summary = $5, finished_at = $6
		WHERE id = $7
	`
	res, err := s.db.ExecContext(ctx, query,
		string(run.Status),
		run.RowsWritten,
		run.Skipped,
		run.ErrorMessage,
		summary,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("run %s", run.ID))
	}
	return nil
}

const runColumns = `id, org, output_file, properties, debug, status, rows_written, skipped, error_message, summary, started_at, finished_at`

// GetRun retrieves a run by ID
func (s *postgresStorage) GetRun(ctx context.Context, id string) (*domain.ExportRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM export_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("run %s", id))
	}
	return run, err
}

// GetRuns retrieves the most recent runs, optionally for one organization
func (s *postgresStorage) GetRuns(ctx context.Context, org string, limit int) ([]*domain.ExportRun, error) {
	query := `SELECT ` + runColumns + ` FROM export_runs WHERE ($1 = '' OR org = $1) ORDER BY started_at DESC LIMIT $2`
	// LIMIT NULL returns every row
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}

	rows, err := s.db.QueryContext(ctx, query, org, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.ExportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// SaveRepoResult records the outcome for one repository
func (s *postgresStorage) SaveRepoResult(ctx context.Context, result *domain.RepoResult) error {
	query := `
		INSERT INTO repo_results (run_id, repo, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, repo) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			created_at = EXCLUDED.created_at
	`
	_, err := s.db.ExecContext(ctx, query,
		result.RunID,
		result.Repo,
		string(result.Status),
		result.ErrorMessage,
		result.CreatedAt,
	)
	return err
}

// GetRepoResults retrieves the repository outcomes of a run in processing order
func (s *postgresStorage) GetRepoResults(ctx context.Context, runID string) ([]*domain.RepoResult, error) {
	query := `
		SELECT run_id, repo, status, error_message, created_at
		FROM repo_results
		WHERE run_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.RepoResult
	for rows.Next() {
		var r domain.RepoResult
		var status string
		if err := rows.Scan(&r.RunID, &r.Repo, &status, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Status = domain.RepoStatus(status)
		results = append(results, &r)
	}

	return results, rows.Err()
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.ExportRun, error) {
	var run domain.ExportRun
	var props, status string
	var summary sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Org, &run.OutputFile, &props, &run.Debug, &status,
		&run.RowsWritten, &run.Skipped, &run.ErrorMessage, &summary, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if run.Properties, err = storage.DecodeProperties(props); err != nil {
		return nil, fmt.Errorf("decode properties of run %s: %w", run.ID, err)
	}
	if summary.Valid {
		if run.Summary, err = storage.DecodeSummary(&summary.String); err != nil {
			return nil, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}
