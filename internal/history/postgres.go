package history

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/artwork-uploader/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresWriter creates a new PostgreSQL history writer.
func NewPostgresWriter(cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 0
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool: pool,
		log:  logging.Component("history"),
	}

	if err := w.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("connected to PostgreSQL history catalog")
	return w, nil
}

// initSchema creates the upload_* tables if they don't exist.
func (w *PostgresWriter) initSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// RecordRun writes a run and its failures in one transaction. Recording the
// same run again replaces its failures.
func (w *PostgresWriter) RecordRun(ctx context.Context, rec RunRecord) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO upload_runs (
			run_id, started_at, finished_at, batches, any_failed, cancelled,
			files_uploaded, files_failed, bytes_uploaded, report_uri, producer_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id)
		DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			any_failed = EXCLUDED.any_failed,
			cancelled = EXCLUDED.cancelled,
			files_uploaded = EXCLUDED.files_uploaded,
			files_failed = EXCLUDED.files_failed,
			bytes_uploaded = EXCLUDED.bytes_uploaded,
			report_uri = EXCLUDED.report_uri
	`

	var reportURI *string
	if rec.ReportURI != "" {
		reportURI = &rec.ReportURI
	}

	_, err = tx.Exec(ctx, query,
		rec.RunID,
		rec.StartedAt,
		rec.FinishedAt,
		rec.Batches,
		rec.AnyFailed,
		rec.Cancelled,
		rec.FilesUploaded,
		rec.FilesFailed,
		rec.BytesUploaded,
		reportURI,
		rec.ProducerVersion,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM upload_failures WHERE run_id = $1`, rec.RunID); err != nil {
		return fmt.Errorf("clear failures: %w", err)
	}

	if len(rec.Failures) > 0 {
		batch := &pgx.Batch{}
		for _, f := range rec.Failures {
			batch.Queue(
				`INSERT INTO upload_failures (run_id, host, position, file_path) VALUES ($1, $2, $3, $4)`,
				rec.RunID, f.Host, f.Position, f.FilePath,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert failures: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	w.log.Info("recorded run", "run_id", rec.RunID, "failures", len(rec.Failures))
	return nil
}

// RecentRuns returns the latest runs, newest first, without failures.
func (w *PostgresWriter) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, started_at, finished_at, batches, any_failed, cancelled,
		       files_uploaded, files_failed, bytes_uploaded,
		       COALESCE(report_uri, ''), producer_version
		FROM upload_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := w.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.RunID, &rec.StartedAt, &rec.FinishedAt, &rec.Batches,
			&rec.AnyFailed, &rec.Cancelled,
			&rec.FilesUploaded, &rec.FilesFailed, &rec.BytesUploaded,
			&rec.ReportURI, &rec.ProducerVersion,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
