package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slidebot/models"

	_ "github.com/lib/pq"
)

const conversionJobsSchema = `CREATE TABLE IF NOT EXISTS conversion_jobs (
	id                UUID PRIMARY KEY,
	requester_id      BIGINT NOT NULL,
	original_filename TEXT NOT NULL,
	status            TEXT NOT NULL,
	error_message     TEXT,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ
)`

// DatabaseService keeps a history row per conversion job. Rows are written,
// never read back by the bot.
type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return connect(db)
}

// connect takes ownership of db: it is closed if unreachable.
func connect(db *sql.DB) (*DatabaseService, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

func (d *DatabaseService) EnsureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, conversionJobsSchema); err != nil {
		return fmt.Errorf("failed to create conversion_jobs: %w", err)
	}
	return nil
}

// RecordStatus inserts the row when the job is received and updates it on
// every later transition.
func (d *DatabaseService) RecordStatus(ctx context.Context, job *models.ConversionJob) error {
	if job.Status == models.StatusReceived {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO conversion_jobs (id, requester_id, original_filename, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`,
			job.ID, job.RequesterID, job.OriginalFilename, string(job.Status), job.CreatedAt, job.UpdatedAt,
		)
		return err
	}

	query, args := statusUpdateQuery(job, time.Now())
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

func statusUpdateQuery(job *models.ConversionJob, now time.Time) (string, []interface{}) {
	query := `UPDATE conversion_jobs SET status = $1, updated_at = $2`
	args := []interface{}{string(job.Status), now}
	argIndex := 3

	if job.Status == models.StatusConverting {
		query += fmt.Sprintf(`, started_at = $%d`, argIndex)
		args = append(args, now)
		argIndex++
	}

	if job.Status.Terminal() {
		query += fmt.Sprintf(`, completed_at = $%d`, argIndex)
		args = append(args, now)
		argIndex++
	}

	if job.Status == models.StatusFailed {
		query += fmt.Sprintf(`, error_message = $%d`, argIndex)
		args = append(args, job.Error)
		argIndex++
	}

	query += fmt.Sprintf(` WHERE id = $%d`, argIndex)
	args = append(args, job.ID)

	return query, args
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}
