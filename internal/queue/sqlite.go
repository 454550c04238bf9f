package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/lyrix/internal/shared"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

const jobColumns = `id, name, payload, attempts, max_attempts, backoff_ms, keep_on_success, keep_on_failure, status, run_at, locked_until, last_error, created_at`

// SQLiteBroker stores jobs in the fetch_jobs table created by the shared migrations.
type SQLiteBroker struct {
	db *sql.DB
}

// NewSQLiteBroker creates a [SQLiteBroker] over a migrated database.
func NewSQLiteBroker(db *sql.DB) *SQLiteBroker {
	return &SQLiteBroker{db: db}
}

func (b *SQLiteBroker) Push(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO fetch_jobs (id, name, payload, attempts, max_attempts, backoff_ms, keep_on_success, keep_on_failure, status, run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	return shared.RetryOnBusy(ctx, func() error {
		_, err := b.db.ExecContext(ctx, query,
			job.ID, job.Name, string(job.Payload), job.Attempts, job.MaxAttempts, job.Backoff.Milliseconds(),
			job.KeepOnSuccess, job.KeepOnFailure, StatusWaiting,
			formatTime(job.RunAt), formatTime(job.CreatedAt), formatTime(job.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}
		return nil
	})
}

// Claim picks the oldest due job, or an active job whose lock has expired, and takes it with a
// conditional UPDATE on its status.
func (b *SQLiteBroker) Claim(ctx context.Context, now, lockUntil time.Time) (*Job, error) {
	query := `
		UPDATE fetch_jobs
		SET status = ?1,
			attempts = attempts + 1,
			locked_until = ?2,
			last_error = CASE WHEN status = ?1 THEN ?3 ELSE last_error END,
			updated_at = ?4
		WHERE id = (
			SELECT id FROM fetch_jobs
			WHERE (status = ?5 AND run_at <= ?4) OR (status = ?1 AND locked_until <= ?4)
			ORDER BY run_at, created_at
			LIMIT 1
		) AND ((status = ?5 AND run_at <= ?4) OR (status = ?1 AND locked_until <= ?4))
		RETURNING ` + jobColumns

	var job *Job
	err := shared.RetryOnBusy(ctx, func() error {
		row := b.db.QueryRowContext(ctx, query,
			StatusActive, formatTime(lockUntil), ErrStalled.Error(), formatTime(now), StatusWaiting)
		j, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (b *SQLiteBroker) Complete(ctx context.Context, job *Job) error {
	if !job.KeepOnSuccess {
		return b.exec(ctx, "DELETE FROM fetch_jobs WHERE id = ?", job.ID)
	}
	return b.exec(ctx, "UPDATE fetch_jobs SET status = ?, locked_until = NULL, updated_at = ? WHERE id = ?",
		StatusCompleted, formatTime(time.Now()), job.ID)
}

func (b *SQLiteBroker) Retry(ctx context.Context, job *Job, at time.Time, cause error) error {
	return b.exec(ctx, "UPDATE fetch_jobs SET status = ?, run_at = ?, locked_until = NULL, last_error = ?, updated_at = ? WHERE id = ?",
		StatusWaiting, formatTime(at), causeText(cause), formatTime(time.Now()), job.ID)
}

func (b *SQLiteBroker) Fail(ctx context.Context, job *Job, cause error) error {
	if !job.KeepOnFailure {
		return b.exec(ctx, "DELETE FROM fetch_jobs WHERE id = ?", job.ID)
	}
	return b.exec(ctx, "UPDATE fetch_jobs SET status = ?, locked_until = NULL, last_error = ?, updated_at = ? WHERE id = ?",
		StatusFailed, causeText(cause), formatTime(time.Now()), job.ID)
}

func (b *SQLiteBroker) Failed(ctx context.Context) ([]*Job, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM fetch_jobs WHERE status = ? ORDER BY created_at", StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (b *SQLiteBroker) RetryFailed(ctx context.Context, now time.Time) (int, error) {
	var n int64
	err := shared.RetryOnBusy(ctx, func() error {
		result, err := b.db.ExecContext(ctx,
			"UPDATE fetch_jobs SET status = ?, attempts = 0, run_at = ?, updated_at = ? WHERE status = ?",
			StatusWaiting, formatTime(now), formatTime(now), StatusFailed)
		if err != nil {
			return err
		}
		n, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to re-queue failed jobs: %w", err)
	}
	return int(n), nil
}

// Close is a no-op: the database belongs to the caller.
func (b *SQLiteBroker) Close() error { return nil }

func (b *SQLiteBroker) exec(ctx context.Context, query string, args ...any) error {
	return shared.RetryOnBusy(ctx, func() error {
		if _, err := b.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		return nil
	})
}

func scanJob(s interface{ Scan(...any) error }) (*Job, error) {
	var (
		j           Job
		payload     string
		backoffMS   int64
		lastError   sql.NullString
		runAt       sqlTime
		lockedUntil sqlTime
		createdAt   sqlTime
	)
	err := s.Scan(&j.ID, &j.Name, &payload, &j.Attempts, &j.MaxAttempts, &backoffMS,
		&j.KeepOnSuccess, &j.KeepOnFailure, &j.Status, &runAt, &lockedUntil, &lastError, &createdAt)
	if err != nil {
		return nil, err
	}
	j.Payload = []byte(payload)
	j.Backoff = time.Duration(backoffMS) * time.Millisecond
	j.LastError = lastError.String
	j.RunAt = runAt.Time
	j.LockedUntil = lockedUntil.Time
	j.CreatedAt = createdAt.Time
	return &j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// sqlTime scans timestamps returned either as text (libsql) or already parsed (go-sqlite3).
type sqlTime struct {
	time.Time
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v.UTC()
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (t *sqlTime) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}
