package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/holdline/internal/storage"
)

const jobColumns = `id, query, status, result, truncated, created_at, completed_at`

// Store persists job records in the SQLite jobs table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Append inserts a new pending job. CreatedAt defaults to now.
func (s *Store) Append(ctx context.Context, id, query string) (Job, error) {
	if id == "" {
		return Job{}, fmt.Errorf("job id is empty")
	}
	j := Job{ID: id, Query: query, Status: StatusPending, CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO jobs(id, query, status, created_at)
VALUES(?, ?, ?, ?);
`, j.ID, j.Query, j.Status, j.CreatedAt.Format(storage.TimeLayout))
	if err != nil {
		return Job{}, fmt.Errorf("append job: %w", err)
	}
	return j, nil
}

// Finish moves a job from pending to a terminal state. A missing record is
// inserted directly in its terminal state, created at out.SubmittedAt when
// that is set. The write is skipped when the
// record is already terminal; the returned bool reports whether it applied.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("job id is empty")
	}
	if !out.Status.Terminal() {
		return false, fmt.Errorf("invalid terminal status: %q", out.Status)
	}

	now := s.now().UTC().Format(storage.TimeLayout)
	created := now
	if !out.SubmittedAt.IsZero() {
		created = out.SubmittedAt.UTC().Format(storage.TimeLayout)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO jobs(id, query, status, result, truncated, created_at, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status = excluded.status,
  result = excluded.result,
  truncated = excluded.truncated,
  completed_at = excluded.completed_at
WHERE jobs.status = ?;
`, id, out.Query, out.Status, out.Result, boolToInt(out.Truncated), created, now, StatusPending)
	if err != nil {
		return false, fmt.Errorf("finish job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish job rows affected: %w", err)
	}
	return n > 0, nil
}

// Get returns a single job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?;`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// List returns the newest jobs first, up to limit.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	return s.query(ctx, `
SELECT `+jobColumns+`
FROM jobs
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
}

// Pending returns every job still pending, oldest first.
func (s *Store) Pending(ctx context.Context) ([]Job, error) {
	return s.query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status = ?
ORDER BY created_at ASC, rowid ASC;
`, StatusPending)
}

// RecentDone returns up to limit done jobs with a non-empty result, newest first.
func (s *Store) RecentDone(ctx context.Context, limit int) ([]Job, error) {
	return s.query(ctx, `
SELECT `+jobColumns+`
FROM jobs
WHERE status = ? AND result IS NOT NULL AND result != ''
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, StatusDone, limit)
}

// CountPending reports how many jobs are pending.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = ?;`, StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

// PruneTerminal deletes terminal jobs created before cutoff.
func (s *Store) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM jobs
WHERE status != ? AND created_at < ?;
`, StatusPending, cutoff.UTC().Format(storage.TimeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune jobs rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j            Job
		statusS      string
		result       sql.NullString
		truncated    int
		createdAtS   string
		completedAtS sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Query, &statusS, &result, &truncated, &createdAtS, &completedAtS); err != nil {
		return nil, err
	}
	j.Status = Status(statusS)
	j.Truncated = truncated != 0
	if result.Valid {
		j.Result = result.String
	}
	if t, err := time.Parse(storage.TimeLayout, createdAtS); err == nil {
		j.CreatedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(storage.TimeLayout, completedAtS.String); err == nil {
			j.CompletedAt = &t
		}
	}
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
