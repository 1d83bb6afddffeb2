package delegate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/holdline/internal/storage"
)

// AgentState is the lifecycle state of a delegated task.
type AgentState string

const (
	AgentRunning AgentState = "running"
	AgentDone    AgentState = "done"
	AgentError   AgentState = "error"
)

// DefaultBoardSize is how many agent entries the board keeps.
const DefaultBoardSize = 20

var ErrAgentNotFound = errors.New("agent not found")

// AgentStatus is one entry on the agent-status board.
type AgentStatus struct {
	ID        string     `json:"id"`
	Task      string     `json:"task"`
	Status    AgentState `json:"status"`
	Model     string     `json:"model,omitempty"`
	Result    string     `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AgentUpdate carries the fields to merge into an entry. Empty fields are
// left unchanged.
type AgentUpdate struct {
	ID     string     `json:"id"`
	Task   string     `json:"task,omitempty"`
	Status AgentState `json:"status,omitempty"`
	Model  string     `json:"model,omitempty"`
	Result string     `json:"result,omitempty"`
}

// Board is the agent-status board, kept in the SQLite agents table and
// trimmed to the newest entries.
type Board struct {
	db   *sql.DB
	size int
	now  func() time.Time
}

func NewBoard(db *sql.DB, size int) *Board {
	if size <= 0 {
		size = DefaultBoardSize
	}
	return &Board{db: db, size: size, now: time.Now}
}

// Upsert merges u into the entry with the same id, creating it when absent.
func (b *Board) Upsert(ctx context.Context, u AgentUpdate) (AgentStatus, error) {
	if u.ID == "" {
		return AgentStatus{}, fmt.Errorf("agent id is empty")
	}
	status := u.Status
	if status == "" {
		status = AgentRunning
	}
	now := b.now().UTC().Format(storage.TimeLayout)

	_, err := b.db.ExecContext(ctx, `
INSERT INTO agents(id, task, status, model, result, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  task       = CASE WHEN ? != '' THEN excluded.task ELSE agents.task END,
  status     = CASE WHEN ? != '' THEN excluded.status ELSE agents.status END,
  model      = CASE WHEN ? != '' THEN excluded.model ELSE agents.model END,
  result     = CASE WHEN ? != '' THEN excluded.result ELSE agents.result END,
  updated_at = excluded.updated_at;
`, u.ID, u.Task, status, u.Model, nullIfEmpty(u.Result), now, now,
		u.Task, string(u.Status), u.Model, u.Result)
	if err != nil {
		return AgentStatus{}, fmt.Errorf("upsert agent: %w", err)
	}
	if err := b.Trim(ctx); err != nil {
		return AgentStatus{}, err
	}
	return b.Get(ctx, u.ID)
}

// Get returns one board entry.
func (b *Board) Get(ctx context.Context, id string) (AgentStatus, error) {
	row := b.db.QueryRowContext(ctx, `
SELECT id, task, status, model, result, created_at, updated_at
FROM agents
WHERE id = ?;
`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AgentStatus{}, ErrAgentNotFound
	}
	if err != nil {
		return AgentStatus{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// List returns the board, newest first.
func (b *Board) List(ctx context.Context) ([]AgentStatus, error) {
	rows, err := b.db.QueryContext(ctx, `
SELECT id, task, status, model, result, created_at, updated_at
FROM agents
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, b.size)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := []AgentStatus{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agents: %w", err)
	}
	return out, nil
}

// Trim deletes everything but the newest entries.
func (b *Board) Trim(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
DELETE FROM agents
WHERE id NOT IN (
  SELECT id FROM agents ORDER BY created_at DESC, rowid DESC LIMIT ?
);
`, b.size)
	if err != nil {
		return fmt.Errorf("trim agents: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (AgentStatus, error) {
	var (
		a          AgentStatus
		status     string
		result     sql.NullString
		createdAtS string
		updatedAtS string
	)
	if err := row.Scan(&a.ID, &a.Task, &status, &a.Model, &result, &createdAtS, &updatedAtS); err != nil {
		return AgentStatus{}, err
	}
	a.Status = AgentState(status)
	a.Result = result.String
	if t, err := time.Parse(storage.TimeLayout, createdAtS); err == nil {
		a.CreatedAt = t
	}
	if t, err := time.Parse(storage.TimeLayout, updatedAtS); err == nil {
		a.UpdatedAt = t
	}
	return a, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
