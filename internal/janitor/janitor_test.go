package janitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/holdline/internal/delegate"
	"github.com/mattjoyce/holdline/internal/events"
	"github.com/mattjoyce/holdline/internal/janitor/mocks"
	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/registry"
	"github.com/mattjoyce/holdline/internal/storage"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func newTestSlogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(handler), buf
}

type liveSet map[string]bool

func (l liveSet) Has(id string) bool { return l[id] }

func TestRecoverOrphanedJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockJobStore(ctrl)
	slogger, logBuf := newTestSlogger()
	hub := events.NewHub(32)
	j := New(Config{}, store, nil, liveSet{"job_live": true}, hub, slogger)
	ctx := context.Background()

	t.Run("No orphaned jobs", func(t *testing.T) {
		store.EXPECT().Pending(ctx).Return([]jobstore.Job{}, nil)
		assert.NoError(t, j.recoverOrphanedJobs(ctx))
		assert.Contains(t, logBuf.String(), "No orphaned jobs found")
	})

	t.Run("Orphans finalised, live jobs skipped", func(t *testing.T) {
		logBuf.Reset()
		pending := []jobstore.Job{
			{ID: "job_old", Query: "first", Status: jobstore.StatusPending},
			{ID: "job_live", Query: "second", Status: jobstore.StatusPending},
			{ID: "job_raced", Query: "third", Status: jobstore.StatusPending},
		}
		store.EXPECT().Pending(ctx).Return(pending, nil)
		store.EXPECT().Finish(ctx, "job_old", jobstore.Outcome{
			Query: "first", Status: jobstore.StatusError, Result: OrphanedJobResult,
		}).Return(true, nil)
		store.EXPECT().Finish(ctx, "job_raced", gomock.Any()).Return(false, nil)

		assert.NoError(t, j.recoverOrphanedJobs(ctx))
		assert.Contains(t, logBuf.String(), "Recovering orphaned job")
		assert.NotContains(t, logBuf.String(), `"job_id":"job_live"`)

		evs := hub.Since(0)
		require.Len(t, evs, 1)
		assert.Equal(t, events.JobFailed, evs[0].Type)
		assert.Contains(t, string(evs[0].Data), "job_old")
	})

	t.Run("Finish error is logged and recovery continues", func(t *testing.T) {
		logBuf.Reset()
		store.EXPECT().Pending(ctx).Return([]jobstore.Job{{ID: "a"}, {ID: "b"}}, nil)
		store.EXPECT().Finish(ctx, "a", gomock.Any()).Return(false, errors.New("busy"))
		store.EXPECT().Finish(ctx, "b", gomock.Any()).Return(true, nil)

		assert.NoError(t, j.recoverOrphanedJobs(ctx))
		assert.Contains(t, logBuf.String(), "Failed to finalise orphaned job")
	})

	t.Run("Pending returns error", func(t *testing.T) {
		store.EXPECT().Pending(ctx).Return(nil, errors.New("db error"))
		err := j.recoverOrphanedJobs(ctx)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to find pending jobs for recovery: db error")
	})
}

func TestRecoverOrphanedAgents(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockJobStore(ctrl)
	board := mocks.NewMockAgentBoard(ctrl)
	slogger, _ := newTestSlogger()
	j := New(Config{}, store, board, nil, nil, slogger)
	ctx := context.Background()

	board.EXPECT().List(ctx).Return([]delegate.AgentStatus{
		{ID: "delegate-1", Status: delegate.AgentRunning},
		{ID: "delegate-2", Status: delegate.AgentDone},
		{ID: "external-runner", Status: delegate.AgentRunning},
	}, nil)
	board.EXPECT().Upsert(ctx, delegate.AgentUpdate{
		ID: "delegate-1", Status: delegate.AgentError, Result: OrphanedAgentResult,
	}).Return(delegate.AgentStatus{}, nil)

	assert.NoError(t, j.recoverOrphanedAgents(ctx))
}

func TestTickPrunesAndTrims(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockJobStore(ctrl)
	board := mocks.NewMockAgentBoard(ctrl)
	slogger, logBuf := newTestSlogger()
	j := New(Config{JobRetention: 24 * time.Hour}, store, board, nil, nil, slogger)
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }
	ctx := context.Background()

	store.EXPECT().PruneTerminal(ctx, now.Add(-24*time.Hour)).Return(int64(4), nil)
	board.EXPECT().Trim(ctx).Return(nil)

	j.tick(ctx)
	assert.Contains(t, logBuf.String(), "Pruned terminal jobs")
	assert.Contains(t, logBuf.String(), `"count":4`)
}

func TestTickZeroRetentionSkipsPrune(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockJobStore(ctrl)
	board := mocks.NewMockAgentBoard(ctrl)
	slogger, logBuf := newTestSlogger()
	j := New(Config{}, store, board, nil, nil, slogger)
	ctx := context.Background()

	board.EXPECT().Trim(ctx).Return(errors.New("locked"))

	j.tick(ctx)
	assert.Contains(t, logBuf.String(), "Failed to trim agent board")
}

func TestStartRunsRecoveryThenTicks(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockJobStore(ctrl)
	board := mocks.NewMockAgentBoard(ctrl)
	slogger, _ := newTestSlogger()
	j := New(Config{Interval: time.Hour, JobRetention: time.Hour}, store, board, nil, nil, slogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticked := make(chan struct{})
	gomock.InOrder(
		store.EXPECT().Pending(gomock.Any()).Return(nil, nil),
		board.EXPECT().List(gomock.Any()).Return(nil, nil),
		store.EXPECT().PruneTerminal(gomock.Any(), gomock.Any()).Return(int64(0), nil),
		board.EXPECT().Trim(gomock.Any()).DoAndReturn(func(context.Context) error {
			close(ticked)
			return nil
		}),
	)

	require.NoError(t, j.Start(ctx))
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("initial tick did not run")
	}
	j.Stop()
	j.Stop()
}

func TestStartFailsWhenRecoveryFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockJobStore(ctrl)
	slogger, _ := newTestSlogger()
	j := New(Config{}, store, nil, nil, nil, slogger)

	store.EXPECT().Pending(gomock.Any()).Return(nil, errors.New("no such table"))

	err := j.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "janitor crash recovery failed")
}

func TestRecoveryAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "holdline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := jobstore.New(db)
	_, err = store.Append(ctx, "job_orphan", "left behind")
	require.NoError(t, err)
	_, err = store.Append(ctx, "job_running", "still going")
	require.NoError(t, err)

	reg := registry.New()
	reg.Register(&registry.Handle{ID: "job_running", Query: "still going", StartedAt: time.Now()})

	slogger, _ := newTestSlogger()
	j := New(Config{}, store, nil, reg, nil, slogger)
	require.NoError(t, j.recoverOrphanedJobs(ctx))

	orphan, err := store.Get(ctx, "job_orphan")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusError, orphan.Status)
	assert.Equal(t, OrphanedJobResult, orphan.Result)

	running, err := store.Get(ctx, "job_running")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusPending, running.Status)
}
