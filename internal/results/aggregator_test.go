package results

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/holdline/internal/jobstore"
	"github.com/mattjoyce/holdline/internal/storage"
)

type failingReader struct{ err error }

func (r failingReader) Pending(context.Context) ([]jobstore.Job, error) { return nil, r.err }
func (r failingReader) RecentDone(context.Context, int) ([]jobstore.Job, error) {
	return nil, r.err
}
func (r failingReader) List(context.Context, int) ([]jobstore.Job, error) { return nil, r.err }

type staticReader struct{ jobs []jobstore.Job }

func (r staticReader) Pending(context.Context) ([]jobstore.Job, error) {
	var out []jobstore.Job
	for _, j := range r.jobs {
		if j.Status == jobstore.StatusPending {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r staticReader) RecentDone(_ context.Context, limit int) ([]jobstore.Job, error) {
	var out []jobstore.Job
	for _, j := range r.jobs {
		if j.Status == jobstore.StatusDone && j.Result != "" && len(out) < limit {
			out = append(out, j)
		}
	}
	return out, nil
}

func (r staticReader) List(_ context.Context, limit int) ([]jobstore.Job, error) {
	if len(r.jobs) > limit {
		return r.jobs[:limit], nil
	}
	return r.jobs, nil
}

// finishingReader reports its job as pending on the first read and done on
// every later read, as if the worker finished between queries.
type finishingReader struct {
	job   jobstore.Job
	reads int
}

func (r *finishingReader) current() jobstore.Job {
	r.reads++
	j := r.job
	if r.reads > 1 {
		j.Status = jobstore.StatusDone
		j.CompletedAt = completedAt(j.CreatedAt.Add(4 * time.Second))
	}
	return j
}

func (r *finishingReader) Pending(context.Context) ([]jobstore.Job, error) {
	if j := r.current(); j.Status == jobstore.StatusPending {
		return []jobstore.Job{j}, nil
	}
	return nil, nil
}

func (r *finishingReader) RecentDone(context.Context, int) ([]jobstore.Job, error) {
	if j := r.current(); j.Status == jobstore.StatusDone {
		return []jobstore.Job{j}, nil
	}
	return nil, nil
}

func (r *finishingReader) List(context.Context, int) ([]jobstore.Job, error) {
	return []jobstore.Job{r.current()}, nil
}

func at(sec int) time.Time {
	return time.Date(2026, 5, 4, 6, 30, sec, 0, time.UTC)
}

func completedAt(t time.Time) *time.Time { return &t }

func TestCheckResultsEmpty(t *testing.T) {
	t.Parallel()
	a := New(Config{}, staticReader{})
	assert.Equal(t, EmptyResults, a.CheckResults(context.Background()))
}

func TestCheckResultsFormatsPendingAndDone(t *testing.T) {
	t.Parallel()
	reader := staticReader{jobs: []jobstore.Job{
		{ID: "3", Query: "weather", Status: jobstore.StatusPending, CreatedAt: at(30)},
		{ID: "2", Query: "news", Status: jobstore.StatusDone, Result: "quiet day", CreatedAt: at(10), CompletedAt: completedAt(at(12))},
		{ID: "1", Query: "time", Status: jobstore.StatusDone, Result: "noon", CreatedAt: at(0), CompletedAt: completedAt(at(3))},
		{ID: "0", Query: "bad", Status: jobstore.StatusError, Result: "boom", CreatedAt: at(0)},
	}}
	a := New(Config{}, reader)

	want := "⏳ 1 job(s) still running: weather\n\n" +
		"[1] Query: \"news\" (2s)\nResult: quiet day\n\n" +
		"[2] Query: \"time\" (3s)\nResult: noon"
	assert.Equal(t, want, a.CheckResults(context.Background()))
}

func TestCheckResultsOnlyPending(t *testing.T) {
	t.Parallel()
	reader := staticReader{jobs: []jobstore.Job{
		{ID: "1", Query: "a", Status: jobstore.StatusPending},
		{ID: "2", Query: "b", Status: jobstore.StatusPending},
	}}
	a := New(Config{}, reader)
	assert.Equal(t, "⏳ 2 job(s) still running: a, b", a.CheckResults(context.Background()))
}

func TestCheckResultsRecentWindow(t *testing.T) {
	t.Parallel()
	var jobs []jobstore.Job
	for i := 0; i < 15; i++ {
		jobs = append(jobs, jobstore.Job{ID: "x", Query: "q", Status: jobstore.StatusDone, Result: "r", CreatedAt: at(0), CompletedAt: completedAt(at(1))})
	}
	a := New(Config{}, staticReader{jobs: jobs})

	out := a.CheckResults(context.Background())
	assert.Contains(t, out, "[10] Query")
	assert.NotContains(t, out, "[11] Query")
}

func TestCheckResultsJobFinishingMidReadIsNotLost(t *testing.T) {
	t.Parallel()
	reader := &finishingReader{job: jobstore.Job{ID: "1", Query: "forecast", Status: jobstore.StatusPending, Result: "rain", CreatedAt: at(0)}}
	a := New(Config{}, reader)

	out := a.CheckResults(context.Background())
	assert.NotEqual(t, EmptyResults, out)
	assert.Contains(t, out, "forecast")
	assert.Equal(t, 2, reader.reads)
}

func TestCheckResultsStoreFailure(t *testing.T) {
	t.Parallel()
	a := New(Config{}, failingReader{err: errors.New("disk gone")})
	assert.Equal(t, ErrCheckingResults, a.CheckResults(context.Background()))
	assert.Equal(t, ErrLoadingHistory, a.FullHistory(context.Background()))

	_, err := a.Jobs(context.Background(), 0)
	assert.Error(t, err)
}

func TestFullHistoryEmpty(t *testing.T) {
	t.Parallel()
	a := New(Config{}, staticReader{})
	assert.Equal(t, EmptyHistory, a.FullHistory(context.Background()))
}

func TestFullHistoryFormatsEntries(t *testing.T) {
	t.Parallel()
	macau, err := time.LoadLocation("Asia/Macau")
	require.NoError(t, err)

	reader := staticReader{jobs: []jobstore.Job{
		{ID: "3", Query: "still going", Status: jobstore.StatusPending, CreatedAt: at(30)},
		{ID: "2", Query: "stopped", Status: jobstore.StatusAborted, Result: "Aborted by user", CreatedAt: at(20), CompletedAt: completedAt(at(21))},
		{ID: "1", Query: "", Status: jobstore.StatusDone, Result: strings.Repeat("y", 250), CreatedAt: at(0), CompletedAt: completedAt(at(5))},
	}}
	a := New(Config{Location: macau}, reader)

	out := a.FullHistory(context.Background())
	lines := strings.Split(out, "\n\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "📋 Job History (3 jobs):", lines[0])
	assert.Equal(t, "⏳ [2:30:30 PM] \"still going\" (N/A)", lines[1])
	assert.Equal(t, "❌ [2:30:20 PM] \"stopped\" (1s)\n   → Aborted by user", lines[2])
	assert.Equal(t, "✅ [2:30:00 PM] \"Task\" (5s)\n   → "+strings.Repeat("y", 200), lines[3])
}

func TestJobsDefaultsAndEmptySlice(t *testing.T) {
	t.Parallel()
	a := New(Config{}, staticReader{})

	jobs, err := a.Jobs(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

func TestAggregatorOverSQLite(t *testing.T) {
	t.Parallel()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "holdline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := jobstore.New(db)
	ctx := context.Background()

	_, err = store.Append(ctx, "job_a", "first")
	require.NoError(t, err)
	_, err = store.Finish(ctx, "job_a", jobstore.Outcome{Query: "first", Status: jobstore.StatusDone, Result: "one"})
	require.NoError(t, err)
	_, err = store.Append(ctx, "job_b", "second")
	require.NoError(t, err)

	a := New(Config{Location: time.UTC}, store)
	out := a.CheckResults(ctx)
	assert.True(t, strings.HasPrefix(out, "⏳ 1 job(s) still running: second\n\n[1] Query: \"first\" ("))
	assert.True(t, strings.HasSuffix(out, "Result: one"))

	jobs, err := a.Jobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestPreviewIsRuneSafe(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "日本", preview("日本語", 2))
	assert.Equal(t, "abc", preview("abc", 5))
}
