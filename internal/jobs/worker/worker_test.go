package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	"github.com/yungbote/assistflow-backend/internal/data/repos/testutil"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

type fakeHandler struct {
	jobType   string
	run       func(jc *runtime.Context) error
	exhausted int32
}

func (h *fakeHandler) Type() string { return h.jobType }
func (h *fakeHandler) Run(jc *runtime.Context) error { return h.run(jc) }
func (h *fakeHandler) Exhausted(jc *runtime.Context) { atomic.AddInt32(&h.exhausted, 1) }

func setup(t *testing.T, handlers ...runtime.Handler) (*Worker, jobrepo.JobRunRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := jobrepo.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	return NewWorker(db, log, repo, reg, nil, Config{}), repo
}

func enqueue(t *testing.T, repo jobrepo.JobRunRepo, jobType string, maxAttempts int) *types.JobRun {
	t.Helper()
	payload, _ := json.Marshal(map[string]any{"ticket_id": 7})
	job := &types.JobRun{
		CompanyID:   1,
		JobType:     jobType,
		EntityType:  jobstatus.EntityTicket,
		EntityID:    7,
		Status:      jobstatus.StatusQueued,
		Stage:       "queued",
		MaxAttempts: maxAttempts,
		BackoffMS:   0,
		Payload:     payload,
	}
	_, err := repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job})
	require.NoError(t, err)
	return job
}

func TestRunOnceSucceeds(t *testing.T) {
	h := &fakeHandler{jobType: "ok", run: func(jc *runtime.Context) error {
		require.EqualValues(t, 7, jc.Payload()["ticket_id"])
		jc.Succeed("done", map[string]any{"ok": true})
		return nil
	}}
	w, repo := setup(t, h)
	job := enqueue(t, repo, "ok", 3)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstatus.StatusSucceeded, got.Status)
	require.Equal(t, "done", got.Stage)

	ran, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRetriesUntilExhaustedThenCallsHook(t *testing.T) {
	var calls int32
	h := &fakeHandler{jobType: "flaky", run: func(jc *runtime.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("upstream down")
	}}
	w, repo := setup(t, h)
	job := enqueue(t, repo, "flaky", 2)

	for i := 0; i < 4; i++ {
		_, err := w.RunOnce(context.Background())
		require.NoError(t, err)
	}

	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.EqualValues(t, 1, atomic.LoadInt32(&h.exhausted))

	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstatus.StatusFailed, got.Status)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, "upstream down", got.Error)
}

func TestFailPushesRunAtByBackoff(t *testing.T) {
	h := &fakeHandler{jobType: "slow", run: func(jc *runtime.Context) error {
		return errors.New("boom")
	}}
	w, repo := setup(t, h)
	job := enqueue(t, repo, "slow", 3)
	require.NoError(t, repo.UpdateFields(dbctx.Context{Ctx: context.Background()}, job.ID, map[string]interface{}{"backoff_ms": int64(time.Hour / time.Millisecond)}))

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	// Not claimable again until the backoff passes.
	ran, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)

	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
	require.NoError(t, err)
	require.True(t, got.RunAt.After(time.Now().Add(50*time.Minute)))
}

func TestMissingHandlerFailsJob(t *testing.T) {
	w, repo := setup(t)
	job := enqueue(t, repo, "unknown", 1)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)

	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
	require.NoError(t, err)
	require.Equal(t, jobstatus.StatusFailed, got.Status)
	require.Equal(t, "dispatch", got.Stage)
}

func TestPanicIsRecorded(t *testing.T) {
	h := &fakeHandler{jobType: "panics", run: func(jc *runtime.Context) error {
		panic("nil map")
	}}
	w, repo := setup(t, h)
	job := enqueue(t, repo, "panics", 1)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
	require.NoError(t, err)
	require.Equal(t, "panic", got.Stage)
	require.EqualValues(t, 1, atomic.LoadInt32(&h.exhausted))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(&fakeHandler{jobType: "a"}))
	require.Error(t, reg.Register(&fakeHandler{jobType: "a"}))
	require.Error(t, reg.Register(&fakeHandler{}))
	require.Equal(t, []string{"a"}, reg.Types())
}
