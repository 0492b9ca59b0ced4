package prompt_delay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

func setup(t *testing.T) (*pipelinetest.Env, *Pipeline) {
	t.Helper()
	env := pipelinetest.New(t)
	env.Seed(t, "assistant:asst_1||--||use-delay:true")
	return env, New(env.DB, env.Log, env.JobRuns, env.Jobs, env.Fallback)
}

func TestOldestDelayJobDispatchesOnce(t *testing.T) {
	env, p := setup(t)
	w := env.Worker(t, p)

	first := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("oi").WithThread("thread_1"))
	second := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("tudo bem?").WithThread("thread_1"))
	third := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("quero marcar").WithThread("thread_1"))

	pipelinetest.RunOne(t, w)

	got := env.Reload(t, first)
	require.Equal(t, jobstatus.StatusSucceeded, got.Status)
	require.Equal(t, outcomeDispatched, pipelinetest.Outcome(t, got))
	require.Equal(t, jobstatus.StatusCanceled, env.Reload(t, second).Status)
	require.Equal(t, jobstatus.StatusCanceled, env.Reload(t, third).Status)

	dispatches := env.JobsOfType(t, prompt.JobTypeDispatch)
	require.Len(t, dispatches, 1)
	next := pipelinetest.DecodePayload(t, dispatches[0])
	require.True(t, next.DelaySatisfied)
	require.True(t, next.Content.IsEmpty())
	require.Equal(t, "thread_1", next.ThreadID)
}

func TestNewerDelayJobIsSuperseded(t *testing.T) {
	env, p := setup(t)
	w := env.Worker(t, p)

	oldest := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("oi"))
	middle := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("alô"))
	newest := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("?"))
	// Claim the newest first.
	require.NoError(t, env.JobRuns.UpdateFields(dbctx.Context{Ctx: context.Background()}, newest.ID,
		map[string]interface{}{"run_at": time.Now().UTC().Add(-time.Minute)}))

	pipelinetest.RunOne(t, w)
	got := env.Reload(t, newest)
	require.Equal(t, jobstatus.StatusSucceeded, got.Status)
	require.Equal(t, outcomeSuperseded, pipelinetest.Outcome(t, got))
	require.Empty(t, env.JobsOfType(t, prompt.JobTypeDispatch))

	pipelinetest.RunOne(t, w)
	require.Equal(t, outcomeDispatched, pipelinetest.Outcome(t, env.Reload(t, oldest)))
	require.Equal(t, jobstatus.StatusCanceled, env.Reload(t, middle).Status)
	require.Len(t, env.JobsOfType(t, prompt.JobTypeDispatch), 1)
}

func TestDelayJobsOfOtherTicketsAreIndependent(t *testing.T) {
	env, p := setup(t)
	w := env.Worker(t, p)

	mine := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("oi"))
	other := pipelinetest.Payload("olá")
	other.TicketID = 99
	theirs := env.Enqueue(t, prompt.JobTypeDelay, other)

	pipelinetest.RunOne(t, w)
	pipelinetest.RunOne(t, w)

	require.Equal(t, outcomeDispatched, pipelinetest.Outcome(t, env.Reload(t, mine)))
	require.Equal(t, outcomeDispatched, pipelinetest.Outcome(t, env.Reload(t, theirs)))
	require.Len(t, env.JobsOfType(t, prompt.JobTypeDispatch), 2)
}

func TestInvalidPayloadFails(t *testing.T) {
	env, p := setup(t)
	w := env.Worker(t, p)

	job := env.Enqueue(t, prompt.JobTypeDelay, pipelinetest.Payload("oi"))
	require.NoError(t, env.JobRuns.UpdateFields(dbctx.Context{Ctx: context.Background()}, job.ID,
		map[string]interface{}{"payload": []byte(`{"ticket_id":0,"company_id":1}`)}))

	pipelinetest.RunOne(t, w)
	got := env.Reload(t, job)
	require.Equal(t, jobstatus.StatusFailed, got.Status)
	require.Equal(t, "validate", got.Stage)
}
