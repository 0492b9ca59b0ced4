package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

func setup(t *testing.T) (*pipelinetest.Env, *Sweeper) {
	t.Helper()
	env := pipelinetest.New(t)
	env.Seed(t, "assistant:asst_1")
	require.NoError(t, env.Tickets.UpdateFields(dbctx.Context{Ctx: context.Background()}, pipelinetest.TicketID,
		map[string]interface{}{"status": "open"}))
	s := New(env.Log, env.Tickets, env.Messages, env.JobRuns, env.Jobs, Config{Window: 5 * time.Minute})
	return env, s
}

func message(t *testing.T, env *pipelinetest.Env, id string, fromMe bool, body string, age time.Duration) {
	t.Helper()
	require.NoError(t, env.Messages.Create(dbctx.Context{Ctx: context.Background()}, &types.Message{
		ID:        id,
		CompanyID: pipelinetest.CompanyID,
		TicketID:  pipelinetest.TicketID,
		Body:      body,
		FromMe:    fromMe,
		MediaType: "chat",
		RemoteJID: pipelinetest.ContactJID,
		CreatedAt: time.Now().UTC().Add(-age),
	}))
}

func TestUnansweredTurnIsReenqueuedOnce(t *testing.T) {
	env, s := setup(t)
	message(t, env, "m1", true, "Olá! Em que posso ajudar?", time.Hour)
	message(t, env, "m2", false, "quero marcar", 20*time.Minute)
	message(t, env, "m3", false, "amanhã às 10h", 10*time.Minute)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	jobs := env.JobsOfType(t, prompt.JobTypeDispatch)
	require.Len(t, jobs, 1)
	p := pipelinetest.DecodePayload(t, jobs[0])
	require.Equal(t, "quero marcar\namanhã às 10h", p.Content.Flatten())
	require.Equal(t, pipelinetest.ContactJID, p.RemoteJID)
	require.Equal(t, pipelinetest.PromptID, p.ConfigID)

	// Pending dispatch, then already swept.
	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.NoError(t, env.DB.Model(&types.JobRun{}).Where("id = ?", jobs[0].ID).Update("status", "succeeded").Error)
	n, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecentInboundIsLeftAlone(t *testing.T) {
	env, s := setup(t)
	message(t, env, "m1", false, "oi", time.Minute)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestAnsweredTicketIsLeftAlone(t *testing.T) {
	env, s := setup(t)
	message(t, env, "m1", false, "oi", time.Hour)
	message(t, env, "m2", true, "Olá!", 50*time.Minute)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTicketOutsideAssistantFlowIsIgnored(t *testing.T) {
	env, s := setup(t)
	require.NoError(t, env.Tickets.UpdateFields(dbctx.Context{Ctx: context.Background()}, pipelinetest.TicketID,
		map[string]interface{}{"queue_id": pipelinetest.SalesQueue}))
	message(t, env, "m1", false, "oi", time.Hour)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestUnanswered(t *testing.T) {
	msgs := []*types.Message{{ID: "c"}, {ID: "b"}, {ID: "a", FromMe: true}, {ID: "z"}}
	got := unanswered(msgs)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].ID)
}
