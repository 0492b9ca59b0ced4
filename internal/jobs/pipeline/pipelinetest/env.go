// Package pipelinetest wires the assistant pipeline stages against an
// in-memory database, transport and provider.
package pipelinetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	"github.com/yungbote/assistflow-backend/internal/data/repos/testutil"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/jobs/worker"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/pkg/pointers"
	"github.com/yungbote/assistflow-backend/internal/platform/openai/openaitest"
	"github.com/yungbote/assistflow-backend/internal/platform/transport/transporttest"
	"github.com/yungbote/assistflow-backend/internal/realtime/bus"
	"github.com/yungbote/assistflow-backend/internal/services"
)

const (
	CompanyID   int64 = 1
	TicketID    int64 = 10
	ContactID   int64 = 3
	PromptID    int64 = 4
	AIQueueID   int64 = 2
	SalesQueue  int64 = 5
	APIKey            = "sk-test"
	ContactJID        = "5511988887777@s.whatsapp.net"
	FallbackMsg       = "Desculpe, não consegui responder agora."
)

type Env struct {
	DB  *gorm.DB
	Log *logger.Logger

	Bus       *bus.MemoryBus
	Notify    services.Notifier
	JobRuns   jobrepo.JobRunRepo
	Jobs      services.JobService
	Tickets   ticketrepo.TicketRepo
	Whatsapps ticketrepo.WhatsappRepo
	Messages  ticketrepo.MessageRepo
	TicketSvc services.TicketService
	Markers   services.DeliveryMarkers
	Transport *transporttest.Recorder
	AI        *openaitest.Fake
	Fallback  *prompt.Fallback
}

func New(t *testing.T) *Env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	e := &Env{
		DB:        db,
		Log:       log,
		Bus:       bus.NewMemoryBus(),
		Transport: &transporttest.Recorder{},
		AI:        &openaitest.Fake{},
		Markers:   services.NewMemoryDeliveryMarkers(0),
	}
	e.Notify = services.NewNotifier(log, e.Bus)
	e.JobRuns = jobrepo.NewJobRunRepo(db, log)
	e.Jobs = services.NewJobService(db, log, e.JobRuns, NoBackoff())
	e.Tickets = ticketrepo.NewTicketRepo(db, log)
	e.Whatsapps = ticketrepo.NewWhatsappRepo(db, log)
	e.Messages = ticketrepo.NewMessageRepo(db, log)
	e.TicketSvc = services.NewTicketService(log, e.Tickets, e.Notify)
	e.Fallback = prompt.NewFallback(log, e.Tickets, e.Transport, FallbackMsg)
	return e
}

// NoBackoff keeps the stage attempt budgets but retries immediately.
func NoBackoff() map[string]services.RetryPolicy {
	policies := services.DefaultRetryPolicies(0)
	for jobType, p := range policies {
		p.Backoff = 0
		policies[jobType] = p
	}
	return policies
}

/*
Seed creates ticket 10 for contact 3 on session 1, in AI queue 2 whose prompt
4 holds config. Session 2 serves sales queue 5.
*/
func (e *Env) Seed(t *testing.T, config string) *types.Ticket {
	t.Helper()
	db := e.DB
	require.NoError(t, db.Create(&types.Prompt{ID: PromptID, CompanyID: CompanyID, QueueID: AIQueueID,
		Name: "Atendente", Prompt: config, APIKey: APIKey, Voice: "voz-padrao"}).Error)
	require.NoError(t, db.Create(&types.Whatsapp{ID: 1, CompanyID: CompanyID, Name: "Recepção",
		Queues: []types.Queue{{ID: AIQueueID, CompanyID: CompanyID, Name: "IA", PromptID: pointers.Int64(PromptID)}}}).Error)
	require.NoError(t, db.Create(&types.Whatsapp{ID: 2, CompanyID: CompanyID, Name: "Vendas",
		Queues: []types.Queue{{ID: SalesQueue, CompanyID: CompanyID, Name: "Vendas"}}}).Error)
	require.NoError(t, db.Create(&types.Contact{ID: ContactID, CompanyID: CompanyID, Name: "Ana", Number: "5511988887777"}).Error)
	ticket := &types.Ticket{
		ID:             TicketID,
		CompanyID:      CompanyID,
		ContactID:      ContactID,
		QueueID:        pointers.Int64(AIQueueID),
		WhatsappID:     pointers.Int64(1),
		PromptID:       pointers.Int64(PromptID),
		Status:         "pending",
		UseIntegration: true,
	}
	require.NoError(t, db.Create(ticket).Error)
	return ticket
}

// Payload is an inbound turn for the seeded ticket.
func Payload(text string) prompt.Payload {
	return prompt.Payload{
		TicketID:  TicketID,
		CompanyID: CompanyID,
		ContactID: ContactID,
		ConfigID:  PromptID,
		Content:   prompt.TextContent(text),
		RemoteJID: ContactJID,
	}
}

func (e *Env) Enqueue(t *testing.T, jobType string, p prompt.Payload) *types.JobRun {
	t.Helper()
	job, err := e.Jobs.Enqueue(dbctx.Context{Ctx: context.Background()}, jobType, p, time.Time{})
	require.NoError(t, err)
	return job
}

// Worker runs the given stages with no backoff between attempts.
func (e *Env) Worker(t *testing.T, handlers ...runtime.Handler) *worker.Worker {
	t.Helper()
	reg := runtime.NewRegistry()
	for _, h := range handlers {
		require.NoError(t, reg.Register(h))
	}
	return worker.NewWorker(e.DB, e.Log, e.JobRuns, reg, nil, worker.Config{})
}

// Drain runs jobs until none is runnable and returns how many ran.
func Drain(t *testing.T, w *worker.Worker) int {
	t.Helper()
	n := 0
	for ; n < 200; n++ {
		ran, err := w.RunOnce(context.Background())
		require.NoError(t, err)
		if !ran {
			return n
		}
	}
	t.Fatalf("drain: jobs still runnable after %d runs", n)
	return n
}

// RunOne runs exactly one job and fails the test when none was runnable.
func RunOne(t *testing.T, w *worker.Worker) {
	t.Helper()
	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran, "no runnable job")
}

// JobsOfType lists rows of jobType, oldest first.
func (e *Env) JobsOfType(t *testing.T, jobType string) []*types.JobRun {
	t.Helper()
	var out []*types.JobRun
	require.NoError(t, e.DB.Where("job_type = ?", jobType).Order("created_at ASC").Find(&out).Error)
	return out
}

func (e *Env) Reload(t *testing.T, job *types.JobRun) *types.JobRun {
	t.Helper()
	got, err := e.JobRuns.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func (e *Env) Ticket(t *testing.T) *types.Ticket {
	t.Helper()
	got, err := e.Tickets.GetByID(dbctx.Context{Ctx: context.Background()}, CompanyID, TicketID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func DecodePayload(t *testing.T, job *types.JobRun) prompt.Payload {
	t.Helper()
	var p prompt.Payload
	require.NoError(t, json.Unmarshal(job.Payload, &p))
	return p
}

// Outcome reads the outcome a stage recorded in the job result.
func Outcome(t *testing.T, job *types.JobRun) string {
	t.Helper()
	var res map[string]any
	require.NoError(t, json.Unmarshal(job.Result, &res))
	out, _ := res["outcome"].(string)
	return out
}
