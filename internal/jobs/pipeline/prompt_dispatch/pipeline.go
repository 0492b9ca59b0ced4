package prompt_dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	ticketstatus "github.com/yungbote/assistflow-backend/internal/domain/tickets"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	jobrt "github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/routing"
)

const (
	stageEnqueue    = "enqueue"
	stageRunCreated = "run_created"

	outcomeNoPrompt   = "no_prompt"
	outcomeDelayed    = "delayed"
	outcomeRunStarted = "run_started"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	var payload prompt.Payload
	if err := jc.Decode(&payload); err != nil {
		jc.Fail("validate", err)
		return nil
	}
	if err := payload.Validate(); err != nil {
		jc.Fail("validate", err)
		return nil
	}
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx}
	// A previous attempt that failed while enqueueing already appended the
	// turn, and may have started the run.
	var priorRun string
	if jc.Job.Attempts > 1 {
		priorRun = jc.Checkpointed("run_id")
	}
	resumed := jc.Job.Attempts > 1 && (jc.Job.Stage == stageEnqueue || priorRun != "")

	ticket, err := p.tickets.GetByID(dbc, payload.CompanyID, payload.TicketID)
	if err != nil {
		jc.Fail("load_ticket", err)
		return nil
	}
	if ticket == nil {
		jc.Fail("load_ticket", fmt.Errorf("ticket %d not found", payload.TicketID))
		return nil
	}
	if ticket.Queue == nil || ticket.Queue.Prompt == nil {
		// Transferred out of the assistant flow since the message arrived.
		jc.Succeed(outcomeNoPrompt, map[string]any{"outcome": outcomeNoPrompt, "ticket_id": ticket.ID})
		return nil
	}
	cfg := ticket.Queue.Prompt
	apiKey := strings.TrimSpace(payload.AssistantKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(cfg.APIKey)
	}
	if apiKey == "" {
		jc.Fail("credential", fmt.Errorf("no assistant credential for prompt %d", cfg.ID))
		return nil
	}

	jc.Progress("thread", 20)
	threadID := strings.TrimSpace(payload.ThreadID)
	if threadID == "" {
		threadID = ticket.ThreadID
	}
	if threadID == "" {
		threadID, err = p.ensureThread(jc, ticket.ID, apiKey)
		if err != nil {
			jc.Fail("thread", err)
			return nil
		}
	}

	if ticket.Status != ticketstatus.StatusOpen {
		if err := p.ticketSvc.Open(dbc, ticket); err != nil {
			jc.Fail("open_ticket", err)
			return nil
		}
	}

	if !payload.Content.IsEmpty() && !resumed {
		jc.Progress("message", 40)
		if err := p.ai.AddUserMessage(ctx, apiKey, threadID, messageParts(payload.Content)); err != nil {
			jc.Fail("message", err)
			return nil
		}
	}

	// Later stages read the stored key back through ConfigID.
	next := payload.WithThread(threadID)
	next.ConfigID = cfg.ID
	if next.RemoteJID == "" && ticket.Contact != nil {
		next.RemoteJID = ticket.Contact.JID()
	}

	if !payload.DelaySatisfied {
		if err := p.scheduleDelay(jc, next); err != nil {
			jc.Fail(stageEnqueue, err)
			return nil
		}
		jc.Succeed(outcomeDelayed, map[string]any{"outcome": outcomeDelayed, "thread_id": threadID})
		return nil
	}

	assistantID := routing.AssistantID(cfg.Prompt)
	if assistantID == "" {
		jc.Fail("config", fmt.Errorf("prompt %d has no assistant id", cfg.ID))
		return nil
	}
	if _, err := p.jobRuns.CancelPendingForEntity(dbc, prompt.JobTypeDelay, jobstatus.EntityTicket, ticket.ID,
		[]string{jobstatus.StatusQueued}, uuid.Nil); err != nil {
		jc.Fail(stageEnqueue, err)
		return nil
	}
	runID := priorRun
	if runID == "" {
		jc.Progress("run", 70)
		run, err := p.ai.CreateRun(ctx, apiKey, threadID, assistantID)
		if err != nil {
			jc.Fail("run", err)
			return nil
		}
		runID = run.ID
		jc.Checkpoint(stageRunCreated, map[string]any{"run_id": runID, "thread_id": threadID})
	}
	if _, err := p.jobs.Enqueue(dbc, prompt.JobTypePoll, next.WithRun(runID), time.Now().Add(p.timing.PollInterval)); err != nil {
		jc.Fail(stageEnqueue, err)
		return nil
	}
	p.log.Info("Run started",
		"ticket_id", ticket.ID,
		"thread_id", threadID,
		"run_id", runID,
		"assistant_id", assistantID,
		"resumed", priorRun != "",
	)
	jc.Succeed(outcomeRunStarted, map[string]any{
		"outcome":   outcomeRunStarted,
		"thread_id": threadID,
		"run_id":    runID,
	})
	return nil
}

// ensureThread creates a remote thread and binds it to the ticket. When a
// concurrent dispatch bound one first, ours is deleted and theirs is used.
func (p *Pipeline) ensureThread(jc *jobrt.Context, ticketID int64, apiKey string) (string, error) {
	created, err := p.ai.CreateThread(jc.Ctx, apiKey)
	if err != nil {
		return "", err
	}
	stored, won, err := p.tickets.SetThreadIDIfEmpty(dbctx.Context{Ctx: jc.Ctx}, ticketID, created)
	if err != nil {
		p.discardThread(jc, apiKey, created)
		return "", fmt.Errorf("persist thread id: %w", err)
	}
	if !won {
		p.log.Info("Thread already bound; discarding ours", "ticket_id", ticketID, "kept", stored, "discarded", created)
		p.discardThread(jc, apiKey, created)
	}
	return stored, nil
}

func (p *Pipeline) discardThread(jc *jobrt.Context, apiKey, threadID string) {
	if err := p.ai.DeleteThread(jc.Ctx, apiKey, threadID); err != nil {
		p.log.Warn("Delete orphan thread failed", "thread_id", threadID, "error", err)
	}
}

// scheduleDelay restarts the debounce window: queued delay jobs of the ticket
// are canceled and a fresh one is enqueued.
func (p *Pipeline) scheduleDelay(jc *jobrt.Context, next prompt.Payload) error {
	return p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		if _, err := p.jobRuns.CancelPendingForEntity(dbc, prompt.JobTypeDelay, jobstatus.EntityTicket, next.TicketID,
			[]string{jobstatus.StatusQueued}, uuid.Nil); err != nil {
			return err
		}
		_, err := p.jobs.Enqueue(dbc, prompt.JobTypeDelay, next, time.Now().Add(p.timing.Delay))
		return err
	})
}

// messageParts keeps images as image parts so the assistant can see them.
func messageParts(c prompt.Content) []openai.MessagePart {
	if len(c.Parts) == 0 {
		return []openai.MessagePart{openai.TextPart(strings.TrimSpace(c.Text))}
	}
	out := make([]openai.MessagePart, 0, len(c.Parts)+1)
	if t := strings.TrimSpace(c.Text); t != "" {
		out = append(out, openai.TextPart(t))
	}
	for _, part := range c.Parts {
		switch {
		case part.ImageURL != nil && strings.TrimSpace(part.ImageURL.URL) != "":
			out = append(out, openai.ImagePart(strings.TrimSpace(part.ImageURL.URL)))
		case strings.TrimSpace(part.Text) != "":
			out = append(out, openai.TextPart(strings.TrimSpace(part.Text)))
		}
	}
	return out
}

func (p *Pipeline) Exhausted(jc *jobrt.Context) { p.fallback.Exhausted(jc) }
