package run_poll

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	jobrt "github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/routing"
)

const (
	outcomeDropped     = "dropped"
	outcomeCompleted   = "completed"
	outcomeToolCalls   = "requires_action"
	outcomeTerminal    = "terminal"
	outcomeRescheduled = "rescheduled"

	// failedKeyword selects the relation a ticket is transferred through when
	// the run cannot produce a reply.
	failedKeyword = "failed"
	reasonTimeout = "timeout"
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
	if payload.ThreadID == "" || payload.RunID == "" {
		jc.Fail("validate", fmt.Errorf("missing thread_id or run_id"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	apiKey, err := prompt.AssistantKey(dbc, p.tickets, payload)
	if err != nil {
		jc.Fail("credential", err)
		return nil
	}
	run, err := p.ai.RetrieveRun(jc.Ctx, apiKey, payload.ThreadID, payload.RunID)
	if err != nil {
		jc.Fail("retrieve", err)
		return nil
	}
	log := p.log.With("ticket_id", payload.TicketID, "run_id", run.ID, "status", run.Status, "poll", payload.PollCount)

	if droppable(run.LastErrorCode) {
		log.Warn("Run dropped", "code", run.LastErrorCode, "message", run.LastErrorMessage)
		p.succeed(jc, outcomeDropped, run)
		return nil
	}

	switch run.Status {
	case openai.RunCompleted:
		if _, err := p.jobs.Enqueue(dbc, prompt.JobTypeDelivery, payload.WithPollCount(0), time.Time{}); err != nil {
			jc.Fail("enqueue", err)
			return nil
		}
		p.succeed(jc, outcomeCompleted, run)

	case openai.RunRequiresAction:
		if len(run.ToolCalls) == 0 {
			jc.Fail("tools", fmt.Errorf("run %s requires action without tool calls", run.ID))
			return nil
		}
		calls := make([]prompt.ToolCall, 0, len(run.ToolCalls))
		for _, tc := range run.ToolCalls {
			calls = append(calls, prompt.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		if _, err := p.jobs.Enqueue(dbc, prompt.JobTypeTools, payload.WithToolCalls(calls), time.Time{}); err != nil {
			jc.Fail("enqueue", err)
			return nil
		}
		log.Debug("Run requires action", "calls", len(calls))
		p.succeed(jc, outcomeToolCalls, run)

	case openai.RunFailed, openai.RunCancelled, openai.RunExpired, openai.RunIncomplete:
		log.Warn("Run ended without reply", "code", run.LastErrorCode, "message", run.LastErrorMessage)
		p.terminal(jc, payload, run.Status)
		p.succeed(jc, outcomeTerminal, run)

	default:
		// queued, in_progress, cancelling and anything the provider adds later.
		next := payload.PollCount + 1
		if next >= p.maxPolls {
			log.Warn("Run poll limit reached", "max", p.maxPolls)
			p.terminal(jc, payload, reasonTimeout)
			p.succeed(jc, outcomeTerminal, run)
			return nil
		}
		if _, err := p.jobs.Enqueue(dbc, prompt.JobTypePoll, payload.WithPollCount(next), time.Now().Add(p.interval)); err != nil {
			jc.Fail("enqueue", err)
			return nil
		}
		p.succeed(jc, outcomeRescheduled, run)
	}
	return nil
}

func droppable(code string) bool {
	switch strings.TrimSpace(code) {
	case openai.ErrCodeInvalidImageURL, openai.ErrCodeRateLimitExceeded:
		return true
	}
	return false
}

// terminal applies the routing fallback for a run that will never answer and
// then tells the contact.
func (p *Pipeline) terminal(jc *jobrt.Context, payload prompt.Payload, reason string) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	t, err := p.tickets.GetByID(dbc, payload.CompanyID, payload.TicketID)
	if err != nil || t == nil {
		p.log.Warn("Terminal run: ticket unavailable", "ticket_id", payload.TicketID, "error", err)
	} else if t.Queue != nil && t.Queue.Prompt != nil {
		cfg := routing.Parse(t.Queue.Prompt.Prompt)
		if rel, ok := cfg.Match(failedKeyword); ok {
			if err := p.ticketSvc.Transfer(dbc, t, rel.QueueID, nil); err != nil {
				p.log.Warn("Terminal run: transfer failed", "ticket_id", t.ID, "queue_id", rel.QueueID, "error", err)
			} else {
				p.log.Info("Ticket transferred after failed run", "ticket_id", t.ID, "queue_id", rel.QueueID, "reason", reason)
			}
		}
	}
	p.fallback.Send(jc.Ctx, payload, reason)
}

func (p *Pipeline) succeed(jc *jobrt.Context, outcome string, run openai.Run) {
	jc.Succeed(outcome, map[string]any{
		"outcome":    outcome,
		"run_status": run.Status,
		"error_code": run.LastErrorCode,
	})
}

func (p *Pipeline) Exhausted(jc *jobrt.Context) { p.fallback.Exhausted(jc) }
