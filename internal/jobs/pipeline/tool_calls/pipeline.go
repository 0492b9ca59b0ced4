package tool_calls

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/functions"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	jobrt "github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
)

const (
	outcomeSubmitted = "submitted"
	stageSubmitted   = "submitted"
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
	if len(payload.ToolCalls) == 0 {
		jc.Fail("validate", fmt.Errorf("no tool calls"))
		return nil
	}

	dbc := dbctx.Context{Ctx: jc.Ctx}
	// When an earlier attempt already submitted outputs for this run, only
	// the poll enqueue is left.
	submitted := jc.Job.Attempts > 1 && jc.Checkpointed("run_id") == payload.RunID
	if !submitted {
		if err := p.callAndSubmit(jc, dbc, payload); err != nil {
			return nil
		}
	}
	if _, err := p.jobs.Enqueue(dbc, prompt.JobTypePoll, payload.WithPollCount(0), time.Now().Add(p.interval)); err != nil {
		jc.Fail("enqueue", err)
		return nil
	}
	jc.Succeed(outcomeSubmitted, map[string]any{
		"outcome": outcomeSubmitted,
		"calls":   len(payload.ToolCalls),
		"run_id":  payload.RunID,
		"resumed": submitted,
	})
	return nil
}

// callAndSubmit runs every requested function and hands the outputs to the
// run. Failures are recorded on jc; the returned error only stops Run.
func (p *Pipeline) callAndSubmit(jc *jobrt.Context, dbc dbctx.Context, payload prompt.Payload) error {
	t, err := p.tickets.GetByID(dbc, payload.CompanyID, payload.TicketID)
	if err != nil {
		jc.Fail("load_ticket", err)
		return err
	}
	if t == nil {
		err = fmt.Errorf("ticket %d not found", payload.TicketID)
		jc.Fail("load_ticket", err)
		return err
	}
	apiKey, err := prompt.AssistantKey(dbc, p.tickets, payload)
	if err != nil {
		jc.Fail("credential", err)
		return err
	}
	acct := accountFor(t)

	jc.Progress("tools", 30)
	outputs := make([]openai.ToolOutput, len(payload.ToolCalls))
	g, gctx := errgroup.WithContext(jc.Ctx)
	for i, call := range payload.ToolCalls {
		g.Go(func() error {
			start := time.Now()
			out, err := p.calls.Call(gctx, call.Name, json.RawMessage(call.Arguments), acct)
			if err != nil {
				return fmt.Errorf("%s: %w", call.Name, err)
			}
			p.log.Debug("Function called",
				"ticket_id", t.ID,
				"function", call.Name,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			outputs[i] = openai.ToolOutput{ToolCallID: call.ID, Output: out}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		jc.Fail("tools", err)
		return err
	}

	jc.Progress("submit", 70)
	if _, err := p.ai.SubmitToolOutputs(jc.Ctx, apiKey, payload.ThreadID, payload.RunID, outputs); err != nil {
		jc.Fail("submit", err)
		return err
	}
	jc.Checkpoint(stageSubmitted, map[string]any{"run_id": payload.RunID})
	return nil
}

func accountFor(t *types.Ticket) functions.Account {
	acct := functions.Account{
		TicketID:  t.ID,
		CompanyID: t.CompanyID,
		ContactID: t.ContactID,
	}
	if t.UserID != nil {
		acct.UserID = *t.UserID
	}
	if t.QueueID != nil {
		acct.QueueID = *t.QueueID
	}
	if t.Contact != nil {
		acct.PhoneNumber = t.Contact.Number
		acct.ContactName = t.Contact.Name
	}
	return acct
}

func (p *Pipeline) Exhausted(jc *jobrt.Context) { p.fallback.Exhausted(jc) }
