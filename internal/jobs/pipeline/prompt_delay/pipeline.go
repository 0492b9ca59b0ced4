package prompt_delay

import (
	"time"

	"gorm.io/gorm"

	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	jobrt "github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

const (
	outcomeSuperseded = "superseded"
	outcomeDispatched = "dispatched"
)

// Run collapses the pending delay jobs of a ticket into one dispatch. Only
// the oldest pending delay job proceeds; it cancels the rest inside the same
// transaction that enqueues the dispatch.
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

	outcome := outcomeSuperseded
	var canceled int64
	err := p.db.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		pending, err := p.jobRuns.ListPendingForEntity(dbc, prompt.JobTypeDelay, jobstatus.EntityTicket, payload.TicketID, true)
		if err != nil {
			return err
		}
		if len(pending) == 0 || pending[0].ID != jc.Job.ID {
			return nil
		}
		canceled, err = p.jobRuns.CancelPendingForEntity(dbc, prompt.JobTypeDelay, jobstatus.EntityTicket, payload.TicketID, nil, jc.Job.ID)
		if err != nil {
			return err
		}
		if _, err := p.jobs.Enqueue(dbc, prompt.JobTypeDispatch, payload.DelayElapsed(), time.Time{}); err != nil {
			return err
		}
		outcome = outcomeDispatched
		return nil
	})
	if err != nil {
		jc.Fail("debounce", err)
		return nil
	}

	p.log.Debug("Delay window closed",
		"ticket_id", payload.TicketID,
		"job_id", jc.Job.ID,
		"outcome", outcome,
		"canceled", canceled,
	)
	jc.Succeed(outcome, map[string]any{
		"outcome":   outcome,
		"ticket_id": payload.TicketID,
		"canceled":  canceled,
	})
	return nil
}

func (p *Pipeline) Exhausted(jc *jobrt.Context) { p.fallback.Exhausted(jc) }
