package prompt

import (
	"context"
	"strings"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/platform/transport"
)

// Fallback tells the contact something went wrong when a turn cannot be
// answered. With an empty message it does nothing.
type Fallback struct {
	log       *logger.Logger
	tickets   ticketrepo.TicketRepo
	transport transport.Transport
	message   string
}

func NewFallback(baseLog *logger.Logger, tickets ticketrepo.TicketRepo, tr transport.Transport, message string) *Fallback {
	return &Fallback{
		log:       baseLog.With("component", "Fallback"),
		tickets:   tickets,
		transport: tr,
		message:   strings.TrimSpace(message),
	}
}

func (f *Fallback) Enabled() bool {
	return f != nil && f.message != "" && f.transport != nil
}

// Send delivers the fallback message to the ticket's chat. Errors are logged.
func (f *Fallback) Send(ctx context.Context, p Payload, reason string) {
	if !f.Enabled() {
		return
	}
	t, err := f.tickets.GetByID(dbctx.Context{Ctx: ctx}, p.CompanyID, p.TicketID)
	if err != nil || t == nil {
		f.log.Warn("Fallback skipped: ticket unavailable", "ticket_id", p.TicketID, "reason", reason, "error", err)
		return
	}
	to := transport.TicketTarget(t, p.RemoteJID)
	if to.JID == "" {
		f.log.Warn("Fallback skipped: no chat address", "ticket_id", p.TicketID, "reason", reason)
		return
	}
	if _, err := f.transport.SendText(ctx, to, f.message); err != nil {
		f.log.Warn("Fallback send failed", "ticket_id", p.TicketID, "reason", reason, "error", err)
		return
	}
	f.log.Info("Fallback message sent", "ticket_id", p.TicketID, "reason", reason)
}

// Exhausted is shared by every stage: the turn is lost once any stage runs
// out of attempts.
func (f *Fallback) Exhausted(jc *runtime.Context) {
	if !f.Enabled() || jc == nil || jc.Job == nil {
		return
	}
	var p Payload
	if err := jc.Decode(&p); err != nil {
		f.log.Warn("Fallback skipped: bad payload", "job_id", jc.Job.ID, "error", err)
		return
	}
	f.Send(jc.Ctx, p, "exhausted:"+jc.Job.JobType)
}
