package services

import (
	"context"
	"fmt"
	"time"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/realtime/bus"
)

// =========================
// Realtime notifier
// =========================

// Notifier fans tenant-scoped events out to connected clients. Every method
// is fire-and-forget: publish errors are logged, never returned.
type Notifier interface {
	TicketUpdated(ctx context.Context, t *types.Ticket)
	TicketRemoved(ctx context.Context, companyID int64, fromStatus string, ticketID int64)
	ScheduleCreated(ctx context.Context, companyID int64, s *types.Schedule)
	ScheduleCanceled(ctx context.Context, companyID int64, s *types.Schedule)
	MessageCreated(ctx context.Context, t *types.Ticket, m *types.Message)

	JobDone(job *types.JobRun)
	JobFailed(job *types.JobRun, stage string, msg string)
}

type notifier struct {
	log *logger.Logger
	bus bus.Bus
}

// NewNotifier returns a Notifier publishing on b. A nil bus logs and drops.
func NewNotifier(baseLog *logger.Logger, b bus.Bus) Notifier {
	return &notifier{log: baseLog.With("service", "Notifier"), bus: b}
}

func companyChannel(companyID int64, topic string) string {
	return fmt.Sprintf("company-%d-%s", companyID, topic)
}

func (n *notifier) publish(ctx context.Context, ev bus.Event) {
	if n == nil {
		return
	}
	if n.bus == nil {
		n.log.Debug("No realtime bus; dropping event", "channel", ev.Channel, "event", ev.Event)
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := n.bus.Publish(pctx, ev); err != nil {
		n.log.Warn("Realtime publish failed", "channel", ev.Channel, "event", ev.Event, "error", err)
	}
}

func (n *notifier) TicketUpdated(ctx context.Context, t *types.Ticket) {
	if t == nil {
		return
	}
	n.publish(ctx, bus.Event{
		Channel: companyChannel(t.CompanyID, "ticket"),
		Event:   "ticket",
		Data:    map[string]any{"action": "update", "ticket": t},
	})
}

func (n *notifier) TicketRemoved(ctx context.Context, companyID int64, fromStatus string, ticketID int64) {
	if fromStatus == "" {
		return
	}
	n.publish(ctx, bus.Event{
		Channel: companyChannel(companyID, fromStatus),
		Event:   "ticket",
		Data:    map[string]any{"action": "delete", "ticketId": ticketID},
	})
}

func (n *notifier) ScheduleCreated(ctx context.Context, companyID int64, s *types.Schedule) {
	n.publish(ctx, bus.Event{
		Channel: companyChannel(companyID, "mainchannel"),
		Event:   "schedule",
		Data:    map[string]any{"action": "create", "schedule": s},
	})
}

func (n *notifier) ScheduleCanceled(ctx context.Context, companyID int64, s *types.Schedule) {
	n.publish(ctx, bus.Event{
		Channel: companyChannel(companyID, "mainchannel"),
		Event:   "schedule",
		Data:    map[string]any{"action": "cancel", "schedule": s},
	})
}

func (n *notifier) MessageCreated(ctx context.Context, t *types.Ticket, m *types.Message) {
	if t == nil || m == nil {
		return
	}
	n.publish(ctx, bus.Event{
		Channel: companyChannel(t.CompanyID, "appMessage"),
		Event:   "appMessage",
		Data: map[string]any{
			"action":  "create",
			"message": m,
			"ticket":  t,
			"contact": t.Contact,
		},
	})
}

// =========================
// Job notifier
// =========================

func (n *notifier) JobDone(job *types.JobRun) {
	if job == nil {
		return
	}
	n.publish(context.Background(), bus.Event{
		Channel: companyChannel(job.CompanyID, "job"),
		Event:   "job",
		Data: map[string]any{
			"action":   "done",
			"job_id":   job.ID.String(),
			"job_type": job.JobType,
			"ticketId": job.EntityID,
			"stage":    job.Stage,
		},
	})
}

func (n *notifier) JobFailed(job *types.JobRun, stage string, msg string) {
	if job == nil {
		return
	}
	n.publish(context.Background(), bus.Event{
		Channel: companyChannel(job.CompanyID, "job"),
		Event:   "job",
		Data: map[string]any{
			"action":   "failed",
			"job_id":   job.ID.String(),
			"job_type": job.JobType,
			"ticketId": job.EntityID,
			"stage":    stage,
			"error":    msg,
			"attempt":  job.Attempts,
		},
	})
}
