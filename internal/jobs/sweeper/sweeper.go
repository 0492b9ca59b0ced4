package sweeper

import (
	"context"
	"strings"
	"sync"
	"time"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type Config struct {
	Interval time.Duration
	// Window is how long an inbound message may wait for a reply before it
	// is considered lost.
	Window time.Duration
	// Batch caps the tickets inspected per sweep.
	Batch int
	// Lookback caps the messages read per ticket.
	Lookback int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.Batch <= 0 {
		c.Batch = 100
	}
	if c.Lookback <= 0 {
		c.Lookback = 20
	}
	return c
}

/*
Sweeper re-enqueues assistant turns that were lost: open tickets served by a
prompt whose newest messages are inbound, older than the window, with no
pipeline job pending. Each unanswered message is swept at most once per
process.
*/
type Sweeper struct {
	log      *logger.Logger
	tickets  ticketrepo.TicketRepo
	messages ticketrepo.MessageRepo
	jobRuns  jobrepo.JobRunRepo
	jobs     services.JobService
	cfg      Config
	now      func() time.Time

	mu    sync.Mutex
	swept map[int64]string
}

func New(baseLog *logger.Logger, tickets ticketrepo.TicketRepo, messages ticketrepo.MessageRepo, jobRuns jobrepo.JobRunRepo, jobs services.JobService, cfg Config) *Sweeper {
	return &Sweeper{
		log:      baseLog.With("component", "Sweeper"),
		tickets:  tickets,
		messages: messages,
		jobRuns:  jobRuns,
		jobs:     jobs,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		swept:    map[int64]string{},
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting sweeper", "interval", s.cfg.Interval.String(), "window", s.cfg.Window.String())
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.log.Info("Sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(ctx); err != nil {
					s.log.Warn("Sweep failed", "error", err)
				}
			}
		}
	}()
}

// SweepOnce inspects one batch of tickets and returns how many turns it
// re-enqueued.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	dbc := dbctx.Context{Ctx: ctx}
	tickets, err := s.tickets.ListOpenWithPrompt(dbc, s.cfg.Batch)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().UTC().Add(-s.cfg.Window)
	enqueued := 0
	for _, t := range tickets {
		if ctx.Err() != nil {
			return enqueued, ctx.Err()
		}
		ok, err := s.sweepTicket(dbc, t, cutoff)
		if err != nil {
			s.log.Warn("Sweep ticket failed", "ticket_id", t.ID, "error", err)
			continue
		}
		if ok {
			enqueued++
		}
	}
	if enqueued > 0 {
		s.log.Info("Unanswered turns re-enqueued", "count", enqueued)
	}
	return enqueued, nil
}

func (s *Sweeper) sweepTicket(dbc dbctx.Context, t *types.Ticket, cutoff time.Time) (bool, error) {
	msgs, err := s.messages.ListLatest(dbc, t.ID, s.cfg.Lookback)
	if err != nil {
		return false, err
	}
	pending := unanswered(msgs)
	if len(pending) == 0 || pending[0].CreatedAt.After(cutoff) {
		return false, nil
	}
	newest := pending[0].ID
	if s.alreadySwept(t.ID, newest) {
		return false, nil
	}
	busy, err := s.jobRuns.HasRunnableForEntity(dbc, jobstatus.EntityTicket, t.ID, prompt.JobTypes())
	if err != nil {
		return false, err
	}
	if busy {
		return false, nil
	}

	bodies := make([]string, 0, len(pending))
	for i := len(pending) - 1; i >= 0; i-- {
		if b := strings.TrimSpace(pending[i].Body); b != "" {
			bodies = append(bodies, b)
		}
	}
	if len(bodies) == 0 {
		return false, nil
	}
	p := prompt.Payload{
		TicketID:  t.ID,
		CompanyID: t.CompanyID,
		ContactID: t.ContactID,
		Content:   prompt.TextContent(strings.Join(bodies, "\n")),
		RemoteJID: pending[0].RemoteJID,
		QueueID:   t.QueueID,
	}
	if t.Queue != nil && t.Queue.Prompt != nil {
		p.ConfigID = t.Queue.Prompt.ID
	}
	if p.RemoteJID == "" && t.Contact != nil {
		p.RemoteJID = t.Contact.JID()
	}
	if _, err := s.jobs.Enqueue(dbc, prompt.JobTypeDispatch, p, time.Time{}); err != nil {
		return false, err
	}
	s.markSwept(t.ID, newest)
	s.log.Info("Re-enqueued unanswered turn", "ticket_id", t.ID, "messages", len(bodies))
	return true, nil
}

// unanswered returns the inbound messages newer than the last outbound one,
// newest first.
func unanswered(newestFirst []*types.Message) []*types.Message {
	var out []*types.Message
	for _, m := range newestFirst {
		if m.FromMe {
			break
		}
		out = append(out, m)
	}
	return out
}

func (s *Sweeper) alreadySwept(ticketID int64, messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swept[ticketID] == messageID
}

func (s *Sweeper) markSwept(ticketID int64, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swept[ticketID] = messageID
}
