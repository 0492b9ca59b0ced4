package services

import (
	"fmt"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	ticketstatus "github.com/yungbote/assistflow-backend/internal/domain/tickets"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type TicketService interface {
	// Open marks the ticket open and announces it.
	Open(dbc dbctx.Context, t *types.Ticket) error
	// Transfer moves the ticket to queueID, leaving the assistant flow. When
	// whatsappID is set the ticket is also rebound to that session.
	Transfer(dbc dbctx.Context, t *types.Ticket, queueID int64, whatsappID *int64) error
}

type ticketService struct {
	log    *logger.Logger
	repo   ticketrepo.TicketRepo
	notify Notifier
}

func NewTicketService(baseLog *logger.Logger, repo ticketrepo.TicketRepo, notify Notifier) TicketService {
	return &ticketService{
		log:    baseLog.With("service", "TicketService"),
		repo:   repo,
		notify: notify,
	}
}

func (s *ticketService) Open(dbc dbctx.Context, t *types.Ticket) error {
	if t == nil {
		return fmt.Errorf("nil ticket")
	}
	if t.Status == ticketstatus.StatusOpen {
		return nil
	}
	prev := t.Status
	if err := s.repo.UpdateFields(dbc, t.ID, map[string]interface{}{"status": ticketstatus.StatusOpen}); err != nil {
		return fmt.Errorf("open ticket %d: %w", t.ID, err)
	}
	t.Status = ticketstatus.StatusOpen
	if s.notify != nil {
		s.notify.TicketRemoved(dbc.Ctx, t.CompanyID, prev, t.ID)
		s.notify.TicketUpdated(dbc.Ctx, t)
	}
	return nil
}

func (s *ticketService) Transfer(dbc dbctx.Context, t *types.Ticket, queueID int64, whatsappID *int64) error {
	if t == nil {
		return fmt.Errorf("nil ticket")
	}
	if queueID <= 0 {
		return fmt.Errorf("invalid queue id %d", queueID)
	}
	prev := t.Status
	updates := map[string]interface{}{
		"queue_id":        queueID,
		"use_integration": false,
		"prompt_id":       nil,
		"status":          ticketstatus.StatusOpen,
	}
	if whatsappID != nil {
		updates["whatsapp_id"] = *whatsappID
	}
	if err := s.repo.UpdateFields(dbc, t.ID, updates); err != nil {
		return fmt.Errorf("transfer ticket %d: %w", t.ID, err)
	}

	q := queueID
	t.QueueID = &q
	t.UseIntegration = false
	t.PromptID = nil
	t.Status = ticketstatus.StatusOpen
	if whatsappID != nil {
		w := *whatsappID
		t.WhatsappID = &w
	}
	s.log.Info("Ticket transferred",
		"ticket_id", t.ID,
		"company_id", t.CompanyID,
		"queue_id", queueID,
		"whatsapp_switched", whatsappID != nil,
	)
	if s.notify != nil {
		if prev != ticketstatus.StatusOpen {
			s.notify.TicketRemoved(dbc.Ctx, t.CompanyID, prev, t.ID)
		}
		s.notify.TicketUpdated(dbc.Ctx, t)
	}
	return nil
}
