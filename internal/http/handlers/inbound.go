package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/http/response"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/assistflow-backend/internal/pkg/errors"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type msgEnvelope struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
}

// inboundRequest is the turn posted by the WhatsApp message handler when a
// ticket is served by an assistant.
type inboundRequest struct {
	Content             prompt.Content `json:"content"`
	TicketID            int64          `json:"ticketId"`
	CompanyID           int64          `json:"companyId"`
	ContactID           int64          `json:"contactId"`
	ConfigID            int64          `json:"configId"`
	AssistantCredential string         `json:"assistantCredential"`
	ThreadID            string         `json:"threadId"`
	QueueID             *int64         `json:"queueId"`
	MsgEnvelope         msgEnvelope    `json:"msgEnvelope"`
}

type InboundHandler struct {
	log      *logger.Logger
	jobs     services.JobService
	messages ticketrepo.MessageRepo
}

// NewInboundHandler builds the inbound endpoint. With messages set, each
// accepted turn is also stored as a contact message for the sweeper to find.
func NewInboundHandler(log *logger.Logger, jobs services.JobService, messages ticketrepo.MessageRepo) *InboundHandler {
	return &InboundHandler{log: log.With("handler", "InboundHandler"), jobs: jobs, messages: messages}
}

// POST /api/prompts/inbound
func (h *InboundHandler) Enqueue(c *gin.Context) {
	var req inboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	companyID, ok := ctxutil.CompanyID(c.Request.Context())
	if !ok {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", apperr.ErrUnauthorized)
		return
	}
	if req.CompanyID == 0 {
		req.CompanyID = companyID
	}
	if req.CompanyID != companyID {
		response.RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("company mismatch"))
		return
	}
	if req.TicketID <= 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_ticket", fmt.Errorf("ticketId is required"))
		return
	}
	if req.Content.IsEmpty() {
		response.RespondError(c, http.StatusBadRequest, "empty_content", fmt.Errorf("content is required"))
		return
	}

	payload := prompt.Payload{
		TicketID:     req.TicketID,
		CompanyID:    req.CompanyID,
		ContactID:    req.ContactID,
		ConfigID:     req.ConfigID,
		AssistantKey: strings.TrimSpace(req.AssistantCredential),
		Content:      req.Content,
		RemoteJID:    strings.TrimSpace(req.MsgEnvelope.RemoteJID),
		QueueID:      req.QueueID,
		ThreadID:     strings.TrimSpace(req.ThreadID),
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	h.recordInbound(dbc, req, payload)
	job, err := h.jobs.Enqueue(dbc, prompt.JobTypeDispatch, payload, time.Time{})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, apperr.ErrInvalidArgument) {
			status = http.StatusBadRequest
		}
		response.RespondError(c, status, "enqueue_failed", err)
		return
	}
	h.log.Info("Inbound turn enqueued", "ticket_id", req.TicketID, "job_id", job.ID)
	c.JSON(http.StatusAccepted, gin.H{"job": publicJob(job)})
}

// recordInbound stores the contact's turn. A failure is logged and the turn
// is still enqueued.
func (h *InboundHandler) recordInbound(dbc dbctx.Context, req inboundRequest, payload prompt.Payload) {
	if h.messages == nil {
		return
	}
	id := strings.TrimSpace(req.MsgEnvelope.ID)
	if id == "" {
		id = uuid.NewString()
	}
	msg := &types.Message{
		ID:        id,
		CompanyID: payload.CompanyID,
		TicketID:  payload.TicketID,
		Body:      payload.Content.Flatten(),
		FromMe:    false,
		MediaType: inboundMediaType(payload.Content),
		RemoteJID: payload.RemoteJID,
	}
	if payload.ContactID > 0 {
		contactID := payload.ContactID
		msg.ContactID = &contactID
	}
	if err := h.messages.Create(dbc, msg); err != nil {
		h.log.Warn("Persist inbound message failed", "ticket_id", payload.TicketID, "message_id", id, "error", err)
	}
}

func inboundMediaType(c prompt.Content) string {
	for _, part := range c.Parts {
		if part.ImageURL != nil && strings.TrimSpace(part.ImageURL.URL) != "" {
			return "image"
		}
	}
	return "chat"
}
