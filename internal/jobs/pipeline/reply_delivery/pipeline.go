package reply_delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/assistflow-backend/internal/delivery"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	jobrt "github.com/yungbote/assistflow-backend/internal/jobs/runtime"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
)

const (
	roleAssistant = "assistant"

	outcomeEmpty     = "empty"
	outcomeDuplicate = "duplicate"
	outcomeDelivered = "delivered"
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
	if payload.ThreadID == "" {
		jc.Fail("validate", fmt.Errorf("missing thread_id"))
		return nil
	}
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx}

	apiKey, err := prompt.AssistantKey(dbc, p.tickets, payload)
	if err != nil {
		jc.Fail("credential", err)
		return nil
	}
	msgs, err := p.ai.ListMessages(ctx, apiKey, payload.ThreadID)
	if err != nil {
		jc.Fail("messages", err)
		return nil
	}
	text, ok := lastAssistantText(msgs)
	if !ok {
		p.log.Info("No assistant reply to deliver", "ticket_id", payload.TicketID, "thread_id", payload.ThreadID)
		jc.Succeed(outcomeEmpty, map[string]any{"outcome": outcomeEmpty})
		return nil
	}

	// The marker is taken before sending so a concurrent delivery of the same
	// text sees it; it is released again when nothing was sent.
	claimed, err := p.markers.Claim(ctx, payload.TicketID, text)
	if err != nil {
		jc.Fail("dedup", err)
		return nil
	}
	if !claimed {
		p.log.Info("Reply already delivered", "ticket_id", payload.TicketID, "run_id", payload.RunID)
		jc.Succeed(outcomeDuplicate, map[string]any{"outcome": outcomeDuplicate})
		return nil
	}

	t, err := p.tickets.GetByID(dbc, payload.CompanyID, payload.TicketID)
	if err == nil && t == nil {
		err = fmt.Errorf("ticket %d not found", payload.TicketID)
	}
	if err != nil {
		p.release(ctx, payload.TicketID, text)
		jc.Fail("load_ticket", err)
		return nil
	}

	jc.Progress("deliver", 50)
	res, err := p.composer.Deliver(ctx, delivery.Reply{
		Ticket:    t,
		Prompt:    promptOf(t),
		RemoteJID: payload.RemoteJID,
		Text:      text,
		Heartbeat: jc.Heartbeat,
	})
	if err != nil {
		p.release(ctx, payload.TicketID, text)
		jc.Fail("deliver", err)
		return nil
	}

	p.log.Info("Reply delivered",
		"ticket_id", t.ID,
		"mode", res.Mode,
		"parts", res.Sent,
		"transferred_to", res.TransferredTo,
	)
	jc.Succeed(outcomeDelivered, map[string]any{
		"outcome":          outcomeDelivered,
		"mode":             res.Mode,
		"sent":             res.Sent,
		"transferred_to":   res.TransferredTo,
		"switched_session": res.SwitchedSession,
	})
	return nil
}

// lastAssistantText returns the text of the newest thread message when it was
// written by the assistant.
func lastAssistantText(msgs []openai.ThreadMessage) (string, bool) {
	if len(msgs) == 0 {
		return "", false
	}
	last := msgs[0]
	for _, m := range msgs[1:] {
		if m.CreatedAt >= last.CreatedAt {
			last = m
		}
	}
	text := strings.TrimSpace(last.Text)
	if last.Role != roleAssistant || text == "" {
		return "", false
	}
	return text, true
}

func (p *Pipeline) release(ctx context.Context, ticketID int64, text string) {
	if err := p.markers.Release(ctx, ticketID, text); err != nil {
		p.log.Warn("Release delivery marker failed", "ticket_id", ticketID, "error", err)
	}
}

func promptOf(t *types.Ticket) *types.Prompt {
	if t.Queue == nil {
		return nil
	}
	return t.Queue.Prompt
}

func (p *Pipeline) Exhausted(jc *jobrt.Context) { p.fallback.Exhausted(jc) }
