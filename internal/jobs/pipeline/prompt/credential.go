package prompt

import (
	"fmt"
	"strings"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

// AssistantKey returns the provider credential a stage should use. A key
// supplied with the inbound request wins; otherwise the prompt config named
// by the payload is read, so the stored key never travels in job payloads.
func AssistantKey(dbc dbctx.Context, tickets ticketrepo.TicketRepo, p Payload) (string, error) {
	if key := strings.TrimSpace(p.AssistantKey); key != "" {
		return key, nil
	}
	if p.ConfigID == 0 {
		return "", fmt.Errorf("no assistant credential: payload names no prompt")
	}
	cfg, err := tickets.GetPrompt(dbc, p.CompanyID, p.ConfigID)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		return "", fmt.Errorf("prompt %d not found", p.ConfigID)
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return "", fmt.Errorf("no assistant credential for prompt %d", cfg.ID)
	}
	return key, nil
}

// Redacted drops the credential before a payload is shown outside the pipeline.
func (p Payload) Redacted() Payload {
	p.AssistantKey = ""
	return p
}
