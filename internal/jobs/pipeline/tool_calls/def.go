package tool_calls

import (
	"context"
	"encoding/json"
	"time"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/functions"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/services"
)

// Caller executes one named function for an account.
type Caller interface {
	Call(ctx context.Context, name string, args json.RawMessage, acct functions.Account) (string, error)
}

type Pipeline struct {
	log *logger.Logger

	ai       openai.Assistants
	tickets  ticketrepo.TicketRepo
	calls    Caller
	jobs     services.JobService
	fallback *prompt.Fallback
	interval time.Duration
}

func New(
	baseLog *logger.Logger,
	ai openai.Assistants,
	tickets ticketrepo.TicketRepo,
	calls Caller,
	jobs services.JobService,
	fallback *prompt.Fallback,
	pollInterval time.Duration,
) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", prompt.JobTypeTools),
		ai:       ai,
		tickets:  tickets,
		calls:    calls,
		jobs:     jobs,
		fallback: fallback,
		interval: pollInterval,
	}
}

func (p *Pipeline) Type() string { return prompt.JobTypeTools }
