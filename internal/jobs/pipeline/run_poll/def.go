package run_poll

import (
	"time"

	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/services"
)

const defaultMaxPolls = 120

type Pipeline struct {
	log *logger.Logger

	ai        openai.Assistants
	tickets   ticketrepo.TicketRepo
	ticketSvc services.TicketService
	jobs      services.JobService
	fallback  *prompt.Fallback

	interval time.Duration
	maxPolls int
}

func New(
	baseLog *logger.Logger,
	ai openai.Assistants,
	tickets ticketrepo.TicketRepo,
	ticketSvc services.TicketService,
	jobs services.JobService,
	fallback *prompt.Fallback,
	interval time.Duration,
	maxPolls int,
) *Pipeline {
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	return &Pipeline{
		log:       baseLog.With("job", prompt.JobTypePoll),
		ai:        ai,
		tickets:   tickets,
		ticketSvc: ticketSvc,
		jobs:      jobs,
		fallback:  fallback,
		interval:  interval,
		maxPolls:  maxPolls,
	}
}

func (p *Pipeline) Type() string { return prompt.JobTypePoll }
