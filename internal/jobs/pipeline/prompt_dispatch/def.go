package prompt_dispatch

import (
	"time"

	"gorm.io/gorm"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/platform/openai"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type Timing struct {
	// Delay is the debounce window before a run is started.
	Delay time.Duration
	// PollInterval spaces run status checks.
	PollInterval time.Duration
}

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger

	ai        openai.Assistants
	tickets   ticketrepo.TicketRepo
	ticketSvc services.TicketService
	jobRuns   jobrepo.JobRunRepo
	jobs      services.JobService
	fallback  *prompt.Fallback
	timing    Timing
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	ai openai.Assistants,
	tickets ticketrepo.TicketRepo,
	ticketSvc services.TicketService,
	jobRuns jobrepo.JobRunRepo,
	jobs services.JobService,
	fallback *prompt.Fallback,
	timing Timing,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("job", prompt.JobTypeDispatch),
		ai:        ai,
		tickets:   tickets,
		ticketSvc: ticketSvc,
		jobRuns:   jobRuns,
		jobs:      jobs,
		fallback:  fallback,
		timing:    timing,
	}
}

func (p *Pipeline) Type() string { return prompt.JobTypeDispatch }
