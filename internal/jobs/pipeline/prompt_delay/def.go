package prompt_delay

import (
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type Pipeline struct {
	db  *gorm.DB
	log *logger.Logger

	jobRuns  jobrepo.JobRunRepo
	jobs     services.JobService
	fallback *prompt.Fallback
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRuns jobrepo.JobRunRepo,
	jobs services.JobService,
	fallback *prompt.Fallback,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", prompt.JobTypeDelay),
		jobRuns:  jobRuns,
		jobs:     jobs,
		fallback: fallback,
	}
}

func (p *Pipeline) Type() string { return prompt.JobTypeDelay }
