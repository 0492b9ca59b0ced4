package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/jobs/pipeline/prompt"
	"github.com/yungbote/assistflow-backend/internal/pkg/ctxutil"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/assistflow-backend/internal/pkg/errors"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

// RetryPolicy bounds how often a stage is re-attempted and how long the
// worker waits between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicies returns the per-stage attempt budgets. Dispatch gets
// the largest budget because thread and run creation are the calls most
// exposed to provider rate limits.
func DefaultRetryPolicies(backoff time.Duration) map[string]RetryPolicy {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return map[string]RetryPolicy{
		prompt.JobTypeDelay:    {MaxAttempts: 3, Backoff: backoff},
		prompt.JobTypeDispatch: {MaxAttempts: 10, Backoff: backoff},
		prompt.JobTypePoll:     {MaxAttempts: 3, Backoff: backoff},
		prompt.JobTypeTools:    {MaxAttempts: 3, Backoff: backoff},
		prompt.JobTypeDelivery: {MaxAttempts: 3, Backoff: backoff},
	}
}

type JobService interface {
	// Enqueue persists a queued run of jobType for the payload's ticket,
	// eligible at runAt (now when zero).
	Enqueue(dbc dbctx.Context, jobType string, p prompt.Payload, runAt time.Time) (*types.JobRun, error)
	GetByID(dbc dbctx.Context, companyID int64, id uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobrepo.JobRunRepo
	policies map[string]RetryPolicy
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo jobrepo.JobRunRepo, policies map[string]RetryPolicy) JobService {
	if policies == nil {
		policies = DefaultRetryPolicies(0)
	}
	return &jobService{
		db:       db,
		log:      baseLog.With("service", "JobService"),
		repo:     repo,
		policies: policies,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, jobType string, p prompt.Payload, runAt time.Time) (*types.JobRun, error) {
	if jobType == "" {
		return nil, fmt.Errorf("%w: missing job_type", apperr.ErrInvalidArgument)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidArgument, err)
	}
	if td := ctxutil.GetTraceData(ctxutil.Default(dbc.Ctx)); td != nil {
		if p.TraceID == "" {
			p.TraceID = td.TraceID
		}
		if p.RequestID == "" {
			p.RequestID = td.RequestID
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	policy, ok := s.policies[jobType]
	if !ok {
		policy = RetryPolicy{MaxAttempts: 3, Backoff: 5 * time.Second}
	}
	now := time.Now().UTC()
	if runAt.IsZero() {
		runAt = now
	}
	runAt = runAt.UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		CompanyID:   p.CompanyID,
		JobType:     jobType,
		EntityType:  jobstatus.EntityTicket,
		EntityID:    p.TicketID,
		Status:      jobstatus.StatusQueued,
		Stage:       "queued",
		MaxAttempts: policy.MaxAttempts,
		BackoffMS:   policy.Backoff.Milliseconds(),
		RunAt:       runAt,
		Payload:     datatypes.JSON(raw),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Debug("Job enqueued",
		"job_id", job.ID,
		"job_type", jobType,
		"ticket_id", p.TicketID,
		"run_at", runAt,
	)
	return job, nil
}

func (s *jobService) GetByID(dbc dbctx.Context, companyID int64, id uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if job == nil || (companyID != 0 && job.CompanyID != companyID) {
		return nil, apperr.ErrNotFound
	}
	return job, nil
}
