package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	jobstatus "github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

var pendingStatuses = []string{jobstatus.StatusQueued, jobstatus.StatusRunning}

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	ListPendingForEntity(dbc dbctx.Context, jobType string, entityType string, entityID int64, lock bool) ([]*types.JobRun, error)
	CancelPendingForEntity(dbc dbctx.Context, jobType string, entityType string, entityID int64, statuses []string, exceptID uuid.UUID) (int64, error)
	HasRunnableForEntity(dbc dbctx.Context, entityType string, entityID int64, jobTypes []string) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	now := time.Now().UTC()
	for _, j := range jobs {
		if j.ID == uuid.Nil {
			j.ID = uuid.New()
		}
		if j.RunAt.IsZero() {
			j.RunAt = now
		}
		// Zero backoff is a valid choice; only nonsense values are normalized.
		if j.MaxAttempts <= 0 {
			j.MaxAttempts = 1
		}
		if j.BackoffMS < 0 {
			j.BackoffMS = 0
		}
	}
	if err := r.tx(dbc).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable locks the oldest eligible row and marks it running.
// Eligible: queued or retryable-failed with run_at in the past, or running
// with a heartbeat older than staleRunning and attempts left. Stale running
// rows without attempts left are failed instead of reclaimed.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.JobRun, error) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.JobRun
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Model(&types.JobRun{}).
			Where("status = ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ? AND attempts >= max_attempts",
				jobstatus.StatusRunning, staleCutoff).
			Updates(map[string]interface{}{
				"status":        jobstatus.StatusFailed,
				"error":         "heartbeat lost",
				"last_error_at": now,
				"locked_at":     nil,
				"updated_at":    now,
			}).Error; err != nil {
			return err
		}

		var job types.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          (status = ? AND run_at <= ?)
          OR (
            status = ?
            AND attempts < max_attempts
            AND run_at <= ?
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
            AND attempts < max_attempts
          )
        )
      `, jobstatus.StatusQueued, now, jobstatus.StatusFailed, now, jobstatus.StatusRunning, staleCutoff).
			Order("run_at ASC").
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       jobstatus.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = jobstatus.StatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := r.tx(dbc).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return r.tx(dbc).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, jobstatus.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// ListPendingForEntity returns queued and running rows of jobType for the
// entity, oldest first (created_at, then id). With lock the rows are held
// FOR UPDATE until the surrounding transaction ends.
func (r *jobRunRepo) ListPendingForEntity(dbc dbctx.Context, jobType string, entityType string, entityID int64, lock bool) ([]*types.JobRun, error) {
	var out []*types.JobRun
	if jobType == "" || entityType == "" || entityID == 0 {
		return out, nil
	}
	q := r.tx(dbc)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.
		Where("job_type = ? AND entity_type = ? AND entity_id = ? AND status IN ?", jobType, entityType, entityID, pendingStatuses).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelPendingForEntity marks matching rows canceled so the worker never
// claims them and their own Succeed/Fail updates become no-ops.
func (r *jobRunRepo) CancelPendingForEntity(dbc dbctx.Context, jobType string, entityType string, entityID int64, statuses []string, exceptID uuid.UUID) (int64, error) {
	if jobType == "" || entityType == "" || entityID == 0 {
		return 0, nil
	}
	if len(statuses) == 0 {
		statuses = pendingStatuses
	}
	q := r.tx(dbc).
		Model(&types.JobRun{}).
		Where("job_type = ? AND entity_type = ? AND entity_id = ? AND status IN ?", jobType, entityType, entityID, statuses)
	if exceptID != uuid.Nil {
		q = q.Where("id <> ?", exceptID)
	}
	res := q.Updates(map[string]interface{}{
		"status":     jobstatus.StatusCanceled,
		"stage":      "superseded",
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *jobRunRepo) HasRunnableForEntity(dbc dbctx.Context, entityType string, entityID int64, jobTypes []string) (bool, error) {
	if entityType == "" || entityID == 0 || len(jobTypes) == 0 {
		return false, nil
	}
	var count int64
	err := r.tx(dbc).
		Model(&types.JobRun{}).
		Where("entity_type = ? AND entity_id = ? AND job_type IN ? AND status IN ?",
			entityType, entityID, jobTypes, pendingStatuses,
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
