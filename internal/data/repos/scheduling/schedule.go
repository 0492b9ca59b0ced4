package scheduling

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type ScheduleRepo interface {
	Create(dbc dbctx.Context, s *types.Schedule) error
	// Cancel marks the contact's pending reminder at sendAt as canceled and
	// returns it, or nil when there was none.
	Cancel(dbc dbctx.Context, companyID, contactID int64, sendAt time.Time) (*types.Schedule, error)
}

type scheduleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewScheduleRepo(db *gorm.DB, baseLog *logger.Logger) ScheduleRepo {
	return &scheduleRepo{db: db, log: baseLog.With("repo", "ScheduleRepo")}
}

func (r *scheduleRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *scheduleRepo) Create(dbc dbctx.Context, s *types.Schedule) error {
	if s.Status == "" {
		s.Status = scheduling.SchedulePending
	}
	return r.tx(dbc).Create(s).Error
}

func (r *scheduleRepo) Cancel(dbc dbctx.Context, companyID, contactID int64, sendAt time.Time) (*types.Schedule, error) {
	var s types.Schedule
	err := r.tx(dbc).
		Where("company_id = ? AND contact_id = ? AND send_at = ? AND status = ?", companyID, contactID, sendAt, scheduling.SchedulePending).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	s.Status = scheduling.ScheduleCanceled
	if err := r.tx(dbc).Model(&types.Schedule{}).Where("id = ?", s.ID).
		Updates(map[string]interface{}{"status": s.Status, "updated_at": time.Now()}).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
