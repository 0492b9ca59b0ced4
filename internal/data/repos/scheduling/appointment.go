package scheduling

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type AppointmentRepo interface {
	Create(dbc dbctx.Context, a *types.Appointment) error
	// ListActiveForUser returns non-cancelled appointments of a professional
	// scheduled in [from, to), with their service loaded.
	ListActiveForUser(dbc dbctx.Context, userID int64, from, to time.Time) ([]*types.Appointment, error)
	FindByTicketAt(dbc dbctx.Context, ticketID int64, at time.Time) (*types.Appointment, error)
	ListUpcomingByTicket(dbc dbctx.Context, ticketID int64, after time.Time) ([]*types.Appointment, error)
	UpdateStatus(dbc dbctx.Context, id int64, status string) error
}

type appointmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAppointmentRepo(db *gorm.DB, baseLog *logger.Logger) AppointmentRepo {
	return &appointmentRepo{db: db, log: baseLog.With("repo", "AppointmentRepo")}
}

func (r *appointmentRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *appointmentRepo) Create(dbc dbctx.Context, a *types.Appointment) error {
	return r.tx(dbc).Create(a).Error
}

func (r *appointmentRepo) ListActiveForUser(dbc dbctx.Context, userID int64, from, to time.Time) ([]*types.Appointment, error) {
	var out []*types.Appointment
	err := r.tx(dbc).
		Preload("Service").
		Where("user_id = ? AND status <> ? AND scheduled_date >= ? AND scheduled_date < ?",
			userID, scheduling.AppointmentCancelled, from, to).
		Order("scheduled_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *appointmentRepo) FindByTicketAt(dbc dbctx.Context, ticketID int64, at time.Time) (*types.Appointment, error) {
	var a types.Appointment
	err := r.tx(dbc).
		Where("ticket_id = ? AND scheduled_date = ? AND status <> ?", ticketID, at, scheduling.AppointmentCancelled).
		Limit(1).
		Find(&a).Error
	if err != nil {
		return nil, err
	}
	if a.ID == 0 {
		return nil, nil
	}
	return &a, nil
}

func (r *appointmentRepo) ListUpcomingByTicket(dbc dbctx.Context, ticketID int64, after time.Time) ([]*types.Appointment, error) {
	var out []*types.Appointment
	err := r.tx(dbc).
		Preload("Service").
		Preload("User").
		Where("ticket_id = ? AND scheduled_date > ?", ticketID, after).
		Order("scheduled_date ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *appointmentRepo) UpdateStatus(dbc dbctx.Context, id int64, status string) error {
	return r.tx(dbc).
		Model(&types.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}
