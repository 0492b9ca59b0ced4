package scheduling

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type ProfessionalRepo interface {
	// List returns the company's professionals, oldest first. A non-empty
	// name filters case-insensitively on the exact name.
	List(dbc dbctx.Context, companyID int64, name string) ([]*types.User, error)
	ListByService(dbc dbctx.Context, companyID int64, serviceID int64, serviceName string) ([]*types.User, error)
	// LockForBooking holds the professional's row FOR UPDATE until dbc.Tx
	// ends, serializing bookings against the same calendar.
	LockForBooking(dbc dbctx.Context, companyID, id int64) error
}

type professionalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfessionalRepo(db *gorm.DB, baseLog *logger.Logger) ProfessionalRepo {
	return &professionalRepo{db: db, log: baseLog.With("repo", "ProfessionalRepo")}
}

func (r *professionalRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *professionalRepo) List(dbc dbctx.Context, companyID int64, name string) ([]*types.User, error) {
	q := r.tx(dbc).
		Preload("Services").
		Where("company_id = ? AND profile = ?", companyID, scheduling.ProfileProfessional)
	if n := strings.TrimSpace(name); n != "" {
		q = q.Where("LOWER(name) = ?", strings.ToLower(n))
	}
	var out []*types.User
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *professionalRepo) ListByService(dbc dbctx.Context, companyID int64, serviceID int64, serviceName string) ([]*types.User, error) {
	q := r.tx(dbc).
		Preload("Services").
		Joins("JOIN user_services us ON us.user_id = users.id").
		Joins("JOIN services s ON s.id = us.service_id").
		Where("users.company_id = ? AND users.profile = ?", companyID, scheduling.ProfileProfessional)
	switch {
	case serviceID != 0:
		q = q.Where("s.id = ?", serviceID)
	case strings.TrimSpace(serviceName) != "":
		q = q.Where("LOWER(s.name) = ?", strings.ToLower(strings.TrimSpace(serviceName)))
	}
	var out []*types.User
	if err := q.Distinct("users.*").Order("users.created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *professionalRepo) LockForBooking(dbc dbctx.Context, companyID, id int64) error {
	var u types.User
	err := r.tx(dbc).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ? AND company_id = ?", id, companyID).
		Limit(1).
		Find(&u).Error
	if err != nil {
		return err
	}
	if u.ID == 0 {
		return fmt.Errorf("professional %d not found", id)
	}
	return nil
}
