package scheduling

import (
	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type ServiceRepo interface {
	ListByCompany(dbc dbctx.Context, companyID int64) ([]*types.Service, error)
}

type serviceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewServiceRepo(db *gorm.DB, baseLog *logger.Logger) ServiceRepo {
	return &serviceRepo{db: db, log: baseLog.With("repo", "ServiceRepo")}
}

func (r *serviceRepo) ListByCompany(dbc dbctx.Context, companyID int64) ([]*types.Service, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Service
	err := transaction.WithContext(dbc.Ctx).
		Where("company_id = ?", companyID).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
