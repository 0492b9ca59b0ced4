package tickets

import (
	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type WhatsappRepo interface {
	// FindServingQueue returns the company's first session bound to queueID, or nil.
	FindServingQueue(dbc dbctx.Context, companyID, queueID int64) (*types.Whatsapp, error)
}

type whatsappRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWhatsappRepo(db *gorm.DB, baseLog *logger.Logger) WhatsappRepo {
	return &whatsappRepo{db: db, log: baseLog.With("repo", "WhatsappRepo")}
}

func (r *whatsappRepo) FindServingQueue(dbc dbctx.Context, companyID, queueID int64) (*types.Whatsapp, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var w types.Whatsapp
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN whatsapp_queues wq ON wq.whatsapp_id = whatsapps.id").
		Where("whatsapps.company_id = ? AND wq.queue_id = ?", companyID, queueID).
		Order("whatsapps.id ASC").
		Limit(1).
		Find(&w).Error
	if err != nil {
		return nil, err
	}
	if w.ID == 0 {
		return nil, nil
	}
	return &w, nil
}
