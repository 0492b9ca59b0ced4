package tickets

import (
	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, msg *types.Message) error
	// ListLatest returns the newest limit messages of a ticket, newest first.
	ListLatest(dbc dbctx.Context, ticketID int64, limit int) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "MessageRepo")}
}

func (r *messageRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *messageRepo) Create(dbc dbctx.Context, msg *types.Message) error {
	return r.tx(dbc).Create(msg).Error
}

func (r *messageRepo) ListLatest(dbc dbctx.Context, ticketID int64, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []*types.Message
	err := r.tx(dbc).
		Where("ticket_id = ?", ticketID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
