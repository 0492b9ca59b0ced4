package tickets

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	ticketstatus "github.com/yungbote/assistflow-backend/internal/domain/tickets"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type TicketRepo interface {
	GetByID(dbc dbctx.Context, companyID, id int64) (*types.Ticket, error)
	GetPrompt(dbc dbctx.Context, companyID, id int64) (*types.Prompt, error)
	// SetThreadIDIfEmpty stores threadID only when the ticket has none yet.
	// It returns the thread id stored after the call and whether this call wrote it.
	SetThreadIDIfEmpty(dbc dbctx.Context, id int64, threadID string) (string, bool, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	ListOpenWithPrompt(dbc dbctx.Context, limit int) ([]*types.Ticket, error)
}

type ticketRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTicketRepo(db *gorm.DB, baseLog *logger.Logger) TicketRepo {
	return &ticketRepo{db: db, log: baseLog.With("repo", "TicketRepo")}
}

func (r *ticketRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *ticketRepo) GetByID(dbc dbctx.Context, companyID, id int64) (*types.Ticket, error) {
	if id == 0 {
		return nil, nil
	}
	q := r.tx(dbc).
		Preload("Contact").
		Preload("Contact.ExtraInfo").
		Preload("Queue").
		Preload("Queue.Prompt").
		Preload("Whatsapp").
		Where("id = ?", id)
	if companyID != 0 {
		q = q.Where("company_id = ?", companyID)
	}
	var t types.Ticket
	if err := q.Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *ticketRepo) GetPrompt(dbc dbctx.Context, companyID, id int64) (*types.Prompt, error) {
	if id == 0 {
		return nil, nil
	}
	q := r.tx(dbc).Where("id = ?", id)
	if companyID != 0 {
		q = q.Where("company_id = ?", companyID)
	}
	var pr types.Prompt
	if err := q.Limit(1).Find(&pr).Error; err != nil {
		return nil, err
	}
	if pr.ID == 0 {
		return nil, nil
	}
	return &pr, nil
}

func (r *ticketRepo) SetThreadIDIfEmpty(dbc dbctx.Context, id int64, threadID string) (string, bool, error) {
	res := r.tx(dbc).
		Model(&types.Ticket{}).
		Where("id = ? AND (thread_id IS NULL OR thread_id = '')", id).
		Updates(map[string]interface{}{
			"thread_id":  threadID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected > 0 {
		return threadID, true, nil
	}
	var stored string
	if err := r.tx(dbc).Model(&types.Ticket{}).Where("id = ?", id).Pluck("thread_id", &stored).Error; err != nil {
		return "", false, err
	}
	return stored, false, nil
}

func (r *ticketRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	if id == 0 {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).Model(&types.Ticket{}).Where("id = ?", id).Updates(updates).Error
}

func (r *ticketRepo) ListOpenWithPrompt(dbc dbctx.Context, limit int) ([]*types.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.Ticket
	err := r.tx(dbc).
		Preload("Contact").
		Preload("Queue").
		Preload("Queue.Prompt").
		Joins("JOIN queues ON queues.id = tickets.queue_id").
		Where("tickets.status = ? AND queues.prompt_id IS NOT NULL", ticketstatus.StatusOpen).
		Order("tickets.updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
