package tickets

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type ContactRepo interface {
	GetByID(dbc dbctx.Context, companyID, id int64) (*types.Contact, error)
	UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error
	UpsertCustomField(dbc dbctx.Context, contactID int64, name, value string) error
}

type contactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContactRepo(db *gorm.DB, baseLog *logger.Logger) ContactRepo {
	return &contactRepo{db: db, log: baseLog.With("repo", "ContactRepo")}
}

func (r *contactRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *contactRepo) GetByID(dbc dbctx.Context, companyID, id int64) (*types.Contact, error) {
	if id == 0 {
		return nil, nil
	}
	var c types.Contact
	err := r.tx(dbc).
		Preload("ExtraInfo").
		Where("id = ? AND company_id = ?", id, companyID).
		Limit(1).
		Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == 0 {
		return nil, nil
	}
	return &c, nil
}

func (r *contactRepo) UpdateFields(dbc dbctx.Context, id int64, updates map[string]interface{}) error {
	if id == 0 || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.tx(dbc).Model(&types.Contact{}).Where("id = ?", id).Updates(updates).Error
}

func (r *contactRepo) UpsertCustomField(dbc dbctx.Context, contactID int64, name, value string) error {
	now := time.Now()
	field := types.ContactCustomField{
		ContactID: contactID,
		Name:      name,
		Value:     value,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.tx(dbc).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "contact_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&field).Error
}
