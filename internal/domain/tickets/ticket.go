package tickets

import "time"

const (
	StatusOpen    = "open"
	StatusPending = "pending"
	StatusClosed  = "closed"
)

type Ticket struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	CompanyID      int64     `gorm:"not null;index" json:"company_id"`
	ContactID      int64     `gorm:"not null;index" json:"contact_id"`
	QueueID        *int64    `gorm:"index" json:"queue_id,omitempty"`
	WhatsappID     *int64    `gorm:"index" json:"whatsapp_id,omitempty"`
	UserID         *int64    `json:"user_id,omitempty"`
	PromptID       *int64    `json:"prompt_id,omitempty"`
	Status         string    `gorm:"not null;default:pending;index" json:"status"`
	ThreadID       string    `gorm:"column:thread_id;not null;default:''" json:"thread_id"`
	UseIntegration bool      `gorm:"not null;default:false" json:"use_integration"`
	LastMessage    string    `json:"last_message"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Contact  *Contact  `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Queue    *Queue    `gorm:"foreignKey:QueueID" json:"queue,omitempty"`
	Whatsapp *Whatsapp `gorm:"foreignKey:WhatsappID" json:"whatsapp,omitempty"`
}

// Prompt is an assistant configuration bound to a routing queue. The Prompt
// field holds the raw routing configuration (token or JSON form).
type Prompt struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CompanyID int64     `gorm:"not null;index" json:"company_id"`
	QueueID   int64     `gorm:"index" json:"queue_id"`
	Name      string    `gorm:"not null" json:"name"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	APIKey    string    `gorm:"column:api_key" json:"-"`
	VoiceKey  string    `gorm:"column:voice_key" json:"-"`
	Voice     string    `json:"voice"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Queue struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CompanyID int64     `gorm:"not null;index" json:"company_id"`
	Name      string    `gorm:"not null" json:"name"`
	PromptID  *int64    `json:"prompt_id,omitempty"`
	Prompt    *Prompt   `gorm:"foreignKey:PromptID" json:"prompt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Whatsapp is a connected WhatsApp session. Queues lists the routing queues
// it serves.
type Whatsapp struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CompanyID int64     `gorm:"not null;index" json:"company_id"`
	Name      string    `json:"name"`
	Queues    []Queue   `gorm:"many2many:whatsapp_queues" json:"queues,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
