package tickets

import "time"

// Message is a persisted WhatsApp message on a ticket, inbound or outbound.
type Message struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CompanyID int64     `gorm:"not null;index" json:"company_id"`
	TicketID  int64     `gorm:"not null;index" json:"ticket_id"`
	ContactID *int64    `json:"contact_id,omitempty"`
	Body      string    `gorm:"type:text" json:"body"`
	FromMe    bool      `gorm:"not null;default:false" json:"from_me"`
	MediaType string    `json:"media_type"`
	RemoteJID string    `json:"remote_jid"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
