package tickets

import "time"

type Contact struct {
	ID        int64                `gorm:"primaryKey" json:"id"`
	CompanyID int64                `gorm:"not null;index" json:"company_id"`
	Name      string               `json:"name"`
	Number    string               `gorm:"index" json:"number"`
	Email     string               `json:"email"`
	ExtraInfo []ContactCustomField `gorm:"foreignKey:ContactID" json:"extra_info,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type ContactCustomField struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	ContactID int64     `gorm:"not null;uniqueIndex:idx_contact_field" json:"contact_id"`
	Name      string    `gorm:"not null;uniqueIndex:idx_contact_field" json:"name"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JID is the WhatsApp address of a contact number.
func (c *Contact) JID() string {
	if c == nil || c.Number == "" {
		return ""
	}
	return c.Number + "@s.whatsapp.net"
}

// Field returns a built-in or custom field value and whether the field exists.
func (c *Contact) Field(name string) (string, bool) {
	switch name {
	case "name":
		return c.Name, true
	case "email":
		return c.Email, true
	case "number":
		return c.Number, true
	}
	for _, f := range c.ExtraInfo {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}
