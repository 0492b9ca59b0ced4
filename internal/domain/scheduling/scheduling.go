package scheduling

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ProfileProfessional = "professional"

	AppointmentPending   = "pending"
	AppointmentCancelled = "cancelled"

	SchedulePending  = "PENDENTE"
	ScheduleCanceled = "CANCELADO"

	SpacingMinutes = "min"
	SpacingHours   = "hours"
)

// WorkingHours is one weekday entry of a professional's week. StartTime ==
// EndTime marks the day as closed.
type WorkingHours struct {
	Weekday   string `json:"weekday"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type User struct {
	ID                     int64                             `gorm:"primaryKey" json:"id"`
	CompanyID              int64                             `gorm:"not null;index" json:"company_id"`
	Name                   string                            `gorm:"not null" json:"name"`
	Profile                string                            `gorm:"not null;index" json:"profile"`
	Schedules              datatypes.JSONSlice[WorkingHours] `json:"schedules"`
	AppointmentSpacing     int                               `json:"appointment_spacing"`
	AppointmentSpacingUnit string                            `json:"appointment_spacing_unit"`
	Services               []Service                         `gorm:"many2many:user_services" json:"services,omitempty"`
	CreatedAt              time.Time                         `json:"created_at"`
	UpdatedAt              time.Time                         `json:"updated_at"`
}

type Service struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	CompanyID   int64     `gorm:"not null;index" json:"company_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Duration    int       `json:"duration"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Appointment struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	CompanyID     int64     `gorm:"not null;index" json:"company_id"`
	UserID        int64     `gorm:"not null;index" json:"user_id"`
	TicketID      int64     `gorm:"index" json:"ticket_id"`
	ServiceID     *int64    `json:"service_id,omitempty"`
	ScheduledDate time.Time `gorm:"not null;index" json:"scheduled_date"`
	Description   string    `json:"description"`
	Status        string    `gorm:"not null;default:pending" json:"status"`
	Service       *Service  `gorm:"foreignKey:ServiceID" json:"service,omitempty"`
	User          *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Schedule is the reminder entry sent to the contact before an appointment.
type Schedule struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	CompanyID       int64      `gorm:"not null;index" json:"company_id"`
	ContactID       int64      `gorm:"not null;index" json:"contact_id"`
	UserID          int64      `json:"user_id"`
	Body            string     `gorm:"type:text" json:"body"`
	SendAt          time.Time  `gorm:"index" json:"send_at"`
	BodyFirstAux    string     `gorm:"type:text" json:"body_first_aux"`
	SendAtFirstAux  *time.Time `json:"send_at_first_aux,omitempty"`
	BodySecondAux   string     `gorm:"type:text" json:"body_second_aux"`
	SendAtSecondAux *time.Time `json:"send_at_second_aux,omitempty"`
	Status          string     `gorm:"not null;default:PENDENTE" json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
