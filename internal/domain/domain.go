package domain

import (
	"github.com/yungbote/assistflow-backend/internal/domain/jobs"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/domain/tickets"
)

type JobRun = jobs.JobRun

type Ticket = tickets.Ticket
type Prompt = tickets.Prompt
type Queue = tickets.Queue
type Whatsapp = tickets.Whatsapp
type Contact = tickets.Contact
type ContactCustomField = tickets.ContactCustomField
type Message = tickets.Message

type User = scheduling.User
type WorkingHours = scheduling.WorkingHours
type Service = scheduling.Service
type Appointment = scheduling.Appointment
type Schedule = scheduling.Schedule

// Models lists every table owned by this service, in migration order.
func Models() []any {
	return []any{
		&JobRun{},
		&Contact{},
		&ContactCustomField{},
		&Prompt{},
		&Queue{},
		&Whatsapp{},
		&Ticket{},
		&Message{},
		&Service{},
		&User{},
		&Appointment{},
		&Schedule{},
	}
}
