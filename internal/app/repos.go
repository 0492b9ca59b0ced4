package app

import (
	"gorm.io/gorm"

	jobrepo "github.com/yungbote/assistflow-backend/internal/data/repos/jobs"
	schedrepo "github.com/yungbote/assistflow-backend/internal/data/repos/scheduling"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
)

type Repos struct {
	JobRun       jobrepo.JobRunRepo
	Ticket       ticketrepo.TicketRepo
	Contact      ticketrepo.ContactRepo
	Whatsapp     ticketrepo.WhatsappRepo
	Message      ticketrepo.MessageRepo
	Professional schedrepo.ProfessionalRepo
	Service      schedrepo.ServiceRepo
	Appointment  schedrepo.AppointmentRepo
	Schedule     schedrepo.ScheduleRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		JobRun:       jobrepo.NewJobRunRepo(db, log),
		Ticket:       ticketrepo.NewTicketRepo(db, log),
		Contact:      ticketrepo.NewContactRepo(db, log),
		Whatsapp:     ticketrepo.NewWhatsappRepo(db, log),
		Message:      ticketrepo.NewMessageRepo(db, log),
		Professional: schedrepo.NewProfessionalRepo(db, log),
		Service:      schedrepo.NewServiceRepo(db, log),
		Appointment:  schedrepo.NewAppointmentRepo(db, log),
		Schedule:     schedrepo.NewScheduleRepo(db, log),
	}
}
