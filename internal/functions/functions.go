package functions

import (
	"fmt"

	"gorm.io/gorm"

	schedrepo "github.com/yungbote/assistflow-backend/internal/data/repos/scheduling"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	"github.com/yungbote/assistflow-backend/internal/pkg/logger"
	"github.com/yungbote/assistflow-backend/internal/services"
)

// Deps is what the built-in functions need from the rest of the service.
type Deps struct {
	DB            *gorm.DB
	Log           *logger.Logger
	Tickets       ticketrepo.TicketRepo
	Contacts      ticketrepo.ContactRepo
	Professionals schedrepo.ProfessionalRepo
	Services      schedrepo.ServiceRepo
	Appointments  schedrepo.AppointmentRepo
	Schedules     schedrepo.ScheduleRepo
	Notify        services.Notifier
	Clock         Clock

	// SchedulingLinkBaseURL prefixes the self-service booking link.
	SchedulingLinkBaseURL string
}

// Builtins returns every server-side capability offered to assistants.
func Builtins(d *Deps) []Function {
	return []Function{
		d.findCustomer(),
		d.registerCustomer(),
		d.checkCalendar(),
		d.schedule(),
		d.cancelSchedule(),
		d.checkSchedules(),
		d.requestSchedulingLink(),
		d.getDayOfWeek(),
		d.getOfficeHours(),
		d.listAvailableServices(),
		d.getServiceProfessionals(),
		d.getCurrentDate(),
	}
}

// NewBuiltinRegistry builds the registry of Builtins and checks that every
// name in required is offered.
func NewBuiltinRegistry(d *Deps, required ...string) (*Registry, error) {
	if d == nil || d.DB == nil {
		return nil, fmt.Errorf("functions: missing deps")
	}
	if d.Log != nil {
		d.Log = d.Log.With("component", "Functions")
	}
	reg, err := NewRegistry(Builtins(d)...)
	if err != nil {
		return nil, err
	}
	if err := reg.Require(required...); err != nil {
		return nil, err
	}
	return reg, nil
}
