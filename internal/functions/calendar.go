package functions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/pkg/pointers"
)

type professionalArgs struct {
	ProfessionalName string `json:"professional_name"`
	ProfissionalName string `json:"profissional_name"`
	ServiceName      string `json:"service_name"`
}

func (a professionalArgs) professional() string {
	if n := strings.TrimSpace(a.ProfessionalName); n != "" {
		return n
	}
	return strings.TrimSpace(a.ProfissionalName)
}

type checkCalendarArgs struct {
	Date string `json:"date"`
	professionalArgs
}

const checkCalendarSchema = `{
  "type": "object",
  "properties": {
    "date": {"type": "string", "minLength": 1},
    "professional_name": {"type": "string"},
    "profissional_name": {"type": "string"},
    "service_name": {"type": "string"}
  },
  "required": ["date"]
}`

func (d *Deps) checkCalendar() Function {
	return newFunc("check_calendar", checkCalendarSchema, func(ctx context.Context, a checkCalendarArgs, acct Account) (string, error) {
		at, err := d.Clock.ParseDate(a.Date)
		if err != nil {
			return d.Clock.withCurrentDate("Data inválida"), nil
		}
		dec, err := d.evaluate(dbctx.Context{Ctx: ctx}, slotRequest{
			CompanyID:        acct.CompanyID,
			Start:            at,
			ProfessionalName: a.professional(),
			ServiceName:      a.ServiceName,
		})
		if err != nil {
			return "", err
		}
		if !dec.OK() {
			return d.Clock.withCurrentDate(dec.Rejection), nil
		}
		return d.Clock.withCurrentDate("✅ O horário esta disponível."), nil
	})
}

type scheduleArgs struct {
	Date             string `json:"date"`
	DateFirstAux     string `json:"date_first_aux"`
	DateSecondAux    string `json:"date_second_aux"`
	Message          string `json:"message"`
	MessageFirstAux  string `json:"message_first_aux"`
	MessageSecondAux string `json:"message_second_aux"`
	professionalArgs
}

const scheduleSchema = `{
  "type": "object",
  "properties": {
    "date": {"type": "string", "minLength": 1},
    "date_first_aux": {"type": "string"},
    "date_second_aux": {"type": "string"},
    "message": {"type": "string"},
    "message_first_aux": {"type": "string"},
    "message_second_aux": {"type": "string"},
    "professional_name": {"type": "string"},
    "profissional_name": {"type": "string"},
    "service_name": {"type": "string"}
  },
  "required": ["date"]
}`

// schedule books an appointment and its reminder. Availability is decided
// inside the same transaction that writes both rows.
func (d *Deps) schedule() Function {
	return newFunc("schedule", scheduleSchema, func(ctx context.Context, a scheduleArgs, acct Account) (string, error) {
		at, err := d.Clock.ParseDate(a.Date)
		if err != nil {
			return d.Clock.withCurrentDate("Data inválida"), nil
		}
		firstAux := d.optionalDate(a.DateFirstAux)
		secondAux := d.optionalDate(a.DateSecondAux)

		var (
			rejection string
			created   *types.Schedule
		)
		err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			req := slotRequest{
				CompanyID:        acct.CompanyID,
				Start:            at,
				ProfessionalName: a.professional(),
				ServiceName:      a.ServiceName,
			}
			dec, err := d.evaluate(dbc, req)
			if err != nil {
				return err
			}
			if !dec.OK() {
				rejection = dec.Rejection
				return nil
			}
			// Bookings for one professional are serialized; the slot is
			// checked again once the lock is held.
			if err := d.Professionals.LockForBooking(dbc, acct.CompanyID, dec.Professional.ID); err != nil {
				return fmt.Errorf("lock professional: %w", err)
			}
			dec, err = d.evaluate(dbc, req)
			if err != nil {
				return err
			}
			if !dec.OK() {
				rejection = dec.Rejection
				return nil
			}
			appt := &types.Appointment{
				CompanyID:     acct.CompanyID,
				UserID:        dec.Professional.ID,
				TicketID:      acct.TicketID,
				ScheduledDate: dec.Slot.Start.UTC(),
				Description:   a.Message,
				Status:        scheduling.AppointmentPending,
			}
			if dec.Service != nil {
				appt.ServiceID = pointers.Int64(dec.Service.ID)
			}
			if err := d.Appointments.Create(dbc, appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			s := &types.Schedule{
				CompanyID:       acct.CompanyID,
				ContactID:       acct.ContactID,
				UserID:          dec.Professional.ID,
				Body:            a.Message,
				SendAt:          dec.Slot.Start.UTC(),
				BodyFirstAux:    a.MessageFirstAux,
				SendAtFirstAux:  firstAux,
				BodySecondAux:   a.MessageSecondAux,
				SendAtSecondAux: secondAux,
				Status:          scheduling.SchedulePending,
			}
			if err := d.Schedules.Create(dbc, s); err != nil {
				return fmt.Errorf("create schedule: %w", err)
			}
			created = s
			return nil
		})
		if err != nil {
			return "", err
		}
		if rejection != "" {
			return d.Clock.withCurrentDate(rejection), nil
		}
		if d.Notify != nil {
			d.Notify.ScheduleCreated(ctx, acct.CompanyID, created)
		}
		return "true", nil
	})
}

func (d *Deps) optionalDate(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t, err := d.Clock.ParseDate(s)
	if err != nil {
		return nil
	}
	return pointers.Ptr(t.UTC())
}

type cancelScheduleArgs struct {
	Date string `json:"date"`
}

const dateOnlySchema = `{
  "type": "object",
  "properties": {"date": {"type": "string", "minLength": 1}},
  "required": ["date"]
}`

func (d *Deps) cancelSchedule() Function {
	return newFunc("cancel_schedule", dateOnlySchema, func(ctx context.Context, a cancelScheduleArgs, acct Account) (string, error) {
		at, err := d.Clock.ParseDate(a.Date)
		if err != nil {
			return d.Clock.withCurrentDate("Data inválida"), nil
		}
		var (
			found    bool
			canceled *types.Schedule
		)
		err = d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.Context{Ctx: ctx, Tx: tx}
			appt, err := d.Appointments.FindByTicketAt(dbc, acct.TicketID, at.UTC())
			if err != nil {
				return fmt.Errorf("find appointment: %w", err)
			}
			if appt == nil {
				return nil
			}
			found = true
			if err := d.Appointments.UpdateStatus(dbc, appt.ID, scheduling.AppointmentCancelled); err != nil {
				return fmt.Errorf("cancel appointment %d: %w", appt.ID, err)
			}
			canceled, err = d.Schedules.Cancel(dbc, acct.CompanyID, acct.ContactID, at.UTC())
			if err != nil {
				return fmt.Errorf("cancel schedule: %w", err)
			}
			return nil
		})
		if err != nil {
			return "", err
		}
		if !found {
			return d.Clock.withCurrentDate("❌ Nenhum agendamento encontrado para essa data."), nil
		}
		if canceled != nil && d.Notify != nil {
			d.Notify.ScheduleCanceled(ctx, acct.CompanyID, canceled)
		}
		return d.Clock.withCurrentDate("true"), nil
	})
}

type noArgs struct{}

const noArgsSchema = `{"type": "object"}`

func (d *Deps) checkSchedules() Function {
	return newFunc("check_schedules", noArgsSchema, func(ctx context.Context, _ noArgs, acct Account) (string, error) {
		appts, err := d.Appointments.ListUpcomingByTicket(dbctx.Context{Ctx: ctx}, acct.TicketID, d.Clock.now().UTC())
		if err != nil {
			return "", fmt.Errorf("list appointments: %w", err)
		}
		if len(appts) == 0 {
			return d.Clock.withCurrentDate("### ❌ Você não possui agendamentos."), nil
		}
		var b strings.Builder
		b.WriteString("### 📅 Seus Agendamentos\n")
		for _, a := range appts {
			svc := "Não informado"
			if a.Service != nil && a.Service.Name != "" {
				svc = a.Service.Name
			}
			pro := "Não informado"
			if a.User != nil && a.User.Name != "" {
				pro = a.User.Name
			}
			desc := "Nenhuma"
			if strings.TrimSpace(a.Description) != "" {
				desc = a.Description
			}
			fmt.Fprintf(&b, "\n- **Data:** %s\n", a.ScheduledDate.In(d.Clock.loc()).Format("02/01/2006 15:04"))
			fmt.Fprintf(&b, "  - **Status:** %s\n", a.Status)
			fmt.Fprintf(&b, "  - **Serviço:** %s\n", svc)
			fmt.Fprintf(&b, "  - **Profissional:** %s\n", pro)
			fmt.Fprintf(&b, "  - **Descrição:** %s\n", desc)
		}
		return d.Clock.withCurrentDate(b.String()), nil
	})
}

func (d *Deps) requestSchedulingLink() Function {
	return newFunc("request_scheduling_link", noArgsSchema, func(_ context.Context, _ noArgs, acct Account) (string, error) {
		base := strings.TrimRight(strings.TrimSpace(d.SchedulingLinkBaseURL), "/")
		if base == "" {
			return d.Clock.withCurrentDate("❌ Link de agendamento não configurado."), nil
		}
		return d.Clock.withCurrentDate(fmt.Sprintf("%s/%d?ticketId=%d", base, acct.CompanyID, acct.TicketID)), nil
	})
}
