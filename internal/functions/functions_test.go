package functions

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	schedrepo "github.com/yungbote/assistflow-backend/internal/data/repos/scheduling"
	"github.com/yungbote/assistflow-backend/internal/data/repos/testutil"
	ticketrepo "github.com/yungbote/assistflow-backend/internal/data/repos/tickets"
	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
	"github.com/yungbote/assistflow-backend/internal/realtime/bus"
	"github.com/yungbote/assistflow-backend/internal/services"
)

type fixture struct {
	db   *gorm.DB
	bus  *bus.MemoryBus
	reg  *Registry
	deps *Deps
	loc  *time.Location
	acct Account
}

// newFixture seeds one company with a single professional working Mondays
// 09:00-17:00 and an existing 10:00 appointment on Monday 2026-03-02. The
// clock reads Sunday 2026-03-01 08:00.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, loc)

	contact := &types.Contact{CompanyID: 1, Name: "Ana", Number: "5511988887777", Email: "ana@example.com"}
	require.NoError(t, db.Create(contact).Error)
	ticket := &types.Ticket{CompanyID: 1, ContactID: contact.ID, Status: "pending"}
	require.NoError(t, db.Create(ticket).Error)

	haircut := types.Service{CompanyID: 1, Name: "Corte", Duration: 30}
	pro := &types.User{
		CompanyID:              1,
		Name:                   "Bruna",
		Profile:                scheduling.ProfileProfessional,
		AppointmentSpacing:     30,
		AppointmentSpacingUnit: scheduling.SpacingMinutes,
		Schedules: []scheduling.WorkingHours{
			{Weekday: "Segunda-feira", StartTime: "09:00", EndTime: "17:00"},
			{Weekday: "Domingo", StartTime: "00:00", EndTime: "00:00"},
		},
		Services: []types.Service{haircut},
	}
	require.NoError(t, db.Create(pro).Error)
	require.NoError(t, db.Create(&types.Appointment{
		CompanyID:     1,
		UserID:        pro.ID,
		TicketID:      999,
		ScheduledDate: time.Date(2026, 3, 2, 10, 0, 0, 0, loc).UTC(),
		Status:        scheduling.AppointmentPending,
	}).Error)

	b := bus.NewMemoryBus()
	deps := &Deps{
		DB:                    db,
		Log:                   log,
		Tickets:               ticketrepo.NewTicketRepo(db, log),
		Contacts:              ticketrepo.NewContactRepo(db, log),
		Professionals:         schedrepo.NewProfessionalRepo(db, log),
		Services:              schedrepo.NewServiceRepo(db, log),
		Appointments:          schedrepo.NewAppointmentRepo(db, log),
		Schedules:             schedrepo.NewScheduleRepo(db, log),
		Notify:                services.NewNotifier(log, b),
		Clock:                 Clock{Now: func() time.Time { return now }, Loc: loc},
		SchedulingLinkBaseURL: "https://agenda.example.com/",
	}
	reg, err := NewBuiltinRegistry(deps)
	require.NoError(t, err)
	return &fixture{
		db:   db,
		bus:  b,
		reg:  reg,
		deps: deps,
		loc:  loc,
		acct: Account{TicketID: ticket.ID, CompanyID: 1, ContactID: contact.ID},
	}
}

func (f *fixture) call(t *testing.T, name string, args any) string {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	out, err := f.reg.Call(context.Background(), name, raw, f.acct)
	require.NoError(t, err)
	return out
}

func TestRegistryNamesAndRequire(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{
		"cancel_schedule", "check_calendar", "check_schedules", "find_customer",
		"get_current_date", "get_day_of_week", "get_office_hours", "get_service_professionals",
		"list_available_services", "register_customer", "request_scheduling_link", "schedule",
	}, f.reg.Names())
	assert.NoError(t, f.reg.Require("schedule", "check_calendar"))
	assert.ErrorContains(t, f.reg.Require("schedule", "send_invoice"), "send_invoice")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	a := newFunc("x", "", func(context.Context, noArgs, Account) (string, error) { return "", nil })
	_, err := NewRegistry(a, a)
	assert.ErrorContains(t, err, "duplicate")
}

func TestRegistryRejectsBadSchema(t *testing.T) {
	a := newFunc("x", `{"type": 12}`, func(context.Context, noArgs, Account) (string, error) { return "", nil })
	_, err := NewRegistry(a)
	assert.Error(t, err)
}

func TestCallUnknownFunctionIsError(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Call(context.Background(), "nope", nil, f.acct)
	assert.Error(t, err)
}

func TestCallInvalidArgumentsIsSoft(t *testing.T) {
	f := newFixture(t)
	out, err := f.reg.Call(context.Background(), "check_calendar", json.RawMessage(`{"date": 5}`), f.acct)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "❌ Argumentos inválidos para check_calendar:"), out)
}

func TestFindCustomer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "ana@example.com", f.call(t, "find_customer", map[string]string{"field": "email"}))
	assert.Equal(t, "false", f.call(t, "find_customer", map[string]string{"field": "cpf"}))

	assert.Equal(t, "true", f.call(t, "register_customer", map[string]string{"field": "cpf", "value": "123"}))
	assert.Equal(t, "123", f.call(t, "find_customer", map[string]string{"field": "cpf"}))
}

func TestRegisterCustomer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "true", f.call(t, "register_customer", map[string]string{"field": "number", "value": "000"}))
	assert.Equal(t, "null", f.call(t, "register_customer", map[string]string{"field": "email", "value": "not-an-email"}))
	assert.Equal(t, "null", f.call(t, "register_customer", map[string]string{"field": "name", "value": "  "}))
	assert.Equal(t, "true", f.call(t, "register_customer", map[string]string{"field": "name", "value": "Ana Paula"}))

	var c types.Contact
	require.NoError(t, f.db.First(&c, f.acct.ContactID).Error)
	assert.Equal(t, "Ana Paula", c.Name)
	assert.Equal(t, "5511988887777", c.Number)
	assert.Equal(t, "ana@example.com", c.Email)
}

func TestCheckCalendarConflictListsAlternatives(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "check_calendar", map[string]string{"date": "2026-03-02T10:15"})

	require.True(t, strings.HasPrefix(out, "❌ O horário solicitado (2026-03-02 10:15) não está disponível."), out)
	assert.Contains(t, out, "🔎 Horários disponíveis de 5 em 5 minutos:")
	assert.Contains(t, out, "- 09:30\n")
	assert.Contains(t, out, "- 10:30\n")
	assert.NotContains(t, out, "- 10:00\n")
	assert.NotContains(t, out, "- 09:45\n")
	assert.Contains(t, out, "\nData Atual: Hoje: domingo, 1 de março de 2026 às 08:00\n")
}

func TestCheckCalendarAvailable(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "check_calendar", map[string]string{"date": "2026-03-02T14:00", "service_name": "corte"})
	assert.True(t, strings.HasPrefix(out, "✅ O horário esta disponível."), out)
}

func TestCheckCalendarRejections(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		args map[string]string
		want string
	}{
		{"past", map[string]string{"date": "2026-02-27T10:00"}, "❌ Não é possível agendar para o passado."},
		{"closed day", map[string]string{"date": "2026-03-08T10:00"}, "❌ Profissional não atende neste dia."},
		{"missing weekday", map[string]string{"date": "2026-03-03T10:00"}, "❌ Profissional não atende neste dia."},
		{"after hours", map[string]string{"date": "2026-03-02T16:45"}, "❌ Profissional atende apenas entre 09:00 e 17:00."},
		{"before hours", map[string]string{"date": "2026-03-02T08:00"}, "❌ Profissional atende apenas entre 09:00 e 17:00."},
		{"unknown professional", map[string]string{"date": "2026-03-02T14:00", "professional_name": "Carla"}, "❌ Profissional não encontrado."},
		{"unknown service", map[string]string{"date": "2026-03-02T14:00", "service_name": "Manicure"}, "❌ Serviço informado não foi encontrado para este profissional."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := f.call(t, "check_calendar", tc.args)
			assert.True(t, strings.HasPrefix(out, tc.want), out)
		})
	}
}

func TestCheckCalendarAsksForProfessionalWhenSeveral(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&types.User{CompanyID: 1, Name: "Carla", Profile: scheduling.ProfileProfessional}).Error)

	out := f.call(t, "check_calendar", map[string]string{"date": "2026-03-02T14:00"})
	assert.True(t, strings.HasPrefix(out, "❌ É necessário informar o professional_name"), out)

	out = f.call(t, "check_calendar", map[string]string{"date": "2026-03-02T14:00", "profissional_name": "bruna"})
	assert.True(t, strings.HasPrefix(out, "✅"), out)
}

func TestScheduleThenCancel(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "schedule", map[string]string{
		"date":           "2026-03-02T14:00",
		"date_first_aux": "2026-03-01T14:00",
		"message":        "Corte com a Bruna",
		"service_name":   "Corte",
	})
	require.Equal(t, "true", out)

	var appts []types.Appointment
	require.NoError(t, f.db.Where("ticket_id = ?", f.acct.TicketID).Find(&appts).Error)
	require.Len(t, appts, 1)
	assert.Equal(t, scheduling.AppointmentPending, appts[0].Status)
	assert.True(t, appts[0].ScheduledDate.Equal(time.Date(2026, 3, 2, 14, 0, 0, 0, f.loc)))
	require.NotNil(t, appts[0].ServiceID)

	var sched types.Schedule
	require.NoError(t, f.db.Where("contact_id = ?", f.acct.ContactID).First(&sched).Error)
	assert.Equal(t, scheduling.SchedulePending, sched.Status)
	require.NotNil(t, sched.SendAtFirstAux)

	// Same slot again is now taken.
	out = f.call(t, "schedule", map[string]string{"date": "2026-03-02T14:00"})
	assert.True(t, strings.HasPrefix(out, "❌ O horário solicitado (2026-03-02 14:00) não está disponível."), out)

	listed := f.call(t, "check_schedules", nil)
	assert.True(t, strings.HasPrefix(listed, "### 📅 Seus Agendamentos\n"), listed)
	assert.Contains(t, listed, "- **Data:** 02/03/2026 14:00\n")
	assert.Contains(t, listed, "  - **Serviço:** Corte\n")
	assert.Contains(t, listed, "  - **Profissional:** Bruna\n")

	out = f.call(t, "cancel_schedule", map[string]string{"date": "2026-03-02 14:00"})
	assert.True(t, strings.HasPrefix(out, "true\nData Atual: "), out)

	require.NoError(t, f.db.First(&appts[0], appts[0].ID).Error)
	assert.Equal(t, scheduling.AppointmentCancelled, appts[0].Status)
	require.NoError(t, f.db.First(&sched, sched.ID).Error)
	assert.Equal(t, scheduling.ScheduleCanceled, sched.Status)

	var actions []any
	for _, ev := range f.bus.Events() {
		if ev.Channel == "company-1-mainchannel" {
			actions = append(actions, ev.Data["action"])
		}
	}
	assert.Equal(t, []any{"create", "cancel"}, actions)

	out = f.call(t, "cancel_schedule", map[string]string{"date": "2026-03-02T14:00"})
	assert.True(t, strings.HasPrefix(out, "❌ Nenhum agendamento encontrado para essa data."), out)
}

// bookedWhileWaiting commits a competing appointment for the same slot while
// the caller waits for the professional's lock.
type bookedWhileWaiting struct {
	schedrepo.ProfessionalRepo
	at time.Time
}

func (b *bookedWhileWaiting) LockForBooking(dbc dbctx.Context, companyID, id int64) error {
	if err := dbc.Tx.Create(&types.Appointment{
		CompanyID:     companyID,
		UserID:        id,
		TicketID:      998,
		ScheduledDate: b.at.UTC(),
		Status:        scheduling.AppointmentPending,
	}).Error; err != nil {
		return err
	}
	return b.ProfessionalRepo.LockForBooking(dbc, companyID, id)
}

func TestScheduleChecksSlotAgainUnderLock(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, f.loc)
	f.deps.Professionals = &bookedWhileWaiting{ProfessionalRepo: f.deps.Professionals, at: at}

	out := f.call(t, "schedule", map[string]string{"date": "2026-03-02T14:00"})

	assert.True(t, strings.HasPrefix(out, "❌ O horário solicitado (2026-03-02 14:00) não está disponível."), out)
	var n int64
	require.NoError(t, f.db.Model(&types.Appointment{}).Where("ticket_id = ?", f.acct.TicketID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestConcurrentBookingsOfOneSlot(t *testing.T) {
	f := newFixture(t)
	raw, err := json.Marshal(map[string]string{"date": "2026-03-02T14:00"})
	require.NoError(t, err)

	outs := make([]string, 4)
	var wg sync.WaitGroup
	for i := range outs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := f.reg.Call(context.Background(), "schedule", raw, f.acct)
			if err != nil {
				t.Errorf("schedule: %v", err)
				return
			}
			outs[i] = out
		}(i)
	}
	wg.Wait()

	booked := 0
	for _, out := range outs {
		if out == "true" {
			booked++
		}
	}
	assert.Equal(t, 1, booked, "outputs: %v", outs)
	var n int64
	require.NoError(t, f.db.Model(&types.Appointment{}).Where("ticket_id = ?", f.acct.TicketID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCheckSchedulesEmpty(t *testing.T) {
	f := newFixture(t)
	out := f.call(t, "check_schedules", nil)
	assert.True(t, strings.HasPrefix(out, "### ❌ Você não possui agendamentos."), out)
}

func TestCatalogFunctions(t *testing.T) {
	f := newFixture(t)

	link := f.call(t, "request_scheduling_link", nil)
	assert.True(t, strings.HasPrefix(link, "https://agenda.example.com/1?ticketId="), link)

	assert.True(t, strings.HasPrefix(f.call(t, "get_day_of_week", map[string]string{"date": "2026-03-04"}), "Quarta-feira\n"))
	assert.Equal(t, "Data inválida", f.call(t, "get_day_of_week", map[string]string{"date": "amanhã"}))

	hours := f.call(t, "get_office_hours", map[string]any{"serviceId": "1"})
	assert.Contains(t, hours, "### 🗓️ Horários de Atendimento\n\n- **Segunda-feira**: 09:00 - 17:00\n- **Domingo**: Fechado\n")

	svcs := f.call(t, "list_available_services", nil)
	assert.Contains(t, svcs, "### 📋 Serviços Disponíveis\n\n- **Corte** (ID: ")

	pros := f.call(t, "get_service_professionals", map[string]string{"service_name": "Corte"})
	assert.Contains(t, pros, "### 👩‍⚕️ Profissionais para o serviço **Corte**\n\n- **Bruna**:\n  - **Segunda-feira**: 09:00 - 17:00\n")
	none := f.call(t, "get_service_professionals", map[string]string{"service_name": "Manicure"})
	assert.True(t, strings.HasPrefix(none, "Nenhum profissional vinculado a este serviço."), none)

	today := f.call(t, "get_current_date", nil)
	lines := strings.Split(strings.TrimSpace(today), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Hoje: domingo, 1 de março de 2026 às 08:00", lines[0])
	assert.Equal(t, "(1 dia depois de hoje) segunda-feira: 2 de março de 2026", lines[1])
	assert.Equal(t, "(6 dias depois de hoje) sábado: 7 de março de 2026", lines[6])
}

func TestOfficeHoursNeedsServiceWithSeveralProfessionals(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Create(&types.User{CompanyID: 1, Name: "Carla", Profile: scheduling.ProfileProfessional}).Error)

	out := f.call(t, "get_office_hours", map[string]any{})
	assert.True(t, strings.HasPrefix(out, "### ⚠️ É necessário informar o serviço"), out)

	out = f.call(t, "get_office_hours", map[string]any{"serviceId": 999})
	assert.True(t, strings.HasPrefix(out, "### ❌ Serviço não vinculado a nenhum profissional."), out)
}

func TestParseDateLayouts(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	c := Clock{Loc: loc}
	want := time.Date(2026, 3, 2, 10, 15, 0, 0, loc)
	for _, s := range []string{"2026-03-02T10:15", "2026-03-02T10:15:00", "2026-03-02 10:15", "2026-03-02T13:15:00Z"} {
		got, err := c.ParseDate(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), s)
	}
	_, err = c.ParseDate("02/03/2026")
	assert.Error(t, err)
}
