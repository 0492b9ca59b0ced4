package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

func (d *Deps) getDayOfWeek() Function {
	return newFunc("get_day_of_week", dateOnlySchema, func(_ context.Context, a cancelScheduleArgs, _ Account) (string, error) {
		t, err := d.Clock.ParseDate(a.Date)
		if err != nil {
			return "Data inválida", nil
		}
		return d.Clock.withCurrentDate(capitalize(weekdayPT(t.Weekday()))), nil
	})
}

// looseID accepts an id sent either as a JSON number or a numeric string.
type looseID int64

func (id *looseID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", s)
	}
	*id = looseID(n)
	return nil
}

type officeHoursArgs struct {
	ServiceID looseID `json:"serviceId"`
}

const officeHoursSchema = `{
  "type": "object",
  "properties": {"serviceId": {"type": ["integer", "string", "null"]}}
}`

func (d *Deps) getOfficeHours() Function {
	return newFunc("get_office_hours", officeHoursSchema, func(ctx context.Context, a officeHoursArgs, acct Account) (string, error) {
		dbc := dbctx.Context{Ctx: ctx}
		pros, err := d.Professionals.List(dbc, acct.CompanyID, "")
		if err != nil {
			return "", fmt.Errorf("list professionals: %w", err)
		}
		if len(pros) == 0 {
			return d.Clock.withCurrentDate("### ❌ Nenhum profissional cadastrado."), nil
		}
		pro := pros[0]
		if len(pros) > 1 {
			if a.ServiceID == 0 {
				return d.Clock.withCurrentDate("### ⚠️ É necessário informar o serviço para identificar o profissional."), nil
			}
			byService, err := d.Professionals.ListByService(dbc, acct.CompanyID, int64(a.ServiceID), "")
			if err != nil {
				return "", fmt.Errorf("list professionals by service: %w", err)
			}
			if len(byService) == 0 {
				return d.Clock.withCurrentDate("### ❌ Serviço não vinculado a nenhum profissional."), nil
			}
			pro = byService[0]
		}
		if len(pro.Schedules) == 0 {
			return d.Clock.withCurrentDate("### ❌ Horários não encontrados para o profissional."), nil
		}
		var b strings.Builder
		b.WriteString("### 🗓️ Horários de Atendimento\n\n")
		writeWeek(&b, pro, "")
		return d.Clock.withCurrentDate(b.String()), nil
	})
}

func writeWeek(b *strings.Builder, pro *types.User, indent string) {
	for _, h := range pro.Schedules {
		if strings.TrimSpace(h.StartTime) == strings.TrimSpace(h.EndTime) {
			fmt.Fprintf(b, "%s- **%s**: Fechado\n", indent, h.Weekday)
			continue
		}
		fmt.Fprintf(b, "%s- **%s**: %s - %s\n", indent, h.Weekday, h.StartTime, h.EndTime)
	}
}

func (d *Deps) listAvailableServices() Function {
	return newFunc("list_available_services", noArgsSchema, func(ctx context.Context, _ noArgs, acct Account) (string, error) {
		svcs, err := d.Services.ListByCompany(dbctx.Context{Ctx: ctx}, acct.CompanyID)
		if err != nil {
			return "", fmt.Errorf("list services: %w", err)
		}
		if len(svcs) == 0 {
			return d.Clock.withCurrentDate("Nenhum serviço disponível para esta empresa."), nil
		}
		var b strings.Builder
		b.WriteString("### 📋 Serviços Disponíveis\n\n")
		for _, s := range svcs {
			fmt.Fprintf(&b, "- **%s** (ID: %d)\n", s.Name, s.ID)
		}
		return d.Clock.withCurrentDate(b.String()), nil
	})
}

type serviceProfessionalsArgs struct {
	ServiceName string `json:"service_name"`
}

const serviceProfessionalsSchema = `{
  "type": "object",
  "properties": {"service_name": {"type": "string"}}
}`

func (d *Deps) getServiceProfessionals() Function {
	return newFunc("get_service_professionals", serviceProfessionalsSchema, func(ctx context.Context, a serviceProfessionalsArgs, acct Account) (string, error) {
		dbc := dbctx.Context{Ctx: ctx}
		name := strings.TrimSpace(a.ServiceName)
		var (
			pros []*types.User
			err  error
		)
		if name != "" {
			pros, err = d.Professionals.ListByService(dbc, acct.CompanyID, 0, name)
		} else {
			pros, err = d.Professionals.List(dbc, acct.CompanyID, "")
		}
		if err != nil {
			return "", fmt.Errorf("list professionals: %w", err)
		}
		if len(pros) == 0 {
			if name != "" {
				return d.Clock.withCurrentDate("Nenhum profissional vinculado a este serviço."), nil
			}
			return d.Clock.withCurrentDate("Nenhum profissional cadastrado."), nil
		}
		label := name
		if label == "" {
			label = "Todos"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "### 👩‍⚕️ Profissionais para o serviço **%s**\n\n", label)
		for _, p := range pros {
			fmt.Fprintf(&b, "- **%s**:\n", p.Name)
			writeWeek(&b, p, "  ")
		}
		return d.Clock.withCurrentDate(b.String()), nil
	})
}

func (d *Deps) getCurrentDate() Function {
	return newFunc("get_current_date", noArgsSchema, func(context.Context, noArgs, Account) (string, error) {
		return d.Clock.CurrentDate(), nil
	})
}
