package functions

import (
	"fmt"
	"sort"
	"strings"
	"time"

	types "github.com/yungbote/assistflow-backend/internal/domain"
	"github.com/yungbote/assistflow-backend/internal/domain/scheduling"
	"github.com/yungbote/assistflow-backend/internal/pkg/dbctx"
)

const (
	slotStep        = time.Minute
	suggestEvery    = 5
	maxSuggestions  = 12
	slotLabelLayout = "15:04"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && iv.End.After(o.Start)
}

func overlapsAny(iv Interval, booked []Interval) bool {
	for _, b := range booked {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

// OpenSlots slides a window of length dur across work one minute at a time
// and returns every start that fits without touching a booked interval.
func OpenSlots(work Interval, dur time.Duration, booked []Interval) []time.Time {
	if dur <= 0 {
		return nil
	}
	var out []time.Time
	for s := work.Start; !s.Add(dur).After(work.End); s = s.Add(slotStep) {
		if !overlapsAny(Interval{Start: s, End: s.Add(dur)}, booked) {
			out = append(out, s)
		}
	}
	return out
}

// Suggest keeps the open slots on 5-minute boundaries, picks up to twelve
// closest to the requested start and returns them in chronological order.
func Suggest(open []time.Time, requested time.Time) []time.Time {
	var aligned []time.Time
	for _, s := range open {
		if s.Minute()%suggestEvery == 0 {
			aligned = append(aligned, s)
		}
	}
	sort.SliceStable(aligned, func(i, j int) bool {
		return absDuration(aligned[i].Sub(requested)) < absDuration(aligned[j].Sub(requested))
	})
	if len(aligned) > maxSuggestions {
		aligned = aligned[:maxSuggestions]
	}
	sort.Slice(aligned, func(i, j int) bool { return aligned[i].Before(aligned[j]) })
	return aligned
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// slotRequest is one availability question.
type slotRequest struct {
	CompanyID        int64
	Start            time.Time
	ProfessionalName string
	ServiceName      string
}

// slotDecision is the outcome of evaluating a slotRequest. Rejection is the
// assistant-facing message when the slot cannot be booked.
type slotDecision struct {
	Professional *types.User
	Service      *types.Service
	Slot         Interval
	Rejection    string
}

func (d slotDecision) OK() bool { return d.Rejection == "" }

// evaluate runs the availability checks in order and stops at the first
// rejection. Infrastructure errors are returned as errors.
func (d *Deps) evaluate(dbc dbctx.Context, req slotRequest) (slotDecision, error) {
	now := d.Clock.now()
	start := req.Start.In(d.Clock.loc())
	if start.Before(now) {
		return slotDecision{Rejection: fmt.Sprintf(
			"❌ Não é possível agendar para o passado. Data informada: %s. Data atual: %s.",
			formatLongPT(start), formatLongPT(now))}, nil
	}

	pro, msg, err := d.resolveProfessional(dbc, req.CompanyID, req.ProfessionalName)
	if err != nil || msg != "" {
		return slotDecision{Rejection: msg}, err
	}

	var hours *scheduling.WorkingHours
	for i := range pro.Schedules {
		if weekdayMatches(pro.Schedules[i].Weekday, start.Weekday()) {
			hours = &pro.Schedules[i]
			break
		}
	}
	if hours == nil || strings.TrimSpace(hours.StartTime) == strings.TrimSpace(hours.EndTime) {
		return slotDecision{Professional: pro, Rejection: "❌ Profissional não atende neste dia."}, nil
	}
	work, err := workWindow(start, hours)
	if err != nil {
		return slotDecision{}, fmt.Errorf("professional %d working hours: %w", pro.ID, err)
	}

	dur, svc, msg := appointmentDuration(pro, req.ServiceName)
	if msg != "" {
		return slotDecision{Professional: pro, Rejection: msg}, nil
	}

	slot := Interval{Start: start, End: start.Add(dur)}
	if start.Before(work.Start) || !start.Before(work.End) || slot.End.After(work.End) {
		return slotDecision{Professional: pro, Service: svc, Rejection: fmt.Sprintf(
			"❌ Profissional atende apenas entre %s e %s.",
			work.Start.Format(slotLabelLayout), work.End.Format(slotLabelLayout))}, nil
	}

	booked, err := d.bookedIntervals(dbc, pro.ID, start, dur)
	if err != nil {
		return slotDecision{}, err
	}
	if overlapsAny(slot, booked) {
		var open []time.Time
		for _, s := range OpenSlots(work, dur, booked) {
			if !s.Before(now) {
				open = append(open, s)
			}
		}
		return slotDecision{Professional: pro, Service: svc, Slot: slot,
			Rejection: unavailableMessage(start, Suggest(open, start))}, nil
	}
	return slotDecision{Professional: pro, Service: svc, Slot: slot}, nil
}

func unavailableMessage(start time.Time, suggestions []time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ O horário solicitado (%s) não está disponível.", start.Format("2006-01-02 15:04"))
	if len(suggestions) == 0 {
		b.WriteString("\nNão há outros horários livres neste dia.")
		return b.String()
	}
	b.WriteString("\n🔎 Horários disponíveis de 5 em 5 minutos:")
	for _, s := range suggestions {
		b.WriteString("\n- ")
		b.WriteString(s.Format(slotLabelLayout))
	}
	return b.String()
}

func (d *Deps) resolveProfessional(dbc dbctx.Context, companyID int64, name string) (*types.User, string, error) {
	name = strings.TrimSpace(name)
	pros, err := d.Professionals.List(dbc, companyID, name)
	if err != nil {
		return nil, "", fmt.Errorf("list professionals: %w", err)
	}
	switch {
	case name != "" && len(pros) == 0:
		return nil, "❌ Profissional não encontrado.", nil
	case len(pros) == 0:
		return nil, "❌ Nenhum profissional disponível.", nil
	case name == "" && len(pros) > 1:
		return nil, "❌ É necessário informar o professional_name pois há diversos profissionais cadastrados.", nil
	}
	return pros[0], "", nil
}

func workWindow(day time.Time, h *scheduling.WorkingHours) (Interval, error) {
	from, err := parseClock(h.StartTime)
	if err != nil {
		return Interval{}, err
	}
	to, err := parseClock(h.EndTime)
	if err != nil {
		return Interval{}, err
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return Interval{
		Start: midnight.Add(time.Duration(from) * time.Minute),
		End:   midnight.Add(time.Duration(to) * time.Minute),
	}, nil
}

// appointmentDuration picks the named service's duration, falling back to the
// professional's appointment spacing.
func appointmentDuration(pro *types.User, serviceName string) (time.Duration, *types.Service, string) {
	if n := strings.TrimSpace(serviceName); n != "" {
		for i := range pro.Services {
			if strings.EqualFold(strings.TrimSpace(pro.Services[i].Name), n) {
				svc := &pro.Services[i]
				if svc.Duration > 0 {
					return time.Duration(svc.Duration) * time.Minute, svc, ""
				}
				dur, msg := spacing(pro)
				return dur, svc, msg
			}
		}
		return 0, nil, "❌ Serviço informado não foi encontrado para este profissional."
	}
	dur, msg := spacing(pro)
	return dur, nil, msg
}

func spacing(pro *types.User) (time.Duration, string) {
	var dur time.Duration
	switch strings.ToLower(strings.TrimSpace(pro.AppointmentSpacingUnit)) {
	case scheduling.SpacingMinutes:
		dur = time.Duration(pro.AppointmentSpacing) * time.Minute
	case scheduling.SpacingHours:
		dur = time.Duration(pro.AppointmentSpacing) * time.Hour
	default:
		return 0, "❌ Unidade de espaçamento inválida. Use 'min' ou 'hours'."
	}
	if dur <= 0 {
		return 0, "❌ Duração do atendimento não configurada para este profissional."
	}
	return dur, ""
}

func (d *Deps) bookedIntervals(dbc dbctx.Context, userID int64, day time.Time, fallback time.Duration) ([]Interval, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)
	appts, err := d.Appointments.ListActiveForUser(dbc, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		dur := fallback
		if a.Service != nil && a.Service.Duration > 0 {
			dur = time.Duration(a.Service.Duration) * time.Minute
		}
		s := a.ScheduledDate.In(day.Location())
		out = append(out, Interval{Start: s, End: s.Add(dur)})
	}
	return out, nil
}
