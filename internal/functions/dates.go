package functions

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Clock pins "now" and the business time zone. Naive dates coming from the
// assistant are wall-clock times in Loc.
type Clock struct {
	Now func() time.Time
	Loc *time.Location
}

func NewClock(tz string) (Clock, error) {
	if strings.TrimSpace(tz) == "" {
		tz = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Clock{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return Clock{Now: time.Now, Loc: loc}, nil
}

func (c Clock) now() time.Time {
	loc := c.loc()
	if c.Now == nil {
		return time.Now().In(loc)
	}
	return c.Now().In(loc)
}

func (c Clock) loc() *time.Location {
	if c.Loc == nil {
		return time.UTC
	}
	return c.Loc
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05.000",
	"2006-01-02",
}

// ParseDate reads an ISO-like date. Offsets are honored; naive values are
// taken as wall-clock time in the clock's zone.
func (c Clock) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(c.loc()), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, c.loc()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

var (
	ptWeekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}
	ptMonths   = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
)

func weekdayPT(d time.Weekday) string { return ptWeekdays[d] }

func monthPT(m time.Month) string { return ptMonths[m-1] }

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// formatLongPT renders "2 de março de 2026 às 10:15".
func formatLongPT(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d às %s", t.Day(), monthPT(t.Month()), t.Year(), t.Format("15:04"))
}

// CurrentDate is the date context handed to the assistant: today plus the
// next six days, in Portuguese.
func (c Clock) CurrentDate() string {
	now := c.now()
	var b strings.Builder
	fmt.Fprintf(&b, "Hoje: %s, %s\n", weekdayPT(now.Weekday()), formatLongPT(now))
	for i := 1; i <= 6; i++ {
		d := now.AddDate(0, 0, i)
		plural := ""
		if i > 1 {
			plural = "s"
		}
		fmt.Fprintf(&b, "(%d dia%s depois de hoje) %s: %d de %s de %d\n", i, plural, weekdayPT(d.Weekday()), d.Day(), monthPT(d.Month()), d.Year())
	}
	return b.String()
}

func (c Clock) withCurrentDate(out string) string {
	return out + "\nData Atual: " + c.CurrentDate()
}

// foldName lowercases s and strips diacritics ("Terça" -> "terca").
func foldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var weekdayAliases = map[time.Weekday][]string{
	time.Sunday:    {"domingo", "sunday", "dom", "sun"},
	time.Monday:    {"segunda-feira", "segunda", "monday", "seg", "mon"},
	time.Tuesday:   {"terca-feira", "terca", "tuesday", "ter", "tue"},
	time.Wednesday: {"quarta-feira", "quarta", "wednesday", "qua", "wed"},
	time.Thursday:  {"quinta-feira", "quinta", "thursday", "qui", "thu"},
	time.Friday:    {"sexta-feira", "sexta", "friday", "sex", "fri"},
	time.Saturday:  {"sabado", "saturday", "sab", "sat"},
}

func weekdayMatches(name string, d time.Weekday) bool {
	n := foldName(name)
	for _, a := range weekdayAliases[d] {
		if n == a {
			return true
		}
	}
	return false
}

// parseClock reads "HH:MM" as minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
