// Package calendar decides which days are working days.
package calendar

import (
	"fmt"
	"strings"
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"

	"fieldline/internal/config"
	"fieldline/internal/dates"
)

// Policy decides whether a UTC calendar day counts as expected presence.
type Policy interface {
	IsWorkingDay(day time.Time) bool
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(day time.Time) bool

func (f PolicyFunc) IsWorkingDay(day time.Time) bool { return f(day) }

// EveryDay counts every calendar day as working.
var EveryDay Policy = PolicyFunc(func(time.Time) bool { return true })

// Business is a weekday calendar with holidays.
type Business struct {
	cal   *cal.BusinessCalendar
	extra map[string]struct{}
}

var usFederal = []*cal.Holiday{
	us.NewYear,
	us.MlkDay,
	us.PresidentsDay,
	us.MemorialDay,
	us.Juneteenth,
	us.IndependenceDay,
	us.LaborDay,
	us.ThanksgivingDay,
	us.ChristmasDay,
}

// NewBusiness returns a Monday–Friday calendar without holidays.
func NewBusiness() *Business {
	return &Business{cal: cal.NewBusinessCalendar(), extra: map[string]struct{}{}}
}

// SetWeekend replaces the non-working weekdays.
func (b *Business) SetWeekend(days ...time.Weekday) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		b.cal.SetWorkday(d, true)
	}
	for _, d := range days {
		b.cal.SetWorkday(d, false)
	}
}

// AddUSFederalHolidays registers the US federal holidays that close most
// businesses. Columbus Day and Veterans Day stay working days.
func (b *Business) AddUSFederalHolidays() {
	b.cal.AddHoliday(usFederal...)
}

// AddAnnual registers a holiday falling on the same month and day every year.
func (b *Business) AddAnnual(name string, month time.Month, day int) {
	b.cal.AddHoliday(&cal.Holiday{
		Name:  name,
		Month: month,
		Day:   day,
		Func:  cal.CalcDayOfMonth,
	})
}

// AddDate registers a one-off non-working day.
func (b *Business) AddDate(day time.Time) {
	b.extra[dates.DayKey(day)] = struct{}{}
}

func (b *Business) IsWorkingDay(day time.Time) bool {
	day = dates.StartOfDay(day)
	if _, off := b.extra[dates.DayKey(day)]; off {
		return false
	}
	return b.cal.IsWorkday(day)
}

// FromConfig builds the policy described by the calendar section. An empty
// section yields EveryDay.
func FromConfig(c config.Calendar) (Policy, error) {
	if c.IsZero() {
		return EveryDay, nil
	}
	b := NewBusiness()
	weekend := make([]time.Weekday, 0, len(c.Weekend))
	for _, name := range c.Weekend {
		d, err := parseWeekday(name)
		if err != nil {
			return nil, err
		}
		weekend = append(weekend, d)
	}
	b.SetWeekend(weekend...)
	if c.USFederal {
		b.AddUSFederalHolidays()
	}
	for _, h := range c.Annual {
		t, err := time.Parse("01-02", strings.TrimSpace(h.Date))
		if err != nil {
			return nil, fmt.Errorf("annual holiday %q: %w", h.Date, dates.ErrInvalidDate)
		}
		b.AddAnnual(h.Name, t.Month(), t.Day())
	}
	for _, raw := range c.Dates {
		day, err := dates.ParseDay(raw)
		if err != nil {
			return nil, fmt.Errorf("calendar date: %w", err)
		}
		b.AddDate(day)
	}
	return b, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if key == full || key == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}
