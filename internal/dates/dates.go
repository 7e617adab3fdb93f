// Package dates turns calendar input into UTC day ranges. It is the only
// place calendar-to-instant conversion happens; everything downstream
// compares instants against a domain.DateRange.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldline/internal/domain"
)

const DayLayout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidRange = errors.New("invalid range")
)

// Layouts tried after the bare date form. Go accepts fractional seconds
// after the seconds field even when the layout omits them.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// Input is either a single value or an explicit from/to pair.
type Input struct {
	Date string
	From string
	To   string
}

// Parse normalizes whichever form in carries.
func Parse(in Input) (domain.DateRange, error) {
	if in.From != "" || in.To != "" {
		return NormalizeRange(in.From, in.To)
	}
	return Normalize(in.Date)
}

// Normalize expands a calendar date or an instant into its whole UTC day.
func Normalize(s string) (domain.DateRange, error) {
	day, err := ParseDay(s)
	if err != nil {
		return domain.DateRange{}, err
	}
	return domain.DateRange{From: day, To: EndOfDay(day)}, nil
}

// NormalizeRange expands from and to into [from 00:00:00.000, to 23:59:59.999] UTC.
func NormalizeRange(from, to string) (domain.DateRange, error) {
	start, err := ParseDay(from)
	if err != nil {
		return domain.DateRange{}, err
	}
	end, err := ParseDay(to)
	if err != nil {
		return domain.DateRange{}, err
	}
	if start.After(end) {
		return domain.DateRange{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start.Format(DayLayout), end.Format(DayLayout))
	}
	return domain.DateRange{From: start, To: EndOfDay(end)}, nil
}

// ParseDay returns midnight UTC of the UTC calendar day s designates.
// Instants without an offset are read as UTC.
func ParseDay(s string) (time.Time, error) {
	t, err := ParseInstant(s)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(t), nil
}

// ParseInstant reads s as a UTC instant. A bare date is its midnight UTC.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// StartOfDay truncates t to 00:00:00.000 of its UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns 23:59:59.999 of t's UTC calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Millisecond)
}

// Contains reports whether t falls on one of the range's days. The upper
// bound is the start of the following day, so sub-millisecond instants
// late on the last day are not dropped.
func Contains(r domain.DateRange, t time.Time) bool {
	if t.Before(r.From) {
		return false
	}
	return t.Before(StartOfDay(r.To).Add(24 * time.Hour))
}

// Days lists midnight UTC of every calendar day in r, in order.
func Days(r domain.DateRange) []time.Time {
	if r.From.IsZero() || r.To.IsZero() || r.From.After(r.To) {
		return nil
	}
	var out []time.Time
	last := StartOfDay(r.To)
	for d := StartOfDay(r.From); !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// DayKey is the canonical map key for t's UTC day.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
