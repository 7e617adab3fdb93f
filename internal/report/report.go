// Package report maps presence statistics and activities to display
// strings. Nothing here depends on a locale.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
)

// Summary is the display form of domain.PresenceStats.
type Summary struct {
	AgentID          string `json:"agent_id"`
	Period           string `json:"period"`
	PresenceRate     string `json:"presence_rate"`
	Days             string `json:"days"`
	PermissionDays   string `json:"permission_days"`
	AbsenceDays      string `json:"absence_days"`
	TotalCheckins    string `json:"total_checkins"`
	RejectedCheckins string `json:"rejected_checkins"`
	AveragePerDay    string `json:"average_per_day"`
}

type ActivityLine struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	StatusRaw string `json:"status_code"`
}

var statusLabels = map[string]string{
	"planned":       "Planned",
	"completed":     "Completed",
	"in_progress":   "In progress",
	"not_completed": "Not completed",
	"cancelled":     "Cancelled",
}

// StatusLabel maps a known activity status code to its label. Unknown codes
// are returned unchanged.
func StatusLabel(code string) string {
	if label, ok := statusLabels[code]; ok {
		return label
	}
	return code
}

// Percent renders v with one decimal, e.g. "3.3%".
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// Ratio renders "worked / working".
func Ratio(worked, working int) string {
	return fmt.Sprintf("%d / %d", worked, working)
}

// Format converts stats for display. A nil stats yields zero values, never
// empty strings.
func Format(stats *domain.PresenceStats) Summary {
	if stats == nil {
		return Summary{
			PresenceRate:     Percent(0),
			Days:             Ratio(0, 0),
			PermissionDays:   "0",
			AbsenceDays:      "0",
			TotalCheckins:    "0",
			RejectedCheckins: "0",
			AveragePerDay:    "0.0",
		}
	}
	return Summary{
		AgentID:          stats.AgentID,
		Period:           period(stats.Range),
		PresenceRate:     Percent(stats.PresenceRate),
		Days:             Ratio(stats.WorkedDays, stats.WorkingDays),
		PermissionDays:   fmt.Sprintf("%d", stats.PermissionDays),
		AbsenceDays:      fmt.Sprintf("%d", stats.AbsenceDays),
		TotalCheckins:    fmt.Sprintf("%d", stats.TotalCheckins),
		RejectedCheckins: fmt.Sprintf("%d", stats.RejectedCheckins),
		AveragePerDay:    fmt.Sprintf("%.1f", stats.AverageCheckinsPerDay),
	}
}

func period(r domain.DateRange) string {
	if r.From.IsZero() || r.To.IsZero() {
		return ""
	}
	from, to := dates.DayKey(r.From), dates.DayKey(r.To)
	if from == to {
		return from
	}
	return from + " → " + to
}

// FormatActivities maps activities to display lines, keeping input order.
func FormatActivities(items []domain.Activity) []ActivityLine {
	out := make([]ActivityLine, 0, len(items))
	for _, a := range items {
		out = append(out, ActivityLine{
			ID:        a.ID,
			Date:      a.Date,
			Title:     a.Title,
			Status:    StatusLabel(a.Status),
			StatusRaw: a.Status,
		})
	}
	return out
}

// RenderSummaries writes one table row per summary.
func RenderSummaries(w io.Writer, items []Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Agent", "Period", "Presence", "Worked / Working", "Permission", "Absence", "Check-ins", "Rejected", "Avg/day"})
	for _, s := range items {
		tw.AppendRow(table.Row{s.AgentID, s.Period, s.PresenceRate, s.Days, s.PermissionDays, s.AbsenceDays, s.TotalCheckins, s.RejectedCheckins, s.AveragePerDay})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	tw.Render()
}

// RenderActivities writes activity lines as a table.
func RenderActivities(w io.Writer, items []ActivityLine) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Date", "Title", "Status"})
	for _, a := range items {
		tw.AppendRow(table.Row{a.ID, a.Date, a.Title, a.Status})
	}
	tw.Render()
}
