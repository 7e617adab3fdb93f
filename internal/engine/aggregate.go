package engine

import (
	"time"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
)

// Aggregate folds one agent's check-ins, missions and permissions over r.
// It never fails: missing or malformed input only lowers the counts.
//
// Worked, permission and absence days partition the working days. A day
// covered by an approved permission is never also a worked day, and days
// the calendar marks as non-working fall in no bucket.
func (e Engine) Aggregate(agent domain.Agent, r domain.DateRange, checkins []domain.Checkin, missions []domain.Mission, permissions []domain.Permission) domain.PresenceStats {
	stats := domain.PresenceStats{AgentID: agent.ID, Range: r}
	policy := e.calendar()

	working := map[string]bool{}
	for _, d := range dates.Days(r) {
		if policy.IsWorkingDay(d) {
			working[dates.DayKey(d)] = true
		}
	}
	stats.WorkingDays = len(working)

	onPermission := permissionDays(agent.ID, r, permissions, working)
	stats.PermissionDays = len(onPermission)

	owned := map[string]bool{}
	for _, m := range missions {
		if m.AgentID == agent.ID {
			owned[m.ID] = true
		}
	}
	worked := map[string]bool{}
	for _, c := range checkins {
		if !owned[c.MissionID] || (c.AgentID != "" && c.AgentID != agent.ID) {
			continue
		}
		if !dates.Contains(r, c.Timestamp) {
			continue
		}
		if !c.Accepted() {
			stats.RejectedCheckins++
			continue
		}
		stats.TotalCheckins++
		key := dates.DayKey(c.Timestamp)
		if working[key] && !onPermission[key] {
			worked[key] = true
		}
	}
	stats.WorkedDays = len(worked)

	stats.AbsenceDays = stats.WorkingDays - stats.WorkedDays - stats.PermissionDays
	// Unreachable while both buckets only hold working days.
	if stats.AbsenceDays < 0 {
		stats.AbsenceDays = 0
	}
	if stats.WorkedDays > 0 {
		stats.AverageCheckinsPerDay = float64(stats.TotalCheckins) / float64(stats.WorkedDays)
	}
	if stats.WorkingDays > 0 {
		stats.PresenceRate = float64(stats.WorkedDays) / float64(stats.WorkingDays) * 100
	}
	return stats
}

// permissionDays is the union of working days in r covered by the agent's
// approved permissions. Overlapping permissions count each day once.
func permissionDays(agentID string, r domain.DateRange, permissions []domain.Permission, working map[string]bool) map[string]bool {
	out := map[string]bool{}
	if len(working) == 0 {
		return out
	}
	first := dates.StartOfDay(r.From)
	last := dates.StartOfDay(r.To)
	for _, p := range permissions {
		if p.AgentID != agentID || p.Status != domain.PermissionApproved {
			continue
		}
		start, err := dates.ParseDay(p.StartDate)
		if err != nil {
			continue
		}
		end, err := dates.ParseDay(p.EndDate)
		if err != nil || end.Before(start) {
			continue
		}
		start = maxTime(start, first)
		end = minTime(end, last)
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if key := dates.DayKey(d); working[key] {
				out[key] = true
			}
		}
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
