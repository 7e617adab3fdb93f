package engine

import (
	"fmt"
	"strings"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
)

// PermissionRequest is an agent's leave request over inclusive calendar days.
type PermissionRequest struct {
	AgentID   string
	StartDate string
	EndDate   string
	Reason    string
}

// RequestPermission validates req and returns a pending permission.
func (e Engine) RequestPermission(req PermissionRequest) (domain.Permission, error) {
	if req.AgentID == "" {
		return domain.Permission{}, fmt.Errorf("%w: agent id is required", ErrInvalidPermission)
	}
	r, err := dates.NormalizeRange(req.StartDate, req.EndDate)
	if err != nil {
		return domain.Permission{}, fmt.Errorf("%w: %w", ErrInvalidPermission, err)
	}
	return domain.Permission{
		ID:        e.newID(),
		AgentID:   req.AgentID,
		StartDate: dates.DayKey(r.From),
		EndDate:   dates.DayKey(r.To),
		Status:    domain.PermissionPending,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: e.now(),
	}, nil
}

// DecidePermission moves a pending permission to approved or rejected.
// Both outcomes are terminal.
func (e Engine) DecidePermission(p domain.Permission, status domain.PermissionStatus) (domain.Permission, error) {
	if status != domain.PermissionApproved && status != domain.PermissionRejected {
		return domain.Permission{}, fmt.Errorf("%w: cannot move to status %q", ErrInvalidPermission, status)
	}
	if p.Status != domain.PermissionPending {
		return domain.Permission{}, fmt.Errorf("%w: %s is %s", ErrPermissionDecided, p.ID, p.Status)
	}
	now := e.now()
	p.Status = status
	p.DecidedAt = &now
	return p, nil
}

// ActivityRequest describes a planned or reported activity.
type ActivityRequest struct {
	AgentID   string
	MissionID string
	Title     string
	Status    string
	Date      string
}

// NewActivity validates req. Status codes are not restricted so new codes
// can be introduced without touching the engine; an empty status is planned.
func (e Engine) NewActivity(req ActivityRequest) (domain.Activity, error) {
	title := strings.TrimSpace(req.Title)
	if req.AgentID == "" || title == "" {
		return domain.Activity{}, fmt.Errorf("%w: agent id and title are required", ErrInvalidActivity)
	}
	day, err := dates.ParseDay(req.Date)
	if err != nil {
		return domain.Activity{}, fmt.Errorf("%w: %w", ErrInvalidActivity, err)
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = "planned"
	}
	return domain.Activity{
		ID:        e.newID(),
		AgentID:   req.AgentID,
		MissionID: req.MissionID,
		Title:     title,
		Status:    status,
		Date:      dates.DayKey(day),
		CreatedAt: e.now(),
	}, nil
}
