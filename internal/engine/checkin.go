package engine

import (
	"errors"
	"time"

	"fieldline/internal/domain"
	"fieldline/internal/geo"
)

var (
	ErrInvalidCoordinate  = errors.New("invalid coordinate")
	ErrNoReferenceZone    = errors.New("no reference zone")
	ErrOutOfRange         = errors.New("check-in out of range")
	ErrLocationInaccurate = errors.New("location inaccurate")
	ErrDuplicateCheckin   = errors.New("duplicate check-in")
)

// RejectionError maps a rejection reason to its sentinel so callers that
// prefer errors.Is can branch on it. Accepted check-ins map to nil.
func RejectionError(reason domain.RejectReason) error {
	switch reason {
	case "":
		return nil
	case domain.ReasonMissionNotActive:
		return ErrMissionNotActive
	case domain.ReasonInvalidCoordinate:
		return ErrInvalidCoordinate
	case domain.ReasonNoReferenceZone:
		return ErrNoReferenceZone
	case domain.ReasonOutOfRange:
		return ErrOutOfRange
	case domain.ReasonLocationInaccurate:
		return ErrLocationInaccurate
	case domain.ReasonDuplicateCheckin:
		return ErrDuplicateCheckin
	default:
		return errors.New(string(reason))
	}
}

// ValidateCheckin turns a draft into a check-in record. The record is
// always returned, accepted or not; rejected ones carry a reason and are
// persisted for audit like any other.
//
// prior holds check-ins already stored for the mission and feeds the
// duplicate guard.
func (e Engine) ValidateCheckin(draft domain.CheckinDraft, mission domain.Mission, agent domain.Agent, prior []domain.Checkin) domain.Checkin {
	now := e.now()
	ts := draft.Timestamp.UTC()
	if draft.Timestamp.IsZero() {
		ts = now
	}
	c := domain.Checkin{
		ID:             e.newID(),
		MissionID:      mission.ID,
		AgentID:        mission.AgentID,
		Position:       draft.Position,
		AccuracyMeters: draft.AccuracyMeters,
		Timestamp:      ts,
		Note:           draft.Note,
		PhotoRef:       draft.PhotoRef,
		ZoneID:         draft.ZoneID,
		CreatedAt:      now,
	}
	if !mission.Active() {
		return reject(c, domain.ReasonMissionNotActive)
	}
	return e.judge(c, mission, agent, prior)
}

// RevalidateCheckin recomputes the verdict of a stored check-in. It is the
// only path through which a stored verdict changes. The mission gate asks
// whether the mission covered the check-in timestamp, so a mission ended
// since submission keeps its check-ins.
func (e Engine) RevalidateCheckin(c domain.Checkin, mission domain.Mission, agent domain.Agent, prior []domain.Checkin) domain.Checkin {
	c.Valid = false
	c.Reason = ""
	c.DistanceMeters = nil
	return e.judge(c, mission, agent, prior)
}

func (e Engine) judge(c domain.Checkin, mission domain.Mission, agent domain.Agent, prior []domain.Checkin) domain.Checkin {
	if !e.covers(mission, c.Timestamp) {
		return reject(c, domain.ReasonMissionNotActive)
	}
	if !geo.ValidCoordinate(c.Position) {
		return reject(c, domain.ReasonInvalidCoordinate)
	}
	zone := geo.ResolveZoneAt(agent, c.ZoneID, c.Timestamp)
	if zone == nil {
		return reject(c, domain.ReasonNoReferenceZone)
	}
	c.ZoneID = zone.ID
	d := geo.DistanceMeters(c.Position, zone.Center)
	c.DistanceMeters = &d
	if !geo.IsWithinRadius(d, zone.RadiusMeters) {
		return reject(c, domain.ReasonOutOfRange)
	}
	if e.MaxAccuracyMeters > 0 && c.AccuracyMeters != nil && *c.AccuracyMeters > e.MaxAccuracyMeters {
		return reject(c, domain.ReasonLocationInaccurate)
	}
	if e.isDuplicate(c, prior) {
		return reject(c, domain.ReasonDuplicateCheckin)
	}
	c.Valid = true
	c.Reason = ""
	return c
}

// covers reports whether t falls in the mission's period: from DateStart
// through DateEnd, or through now plus MaxClockSkew while it is open.
func (e Engine) covers(m domain.Mission, t time.Time) bool {
	if t.Before(m.DateStart) {
		return false
	}
	if m.DateEnd != nil {
		return !t.After(*m.DateEnd)
	}
	return m.Active() && !t.After(e.now().Add(MaxClockSkew))
}

// isDuplicate looks for another accepted check-in of the same mission
// closer in time than DuplicateInterval. Rejected attempts never block a
// retry.
func (e Engine) isDuplicate(c domain.Checkin, prior []domain.Checkin) bool {
	if e.DuplicateInterval <= 0 {
		return false
	}
	for _, p := range prior {
		if p.ID == c.ID || p.MissionID != c.MissionID || !p.Accepted() {
			continue
		}
		gap := c.Timestamp.Sub(p.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap < e.DuplicateInterval {
			return true
		}
	}
	return false
}

func reject(c domain.Checkin, reason domain.RejectReason) domain.Checkin {
	c.Valid = false
	c.Reason = reason
	return c
}
