package domain

import "time"

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Zone is a reference area a check-in is validated against.
type Zone struct {
	ID           string     `json:"id"`
	Label        string     `json:"label,omitempty"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_m"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty"`
}

// ActiveAt reports whether t falls inside the zone's optional validity window.
func (z Zone) ActiveAt(t time.Time) bool {
	if z.ValidFrom != nil && t.Before(*z.ValidFrom) {
		return false
	}
	if z.ValidTo != nil && t.After(*z.ValidTo) {
		return false
	}
	return true
}

type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Zones     []Zone    `json:"zones"`
	CreatedAt time.Time `json:"created_at"`
}

type MissionStatus string

const (
	MissionActive MissionStatus = "active"
	MissionEnded  MissionStatus = "ended"
)

type Mission struct {
	ID        string        `json:"id"`
	AgentID   string        `json:"agent_id"`
	DateStart time.Time     `json:"date_start"`
	DateEnd   *time.Time    `json:"date_end,omitempty"`
	Status    MissionStatus `json:"status"`
}

func (m Mission) Active() bool { return m.Status == MissionActive }

// RejectReason tags a rejected check-in. The empty reason means accepted.
type RejectReason string

const (
	ReasonMissionNotActive   RejectReason = "mission_not_active"
	ReasonInvalidCoordinate  RejectReason = "invalid_coordinate"
	ReasonNoReferenceZone    RejectReason = "no_reference_zone"
	ReasonOutOfRange         RejectReason = "out_of_range"
	ReasonLocationInaccurate RejectReason = "location_inaccurate"
	ReasonDuplicateCheckin   RejectReason = "duplicate_checkin"
)

// CheckinDraft is an agent submission before it has been validated.
type CheckinDraft struct {
	MissionID      string     `json:"mission_id"`
	Position       Coordinate `json:"position"`
	AccuracyMeters *float64   `json:"accuracy_m,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
	ZoneID         string     `json:"zone_id,omitempty"`
	Note           string     `json:"note,omitempty"`
	PhotoRef       string     `json:"photo_ref,omitempty"`
}

// Checkin is the persisted record for both accepted and rejected submissions.
type Checkin struct {
	ID             string       `json:"id"`
	MissionID      string       `json:"mission_id"`
	AgentID        string       `json:"agent_id"`
	Position       Coordinate   `json:"position"`
	AccuracyMeters *float64     `json:"accuracy_m,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	Note           string       `json:"note,omitempty"`
	PhotoRef       string       `json:"photo_ref,omitempty"`
	ZoneID         string       `json:"zone_id,omitempty"`
	DistanceMeters *float64     `json:"distance_m,omitempty"`
	Valid          bool         `json:"valid"`
	Reason         RejectReason `json:"reason,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

func (c Checkin) Accepted() bool { return c.Valid && c.Reason == "" }

type PermissionStatus string

const (
	PermissionPending  PermissionStatus = "pending"
	PermissionApproved PermissionStatus = "approved"
	PermissionRejected PermissionStatus = "rejected"
)

// Permission dates are inclusive calendar days in YYYY-MM-DD form.
type Permission struct {
	ID        string           `json:"id"`
	AgentID   string           `json:"agent_id"`
	StartDate string           `json:"start_date"`
	EndDate   string           `json:"end_date"`
	Status    PermissionStatus `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	DecidedAt *time.Time       `json:"decided_at,omitempty"`
}

// DateRange is an inclusive span of whole UTC days. It is never persisted.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type PresenceStats struct {
	AgentID               string    `json:"agent_id"`
	Range                 DateRange `json:"range"`
	WorkingDays           int       `json:"working_days"`
	WorkedDays            int       `json:"worked_days"`
	PermissionDays        int       `json:"permission_days"`
	AbsenceDays           int       `json:"absence_days"`
	TotalCheckins         int       `json:"total_checkins"`
	RejectedCheckins      int       `json:"rejected_checkins"`
	AverageCheckinsPerDay float64   `json:"average_checkins_per_day"`
	PresenceRate          float64   `json:"presence_rate"`
}

type Activity struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	MissionID string    `json:"mission_id,omitempty"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	Payload    string `json:"payload_json"`
}
