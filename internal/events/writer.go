// Package events appends audit records for every state change.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	AgentCreated       = "agent.created"
	ZoneSet            = "zone.set"
	ZoneRemoved        = "zone.removed"
	MissionStarted     = "mission.started"
	MissionEnded       = "mission.ended"
	MissionExpired     = "mission.expired"
	CheckinAccepted    = "checkin.accepted"
	CheckinRejected    = "checkin.rejected"
	CheckinRevalidated = "checkin.revalidated"
	PermissionAsked    = "permission.requested"
	PermissionDecided  = "permission.decided"
	ActivityRecorded   = "activity.recorded"
)

type Writer struct {
	Now func() time.Time
}

type Payload map[string]any

// Record is one audit entry. AgentID is the agent the entity belongs to;
// ActorID is whoever issued the command.
type Record struct {
	Type       string
	EntityKind string
	EntityID   string
	AgentID    string
	ActorID    string
	Payload    Payload
}

// Append writes rec inside tx so the event commits with the change it
// describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, rec Record) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := rec.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	actor := rec.ActorID
	if actor == "" {
		actor = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,agent_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), rec.Type, rec.EntityKind, nullable(rec.EntityID), nullable(rec.AgentID), actor, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
