package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// SubmitCheckin validates a draft against its mission and the mission's
// agent and stores the verdict. A rejection is not an error: the returned
// record carries the reason and is persisted like an accepted one.
func (s *Service) SubmitCheckin(ctx context.Context, draft domain.CheckinDraft) (domain.Checkin, error) {
	var c domain.Checkin
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		mission, agent, prior, err := s.checkinContext(ctx, tx, draft.MissionID)
		if err != nil {
			return err
		}
		c = s.Engine.ValidateCheckin(draft, mission, agent, prior)
		if err := s.Repo.InsertCheckin(ctx, tx, c); err != nil {
			return err
		}
		return s.event(ctx, tx, verdictEvent(c, checkinEventType(c)))
	})
	if err != nil {
		return domain.Checkin{}, err
	}
	s.logVerdict(c, "checkin")
	return c, nil
}

// RevalidateCheckin re-runs the gates for a stored check-in against the
// current state of its mission and zones.
func (s *Service) RevalidateCheckin(ctx context.Context, id string) (domain.Checkin, error) {
	var c domain.Checkin
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.Repo.GetCheckin(ctx, tx, id)
		if err != nil {
			return err
		}
		mission, agent, prior, err := s.checkinContext(ctx, tx, stored.MissionID)
		if err != nil {
			return err
		}
		c = s.Engine.RevalidateCheckin(stored, mission, agent, prior)
		if err := s.Repo.UpdateCheckinVerdict(ctx, tx, c); err != nil {
			return err
		}
		rec := verdictEvent(c, events.CheckinRevalidated)
		rec.Payload["previous_reason"] = string(stored.Reason)
		return s.event(ctx, tx, rec)
	})
	if err != nil {
		return domain.Checkin{}, err
	}
	s.logVerdict(c, "checkin revalidated")
	return c, nil
}

func (s *Service) checkinContext(ctx context.Context, tx *sql.Tx, missionID string) (domain.Mission, domain.Agent, []domain.Checkin, error) {
	if missionID == "" {
		return domain.Mission{}, domain.Agent{}, nil, fmt.Errorf("mission id is required: %w", repo.ErrNotFound)
	}
	mission, err := s.Repo.GetMission(ctx, tx, missionID)
	if err != nil {
		return domain.Mission{}, domain.Agent{}, nil, err
	}
	agent, err := s.Repo.GetAgent(ctx, tx, mission.AgentID)
	if err != nil {
		return domain.Mission{}, domain.Agent{}, nil, err
	}
	valid := true
	prior, err := s.Repo.ListCheckins(ctx, tx, repo.CheckinFilters{MissionID: missionID, Valid: &valid})
	if err != nil {
		return domain.Mission{}, domain.Agent{}, nil, err
	}
	return mission, agent, prior, nil
}

func checkinEventType(c domain.Checkin) string {
	if c.Accepted() {
		return events.CheckinAccepted
	}
	return events.CheckinRejected
}

func verdictEvent(c domain.Checkin, typ string) events.Record {
	payload := events.Payload{
		"mission_id": c.MissionID,
		"valid":      c.Valid,
		"reason":     string(c.Reason),
		"zone_id":    c.ZoneID,
	}
	if c.DistanceMeters != nil {
		payload["distance_m"] = *c.DistanceMeters
	}
	return events.Record{Type: typ, EntityKind: "checkin", EntityID: c.ID, AgentID: c.AgentID, Payload: payload}
}

func (s *Service) logVerdict(c domain.Checkin, msg string) {
	entry := s.Log.WithFields(logrus.Fields{"agent_id": c.AgentID, "mission_id": c.MissionID, "checkin_id": c.ID})
	if c.Accepted() {
		entry.Info(msg + " accepted")
		return
	}
	entry.WithField("reason", c.Reason).Warn(msg + " rejected")
}

// CheckinQuery scopes ListCheckins. From and To are optional dates; when
// only one is given the range is that single day.
type CheckinQuery struct {
	AgentID      string
	MissionID    string
	From         string
	To           string
	RejectedOnly bool
}

func (s *Service) ListCheckins(ctx context.Context, q CheckinQuery) ([]domain.Checkin, error) {
	f := repo.CheckinFilters{AgentID: q.AgentID, MissionID: q.MissionID}
	if q.From != "" || q.To != "" {
		r, err := dates.Parse(singleDay(q.From, q.To))
		if err != nil {
			return nil, err
		}
		f.Range = r
	}
	if q.RejectedOnly {
		valid := false
		f.Valid = &valid
	}
	return s.Repo.ListCheckins(ctx, nil, f)
}

// singleDay fills a missing end of a from/to pair with the other end.
func singleDay(from, to string) dates.Input {
	if from == "" {
		from = to
	}
	if to == "" {
		to = from
	}
	return dates.Input{From: from, To: to}
}
