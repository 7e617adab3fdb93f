package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

// StartMission opens a mission for the agent. The in-process check and the
// partial unique index both report an already active mission as
// engine.ErrMissionConflict.
func (s *Service) StartMission(ctx context.Context, agentID string) (domain.Mission, error) {
	var m domain.Mission
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetAgent(ctx, tx, agentID); err != nil {
			return err
		}
		var open []domain.Mission
		active, err := s.Repo.ActiveMission(ctx, tx, agentID)
		switch {
		case err == nil:
			open = append(open, active)
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		m, err = s.Engine.StartMission(agentID, open)
		if err != nil {
			return err
		}
		if err := s.Repo.InsertMission(ctx, tx, m); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return engine.ErrMissionConflict
			}
			return err
		}
		return s.event(ctx, tx, events.Record{
			Type: events.MissionStarted, EntityKind: "mission", EntityID: m.ID, AgentID: agentID,
			Payload: events.Payload{"date_start": m.DateStart},
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	s.Log.WithFields(logrus.Fields{"agent_id": agentID, "mission_id": m.ID}).Info("mission started")
	return m, nil
}

// EndMission closes a mission. Ending an ended mission, or losing the race
// to another closer, returns the stored mission unchanged.
func (s *Service) EndMission(ctx context.Context, missionID string) (domain.Mission, error) {
	var out domain.Mission
	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := s.Repo.GetMission(ctx, tx, missionID)
		if err != nil {
			return err
		}
		out = s.Engine.EndMission(m)
		if out.Status == m.Status {
			return nil
		}
		if err := s.Repo.CloseMission(ctx, tx, out); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				out, err = s.Repo.GetMission(ctx, tx, missionID)
				return err
			}
			return err
		}
		changed = true
		return s.event(ctx, tx, events.Record{
			Type: events.MissionEnded, EntityKind: "mission", EntityID: out.ID, AgentID: out.AgentID,
			Payload: events.Payload{"date_end": out.DateEnd},
		})
	})
	if err != nil {
		return domain.Mission{}, err
	}
	if changed {
		s.Log.WithFields(logrus.Fields{"agent_id": out.AgentID, "mission_id": out.ID}).Info("mission ended")
	}
	return out, nil
}

func (s *Service) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	return s.Repo.GetMission(ctx, nil, id)
}

// MissionQuery scopes ListMissions. With From or To set, only missions
// whose period overlaps those days are listed.
type MissionQuery struct {
	AgentID string
	Status  domain.MissionStatus
	From    string
	To      string
}

func (s *Service) ListMissions(ctx context.Context, q MissionQuery) ([]domain.Mission, error) {
	f := repo.MissionFilters{AgentID: q.AgentID, Status: q.Status}
	if q.From != "" || q.To != "" {
		r, err := dates.Parse(singleDay(q.From, q.To))
		if err != nil {
			return nil, err
		}
		f.Range = r
	}
	return s.Repo.ListMissions(ctx, nil, f)
}

// SweepMissions ends every active mission older than the configured
// mission.max_duration and returns the ones it closed. A zero duration
// disables the sweep.
func (s *Service) SweepMissions(ctx context.Context) ([]domain.Mission, error) {
	maxDuration := s.Config.Mission.MaxDuration.Duration
	if maxDuration <= 0 {
		return nil, nil
	}
	var closed []domain.Mission
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		active, err := s.Repo.ListMissions(ctx, tx, repo.MissionFilters{Status: domain.MissionActive})
		if err != nil {
			return err
		}
		for _, m := range s.Engine.ExpireMissions(active, maxDuration) {
			if err := s.Repo.CloseMission(ctx, tx, m); err != nil {
				if errors.Is(err, repo.ErrConflict) {
					continue
				}
				return err
			}
			if err := s.event(ctx, tx, events.Record{
				Type: events.MissionExpired, EntityKind: "mission", EntityID: m.ID, AgentID: m.AgentID,
				Payload: events.Payload{"date_end": m.DateEnd, "max_duration": maxDuration.String()},
			}); err != nil {
				return err
			}
			closed = append(closed, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, m := range closed {
		s.Log.WithFields(logrus.Fields{"agent_id": m.AgentID, "mission_id": m.ID}).Info("mission expired")
	}
	return closed, nil
}
