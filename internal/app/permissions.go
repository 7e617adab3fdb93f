package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

func (s *Service) RequestPermission(ctx context.Context, req engine.PermissionRequest) (domain.Permission, error) {
	p, err := s.Engine.RequestPermission(req)
	if err != nil {
		return domain.Permission{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetAgent(ctx, tx, p.AgentID); err != nil {
			return err
		}
		if err := s.Repo.InsertPermission(ctx, tx, p); err != nil {
			return err
		}
		return s.event(ctx, tx, events.Record{
			Type: events.PermissionAsked, EntityKind: "permission", EntityID: p.ID, AgentID: p.AgentID,
			Payload: events.Payload{"start_date": p.StartDate, "end_date": p.EndDate, "reason": p.Reason},
		})
	})
	if err != nil {
		return domain.Permission{}, err
	}
	s.Log.WithFields(logrus.Fields{"agent_id": p.AgentID, "permission_id": p.ID}).Info("permission requested")
	return p, nil
}

// DecidePermission approves or rejects a pending permission. A permission
// decided by someone else in the meantime yields engine.ErrPermissionDecided.
func (s *Service) DecidePermission(ctx context.Context, id string, status domain.PermissionStatus) (domain.Permission, error) {
	var p domain.Permission
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := s.Repo.GetPermission(ctx, tx, id)
		if err != nil {
			return err
		}
		p, err = s.Engine.DecidePermission(stored, status)
		if err != nil {
			return err
		}
		if err := s.Repo.DecidePermission(ctx, tx, p); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return fmt.Errorf("%w: %w", engine.ErrPermissionDecided, err)
			}
			return err
		}
		return s.event(ctx, tx, events.Record{
			Type: events.PermissionDecided, EntityKind: "permission", EntityID: p.ID, AgentID: p.AgentID,
			Payload: events.Payload{"status": string(p.Status)},
		})
	})
	if err != nil {
		return domain.Permission{}, err
	}
	s.Log.WithFields(logrus.Fields{"agent_id": p.AgentID, "permission_id": p.ID, "status": p.Status}).Info("permission decided")
	return p, nil
}

func (s *Service) ListPermissions(ctx context.Context, agentID string, status domain.PermissionStatus) ([]domain.Permission, error) {
	return s.Repo.ListPermissions(ctx, nil, repo.PermissionFilters{AgentID: agentID, Status: status})
}

// RecordActivity stores an activity. A mission reference must belong to
// the same agent.
func (s *Service) RecordActivity(ctx context.Context, req engine.ActivityRequest) (domain.Activity, error) {
	a, err := s.Engine.NewActivity(req)
	if err != nil {
		return domain.Activity{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Repo.GetAgent(ctx, tx, a.AgentID); err != nil {
			return err
		}
		if a.MissionID != "" {
			m, err := s.Repo.GetMission(ctx, tx, a.MissionID)
			if err != nil {
				return err
			}
			if m.AgentID != a.AgentID {
				return fmt.Errorf("%w: mission %s belongs to %s", engine.ErrInvalidActivity, m.ID, m.AgentID)
			}
		}
		if err := s.Repo.InsertActivity(ctx, tx, a); err != nil {
			return err
		}
		return s.event(ctx, tx, events.Record{
			Type: events.ActivityRecorded, EntityKind: "activity", EntityID: a.ID, AgentID: a.AgentID,
			Payload: events.Payload{"title": a.Title, "status": a.Status, "date": a.Date},
		})
	})
	if err != nil {
		return domain.Activity{}, err
	}
	s.Log.WithFields(logrus.Fields{"agent_id": a.AgentID, "activity_id": a.ID}).Info("activity recorded")
	return a, nil
}

func (s *Service) ListActivities(ctx context.Context, agentID, from, to string) ([]domain.Activity, error) {
	f := repo.ActivityFilters{AgentID: agentID}
	if from != "" || to != "" {
		r, err := dates.Parse(singleDay(from, to))
		if err != nil {
			return nil, err
		}
		f.From, f.To = dates.DayKey(r.From), dates.DayKey(r.To)
	}
	return s.Repo.ListActivities(ctx, f)
}
