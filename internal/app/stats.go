package app

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
	"fieldline/internal/repo"
)

// AgentStats aggregates one agent's presence over the range in. Every
// mission of the agent is loaded so check-ins in range always find their
// owner; check-ins and permissions are scoped to the range.
func (s *Service) AgentStats(ctx context.Context, agentID string, in dates.Input) (domain.PresenceStats, error) {
	r, err := dates.Parse(in)
	if err != nil {
		return domain.PresenceStats{}, err
	}
	return s.agentStats(ctx, agentID, r)
}

func (s *Service) agentStats(ctx context.Context, agentID string, r domain.DateRange) (domain.PresenceStats, error) {
	agent, err := s.Repo.GetAgent(ctx, nil, agentID)
	if err != nil {
		return domain.PresenceStats{}, err
	}
	missions, err := s.Repo.ListMissions(ctx, nil, repo.MissionFilters{AgentID: agentID})
	if err != nil {
		return domain.PresenceStats{}, err
	}
	checkins, err := s.Repo.ListCheckins(ctx, nil, repo.CheckinFilters{AgentID: agentID, Range: r})
	if err != nil {
		return domain.PresenceStats{}, err
	}
	permissions, err := s.Repo.ListPermissions(ctx, nil, repo.PermissionFilters{
		AgentID: agentID,
		Status:  domain.PermissionApproved,
		From:    dates.DayKey(r.From),
		To:      dates.DayKey(r.To),
	})
	if err != nil {
		return domain.PresenceStats{}, err
	}
	stats := s.Engine.Aggregate(agent, r, checkins, missions, permissions)
	s.Log.WithFields(logrus.Fields{
		"agent_id": agentID,
		"from":     dates.DayKey(r.From),
		"to":       dates.DayKey(r.To),
		"worked":   stats.WorkedDays,
		"working":  stats.WorkingDays,
	}).Debug("presence aggregated")
	return stats, nil
}

// TeamReport computes stats for every agent over the same range, at most
// report.concurrency agents at a time. Results keep agent id order.
func (s *Service) TeamReport(ctx context.Context, in dates.Input) ([]domain.PresenceStats, error) {
	r, err := dates.Parse(in)
	if err != nil {
		return nil, err
	}
	agents, err := s.Repo.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PresenceStats, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Config.Report.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, a := range agents {
		i, a := i, a
		g.Go(func() error {
			stats, err := s.agentStats(gctx, a.ID, r)
			if err != nil {
				return err
			}
			out[i] = stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
