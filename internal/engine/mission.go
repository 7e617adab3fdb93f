package engine

import (
	"errors"
	"time"

	"fieldline/internal/domain"
)

// ActiveMission returns the agent's open mission, if any.
func ActiveMission(agentID string, missions []domain.Mission) (domain.Mission, bool) {
	for _, m := range missions {
		if m.AgentID == agentID && m.Active() {
			return m, true
		}
	}
	return domain.Mission{}, false
}

// StartMission opens a new mission for agentID. existing must hold the
// agent's current missions; the caller serializes start/end per agent so
// the check and the write are atomic.
func (e Engine) StartMission(agentID string, existing []domain.Mission) (domain.Mission, error) {
	if agentID == "" {
		return domain.Mission{}, errors.New("agent id is required")
	}
	if _, ok := ActiveMission(agentID, existing); ok {
		return domain.Mission{}, ErrMissionConflict
	}
	return domain.Mission{
		ID:        e.newID(),
		AgentID:   agentID,
		DateStart: e.now(),
		Status:    domain.MissionActive,
	}, nil
}

// EndMission closes m at the current instant. Ending an ended mission
// returns it unchanged.
func (e Engine) EndMission(m domain.Mission) domain.Mission {
	if !m.Active() {
		return m
	}
	end := e.now()
	m.DateEnd = &end
	m.Status = domain.MissionEnded
	return m
}

// ExpireMissions applies a timeout policy: active missions open for longer
// than maxDuration are returned ended at DateStart+maxDuration. Only the
// missions that changed are returned. A non-positive maxDuration disables
// expiry.
func (e Engine) ExpireMissions(missions []domain.Mission, maxDuration time.Duration) []domain.Mission {
	if maxDuration <= 0 {
		return nil
	}
	now := e.now()
	var out []domain.Mission
	for _, m := range missions {
		if !m.Active() {
			continue
		}
		deadline := m.DateStart.Add(maxDuration)
		if now.Before(deadline) {
			continue
		}
		end := deadline.UTC()
		m.DateEnd = &end
		m.Status = domain.MissionEnded
		out = append(out, m)
	}
	return out
}
