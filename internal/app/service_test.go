package app_test

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldline/internal/app"
	"fieldline/internal/config"
	"fieldline/internal/dates"
	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/events"
	"fieldline/internal/repo"
)

var office = domain.Coordinate{Lat: 6.3725, Lon: 2.3544}

type testEnv struct {
	Svc   *app.Service
	Ctx   context.Context
	clock *time.Time
}

func newTestEnv(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	ctx := context.Background()
	svc, err := app.Open(ctx, t.TempDir(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	now := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	seq := 0
	var mu sync.Mutex
	svc.Engine.NewID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc.ActorID = "supervisor"
	return testEnv{Svc: svc, Ctx: ctx, clock: &now}
}

func (env testEnv) set(t time.Time) { *env.clock = t }

func (env testEnv) agent(t *testing.T, id string) domain.Agent {
	t.Helper()
	_, err := env.Svc.CreateAgent(env.Ctx, id, "Agent "+id)
	require.NoError(t, err)
	a, err := env.Svc.SetZone(env.Ctx, id, domain.Zone{ID: "office", Center: office, RadiusMeters: 100})
	require.NoError(t, err)
	return a
}

func north(meters float64) domain.Coordinate {
	return domain.Coordinate{Lat: office.Lat + meters/6371000*180/math.Pi, Lon: office.Lon}
}

func at(day, clock string) time.Time {
	ts, err := time.Parse(time.RFC3339, day+"T"+clock+"Z")
	if err != nil {
		panic(err)
	}
	return ts
}

func TestPresenceScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")

	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	env.set(at("2025-11-05", "09:00:00"))

	c, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{
		MissionID: m.ID,
		Position:  north(20),
		Timestamp: at("2025-11-05", "09:00:00"),
	})
	require.NoError(t, err)
	require.True(t, c.Accepted(), "reason %s", c.Reason)

	p, err := env.Svc.RequestPermission(env.Ctx, engine.PermissionRequest{
		AgentID: "agent-1", StartDate: "2025-11-10", EndDate: "2025-11-12", Reason: "training",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionPending, p.Status)
	_, err = env.Svc.DecidePermission(env.Ctx, p.ID, domain.PermissionApproved)
	require.NoError(t, err)

	stats, err := env.Svc.AgentStats(env.Ctx, "agent-1", dates.Input{From: "2025-11-01", To: "2025-11-30"})
	require.NoError(t, err)
	assert.Equal(t, 30, stats.WorkingDays)
	assert.Equal(t, 1, stats.WorkedDays)
	assert.Equal(t, 3, stats.PermissionDays)
	assert.Equal(t, 26, stats.AbsenceDays)
	assert.Equal(t, 1, stats.TotalCheckins)
	assert.InDelta(t, 100.0/30, stats.PresenceRate, 1e-9)
	assert.InDelta(t, 1.0, stats.AverageCheckinsPerDay, 1e-9)
}

func TestRejectedCheckinsArePersisted(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	env.set(at("2025-11-03", "09:05:00"))

	far, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: north(500), Timestamp: at("2025-11-03", "09:00:00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOutOfRange, far.Reason)
	require.NotNil(t, far.DistanceMeters)
	assert.InDelta(t, 500, *far.DistanceMeters, 0.5)

	ok, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: north(10), Timestamp: at("2025-11-03", "09:01:00")})
	require.NoError(t, err)
	assert.True(t, ok.Accepted(), "a rejected attempt must not block the retry")

	dup, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: north(10), Timestamp: at("2025-11-03", "09:03:00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonDuplicateCheckin, dup.Reason)

	rejected, err := env.Svc.ListCheckins(env.Ctx, app.CheckinQuery{AgentID: "agent-1", RejectedOnly: true})
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, far.ID, rejected[0].ID)
	assert.Equal(t, dup.ID, rejected[1].ID)

	day, err := env.Svc.ListCheckins(env.Ctx, app.CheckinQuery{From: "2025-11-03"})
	require.NoError(t, err)
	assert.Len(t, day, 3)
	none, err := env.Svc.ListCheckins(env.Ctx, app.CheckinQuery{From: "2025-11-04"})
	require.NoError(t, err)
	assert.Empty(t, none)

	stats, err := env.Svc.AgentStats(env.Ctx, "agent-1", dates.Input{Date: "2025-11-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCheckins)
	assert.Equal(t, 2, stats.RejectedCheckins)
	assert.Equal(t, 1, stats.WorkedDays)
}

func TestCheckinOnEndedMission(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	_, err = env.Svc.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)

	c, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: office, Timestamp: at("2025-11-01", "09:00:00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMissionNotActive, c.Reason)
	assert.ErrorIs(t, engine.RejectionError(c.Reason), engine.ErrMissionNotActive)

	_, err = env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: "missing", Position: office})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestMissionConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)

	_, err = env.Svc.StartMission(env.Ctx, "agent-1")
	assert.ErrorIs(t, err, engine.ErrMissionConflict)

	ended, err := env.Svc.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionEnded, ended.Status)
	require.NotNil(t, ended.DateEnd)

	env.set(at("2025-11-02", "08:00:00"))
	again, err := env.Svc.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, again.DateEnd.Equal(*ended.DateEnd), "ending twice must not move the end date")

	next, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	assert.NotEqual(t, m.ID, next.ID)

	_, err = env.Svc.StartMission(env.Ctx, "nobody")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestConcurrentStartsOpenOneMission(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Svc.StartMission(env.Ctx, "agent-1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, engine.ErrMissionConflict)
	}
	assert.Equal(t, 1, ok)

	missions, err := env.Svc.ListMissions(env.Ctx, app.MissionQuery{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Len(t, missions, 1)
}

func TestListMissionsByPeriod(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	first, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	env.set(at("2025-11-01", "17:00:00"))
	_, err = env.Svc.EndMission(env.Ctx, first.ID)
	require.NoError(t, err)
	env.set(at("2025-11-03", "08:00:00"))
	second, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)

	got, err := env.Svc.ListMissions(env.Ctx, app.MissionQuery{AgentID: "agent-1", From: "2025-11-01"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)

	got, err = env.Svc.ListMissions(env.Ctx, app.MissionQuery{AgentID: "agent-1", From: "2025-11-02"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = env.Svc.ListMissions(env.Ctx, app.MissionQuery{AgentID: "agent-1", From: "2025-11-02", To: "2025-11-30"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	got, err = env.Svc.ListMissions(env.Ctx, app.MissionQuery{Status: domain.MissionActive})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)

	_, err = env.Svc.ListMissions(env.Ctx, app.MissionQuery{From: "2025-11-05", To: "2025-11-01"})
	assert.ErrorIs(t, err, dates.ErrInvalidRange)
}

func TestSweepMissions(t *testing.T) {
	cfg := config.Default()
	cfg.Mission.MaxDuration.Duration = 12 * time.Hour
	env := newTestEnv(t, cfg)
	env.agent(t, "agent-1")
	env.agent(t, "agent-2")

	old, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	env.set(at("2025-11-01", "19:00:00"))
	fresh, err := env.Svc.StartMission(env.Ctx, "agent-2")
	require.NoError(t, err)

	env.set(at("2025-11-01", "21:00:00"))
	closed, err := env.Svc.SweepMissions(env.Ctx)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, old.ID, closed[0].ID)
	assert.True(t, closed[0].DateEnd.Equal(at("2025-11-01", "20:00:00")))

	stored, err := env.Svc.GetMission(env.Ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionEnded, stored.Status)
	stored, err = env.Svc.GetMission(env.Ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionActive, stored.Status)

	closed, err = env.Svc.SweepMissions(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, closed)
}

func TestRevalidateAfterZoneChange(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	env.set(at("2025-11-01", "09:00:00"))

	c, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: north(150), Timestamp: at("2025-11-01", "09:00:00")})
	require.NoError(t, err)
	require.Equal(t, domain.ReasonOutOfRange, c.Reason)

	_, err = env.Svc.SetZone(env.Ctx, "agent-1", domain.Zone{ID: "office", Center: office, RadiusMeters: 200})
	require.NoError(t, err)

	c, err = env.Svc.RevalidateCheckin(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, c.Accepted())
	assert.Equal(t, "office", c.ZoneID)

	// a stored accepted check-in does not count as its own duplicate
	c, err = env.Svc.RevalidateCheckin(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, c.Accepted())

	require.NoError(t, env.Svc.RemoveZone(env.Ctx, "agent-1", "office"))
	c, err = env.Svc.RevalidateCheckin(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoReferenceZone, c.Reason)

	assert.ErrorIs(t, env.Svc.RemoveZone(env.Ctx, "agent-1", "office"), repo.ErrNotFound)
}

func TestRevalidateAfterMissionEnded(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	env.set(at("2025-11-03", "09:00:00"))
	c, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: north(10)})
	require.NoError(t, err)
	require.True(t, c.Accepted())

	env.set(at("2025-11-03", "17:00:00"))
	_, err = env.Svc.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)

	c, err = env.Svc.RevalidateCheckin(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, c.Accepted(), "reason %s", c.Reason)

	stats, err := env.Svc.AgentStats(env.Ctx, "agent-1", dates.Input{Date: "2025-11-03"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCheckins)
	assert.Equal(t, 1, stats.WorkedDays)
}

func TestCheckinOutsideMissionPeriod(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)

	early, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: office, Timestamp: at("2025-10-01", "09:00:00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMissionNotActive, early.Reason)

	ahead, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: office, Timestamp: at("2025-11-01", "09:00:00")})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMissionNotActive, ahead.Reason)

	stats, err := env.Svc.AgentStats(env.Ctx, "agent-1", dates.Input{From: "2025-10-01", To: "2025-11-01"})
	require.NoError(t, err)
	assert.Zero(t, stats.WorkedDays)
	assert.Equal(t, 2, stats.RejectedCheckins)
}

func TestZoneSelection(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	branch := domain.Coordinate{Lat: 6.4, Lon: 2.4}
	_, err := env.Svc.SetZone(env.Ctx, "agent-1", domain.Zone{ID: "branch", Center: branch, RadiusMeters: 100})
	require.NoError(t, err)
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)

	c, err := env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: branch})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonNoReferenceZone, c.Reason, "several zones and no selector")

	c, err = env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: branch, ZoneID: "branch"})
	require.NoError(t, err)
	assert.True(t, c.Accepted())
	assert.True(t, c.Timestamp.Equal(*env.clock), "missing timestamp defaults to now")

	_, err = env.Svc.SetZone(env.Ctx, "agent-1", domain.Zone{ID: "bad", Center: office})
	assert.ErrorIs(t, err, app.ErrInvalidZone)
	_, err = env.Svc.SetZone(env.Ctx, "agent-1", domain.Zone{ID: "bad", Center: domain.Coordinate{Lat: 91}, RadiusMeters: 10})
	assert.ErrorIs(t, err, app.ErrInvalidZone)
}

func TestPermissionDecisionIsTerminal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")

	_, err := env.Svc.RequestPermission(env.Ctx, engine.PermissionRequest{AgentID: "agent-1", StartDate: "2025-11-12", EndDate: "2025-11-10"})
	assert.ErrorIs(t, err, engine.ErrInvalidPermission)
	assert.ErrorIs(t, err, dates.ErrInvalidRange)

	_, err = env.Svc.RequestPermission(env.Ctx, engine.PermissionRequest{AgentID: "nobody", StartDate: "2025-11-10", EndDate: "2025-11-10"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	p, err := env.Svc.RequestPermission(env.Ctx, engine.PermissionRequest{AgentID: "agent-1", StartDate: "2025-11-10", EndDate: "2025-11-12"})
	require.NoError(t, err)
	p, err = env.Svc.DecidePermission(env.Ctx, p.ID, domain.PermissionRejected)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionRejected, p.Status)
	require.NotNil(t, p.DecidedAt)

	_, err = env.Svc.DecidePermission(env.Ctx, p.ID, domain.PermissionApproved)
	assert.ErrorIs(t, err, engine.ErrPermissionDecided)

	stats, err := env.Svc.AgentStats(env.Ctx, "agent-1", dates.Input{From: "2025-11-01", To: "2025-11-30"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PermissionDays, "rejected permissions never count")
	assert.Equal(t, 30, stats.AbsenceDays)

	all, err := env.Svc.ListPermissions(env.Ctx, "agent-1", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestActivities(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	env.agent(t, "agent-2")
	m2, err := env.Svc.StartMission(env.Ctx, "agent-2")
	require.NoError(t, err)

	_, err = env.Svc.RecordActivity(env.Ctx, engine.ActivityRequest{AgentID: "agent-1", MissionID: m2.ID, Title: "Survey", Date: "2025-11-04"})
	assert.ErrorIs(t, err, engine.ErrInvalidActivity)

	a, err := env.Svc.RecordActivity(env.Ctx, engine.ActivityRequest{AgentID: "agent-1", Title: "Survey", Date: "2025-11-04"})
	require.NoError(t, err)
	assert.Equal(t, "planned", a.Status)
	_, err = env.Svc.RecordActivity(env.Ctx, engine.ActivityRequest{AgentID: "agent-1", Title: "Training", Status: "completed", Date: "2025-11-06"})
	require.NoError(t, err)

	items, err := env.Svc.ListActivities(env.Ctx, "agent-1", "2025-11-01", "2025-11-05")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Survey", items[0].Title)

	items, err = env.Svc.ListActivities(env.Ctx, "agent-1", "", "")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestTeamReport(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, id := range []string{"agent-b", "agent-a", "agent-c"} {
		env.agent(t, id)
	}
	m, err := env.Svc.StartMission(env.Ctx, "agent-b")
	require.NoError(t, err)
	env.set(at("2025-11-02", "10:00:00"))
	_, err = env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: office, Timestamp: at("2025-11-02", "10:00:00")})
	require.NoError(t, err)

	report, err := env.Svc.TeamReport(env.Ctx, dates.Input{From: "2025-11-01", To: "2025-11-10"})
	require.NoError(t, err)
	require.Len(t, report, 3)
	assert.Equal(t, "agent-a", report[0].AgentID)
	assert.Equal(t, "agent-b", report[1].AgentID)
	assert.Equal(t, 1, report[1].WorkedDays)
	assert.Equal(t, 0, report[2].WorkedDays)
	assert.Equal(t, 10, report[2].WorkingDays)

	_, err = env.Svc.TeamReport(env.Ctx, dates.Input{From: "2025-11-10", To: "2025-11-01"})
	assert.ErrorIs(t, err, dates.ErrInvalidRange)
}

func TestWeekendCalendarFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Calendar.Weekend = []string{"saturday", "sunday"}
	env := newTestEnv(t, cfg)
	env.agent(t, "agent-1")

	stats, err := env.Svc.AgentStats(env.Ctx, "agent-1", dates.Input{From: "2025-11-01", To: "2025-11-30"})
	require.NoError(t, err)
	assert.Equal(t, 20, stats.WorkingDays)
	assert.Equal(t, 20, stats.AbsenceDays)
}

func TestAuditLog(t *testing.T) {
	env := newTestEnv(t, nil)
	env.agent(t, "agent-1")
	m, err := env.Svc.StartMission(env.Ctx, "agent-1")
	require.NoError(t, err)
	_, err = env.Svc.SubmitCheckin(env.Ctx, domain.CheckinDraft{MissionID: m.ID, Position: north(1000)})
	require.NoError(t, err)

	evts, err := env.Svc.AuditLog(env.Ctx, "agent-1", 2)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, events.CheckinRejected, evts[0].Type)
	assert.Contains(t, evts[0].Payload, `"reason":"out_of_range"`)
	assert.Equal(t, events.MissionStarted, evts[1].Type)

	all, err := env.Svc.AuditLog(env.Ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestCreateAgentDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.Svc.CreateAgent(env.Ctx, "agent-1", "")
	require.NoError(t, err)
	_, err = env.Svc.CreateAgent(env.Ctx, "agent-1", "")
	assert.ErrorIs(t, err, app.ErrInvalidAgent)

	a, err := env.Svc.CreateAgent(env.Ctx, "", "generated")
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	_, err = env.Svc.CreateAgent(env.Ctx, strings.Repeat("x", 65), "")
	assert.ErrorIs(t, err, app.ErrInvalidAgent)

	agents, err := env.Svc.ListAgents(env.Ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}
