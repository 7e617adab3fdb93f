package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
)

const missionColumns = `id,agent_id,date_start,date_end,status`

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	var start string
	var end sql.NullString
	if err := scan(&m.ID, &m.AgentID, &start, &end, &m.Status); err != nil {
		return m, err
	}
	var err error
	if m.DateStart, err = parseTS(start); err != nil {
		return m, err
	}
	m.DateEnd, err = parseNullTS(end)
	return m, err
}

// InsertMission stores a new mission. A second active mission for the same
// agent violates missions_one_active and surfaces as ErrConflict.
func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO missions(`+missionColumns+`) VALUES (?,?,?,?,?)`,
		m.ID, m.AgentID, formatTS(m.DateStart), nullableTS(m.DateEnd), string(m.Status))
	if isUniqueViolation(err) {
		return fmt.Errorf("agent %s already has an active mission: %w", m.AgentID, ErrConflict)
	}
	return err
}

// CloseMission flips an active mission to ended. It only matches a row that
// is still active, so concurrent closers cannot both win.
func (r Repo) CloseMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE missions SET status=?, date_end=? WHERE id=? AND status=?`,
		string(m.Status), nullableTS(m.DateEnd), m.ID, string(domain.MissionActive))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mission %s is no longer active: %w", m.ID, ErrConflict)
	}
	return nil
}

func (r Repo) GetMission(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	m, err := scanMission(row.Scan)
	if err == sql.ErrNoRows {
		return m, fmt.Errorf("mission %s: %w", id, ErrNotFound)
	}
	return m, err
}

// ActiveMission returns the agent's open mission or ErrNotFound.
func (r Repo) ActiveMission(ctx context.Context, tx *sql.Tx, agentID string) (domain.Mission, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE agent_id=? AND status=?`, agentID, string(domain.MissionActive))
	m, err := scanMission(row.Scan)
	if err == sql.ErrNoRows {
		return m, fmt.Errorf("active mission of %s: %w", agentID, ErrNotFound)
	}
	return m, err
}

// MissionFilters scopes ListMissions. A zero DateRange lists everything;
// otherwise missions overlapping the range's days are returned.
type MissionFilters struct {
	AgentID string
	Status  domain.MissionStatus
	Range   domain.DateRange
}

func (r Repo) ListMissions(ctx context.Context, tx *sql.Tx, f MissionFilters) ([]domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		query += ` AND agent_id=?`
		args = append(args, f.AgentID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
	}
	if !f.Range.From.IsZero() && !f.Range.To.IsZero() {
		query += ` AND date_start < ? AND (date_end IS NULL OR date_end >= ?)`
		args = append(args, formatTS(dates.StartOfDay(f.Range.To).Add(24*time.Hour)), formatTS(f.Range.From))
	}
	query += ` ORDER BY date_start ASC, id ASC`
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
