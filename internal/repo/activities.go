package repo

import (
	"context"
	"database/sql"
	"strings"

	"fieldline/internal/domain"
)

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO activities(id,agent_id,mission_id,title,status,day,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.AgentID, nullable(a.MissionID), a.Title, a.Status, a.Date, formatTS(a.CreatedAt))
	return err
}

type ActivityFilters struct {
	AgentID string
	From    string
	To      string
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	var where []string
	var args []any
	if f.AgentID != "" {
		where = append(where, "agent_id=?")
		args = append(args, f.AgentID)
	}
	if f.From != "" {
		where = append(where, "day >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "day <= ?")
		args = append(args, f.To)
	}
	query := `SELECT id,agent_id,mission_id,title,status,day,created_at FROM activities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY day ASC, created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var mission sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &a.AgentID, &mission, &a.Title, &a.Status, &a.Date, &created); err != nil {
			return nil, err
		}
		a.MissionID = mission.String
		if a.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events first, optionally for one agent.
func (r Repo) LatestEvents(ctx context.Context, agentID string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,entity_kind,entity_id,agent_id,payload_json FROM events`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id=?`
		args = append(args, agentID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, agent sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &agent, &e.Payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.AgentID = agent.String
		res = append(res, e)
	}
	return res, rows.Err()
}
