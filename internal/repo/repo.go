package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldline/internal/domain"
)

// Repo is the sqlite persistence adapter. Methods taking a *sql.Tx run on
// the database handle when tx is nil.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost check-and-set: a unique index rejected the
	// write or a conditional update matched no row.
	ErrConflict = errors.New("conflict")
)

type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) on(tx *sql.Tx) runner {
	if tx != nil {
		return tx
	}
	return r.DB
}

// tsLayout is fixed width so stored instants sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func parseNullTS(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := parseTS(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO agents(id,name,created_at) VALUES (?,?,?)`,
		a.ID, nullable(a.Name), formatTS(a.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("agent %s already exists: %w", a.ID, ErrConflict)
	}
	if err != nil {
		return err
	}
	for _, z := range a.Zones {
		if err := r.UpsertZone(ctx, tx, a.ID, z); err != nil {
			return err
		}
	}
	return nil
}

// GetAgent loads an agent together with its zones.
func (r Repo) GetAgent(ctx context.Context, tx *sql.Tx, id string) (domain.Agent, error) {
	var a domain.Agent
	var name sql.NullString
	var created string
	err := r.on(tx).QueryRowContext(ctx, `SELECT id,name,created_at FROM agents WHERE id=?`, id).Scan(&a.ID, &name, &created)
	if err == sql.ErrNoRows {
		return a, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return a, err
	}
	a.Name = name.String
	if a.CreatedAt, err = parseTS(created); err != nil {
		return a, err
	}
	a.Zones, err = r.ListZones(ctx, tx, id)
	return a, err
}

func (r Repo) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM agents ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	var res []domain.Agent
	for rows.Next() {
		var a domain.Agent
		var name sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &name, &created); err != nil {
			rows.Close()
			return nil, err
		}
		a.Name = name.String
		if a.CreatedAt, err = parseTS(created); err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		zones, err := r.ListZones(ctx, nil, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Zones = zones
	}
	return res, nil
}

func (r Repo) UpsertZone(ctx context.Context, tx *sql.Tx, agentID string, z domain.Zone) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO zones(agent_id,id,label,lat,lon,radius_m,valid_from,valid_to) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(agent_id,id) DO UPDATE SET label=excluded.label, lat=excluded.lat, lon=excluded.lon, radius_m=excluded.radius_m,
valid_from=excluded.valid_from, valid_to=excluded.valid_to`,
		agentID, z.ID, nullable(z.Label), z.Center.Lat, z.Center.Lon, z.RadiusMeters, nullableTS(z.ValidFrom), nullableTS(z.ValidTo))
	return err
}

func (r Repo) DeleteZone(ctx context.Context, tx *sql.Tx, agentID, zoneID string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM zones WHERE agent_id=? AND id=?`, agentID, zoneID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("zone %s of agent %s: %w", zoneID, agentID, ErrNotFound)
	}
	return nil
}

func (r Repo) ListZones(ctx context.Context, tx *sql.Tx, agentID string) ([]domain.Zone, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id,label,lat,lon,radius_m,valid_from,valid_to FROM zones WHERE agent_id=? ORDER BY id ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Zone
	for rows.Next() {
		var z domain.Zone
		var label, from, to sql.NullString
		if err := rows.Scan(&z.ID, &label, &z.Center.Lat, &z.Center.Lon, &z.RadiusMeters, &from, &to); err != nil {
			return nil, err
		}
		z.Label = label.String
		if z.ValidFrom, err = parseNullTS(from); err != nil {
			return nil, err
		}
		if z.ValidTo, err = parseNullTS(to); err != nil {
			return nil, err
		}
		res = append(res, z)
	}
	return res, rows.Err()
}
