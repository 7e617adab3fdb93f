package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldline/internal/dates"
	"fieldline/internal/domain"
)

const checkinColumns = `id,mission_id,agent_id,lat,lon,accuracy_m,ts,note,photo_ref,zone_id,distance_m,valid,reason,created_at`

func scanCheckin(scan func(dest ...any) error) (domain.Checkin, error) {
	var c domain.Checkin
	var accuracy, distance sql.NullFloat64
	var note, photo, zone, reason sql.NullString
	var ts, created string
	var valid int
	if err := scan(&c.ID, &c.MissionID, &c.AgentID, &c.Position.Lat, &c.Position.Lon, &accuracy, &ts,
		&note, &photo, &zone, &distance, &valid, &reason, &created); err != nil {
		return c, err
	}
	var err error
	if c.Timestamp, err = parseTS(ts); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTS(created); err != nil {
		return c, err
	}
	c.AccuracyMeters = floatPtr(accuracy)
	c.DistanceMeters = floatPtr(distance)
	c.Note = note.String
	c.PhotoRef = photo.String
	c.ZoneID = zone.String
	c.Valid = valid == 1
	c.Reason = domain.RejectReason(reason.String)
	return c, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// InsertCheckin stores a validated record, accepted or rejected.
func (r Repo) InsertCheckin(ctx context.Context, tx *sql.Tx, c domain.Checkin) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO checkins(`+checkinColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.MissionID, c.AgentID, c.Position.Lat, c.Position.Lon, nullableFloat(c.AccuracyMeters), formatTS(c.Timestamp),
		nullable(c.Note), nullable(c.PhotoRef), nullable(c.ZoneID), nullableFloat(c.DistanceMeters),
		boolInt(c.Valid), nullable(string(c.Reason)), formatTS(c.CreatedAt))
	return err
}

// UpdateCheckinVerdict rewrites the outcome columns after revalidation.
func (r Repo) UpdateCheckinVerdict(ctx context.Context, tx *sql.Tx, c domain.Checkin) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE checkins SET zone_id=?, distance_m=?, valid=?, reason=? WHERE id=?`,
		nullable(c.ZoneID), nullableFloat(c.DistanceMeters), boolInt(c.Valid), nullable(string(c.Reason)), c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("checkin %s: %w", c.ID, ErrNotFound)
	}
	return nil
}

func (r Repo) GetCheckin(ctx context.Context, tx *sql.Tx, id string) (domain.Checkin, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+checkinColumns+` FROM checkins WHERE id=?`, id)
	c, err := scanCheckin(row.Scan)
	if err == sql.ErrNoRows {
		return c, fmt.Errorf("checkin %s: %w", id, ErrNotFound)
	}
	return c, err
}

// CheckinFilters scopes ListCheckins. A zero Range is unbounded; otherwise
// it selects the whole UTC days it spans.
type CheckinFilters struct {
	AgentID   string
	MissionID string
	Range     domain.DateRange
	// Valid filters on the verdict when non-nil.
	Valid *bool
}

func (r Repo) ListCheckins(ctx context.Context, tx *sql.Tx, f CheckinFilters) ([]domain.Checkin, error) {
	query := `SELECT ` + checkinColumns + ` FROM checkins WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		query += ` AND agent_id=?`
		args = append(args, f.AgentID)
	}
	if f.MissionID != "" {
		query += ` AND mission_id=?`
		args = append(args, f.MissionID)
	}
	if !f.Range.From.IsZero() && !f.Range.To.IsZero() {
		query += ` AND ts >= ? AND ts < ?`
		args = append(args, formatTS(f.Range.From), formatTS(dates.StartOfDay(f.Range.To).Add(24*time.Hour)))
	}
	if f.Valid != nil {
		query += ` AND valid=?`
		args = append(args, boolInt(*f.Valid))
	}
	query += ` ORDER BY ts ASC, id ASC`
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Checkin
	for rows.Next() {
		c, err := scanCheckin(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
