package repo

import (
	"context"
	"database/sql"
	"fmt"

	"fieldline/internal/domain"
)

const permissionColumns = `id,agent_id,start_date,end_date,status,reason,created_at,decided_at`

func scanPermission(scan func(dest ...any) error) (domain.Permission, error) {
	var p domain.Permission
	var reason, decided sql.NullString
	var created string
	if err := scan(&p.ID, &p.AgentID, &p.StartDate, &p.EndDate, &p.Status, &reason, &created, &decided); err != nil {
		return p, err
	}
	p.Reason = reason.String
	var err error
	if p.CreatedAt, err = parseTS(created); err != nil {
		return p, err
	}
	p.DecidedAt, err = parseNullTS(decided)
	return p, err
}

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, p domain.Permission) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO permissions(`+permissionColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.AgentID, p.StartDate, p.EndDate, string(p.Status), nullable(p.Reason), formatTS(p.CreatedAt), nullableTS(p.DecidedAt))
	return err
}

func (r Repo) GetPermission(ctx context.Context, tx *sql.Tx, id string) (domain.Permission, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id=?`, id)
	p, err := scanPermission(row.Scan)
	if err == sql.ErrNoRows {
		return p, fmt.Errorf("permission %s: %w", id, ErrNotFound)
	}
	return p, err
}

// DecidePermission persists a decision. It only matches a pending row.
func (r Repo) DecidePermission(ctx context.Context, tx *sql.Tx, p domain.Permission) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE permissions SET status=?, decided_at=? WHERE id=? AND status=?`,
		string(p.Status), nullableTS(p.DecidedAt), p.ID, string(domain.PermissionPending))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("permission %s is no longer pending: %w", p.ID, ErrConflict)
	}
	return nil
}

// PermissionFilters scopes ListPermissions. From and To are YYYY-MM-DD days;
// when both are set, permissions overlapping [From, To] are returned.
type PermissionFilters struct {
	AgentID string
	Status  domain.PermissionStatus
	From    string
	To      string
}

func (r Repo) ListPermissions(ctx context.Context, tx *sql.Tx, f PermissionFilters) ([]domain.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE 1=1`
	var args []any
	if f.AgentID != "" {
		query += ` AND agent_id=?`
		args = append(args, f.AgentID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
	}
	if f.From != "" && f.To != "" {
		query += ` AND start_date <= ? AND end_date >= ?`
		args = append(args, f.To, f.From)
	}
	query += ` ORDER BY start_date ASC, id ASC`
	rows, err := r.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Permission
	for rows.Next() {
		p, err := scanPermission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
