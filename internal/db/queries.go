package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type queryer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db queryer
}

const deploymentColumns = `id, subdomain, name, owner_id, status, created_at, last_modified, visitor_count, html, css, js, files_json`

func NewQueries(db queryer) *Queries {
	return &Queries{db: db}
}

func (q *Queries) InsertUser(ctx context.Context, in UserRow) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO users(id, email, name, password_hash, created_at) VALUES(?, ?, ?, ?, ?)`, in.ID, in.Email, in.Name, in.PasswordHash, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (q *Queries) GetUserByID(ctx context.Context, id string) (UserRow, error) {
	return q.getUser(ctx, "get user by id", `SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	return q.getUser(ctx, "get user by email", `SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (q *Queries) getUser(ctx context.Context, op, query string, arg string) (UserRow, error) {
	var out UserRow
	err := q.db.QueryRowContext(ctx, query, arg).Scan(&out.ID, &out.Email, &out.Name, &out.PasswordHash, &out.CreatedAt)
	if err != nil {
		return out, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// ListUsers returns every user, newest first.
func (q *Queries) ListUsers(ctx context.Context) ([]UserRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, email, name, password_hash, created_at FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := []UserRow{}
	for rows.Next() {
		var row UserRow
		if err := rows.Scan(&row.ID, &row.Email, &row.Name, &row.PasswordHash, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return out, nil
}

func (q *Queries) UpdateUser(ctx context.Context, in UserRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET email = ?, name = ?, password_hash = ? WHERE id = ?`, in.Email, in.Name, in.PasswordHash, in.ID)
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return rowsChanged("update user", res)
}

func (q *Queries) InsertDeployment(ctx context.Context, in DeploymentRow) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO deployments(`+deploymentColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Subdomain, in.Name, in.OwnerID, in.Status, in.CreatedAt, in.LastModified, in.VisitorCount, in.HTML, in.CSS, in.JS, in.FilesJSONOrDefault())
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

func (q *Queries) GetDeploymentByID(ctx context.Context, id string) (DeploymentRow, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE id = ?`, id)
	out, err := scanDeployment(row)
	if err != nil {
		return out, fmt.Errorf("get deployment by id: %w", err)
	}
	return out, nil
}

func (q *Queries) GetDeploymentIDBySubdomain(ctx context.Context, subdomain string) (string, error) {
	var id string
	if err := q.db.QueryRowContext(ctx, `SELECT id FROM deployments WHERE subdomain = ?`, subdomain).Scan(&id); err != nil {
		return "", fmt.Errorf("get deployment id by subdomain: %w", err)
	}
	return id, nil
}

// ListDeploymentsByOwner returns the owner's deployments, newest first.
func (q *Queries) ListDeploymentsByOwner(ctx context.Context, ownerID string) ([]DeploymentRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+deploymentColumns+` FROM deployments WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list deployments by owner: %w", err)
	}
	defer rows.Close()

	out := []DeploymentRow{}
	for rows.Next() {
		row, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}
	return out, nil
}

func (q *Queries) CountDeployments(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deployments: %w", err)
	}
	return n, nil
}

// UpdateDeploymentContent replaces mutable fields. Subdomain, owner and the
// visitor counter are never touched here.
func (q *Queries) UpdateDeploymentContent(ctx context.Context, in DeploymentRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE deployments SET
  name = ?,
  status = ?,
  last_modified = ?,
  html = ?,
  css = ?,
  js = ?,
  files_json = ?
WHERE id = ?
`, in.Name, in.Status, in.LastModified, in.HTML, in.CSS, in.JS, in.FilesJSONOrDefault(), in.ID)
	if err != nil {
		return false, fmt.Errorf("update deployment: %w", err)
	}
	return rowsChanged("update deployment", res)
}

func (q *Queries) IncrementDeploymentVisitors(ctx context.Context, id string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, `UPDATE deployments SET visitor_count = visitor_count + 1 WHERE id = ? RETURNING visitor_count`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment deployment visitors: %w", err)
	}
	return count, nil
}

func (q *Queries) DeleteDeploymentByID(ctx context.Context, id string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM deployments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete deployment: %w", err)
	}
	return rowsChanged("delete deployment", res)
}

func (q *Queries) InsertActivityLog(ctx context.Context, in ActivityLogRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, `INSERT INTO activity_log(actor, timestamp, operation, deployment_id, resource_summary, metadata_json) VALUES(?, ?, ?, ?, ?, ?)`, in.Actor, in.Timestamp, in.Operation, in.DeploymentID, in.ResourceSummary, in.MetadataJSON)
	if err != nil {
		return 0, fmt.Errorf("insert activity log: %w", err)
	}
	return lastInsertID("insert activity log", res)
}

// IsUniqueConstraintError reports whether err is a sqlite unique violation on
// table.column.
func IsUniqueConstraintError(err error, table, column string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") && strings.Contains(msg, strings.ToLower(table+"."+column))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeployment(s rowScanner) (DeploymentRow, error) {
	var out DeploymentRow
	err := s.Scan(&out.ID, &out.Subdomain, &out.Name, &out.OwnerID, &out.Status, &out.CreatedAt, &out.LastModified, &out.VisitorCount, &out.HTML, &out.CSS, &out.JS, &out.FilesJSON)
	return out, err
}

func rowsChanged(op string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}

func lastInsertID(op string, res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s last insert id: %w", op, err)
	}
	return id, nil
}
