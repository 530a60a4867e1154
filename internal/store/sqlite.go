package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	dbpkg "github.com/benedict2310/sitedrop/internal/db"
	"github.com/benedict2310/sitedrop/pkg/model"
)

// SQLite keeps deployments and users in the embedded database. The subdomain
// reservation is the UNIQUE constraint on deployments.subdomain, so creation
// and reservation happen in the same statement.
type SQLite struct {
	db     *sql.DB
	q      *dbpkg.Queries
	ownsDB bool
}

// OpenSQLite opens path, applies migrations and returns a store that closes
// the database on Close.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := dbpkg.Open(dbpkg.DefaultOptions(path))
	if err != nil {
		return nil, unavailable("open", err)
	}
	if err := dbpkg.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s := NewSQLite(db)
	s.ownsDB = true
	return s, nil
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, q: dbpkg.NewQueries(db)}
}

// DB exposes the handle for components sharing the database (activity log).
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) CreateDeployment(ctx context.Context, d model.Deployment) error {
	row, err := deploymentToRow(d)
	if err != nil {
		return err
	}
	if err := s.q.InsertDeployment(ctx, row); err != nil {
		if dbpkg.IsUniqueConstraintError(err, "deployments", "subdomain") {
			return ErrSubdomainTaken
		}
		return unavailable("create deployment", err)
	}
	return nil
}

func (s *SQLite) GetDeployment(ctx context.Context, id string) (model.Deployment, error) {
	row, err := s.q.GetDeploymentByID(ctx, id)
	if err != nil {
		return model.Deployment{}, mapSQLError("get deployment", err)
	}
	return rowToDeployment(row)
}

func (s *SQLite) LookupSubdomain(ctx context.Context, subdomain string) (string, error) {
	id, err := s.q.GetDeploymentIDBySubdomain(ctx, subdomain)
	if err != nil {
		return "", mapSQLError("lookup subdomain", err)
	}
	return id, nil
}

func (s *SQLite) ListDeployments(ctx context.Context, ownerID string) ([]model.Deployment, error) {
	rows, err := s.q.ListDeploymentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, unavailable("list deployments", err)
	}
	out := make([]model.Deployment, 0, len(rows))
	for _, row := range rows {
		d, err := rowToDeployment(row)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *SQLite) CountDeployments(ctx context.Context) (int64, error) {
	n, err := s.q.CountDeployments(ctx)
	if err != nil {
		return 0, unavailable("count deployments", err)
	}
	return n, nil
}

func (s *SQLite) PutDeployment(ctx context.Context, d model.Deployment) error {
	row, err := deploymentToRow(d)
	if err != nil {
		return err
	}
	changed, err := s.q.UpdateDeploymentContent(ctx, row)
	if err != nil {
		return unavailable("put deployment", err)
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteDeployment(ctx context.Context, id string) error {
	deleted, err := s.q.DeleteDeploymentByID(ctx, id)
	if err != nil {
		return unavailable("delete deployment", err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) IncrementVisitors(ctx context.Context, id string) (int64, error) {
	n, err := s.q.IncrementDeploymentVisitors(ctx, id)
	if err != nil {
		return 0, mapSQLError("increment visitors", err)
	}
	return n, nil
}

func (s *SQLite) CreateUser(ctx context.Context, u model.User) error {
	err := s.q.InsertUser(ctx, dbpkg.UserRow{ID: u.ID, Email: u.Email, Name: u.Name, PasswordHash: u.PasswordHash, CreatedAt: u.CreatedAt})
	if err != nil {
		if dbpkg.IsUniqueConstraintError(err, "users", "email") {
			return ErrEmailTaken
		}
		return unavailable("create user", err)
	}
	return nil
}

func (s *SQLite) GetUser(ctx context.Context, id string) (model.User, error) {
	row, err := s.q.GetUserByID(ctx, id)
	if err != nil {
		return model.User{}, mapSQLError("get user", err)
	}
	return rowToUser(row), nil
}

func (s *SQLite) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row, err := s.q.GetUserByEmail(ctx, email)
	if err != nil {
		return model.User{}, mapSQLError("get user by email", err)
	}
	return rowToUser(row), nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.q.ListUsers(ctx)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	out := make([]model.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, rowToUser(row))
	}
	return out, nil
}

// PutUser replaces name and password hash. Email is immutable.
func (s *SQLite) PutUser(ctx context.Context, u model.User) error {
	stored, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	changed, err := s.q.UpdateUser(ctx, dbpkg.UserRow{ID: u.ID, Email: stored.Email, Name: u.Name, PasswordHash: u.PasswordHash})
	if err != nil {
		return unavailable("put user", err)
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

func mapSQLError(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func deploymentToRow(d model.Deployment) (dbpkg.DeploymentRow, error) {
	filesJSON := "[]"
	if len(d.Files) > 0 {
		b, err := json.Marshal(d.Files)
		if err != nil {
			return dbpkg.DeploymentRow{}, fmt.Errorf("encode deployment files: %w", err)
		}
		filesJSON = string(b)
	}
	return dbpkg.DeploymentRow{
		ID:           d.ID,
		Subdomain:    d.Subdomain,
		Name:         d.Name,
		OwnerID:      d.OwnerID,
		Status:       string(d.Status),
		CreatedAt:    d.CreatedAt,
		LastModified: d.LastModified,
		VisitorCount: d.VisitorCount,
		HTML:         d.HTML,
		CSS:          d.CSS,
		JS:           d.JS,
		FilesJSON:    filesJSON,
	}, nil
}

func rowToDeployment(row dbpkg.DeploymentRow) (model.Deployment, error) {
	d := model.Deployment{
		ID:           row.ID,
		Subdomain:    row.Subdomain,
		Name:         row.Name,
		OwnerID:      row.OwnerID,
		Status:       model.Status(row.Status),
		CreatedAt:    row.CreatedAt,
		LastModified: row.LastModified,
		VisitorCount: row.VisitorCount,
		HTML:         row.HTML,
		CSS:          row.CSS,
		JS:           row.JS,
	}
	if row.FilesJSON != "" && row.FilesJSON != "[]" {
		if err := json.Unmarshal([]byte(row.FilesJSON), &d.Files); err != nil {
			return model.Deployment{}, unavailable("decode deployment", fmt.Errorf("deployment %s files: %w", row.ID, err))
		}
	}
	return d, nil
}

func rowToUser(row dbpkg.UserRow) model.User {
	return model.User{ID: row.ID, Email: row.Email, Name: row.Name, PasswordHash: row.PasswordHash, CreatedAt: row.CreatedAt}
}
