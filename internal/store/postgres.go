package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/benedict2310/sitedrop/pkg/model"
)

//go:embed pgmigrations/*.sql
var pgMigrations embed.FS

const pgUniqueViolation = "23505"

type PostgresOptions struct {
	DSN string
	// MaxConns caps the pool; zero keeps the pgxpool default.
	MaxConns int32
}

// Postgres keeps deployments and users in PostgreSQL. Like SQLite, the
// subdomain reservation is a UNIQUE constraint on the deployments table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, applies pending migrations and returns the store.
func OpenPostgres(ctx context.Context, opts PostgresOptions) (*Postgres, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable("connect", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, unavailable("connect", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	dir, err := fs.Sub(pgMigrations, "pgmigrations")
	if err != nil {
		return fmt.Errorf("open postgres migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, dir)
	if err != nil {
		return fmt.Errorf("configure postgres migrations: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if _, err := provider.Up(runCtx); err != nil {
		return fmt.Errorf("apply postgres migrations: %w", err)
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

const pgDeploymentColumns = `id, subdomain, name, owner_id, status, created_at, last_modified, visitor_count, html, css, js, files`

func (s *Postgres) CreateDeployment(ctx context.Context, d model.Deployment) error {
	files, err := encodeFiles(d.Files)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO deployments (`+pgDeploymentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.Subdomain, d.Name, d.OwnerID, string(d.Status), d.CreatedAt, d.LastModified,
		d.VisitorCount, d.HTML, d.CSS, d.JS, files)
	if err != nil {
		if isPgUniqueViolation(err, "deployments_subdomain_key") {
			return ErrSubdomainTaken
		}
		return unavailable("create deployment", err)
	}
	return nil
}

func (s *Postgres) GetDeployment(ctx context.Context, id string) (model.Deployment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgDeploymentColumns+` FROM deployments WHERE id = $1`, id)
	d, err := scanPgDeployment(row)
	if err != nil {
		return model.Deployment{}, mapPgError("get deployment", err)
	}
	return d, nil
}

func (s *Postgres) LookupSubdomain(ctx context.Context, subdomain string) (string, error) {
	var id string
	if err := s.pool.QueryRow(ctx, `SELECT id FROM deployments WHERE subdomain = $1`, subdomain).Scan(&id); err != nil {
		return "", mapPgError("lookup subdomain", err)
	}
	return id, nil
}

func (s *Postgres) ListDeployments(ctx context.Context, ownerID string) ([]model.Deployment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgDeploymentColumns+` FROM deployments WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, unavailable("list deployments", err)
	}
	defer rows.Close()

	out := []model.Deployment{}
	for rows.Next() {
		d, err := scanPgDeployment(rows)
		if err != nil {
			return nil, mapPgError("list deployments", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list deployments", err)
	}
	return out, nil
}

func (s *Postgres) CountDeployments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deployments`).Scan(&n); err != nil {
		return 0, unavailable("count deployments", err)
	}
	return n, nil
}

func (s *Postgres) PutDeployment(ctx context.Context, d model.Deployment) error {
	files, err := encodeFiles(d.Files)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE deployments
SET name = $2, status = $3, last_modified = $4, html = $5, css = $6, js = $7, files = $8
WHERE id = $1`, d.ID, d.Name, string(d.Status), d.LastModified, d.HTML, d.CSS, d.JS, files)
	if err != nil {
		return unavailable("put deployment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteDeployment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deployments WHERE id = $1`, id)
	if err != nil {
		return unavailable("delete deployment", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) IncrementVisitors(ctx context.Context, id string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `UPDATE deployments SET visitor_count = visitor_count + 1 WHERE id = $1 RETURNING visitor_count`, id).Scan(&n)
	if err != nil {
		return 0, mapPgError("increment visitors", err)
	}
	return n, nil
}

func (s *Postgres) CreateUser(ctx context.Context, u model.User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isPgUniqueViolation(err, "users_email_key") {
			return ErrEmailTaken
		}
		return unavailable("create user", err)
	}
	return nil
}

func (s *Postgres) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.getUser(ctx, "get user", `id = $1`, id)
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return s.getUser(ctx, "get user by email", `email = $1`, email)
}

func (s *Postgres) getUser(ctx context.Context, op, where string, arg string) (model.User, error) {
	var u model.User
	err := s.pool.QueryRow(ctx, `SELECT id, email, name, password_hash, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return model.User{}, mapPgError(op, err)
	}
	return u, nil
}

func (s *Postgres) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, email, name, password_hash, created_at FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, unavailable("list users", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list users", err)
	}
	return out, nil
}

// PutUser replaces name and password hash. Email is immutable.
func (s *Postgres) PutUser(ctx context.Context, u model.User) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET name = $2, password_hash = $3 WHERE id = $1`, u.ID, u.Name, u.PasswordHash)
	if err != nil {
		return unavailable("put user", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgDeployment(row pgx.Row) (model.Deployment, error) {
	var (
		d      model.Deployment
		status string
		files  []byte
	)
	if err := row.Scan(&d.ID, &d.Subdomain, &d.Name, &d.OwnerID, &status, &d.CreatedAt, &d.LastModified,
		&d.VisitorCount, &d.HTML, &d.CSS, &d.JS, &files); err != nil {
		return model.Deployment{}, err
	}
	d.Status = model.Status(status)
	if len(files) > 0 && string(files) != "[]" {
		if err := json.Unmarshal(files, &d.Files); err != nil {
			return model.Deployment{}, unavailable("decode deployment", fmt.Errorf("deployment %s files: %w", d.ID, err))
		}
	}
	return d, nil
}

func encodeFiles(files []model.File) (string, error) {
	if len(files) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("encode deployment files: %w", err)
	}
	return string(b), nil
}

func mapPgError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case IsUnavailable(err):
		return err
	default:
		return unavailable(op, err)
	}
}

func isPgUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
