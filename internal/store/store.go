// Package store persists deployments and users. Two backends share the
// contract: a Redis key-value layout and an embedded SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/benedict2310/sitedrop/pkg/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrSubdomainTaken = errors.New("subdomain already taken")
	ErrEmailTaken     = errors.New("email already registered")
)

// UnavailableError reports that the backing store could not be reached or
// failed mid-operation. Absence is never reported this way.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// IsUnavailable reports whether err carries an *UnavailableError.
func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

type DeploymentStore interface {
	// CreateDeployment reserves d.Subdomain and writes the record in one
	// atomic step. A taken subdomain yields ErrSubdomainTaken.
	CreateDeployment(ctx context.Context, d model.Deployment) error
	GetDeployment(ctx context.Context, id string) (model.Deployment, error)
	LookupSubdomain(ctx context.Context, subdomain string) (string, error)
	ListDeployments(ctx context.Context, ownerID string) ([]model.Deployment, error)
	// CountDeployments counts records across all owners.
	CountDeployments(ctx context.Context) (int64, error)
	// PutDeployment replaces content of an existing record. Subdomain, owner
	// and visitor count are kept from the stored record.
	PutDeployment(ctx context.Context, d model.Deployment) error
	// DeleteDeployment removes the record, its subdomain mapping, the owner
	// index entry and the visitor counter.
	DeleteDeployment(ctx context.Context, id string) error
	IncrementVisitors(ctx context.Context, id string) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	// ListUsers returns every user, newest first.
	ListUsers(ctx context.Context) ([]model.User, error)
	PutUser(ctx context.Context, u model.User) error
}

type Store interface {
	DeploymentStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}
