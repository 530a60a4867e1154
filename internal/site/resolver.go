// Package site turns a public subdomain into a renderable deployment view.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benedict2310/sitedrop/internal/audit"
	"github.com/benedict2310/sitedrop/internal/names"
	"github.com/benedict2310/sitedrop/internal/store"
	"github.com/benedict2310/sitedrop/pkg/model"
)

var (
	ErrInvalidSubdomain = errors.New("subdomain is required")
	// ErrNotFound covers an unknown subdomain, a dangling mapping and a record
	// with nothing to render. Callers cannot tell them apart.
	ErrNotFound = errors.New("site not found")
)

type Resolver struct {
	store    store.DeploymentStore
	activity audit.Logger
	logger   *slog.Logger
}

// NewResolver builds a resolver. activity and logger may be nil.
func NewResolver(s store.DeploymentStore, activity audit.Logger, logger *slog.Logger) *Resolver {
	if activity == nil {
		activity = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: s, activity: activity, logger: logger}
}

// Resolve serves a public visit: the owner is stripped and the visitor count
// is incremented exactly once. The returned view carries the new count.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) (model.View, error) {
	view, err := r.Lookup(ctx, subdomain)
	if err != nil {
		return model.View{}, err
	}
	id := view.Deployment.ID
	count, err := r.store.IncrementVisitors(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.View{}, ErrNotFound
		}
		return model.View{}, err
	}
	view.Deployment.VisitorCount = count

	if err := r.activity.Log(ctx, audit.Entry{
		Operation:       audit.OperationVisit,
		DeploymentID:    &id,
		ResourceSummary: view.Deployment.Subdomain,
	}); err != nil {
		r.logger.Debug("record visit failed", "subdomain", view.Deployment.Subdomain, "error", err)
	}
	return view, nil
}

// Lookup resolves without counting a visit.
func (r *Resolver) Lookup(ctx context.Context, subdomain string) (model.View, error) {
	sub := names.CanonicalSubdomain(subdomain)
	if sub == "" {
		return model.View{}, ErrInvalidSubdomain
	}
	id, err := r.store.LookupSubdomain(ctx, sub)
	if err != nil {
		return model.View{}, mapStoreError(err)
	}
	d, err := r.store.GetDeployment(ctx, id)
	if err != nil {
		return model.View{}, mapStoreError(err)
	}
	view, err := model.Normalize(d.Public())
	if err != nil {
		if errors.Is(err, model.ErrNoEntryPoint) {
			return model.View{}, ErrNotFound
		}
		return model.View{}, fmt.Errorf("normalize deployment %s: %w", id, err)
	}
	return view, nil
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
