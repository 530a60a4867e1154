// Package deploy owns the deployment lifecycle: create, replace, list and
// delete, with ownership enforced on every owner operation.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benedict2310/sitedrop/internal/audit"
	"github.com/benedict2310/sitedrop/internal/names"
	"github.com/benedict2310/sitedrop/internal/store"
	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/validator"
)

const maxSubdomainAttempts = 5

var ErrForbidden = errors.New("deployment belongs to another user")

type Result struct {
	Deployment model.Deployment    `json:"deployment"`
	Warnings   []validator.Warning `json:"warnings,omitempty"`
}

type Options struct {
	MaxFiles        int
	MaxContentBytes int
	Activity        audit.Logger
	Logger          *slog.Logger
	Now             func() time.Time
}

type Service struct {
	store    store.DeploymentStore
	activity audit.Logger
	logger   *slog.Logger
	limits   limits

	now          func() time.Time
	newID        func(time.Time) (string, error)
	newSubdomain func(name string) (string, error)
}

func NewService(s store.DeploymentStore, opts Options) *Service {
	svc := &Service{
		store:        s,
		activity:     opts.Activity,
		logger:       opts.Logger,
		limits:       limits{maxFiles: opts.MaxFiles, maxContentBytes: opts.MaxContentBytes},
		now:          opts.Now,
		newID:        NewDeploymentID,
		newSubdomain: names.GenerateSubdomain,
	}
	if svc.activity == nil {
		svc.activity = audit.Nop{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.limits.maxFiles <= 0 {
		svc.limits.maxFiles = DefaultMaxFiles
	}
	if svc.limits.maxContentBytes <= 0 {
		svc.limits.maxContentBytes = DefaultMaxContentBytes
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc
}

// Create publishes a new live deployment owned by ownerID. A requested
// subdomain that is taken fails with store.ErrSubdomainTaken; generated ones
// are retried with a fresh suffix.
func (s *Service) Create(ctx context.Context, ownerID string, req Request) (Result, error) {
	clean, err := req.normalize(true, s.limits)
	if err != nil {
		return Result{}, err
	}
	now := s.now().UTC()
	id, err := s.newID(now)
	if err != nil {
		return Result{}, err
	}
	d := clean.apply(model.Deployment{
		ID:           id,
		Name:         clean.Name,
		OwnerID:      ownerID,
		Status:       model.StatusLive,
		CreatedAt:    now.UnixMilli(),
		LastModified: now.UnixMilli(),
	})

	attempts := maxSubdomainAttempts
	if clean.Subdomain != "" {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		d.Subdomain = clean.Subdomain
		if d.Subdomain == "" {
			if d.Subdomain, err = s.newSubdomain(clean.Name); err != nil {
				return Result{}, err
			}
		}
		err = s.store.CreateDeployment(ctx, d)
		if !errors.Is(err, store.ErrSubdomainTaken) {
			break
		}
	}
	if err != nil {
		return Result{}, err
	}

	s.record(ctx, ownerID, audit.OperationDeploy, d, map[string]any{"files": len(d.Files)})
	return Result{Deployment: d, Warnings: lint(d)}, nil
}

// Get returns the owner's full record. Visits are not counted.
func (s *Service) Get(ctx context.Context, ownerID, id string) (model.Deployment, error) {
	d, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		return model.Deployment{}, err
	}
	if d.OwnerID != ownerID {
		return model.Deployment{}, ErrForbidden
	}
	return d, nil
}

// List returns the owner's deployments newest first, without content.
func (s *Service) List(ctx context.Context, ownerID string) ([]model.Deployment, error) {
	items, err := s.store.ListDeployments(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Deployment, 0, len(items))
	for _, d := range items {
		out = append(out, d.Summary())
	}
	return out, nil
}

// Update replaces the content of an owned deployment. The subdomain never
// changes; an empty name keeps the current one.
func (s *Service) Update(ctx context.Context, ownerID, id string, req Request) (Result, error) {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Result{}, err
	}
	clean, err := req.normalize(false, s.limits)
	if err != nil {
		return Result{}, err
	}
	if clean.Subdomain != "" && clean.Subdomain != current.Subdomain {
		return Result{}, &ValidationError{Details: []string{"subdomain cannot be changed"}}
	}

	next := clean.apply(current)
	if clean.Name != "" {
		next.Name = clean.Name
	}
	next.Status = model.StatusLive
	next.LastModified = s.now().UTC().UnixMilli()
	if next.LastModified <= current.LastModified {
		next.LastModified = current.LastModified + 1
	}
	if err := s.store.PutDeployment(ctx, next); err != nil {
		return Result{}, err
	}

	s.record(ctx, ownerID, audit.OperationUpdateSite, next, nil)
	return Result{Deployment: next, Warnings: lint(next)}, nil
}

// Delete removes an owned deployment immediately.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDeployment(ctx, id); err != nil {
		return err
	}
	s.record(ctx, ownerID, audit.OperationDeleteSite, current, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actor, operation string, d model.Deployment, meta map[string]any) {
	id := d.ID
	err := s.activity.Log(ctx, audit.Entry{
		Actor:           actor,
		Operation:       operation,
		DeploymentID:    &id,
		ResourceSummary: fmt.Sprintf("%s (%s)", d.Name, d.Subdomain),
		Metadata:        meta,
	})
	if err != nil {
		s.logger.Warn("record activity failed", "operation", operation, "deployment", d.ID, "error", err)
	}
}

func lint(d model.Deployment) []validator.Warning {
	view, err := model.Normalize(d)
	if err != nil {
		return nil
	}
	return validator.LintView(view, validator.DefaultConfig())
}
