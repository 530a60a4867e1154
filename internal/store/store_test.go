package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	redis "github.com/redis/go-redis/v9"

	"github.com/benedict2310/sitedrop/pkg/model"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	out := []backend{
		{name: "redis", open: func(t *testing.T) Store {
			s, _ := newTestRedis(t)
			return s
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			return newTestSQLite(t)
		}},
	}
	if testPostgresDSN() != "" {
		out = append(out, backend{name: "postgres", open: func(t *testing.T) Store {
			return newTestPostgres(t)
		}})
	}
	return out
}

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFromClient(client, ""), mr
}

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDeployment(id, subdomain, owner string, created int64) model.Deployment {
	return model.Deployment{
		ID:           id,
		Subdomain:    subdomain,
		Name:         "site " + id,
		OwnerID:      owner,
		Status:       model.StatusLive,
		CreatedAt:    created,
		LastModified: created,
		Files: []model.File{
			{Name: "index.html", Content: "<p>" + id + "</p>", Type: model.FileTypeHTML},
			{Name: "style.css", Content: "p{}", Type: model.FileTypeCSS},
		},
	}
}

func TestDeploymentLifecycle(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			d := sampleDeployment("01A", "hello-ab12", "u1", 100)
			if err := s.CreateDeployment(ctx, d); err != nil {
				t.Fatalf("CreateDeployment() error = %v", err)
			}

			id, err := s.LookupSubdomain(ctx, "hello-ab12")
			if err != nil || id != "01A" {
				t.Fatalf("LookupSubdomain() = %q, %v", id, err)
			}
			got, err := s.GetDeployment(ctx, "01A")
			if err != nil {
				t.Fatalf("GetDeployment() error = %v", err)
			}
			if diff := cmp.Diff(d, got); diff != "" {
				t.Fatalf("GetDeployment() mismatch (-want +got):\n%s", diff)
			}

			next := got
			next.Name = "renamed"
			next.Files = nil
			next.HTML = "<p>legacy</p>"
			next.LastModified = 200
			next.Subdomain = "ignored"
			if err := s.PutDeployment(ctx, next); err != nil {
				t.Fatalf("PutDeployment() error = %v", err)
			}
			got, err = s.GetDeployment(ctx, "01A")
			if err != nil {
				t.Fatalf("GetDeployment() error = %v", err)
			}
			if got.Name != "renamed" || got.HTML != "<p>legacy</p>" || len(got.Files) != 0 || got.LastModified != 200 {
				t.Fatalf("unexpected replaced record %#v", got)
			}
			if got.Subdomain != "hello-ab12" || got.OwnerID != "u1" || got.CreatedAt != 100 {
				t.Fatalf("identity fields must survive replace: %#v", got)
			}

			if err := s.DeleteDeployment(ctx, "01A"); err != nil {
				t.Fatalf("DeleteDeployment() error = %v", err)
			}
			if _, err := s.GetDeployment(ctx, "01A"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if _, err := s.LookupSubdomain(ctx, "hello-ab12"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected subdomain mapping gone, got %v", err)
			}
			list, err := s.ListDeployments(ctx, "u1")
			if err != nil || len(list) != 0 {
				t.Fatalf("expected empty owner index, got %v, %v", list, err)
			}
			if err := s.DeleteDeployment(ctx, "01A"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on second delete, got %v", err)
			}
			if err := s.PutDeployment(ctx, next); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on put of deleted record, got %v", err)
			}
		})
	}
}

func TestSubdomainReservationIsExclusive(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			const workers = 8
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					id := string(rune('A' + i))
					errs <- s.CreateDeployment(ctx, sampleDeployment(id, "contested", "u1", int64(i)))
				}(i)
			}
			wg.Wait()
			close(errs)

			wins := 0
			for err := range errs {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrSubdomainTaken):
				default:
					t.Fatalf("unexpected error %v", err)
				}
			}
			if wins != 1 {
				t.Fatalf("expected exactly one reservation, got %d", wins)
			}
		})
	}
}

func TestListDeploymentsNewestFirstPerOwner(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			for _, d := range []model.Deployment{
				sampleDeployment("01A", "a", "u1", 100),
				sampleDeployment("01C", "c", "u1", 300),
				sampleDeployment("01B", "b", "u1", 200),
				sampleDeployment("01D", "d", "u2", 400),
			} {
				if err := s.CreateDeployment(ctx, d); err != nil {
					t.Fatalf("CreateDeployment(%s) error = %v", d.ID, err)
				}
			}
			list, err := s.ListDeployments(ctx, "u1")
			if err != nil {
				t.Fatalf("ListDeployments() error = %v", err)
			}
			var ids []string
			for _, d := range list {
				ids = append(ids, d.ID)
			}
			if diff := cmp.Diff([]string{"01C", "01B", "01A"}, ids); diff != "" {
				t.Fatalf("ListDeployments() order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIncrementVisitors(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			if err := s.CreateDeployment(ctx, sampleDeployment("01A", "a", "u1", 1)); err != nil {
				t.Fatalf("CreateDeployment() error = %v", err)
			}
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.IncrementVisitors(ctx, "01A"); err != nil {
						t.Errorf("IncrementVisitors() error = %v", err)
					}
				}()
			}
			wg.Wait()
			got, err := s.GetDeployment(ctx, "01A")
			if err != nil {
				t.Fatalf("GetDeployment() error = %v", err)
			}
			if got.VisitorCount != 20 {
				t.Fatalf("expected 20 visitors, got %d", got.VisitorCount)
			}
			if _, err := s.IncrementVisitors(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUsers(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()
			u := model.User{ID: "u1", Email: "a@example.com", Name: "A", PasswordHash: "h1", CreatedAt: 10}
			if err := s.CreateUser(ctx, u); err != nil {
				t.Fatalf("CreateUser() error = %v", err)
			}
			dup := model.User{ID: "u2", Email: "a@example.com", PasswordHash: "h2", CreatedAt: 11}
			if err := s.CreateUser(ctx, dup); !errors.Is(err, ErrEmailTaken) {
				t.Fatalf("expected ErrEmailTaken, got %v", err)
			}
			got, err := s.GetUserByEmail(ctx, "a@example.com")
			if err != nil {
				t.Fatalf("GetUserByEmail() error = %v", err)
			}
			if diff := cmp.Diff(u, got); diff != "" {
				t.Fatalf("GetUserByEmail() mismatch (-want +got):\n%s", diff)
			}
			if err := s.PutUser(ctx, model.User{ID: "u1", Email: "changed@example.com", Name: "B", PasswordHash: "h3"}); err != nil {
				t.Fatalf("PutUser() error = %v", err)
			}
			got, err = s.GetUser(ctx, "u1")
			if err != nil {
				t.Fatalf("GetUser() error = %v", err)
			}
			if got.Name != "B" || got.PasswordHash != "h3" || got.Email != "a@example.com" || got.CreatedAt != 10 {
				t.Fatalf("unexpected updated user %#v", got)
			}
			if _, err := s.GetUser(ctx, "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.PutUser(ctx, model.User{ID: "nope"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound on put of missing user, got %v", err)
			}
		})
	}
}

func TestListUsersAndCountDeployments(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			ctx := context.Background()

			users, err := s.ListUsers(ctx)
			if err != nil || len(users) != 0 {
				t.Fatalf("ListUsers() on empty store = %v, %v", users, err)
			}
			for i, id := range []string{"u1", "u2", "u3"} {
				u := model.User{ID: id, Email: id + "@example.com", Name: id, PasswordHash: "h", CreatedAt: int64(10 + i)}
				if err := s.CreateUser(ctx, u); err != nil {
					t.Fatalf("CreateUser(%s) error = %v", id, err)
				}
			}
			for i, id := range []string{"01A", "01B"} {
				if err := s.CreateDeployment(ctx, sampleDeployment(id, "count-"+strings.ToLower(id), "u1", int64(i))); err != nil {
					t.Fatalf("CreateDeployment(%s) error = %v", id, err)
				}
			}
			// Counter keys must not be counted as records.
			if _, err := s.IncrementVisitors(ctx, "01A"); err != nil {
				t.Fatalf("IncrementVisitors() error = %v", err)
			}

			users, err = s.ListUsers(ctx)
			if err != nil {
				t.Fatalf("ListUsers() error = %v", err)
			}
			var ids []string
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			if diff := cmp.Diff([]string{"u3", "u2", "u1"}, ids); diff != "" {
				t.Fatalf("ListUsers() order mismatch (-want +got):\n%s", diff)
			}
			n, err := s.CountDeployments(ctx)
			if err != nil || n != 2 {
				t.Fatalf("CountDeployments() = %d, %v, want 2", n, err)
			}
			if err := s.DeleteDeployment(ctx, "01B"); err != nil {
				t.Fatalf("DeleteDeployment() error = %v", err)
			}
			if n, _ := s.CountDeployments(ctx); n != 1 {
				t.Fatalf("CountDeployments() after delete = %d, want 1", n)
			}
		})
	}
}

func TestRedisReadsLegacyRecordLayout(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	legacy := map[string]any{
		"id":        "abc123defg",
		"subdomain": "old-site-x1y2",
		"name":      "Old",
		"code":      "<p>old</p>",
		"css":       "p{}",
		"userId":    "u9",
		"visitors":  7,
		"createdAt": 5,
	}
	raw, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("marshal legacy record: %v", err)
	}
	mr.Set("deployment:abc123defg", string(raw))
	mr.Set("subdomain:old-site-x1y2", "abc123defg")

	got, err := s.GetDeployment(ctx, "abc123defg")
	if err != nil {
		t.Fatalf("GetDeployment() error = %v", err)
	}
	if got.HTML != "<p>old</p>" || got.OwnerID != "u9" || got.VisitorCount != 7 {
		t.Fatalf("unexpected legacy decode %#v", got)
	}
	n, err := s.IncrementVisitors(ctx, "abc123defg")
	if err != nil {
		t.Fatalf("IncrementVisitors() error = %v", err)
	}
	if n != 8 {
		t.Fatalf("expected counter seeded from inline visitors, got %d", n)
	}
}

func TestRedisVisitAfterDeleteLeavesNoCounter(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	if err := s.CreateDeployment(ctx, sampleDeployment("01A", "gone-ab12", "u1", 1)); err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}
	if _, err := s.IncrementVisitors(ctx, "01A"); err != nil {
		t.Fatalf("IncrementVisitors() error = %v", err)
	}
	if err := s.DeleteDeployment(ctx, "01A"); err != nil {
		t.Fatalf("DeleteDeployment() error = %v", err)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no keys after delete, got %v", keys)
	}

	// A visit that read the record just before the delete reaches the
	// counter step after it.
	err := incrementVisitorsScript.Run(ctx, s.client, []string{s.deploymentKey("01A"), s.visitorsKey("01A")}, 3).Err()
	if !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for a deleted record, got %v", err)
	}
	if mr.Exists(s.visitorsKey("01A")) {
		t.Fatalf("counter key recreated for a deleted deployment: %v", mr.Keys())
	}
	if _, err := s.IncrementVisitors(ctx, "01A"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("IncrementVisitors() after delete = %v, want ErrNotFound", err)
	}
}

func TestRedisPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	s := NewRedisFromClient(client, "sitedrop:")
	if err := s.CreateDeployment(context.Background(), sampleDeployment("01A", "pfx", "u1", 1)); err != nil {
		t.Fatalf("CreateDeployment() error = %v", err)
	}
	if !mr.Exists("sitedrop:deployment:01A") || !mr.Exists("sitedrop:subdomain:pfx") {
		t.Fatalf("expected prefixed keys, got %v", mr.Keys())
	}
	if ok, _ := mr.SIsMember("sitedrop:user:u1:deployments", "01A"); !ok {
		t.Fatalf("expected owner index entry")
	}
}

func TestUnavailableErrors(t *testing.T) {
	t.Run("redis", func(t *testing.T) {
		s, mr := newTestRedis(t)
		mr.Close()
		_, err := s.LookupSubdomain(context.Background(), "x")
		if !IsUnavailable(err) {
			t.Fatalf("expected UnavailableError, got %v", err)
		}
		if errors.Is(err, ErrNotFound) {
			t.Fatalf("infrastructure failure must not look like absence")
		}
	})
	t.Run("sqlite", func(t *testing.T) {
		s := newTestSQLite(t)
		if err := s.DB().Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		_, err := s.LookupSubdomain(context.Background(), "x")
		var unavailableErr *UnavailableError
		if !errors.As(err, &unavailableErr) {
			t.Fatalf("expected UnavailableError, got %v", err)
		}
		if unavailableErr.Op != "lookup subdomain" {
			t.Fatalf("unexpected op %q", unavailableErr.Op)
		}
	})
}
