package viewer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/benedict2310/sitedrop/internal/blob"
	"github.com/benedict2310/sitedrop/pkg/model"
)

func testView(t *testing.T, id string) model.View {
	t.Helper()
	view, err := model.Normalize(model.Deployment{
		ID:        id,
		Subdomain: "s-" + id,
		Name:      id,
		Status:    model.StatusLive,
		Files: []model.File{
			{Name: "index.html", Type: model.FileTypeHTML, Content: `<html><head><link rel="stylesheet" href="style.css"></head><body><a href="about.html">about</a></body></html>`},
			{Name: "about.html", Type: model.FileTypeHTML, Content: `<p>about ` + id + `</p>`},
			{Name: "style.css", Type: model.FileTypeCSS, Content: "p{color:red}"},
		},
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	return view
}

func loaderFor(view model.View) LoadFunc {
	return func(context.Context) (model.View, error) { return view, nil }
}

func newTestSession() (*Session, *blob.Registry) {
	registry := blob.NewRegistry(blob.DefaultPathPrefix, 1<<20)
	return NewSession(func() Arena { return registry.NewArena() }), registry
}

func TestSessionReleasesPreviousArena(t *testing.T) {
	s, registry := newTestSession()
	doc, err := s.Load(context.Background(), loaderFor(testView(t, "a")))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Entry != "index.html" || !strings.Contains(doc.HTML, blob.DefaultPathPrefix) {
		t.Fatalf("unexpected document %#v", doc)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one live handle, got %d", registry.Len())
	}

	doc, err = s.Navigate("./about.html")
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if doc.Entry != "about.html" || s.CurrentPath() != "about.html" {
		t.Fatalf("unexpected navigation result %#v, path %q", doc, s.CurrentPath())
	}
	if registry.Len() != 0 {
		t.Fatalf("expected handles of the previous render revoked, got %d", registry.Len())
	}

	if _, err := s.Navigate("index.html"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	s.Close()
	if registry.Len() != 0 {
		t.Fatalf("expected Close to revoke handles, got %d", registry.Len())
	}
	if _, err := s.Navigate("index.html"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSessionPathSurvivesReloadButNotIdentityChange(t *testing.T) {
	s, _ := newTestSession()
	defer s.Close()
	ctx := context.Background()
	if _, err := s.Load(ctx, loaderFor(testView(t, "a"))); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := s.Navigate("about.html"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}

	doc, err := s.Load(ctx, loaderFor(testView(t, "a")))
	if err != nil {
		t.Fatalf("Load(same) error = %v", err)
	}
	if doc.Entry != "about.html" {
		t.Fatalf("expected path kept on reload, got %q", doc.Entry)
	}

	doc, err = s.Load(ctx, loaderFor(testView(t, "b")))
	if err != nil {
		t.Fatalf("Load(other) error = %v", err)
	}
	if doc.Entry != "index.html" || s.CurrentPath() != "index.html" {
		t.Fatalf("expected path reset for new deployment, got %q", doc.Entry)
	}
}

func TestSessionDiscardsSupersededLoad(t *testing.T) {
	s, _ := newTestSession()
	defer s.Close()
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	slowView := testView(t, "slow")
	result := make(chan error, 1)
	go func() {
		_, err := s.Load(ctx, func(context.Context) (model.View, error) {
			close(started)
			<-release
			return slowView, nil
		})
		result <- err
	}()
	<-started

	if _, err := s.Load(ctx, loaderFor(testView(t, "fast"))); err != nil {
		t.Fatalf("Load(fast) error = %v", err)
	}
	close(release)
	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	doc, err := s.Navigate("about.html")
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if !strings.Contains(doc.HTML, "about fast") {
		t.Fatalf("expected the newer view to stay visible, got %q", doc.HTML)
	}
}

// failingArena refuses every allocation while fail is set.
type failingArena struct {
	Arena
	fail *bool
}

func (a failingArena) Allocate(name, contentType string, content []byte) (string, error) {
	if *a.fail {
		return "", errors.New("allocation refused")
	}
	return a.Arena.Allocate(name, contentType, content)
}

func TestSessionFailedRenderKeepsVisibleHandles(t *testing.T) {
	registry := blob.NewRegistry(blob.DefaultPathPrefix, 1<<20)
	fail := false
	s := NewSession(func() Arena { return failingArena{Arena: registry.NewArena(), fail: &fail} })
	defer s.Close()

	if _, err := s.Load(context.Background(), loaderFor(testView(t, "a"))); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one live handle, got %d", registry.Len())
	}

	fail = true
	if _, err := s.Navigate("index.html"); err == nil {
		t.Fatalf("expected render error")
	}
	if registry.Len() != 1 {
		t.Fatalf("expected the visible document's handle to survive a failed render, got %d", registry.Len())
	}
	if s.CurrentPath() != "index.html" {
		t.Fatalf("current path changed after a failed render: %q", s.CurrentPath())
	}

	fail = false
	if _, err := s.Navigate("index.html"); err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected exactly one live handle after recovery, got %d", registry.Len())
	}
}

func TestSessionFreesVisibleHandlesWhenRegistryIsFull(t *testing.T) {
	// Room for one copy of style.css (12 bytes) but not two.
	registry := blob.NewRegistry(blob.DefaultPathPrefix, 20)
	s := NewSession(func() Arena { return registry.NewArena() })
	defer s.Close()

	if _, err := s.Load(context.Background(), loaderFor(testView(t, "a"))); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	doc, err := s.Navigate("index.html")
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if !strings.Contains(doc.HTML, blob.DefaultPathPrefix) {
		t.Fatalf("expected stylesheet linked after retry: %s", doc.HTML)
	}
	if registry.Len() != 1 {
		t.Fatalf("expected one live handle, got %d", registry.Len())
	}
}

func TestSessionErrors(t *testing.T) {
	s, _ := newTestSession()
	if _, err := s.Navigate("index.html"); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
	boom := errors.New("boom")
	if _, err := s.Load(context.Background(), func(context.Context) (model.View, error) { return model.View{}, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if _, err := s.Load(context.Background(), loaderFor(testView(t, "a"))); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	doc, err := s.Navigate("missing.html")
	if err != nil {
		t.Fatalf("Navigate() error = %v", err)
	}
	if !doc.NotFound || s.CurrentPath() != "missing.html" {
		t.Fatalf("expected not-found document at missing.html, got %#v", doc)
	}
}
