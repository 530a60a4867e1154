// Package viewer holds the per-surface state behind a rendered site: the
// current path, the handle arena backing the visible document and a load
// generation that discards stale results.
package viewer

import (
	"context"
	"errors"
	"sync"

	"github.com/benedict2310/sitedrop/internal/blob"
	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/renderer"
)

var (
	ErrSuperseded = errors.New("load superseded by a newer request")
	ErrNotLoaded  = errors.New("no site loaded")
	ErrClosed     = errors.New("viewer session closed")
)

// Arena hands out addresses for one rendered document and revokes them all on
// Release.
type Arena interface {
	renderer.HandleAllocator
	Release()
}

// LoadFunc fetches the view to show.
type LoadFunc func(ctx context.Context) (model.View, error)

type Session struct {
	newArena func() Arena

	mu          sync.Mutex
	generation  uint64
	loaded      bool
	closed      bool
	identity    string
	view        model.View
	currentPath string
	arena       Arena
}

func NewSession(newArena func() Arena) *Session {
	return &Session{newArena: newArena, currentPath: renderer.IndexPath}
}

// Load fetches a view and renders the current path. A different deployment
// resets the path to the index page. If another Load starts before this one
// finishes, this result is dropped with ErrSuperseded.
func (s *Session) Load(ctx context.Context, load LoadFunc) (renderer.Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return renderer.Document{}, ErrClosed
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	view, err := load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return renderer.Document{}, ErrClosed
	}
	if gen != s.generation {
		return renderer.Document{}, ErrSuperseded
	}
	if err != nil {
		return renderer.Document{}, err
	}
	if !s.loaded || view.Deployment.ID != s.identity {
		s.currentPath = renderer.IndexPath
	}
	s.loaded = true
	s.identity = view.Deployment.ID
	s.view = view
	return s.renderLocked(s.currentPath)
}

// Navigate renders path within the loaded view.
func (s *Session) Navigate(path string) (renderer.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return renderer.Document{}, ErrClosed
	}
	if !s.loaded {
		return renderer.Document{}, ErrNotLoaded
	}
	return s.renderLocked(path)
}

// CurrentPath is the path of the visible document.
func (s *Session) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPath
}

// Close releases the visible document's handles. Further calls fail with
// ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.releaseLocked()
}

// renderLocked renders into a fresh arena and only then revokes the visible
// document's handles, so a failed render leaves the current page intact. When
// the registry is full, the visible handles are given up and the render is
// retried once.
func (s *Session) renderLocked(path string) (renderer.Document, error) {
	doc, arena, err := s.renderInto(path)
	if errors.Is(err, blob.ErrCapacity) && s.arena != nil {
		s.releaseLocked()
		doc, arena, err = s.renderInto(path)
	}
	if err != nil {
		return renderer.Document{}, err
	}
	s.releaseLocked()
	s.arena = arena
	s.currentPath = doc.Path
	if s.currentPath == "" {
		s.currentPath = renderer.IndexPath
	}
	return doc, nil
}

func (s *Session) renderInto(path string) (renderer.Document, Arena, error) {
	arena := s.newArena()
	doc, err := renderer.Render(s.view, path, arena)
	if err != nil {
		arena.Release()
		return renderer.Document{}, nil, err
	}
	return doc, arena, nil
}

func (s *Session) releaseLocked() {
	if s.arena != nil {
		s.arena.Release()
		s.arena = nil
	}
}
