package blob

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestArenaAllocateAndRelease(t *testing.T) {
	r := NewRegistry("", 0)
	a := r.NewArena()

	addr, err := a.Allocate("style.css", "text/css", []byte("p{}"))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if !strings.HasPrefix(addr, DefaultPathPrefix) {
		t.Fatalf("unexpected address %q", addr)
	}
	id := strings.TrimPrefix(addr, DefaultPathPrefix)
	ct, content, ok := r.Get(id)
	if !ok || ct != "text/css" || string(content) != "p{}" {
		t.Fatalf("Get(%q) = %q, %q, %v", id, ct, content, ok)
	}

	a.Release()
	if _, _, ok := r.Get(id); ok {
		t.Fatalf("expected handle to be revoked after release")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	a.Release()
	if _, err := a.Allocate("x.js", "text/javascript", nil); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}

func TestReleaseOnlyRevokesOwnArena(t *testing.T) {
	r := NewRegistry("/h/", 0)
	first := r.NewArena()
	second := r.NewArena()
	if _, err := first.Allocate("a.css", "text/css", []byte("a")); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	addr, err := second.Allocate("b.css", "text/css", []byte("b"))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	first.Release()
	if _, _, ok := r.Get(strings.TrimPrefix(addr, "/h/")); !ok {
		t.Fatalf("expected second arena handle to survive")
	}
	if r.Len() != 1 || second.Len() != 1 {
		t.Fatalf("unexpected counts registry=%d arena=%d", r.Len(), second.Len())
	}
}

func TestAllocateCopiesContent(t *testing.T) {
	r := NewRegistry("", 0)
	buf := []byte("abc")
	addr, err := r.NewArena().Allocate("a.js", "text/javascript", buf)
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	buf[0] = 'z'
	_, content, _ := r.Get(strings.TrimPrefix(addr, DefaultPathPrefix))
	if string(content) != "abc" {
		t.Fatalf("expected stored content to be isolated, got %q", content)
	}
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry("", 4)
	a := r.NewArena()
	if _, err := a.Allocate("a", "text/plain", []byte("abc")); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if _, err := a.Allocate("b", "text/plain", []byte("de")); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	a.Release()
	if _, err := r.NewArena().Allocate("b", "text/plain", []byte("de")); err != nil {
		t.Fatalf("expected space after release, got %v", err)
	}
}

func TestGetRejectsMalformedIDs(t *testing.T) {
	r := NewRegistry("", 0)
	for _, id := range []string{"", "../etc", "01ARZ3NDEKTSV4RRFFQ69G5FAVX", "01arz3ndektsv4rrffq69g5fav"} {
		if _, _, ok := r.Get(id); ok {
			t.Fatalf("expected miss for %q", id)
		}
	}
}

func TestConcurrentArenas(t *testing.T) {
	r := NewRegistry("", 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := r.NewArena()
			for j := 0; j < 10; j++ {
				if _, err := a.Allocate("f", "text/plain", []byte("x")); err != nil {
					t.Errorf("Allocate() error = %v", err)
					return
				}
			}
			a.Release()
		}()
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("expected all handles released, got %d", r.Len())
	}
}

func TestDataURLArena(t *testing.T) {
	addr, err := DataURLArena{}.Allocate("a.css", "text/css", []byte("p{}"))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if addr != "data:text/css;base64,cHt9" {
		t.Fatalf("unexpected data url %q", addr)
	}
}
