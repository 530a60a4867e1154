package blob

import (
	"encoding/base64"
	"sync"
)

// Arena owns every handle allocated during one render. Release revokes them
// all; the arena cannot be reused afterwards.
type Arena struct {
	registry *Registry

	mu       sync.Mutex
	ids      []string
	released bool
}

// Allocate stores content and returns its address.
func (a *Arena) Allocate(_ string, contentType string, content []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return "", ErrReleased
	}
	id, err := a.registry.put(contentType, content)
	if err != nil {
		return "", err
	}
	a.ids = append(a.ids, id)
	return a.registry.prefix + id, nil
}

// Release revokes all handles of the arena. It is safe to call more than once.
func (a *Arena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	a.released = true
	a.registry.revoke(a.ids)
	a.ids = nil
}

// Len reports live handles owned by the arena.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.ids)
}

// DataURLArena inlines content as data: URIs. Used where no server is around
// to serve handles, so Release has nothing to revoke.
type DataURLArena struct{}

func (DataURLArena) Allocate(_ string, contentType string, content []byte) (string, error) {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(content), nil
}

func (DataURLArena) Release() {}
