package blob

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultPathPrefix is where the server mounts handle content.
const DefaultPathPrefix = "/_blob/"

var (
	handleIDPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

	ErrCapacity = errors.New("blob registry is full")
	ErrReleased = errors.New("arena already released")
)

type entry struct {
	contentType string
	content     []byte
}

// Registry holds ephemeral in-memory handles. Handles are created and revoked
// only through the Arena that owns them.
type Registry struct {
	prefix   string
	maxBytes int64

	mu      sync.RWMutex
	handles map[string]entry
	size    int64

	entropyMu sync.Mutex
	entropy   io.Reader
}

// NewRegistry returns a registry whose handle addresses start with prefix.
// maxBytes <= 0 disables the capacity limit.
func NewRegistry(prefix string, maxBytes int64) *Registry {
	if prefix == "" {
		prefix = DefaultPathPrefix
	}
	return &Registry{
		prefix:   prefix,
		maxBytes: maxBytes,
		handles:  map[string]entry{},
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

func (r *Registry) Prefix() string {
	return r.prefix
}

// Get returns handle content if the handle is still live.
func (r *Registry) Get(id string) (contentType string, content []byte, ok bool) {
	if !handleIDPattern.MatchString(id) {
		return "", nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.handles[id]
	if !ok {
		return "", nil, false
	}
	return e.contentType, e.content, true
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// NewArena opens a scope for one render.
func (r *Registry) NewArena() *Arena {
	return &Arena{registry: r}
}

func (r *Registry) newID() (string, error) {
	r.entropyMu.Lock()
	defer r.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), r.entropy)
	if err != nil {
		if err == io.EOF {
			return "", fmt.Errorf("generate handle id: insufficient entropy")
		}
		return "", fmt.Errorf("generate handle id: %w", err)
	}
	return id.String(), nil
}

func (r *Registry) put(contentType string, content []byte) (string, error) {
	id, err := r.newID()
	if err != nil {
		return "", err
	}
	buf := append([]byte(nil), content...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxBytes > 0 && r.size+int64(len(buf)) > r.maxBytes {
		return "", fmt.Errorf("%w: %d of %d bytes in use", ErrCapacity, r.size, r.maxBytes)
	}
	r.handles[id] = entry{contentType: contentType, content: buf}
	r.size += int64(len(buf))
	return id, nil
}

func (r *Registry) revoke(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if e, ok := r.handles[id]; ok {
			r.size -= int64(len(e.content))
			delete(r.handles, id)
		}
	}
}
