package deploy

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idGenerator issues ULIDs. Within one millisecond the monotonic entropy
// keeps ids strictly increasing, so creation order is also sort order.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator(r io.Reader) *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(r, 0)}
}

func (g *idGenerator) next(now time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), g.entropy)
	if err != nil {
		return "", fmt.Errorf("generate deployment id: %w", err)
	}
	return id.String(), nil
}

var deploymentIDs = newIDGenerator(rand.Reader)

// NewDeploymentID returns a new deployment id stamped with now.
func NewDeploymentID(now time.Time) (string, error) {
	return deploymentIDs.next(now)
}
