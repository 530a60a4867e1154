package transport

import (
	"context"
	"net/http"
)

// Transport executes HTTP requests against a sitedropd server.
type Transport interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
	Close() error
}
