package transport

import (
	"github.com/benedict2310/sitedrop/internal/config"
)

// NewHTTPTransportFromContext creates a transport using context server details.
func NewHTTPTransportFromContext(info config.ContextInfo, cfg HTTPConfig) (*HTTPTransport, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = info.Server
	}
	return NewHTTPTransport(cfg)
}
