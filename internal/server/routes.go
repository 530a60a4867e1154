package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benedict2310/sitedrop/internal/blob"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.registerHealthRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handle(mux, "POST /api/v1/auth/register", s.withRateLimit("auth", s.cfg.RateLimit.Auth, rateLimitKeyIP, s.handleRegister))
	s.handle(mux, "POST /api/v1/auth/login", s.withRateLimit("auth", s.cfg.RateLimit.Auth, rateLimitKeyIP, s.handleLogin))
	s.handle(mux, "GET /api/v1/user", s.requireAuth(s.handleGetUser))
	s.handle(mux, "PUT /api/v1/user", s.requireAuth(s.handleUpdateUser))

	s.handle(mux, "POST /api/v1/deploy", s.requireAuth(s.withRateLimit("deploy", s.cfg.RateLimit.Deploy, rateLimitKeyUser, s.handleDeploy)))
	s.handle(mux, "GET /api/v1/sites", s.requireAuth(s.handleListSites))
	s.handle(mux, "GET /api/v1/sites/{id}", s.requireAuth(s.handleGetSite))
	s.handle(mux, "PUT /api/v1/sites/{id}", s.requireAuth(s.withRateLimit("deploy", s.cfg.RateLimit.Deploy, rateLimitKeyUser, s.handleUpdateSite)))
	s.handle(mux, "DELETE /api/v1/sites/{id}", s.requireAuth(s.handleDeleteSite))
	s.handle(mux, "GET /api/v1/activity", s.requireAuth(s.handleActivity))

	s.handle(mux, "GET /api/v1/admin/stats", s.requireAdmin(s.handleAdminStats))
	s.handle(mux, "GET /api/v1/admin/users", s.requireAdmin(s.handleAdminUsers))
	s.handle(mux, "GET /api/v1/admin/activity", s.requireAdmin(s.handleAdminActivity))

	s.handle(mux, "GET /api/v1/site/{subdomain}", s.handlePublicSite)
	s.handle(mux, "GET /s/{subdomain}", s.handleHostPage)
	s.handle(mux, "GET /s/{subdomain}/ws", s.handleViewerSocket)
	s.handle(mux, "GET /s/{subdomain}/card.png", s.handleCard)
	s.handle(mux, "GET "+blob.DefaultPathPrefix+"{handle}", s.handleBlob)
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, s.instrument(pattern, h))
}

// maxRequestBytes bounds deploy bodies: file content plus JSON overhead.
func (s *Server) maxRequestBytes() int64 {
	limit := s.cfg.Limits.MaxContentBytes
	if limit <= 0 {
		limit = deployDefaultMaxContentBytes
	}
	return int64(limit)*2 + 1<<20
}
