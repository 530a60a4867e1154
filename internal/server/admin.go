package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/benedict2310/sitedrop/internal/audit"
	"github.com/benedict2310/sitedrop/pkg/model"
)

type adminStats struct {
	TotalUsers int   `json:"totalUsers"`
	TotalSites int64 `json:"totalSites"`
	audit.Summary
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			writeAPIError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		if !user.IsAdmin() {
			s.logger.Warn("admin API request rejected", "path", r.URL.Path, "user_id", user.ID)
			writeAPIError(w, http.StatusForbidden, "admin access required", nil)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	sites, err := s.store.CountDeployments(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	stats := adminStats{TotalUsers: len(users), TotalSites: sites, Summary: audit.Summary{ByType: map[string]int{}}}
	if summarizer, ok := s.activity.(audit.Summarizer); ok {
		s.flushActivity(r.Context())
		summary, err := summarizer.Summarize(r.Context(), time.Now())
		if err != nil {
			s.writeInternalAPIError(w, r, "summarize activity failed", err)
			return
		}
		stats.Summary = summary
	}
	writeJSON(w, http.StatusOK, map[string]adminStats{"stats": stats})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		u = u.Sanitized()
		u.Role = s.auth.RoleFor(u.Email)
		out = append(out, u)
	}
	writeJSON(w, http.StatusOK, map[string][]model.User{"users": out})
}

func (s *Server) handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		All:          true,
		Actor:        strings.TrimSpace(q.Get("actor")),
		DeploymentID: strings.TrimSpace(q.Get("deployment")),
		Operation:    strings.TrimSpace(q.Get("operation")),
	}
	if details := parseActivityPaging(q, &filter); len(details) > 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid query", details)
		return
	}
	s.flushActivity(r.Context())
	res, err := s.activity.Query(r.Context(), filter)
	if err != nil {
		s.writeInternalAPIError(w, r, "query activity failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
