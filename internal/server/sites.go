package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/sitedrop/internal/audit"
	"github.com/benedict2310/sitedrop/internal/deploy"
	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/validator"
)

const (
	deployDefaultMaxContentBytes = deploy.DefaultMaxContentBytes
	activityFlushTimeout         = 2 * time.Second
)

type deploymentResponse struct {
	Deployment model.Deployment    `json:"deployment"`
	URL        string              `json:"url"`
	Warnings   []validator.Warning `json:"warnings,omitempty"`
}

type sitesResponse struct {
	Sites []siteSummary `json:"sites"`
	Count int           `json:"count"`
}

type siteSummary struct {
	model.Deployment
	URL string `json:"url"`
}

func siteURL(subdomain string) string {
	return "/s/" + subdomain
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var req deploy.Request
	if !decodeJSONBody(w, r, s.maxRequestBytes(), &req) {
		return
	}
	res, err := s.deploys.Create(r.Context(), user.ID, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.deployments.WithLabelValues("create").Inc()
	s.logger.Info("deployment created", "deployment", res.Deployment.ID, "subdomain", res.Deployment.Subdomain, "user_id", user.ID)
	writeJSON(w, http.StatusCreated, deploymentResponse{
		Deployment: res.Deployment,
		URL:        siteURL(res.Deployment.Subdomain),
		Warnings:   res.Warnings,
	})
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	items, err := s.deploys.List(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]siteSummary, 0, len(items))
	for _, d := range items {
		out = append(out, siteSummary{Deployment: d, URL: siteURL(d.Subdomain)})
	}
	writeJSON(w, http.StatusOK, sitesResponse{Sites: out, Count: len(out)})
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	d, err := s.deploys.Get(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deploymentResponse{Deployment: d, URL: siteURL(d.Subdomain)})
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var req deploy.Request
	if !decodeJSONBody(w, r, s.maxRequestBytes(), &req) {
		return
	}
	res, err := s.deploys.Update(r.Context(), user.ID, r.PathValue("id"), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.deployments.WithLabelValues("update").Inc()
	writeJSON(w, http.StatusOK, deploymentResponse{
		Deployment: res.Deployment,
		URL:        siteURL(res.Deployment.Subdomain),
		Warnings:   res.Warnings,
	})
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	if err := s.deploys.Delete(r.Context(), user.ID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.metrics.deployments.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// handleActivity lists the caller's own activity. A deployment filter is
// only honored for deployments the caller owns.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	q := r.URL.Query()
	filter := audit.Filter{
		Actor:     user.ID,
		Operation: strings.TrimSpace(q.Get("operation")),
	}
	if id := strings.TrimSpace(q.Get("deployment")); id != "" {
		if _, err := s.deploys.Get(r.Context(), user.ID, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		filter.DeploymentID = id
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

// parseActivityPaging fills limit, offset and since from q and returns one
// detail per malformed parameter.
func parseActivityPaging(q url.Values, filter *audit.Filter) []string {
	var details []string
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, "limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			details = append(details, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			details = append(details, "since must be an RFC3339 timestamp")
		}
		filter.Since = &ts
	}
	return details
}

// flushActivity waits briefly for queued audit entries so reads observe the
// caller's own recent actions.
func (s *Server) flushActivity(ctx context.Context) {
	flusher, ok := s.activity.(interface{ WaitIdle(context.Context) error })
	if !ok {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, activityFlushTimeout)
	defer cancel()
	if err := flusher.WaitIdle(waitCtx); err != nil {
		s.logger.Warn("activity queue did not drain before query", "error", err)
	}
}
