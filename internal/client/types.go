package client

import (
	"encoding/json"
	"time"

	"github.com/benedict2310/sitedrop/pkg/model"
	"github.com/benedict2310/sitedrop/pkg/validator"
)

type Session struct {
	Token     string     `json:"token" yaml:"token"`
	ExpiresAt time.Time  `json:"expiresAt" yaml:"expiresAt"`
	User      model.User `json:"user" yaml:"user"`
}

type UserResponse struct {
	User model.User `json:"user" yaml:"user"`
}

// DeployRequest is the body of create and update calls. Files wins over the
// legacy html/css/js fields when both are set.
type DeployRequest struct {
	Name      string       `json:"name,omitempty" yaml:"name,omitempty"`
	Subdomain string       `json:"subdomain,omitempty" yaml:"subdomain,omitempty"`
	HTML      string       `json:"html,omitempty" yaml:"html,omitempty"`
	CSS       string       `json:"css,omitempty" yaml:"css,omitempty"`
	JS        string       `json:"js,omitempty" yaml:"js,omitempty"`
	Files     []model.File `json:"files,omitempty" yaml:"files,omitempty"`
}

type DeploymentResponse struct {
	Deployment model.Deployment    `json:"deployment" yaml:"deployment"`
	URL        string              `json:"url" yaml:"url"`
	Warnings   []validator.Warning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

type Site struct {
	model.Deployment `yaml:",inline"`
	URL              string `json:"url" yaml:"url"`
}

// UnmarshalJSON decodes both halves; the embedded Deployment's own
// UnmarshalJSON would otherwise swallow url.
func (s *Site) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &s.Deployment); err != nil {
		return err
	}
	var aux struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.URL = aux.URL
	return nil
}

type SitesResponse struct {
	Sites []Site `json:"sites" yaml:"sites"`
	Count int    `json:"count" yaml:"count"`
}

type ActivityEntry struct {
	ID              int64          `json:"id" yaml:"id"`
	Actor           string         `json:"actor" yaml:"actor"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
	Operation       string         `json:"operation" yaml:"operation"`
	DeploymentID    *string        `json:"deploymentId,omitempty" yaml:"deploymentId,omitempty"`
	ResourceSummary string         `json:"resourceSummary" yaml:"resourceSummary"`
	Metadata        map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type ActivityResponse struct {
	Entries []ActivityEntry `json:"entries" yaml:"entries"`
	Total   int             `json:"total" yaml:"total"`
	Limit   int             `json:"limit" yaml:"limit"`
	Offset  int             `json:"offset" yaml:"offset"`
}

type ActivityQuery struct {
	DeploymentID string
	Operation    string
	Limit        int
	Offset       int
	Since        *time.Time
}

type HealthResponse struct {
	Status string `json:"status" yaml:"status"`
	Store  string `json:"store,omitempty" yaml:"store,omitempty"`
}

type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
}
