package audit

import (
	"context"
	"time"
)

const (
	OperationRegister   = "register"
	OperationLogin      = "login"
	OperationDeploy     = "deploy"
	OperationUpdateSite = "update_site"
	OperationDeleteSite = "delete_site"
	OperationVisit      = "visit"
)

type Entry struct {
	ID              int64          `json:"id"`
	Actor           string         `json:"actor"`
	Timestamp       time.Time      `json:"timestamp"`
	Operation       string         `json:"operation"`
	DeploymentID    *string        `json:"deploymentId,omitempty"`
	ResourceSummary string         `json:"resourceSummary"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type Filter struct {
	// All lifts the actor-or-deployment requirement. Only admin listings set it.
	All          bool
	Actor        string
	DeploymentID string
	Operation    string
	Since        *time.Time
	Until        *time.Time
	Limit        int
	Offset       int
}

type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Summary aggregates the whole log.
type Summary struct {
	TotalActivities int            `json:"totalActivities"`
	Last24h         int            `json:"last24h"`
	Last7d          int            `json:"last7d"`
	ByType          map[string]int `json:"byType"`
}

// Summarizer is implemented by loggers that can aggregate what they stored.
type Summarizer interface {
	Summarize(ctx context.Context, now time.Time) (Summary, error)
}

type Logger interface {
	Log(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) (QueryResult, error)
}

// Nop discards entries. Used when no activity database is configured.
type Nop struct{}

func (Nop) Log(context.Context, Entry) error { return nil }

func (Nop) Query(_ context.Context, filter Filter) (QueryResult, error) {
	return QueryResult{Entries: []Entry{}, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (Nop) Summarize(context.Context, time.Time) (Summary, error) {
	return Summary{ByType: map[string]int{}}, nil
}
