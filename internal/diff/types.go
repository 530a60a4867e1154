package diff

import "github.com/benedict2310/sitedrop/pkg/model"

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

type FileChange struct {
	Name       string         `json:"name" yaml:"name"`
	Type       model.FileType `json:"type" yaml:"type"`
	ChangeType ChangeType     `json:"changeType" yaml:"changeType"`
	OldHash    string         `json:"oldHash,omitempty" yaml:"oldHash,omitempty"`
	NewHash    string         `json:"newHash,omitempty" yaml:"newHash,omitempty"`
	OldBytes   int            `json:"oldBytes" yaml:"oldBytes"`
	NewBytes   int            `json:"newBytes" yaml:"newBytes"`
}

type Summary struct {
	Added     int `json:"added" yaml:"added"`
	Modified  int `json:"modified" yaml:"modified"`
	Removed   int `json:"removed" yaml:"removed"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

type Result struct {
	Changes []FileChange `json:"changes" yaml:"changes"`
	Summary Summary      `json:"summary" yaml:"summary"`
}

func (r Result) HasChanges() bool {
	return r.Summary.Added+r.Summary.Modified+r.Summary.Removed > 0
}

// Report is the structured output of a site diff.
type Report struct {
	SiteID    string `json:"siteId" yaml:"siteId"`
	Subdomain string `json:"subdomain" yaml:"subdomain"`
	Result    Result `json:"result" yaml:"result"`
}
