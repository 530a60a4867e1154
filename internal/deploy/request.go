package deploy

import (
	"fmt"
	"strings"

	"github.com/benedict2310/sitedrop/internal/names"
	"github.com/benedict2310/sitedrop/pkg/model"
)

const (
	MaxNameLength          = 100
	DefaultMaxFiles        = 200
	DefaultMaxContentBytes = 5 << 20
)

// Request carries deployment content. Files wins over the legacy html/css/js
// triple when both are present. Code is accepted as an alias for HTML.
type Request struct {
	Name      string       `json:"name" yaml:"name"`
	Subdomain string       `json:"subdomain,omitempty" yaml:"subdomain,omitempty"`
	HTML      string       `json:"html,omitempty" yaml:"html,omitempty"`
	Code      string       `json:"code,omitempty" yaml:"-"`
	CSS       string       `json:"css,omitempty" yaml:"css,omitempty"`
	JS        string       `json:"js,omitempty" yaml:"js,omitempty"`
	Files     []model.File `json:"files,omitempty" yaml:"files,omitempty"`
}

type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return "invalid deployment: " + strings.Join(e.Details, "; ")
}

type limits struct {
	maxFiles        int
	maxContentBytes int
}

// normalize validates req and returns the cleaned copy. requireName is false
// for updates, where an empty name keeps the stored one.
func (req Request) normalize(requireName bool, lim limits) (Request, error) {
	var details []string
	out := Request{
		Name:      strings.TrimSpace(req.Name),
		Subdomain: names.CanonicalSubdomain(req.Subdomain),
		HTML:      req.HTML,
		CSS:       req.CSS,
		JS:        req.JS,
	}
	if out.HTML == "" {
		out.HTML = req.Code
	}

	if requireName && out.Name == "" {
		details = append(details, "name is required")
	}
	if len(out.Name) > MaxNameLength {
		details = append(details, fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	if out.Subdomain != "" {
		if err := names.ValidateSubdomain(out.Subdomain); err != nil {
			details = append(details, err.Error())
		}
	}

	if len(req.Files) > 0 {
		out.HTML, out.CSS, out.JS = "", "", ""
		out.Files = make([]model.File, 0, len(req.Files))
		for _, f := range req.Files {
			f.Name = model.NormalizePath(f.Name)
			if f.Type == "" {
				f.Type = model.InferFileType(f.Name)
			}
			out.Files = append(out.Files, f)
		}
		if len(out.Files) > lim.maxFiles {
			details = append(details, fmt.Sprintf("at most %d files are allowed", lim.maxFiles))
		}
		if err := model.ValidateFiles(out.Files); err != nil {
			details = append(details, err.Error())
		}
	}

	size := len(out.HTML) + len(out.CSS) + len(out.JS)
	for _, f := range out.Files {
		size += len(f.Content)
	}
	if size > lim.maxContentBytes {
		details = append(details, fmt.Sprintf("content exceeds %d bytes", lim.maxContentBytes))
	}

	if len(details) == 0 {
		if _, err := model.Normalize(out.apply(model.Deployment{})); err != nil {
			details = append(details, "at least one html file (or html content) is required")
		}
	}
	if len(details) > 0 {
		return Request{}, &ValidationError{Details: details}
	}
	return out, nil
}

// apply replaces the content of d with the request content.
func (req Request) apply(d model.Deployment) model.Deployment {
	d.HTML, d.CSS, d.JS = req.HTML, req.CSS, req.JS
	d.Files = req.Files
	return d
}
