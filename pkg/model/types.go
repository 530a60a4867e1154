package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Status string

const (
	StatusLive     Status = "live"
	StatusBuilding Status = "building"
	StatusError    Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusLive, StatusBuilding, StatusError:
		return true
	default:
		return false
	}
}

type FileType string

const (
	FileTypeHTML FileType = "html"
	FileTypeCSS  FileType = "css"
	FileTypeJS   FileType = "js"
)

func (t FileType) Valid() bool {
	switch t {
	case FileTypeHTML, FileTypeCSS, FileTypeJS:
		return true
	default:
		return false
	}
}

// File is one named text file of a multi-file deployment.
type File struct {
	Name    string   `json:"name" yaml:"name"`
	Content string   `json:"content" yaml:"content"`
	Type    FileType `json:"type" yaml:"type"`
}

// Deployment is the stored unit of publication. Content is either the legacy
// HTML/CSS/JS triple or the Files collection; Files wins when both are set.
type Deployment struct {
	ID           string `json:"id" yaml:"id"`
	Subdomain    string `json:"subdomain" yaml:"subdomain"`
	Name         string `json:"name" yaml:"name"`
	OwnerID      string `json:"ownerId,omitempty" yaml:"ownerId,omitempty"`
	Status       Status `json:"status" yaml:"status"`
	CreatedAt    int64  `json:"createdAt" yaml:"createdAt"`
	LastModified int64  `json:"lastModified" yaml:"lastModified"`
	VisitorCount int64  `json:"visitorCount" yaml:"visitorCount"`

	HTML  string `json:"html,omitempty" yaml:"html,omitempty"`
	CSS   string `json:"css,omitempty" yaml:"css,omitempty"`
	JS    string `json:"js,omitempty" yaml:"js,omitempty"`
	Files []File `json:"files,omitempty" yaml:"files,omitempty"`
}

// UnmarshalJSON accepts records written before the html field existed, which
// stored the page body under "code", the owner under "userId" and the counter
// under "visitors".
func (d *Deployment) UnmarshalJSON(data []byte) error {
	type plain Deployment
	var aux struct {
		plain
		Code     string `json:"code"`
		UserID   string `json:"userId"`
		Visitors *int64 `json:"visitors"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Deployment(aux.plain)
	if d.HTML == "" && aux.Code != "" {
		d.HTML = aux.Code
	}
	if d.OwnerID == "" && aux.UserID != "" {
		d.OwnerID = aux.UserID
	}
	if d.VisitorCount == 0 && aux.Visitors != nil {
		d.VisitorCount = *aux.Visitors
	}
	return nil
}

// Public returns a copy safe to serve to non-owners.
func (d Deployment) Public() Deployment {
	d.OwnerID = ""
	return d
}

// Summary drops content; used by listings.
func (d Deployment) Summary() Deployment {
	d.HTML, d.CSS, d.JS = "", "", ""
	d.Files = nil
	return d
}

func (d Deployment) HasFiles() bool {
	return len(d.Files) > 0
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string `json:"id" yaml:"id"`
	Email        string `json:"email" yaml:"email"`
	Name         string `json:"name" yaml:"name"`
	PasswordHash string `json:"passwordHash,omitempty" yaml:"-"`
	CreatedAt    int64  `json:"createdAt" yaml:"createdAt"`
	// Role is derived from server configuration when a session is issued or
	// authorized. Stores never persist it.
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Sanitized strips the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// InferFileType maps a file name extension to a file type. Unknown extensions
// are treated as html.
func InferFileType(name string) FileType {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return FileTypeHTML
	}
	switch strings.ToLower(name[idx+1:]) {
	case "css":
		return FileTypeCSS
	case "js", "mjs":
		return FileTypeJS
	default:
		return FileTypeHTML
	}
}

// ValidateFiles checks name uniqueness and types of a multi-file set.
func ValidateFiles(files []File) error {
	seen := make(map[string]struct{}, len(files))
	for i, f := range files {
		name := NormalizePath(f.Name)
		if name == "" {
			return fmt.Errorf("files[%d].name is required", i)
		}
		if strings.Contains(name, "..") {
			return fmt.Errorf("files[%d].name %q must not contain '..'", i, f.Name)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate file name %q", name)
		}
		seen[name] = struct{}{}
		if !f.Type.Valid() {
			return fmt.Errorf("file %q has invalid type %q (expected html|css|js)", f.Name, f.Type)
		}
	}
	return nil
}

// NormalizeRequestPath drops any query or fragment from a navigated path and
// then normalizes it like a file name.
func NormalizeRequestPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return NormalizePath(p)
}

// NormalizePath strips leading "./" and "/" segments from an in-site path.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, "/"):
			p = p[1:]
		default:
			return p
		}
	}
}
