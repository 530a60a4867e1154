package db

type UserRow struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    int64
}

type DeploymentRow struct {
	ID           string
	Subdomain    string
	Name         string
	OwnerID      string
	Status       string
	CreatedAt    int64
	LastModified int64
	VisitorCount int64
	HTML         string
	CSS          string
	JS           string
	FilesJSON    string
}

func (r DeploymentRow) FilesJSONOrDefault() string {
	if r.FilesJSON == "" {
		return "[]"
	}
	return r.FilesJSON
}

type ActivityLogRow struct {
	ID              int64
	Actor           string
	Timestamp       string
	Operation       string
	DeploymentID    *string
	ResourceSummary string
	MetadataJSON    string
}
