package migrations

type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Timestamps on deployments and users are epoch milliseconds so records read
// back identically from either store backend.
const initialSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS deployments (
    id TEXT PRIMARY KEY,
    subdomain TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    owner_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'live',
    created_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL,
    visitor_count INTEGER NOT NULL DEFAULT 0,
    html TEXT NOT NULL DEFAULT '',
    css TEXT NOT NULL DEFAULT '',
    js TEXT NOT NULL DEFAULT '',
    files_json TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_deployments_owner_created ON deployments(owner_id, created_at);
`

func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "initial_schema",
			UpSQL:   initialSchemaSQL,
		},
		{
			Version: 2,
			Name:    "activity_log",
			UpSQL:   activityLogSchemaSQL,
		},
	}
}
