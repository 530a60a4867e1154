package migrations

// deployment_id is deliberately not a foreign key: entries outlive the
// deployments they mention.
const activityLogSchemaSQL = `
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    actor TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
    operation TEXT NOT NULL,
    deployment_id TEXT NULL,
    resource_summary TEXT NOT NULL DEFAULT '',
    metadata_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_activity_log_actor_timestamp ON activity_log(actor, timestamp);
CREATE INDEX IF NOT EXISTS idx_activity_log_deployment_id ON activity_log(deployment_id);
`
