package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/benedict2310/sitedrop/internal/db"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	// Fixed-width so lexical order in SQLite matches time order.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
	anonymousActor  = "anonymous"
)

// SQLiteLogger stores entries in the activity_log table.
type SQLiteLogger struct {
	db *sql.DB
}

func NewSQLiteLogger(db *sql.DB) (*SQLiteLogger, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	return &SQLiteLogger{db: db}, nil
}

func (l *SQLiteLogger) Log(ctx context.Context, entry Entry) error {
	op := strings.TrimSpace(entry.Operation)
	if op == "" {
		return errors.New("operation is required")
	}
	actor := strings.TrimSpace(entry.Actor)
	if actor == "" {
		actor = anonymousActor
	}
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	meta, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	if _, err := dbpkg.NewQueries(l.db).InsertActivityLog(ctx, dbpkg.ActivityLogRow{
		Actor:           actor,
		Timestamp:       formatTimestamp(ts),
		Operation:       op,
		DeploymentID:    entry.DeploymentID,
		ResourceSummary: entry.ResourceSummary,
		MetadataJSON:    meta,
	}); err != nil {
		return fmt.Errorf("insert activity log entry: %w", err)
	}
	return nil
}

// Query returns matching entries newest first. Either Actor or DeploymentID
// must be set unless the filter asks for All.
func (l *SQLiteLogger) Query(ctx context.Context, filter Filter) (QueryResult, error) {
	f, err := filter.normalized()
	if err != nil {
		return QueryResult{}, err
	}
	where, args := f.where()

	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM activity_log WHERE `+where, args...).Scan(&total); err != nil {
		return QueryResult{}, fmt.Errorf("count activity log rows: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, actor, timestamp, operation, deployment_id, resource_summary, metadata_json
FROM activity_log
WHERE `+where+`
ORDER BY timestamp DESC, id DESC
LIMIT ? OFFSET ?`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return QueryResult{}, fmt.Errorf("query activity log rows: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return QueryResult{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("iterate activity log rows: %w", err)
	}
	return QueryResult{Entries: entries, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// normalized trims identifiers and clamps paging.
func (f Filter) normalized() (Filter, error) {
	f.Actor = strings.TrimSpace(f.Actor)
	f.DeploymentID = strings.TrimSpace(f.DeploymentID)
	f.Operation = strings.TrimSpace(f.Operation)
	if !f.All && f.Actor == "" && f.DeploymentID == "" {
		return f, errors.New("actor or deployment id is required")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	f.Offset = max(f.Offset, 0)
	return f, nil
}

func (f Filter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.Actor != "" {
		add("actor = ?", f.Actor)
	}
	if f.DeploymentID != "" {
		add("deployment_id = ?", f.DeploymentID)
	}
	if f.Operation != "" {
		add("operation = ?", f.Operation)
	}
	if f.Since != nil {
		add("timestamp >= ?", formatTimestamp(*f.Since))
	}
	if f.Until != nil {
		add("timestamp <= ?", formatTimestamp(*f.Until))
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Summarize counts all entries, the recent ones relative to now, and entries
// per operation.
func (l *SQLiteLogger) Summarize(ctx context.Context, now time.Time) (Summary, error) {
	out := Summary{ByType: map[string]int{}}
	err := l.db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0)
FROM activity_log`,
		formatTimestamp(now.Add(-24*time.Hour)),
		formatTimestamp(now.Add(-7*24*time.Hour)),
	).Scan(&out.TotalActivities, &out.Last24h, &out.Last7d)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize activity log: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `SELECT operation, COUNT(*) FROM activity_log GROUP BY operation`)
	if err != nil {
		return Summary{}, fmt.Errorf("count activity by operation: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			op string
			n  int
		)
		if err := rows.Scan(&op, &n); err != nil {
			return Summary{}, fmt.Errorf("scan activity count: %w", err)
		}
		out.ByType[op] = n
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("iterate activity counts: %w", err)
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e        Entry
		ts, meta string
	)
	if err := rows.Scan(&e.ID, &e.Actor, &ts, &e.Operation, &e.DeploymentID, &e.ResourceSummary, &meta); err != nil {
		return Entry{}, fmt.Errorf("scan activity log row: %w", err)
	}
	parsed, err := parseTimestamp(ts)
	if err != nil {
		return Entry{}, fmt.Errorf("parse activity timestamp %q: %w", ts, err)
	}
	e.Timestamp = parsed
	if e.Metadata, err = decodeMetadata(meta); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal activity metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	meta := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("parse activity metadata json: %w", err)
	}
	return meta, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(timestampLayout, raw); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
