package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openMigratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(DefaultOptions(filepath.Join(t.TempDir(), "db.sqlite")))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	return db
}

func TestDeploymentQueries(t *testing.T) {
	db := openMigratedDB(t)
	q := NewQueries(db)
	ctx := context.Background()

	older := DeploymentRow{ID: "01A", Subdomain: "old-aaaa", Name: "old", OwnerID: "u1", Status: "live", CreatedAt: 100, LastModified: 100, HTML: "<p>old</p>"}
	newer := DeploymentRow{ID: "01B", Subdomain: "new-bbbb", Name: "new", OwnerID: "u1", Status: "live", CreatedAt: 200, LastModified: 200, FilesJSON: `[{"name":"index.html","content":"x","type":"html"}]`}
	other := DeploymentRow{ID: "01C", Subdomain: "other-cccc", Name: "other", OwnerID: "u2", Status: "live", CreatedAt: 300, LastModified: 300}
	for _, row := range []DeploymentRow{older, newer, other} {
		if err := q.InsertDeployment(ctx, row); err != nil {
			t.Fatalf("InsertDeployment(%s) error = %v", row.ID, err)
		}
	}

	got, err := q.GetDeploymentByID(ctx, "01A")
	if err != nil {
		t.Fatalf("GetDeploymentByID() error = %v", err)
	}
	if got.FilesJSON != "[]" || got.HTML != "<p>old</p>" {
		t.Fatalf("unexpected row %#v", got)
	}

	id, err := q.GetDeploymentIDBySubdomain(ctx, "new-bbbb")
	if err != nil || id != "01B" {
		t.Fatalf("GetDeploymentIDBySubdomain() = %q, %v", id, err)
	}
	if _, err := q.GetDeploymentIDBySubdomain(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}

	list, err := q.ListDeploymentsByOwner(ctx, "u1")
	if err != nil {
		t.Fatalf("ListDeploymentsByOwner() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "01B" || list[1].ID != "01A" {
		t.Fatalf("expected newest first, got %#v", list)
	}

	err = q.InsertDeployment(ctx, DeploymentRow{ID: "01D", Subdomain: "old-aaaa", Name: "dup", CreatedAt: 1, LastModified: 1})
	if !IsUniqueConstraintError(err, "deployments", "subdomain") {
		t.Fatalf("expected subdomain unique violation, got %v", err)
	}

	for i := 1; i <= 3; i++ {
		n, err := q.IncrementDeploymentVisitors(ctx, "01A")
		if err != nil {
			t.Fatalf("IncrementDeploymentVisitors() error = %v", err)
		}
		if n != int64(i) {
			t.Fatalf("expected count %d, got %d", i, n)
		}
	}
	if _, err := q.IncrementDeploymentVisitors(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for missing deployment, got %v", err)
	}

	older.Name = "renamed"
	older.HTML = "<p>new</p>"
	older.LastModified = 500
	older.VisitorCount = 0
	changed, err := q.UpdateDeploymentContent(ctx, older)
	if err != nil || !changed {
		t.Fatalf("UpdateDeploymentContent() = %v, %v", changed, err)
	}
	got, err = q.GetDeploymentByID(ctx, "01A")
	if err != nil {
		t.Fatalf("GetDeploymentByID() error = %v", err)
	}
	if got.Name != "renamed" || got.HTML != "<p>new</p>" || got.LastModified != 500 || got.VisitorCount != 3 || got.Subdomain != "old-aaaa" {
		t.Fatalf("unexpected updated row %#v", got)
	}

	deleted, err := q.DeleteDeploymentByID(ctx, "01A")
	if err != nil || !deleted {
		t.Fatalf("DeleteDeploymentByID() = %v, %v", deleted, err)
	}
	deleted, err = q.DeleteDeploymentByID(ctx, "01A")
	if err != nil || deleted {
		t.Fatalf("second DeleteDeploymentByID() = %v, %v", deleted, err)
	}
}

func TestUserQueries(t *testing.T) {
	db := openMigratedDB(t)
	q := NewQueries(db)
	ctx := context.Background()

	in := UserRow{ID: "u1", Email: "a@example.com", Name: "A", PasswordHash: "hash", CreatedAt: 10}
	if err := q.InsertUser(ctx, in); err != nil {
		t.Fatalf("InsertUser() error = %v", err)
	}
	err := q.InsertUser(ctx, UserRow{ID: "u2", Email: "a@example.com", PasswordHash: "x", CreatedAt: 11})
	if !IsUniqueConstraintError(err, "users", "email") {
		t.Fatalf("expected email unique violation, got %v", err)
	}

	byEmail, err := q.GetUserByEmail(ctx, "a@example.com")
	if err != nil || byEmail != in {
		t.Fatalf("GetUserByEmail() = %#v, %v", byEmail, err)
	}
	in.Name = "B"
	changed, err := q.UpdateUser(ctx, in)
	if err != nil || !changed {
		t.Fatalf("UpdateUser() = %v, %v", changed, err)
	}
	byID, err := q.GetUserByID(ctx, "u1")
	if err != nil || byID.Name != "B" {
		t.Fatalf("GetUserByID() = %#v, %v", byID, err)
	}
	if _, err := q.GetUserByID(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestInsertActivityLog(t *testing.T) {
	db := openMigratedDB(t)
	q := NewQueries(db)
	depID := "01A"
	id, err := q.InsertActivityLog(context.Background(), ActivityLogRow{Actor: "u1", Timestamp: "2024-01-01T00:00:00.000000000Z", Operation: "deploy", DeploymentID: &depID, MetadataJSON: "{}"})
	if err != nil {
		t.Fatalf("InsertActivityLog() error = %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}
}

func TestIsUniqueConstraintErrorNil(t *testing.T) {
	if IsUniqueConstraintError(nil, "users", "email") {
		t.Fatalf("nil error must not match")
	}
	if IsUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email"), "deployments", "subdomain") {
		t.Fatalf("column mismatch must not match")
	}
}
