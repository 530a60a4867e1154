package server

import (
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func startAdminTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServer(t, func(cfg *Config) {
		cfg.Auth.AdminEmails = []string{"Boss@Example.com"}
	})
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	ts := startAdminTestServer(t)
	member := ts.register(t, "member@example.com")

	for _, path := range []string{"/api/v1/admin/stats", "/api/v1/admin/users", "/api/v1/admin/activity"} {
		var apiErr struct {
			Error string `json:"error"`
		}
		if status := ts.do(t, http.MethodGet, path, "", nil, &apiErr); status != http.StatusUnauthorized {
			t.Fatalf("%s without token: expected 401, got %d", path, status)
		}
		if status := ts.do(t, http.MethodGet, path, member, nil, &apiErr); status != http.StatusForbidden {
			t.Fatalf("%s as member: expected 403, got %d", path, status)
		}
		if apiErr.Error != "admin access required" {
			t.Fatalf("%s as member: unexpected error %q", path, apiErr.Error)
		}
	}
}

func TestAdminStatsUsersAndActivity(t *testing.T) {
	ts := startAdminTestServer(t)
	admin := ts.register(t, "boss@example.com")
	member := ts.register(t, "member@example.com")

	var first, second deployResp
	if status := ts.do(t, http.MethodPost, "/api/v1/deploy", member, multiFileBody("First"), &first); status != http.StatusCreated {
		t.Fatalf("expected 201 for first deploy, got %d", status)
	}
	if status := ts.do(t, http.MethodPost, "/api/v1/deploy", member, multiFileBody("Second"), &second); status != http.StatusCreated {
		t.Fatalf("expected 201 for second deploy, got %d", status)
	}
	if status := ts.do(t, http.MethodDelete, "/api/v1/sites/"+second.Deployment.ID, member, nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204 for delete, got %d", status)
	}

	var stats struct {
		Stats struct {
			TotalUsers      int            `json:"totalUsers"`
			TotalSites      int            `json:"totalSites"`
			TotalActivities int            `json:"totalActivities"`
			Last24h         int            `json:"last24h"`
			Last7d          int            `json:"last7d"`
			ByType          map[string]int `json:"byType"`
		} `json:"stats"`
	}
	if status := ts.do(t, http.MethodGet, "/api/v1/admin/stats", admin, nil, &stats); status != http.StatusOK {
		t.Fatalf("expected 200 for stats, got %d", status)
	}
	if stats.Stats.TotalUsers != 2 || stats.Stats.TotalSites != 1 {
		t.Fatalf("unexpected totals %#v", stats.Stats)
	}
	if stats.Stats.TotalActivities != 5 || stats.Stats.Last24h != 5 || stats.Stats.Last7d != 5 {
		t.Fatalf("unexpected activity counts %#v", stats.Stats)
	}
	wantByType := map[string]int{"register": 2, "deploy": 2, "delete_site": 1}
	if diff := cmp.Diff(wantByType, stats.Stats.ByType); diff != "" {
		t.Fatalf("byType mismatch (-want +got):\n%s", diff)
	}

	var users struct {
		Users []map[string]any `json:"users"`
	}
	if status := ts.do(t, http.MethodGet, "/api/v1/admin/users", admin, nil, &users); status != http.StatusOK {
		t.Fatalf("expected 200 for users, got %d", status)
	}
	got := map[string]string{}
	for _, u := range users.Users {
		if _, leaked := u["passwordHash"]; leaked {
			t.Fatalf("user listing leaked a password hash: %#v", u)
		}
		email, _ := u["email"].(string)
		role, _ := u["role"].(string)
		got[email] = role
	}
	want := map[string]string{"member@example.com": "user", "boss@example.com": "admin"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("users mismatch (-want +got):\n%s", diff)
	}

	var activity struct {
		Entries []struct {
			Actor     string `json:"actor"`
			Operation string `json:"operation"`
		} `json:"entries"`
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	if status := ts.do(t, http.MethodGet, "/api/v1/admin/activity", admin, nil, &activity); status != http.StatusOK {
		t.Fatalf("expected 200 for activity, got %d", status)
	}
	if activity.Total != 5 || len(activity.Entries) != 5 || activity.Limit != 50 {
		t.Fatalf("unexpected global activity %#v", activity)
	}
	if status := ts.do(t, http.MethodGet, "/api/v1/admin/activity?operation=deploy&limit=1", admin, nil, &activity); status != http.StatusOK {
		t.Fatalf("expected 200 for filtered activity, got %d", status)
	}
	if activity.Total != 2 || len(activity.Entries) != 1 || activity.Entries[0].Operation != "deploy" {
		t.Fatalf("unexpected filtered activity %#v", activity)
	}
	if status := ts.do(t, http.MethodGet, "/api/v1/admin/activity?limit=-1", admin, nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", status)
	}

	var self struct {
		User struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if status := ts.do(t, http.MethodGet, "/api/v1/user", admin, nil, &self); status != http.StatusOK || self.User.Role != "admin" {
		t.Fatalf("expected admin role on profile, got %d %#v", status, self)
	}
}
