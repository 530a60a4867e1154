package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(t *testing.T) Config {
	t.Helper()
	return Config{BindAddr: "127.0.0.1", Port: 0, DataDir: t.TempDir(), LogLevel: "info"}
}

func newServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	srv, err := New(cfg, quietLogger(), "v-test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

// startServer starts srv and shuts it down when the test ends.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return "http://" + srv.Addr()
}

func getJSON(t *testing.T, url string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s response: %v", url, err)
	}
	return resp.StatusCode, payload
}

func TestServerOperationalEndpoints(t *testing.T) {
	cfg := baseConfig(t)
	cfg.LogLevel = "debug"
	base := startServer(t, newServer(t, cfg))

	status, health := getJSON(t, base+"/healthz")
	if status != http.StatusOK || health["status"] != "ok" || health["store"] != StoreSQLite {
		t.Fatalf("unexpected /healthz %d %#v", status, health)
	}
	status, version := getJSON(t, base+"/version")
	if status != http.StatusOK || version["version"] != "v-test" {
		t.Fatalf("unexpected /version %d %#v", status, version)
	}

	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "sitedrop_viewer_sessions_active") {
		t.Fatalf("expected viewer gauge in /metrics, got %d", resp.StatusCode)
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := newServer(t, baseConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.Addr() == "" {
		cancel()
		t.Fatalf("server never started")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not exit after cancel")
	}
}

func TestServerStartFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("pre-listen failed: %v", err)
	}
	defer ln.Close()
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	busyPort, _ := strconv.Atoi(portStr)

	blocker := filepath.Join(t.TempDir(), "not-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker file: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "port in use", mutate: func(c *Config) { c.Port = busyPort }, wantErr: "listen on"},
		{name: "data dir is a file", mutate: func(c *Config) { c.DataDir = blocker }, wantErr: "data directory"},
		{name: "redis unreachable", mutate: func(c *Config) {
			c.Store = StoreRedis
			c.Redis = RedisConfig{Addr: "127.0.0.1:1"}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tc.mutate(&cfg)
			srv := newServer(t, cfg)
			err := srv.Start()
			if err == nil {
				t.Fatalf("expected Start() to fail")
			}
			if tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected %q in error, got %v", tc.wantErr, err)
			}
			if srv.db != nil || srv.listener != nil {
				t.Fatalf("expected resources released after failed start")
			}
		})
	}
}

func TestRunReturnsStartError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker file: %v", err)
	}
	cfg := baseConfig(t)
	cfg.DataDir = blocker
	if err := newServer(t, cfg).Run(context.Background()); err == nil {
		t.Fatalf("expected Run() to fail when Start() fails")
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "", "warn", "warning", "error"} {
		if _, err := parseLogLevel(level); err != nil {
			t.Fatalf("parseLogLevel(%q) unexpected error: %v", level, err)
		}
		if _, err := NewLogger(level); err != nil {
			t.Fatalf("NewLogger(%q) unexpected error: %v", level, err)
		}
	}
	if _, err := NewLogger("bogus"); err == nil {
		t.Fatalf("expected invalid level error")
	}
}

func TestIsLoopbackHost(t *testing.T) {
	tests := map[string]bool{
		"localhost":    true,
		"127.0.0.1":    true,
		"::1":          true,
		"192.168.1.10": false,
		"not-an-ip":    false,
	}
	for host, want := range tests {
		if got := isLoopbackHost(host); got != want {
			t.Fatalf("isLoopbackHost(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestNewDefaultsVersionAndLogger(t *testing.T) {
	srv, err := New(baseConfig(t), nil, "")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.version != "dev" || srv.logger == nil {
		t.Fatalf("expected defaults, got version=%q logger=%v", srv.version, srv.logger)
	}
}

func TestServerBeforeStart(t *testing.T) {
	srv := newServer(t, baseConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() before Start() should be a no-op, got %v", err)
	}

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`)),
	} {
		rec := httptest.NewRecorder()
		srv.httpServer.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: expected 503 before start, got %d", req.Method, req.URL.Path, rec.Code)
		}
	}
}

func TestServerWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig(t)
	cfg.Store = StoreRedis
	cfg.Redis = RedisConfig{Addr: mr.Addr(), Prefix: "test:"}
	cfg.RateLimit = RateLimitConfig{Backend: RateLimitRedis, Auth: 100, Window: time.Minute}
	base := startServer(t, newServer(t, cfg))

	status, health := getJSON(t, base+"/healthz")
	if status != http.StatusOK || health["store"] != StoreRedis {
		t.Fatalf("unexpected health %d %#v", status, health)
	}

	mr.Close()
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", resp.StatusCode)
	}
}
