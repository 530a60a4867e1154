package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/benedict2310/sitedrop/internal/audit"
	"github.com/benedict2310/sitedrop/internal/auth"
	"github.com/benedict2310/sitedrop/internal/blob"
	dbpkg "github.com/benedict2310/sitedrop/internal/db"
	"github.com/benedict2310/sitedrop/internal/deploy"
	"github.com/benedict2310/sitedrop/internal/site"
	"github.com/benedict2310/sitedrop/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	activityQueueSize = 512
)

type Server struct {
	cfg        Config
	logger     *slog.Logger
	version    string
	storage    storagePaths
	db         *sql.DB
	store      store.Store
	listener   net.Listener
	httpServer *http.Server
	errCh      chan error

	activity audit.Logger
	blobs    *blob.Registry
	auth     *auth.Service
	deploys  *deploy.Service
	sites    *site.Resolver
	limiter  RateLimiter
	metrics  *metrics
	upgrader websocket.Upgrader

	// viewersCtx is canceled on shutdown to close hijacked viewer sockets,
	// which http.Server.Shutdown does not track.
	viewersCtx    context.Context
	cancelViewers context.CancelFunc
}

func New(cfg Config, logger *slog.Logger, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	srv := &Server{
		cfg:     cfg,
		logger:  logger,
		version: version,
		errCh:   make(chan error, 1),
		metrics: newMetrics(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 << 10,
		},
	}

	srv.viewersCtx, srv.cancelViewers = context.WithCancel(context.Background())

	srv.httpServer = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.routes(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv.httpServer.RegisterOnShutdown(srv.cancelViewers)
	return srv, nil
}

func (s *Server) Start() error {
	paths, err := prepareStorage(s.cfg.DataDir, s.cfg.DBPath)
	if err != nil {
		return err
	}
	s.storage = paths
	dbPath := paths.DB
	sqlDB, err := dbpkg.Open(dbpkg.Options{
		Path:          dbPath,
		EnableWAL:     s.cfg.DBWAL,
		BusyTimeoutMS: 5000,
		MaxOpenConns:  5,
		MaxIdleConns:  5,
	})
	if err != nil {
		return err
	}
	if err := dbpkg.RunMigrations(context.Background(), sqlDB); err != nil {
		_ = sqlDB.Close()
		return err
	}
	s.db = sqlDB
	if p, err := dbpkg.ReadPragmas(context.Background(), sqlDB); err == nil {
		version, _ := dbpkg.SchemaVersion(context.Background(), sqlDB)
		s.logger.Info("database ready", "path", dbPath, "journal_mode", p.JournalMode, "schema_version", version)
	}

	if err := s.initComponents(); err != nil {
		s.closeComponents(context.Background())
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		s.closeComponents(context.Background())
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln

	if !isLoopbackHost(s.cfg.BindAddr) {
		s.logger.Warn("binding to non-loopback address", "bind", s.cfg.BindAddr)
	}

	s.logger.Info("sitedropd starting",
		"listen_addr", ln.Addr().String(),
		"data_dir", s.storage.Root,
		"db_path", dbPath,
		"store", s.cfg.storeBackend(),
		"rate_limit", s.cfg.rateLimitBackend(),
		"version", s.version,
	)

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
		close(s.errCh)
	}()

	return nil
}

func (s *Server) initComponents() error {
	baseActivity, err := audit.NewSQLiteLogger(s.db)
	if err != nil {
		return fmt.Errorf("initialize activity logger: %w", err)
	}
	s.activity = audit.NewAsyncLogger(baseActivity, activityQueueSize, func(err error) {
		if errors.Is(err, audit.ErrQueueFull) {
			s.metrics.activityDropped.WithLabelValues("queue_full").Inc()
			return
		}
		s.metrics.activityDropped.WithLabelValues("write_error").Inc()
		s.logger.Error("asynchronous activity write failed", "error", err)
	})

	var redisStore *store.Redis
	switch s.cfg.storeBackend() {
	case StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisStore, err = store.NewRedis(ctx, store.RedisOptions{
			Addr:     s.cfg.Redis.Addr,
			Password: s.cfg.Redis.Password,
			DB:       s.cfg.Redis.DB,
			Prefix:   s.cfg.Redis.Prefix,
		})
		if err != nil {
			return err
		}
		s.store = redisStore
	case StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pg, err := store.OpenPostgres(ctx, store.PostgresOptions{
			DSN:      s.cfg.Postgres.DSN,
			MaxConns: s.cfg.Postgres.MaxConns,
		})
		if err != nil {
			return err
		}
		s.store = pg
	default:
		s.store = store.NewSQLite(s.db)
	}

	switch s.cfg.rateLimitBackend() {
	case RateLimitRedis:
		if redisStore != nil {
			s.limiter = newRedisRateLimiterFromClient(redisStore.Client(), s.cfg.Redis.Prefix, false, s.logger)
		} else {
			limiter, err := NewRedisRateLimiter(s.cfg.Redis.Addr, s.cfg.Redis.Password, s.cfg.Redis.DB, s.cfg.Redis.Prefix, s.logger)
			if err != nil {
				return fmt.Errorf("connect redis rate limiter: %w", err)
			}
			s.limiter = limiter
		}
	default:
		s.limiter = NewMemoryRateLimiter()
	}

	secret := s.cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		s.logger.Warn("no jwt secret configured; using an ephemeral secret, tokens will not survive a restart")
	}
	s.auth, err = auth.NewService(s.store, auth.Config{Secret: secret, TokenTTL: s.cfg.Auth.TokenTTL, AdminEmails: s.cfg.Auth.AdminEmails}, s.activity, s.logger)
	if err != nil {
		return err
	}
	s.deploys = deploy.NewService(s.store, deploy.Options{
		MaxFiles:        s.cfg.Limits.MaxFiles,
		MaxContentBytes: s.cfg.Limits.MaxContentBytes,
		Activity:        s.activity,
		Logger:          s.logger,
	})
	s.sites = site.NewResolver(s.store, s.activity, s.logger)
	s.blobs = blob.NewRegistry(blob.DefaultPathPrefix, s.cfg.Limits.BlobMaxBytes)
	return nil
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case err := <-s.errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil && s.db == nil {
		return nil
	}

	s.logger.Info("sitedropd shutting down")
	if s.listener != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}

		if err, ok := <-s.errCh; ok && err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		s.listener = nil
	}
	return s.closeComponents(ctx)
}

func (s *Server) closeComponents(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if closer, ok := s.activity.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			keep(fmt.Errorf("close activity logger: %w", err))
		}
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			keep(fmt.Errorf("close store: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			keep(fmt.Errorf("close sqlite db: %w", err))
		}
	}
	s.db = nil
	s.store = nil
	s.limiter = nil
	s.activity = nil
	s.auth = nil
	s.deploys = nil
	s.sites = nil
	s.blobs = nil
	return firstErr
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) ready() bool {
	return s.store != nil && s.auth != nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", level)
	}
}

func NewLogger(level string) (*slog.Logger, error) {
	parsed, err := parseLogLevel(level)
	if err != nil {
		return nil, err
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	return slog.New(h), nil
}
