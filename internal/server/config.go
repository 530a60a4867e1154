package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBindAddr = "127.0.0.1"
	DefaultPort     = 9400
	DefaultDataDir  = "/var/lib/sitedropd"
	DefaultLogLevel = "info"

	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"

	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "sitedrop:"
	DefaultTokenTTL    = 7 * 24 * time.Hour
	DefaultBlobMax     = 64 << 20

	minJWTSecretLength = 16
)

type Config struct {
	BindAddr  string          `yaml:"bind"`
	Port      int             `yaml:"port"`
	DataDir   string          `yaml:"dataDir"`
	LogLevel  string          `yaml:"logLevel"`
	DBPath    string          `yaml:"dbPath"`
	DBWAL     bool            `yaml:"dbWAL"`
	Store     string          `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Limits    LimitsConfig    `yaml:"limits"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn,omitempty"`
	MaxConns int32  `yaml:"maxConns"`
}

type AuthConfig struct {
	// JWTSecret signs bearer tokens. Left empty, a random secret is generated
	// at start and tokens do not survive a restart.
	JWTSecret string        `yaml:"jwtSecret,omitempty"`
	TokenTTL  time.Duration `yaml:"tokenTTL"`
	// AdminEmails grants the admin role to these accounts.
	AdminEmails []string `yaml:"adminEmails,omitempty"`
}

type RateLimitConfig struct {
	Backend string        `yaml:"backend"`
	Auth    int           `yaml:"auth"`
	Deploy  int           `yaml:"deploy"`
	Window  time.Duration `yaml:"window"`
}

type LimitsConfig struct {
	MaxFiles        int   `yaml:"maxFiles"`
	MaxContentBytes int   `yaml:"maxContentBytes"`
	BlobMaxBytes    int64 `yaml:"blobMaxBytes"`
}

func DefaultConfig() Config {
	return Config{
		BindAddr: DefaultBindAddr,
		Port:     DefaultPort,
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		DBPath:   "",
		DBWAL:    true,
		Store:    StoreSQLite,
		Redis: RedisConfig{
			Addr:   DefaultRedisAddr,
			Prefix: DefaultRedisPrefix,
		},
		Auth: AuthConfig{TokenTTL: DefaultTokenTTL},
		RateLimit: RateLimitConfig{
			Backend: RateLimitMemory,
			Auth:    10,
			Deploy:  30,
			Window:  time.Minute,
		},
		Limits: LimitsConfig{BlobMaxBytes: DefaultBlobMax},
	}
}

// LoadConfig layers defaults, the YAML file and SITEDROPD_* variables. An
// empty configPath falls back to $SITEDROPD_CONFIG; no file at all is fine.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		configPath = strings.TrimSpace(os.Getenv("SITEDROPD_CONFIG"))
	}
	if configPath != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.RateLimit.Backend = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	cfg.Auth.JWTSecret = strings.TrimSpace(cfg.Auth.JWTSecret)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_BIND")); v != "" {
		cfg.BindAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SITEDROPD_PORT=%q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_LOG_LEVEL")); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_DB_PATH")); v != "" {
		cfg.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_DB_WAL")); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse SITEDROPD_DB_WAL=%q: %w", v, err)
		}
		cfg.DBWAL = parsed
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_STORE")); v != "" {
		cfg.Store = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SITEDROPD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_REDIS_DB")); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SITEDROPD_REDIS_DB=%q: %w", v, err)
		}
		cfg.Redis.DB = db
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_REDIS_PREFIX")); v != "" {
		cfg.Redis.Prefix = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_POSTGRES_DSN")); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_JWT_SECRET")); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_TOKEN_TTL")); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SITEDROPD_TOKEN_TTL=%q: %w", v, err)
		}
		cfg.Auth.TokenTTL = ttl
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_ADMIN_EMAILS")); v != "" {
		cfg.Auth.AdminEmails = nil
		for _, email := range strings.Split(v, ",") {
			if email = strings.TrimSpace(email); email != "" {
				cfg.Auth.AdminEmails = append(cfg.Auth.AdminEmails, strings.ToLower(email))
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("SITEDROPD_RATE_LIMIT_BACKEND")); v != "" {
		cfg.RateLimit.Backend = v
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("bind address is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in range 0..65535")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory is required")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.storeBackend() {
	case StoreSQLite:
	case StoreRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			return fmt.Errorf("postgres dsn is required for the postgres store")
		}
		if c.Postgres.MaxConns < 0 {
			return fmt.Errorf("postgres maxConns must not be negative")
		}
	default:
		return fmt.Errorf("invalid store %q (expected sqlite|redis|postgres)", c.Store)
	}
	switch c.rateLimitBackend() {
	case RateLimitMemory:
	case RateLimitRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis address is required for the redis rate limiter")
		}
	default:
		return fmt.Errorf("invalid rate limit backend %q (expected memory|redis)", c.RateLimit.Backend)
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("jwt secret must be at least %d characters", minJWTSecretLength)
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("token ttl must not be negative")
	}
	if c.RateLimit.Auth < 0 || c.RateLimit.Deploy < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.Limits.MaxFiles < 0 || c.Limits.MaxContentBytes < 0 || c.Limits.BlobMaxBytes < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}

func (c Config) storeBackend() string {
	if s := strings.ToLower(strings.TrimSpace(c.Store)); s != "" {
		return s
	}
	return StoreSQLite
}

func (c Config) rateLimitBackend() string {
	if s := strings.ToLower(strings.TrimSpace(c.RateLimit.Backend)); s != "" {
		return s
	}
	return RateLimitMemory
}
