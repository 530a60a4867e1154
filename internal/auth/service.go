// Package auth registers users, checks passwords and issues bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benedict2310/sitedrop/internal/audit"
	"github.com/benedict2310/sitedrop/internal/store"
	"github.com/benedict2310/sitedrop/pkg/model"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	MaxPasswordLength = 72
	DefaultTokenTTL   = 7 * 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("authentication required")
)

type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	return e.Field + ": " + e.Message
}

type Config struct {
	Secret   string
	TokenTTL time.Duration
	// AdminEmails lists accounts that get the admin role. Matching ignores
	// case and surrounding space.
	AdminEmails []string
}

// Session is what a successful register or login returns.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      model.User `json:"user"`
}

type Service struct {
	users    store.UserStore
	activity audit.Logger
	logger   *slog.Logger
	cfg      Config
	admins   map[string]struct{}
	now      func() time.Time
}

func NewService(users store.UserStore, cfg Config, activity audit.Logger, logger *slog.Logger) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if activity == nil {
		activity = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = canonicalEmail(email); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Service{users: users, activity: activity, logger: logger, cfg: cfg, admins: admins, now: time.Now}, nil
}

// RoleFor reports the role the configuration grants to email.
func (s *Service) RoleFor(email string) string {
	if _, ok := s.admins[canonicalEmail(email)]; ok {
		return model.RoleAdmin
	}
	return model.RoleUser
}

func (s *Service) Register(ctx context.Context, email, name, password string) (Session, error) {
	email = canonicalEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return Session{}, &InputError{Field: "email", Message: "must be a valid address"}
	}
	if err := validatePassword(password); err != nil {
		return Session{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().UnixMilli(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	s.record(ctx, user.ID, audit.OperationRegister)
	return s.issue(user)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.users.GetUserByEmail(ctx, canonicalEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := ComparePassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	s.record(ctx, user.ID, audit.OperationLogin)
	return s.issue(user)
}

// Authorize validates a bearer token and loads its user. The admin role needs
// both the token claim and a current admin listing, so removing an email
// from the configuration demotes it without waiting for token expiry.
func (s *Service) Authorize(ctx context.Context, token string) (model.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return model.User{}, ErrUnauthorized
	}
	claims, err := ParseToken(trimmed, s.cfg.Secret)
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, fmt.Errorf("%w: unknown user", ErrUnauthorized)
		}
		return model.User{}, err
	}
	user.Role = model.RoleUser
	if claims.Role == model.RoleAdmin && s.RoleFor(user.Email) == model.RoleAdmin {
		user.Role = model.RoleAdmin
	}
	return user, nil
}

// UpdateProfile changes the display name and, when password is non-empty,
// the password.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, password string) (model.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if name = strings.TrimSpace(name); name != "" {
		user.Name = name
	}
	if password != "" {
		if err := validatePassword(password); err != nil {
			return model.User{}, err
		}
		if user.PasswordHash, err = HashPassword(password); err != nil {
			return model.User{}, fmt.Errorf("hash password: %w", err)
		}
	}
	if err := s.users.PutUser(ctx, user); err != nil {
		return model.User{}, err
	}
	user.Role = s.RoleFor(user.Email)
	return user, nil
}

func (s *Service) issue(user model.User) (Session, error) {
	now := s.now().UTC()
	user.Role = s.RoleFor(user.Email)
	token, err := GenerateToken(user.ID, user.Email, user.Role, s.cfg.Secret, now, s.cfg.TokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{Token: token, ExpiresAt: now.Add(s.cfg.TokenTTL), User: user.Sanitized()}, nil
}

func (s *Service) record(ctx context.Context, userID, operation string) {
	if err := s.activity.Log(ctx, audit.Entry{Actor: userID, Operation: operation}); err != nil {
		s.logger.Warn("record activity failed", "operation", operation, "error", err)
	}
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &InputError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	if len(password) > MaxPasswordLength {
		return &InputError{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", MaxPasswordLength)}
	}
	return nil
}

func canonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
