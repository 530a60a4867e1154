package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/benedict2310/sitedrop/pkg/model"
)

type userContextKey struct{}

func withUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func userFromContext(ctx context.Context) (model.User, bool) {
	if ctx == nil {
		return model.User{}, false
	}
	user, ok := ctx.Value(userContextKey{}).(model.User)
	return user, ok
}

// requireAuth resolves the bearer token to a user or rejects the request
// with 401.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.ready() {
			writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
			return
		}
		token, ok := parseBearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeAPIError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		user, err := s.auth.Authorize(r.Context(), token)
		if err != nil {
			s.logger.Warn("unauthorized API request rejected",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			s.writeServiceError(w, r, err)
			return
		}
		if rec, ok := w.(*statusRecorder); ok {
			rec.userID = user.ID
		}
		next(w, r.WithContext(withUser(r.Context(), user)))
	}
}

func parseBearerToken(headerValue string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(headerValue))
	if len(parts) != 2 {
		return "", false
	}
	// RFC 7235 treats auth-scheme tokens as case-insensitive.
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
