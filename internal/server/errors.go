package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/benedict2310/sitedrop/internal/auth"
	"github.com/benedict2310/sitedrop/internal/deploy"
	"github.com/benedict2310/sitedrop/internal/site"
	"github.com/benedict2310/sitedrop/internal/store"
)

func writeAPIError(w http.ResponseWriter, status int, message string, details []string) {
	resp := map[string]any{"error": message}
	if len(details) > 0 {
		resp["details"] = details
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeInternalAPIError(w http.ResponseWriter, r *http.Request, message string, err error, attrs ...any) {
	logAttrs := make([]any, 0, len(attrs)+2)
	logAttrs = append(logAttrs, "error", err)
	logAttrs = append(logAttrs, attrs...)
	s.logger.ErrorContext(r.Context(), message, logAttrs...)
	writeAPIError(w, http.StatusInternalServerError, message, nil)
}

// writeServiceError maps domain errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *deploy.ValidationError
		inputErr      *auth.InputError
	)
	switch {
	case errors.As(err, &validationErr):
		writeAPIError(w, http.StatusBadRequest, "invalid deployment", validationErr.Details)
	case errors.As(err, &inputErr):
		writeAPIError(w, http.StatusBadRequest, "invalid input", []string{inputErr.Error()})
	case errors.Is(err, site.ErrInvalidSubdomain):
		writeAPIError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeAPIError(w, http.StatusUnauthorized, err.Error(), nil)
	case errors.Is(err, auth.ErrUnauthorized):
		writeAPIError(w, http.StatusUnauthorized, "authentication failed", nil)
	case errors.Is(err, deploy.ErrForbidden):
		writeAPIError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, site.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, "not found", nil)
	case errors.Is(err, store.ErrSubdomainTaken), errors.Is(err, store.ErrEmailTaken):
		writeAPIError(w, http.StatusConflict, err.Error(), nil)
	case store.IsUnavailable(err):
		s.logger.ErrorContext(r.Context(), "store unavailable", "error", err, "path", r.URL.Path)
		writeAPIError(w, http.StatusServiceUnavailable, "storage unavailable", nil)
	default:
		s.writeInternalAPIError(w, r, "internal server error", err, "path", r.URL.Path)
	}
}

// decodeJSONBody reads exactly one JSON value of at most limit bytes. It
// writes the error response itself and reports whether decoding succeeded.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if isMaxBytesError(err) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeAPIError(w, http.StatusBadRequest, "invalid request body", []string{err.Error()})
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if isMaxBytesError(err) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		writeAPIError(w, http.StatusBadRequest, "invalid request body", []string{"request body must contain a single JSON value"})
		return false
	}
	return true
}

func isMaxBytesError(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
