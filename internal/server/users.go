package server

import (
	"net/http"
)

const maxAuthBodyBytes = 16 << 10

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	var req registerRequest
	if !decodeJSONBody(w, r, maxAuthBodyBytes, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "missing required fields", []string{"email and password are required"})
		return
	}
	session, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.ready() {
		writeAPIError(w, http.StatusServiceUnavailable, "server is not ready", nil)
		return
	}
	var req loginRequest
	if !decodeJSONBody(w, r, maxAuthBodyBytes, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeAPIError(w, http.StatusBadRequest, "missing required fields", []string{"email and password are required"})
		return
	}
	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Sanitized()})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var req updateUserRequest
	if !decodeJSONBody(w, r, maxAuthBodyBytes, &req) {
		return
	}
	updated, err := s.auth.UpdateProfile(r.Context(), user.ID, req.Name, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated.Sanitized()})
}
