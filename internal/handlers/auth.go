package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ctfhub/team-api/internal/apperr"
	"github.com/ctfhub/team-api/internal/auth"
	"github.com/ctfhub/team-api/internal/authz"
	"github.com/ctfhub/team-api/internal/repository"
)

type AuthHandler struct {
	users    repository.UserRepository
	verifier *auth.Verifier
	logger   zerolog.Logger
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(users repository.UserRepository, verifier *auth.Verifier, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		verifier: verifier,
		logger:   logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid request body"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, h.logger, apperr.Validation("username, email and password are required"))
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, h.logger, apperr.ErrUserExists)
			return
		}
		writeError(w, h.logger, apperr.Internal(err))
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid request body"))
		return
	}

	user, err := h.users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, h.logger, apperr.ErrInvalidCredentials)
			return
		}
		writeError(w, h.logger, apperr.Internal(err))
		return
	}

	token, err := h.verifier.Issue(user.ID, user.IsAdmin)
	if err != nil {
		writeError(w, h.logger, apperr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// RequireAuth verifies the bearer token and stores the caller identity on the
// request context. Requests without a valid token never reach the handler.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.identityFromHeader(r)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), identity)))
	})
}

// OptionalAuth resolves the caller identity when a token is supplied but lets
// anonymous requests through. A present-but-invalid token is still rejected.
func (h *AuthHandler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := h.identityFromHeader(r)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), identity)))
	})
}

func (h *AuthHandler) identityFromHeader(r *http.Request) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Identity{}, apperr.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return auth.Identity{}, apperr.ErrInvalidToken
	}
	return h.verifier.Verify(parts[1])
}
