package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ctfhub/team-api/internal/apperr"
	"github.com/ctfhub/team-api/internal/auth"
	"github.com/ctfhub/team-api/internal/authz"
	"github.com/ctfhub/team-api/internal/service"
)

type InviteHandler struct {
	service *service.TeamService
	logger  zerolog.Logger
}

func NewInviteHandler(service *service.TeamService, logger zerolog.Logger) *InviteHandler {
	return &InviteHandler{service: service, logger: logger}
}

// GetInvite serves both authenticated and anonymous callers; admins see the
// full record, everyone else the reduced view.
func (h *InviteHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(mux.Vars(r)["inviteCode"])
	if code == "" {
		writeError(w, h.logger, apperr.Validation("inviteCode is required"))
		return
	}

	var caller *auth.Identity
	if identity, ok := authz.IdentityFromRequest(r); ok {
		caller = &identity
	}

	result, err := h.service.GetInvite(r.Context(), caller, code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if result.Invite != nil {
		writeJSON(w, http.StatusOK, result.Invite)
		return
	}
	writeJSON(w, http.StatusOK, result.Basic)
}

func (h *InviteHandler) DeleteInvite(w http.ResponseWriter, r *http.Request) {
	caller, code, err := h.callerAndCode(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.DeleteInvite(r.Context(), caller, code); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *InviteHandler) UseInvite(w http.ResponseWriter, r *http.Request) {
	caller, code, err := h.callerAndCode(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	team, err := h.service.UseInvite(r.Context(), caller, code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, team)
}

func (h *InviteHandler) callerAndCode(r *http.Request) (auth.Identity, string, error) {
	caller, ok := authz.IdentityFromRequest(r)
	if !ok {
		return auth.Identity{}, "", apperr.ErrMissingToken
	}

	code := strings.TrimSpace(mux.Vars(r)["inviteCode"])
	if code == "" {
		return auth.Identity{}, "", apperr.Validation("inviteCode is required")
	}

	return caller, code, nil
}
