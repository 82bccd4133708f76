package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ctfhub/team-api/internal/apperr"
	"github.com/ctfhub/team-api/internal/auth"
	"github.com/ctfhub/team-api/internal/authz"
	"github.com/ctfhub/team-api/internal/models"
	"github.com/ctfhub/team-api/internal/service"
)

type TeamHandler struct {
	service *service.TeamService
	logger  zerolog.Logger
}

func NewTeamHandler(service *service.TeamService, logger zerolog.Logger) *TeamHandler {
	return &TeamHandler{service: service, logger: logger}
}

type createTeamRequest struct {
	TeamName string `json:"teamName"`
}

type updateTeamRequest struct {
	Name    *string `json:"name"`
	Socials *struct {
		Twitter *string `json:"twitter"`
		Website *string `json:"website"`
	} `json:"socials"`
}

type updateOwnerRequest struct {
	NewOwnerID string `json:"newOwnerID"`
}

type createInviteRequest struct {
	Expiry  *time.Time `json:"expiry"`
	MaxUses *int       `json:"maxUses"`
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	caller, ok := authz.IdentityFromRequest(r)
	if !ok {
		writeError(w, h.logger, apperr.ErrMissingToken)
		return
	}

	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid request body"))
		return
	}

	created, err := h.service.CreateTeam(r.Context(), caller, req.TeamName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	team, err := h.service.GetTeam(r.Context(), caller, teamID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid request body"))
		return
	}

	patch := models.TeamPatch{Name: req.Name}
	if req.Socials != nil {
		patch.Twitter = req.Socials.Twitter
		patch.Website = req.Socials.Website
	}

	team, err := h.service.UpdateTeam(r.Context(), caller, teamID, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) UpdateOwner(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req updateOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid request body"))
		return
	}

	team, err := h.service.UpdateOwner(r.Context(), caller, teamID, req.NewOwnerID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req createInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid request body"))
		return
	}

	invite, err := h.service.CreateInvite(r.Context(), caller, teamID, service.InviteOptions{
		ExpiresAt: req.Expiry,
		MaxUses:   req.MaxUses,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, invite)
}

func (h *TeamHandler) ListInvites(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	invites, err := h.service.ListTeamInvites(r.Context(), caller, teamID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, invites)
}

func (h *TeamHandler) LeaveTeam(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.LeaveTeam(r.Context(), caller, teamID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	caller, teamID, err := h.callerAndTeamID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.DeleteTeam(r.Context(), caller, teamID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TeamHandler) callerAndTeamID(r *http.Request) (auth.Identity, string, error) {
	caller, ok := authz.IdentityFromRequest(r)
	if !ok {
		return auth.Identity{}, "", apperr.ErrMissingToken
	}

	teamID := mux.Vars(r)["teamID"]
	if _, err := uuid.Parse(teamID); err != nil {
		return auth.Identity{}, "", apperr.Validation("teamID must be a valid UUID")
	}

	return caller, teamID, nil
}
