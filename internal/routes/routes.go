package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ctfhub/team-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(auth *handlers.AuthHandler, team *handlers.TeamHandler, invite *handlers.InviteHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/register", auth.Register).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Invite preview allows anonymous callers.
	router.Handle("/api/invites/{inviteCode}",
		auth.OptionalAuth(http.HandlerFunc(invite.GetInvite))).Methods(http.MethodGet)

	// Everything below requires a verified bearer token.
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(auth.RequireAuth)

	protected.HandleFunc("/teams", team.CreateTeam).Methods(http.MethodPost)
	protected.HandleFunc("/teams/{teamID}", team.GetTeam).Methods(http.MethodGet)
	protected.HandleFunc("/teams/{teamID}", team.UpdateTeam).Methods(http.MethodPatch)
	protected.HandleFunc("/teams/{teamID}", team.DeleteTeam).Methods(http.MethodDelete)
	protected.HandleFunc("/teams/{teamID}/owner", team.UpdateOwner).Methods(http.MethodPut)
	protected.HandleFunc("/teams/{teamID}/leave", team.LeaveTeam).Methods(http.MethodPost)
	protected.HandleFunc("/teams/{teamID}/invites", team.CreateInvite).Methods(http.MethodPost)
	protected.HandleFunc("/teams/{teamID}/invites", team.ListInvites).Methods(http.MethodGet)
	protected.HandleFunc("/invites/{inviteCode}", invite.DeleteInvite).Methods(http.MethodDelete)
	protected.HandleFunc("/invites/{inviteCode}/use", invite.UseInvite).Methods(http.MethodPost)

	return router
}
