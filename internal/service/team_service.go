package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ctfhub/team-api/internal/apperr"
	"github.com/ctfhub/team-api/internal/auth"
	"github.com/ctfhub/team-api/internal/models"
	"github.com/ctfhub/team-api/internal/repository"
)

// TxManager runs fn inside a single database transaction. Repositories
// resolve the transaction from the context, so every write issued within fn
// commits or rolls back together.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// InviteOptions are the optional limits applied to a new invite.
type InviteOptions struct {
	ExpiresAt *time.Time
	MaxUses   *int
}

// InviteResult carries either the full invite (admin callers) or the reduced
// public view; exactly one field is set.
type InviteResult struct {
	Invite *models.Invite
	Basic  *models.BasicInvite
}

// CreatedTeam is the createTeam response payload.
type CreatedTeam struct {
	TeamID   string `json:"teamID"`
	TeamName string `json:"teamName"`
}

// TeamService enforces authorization policy and applies state transitions for
// the team lifecycle and invites. Multi-record mutations run inside a single
// transaction; reads that feed a mutation lock the rows they depend on.
type TeamService struct {
	teams   repository.TeamRepository
	users   repository.UserRepository
	invites repository.InviteRepository
	tx      TxManager
	logger  zerolog.Logger
}

func NewTeamService(
	teams repository.TeamRepository,
	users repository.UserRepository,
	invites repository.InviteRepository,
	tx TxManager,
	logger zerolog.Logger,
) *TeamService {
	return &TeamService{
		teams:   teams,
		users:   users,
		invites: invites,
		tx:      tx,
		logger:  logger,
	}
}

// CreateTeam registers a new team owned by the caller. The owner is inserted
// as the team's first member in the same transaction.
func (s *TeamService) CreateTeam(ctx context.Context, caller auth.Identity, name string) (CreatedTeam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CreatedTeam{}, apperr.Validation("teamName is required")
	}

	var team models.Team
	err := s.tx.Do(ctx, func(txCtx context.Context) error {
		created, err := s.teams.CreateTeam(txCtx, name, caller.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.ErrTeamExists
			}
			return apperr.Internal(pkgerrors.Wrap(err, "create team"))
		}
		if err := s.teams.AddMember(txCtx, created.ID, caller.UserID); err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "add owner membership"))
		}
		team = created
		return nil
	})
	if err != nil {
		return CreatedTeam{}, err
	}

	s.logger.Info().Str("team_id", team.ID).Str("team_name", team.Name).Str("owner_id", caller.UserID).Msg("team created")
	return CreatedTeam{TeamID: team.ID, TeamName: team.Name}, nil
}

// GetTeam returns a team to admins and members; the owner counts as a member.
func (s *TeamService) GetTeam(ctx context.Context, caller auth.Identity, teamID string) (models.Team, error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Team{}, apperr.ErrTeamNotFound
		}
		return models.Team{}, apperr.Internal(pkgerrors.Wrap(err, "get team"))
	}

	if !caller.IsAdmin && !team.HasMember(caller.UserID) {
		return models.Team{}, apperr.ErrInvalidPermissions
	}

	return team, nil
}

// UpdateTeam applies only the provided fields. Authorization mirrors GetTeam.
func (s *TeamService) UpdateTeam(ctx context.Context, caller auth.Identity, teamID string, patch models.TeamPatch) (models.Team, error) {
	team, err := s.GetTeam(ctx, caller, teamID)
	if err != nil {
		return models.Team{}, err
	}
	if patch.IsEmpty() {
		return team, nil
	}

	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return models.Team{}, apperr.Validation("name must not be empty")
		}
		patch.Name = &trimmed
	}

	updated, err := s.teams.UpdateTeam(ctx, teamID, patch)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.Team{}, apperr.ErrTeamExists
		}
		return models.Team{}, apperr.Internal(pkgerrors.Wrap(err, "update team"))
	}

	return updated, nil
}

// UpdateOwner transfers ownership. The team and both users are resolved
// concurrently; the write re-locks the team so a concurrent transfer cannot
// be silently overwritten.
func (s *TeamService) UpdateOwner(ctx context.Context, caller auth.Identity, teamID, newOwnerID string) (models.Team, error) {
	if newOwnerID == "" {
		return models.Team{}, apperr.Validation("newOwnerID is required")
	}

	var (
		team      models.Team
		candidate models.User
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.teams.GetTeamByID(gCtx, teamID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrTeamNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "get team"))
		}
		team = t
		return nil
	})
	g.Go(func() error {
		if _, err := s.users.GetUserByID(gCtx, caller.UserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrUserNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "get caller"))
		}
		return nil
	})
	g.Go(func() error {
		u, err := s.users.GetUserByID(gCtx, newOwnerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrUserNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "get new owner"))
		}
		candidate = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.Team{}, err
	}

	if !caller.IsAdmin {
		if team.OwnerID != caller.UserID {
			return models.Team{}, apperr.ErrInvalidPermissions
		}
		if !team.HasMember(candidate.ID) {
			return models.Team{}, apperr.ErrInvalidTransfer
		}
	}

	var updated models.Team
	err := s.tx.Do(ctx, func(txCtx context.Context) error {
		locked, err := s.teams.GetTeamByIDForUpdate(txCtx, teamID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrTeamNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "lock team"))
		}
		// The owner may have changed between the read and the lock.
		if !caller.IsAdmin && locked.OwnerID != caller.UserID {
			return apperr.ErrInvalidPermissions
		}
		updated, err = s.teams.UpdateOwner(txCtx, teamID, candidate.ID)
		if err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "update owner"))
		}
		return nil
	})
	if err != nil {
		return models.Team{}, err
	}

	s.logger.Info().Str("team_id", teamID).Str("new_owner_id", candidate.ID).Msg("team ownership transferred")
	return updated, nil
}

const inviteCodeBytes = 8
const inviteCodeAttempts = 3

// CreateInvite mints a new invite code for a team. Only the owner (or an
// admin) may create invites.
func (s *TeamService) CreateInvite(ctx context.Context, caller auth.Identity, teamID string, opts InviteOptions) (models.Invite, error) {
	if opts.MaxUses != nil && *opts.MaxUses <= 0 {
		return models.Invite{}, apperr.Validation("maxUses must be positive")
	}
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(time.Now()) {
		return models.Invite{}, apperr.Validation("expiry must be in the future")
	}

	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invite{}, apperr.ErrTeamNotFound
		}
		return models.Invite{}, apperr.Internal(pkgerrors.Wrap(err, "get team"))
	}
	if !caller.IsAdmin && team.OwnerID != caller.UserID {
		return models.Invite{}, apperr.ErrInvalidPermissions
	}

	// Codes are short, so retry the insert on the rare collision.
	var invite models.Invite
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := generateInviteCode()
		if err != nil {
			return models.Invite{}, apperr.Internal(pkgerrors.Wrap(err, "generate invite code"))
		}

		invite, err = s.invites.CreateInvite(ctx, models.Invite{
			Code:      code,
			TeamID:    team.ID,
			CreatedBy: caller.UserID,
			ExpiresAt: opts.ExpiresAt,
			MaxUses:   opts.MaxUses,
		})
		if err == nil {
			s.logger.Info().Str("team_id", team.ID).Str("invite_code", code).Msg("invite created")
			return invite, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return models.Invite{}, apperr.Internal(pkgerrors.Wrap(err, "create invite"))
		}
	}

	return models.Invite{}, apperr.Internal(errors.New("invite code collision limit reached"))
}

// GetInvite returns the full invite to admins, even after expiry. Everyone
// else gets the reduced view, and only while the invite is still redeemable.
func (s *TeamService) GetInvite(ctx context.Context, caller *auth.Identity, code string) (InviteResult, error) {
	invite, err := s.invites.GetInviteByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return InviteResult{}, apperr.ErrInviteNotFound
		}
		return InviteResult{}, apperr.Internal(pkgerrors.Wrap(err, "get invite"))
	}

	if caller != nil && caller.IsAdmin {
		return InviteResult{Invite: &invite}, nil
	}

	if !invite.Redeemable(time.Now()) {
		return InviteResult{}, apperr.ErrExpiredInvite
	}

	team, err := s.teams.GetTeamByID(ctx, invite.TeamID)
	if err != nil {
		return InviteResult{}, apperr.Internal(pkgerrors.Wrap(err, "get invite team"))
	}

	basic := invite.BasicView(team.Name)
	return InviteResult{Basic: &basic}, nil
}

// DeleteInvite revokes an invite. Only the invite's team owner or an admin
// may delete it.
func (s *TeamService) DeleteInvite(ctx context.Context, caller auth.Identity, code string) error {
	invite, err := s.invites.GetInviteByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrInviteNotFound
		}
		return apperr.Internal(pkgerrors.Wrap(err, "get invite"))
	}

	if !caller.IsAdmin {
		team, err := s.teams.GetTeamByID(ctx, invite.TeamID)
		if err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "get invite team"))
		}
		if team.OwnerID != caller.UserID {
			return apperr.ErrInvalidPermissions
		}
	}

	if err := s.invites.DeleteInvite(ctx, invite.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrInviteNotFound
		}
		return apperr.Internal(pkgerrors.Wrap(err, "delete invite"))
	}

	s.logger.Info().Str("invite_code", code).Msg("invite deleted")
	return nil
}

// UseInvite redeems an invite for the caller and returns the joined team.
// Expiry and the use limit are re-validated under a row lock, so redeeming
// past the limit is impossible even under concurrent requests.
func (s *TeamService) UseInvite(ctx context.Context, caller auth.Identity, code string) (models.Team, error) {
	var team models.Team
	err := s.tx.Do(ctx, func(txCtx context.Context) error {
		invite, err := s.invites.GetInviteByCodeForUpdate(txCtx, code)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrInviteNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "get invite"))
		}

		if !invite.Redeemable(time.Now()) {
			return apperr.ErrExpiredInvite
		}
		if invite.UsedBy(caller.UserID) {
			return apperr.ErrAlreadyMember
		}

		if err := s.teams.AddMember(txCtx, invite.TeamID, caller.UserID); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.ErrAlreadyMember
			}
			return apperr.Internal(pkgerrors.Wrap(err, "add member"))
		}
		if err := s.invites.AddUse(txCtx, invite.ID, caller.UserID); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.ErrAlreadyMember
			}
			return apperr.Internal(pkgerrors.Wrap(err, "record invite use"))
		}

		team, err = s.teams.GetTeamByID(txCtx, invite.TeamID)
		if err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "get team"))
		}
		return nil
	})
	if err != nil {
		return models.Team{}, err
	}

	s.logger.Info().Str("team_id", team.ID).Str("user_id", caller.UserID).Str("invite_code", code).Msg("invite redeemed")
	return team, nil
}

// LeaveTeam removes the caller from a team. The owner must transfer
// ownership first.
func (s *TeamService) LeaveTeam(ctx context.Context, caller auth.Identity, teamID string) error {
	return s.tx.Do(ctx, func(txCtx context.Context) error {
		team, err := s.teams.GetTeamByIDForUpdate(txCtx, teamID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrTeamNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "get team"))
		}

		if team.OwnerID == caller.UserID {
			return apperr.ErrOwnerCannotLeave
		}

		if err := s.teams.RemoveMember(txCtx, teamID, caller.UserID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrNotAMember
			}
			return apperr.Internal(pkgerrors.Wrap(err, "remove member"))
		}

		s.logger.Info().Str("team_id", teamID).Str("user_id", caller.UserID).Msg("member left team")
		return nil
	})
}

// DeleteTeam removes the team, its invites, and every membership row in one
// transaction, so no user record references the team afterwards.
func (s *TeamService) DeleteTeam(ctx context.Context, caller auth.Identity, teamID string) error {
	return s.tx.Do(ctx, func(txCtx context.Context) error {
		team, err := s.teams.GetTeamByIDForUpdate(txCtx, teamID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrTeamNotFound
			}
			return apperr.Internal(pkgerrors.Wrap(err, "get team"))
		}

		if !caller.IsAdmin && team.OwnerID != caller.UserID {
			return apperr.ErrInvalidPermissions
		}

		if err := s.teams.RemoveAllMembers(txCtx, teamID); err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "remove members"))
		}
		if err := s.invites.DeleteInvitesByTeam(txCtx, teamID); err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "delete invites"))
		}
		if err := s.teams.DeleteTeam(txCtx, teamID); err != nil {
			return apperr.Internal(pkgerrors.Wrap(err, "delete team"))
		}

		s.logger.Info().Str("team_id", teamID).Str("team_name", team.Name).Msg("team deleted")
		return nil
	})
}

// ListTeamInvites returns every invite of a team to its owner or an admin.
func (s *TeamService) ListTeamInvites(ctx context.Context, caller auth.Identity, teamID string) ([]models.Invite, error) {
	team, err := s.teams.GetTeamByID(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrTeamNotFound
		}
		return nil, apperr.Internal(pkgerrors.Wrap(err, "get team"))
	}
	if !caller.IsAdmin && team.OwnerID != caller.UserID {
		return nil, apperr.ErrInvalidPermissions
	}

	invites, err := s.invites.ListInvitesByTeam(ctx, teamID)
	if err != nil {
		return nil, apperr.Internal(pkgerrors.Wrap(err, "list invites"))
	}
	return invites, nil
}

func generateInviteCode() (string, error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
