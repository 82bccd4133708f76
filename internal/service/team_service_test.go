package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ctfhub/team-api/internal/apperr"
	"github.com/ctfhub/team-api/internal/auth"
	"github.com/ctfhub/team-api/internal/models"
	"github.com/ctfhub/team-api/internal/repository"
)

type noopTxManager struct{}

func (noopTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memStore is an in-memory implementation of the three repository interfaces
// used by the service tests.
type memStore struct {
	seq     int
	users   map[string]models.User
	teams   map[string]models.Team
	members map[string]map[string]time.Time
	invites map[string]models.Invite
	uses    map[string][]models.InviteUse
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]models.User),
		teams:   make(map[string]models.Team),
		members: make(map[string]map[string]time.Time),
		invites: make(map[string]models.Invite),
		uses:    make(map[string][]models.InviteUse),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

// --- UserRepository ---

func (m *memStore) CreateUser(ctx context.Context, username, email, password string) (models.User, error) {
	user := models.User{ID: m.nextID("user"), Username: username, Email: email}
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) AuthenticateUser(ctx context.Context, email, password string) (models.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByID(ctx context.Context, userID string) (models.User, error) {
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) ListTeamIDsByUser(ctx context.Context, userID string) ([]string, error) {
	var teamIDs []string
	for teamID, members := range m.members {
		if _, ok := members[userID]; ok {
			teamIDs = append(teamIDs, teamID)
		}
	}
	return teamIDs, nil
}

// --- TeamRepository ---

func (m *memStore) CreateTeam(ctx context.Context, name, ownerID string) (models.Team, error) {
	for _, team := range m.teams {
		if strings.EqualFold(team.Name, name) {
			return models.Team{}, repository.ErrDuplicate
		}
	}
	team := models.Team{ID: m.nextID("team"), Name: name, OwnerID: ownerID}
	m.teams[team.ID] = team
	m.members[team.ID] = make(map[string]time.Time)
	return team, nil
}

func (m *memStore) GetTeamByID(ctx context.Context, teamID string) (models.Team, error) {
	team, ok := m.teams[teamID]
	if !ok {
		return models.Team{}, sql.ErrNoRows
	}
	for userID := range m.members[teamID] {
		team.MemberIDs = append(team.MemberIDs, userID)
	}
	for _, invite := range m.invites {
		if invite.TeamID == teamID {
			team.InviteCodes = append(team.InviteCodes, invite.Code)
		}
	}
	return team, nil
}

func (m *memStore) GetTeamByIDForUpdate(ctx context.Context, teamID string) (models.Team, error) {
	return m.GetTeamByID(ctx, teamID)
}

func (m *memStore) UpdateTeam(ctx context.Context, teamID string, patch models.TeamPatch) (models.Team, error) {
	team, ok := m.teams[teamID]
	if !ok {
		return models.Team{}, sql.ErrNoRows
	}
	if patch.Name != nil {
		for id, other := range m.teams {
			if id != teamID && strings.EqualFold(other.Name, *patch.Name) {
				return models.Team{}, repository.ErrDuplicate
			}
		}
		team.Name = *patch.Name
	}
	if patch.Twitter != nil {
		team.Socials.Twitter = *patch.Twitter
	}
	if patch.Website != nil {
		team.Socials.Website = *patch.Website
	}
	m.teams[teamID] = team
	return m.GetTeamByID(ctx, teamID)
}

func (m *memStore) UpdateOwner(ctx context.Context, teamID, ownerID string) (models.Team, error) {
	team, ok := m.teams[teamID]
	if !ok {
		return models.Team{}, sql.ErrNoRows
	}
	team.OwnerID = ownerID
	m.teams[teamID] = team
	return m.GetTeamByID(ctx, teamID)
}

func (m *memStore) AddMember(ctx context.Context, teamID, userID string) error {
	members := m.members[teamID]
	if _, ok := members[userID]; ok {
		return repository.ErrDuplicate
	}
	members[userID] = time.Now()
	return nil
}

func (m *memStore) RemoveMember(ctx context.Context, teamID, userID string) error {
	members := m.members[teamID]
	if _, ok := members[userID]; !ok {
		return sql.ErrNoRows
	}
	delete(members, userID)
	return nil
}

func (m *memStore) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	_, ok := m.members[teamID][userID]
	return ok, nil
}

func (m *memStore) RemoveAllMembers(ctx context.Context, teamID string) error {
	m.members[teamID] = make(map[string]time.Time)
	return nil
}

func (m *memStore) DeleteTeam(ctx context.Context, teamID string) error {
	if _, ok := m.teams[teamID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.teams, teamID)
	return nil
}

// --- InviteRepository ---

func (m *memStore) CreateInvite(ctx context.Context, invite models.Invite) (models.Invite, error) {
	if _, ok := m.invites[invite.Code]; ok {
		return models.Invite{}, repository.ErrDuplicate
	}
	invite.ID = m.nextID("invite")
	invite.CreatedAt = time.Now()
	m.invites[invite.Code] = invite
	return invite, nil
}

func (m *memStore) GetInviteByCode(ctx context.Context, code string) (models.Invite, error) {
	invite, ok := m.invites[code]
	if !ok {
		return models.Invite{}, sql.ErrNoRows
	}
	invite.Uses = append([]models.InviteUse(nil), m.uses[invite.ID]...)
	return invite, nil
}

func (m *memStore) GetInviteByCodeForUpdate(ctx context.Context, code string) (models.Invite, error) {
	return m.GetInviteByCode(ctx, code)
}

func (m *memStore) ListInvitesByTeam(ctx context.Context, teamID string) ([]models.Invite, error) {
	var invites []models.Invite
	for _, invite := range m.invites {
		if invite.TeamID == teamID {
			invite.Uses = append([]models.InviteUse(nil), m.uses[invite.ID]...)
			invites = append(invites, invite)
		}
	}
	return invites, nil
}

func (m *memStore) AddUse(ctx context.Context, inviteID, userID string) error {
	for _, use := range m.uses[inviteID] {
		if use.UserID == userID {
			return repository.ErrDuplicate
		}
	}
	m.uses[inviteID] = append(m.uses[inviteID], models.InviteUse{UserID: userID, UsedAt: time.Now()})
	return nil
}

func (m *memStore) DeleteInvite(ctx context.Context, inviteID string) error {
	for code, invite := range m.invites {
		if invite.ID == inviteID {
			delete(m.invites, code)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memStore) DeleteInvitesByTeam(ctx context.Context, teamID string) error {
	for code, invite := range m.invites {
		if invite.TeamID == teamID {
			delete(m.invites, code)
		}
	}
	return nil
}

// --- helpers ---

func newTestService(store *memStore) *TeamService {
	return NewTeamService(store, store, store, noopTxManager{}, zerolog.Nop())
}

func (m *memStore) addUser(id string, admin bool) auth.Identity {
	m.users[id] = models.User{ID: id, Username: id, Email: id + "@example.com", IsAdmin: admin}
	return auth.Identity{UserID: id, IsAdmin: admin}
}

func mustCreateTeam(t *testing.T, svc *TeamService, caller auth.Identity, name string) CreatedTeam {
	t.Helper()
	created, err := svc.CreateTeam(context.Background(), caller, name)
	require.NoError(t, err)
	return created
}

func TestCreateTeamDuplicateNameIsCaseInsensitive(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)

	mustCreateTeam(t, svc, owner, "Alpha")

	other := store.addUser("bob", false)
	_, err := svc.CreateTeam(context.Background(), other, "ALPHA")
	require.ErrorIs(t, err, apperr.ErrTeamExists)

	_, err = svc.CreateTeam(context.Background(), other, "alpha")
	require.ErrorIs(t, err, apperr.ErrTeamExists)
}

func TestCreateTeamAddsOwnerMembership(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)

	created := mustCreateTeam(t, svc, owner, "Alpha")

	team, err := svc.GetTeam(context.Background(), owner, created.TeamID)
	require.NoError(t, err)
	require.Equal(t, owner.UserID, team.OwnerID)
	require.Contains(t, team.MemberIDs, owner.UserID)
}

func TestGetTeamDeniesNonMembers(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	outsider := store.addUser("mallory", false)
	admin := store.addUser("root", true)

	created := mustCreateTeam(t, svc, owner, "Alpha")

	_, err := svc.GetTeam(context.Background(), outsider, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)

	_, err = svc.GetTeam(context.Background(), admin, created.TeamID)
	require.NoError(t, err)

	_, err = svc.GetTeam(context.Background(), owner, "missing")
	require.ErrorIs(t, err, apperr.ErrTeamNotFound)
}

func TestUpdateTeamAppliesOnlyProvidedFields(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	twitter := "@alpha"
	team, err := svc.UpdateTeam(context.Background(), owner, created.TeamID, models.TeamPatch{Twitter: &twitter})
	require.NoError(t, err)
	require.Equal(t, "Alpha", team.Name)
	require.Equal(t, "@alpha", team.Socials.Twitter)

	name := "Bravo"
	team, err = svc.UpdateTeam(context.Background(), owner, created.TeamID, models.TeamPatch{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Bravo", team.Name)
	require.Equal(t, "@alpha", team.Socials.Twitter)
}

func TestUpdateTeamRejectsRenameToExistingName(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	other := store.addUser("bob", false)
	mustCreateTeam(t, svc, other, "Bravo")

	name := "bravo"
	_, err := svc.UpdateTeam(context.Background(), owner, created.TeamID, models.TeamPatch{Name: &name})
	require.ErrorIs(t, err, apperr.ErrTeamExists)
}

func TestUpdateOwnerRequiresMemberCandidate(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	outsider := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	_, err := svc.UpdateOwner(context.Background(), owner, created.TeamID, outsider.UserID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransfer)
}

func TestUpdateOwnerRequiresActingOwner(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	member := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")
	require.NoError(t, store.AddMember(context.Background(), created.TeamID, member.UserID))

	_, err := svc.UpdateOwner(context.Background(), member, created.TeamID, member.UserID)
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)
}

func TestUpdateOwnerTransferAndStaleOwner(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	member := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")
	require.NoError(t, store.AddMember(context.Background(), created.TeamID, member.UserID))

	team, err := svc.UpdateOwner(context.Background(), owner, created.TeamID, member.UserID)
	require.NoError(t, err)
	require.Equal(t, member.UserID, team.OwnerID)

	// The previous owner no longer holds the team and must not transfer again.
	_, err = svc.UpdateOwner(context.Background(), owner, created.TeamID, owner.UserID)
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)
}

func TestUpdateOwnerAdminBypassesChecks(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	outsider := store.addUser("bob", false)
	admin := store.addUser("root", true)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	team, err := svc.UpdateOwner(context.Background(), admin, created.TeamID, outsider.UserID)
	require.NoError(t, err)
	require.Equal(t, outsider.UserID, team.OwnerID)
}

func TestCreateInviteRequiresOwner(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	member := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")
	require.NoError(t, store.AddMember(context.Background(), created.TeamID, member.UserID))

	_, err := svc.CreateInvite(context.Background(), member, created.TeamID, InviteOptions{})
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)

	invite, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, invite.Code)
	require.Equal(t, created.TeamID, invite.TeamID)
}

func TestCreateInviteValidatesOptions(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	zero := 0
	_, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{MaxUses: &zero})
	require.Error(t, err)

	past := time.Now().Add(-time.Hour)
	_, err = svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{ExpiresAt: &past})
	require.Error(t, err)
}

func TestUseInviteJoinsTeamAndEnforcesUseLimit(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	userB := store.addUser("bob", false)
	userC := store.addUser("carol", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	one := 1
	invite, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{MaxUses: &one})
	require.NoError(t, err)

	team, err := svc.UseInvite(context.Background(), userB, invite.Code)
	require.NoError(t, err)
	require.Contains(t, team.MemberIDs, userB.UserID)
	require.Equal(t, owner.UserID, team.OwnerID)

	// The limit is re-validated at redemption time: a second user is refused.
	_, err = svc.UseInvite(context.Background(), userC, invite.Code)
	require.ErrorIs(t, err, apperr.ErrExpiredInvite)
}

func TestUseInviteRejectsDoubleRedemption(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	userB := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	five := 5
	invite, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{MaxUses: &five})
	require.NoError(t, err)

	_, err = svc.UseInvite(context.Background(), userB, invite.Code)
	require.NoError(t, err)

	_, err = svc.UseInvite(context.Background(), userB, invite.Code)
	require.ErrorIs(t, err, apperr.ErrAlreadyMember)
}

func TestUseInviteRejectsExpired(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	userB := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	expiry := time.Now().Add(-time.Minute)
	store.invites["stale"] = models.Invite{
		ID:        "invite-stale",
		Code:      "stale",
		TeamID:    created.TeamID,
		CreatedBy: owner.UserID,
		ExpiresAt: &expiry,
	}

	_, err := svc.UseInvite(context.Background(), userB, "stale")
	require.ErrorIs(t, err, apperr.ErrExpiredInvite)
}

func TestGetInviteBasicViewHidesInternals(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	two := 2
	invite, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{MaxUses: &two})
	require.NoError(t, err)

	result, err := svc.GetInvite(context.Background(), nil, invite.Code)
	require.NoError(t, err)
	require.Nil(t, result.Invite)
	require.NotNil(t, result.Basic)
	require.Equal(t, invite.Code, result.Basic.Code)
	require.Equal(t, "Alpha", result.Basic.TeamName)
	require.NotNil(t, result.Basic.UsesRemaining)
	require.Equal(t, 2, *result.Basic.UsesRemaining)
}

func TestGetInviteExpiredOnlyVisibleToAdmins(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	admin := store.addUser("root", true)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	expiry := time.Now().Add(-time.Minute)
	store.invites["stale"] = models.Invite{
		ID:        "invite-stale",
		Code:      "stale",
		TeamID:    created.TeamID,
		CreatedBy: owner.UserID,
		ExpiresAt: &expiry,
	}

	_, err := svc.GetInvite(context.Background(), nil, "stale")
	require.ErrorIs(t, err, apperr.ErrExpiredInvite)

	_, err = svc.GetInvite(context.Background(), &owner, "stale")
	require.ErrorIs(t, err, apperr.ErrExpiredInvite)

	result, err := svc.GetInvite(context.Background(), &admin, "stale")
	require.NoError(t, err)
	require.NotNil(t, result.Invite)
	require.Equal(t, owner.UserID, result.Invite.CreatedBy)
}

func TestDeleteInviteRequiresTeamOwner(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	outsider := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")

	invite, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{})
	require.NoError(t, err)

	err = svc.DeleteInvite(context.Background(), outsider, invite.Code)
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)

	err = svc.DeleteInvite(context.Background(), owner, invite.Code)
	require.NoError(t, err)

	err = svc.DeleteInvite(context.Background(), owner, invite.Code)
	require.ErrorIs(t, err, apperr.ErrInviteNotFound)
}

func TestLeaveTeamRules(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	member := store.addUser("bob", false)
	outsider := store.addUser("carol", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")
	require.NoError(t, store.AddMember(context.Background(), created.TeamID, member.UserID))

	err := svc.LeaveTeam(context.Background(), owner, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrOwnerCannotLeave)

	err = svc.LeaveTeam(context.Background(), outsider, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrNotAMember)

	err = svc.LeaveTeam(context.Background(), member, created.TeamID)
	require.NoError(t, err)

	err = svc.LeaveTeam(context.Background(), member, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrNotAMember)
}

func TestDeleteTeamCascadesMemberships(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	member := store.addUser("bob", false)
	created := mustCreateTeam(t, svc, owner, "Alpha")
	require.NoError(t, store.AddMember(context.Background(), created.TeamID, member.UserID))

	err := svc.DeleteTeam(context.Background(), member, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)

	err = svc.DeleteTeam(context.Background(), owner, created.TeamID)
	require.NoError(t, err)

	// No user may still reference the deleted team.
	for _, userID := range []string{owner.UserID, member.UserID} {
		teamIDs, err := store.ListTeamIDsByUser(context.Background(), userID)
		require.NoError(t, err)
		require.NotContains(t, teamIDs, created.TeamID)
	}

	err = svc.DeleteTeam(context.Background(), owner, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrTeamNotFound)
}

func TestListTeamInvitesRequiresOwnerOrAdmin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	owner := store.addUser("alice", false)
	member := store.addUser("bob", false)
	admin := store.addUser("root", true)
	created := mustCreateTeam(t, svc, owner, "Alpha")
	require.NoError(t, store.AddMember(context.Background(), created.TeamID, member.UserID))

	_, err := svc.CreateInvite(context.Background(), owner, created.TeamID, InviteOptions{})
	require.NoError(t, err)

	_, err = svc.ListTeamInvites(context.Background(), member, created.TeamID)
	require.ErrorIs(t, err, apperr.ErrInvalidPermissions)

	invites, err := svc.ListTeamInvites(context.Background(), admin, created.TeamID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
}
