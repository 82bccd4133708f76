package repository

import (
	"context"
	"database/sql"

	"github.com/ctfhub/team-api/internal/models"
)

type TeamRepository interface {
	CreateTeam(ctx context.Context, name, ownerID string) (models.Team, error)
	GetTeamByID(ctx context.Context, teamID string) (models.Team, error)
	GetTeamByIDForUpdate(ctx context.Context, teamID string) (models.Team, error)
	UpdateTeam(ctx context.Context, teamID string, patch models.TeamPatch) (models.Team, error)
	UpdateOwner(ctx context.Context, teamID, ownerID string) (models.Team, error)
	AddMember(ctx context.Context, teamID, userID string) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
	RemoveAllMembers(ctx context.Context, teamID string) error
	DeleteTeam(ctx context.Context, teamID string) error
}

type teamRepository struct {
	db *DB
}

func NewTeamRepository(db *DB) TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) CreateTeam(ctx context.Context, name, ownerID string) (models.Team, error) {
	const query = `
		INSERT INTO teams (name, owner_id)
		VALUES ($1, $2)
		RETURNING id, name, owner_id, twitter, website, created_at, updated_at`

	team, err := r.scanTeam(r.db.Conn(ctx).QueryRowContext(ctx, query, name, ownerID))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Team{}, ErrDuplicate
		}
		return models.Team{}, err
	}

	return team, nil
}

func (r *teamRepository) GetTeamByID(ctx context.Context, teamID string) (models.Team, error) {
	return r.getTeam(ctx, teamID, false)
}

// GetTeamByIDForUpdate locks the team row for the remainder of the enclosing
// transaction. Mutating operations use it to serialize against each other.
func (r *teamRepository) GetTeamByIDForUpdate(ctx context.Context, teamID string) (models.Team, error) {
	return r.getTeam(ctx, teamID, true)
}

func (r *teamRepository) getTeam(ctx context.Context, teamID string, forUpdate bool) (models.Team, error) {
	query := `
		SELECT id, name, owner_id, twitter, website, created_at, updated_at
		FROM teams
		WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	team, err := r.scanTeam(r.db.Conn(ctx).QueryRowContext(ctx, query, teamID))
	if err != nil {
		return models.Team{}, err
	}

	if err := r.loadRelations(ctx, &team); err != nil {
		return models.Team{}, err
	}

	return team, nil
}

func (r *teamRepository) UpdateTeam(ctx context.Context, teamID string, patch models.TeamPatch) (models.Team, error) {
	const query = `
		UPDATE teams
		SET name    = COALESCE($2, name),
		    twitter = COALESCE($3, twitter),
		    website = COALESCE($4, website),
		    updated_at = now()
		WHERE id = $1
		RETURNING id, name, owner_id, twitter, website, created_at, updated_at`

	team, err := r.scanTeam(r.db.Conn(ctx).QueryRowContext(ctx, query, teamID, patch.Name, patch.Twitter, patch.Website))
	if err != nil {
		if isUniqueViolation(err) {
			return models.Team{}, ErrDuplicate
		}
		return models.Team{}, err
	}

	if err := r.loadRelations(ctx, &team); err != nil {
		return models.Team{}, err
	}

	return team, nil
}

func (r *teamRepository) UpdateOwner(ctx context.Context, teamID, ownerID string) (models.Team, error) {
	const query = `
		UPDATE teams
		SET owner_id = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, owner_id, twitter, website, created_at, updated_at`

	team, err := r.scanTeam(r.db.Conn(ctx).QueryRowContext(ctx, query, teamID, ownerID))
	if err != nil {
		return models.Team{}, err
	}

	if err := r.loadRelations(ctx, &team); err != nil {
		return models.Team{}, err
	}

	return team, nil
}

func (r *teamRepository) AddMember(ctx context.Context, teamID, userID string) error {
	const query = `
		INSERT INTO team_members (team_id, user_id)
		VALUES ($1, $2)`

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, teamID, userID); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return nil
}

func (r *teamRepository) RemoveMember(ctx context.Context, teamID, userID string) error {
	const query = `
		DELETE FROM team_members
		WHERE team_id = $1 AND user_id = $2`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, teamID, userID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *teamRepository) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM team_members
			WHERE team_id = $1 AND user_id = $2
		)`

	var exists bool
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, teamID, userID).Scan(&exists)
	return exists, err
}

func (r *teamRepository) RemoveAllMembers(ctx context.Context, teamID string) error {
	const query = `
		DELETE FROM team_members
		WHERE team_id = $1`

	_, err := r.db.Conn(ctx).ExecContext(ctx, query, teamID)
	return err
}

func (r *teamRepository) DeleteTeam(ctx context.Context, teamID string) error {
	const query = `
		DELETE FROM teams
		WHERE id = $1`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, teamID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *teamRepository) scanTeam(row *sql.Row) (models.Team, error) {
	var (
		team    models.Team
		twitter sql.NullString
		website sql.NullString
	)
	err := row.Scan(
		&team.ID,
		&team.Name,
		&team.OwnerID,
		&twitter,
		&website,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		return models.Team{}, err
	}

	team.Socials.Twitter = twitter.String
	team.Socials.Website = website.String
	return team, nil
}

// loadRelations fills the member and invite-code lists for a team already
// resolved from the teams table.
func (r *teamRepository) loadRelations(ctx context.Context, team *models.Team) error {
	const membersQuery = `
		SELECT user_id
		FROM team_members
		WHERE team_id = $1
		ORDER BY joined_at`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, membersQuery, team.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return err
		}
		team.MemberIDs = append(team.MemberIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	const invitesQuery = `
		SELECT code
		FROM invites
		WHERE team_id = $1
		ORDER BY created_at`

	inviteRows, err := r.db.Conn(ctx).QueryContext(ctx, invitesQuery, team.ID)
	if err != nil {
		return err
	}
	defer inviteRows.Close()

	for inviteRows.Next() {
		var code string
		if err := inviteRows.Scan(&code); err != nil {
			return err
		}
		team.InviteCodes = append(team.InviteCodes, code)
	}

	return inviteRows.Err()
}
