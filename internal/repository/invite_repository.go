package repository

import (
	"context"
	"database/sql"

	"github.com/ctfhub/team-api/internal/models"
)

type InviteRepository interface {
	CreateInvite(ctx context.Context, invite models.Invite) (models.Invite, error)
	GetInviteByCode(ctx context.Context, code string) (models.Invite, error)
	GetInviteByCodeForUpdate(ctx context.Context, code string) (models.Invite, error)
	ListInvitesByTeam(ctx context.Context, teamID string) ([]models.Invite, error)
	AddUse(ctx context.Context, inviteID, userID string) error
	DeleteInvite(ctx context.Context, inviteID string) error
	DeleteInvitesByTeam(ctx context.Context, teamID string) error
}

type inviteRepository struct {
	db *DB
}

func NewInviteRepository(db *DB) InviteRepository {
	return &inviteRepository{db: db}
}

func (r *inviteRepository) CreateInvite(ctx context.Context, invite models.Invite) (models.Invite, error) {
	const query = `
		INSERT INTO invites (code, team_id, created_by, expires_at, max_uses)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, code, team_id, created_by, expires_at, max_uses, created_at`

	var (
		created   models.Invite
		expiresAt sql.NullTime
		maxUses   sql.NullInt64
	)
	err := r.db.Conn(ctx).QueryRowContext(ctx, query,
		invite.Code,
		invite.TeamID,
		invite.CreatedBy,
		invite.ExpiresAt,
		invite.MaxUses,
	).Scan(
		&created.ID,
		&created.Code,
		&created.TeamID,
		&created.CreatedBy,
		&expiresAt,
		&maxUses,
		&created.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Invite{}, ErrDuplicate
		}
		return models.Invite{}, err
	}

	applyNullable(&created, expiresAt, maxUses)
	return created, nil
}

func (r *inviteRepository) GetInviteByCode(ctx context.Context, code string) (models.Invite, error) {
	return r.getInvite(ctx, code, false)
}

// GetInviteByCodeForUpdate locks the invite row so that concurrent
// redemptions of the same code are applied one at a time.
func (r *inviteRepository) GetInviteByCodeForUpdate(ctx context.Context, code string) (models.Invite, error) {
	return r.getInvite(ctx, code, true)
}

func (r *inviteRepository) getInvite(ctx context.Context, code string, forUpdate bool) (models.Invite, error) {
	query := `
		SELECT id, code, team_id, created_by, expires_at, max_uses, created_at
		FROM invites
		WHERE code = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		invite    models.Invite
		expiresAt sql.NullTime
		maxUses   sql.NullInt64
	)
	err := r.db.Conn(ctx).QueryRowContext(ctx, query, code).Scan(
		&invite.ID,
		&invite.Code,
		&invite.TeamID,
		&invite.CreatedBy,
		&expiresAt,
		&maxUses,
		&invite.CreatedAt,
	)
	if err != nil {
		return models.Invite{}, err
	}

	applyNullable(&invite, expiresAt, maxUses)

	if err := r.loadUses(ctx, &invite); err != nil {
		return models.Invite{}, err
	}

	return invite, nil
}

func (r *inviteRepository) ListInvitesByTeam(ctx context.Context, teamID string) ([]models.Invite, error) {
	const query = `
		SELECT id, code, team_id, created_by, expires_at, max_uses, created_at
		FROM invites
		WHERE team_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		var (
			invite    models.Invite
			expiresAt sql.NullTime
			maxUses   sql.NullInt64
		)
		if err := rows.Scan(
			&invite.ID,
			&invite.Code,
			&invite.TeamID,
			&invite.CreatedBy,
			&expiresAt,
			&maxUses,
			&invite.CreatedAt,
		); err != nil {
			return nil, err
		}
		applyNullable(&invite, expiresAt, maxUses)
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range invites {
		if err := r.loadUses(ctx, &invites[i]); err != nil {
			return nil, err
		}
	}

	return invites, nil
}

func (r *inviteRepository) AddUse(ctx context.Context, inviteID, userID string) error {
	const query = `
		INSERT INTO invite_uses (invite_id, user_id)
		VALUES ($1, $2)`

	if _, err := r.db.Conn(ctx).ExecContext(ctx, query, inviteID, userID); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}

	return nil
}

func (r *inviteRepository) DeleteInvite(ctx context.Context, inviteID string) error {
	const query = `
		DELETE FROM invites
		WHERE id = $1`

	result, err := r.db.Conn(ctx).ExecContext(ctx, query, inviteID)
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

func (r *inviteRepository) DeleteInvitesByTeam(ctx context.Context, teamID string) error {
	const query = `
		DELETE FROM invites
		WHERE team_id = $1`

	_, err := r.db.Conn(ctx).ExecContext(ctx, query, teamID)
	return err
}

func (r *inviteRepository) loadUses(ctx context.Context, invite *models.Invite) error {
	const query = `
		SELECT user_id, used_at
		FROM invite_uses
		WHERE invite_id = $1
		ORDER BY used_at`

	rows, err := r.db.Conn(ctx).QueryContext(ctx, query, invite.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var use models.InviteUse
		if err := rows.Scan(&use.UserID, &use.UsedAt); err != nil {
			return err
		}
		invite.Uses = append(invite.Uses, use)
	}

	return rows.Err()
}

func applyNullable(invite *models.Invite, expiresAt sql.NullTime, maxUses sql.NullInt64) {
	if expiresAt.Valid {
		t := expiresAt.Time
		invite.ExpiresAt = &t
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		invite.MaxUses = &n
	}
}
