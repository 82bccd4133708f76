package models

import "time"

// Invite is a redeemable membership grant for a team. Expiry and MaxUses are
// both optional; an invite with neither never goes stale.
type Invite struct {
	ID        string      `json:"id"`
	Code      string      `json:"code"`
	TeamID    string      `json:"teamID"`
	CreatedBy string      `json:"createdBy"`
	ExpiresAt *time.Time  `json:"expiry,omitempty"`
	MaxUses   *int        `json:"maxUses,omitempty"`
	Uses      []InviteUse `json:"uses"`
	CreatedAt time.Time   `json:"createdAt"`
}

// InviteUse records a single redemption.
type InviteUse struct {
	UserID string    `json:"userID"`
	UsedAt time.Time `json:"usedAt"`
}

// IsExpired determines whether the invite's deadline has passed.
func (i Invite) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// IsExhausted indicates whether every permitted use has been consumed.
func (i Invite) IsExhausted() bool {
	return i.MaxUses != nil && len(i.Uses) >= *i.MaxUses
}

// Redeemable reports whether the invite can still be used at the given time.
func (i Invite) Redeemable(now time.Time) bool {
	return !i.IsExpired(now) && !i.IsExhausted()
}

// UsedBy reports whether the user already redeemed this invite.
func (i Invite) UsedBy(userID string) bool {
	for _, use := range i.Uses {
		if use.UserID == userID {
			return true
		}
	}
	return false
}

// BasicInvite is the reduced view returned to non-admin callers. It omits the
// creator and the raw redemption list.
type BasicInvite struct {
	Code          string     `json:"code"`
	TeamID        string     `json:"teamID"`
	TeamName      string     `json:"teamName"`
	ExpiresAt     *time.Time `json:"expiry,omitempty"`
	UsesRemaining *int       `json:"usesRemaining,omitempty"`
}

// BasicView builds the non-admin projection of the invite.
func (i Invite) BasicView(teamName string) BasicInvite {
	view := BasicInvite{
		Code:      i.Code,
		TeamID:    i.TeamID,
		TeamName:  teamName,
		ExpiresAt: i.ExpiresAt,
	}
	if i.MaxUses != nil {
		remaining := *i.MaxUses - len(i.Uses)
		if remaining < 0 {
			remaining = 0
		}
		view.UsesRemaining = &remaining
	}
	return view
}
