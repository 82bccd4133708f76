package models

import "time"

// Socials holds the optional public links a team can publish.
type Socials struct {
	Twitter string `json:"twitter,omitempty"`
	Website string `json:"website,omitempty"`
}

// Team is a competition team. The owner is always present in MemberIDs;
// membership checks treat the owner as a member.
type Team struct {
	ID          string    `json:"teamID"`
	Name        string    `json:"teamName"`
	OwnerID     string    `json:"ownerID"`
	Socials     Socials   `json:"socials"`
	MemberIDs   []string  `json:"members"`
	InviteCodes []string  `json:"invites,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// HasMember reports whether userID is on the team. The owner counts.
func (t Team) HasMember(userID string) bool {
	if userID == t.OwnerID {
		return true
	}
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// TeamPatch carries the updatable team fields; nil means "leave unchanged".
type TeamPatch struct {
	Name    *string `json:"name"`
	Twitter *string `json:"twitter"`
	Website *string `json:"website"`
}

// IsEmpty reports whether the patch would change nothing.
func (p TeamPatch) IsEmpty() bool {
	return p.Name == nil && p.Twitter == nil && p.Website == nil
}
