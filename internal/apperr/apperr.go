package apperr

import "fmt"

// Kind classifies an application error for HTTP status mapping.
type Kind int

const (
	KindAuthentication Kind = iota + 1
	KindAuthorization
	KindValidation
	KindNotFound
	KindConflict
	KindInternal
)

// Error is the error type surfaced to API clients. Code is the
// machine-readable error code included in the response body.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches errors by code so that the predefined errors below can be
// compared with errors.Is after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e carrying the underlying error. The cause is
// logged server-side but never serialized to the client.
func (e *Error) WithCause(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, cause: cause}
}

var (
	ErrMissingToken       = &Error{Kind: KindAuthentication, Code: "error_missing_token", Message: "authorization token is required"}
	ErrInvalidToken       = &Error{Kind: KindAuthentication, Code: "error_invalid_token", Message: "authorization token is invalid or expired"}
	ErrInvalidCredentials = &Error{Kind: KindAuthentication, Code: "error_invalid_credentials", Message: "invalid email or password"}

	ErrInvalidPermissions = &Error{Kind: KindAuthorization, Code: "error_invalid_permissions", Message: "insufficient permissions"}

	ErrTeamNotFound   = &Error{Kind: KindNotFound, Code: "error_team_not_found", Message: "team not found"}
	ErrInviteNotFound = &Error{Kind: KindNotFound, Code: "error_invite_not_found", Message: "invite not found"}
	ErrUserNotFound   = &Error{Kind: KindNotFound, Code: "error_user_not_found", Message: "user not found"}

	ErrTeamExists       = &Error{Kind: KindConflict, Code: "error_team_exists", Message: "a team with that name already exists"}
	ErrUserExists       = &Error{Kind: KindConflict, Code: "error_user_exists", Message: "a user with that name or email already exists"}
	ErrOwnerCannotLeave = &Error{Kind: KindConflict, Code: "error_owner_cannot_leave", Message: "the owner must transfer ownership before leaving"}
	ErrNotAMember       = &Error{Kind: KindConflict, Code: "error_not_a_member", Message: "caller is not a member of the team"}
	ErrAlreadyMember    = &Error{Kind: KindConflict, Code: "error_already_member", Message: "user is already a member of the team"}

	ErrExpiredInvite   = &Error{Kind: KindValidation, Code: "error_expired_invite", Message: "invite is expired or has no uses remaining"}
	ErrInvalidTransfer = &Error{Kind: KindValidation, Code: "error_invalid_transfer", Message: "new owner must already be a member of the team"}
)

// Validation builds a request-specific validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "error_validation", Message: message}
}

// Internal wraps a persistence or infrastructure failure. Storage details are
// kept in the cause and never reach the client.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: "error_internal", Message: "internal server error", cause: cause}
}
