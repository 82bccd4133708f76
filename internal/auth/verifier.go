package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/ctfhub/team-api/internal/apperr"
)

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// Verifier issues and validates the platform's signed bearer tokens.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

func NewVerifier(secret string, ttl time.Duration) *Verifier {
	return &Verifier{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for the given user.
func (v *Verifier) Issue(userID string, isAdmin bool) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"adm": isAdmin,
		"exp": time.Now().Add(v.ttl).Unix(),
	})
	return token.SignedString(v.secret)
}

// Verify decodes a bearer token into the caller identity. Any failure
// (malformed token, bad signature, expiry, missing claims) surfaces as
// an authentication error with no further detail.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, apperr.ErrInvalidToken.WithCause(err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return Identity{}, apperr.ErrInvalidToken
	}

	userID, ok := claims["sub"].(string)
	if !ok || userID == "" {
		return Identity{}, apperr.ErrInvalidToken
	}
	isAdmin, _ := claims["adm"].(bool)

	return Identity{UserID: userID, IsAdmin: isAdmin}, nil
}
