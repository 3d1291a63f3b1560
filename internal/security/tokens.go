// Package security verifies the access tokens laboratory clients present and
// carries the authenticated reviewer identity through request contexts.
package security

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed or invalid.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims holds JWT claims for an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// TokenVerifier validates HS256 access tokens issued by the laboratory's
// identity provider.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewTokenVerifier returns a verifier for tokens signed with the shared
// secret. issuer and audience are validated when non-empty.
func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Verify parses and validates the token and returns the subject (the acting
// user) and role claim.
func (v *TokenVerifier) Verify(tokenString string) (subject, role string, err error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Role, nil
}
