// Package auth provides session token issuance, webhook signature
// verification, and the per-request authentication middleware.
//
// Sessions are stateless: the server issues a short-lived access token and a
// long-lived refresh token, both HS256-signed JWTs carrying the internal user
// ID as subject plus a type tag. There is no server-side session store and no
// revocation list: a token is valid until it expires. Logout is therefore a
// client-side discard.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhasan/ghtracker/internal/apperror"
)

// TokenType distinguishes access tokens from refresh tokens. Verification
// requires the expected type to match the token's embedded tag, so a refresh
// token can never be used where an access token is required and vice versa.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const issuer = "ghtracker"

// TokenService issues and verifies session JWTs.
//
// It holds the HMAC secret used to sign and verify tokens, plus the
// configured lifetimes for each token type. The same secret must be used for
// both operations.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService.
// The secret should be at least 32 bytes of random data in production;
// config.Load enforces the length, this check is a second line for direct
// constructions in tests.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL reports the configured access-token lifetime. Handlers use it to
// populate the expires_in field of token responses.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// claims is the JWT payload: the standard registered claims (we use "sub" for
// the internal user ID and "exp" for expiry) plus our type tag.
type claims struct {
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// IssueAccess creates a signed access token for the given user ID and returns
// it with its expiry time.
func (s *TokenService) IssueAccess(userID string) (string, time.Time, error) {
	return s.issue(userID, TokenTypeAccess, s.accessTTL)
}

// IssueRefresh creates a signed refresh token for the given user ID and
// returns it with its expiry time.
func (s *TokenService) IssueRefresh(userID string) (string, time.Time, error) {
	return s.issue(userID, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenService) issue(userID string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(ttl)

	c := claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing %s token: %w", typ, err)
	}

	return signed, expiry, nil
}

// Verify parses and verifies a JWT string, checking the signature, expiry,
// issuer, and type tag. On success it returns the user ID stored in the
// subject claim.
//
// Every failure mode (bad signature, expired, malformed, wrong type, missing
// subject) collapses into the same apperror.ErrUnauthorized with a generic
// message. Callers (and therefore API clients) cannot distinguish which check
// failed; the detail is logged server-side only by the caller if needed.
func (s *TokenService) Verify(tokenStr string, expected TokenType) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			// Reject anything not HMAC-signed to block algorithm confusion.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", apperror.Unauthorized("could not validate credentials")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", apperror.Unauthorized("could not validate credentials")
	}

	if c.Type != expected {
		return "", apperror.Unauthorized("could not validate credentials")
	}

	if c.Subject == "" {
		return "", apperror.Unauthorized("could not validate credentials")
	}

	return c.Subject, nil
}
