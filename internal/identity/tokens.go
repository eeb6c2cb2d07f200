package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType separates anonymous tokens from account sessions so one can
// never be replayed as the other.
type TokenType string

const (
	TokenAnonymous TokenType = "anon"
	TokenSession   TokenType = "session"
)

const tokenIssuer = "issuesmap"

// ErrInvalidToken is returned for tokens that fail signature, expiry or type checks.
var ErrInvalidToken = errors.New("identity: invalid token")

// Claims is the JWT payload of both token types.
type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Tokens issues and validates HMAC-signed identity tokens.
type Tokens struct {
	secret     []byte
	anonTTL    time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewTokens creates a token issuer. anonTTL bounds anonymous identities
// (28 days by default), sessionTTL bounds account sessions.
func NewTokens(secret []byte, anonTTL, sessionTTL time.Duration) *Tokens {
	if anonTTL <= 0 {
		anonTTL = 28 * 24 * time.Hour
	}
	if sessionTTL <= 0 {
		sessionTTL = 14 * 24 * time.Hour
	}
	return &Tokens{
		secret:     secret,
		anonTTL:    anonTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// IssueAnonymous signs a token for an anonymous identity id.
func (t *Tokens) IssueAnonymous(id string) (string, time.Time, error) {
	return t.issue(TokenAnonymous, id, t.anonTTL)
}

// IssueSession signs a session token for a registered user id.
func (t *Tokens) IssueSession(userID string) (string, time.Time, error) {
	return t.issue(TokenSession, userID, t.sessionTTL)
}

func (t *Tokens) issue(typ TokenType, subject string, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(ttl)
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("identity: sign %s token: %w", typ, err)
	}
	return signed, expires, nil
}

// Parse validates a token of the expected type and returns its subject.
func (t *Tokens) Parse(raw string, want TokenType) (string, error) {
	if raw == "" {
		return "", ErrInvalidToken
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != want || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// AnonymousTTL returns the lifetime of anonymous tokens.
func (t *Tokens) AnonymousTTL() time.Duration { return t.anonTTL }
