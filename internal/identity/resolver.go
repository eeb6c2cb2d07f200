package identity

import (
	"context"
	"net/http"
	"time"

	"issuesmap/internal/models"

	"github.com/rs/zerolog/log"
)

// Cookie names
const (
	AnonymousCookieName = "issues-map"
	SessionCookieName   = "issues-map-session"
)

// UserGetter looks up registered accounts.
type UserGetter interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// ModeratorChecker answers moderator membership for an identity id.
type ModeratorChecker interface {
	IsModerator(id string) bool
}

// Resolution is the outcome of resolving a request. SetCookie is non-nil
// when a fresh anonymous identity was minted and must be persisted by the client.
type Resolution struct {
	Identity  Identity
	SetCookie *http.Cookie
}

// Resolver turns request credentials into an Identity.
type Resolver struct {
	tokens        *Tokens
	users         UserGetter
	secureCookies bool
}

// NewResolver creates a resolver. users may be nil, in which case session
// tokens are trusted without a user lookup.
func NewResolver(tokens *Tokens, users UserGetter, secureCookies bool) *Resolver {
	return &Resolver{tokens: tokens, users: users, secureCookies: secureCookies}
}

// Tokens returns the token issuer used by the resolver.
func (r *Resolver) Tokens() *Tokens { return r.tokens }

// Resolve determines the acting identity. It never fails: without valid
// credentials it mints a new anonymous identity.
func (r *Resolver) Resolve(req *http.Request, mods ModeratorChecker) Resolution {
	if id, ok := r.registered(req, mods); ok {
		return Resolution{Identity: id}
	}

	if c, err := req.Cookie(AnonymousCookieName); err == nil {
		if anonID, err := r.tokens.Parse(c.Value, TokenAnonymous); err == nil {
			return Resolution{Identity: Identity{ID: anonID, Kind: KindAnonymous}}
		}
		log.Debug().Msg("identity: discarding invalid anonymous token")
	}

	anonID, err := NewAnonymousID()
	if err != nil {
		log.Error().Err(err).Msg("identity: failed to mint anonymous id")
		return Resolution{Identity: Identity{Kind: KindAnonymous}}
	}
	token, expires, err := r.tokens.IssueAnonymous(anonID)
	if err != nil {
		log.Error().Err(err).Msg("identity: failed to sign anonymous token")
		return Resolution{Identity: Identity{ID: anonID, Kind: KindAnonymous}}
	}

	return Resolution{
		Identity:  Identity{ID: anonID, Kind: KindAnonymous},
		SetCookie: r.cookie(AnonymousCookieName, token, expires),
	}
}

func (r *Resolver) registered(req *http.Request, mods ModeratorChecker) (Identity, bool) {
	c, err := req.Cookie(SessionCookieName)
	if err != nil {
		return Identity{}, false
	}
	userID, err := r.tokens.Parse(c.Value, TokenSession)
	if err != nil {
		return Identity{}, false
	}
	if r.users != nil {
		if _, err := r.users.GetUser(req.Context(), userID); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("identity: session names an unknown user")
			return Identity{}, false
		}
	}
	isMod := mods != nil && mods.IsModerator(userID)
	return Identity{ID: userID, Kind: KindRegistered, IsModerator: isMod}, true
}

// SessionCookie builds the cookie that logs userID in.
func (r *Resolver) SessionCookie(userID string) (*http.Cookie, error) {
	token, expires, err := r.tokens.IssueSession(userID)
	if err != nil {
		return nil, err
	}
	return r.cookie(SessionCookieName, token, expires), nil
}

// ClearSessionCookie builds a cookie that removes the session.
func (r *Resolver) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (r *Resolver) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
