// Package identity determines who is acting on each request: a registered
// account carried by a session token, or an anonymous visitor carried by a
// long-lived pseudo-identity token.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Kind distinguishes registered accounts from anonymous visitors.
type Kind string

const (
	KindAnonymous  Kind = "anonymous"
	KindRegistered Kind = "registered"
)

// AnonymousPrefix starts every anonymous identity id.
const AnonymousPrefix = "anon_"

// Identity is the acting party of a request.
type Identity struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	IsModerator bool   `json:"is_moderator"`
}

// IsRegistered reports whether the identity belongs to a registered account.
func (i Identity) IsRegistered() bool { return i.Kind == KindRegistered }

// IsAnonymous reports whether the identity is an anonymous pseudo-identity.
func (i Identity) IsAnonymous() bool { return i.Kind == KindAnonymous }

// NewAnonymousID mints a random anonymous id. Collisions are not checked.
func NewAnonymousID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity: generate anonymous id: %w", err)
	}
	return AnonymousPrefix + hex.EncodeToString(b), nil
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by the identity middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
