package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"issuesmap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

type fakeMods []string

func (f fakeMods) IsModerator(id string) bool {
	for _, m := range f {
		if m == id {
			return true
		}
	}
	return false
}

func newTestResolver() *Resolver {
	tokens := NewTokens([]byte("test-secret"), 0, 0)
	users := fakeUsers{
		"42": {ID: "42", Login: "mod"},
		"7":  {ID: "7", Login: "user"},
	}
	return NewResolver(tokens, users, false)
}

func TestNewAnonymousID(t *testing.T) {
	id, err := NewAnonymousID()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, AnonymousPrefix))
	assert.Len(t, id, len(AnonymousPrefix)+16)

	other, err := NewAnonymousID()
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}

func TestResolve_MintsAnonymousIdentity(t *testing.T) {
	r := newTestResolver()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	res := r.Resolve(req, nil)

	assert.Equal(t, KindAnonymous, res.Identity.Kind)
	assert.False(t, res.Identity.IsModerator)
	assert.True(t, strings.HasPrefix(res.Identity.ID, AnonymousPrefix))
	require.NotNil(t, res.SetCookie)
	assert.Equal(t, AnonymousCookieName, res.SetCookie.Name)
	assert.WithinDuration(t, time.Now().Add(28*24*time.Hour), res.SetCookie.Expires, time.Minute)
}

func TestResolve_IsIdempotentForValidAnonymousToken(t *testing.T) {
	r := newTestResolver()
	first := r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.NotNil(t, first.SetCookie)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(first.SetCookie)
		res := r.Resolve(req, nil)

		assert.Equal(t, first.Identity.ID, res.Identity.ID)
		assert.Equal(t, KindAnonymous, res.Identity.Kind)
		assert.Nil(t, res.SetCookie)
	}
}

func TestResolve_TamperedTokenMintsNewIdentity(t *testing.T) {
	r := newTestResolver()
	first := r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonymousCookieName, Value: first.SetCookie.Value + "x"})
	res := r.Resolve(req, nil)

	assert.NotEqual(t, first.Identity.ID, res.Identity.ID)
	assert.NotNil(t, res.SetCookie)
}

func TestResolve_ExpiredAnonymousToken(t *testing.T) {
	r := newTestResolver()
	r.tokens.now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	token, _, err := r.tokens.IssueAnonymous("anon_old")
	require.NoError(t, err)
	r.tokens.now = time.Now

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonymousCookieName, Value: token})
	res := r.Resolve(req, nil)

	assert.NotEqual(t, "anon_old", res.Identity.ID)
	assert.NotNil(t, res.SetCookie)
}

func TestResolve_RegisteredSessionWins(t *testing.T) {
	r := newTestResolver()
	session, err := r.SessionCookie("42")
	require.NoError(t, err)
	anon, _, err := r.tokens.IssueAnonymous("anon_abc")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(session)
	req.AddCookie(&http.Cookie{Name: AnonymousCookieName, Value: anon})

	res := r.Resolve(req, fakeMods{"42"})
	assert.Equal(t, Identity{ID: "42", Kind: KindRegistered, IsModerator: true}, res.Identity)
	assert.Nil(t, res.SetCookie)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	session, err = r.SessionCookie("7")
	require.NoError(t, err)
	req.AddCookie(session)
	res = r.Resolve(req, fakeMods{"42"})
	assert.Equal(t, Identity{ID: "7", Kind: KindRegistered}, res.Identity)
}

func TestResolve_SessionForUnknownUserFallsBack(t *testing.T) {
	r := newTestResolver()
	session, err := r.SessionCookie("999")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(session)
	res := r.Resolve(req, nil)

	assert.Equal(t, KindAnonymous, res.Identity.Kind)
}

func TestTokens_TypesAreNotInterchangeable(t *testing.T) {
	tokens := NewTokens([]byte("s"), 0, 0)

	anon, _, err := tokens.IssueAnonymous("anon_1")
	require.NoError(t, err)
	_, err = tokens.Parse(anon, TokenSession)
	assert.ErrorIs(t, err, ErrInvalidToken)

	session, _, err := tokens.IssueSession("5")
	require.NoError(t, err)
	_, err = tokens.Parse(session, TokenAnonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)

	sub, err := tokens.Parse(session, TokenSession)
	require.NoError(t, err)
	assert.Equal(t, "5", sub)
}

func TestTokens_WrongSecret(t *testing.T) {
	a := NewTokens([]byte("one"), 0, 0)
	b := NewTokens([]byte("two"), 0, 0)

	token, _, err := a.IssueAnonymous("anon_1")
	require.NoError(t, err)
	_, err = b.Parse(token, TokenAnonymous)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{ID: "anon_1", Kind: KindAnonymous})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "anon_1", id.ID)
	assert.True(t, id.IsAnonymous())
	assert.False(t, id.IsRegistered())
}
