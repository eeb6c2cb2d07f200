package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"issuesmap/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCSRFKey = []byte("csrf-test-key")

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func csrfHandler(cfg *CSRFConfig) http.Handler {
	if cfg == nil {
		cfg = DefaultCSRFConfig()
		cfg.Key = testCSRFKey
	}
	return CSRFMiddleware(cfg)(okHandler)
}

// asVisitor attaches the identity IdentityMiddleware would have resolved.
func asVisitor(req *http.Request, id string) *http.Request {
	ctx := identity.WithIdentity(req.Context(), identity.Identity{ID: id, Kind: identity.KindAnonymous})
	return req.WithContext(ctx)
}

func csrfCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == CSRFTokenCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFToken(t *testing.T) {
	a := CSRFToken(testCSRFKey, "anon_0000000000000001")
	assert.NotEmpty(t, a)
	assert.Equal(t, a, CSRFToken(testCSRFKey, "anon_0000000000000001"), "tokens are stable per identity")
	assert.NotEqual(t, a, CSRFToken(testCSRFKey, "anon_0000000000000002"))
	assert.NotEqual(t, a, CSRFToken([]byte("other-key"), "anon_0000000000000001"))
}

func TestCSRFMiddleware_IssuesTokenForIdentity(t *testing.T) {
	req := asVisitor(httptest.NewRequest(http.MethodGet, "/api/me", nil), "anon_1")
	rec := httptest.NewRecorder()
	csrfHandler(nil).ServeHTTP(rec, req)

	want := CSRFToken(testCSRFKey, "anon_1")
	assert.Equal(t, want, rec.Header().Get(CSRFTokenHeaderName))

	c := csrfCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, want, c.Value)
	assert.False(t, c.HttpOnly, "the map client reads the cookie")
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.False(t, c.Secure)

	t.Run("cookie already current", func(t *testing.T) {
		req := asVisitor(httptest.NewRequest(http.MethodGet, "/api/me", nil), "anon_1")
		req.AddCookie(&http.Cookie{Name: CSRFTokenCookieName, Value: want})
		rec := httptest.NewRecorder()
		csrfHandler(nil).ServeHTTP(rec, req)
		assert.Nil(t, csrfCookie(rec))
	})

	t.Run("cookie of a previous identity is replaced", func(t *testing.T) {
		req := asVisitor(httptest.NewRequest(http.MethodGet, "/api/me", nil), "42")
		req.AddCookie(&http.Cookie{Name: CSRFTokenCookieName, Value: want})
		rec := httptest.NewRecorder()
		csrfHandler(nil).ServeHTTP(rec, req)
		c := csrfCookie(rec)
		require.NotNil(t, c)
		assert.Equal(t, CSRFToken(testCSRFKey, "42"), c.Value)
	})
}

func TestCSRFMiddleware_SecureCookie(t *testing.T) {
	cfg := DefaultCSRFConfig()
	cfg.Key = testCSRFKey
	cfg.SecureCookie = true

	rec := httptest.NewRecorder()
	csrfHandler(cfg).ServeHTTP(rec, asVisitor(httptest.NewRequest(http.MethodGet, "/", nil), "anon_1"))
	c := csrfCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.Secure)
}

func TestCSRFMiddleware_Validation(t *testing.T) {
	valid := CSRFToken(testCSRFKey, "anon_1")
	stolen := CSRFToken(testCSRFKey, "anon_2")

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"GET is exempt", http.MethodGet, "/api/issues", "", http.StatusOK},
		{"HEAD is exempt", http.MethodHead, "/api/issues", "", http.StatusOK},
		{"OPTIONS is exempt", http.MethodOptions, "/api/issues", "", http.StatusOK},
		{"POST without token", http.MethodPost, "/api/issues", "", http.StatusForbidden},
		{"POST with token", http.MethodPost, "/api/issues", valid, http.StatusOK},
		{"POST with another visitor's token", http.MethodPost, "/api/issues", stolen, http.StatusForbidden},
		{"POST with garbage", http.MethodPost, "/api/issues", "not-a-token", http.StatusForbidden},
		{"PUT without token", http.MethodPut, "/api/issues/1", "", http.StatusForbidden},
		{"PUT with token", http.MethodPut, "/api/issues/1", valid, http.StatusOK},
		{"DELETE without token", http.MethodDelete, "/api/issues/1", "", http.StatusForbidden},
		{"DELETE with token", http.MethodDelete, "/api/issues/1", valid, http.StatusOK},
		{"login is exempt", http.MethodPost, "/auth/login", "", http.StatusOK},
		{"register is exempt", http.MethodPost, "/auth/register", "", http.StatusOK},
		{"logout is not exempt", http.MethodPost, "/logout", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := asVisitor(httptest.NewRequest(tt.method, tt.path, nil), "anon_1")
			if tt.header != "" {
				req.Header.Set(CSRFTokenHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			csrfHandler(nil).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCSRFMiddleware_IgnoresCookieValue(t *testing.T) {
	// A token planted in the cookie is not trusted; only the identity counts
	req := asVisitor(httptest.NewRequest(http.MethodPost, "/api/issues", nil), "anon_1")
	req.AddCookie(&http.Cookie{Name: CSRFTokenCookieName, Value: "planted"})
	req.Header.Set(CSRFTokenHeaderName, "planted")
	rec := httptest.NewRecorder()
	csrfHandler(nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCSRFMiddleware_FormField(t *testing.T) {
	form := url.Values{
		CSRFTokenFormField: {CSRFToken(testCSRFKey, "anon_1")},
		"issue_title":      {"Broken bench"},
	}
	req := asVisitor(httptest.NewRequest(http.MethodPost, "/api/issues", strings.NewReader(form.Encode())), "anon_1")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	csrfHandler(nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddleware_MultipartNeedsHeader(t *testing.T) {
	body := "--b\r\nContent-Disposition: form-data; name=\"csrf_token\"\r\n\r\n" +
		CSRFToken(testCSRFKey, "anon_1") + "\r\n--b--\r\n"
	req := asVisitor(httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(body)), "anon_1")
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	rec := httptest.NewRecorder()
	csrfHandler(nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code, "multipart bodies are not parsed for the token")

	req = asVisitor(httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(body)), "anon_1")
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.Header.Set(CSRFTokenHeaderName, CSRFToken(testCSRFKey, "anon_1"))
	rec = httptest.NewRecorder()
	csrfHandler(nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCSRFMiddleware_RandomKeyWhenUnset(t *testing.T) {
	h := CSRFMiddleware(DefaultCSRFConfig())(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, asVisitor(httptest.NewRequest(http.MethodGet, "/", nil), "anon_1"))
	token := rec.Header().Get(CSRFTokenHeaderName)
	require.NotEmpty(t, token)
	assert.NotEqual(t, CSRFToken(nil, "anon_1"), token)

	req := asVisitor(httptest.NewRequest(http.MethodPost, "/api/issues", nil), "anon_1")
	req.Header.Set(CSRFTokenHeaderName, token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
