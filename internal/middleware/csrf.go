package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"slices"
	"strings"

	"issuesmap/internal/identity"

	"github.com/rs/zerolog/log"
)

const (
	// CSRFTokenCookieName is the cookie a browser client reads the token from
	CSRFTokenCookieName = "csrf_token"
	// CSRFTokenHeaderName carries the token on writes and on every response
	CSRFTokenHeaderName = "X-CSRF-Token"
	// CSRFTokenFormField is the fallback for url-encoded form posts
	CSRFTokenFormField = "csrf_token"
)

// CSRFConfig holds CSRF middleware configuration
type CSRFConfig struct {
	// Key signs the per-identity tokens. A random key is used when empty,
	// which invalidates every token on restart.
	Key []byte

	// SecureCookie sets the Secure flag on the CSRF cookie
	SecureCookie bool

	// ExemptPaths are path prefixes that skip CSRF validation
	ExemptPaths []string

	// ExemptMethods are HTTP methods that skip CSRF validation
	ExemptMethods []string
}

// DefaultCSRFConfig exempts the account endpoints, which have no identity
// to bind a token to yet, and the websocket upgrade.
func DefaultCSRFConfig() *CSRFConfig {
	return &CSRFConfig{
		ExemptPaths:   []string{"/auth/", "/ws/"},
		ExemptMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace},
	}
}

// CSRFToken derives the token of one identity. Tokens change whenever the
// visitor logs in or out.
func CSRFToken(key []byte, identityID string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("csrf:" + identityID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CSRFMiddleware rejects writes that do not carry the token of the identity
// resolved for the request. It must run inside IdentityMiddleware.
func CSRFMiddleware(config *CSRFConfig) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultCSRFConfig()
	}
	key := config.Key
	if len(key) == 0 {
		key = make([]byte, 32)
		rand.Read(key)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := identity.FromContext(r.Context())
			token := CSRFToken(key, id.ID)

			if c, err := r.Cookie(CSRFTokenCookieName); err != nil || c.Value != token {
				http.SetCookie(w, &http.Cookie{
					Name:     CSRFTokenCookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: false, // read by the map client
					Secure:   config.SecureCookie,
					SameSite: http.SameSiteStrictMode,
				})
			}
			w.Header().Set(CSRFTokenHeaderName, token)

			if slices.Contains(config.ExemptMethods, r.Method) || exemptPath(config.ExemptPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// Multipart bodies are left unparsed for the upload handler
			submitted := r.Header.Get(CSRFTokenHeaderName)
			if submitted == "" && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				submitted = r.FormValue(CSRFTokenFormField)
			}

			if submitted == "" || subtle.ConstantTimeCompare([]byte(token), []byte(submitted)) != 1 {
				log.Warn().
					Str("client_ip", GetClientIP(r)).
					Str("identity_kind", string(id.Kind)).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Bool("missing", submitted == "").
					Msg("CSRF check failed")
				http.Error(w, "CSRF token missing or invalid", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func exemptPath(prefixes []string, path string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
