package middleware

import (
	"context"
	"net/http"

	"issuesmap/internal/identity"
	"issuesmap/internal/settings"

	"github.com/rs/zerolog/log"
)

type settingsKey struct{}

// SettingsLoader yields the settings snapshot for a request.
type SettingsLoader interface {
	Current(ctx context.Context) (*settings.Settings, error)
}

// WithSettings returns a copy of ctx carrying s.
func WithSettings(ctx context.Context, s *settings.Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, s)
}

// SettingsFromContext returns the snapshot loaded by IdentityMiddleware, or
// the defaults when none was loaded.
func SettingsFromContext(ctx context.Context) *settings.Settings {
	if s, ok := ctx.Value(settingsKey{}).(*settings.Settings); ok && s != nil {
		return s
	}
	return settings.Parse(nil)
}

// IdentityMiddleware loads the settings snapshot once per request, resolves
// the acting identity against its moderator list and stores both in the
// request context. A freshly minted anonymous identity is sent back as a
// cookie before the handler runs.
func IdentityMiddleware(resolver *identity.Resolver, loader SettingsLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			s, err := loader.Current(ctx)
			if err != nil {
				log.Error().Err(err).Msg("settings: failed to load, using defaults")
				s = settings.Parse(nil)
			}

			res := resolver.Resolve(r, s.Directory())
			if res.SetCookie != nil {
				http.SetCookie(w, res.SetCookie)
			}
			recordIdentity(ctx, res.Identity)

			ctx = identity.WithIdentity(ctx, res.Identity)
			ctx = WithSettings(ctx, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
