package routing

import (
	"net/http"

	"issuesmap/internal/handlers"
	"issuesmap/internal/identity"
	"issuesmap/internal/metrics"
	"issuesmap/internal/middleware"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds the configuration needed for setting up routes
type Config struct {
	Handlers      *handlers.Handler
	Resolver      *identity.Resolver
	Settings      middleware.SettingsLoader
	Events        http.Handler
	Logger        zerolog.Logger
	SecureCookies bool
	CSRFKey       []byte
	RateLimits    *middleware.RateLimitConfig
}

// SetupRouter creates and configures the HTTP router with all routes and middleware
func SetupRouter(cfg Config) http.Handler {
	h := cfg.Handlers
	mux := http.NewServeMux()

	// Accounts
	mux.HandleFunc("GET /api/me", h.HandleAPIMe)
	mux.HandleFunc("POST /auth/register", h.HandleRegister)
	mux.HandleFunc("POST /auth/login", h.HandleLogin)
	mux.HandleFunc("POST /logout", h.HandleLogout)

	// Issues
	mux.HandleFunc("GET /api/issues", h.HandleIssueList)
	mux.HandleFunc("GET /api/map-items", h.HandleMapItems)
	mux.HandleFunc("POST /api/issues", h.HandleIssueCreate)
	mux.HandleFunc("GET /api/issues/{id}", h.HandleIssueView)
	mux.HandleFunc("PUT /api/issues/{id}", h.HandleIssueUpdate)
	mux.HandleFunc("DELETE /api/issues/{id}", h.HandleIssueDelete)
	mux.HandleFunc("PUT /api/issues/{id}/location", h.HandleIssueLocation)
	mux.HandleFunc("POST /api/issues/{id}/comments", h.HandleCommentCreate)

	// Images
	mux.HandleFunc("POST /api/uploads", h.HandleUpload)
	mux.HandleFunc("DELETE /api/uploads", h.HandleUploadCancel)
	mux.HandleFunc("POST /api/issues/{id}/images", h.HandleImagesAdd)
	mux.HandleFunc("DELETE /api/issues/{id}/images/{filename}", h.HandleImageDelete)
	mux.HandleFunc("PUT /api/issues/{id}/featured-image", h.HandleFeaturedImage)

	// Reports and templates
	mux.HandleFunc("GET /api/templates", h.HandleTemplateList)
	mux.HandleFunc("POST /api/reports", h.HandleReportCreate)
	mux.HandleFunc("GET /api/reports/{id}", h.HandleReportView)
	mux.HandleFunc("PUT /api/reports/{id}", h.HandleReportUpdate)
	mux.HandleFunc("DELETE /api/reports/{id}", h.HandleReportDelete)
	mux.HandleFunc("POST /api/reports/{id}/send", h.HandleReportSend)
	mux.HandleFunc("POST /api/reports/{id}/download", h.HandleReportDownload)

	// Admin
	mux.HandleFunc("GET /api/admin/settings", h.HandleAdminSettings)
	mux.HandleFunc("PUT /api/admin/settings", h.HandleAdminSettingsUpdate)

	// Stored images and PDFs
	mux.HandleFunc("GET /files/{name}", h.HandleFile)

	// Apply middleware in order (innermost first)
	var handler http.Handler = mux

	// 1. CSRF: identity-bound token plus Sec-Fetch-Site / Origin checks
	csrfConfig := middleware.DefaultCSRFConfig()
	csrfConfig.Key = cfg.CSRFKey
	csrfConfig.SecureCookie = cfg.SecureCookies
	handler = middleware.CSRFMiddleware(csrfConfig)(handler)
	handler = http.NewCrossOriginProtection().Handler(handler)

	// 2. Limit request body size
	handler = middleware.LimitBodyMiddleware(handler)

	// 3. Resolve identity and load the settings snapshot
	handler = middleware.IdentityMiddleware(cfg.Resolver, cfg.Settings)(handler)

	// 4. Compress JSON responses
	handler = gzhttp.GzipHandler(handler)

	// Metrics bypass compression, CSRF and identity
	app := http.NewServeMux()
	app.Handle("GET /metrics", promhttp.Handler())
	app.Handle("/", handler)
	handler = app

	// 5. Apply rate limiting
	rateLimits := cfg.RateLimits
	if rateLimits == nil {
		rateLimits = middleware.NewDefaultRateLimitConfig()
	}
	handler = middleware.RateLimitMiddleware(rateLimits)(handler)

	// 6. Apply security headers
	handler = middleware.SecurityHeadersMiddleware(handler)

	// 7. Tracing
	handler = otelhttp.NewHandler(handler, "issuesmap",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + metrics.NormalizePath(r.URL.Path)
		}),
	)

	// The live event stream needs the raw connection, so it is mounted
	// outside the wrapping writers
	root := http.NewServeMux()
	if cfg.Events != nil {
		root.Handle("GET /ws/events", cfg.Events)
	}
	root.Handle("/", handler)

	// 8. Apply logging middleware (outermost - wraps everything)
	return middleware.LoggingMiddleware(cfg.Logger)(root)
}
