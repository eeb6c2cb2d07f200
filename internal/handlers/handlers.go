package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"issuesmap/internal/accounts"
	"issuesmap/internal/errs"
	"issuesmap/internal/identity"
	"issuesmap/internal/issues"
	"issuesmap/internal/media"
	"issuesmap/internal/metrics"
	"issuesmap/internal/middleware"
	"issuesmap/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds handler configuration options
type Config struct {
	// PublicURL is the public-facing URL for the server
	PublicURL string
}

// Handler contains all HTTP handler methods and their dependencies.
type Handler struct {
	issues   *issues.Service
	accounts *accounts.Service
	resolver *identity.Resolver
	files    *media.Service
	config   Config
}

// NewHandler creates a new Handler with all required dependencies.
func NewHandler(
	svc *issues.Service,
	acc *accounts.Service,
	resolver *identity.Resolver,
	files *media.Service,
	config Config,
) *Handler {
	return &Handler{
		issues:   svc,
		accounts: acc,
		resolver: resolver,
		files:    files,
		config:   config,
	}
}

// response is the envelope every JSON endpoint returns.
type response struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Redirect string `json:"redirect_url"`
	Data     any    `json:"data"`
}

// writeJSON encodes and writes a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeResult(w http.ResponseWriter, res *issues.Result) {
	if res == nil {
		res = &issues.Result{}
	}
	writeJSON(w, http.StatusOK, response{
		Success:  true,
		Message:  res.Message,
		Redirect: res.Redirect,
		Data:     res.Data,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	logger := zerolog.Ctx(r.Context())
	switch kind {
	case errs.KindInternal:
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	case errs.KindDependency:
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Dependency failure")
	}
	writeJSON(w, errs.HTTPStatus(kind), response{Message: errs.Message(err)})
}

// actorFrom builds the acting party from what IdentityMiddleware stored.
func actorFrom(r *http.Request) *issues.Actor {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		id = identity.Identity{Kind: identity.KindAnonymous}
	}
	return issues.NewActor(id, middleware.SettingsFromContext(r.Context()))
}

type actionFunc func(ctx context.Context, a *issues.Actor) (*issues.Result, error)

// run executes one named action inside a span and writes its outcome.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, action string, fn actionFunc) {
	a := actorFrom(r)
	ctx, span := tracing.ActionSpan(r.Context(), action, string(a.Kind))
	defer span.End()

	res, err := fn(ctx, a)
	tracing.EndWithError(span, err)
	metrics.ActionsTotal.WithLabelValues(action, outcome(err)).Inc()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(errs.KindOf(err))
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.NotFound("Not found.")
	}
	return id, nil
}

// isJSONRequest checks if the request Content-Type is JSON
func isJSONRequest(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}

// decodeRequest decodes either JSON or form data into target based on
// Content-Type. fromForm copies form values into target.
func decodeRequest(r *http.Request, target any, fromForm func(url.Values)) error {
	if isJSONRequest(r) {
		if err := json.NewDecoder(r.Body).Decode(target); err != nil {
			return errs.Wrap(errs.KindValidation, "Invalid request body.", err)
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return errs.Wrap(errs.KindValidation, "Invalid request body.", err)
	}
	if fromForm != nil {
		fromForm(r.Form)
	}
	return nil
}

func formFloat(form url.Values, key string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(form.Get(key)), 64)
	return v
}

func formInt(form url.Values, key string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(form.Get(key)), 10, 64)
	return v
}

func formBool(form url.Values, key string) bool {
	switch strings.ToLower(strings.TrimSpace(form.Get(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
