// Package issues implements every workflow action of the service. Each
// action takes the acting identity with its settings snapshot, evaluates the
// permission it needs, mutates through the store (status transitions ride in
// the same store transaction) and returns a Result for the transport layer.
package issues

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/email"
	"issuesmap/internal/errs"
	"issuesmap/internal/events"
	"issuesmap/internal/identity"
	"issuesmap/internal/media"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"
	"issuesmap/internal/reports"
	"issuesmap/internal/settings"

	"github.com/google/go-querystring/query"
	"github.com/rs/zerolog/log"
)

// Views an issue page can be opened in after an action.
const (
	ViewAddImages   = "add-images"
	ViewSetLocation = "set-location"
)

// Deps are the collaborators of the action layer.
type Deps struct {
	Store     database.Store
	Settings  *settings.Loader
	Media     *media.Service
	Artifacts *reports.Artifacts
	Mailer    email.Mailer
	Events    events.Publisher

	// SiteURL is named in the footer of report emails.
	SiteURL string

	// Demo disables report sending.
	Demo bool
}

// Service runs the workflow actions.
type Service struct {
	store     database.Store
	settings  *settings.Loader
	media     *media.Service
	artifacts *reports.Artifacts
	mailer    email.Mailer
	events    events.Publisher
	siteURL   string
	demo      bool
	now       func() time.Time
}

// NewService creates the action layer. A nil Events publisher discards events.
func NewService(d Deps) *Service {
	pub := d.Events
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{
		store:     d.Store,
		settings:  d.Settings,
		media:     d.Media,
		artifacts: d.Artifacts,
		mailer:    d.Mailer,
		events:    pub,
		siteURL:   d.SiteURL,
		demo:      d.Demo,
		now:       time.Now,
	}
}

// Actor is the identity performing an action together with the settings
// snapshot of its request.
type Actor struct {
	identity.Identity
	Settings *settings.Settings

	perms *permissions.Evaluator
}

// NewActor binds an identity to a settings snapshot.
func NewActor(id identity.Identity, s *settings.Settings) *Actor {
	if s == nil {
		s = settings.Parse(nil)
	}
	return &Actor{Identity: id, Settings: s, perms: s.Evaluator()}
}

// Can reports whether the actor holds the capability.
func (a *Actor) Can(c permissions.Capability) bool {
	return a.perms.Can(a.Identity, c)
}

// CanEdit reports whether the actor may edit or delete the post.
func (a *Actor) CanEdit(p permissions.Post) bool {
	return a.perms.CanEditPost(a.Identity, p)
}

// Capabilities returns the capability map of the actor.
func (a *Actor) Capabilities() map[permissions.Capability]bool {
	return a.perms.Capabilities(a.Identity)
}

// Result is the outcome of a successful action.
type Result struct {
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect_url,omitempty"`
	Data     any    `json:"data,omitempty"`
}

type viewQuery struct {
	View string `url:"view,omitempty"`
}

func withQuery(path string, q any) string {
	v, err := query.Values(q)
	if err != nil || len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

// IssueURL returns the permalink of an issue, optionally opened in a view.
func IssueURL(id int64, view string) string {
	return withQuery("/issues/"+strconv.FormatInt(id, 10), viewQuery{View: view})
}

// ReportURL returns the permalink of a report.
func ReportURL(id int64) string {
	return "/reports/" + url.PathEscape(strconv.FormatInt(id, 10))
}

// storeErr classifies a store failure.
func storeErr(err error, notFound, failed string) error {
	if errors.Is(err, database.ErrNotFound) {
		return errs.NotFound(notFound)
	}
	return errs.Dependency(failed, err)
}

// fileURL is the public URL of a stored upload, image or PDF. Without an
// artifact store files are assumed to be served under /files/.
func (s *Service) fileURL(name string) string {
	if s.artifacts == nil {
		return "/files/" + name
	}
	return s.artifacts.URL(name)
}

func (s *Service) loadIssue(ctx context.Context, id int64) (*models.Issue, error) {
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Issue not found.", "Unable to load the issue.")
	}
	return issue, nil
}

func (s *Service) loadReport(ctx context.Context, id int64) (*models.Report, error) {
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Report not found.", "Unable to load the report.")
	}
	return r, nil
}

// sweep removes stale uploads after image actions. Failures only get logged.
func (s *Service) sweep(ctx context.Context) {
	if s.media == nil {
		return
	}
	if _, err := s.media.SweepOrphans(ctx); err != nil {
		log.Warn().Err(err).Msg("issues: orphan sweep failed")
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	s.events.Publish(ctx, e)
}

// publishStatus announces a status change caused by a transition.
func (s *Service) publishStatus(ctx context.Context, issue *models.Issue, next models.Status) {
	s.publish(ctx, events.Event{
		Type:    events.IssueStatusChanged,
		IssueID: issue.ID,
		Status:  next,
		Lat:     issue.Lat,
		Lng:     issue.Lng,
	})
}
