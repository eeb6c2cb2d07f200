package settings

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"issuesmap/internal/errs"
	"issuesmap/internal/moderation"
	"issuesmap/internal/permissions"

	"github.com/rs/zerolog/log"
)

// Settings is a parsed snapshot of every option.
type Settings struct {
	CentreLat              float64            `json:"centre_lat"`
	CentreLng              float64            `json:"centre_lng"`
	ZoomMapView            int                `json:"zoom_map_view"`
	ZoomIssueView          int                `json:"zoom_issue_view"`
	IncludeImagesInReports bool               `json:"include_images_in_reports"`
	PostsPerPage           int                `json:"posts_per_page"`
	Permissions            permissions.Config `json:"-"`
	ModeratorIDs           []string           `json:"moderator_ids"`
}

// Directory returns a moderator directory for the snapshot.
func (s *Settings) Directory() *moderation.Directory {
	return moderation.NewDirectory(s.ModeratorIDs)
}

// Evaluator returns a permission evaluator for the snapshot.
func (s *Settings) Evaluator() *permissions.Evaluator {
	return permissions.NewEvaluator(s.Permissions)
}

// Parse builds a snapshot from stored values. Missing or invalid values fall
// back to their defaults; invalid ones are logged.
func Parse(stored map[string]string) *Settings {
	v := make(map[string]string, len(Schema))
	for _, f := range Schema {
		raw, ok := stored[f.Name]
		raw = strings.TrimSpace(raw)
		if !ok || (raw == "" && f.Type != TypeString) {
			v[f.Name] = f.Default
			continue
		}
		if err := f.Check(raw); err != nil {
			log.Warn().Err(err).Str("option", f.Name).Msg("settings: invalid stored value, using default")
			v[f.Name] = f.Default
			continue
		}
		v[f.Name] = raw
	}

	b := func(name string) bool { ok, _ := strconv.ParseBool(v[name]); return ok }
	i := func(name string) int { n, _ := strconv.Atoi(v[name]); return n }
	f := func(name string) float64 { n, _ := strconv.ParseFloat(v[name], 64); return n }

	return &Settings{
		CentreLat:              f(OptCentreLat),
		CentreLng:              f(OptCentreLng),
		ZoomMapView:            i(OptZoomMapView),
		ZoomIssueView:          i(OptZoomIssueView),
		IncludeImagesInReports: b(OptIncludeImagesInReports),
		PostsPerPage:           i(OptPostsPerPage),
		Permissions: permissions.Config{
			Registered: map[permissions.Capability]bool{
				permissions.AddIssue:            b(OptCanLoggedInAddIssue),
				permissions.UploadImages:        b(OptCanLoggedInUploadImages),
				permissions.Comment:             b(OptCanLoggedInComment),
				permissions.SendReports:         b(OptCanLoggedInSendReports),
				permissions.SendReportsToAnyone: b(OptCanLoggedInSendReportsToAnyone),
			},
			Anonymous: map[permissions.Capability]bool{
				permissions.AddIssue:            b(OptCanAnonAddIssue),
				permissions.UploadImages:        b(OptCanAnonUploadImages),
				permissions.Comment:             b(OptCanAnonComment),
				permissions.SendReports:         b(OptCanAnonSendReports),
				permissions.SendReportsToAnyone: b(OptCanAnonSendReportsToAnyone),
			},
			ModeratorEmail:         v[OptModeratorEmail],
			OnlySendReportsToUsers: b(OptOnlySendReportsToUsers),
		},
		ModeratorIDs: moderation.ParseIDs(v[OptModeratorsList]),
	}
}

// Source persists raw option values.
type Source interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
}

// Cache keeps the raw option values close to the request path.
type Cache interface {
	Get(ctx context.Context) (map[string]string, bool)
	Set(ctx context.Context, values map[string]string)
	Invalidate(ctx context.Context)
}

// Loader reads and writes settings through a Source with an optional Cache.
type Loader struct {
	source Source
	cache  Cache
	users  moderation.UserLookup
}

// NewLoader creates a loader. cache may be nil.
func NewLoader(source Source, cache Cache, users moderation.UserLookup) *Loader {
	return &Loader{source: source, cache: cache, users: users}
}

// Current returns the snapshot for the current request.
func (l *Loader) Current(ctx context.Context) (*Settings, error) {
	raw, err := l.raw(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(raw), nil
}

func (l *Loader) raw(ctx context.Context) (map[string]string, error) {
	if l.cache != nil {
		if v, ok := l.cache.Get(ctx); ok {
			return v, nil
		}
	}
	v, err := l.source.LoadSettings(ctx)
	if err != nil {
		return nil, errs.Dependency("Settings could not be loaded.", err)
	}
	if l.cache != nil {
		l.cache.Set(ctx, v)
	}
	return v, nil
}

// Values returns every option with its effective raw value. The moderator
// list is rendered as "login (email)" lines, the same form Update accepts,
// so saving the values unchanged keeps every moderator.
func (l *Loader) Values(ctx context.Context) (map[string]string, error) {
	raw, err := l.raw(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(Schema))
	for _, f := range Schema {
		if v, ok := raw[f.Name]; ok && f.Check(v) == nil {
			out[f.Name] = strings.TrimSpace(v)
		} else {
			out[f.Name] = f.Default
		}
	}
	out[OptModeratorsList] = moderation.FormatList(ctx, l.users, moderation.ParseIDs(out[OptModeratorsList]))
	return out, nil
}

// UpdateResult reports what an admin update changed.
type UpdateResult struct {
	Settings   *Settings
	Moderators moderation.Resolution
}

// Update validates and stores the given options. Unknown names and invalid
// values reject the whole update. A moderators list is given as raw lines
// of emails or logins and resolved to user ids before it is stored.
func (l *Loader) Update(ctx context.Context, changes map[string]string) (*UpdateResult, error) {
	current, err := l.source.LoadSettings(ctx)
	if err != nil {
		return nil, errs.Dependency("Settings could not be loaded.", err)
	}
	next := make(map[string]string, len(current)+len(changes))
	for k, v := range current {
		next[k] = v
	}

	res := &UpdateResult{}
	for name, raw := range changes {
		f, ok := Lookup(name)
		if !ok {
			return nil, errs.Validation(fmt.Sprintf("Unknown setting %q.", name))
		}
		raw = strings.TrimSpace(raw)
		if name == OptModeratorsList {
			res.Moderators = moderation.ResolveList(ctx, l.users, raw)
			next[name] = strings.Join(res.Moderators.IDs, ",")
			continue
		}
		if err := f.Check(raw); err != nil {
			return nil, errs.Wrap(errs.KindValidation, fmt.Sprintf("Invalid value for %s.", name), err)
		}
		next[name] = raw
	}

	if err := l.source.SaveSettings(ctx, next); err != nil {
		return nil, errs.Dependency("Settings could not be saved.", err)
	}
	if l.cache != nil {
		l.cache.Invalidate(ctx)
	}

	log.Info().Int("changed", len(changes)).Msg("settings: updated")
	res.Settings = Parse(next)
	return res, nil
}
