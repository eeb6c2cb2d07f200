package issues

import (
	"context"
	"math"

	"issuesmap/internal/errs"
	"issuesmap/internal/events"
	"issuesmap/internal/media"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"

	"github.com/rs/zerolog/log"
)

// AddIssue creates an issue owned by the actor. New issues start unreported
// at the configured map centre.
func (s *Service) AddIssue(ctx context.Context, a *Actor, d models.IssueDetails) (*Result, error) {
	if !a.Can(permissions.AddIssue) {
		return nil, errs.Authorization("You are not authorised to add issues.")
	}

	d.Normalize()
	if d.Category == "" {
		d.Category = models.DefaultCategory
	}
	if err := d.Validate(); err != nil {
		return nil, errs.Validation(err.Error())
	}

	issue := &models.Issue{
		OwnerID:     a.ID,
		Category:    d.Category,
		Title:       d.Title,
		Description: d.Description,
		AddedBy:     d.AddedBy,
		Email:       d.Email,
		Lat:         a.Settings.CentreLat,
		Lng:         a.Settings.CentreLng,
		Images:      []models.ImageMeta{},
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, errs.Dependency("Error while adding a new issue.", err)
	}

	log.Info().
		Int64("issue_id", issue.ID).
		Str("owner", issue.OwnerID).
		Str("kind", string(a.Kind)).
		Msg("issues: issue added")
	s.publish(ctx, events.Event{Type: events.IssueCreated, IssueID: issue.ID, Status: issue.Status, Lat: issue.Lat, Lng: issue.Lng})

	view := ViewSetLocation
	if a.Can(permissions.UploadImages) {
		view = ViewAddImages
	}
	return &Result{
		Message:  "The issue has been added.",
		Redirect: IssueURL(issue.ID, view),
		Data:     issue,
	}, nil
}

// UpdateIssueDetails edits the text fields of an issue.
func (s *Service) UpdateIssueDetails(ctx context.Context, a *Actor, id int64, d models.IssueDetails) (*Result, error) {
	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(issue) {
		return nil, errs.Authorization("You are not authorised to edit this issue.")
	}

	d.Normalize()
	if d.Category == "" {
		d.Category = issue.Category
	}
	if err := d.Validate(); err != nil {
		return nil, errs.Validation(err.Error())
	}

	issue.Category = d.Category
	issue.Title = d.Title
	issue.Description = d.Description
	issue.AddedBy = d.AddedBy
	issue.Email = d.Email
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, storeErr(err, "Issue not found.", "Error while updating the issue.")
	}

	s.publish(ctx, events.Event{Type: events.IssueUpdated, IssueID: issue.ID, Status: issue.Status, Lat: issue.Lat, Lng: issue.Lng})
	return &Result{
		Message:  "The issue has been updated.",
		Redirect: IssueURL(issue.ID, ""),
		Data:     issue,
	}, nil
}

// UpdateLocation moves an issue on the map.
func (s *Service) UpdateLocation(ctx context.Context, a *Actor, id int64, lat, lng float64) (*Result, error) {
	if lat <= 0 && lng <= 0 {
		return nil, errs.Validation("Missing latitude and longitude parameter values.")
	}
	if math.Abs(lat) > 90 || math.Abs(lng) > 180 || math.IsNaN(lat) || math.IsNaN(lng) {
		return nil, errs.Validation("Invalid latitude or longitude.")
	}

	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(issue) {
		return nil, errs.Authorization("You are not authorised to edit this issue.")
	}

	issue.Lat, issue.Lng = lat, lng
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, storeErr(err, "Issue not found.", "Error while updating the location.")
	}

	s.publish(ctx, events.Event{Type: events.IssueUpdated, IssueID: issue.ID, Status: issue.Status, Lat: lat, Lng: lng})
	return &Result{
		Message:  "The location has been updated.",
		Redirect: IssueURL(issue.ID, ""),
		Data:     issue,
	}, nil
}

// DeleteIssue removes an issue with its reports, comments, images and
// report PDFs.
func (s *Service) DeleteIssue(ctx context.Context, a *Actor, id int64) (*Result, error) {
	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(issue) {
		return nil, errs.Authorization("You are not authorised to delete this issue.")
	}

	removed, err := s.store.DeleteIssue(ctx, id)
	if err != nil {
		return nil, storeErr(err, "Issue not found.", "Unable to delete this issue.")
	}

	artifacts := make([]string, 0, len(removed))
	for _, r := range removed {
		if name := r.ArtifactName(); name != "" {
			artifacts = append(artifacts, name)
		}
	}
	if s.media != nil {
		if err := s.media.DeleteIssueFiles(ctx, id, artifacts); err != nil {
			log.Warn().Err(err).Int64("issue_id", id).Msg("issues: files of deleted issue remain")
		}
	}

	log.Info().Int64("issue_id", id).Int("reports", len(removed)).Msg("issues: issue deleted")
	s.publish(ctx, events.Event{Type: events.IssueDeleted, IssueID: id, Lat: issue.Lat, Lng: issue.Lng})
	return &Result{Message: "The issue has been deleted.", Redirect: "/"}, nil
}

// IssueView is an issue with everything shown on its page.
type IssueView struct {
	Issue       *models.Issue     `json:"issue"`
	StatusLabel string            `json:"status_label"`
	StatusColor string            `json:"status_color"`
	Reports     []*models.Report  `json:"reports"`
	Comments    []*models.Comment `json:"comments"`
	CanEdit     bool              `json:"can_edit"`
	Zoom        int               `json:"zoom"`
}

// GetIssue returns an issue with its reports and comments. Contact details
// are hidden from actors who cannot edit the issue.
func (s *Service) GetIssue(ctx context.Context, a *Actor, id int64) (*IssueView, error) {
	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	reps, err := s.store.ListReportsForIssue(ctx, id)
	if err != nil {
		return nil, errs.Dependency("Unable to load the reports.", err)
	}
	comments, err := s.store.ListComments(ctx, id)
	if err != nil {
		return nil, errs.Dependency("Unable to load the comments.", err)
	}

	canEdit := a.CanEdit(issue)
	if !canEdit {
		issue = redactIssue(issue)
		for i, r := range reps {
			if !a.CanEdit(r) {
				reps[i] = redactReport(r)
			}
		}
	}

	return &IssueView{
		Issue:       issue,
		StatusLabel: issue.Status.Label(),
		StatusColor: issue.Status.Color(),
		Reports:     reps,
		Comments:    comments,
		CanEdit:     canEdit,
		Zoom:        a.Settings.ZoomIssueView,
	}, nil
}

func redactIssue(issue *models.Issue) *models.Issue {
	c := *issue
	c.Email = ""
	return &c
}

func redactReport(r *models.Report) *models.Report {
	c := *r
	c.RecipientEmail = ""
	c.FromEmail = ""
	c.FromAddress = ""
	c.EmailBody = ""
	return &c
}

// ListQuery filters issue listings.
type ListQuery struct {
	Category string        `json:"category" url:"category,omitempty"`
	Status   models.Status `json:"status" url:"status,omitempty"`
	Own      bool          `json:"own" url:"own,omitempty"`
	Page     int           `json:"page" url:"page,omitempty"`
}

// URL returns the listing endpoint for q.
func (q ListQuery) URL() string {
	if q.Page <= 1 {
		q.Page = 0
	}
	return withQuery("/api/issues", q)
}

func (q ListQuery) filter(a *Actor) (models.IssueFilter, error) {
	if q.Status != "" && !q.Status.Valid() {
		return models.IssueFilter{}, errs.Validation("Unknown issue status.")
	}
	f := models.IssueFilter{Category: q.Category, Status: q.Status, Page: q.Page}
	if q.Own {
		f.OwnerID = a.ID
	}
	return f, nil
}

// IssueList is one page of issues.
type IssueList struct {
	Issues  []*models.Issue `json:"issues"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Pages   int             `json:"pages"`
	Prev    string          `json:"prev_url,omitempty"`
	Next    string          `json:"next_url,omitempty"`
}

// ListIssues returns a page of issues, newest first.
func (s *Service) ListIssues(ctx context.Context, a *Actor, q ListQuery) (*IssueList, error) {
	f, err := q.filter(a)
	if err != nil {
		return nil, err
	}
	f.PerPage = a.Settings.PostsPerPage
	if f.Page < 1 {
		f.Page = 1
	}

	list, total, err := s.store.ListIssues(ctx, f)
	if err != nil {
		return nil, errs.Dependency("Unable to list issues.", err)
	}
	for i, issue := range list {
		if !a.CanEdit(issue) {
			list[i] = redactIssue(issue)
		}
	}

	pages := 1
	if f.PerPage > 0 && total > 0 {
		pages = (total + f.PerPage - 1) / f.PerPage
	}
	out := &IssueList{Issues: list, Total: total, Page: f.Page, PerPage: f.PerPage, Pages: pages}
	if f.Page > 1 {
		prev := q
		prev.Page = min(f.Page-1, pages)
		out.Prev = prev.URL()
	}
	if f.Page < pages {
		next := q
		next.Page = f.Page + 1
		out.Next = next.URL()
	}
	return out, nil
}

// MapItem is one issue marker.
type MapItem struct {
	ID        int64         `json:"id"`
	Title     string        `json:"title"`
	Category  string        `json:"category"`
	Status    models.Status `json:"status"`
	Color     string        `json:"color"`
	Lat       float64       `json:"latitude"`
	Lng       float64       `json:"longitude"`
	URL       string        `json:"url"`
	Thumbnail string        `json:"thumbnail,omitempty"`
}

// MapData holds the markers and the initial map view.
type MapData struct {
	CentreLat float64   `json:"centre_lat"`
	CentreLng float64   `json:"centre_lng"`
	Zoom      int       `json:"zoom"`
	Items     []MapItem `json:"items"`
}

// MapItems returns a marker for every matching issue.
func (s *Service) MapItems(ctx context.Context, a *Actor, q ListQuery) (*MapData, error) {
	f, err := q.filter(a)
	if err != nil {
		return nil, err
	}
	list, _, err := s.store.ListIssues(ctx, f)
	if err != nil {
		return nil, errs.Dependency("Unable to list issues.", err)
	}

	items := make([]MapItem, 0, len(list))
	for _, issue := range list {
		item := MapItem{
			ID:       issue.ID,
			Title:    issue.Title,
			Category: issue.Category,
			Status:   issue.Status,
			Color:    issue.Status.Color(),
			Lat:      issue.Lat,
			Lng:      issue.Lng,
			URL:      IssueURL(issue.ID, ""),
		}
		if issue.FeaturedImage != "" {
			item.Thumbnail = s.fileURL(media.ThumbName(issue.FeaturedImage))
		}
		items = append(items, item)
	}

	return &MapData{
		CentreLat: a.Settings.CentreLat,
		CentreLng: a.Settings.CentreLng,
		Zoom:      a.Settings.ZoomMapView,
		Items:     items,
	}, nil
}
