package issues

import (
	"context"
	"io"

	"issuesmap/internal/errs"
	"issuesmap/internal/events"
	"issuesmap/internal/media"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"

	"github.com/rs/zerolog/log"
)

// UploadImage stores an image as a tmp upload until it is attached to an issue.
func (s *Service) UploadImage(ctx context.Context, a *Actor, filename string, r io.Reader) (*Result, error) {
	if !a.Can(permissions.UploadImages) {
		return nil, errs.Authorization("You are not authorised to upload images.")
	}
	name, err := s.media.Upload(ctx, filename, r)
	if err != nil {
		return nil, err
	}
	return &Result{Data: map[string]string{
		"filename": name,
		"url":      s.fileURL(name),
	}}, nil
}

// CancelUploads discards tmp uploads that were not attached.
func (s *Service) CancelUploads(ctx context.Context, a *Actor, names []string) (*Result, error) {
	if !a.Can(permissions.UploadImages) {
		return nil, errs.Authorization("You are not authorised to upload images.")
	}
	err := s.media.CancelUploads(ctx, names)
	s.sweep(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{}, nil
}

// AddImages attaches tmp uploads to an issue. When called from the
// add-images view the next step is setting the location.
func (s *Service) AddImages(ctx context.Context, a *Actor, id int64, names []string, view string) (*Result, error) {
	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(issue) || !a.Can(permissions.UploadImages) {
		return nil, errs.Authorization("You are not authorised to add images to this issue.")
	}

	attached, attachErr := s.media.Attach(ctx, id, names)
	if len(attached) > 0 {
		if err := s.refreshImages(ctx, a, issue, ""); err != nil {
			return nil, err
		}
	}
	s.sweep(ctx)
	if attachErr != nil {
		return nil, attachErr
	}

	log.Info().Int64("issue_id", id).Int("images", len(attached)).Msg("issues: images added")
	next := ""
	if view == ViewAddImages {
		next = ViewSetLocation
	}
	return &Result{Redirect: IssueURL(id, next), Data: issue}, nil
}

// DeleteImage removes an image from an issue. If it was featured, the next
// image takes its place.
func (s *Service) DeleteImage(ctx context.Context, a *Actor, id int64, filename string) (*Result, error) {
	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(issue) {
		return nil, errs.Authorization("You are not authorised to edit this issue.")
	}

	removed, err := s.media.DeleteImage(ctx, id, filename)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, errs.NotFound("Error while deleting image.")
	}
	if err := s.refreshImages(ctx, a, issue, filename); err != nil {
		return nil, err
	}

	return &Result{Data: map[string]string{"featured_image": issue.FeaturedImage}}, nil
}

// SetFeaturedImage picks the image shown for an issue in lists and on the
// map. An empty filename clears it.
func (s *Service) SetFeaturedImage(ctx context.Context, a *Actor, id int64, filename string) (*Result, error) {
	issue, err := s.loadIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(issue) {
		return nil, errs.Authorization("You are not authorised to edit this issue.")
	}
	if filename != "" && (!media.IsIssueImage(id, filename) || !hasImage(issue.Images, filename)) {
		return nil, errs.Validation("Error while setting the featured image.")
	}

	issue.FeaturedImage = filename
	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return nil, storeErr(err, "Issue not found.", "Error while setting the featured image.")
	}
	s.publish(ctx, events.Event{Type: events.IssueUpdated, IssueID: id, Status: issue.Status, Lat: issue.Lat, Lng: issue.Lng})
	return &Result{Data: map[string]string{"featured_image": filename}}, nil
}

// refreshImages rereads the stored images of an issue. While the location
// still equals the map centre it is taken from the first geotagged image.
// A missing or deleted featured image is replaced by the first image.
func (s *Service) refreshImages(ctx context.Context, a *Actor, issue *models.Issue, deleted string) error {
	images, err := s.media.ImageData(ctx, issue.ID)
	if err != nil {
		return err
	}
	issue.Images = images

	if issue.Lat == a.Settings.CentreLat && issue.Lng == a.Settings.CentreLng {
		for _, img := range images {
			if img.HasLocation() {
				issue.Lat, issue.Lng = img.Lat, img.Lng
				break
			}
		}
	}

	if issue.FeaturedImage == deleted || !hasImage(images, issue.FeaturedImage) {
		issue.FeaturedImage = ""
		if len(images) > 0 {
			issue.FeaturedImage = images[0].Filename
		}
	}

	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return storeErr(err, "Issue not found.", "Unable to save the image data.")
	}
	s.publish(ctx, events.Event{Type: events.IssueUpdated, IssueID: issue.ID, Status: issue.Status, Lat: issue.Lat, Lng: issue.Lng})
	return nil
}

func hasImage(images []models.ImageMeta, filename string) bool {
	for _, img := range images {
		if img.Filename == filename {
			return true
		}
	}
	return false
}
