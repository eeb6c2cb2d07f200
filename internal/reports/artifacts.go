package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"issuesmap/internal/media"
	"issuesmap/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var artifactName = regexp.MustCompile(`(?i)^[0-9a-z-]+\.pdf$`)

// NewSalt returns the random part of an artifact name. It keeps PDF URLs
// unguessable.
func NewSalt() string {
	return uuid.NewString()
}

// Artifacts stores rendered report PDFs next to the issue images.
type Artifacts struct {
	bucket   media.Bucket
	filesURL string
}

// NewArtifacts creates an artifact store. filesURL is the public prefix
// under which bucket objects are served.
func NewArtifacts(bucket media.Bucket, filesURL string) *Artifacts {
	return &Artifacts{bucket: bucket, filesURL: strings.TrimSuffix(filesURL, "/") + "/"}
}

// URL returns the public URL of a stored object.
func (a *Artifacts) URL(name string) string {
	return a.filesURL + name
}

// Ensure renders the report PDF unless it already exists (or overwrite is
// set) and returns its object name. Thumbnails of images are embedded when
// images is non-empty.
func (a *Artifacts) Ensure(ctx context.Context, r *models.Report, images []models.ImageMeta, overwrite bool) (string, error) {
	name := r.ArtifactName()
	if name == "" || !artifactName.MatchString(name) {
		return "", fmt.Errorf("reports: report %d has no artifact name", r.ID)
	}

	if !overwrite {
		exists, err := a.bucket.Exists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("reports: check %s: %w", name, err)
		}
		if exists {
			return name, nil
		}
	}

	data, err := Render(r, a.loadImages(ctx, images))
	if err != nil {
		return "", err
	}
	if err := a.bucket.Put(ctx, name, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return "", fmt.Errorf("reports: store %s: %w", name, err)
	}
	log.Debug().Str("artifact", name).Int("bytes", len(data)).Msg("reports: rendered pdf")
	return name, nil
}

func (a *Artifacts) loadImages(ctx context.Context, metas []models.ImageMeta) []Image {
	images := make([]Image, 0, len(metas))
	for _, meta := range metas {
		thumb := media.ThumbName(meta.Filename)
		rc, err := a.bucket.Open(ctx, thumb)
		if err != nil {
			if !errors.Is(err, media.ErrNotExist) {
				log.Warn().Err(err).Str("name", thumb).Msg("reports: cannot read thumbnail")
			}
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Warn().Err(err).Str("name", thumb).Msg("reports: cannot read thumbnail")
			continue
		}
		typ := "JPG"
		if ext, _ := media.SupportedExt(thumb); ext == "png" {
			typ = "PNG"
		}
		images = append(images, Image{Meta: meta, Data: data, Type: typ, URL: a.URL(meta.Filename)})
	}
	return images
}

// Open returns the stored PDF of a report.
func (a *Artifacts) Open(ctx context.Context, r *models.Report) (io.ReadCloser, error) {
	name := r.ArtifactName()
	if name == "" {
		return nil, media.ErrNotExist
	}
	return a.bucket.Open(ctx, name)
}

// Remove deletes the stored PDF of a report, if any.
func (a *Artifacts) Remove(ctx context.Context, r *models.Report) error {
	name := r.ArtifactName()
	if name == "" {
		return nil
	}
	if err := a.bucket.Delete(ctx, name); err != nil {
		return fmt.Errorf("reports: remove %s: %w", name, err)
	}
	return nil
}
