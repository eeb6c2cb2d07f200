// Package media manages issue images: temporary uploads, attaching them to
// an issue with a thumbnail, EXIF metadata, deletion and the sweep of
// uploads that were never attached.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"issuesmap/internal/errs"
	"issuesmap/internal/metrics"
	"issuesmap/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// Upload limits
const (
	UploadField    = "upload-file"
	MaxFileSize    = 10000000
	ThumbnailWidth = 240
	OrphanMaxAge   = time.Hour
	TmpPrefix      = "tmp"
	thumbSuffix    = "-thumb"
	exifTimeLayout = "2006:01:02 15:04:05"
	maxNameLen     = models.MaxLen64
	tokenLen       = 12
)

var supportedTypes = strings.Join(models.SupportedImageTypes, "|")

var tmpName = regexp.MustCompile(`(?i)^tmp-([0-9]+)-[0-9a-f]{` + strconv.Itoa(tokenLen) + `}(-[0-9]+)?\.(` + supportedTypes + `)$`)

func issueImageName(issueID int64) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + strconv.FormatInt(issueID, 10) + `-[0-9-]+\.(` + supportedTypes + `)$`)
}

func issueFileName(issueID int64) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + strconv.FormatInt(issueID, 10) + `-[0-9-]+(-thumb)?\.(` + supportedTypes + `)$`)
}

// IsTmpName reports whether name is a temporary upload.
func IsTmpName(name string) bool { return tmpName.MatchString(name) }

// IsIssueImage reports whether name is an original image of the issue.
func IsIssueImage(issueID int64, name string) bool {
	return issueImageName(issueID).MatchString(name)
}

// ThumbName returns the thumbnail name of an image.
func ThumbName(name string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + thumbSuffix + ext
}

// SupportedExt reports whether the file extension is an accepted image type.
func SupportedExt(filename string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	return ext, slices.Contains(models.SupportedImageTypes, ext)
}

// MetaReader extracts image metadata from encoded image bytes.
type MetaReader func(r io.Reader) (timestamp string, lat, lng float64)

// ReadEXIF reads the original capture time and GPS position. Images without
// EXIF data yield zero values.
func ReadEXIF(r io.Reader) (string, float64, float64) {
	x, err := exif.Decode(r)
	if err != nil {
		return "", 0, 0
	}
	var ts string
	if t, err := x.DateTime(); err == nil {
		ts = t.Format(exifTimeLayout)
	}
	lat, lng, err := x.LatLong()
	if err != nil || math.IsNaN(lat) || math.IsNaN(lng) {
		return ts, 0, 0
	}
	return ts, lat, lng
}

// Service implements the image operations on top of a Bucket.
type Service struct {
	bucket   Bucket
	readMeta MetaReader
	now      func() time.Time
	token    func() string

	// serializes name allocation
	mu sync.Mutex
}

// NewService creates a media service storing files in bucket.
func NewService(bucket Bucket) *Service {
	return &Service{bucket: bucket, readMeta: ReadEXIF, now: time.Now, token: randomToken}
}

// randomToken returns the unguessable part of a tmp name.
func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLen]
}

// Bucket returns the underlying object store.
func (s *Service) Bucket() Bucket { return s.bucket }

// Upload validates an uploaded image and stores it under a fresh tmp name,
// which is returned. The file only becomes part of an issue through Attach.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext, ok := SupportedExt(filename)
	if !ok {
		return "", errs.Validation("Only jpg, jpeg and png images can be uploaded.")
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return "", errs.Wrap(errs.KindValidation, "Failed to upload file.", err)
	}
	if len(data) > MaxFileSize {
		return "", errs.Validation("The uploaded file is too large.")
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err != nil || !formatMatches(format, ext) {
		return "", errs.Validation("The uploaded file is not a valid image.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("%s-%d-%s", TmpPrefix, s.now().Unix(), s.token())
	name, err := s.uniqueName(ctx, base, ext)
	if err != nil {
		return "", errs.Dependency("Failed to upload file.", err)
	}
	if err := s.bucket.Put(ctx, name, bytes.NewReader(data), int64(len(data)), contentType(ext)); err != nil {
		return "", errs.Dependency("Failed to upload file.", err)
	}

	log.Debug().Str("name", name).Int("bytes", len(data)).Msg("media: stored upload")
	return name, nil
}

func formatMatches(format, ext string) bool {
	switch ext {
	case "jpg", "jpeg":
		return format == "jpeg"
	case "png":
		return format == "png"
	}
	return false
}

func contentType(ext string) string {
	if ext == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// uniqueName returns base.ext, or base-N.ext when that is taken.
func (s *Service) uniqueName(ctx context.Context, base, ext string) (string, error) {
	name := base + "." + ext
	for n := 1; ; n++ {
		taken, err := s.bucket.Exists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		name = fmt.Sprintf("%s-%d.%s", base, n, ext)
	}
}

// cleanListName normalizes a client-supplied file name. Clients may prefix
// names with the public images folder.
func cleanListName(raw string) string {
	name := models.CapLen(strings.TrimSpace(raw), maxNameLen)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Attach renames the listed tmp uploads to the issue and creates their
// thumbnails. Names that are not tmp uploads or no longer exist are skipped.
// It returns the stored names.
func (s *Service) Attach(ctx context.Context, issueID int64, names []string) ([]string, error) {
	var attached []string
	var failed error
	prefix := strconv.FormatInt(issueID, 10)

	for _, raw := range names {
		src := cleanListName(raw)
		if !IsTmpName(src) {
			log.Debug().Str("name", src).Msg("media: ignoring non-upload name")
			continue
		}
		exists, err := s.bucket.Exists(ctx, src)
		if err != nil {
			failed = errors.Join(failed, err)
			continue
		}
		if !exists {
			continue
		}

		ext := strings.ToLower(strings.TrimPrefix(path.Ext(src), "."))
		base := prefix + "-" + tmpName.FindStringSubmatch(src)[1]

		s.mu.Lock()
		dst, err := s.uniqueName(ctx, base, ext)
		if err == nil {
			err = s.bucket.Rename(ctx, src, dst)
		}
		s.mu.Unlock()
		if err != nil {
			failed = errors.Join(failed, fmt.Errorf("attach %s: %w", src, err))
			continue
		}

		if err := s.createThumbnail(ctx, dst); err != nil {
			log.Warn().Err(err).Str("name", dst).Msg("media: thumbnail failed")
			failed = errors.Join(failed, err)
		}
		attached = append(attached, dst)
	}

	if failed != nil {
		return attached, errs.Dependency("Failed to add some images.", failed)
	}
	return attached, nil
}

func (s *Service) createThumbnail(ctx context.Context, name string) error {
	rc, err := s.bucket.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	src, format, err := image.Decode(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}

	thumb := Thumbnail(src, ThumbnailWidth)
	var buf bytes.Buffer
	if format == "png" {
		err = png.Encode(&buf, thumb)
	} else {
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return fmt.Errorf("encode thumbnail of %s: %w", name, err)
	}

	ext, _ := SupportedExt(name)
	return s.bucket.Put(ctx, ThumbName(name), &buf, int64(buf.Len()), contentType(ext))
}

// Thumbnail scales src to the given width keeping its aspect ratio.
func Thumbnail(src image.Image, width int) image.Image {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return image.NewRGBA(image.Rect(0, 0, width, 1))
	}
	ratio := float64(b.Dx()) / float64(b.Dy())
	height := int(math.Ceil(float64(width) / ratio))
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// ImageData lists the original images of an issue, sorted by name, with
// their metadata.
func (s *Service) ImageData(ctx context.Context, issueID int64) ([]models.ImageMeta, error) {
	objects, err := s.bucket.List(ctx)
	if err != nil {
		return nil, errs.Dependency("Failed to read issue images.", err)
	}
	re := issueImageName(issueID)
	images := []models.ImageMeta{}
	for _, obj := range objects {
		if !re.MatchString(obj.Name) {
			continue
		}
		meta := models.ImageMeta{Filename: obj.Name}
		rc, err := s.bucket.Open(ctx, obj.Name)
		if err != nil {
			log.Warn().Err(err).Str("name", obj.Name).Msg("media: cannot read image metadata")
		} else {
			meta.Timestamp, meta.Lat, meta.Lng = s.readMeta(rc)
			rc.Close()
		}
		images = append(images, meta)
	}
	return images, nil
}

// DeleteImage removes an issue image and its thumbnail. It reports whether
// anything was removed; names that do not belong to the issue are rejected.
func (s *Service) DeleteImage(ctx context.Context, issueID int64, filename string) (bool, error) {
	if !IsIssueImage(issueID, filename) {
		return false, errs.Validation("The image does not belong to this issue.")
	}
	removed := false
	for _, name := range []string{filename, ThumbName(filename)} {
		exists, err := s.bucket.Exists(ctx, name)
		if err != nil {
			return removed, errs.Dependency("Failed to delete image.", err)
		}
		if !exists {
			continue
		}
		if err := s.bucket.Delete(ctx, name); err != nil {
			return removed, errs.Dependency("Failed to delete image.", err)
		}
		removed = true
	}
	return removed, nil
}

// CancelUploads removes tmp uploads the client decided not to attach.
func (s *Service) CancelUploads(ctx context.Context, names []string) error {
	var failed error
	for _, raw := range names {
		name := cleanListName(raw)
		if !IsTmpName(name) {
			continue
		}
		if err := s.bucket.Delete(ctx, name); err != nil {
			failed = errors.Join(failed, err)
		}
	}
	if failed != nil {
		return errs.Dependency("Failed to cancel uploads.", failed)
	}
	return nil
}

// SweepOrphans removes tmp uploads older than OrphanMaxAge and returns how
// many were removed.
func (s *Service) SweepOrphans(ctx context.Context) (int, error) {
	objects, err := s.bucket.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-OrphanMaxAge)
	removed := 0
	for _, obj := range objects {
		if !IsTmpName(obj.Name) || !obj.ModTime.Before(cutoff) {
			continue
		}
		if err := s.bucket.Delete(ctx, obj.Name); err != nil {
			log.Warn().Err(err).Str("name", obj.Name).Msg("media: failed to remove orphaned upload")
			continue
		}
		removed++
	}
	if removed > 0 {
		metrics.OrphansSweptTotal.Add(float64(removed))
		log.Info().Int("removed", removed).Msg("media: swept orphaned uploads")
	}
	return removed, nil
}

// DeleteIssueFiles removes every image and thumbnail of an issue together
// with the extra named objects (report PDFs). Removals run concurrently.
func (s *Service) DeleteIssueFiles(ctx context.Context, issueID int64, extra []string) error {
	objects, err := s.bucket.List(ctx)
	if err != nil {
		return errs.Dependency("Failed to delete issue files.", err)
	}
	re := issueFileName(issueID)
	names := make([]string, 0, len(extra))
	for _, obj := range objects {
		if re.MatchString(obj.Name) {
			names = append(names, obj.Name)
		}
	}
	for _, name := range extra {
		if name != "" {
			names = append(names, name)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		g.Go(func() error {
			return s.bucket.Delete(gCtx, name)
		})
	}
	if err := g.Wait(); err != nil {
		return errs.Dependency("Failed to delete issue files.", err)
	}
	log.Debug().Int64("issue_id", issueID).Int("files", len(names)).Msg("media: removed issue files")
	return nil
}

// Open returns a stored object for serving.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, errs.NotFound("File not found.")
	}
	rc, err := s.bucket.Open(ctx, name)
	if errors.Is(err, ErrNotExist) {
		return nil, errs.NotFound("File not found.")
	}
	if err != nil {
		return nil, errs.Dependency("Failed to read file.", err)
	}
	return rc, nil
}
