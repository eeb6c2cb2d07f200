package reports

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"testing"

	"issuesmap/internal/media"
	"issuesmap/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport() *models.Report {
	return &models.Report{
		ID:          3,
		IssueID:     12,
		Ref:         "12-1",
		Salt:        "5f0c2c1e-8c57-4ad3-9a54-bb0c8f0f1a2b",
		ToAddress:   "City Council\nMain Street 1",
		FromAddress: "Brīvības iela 10\nRīga",
		FromEmail:   "citizen@example.com",
		Greeting:    "Dear",
		Addressee:   "Sir or Madam",
		Body:        "The pavement is <b>broken</b>.\nPlease see <a href=\"https://example.com\">the map</a>.",
		SignOff:     "Regards",
		AddedBy:     "Jane",
		Date:        "01.05.2024",
	}
}

func readAll(t *testing.T, b media.Bucket, name string) []byte {
	t.Helper()
	rc, err := b.Open(context.Background(), name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestRender(t *testing.T) {
	data, err := Render(testReport(), nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.NotContains(t, string(data), "/Subtype /Image")
}

func TestRender_WithImages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 24, 16)), nil))

	images := []Image{
		{Meta: models.ImageMeta{Filename: "12-1.jpg", Timestamp: "2021:05:01 10:20:30", Lat: 56.9, Lng: 24.1}, Data: buf.Bytes(), Type: "JPG", URL: "/files/12-1.jpg"},
		{Meta: models.ImageMeta{Filename: "12-2.jpg"}, Data: []byte("broken"), Type: "JPG"},
	}
	data, err := Render(testReport(), images)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/Subtype /Image")
}

func TestArtifacts_Ensure(t *testing.T) {
	bucket, err := media.NewFSBucket(t.TempDir())
	require.NoError(t, err)
	a := NewArtifacts(bucket, "/files")
	ctx := context.Background()
	r := testReport()

	name, err := a.Ensure(ctx, r, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "12-1-5f0c2c1e-8c57-4ad3-9a54-bb0c8f0f1a2b.pdf", name)
	assert.Equal(t, "/files/"+name, a.URL(name))
	assert.True(t, bytes.HasPrefix(readAll(t, bucket, name), []byte("%PDF-")))

	require.NoError(t, bucket.Put(ctx, name, bytes.NewReader([]byte("cached")), 6, ""))
	_, err = a.Ensure(ctx, r, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), readAll(t, bucket, name))

	_, err = a.Ensure(ctx, r, nil, true)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(readAll(t, bucket, name), []byte("%PDF-")))

	require.NoError(t, a.Remove(ctx, r))
	ok, err := bucket.Exists(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArtifacts_EmbedsThumbnails(t *testing.T) {
	bucket, err := media.NewFSBucket(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 24, 16)), nil))
	require.NoError(t, bucket.Put(ctx, "12-100-thumb.jpg", bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"))

	a := NewArtifacts(bucket, "/files/")
	name, err := a.Ensure(ctx, testReport(), []models.ImageMeta{{Filename: "12-100.jpg"}, {Filename: "12-200.jpg"}}, false)
	require.NoError(t, err)
	assert.Contains(t, string(readAll(t, bucket, name)), "/Subtype /Image")
}

func TestArtifacts_Templates(t *testing.T) {
	bucket, err := media.NewFSBucket(t.TempDir())
	require.NoError(t, err)
	a := NewArtifacts(bucket, "/files")

	template := &models.Report{ID: 1, Salt: "x"}
	_, err = a.Ensure(context.Background(), template, nil, false)
	assert.Error(t, err)
	assert.NoError(t, a.Remove(context.Background(), template))
}

func TestNewSalt(t *testing.T) {
	a, b := NewSalt(), NewSalt()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9a-f-]{36}$`, a)
}
