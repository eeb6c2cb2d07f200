package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"issuesmap/internal/errs"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSource struct {
	values  map[string]string
	loads   int
	loadErr error
}

func (m *memSource) LoadSettings(context.Context) (map[string]string, error) {
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *memSource) SaveSettings(_ context.Context, values map[string]string) error {
	m.values = values
	return nil
}

type memCache struct {
	values      map[string]string
	invalidated int
}

func (c *memCache) Get(context.Context) (map[string]string, bool) {
	return c.values, c.values != nil
}

func (c *memCache) Set(_ context.Context, v map[string]string) { c.values = v }

func (c *memCache) Invalidate(context.Context) {
	c.values = nil
	c.invalidated++
}

type users []*models.User

func (u users) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, x := range u {
		if x.Email == email {
			return x, nil
		}
	}
	return nil, errors.New("not found")
}

func (u users) FindUserByLogin(_ context.Context, login string) (*models.User, error) {
	for _, x := range u {
		if x.Login == login {
			return x, nil
		}
	}
	return nil, errors.New("not found")
}

func (u users) GetUser(_ context.Context, id string) (*models.User, error) {
	for _, x := range u {
		if x.ID == id {
			return x, nil
		}
	}
	return nil, errors.New("not found")
}

func TestParse_Defaults(t *testing.T) {
	s := Parse(nil)

	assert.Equal(t, DefaultCentreLat, s.CentreLat)
	assert.Equal(t, DefaultCentreLng, s.CentreLng)
	assert.Equal(t, DefaultZoomMapView, s.ZoomMapView)
	assert.Equal(t, DefaultZoomIssueView, s.ZoomIssueView)
	assert.Equal(t, DefaultPostsPerPage, s.PostsPerPage)
	assert.True(t, s.IncludeImagesInReports)
	assert.Empty(t, s.ModeratorIDs)
	assert.Equal(t, permissions.DefaultConfig(), s.Permissions)
}

func TestParse_InvalidFallsBack(t *testing.T) {
	s := Parse(map[string]string{
		OptCentreLat:          "95",
		OptCentreLng:          "not-a-number",
		OptZoomMapView:        "30",
		OptCanAnonSendReports: "maybe",
		OptModeratorEmail:     "broken",
		OptModeratorsList:     "42, 7,42",
		OptCanAnonComment:     "true",
	})

	assert.Equal(t, DefaultCentreLat, s.CentreLat)
	assert.Equal(t, DefaultCentreLng, s.CentreLng)
	assert.Equal(t, DefaultZoomMapView, s.ZoomMapView)
	assert.False(t, s.Permissions.Anonymous[permissions.SendReports])
	assert.True(t, s.Permissions.Anonymous[permissions.Comment])
	assert.Empty(t, s.Permissions.ModeratorEmail)
	assert.Equal(t, []string{"42", "7"}, s.ModeratorIDs)
	assert.True(t, s.Directory().IsModerator("42"))
}

func TestLoader_CurrentUsesCache(t *testing.T) {
	src := &memSource{values: map[string]string{OptModeratorEmail: "mod@example.com"}}
	cache := &memCache{}
	l := NewLoader(src, cache, nil)

	for i := 0; i < 3; i++ {
		s, err := l.Current(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "mod@example.com", s.Permissions.ModeratorEmail)
	}
	assert.Equal(t, 1, src.loads)
}

func TestLoader_CurrentSourceFailure(t *testing.T) {
	l := NewLoader(&memSource{loadErr: errors.New("disk gone")}, nil, nil)
	_, err := l.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindDependency, errs.KindOf(err))
}

func TestLoader_Update(t *testing.T) {
	src := &memSource{values: map[string]string{OptZoomMapView: "12"}}
	cache := &memCache{}
	u := users{{ID: "42", Login: "ieva", Email: "ieva@example.com"}}
	l := NewLoader(src, cache, u)

	res, err := l.Update(context.Background(), map[string]string{
		OptModeratorEmail: "mod@example.com",
		OptModeratorsList: "ieva@example.com (Ieva)\nnobody",
		OptCanAnonComment: "true",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"42"}, res.Moderators.IDs)
	assert.Equal(t, []string{"nobody"}, res.Moderators.Unmatched)
	assert.Equal(t, "42", src.values[OptModeratorsList])
	assert.Equal(t, "12", src.values[OptZoomMapView])
	assert.Equal(t, 12, res.Settings.ZoomMapView)
	assert.True(t, res.Settings.Permissions.Anonymous[permissions.Comment])
	assert.Equal(t, 1, cache.invalidated)

	values, err := l.Values(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mod@example.com", values[OptModeratorEmail])
	assert.Equal(t, "16", values[OptZoomIssueView])
	assert.Equal(t, "ieva (ieva@example.com)", values[OptModeratorsList])

	again, err := l.Update(context.Background(), values)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, again.Moderators.IDs)
	assert.Equal(t, "42", src.values[OptModeratorsList])
}

func TestLoader_UpdateRejectsInvalid(t *testing.T) {
	src := &memSource{values: map[string]string{}}
	l := NewLoader(src, nil, nil)

	tests := map[string]map[string]string{
		"unknown option": {"im_gmaps_api_key": "abc"},
		"bad email":      {OptModeratorEmail: "nope"},
		"bad latitude":   {OptCentreLat: "-91"},
		"bad bool":       {OptCanAnonAddIssue: "sometimes"},
	}
	for name, changes := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := l.Update(context.Background(), changes)
			require.Error(t, err)
			assert.Equal(t, errs.KindValidation, errs.KindOf(err))
			assert.Empty(t, src.values)
		})
	}
}

func TestRedisCache_UnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisCache(client, time.Minute)
	c.Set(context.Background(), map[string]string{"a": "b"})
	_, ok := c.Get(context.Background())
	assert.False(t, ok)
	c.Invalidate(context.Background())
}
