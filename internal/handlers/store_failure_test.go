package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"issuesmap/internal/accounts"
	"issuesmap/internal/database"
	"issuesmap/internal/identity"
	"issuesmap/internal/issues"
	"issuesmap/internal/media"
	"issuesmap/internal/middleware"
	"issuesmap/internal/models"
	"issuesmap/internal/reports"
	"issuesmap/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockHandler wires a handler over a MockStore so store failures can be
// injected per test.
func newMockHandler(t *testing.T, store *database.MockStore) *Handler {
	t.Helper()
	bucket, err := media.NewFSBucket(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	files := media.NewService(bucket)

	svc := issues.NewService(issues.Deps{
		Store:     store,
		Settings:  settings.NewLoader(store, nil, store),
		Media:     files,
		Artifacts: reports.NewArtifacts(bucket, "/files"),
		SiteURL:   "https://issues.example.com",
	})
	resolver := identity.NewResolver(identity.NewTokens([]byte("test-secret"), time.Hour, time.Hour), store, false)
	return NewHandler(svc, accounts.NewService(store), resolver, files, Config{PublicURL: "https://issues.example.com"})
}

func withIdentity(req *http.Request, id identity.Identity) *http.Request {
	ctx := identity.WithIdentity(req.Context(), id)
	ctx = middleware.WithSettings(ctx, settings.Parse(nil))
	return req.WithContext(ctx)
}

func TestHandlers_StoreFailureIsBadGateway(t *testing.T) {
	storeDown := errors.New("bolt: database not open")
	owned := func(_ context.Context, id int64) (*models.Issue, error) {
		return &models.Issue{ID: id, OwnerID: anon.ID, Title: "Broken bench"}, nil
	}

	tests := []struct {
		name    string
		store   *database.MockStore
		handler func(*Handler) http.HandlerFunc
		req     *http.Request
		message string
	}{
		{
			name: "create issue",
			store: &database.MockStore{
				CreateIssueFunc: func(context.Context, *models.Issue) error { return storeDown },
			},
			handler: func(h *Handler) http.HandlerFunc { return h.HandleIssueCreate },
			req: jsonRequest(http.MethodPost, "/api/issues", map[string]string{
				"issue_title": "Broken bench",
				"added_by":    "Jane",
			}),
			message: "Error while adding a new issue.",
		},
		{
			name: "delete issue",
			store: &database.MockStore{
				GetIssueFunc: owned,
				DeleteIssueFunc: func(context.Context, int64) ([]*models.Report, error) {
					return nil, storeDown
				},
			},
			handler: func(h *Handler) http.HandlerFunc { return h.HandleIssueDelete },
			req:     httptest.NewRequest(http.MethodDelete, "/api/issues/3", nil),
			message: "Unable to delete this issue.",
		},
		{
			name: "list issues",
			store: &database.MockStore{
				ListIssuesFunc: func(context.Context, models.IssueFilter) ([]*models.Issue, int, error) {
					return nil, 0, storeDown
				},
			},
			handler: func(h *Handler) http.HandlerFunc { return h.HandleIssueList },
			req:     httptest.NewRequest(http.MethodGet, "/api/issues", nil),
			message: "Unable to list issues.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMockHandler(t, tt.store)
			req := withIdentity(tt.req, anon)
			req.SetPathValue("id", "3")
			rec := httptest.NewRecorder()
			tt.handler(h)(rec, req)

			assert.Equal(t, http.StatusBadGateway, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			assert.NotContains(t, rec.Body.String(), storeDown.Error())
		})
	}
}

func TestHandlers_MissingIssueIsNotFound(t *testing.T) {
	h := newMockHandler(t, &database.MockStore{
		GetIssueFunc: func(context.Context, int64) (*models.Issue, error) { return nil, database.ErrNotFound },
	})
	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/issues/7", nil), anon)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()
	h.HandleIssueView(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Issue not found.", decodeEnvelope(t, rec).Message)
}
