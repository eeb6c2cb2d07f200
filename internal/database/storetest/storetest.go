// Package storetest holds behaviour tests shared by every database.Store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/models"
	"issuesmap/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty store for one test.
type Factory func(t *testing.T) database.Store

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("IssueLifecycle", func(t *testing.T) { testIssueLifecycle(t, newStore(t)) })
	t.Run("ListIssues", func(t *testing.T) { testListIssues(t, newStore(t)) })
	t.Run("ReportRefs", func(t *testing.T) { testReportRefs(t, newStore(t)) })
	t.Run("ConcurrentRefs", func(t *testing.T) { testConcurrentRefs(t, newStore(t)) })
	t.Run("ReportTransitions", func(t *testing.T) { testReportTransitions(t, newStore(t)) })
	t.Run("Templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("CascadeDelete", func(t *testing.T) { testCascadeDelete(t, newStore(t)) })
	t.Run("Comments", func(t *testing.T) { testComments(t, newStore(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
}

func newIssue(t *testing.T, s database.Store, owner, category string) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		OwnerID:  owner,
		Category: category,
		Title:    "Broken streetlight",
		AddedBy:  "Anna",
		Lat:      56.95,
		Lng:      24.11,
		Images:   []models.ImageMeta{},
	}
	require.NoError(t, s.CreateIssue(context.Background(), issue))
	require.NotZero(t, issue.ID)
	return issue
}

func newReport(t *testing.T, s database.Store, issueID int64, owner string) *models.Report {
	t.Helper()
	r := &models.Report{
		IssueID:        issueID,
		OwnerID:        owner,
		RecipientEmail: "council@example.com",
		Greeting:       "Dear",
		Addressee:      "Council",
		Body:           "Please fix it.",
		Salt:           "salt",
	}
	require.NoError(t, s.CreateReport(context.Background(), r, &workflow.ReportCreated))
	return r
}

func testIssueLifecycle(t *testing.T, s database.Store) {
	ctx := context.Background()
	issue := newIssue(t, s, "anon_aa", "roads")
	assert.Equal(t, models.StatusUnreported, issue.Status)

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Broken streetlight", got.Title)
	assert.Equal(t, "anon_aa", got.OwnerID)

	got.Title = "Fixed title"
	got.OwnerID = "anon_thief"
	got.Images = []models.ImageMeta{{Filename: fmt.Sprintf("%d-1.jpg", issue.ID), Lat: 1, Lng: 2}}
	got.FeaturedImage = got.Images[0].Filename
	require.NoError(t, s.UpdateIssue(ctx, got))

	got, err = s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fixed title", got.Title)
	assert.Equal(t, "anon_aa", got.OwnerID, "owner must never change")
	require.Len(t, got.Images, 1)
	assert.Equal(t, got.Images[0].Filename, got.FeaturedImage)

	status, changed, err := s.TransitionIssueStatus(ctx, issue.ID, workflow.ReportSent)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.StatusUnreported, status)

	_, err = s.GetIssue(ctx, 9999)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.ErrorIs(t, s.UpdateIssue(ctx, &models.Issue{ID: 9999}), database.ErrNotFound)
}

func testListIssues(t *testing.T, s database.Store) {
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 5; i++ {
		category := "roads"
		if i%2 == 1 {
			category = "parks"
		}
		ids = append(ids, newIssue(t, s, "7", category).ID)
	}
	newIssue(t, s, "8", "roads")

	all, total, err := s.ListIssues(ctx, models.IssueFilter{})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	require.Len(t, all, 6)
	assert.Greater(t, all[0].ID, all[5].ID, "newest first")

	roads, total, err := s.ListIssues(ctx, models.IssueFilter{Category: "roads", OwnerID: "7"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, roads, 3)

	page, total, err := s.ListIssues(ctx, models.IssueFilter{OwnerID: "7", Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	newReport(t, s, ids[0], "7")
	created, total, err := s.ListIssues(ctx, models.IssueFilter{Status: models.StatusReportCreated})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, ids[0], created[0].ID)

	counts, err := s.CountIssuesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[models.StatusUnreported])
	assert.Equal(t, 1, counts[models.StatusReportCreated])
	assert.Equal(t, 0, counts[models.StatusReportSent])
}

func testReportRefs(t *testing.T, s database.Store) {
	ctx := context.Background()
	issue := newIssue(t, s, "7", "roads")

	r1 := newReport(t, s, issue.ID, "7")
	r2 := newReport(t, s, issue.ID, "7")
	assert.Equal(t, fmt.Sprintf("%d-1", issue.ID), r1.Ref)
	assert.Equal(t, fmt.Sprintf("%d-2", issue.ID), r2.Ref)

	_, err := s.DeleteReport(ctx, r2.ID, &workflow.LastReportDeleted)
	require.NoError(t, err)
	r3 := newReport(t, s, issue.ID, "7")
	assert.Equal(t, fmt.Sprintf("%d-3", issue.ID), r3.Ref, "refs are never reused")

	got, err := s.GetReport(ctx, r3.ID)
	require.NoError(t, err)
	assert.Equal(t, r3.Ref, got.Ref)
	assert.Equal(t, "salt", got.Salt)
	assert.Equal(t, fmt.Sprintf("%d-3-salt.pdf", issue.ID), got.ArtifactName())

	err = s.CreateReport(ctx, &models.Report{IssueID: 9999}, &workflow.ReportCreated)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func testConcurrentRefs(t *testing.T, s database.Store) {
	ctx := context.Background()
	issue := newIssue(t, s, "7", "roads")

	const n = 20
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := &models.Report{IssueID: issue.ID, OwnerID: "7", Salt: "s"}
			errCh <- s.CreateReport(ctx, r, &workflow.ReportCreated)
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	reports, err := s.ListReportsForIssue(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, reports, n)
	seen := make(map[string]bool, n)
	for _, r := range reports {
		assert.False(t, seen[r.Ref], "duplicate ref %s", r.Ref)
		seen[r.Ref] = true
	}

	got, err := s.GetIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReportCreated, got.Status)
}

func testReportTransitions(t *testing.T, s database.Store) {
	ctx := context.Background()
	issue := newIssue(t, s, "7", "roads")
	status := func() models.Status {
		got, err := s.GetIssue(ctx, issue.ID)
		require.NoError(t, err)
		return got.Status
	}

	r1 := newReport(t, s, issue.ID, "7")
	assert.Equal(t, models.StatusReportCreated, status())
	r2 := newReport(t, s, issue.ID, "7")
	assert.Equal(t, models.StatusReportCreated, status())

	removed, err := s.DeleteReport(ctx, r1.ID, &workflow.LastReportDeleted)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, removed.ID)
	assert.Equal(t, models.StatusReportCreated, status(), "another report remains")

	_, err = s.DeleteReport(ctx, r2.ID, &workflow.LastReportDeleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnreported, status())

	r3 := newReport(t, s, issue.ID, "7")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sent, err := s.MarkReportSent(ctx, r3.ID, at, &workflow.ReportSent)
	require.NoError(t, err)
	require.NotNil(t, sent.SentAt)
	assert.True(t, at.Equal(*sent.SentAt))
	assert.Equal(t, models.StatusReportSent, status())

	// deleting the last report of a sent issue does not regress it
	_, err = s.DeleteReport(ctx, r3.ID, &workflow.LastReportDeleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReportSent, status())

	_, err = s.GetReport(ctx, r3.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = s.DeleteReport(ctx, r3.ID, nil)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func testTemplates(t *testing.T, s database.Store) {
	ctx := context.Background()
	tpl := &models.Report{OwnerID: "42", Category: "roads", Greeting: "Dear", Body: "Template"}
	require.NoError(t, s.CreateReport(ctx, tpl, &workflow.ReportCreated))
	assert.Empty(t, tpl.Ref)
	other := &models.Report{OwnerID: "42", Category: "parks"}
	require.NoError(t, s.CreateReport(ctx, other, nil))

	all, err := s.ListTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	roads, err := s.ListTemplates(ctx, "roads")
	require.NoError(t, err)
	require.Len(t, roads, 1)
	assert.Equal(t, tpl.ID, roads[0].ID)

	tpl.Body = "Edited"
	tpl.OwnerID = "someone"
	require.NoError(t, s.UpdateReport(ctx, tpl))
	got, err := s.GetReport(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", got.Body)
	assert.Equal(t, "42", got.OwnerID)
	assert.True(t, got.IsTemplate())
}

func testCascadeDelete(t *testing.T, s database.Store) {
	ctx := context.Background()
	issue := newIssue(t, s, "7", "roads")
	keep := newIssue(t, s, "7", "roads")
	r1 := newReport(t, s, issue.ID, "7")
	r2 := newReport(t, s, issue.ID, "7")
	kept := newReport(t, s, keep.ID, "7")
	c := &models.Comment{IssueID: issue.ID, OwnerID: "7", Author: "Anna", Body: "Seen it"}
	require.NoError(t, s.AddComment(ctx, c))

	removed, err := s.DeleteIssue(ctx, issue.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = s.GetIssue(ctx, issue.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
	for _, id := range []int64{r1.ID, r2.ID} {
		_, err = s.GetReport(ctx, id)
		assert.ErrorIs(t, err, database.ErrNotFound)
	}
	comments, err := s.ListComments(ctx, issue.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	_, err = s.GetReport(ctx, kept.ID)
	assert.NoError(t, err)

	_, err = s.DeleteIssue(ctx, issue.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func testComments(t *testing.T, s database.Store) {
	ctx := context.Background()
	issue := newIssue(t, s, "7", "roads")

	for _, body := range []string{"first", "second"} {
		require.NoError(t, s.AddComment(ctx, &models.Comment{IssueID: issue.ID, OwnerID: "7", Author: "A", Body: body}))
	}
	comments, err := s.ListComments(ctx, issue.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "first", comments[0].Body)
	assert.Equal(t, "second", comments[1].Body)

	err = s.AddComment(ctx, &models.Comment{IssueID: 9999, Body: "x"})
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func testUsers(t *testing.T, s database.Store) {
	ctx := context.Background()
	u := &models.User{Login: "ieva", Email: "Ieva@Example.com", DisplayName: "Ieva", PasswordHash: []byte("hash")}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ieva", got.Login)
	assert.Equal(t, []byte("hash"), got.PasswordHash)

	byEmail, err := s.FindUserByEmail(ctx, "ieva@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byLogin, err := s.FindUserByLogin(ctx, "ieva")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byLogin.ID)

	err = s.CreateUser(ctx, &models.User{Login: "ieva", Email: "other@example.com"})
	assert.ErrorIs(t, err, database.ErrDuplicate)
	err = s.CreateUser(ctx, &models.User{Login: "other", Email: "IEVA@example.com"})
	assert.ErrorIs(t, err, database.ErrDuplicate)

	_, err = s.GetUser(ctx, "9999")
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = s.FindUserByLogin(ctx, "nobody")
	assert.ErrorIs(t, err, database.ErrNotFound)
	_, err = s.FindUserByEmail(ctx, "")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func testSettings(t *testing.T, s database.Store) {
	ctx := context.Background()

	values, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, s.SaveSettings(ctx, map[string]string{"im_zoom_map_view": "12", "im_moderators_list": "42,7"}))
	require.NoError(t, s.SaveSettings(ctx, map[string]string{"im_zoom_map_view": "13"}))

	values, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"im_zoom_map_view": "13"}, values)
}
