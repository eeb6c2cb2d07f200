package issues

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/errs"
	"issuesmap/internal/media"
	"issuesmap/internal/models"
	"issuesmap/internal/reports"
	"issuesmap/internal/settings"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("bolt: database not open")

func mockService(t *testing.T, store *database.MockStore) (*Service, *fakeMailer) {
	t.Helper()
	bucket, err := media.NewFSBucket(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)

	mailer := &fakeMailer{}
	svc := NewService(Deps{
		Store:     store,
		Settings:  settings.NewLoader(store, nil, store),
		Media:     media.NewService(bucket),
		Artifacts: reports.NewArtifacts(bucket, "/files"),
		Mailer:    mailer,
		Events:    &recorder{},
		SiteURL:   "https://issues.example.com",
	})
	svc.now = func() time.Time { return testNow }
	return svc, mailer
}

func ownedIssue(owner string) func(context.Context, int64) (*models.Issue, error) {
	return func(_ context.Context, id int64) (*models.Issue, error) {
		return &models.Issue{ID: id, OwnerID: owner, Title: "Broken bench", Status: models.StatusUnreported}, nil
	}
}

func TestStoreFailures_AreDependencyErrors(t *testing.T) {
	ctx := context.Background()
	asAlice := NewActor(alice, settings.Parse(nil))

	tests := []struct {
		name  string
		store *database.MockStore
		run   func(*Service) error
		msg   string
	}{
		{
			name: "add issue",
			store: &database.MockStore{
				CreateIssueFunc: func(context.Context, *models.Issue) error { return errStoreDown },
			},
			run: func(s *Service) error {
				_, err := s.AddIssue(ctx, asAlice, models.IssueDetails{Title: "Pothole", AddedBy: "Alice"})
				return err
			},
			msg: "Error while adding a new issue.",
		},
		{
			name: "delete issue",
			store: &database.MockStore{
				GetIssueFunc: ownedIssue(alice.ID),
				DeleteIssueFunc: func(context.Context, int64) ([]*models.Report, error) {
					return nil, errStoreDown
				},
			},
			run: func(s *Service) error {
				_, err := s.DeleteIssue(ctx, asAlice, 3)
				return err
			},
			msg: "Unable to delete this issue.",
		},
		{
			name: "add comment",
			store: &database.MockStore{
				GetIssueFunc:   ownedIssue(bob.ID),
				AddCommentFunc: func(context.Context, *models.Comment) error { return errStoreDown },
			},
			run: func(s *Service) error {
				_, err := s.AddComment(ctx, asAlice, 3, CommentInput{Author: "Alice", Body: "Still broken"})
				return err
			},
			msg: "Unable to add the comment.",
		},
		{
			name: "save report",
			store: &database.MockStore{
				GetReportFunc: func(_ context.Context, id int64) (*models.Report, error) {
					return &models.Report{ID: id, IssueID: 3, OwnerID: alice.ID, Ref: "3-1"}, nil
				},
				UpdateReportFunc: func(context.Context, *models.Report) error { return errStoreDown },
			},
			run: func(s *Service) error {
				in := validReport(3)
				in.ID = 8
				_, err := s.SaveReport(ctx, asAlice, in)
				return err
			},
			msg: "Unable to save the report.",
		},
		{
			name: "load issue",
			store: &database.MockStore{
				GetIssueFunc: func(context.Context, int64) (*models.Issue, error) { return nil, errStoreDown },
			},
			run: func(s *Service) error {
				_, err := s.GetIssue(ctx, asAlice, 3)
				return err
			},
			msg: "Unable to load the issue.",
		},
		{
			name: "settings",
			store: &database.MockStore{
				LoadSettingsFunc: func(context.Context) (map[string]string, error) { return nil, errStoreDown },
			},
			run: func(s *Service) error {
				_, err := s.UpdateSettings(ctx, NewActor(mod, settings.Parse(nil)), map[string]string{settings.OptPostsPerPage: "5"})
				return err
			},
			msg: "Settings could not be loaded.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := mockService(t, tt.store)
			err := tt.run(svc)
			requireKind(t, err, errs.KindDependency, tt.msg)
			assert.ErrorIs(t, err, errStoreDown)
		})
	}
}

func TestStoreFailures_MissingRowsAreNotFound(t *testing.T) {
	svc, _ := mockService(t, &database.MockStore{
		GetIssueFunc: func(context.Context, int64) (*models.Issue, error) {
			return nil, database.ErrNotFound
		},
	})
	_, err := svc.UpdateLocation(context.Background(), NewActor(alice, settings.Parse(nil)), 9, 56.9, 24.1)
	requireKind(t, err, errs.KindNotFound, "Issue not found.")
}

func TestSendReport_SentButNotRecorded(t *testing.T) {
	opts := map[string]string{settings.OptModeratorEmail: "moderator@example.com"}
	report := &models.Report{ID: 8, IssueID: 3, OwnerID: mod.ID, Ref: "3-1", Salt: "5f0c"}
	fields := validReport(3).ReportFields
	fields.Apply(report)

	var marked int
	svc, mailer := mockService(t, &database.MockStore{
		LoadSettingsFunc: func(context.Context) (map[string]string, error) { return opts, nil },
		GetReportFunc:    func(context.Context, int64) (*models.Report, error) { return report, nil },
		GetIssueFunc:     ownedIssue(mod.ID),
		MarkReportSentFunc: func(context.Context, int64, time.Time, *models.Transition) (*models.Report, error) {
			marked++
			return nil, errStoreDown
		},
	})

	_, err := svc.SendReport(context.Background(), NewActor(mod, settings.Parse(opts)), report.ID)
	requireKind(t, err, errs.KindDependency, "The report was sent but could not be marked as sent.")
	assert.Equal(t, 1, marked)
	require.Len(t, mailer.sent, 1, "delivery happens before the sent state is recorded")
	assert.Equal(t, "Issue report 3-1", mailer.sent[0].Subject)
}
