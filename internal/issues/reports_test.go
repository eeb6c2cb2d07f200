package issues

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"issuesmap/internal/errs"
	"issuesmap/internal/events"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"
	"issuesmap/internal/settings"
	"issuesmap/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReport(issueID int64) ReportInput {
	return ReportInput{
		IssueID: issueID,
		ReportFields: models.ReportFields{
			RecipientName:  "City Council",
			RecipientEmail: "council@example.com",
			EmailBody:      "Please find the attached report.",
			ToAddress:      "Town Hall\nMain Square 1",
			FromAddress:    "Elm Street 5",
			FromEmail:      "alice@example.com",
			Greeting:       "Dear",
			Addressee:      "Sir or Madam",
			Body:           "The street light at the corner has been out for a week.",
			SignOff:        "Kind regards",
			AddedBy:        "Alice",
		},
	}
}

func sendOptions() map[string]string {
	return map[string]string{
		settings.OptModeratorEmail: "moderator@example.com",
		settings.OptModeratorsList: "42",
	}
}

var councillor = &models.User{ID: "42", Login: "council", Email: "council@example.com"}

func (e *testEnv) addReport(t *testing.T, owner *Actor, issueID int64) *models.Report {
	t.Helper()
	res, err := e.svc.SaveReport(context.Background(), owner, validReport(issueID))
	require.NoError(t, err)
	return res.Data.(*models.Report)
}

func TestSaveReport_FirstReportAdvancesStatus(t *testing.T) {
	e := setup(t, nil)
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)

	first := e.addReport(t, a, issue.ID)
	assert.Equal(t, "1-1", first.Ref)
	assert.Equal(t, "05.03.2024", first.Date)
	assert.NotEmpty(t, first.Salt)
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))

	second := e.addReport(t, a, issue.ID)
	assert.Equal(t, "1-2", second.Ref)
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))

	changes := 0
	for _, ev := range e.events.events {
		if ev.Type == events.IssueStatusChanged {
			changes++
			assert.Equal(t, models.StatusReportCreated, ev.Status)
		}
	}
	assert.Equal(t, 1, changes)
}

func TestSaveReport_Validation(t *testing.T) {
	e := setup(t, nil)
	issue := e.addIssue(t, alice)
	ctx := context.Background()

	in := validReport(issue.ID)
	in.Greeting = ""
	_, err := e.svc.SaveReport(ctx, e.actor(t, alice), in)
	requireKind(t, err, errs.KindValidation, models.ErrGreetingRequired.Error())

	in = validReport(issue.ID)
	in.TemplateID = 999
	_, err = e.svc.SaveReport(ctx, e.actor(t, alice), in)
	requireKind(t, err, errs.KindValidation, "Unknown report template.")

	_, err = e.svc.SaveReport(ctx, e.actor(t, alice), validReport(77))
	requireKind(t, err, errs.KindNotFound, "")

	assert.Equal(t, models.StatusUnreported, e.status(t, issue.ID))
}

func TestSaveReport_Templates(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	issue := e.addIssue(t, alice)

	tpl := ReportInput{ReportFields: models.ReportFields{Category: "lighting", Body: "Template body"}}
	res, err := e.svc.SaveReport(ctx, e.actor(t, alice), tpl)
	require.NoError(t, err)
	created := res.Data.(*models.Report)
	assert.True(t, created.IsTemplate())
	assert.Empty(t, created.Ref)
	assert.Equal(t, models.StatusUnreported, e.status(t, issue.ID))

	list, err := e.svc.ListTemplates(ctx, e.actor(t, anon), "lighting")
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := e.svc.GetReport(ctx, e.actor(t, anon), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Template body", got.Body)

	in := validReport(issue.ID)
	in.TemplateID = created.ID
	_, err = e.svc.SaveReport(ctx, e.actor(t, alice), in)
	require.NoError(t, err)

	_, err = e.svc.DeleteReport(ctx, e.actor(t, mod), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))
}

func TestSaveReport_TemplatesFollowAddIssue(t *testing.T) {
	e := setup(t, map[string]string{settings.OptCanLoggedInAddIssue: "false"})
	ctx := context.Background()
	tpl := ReportInput{ReportFields: models.ReportFields{Category: "lighting", Body: "Template body"}}

	_, err := e.svc.SaveReport(ctx, e.actor(t, alice), tpl)
	requireKind(t, err, errs.KindAuthorization, "You are not authorised to add new reports.")

	res, err := e.svc.SaveReport(ctx, e.actor(t, mod), tpl)
	require.NoError(t, err)
	assert.True(t, res.Data.(*models.Report).IsTemplate())
}

func TestSaveReport_EditRemovesDraftPDF(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	r := e.addReport(t, a, issue.ID)

	res, err := e.svc.DownloadReport(ctx, a, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "/files/"+r.ArtifactName(), res.Redirect)
	exists, err := e.bucket.Exists(ctx, r.ArtifactName())
	require.NoError(t, err)
	require.True(t, exists)

	in := validReport(issue.ID)
	in.ID = r.ID
	in.Body = "Updated body"
	_, err = e.svc.SaveReport(ctx, e.actor(t, bob), in)
	requireKind(t, err, errs.KindAuthorization, "You are not authorised to edit this information.")

	res, err = e.svc.SaveReport(ctx, a, in)
	require.NoError(t, err)
	updated := res.Data.(*models.Report)
	assert.Equal(t, "Updated body", updated.Body)
	assert.Equal(t, r.Ref, updated.Ref)

	exists, err = e.bucket.Exists(ctx, r.ArtifactName())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDownloadReport_Permissions(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	r := e.addReport(t, e.actor(t, alice), issue.ID)

	_, err := e.svc.DownloadReport(ctx, e.actor(t, bob), r.ID)
	requireKind(t, err, errs.KindAuthorization, "You are not authorised to download this report.")

	_, err = e.svc.DownloadReport(ctx, e.actor(t, mod), r.ID)
	assert.NoError(t, err)
}

func TestDeleteReport_LastReportRegressesStatus(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	first := e.addReport(t, a, issue.ID)
	second := e.addReport(t, a, issue.ID)

	_, err := e.svc.DeleteReport(ctx, e.actor(t, bob), first.ID)
	requireKind(t, err, errs.KindAuthorization, "You are not authorised to delete the report.")

	res, err := e.svc.DeleteReport(ctx, a, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "/issues/1", res.Redirect)
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))

	_, err = e.svc.DeleteReport(ctx, a, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnreported, e.status(t, issue.ID))

	// refs are never reused
	third := e.addReport(t, a, issue.ID)
	assert.Equal(t, "1-3", third.Ref)
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))
}

func TestSendReport_ToModeratorWithoutSendToAnyone(t *testing.T) {
	e := setup(t, sendOptions(), councillor)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	require.True(t, a.Settings.Directory().IsModerator("42"))
	require.False(t, a.Can(permissions.SendReportsToAnyone))
	r := e.addReport(t, a, issue.ID)

	res, err := e.svc.SendReport(ctx, a, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "The report has been sent to council@example.com", res.Message)
	assert.Equal(t, models.StatusReportSent, e.status(t, issue.ID))

	sent := res.Data.(*models.Report)
	require.NotNil(t, sent.SentAt)
	assert.True(t, sent.SentAt.Equal(testNow))

	require.Len(t, e.mailer.sent, 1)
	msg := e.mailer.sent[0]
	assert.Equal(t, "Issues Map", msg.From.Name)
	assert.Equal(t, "moderator@example.com", msg.From.Address)
	assert.Equal(t, "council@example.com", msg.To[0].Address)
	assert.Equal(t, "alice@example.com", msg.Cc[0].Address)
	assert.Equal(t, "Issue report 1-1", msg.Subject)
	assert.Equal(t, "Please find the attached report.\n\nThis email has been sent automatically from https://issues.example.com.", msg.Body)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, r.ArtifactName(), msg.Attachments[0].Name)
	assert.Equal(t, "%PDF", string(msg.Attachments[0].Data[:4]))

	assert.True(t, workflow.ValidHistory([]models.Status{
		models.StatusUnreported, models.StatusReportCreated, models.StatusReportSent,
	}))
}

func TestSendReport_ResendKeepsStatus(t *testing.T) {
	e := setup(t, sendOptions(), councillor)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	r := e.addReport(t, a, issue.ID)

	_, err := e.svc.SendReport(ctx, a, r.ID)
	require.NoError(t, err)
	_, err = e.svc.SendReport(ctx, a, r.ID)
	require.NoError(t, err)

	assert.Len(t, e.mailer.sent, 2)
	assert.Equal(t, models.StatusReportSent, e.status(t, issue.ID))

	// a new report after sending does not move the issue back
	e.addReport(t, a, issue.ID)
	assert.Equal(t, models.StatusReportSent, e.status(t, issue.ID))
}

func TestSendReport_NoModeratorEmail(t *testing.T) {
	e := setup(t, map[string]string{settings.OptModeratorsList: "42"}, councillor)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	r := e.addReport(t, a, issue.ID)

	_, err := e.svc.SendReport(ctx, a, r.ID)
	requireKind(t, err, errs.KindConflict, permissions.MsgNoModeratorEmail)
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))
	assert.Empty(t, e.mailer.sent)

	stored, err := e.store.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.SentAt)
}

func TestSendReport_Guards(t *testing.T) {
	stranger := &models.User{ID: "7", Login: "other", Email: "other@example.com"}

	tests := []struct {
		name    string
		opts    map[string]string
		actor   func(e *testEnv, t *testing.T) *Actor
		mutate  func(in *ReportInput)
		kind    errs.Kind
		wantMsg string
	}{
		{
			name:    "recipient is not a moderator",
			mutate:  func(in *ReportInput) { in.RecipientEmail = "other@example.com" },
			kind:    errs.KindAuthorization,
			wantMsg: permissions.MsgOnlyToModerators,
		},
		{
			name:    "invalid sender email",
			mutate:  func(in *ReportInput) { in.FromEmail = "" },
			kind:    errs.KindValidation,
			wantMsg: permissions.MsgInvalidEmails,
		},
		{
			name:    "only registered recipients",
			opts:    map[string]string{settings.OptCanLoggedInSendReportsToAnyone: "true", settings.OptOnlySendReportsToUsers: "true"},
			mutate:  func(in *ReportInput) { in.RecipientEmail = "nobody@example.com" },
			kind:    errs.KindAuthorization,
			wantMsg: permissions.MsgOnlyToUsers,
		},
		{
			name:    "sending disabled",
			opts:    map[string]string{settings.OptCanLoggedInSendReports: "false"},
			kind:    errs.KindAuthorization,
			wantMsg: permissions.MsgCannotSend,
		},
		{
			name:    "not the owner",
			actor:   func(e *testEnv, t *testing.T) *Actor { return e.actor(t, bob) },
			kind:    errs.KindAuthorization,
			wantMsg: permissions.MsgCannotSend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := sendOptions()
			for k, v := range tt.opts {
				opts[k] = v
			}
			e := setup(t, opts, councillor, stranger)
			ctx := context.Background()
			issue := e.addIssue(t, alice)

			in := validReport(issue.ID)
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			res, err := e.svc.SaveReport(ctx, e.actor(t, alice), in)
			require.NoError(t, err)
			r := res.Data.(*models.Report)

			a := e.actor(t, alice)
			if tt.actor != nil {
				a = tt.actor(e, t)
			}
			_, err = e.svc.SendReport(ctx, a, r.ID)
			requireKind(t, err, tt.kind, tt.wantMsg)
			assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))
			assert.Empty(t, e.mailer.sent)
		})
	}
}

func TestSendReport_DeliveryFailureKeepsStatus(t *testing.T) {
	e := setup(t, sendOptions(), councillor)
	ctx := context.Background()
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	r := e.addReport(t, a, issue.ID)
	e.mailer.err = errors.New("smtp: connection refused")

	_, err := e.svc.SendReport(ctx, a, r.ID)
	requireKind(t, err, errs.KindDependency, "Unable to send the report.")
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))
}

func TestSendReport_DemoMode(t *testing.T) {
	e := setup(t, sendOptions(), councillor)
	e.svc.demo = true
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)
	r := e.addReport(t, a, issue.ID)

	_, err := e.svc.SendReport(context.Background(), a, r.ID)
	requireKind(t, err, errs.KindConflict, "Report sending is disabled in demo mode.")
	assert.Equal(t, models.StatusReportCreated, e.status(t, issue.ID))
}

func TestSaveReport_ConcurrentRefsAreUnique(t *testing.T) {
	e := setup(t, nil)
	issue := e.addIssue(t, alice)
	a := e.actor(t, alice)

	const n = 20
	refs := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.svc.SaveReport(context.Background(), a, validReport(issue.ID))
			if assert.NoError(t, err) {
				refs <- res.Data.(*models.Report).Ref
			}
		}()
	}
	wg.Wait()
	close(refs)

	seen := map[string]bool{}
	for ref := range refs {
		assert.False(t, seen[ref], "duplicate ref %s", ref)
		seen[ref] = true
	}
	assert.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[fmt.Sprintf("1-%d", i)])
	}
}
