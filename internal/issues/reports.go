package issues

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"

	"issuesmap/internal/database"
	"issuesmap/internal/email"
	"issuesmap/internal/errs"
	"issuesmap/internal/events"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"
	"issuesmap/internal/reports"
	"issuesmap/internal/workflow"

	"github.com/rs/zerolog/log"
)

var errNoArtifacts = errors.New("issues: no artifact storage configured")

const (
	msgCannotEditReport = "You are not authorised to edit this information."
	msgCannotAddReport  = "You are not authorised to add new reports."
	msgNoPDF            = "Unable to create a PDF file for this report."
)

// ReportInput is a new or edited report. ID 0 creates a report; IssueID 0
// makes it a template.
type ReportInput struct {
	ID      int64 `json:"-"`
	IssueID int64 `json:"issue_id"`
	models.ReportFields
}

// SaveReport creates or edits a report or template. The first report of an
// issue moves it to report_created in the same store transaction.
func (s *Service) SaveReport(ctx context.Context, a *Actor, in ReportInput) (*Result, error) {
	if in.ID != 0 {
		return s.updateReport(ctx, a, in)
	}
	return s.createReport(ctx, a, in)
}

func (s *Service) createReport(ctx context.Context, a *Actor, in ReportInput) (*Result, error) {
	if !a.Can(permissions.AddIssue) {
		return nil, errs.Authorization(msgCannotAddReport)
	}
	var issue *models.Issue
	if in.IssueID != 0 {
		var err error
		if issue, err = s.loadIssue(ctx, in.IssueID); err != nil {
			return nil, err
		}
	}

	f := in.ReportFields
	if err := s.prepareFields(ctx, &f, issue != nil); err != nil {
		return nil, err
	}

	r := &models.Report{
		IssueID: in.IssueID,
		OwnerID: a.ID,
		Salt:    reports.NewSalt(),
		Date:    s.now().Format(models.LetterDateFormat),
	}
	f.Apply(r)

	var advance *models.Transition
	if issue != nil {
		t := workflow.ReportCreated
		advance = &t
	}
	if err := s.store.CreateReport(ctx, r, advance); err != nil {
		return nil, storeErr(err, "Issue not found.", "Unable to save the report.")
	}

	log.Info().
		Int64("report_id", r.ID).
		Int64("issue_id", r.IssueID).
		Str("ref", r.Ref).
		Msg("issues: report added")

	if issue != nil {
		next, changed, _ := workflow.Apply(issue.Status, *advance)
		s.publish(ctx, events.Event{Type: events.ReportCreated, IssueID: issue.ID, ReportID: r.ID, Status: next})
		if changed {
			s.publishStatus(ctx, issue, next)
		}
	}
	return &Result{Message: "The report has been saved.", Redirect: ReportURL(r.ID), Data: r}, nil
}

func (s *Service) updateReport(ctx context.Context, a *Actor, in ReportInput) (*Result, error) {
	r, err := s.loadReport(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(r) {
		return nil, errs.Authorization(msgCannotEditReport)
	}

	f := in.ReportFields
	if err := s.prepareFields(ctx, &f, !r.IsTemplate()); err != nil {
		return nil, err
	}

	// An unsent draft is rendered again on the next download.
	if !r.IsTemplate() && r.SentAt == nil && s.artifacts != nil {
		if err := s.artifacts.Remove(ctx, r); err != nil {
			log.Warn().Err(err).Int64("report_id", r.ID).Msg("issues: stale report pdf remains")
		}
	}

	f.Apply(r)
	if !r.IsTemplate() {
		r.Date = s.now().Format(models.LetterDateFormat)
	}
	if err := s.store.UpdateReport(ctx, r); err != nil {
		return nil, storeErr(err, "Report not found.", "Unable to save the report.")
	}
	return &Result{Message: "The report has been saved.", Redirect: ReportURL(r.ID), Data: r}, nil
}

func (s *Service) prepareFields(ctx context.Context, f *models.ReportFields, issueReport bool) error {
	f.Normalize(issueReport)
	if err := f.Validate(issueReport); err != nil {
		return errs.Validation(err.Error())
	}
	if f.TemplateID == 0 {
		return nil
	}
	tpl, err := s.store.GetReport(ctx, f.TemplateID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return errs.Validation("Unknown report template.")
	case err != nil:
		return errs.Dependency("Unable to load the report template.", err)
	case !tpl.IsTemplate():
		return errs.Validation("Unknown report template.")
	}
	return nil
}

// GetReport returns a report for editing. Templates are readable by anyone
// who may add reports.
func (s *Service) GetReport(ctx context.Context, a *Actor, id int64) (*models.Report, error) {
	r, err := s.loadReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTemplate() && a.Can(permissions.AddIssue) {
		return r, nil
	}
	if !a.CanEdit(r) {
		return nil, errs.Authorization(msgCannotEditReport)
	}
	return r, nil
}

// ListTemplates returns the report templates of a category, or all of them.
func (s *Service) ListTemplates(ctx context.Context, a *Actor, category string) ([]*models.Report, error) {
	if !a.Can(permissions.AddIssue) {
		return nil, errs.Authorization(msgCannotAddReport)
	}
	list, err := s.store.ListTemplates(ctx, category)
	if err != nil {
		return nil, errs.Dependency("Unable to list report templates.", err)
	}
	return list, nil
}

// DeleteReport removes a report and its PDF. Deleting the last report of an
// issue moves it back to unreported.
func (s *Service) DeleteReport(ctx context.Context, a *Actor, id int64) (*Result, error) {
	r, err := s.loadReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanEdit(r) {
		return nil, errs.Authorization("You are not authorised to delete the report.")
	}

	var (
		issue   *models.Issue
		regress *models.Transition
	)
	if !r.IsTemplate() {
		if issue, err = s.loadIssue(ctx, r.IssueID); err != nil {
			return nil, err
		}
		t := workflow.LastReportDeleted
		regress = &t
	}

	removed, err := s.store.DeleteReport(ctx, id, regress)
	if err != nil {
		return nil, storeErr(err, "Report not found.", "Unable to delete the report.")
	}
	if s.artifacts != nil {
		if err := s.artifacts.Remove(ctx, removed); err != nil {
			log.Warn().Err(err).Int64("report_id", id).Msg("issues: pdf of deleted report remains")
		}
	}

	log.Info().Int64("report_id", id).Int64("issue_id", removed.IssueID).Msg("issues: report deleted")
	if issue == nil {
		return &Result{Message: "The report has been deleted.", Redirect: "/"}, nil
	}

	status := issue.Status
	if after, err := s.store.GetIssue(ctx, issue.ID); err == nil {
		status = after.Status
	}
	s.publish(ctx, events.Event{Type: events.ReportDeleted, IssueID: issue.ID, ReportID: id, Status: status})
	if status != issue.Status {
		s.publishStatus(ctx, issue, status)
	}
	return &Result{Message: "The report has been deleted.", Redirect: IssueURL(issue.ID, ""), Data: map[string]models.Status{"status": status}}, nil
}

// DownloadReport renders the report PDF if needed and returns its URL.
func (s *Service) DownloadReport(ctx context.Context, a *Actor, id int64) (*Result, error) {
	r, err := s.loadReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTemplate() {
		return nil, errs.Validation(msgNoPDF)
	}
	if !a.CanEdit(r) {
		return nil, errs.Authorization("You are not authorised to download this report.")
	}
	issue, err := s.loadIssue(ctx, r.IssueID)
	if err != nil {
		return nil, err
	}

	name, err := s.renderPDF(ctx, a, r, issue)
	if err != nil {
		return nil, err
	}
	link := s.fileURL(name)
	return &Result{Redirect: link, Data: map[string]string{"url": link}}, nil
}

func (s *Service) reportImages(a *Actor, issue *models.Issue) []models.ImageMeta {
	if !a.Settings.IncludeImagesInReports {
		return nil
	}
	return issue.Images
}

// SendReport emails a report with its PDF to the recipient, copying the
// sender. The issue moves to report_sent only after delivery succeeded.
// Sending again is allowed and refreshes the sent date.
func (s *Service) SendReport(ctx context.Context, a *Actor, id int64) (*Result, error) {
	if s.demo {
		return nil, errs.Conflict("Report sending is disabled in demo mode.")
	}

	r, err := s.loadReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTemplate() || !a.CanEdit(r) {
		return nil, errs.Authorization(permissions.MsgCannotSend)
	}
	issue, err := s.loadIssue(ctx, r.IssueID)
	if err != nil {
		return nil, err
	}

	check, err := s.sendCheck(ctx, a, r)
	if err != nil {
		return nil, err
	}
	if err := a.perms.CanSendReportTo(a.Identity, check); err != nil {
		return nil, err
	}

	name, err := s.renderPDF(ctx, a, r, issue)
	if err != nil {
		return nil, err
	}
	pdf, err := s.readArtifact(ctx, r)
	if err != nil {
		return nil, errs.Dependency(msgNoPDF, err)
	}

	msg := &email.Message{
		From:    mail.Address{Name: "Issues Map", Address: a.Settings.Permissions.ModeratorEmail},
		To:      []mail.Address{{Name: r.RecipientName, Address: r.RecipientEmail}},
		Cc:      []mail.Address{{Name: r.AddedBy, Address: r.FromEmail}},
		Subject: "Issue report " + r.Ref,
		Body:    fmt.Sprintf("%s\n\nThis email has been sent automatically from %s.", r.EmailBody, s.siteURL),
		Attachments: []email.Attachment{
			{Name: name, ContentType: "application/pdf", Data: pdf},
		},
	}
	if s.mailer == nil {
		return nil, errs.Dependency("Unable to send the report.", email.ErrNotConfigured)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Error().Err(err).Int64("report_id", r.ID).Msg("issues: report email failed")
		return nil, errs.Dependency("Unable to send the report.", err)
	}

	t := workflow.ReportSent
	sent, err := s.store.MarkReportSent(ctx, r.ID, s.now().UTC(), &t)
	if err != nil {
		log.Error().Err(err).Int64("report_id", r.ID).Msg("issues: report sent but not recorded")
		return nil, storeErr(err, "Report not found.", "The report was sent but could not be marked as sent.")
	}

	log.Info().
		Int64("report_id", r.ID).
		Int64("issue_id", issue.ID).
		Str("ref", r.Ref).
		Msg("issues: report sent")

	next, changed, _ := workflow.Apply(issue.Status, t)
	s.publish(ctx, events.Event{Type: events.ReportSent, IssueID: issue.ID, ReportID: r.ID, Status: next})
	if changed {
		s.publishStatus(ctx, issue, next)
	}
	return &Result{
		Message:  fmt.Sprintf("The report has been sent to %s", r.RecipientEmail),
		Redirect: ReportURL(r.ID),
		Data:     sent,
	}, nil
}

// sendCheck looks up whether the recipient is a registered user and a moderator.
func (s *Service) sendCheck(ctx context.Context, a *Actor, r *models.Report) (permissions.SendCheck, error) {
	check := permissions.SendCheck{SenderEmail: r.FromEmail, RecipientEmail: r.RecipientEmail}
	if !models.ValidEmail(r.RecipientEmail) {
		return check, nil
	}
	user, err := s.store.FindUserByEmail(ctx, r.RecipientEmail)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return check, nil
	case err != nil:
		return check, errs.Dependency("Unable to send the report.", err)
	case user != nil:
		check.RecipientIsUser = true
		check.RecipientIsModerator = a.Settings.Directory().IsModerator(user.ID)
	}
	return check, nil
}

// renderPDF makes sure the report PDF exists and returns its object name.
func (s *Service) renderPDF(ctx context.Context, a *Actor, r *models.Report, issue *models.Issue) (string, error) {
	if s.artifacts == nil {
		return "", errs.Dependency(msgNoPDF, errNoArtifacts)
	}
	name, err := s.artifacts.Ensure(ctx, r, s.reportImages(a, issue), false)
	if err != nil {
		return "", errs.Dependency(msgNoPDF, err)
	}
	return name, nil
}

func (s *Service) readArtifact(ctx context.Context, r *models.Report) ([]byte, error) {
	rc, err := s.artifacts.Open(ctx, r)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
