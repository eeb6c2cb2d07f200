package handlers

import (
	"context"
	"net/http"
	"net/url"

	"issuesmap/internal/issues"
	"issuesmap/internal/models"
)

func decodeReport(r *http.Request) (issues.ReportInput, error) {
	var in issues.ReportInput
	err := decodeRequest(r, &in, func(form url.Values) {
		in.IssueID = formInt(form, "issue_id")
		in.ReportFields = models.ReportFields{
			TemplateID:     formInt(form, "template_id"),
			Category:       form.Get("category"),
			RecipientName:  form.Get("recipient_name"),
			RecipientEmail: form.Get("recipient_email"),
			EmailBody:      form.Get("email_body"),
			ToAddress:      form.Get("to_address"),
			FromAddress:    form.Get("from_address"),
			FromEmail:      form.Get("from_email"),
			Greeting:       form.Get("greeting"),
			Addressee:      form.Get("addressee"),
			Body:           form.Get("body"),
			SignOff:        form.Get("sign_off"),
			AddedBy:        form.Get("added_by"),
		}
	})
	return in, err
}

// HandleReportView returns a report or template.
func (h *Handler) HandleReportView(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "get_report", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		report, err := h.issues.GetReport(ctx, a, id)
		if err != nil {
			return nil, err
		}
		return &issues.Result{Data: report}, nil
	})
}

// HandleTemplateList returns the report templates of a category.
func (h *Handler) HandleTemplateList(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "list_templates", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		templates, err := h.issues.ListTemplates(ctx, a, r.URL.Query().Get("category"))
		if err != nil {
			return nil, err
		}
		return &issues.Result{Data: templates}, nil
	})
}

// HandleReportCreate creates an issue report, or a template when no issue is given.
func (h *Handler) HandleReportCreate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "create_report", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		in, err := decodeReport(r)
		if err != nil {
			return nil, err
		}
		in.ID = 0
		return h.issues.SaveReport(ctx, a, in)
	})
}

// HandleReportUpdate edits a report or template.
func (h *Handler) HandleReportUpdate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "edit_report", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		in, err := decodeReport(r)
		if err != nil {
			return nil, err
		}
		in.ID = id
		return h.issues.SaveReport(ctx, a, in)
	})
}

// HandleReportDelete removes a report or template.
func (h *Handler) HandleReportDelete(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "delete_report", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		return h.issues.DeleteReport(ctx, a, id)
	})
}

// HandleReportSend emails a report with its PDF attached.
func (h *Handler) HandleReportSend(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "send_report", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		return h.issues.SendReport(ctx, a, id)
	})
}

// HandleReportDownload renders the report PDF if needed and returns its URL.
func (h *Handler) HandleReportDownload(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "download_report", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		return h.issues.DownloadReport(ctx, a, id)
	})
}
