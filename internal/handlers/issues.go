package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"issuesmap/internal/errs"
	"issuesmap/internal/issues"
	"issuesmap/internal/media"
	"issuesmap/internal/middleware"
	"issuesmap/internal/models"
)

func listQuery(r *http.Request) issues.ListQuery {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	return issues.ListQuery{
		Category: q.Get("category"),
		Status:   models.Status(q.Get("status")),
		Own:      formBool(q, "own"),
		Page:     page,
	}
}

func decodeIssueDetails(r *http.Request) (models.IssueDetails, error) {
	var d models.IssueDetails
	err := decodeRequest(r, &d, func(form url.Values) {
		d.Category = form.Get("issue_category")
		d.Title = form.Get("issue_title")
		d.Description = form.Get("description")
		d.AddedBy = form.Get("added_by")
		d.Email = form.Get("email_address")
	})
	return d, err
}

// HandleIssueList returns one page of issues.
func (h *Handler) HandleIssueList(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "list_issues", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		list, err := h.issues.ListIssues(ctx, a, listQuery(r))
		if err != nil {
			return nil, err
		}
		return &issues.Result{Data: list}, nil
	})
}

// HandleMapItems returns marker data for every matching issue.
func (h *Handler) HandleMapItems(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "map_items", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		data, err := h.issues.MapItems(ctx, a, listQuery(r))
		if err != nil {
			return nil, err
		}
		return &issues.Result{Data: data}, nil
	})
}

// HandleIssueView returns an issue with its reports and comments.
func (h *Handler) HandleIssueView(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "get_issue", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		view, err := h.issues.GetIssue(ctx, a, id)
		if err != nil {
			return nil, err
		}
		return &issues.Result{Data: view}, nil
	})
}

// HandleIssueCreate adds an issue owned by the acting identity.
func (h *Handler) HandleIssueCreate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "add_issue", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		d, err := decodeIssueDetails(r)
		if err != nil {
			return nil, err
		}
		return h.issues.AddIssue(ctx, a, d)
	})
}

// HandleIssueUpdate edits the details of an issue.
func (h *Handler) HandleIssueUpdate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "edit_issue", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		d, err := decodeIssueDetails(r)
		if err != nil {
			return nil, err
		}
		return h.issues.UpdateIssueDetails(ctx, a, id, d)
	})
}

// HandleIssueDelete removes an issue with everything attached to it.
func (h *Handler) HandleIssueDelete(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "delete_issue", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		return h.issues.DeleteIssue(ctx, a, id)
	})
}

type locationRequest struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// HandleIssueLocation sets the map position of an issue.
func (h *Handler) HandleIssueLocation(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "set_location", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		var req locationRequest
		err = decodeRequest(r, &req, func(form url.Values) {
			req.Lat = formFloat(form, "latitude")
			req.Lng = formFloat(form, "longitude")
		})
		if err != nil {
			return nil, err
		}
		return h.issues.UpdateLocation(ctx, a, id, req.Lat, req.Lng)
	})
}

// HandleCommentCreate adds a comment to an issue.
func (h *Handler) HandleCommentCreate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "add_comment", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		var in issues.CommentInput
		err = decodeRequest(r, &in, func(form url.Values) {
			in.Author = form.Get("author")
			in.Body = form.Get("body")
		})
		if err != nil {
			return nil, err
		}
		return h.issues.AddComment(ctx, a, id, in)
	})
}

// HandleUpload stores an image as a temporary upload.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "upload_image", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		if err := r.ParseMultipartForm(middleware.MaxUploadSize); err != nil {
			return nil, errs.Wrap(errs.KindValidation, "The uploaded file is too large or malformed.", err)
		}
		file, header, err := r.FormFile(media.UploadField)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, "No file was uploaded.", err)
		}
		defer file.Close()
		return h.issues.UploadImage(ctx, a, header.Filename, file)
	})
}

type filenamesRequest struct {
	Filenames []string `json:"filenames"`
	View      string   `json:"view"`
}

func decodeFilenames(r *http.Request) (filenamesRequest, error) {
	var req filenamesRequest
	err := decodeRequest(r, &req, func(form url.Values) {
		req.Filenames = form["filenames"]
		req.View = form.Get("view")
	})
	return req, err
}

// HandleUploadCancel discards temporary uploads that were never attached.
func (h *Handler) HandleUploadCancel(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "cancel_uploads", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		req, err := decodeFilenames(r)
		if err != nil {
			return nil, err
		}
		return h.issues.CancelUploads(ctx, a, req.Filenames)
	})
}

// HandleImagesAdd attaches temporary uploads to an issue.
func (h *Handler) HandleImagesAdd(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "add_images", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		req, err := decodeFilenames(r)
		if err != nil {
			return nil, err
		}
		return h.issues.AddImages(ctx, a, id, req.Filenames, req.View)
	})
}

// HandleImageDelete removes one image of an issue.
func (h *Handler) HandleImageDelete(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "delete_image", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		return h.issues.DeleteImage(ctx, a, id, r.PathValue("filename"))
	})
}

type featuredRequest struct {
	Filename string `json:"filename"`
}

// HandleFeaturedImage picks the image shown on the map marker.
func (h *Handler) HandleFeaturedImage(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, "set_featured_image", func(ctx context.Context, a *issues.Actor) (*issues.Result, error) {
		id, err := pathID(r, "id")
		if err != nil {
			return nil, err
		}
		var req featuredRequest
		err = decodeRequest(r, &req, func(form url.Values) {
			req.Filename = form.Get("filename")
		})
		if err != nil {
			return nil, err
		}
		return h.issues.SetFeaturedImage(ctx, a, id, req.Filename)
	})
}
