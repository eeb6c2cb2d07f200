package issues

import (
	"context"
	"strings"

	"issuesmap/internal/errs"
	"issuesmap/internal/events"
	"issuesmap/internal/models"
	"issuesmap/internal/permissions"
)

// CommentInput is a new comment on an issue.
type CommentInput struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// AddComment adds a comment to an issue. Registered users default to their
// display name as author.
func (s *Service) AddComment(ctx context.Context, a *Actor, issueID int64, in CommentInput) (*Result, error) {
	if !a.Can(permissions.Comment) {
		return nil, errs.Authorization("You are not authorised to comment on issues.")
	}
	issue, err := s.loadIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	body := models.StripTags(models.CapLen(strings.TrimSpace(in.Body), models.MaxCommentLen))
	if strings.TrimSpace(body) == "" {
		return nil, errs.Validation(models.ErrCommentRequired.Error())
	}
	author := models.CapLen(strings.TrimSpace(in.Author), models.MaxLen32)
	if author == "" && a.IsRegistered() {
		if u, err := s.store.GetUser(ctx, a.ID); err == nil {
			author = models.CapLen(displayName(u), models.MaxLen32)
		}
	}
	if author == "" {
		return nil, errs.Validation(models.ErrNameRequired.Error())
	}

	c := &models.Comment{IssueID: issue.ID, OwnerID: a.ID, Author: author, Body: body}
	if err := s.store.AddComment(ctx, c); err != nil {
		return nil, storeErr(err, "Issue not found.", "Unable to add the comment.")
	}

	s.publish(ctx, events.Event{Type: events.CommentAdded, IssueID: issue.ID, Status: issue.Status})
	return &Result{Message: "Your comment has been added.", Redirect: IssueURL(issue.ID, ""), Data: c}, nil
}

func displayName(u *models.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Login
}
