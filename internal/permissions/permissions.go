// Package permissions evaluates what an identity may do. Moderators may do
// everything; everyone else is checked against a capability matrix keyed by
// identity kind, plus ownership for edits of a specific post.
package permissions

import (
	"reflect"

	"issuesmap/internal/errs"
	"issuesmap/internal/identity"
	"issuesmap/internal/models"
)

// Capability is an action gated by the permission matrix.
type Capability string

const (
	AddIssue            Capability = "add_issue"
	UploadImages        Capability = "upload_images"
	Comment             Capability = "comment"
	SendReports         Capability = "send_reports"
	SendReportsToAnyone Capability = "send_reports_to_anyone"
)

// AllCapabilities lists the capabilities in display order.
func AllCapabilities() []Capability {
	return []Capability{AddIssue, UploadImages, Comment, SendReports, SendReportsToAnyone}
}

// Config holds the permission matrix and the options that guard report sending.
type Config struct {
	Registered             map[Capability]bool
	Anonymous              map[Capability]bool
	ModeratorEmail         string
	OnlySendReportsToUsers bool
}

// DefaultConfig returns the out-of-the-box matrix.
func DefaultConfig() Config {
	return Config{
		Registered: map[Capability]bool{
			AddIssue:            true,
			UploadImages:        true,
			Comment:             true,
			SendReports:         true,
			SendReportsToAnyone: false,
		},
		Anonymous: map[Capability]bool{
			AddIssue:            true,
			UploadImages:        true,
			Comment:             false,
			SendReports:         false,
			SendReportsToAnyone: false,
		},
	}
}

// Post is anything with a stored owner identity.
type Post interface {
	Owner() string
}

// SendCheck describes a report about to be emailed.
type SendCheck struct {
	SenderEmail          string
	RecipientEmail       string
	RecipientIsModerator bool
	RecipientIsUser      bool
}

// User-facing messages
const (
	MsgNotAuthorised    = "You are not authorised to do this."
	MsgCannotSend       = "You are not authorised to send this report."
	MsgNoModeratorEmail = "Reports cannot be sent until a moderator email address is configured."
	MsgInvalidEmails    = "Please specify valid email addresses in the report for both yourself and the recipient."
	MsgOnlyToUsers      = "Reports can only be sent to registered users."
	MsgOnlyToModerators = "You are only authorised to send reports to moderators."
)

// Evaluator answers permission questions against one Config snapshot.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator for cfg.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Config returns the snapshot the evaluator was built from.
func (e *Evaluator) Config() Config { return e.cfg }

// Can reports whether id may perform c.
func (e *Evaluator) Can(id identity.Identity, c Capability) bool {
	if id.IsModerator {
		return true
	}
	switch id.Kind {
	case identity.KindRegistered:
		return e.cfg.Registered[c]
	case identity.KindAnonymous:
		return e.cfg.Anonymous[c]
	}
	return false
}

// Capabilities returns the effective capability set of id.
func (e *Evaluator) Capabilities(id identity.Identity) map[Capability]bool {
	out := make(map[Capability]bool, len(AllCapabilities()))
	for _, c := range AllCapabilities() {
		out[c] = e.Can(id, c)
	}
	return out
}

// CanEditPost reports whether id may edit or delete post. A missing post is
// never editable.
func (e *Evaluator) CanEditPost(id identity.Identity, post Post) bool {
	if isNil(post) {
		return false
	}
	if id.IsModerator {
		return true
	}
	if id.ID == "" {
		return false
	}
	owner := post.Owner()
	switch id.Kind {
	case identity.KindRegistered:
		return owner == id.ID
	case identity.KindAnonymous:
		return owner != "" && owner == id.ID
	}
	return false
}

// CanSendReportTo returns nil when id may email a report as described by
// check, or a classified error naming the first failed requirement.
func (e *Evaluator) CanSendReportTo(id identity.Identity, check SendCheck) error {
	if !e.Can(id, SendReports) {
		return errs.Authorization(MsgCannotSend)
	}
	if !models.ValidEmail(e.cfg.ModeratorEmail) {
		return errs.Conflict(MsgNoModeratorEmail)
	}
	if !models.ValidEmail(check.SenderEmail) || !models.ValidEmail(check.RecipientEmail) {
		return errs.Validation(MsgInvalidEmails)
	}
	if e.cfg.OnlySendReportsToUsers && !check.RecipientIsUser && !check.RecipientIsModerator {
		return errs.Authorization(MsgOnlyToUsers)
	}
	if !check.RecipientIsModerator && !e.Can(id, SendReportsToAnyone) {
		return errs.Authorization(MsgOnlyToModerators)
	}
	return nil
}

func isNil(p Post) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
