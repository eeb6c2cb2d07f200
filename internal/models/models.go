package models

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Field length limits
const (
	MaxLen32          = 32
	MaxLen64          = 64
	MaxLen256         = 256
	MaxLen1024        = 1024
	MaxDescriptionLen = 4096
	MaxReportLen      = 4096
	MaxCommentLen     = 4096
	MinPasswordLen    = 8
)

// Error definitions. The messages are shown to end users as-is.
var (
	ErrTitleRequired    = errors.New("Please enter an issue title.")
	ErrNameRequired     = errors.New("Please enter your name.")
	ErrInvalidEmail     = errors.New("Please enter a valid email address.")
	ErrGreetingRequired = errors.New("Please enter a greeting and recipient name.")
	ErrSenderRequired   = errors.New("Please enter your address and/or email address.")
	ErrBodyRequired     = errors.New("Please enter some content for the report.")
	ErrSignOffRequired  = errors.New("Please enter a sign off and your name.")
	ErrCommentRequired  = errors.New("Please enter a comment.")
	ErrLoginRequired    = errors.New("Please enter a login name.")
	ErrPasswordTooShort = errors.New("Passwords must be at least 8 characters.")
)

// Status is the workflow state of an issue.
type Status string

const (
	StatusUnreported    Status = "unreported"
	StatusReportCreated Status = "report_created"
	StatusReportSent    Status = "report_sent"
)

// Valid reports whether s is one of the three workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnreported, StatusReportCreated, StatusReportSent:
		return true
	}
	return false
}

// Transition moves an issue from one status to another.
type Transition struct {
	Name string `json:"name"`
	From Status `json:"from"`
	To   Status `json:"to"`
}

// ImageMeta describes one image attached to an issue.
type ImageMeta struct {
	Filename  string  `json:"filename"`
	Timestamp string  `json:"timestamp"`
	Lat       float64 `json:"latitude"`
	Lng       float64 `json:"longitude"`
}

// HasLocation reports whether the image carried GPS coordinates.
func (m ImageMeta) HasLocation() bool {
	return m.Lat != 0 || m.Lng != 0
}

// Issue is a user-submitted, geolocated problem report.
type Issue struct {
	ID            int64       `json:"id"`
	OwnerID       string      `json:"owner_id"`
	Category      string      `json:"category"`
	Status        Status      `json:"status"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	AddedBy       string      `json:"added_by"`
	Email         string      `json:"email_address,omitempty"`
	Lat           float64     `json:"latitude"`
	Lng           float64     `json:"longitude"`
	Images        []ImageMeta `json:"images"`
	FeaturedImage string      `json:"featured_image"`
	ReportSeq     int         `json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Owner returns the identity id stored as the issue's creator.
func (i *Issue) Owner() string { return i.OwnerID }

// Report is a letter generated from an issue. A report with IssueID 0 is a
// template used to prefill new reports.
type Report struct {
	ID             int64      `json:"id"`
	IssueID        int64      `json:"issue_id"`
	OwnerID        string     `json:"owner_id"`
	TemplateID     int64      `json:"template_id"`
	Category       string     `json:"category,omitempty"`
	RecipientName  string     `json:"recipient_name"`
	RecipientEmail string     `json:"recipient_email"`
	EmailBody      string     `json:"email_body"`
	ToAddress      string     `json:"to_address"`
	FromAddress    string     `json:"from_address"`
	FromEmail      string     `json:"from_email"`
	Greeting       string     `json:"greeting"`
	Addressee      string     `json:"addressee"`
	Body           string     `json:"body"`
	SignOff        string     `json:"sign_off"`
	AddedBy        string     `json:"added_by"`
	Date           string     `json:"date"`
	Ref            string     `json:"ref,omitempty"`
	RefSeq         int        `json:"-"`
	Salt           string     `json:"-"`
	SentAt         *time.Time `json:"date_sent,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Owner returns the identity id stored as the report's creator.
func (r *Report) Owner() string { return r.OwnerID }

// IsTemplate reports whether the report is a reusable template.
func (r *Report) IsTemplate() bool { return r.IssueID == 0 }

// ArtifactName returns the file name of the report's rendered PDF,
// or "" for templates and reports without a ref.
func (r *Report) ArtifactName() string {
	if r.IsTemplate() || r.Ref == "" || r.Salt == "" {
		return ""
	}
	return r.Ref + "-" + r.Salt + ".pdf"
}

// Comment is a note left on an issue.
type Comment struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issue_id"`
	OwnerID   string    `json:"owner_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// IssueFilter narrows issue listings.
type IssueFilter struct {
	Category string
	Status   Status
	OwnerID  string
	Page     int
	PerPage  int
}

// Bounds returns the zero-based offset and limit of the requested page.
// A non-positive PerPage means no limit.
func (f IssueFilter) Bounds() (offset, limit int) {
	if f.PerPage <= 0 {
		return 0, 0
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * f.PerPage, f.PerPage
}

// Matches reports whether the issue passes the category, status and owner filters.
func (f IssueFilter) Matches(issue *Issue) bool {
	if f.Category != "" && issue.Category != f.Category {
		return false
	}
	if f.Status != "" && issue.Status != f.Status {
		return false
	}
	if f.OwnerID != "" && issue.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// IssueDetails holds the user-editable fields of an issue.
type IssueDetails struct {
	Category    string `json:"issue_category"`
	Title       string `json:"issue_title"`
	Description string `json:"description"`
	AddedBy     string `json:"added_by"`
	Email       string `json:"email_address"`
}

// Normalize trims and caps every field.
func (d *IssueDetails) Normalize() {
	d.Category = CapLen(strings.TrimSpace(d.Category), MaxLen64)
	d.Title = CapLen(strings.TrimSpace(d.Title), MaxLen64)
	d.Description = CapLen(strings.TrimSpace(d.Description), MaxDescriptionLen)
	d.AddedBy = CapLen(strings.TrimSpace(d.AddedBy), MaxLen32)
	d.Email = strings.TrimSpace(d.Email)
}

// Validate checks the required fields.
func (d *IssueDetails) Validate() error {
	if d.Title == "" {
		return ErrTitleRequired
	}
	if d.AddedBy == "" {
		return ErrNameRequired
	}
	if d.Email != "" && !ValidEmail(d.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// ReportFields holds the user-editable fields of a report or template.
type ReportFields struct {
	TemplateID     int64  `json:"template_id"`
	Category       string `json:"category"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	EmailBody      string `json:"email_body"`
	ToAddress      string `json:"to_address"`
	FromAddress    string `json:"from_address"`
	FromEmail      string `json:"from_email"`
	Greeting       string `json:"greeting"`
	Addressee      string `json:"addressee"`
	Body           string `json:"body"`
	SignOff        string `json:"sign_off"`
	AddedBy        string `json:"added_by"`
}

var disallowedTag = regexp.MustCompile(`(?i)</?([a-z][a-z0-9]*)\b[^>]*>`)

var allowedTags = map[string]bool{"b": true, "i": true, "u": true, "a": true}

// StripTags removes every HTML tag except b, i, u and a.
func StripTags(s string) string {
	return disallowedTag.ReplaceAllStringFunc(s, func(tag string) string {
		m := disallowedTag.FindStringSubmatch(tag)
		if len(m) > 1 && allowedTags[strings.ToLower(m[1])] {
			return tag
		}
		return ""
	})
}

// Normalize trims and caps every field. For issue reports an invalid sender
// email is cleared so the address requirement can be checked.
func (f *ReportFields) Normalize(issueReport bool) {
	f.Category = CapLen(strings.TrimSpace(f.Category), MaxLen64)
	f.RecipientName = CapLen(strings.TrimSpace(f.RecipientName), MaxLen64)
	f.RecipientEmail = CapLen(strings.TrimSpace(f.RecipientEmail), MaxLen64)
	f.EmailBody = CapLen(strings.TrimSpace(f.EmailBody), MaxLen1024)
	f.ToAddress = CapLen(strings.TrimSpace(f.ToAddress), MaxLen256)
	f.FromAddress = CapLen(strings.TrimSpace(f.FromAddress), MaxLen256)
	f.FromEmail = CapLen(strings.TrimSpace(f.FromEmail), MaxLen64)
	f.Greeting = CapLen(strings.TrimSpace(f.Greeting), MaxLen64)
	f.Addressee = CapLen(strings.TrimSpace(f.Addressee), MaxLen64)
	f.Body = StripTags(CapLen(f.Body, MaxReportLen))
	f.SignOff = CapLen(strings.TrimSpace(f.SignOff), MaxLen64)
	f.AddedBy = CapLen(strings.TrimSpace(f.AddedBy), MaxLen64)

	if issueReport && !ValidEmail(f.FromEmail) {
		f.FromEmail = ""
	}
}

// Validate checks the required fields. Templates have none.
func (f *ReportFields) Validate(issueReport bool) error {
	if !issueReport {
		return nil
	}
	switch {
	case f.Greeting == "" || f.Addressee == "":
		return ErrGreetingRequired
	case f.FromAddress == "" && f.FromEmail == "":
		return ErrSenderRequired
	case strings.TrimSpace(f.Body) == "":
		return ErrBodyRequired
	case f.SignOff == "" || f.AddedBy == "":
		return ErrSignOffRequired
	}
	return nil
}

// Apply copies the fields onto a report.
func (f *ReportFields) Apply(r *Report) {
	r.TemplateID = f.TemplateID
	r.Category = f.Category
	r.RecipientName = f.RecipientName
	r.RecipientEmail = f.RecipientEmail
	r.EmailBody = f.EmailBody
	r.ToAddress = f.ToAddress
	r.FromAddress = f.FromAddress
	r.FromEmail = f.FromEmail
	r.Greeting = f.Greeting
	r.Addressee = f.Addressee
	r.Body = f.Body
	r.SignOff = f.SignOff
	r.AddedBy = f.AddedBy
}

// ValidEmail reports whether s is a bare, syntactically valid email address.
func ValidEmail(s string) bool {
	if s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s
}

// CapLen truncates s to at most n runes.
func CapLen(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
