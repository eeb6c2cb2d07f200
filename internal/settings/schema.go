// Package settings holds the runtime options an admin can change: map
// defaults, the permission matrix and moderator configuration. Options are
// stored as string key/values and parsed through a typed schema.
package settings

import (
	"fmt"
	"strconv"
	"strings"

	"issuesmap/internal/models"
)

// Option names as persisted in the store.
const (
	OptCentreLat              = "im_centre_lat"
	OptCentreLng              = "im_centre_lng"
	OptZoomMapView            = "im_zoom_map_view"
	OptZoomIssueView          = "im_zoom_issue_view"
	OptIncludeImagesInReports = "im_include_images_in_reports"
	OptPostsPerPage           = "im_posts_per_page"

	OptCanLoggedInAddIssue            = "im_can_logged_in_add_issue"
	OptCanLoggedInUploadImages        = "im_can_logged_in_upload_images"
	OptCanLoggedInComment             = "im_can_logged_in_comment"
	OptCanLoggedInSendReports         = "im_can_logged_in_reports"
	OptCanLoggedInSendReportsToAnyone = "im_can_logged_in_send_reports_to_anyone"
	OptCanAnonAddIssue                = "im_can_anon_add_issue"
	OptCanAnonUploadImages            = "im_can_anon_upload_images"
	OptCanAnonComment                 = "im_can_anon_comment"
	OptCanAnonSendReports             = "im_can_anon_send_reports"
	OptCanAnonSendReportsToAnyone     = "im_can_anon_send_reports_to_anyone"

	OptModeratorEmail         = "im_moderator_email"
	OptModeratorsList         = "im_moderators_list"
	OptOnlySendReportsToUsers = "im_only_send_reports_to_users"
)

// Defaults
const (
	DefaultCentreLat     = 56.9514934
	DefaultCentreLng     = 24.1111156
	DefaultZoomMapView   = 11
	DefaultZoomIssueView = 16
	DefaultPostsPerPage  = 10
)

// Type is the value type of an option.
type Type string

const (
	TypeBool   Type = "boolean"
	TypeInt    Type = "integer"
	TypeNumber Type = "number"
	TypeString Type = "string"
)

// Field describes one option: its type, default and validator.
type Field struct {
	Name     string
	Type     Type
	Default  string
	Validate func(string) error
}

// Schema lists every known option.
var Schema = []Field{
	{Name: OptCentreLat, Type: TypeNumber, Default: formatFloat(DefaultCentreLat), Validate: floatRange(-90, 90)},
	{Name: OptCentreLng, Type: TypeNumber, Default: formatFloat(DefaultCentreLng), Validate: floatRange(-180, 180)},
	{Name: OptZoomMapView, Type: TypeInt, Default: strconv.Itoa(DefaultZoomMapView), Validate: intRange(0, 22)},
	{Name: OptZoomIssueView, Type: TypeInt, Default: strconv.Itoa(DefaultZoomIssueView), Validate: intRange(0, 22)},
	{Name: OptIncludeImagesInReports, Type: TypeBool, Default: "true"},
	{Name: OptPostsPerPage, Type: TypeInt, Default: strconv.Itoa(DefaultPostsPerPage), Validate: intRange(1, 100)},

	{Name: OptCanLoggedInAddIssue, Type: TypeBool, Default: "true"},
	{Name: OptCanLoggedInUploadImages, Type: TypeBool, Default: "true"},
	{Name: OptCanLoggedInComment, Type: TypeBool, Default: "true"},
	{Name: OptCanLoggedInSendReports, Type: TypeBool, Default: "true"},
	{Name: OptCanLoggedInSendReportsToAnyone, Type: TypeBool, Default: "false"},
	{Name: OptCanAnonAddIssue, Type: TypeBool, Default: "true"},
	{Name: OptCanAnonUploadImages, Type: TypeBool, Default: "true"},
	{Name: OptCanAnonComment, Type: TypeBool, Default: "false"},
	{Name: OptCanAnonSendReports, Type: TypeBool, Default: "false"},
	{Name: OptCanAnonSendReportsToAnyone, Type: TypeBool, Default: "false"},

	{Name: OptModeratorEmail, Type: TypeString, Default: "", Validate: emailOrEmpty},
	{Name: OptModeratorsList, Type: TypeString, Default: ""},
	{Name: OptOnlySendReportsToUsers, Type: TypeBool, Default: "false"},
}

// Lookup returns the schema field named name.
func Lookup(name string) (Field, bool) {
	for _, f := range Schema {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Check validates a raw value against the field's type and validator.
func (f Field) Check(raw string) error {
	raw = strings.TrimSpace(raw)
	switch f.Type {
	case TypeBool:
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("%s: not a boolean", f.Name)
		}
	case TypeInt:
		if _, err := strconv.Atoi(raw); err != nil {
			return fmt.Errorf("%s: not an integer", f.Name)
		}
	case TypeNumber:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return fmt.Errorf("%s: not a number", f.Name)
		}
	}
	if f.Validate != nil {
		if err := f.Validate(raw); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

func floatRange(lo, hi float64) func(string) error {
	return func(raw string) error {
		v, _ := strconv.ParseFloat(raw, 64)
		if v < lo || v > hi {
			return fmt.Errorf("must be between %g and %g", lo, hi)
		}
		return nil
	}
}

func intRange(lo, hi int) func(string) error {
	return func(raw string) error {
		v, _ := strconv.Atoi(raw)
		if v < lo || v > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func emailOrEmpty(raw string) error {
	if raw == "" || models.ValidEmail(raw) {
		return nil
	}
	return fmt.Errorf("not a valid email address")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
