package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"issuesmap/internal/models"
)

var (
	// ErrNotFound is returned when a referenced issue, report, comment or user does not exist.
	ErrNotFound = errors.New("database: not found")

	// ErrDuplicate is returned when a unique field (user login or email) is already taken.
	ErrDuplicate = errors.New("database: duplicate")
)

// Store defines every persistence operation of the service.
// Implementations must be safe for concurrent use. Status transitions passed
// to CreateReport, DeleteReport and MarkReportSent are applied in the same
// transaction as the mutation that triggers them.
type Store interface {
	// Issue operations
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id int64) (*models.Issue, error)
	// UpdateIssue writes the editable fields. Owner, status and the report
	// counter are never changed through it.
	UpdateIssue(ctx context.Context, issue *models.Issue) error
	ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error)
	TransitionIssueStatus(ctx context.Context, id int64, t models.Transition) (models.Status, bool, error)
	// DeleteIssue removes the issue with its reports and comments and returns
	// the removed reports so their artifacts can be cleaned up.
	DeleteIssue(ctx context.Context, id int64) ([]*models.Report, error)
	CountIssuesByStatus(ctx context.Context) (map[models.Status]int, error)

	// Report operations. Issue reports get a ref allocated from the issue's
	// counter; templates (IssueID 0) never touch issue state.
	CreateReport(ctx context.Context, report *models.Report, advance *models.Transition) error
	GetReport(ctx context.Context, id int64) (*models.Report, error)
	UpdateReport(ctx context.Context, report *models.Report) error
	// DeleteReport applies regress only when no reports of the issue remain.
	DeleteReport(ctx context.Context, id int64, regress *models.Transition) (*models.Report, error)
	ListReportsForIssue(ctx context.Context, issueID int64) ([]*models.Report, error)
	ListTemplates(ctx context.Context, category string) ([]*models.Report, error)
	MarkReportSent(ctx context.Context, id int64, at time.Time, advance *models.Transition) (*models.Report, error)

	// Comment operations
	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, issueID int64) ([]*models.Comment, error)

	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)

	// Settings
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error

	// Close the database connection
	Close() error
}

// FormatRef builds the human-readable reference of the seq-th report of an issue.
func FormatRef(issueID int64, seq int) string {
	return fmt.Sprintf("%d-%d", issueID, seq)
}
