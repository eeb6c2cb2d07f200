package database

import (
	"context"
	"time"

	"issuesmap/internal/models"
)

// MockStore is a mock implementation of the Store interface for testing.
// Uses function fields to allow tests to inject custom behavior.
type MockStore struct {
	// Issue operations
	CreateIssueFunc           func(ctx context.Context, issue *models.Issue) error
	GetIssueFunc              func(ctx context.Context, id int64) (*models.Issue, error)
	UpdateIssueFunc           func(ctx context.Context, issue *models.Issue) error
	ListIssuesFunc            func(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error)
	TransitionIssueStatusFunc func(ctx context.Context, id int64, t models.Transition) (models.Status, bool, error)
	DeleteIssueFunc           func(ctx context.Context, id int64) ([]*models.Report, error)
	CountIssuesByStatusFunc   func(ctx context.Context) (map[models.Status]int, error)

	// Report operations
	CreateReportFunc        func(ctx context.Context, report *models.Report, advance *models.Transition) error
	GetReportFunc           func(ctx context.Context, id int64) (*models.Report, error)
	UpdateReportFunc        func(ctx context.Context, report *models.Report) error
	DeleteReportFunc        func(ctx context.Context, id int64, regress *models.Transition) (*models.Report, error)
	ListReportsForIssueFunc func(ctx context.Context, issueID int64) ([]*models.Report, error)
	ListTemplatesFunc       func(ctx context.Context, category string) ([]*models.Report, error)
	MarkReportSentFunc      func(ctx context.Context, id int64, at time.Time, advance *models.Transition) (*models.Report, error)

	// Comment operations
	AddCommentFunc   func(ctx context.Context, comment *models.Comment) error
	ListCommentsFunc func(ctx context.Context, issueID int64) ([]*models.Comment, error)

	// User operations
	CreateUserFunc      func(ctx context.Context, user *models.User) error
	GetUserFunc         func(ctx context.Context, id string) (*models.User, error)
	FindUserByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	FindUserByLoginFunc func(ctx context.Context, login string) (*models.User, error)

	// Settings
	LoadSettingsFunc func(ctx context.Context) (map[string]string, error)
	SaveSettingsFunc func(ctx context.Context, values map[string]string) error

	CloseFunc func() error
}

var _ Store = (*MockStore)(nil)

// CreateIssue calls the mock function or returns nil if not set
func (m *MockStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if m.CreateIssueFunc != nil {
		return m.CreateIssueFunc(ctx, issue)
	}
	return nil
}

// GetIssue calls the mock function or returns zero values if not set
func (m *MockStore) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	if m.GetIssueFunc != nil {
		return m.GetIssueFunc(ctx, id)
	}
	return nil, nil
}

// UpdateIssue calls the mock function or returns nil if not set
func (m *MockStore) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	if m.UpdateIssueFunc != nil {
		return m.UpdateIssueFunc(ctx, issue)
	}
	return nil
}

// ListIssues calls the mock function or returns zero values if not set
func (m *MockStore) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error) {
	if m.ListIssuesFunc != nil {
		return m.ListIssuesFunc(ctx, filter)
	}
	return []*models.Issue{}, 0, nil
}

// TransitionIssueStatus calls the mock function or returns zero values if not set
func (m *MockStore) TransitionIssueStatus(ctx context.Context, id int64, t models.Transition) (models.Status, bool, error) {
	if m.TransitionIssueStatusFunc != nil {
		return m.TransitionIssueStatusFunc(ctx, id, t)
	}
	return "", false, nil
}

// DeleteIssue calls the mock function or returns zero values if not set
func (m *MockStore) DeleteIssue(ctx context.Context, id int64) ([]*models.Report, error) {
	if m.DeleteIssueFunc != nil {
		return m.DeleteIssueFunc(ctx, id)
	}
	return []*models.Report{}, nil
}

// CountIssuesByStatus calls the mock function or returns zero values if not set
func (m *MockStore) CountIssuesByStatus(ctx context.Context) (map[models.Status]int, error) {
	if m.CountIssuesByStatusFunc != nil {
		return m.CountIssuesByStatusFunc(ctx)
	}
	return map[models.Status]int{}, nil
}

// CreateReport calls the mock function or returns nil if not set
func (m *MockStore) CreateReport(ctx context.Context, report *models.Report, advance *models.Transition) error {
	if m.CreateReportFunc != nil {
		return m.CreateReportFunc(ctx, report, advance)
	}
	return nil
}

// GetReport calls the mock function or returns zero values if not set
func (m *MockStore) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	if m.GetReportFunc != nil {
		return m.GetReportFunc(ctx, id)
	}
	return nil, nil
}

// UpdateReport calls the mock function or returns nil if not set
func (m *MockStore) UpdateReport(ctx context.Context, report *models.Report) error {
	if m.UpdateReportFunc != nil {
		return m.UpdateReportFunc(ctx, report)
	}
	return nil
}

// DeleteReport calls the mock function or returns zero values if not set
func (m *MockStore) DeleteReport(ctx context.Context, id int64, regress *models.Transition) (*models.Report, error) {
	if m.DeleteReportFunc != nil {
		return m.DeleteReportFunc(ctx, id, regress)
	}
	return nil, nil
}

// ListReportsForIssue calls the mock function or returns zero values if not set
func (m *MockStore) ListReportsForIssue(ctx context.Context, issueID int64) ([]*models.Report, error) {
	if m.ListReportsForIssueFunc != nil {
		return m.ListReportsForIssueFunc(ctx, issueID)
	}
	return []*models.Report{}, nil
}

// ListTemplates calls the mock function or returns zero values if not set
func (m *MockStore) ListTemplates(ctx context.Context, category string) ([]*models.Report, error) {
	if m.ListTemplatesFunc != nil {
		return m.ListTemplatesFunc(ctx, category)
	}
	return []*models.Report{}, nil
}

// MarkReportSent calls the mock function or returns zero values if not set
func (m *MockStore) MarkReportSent(ctx context.Context, id int64, at time.Time, advance *models.Transition) (*models.Report, error) {
	if m.MarkReportSentFunc != nil {
		return m.MarkReportSentFunc(ctx, id, at, advance)
	}
	return nil, nil
}

// AddComment calls the mock function or returns nil if not set
func (m *MockStore) AddComment(ctx context.Context, comment *models.Comment) error {
	if m.AddCommentFunc != nil {
		return m.AddCommentFunc(ctx, comment)
	}
	return nil
}

// ListComments calls the mock function or returns zero values if not set
func (m *MockStore) ListComments(ctx context.Context, issueID int64) ([]*models.Comment, error) {
	if m.ListCommentsFunc != nil {
		return m.ListCommentsFunc(ctx, issueID)
	}
	return []*models.Comment{}, nil
}

// CreateUser calls the mock function or returns nil if not set
func (m *MockStore) CreateUser(ctx context.Context, user *models.User) error {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, user)
	}
	return nil
}

// GetUser calls the mock function or returns zero values if not set
func (m *MockStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return nil, nil
}

// FindUserByEmail calls the mock function or returns zero values if not set
func (m *MockStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.FindUserByEmailFunc != nil {
		return m.FindUserByEmailFunc(ctx, email)
	}
	return nil, nil
}

// FindUserByLogin calls the mock function or returns zero values if not set
func (m *MockStore) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	if m.FindUserByLoginFunc != nil {
		return m.FindUserByLoginFunc(ctx, login)
	}
	return nil, nil
}

// LoadSettings calls the mock function or returns zero values if not set
func (m *MockStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	if m.LoadSettingsFunc != nil {
		return m.LoadSettingsFunc(ctx)
	}
	return map[string]string{}, nil
}

// SaveSettings calls the mock function or returns nil if not set
func (m *MockStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if m.SaveSettingsFunc != nil {
		return m.SaveSettingsFunc(ctx, values)
	}
	return nil
}

// Close calls the mock function or returns nil if not set
func (m *MockStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
