package sqlstore

import (
	"context"
	"time"

	"issuesmap/internal/models"
	"issuesmap/internal/workflow"

	"gorm.io/gorm"
)

// CreateIssue assigns an id and stores the issue.
func (s *Store) CreateIssue(ctx context.Context, issue *models.Issue) error {
	now := time.Now().UTC()
	if !issue.Status.Valid() {
		issue.Status = workflow.InitialStatus
	}
	issue.ReportSeq = 0
	issue.CreatedAt = now
	issue.UpdatedAt = now

	row := issueFromModel(issue)
	row.ID = 0
	if err := s.withContext(ctx).Create(row).Error; err != nil {
		return err
	}
	issue.ID = row.ID
	return nil
}

// GetIssue retrieves an issue by id.
func (s *Store) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	var row issueRow
	if err := s.withContext(ctx).First(&row, id).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

// UpdateIssue writes the editable fields of an existing issue.
func (s *Store) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored issueRow
		if err := tx.First(&stored, issue.ID).Error; err != nil {
			return notFound(err)
		}

		issue.OwnerID = stored.OwnerID
		issue.Status = models.Status(stored.Status)
		issue.ReportSeq = stored.ReportSeq
		issue.CreatedAt = stored.CreatedAt
		issue.UpdatedAt = time.Now().UTC()

		return tx.Model(&issueRow{ID: issue.ID}).
			Select("category", "title", "description", "added_by", "email",
				"lat", "lng", "images", "featured_image", "updated_at").
			Updates(issueFromModel(issue)).Error
	})
}

// ListIssues returns the requested page of matching issues, newest first,
// and the total number of matches.
func (s *Store) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error) {
	query := func() *gorm.DB {
		q := s.withContext(ctx).Model(&issueRow{})
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.OwnerID != "" {
			q = q.Where("owner_id = ?", filter.OwnerID)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := filter.Bounds()
	q := query().Order("id DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	var rows []issueRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	issues := make([]*models.Issue, 0, len(rows))
	for i := range rows {
		issues = append(issues, rows[i].model())
	}
	return issues, int(total), nil
}

// applyTransition fires t with a compare-and-set on the current status.
func applyTransition(tx *gorm.DB, issueID int64, t models.Transition) (models.Status, bool, error) {
	if _, _, err := workflow.Apply(t.From, t); err != nil {
		return "", false, err
	}
	res := tx.Model(&issueRow{}).
		Where("id = ? AND status = ?", issueID, string(t.From)).
		Updates(map[string]any{"status": string(t.To), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return "", false, res.Error
	}
	if res.RowsAffected > 0 {
		return t.To, true, nil
	}

	var row issueRow
	if err := tx.Select("id", "status").First(&row, issueID).Error; err != nil {
		return "", false, notFound(err)
	}
	return models.Status(row.Status), false, nil
}

// TransitionIssueStatus fires t on the issue if it is in t.From.
func (s *Store) TransitionIssueStatus(ctx context.Context, id int64, t models.Transition) (models.Status, bool, error) {
	var (
		status  models.Status
		changed bool
	)
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		status, changed, err = applyTransition(tx, id, t)
		return err
	})
	return status, changed, err
}

// DeleteIssue removes the issue, its reports and its comments.
func (s *Store) DeleteIssue(ctx context.Context, id int64) ([]*models.Report, error) {
	var removed []*models.Report
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&issueRow{}, id).Error; err != nil {
			return notFound(err)
		}

		var reports []reportRow
		if err := tx.Where("issue_id = ?", id).Order("id").Find(&reports).Error; err != nil {
			return err
		}
		for i := range reports {
			removed = append(removed, reports[i].model())
		}

		if err := tx.Where("issue_id = ?", id).Delete(&reportRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("issue_id = ?", id).Delete(&commentRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&issueRow{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// CountIssuesByStatus tallies issues per status.
func (s *Store) CountIssuesByStatus(ctx context.Context) (map[models.Status]int, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := s.withContext(ctx).Model(&issueRow{}).
		Select("status, count(*) AS n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[models.Status]int{
		models.StatusUnreported:    0,
		models.StatusReportCreated: 0,
		models.StatusReportSent:    0,
	}
	for _, r := range rows {
		counts[models.Status(r.Status)] = r.N
	}
	return counts, nil
}
