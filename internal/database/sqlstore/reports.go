package sqlstore

import (
	"context"
	"errors"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/models"

	"gorm.io/gorm"
)

// CreateReport stores a report. Issue reports get the next ref of their
// issue and advance, when given, is applied in the same transaction.
func (s *Store) CreateReport(ctx context.Context, report *models.Report, advance *models.Transition) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		report.Ref = ""
		report.RefSeq = 0
		if report.IssueID != 0 {
			res := tx.Model(&issueRow{}).
				Where("id = ?", report.IssueID).
				UpdateColumn("report_seq", gorm.Expr("report_seq + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return database.ErrNotFound
			}
			var issue issueRow
			if err := tx.Select("id", "report_seq").First(&issue, report.IssueID).Error; err != nil {
				return notFound(err)
			}
			report.RefSeq = issue.ReportSeq
			report.Ref = database.FormatRef(issue.ID, issue.ReportSeq)
		}

		report.SentAt = nil
		report.CreatedAt = time.Now().UTC()
		row := reportFromModel(report)
		row.ID = 0
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		report.ID = row.ID

		if report.IssueID != 0 && advance != nil {
			if _, _, err := applyTransition(tx, report.IssueID, *advance); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReport retrieves a report or template by id.
func (s *Store) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	var row reportRow
	if err := s.withContext(ctx).First(&row, id).Error; err != nil {
		return nil, notFound(err)
	}
	return row.model(), nil
}

// UpdateReport writes the editable fields of an existing report.
func (s *Store) UpdateReport(ctx context.Context, report *models.Report) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored reportRow
		if err := tx.First(&stored, report.ID).Error; err != nil {
			return notFound(err)
		}
		prev := stored.model()
		report.IssueID = prev.IssueID
		report.OwnerID = prev.OwnerID
		report.Ref = prev.Ref
		report.RefSeq = prev.RefSeq
		report.SentAt = prev.SentAt
		report.CreatedAt = prev.CreatedAt
		if report.Salt == "" {
			report.Salt = prev.Salt
		}

		return tx.Model(&reportRow{ID: report.ID}).
			Select("salt", "template_id", "category", "recipient_name", "recipient_email",
				"email_body", "to_address", "from_address", "from_email", "greeting",
				"addressee", "body", "sign_off", "added_by", "date").
			Updates(reportFromModel(report)).Error
	})
}

// DeleteReport removes a report. regress is applied only when it was the
// last report of its issue.
func (s *Store) DeleteReport(ctx context.Context, id int64, regress *models.Transition) (*models.Report, error) {
	var removed *models.Report
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row reportRow
		if err := tx.First(&row, id).Error; err != nil {
			return notFound(err)
		}
		removed = row.model()
		if err := tx.Delete(&reportRow{}, id).Error; err != nil {
			return err
		}
		if row.IssueID == 0 || regress == nil {
			return nil
		}

		var remaining int64
		if err := tx.Model(&reportRow{}).Where("issue_id = ?", row.IssueID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		if _, _, err := applyTransition(tx, row.IssueID, *regress); err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// ListReportsForIssue returns the reports of an issue in creation order.
func (s *Store) ListReportsForIssue(ctx context.Context, issueID int64) ([]*models.Report, error) {
	reports := []*models.Report{}
	if issueID == 0 {
		return reports, nil
	}
	var rows []reportRow
	if err := s.withContext(ctx).Where("issue_id = ?", issueID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		reports = append(reports, rows[i].model())
	}
	return reports, nil
}

// ListTemplates returns templates, optionally restricted to one category.
func (s *Store) ListTemplates(ctx context.Context, category string) ([]*models.Report, error) {
	q := s.withContext(ctx).Where("issue_id = 0")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var rows []reportRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	templates := make([]*models.Report, 0, len(rows))
	for i := range rows {
		templates = append(templates, rows[i].model())
	}
	return templates, nil
}

// MarkReportSent records the delivery time and applies advance.
func (s *Store) MarkReportSent(ctx context.Context, id int64, at time.Time, advance *models.Transition) (*models.Report, error) {
	var report *models.Report
	err := s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row reportRow
		if err := tx.First(&row, id).Error; err != nil {
			return notFound(err)
		}
		sent := at.UTC()
		if err := tx.Model(&reportRow{ID: id}).Update("sent_at", sent).Error; err != nil {
			return err
		}
		row.SentAt = &sent
		report = row.model()

		if advance != nil && row.IssueID != 0 {
			if _, _, err := applyTransition(tx, row.IssueID, *advance); err != nil {
				return err
			}
		}
		return nil
	})
	return report, err
}
