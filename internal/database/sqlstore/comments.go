package sqlstore

import (
	"context"
	"time"

	"issuesmap/internal/models"

	"gorm.io/gorm"
)

// AddComment stores a comment on an existing issue.
func (s *Store) AddComment(ctx context.Context, comment *models.Comment) error {
	return s.withContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Select("id").First(&issueRow{}, comment.IssueID).Error; err != nil {
			return notFound(err)
		}
		row := &commentRow{
			IssueID:   comment.IssueID,
			OwnerID:   comment.OwnerID,
			Author:    comment.Author,
			Body:      comment.Body,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		comment.ID = row.ID
		comment.CreatedAt = row.CreatedAt
		return nil
	})
}

// ListComments returns the comments of an issue, oldest first.
func (s *Store) ListComments(ctx context.Context, issueID int64) ([]*models.Comment, error) {
	var rows []commentRow
	if err := s.withContext(ctx).Where("issue_id = ?", issueID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	comments := make([]*models.Comment, 0, len(rows))
	for i := range rows {
		comments = append(comments, rows[i].model())
	}
	return comments, nil
}
