package boltstore

import (
	"context"
	"fmt"
	"time"

	"issuesmap/internal/models"

	bolt "go.etcd.io/bbolt"
)

// AddComment stores a comment on an existing issue.
func (s *Store) AddComment(ctx context.Context, comment *models.Comment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := loadIssue(tx, comment.IssueID); err != nil {
			return err
		}
		bucket := tx.Bucket(BucketComments)
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate comment id: %w", err)
		}
		comment.ID = int64(seq)
		comment.CreatedAt = time.Now().UTC()
		if err := putJSON(bucket, itob(comment.ID), comment); err != nil {
			return err
		}
		return tx.Bucket(BucketIssueComments).Put(indexKey(comment.IssueID, comment.ID), nil)
	})
}

// ListComments returns the comments of an issue, oldest first.
func (s *Store) ListComments(ctx context.Context, issueID int64) ([]*models.Comment, error) {
	comments := []*models.Comment{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(BucketComments)
		for _, id := range childIDs(tx.Bucket(BucketIssueComments), issueID) {
			var c models.Comment
			if err := getJSON(bucket, itob(id), &c); err != nil {
				return err
			}
			comments = append(comments, &c)
		}
		return nil
	})
	return comments, err
}
