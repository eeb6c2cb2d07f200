package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"issuesmap/internal/models"
	"issuesmap/internal/workflow"

	bolt "go.etcd.io/bbolt"
)

// issueRecord persists the report counter, which the API form of Issue hides.
type issueRecord struct {
	*models.Issue
	Seq int `json:"report_seq"`
}

func loadIssue(tx *bolt.Tx, id int64) (*models.Issue, error) {
	rec := issueRecord{Issue: &models.Issue{}}
	if err := getJSON(tx.Bucket(BucketIssues), itob(id), &rec); err != nil {
		return nil, err
	}
	rec.Issue.ReportSeq = rec.Seq
	return rec.Issue, nil
}

func saveIssue(tx *bolt.Tx, issue *models.Issue) error {
	return putJSON(tx.Bucket(BucketIssues), itob(issue.ID), issueRecord{Issue: issue, Seq: issue.ReportSeq})
}

// applyTransition fires t on the issue if it is in t.From.
func applyTransition(tx *bolt.Tx, issueID int64, t models.Transition) (models.Status, bool, error) {
	issue, err := loadIssue(tx, issueID)
	if err != nil {
		return "", false, err
	}
	next, changed, err := workflow.Apply(issue.Status, t)
	if err != nil || !changed {
		return issue.Status, false, err
	}
	issue.Status = next
	issue.UpdatedAt = time.Now().UTC()
	if err := saveIssue(tx, issue); err != nil {
		return "", false, err
	}
	return next, true, nil
}

// CreateIssue assigns an id and stores the issue.
func (s *Store) CreateIssue(ctx context.Context, issue *models.Issue) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(BucketIssues).NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate issue id: %w", err)
		}
		now := time.Now().UTC()
		issue.ID = int64(seq)
		if !issue.Status.Valid() {
			issue.Status = workflow.InitialStatus
		}
		issue.ReportSeq = 0
		issue.CreatedAt = now
		issue.UpdatedAt = now
		return saveIssue(tx, issue)
	})
}

// GetIssue retrieves an issue by id.
func (s *Store) GetIssue(ctx context.Context, id int64) (*models.Issue, error) {
	var issue *models.Issue
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		issue, err = loadIssue(tx, id)
		return err
	})
	return issue, err
}

// UpdateIssue writes the editable fields of an existing issue.
func (s *Store) UpdateIssue(ctx context.Context, issue *models.Issue) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		stored, err := loadIssue(tx, issue.ID)
		if err != nil {
			return err
		}
		issue.OwnerID = stored.OwnerID
		issue.Status = stored.Status
		issue.ReportSeq = stored.ReportSeq
		issue.CreatedAt = stored.CreatedAt
		issue.UpdatedAt = time.Now().UTC()
		return saveIssue(tx, issue)
	})
}

// ListIssues returns the requested page of matching issues, newest first,
// and the total number of matches.
func (s *Store) ListIssues(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, int, error) {
	offset, limit := filter.Bounds()
	issues := []*models.Issue{}
	total := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(BucketIssues).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rec := issueRecord{Issue: &models.Issue{}}
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !filter.Matches(rec.Issue) {
				continue
			}
			total++
			if total <= offset || (limit > 0 && len(issues) >= limit) {
				continue
			}
			rec.Issue.ReportSeq = rec.Seq
			issues = append(issues, rec.Issue)
		}
		return nil
	})
	return issues, total, err
}

// TransitionIssueStatus fires t on the issue if it is in t.From.
func (s *Store) TransitionIssueStatus(ctx context.Context, id int64, t models.Transition) (models.Status, bool, error) {
	var (
		status  models.Status
		changed bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		status, changed, err = applyTransition(tx, id, t)
		return err
	})
	return status, changed, err
}

// DeleteIssue removes the issue, its reports and its comments.
func (s *Store) DeleteIssue(ctx context.Context, id int64) ([]*models.Report, error) {
	var removed []*models.Report
	err := s.db.Update(func(tx *bolt.Tx) error {
		if _, err := loadIssue(tx, id); err != nil {
			return err
		}

		reports := tx.Bucket(BucketReports)
		reportIndex := tx.Bucket(BucketIssueReports)
		for _, rid := range childIDs(reportIndex, id) {
			r, err := loadReport(tx, rid)
			if err == nil {
				removed = append(removed, r)
			}
			if err := reports.Delete(itob(rid)); err != nil {
				return err
			}
			if err := reportIndex.Delete(indexKey(id, rid)); err != nil {
				return err
			}
		}

		comments := tx.Bucket(BucketComments)
		commentIndex := tx.Bucket(BucketIssueComments)
		for _, cid := range childIDs(commentIndex, id) {
			if err := comments.Delete(itob(cid)); err != nil {
				return err
			}
			if err := commentIndex.Delete(indexKey(id, cid)); err != nil {
				return err
			}
		}

		return tx.Bucket(BucketIssues).Delete(itob(id))
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// CountIssuesByStatus tallies issues per status.
func (s *Store) CountIssuesByStatus(ctx context.Context) (map[models.Status]int, error) {
	counts := map[models.Status]int{
		models.StatusUnreported:    0,
		models.StatusReportCreated: 0,
		models.StatusReportSent:    0,
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketIssues).ForEach(func(k, v []byte) error {
			var issue models.Issue
			if err := json.Unmarshal(v, &issue); err != nil {
				return err
			}
			counts[issue.Status]++
			return nil
		})
	})
	return counts, err
}
