package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"issuesmap/internal/database"
	"issuesmap/internal/models"

	bolt "go.etcd.io/bbolt"
)

// reportRecord persists the fields the API form of Report hides.
type reportRecord struct {
	*models.Report
	Seq        int    `json:"ref_seq"`
	StoredSalt string `json:"salt"`
}

func loadReport(tx *bolt.Tx, id int64) (*models.Report, error) {
	rec := reportRecord{Report: &models.Report{}}
	if err := getJSON(tx.Bucket(BucketReports), itob(id), &rec); err != nil {
		return nil, err
	}
	rec.Report.RefSeq = rec.Seq
	rec.Report.Salt = rec.StoredSalt
	return rec.Report, nil
}

func saveReport(tx *bolt.Tx, r *models.Report) error {
	return putJSON(tx.Bucket(BucketReports), itob(r.ID), reportRecord{Report: r, Seq: r.RefSeq, StoredSalt: r.Salt})
}

// CreateReport stores a report. Issue reports get the next ref of their
// issue and advance, when given, is applied in the same transaction.
func (s *Store) CreateReport(ctx context.Context, report *models.Report, advance *models.Transition) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if report.IssueID != 0 {
			issue, err := loadIssue(tx, report.IssueID)
			if err != nil {
				return err
			}
			issue.ReportSeq++
			if err := saveIssue(tx, issue); err != nil {
				return err
			}
			report.RefSeq = issue.ReportSeq
			report.Ref = database.FormatRef(issue.ID, issue.ReportSeq)
		} else {
			report.RefSeq = 0
			report.Ref = ""
		}

		seq, err := tx.Bucket(BucketReports).NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate report id: %w", err)
		}
		report.ID = int64(seq)
		report.SentAt = nil
		report.CreatedAt = time.Now().UTC()
		if err := saveReport(tx, report); err != nil {
			return err
		}

		if report.IssueID == 0 {
			return nil
		}
		if err := tx.Bucket(BucketIssueReports).Put(indexKey(report.IssueID, report.ID), nil); err != nil {
			return err
		}
		if advance != nil {
			if _, _, err := applyTransition(tx, report.IssueID, *advance); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReport retrieves a report or template by id.
func (s *Store) GetReport(ctx context.Context, id int64) (*models.Report, error) {
	var report *models.Report
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		report, err = loadReport(tx, id)
		return err
	})
	return report, err
}

// UpdateReport writes the editable fields of an existing report. The issue,
// owner, ref and sent time are kept from the stored copy.
func (s *Store) UpdateReport(ctx context.Context, report *models.Report) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		stored, err := loadReport(tx, report.ID)
		if err != nil {
			return err
		}
		report.IssueID = stored.IssueID
		report.OwnerID = stored.OwnerID
		report.Ref = stored.Ref
		report.RefSeq = stored.RefSeq
		report.SentAt = stored.SentAt
		report.CreatedAt = stored.CreatedAt
		if report.Salt == "" {
			report.Salt = stored.Salt
		}
		return saveReport(tx, report)
	})
}

// DeleteReport removes a report. regress is applied only when it was the
// last report of its issue.
func (s *Store) DeleteReport(ctx context.Context, id int64, regress *models.Transition) (*models.Report, error) {
	var removed *models.Report
	err := s.db.Update(func(tx *bolt.Tx) error {
		r, err := loadReport(tx, id)
		if err != nil {
			return err
		}
		removed = r
		if err := tx.Bucket(BucketReports).Delete(itob(id)); err != nil {
			return err
		}
		if r.IssueID == 0 {
			return nil
		}

		index := tx.Bucket(BucketIssueReports)
		if err := index.Delete(indexKey(r.IssueID, id)); err != nil {
			return err
		}
		if regress != nil && len(childIDs(index, r.IssueID)) == 0 {
			if _, _, err := applyTransition(tx, r.IssueID, *regress); err != nil && !errors.Is(err, database.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// ListReportsForIssue returns the reports of an issue in creation order.
func (s *Store) ListReportsForIssue(ctx context.Context, issueID int64) ([]*models.Report, error) {
	reports := []*models.Report{}
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, id := range childIDs(tx.Bucket(BucketIssueReports), issueID) {
			r, err := loadReport(tx, id)
			if err != nil {
				return err
			}
			reports = append(reports, r)
		}
		return nil
	})
	return reports, err
}

// ListTemplates returns templates, optionally restricted to one category.
func (s *Store) ListTemplates(ctx context.Context, category string) ([]*models.Report, error) {
	templates := []*models.Report{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketReports).ForEach(func(k, v []byte) error {
			rec := reportRecord{Report: &models.Report{}}
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !rec.Report.IsTemplate() {
				return nil
			}
			if category != "" && rec.Report.Category != category {
				return nil
			}
			templates = append(templates, rec.Report)
			return nil
		})
	})
	return templates, err
}

// MarkReportSent records the delivery time and applies advance.
func (s *Store) MarkReportSent(ctx context.Context, id int64, at time.Time, advance *models.Transition) (*models.Report, error) {
	var report *models.Report
	err := s.db.Update(func(tx *bolt.Tx) error {
		r, err := loadReport(tx, id)
		if err != nil {
			return err
		}
		sent := at.UTC()
		r.SentAt = &sent
		if err := saveReport(tx, r); err != nil {
			return err
		}
		report = r
		if advance != nil && r.IssueID != 0 {
			if _, _, err := applyTransition(tx, r.IssueID, *advance); err != nil {
				return err
			}
		}
		return nil
	})
	return report, err
}
