package sqlstore

import (
	"strconv"
	"strings"
	"time"

	"issuesmap/internal/models"
)

type issueRow struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	OwnerID       string `gorm:"size:64;index"`
	Category      string `gorm:"size:64;index"`
	Status        string `gorm:"size:32;index;not null"`
	Title         string `gorm:"size:64"`
	Description   string `gorm:"type:text"`
	AddedBy       string `gorm:"size:64"`
	Email         string `gorm:"size:64"`
	Lat           float64
	Lng           float64
	Images        []models.ImageMeta `gorm:"serializer:json"`
	FeaturedImage string             `gorm:"size:128"`
	ReportSeq     int                `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (issueRow) TableName() string { return "issues" }

func issueFromModel(i *models.Issue) *issueRow {
	return &issueRow{
		ID:            i.ID,
		OwnerID:       i.OwnerID,
		Category:      i.Category,
		Status:        string(i.Status),
		Title:         i.Title,
		Description:   i.Description,
		AddedBy:       i.AddedBy,
		Email:         i.Email,
		Lat:           i.Lat,
		Lng:           i.Lng,
		Images:        i.Images,
		FeaturedImage: i.FeaturedImage,
		ReportSeq:     i.ReportSeq,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}
}

func (r *issueRow) model() *models.Issue {
	images := r.Images
	if images == nil {
		images = []models.ImageMeta{}
	}
	return &models.Issue{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		Category:      r.Category,
		Status:        models.Status(r.Status),
		Title:         r.Title,
		Description:   r.Description,
		AddedBy:       r.AddedBy,
		Email:         r.Email,
		Lat:           r.Lat,
		Lng:           r.Lng,
		Images:        images,
		FeaturedImage: r.FeaturedImage,
		ReportSeq:     r.ReportSeq,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// reportRow stores reports and templates. RefSeq is NULL for templates so
// the (issue_id, ref_seq) unique index only constrains issue reports.
type reportRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	IssueID        int64  `gorm:"index;uniqueIndex:idx_reports_issue_ref,priority:1"`
	RefSeq         *int   `gorm:"uniqueIndex:idx_reports_issue_ref,priority:2"`
	Ref            string `gorm:"size:64"`
	Salt           string `gorm:"size:64"`
	OwnerID        string `gorm:"size:64;index"`
	TemplateID     int64
	Category       string `gorm:"size:64;index"`
	RecipientName  string `gorm:"size:64"`
	RecipientEmail string `gorm:"size:64"`
	EmailBody      string `gorm:"type:text"`
	ToAddress      string `gorm:"size:256"`
	FromAddress    string `gorm:"size:256"`
	FromEmail      string `gorm:"size:64"`
	Greeting       string `gorm:"size:64"`
	Addressee      string `gorm:"size:64"`
	Body           string `gorm:"type:text"`
	SignOff        string `gorm:"size:64"`
	AddedBy        string `gorm:"size:64"`
	Date           string `gorm:"size:32"`
	SentAt         *time.Time
	CreatedAt      time.Time
}

func (reportRow) TableName() string { return "reports" }

func reportFromModel(r *models.Report) *reportRow {
	row := &reportRow{
		ID:             r.ID,
		IssueID:        r.IssueID,
		Ref:            r.Ref,
		Salt:           r.Salt,
		OwnerID:        r.OwnerID,
		TemplateID:     r.TemplateID,
		Category:       r.Category,
		RecipientName:  r.RecipientName,
		RecipientEmail: r.RecipientEmail,
		EmailBody:      r.EmailBody,
		ToAddress:      r.ToAddress,
		FromAddress:    r.FromAddress,
		FromEmail:      r.FromEmail,
		Greeting:       r.Greeting,
		Addressee:      r.Addressee,
		Body:           r.Body,
		SignOff:        r.SignOff,
		AddedBy:        r.AddedBy,
		Date:           r.Date,
		SentAt:         r.SentAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.RefSeq > 0 {
		seq := r.RefSeq
		row.RefSeq = &seq
	}
	return row
}

func (r *reportRow) model() *models.Report {
	m := &models.Report{
		ID:             r.ID,
		IssueID:        r.IssueID,
		Ref:            r.Ref,
		Salt:           r.Salt,
		OwnerID:        r.OwnerID,
		TemplateID:     r.TemplateID,
		Category:       r.Category,
		RecipientName:  r.RecipientName,
		RecipientEmail: r.RecipientEmail,
		EmailBody:      r.EmailBody,
		ToAddress:      r.ToAddress,
		FromAddress:    r.FromAddress,
		FromEmail:      r.FromEmail,
		Greeting:       r.Greeting,
		Addressee:      r.Addressee,
		Body:           r.Body,
		SignOff:        r.SignOff,
		AddedBy:        r.AddedBy,
		Date:           r.Date,
		SentAt:         r.SentAt,
		CreatedAt:      r.CreatedAt,
	}
	if r.RefSeq != nil {
		m.RefSeq = *r.RefSeq
	}
	return m
}

type commentRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	IssueID   int64  `gorm:"index;not null"`
	OwnerID   string `gorm:"size:64"`
	Author    string `gorm:"size:64"`
	Body      string `gorm:"type:text"`
	CreatedAt time.Time
}

func (commentRow) TableName() string { return "comments" }

func (r *commentRow) model() *models.Comment {
	return &models.Comment{
		ID:        r.ID,
		IssueID:   r.IssueID,
		OwnerID:   r.OwnerID,
		Author:    r.Author,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
	}
}

// userRow keeps a lowercased email key so lookups are case-insensitive.
// EmailKey is NULL for accounts without an email.
type userRow struct {
	ID           uint64  `gorm:"primaryKey;autoIncrement"`
	Login        string  `gorm:"size:64;uniqueIndex;not null"`
	Email        string  `gorm:"size:64"`
	EmailKey     *string `gorm:"size:64;uniqueIndex"`
	DisplayName  string  `gorm:"size:64"`
	PasswordHash []byte
	CreatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func (r *userRow) model() *models.User {
	return &models.User{
		ID:           strconv.FormatUint(r.ID, 10),
		Login:        r.Login,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type settingRow struct {
	Name  string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text"`
}

func (settingRow) TableName() string { return "settings" }
