// Package events fans issue lifecycle events out to live map clients and
// to a message broker. Delivery is best effort: a failing sink never fails
// the action that produced the event.
package events

import (
	"context"
	"time"

	"issuesmap/internal/models"

	"github.com/rs/zerolog/log"
)

// Type names a lifecycle event.
type Type string

const (
	IssueCreated       Type = "issue.created"
	IssueUpdated       Type = "issue.updated"
	IssueDeleted       Type = "issue.deleted"
	IssueStatusChanged Type = "issue.status_changed"
	ReportCreated      Type = "report.created"
	ReportDeleted      Type = "report.deleted"
	ReportSent         Type = "report.sent"
	CommentAdded       Type = "comment.added"
)

// Event is one lifecycle change. Actor identities are not included.
type Event struct {
	Type     Type          `json:"type"`
	IssueID  int64         `json:"issue_id"`
	ReportID int64         `json:"report_id,omitempty"`
	Status   models.Status `json:"status,omitempty"`
	Lat      float64       `json:"latitude,omitempty"`
	Lng      float64       `json:"longitude,omitempty"`
	At       time.Time     `json:"at"`
}

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Publisher is what actions publish to.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Bus delivers every event to all sinks.
type Bus struct {
	sinks []Sink
	now   func() time.Time
}

// NewBus creates a bus over the given sinks. Nil sinks are skipped.
func NewBus(sinks ...Sink) *Bus {
	b := &Bus{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

// Publish stamps the event and hands it to each sink, logging failures.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now().UTC()
	}
	for _, s := range b.sinks {
		if err := s.Publish(ctx, e); err != nil {
			log.Warn().Err(err).Str("event", string(e.Type)).Int64("issue_id", e.IssueID).Msg("events: sink failed")
		}
	}
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
