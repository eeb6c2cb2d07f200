// Package workflow owns the issue status state machine.
//
// An issue moves unreported -> report_created -> report_sent. The only
// backwards move is report_created -> unreported when the last report of an
// issue is deleted. Transitions are guarded: a transition fires only when the
// issue is currently in its From state, otherwise it is a no-op.
package workflow

import (
	"fmt"

	"issuesmap/internal/models"
)

var (
	// ReportCreated fires when the first report of an issue is persisted.
	ReportCreated = models.Transition{
		Name: "report_created",
		From: models.StatusUnreported,
		To:   models.StatusReportCreated,
	}

	// ReportSent fires when a report email has been delivered.
	ReportSent = models.Transition{
		Name: "report_sent",
		From: models.StatusReportCreated,
		To:   models.StatusReportSent,
	}

	// LastReportDeleted fires when the last remaining report of an issue is deleted.
	LastReportDeleted = models.Transition{
		Name: "last_report_deleted",
		From: models.StatusReportCreated,
		To:   models.StatusUnreported,
	}
)

// Transitions lists every permitted transition.
func Transitions() []models.Transition {
	return []models.Transition{ReportCreated, ReportSent, LastReportDeleted}
}

// InitialStatus is the status of a newly created issue.
const InitialStatus = models.StatusUnreported

// Allowed reports whether t is one of the permitted transitions.
func Allowed(t models.Transition) bool {
	for _, p := range Transitions() {
		if p.From == t.From && p.To == t.To {
			return true
		}
	}
	return false
}

// Apply returns the status after applying t to current. The transition only
// fires when current equals t.From; changed reports whether it fired.
func Apply(current models.Status, t models.Transition) (next models.Status, changed bool, err error) {
	if !Allowed(t) {
		return current, false, fmt.Errorf("workflow: transition %s -> %s is not permitted", t.From, t.To)
	}
	if !current.Valid() {
		return current, false, fmt.Errorf("workflow: unknown status %q", current)
	}
	if current != t.From {
		return current, false, nil
	}
	return t.To, true, nil
}

// ValidHistory reports whether an observed sequence of statuses only moves
// along permitted transitions. Repeated statuses are ignored.
func ValidHistory(history []models.Status) bool {
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1], history[i]
		if prev == cur {
			continue
		}
		if !Allowed(models.Transition{From: prev, To: cur}) {
			return false
		}
	}
	return true
}
