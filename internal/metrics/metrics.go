package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuesmap_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "issuesmap_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Action metrics
var (
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuesmap_actions_total",
		Help: "Total number of workflow actions by outcome (ok or an error kind)",
	}, []string{"action", "outcome"})

	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuesmap_status_transitions_total",
		Help: "Total number of issue status transitions",
	}, []string{"to"})

	ReportsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuesmap_reports_sent_total",
		Help: "Total number of report emails delivered",
	})

	AuthLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuesmap_auth_logins_total",
		Help: "Total number of login attempts",
	}, []string{"status"})

	OrphansSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuesmap_orphaned_uploads_swept_total",
		Help: "Total number of orphaned uploads removed",
	})
)

// Gauges updated periodically by the collector
var (
	IssuesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "issuesmap_issues",
		Help: "Number of issues by status",
	}, []string{"status"})

	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "issuesmap_websocket_clients",
		Help: "Number of connected live map clients",
	})
)

// NormalizePath reduces high-cardinality path labels by replacing dynamic
// segments with placeholders. This keeps the metric label space bounded.
func NormalizePath(path string) string {
	segments := splitPath(path)
	if len(segments) < 2 {
		return path
	}

	switch segments[0] {
	case "files":
		return "/files/:name"
	case "issues", "reports":
		if len(segments) == 2 {
			return "/" + segments[0] + "/:id"
		}
	case "api":
		if len(segments) < 3 {
			return path
		}
		switch segments[1] {
		case "reports":
			switch len(segments) {
			case 3:
				return "/api/reports/:id"
			case 4:
				return "/api/reports/:id/" + segments[3]
			}
		case "issues":
			switch len(segments) {
			case 3:
				return "/api/issues/:id"
			case 4:
				return "/api/issues/:id/" + segments[3]
			case 5:
				if segments[3] == "images" {
					return "/api/issues/:id/images/:name"
				}
			}
		}
	}

	return path
}

func splitPath(path string) []string {
	// Skip leading slash
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		segments = append(segments, path[start:])
	}
	return segments
}
