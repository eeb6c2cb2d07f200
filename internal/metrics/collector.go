package metrics

import (
	"context"
	"time"

	"issuesmap/internal/models"

	"github.com/rs/zerolog/log"
)

// StatsSource provides functions to retrieve current counts for gauge metrics.
// Nil functions are skipped.
type StatsSource struct {
	IssuesByStatus   func(ctx context.Context) (map[models.Status]int, error)
	WebsocketClients func() int
}

// StartCollector launches a goroutine that periodically updates gauge metrics.
// It runs every interval until the context is cancelled.
func StartCollector(ctx context.Context, src StatsSource, interval time.Duration) {
	// Do an initial collection immediately
	collect(ctx, src)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				collect(ctx, src)
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Metrics collector started")
}

func collect(ctx context.Context, src StatsSource) {
	if src.IssuesByStatus != nil {
		counts, err := src.IssuesByStatus(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("metrics: failed to count issues")
		} else {
			for _, s := range []models.Status{models.StatusUnreported, models.StatusReportCreated, models.StatusReportSent} {
				IssuesByStatus.WithLabelValues(string(s)).Set(float64(counts[s]))
			}
		}
	}
	if src.WebsocketClients != nil {
		WebsocketClients.Set(float64(src.WebsocketClients()))
	}
}
