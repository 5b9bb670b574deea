package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/skuledger/skuledger/internal/model"
)

// refreshTimeout bounds one scheduled refresh; it pages every site's catalog.
const refreshTimeout = 10 * time.Minute

// MappingRefresher runs the catalog mapping refresh across all sites.
type MappingRefresher interface {
	RefreshAllSites(ctx context.Context) ([]model.RefreshResult, error)
}

// StartMappingRefresh registers the periodic mapping refresh on the given cron
// schedule and starts the scheduler. Returns an error if the schedule string is
// invalid so that main() can fail fast with a clear message.
//
// The returned *cron.Cron must be stopped on shutdown; Stop returns a context
// that is done once a running refresh has finished:
//
//	c, err := scheduler.StartMappingRefresh(mappingService, cfg.Mapping.RefreshSchedule)
//	defer func() { <-c.Stop().Done() }()
func StartMappingRefresh(mappings MappingRefresher, schedule string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		log.Info().Msg("scheduled mapping refresh started")

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		results, err := mappings.RefreshAllSites(ctx)
		if err != nil {
			log.Error().Err(err).Msg("scheduled mapping refresh failed")
			return
		}

		inserted, failed := 0, 0
		for _, r := range results {
			inserted += r.Inserted
			failed += len(r.Errors)
		}
		log.Info().
			Int("sites", len(results)).
			Int("mappings", inserted).
			Int("errors", failed).
			Msg("scheduled mapping refresh done")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	c.Start()
	log.Info().Str("schedule", schedule).Msg("mapping refresh scheduler started")
	return c, nil
}
