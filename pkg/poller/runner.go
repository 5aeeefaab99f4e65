package poller

import (
	"context"
	"time"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/exclusion"
	"github.com/geopulse/harvester/pkg/observability/metrics"
	"github.com/geopulse/harvester/pkg/settings"
)

const (
	// adhocYield is how long the loop sleeps when an ad-hoc job holds the
	// exclusion flag. Ad-hoc jobs always win.
	adhocYield = 60 * time.Second

	// quarantineSweep is measured from the last sweep, not wall-clock
	// aligned.
	quarantineSweep = time.Hour

	defaultIntervalSeconds = 60
)

type Ingester interface {
	IngestLocation(ctx context.Context, loc *catalog.MonitoredLocation) error
}

type LocationSelector interface {
	NextEligible(ctx context.Context, excludedIDs []string) (*catalog.MonitoredLocation, error)
}

type IntervalSource interface {
	GetInt(ctx context.Context, name string, fallback int) int
}

// Runner is the perpetual poll scheduler: each iteration it picks the
// least-recently-updated eligible location, ingests it, and paces itself so
// successive ingestion starts are one interval apart. Locations that fail are
// quarantined until the hourly sweep clears the whole map.
type Runner struct {
	locations LocationSelector
	ingester  Ingester
	flag      *exclusion.Flag
	settings  IntervalSource

	quarantine map[string]time.Time
	lastSweep  time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func NewRunner(locations LocationSelector, ingester Ingester, flag *exclusion.Flag, intervals IntervalSource) *Runner {
	return &Runner{
		locations:  locations,
		ingester:   ingester,
		flag:       flag,
		settings:   intervals,
		quarantine: make(map[string]time.Time),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Run loops until ctx is cancelled. No error terminates the loop; failures
// are scoped to the location that caused them.
func (r *Runner) Run(ctx context.Context) {
	logger.Log.Info("poll scheduler started")
	r.lastSweep = r.now()
	for ctx.Err() == nil {
		r.iterate(ctx)
	}
	logger.Log.Info("poll scheduler stopped")
}

func (r *Runner) iterate(ctx context.Context) {
	if r.flag.Active() {
		logger.Log.Info("ad-hoc job running, yielding")
		r.sleep(ctx, adhocYield)
		return
	}

	interval := time.Duration(r.settings.GetInt(ctx, settings.KeyPollInterval, defaultIntervalSeconds)) * time.Second
	started := r.now()

	loc, err := r.locations.NextEligible(ctx, r.quarantinedIDs())
	switch {
	case err != nil:
		logger.Log.WithError(err).Error("failed to select location")
	case loc == nil:
		logger.Log.Debug("no eligible locations to poll")
	default:
		if err := r.ingester.IngestLocation(ctx, loc); err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"location_id": loc.ID,
				"external_id": loc.ExternalID,
			}).Error("ingestion failed, quarantining location")
			r.quarantine[loc.ID] = r.now()
			metrics.IncPollFailure()
		} else {
			delete(r.quarantine, loc.ID)
			metrics.IncPollPass()
		}
	}
	metrics.SetQuarantineSize(len(r.quarantine))

	elapsed := r.now().Sub(started)
	if remaining := interval - elapsed; remaining > 0 {
		logger.Log.WithField("sleep", remaining.String()).Debug("pacing until next iteration")
		r.sleep(ctx, remaining)
	}

	if r.now().Sub(r.lastSweep) >= quarantineSweep {
		logger.Log.WithField("cleared", len(r.quarantine)).Info("clearing quarantined locations")
		r.quarantine = make(map[string]time.Time)
		r.lastSweep = r.now()
	}
}

func (r *Runner) quarantinedIDs() []string {
	if len(r.quarantine) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.quarantine))
	for id := range r.quarantine {
		ids = append(ids, id)
	}
	return ids
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
