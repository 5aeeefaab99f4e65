package adhoc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/contentapi"
	"github.com/geopulse/harvester/pkg/exclusion"
	"github.com/geopulse/harvester/pkg/observability/metrics"
)

const defaultDiscoveryRadius = 750

type Discoverer interface {
	SearchLocations(ctx context.Context, lat, lng float64, radiusMeters int) ([]contentapi.LocationRecord, error)
}

type Ingester interface {
	IngestAdhoc(ctx context.Context, loc *catalog.MonitoredLocation, dateFloor time.Time, jobID string) (int, error)
}

type LocationStore interface {
	ExternalIDKnown(ctx context.Context, externalID string) (bool, error)
	Create(ctx context.Context, loc *catalog.MonitoredLocation) error
}

type SpotCreator interface {
	CreateAdhoc(ctx context.Context, lat, lng float64) (*catalog.Spot, error)
}

type JobStore interface {
	Get(ctx context.Context, id string) (*catalog.AdhocJob, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, detail string) error
}

// Runner executes one ad-hoc search job to its terminal state. Per-location
// upstream failures are absorbed; anything else ends the job with status
// error and the failure captured.
type Runner struct {
	discovery     Discoverer
	ingester      Ingester
	locations     LocationStore
	spots         SpotCreator
	jobs          JobStore
	flag          *exclusion.Flag
	defaultRadius int
}

// NewRunner wires the job runner. defaultRadius is used when a job carries no
// radius of its own; zero selects the built-in default.
func NewRunner(discovery Discoverer, ingester Ingester, locations LocationStore, spots SpotCreator, jobs JobStore, flag *exclusion.Flag, defaultRadius int) *Runner {
	if defaultRadius <= 0 {
		defaultRadius = defaultDiscoveryRadius
	}
	return &Runner{
		discovery:     discovery,
		ingester:      ingester,
		locations:     locations,
		spots:         spots,
		jobs:          jobs,
		flag:          flag,
		defaultRadius: defaultRadius,
	}
}

// Run drives the job identified by jobID from in_progress to completed or
// error. The exclusion flag is cleared on every exit path; the poller must
// never be starved by a failed job.
func (r *Runner) Run(ctx context.Context, jobID string) error {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading ad-hoc job %s: %w", jobID, err)
	}

	r.flag.Raise(ctx)
	defer r.flag.Clear(ctx)

	logger.Log.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"lat":    job.Latitude,
		"lng":    job.Longitude,
	}).Info("ad-hoc search started")

	if err := r.execute(ctx, job); err != nil {
		logger.Log.WithError(err).WithField("job_id", job.ID).Error("ad-hoc search failed")
		if markErr := r.jobs.MarkError(ctx, job.ID, err.Error()); markErr != nil {
			logger.Log.WithError(markErr).WithField("job_id", job.ID).Error("failed to record job failure")
		}
		metrics.IncAdhocFailed()
		return err
	}

	if err := r.jobs.MarkCompleted(ctx, job.ID); err != nil {
		return fmt.Errorf("marking job %s completed: %w", job.ID, err)
	}
	metrics.IncAdhocCompleted()
	logger.Log.WithField("job_id", job.ID).Info("ad-hoc search completed")
	return nil
}

func (r *Runner) execute(ctx context.Context, job *catalog.AdhocJob) error {
	spot, err := r.spots.CreateAdhoc(ctx, job.Latitude, job.Longitude)
	if err != nil {
		return fmt.Errorf("creating ad-hoc spot: %w", err)
	}

	radius := job.Radius
	if radius <= 0 {
		radius = r.defaultRadius
	}

	records, err := r.discovery.SearchLocations(ctx, job.Latitude, job.Longitude, radius)
	if err != nil {
		var svcErr *contentapi.ExternalServiceError
		if errors.As(err, &svcErr) {
			logger.Log.WithError(err).WithField("job_id", job.ID).Warn("location discovery failed, nothing to search")
			return nil
		}
		return fmt.Errorf("discovering locations: %w", err)
	}

	var fresh []*catalog.MonitoredLocation
	for _, record := range records {
		known, err := r.locations.ExternalIDKnown(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("checking location %s: %w", record.ID, err)
		}
		if known {
			continue
		}
		loc := &catalog.MonitoredLocation{
			ExternalID: record.ID,
			Name:       record.Name,
			Latitude:   record.Latitude,
			Longitude:  record.Longitude,
			SpotID:     spot.ID,
		}
		if err := r.locations.Create(ctx, loc); err != nil {
			return fmt.Errorf("creating location %s: %w", record.ID, err)
		}
		fresh = append(fresh, loc)
	}

	logger.Log.WithFields(map[string]interface{}{
		"job_id":     job.ID,
		"discovered": len(records),
		"created":    len(fresh),
	}).Info("discovery pass complete")

	total := 0
	for _, loc := range fresh {
		count, err := r.ingester.IngestAdhoc(ctx, loc, job.StartDate, job.ID)
		if err != nil {
			var svcErr *contentapi.ExternalServiceError
			if errors.As(err, &svcErr) {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"job_id":      job.ID,
					"external_id": loc.ExternalID,
				}).Warn("skipping location after upstream failure")
				continue
			}
			return fmt.Errorf("ingesting location %s: %w", loc.ExternalID, err)
		}
		total += count
	}

	logger.Log.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"posts":  total,
	}).Info("ad-hoc ingestion finished")
	return nil
}
