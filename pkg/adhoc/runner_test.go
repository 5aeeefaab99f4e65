package adhoc

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/contentapi"
	"github.com/geopulse/harvester/pkg/exclusion"
	"github.com/google/uuid"
)

func init() {
	logger.Init()
}

type fakeDiscoverer struct {
	records   []contentapi.LocationRecord
	err       error
	gotRadius int
}

func (f *fakeDiscoverer) SearchLocations(_ context.Context, _, _ float64, radiusMeters int) ([]contentapi.LocationRecord, error) {
	f.gotRadius = radiusMeters
	return f.records, f.err
}

type fakeAdhocIngester struct {
	errs     map[string]error
	ingested []string
	gotFloor time.Time
	gotJobID string
}

func (f *fakeAdhocIngester) IngestAdhoc(_ context.Context, loc *catalog.MonitoredLocation, dateFloor time.Time, jobID string) (int, error) {
	f.ingested = append(f.ingested, loc.ExternalID)
	f.gotFloor = dateFloor
	f.gotJobID = jobID
	if err := f.errs[loc.ExternalID]; err != nil {
		return 0, err
	}
	return 2, nil
}

type fakeLocations struct {
	known   map[string]bool
	created []*catalog.MonitoredLocation
}

func (f *fakeLocations) ExternalIDKnown(_ context.Context, externalID string) (bool, error) {
	return f.known[externalID], nil
}

func (f *fakeLocations) Create(_ context.Context, loc *catalog.MonitoredLocation) error {
	loc.ID = uuid.New().String()
	f.created = append(f.created, loc)
	return nil
}

type fakeSpots struct {
	spot *catalog.Spot
}

func (f *fakeSpots) CreateAdhoc(_ context.Context, lat, lng float64) (*catalog.Spot, error) {
	f.spot = &catalog.Spot{ID: uuid.New().String(), Latitude: lat, Longitude: lng, IsAdhoc: true}
	return f.spot, nil
}

type fakeJobs struct {
	job       *catalog.AdhocJob
	completed bool
	detail    string
}

func (f *fakeJobs) Get(_ context.Context, id string) (*catalog.AdhocJob, error) {
	if f.job == nil || f.job.ID != id {
		return nil, errors.New("job not found")
	}
	return f.job, nil
}

func (f *fakeJobs) MarkCompleted(_ context.Context, _ string) error {
	f.completed = true
	return nil
}

func (f *fakeJobs) MarkError(_ context.Context, _ string, detail string) error {
	f.detail = detail
	return nil
}

func testJob() *catalog.AdhocJob {
	return &catalog.AdhocJob{
		ID:        uuid.New().String(),
		Latitude:  41.4,
		Longitude: 2.17,
		StartDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		Status:    catalog.JobStatusInProgress,
	}
}

func discovered(ids ...string) []contentapi.LocationRecord {
	records := make([]contentapi.LocationRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, contentapi.LocationRecord{ID: id, Name: "loc " + id, Latitude: 41.4, Longitude: 2.17})
	}
	return records
}

func newTestRunner(job *catalog.AdhocJob, discovery *fakeDiscoverer, ingester *fakeAdhocIngester, locations *fakeLocations) (*Runner, *fakeJobs, *exclusion.Flag) {
	if locations.known == nil {
		locations.known = map[string]bool{}
	}
	jobs := &fakeJobs{job: job}
	flag := exclusion.NewFlag(nil)
	return NewRunner(discovery, ingester, locations, &fakeSpots{}, jobs, flag, 0), jobs, flag
}

func TestRunCompletesJob(t *testing.T) {
	job := testJob()
	discovery := &fakeDiscoverer{records: discovered("100", "200")}
	ingester := &fakeAdhocIngester{}
	locations := &fakeLocations{}
	r, jobs, flag := newTestRunner(job, discovery, ingester, locations)

	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !jobs.completed {
		t.Fatal("expected job marked completed")
	}
	if flag.Active() {
		t.Fatal("exclusion flag must be cleared after the run")
	}
	if discovery.gotRadius != defaultDiscoveryRadius {
		t.Fatalf("expected default discovery radius, got %d", discovery.gotRadius)
	}
	if len(locations.created) != 2 {
		t.Fatalf("expected 2 created locations, got %d", len(locations.created))
	}
	if !ingester.gotFloor.Equal(job.StartDate) {
		t.Fatalf("expected job start date as floor, got %v", ingester.gotFloor)
	}
	if ingester.gotJobID != job.ID {
		t.Fatalf("expected job id passed through, got %q", ingester.gotJobID)
	}
}

func TestRunUsesJobRadiusWhenSet(t *testing.T) {
	job := testJob()
	job.Radius = 1500
	discovery := &fakeDiscoverer{}
	r, _, _ := newTestRunner(job, discovery, &fakeAdhocIngester{}, &fakeLocations{})

	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discovery.gotRadius != 1500 {
		t.Fatalf("expected job radius used for discovery, got %d", discovery.gotRadius)
	}
}

func TestRunSkipsKnownLocations(t *testing.T) {
	job := testJob()
	discovery := &fakeDiscoverer{records: discovered("100", "200")}
	ingester := &fakeAdhocIngester{}
	locations := &fakeLocations{known: map[string]bool{"100": true}}
	r, _, _ := newTestRunner(job, discovery, ingester, locations)

	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locations.created) != 1 || locations.created[0].ExternalID != "200" {
		t.Fatalf("expected only the unknown location created, got %+v", locations.created)
	}
	if len(ingester.ingested) != 1 || ingester.ingested[0] != "200" {
		t.Fatalf("expected only fresh locations ingested, got %v", ingester.ingested)
	}
}

func TestRunContinuesPastUpstreamFailure(t *testing.T) {
	job := testJob()
	discovery := &fakeDiscoverer{records: discovered("100", "200", "300")}
	ingester := &fakeAdhocIngester{errs: map[string]error{
		"200": &contentapi.ExternalServiceError{StatusCode: http.StatusServiceUnavailable, Body: "maintenance"},
	}}
	r, jobs, flag := newTestRunner(job, discovery, ingester, &fakeLocations{})

	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ingester.ingested; len(got) != 3 || got[2] != "300" {
		t.Fatalf("expected the third location attempted after the second failed, got %v", got)
	}
	if !jobs.completed {
		t.Fatal("upstream failures on single locations must not fail the job")
	}
	if flag.Active() {
		t.Fatal("exclusion flag must be cleared after the run")
	}
}

func TestRunRecordsInternalFailure(t *testing.T) {
	job := testJob()
	discovery := &fakeDiscoverer{records: discovered("100")}
	ingester := &fakeAdhocIngester{errs: map[string]error{"100": errors.New("database gone")}}
	r, jobs, flag := newTestRunner(job, discovery, ingester, &fakeLocations{})

	err := r.Run(context.Background(), job.ID)
	if err == nil {
		t.Fatal("expected the internal failure to surface")
	}
	if jobs.completed {
		t.Fatal("failed job must not be marked completed")
	}
	if !strings.Contains(jobs.detail, "database gone") {
		t.Fatalf("expected failure detail captured, got %q", jobs.detail)
	}
	if flag.Active() {
		t.Fatal("exclusion flag must be cleared even on failure")
	}
}

func TestRunToleratesDiscoveryOutage(t *testing.T) {
	job := testJob()
	discovery := &fakeDiscoverer{err: &contentapi.ExternalServiceError{StatusCode: http.StatusBadGateway, Body: "down"}}
	ingester := &fakeAdhocIngester{}
	r, jobs, _ := newTestRunner(job, discovery, ingester, &fakeLocations{})

	if err := r.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("expected discovery outage absorbed, got %v", err)
	}
	if !jobs.completed {
		t.Fatal("expected job completed with nothing to search")
	}
	if len(ingester.ingested) != 0 {
		t.Fatalf("expected no ingestion, got %v", ingester.ingested)
	}
}
