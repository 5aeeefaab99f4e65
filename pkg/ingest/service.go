package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/contentapi"
	"github.com/geopulse/harvester/pkg/observability/metrics"
	"gorm.io/datatypes"
)

// EventPostHarvested is published on the event tap for every stored post.
const EventPostHarvested = "post.harvested"

type Service struct {
	fetcher   Fetcher
	locations LocationStore
	posts     PostStore
	producer  EventProducer
}

// NewService wires the ingestion engine. producer may be nil to disable the
// event tap.
func NewService(fetcher Fetcher, locations LocationStore, posts PostStore, producer EventProducer) *Service {
	return &Service{
		fetcher:   fetcher,
		locations: locations,
		posts:     posts,
		producer:  producer,
	}
}

// IngestLocation fetches the feed from the location's stored cursor in
// bounded-recency mode and stores every new post. The cursor and LastUpdated
// are persisted even when nothing new was found: the update marks "we
// checked", not "we found something".
func (s *Service) IngestLocation(ctx context.Context, loc *catalog.MonitoredLocation) error {
	logger.Log.WithFields(map[string]interface{}{
		"location": loc.ExternalID,
		"name":     loc.Name,
		"cursor":   loc.LatestCursor,
	}).Debug("ingesting location")

	records, newCursor, err := s.fetcher.FetchPostsForLocation(ctx, loc.ExternalID, loc.LatestCursor, contentapi.BoundedRecency, time.Time{})
	if err != nil {
		return fmt.Errorf("fetching posts for location %s: %w", loc.ExternalID, err)
	}

	created := 0
	for _, record := range records {
		stored, err := s.storeRecord(ctx, record, loc, nil)
		if err != nil {
			return fmt.Errorf("storing post %s: %w", record.ID, err)
		}
		if stored {
			created++
		}
	}

	metrics.AddPostsStored(created)
	now := time.Now().UTC()
	if err := s.locations.SaveCursor(ctx, loc.ID, newCursor, now); err != nil {
		return fmt.Errorf("saving cursor for location %s: %w", loc.ExternalID, err)
	}
	loc.LatestCursor = newCursor
	loc.LastUpdated = now

	logger.Log.WithFields(map[string]interface{}{
		"location": loc.ExternalID,
		"fetched":  len(records),
		"created":  created,
		"cursor":   newCursor,
	}).Info("location ingested")
	return nil
}

// IngestAdhoc fetches the feed in date-bounded mode down to dateFloor and
// stores every returned post tagged with the job. The date filter is implicit
// in the pagination walk; no secondary check is applied here, and the
// location's cursor is left untouched.
func (s *Service) IngestAdhoc(ctx context.Context, loc *catalog.MonitoredLocation, dateFloor time.Time, jobID string) (int, error) {
	records, _, err := s.fetcher.FetchPostsForLocation(ctx, loc.ExternalID, loc.LatestCursor, contentapi.DateBounded, dateFloor)
	if err != nil {
		return 0, fmt.Errorf("fetching posts for location %s: %w", loc.ExternalID, err)
	}

	created := 0
	for _, record := range records {
		stored, err := s.storeRecord(ctx, record, loc, &jobID)
		if err != nil {
			return created, fmt.Errorf("storing post %s: %w", record.ID, err)
		}
		if stored {
			created++
		}
	}

	metrics.AddPostsStored(created)
	logger.Log.WithFields(map[string]interface{}{
		"location": loc.ExternalID,
		"job_id":   jobID,
		"fetched":  len(records),
		"created":  created,
	}).Info("ad-hoc ingestion pass complete")
	return created, nil
}

func (s *Service) storeRecord(ctx context.Context, record contentapi.PostRecord, loc *catalog.MonitoredLocation, jobID *string) (bool, error) {
	exists, err := s.posts.ExistsByExternalID(ctx, record.ID)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Log.WithField("external_id", record.ID).Debug("post already in database, skipping")
		metrics.IncPostDuplicate()
		return false, nil
	}

	author, err := s.posts.UpsertAuthor(ctx, record.User.ID, record.User.Username)
	if err != nil {
		return false, fmt.Errorf("upserting author %s: %w", record.User.Username, err)
	}

	mediaKind := catalog.MediaKindVideo
	if record.Type == "image" {
		mediaKind = catalog.MediaKindPhoto
	}

	post := &catalog.Post{
		ExternalID:  record.ID,
		MediaKind:   mediaKind,
		PublishedAt: record.PublishedAt(),
		Link:        record.Link,
		Caption:     record.CaptionText(),
		Likes:       record.Likes.Count,
		AuthorID:    &author.ID,
		LocationID:  &loc.ID,
		AdhocJobID:  jobID,
		Payload:     payloadMap(record),
	}

	created, err := s.posts.Create(ctx, post)
	if err != nil {
		return false, err
	}
	if !created {
		// A concurrent ingester won the insert race; the existence check
		// above is only a fast path.
		logger.Log.WithField("external_id", record.ID).Debug("post inserted concurrently elsewhere, skipping")
		return false, nil
	}

	for _, label := range record.Tags {
		tag, err := s.posts.UpsertTag(ctx, label)
		if err != nil {
			return true, fmt.Errorf("upserting tag %s: %w", label, err)
		}
		if err := s.posts.LinkTag(ctx, post, tag); err != nil {
			return true, fmt.Errorf("linking tag %s: %w", label, err)
		}
	}

	if s.producer != nil {
		data := map[string]interface{}{
			"post_id":      post.ID,
			"external_id":  post.ExternalID,
			"location_id":  loc.ID,
			"media_kind":   post.MediaKind,
			"published_at": post.PublishedAt,
		}
		if jobID != nil {
			data["adhoc_job_id"] = *jobID
		}
		if err := s.producer.PublishEvent(ctx, EventPostHarvested, "harvester", data); err != nil {
			logger.Log.WithError(err).Warn("failed to publish harvest event")
		}
	}

	return true, nil
}

func payloadMap(record contentapi.PostRecord) datatypes.JSONMap {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return datatypes.JSONMap(m)
}
