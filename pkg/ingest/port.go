package ingest

import (
	"context"
	"time"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/contentapi"
)

type Fetcher interface {
	FetchPostsForLocation(ctx context.Context, locationExternalID, cursor string, mode contentapi.PaginationMode, dateFloor time.Time) ([]contentapi.PostRecord, string, error)
}

type LocationStore interface {
	SaveCursor(ctx context.Context, id, cursor string, at time.Time) error
}

type PostStore interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	Create(ctx context.Context, post *catalog.Post) (bool, error)
	UpsertAuthor(ctx context.Context, externalID, username string) (*catalog.Author, error)
	UpsertTag(ctx context.Context, label string) (*catalog.Tag, error)
	LinkTag(ctx context.Context, post *catalog.Post, tag *catalog.Tag) error
}

type EventProducer interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}
