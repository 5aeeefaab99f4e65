package catalog

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MediaKindPhoto = "photo"
	MediaKindVideo = "video"
)

const (
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusError      = "error"
)

// PlaceholderExternalID marks locations created without a real upstream id.
// The poller never selects them.
const PlaceholderExternalID = "0"

// City groups spots for which the harvester keeps fixed coverage.
type City struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"column:name;uniqueIndex"`
	CenterLat float64   `json:"center_lat" gorm:"column:center_lat"`
	CenterLng float64   `json:"center_lng" gorm:"column:center_lng"`
	Zoom      int       `json:"zoom" gorm:"column:zoom"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Spot is a spatial anchor owning one or more monitored locations. Spots
// created for an ad-hoc search are flagged and carry no city.
type Spot struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Latitude  float64   `json:"latitude" gorm:"column:latitude"`
	Longitude float64   `json:"longitude" gorm:"column:longitude"`
	CityID    *string   `json:"city_id,omitempty" gorm:"column:city_id"`
	City      *City     `json:"-" gorm:"foreignKey:CityID"`
	IsAdhoc   bool      `json:"is_adhoc" gorm:"column:is_adhoc"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// MonitoredLocation is an upstream location the poller walks. LastUpdated
// moves forward on every successful ingestion pass, found posts or not.
type MonitoredLocation struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	ExternalID   string    `json:"external_id" gorm:"column:external_id;index"`
	Name         string    `json:"name" gorm:"column:name"`
	Latitude     float64   `json:"latitude" gorm:"column:latitude"`
	Longitude    float64   `json:"longitude" gorm:"column:longitude"`
	SpotID       string    `json:"spot_id" gorm:"column:spot_id"`
	Spot         *Spot     `json:"-" gorm:"foreignKey:SpotID"`
	LatestCursor string    `json:"latest_cursor,omitempty" gorm:"column:latest_cursor"`
	LastUpdated  time.Time `json:"last_updated" gorm:"column:last_updated;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

type Author struct {
	ID         string    `json:"id" gorm:"primaryKey;column:id"`
	ExternalID string    `json:"external_id" gorm:"column:external_id;uniqueIndex:idx_authors_identity"`
	Username   string    `json:"username" gorm:"column:username;uniqueIndex:idx_authors_identity"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at"`
}

type Category struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Label     string    `json:"label" gorm:"column:label;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

type Tag struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	Label      string     `json:"label" gorm:"column:label;uniqueIndex"`
	Categories []Category `json:"categories,omitempty" gorm:"many2many:tag_categories"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

// Post is a harvested publication. ExternalID is the sole dedup key; a post
// is stored at most once no matter how many times its payload is re-fetched.
type Post struct {
	ID          string            `json:"id" gorm:"primaryKey;column:id"`
	ExternalID  string            `json:"external_id" gorm:"column:external_id;uniqueIndex"`
	MediaKind   string            `json:"media_kind" gorm:"column:media_kind"`
	PublishedAt time.Time         `json:"published_at" gorm:"column:published_at"`
	Link        string            `json:"link" gorm:"column:link"`
	Caption     string            `json:"caption" gorm:"column:caption"`
	Likes       int               `json:"likes" gorm:"column:likes"`
	AuthorID    *string           `json:"author_id,omitempty" gorm:"column:author_id"`
	LocationID  *string           `json:"location_id,omitempty" gorm:"column:location_id"`
	AdhocJobID  *string           `json:"adhoc_job_id,omitempty" gorm:"column:adhoc_job_id"`
	Payload     datatypes.JSONMap `json:"payload,omitempty" gorm:"column:payload"`
	Tags        []Tag             `json:"tags,omitempty" gorm:"many2many:post_tags"`
	CreatedAt   time.Time         `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"column:updated_at"`
}

// AdhocJob is a user-initiated bounded search. Status moves exactly once from
// in_progress to completed or error.
type AdhocJob struct {
	ID            string     `json:"id" gorm:"primaryKey;column:id"`
	Latitude      float64    `json:"latitude" gorm:"column:latitude"`
	Longitude     float64    `json:"longitude" gorm:"column:longitude"`
	Radius        int        `json:"radius" gorm:"column:radius"`
	StartDate     time.Time  `json:"start_date" gorm:"column:start_date"`
	EndDate       time.Time  `json:"end_date" gorm:"column:end_date"`
	Month         *int       `json:"month,omitempty" gorm:"column:month"`
	Weekday       *int       `json:"weekday,omitempty" gorm:"column:weekday"`
	SlotRange     *int       `json:"slot_range,omitempty" gorm:"column:slot_range"`
	Status        string     `json:"status" gorm:"column:status"`
	FailureDetail string     `json:"failure_detail,omitempty" gorm:"column:failure_detail"`
	Tags          []Tag      `json:"tags,omitempty" gorm:"many2many:adhoc_job_tags"`
	Categories    []Category `json:"categories,omitempty" gorm:"many2many:adhoc_job_categories"`
	CreatedAt     time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"column:updated_at"`
}
