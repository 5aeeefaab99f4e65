package models

import "time"

// Event is the envelope published on the harvest event stream.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // post.harvested, job.completed, job.error
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// CreateAdhocJobRequest starts an area/time bounded background search.
type CreateAdhocJobRequest struct {
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Radius     int      `json:"radius"`
	StartDate  string   `json:"start_date"` // YYYY-MM-DD
	EndDate    string   `json:"end_date"`   // YYYY-MM-DD
	Month      *int     `json:"month,omitempty"`
	Weekday    *int     `json:"weekday,omitempty"`
	SlotRange  *int     `json:"slot_range,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type AdhocJobResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	FailureDetail string    `json:"failure_detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type IngestLocationResponse struct {
	LocationID  string    `json:"location_id"`
	Cursor      string    `json:"cursor,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

type QuotaResponse struct {
	HourlyCalls int64     `json:"hourly_calls"`
	MeasuredAt  time.Time `json:"measured_at"`
}

type AccountingResponse struct {
	Pruned      int64 `json:"pruned"`
	HourlyCalls int64 `json:"hourly_calls"`
}
