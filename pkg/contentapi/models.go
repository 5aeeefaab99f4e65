package contentapi

import (
	"strconv"
	"time"
)

// Wire types mirroring the content API envelope:
// {"data": [...], "pagination": {"next_url": ...}, "meta": {...}}

type Meta struct {
	Code         int    `json:"code"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type Pagination struct {
	NextURL   string `json:"next_url,omitempty"`
	NextMaxID string `json:"next_max_id,omitempty"`
}

type Caption struct {
	Text string `json:"text"`
}

type Likes struct {
	Count int `json:"count"`
}

type UserRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PostRecord is a single media entry as returned by the post-search endpoint.
type PostRecord struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"` // image or video
	CreatedTime string     `json:"created_time"`
	Link        string     `json:"link"`
	Caption     *Caption   `json:"caption"`
	Likes       Likes      `json:"likes"`
	User        UserRecord `json:"user"`
	Tags        []string   `json:"tags"`
}

// fallbackPublished stands in when a record carries a malformed timestamp.
var fallbackPublished = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

// PublishedAt parses the record's unix-seconds creation time.
func (p PostRecord) PublishedAt() time.Time {
	secs, err := strconv.ParseInt(p.CreatedTime, 10, 64)
	if err != nil {
		return fallbackPublished
	}
	return time.Unix(secs, 0).UTC()
}

// CaptionText returns the caption body, empty when the post has none.
func (p PostRecord) CaptionText() string {
	if p.Caption == nil {
		return ""
	}
	return p.Caption.Text
}

// LocationRecord is a single entry from the location-discovery endpoint.
type LocationRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type postsEnvelope struct {
	Meta       *Meta        `json:"meta,omitempty"`
	Data       []PostRecord `json:"data"`
	Pagination *Pagination  `json:"pagination,omitempty"`
}

type locationsEnvelope struct {
	Meta *Meta            `json:"meta,omitempty"`
	Data []LocationRecord `json:"data"`
}
