package contentapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/settings"
)

// PaginationMode selects the stopping policy for a pagination walk.
type PaginationMode int

const (
	// BoundedRecency caps the walk at a fixed page count and relies on
	// cursor resumption to eventually reach older data. Used by the poller.
	BoundedRecency PaginationMode = iota
	// DateBounded walks back through history until the oldest post on a
	// page falls before the date floor. Used by ad-hoc searches.
	DateBounded
)

const (
	maxPagesPerWalk   = 10
	retryLimit        = 3
	defaultRetryDelay = 10 * time.Second
)

// epochStart is the timestamp assigned to an empty page: it trivially fails
// any date-floor check, so a date-bounded walk halts there.
var epochStart = time.Unix(0, 0).UTC()

// ExternalServiceError is a non-retryable upstream failure: a non-2xx status
// (including retry-exhausted 503s) or a body that does not parse.
type ExternalServiceError struct {
	StatusCode int
	Body       string
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("content api returned status %d: %s", e.StatusCode, e.Body)
}

type SettingsStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

type QuotaRecorder interface {
	RecordCall(ctx context.Context) error
}

type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
	RetryDelay   time.Duration
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
	settings     SettingsStore
	quota        QuotaRecorder
	retryDelay   time.Duration
	sleep        func(time.Duration)
}

func NewClient(opts Options, store SettingsStore, quota QuotaRecorder) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retryDelay := opts.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}
	return &Client{
		baseURL:      opts.BaseURL,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		redirectURL:  opts.RedirectURL,
		httpClient:   &http.Client{Timeout: timeout},
		settings:     store,
		quota:        quota,
		retryDelay:   retryDelay,
		sleep:        time.Sleep,
	}
}

// FetchPostsForLocation walks the paginated post feed for a location starting
// at cursor. It returns every accumulated record together with the new cursor,
// which is the external id of the newest post seen (empty when none).
//
// In bounded-recency mode an upstream failure on any page ends the walk early
// and is not surfaced; in date-bounded mode it is returned alongside whatever
// was accumulated.
func (c *Client) FetchPostsForLocation(ctx context.Context, locationExternalID, cursor string, mode PaginationMode, dateFloor time.Time) ([]PostRecord, string, error) {
	next := fmt.Sprintf("%s/v1/locations/%s/media/recent?count=200&min_id=%s",
		c.baseURL, url.PathEscape(locationExternalID), url.QueryEscape(cursor))
	floor := truncateDay(dateFloor)

	var media []PostRecord
	var walkErr error
	consumed := 0
	for {
		var env postsEnvelope
		if err := c.getJSON(ctx, next, &env); err != nil {
			var svcErr *ExternalServiceError
			if mode == BoundedRecency && errors.As(err, &svcErr) {
				logger.Log.WithError(err).WithFields(map[string]interface{}{
					"location": locationExternalID,
					"pages":    consumed,
				}).Warn("page fetch failed, ending walk with partial results")
				break
			}
			walkErr = err
			break
		}
		consumed++

		pageOldest := epochStart
		for i, record := range env.Data {
			published := record.PublishedAt()
			if i == 0 || published.Before(pageOldest) {
				pageOldest = published
			}
		}

		media = append(media, env.Data...)

		hasNext := env.Pagination != nil && env.Pagination.NextURL != ""
		var keepWalking bool
		switch mode {
		case DateBounded:
			keepWalking = hasNext && !truncateDay(pageOldest).Before(floor)
		default:
			keepWalking = hasNext && consumed < maxPagesPerWalk
		}

		logger.Log.WithFields(map[string]interface{}{
			"location":    locationExternalID,
			"page":        consumed,
			"page_posts":  len(env.Data),
			"page_oldest": pageOldest,
			"has_next":    hasNext,
			"continue":    keepWalking,
		}).Debug("consumed feed page")

		if !keepWalking {
			break
		}
		next = env.Pagination.NextURL
	}

	newCursor := ""
	if len(media) > 0 {
		newCursor = media[0].ID
	}
	return media, newCursor, walkErr
}

// SearchLocations discovers upstream locations around a point.
func (c *Client) SearchLocations(ctx context.Context, lat, lng float64, radiusMeters int) ([]LocationRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/locations/search?lat=%s&lng=%s&distance=%d",
		c.baseURL, formatCoord(lat), formatCoord(lng), radiusMeters)

	var env locationsEnvelope
	if err := c.getJSON(ctx, endpoint, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// getJSON issues one authenticated GET, retrying 503s up to the retry limit
// with a fixed delay. Every attempt that reached the remote service records a
// quota entry, whatever the outcome.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	token, err := c.settings.Get(ctx, settings.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("reading access token: %w", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing api url: %w", err)
	}
	query := u.Query()
	query.Set("access_token", token)
	u.RawQuery = query.Encode()

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return fmt.Errorf("building api request: %w", err)
		}

		logger.Log.WithFields(map[string]interface{}{
			"path":    u.Path,
			"attempt": attempt,
		}).Debug("querying content API")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// The request never reached the remote service, so no
			// quota entry is recorded.
			return fmt.Errorf("content api request: %w", err)
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if recErr := c.quota.RecordCall(ctx); recErr != nil {
			logger.Log.WithError(recErr).Warn("failed to record quota entry")
		}
		if readErr != nil {
			return fmt.Errorf("reading api response: %w", readErr)
		}

		if resp.StatusCode == http.StatusServiceUnavailable && attempt < retryLimit {
			c.sleep(c.retryDelay)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			logger.Log.WithFields(map[string]interface{}{
				"status": resp.StatusCode,
				"path":   u.Path,
			}).Error("unexpected response from content API")
			return &ExternalServiceError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return &ExternalServiceError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return nil
	}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
