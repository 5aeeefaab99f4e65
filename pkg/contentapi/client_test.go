package contentapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/settings"
)

func init() {
	logger.Init()
}

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) Get(_ context.Context, name string) (string, error) {
	v, ok := f.values[name]
	if !ok {
		return "", fmt.Errorf("setting %s not found", name)
	}
	return v, nil
}

func (f *fakeSettings) Set(_ context.Context, name, value string) error {
	f.values[name] = value
	return nil
}

type fakeQuota struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeQuota) RecordCall(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeQuota) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestClient(baseURL string) (*Client, *fakeQuota, *[]time.Duration) {
	quota := &fakeQuota{}
	store := &fakeSettings{values: map[string]string{settings.KeyAccessToken: "token-1"}}
	client := NewClient(Options{BaseURL: baseURL, RetryDelay: 10 * time.Second}, store, quota)

	waits := &[]time.Duration{}
	client.sleep = func(d time.Duration) {
		*waits = append(*waits, d)
	}
	return client, quota, waits
}

func feedPost(id string, published time.Time) PostRecord {
	return PostRecord{
		ID:          id,
		Type:        "image",
		CreatedTime: strconv.FormatInt(published.Unix(), 10),
		Link:        "https://example.com/p/" + id,
		Likes:       Likes{Count: 3},
		User:        UserRecord{ID: "author-1", Username: "someone"},
		Tags:        []string{"sunset"},
	}
}

// feedServer serves a numbered sequence of pages; pageFor decides the payload
// for each page number (1-based).
func feedServer(t *testing.T, pageFor func(page int, selfURL string) (int, postsEnvelope)) *httptest.Server {
	t.Helper()
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "" {
			t.Error("expected access_token query parameter")
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 0 {
			page = 1
		}
		status, env := pageFor(page, srvURL)
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(env)
		} else {
			w.Write([]byte("upstream unavailable"))
		}
	}))
	srvURL = srv.URL
	return srv
}

func nextPageURL(selfURL string, page int) string {
	return fmt.Sprintf("%s/v1/locations/loc-1/media/recent?page=%d", selfURL, page)
}

func TestRetryExhaustionReturnsExternalServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	client, quota, waits := newTestClient(srv.URL)
	_, err := client.SearchLocations(context.Background(), 41.4, 2.17, 750)

	var svcErr *ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if svcErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", svcErr.StatusCode)
	}
	if svcErr.Body != "maintenance" {
		t.Fatalf("expected raw body to be captured, got %q", svcErr.Body)
	}
	if len(*waits) != 3 {
		t.Fatalf("expected 3 retry waits, got %d", len(*waits))
	}
	if quota.count() != 4 {
		t.Fatalf("expected 4 quota entries, got %d", quota.count())
	}
}

func TestRetrySucceedsOnFourthAttempt(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(locationsEnvelope{Data: []LocationRecord{{ID: "42", Name: "Plaza"}}})
	}))
	defer srv.Close()

	client, _, waits := newTestClient(srv.URL)
	locations, err := client.SearchLocations(context.Background(), 41.4, 2.17, 750)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(*waits) != 3 {
		t.Fatalf("expected 3 recorded waits, got %d", len(*waits))
	}
	if len(locations) != 1 || locations[0].ID != "42" {
		t.Fatalf("unexpected locations: %+v", locations)
	}
}

func TestUnparsableBodyReturnsExternalServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	_, err := client.SearchLocations(context.Background(), 41.4, 2.17, 750)

	var svcErr *ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
	if svcErr.Body != "<html>not json</html>" {
		t.Fatalf("expected raw body to be captured, got %q", svcErr.Body)
	}
}

func TestWalkHaltsWhenNextLinkMissing(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, mode := range []PaginationMode{BoundedRecency, DateBounded} {
		pagesServed := 0
		srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
			pagesServed++
			env := postsEnvelope{Data: []PostRecord{feedPost(fmt.Sprintf("p%d", page), published)}}
			if page < 3 {
				env.Pagination = &Pagination{NextURL: nextPageURL(selfURL, page + 1)}
			}
			return http.StatusOK, env
		})

		client, _, _ := newTestClient(srv.URL)
		posts, _, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", mode, published.AddDate(0, -1, 0))
		srv.Close()
		if err != nil {
			t.Fatalf("mode %v: unexpected error: %v", mode, err)
		}
		if pagesServed != 3 {
			t.Fatalf("mode %v: expected 3 pages consumed, got %d", mode, pagesServed)
		}
		if len(posts) != 3 {
			t.Fatalf("mode %v: expected 3 posts, got %d", mode, len(posts))
		}
	}
}

func TestBoundedRecencyCapsAtTenPages(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pagesServed := 0
	srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
		pagesServed++
		// Unbroken pagination link for far more pages than the cap.
		return http.StatusOK, postsEnvelope{
			Data:       []PostRecord{feedPost(fmt.Sprintf("p%d", page), published)},
			Pagination: &Pagination{NextURL: nextPageURL(selfURL, page + 1)},
		}
	})
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	posts, cursor, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", BoundedRecency, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pagesServed != 10 {
		t.Fatalf("expected exactly 10 pages consumed, got %d", pagesServed)
	}
	if len(posts) != 10 {
		t.Fatalf("expected 10 posts, got %d", len(posts))
	}
	if cursor != "p1" {
		t.Fatalf("expected cursor from first post of first page, got %q", cursor)
	}
}

func TestDateBoundedHaltsAtFloor(t *testing.T) {
	floor := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	dates := map[int]time.Time{
		1: time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC),
		2: time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC),
		3: time.Date(2024, 1, 12, 10, 0, 0, 0, time.UTC),
		4: time.Date(2024, 1, 9, 10, 0, 0, 0, time.UTC),
		5: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC),
	}
	pagesServed := 0
	srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
		pagesServed++
		return http.StatusOK, postsEnvelope{
			Data:       []PostRecord{feedPost(fmt.Sprintf("p%d", page), dates[page])},
			Pagination: &Pagination{NextURL: nextPageURL(selfURL, page + 1)},
		}
	})
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	posts, _, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", DateBounded, floor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pagesServed != 4 {
		t.Fatalf("expected pages 1-4 consumed, got %d", pagesServed)
	}
	if len(posts) != 4 {
		t.Fatalf("expected 4 posts accumulated, got %d", len(posts))
	}
}

func TestEmptyPageSentinelHaltsDateBoundedWalk(t *testing.T) {
	srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
		return http.StatusOK, postsEnvelope{
			Data:       []PostRecord{},
			Pagination: &Pagination{NextURL: nextPageURL(selfURL, page + 1)},
		}
	})
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	posts, cursor, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", DateBounded,
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("expected no posts, got %d", len(posts))
	}
	if cursor != "" {
		t.Fatalf("expected empty cursor when nothing was retrieved, got %q", cursor)
	}
}

func TestEmptyPageContinuesBoundedRecencyWalk(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pagesServed := 0
	srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
		pagesServed++
		env := postsEnvelope{Data: []PostRecord{}}
		if page == 2 {
			env.Data = []PostRecord{feedPost("p2", published)}
		}
		if page < 3 {
			env.Pagination = &Pagination{NextURL: nextPageURL(selfURL, page + 1)}
		}
		return http.StatusOK, env
	})
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	posts, cursor, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", BoundedRecency, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pagesServed != 3 {
		t.Fatalf("expected empty first page to keep the walk going, served %d pages", pagesServed)
	}
	if len(posts) != 1 || cursor != "p2" {
		t.Fatalf("expected post from page 2 with matching cursor, got %d posts, cursor %q", len(posts), cursor)
	}
}

func TestBoundedRecencyAbsorbsMidWalkFailure(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
		if page == 2 {
			return http.StatusInternalServerError, postsEnvelope{}
		}
		return http.StatusOK, postsEnvelope{
			Data:       []PostRecord{feedPost(fmt.Sprintf("p%d", page), published)},
			Pagination: &Pagination{NextURL: nextPageURL(selfURL, page + 1)},
		}
	})
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	posts, cursor, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", BoundedRecency, time.Time{})
	if err != nil {
		t.Fatalf("bounded-recency walk must not surface page errors, got %v", err)
	}
	if len(posts) != 1 || cursor != "p1" {
		t.Fatalf("expected accumulated first page, got %d posts, cursor %q", len(posts), cursor)
	}
}

func TestDateBoundedSurfacesMidWalkFailure(t *testing.T) {
	published := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	srv := feedServer(t, func(page int, selfURL string) (int, postsEnvelope) {
		if page == 2 {
			return http.StatusInternalServerError, postsEnvelope{}
		}
		return http.StatusOK, postsEnvelope{
			Data:       []PostRecord{feedPost(fmt.Sprintf("p%d", page), published)},
			Pagination: &Pagination{NextURL: nextPageURL(selfURL, page + 1)},
		}
	})
	defer srv.Close()

	client, _, _ := newTestClient(srv.URL)
	posts, _, err := client.FetchPostsForLocation(context.Background(), "loc-1", "", DateBounded, published.AddDate(0, -1, 0))

	var svcErr *ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ExternalServiceError from date-bounded walk, got %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected partial accumulation alongside the error, got %d posts", len(posts))
	}
}

func TestPublishedAtFallsBackOnMalformedTimestamp(t *testing.T) {
	record := PostRecord{CreatedTime: "not-a-number"}
	if got := record.PublishedAt(); !got.Equal(fallbackPublished) {
		t.Fatalf("expected fallback timestamp, got %v", got)
	}
}
