package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	pollPasses         atomic.Int64
	pollFailures       atomic.Int64
	postsStored        atomic.Int64
	postsDuplicate     atomic.Int64
	quarantineSize     atomic.Int64
	apiCallsLastHour   atomic.Int64
	adhocJobsCompleted atomic.Int64
	adhocJobsFailed    atomic.Int64
)

func IncPollPass()                { pollPasses.Add(1) }
func IncPollFailure()             { pollFailures.Add(1) }
func AddPostsStored(n int)        { postsStored.Add(int64(n)) }
func IncPostDuplicate()           { postsDuplicate.Add(1) }
func SetQuarantineSize(n int)     { quarantineSize.Store(int64(n)) }
func SetAPICallsLastHour(n int64) { apiCallsLastHour.Store(n) }
func IncAdhocCompleted()          { adhocJobsCompleted.Add(1) }
func IncAdhocFailed()             { adhocJobsFailed.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP geopulse_harvester_poll_passes_total Number of completed scheduled ingestion passes.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_poll_passes_total counter\n")
	fmt.Fprintf(w, "geopulse_harvester_poll_passes_total %d\n", pollPasses.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_poll_failures_total Number of scheduled ingestion passes that failed.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_poll_failures_total counter\n")
	fmt.Fprintf(w, "geopulse_harvester_poll_failures_total %d\n", pollFailures.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_posts_stored_total Number of new posts stored.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_posts_stored_total counter\n")
	fmt.Fprintf(w, "geopulse_harvester_posts_stored_total %d\n", postsStored.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_posts_duplicate_total Number of fetched posts skipped as already stored.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_posts_duplicate_total counter\n")
	fmt.Fprintf(w, "geopulse_harvester_posts_duplicate_total %d\n", postsDuplicate.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_quarantine_size Number of locations currently quarantined by the poll scheduler.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_quarantine_size gauge\n")
	fmt.Fprintf(w, "geopulse_harvester_quarantine_size %d\n", quarantineSize.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_api_calls_last_hour Number of content API calls in the last accounting window.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_api_calls_last_hour gauge\n")
	fmt.Fprintf(w, "geopulse_harvester_api_calls_last_hour %d\n", apiCallsLastHour.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_adhoc_jobs_completed_total Number of ad-hoc search jobs that reached completed.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_adhoc_jobs_completed_total counter\n")
	fmt.Fprintf(w, "geopulse_harvester_adhoc_jobs_completed_total %d\n", adhocJobsCompleted.Load())

	fmt.Fprintf(w, "# HELP geopulse_harvester_adhoc_jobs_failed_total Number of ad-hoc search jobs that ended in error.\n")
	fmt.Fprintf(w, "# TYPE geopulse_harvester_adhoc_jobs_failed_total counter\n")
	fmt.Fprintf(w, "geopulse_harvester_adhoc_jobs_failed_total %d\n", adhocJobsFailed.Load())
}
