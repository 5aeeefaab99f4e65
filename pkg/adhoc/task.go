package adhoc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeSearch runs one ad-hoc search job in the background.
const TypeSearch = "adhoc:search"

type searchPayload struct {
	JobID string `json:"job_id"`
}

// NewSearchTask builds the dispatch task for a job. The job tracks its own
// terminal state, so the task never retries.
func NewSearchTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(searchPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("marshaling search task: %w", err)
	}
	return asynq.NewTask(TypeSearch, payload, asynq.MaxRetry(0)), nil
}

func (r *Runner) HandleSearchTask(ctx context.Context, t *asynq.Task) error {
	var payload searchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshaling search task: %w", err)
	}
	return r.Run(ctx, payload.JobID)
}
