package quota

import (
	"context"

	"github.com/hibiken/asynq"
)

// TypeAccounting is the periodic quota accounting task.
const TypeAccounting = "quota:accounting"

func NewAccountingTask() *asynq.Task {
	return asynq.NewTask(TypeAccounting, nil)
}

func (s *Service) HandleAccountingTask(ctx context.Context, _ *asynq.Task) error {
	_, _, err := s.RunAccounting(ctx)
	return err
}
