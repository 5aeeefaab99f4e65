package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/observability/metrics"
	"github.com/geopulse/harvester/pkg/settings"
	"github.com/redis/go-redis/v9"
)

// advisoryKey holds the trailing-hour call count for dashboards.
const advisoryKey = "geopulse:quota:hourly"

const accountingWindow = time.Hour

type Service struct {
	ledger   *Ledger
	settings *settings.Store
	redis    *redis.Client
}

// NewService wires the accounting service. redis may be nil; the advisory
// gauge is then skipped.
func NewService(ledger *Ledger, store *settings.Store, redisClient *redis.Client) *Service {
	return &Service{ledger: ledger, settings: store, redis: redisClient}
}

// RunAccounting prunes entries older than the window, counts the trailing
// hour and publishes the number as an advisory: a settings row plus an
// optional redis gauge.
func (s *Service) RunAccounting(ctx context.Context) (pruned, hourly int64, err error) {
	pruned, err = s.ledger.PruneOlderThan(ctx, accountingWindow)
	if err != nil {
		return 0, 0, fmt.Errorf("pruning quota entries: %w", err)
	}

	hourly, err = s.ledger.CountSince(ctx, accountingWindow)
	if err != nil {
		return pruned, 0, fmt.Errorf("counting quota entries: %w", err)
	}

	if err := s.settings.Set(ctx, settings.KeyHourlyQuota, strconv.FormatInt(hourly, 10)); err != nil {
		return pruned, hourly, fmt.Errorf("storing hourly quota: %w", err)
	}
	metrics.SetAPICallsLastHour(hourly)

	if s.redis != nil {
		if err := s.redis.Set(ctx, advisoryKey, hourly, 2*accountingWindow).Err(); err != nil {
			logger.Log.WithError(err).Warn("failed to publish quota advisory gauge")
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"pruned":       pruned,
		"hourly_calls": hourly,
	}).Info("quota accounting complete")
	return pruned, hourly, nil
}

func (s *Service) HourlyCount(ctx context.Context) (int64, error) {
	return s.ledger.CountSince(ctx, accountingWindow)
}
