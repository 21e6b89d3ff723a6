package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/produce-ledger/internal/jobs"
)

// InventoryRoller creates today's daily inventory rows.
type InventoryRoller interface {
	RolloverInventory(ctx context.Context) (int, error)
}

// InventoryRolloverJob runs the start-of-day rollover.
type InventoryRolloverJob struct {
	Roller  InventoryRoller
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewInventoryRolloverJob initialises the rollover handler.
func NewInventoryRolloverJob(roller InventoryRoller, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryRolloverJob {
	return &InventoryRolloverJob{Roller: roller, Logger: logger, Metrics: metrics}
}

// Handle runs the rollover. Rows that already exist are left untouched so
// retries are safe.
func (j *InventoryRolloverJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Roller == nil {
		return errors.New("inventory rollover: handler not configured")
	}
	tracker := j.Metrics.Track(TaskInventoryRollover)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	created, err := j.Roller.RolloverInventory(ctx)
	if err != nil {
		logger.Error("inventory rollover failed", slog.Any("error", err))
		return err
	}
	logger.Info("completed inventory rollover", slog.Int("rows", created))
	return nil
}
