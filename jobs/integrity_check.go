package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	jobmetrics "github.com/odyssey-erp/produce-ledger/internal/jobs"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// IntegrityRunner performs one consistency scan.
type IntegrityRunner interface {
	Run(ctx context.Context, repair bool) (integrity.Report, error)
}

// IntegrityCheckJob runs the scheduled consistency scan.
type IntegrityCheckJob struct {
	Runner  IntegrityRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	// Repair forces repair mode for scheduled runs regardless of payload.
	Repair bool
}

// NewIntegrityCheckJob initialises the integrity scan handler.
func NewIntegrityCheckJob(runner IntegrityRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityCheckJob {
	return &IntegrityCheckJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle executes one scan. A scan already running elsewhere is not retried.
func (j *IntegrityCheckJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Runner == nil {
		return errors.New("integrity check: handler not configured")
	}
	var payload IntegrityCheckPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("integrity check: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	repair := payload.Repair || j.Repair

	tracker := j.Metrics.Track(TaskIntegrityCheck)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Bool("repair", repair))
	report, err := j.Runner.Run(ctx, repair)
	if errors.Is(err, shared.ErrConflict) {
		logger.Info("integrity scan already running, skipping")
		return nil
	}
	if err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return err
	}
	logger.Info("completed integrity scan",
		slog.String("run_id", report.RunID),
		slog.Int("findings", len(report.Findings)),
		slog.Int("repairs", len(report.Repairs)),
	)
	return nil
}

func (j *IntegrityCheckJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
