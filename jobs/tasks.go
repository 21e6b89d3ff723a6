package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityCheck runs the ledger consistency scan.
	TaskIntegrityCheck = "ledger:integrity_check"
	// TaskInventoryRollover materialises today's daily inventory rows.
	TaskInventoryRollover = "inventory:rollover"
)

// IntegrityCheckPayload selects report-only or repair mode.
type IntegrityCheckPayload struct {
	Repair      bool      `json:"repair"`
	RequestedAt time.Time `json:"requested_at"`
}

// InventoryRolloverPayload carries scheduling metadata. Cron-registered tasks
// leave ScheduledFor zero; the handler always rolls the current business day.
type InventoryRolloverPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIntegrityCheckTask constructs an Asynq task for the integrity scan.
func NewIntegrityCheckTask(payload IntegrityCheckPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityCheck, body, asynq.Queue(QueueDefault)), nil
}

// NewInventoryRolloverTask constructs an Asynq task for the daily rollover.
func NewInventoryRolloverTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(InventoryRolloverPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryRollover, body, asynq.Queue(QueueDefault)), nil
}
