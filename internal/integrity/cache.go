package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lastReportKey = "ledger:integrity:last"

// ReportCache keeps the most recent report in Redis.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache builds a cache whose entries expire after ttl; zero keeps them.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// Store saves r as the last report.
func (c *ReportCache) Store(ctx context.Context, r Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("integrity: encode report: %w", err)
	}
	if err := c.client.Set(ctx, lastReportKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("integrity: store report: %w", err)
	}
	return nil
}

// Last returns the stored report; ok is false when none is cached.
func (c *ReportCache) Last(ctx context.Context) (Report, bool, error) {
	payload, err := c.client.Get(ctx, lastReportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, fmt.Errorf("integrity: load report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return Report{}, false, fmt.Errorf("integrity: decode report: %w", err)
	}
	return r, true, nil
}
