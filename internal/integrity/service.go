package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Recorder receives the outcome of each scan.
type Recorder interface {
	AddFindings(issues, repairs int)
}

// Service runs at most one scan at a time across every process sharing the
// Redis lock, and remembers the last report.
type Service struct {
	auditor  *Auditor
	cache    *ReportCache
	locker   *redislock.Client
	lockTTL  time.Duration
	recorder Recorder
	logger   *slog.Logger

	running sync.Mutex
	mu      sync.Mutex
	last    *Report
}

// ServiceConfig groups optional collaborators. Without Locker scans are only
// serialised within this process; without Cache the last report lives in memory.
type ServiceConfig struct {
	Cache    *ReportCache
	Locker   *redislock.Client
	LockTTL  time.Duration
	Recorder Recorder
	Logger   *slog.Logger
}

// NewService builds Service.
func NewService(auditor *Auditor, cfg ServiceConfig) *Service {
	s := &Service{
		auditor:  auditor,
		cache:    cfg.Cache,
		locker:   cfg.Locker,
		lockTTL:  cfg.LockTTL,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Minute
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run performs one scan. A scan already holding the lock yields ErrConflict.
func (s *Service) Run(ctx context.Context, repair bool) (Report, error) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, shared.IntegrityLockKey(), s.lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return Report{}, fmt.Errorf("integrity: scan already running: %w", shared.ErrConflict)
		}
		if err != nil {
			return Report{}, fmt.Errorf("integrity: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				s.logger.Warn("integrity lock release", slog.Any("error", err))
			}
		}()
	} else if !s.running.TryLock() {
		return Report{}, fmt.Errorf("integrity: scan already running: %w", shared.ErrConflict)
	} else {
		defer s.running.Unlock()
	}

	report, err := s.auditor.Check(ctx, repair)
	if err != nil {
		return Report{}, err
	}
	if s.recorder != nil {
		s.recorder.AddFindings(len(report.Issues), len(report.Repairs))
	}
	s.remember(ctx, report)
	return report, nil
}

func (s *Service) remember(ctx context.Context, r Report) {
	if s.cache != nil {
		if err := s.cache.Store(ctx, r); err != nil {
			s.logger.Warn("integrity report cache", slog.Any("error", err))
		}
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &r
}

// Last returns the most recent report.
func (s *Service) Last(ctx context.Context) (Report, error) {
	if s.cache != nil {
		r, ok, err := s.cache.Last(ctx)
		if err != nil {
			return Report{}, err
		}
		if !ok {
			return Report{}, shared.NotFound("integrity_report", "last")
		}
		return r, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Report{}, shared.NotFound("integrity_report", "last")
	}
	return *s.last, nil
}
