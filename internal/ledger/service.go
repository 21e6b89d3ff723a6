package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Service is the cascade orchestrator. Every exported mutation runs as one
// transaction that rewrites all derived state it invalidates.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	observer MutationObserver
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
	reads    singleflight.Group
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	// Location fixes the business calendar used to decide "today".
	Location *time.Location
	Logger   *slog.Logger
	Audit    AuditPort
	Observer MutationObserver
	Clock    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	s := &Service{
		repo:     repo,
		audit:    cfg.Audit,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		location: cfg.Location,
		now:      cfg.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Today returns the current business day.
func (s *Service) Today() time.Time {
	return shared.Today(s.now(), s.location)
}

// cascade bundles the per-transaction collaborators of one mutation.
type cascade struct {
	tx     TxRepository
	book   *inventory.Book
	recalc *balances.Recalculator
	today  time.Time
}

func (s *Service) mutate(ctx context.Context, operation string, fn func(context.Context, *cascade) error) error {
	today := s.Today()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, &cascade{
			tx:     tx,
			book:   inventory.NewBook(tx, today),
			recalc: balances.NewRecalculator(tx, s.now),
			today:  today,
		})
	})
	if s.observer != nil {
		s.observer.ObserveMutation(operation, err)
	}
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrNotFound):
		s.logger.Debug("ledger mutation rejected", slog.String("operation", operation), slog.Any("error", err))
	case errors.Is(err, shared.ErrInventoryViolation):
		s.logger.Warn("ledger mutation rejected", slog.String("operation", operation), slog.Any("error", err))
	default:
		s.logger.Error("ledger mutation failed", slog.String("operation", operation), slog.Any("error", err))
	}
	return err
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// businessDate normalises date and rejects days after today.
func (s *Service) businessDate(field string, date time.Time) (time.Time, error) {
	if date.IsZero() {
		return time.Time{}, shared.Invalid(field, "required")
	}
	date = shared.DateOf(date)
	if today := s.Today(); date.After(today) {
		return time.Time{}, shared.Invalid(field, "%s is after business day %s", shared.FormatDate(date), shared.FormatDate(today))
	}
	return date, nil
}

func (c *cascade) lock(ctx context.Context, keys ...string) error {
	if err := c.tx.Lock(ctx, keys...); err != nil {
		return fmt.Errorf("ledger: lock: %w", err)
	}
	return nil
}

func (c *cascade) requireItem(ctx context.Context, itemID int64) error {
	ok, err := c.tx.ItemExists(ctx, itemID)
	if err != nil {
		return fmt.Errorf("ledger: item lookup: %w", err)
	}
	if !ok {
		return shared.NotFound("item", itemID)
	}
	return nil
}

func (c *cascade) requireParty(ctx context.Context, role shared.Role, partyID int64) error {
	ok, err := c.tx.PartyExists(ctx, role, partyID)
	if err != nil {
		return fmt.Errorf("ledger: %s lookup: %w", role, err)
	}
	if !ok {
		return shared.NotFound(string(role), partyID)
	}
	return nil
}

func (c *cascade) requirePair(ctx context.Context, role shared.Role, partyID, itemID int64) error {
	if err := c.requireParty(ctx, role, partyID); err != nil {
		return err
	}
	return c.requireItem(ctx, itemID)
}

// refreshSeller rebuilds the seller's cached outstanding and restamps the
// running ledger from from onwards.
func (c *cascade) refreshSeller(ctx context.Context, sellerID, itemID int64, from time.Time) (balances.Outstanding, error) {
	o, err := c.recalc.RecalculateSellerOutstanding(ctx, sellerID, itemID)
	if err != nil {
		return balances.Outstanding{}, err
	}
	if err := c.recalc.RecalculateAllTransactionsFromDate(ctx, sellerID, itemID, from); err != nil {
		return balances.Outstanding{}, err
	}
	return o, nil
}

func requireID(field string, id int64) error {
	if id <= 0 {
		return shared.Invalid(field, "required")
	}
	return nil
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return shared.Invalid(field, "must be positive")
	}
	return nil
}

func requireNonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return shared.Invalid(field, "must not be negative")
	}
	return nil
}
