package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// SellerStatement is a seller's running ledger for one item.
type SellerStatement struct {
	SellerID    int64                `json:"seller_id"`
	ItemID      int64                `json:"item_id"`
	Entries     []SalesEntry         `json:"entries"`
	Outstanding balances.Outstanding `json:"outstanding"`
}

// AvailableStock reports per-variety stock strictly as of date. Identical
// concurrent calls share one read.
func (s *Service) AvailableStock(ctx context.Context, itemID int64, date time.Time) ([]inventory.Availability, error) {
	if err := requireID("item_id", itemID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, shared.Invalid("date", "required")
	}
	date = shared.DateOf(date)
	key := fmt.Sprintf("stock:%d:%s", itemID, shared.FormatDate(date))
	// The shared read outlives any single caller; each caller still stops
	// waiting on its own cancellation.
	readCtx := context.WithoutCancel(ctx)
	ch := s.reads.DoChan(key, func() (any, error) {
		var out []inventory.Availability
		err := s.repo.ReadTx(readCtx, func(ctx context.Context, tx TxRepository) error {
			ok, err := tx.ItemExists(ctx, itemID)
			if err != nil {
				return fmt.Errorf("ledger: item lookup: %w", err)
			}
			if !ok {
				return shared.NotFound("item", itemID)
			}
			out, err = inventory.NewBook(tx, s.Today()).AvailableStock(ctx, itemID, date)
			return err
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]inventory.Availability)), nil
	}
}

// Outstanding returns the cached position of a (party, item) ledger.
func (s *Service) Outstanding(ctx context.Context, role shared.Role, partyID, itemID int64) (balances.Outstanding, error) {
	if !role.Valid() {
		return balances.Outstanding{}, shared.Invalid("role", "must be supplier or seller")
	}
	var out balances.Outstanding
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.GetOutstanding(ctx, role, partyID, itemID)
		if errors.Is(err, balances.ErrOutstandingNotFound) {
			return shared.NotFound("outstanding", fmt.Sprintf("%s/%d/%d", role, partyID, itemID))
		}
		if err != nil {
			return fmt.Errorf("ledger: load outstanding: %w", err)
		}
		out = o
		return nil
	})
	return out, err
}

// SellerLedger lists a seller's entries for an item with their stamped
// running balances, in ledger order.
func (s *Service) SellerLedger(ctx context.Context, sellerID, itemID int64) (SellerStatement, error) {
	if err := requireID("seller_id", sellerID); err != nil {
		return SellerStatement{}, err
	}
	if err := requireID("item_id", itemID); err != nil {
		return SellerStatement{}, err
	}
	statement := SellerStatement{SellerID: sellerID, ItemID: itemID}
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		c := &cascade{tx: tx}
		if err := c.requirePair(ctx, shared.RoleSeller, sellerID, itemID); err != nil {
			return err
		}
		entries, err := tx.ListSalesEntries(ctx, sellerID, itemID)
		if err != nil {
			return fmt.Errorf("ledger: list sales entries: %w", err)
		}
		statement.Entries = entries
		o, err := tx.GetOutstanding(ctx, shared.RoleSeller, sellerID, itemID)
		switch {
		case errors.Is(err, balances.ErrOutstandingNotFound):
			statement.Outstanding = balances.Outstanding{Role: shared.RoleSeller, PartyID: sellerID, ItemID: itemID}
		case err != nil:
			return fmt.Errorf("ledger: load outstanding: %w", err)
		default:
			statement.Outstanding = o
		}
		return nil
	})
	if err != nil {
		return SellerStatement{}, err
	}
	if statement.Entries == nil {
		statement.Entries = []SalesEntry{}
	}
	return statement, nil
}

// RolloverInventory materialises today's snapshot for every live variety.
func (s *Service) RolloverInventory(ctx context.Context) (int, error) {
	created := 0
	err := s.mutate(ctx, "inventory.rollover", func(ctx context.Context, c *cascade) error {
		live, err := c.tx.ListAllCurrent(ctx)
		if err != nil {
			return fmt.Errorf("ledger: list current inventory: %w", err)
		}
		keys := make([]string, 0, len(live))
		for _, cur := range live {
			keys = append(keys, shared.InventoryLockKey(cur.ItemID, cur.Variety))
		}
		if err := c.lock(ctx, keys...); err != nil {
			return err
		}
		n, err := c.book.Rollover(ctx)
		created = n
		return err
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.logger.Info("inventory rollover", slog.String("business_day", shared.FormatDate(s.Today())), slog.Int("rows", created))
	}
	return created, nil
}
