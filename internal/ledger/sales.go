package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

func buildLines(inputs []SalesLineInput) ([]SalesLineItem, decimal.Decimal, decimal.Decimal, error) {
	if len(inputs) == 0 {
		return nil, decimal.Zero, decimal.Zero, shared.Invalid("lines", "at least one line item is required")
	}
	lines := make([]SalesLineItem, 0, len(inputs))
	quantity, amount := decimal.Zero, decimal.Zero
	for i, in := range inputs {
		variety := inventory.NormalizeVariety(in.Variety)
		if variety == "" {
			return nil, decimal.Zero, decimal.Zero, shared.Invalid(fmt.Sprintf("lines[%d].variety", i), "required")
		}
		if err := requirePositive(fmt.Sprintf("lines[%d].quantity", i), in.Quantity); err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		if err := requireNonNegative(fmt.Sprintf("lines[%d].sale_rate", i), in.SaleRate); err != nil {
			return nil, decimal.Zero, decimal.Zero, err
		}
		line := SalesLineItem{
			Variety:  variety,
			Quantity: in.Quantity,
			SaleRate: in.SaleRate,
			Amount:   in.Quantity.Mul(in.SaleRate),
		}
		quantity = quantity.Add(line.Quantity)
		amount = amount.Add(line.Amount)
		lines = append(lines, line)
	}
	return lines, quantity, amount, nil
}

func inventoryKeys(itemID int64, lines ...[]SalesLineItem) []string {
	var keys []string
	for _, set := range lines {
		for _, line := range set {
			keys = append(keys, shared.InventoryLockKey(itemID, line.Variety))
		}
	}
	return keys
}

// AddSalesEntry records a sale, moves every line's stock into sold, and
// restamps the seller's running ledger from the sale date.
func (s *Service) AddSalesEntry(ctx context.Context, input AddSalesInput) (Result, error) {
	if err := requireID("seller_id", input.SellerID); err != nil {
		return Result{}, err
	}
	if err := requireID("item_id", input.ItemID); err != nil {
		return Result{}, err
	}
	lines, quantity, amount, err := buildLines(input.Lines)
	if err != nil {
		return Result{}, err
	}
	for field, v := range map[string]decimal.Decimal{
		"crates_returned": input.CratesReturned,
		"amount_paid":     input.AmountPaid,
		"discount":        input.Discount,
	} {
		if err := requireNonNegative(field, v); err != nil {
			return Result{}, err
		}
	}
	date, err := s.businessDate("date", input.Date)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.mutate(ctx, "sales.add", func(ctx context.Context, c *cascade) error {
		keys := append([]string{
			shared.PartyItemLockKey(shared.RoleSeller, input.SellerID, input.ItemID),
			shared.SessionLockKey("sales", date),
		}, inventoryKeys(input.ItemID, lines)...)
		if err := c.lock(ctx, keys...); err != nil {
			return err
		}
		if err := c.requirePair(ctx, shared.RoleSeller, input.SellerID, input.ItemID); err != nil {
			return err
		}
		session, err := c.salesSession(ctx, date)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := c.book.ApplySale(ctx, input.ItemID, line.Variety, date, line.Quantity); err != nil {
				return err
			}
		}
		entry := SalesEntry{
			SessionID:      session.ID,
			Date:           date,
			SellerID:       input.SellerID,
			ItemID:         input.ItemID,
			TotalQuantity:  quantity,
			TotalAmount:    amount,
			AmountPaid:     input.AmountPaid,
			Discount:       input.Discount,
			CratesReturned: input.CratesReturned,
			Lines:          lines,
		}
		id, err := c.tx.InsertSalesEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("ledger: insert sales entry: %w", err)
		}
		if err := c.refreshSalesSession(ctx, session.ID); err != nil {
			return err
		}
		o, err := c.refreshSeller(ctx, input.SellerID, input.ItemID, date)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "sales.add", "sales_entry", result.EntryID, map[string]any{
		"seller_id": input.SellerID,
		"item_id":   input.ItemID,
		"amount":    amount.String(),
	})
	return result, nil
}

// UpdateSalesEntry changes settlement fields or replaces the line items. Line
// changes are netted per variety; updates never accept force.
func (s *Service) UpdateSalesEntry(ctx context.Context, id int64, patch SalesPatch) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var newLines []SalesLineItem
	var newQuantity, newAmount decimal.Decimal
	if patch.Lines != nil {
		var err error
		newLines, newQuantity, newAmount, err = buildLines(patch.Lines)
		if err != nil {
			return Result{}, err
		}
	}
	for field, v := range map[string]*decimal.Decimal{
		"crates_returned": patch.CratesReturned,
		"amount_paid":     patch.AmountPaid,
		"discount":        patch.Discount,
	} {
		if v == nil {
			continue
		}
		if err := requireNonNegative(field, *v); err != nil {
			return Result{}, err
		}
	}

	var result Result
	err := s.mutate(ctx, "sales.update", func(ctx context.Context, c *cascade) error {
		entry, err := c.tx.GetSalesEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		keys := append([]string{
			shared.PartyItemLockKey(shared.RoleSeller, entry.SellerID, entry.ItemID),
			shared.SessionLockKey("sales", entry.Date),
		}, inventoryKeys(entry.ItemID, entry.Lines, newLines)...)
		if err := c.lock(ctx, keys...); err != nil {
			return err
		}

		if patch.Lines != nil {
			if err := c.replaceSaleLines(ctx, entry.ItemID, entry.Date, entry.Lines, newLines); err != nil {
				return err
			}
			entry.Lines = newLines
			entry.TotalQuantity = newQuantity
			entry.TotalAmount = newAmount
		}
		if patch.AmountPaid != nil {
			entry.AmountPaid = *patch.AmountPaid
		}
		if patch.Discount != nil {
			entry.Discount = *patch.Discount
		}
		if patch.CratesReturned != nil {
			entry.CratesReturned = *patch.CratesReturned
		}
		if err := c.tx.UpdateSalesEntry(ctx, entry); err != nil {
			return fmt.Errorf("ledger: update sales entry: %w", err)
		}
		if err := c.refreshSalesSession(ctx, entry.SessionID); err != nil {
			return err
		}
		o, err := c.refreshSeller(ctx, entry.SellerID, entry.ItemID, entry.Date)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "sales.update", "sales_entry", id, map[string]any{"lines_replaced": patch.Lines != nil})
	return result, nil
}

// DeleteSalesEntry removes a sale, returning its stock and restamping every
// later entry of the seller's running ledger.
func (s *Service) DeleteSalesEntry(ctx context.Context, id int64, force bool) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.mutate(ctx, "sales.delete", func(ctx context.Context, c *cascade) error {
		entry, err := c.tx.GetSalesEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		keys := append([]string{
			shared.PartyItemLockKey(shared.RoleSeller, entry.SellerID, entry.ItemID),
			shared.SessionLockKey("sales", entry.Date),
		}, inventoryKeys(entry.ItemID, entry.Lines)...)
		if err := c.lock(ctx, keys...); err != nil {
			return err
		}
		for _, line := range entry.Lines {
			if err := c.book.ReverseSale(ctx, entry.ItemID, line.Variety, entry.Date, line.Quantity, force); err != nil {
				return err
			}
		}
		if err := c.tx.DeleteSalesEntry(ctx, id); err != nil {
			return fmt.Errorf("ledger: delete sales entry: %w", err)
		}
		if err := c.refreshSalesSession(ctx, entry.SessionID); err != nil {
			return err
		}
		o, err := c.recalc.RecalculateSellerOutstanding(ctx, entry.SellerID, entry.ItemID)
		if err != nil {
			return err
		}
		if err := c.recalc.RecalculateSubsequentBalancesAfterDeletion(ctx, entry.SellerID, entry.ItemID, entry.Date, id); err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "sales.delete", "sales_entry", id, map[string]any{"force": force})
	return result, nil
}

// replaceSaleLines moves stock by the per-variety difference between old and
// updated lines. Returns are booked before new outflows.
func (c *cascade) replaceSaleLines(ctx context.Context, itemID int64, date time.Time, old, updated []SalesLineItem) error {
	delta := make(map[string]decimal.Decimal)
	for _, line := range updated {
		delta[line.Variety] = delta[line.Variety].Add(line.Quantity)
	}
	for _, line := range old {
		delta[line.Variety] = delta[line.Variety].Sub(line.Quantity)
	}
	varieties := make([]string, 0, len(delta))
	for variety := range delta {
		varieties = append(varieties, variety)
	}
	sort.Strings(varieties)
	for _, variety := range varieties {
		if qty := delta[variety]; qty.IsNegative() {
			if err := c.book.ReverseSale(ctx, itemID, variety, date, qty.Neg(), false); err != nil {
				return err
			}
		}
	}
	for _, variety := range varieties {
		if qty := delta[variety]; qty.IsPositive() {
			if err := c.book.ApplySale(ctx, itemID, variety, date, qty); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *cascade) salesSession(ctx context.Context, date time.Time) (SalesSession, error) {
	session, err := c.tx.GetSalesSessionByDate(ctx, date)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return SalesSession{}, fmt.Errorf("ledger: load sales session: %w", err)
	}
	session, err = c.tx.CreateSalesSession(ctx, date)
	if err != nil {
		return SalesSession{}, fmt.Errorf("ledger: create sales session: %w", err)
	}
	return session, nil
}

// refreshSalesSession recomputes the session totals, deleting the session
// once its last entry is gone.
func (c *cascade) refreshSalesSession(ctx context.Context, sessionID int64) error {
	total, sellers, count, err := c.tx.SummarizeSalesSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("ledger: summarize sales session: %w", err)
	}
	if count == 0 {
		if err := c.tx.DeleteSalesSession(ctx, sessionID); err != nil {
			return fmt.Errorf("ledger: delete sales session: %w", err)
		}
		return nil
	}
	if err := c.tx.UpdateSalesSessionTotals(ctx, sessionID, total, sellers); err != nil {
		return fmt.Errorf("ledger: update sales session: %w", err)
	}
	return nil
}
