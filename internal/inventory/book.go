package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Book applies stock movements to the current and daily views as of one
// business day. A Book is bound to a single transaction.
type Book struct {
	store Store
	today time.Time
	now   func() time.Time
}

// NewBook binds a Book to store for the business day today.
func NewBook(store Store, today time.Time) *Book {
	return &Book{store: store, today: shared.DateOf(today), now: time.Now}
}

// Today returns the business day the book was opened for.
func (b *Book) Today() time.Time {
	return b.today
}

// NormalizeVariety trims a variety name into its stored form.
func NormalizeVariety(variety string) string {
	return strings.TrimSpace(variety)
}

// WeightedAverage folds a purchase (or its reversal) into a running average
// rate. A non-positive resulting stock yields zero.
func WeightedAverage(stock, avg, qtyDelta, valueDelta decimal.Decimal) decimal.Decimal {
	newStock := stock.Add(qtyDelta)
	if !newStock.IsPositive() {
		return decimal.Zero
	}
	value := stock.Mul(avg).Add(valueDelta)
	if value.IsNegative() {
		return decimal.Zero
	}
	return value.Div(newStock).Round(4)
}

// movement is a signed change to one variety's series on one date.
type movement struct {
	itemID    int64
	variety   string
	date      time.Time
	purchased decimal.Decimal
	sold      decimal.Decimal
	value     decimal.Decimal
	force     bool
}

func (m movement) outflow() decimal.Decimal {
	return m.sold.Sub(m.purchased)
}

func (m movement) affectsAverage() bool {
	return !m.purchased.IsZero() || !m.value.IsZero()
}

// AvailableStock reports stock per variety strictly as of date.
func (b *Book) AvailableStock(ctx context.Context, itemID int64, date time.Time) ([]Availability, error) {
	date = shared.DateOf(date)
	if date.After(b.today) {
		return []Availability{}, nil
	}
	byVariety := make(map[string]Availability)
	if date.Equal(b.today) {
		rows, err := b.store.ListCurrent(ctx, itemID)
		if err != nil {
			return nil, fmt.Errorf("inventory: list current: %w", err)
		}
		for _, row := range rows {
			byVariety[row.Variety] = Availability{Variety: row.Variety, Stock: row.Stock, AvgRate: row.AvgRate}
		}
	} else {
		rows, err := b.store.ListDailyOn(ctx, date, itemID)
		if err != nil {
			return nil, fmt.Errorf("inventory: list daily: %w", err)
		}
		for _, row := range rows {
			byVariety[row.Variety] = Availability{Variety: row.Variety, Stock: row.Closing, AvgRate: row.AvgRate}
		}
	}
	types, err := b.store.ListItemTypes(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list item types: %w", err)
	}
	for _, t := range types {
		if _, ok := byVariety[t.Variety]; !ok {
			byVariety[t.Variety] = Availability{Variety: t.Variety, Stock: decimal.Zero, AvgRate: decimal.Zero}
		}
	}
	result := make([]Availability, 0, len(byVariety))
	for _, a := range byVariety {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Variety < result[j].Variety })
	return result, nil
}

// ApplyProcurement adds purchased stock and folds rate into the average.
func (b *Book) ApplyProcurement(ctx context.Context, itemID int64, variety string, date time.Time, qty, rate decimal.Decimal) error {
	if !qty.IsPositive() {
		return shared.Invalid("quantity", "must be positive")
	}
	return b.post(ctx, movement{
		itemID:    itemID,
		variety:   variety,
		date:      date,
		purchased: qty,
		value:     qty.Mul(rate),
	})
}

// RemoveProcurement takes back a previously applied procurement. With force a
// shortfall is clamped at zero instead of failing.
func (b *Book) RemoveProcurement(ctx context.Context, itemID int64, variety string, date time.Time, qty, rate decimal.Decimal, force bool) error {
	return b.post(ctx, movement{
		itemID:    itemID,
		variety:   variety,
		date:      date,
		purchased: qty.Neg(),
		value:     qty.Mul(rate).Neg(),
		force:     force,
	})
}

// AdjustProcurement replaces a procurement of the same variety with its new
// quantity and rate as a single net movement.
func (b *Book) AdjustProcurement(ctx context.Context, itemID int64, variety string, date time.Time, oldQty, oldRate, newQty, newRate decimal.Decimal) error {
	return b.post(ctx, movement{
		itemID:    itemID,
		variety:   variety,
		date:      date,
		purchased: newQty.Sub(oldQty),
		value:     newQty.Mul(newRate).Sub(oldQty.Mul(oldRate)),
	})
}

// ApplySale moves qty from stock into the sold column.
func (b *Book) ApplySale(ctx context.Context, itemID int64, variety string, date time.Time, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return shared.Invalid("quantity", "must be positive")
	}
	return b.post(ctx, movement{itemID: itemID, variety: variety, date: date, sold: qty})
}

// ReverseSale is the additive inverse of ApplySale.
func (b *Book) ReverseSale(ctx context.Context, itemID int64, variety string, date time.Time, qty decimal.Decimal, force bool) error {
	return b.post(ctx, movement{itemID: itemID, variety: variety, date: date, sold: qty.Neg(), force: force})
}

// Touch registers the variety or refreshes its last-seen date, reactivating it.
func (b *Book) Touch(ctx context.Context, itemID int64, variety string, date time.Time) error {
	date = shared.DateOf(date)
	t, err := b.store.GetItemType(ctx, itemID, variety)
	switch {
	case errors.Is(err, ErrItemTypeNotFound):
		t = ItemType{ItemID: itemID, Variety: variety, FirstSeen: date, LastSeen: date}
	case err != nil:
		return fmt.Errorf("inventory: load item type: %w", err)
	default:
		if date.Before(t.FirstSeen) {
			t.FirstSeen = date
		}
		if date.After(t.LastSeen) {
			t.LastSeen = date
		}
	}
	t.Active = true
	if err := b.store.UpsertItemType(ctx, t); err != nil {
		return fmt.Errorf("inventory: upsert item type: %w", err)
	}
	return nil
}

// DeactivateIfEmpty marks the variety inactive once no live stock remains.
func (b *Book) DeactivateIfEmpty(ctx context.Context, itemID int64, variety string) error {
	cur, err := b.store.GetCurrentForUpdate(ctx, itemID, variety)
	if err != nil && !errors.Is(err, ErrStockNotFound) {
		return fmt.Errorf("inventory: load current: %w", err)
	}
	if err == nil && cur.Stock.IsPositive() {
		return nil
	}
	t, err := b.store.GetItemType(ctx, itemID, variety)
	if errors.Is(err, ErrItemTypeNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inventory: load item type: %w", err)
	}
	if !t.Active {
		return nil
	}
	t.Active = false
	if err := b.store.UpsertItemType(ctx, t); err != nil {
		return fmt.Errorf("inventory: upsert item type: %w", err)
	}
	return nil
}

// Rollover materialises today's daily row for every variety that has a live
// row but no snapshot yet. It returns the number of rows created.
func (b *Book) Rollover(ctx context.Context) (int, error) {
	rows, err := b.store.ListAllCurrent(ctx)
	if err != nil {
		return 0, fmt.Errorf("inventory: list current: %w", err)
	}
	created := 0
	for _, cur := range rows {
		_, err := b.store.GetDaily(ctx, b.today, cur.ItemID, cur.Variety)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrStockNotFound) {
			return created, fmt.Errorf("inventory: load daily: %w", err)
		}
		row, err := b.dailyRow(ctx, cur.ItemID, cur.Variety, b.today, cur)
		if err != nil {
			return created, err
		}
		if err := b.store.UpsertDaily(ctx, row); err != nil {
			return created, fmt.Errorf("inventory: upsert daily: %w", err)
		}
		created++
	}
	return created, nil
}

// Reconcile makes the live row agree with today's snapshot, creating the
// snapshot when it is missing.
func (b *Book) Reconcile(ctx context.Context, itemID int64, variety string) error {
	cur, err := b.store.GetCurrentForUpdate(ctx, itemID, variety)
	if err != nil {
		if !errors.Is(err, ErrStockNotFound) {
			return fmt.Errorf("inventory: load current: %w", err)
		}
		cur = CurrentStock{ItemID: itemID, Variety: variety}
	}
	row, err := b.dailyRow(ctx, itemID, variety, b.today, cur)
	if err != nil {
		return err
	}
	if err := b.store.UpsertDaily(ctx, row); err != nil {
		return fmt.Errorf("inventory: upsert daily: %w", err)
	}
	cur.Stock = row.Closing
	cur.LastUpdated = b.now()
	if err := b.store.UpsertCurrent(ctx, cur); err != nil {
		return fmt.Errorf("inventory: upsert current: %w", err)
	}
	return nil
}

// post applies m to the snapshot dated m.date, re-chains every later
// snapshot, guarantees today's snapshot exists and mirrors it into the live row.
func (b *Book) post(ctx context.Context, m movement) error {
	m.date = shared.DateOf(m.date)
	if m.date.After(b.today) {
		return shared.Invalid("date", "%s is after business day %s", shared.FormatDate(m.date), shared.FormatDate(b.today))
	}
	if m.variety == "" {
		return shared.Invalid("variety", "required")
	}

	cur, err := b.store.GetCurrentForUpdate(ctx, m.itemID, m.variety)
	if err != nil {
		if !errors.Is(err, ErrStockNotFound) {
			return fmt.Errorf("inventory: load current: %w", err)
		}
		cur = CurrentStock{ItemID: m.itemID, Variety: m.variety, Stock: decimal.Zero, AvgRate: decimal.Zero}
	}

	row, err := b.dailyRow(ctx, m.itemID, m.variety, m.date, cur)
	if err != nil {
		return err
	}
	before := row.Closing
	row.Purchased = row.Purchased.Add(m.purchased)
	row.Sold = row.Sold.Add(m.sold)
	if row.Purchased.IsNegative() || row.Sold.IsNegative() {
		if !m.force {
			return b.violation(m, row.Date, before)
		}
		row.Purchased = decimal.Max(row.Purchased, decimal.Zero)
		row.Sold = decimal.Max(row.Sold, decimal.Zero)
	}
	row.recompute()
	if err := b.settle(&row, m, before); err != nil {
		return err
	}
	if m.affectsAverage() {
		row.AvgRate = WeightedAverage(before, row.AvgRate, m.purchased, m.value)
	}
	if err := b.store.UpsertDaily(ctx, row); err != nil {
		return fmt.Errorf("inventory: upsert daily: %w", err)
	}

	todayClosing, haveToday := row.Closing, row.Date.Equal(b.today)
	later, err := b.store.ListDailyAfter(ctx, m.date, m.itemID, m.variety)
	if err != nil {
		return fmt.Errorf("inventory: list later daily: %w", err)
	}
	carry := row.Closing
	for _, next := range later {
		previous := next.Closing
		next.Opening = carry
		next.recompute()
		if err := b.settle(&next, m, previous); err != nil {
			return err
		}
		if err := b.store.UpsertDaily(ctx, next); err != nil {
			return fmt.Errorf("inventory: upsert daily: %w", err)
		}
		carry = next.Closing
		if next.Date.Equal(b.today) {
			todayClosing, haveToday = next.Closing, true
		}
	}

	if m.affectsAverage() {
		cur.AvgRate = WeightedAverage(cur.Stock, cur.AvgRate, m.purchased, m.value)
	}
	if !haveToday {
		snapshot := DailyRow{
			Date:      b.today,
			ItemID:    m.itemID,
			Variety:   m.variety,
			Opening:   carry,
			Purchased: decimal.Zero,
			Sold:      decimal.Zero,
			AvgRate:   cur.AvgRate,
		}
		snapshot.recompute()
		if err := b.store.UpsertDaily(ctx, snapshot); err != nil {
			return fmt.Errorf("inventory: upsert daily: %w", err)
		}
		todayClosing = snapshot.Closing
	}

	cur.Stock = todayClosing
	cur.LastUpdated = b.now()
	if err := b.store.UpsertCurrent(ctx, cur); err != nil {
		return fmt.Errorf("inventory: upsert current: %w", err)
	}
	return nil
}

// dailyRow loads the snapshot dated date or seeds a new one from the closest
// earlier snapshot. Seeding never looks forward.
func (b *Book) dailyRow(ctx context.Context, itemID int64, variety string, date time.Time, cur CurrentStock) (DailyRow, error) {
	row, err := b.store.GetDaily(ctx, date, itemID, variety)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, ErrStockNotFound) {
		return DailyRow{}, fmt.Errorf("inventory: load daily: %w", err)
	}
	row = DailyRow{
		Date:      date,
		ItemID:    itemID,
		Variety:   variety,
		Opening:   decimal.Zero,
		Purchased: decimal.Zero,
		Sold:      decimal.Zero,
		AvgRate:   decimal.Zero,
	}
	prev, err := b.store.LatestDailyBefore(ctx, date, itemID, variety)
	switch {
	case err == nil:
		row.Opening = prev.Closing
		row.AvgRate = prev.AvgRate
	case errors.Is(err, ErrStockNotFound):
		if date.Equal(b.today) {
			row.Opening = cur.Stock
			row.AvgRate = cur.AvgRate
		}
	default:
		return DailyRow{}, fmt.Errorf("inventory: load previous daily: %w", err)
	}
	row.recompute()
	return row, nil
}

// settle enforces a non-negative closing. A shortfall fails only when the
// movement takes stock out without force; sold is never rewritten, so a later
// reversal still finds every sale it applied.
func (b *Book) settle(row *DailyRow, m movement, available decimal.Decimal) error {
	if !row.Shortfall().IsPositive() {
		return nil
	}
	if !m.force && m.outflow().IsPositive() {
		return b.violation(m, row.Date, available)
	}
	return nil
}

func (b *Book) violation(m movement, date time.Time, available decimal.Decimal) error {
	return &shared.InventoryViolationError{
		ItemID:    m.itemID,
		Variety:   m.variety,
		Date:      date,
		Available: available,
		Requested: m.outflow(),
	}
}
