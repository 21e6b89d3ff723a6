package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Recalculator rebuilds derived balances from ledger source rows. It is bound
// to a single transaction.
type Recalculator struct {
	store Store
	now   func() time.Time
}

// NewRecalculator binds a Recalculator to store.
func NewRecalculator(store Store, now func() time.Time) *Recalculator {
	if now == nil {
		now = time.Now
	}
	return &Recalculator{store: store, now: now}
}

// Opening returns the pair's opening balance, or a zero balance when none exists.
func (r *Recalculator) Opening(ctx context.Context, role shared.Role, partyID, itemID int64) (OpeningBalance, bool, error) {
	ob, err := r.store.GetOpeningBalance(ctx, role, partyID, itemID)
	if errors.Is(err, ErrOpeningBalanceNotFound) {
		return OpeningBalance{Role: role, PartyID: partyID, ItemID: itemID}, false, nil
	}
	if err != nil {
		return OpeningBalance{}, false, fmt.Errorf("balances: load opening balance: %w", err)
	}
	return ob, true, nil
}

// ExpectedSupplier recomputes a supplier's outstanding without writing it.
func (r *Recalculator) ExpectedSupplier(ctx context.Context, supplierID, itemID int64) (Outstanding, error) {
	opening, _, err := r.Opening(ctx, shared.RoleSupplier, supplierID, itemID)
	if err != nil {
		return Outstanding{}, err
	}
	totals, err := r.store.SupplierTotals(ctx, supplierID, itemID)
	if err != nil {
		return Outstanding{}, fmt.Errorf("balances: supplier totals: %w", err)
	}
	payment, quantity := SupplierDue(opening, totals)
	return Outstanding{Role: shared.RoleSupplier, PartyID: supplierID, ItemID: itemID, PaymentDue: payment, QuantityDue: quantity}, nil
}

// ExpectedSeller recomputes a seller's outstanding without writing it.
func (r *Recalculator) ExpectedSeller(ctx context.Context, sellerID, itemID int64) (Outstanding, error) {
	opening, _, err := r.Opening(ctx, shared.RoleSeller, sellerID, itemID)
	if err != nil {
		return Outstanding{}, err
	}
	totals, err := r.store.SellerTotals(ctx, sellerID, itemID, time.Time{})
	if err != nil {
		return Outstanding{}, fmt.Errorf("balances: seller totals: %w", err)
	}
	payment, quantity := SellerDue(opening, totals)
	return Outstanding{Role: shared.RoleSeller, PartyID: sellerID, ItemID: itemID, PaymentDue: payment, QuantityDue: quantity}, nil
}

// Expected dispatches on the pair's role.
func (r *Recalculator) Expected(ctx context.Context, pair Pair) (Outstanding, error) {
	switch pair.Role {
	case shared.RoleSupplier:
		return r.ExpectedSupplier(ctx, pair.PartyID, pair.ItemID)
	case shared.RoleSeller:
		return r.ExpectedSeller(ctx, pair.PartyID, pair.ItemID)
	default:
		return Outstanding{}, shared.Invalid("role", "unknown role %q", pair.Role)
	}
}

// RecalculateSupplierOutstanding recomputes and caches a supplier's outstanding.
func (r *Recalculator) RecalculateSupplierOutstanding(ctx context.Context, supplierID, itemID int64) (Outstanding, error) {
	o, err := r.ExpectedSupplier(ctx, supplierID, itemID)
	if err != nil {
		return Outstanding{}, err
	}
	return r.save(ctx, o)
}

// RecalculateSellerOutstanding recomputes and caches a seller's outstanding.
func (r *Recalculator) RecalculateSellerOutstanding(ctx context.Context, sellerID, itemID int64) (Outstanding, error) {
	o, err := r.ExpectedSeller(ctx, sellerID, itemID)
	if err != nil {
		return Outstanding{}, err
	}
	return r.save(ctx, o)
}

// Save overwrites the cached row with o.
func (r *Recalculator) Save(ctx context.Context, o Outstanding) (Outstanding, error) {
	return r.save(ctx, o)
}

func (r *Recalculator) save(ctx context.Context, o Outstanding) (Outstanding, error) {
	o.LastUpdated = r.now().UTC()
	if err := r.store.UpsertOutstanding(ctx, o); err != nil {
		return Outstanding{}, fmt.Errorf("balances: upsert outstanding: %w", err)
	}
	return o, nil
}

// RecalculateAllTransactionsFromDate restamps every sales entry of the
// (seller, item) dated on or after from. A zero from replays the whole ledger.
func (r *Recalculator) RecalculateAllTransactionsFromDate(ctx context.Context, sellerID, itemID int64, from time.Time) error {
	return r.restamp(ctx, sellerID, itemID, from, 0)
}

// RecalculateSubsequentBalancesAfterDeletion restamps the ledger from the
// deleted entry's date, skipping excludeID should it still be visible.
func (r *Recalculator) RecalculateSubsequentBalancesAfterDeletion(ctx context.Context, sellerID, itemID int64, deletedDate time.Time, excludeID int64) error {
	return r.restamp(ctx, sellerID, itemID, deletedDate, excludeID)
}

func (r *Recalculator) restamp(ctx context.Context, sellerID, itemID int64, from time.Time, excludeID int64) error {
	stamps, err := r.runningStamps(ctx, sellerID, itemID, from, excludeID)
	if err != nil {
		return err
	}
	for _, s := range stamps {
		if s.Stored {
			continue
		}
		if err := r.store.StampRunningBalance(ctx, s.EntryID, s.Payment, s.Quantity); err != nil {
			return fmt.Errorf("balances: stamp entry %d: %w", s.EntryID, err)
		}
	}
	return nil
}

// RunningBalances computes the stamp every entry of the (seller, item) ledger
// should carry. Stored is set when the entry already carries that stamp.
func (r *Recalculator) RunningBalances(ctx context.Context, sellerID, itemID int64) ([]Stamp, error) {
	return r.runningStamps(ctx, sellerID, itemID, time.Time{}, 0)
}

// runningStamps walks the ledger forward from from. The opening balance joins
// at the start of its effective date; each date's entries apply in insertion
// order and that date's standalone payments apply after them.
func (r *Recalculator) runningStamps(ctx context.Context, sellerID, itemID int64, from time.Time, excludeID int64) ([]Stamp, error) {
	if !from.IsZero() {
		from = shared.DateOf(from)
	}
	opening, hasOpening, err := r.Opening(ctx, shared.RoleSeller, sellerID, itemID)
	if err != nil {
		return nil, err
	}

	payment, quantity := decimal.Zero, decimal.Zero
	if !from.IsZero() {
		prior, err := r.store.SellerTotals(ctx, sellerID, itemID, from)
		if err != nil {
			return nil, fmt.Errorf("balances: seller totals: %w", err)
		}
		payment, quantity = prior.PaymentDelta(), prior.QuantityDelta()
	}
	openingApplied := false
	applyOpening := func(asOf time.Time) {
		if !hasOpening || openingApplied || asOf.IsZero() || opening.EffectiveFrom.After(asOf) {
			return
		}
		payment = payment.Add(opening.PaymentDue)
		quantity = quantity.Add(opening.QuantityDue)
		openingApplied = true
	}
	applyOpening(from)

	entries, err := r.store.SellerEntriesFrom(ctx, sellerID, itemID, from)
	if err != nil {
		return nil, fmt.Errorf("balances: seller entries: %w", err)
	}
	payments, err := r.store.SellerPaymentsFrom(ctx, sellerID, itemID, from)
	if err != nil {
		return nil, fmt.Errorf("balances: seller payments: %w", err)
	}

	stamps := make([]Stamp, 0, len(entries))
	ei, pi := 0, 0
	for ei < len(entries) || pi < len(payments) {
		date := nextDate(entries, payments, ei, pi)
		applyOpening(date)
		for ; ei < len(entries) && entries[ei].Date.Equal(date); ei++ {
			e := entries[ei]
			if excludeID != 0 && e.ID == excludeID {
				continue
			}
			payment = payment.Add(e.TotalAmount).Sub(e.AmountPaid).Sub(e.Discount)
			quantity = quantity.Add(e.TotalQuantity).Sub(e.CratesReturned)
			stamps = append(stamps, Stamp{
				EntryID:  e.ID,
				Date:     e.Date,
				Payment:  payment,
				Quantity: quantity,
				Stored:   e.RunningPayment.Equal(payment) && e.RunningQuantity.Equal(quantity),
			})
		}
		for ; pi < len(payments) && payments[pi].Date.Equal(date); pi++ {
			payment = payment.Sub(payments[pi].AmountReceived)
			quantity = quantity.Sub(payments[pi].CratesReturned)
		}
	}
	return stamps, nil
}

func nextDate(entries []RunningEntry, payments []PaymentMovement, ei, pi int) time.Time {
	switch {
	case ei >= len(entries):
		return payments[pi].Date
	case pi >= len(payments):
		return entries[ei].Date
	case payments[pi].Date.Before(entries[ei].Date):
		return payments[pi].Date
	default:
		return entries[ei].Date
	}
}
