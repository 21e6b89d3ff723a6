package ledger_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/ledger/memory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

type fixture struct {
	svc      *ledger.Service
	store    *memory.Store
	item     int64
	supplier int64
	seller   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	f := &fixture{store: store}
	f.item = store.AddItem(ledger.Item{Name: "Mango", QuantityKind: ledger.QuantityCrate, UnitName: "crate", Active: true})
	f.supplier = store.AddParty(ledger.Party{Role: shared.RoleSupplier, Name: "Ravi Farms", Active: true})
	f.seller = store.AddParty(ledger.Party{Role: shared.RoleSeller, Name: "City Market", Active: true})
	f.svc = ledger.NewService(store, ledger.ServiceConfig{
		Clock: func() time.Time { return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func day(n int) time.Time {
	return time.Date(2024, time.March, n, 0, 0, 0, 0, time.UTC)
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr[T any](v T) *T {
	return &v
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func (f *fixture) procure(t *testing.T, date time.Time, variety, qty, rate string) int64 {
	t.Helper()
	res, err := f.svc.AddProcurementEntry(context.Background(), ledger.AddProcurementInput{
		Date:       date,
		SupplierID: f.supplier,
		ItemID:     f.item,
		Variety:    variety,
		Quantity:   d(qty),
		Rate:       d(rate),
	})
	require.NoError(t, err)
	return res.EntryID
}

func (f *fixture) sell(t *testing.T, date time.Time, variety, qty, rate, paid string) int64 {
	t.Helper()
	res, err := f.svc.AddSalesEntry(context.Background(), ledger.AddSalesInput{
		Date:       date,
		SellerID:   f.seller,
		ItemID:     f.item,
		Lines:      []ledger.SalesLineInput{{Variety: variety, Quantity: d(qty), SaleRate: d(rate)}},
		AmountPaid: d(paid),
	})
	require.NoError(t, err)
	return res.EntryID
}

func (f *fixture) stock(t *testing.T, date time.Time) map[string]decimal.Decimal {
	t.Helper()
	rows, err := f.svc.AvailableStock(context.Background(), f.item, date)
	require.NoError(t, err)
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.Variety] = row.Stock
	}
	return out
}

func (f *fixture) ledgerStamps(t *testing.T) map[int64][2]decimal.Decimal {
	t.Helper()
	statement, err := f.svc.SellerLedger(context.Background(), f.seller, f.item)
	require.NoError(t, err)
	out := make(map[int64][2]decimal.Decimal, len(statement.Entries))
	for _, e := range statement.Entries {
		out[e.ID] = [2]decimal.Decimal{e.RunningPaymentOutstanding, e.RunningQuantityOutstanding}
	}
	return out
}

func TestSellerRunningBalanceScenarios(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetOpeningBalance(ctx, ledger.OpeningBalanceInput{
		Role: shared.RoleSeller, PartyID: f.seller, ItemID: f.item,
		PaymentDue: decimal.Zero, QuantityDue: decimal.Zero, EffectiveFrom: day(1),
	})
	require.NoError(t, err)

	f.procure(t, day(1), "Alphonso", "100", "10")
	first := f.sell(t, day(1), "Alphonso", "40", "15", "500")

	stamps := f.ledgerStamps(t)
	requireDecimal(t, "100", stamps[first][0])
	requireDecimal(t, "40", stamps[first][1])

	second := f.sell(t, day(2), "Alphonso", "10", "15", "0")
	stamps = f.ledgerStamps(t)
	requireDecimal(t, "250", stamps[second][0])
	requireDecimal(t, "50", stamps[second][1])

	out, err := f.svc.Outstanding(ctx, shared.RoleSeller, f.seller, f.item)
	require.NoError(t, err)
	requireDecimal(t, "250", out.PaymentDue)
	requireDecimal(t, "50", out.QuantityDue)

	res, err := f.svc.DeleteSalesEntry(ctx, first, false)
	require.NoError(t, err)
	requireDecimal(t, "150", res.Outstanding.PaymentDue)
	requireDecimal(t, "10", res.Outstanding.QuantityDue)

	stamps = f.ledgerStamps(t)
	require.Len(t, stamps, 1)
	requireDecimal(t, "150", stamps[second][0])
	requireDecimal(t, "10", stamps[second][1])

	stock := f.stock(t, day(10))
	requireDecimal(t, "90", stock["Alphonso"])
}

func TestOpeningBalanceUpdateRestampsLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.procure(t, day(1), "alphonso", "100", "10")
	first := f.sell(t, day(1), "alphonso", "40", "15", "500")
	second := f.sell(t, day(2), "alphonso", "10", "15", "0")

	res, err := f.svc.SetOpeningBalance(ctx, ledger.OpeningBalanceInput{
		Role: shared.RoleSeller, PartyID: f.seller, ItemID: f.item,
		PaymentDue: d("50"), QuantityDue: d("5"), EffectiveFrom: day(1),
	})
	require.NoError(t, err)
	requireDecimal(t, "300", res.Outstanding.PaymentDue)
	requireDecimal(t, "55", res.Outstanding.QuantityDue)

	stamps := f.ledgerStamps(t)
	requireDecimal(t, "150", stamps[first][0])
	requireDecimal(t, "45", stamps[first][1])
	requireDecimal(t, "300", stamps[second][0])
	requireDecimal(t, "55", stamps[second][1])

	res, err = f.svc.DeleteOpeningBalance(ctx, shared.RoleSeller, f.seller, f.item)
	require.NoError(t, err)
	requireDecimal(t, "250", res.Outstanding.PaymentDue)
	stamps = f.ledgerStamps(t)
	requireDecimal(t, "100", stamps[first][0])

	_, err = f.svc.DeleteOpeningBalance(ctx, shared.RoleSeller, f.seller, f.item)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAvailableStockNeverCarriesBackward(t *testing.T) {
	f := newFixture(t)

	f.procure(t, day(5), "X", "20", "8")

	before := f.stock(t, day(4))
	require.Contains(t, before, "X")
	requireDecimal(t, "0", before["X"])

	on := f.stock(t, day(5))
	requireDecimal(t, "20", on["X"])

	// no snapshot exists for day 7, so the registry default applies
	gap := f.stock(t, day(7))
	requireDecimal(t, "0", gap["X"])

	requireDecimal(t, "20", f.stock(t, day(10))["X"])

	future, err := f.svc.AvailableStock(context.Background(), f.item, day(11))
	require.NoError(t, err)
	require.Empty(t, future)
}

func TestRunningBalanceReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.procure(t, day(1), "alphonso", "100", "10")
	f.sell(t, day(1), "alphonso", "40", "15", "500")
	f.sell(t, day(3), "alphonso", "10", "15", "20")
	before := f.ledgerStamps(t)

	res, err := f.svc.AddSellerPayment(ctx, ledger.SellerPaymentInput{
		SellerID: f.seller, ItemID: f.item, Date: day(2), AmountReceived: d("30"),
	})
	require.NoError(t, err)
	_, err = f.svc.DeleteSellerPayment(ctx, res.EntryID)
	require.NoError(t, err)

	require.Equal(t, len(before), len(f.ledgerStamps(t)))
	for id, stamp := range f.ledgerStamps(t) {
		require.True(t, before[id][0].Equal(stamp[0]))
		require.True(t, before[id][1].Equal(stamp[1]))
	}

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		stamps, err := balances.NewRecalculator(tx, nil).RunningBalances(ctx, f.seller, f.item)
		if err != nil {
			return err
		}
		for _, s := range stamps {
			require.True(t, s.Stored)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSellerPaymentDateChangeRestampsFromEarlierDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.procure(t, day(1), "alphonso", "100", "10")
	first := f.sell(t, day(1), "alphonso", "40", "15", "500")
	second := f.sell(t, day(2), "alphonso", "10", "15", "0")

	res, err := f.svc.AddSellerPayment(ctx, ledger.SellerPaymentInput{
		SellerID: f.seller, ItemID: f.item, Date: day(2), AmountReceived: d("50"),
	})
	require.NoError(t, err)
	requireDecimal(t, "200", res.Outstanding.PaymentDue)

	stamps := f.ledgerStamps(t)
	requireDecimal(t, "250", stamps[second][0])

	_, err = f.svc.UpdateSellerPayment(ctx, res.EntryID, ledger.PaymentPatch{Date: ptr(day(1))})
	require.NoError(t, err)

	stamps = f.ledgerStamps(t)
	requireDecimal(t, "100", stamps[first][0])
	requireDecimal(t, "200", stamps[second][0])
}

func TestSaleBeyondStockRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.procure(t, day(3), "alphonso", "10", "10")

	_, err := f.svc.AddSalesEntry(ctx, ledger.AddSalesInput{
		Date: day(3), SellerID: f.seller, ItemID: f.item,
		Lines: []ledger.SalesLineInput{
			{Variety: "alphonso", Quantity: d("5"), SaleRate: d("12")},
			{Variety: "alphonso", Quantity: d("6"), SaleRate: d("12")},
		},
	})
	var violation *shared.InventoryViolationError
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "alphonso", violation.Variety)

	requireDecimal(t, "10", f.stock(t, day(3))["alphonso"])
	_, err = f.svc.Outstanding(ctx, shared.RoleSeller, f.seller, f.item)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		_, err := tx.GetSalesSessionByDate(ctx, day(3))
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// a backdated sale may not drain stock a later day already sold
	f.sell(t, day(5), "alphonso", "8", "12", "0")
	_, err = f.svc.AddSalesEntry(ctx, ledger.AddSalesInput{
		Date: day(4), SellerID: f.seller, ItemID: f.item,
		Lines: []ledger.SalesLineInput{{Variety: "alphonso", Quantity: d("3"), SaleRate: d("12")}},
	})
	require.ErrorIs(t, err, shared.ErrInventoryViolation)
}

func TestProcurementDeletionNeedsForceWhenStockSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.procure(t, day(2), "alphonso", "10", "10")
	f.sell(t, day(2), "alphonso", "6", "15", "0")

	_, err := f.svc.DeleteProcurementEntry(ctx, entry, false)
	require.ErrorIs(t, err, shared.ErrInventoryViolation)
	requireDecimal(t, "4", f.stock(t, day(10))["alphonso"])

	res, err := f.svc.DeleteProcurementEntry(ctx, entry, true)
	require.NoError(t, err)
	requireDecimal(t, "0", res.Outstanding.PaymentDue)
	requireDecimal(t, "0", f.stock(t, day(10))["alphonso"])

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		it, err := tx.GetItemType(ctx, f.item, "alphonso")
		require.NoError(t, err)
		require.False(t, it.Active)
		_, err = tx.GetProcurementSessionByDate(ctx, day(2))
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaleStaysEditableAfterForcedProcurementDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.procure(t, day(2), "alphonso", "10", "10")
	sale := f.sell(t, day(2), "alphonso", "6", "15", "0")

	_, err := f.svc.DeleteProcurementEntry(ctx, entry, true)
	require.NoError(t, err)
	requireDecimal(t, "0", f.stock(t, day(2))["alphonso"])

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		row, err := tx.GetDaily(ctx, day(2), f.item, "alphonso")
		require.NoError(t, err)
		requireDecimal(t, "6", row.Sold)
		requireDecimal(t, "0", row.Closing)
		return nil
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateSalesEntry(ctx, sale, ledger.SalesPatch{
		Lines: []ledger.SalesLineInput{{Variety: "alphonso", Quantity: d("1"), SaleRate: d("15")}},
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateSalesEntry(ctx, sale, ledger.SalesPatch{
		Lines: []ledger.SalesLineInput{{Variety: "alphonso", Quantity: d("3"), SaleRate: d("15")}},
	})
	require.ErrorIs(t, err, shared.ErrInventoryViolation)

	res, err := f.svc.DeleteSalesEntry(ctx, sale, false)
	require.NoError(t, err)
	requireDecimal(t, "0", res.Outstanding.PaymentDue)
	requireDecimal(t, "0", f.stock(t, day(10))["alphonso"])

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		row, err := tx.GetDaily(ctx, day(2), f.item, "alphonso")
		require.NoError(t, err)
		requireDecimal(t, "0", row.Sold)
		requireDecimal(t, "0", row.Closing)
		return nil
	})
	require.NoError(t, err)
}

func TestProcurementUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := f.procure(t, day(2), "alphonso", "10", "10")

	res, err := f.svc.UpdateProcurementEntry(ctx, entry, ledger.ProcurementPatch{Quantity: ptr(d("15")), Rate: ptr(d("12"))})
	require.NoError(t, err)
	requireDecimal(t, "180", res.Outstanding.PaymentDue)
	requireDecimal(t, "15", res.Outstanding.QuantityDue)
	requireDecimal(t, "15", f.stock(t, day(2))["alphonso"])

	_, err = f.svc.UpdateProcurementEntry(ctx, entry, ledger.ProcurementPatch{Variety: ptr("  Kesar ")})
	require.NoError(t, err)

	stock := f.stock(t, day(10))
	requireDecimal(t, "0", stock["alphonso"])
	requireDecimal(t, "15", stock["Kesar"])

	err = f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		old, err := tx.GetItemType(ctx, f.item, "alphonso")
		require.NoError(t, err)
		require.False(t, old.Active)
		fresh, err := tx.GetItemType(ctx, f.item, "Kesar")
		require.NoError(t, err)
		require.True(t, fresh.Active)

		session, err := tx.GetProcurementSessionByDate(ctx, day(2))
		require.NoError(t, err)
		requireDecimal(t, "180", session.TotalAmount)
		return nil
	})
	require.NoError(t, err)
}

func TestSalesSessionTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.AddParty(ledger.Party{Role: shared.RoleSeller, Name: "Hill Traders", Active: true})

	f.procure(t, day(4), "alphonso", "50", "10")
	first := f.sell(t, day(4), "alphonso", "10", "15", "0")
	_, err := f.svc.AddSalesEntry(ctx, ledger.AddSalesInput{
		Date: day(4), SellerID: other, ItemID: f.item,
		Lines: []ledger.SalesLineInput{{Variety: "alphonso", Quantity: d("5"), SaleRate: d("20")}},
	})
	require.NoError(t, err)

	check := func(total string, sellers int) {
		t.Helper()
		err := f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
			s, err := tx.GetSalesSessionByDate(ctx, day(4))
			require.NoError(t, err)
			requireDecimal(t, total, s.TotalSalesAmount)
			require.Equal(t, sellers, s.TotalSellers)
			return nil
		})
		require.NoError(t, err)
	}
	check("250", 2)

	_, err = f.svc.UpdateSalesEntry(ctx, first, ledger.SalesPatch{
		Lines: []ledger.SalesLineInput{{Variety: "alphonso", Quantity: d("12"), SaleRate: d("15")}},
	})
	require.NoError(t, err)
	check("280", 2)
	requireDecimal(t, "33", f.stock(t, day(4))["alphonso"])

	_, err = f.svc.DeleteSalesEntry(ctx, first, false)
	require.NoError(t, err)
	check("100", 1)
}

func TestSupplierOutstandingWithPaymentsAndDamage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.procure(t, day(1), "alphonso", "100", "10")

	_, err := f.svc.AddSupplierPayment(ctx, ledger.SupplierPaymentInput{
		SupplierID: f.supplier, ItemID: f.item, Date: day(2), AmountPaid: d("300"), CratesReturned: d("20"),
	})
	require.NoError(t, err)

	res, err := f.svc.RecordDamageEntry(ctx, ledger.DamageInput{
		SupplierID: f.supplier, ItemID: f.item, Variety: "alphonso", Date: day(3),
		DamagedQty: d("5"), DamagedReturnedQty: d("3"), SupplierDiscountAmount: d("50"),
	})
	require.NoError(t, err)
	requireDecimal(t, "650", res.Outstanding.PaymentDue)
	requireDecimal(t, "77", res.Outstanding.QuantityDue)

	// damage does not move stock
	requireDecimal(t, "100", f.stock(t, day(10))["alphonso"])

	res, err = f.svc.UpdateDamageEntry(ctx, res.EntryID, ledger.DamagePatch{SupplierDiscountAmount: ptr(d("80"))})
	require.NoError(t, err)
	requireDecimal(t, "620", res.Outstanding.PaymentDue)

	res, err = f.svc.DeleteDamageEntry(ctx, res.EntryID)
	require.NoError(t, err)
	requireDecimal(t, "700", res.Outstanding.PaymentDue)
	requireDecimal(t, "80", res.Outstanding.QuantityDue)
}

func TestMutationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProcurementEntry(ctx, 999, ledger.ProcurementPatch{Quantity: ptr(d("1"))})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.AddProcurementEntry(ctx, ledger.AddProcurementInput{
		Date: day(1), SupplierID: 999, ItemID: f.item, Variety: "a", Quantity: d("1"), Rate: d("1"),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = f.svc.AddProcurementEntry(ctx, ledger.AddProcurementInput{
		Date: day(11), SupplierID: f.supplier, ItemID: f.item, Variety: "a", Quantity: d("1"), Rate: d("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.AddProcurementEntry(ctx, ledger.AddProcurementInput{
		Date: day(1), SupplierID: f.supplier, ItemID: f.item, Variety: "a", Quantity: d("0"), Rate: d("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.AddSalesEntry(ctx, ledger.AddSalesInput{Date: day(1), SellerID: f.seller, ItemID: f.item})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.AddSellerPayment(ctx, ledger.SellerPaymentInput{SellerID: f.seller, ItemID: f.item, Date: day(1)})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.DeleteDamageEntry(ctx, 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

type liveEntry struct {
	id      int64
	variety string
	qty     decimal.Decimal
}

func TestRandomMutationsConserveStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := rand.New(rand.NewPCG(7, 11))
	varieties := []string{"a", "b", "c"}

	var procured, sold []liveEntry
	var payments []int64
	remove := func(list []liveEntry, i int) []liveEntry {
		return append(list[:i], list[i+1:]...)
	}

	for i := 0; i < 400; i++ {
		date := day(1 + r.IntN(10))
		variety := varieties[r.IntN(len(varieties))]
		qty := decimal.NewFromInt(int64(1 + r.IntN(20)))
		switch r.IntN(9) {
		case 0, 1:
			res, err := f.svc.AddProcurementEntry(ctx, ledger.AddProcurementInput{
				Date: date, SupplierID: f.supplier, ItemID: f.item, Variety: variety,
				Quantity: qty, Rate: decimal.NewFromInt(int64(5 + r.IntN(10))),
			})
			require.NoError(t, err)
			procured = append(procured, liveEntry{id: res.EntryID, variety: variety, qty: qty})
		case 2:
			res, err := f.svc.AddSalesEntry(ctx, ledger.AddSalesInput{
				Date: date, SellerID: f.seller, ItemID: f.item,
				Lines:      []ledger.SalesLineInput{{Variety: variety, Quantity: qty, SaleRate: d("20")}},
				AmountPaid: decimal.NewFromInt(int64(r.IntN(100))),
			})
			if err != nil {
				require.ErrorIs(t, err, shared.ErrInventoryViolation)
				continue
			}
			sold = append(sold, liveEntry{id: res.EntryID, variety: variety, qty: qty})
		case 3:
			if len(procured) == 0 {
				continue
			}
			j := r.IntN(len(procured))
			if _, err := f.svc.DeleteProcurementEntry(ctx, procured[j].id, false); err != nil {
				require.ErrorIs(t, err, shared.ErrInventoryViolation)
				continue
			}
			procured = remove(procured, j)
		case 4:
			if len(sold) == 0 {
				continue
			}
			j := r.IntN(len(sold))
			_, err := f.svc.DeleteSalesEntry(ctx, sold[j].id, false)
			require.NoError(t, err)
			sold = remove(sold, j)
		case 5:
			if len(procured) == 0 {
				continue
			}
			j := r.IntN(len(procured))
			if _, err := f.svc.UpdateProcurementEntry(ctx, procured[j].id, ledger.ProcurementPatch{Quantity: ptr(qty)}); err != nil {
				require.ErrorIs(t, err, shared.ErrInventoryViolation)
				continue
			}
			procured[j].qty = qty
		case 6:
			if len(sold) == 0 {
				continue
			}
			j := r.IntN(len(sold))
			_, err := f.svc.UpdateSalesEntry(ctx, sold[j].id, ledger.SalesPatch{
				Lines:      []ledger.SalesLineInput{{Variety: sold[j].variety, Quantity: qty, SaleRate: d("20")}},
				AmountPaid: ptr(decimal.NewFromInt(int64(r.IntN(100)))),
			})
			if err != nil {
				require.ErrorIs(t, err, shared.ErrInventoryViolation)
				continue
			}
			sold[j].qty = qty
		case 7:
			res, err := f.svc.AddSellerPayment(ctx, ledger.SellerPaymentInput{
				SellerID: f.seller, ItemID: f.item, Date: date,
				AmountReceived: decimal.NewFromInt(int64(1 + r.IntN(50))),
			})
			require.NoError(t, err)
			payments = append(payments, res.EntryID)
		case 8:
			if len(payments) == 0 {
				continue
			}
			j := r.IntN(len(payments))
			if r.IntN(2) == 0 {
				_, err := f.svc.UpdateSellerPayment(ctx, payments[j], ledger.PaymentPatch{Date: ptr(date), Amount: ptr(qty)})
				require.NoError(t, err)
				continue
			}
			_, err := f.svc.DeleteSellerPayment(ctx, payments[j])
			require.NoError(t, err)
			payments = append(payments[:j], payments[j+1:]...)
		}
	}

	expected := make(map[string]decimal.Decimal)
	for _, e := range procured {
		expected[e.variety] = expected[e.variety].Add(e.qty)
	}
	for _, e := range sold {
		expected[e.variety] = expected[e.variety].Sub(e.qty)
	}
	stock := f.stock(t, day(10))
	for _, v := range varieties {
		require.Truef(t, expected[v].Equal(stock[v]), "variety %s: want %s, got %s", v, expected[v], stock[v])
	}

	err := f.store.WithTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		for n := 1; n <= 10; n++ {
			rows, err := tx.ListDailyOn(ctx, day(n), f.item)
			require.NoError(t, err)
			for _, row := range rows {
				require.False(t, row.Closing.IsNegative(), "negative closing on %s", shared.FormatDate(row.Date))
				require.True(t, row.Opening.Add(row.Purchased).Sub(row.Sold).Equal(row.Closing))
			}
		}
		recalc := balances.NewRecalculator(tx, nil)
		stamps, err := recalc.RunningBalances(ctx, f.seller, f.item)
		require.NoError(t, err)
		for _, s := range stamps {
			require.Truef(t, s.Stored, "entry %d carries a stale running balance", s.EntryID)
		}
		for _, role := range []shared.Role{shared.RoleSupplier, shared.RoleSeller} {
			party := f.supplier
			if role == shared.RoleSeller {
				party = f.seller
			}
			want, err := recalc.Expected(ctx, balances.Pair{Role: role, PartyID: party, ItemID: f.item})
			require.NoError(t, err)
			got, err := tx.GetOutstanding(ctx, role, party, f.item)
			require.NoError(t, err)
			require.True(t, balances.Within(want.PaymentDue, got.PaymentDue))
			require.True(t, balances.Within(want.QuantityDue, got.QuantityDue))
		}
		return nil
	})
	require.NoError(t, err)
}
