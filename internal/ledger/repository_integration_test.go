//go:build integration

package ledger_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/platform/db"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

func newPostgresRepository(t *testing.T) *ledger.Repository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrator, err := db.NewMigrator("file://../../migrations", dsn, nil)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 1, version)
	require.NoError(t, migrator.Close())

	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return ledger.NewRepository(pool)
}

func TestPostgresCascade(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC) }
	svc := ledger.NewService(repo, ledger.ServiceConfig{Clock: clock})

	item, err := svc.RegisterItem(ctx, ledger.Item{Name: "Mango", UnitName: "crate"})
	require.NoError(t, err)
	supplier, err := svc.RegisterParty(ctx, ledger.Party{Role: shared.RoleSupplier, Name: "Ravi Farms"})
	require.NoError(t, err)
	seller, err := svc.RegisterParty(ctx, ledger.Party{Role: shared.RoleSeller, Name: "City Market"})
	require.NoError(t, err)

	proc, err := svc.AddProcurementEntry(ctx, ledger.AddProcurementInput{
		Date: day(9), SupplierID: supplier.ID, ItemID: item.ID,
		Variety: "Alphonso", Quantity: d("100"), Rate: d("10.50"),
	})
	require.NoError(t, err)
	requireDecimal(t, "1050", proc.Outstanding.PaymentDue)

	sale, err := svc.AddSalesEntry(ctx, ledger.AddSalesInput{
		Date: day(9), SellerID: seller.ID, ItemID: item.ID,
		Lines:      []ledger.SalesLineInput{{Variety: "Alphonso", Quantity: d("40"), SaleRate: d("15")}},
		AmountPaid: d("100"),
	})
	require.NoError(t, err)
	requireDecimal(t, "500", sale.Outstanding.PaymentDue)
	requireDecimal(t, "40", sale.Outstanding.QuantityDue)

	stock, err := svc.AvailableStock(ctx, item.ID, day(10))
	require.NoError(t, err)
	require.Len(t, stock, 1)
	requireDecimal(t, "60", stock[0].Stock)

	_, err = svc.AddSalesEntry(ctx, ledger.AddSalesInput{
		Date: day(10), SellerID: seller.ID, ItemID: item.ID,
		Lines: []ledger.SalesLineInput{{Variety: "Alphonso", Quantity: d("61"), SaleRate: d("15")}},
	})
	require.ErrorIs(t, err, shared.ErrInventoryViolation)

	_, err = svc.DeleteProcurementEntry(ctx, proc.EntryID, false)
	require.ErrorIs(t, err, shared.ErrInventoryViolation)

	out, err := svc.Outstanding(ctx, shared.RoleSupplier, supplier.ID, item.ID)
	require.NoError(t, err)
	requireDecimal(t, "1050", out.PaymentDue)
	requireDecimal(t, "100", out.QuantityDue)

	statement, err := svc.SellerLedger(ctx, seller.ID, item.ID)
	require.NoError(t, err)
	require.Len(t, statement.Entries, 1)
	requireDecimal(t, "500", statement.Entries[0].RunningPaymentOutstanding)

	report, err := integrity.NewAuditor(repo, integrity.AuditorConfig{Clock: clock}).Check(ctx, false)
	require.NoError(t, err)
	require.True(t, report.Clean(), "%+v", report.Findings)
	require.Equal(t, 2, report.PairsChecked)
}

func TestPostgresConcurrentMutationsSerialisePerPair(t *testing.T) {
	repo := newPostgresRepository(t)
	ctx := context.Background()
	clock := func() time.Time { return time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC) }
	svc := ledger.NewService(repo, ledger.ServiceConfig{Clock: clock})

	item, err := svc.RegisterItem(ctx, ledger.Item{Name: "Mango", UnitName: "crate"})
	require.NoError(t, err)
	supplier, err := svc.RegisterParty(ctx, ledger.Party{Role: shared.RoleSupplier, Name: "Ravi Farms"})
	require.NoError(t, err)
	sellers := make([]int64, 2)
	for i, name := range []string{"City Market", "Harbour Stall"} {
		p, err := svc.RegisterParty(ctx, ledger.Party{Role: shared.RoleSeller, Name: name})
		require.NoError(t, err)
		sellers[i] = p.ID
	}
	_, err = svc.AddProcurementEntry(ctx, ledger.AddProcurementInput{
		Date: day(8), SupplierID: supplier.ID, ItemID: item.ID,
		Variety: "Alphonso", Quantity: d("200"), Rate: d("10"),
	})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		live = make(map[int64]decimal.Decimal)
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		r := rand.New(rand.NewPCG(uint64(w), 99))
		seller := sellers[w%len(sellers)]
		g.Go(func() error {
			var mine []int64
			for i := 0; i < 15; i++ {
				date := day(8 + r.IntN(3))
				switch r.IntN(3) {
				case 0:
					qty := decimal.NewFromInt(int64(1 + r.IntN(5)))
					res, err := svc.AddSalesEntry(gctx, ledger.AddSalesInput{
						Date: date, SellerID: seller, ItemID: item.ID,
						Lines:      []ledger.SalesLineInput{{Variety: "Alphonso", Quantity: qty, SaleRate: d("15")}},
						AmountPaid: decimal.NewFromInt(int64(r.IntN(30))),
					})
					if errors.Is(err, shared.ErrInventoryViolation) {
						continue
					}
					if err != nil {
						return err
					}
					mu.Lock()
					live[res.EntryID] = qty
					mu.Unlock()
					mine = append(mine, res.EntryID)
				case 1:
					if len(mine) == 0 {
						continue
					}
					j := r.IntN(len(mine))
					if _, err := svc.DeleteSalesEntry(gctx, mine[j], false); err != nil {
						return err
					}
					mu.Lock()
					delete(live, mine[j])
					mu.Unlock()
					mine = append(mine[:j], mine[j+1:]...)
				case 2:
					if _, err := svc.AddSellerPayment(gctx, ledger.SellerPaymentInput{
						SellerID: seller, ItemID: item.ID, Date: date,
						AmountReceived: decimal.NewFromInt(int64(1 + r.IntN(20))),
					}); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	remaining := d("200")
	for _, qty := range live {
		remaining = remaining.Sub(qty)
	}
	stock, err := svc.AvailableStock(ctx, item.ID, day(10))
	require.NoError(t, err)
	require.Len(t, stock, 1)
	requireDecimal(t, remaining.String(), stock[0].Stock)

	err = repo.ReadTx(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		for n := 8; n <= 10; n++ {
			rows, err := tx.ListDailyOn(ctx, day(n), item.ID)
			require.NoError(t, err)
			for _, row := range rows {
				require.False(t, row.Closing.IsNegative(), "negative closing on %s", shared.FormatDate(row.Date))
				require.True(t, row.Shortfall().IsZero(), "sold exceeds stock on %s", shared.FormatDate(row.Date))
			}
		}
		recalc := balances.NewRecalculator(tx, clock)
		for _, seller := range sellers {
			stamps, err := recalc.RunningBalances(ctx, seller, item.ID)
			require.NoError(t, err)
			for _, s := range stamps {
				require.Truef(t, s.Stored, "seller %d entry %d carries a stale running balance", seller, s.EntryID)
			}
			want, err := recalc.Expected(ctx, balances.Pair{Role: shared.RoleSeller, PartyID: seller, ItemID: item.ID})
			require.NoError(t, err)
			got, err := tx.GetOutstanding(ctx, shared.RoleSeller, seller, item.ID)
			require.NoError(t, err)
			require.True(t, balances.Within(want.PaymentDue, got.PaymentDue), "seller %d: want %s, got %s", seller, want.PaymentDue, got.PaymentDue)
			require.True(t, balances.Within(want.QuantityDue, got.QuantityDue))
		}
		return nil
	})
	require.NoError(t, err)

	report, err := integrity.NewAuditor(repo, integrity.AuditorConfig{Clock: clock}).Check(ctx, false)
	require.NoError(t, err)
	require.True(t, report.Clean(), "%+v", report.Findings)
}
