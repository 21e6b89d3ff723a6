package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Auditor rebuilds outstanding balances, running stamps, live stock and the
// type registry from source rows and compares them with the stored values.
type Auditor struct {
	repo     ledger.RepositoryPort
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

// AuditorConfig groups optional collaborators.
type AuditorConfig struct {
	Logger   *slog.Logger
	Location *time.Location
	Clock    func() time.Time
}

// NewAuditor builds an Auditor over repo.
func NewAuditor(repo ledger.RepositoryPort, cfg AuditorConfig) *Auditor {
	a := &Auditor{repo: repo, logger: cfg.Logger, location: cfg.Location, now: cfg.Clock}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.location == nil {
		a.location = time.UTC
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// section is the part of a report produced by one transaction.
type section struct {
	pairs    int
	rows     int
	findings []Finding
}

// Check scans every active (party, item) pair and every live stock row.
// Mismatches are findings, never errors; with repair each finding is fixed
// inside the same transaction that found it.
func (a *Auditor) Check(ctx context.Context, repair bool) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: a.now().UTC(),
		Repair:    repair,
		Findings:  []Finding{},
		Issues:    []string{},
		Repairs:   []string{},
	}

	sections := make([]section, 3)
	g, gctx := errgroup.WithContext(ctx)
	for i, role := range []shared.Role{shared.RoleSupplier, shared.RoleSeller} {
		g.Go(func() error {
			s, err := a.checkRole(gctx, role, repair)
			sections[i] = s
			return err
		})
	}
	g.Go(func() error {
		s, err := a.checkInventory(gctx, repair)
		sections[2] = s
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("integrity: %w", err)
	}

	for _, s := range sections {
		report.PairsChecked += s.pairs
		report.RowsChecked += s.rows
		for _, f := range s.findings {
			report.add(f)
		}
	}
	report.FinishedAt = a.now().UTC()

	level := slog.LevelInfo
	if !report.Clean() {
		level = slog.LevelWarn
	}
	a.logger.Log(ctx, level, "integrity check complete",
		slog.String("run_id", report.RunID),
		slog.Bool("repair", repair),
		slog.Int("pairs", report.PairsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("repairs", len(report.Repairs)),
	)
	return report, nil
}

// tx picks a read-only snapshot for checks; repairs write under the same
// locks as mutations.
func (a *Auditor) tx(repair bool) func(context.Context, func(context.Context, ledger.TxRepository) error) error {
	if repair {
		return a.repo.WithTx
	}
	return a.repo.ReadTx
}

func (a *Auditor) checkRole(ctx context.Context, role shared.Role, repair bool) (section, error) {
	var out section
	err := a.tx(repair)(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		out = section{}
		pairs, err := tx.ActivePairs(ctx, role)
		if err != nil {
			return fmt.Errorf("list %s pairs: %w", role, err)
		}
		recalc := balances.NewRecalculator(tx, a.now)
		p := newPrinter()
		for _, pair := range pairs {
			if repair {
				if err := tx.Lock(ctx, shared.PartyItemLockKey(pair.Role, pair.PartyID, pair.ItemID)); err != nil {
					return err
				}
			}
			found, err := a.checkOutstanding(ctx, tx, recalc, pair, repair)
			if err != nil {
				return err
			}
			if found != nil {
				found.Message = p.Sprintf("%s %d item %d: cached payment %.2f quantity %.2f, expected payment %.2f quantity %.2f",
					pair.Role, pair.PartyID, pair.ItemID,
					amount(found.Cached), amount(found.cachedQty), amount(found.Expected), amount(found.expectedQty))
				if found.Kind == KindOutstandingMissing {
					found.Message = p.Sprintf("%s %d item %d: no cached outstanding, expected payment %.2f quantity %.2f",
						pair.Role, pair.PartyID, pair.ItemID, amount(found.Expected), amount(found.expectedQty))
				}
				out.findings = append(out.findings, found.Finding)
			}
			if role == shared.RoleSeller {
				stale, err := a.checkRunning(ctx, tx, recalc, pair, repair)
				if err != nil {
					return err
				}
				if stale != nil {
					out.findings = append(out.findings, *stale)
				}
			}
			out.pairs++
		}
		return nil
	})
	return out, err
}

// outstandingFinding carries the quantity side alongside the reported payment.
type outstandingFinding struct {
	Finding
	cachedQty   decimal.Decimal
	expectedQty decimal.Decimal
}

func (a *Auditor) checkOutstanding(ctx context.Context, tx ledger.TxRepository, recalc *balances.Recalculator, pair balances.Pair, repair bool) (*outstandingFinding, error) {
	expected, err := recalc.Expected(ctx, pair)
	if err != nil {
		return nil, err
	}
	f := &outstandingFinding{
		Finding: Finding{
			Role:     pair.Role,
			PartyID:  pair.PartyID,
			ItemID:   pair.ItemID,
			Expected: expected.PaymentDue,
			Cached:   decimal.Zero,
		},
		cachedQty:   decimal.Zero,
		expectedQty: expected.QuantityDue,
	}
	cached, err := tx.GetOutstanding(ctx, pair.Role, pair.PartyID, pair.ItemID)
	switch {
	case errors.Is(err, balances.ErrOutstandingNotFound):
		f.Kind = KindOutstandingMissing
	case err != nil:
		return nil, fmt.Errorf("load outstanding: %w", err)
	default:
		if balances.Within(cached.PaymentDue, expected.PaymentDue) && balances.Within(cached.QuantityDue, expected.QuantityDue) {
			return nil, nil
		}
		f.Kind = KindOutstandingMismatch
		f.Cached = cached.PaymentDue
		f.cachedQty = cached.QuantityDue
	}
	if repair {
		if _, err := recalc.Save(ctx, expected); err != nil {
			return nil, err
		}
		f.Repaired = true
	}
	return f, nil
}

// checkRunning compares the stamps a full replay would write with the stored ones.
func (a *Auditor) checkRunning(ctx context.Context, tx ledger.TxRepository, recalc *balances.Recalculator, pair balances.Pair, repair bool) (*Finding, error) {
	stamps, err := recalc.RunningBalances(ctx, pair.PartyID, pair.ItemID)
	if err != nil {
		return nil, err
	}
	stale := 0
	var first balances.Stamp
	for _, s := range stamps {
		if s.Stored {
			continue
		}
		if stale == 0 {
			first = s
		}
		stale++
	}
	if stale == 0 {
		return nil, nil
	}
	entries, err := tx.SellerEntriesFrom(ctx, pair.PartyID, pair.ItemID, first.Date)
	if err != nil {
		return nil, fmt.Errorf("list seller entries: %w", err)
	}
	cached := decimal.Zero
	for _, e := range entries {
		if e.ID == first.EntryID {
			cached = e.RunningPayment
			break
		}
	}
	f := &Finding{
		Kind:     KindRunningBalanceStale,
		Role:     pair.Role,
		PartyID:  pair.PartyID,
		ItemID:   pair.ItemID,
		EntryID:  first.EntryID,
		Cached:   cached,
		Expected: first.Payment,
		Message: newPrinter().Sprintf("seller %d item %d: %d stale running stamps from entry %d on %s (stored %.2f, expected %.2f)",
			pair.PartyID, pair.ItemID, stale, first.EntryID, shared.FormatDate(first.Date), amount(cached), amount(first.Payment)),
	}
	if repair {
		if err := recalc.RecalculateAllTransactionsFromDate(ctx, pair.PartyID, pair.ItemID, time.Time{}); err != nil {
			return nil, err
		}
		f.Repaired = true
	}
	return f, nil
}

type stockKey struct {
	itemID  int64
	variety string
}

// checkInventory compares each live row with the snapshot the business day
// resolves to, and the type registry with live stock.
func (a *Auditor) checkInventory(ctx context.Context, repair bool) (section, error) {
	var out section
	today := shared.Today(a.now(), a.location)
	err := a.tx(repair)(ctx, func(ctx context.Context, tx ledger.TxRepository) error {
		out = section{}
		book := inventory.NewBook(tx, today)
		p := newPrinter()

		current, err := tx.ListAllCurrent(ctx)
		if err != nil {
			return fmt.Errorf("list current inventory: %w", err)
		}
		live := make(map[stockKey]inventory.CurrentStock, len(current))
		for _, cur := range current {
			live[stockKey{cur.ItemID, cur.Variety}] = cur
			out.rows++
			expected, ok, err := snapshotStock(ctx, tx, today, cur.ItemID, cur.Variety)
			if err != nil {
				return err
			}
			if !ok || cur.Stock.Equal(expected) {
				continue
			}
			f := Finding{
				Kind:     KindInventoryDivergence,
				ItemID:   cur.ItemID,
				Variety:  cur.Variety,
				Cached:   cur.Stock,
				Expected: expected,
				Message: p.Sprintf("item %d variety %q: live stock %.2f, snapshot for %s closes at %.2f",
					cur.ItemID, cur.Variety, amount(cur.Stock), shared.FormatDate(today), amount(expected)),
			}
			if repair {
				if err := a.reconcile(ctx, tx, book, cur.ItemID, cur.Variety); err != nil {
					return err
				}
				f.Repaired = true
			}
			out.findings = append(out.findings, f)
		}

		snapshots, err := tx.ListDailyOn(ctx, today, 0)
		if err != nil {
			return fmt.Errorf("list daily inventory: %w", err)
		}
		for _, row := range snapshots {
			if _, ok := live[stockKey{row.ItemID, row.Variety}]; ok {
				continue
			}
			out.rows++
			f := Finding{
				Kind:     KindInventoryDivergence,
				ItemID:   row.ItemID,
				Variety:  row.Variety,
				Cached:   decimal.Zero,
				Expected: row.Closing,
				Message: p.Sprintf("item %d variety %q: no live row, snapshot for %s closes at %.2f",
					row.ItemID, row.Variety, shared.FormatDate(today), amount(row.Closing)),
			}
			if repair {
				if err := a.reconcile(ctx, tx, book, row.ItemID, row.Variety); err != nil {
					return err
				}
				f.Repaired = true
			}
			out.findings = append(out.findings, f)
		}

		// Reconcile may have rewritten live rows.
		if repair {
			if current, err = tx.ListAllCurrent(ctx); err != nil {
				return fmt.Errorf("list current inventory: %w", err)
			}
		}
		types, err := tx.ListItemTypes(ctx, 0)
		if err != nil {
			return fmt.Errorf("list item types: %w", err)
		}
		registered := make(map[stockKey]inventory.ItemType, len(types))
		for _, t := range types {
			registered[stockKey{t.ItemID, t.Variety}] = t
		}
		for _, cur := range current {
			if !cur.Stock.IsPositive() {
				continue
			}
			t, ok := registered[stockKey{cur.ItemID, cur.Variety}]
			if ok && t.Active {
				continue
			}
			msg := "is inactive"
			if !ok {
				seen := shared.DateOf(cur.LastUpdated)
				if cur.LastUpdated.IsZero() {
					seen = today
				}
				t = inventory.ItemType{ItemID: cur.ItemID, Variety: cur.Variety, FirstSeen: seen, LastSeen: seen}
				msg = "is not registered"
			}
			f := Finding{
				Kind:     KindItemTypeDrift,
				ItemID:   cur.ItemID,
				Variety:  cur.Variety,
				Cached:   decimal.Zero,
				Expected: cur.Stock,
				Message: p.Sprintf("item %d variety %q %s but holds %.2f in stock",
					cur.ItemID, cur.Variety, msg, amount(cur.Stock)),
			}
			if repair {
				t.Active = true
				if err := tx.UpsertItemType(ctx, t); err != nil {
					return fmt.Errorf("upsert item type: %w", err)
				}
				f.Repaired = true
			}
			out.findings = append(out.findings, f)
		}
		return nil
	})
	return out, err
}

func (a *Auditor) reconcile(ctx context.Context, tx ledger.TxRepository, book *inventory.Book, itemID int64, variety string) error {
	if err := tx.Lock(ctx, shared.InventoryLockKey(itemID, variety)); err != nil {
		return err
	}
	return book.Reconcile(ctx, itemID, variety)
}

// snapshotStock resolves the closing stock the business day's snapshot
// carries: today's row, else the newest earlier row. ok is false when the
// variety has no snapshots at all.
func snapshotStock(ctx context.Context, tx ledger.TxRepository, today time.Time, itemID int64, variety string) (decimal.Decimal, bool, error) {
	row, err := tx.GetDaily(ctx, today, itemID, variety)
	if err == nil {
		return row.Closing, true, nil
	}
	if !errors.Is(err, inventory.ErrStockNotFound) {
		return decimal.Zero, false, fmt.Errorf("load daily inventory: %w", err)
	}
	row, err = tx.LatestDailyBefore(ctx, today, itemID, variety)
	if errors.Is(err, inventory.ErrStockNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("load daily inventory: %w", err)
	}
	return row.Closing, true, nil
}
