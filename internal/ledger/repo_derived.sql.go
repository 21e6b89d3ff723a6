package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Opening balances and the outstanding cache.

func (t *txRepo) GetOpeningBalance(ctx context.Context, role shared.Role, partyID, itemID int64) (balances.OpeningBalance, error) {
	ob := balances.OpeningBalance{Role: role, PartyID: partyID, ItemID: itemID}
	err := t.tx.QueryRow(ctx, `SELECT payment_due, quantity_due, effective_from FROM opening_balances
WHERE party_role = $1 AND party_id = $2 AND item_id = $3`, string(role), partyID, itemID).
		Scan(&ob.PaymentDue, &ob.QuantityDue, &ob.EffectiveFrom)
	if errors.Is(err, pgx.ErrNoRows) {
		return balances.OpeningBalance{}, balances.ErrOpeningBalanceNotFound
	}
	return ob, err
}

func (t *txRepo) UpsertOpeningBalance(ctx context.Context, ob balances.OpeningBalance) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO opening_balances (party_role, party_id, item_id, payment_due, quantity_due, effective_from)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (party_role, party_id, item_id) DO UPDATE
SET payment_due = EXCLUDED.payment_due, quantity_due = EXCLUDED.quantity_due, effective_from = EXCLUDED.effective_from`,
		string(ob.Role), ob.PartyID, ob.ItemID, ob.PaymentDue, ob.QuantityDue, shared.DateOf(ob.EffectiveFrom))
	return err
}

func (t *txRepo) DeleteOpeningBalance(ctx context.Context, role shared.Role, partyID, itemID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM opening_balances WHERE party_role = $1 AND party_id = $2 AND item_id = $3`,
		string(role), partyID, itemID)
	return err
}

func (t *txRepo) GetOutstanding(ctx context.Context, role shared.Role, partyID, itemID int64) (balances.Outstanding, error) {
	o := balances.Outstanding{Role: role, PartyID: partyID, ItemID: itemID}
	err := t.tx.QueryRow(ctx, `SELECT payment_due, quantity_due, last_updated FROM outstanding_balances
WHERE party_role = $1 AND party_id = $2 AND item_id = $3`, string(role), partyID, itemID).
		Scan(&o.PaymentDue, &o.QuantityDue, &o.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return balances.Outstanding{}, balances.ErrOutstandingNotFound
	}
	return o, err
}

func (t *txRepo) UpsertOutstanding(ctx context.Context, o balances.Outstanding) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outstanding_balances (party_role, party_id, item_id, payment_due, quantity_due, last_updated)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (party_role, party_id, item_id) DO UPDATE
SET payment_due = EXCLUDED.payment_due, quantity_due = EXCLUDED.quantity_due, last_updated = EXCLUDED.last_updated`,
		string(o.Role), o.PartyID, o.ItemID, o.PaymentDue, o.QuantityDue, o.LastUpdated)
	return err
}

const supplierTotalsQuery = `
SELECT
    (SELECT COALESCE(SUM(total_amount), 0) FROM procurement_entries WHERE supplier_id = $1 AND item_id = $2),
    (SELECT COALESCE(SUM(quantity), 0) FROM procurement_entries WHERE supplier_id = $1 AND item_id = $2),
    (SELECT COALESCE(SUM(amount_paid), 0) FROM supplier_payments WHERE supplier_id = $1 AND item_id = $2),
    (SELECT COALESCE(SUM(crates_returned), 0) FROM supplier_payments WHERE supplier_id = $1 AND item_id = $2),
    (SELECT COALESCE(SUM(supplier_discount_amount), 0) FROM damage_entries WHERE supplier_id = $1 AND item_id = $2),
    (SELECT COALESCE(SUM(damaged_returned_qty), 0) FROM damage_entries WHERE supplier_id = $1 AND item_id = $2)`

func (t *txRepo) SupplierTotals(ctx context.Context, supplierID, itemID int64) (balances.SupplierTotals, error) {
	var s balances.SupplierTotals
	err := t.tx.QueryRow(ctx, supplierTotalsQuery, supplierID, itemID).
		Scan(&s.ProcuredAmount, &s.ProcuredQuantity, &s.AmountPaid, &s.CratesReturned, &s.DamageDiscount, &s.DamagedReturned)
	return s, err
}

const sellerTotalsQuery = `
WITH entries AS (
    SELECT COALESCE(SUM(total_amount), 0) AS sold_amount,
           COALESCE(SUM(total_quantity), 0) AS sold_quantity,
           COALESCE(SUM(amount_paid), 0) AS amount_paid,
           COALESCE(SUM(discount), 0) AS discount,
           COALESCE(SUM(crates_returned), 0) AS crates
    FROM sales_entries
    WHERE seller_id = $1 AND item_id = $2 AND ($3::date IS NULL OR entry_date < $3::date)
), payments AS (
    SELECT COALESCE(SUM(amount_received), 0) AS received,
           COALESCE(SUM(crates_returned), 0) AS crates
    FROM seller_payments
    WHERE seller_id = $1 AND item_id = $2 AND ($3::date IS NULL OR payment_date < $3::date)
)
SELECT e.sold_amount, e.sold_quantity, e.amount_paid, e.discount, e.crates, p.received, p.crates
FROM entries e CROSS JOIN payments p`

func (t *txRepo) SellerTotals(ctx context.Context, sellerID, itemID int64, before time.Time) (balances.SellerTotals, error) {
	var s balances.SellerTotals
	err := t.tx.QueryRow(ctx, sellerTotalsQuery, sellerID, itemID, sinceDate(before)).
		Scan(&s.SoldAmount, &s.SoldQuantity, &s.AmountPaid, &s.Discount, &s.EntryCrates, &s.AmountReceived, &s.PaymentCrates)
	return s, err
}

func (t *txRepo) SellerEntriesFrom(ctx context.Context, sellerID, itemID int64, from time.Time) ([]balances.RunningEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, entry_date, total_quantity, total_amount, amount_paid, discount, crates_returned,
       running_payment_outstanding, running_quantity_outstanding
FROM sales_entries
WHERE seller_id = $1 AND item_id = $2 AND ($3::date IS NULL OR entry_date >= $3::date)
ORDER BY entry_date, id`, sellerID, itemID, sinceDate(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []balances.RunningEntry
	for rows.Next() {
		var e balances.RunningEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.TotalQuantity, &e.TotalAmount, &e.AmountPaid, &e.Discount,
			&e.CratesReturned, &e.RunningPayment, &e.RunningQuantity); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *txRepo) SellerPaymentsFrom(ctx context.Context, sellerID, itemID int64, from time.Time) ([]balances.PaymentMovement, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, payment_date, amount_received, crates_returned
FROM seller_payments
WHERE seller_id = $1 AND item_id = $2 AND ($3::date IS NULL OR payment_date >= $3::date)
ORDER BY payment_date, id`, sellerID, itemID, sinceDate(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []balances.PaymentMovement
	for rows.Next() {
		var p balances.PaymentMovement
		if err := rows.Scan(&p.ID, &p.Date, &p.AmountReceived, &p.CratesReturned); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) StampRunningBalance(ctx context.Context, entryID int64, payment, quantity decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_entries SET running_payment_outstanding = $2, running_quantity_outstanding = $3 WHERE id = $1`,
		entryID, payment, quantity)
	if err != nil {
		return err
	}
	return requireAffected(tag, "sales_entry", entryID)
}

// Inventory views and the type registry.

func (t *txRepo) GetCurrentForUpdate(ctx context.Context, itemID int64, variety string) (inventory.CurrentStock, error) {
	c := inventory.CurrentStock{ItemID: itemID, Variety: variety}
	err := t.tx.QueryRow(ctx, `SELECT stock, avg_rate, last_updated FROM current_inventory WHERE item_id = $1 AND variety = $2 FOR UPDATE`,
		itemID, variety).Scan(&c.Stock, &c.AvgRate, &c.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.CurrentStock{}, inventory.ErrStockNotFound
	}
	return c, err
}

func (t *txRepo) UpsertCurrent(ctx context.Context, c inventory.CurrentStock) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO current_inventory (item_id, variety, stock, avg_rate, last_updated)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (item_id, variety) DO UPDATE
SET stock = EXCLUDED.stock, avg_rate = EXCLUDED.avg_rate, last_updated = EXCLUDED.last_updated`,
		c.ItemID, c.Variety, c.Stock, c.AvgRate, c.LastUpdated)
	return err
}

func (t *txRepo) queryCurrent(ctx context.Context, sql string, args ...any) ([]inventory.CurrentStock, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.CurrentStock
	for rows.Next() {
		var c inventory.CurrentStock
		if err := rows.Scan(&c.ItemID, &c.Variety, &c.Stock, &c.AvgRate, &c.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepo) ListCurrent(ctx context.Context, itemID int64) ([]inventory.CurrentStock, error) {
	return t.queryCurrent(ctx, `SELECT item_id, variety, stock, avg_rate, last_updated FROM current_inventory WHERE item_id = $1 ORDER BY variety`, itemID)
}

func (t *txRepo) ListAllCurrent(ctx context.Context) ([]inventory.CurrentStock, error) {
	return t.queryCurrent(ctx, `SELECT item_id, variety, stock, avg_rate, last_updated FROM current_inventory ORDER BY item_id, variety`)
}

const dailyColumns = `snapshot_date, item_id, variety, opening_stock, purchased, sold, closing_stock, avg_rate`

func scanDaily(row rowScanner, d *inventory.DailyRow) error {
	return row.Scan(&d.Date, &d.ItemID, &d.Variety, &d.Opening, &d.Purchased, &d.Sold, &d.Closing, &d.AvgRate)
}

func (t *txRepo) queryDaily(ctx context.Context, sql string, args ...any) ([]inventory.DailyRow, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.DailyRow
	for rows.Next() {
		var d inventory.DailyRow
		if err := scanDaily(rows, &d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *txRepo) GetDaily(ctx context.Context, date time.Time, itemID int64, variety string) (inventory.DailyRow, error) {
	var d inventory.DailyRow
	err := scanDaily(t.tx.QueryRow(ctx, `SELECT `+dailyColumns+` FROM daily_inventory
WHERE snapshot_date = $1 AND item_id = $2 AND variety = $3 FOR UPDATE`, shared.DateOf(date), itemID, variety), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.DailyRow{}, inventory.ErrStockNotFound
	}
	return d, err
}

func (t *txRepo) LatestDailyBefore(ctx context.Context, date time.Time, itemID int64, variety string) (inventory.DailyRow, error) {
	var d inventory.DailyRow
	err := scanDaily(t.tx.QueryRow(ctx, `SELECT `+dailyColumns+` FROM daily_inventory
WHERE snapshot_date < $1 AND item_id = $2 AND variety = $3
ORDER BY snapshot_date DESC LIMIT 1`, shared.DateOf(date), itemID, variety), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.DailyRow{}, inventory.ErrStockNotFound
	}
	return d, err
}

func (t *txRepo) ListDailyAfter(ctx context.Context, date time.Time, itemID int64, variety string) ([]inventory.DailyRow, error) {
	return t.queryDaily(ctx, `SELECT `+dailyColumns+` FROM daily_inventory
WHERE snapshot_date > $1 AND item_id = $2 AND variety = $3
ORDER BY snapshot_date
FOR UPDATE`, shared.DateOf(date), itemID, variety)
}

func (t *txRepo) ListDailyOn(ctx context.Context, date time.Time, itemID int64) ([]inventory.DailyRow, error) {
	return t.queryDaily(ctx, `SELECT `+dailyColumns+` FROM daily_inventory
WHERE snapshot_date = $1 AND ($2::bigint = 0 OR item_id = $2)
ORDER BY item_id, variety`, shared.DateOf(date), itemID)
}

func (t *txRepo) UpsertDaily(ctx context.Context, d inventory.DailyRow) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO daily_inventory (`+dailyColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (item_id, variety, snapshot_date) DO UPDATE
SET opening_stock = EXCLUDED.opening_stock, purchased = EXCLUDED.purchased, sold = EXCLUDED.sold,
    closing_stock = EXCLUDED.closing_stock, avg_rate = EXCLUDED.avg_rate`,
		shared.DateOf(d.Date), d.ItemID, d.Variety, d.Opening, d.Purchased, d.Sold, d.Closing, d.AvgRate)
	return err
}

func (t *txRepo) GetItemType(ctx context.Context, itemID int64, variety string) (inventory.ItemType, error) {
	it := inventory.ItemType{ItemID: itemID, Variety: variety}
	err := t.tx.QueryRow(ctx, `SELECT first_seen, last_seen, active FROM item_types WHERE item_id = $1 AND variety = $2`,
		itemID, variety).Scan(&it.FirstSeen, &it.LastSeen, &it.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.ItemType{}, inventory.ErrItemTypeNotFound
	}
	return it, err
}

func (t *txRepo) UpsertItemType(ctx context.Context, it inventory.ItemType) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO item_types (item_id, variety, first_seen, last_seen, active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (item_id, variety) DO UPDATE
SET first_seen = EXCLUDED.first_seen, last_seen = EXCLUDED.last_seen, active = EXCLUDED.active`,
		it.ItemID, it.Variety, shared.DateOf(it.FirstSeen), shared.DateOf(it.LastSeen), it.Active)
	return err
}

func (t *txRepo) ListItemTypes(ctx context.Context, itemID int64) ([]inventory.ItemType, error) {
	rows, err := t.tx.Query(ctx, `SELECT item_id, variety, first_seen, last_seen, active FROM item_types
WHERE ($1::bigint = 0 OR item_id = $1) ORDER BY item_id, variety`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.ItemType
	for rows.Next() {
		var it inventory.ItemType
		if err := rows.Scan(&it.ItemID, &it.Variety, &it.FirstSeen, &it.LastSeen, &it.Active); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
