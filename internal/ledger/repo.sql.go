package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Procurement sessions and entries.

func (t *txRepo) GetProcurementSessionByDate(ctx context.Context, date time.Time) (ProcurementSession, error) {
	var s ProcurementSession
	err := t.tx.QueryRow(ctx, `SELECT id, session_date, total_amount, status FROM procurement_sessions WHERE session_date = $1 FOR UPDATE`,
		shared.DateOf(date)).Scan(&s.ID, &s.Date, &s.TotalAmount, &s.Status)
	if err != nil {
		return ProcurementSession{}, notFound(err, "procurement_session", shared.FormatDate(date))
	}
	return s, nil
}

func (t *txRepo) CreateProcurementSession(ctx context.Context, date time.Time) (ProcurementSession, error) {
	s := ProcurementSession{Date: shared.DateOf(date), TotalAmount: decimal.Zero, Status: SessionOpen}
	err := t.tx.QueryRow(ctx, `INSERT INTO procurement_sessions (session_date, total_amount, status) VALUES ($1, 0, $2) RETURNING id`,
		s.Date, string(s.Status)).Scan(&s.ID)
	return s, err
}

func (t *txRepo) SummarizeProcurementSession(ctx context.Context, sessionID int64) (decimal.Decimal, int, error) {
	var total decimal.Decimal
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0), COUNT(*) FROM procurement_entries WHERE session_id = $1`,
		sessionID).Scan(&total, &count)
	return total, count, err
}

func (t *txRepo) UpdateProcurementSessionTotal(ctx context.Context, sessionID int64, total decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE procurement_sessions SET total_amount = $2 WHERE id = $1`, sessionID, total)
	if err != nil {
		return err
	}
	return requireAffected(tag, "procurement_session", sessionID)
}

func (t *txRepo) DeleteProcurementSession(ctx context.Context, sessionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM procurement_sessions WHERE id = $1`, sessionID)
	return err
}

func (t *txRepo) InsertProcurementEntry(ctx context.Context, e ProcurementEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO procurement_entries (session_id, entry_date, supplier_id, item_id, variety, quantity, rate, total_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		e.SessionID, shared.DateOf(e.Date), e.SupplierID, e.ItemID, e.Variety, e.Quantity, e.Rate, e.TotalAmount).Scan(&id)
	return id, err
}

func (t *txRepo) GetProcurementEntryForUpdate(ctx context.Context, id int64) (ProcurementEntry, error) {
	var e ProcurementEntry
	err := t.tx.QueryRow(ctx, `SELECT id, session_id, entry_date, supplier_id, item_id, variety, quantity, rate, total_amount
FROM procurement_entries WHERE id = $1 FOR UPDATE`, id).
		Scan(&e.ID, &e.SessionID, &e.Date, &e.SupplierID, &e.ItemID, &e.Variety, &e.Quantity, &e.Rate, &e.TotalAmount)
	if err != nil {
		return ProcurementEntry{}, notFound(err, "procurement_entry", id)
	}
	return e, nil
}

func (t *txRepo) UpdateProcurementEntry(ctx context.Context, e ProcurementEntry) error {
	tag, err := t.tx.Exec(ctx, `UPDATE procurement_entries SET variety = $2, quantity = $3, rate = $4, total_amount = $5 WHERE id = $1`,
		e.ID, e.Variety, e.Quantity, e.Rate, e.TotalAmount)
	if err != nil {
		return err
	}
	return requireAffected(tag, "procurement_entry", e.ID)
}

func (t *txRepo) DeleteProcurementEntry(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM procurement_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag, "procurement_entry", id)
}

// Sales sessions, entries and line items.

func (t *txRepo) GetSalesSessionByDate(ctx context.Context, date time.Time) (SalesSession, error) {
	var s SalesSession
	err := t.tx.QueryRow(ctx, `SELECT id, session_date, total_sales_amount, total_sellers FROM sales_sessions WHERE session_date = $1 FOR UPDATE`,
		shared.DateOf(date)).Scan(&s.ID, &s.Date, &s.TotalSalesAmount, &s.TotalSellers)
	if err != nil {
		return SalesSession{}, notFound(err, "sales_session", shared.FormatDate(date))
	}
	return s, nil
}

func (t *txRepo) CreateSalesSession(ctx context.Context, date time.Time) (SalesSession, error) {
	s := SalesSession{Date: shared.DateOf(date), TotalSalesAmount: decimal.Zero}
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_sessions (session_date) VALUES ($1) RETURNING id`, s.Date).Scan(&s.ID)
	return s, err
}

func (t *txRepo) SummarizeSalesSession(ctx context.Context, sessionID int64) (decimal.Decimal, int, int, error) {
	var total decimal.Decimal
	var sellers, count int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(total_amount), 0), COUNT(DISTINCT seller_id), COUNT(*) FROM sales_entries WHERE session_id = $1`,
		sessionID).Scan(&total, &sellers, &count)
	return total, sellers, count, err
}

func (t *txRepo) UpdateSalesSessionTotals(ctx context.Context, sessionID int64, total decimal.Decimal, sellers int) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_sessions SET total_sales_amount = $2, total_sellers = $3 WHERE id = $1`, sessionID, total, sellers)
	if err != nil {
		return err
	}
	return requireAffected(tag, "sales_session", sessionID)
}

func (t *txRepo) DeleteSalesSession(ctx context.Context, sessionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sales_sessions WHERE id = $1`, sessionID)
	return err
}

func (t *txRepo) insertLines(ctx context.Context, entryID int64, lines []SalesLineItem) error {
	for _, line := range lines {
		if _, err := t.tx.Exec(ctx, `INSERT INTO sales_line_items (sales_entry_id, variety, quantity, sale_rate, amount) VALUES ($1, $2, $3, $4, $5)`,
			entryID, line.Variety, line.Quantity, line.SaleRate, line.Amount); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) InsertSalesEntry(ctx context.Context, e SalesEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales_entries (session_id, entry_date, seller_id, item_id, total_quantity, total_amount, amount_paid, discount, crates_returned)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		e.SessionID, shared.DateOf(e.Date), e.SellerID, e.ItemID, e.TotalQuantity, e.TotalAmount, e.AmountPaid, e.Discount, e.CratesReturned).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := t.insertLines(ctx, id, e.Lines); err != nil {
		return 0, err
	}
	return id, nil
}

const salesEntryColumns = `id, session_id, entry_date, seller_id, item_id, total_quantity, total_amount, amount_paid, discount, crates_returned, running_payment_outstanding, running_quantity_outstanding`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSalesEntry(row rowScanner, e *SalesEntry) error {
	return row.Scan(&e.ID, &e.SessionID, &e.Date, &e.SellerID, &e.ItemID, &e.TotalQuantity, &e.TotalAmount,
		&e.AmountPaid, &e.Discount, &e.CratesReturned, &e.RunningPaymentOutstanding, &e.RunningQuantityOutstanding)
}

func (t *txRepo) lines(ctx context.Context, entryID int64) ([]SalesLineItem, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, sales_entry_id, variety, quantity, sale_rate, amount FROM sales_line_items WHERE sales_entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []SalesLineItem
	for rows.Next() {
		var l SalesLineItem
		if err := rows.Scan(&l.ID, &l.SalesEntryID, &l.Variety, &l.Quantity, &l.SaleRate, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) GetSalesEntryForUpdate(ctx context.Context, id int64) (SalesEntry, error) {
	var e SalesEntry
	if err := scanSalesEntry(t.tx.QueryRow(ctx, `SELECT `+salesEntryColumns+` FROM sales_entries WHERE id = $1 FOR UPDATE`, id), &e); err != nil {
		return SalesEntry{}, notFound(err, "sales_entry", id)
	}
	lines, err := t.lines(ctx, id)
	if err != nil {
		return SalesEntry{}, err
	}
	e.Lines = lines
	return e, nil
}

// UpdateSalesEntry rewrites the settlement columns and replaces the lines.
func (t *txRepo) UpdateSalesEntry(ctx context.Context, e SalesEntry) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales_entries SET total_quantity = $2, total_amount = $3, amount_paid = $4, discount = $5, crates_returned = $6 WHERE id = $1`,
		e.ID, e.TotalQuantity, e.TotalAmount, e.AmountPaid, e.Discount, e.CratesReturned)
	if err != nil {
		return err
	}
	if err := requireAffected(tag, "sales_entry", e.ID); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sales_line_items WHERE sales_entry_id = $1`, e.ID); err != nil {
		return err
	}
	return t.insertLines(ctx, e.ID, e.Lines)
}

func (t *txRepo) DeleteSalesEntry(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag, "sales_entry", id)
}

func (t *txRepo) ListSalesEntries(ctx context.Context, sellerID, itemID int64) ([]SalesEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+salesEntryColumns+` FROM sales_entries WHERE seller_id = $1 AND item_id = $2 ORDER BY entry_date, id`, sellerID, itemID)
	if err != nil {
		return nil, err
	}
	var entries []SalesEntry
	for rows.Next() {
		var e SalesEntry
		if err := scanSalesEntry(rows, &e); err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range entries {
		lines, err := t.lines(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

// Payments and damage.

func (t *txRepo) InsertSupplierPayment(ctx context.Context, p SupplierPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO supplier_payments (supplier_id, item_id, payment_date, amount_paid, crates_returned) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.SupplierID, p.ItemID, shared.DateOf(p.Date), p.AmountPaid, p.CratesReturned).Scan(&id)
	return id, err
}

func (t *txRepo) GetSupplierPayment(ctx context.Context, id int64) (SupplierPayment, error) {
	var p SupplierPayment
	err := t.tx.QueryRow(ctx, `SELECT id, supplier_id, item_id, payment_date, amount_paid, crates_returned FROM supplier_payments WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.SupplierID, &p.ItemID, &p.Date, &p.AmountPaid, &p.CratesReturned)
	if err != nil {
		return SupplierPayment{}, notFound(err, "supplier_payment", id)
	}
	return p, nil
}

func (t *txRepo) UpdateSupplierPayment(ctx context.Context, p SupplierPayment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE supplier_payments SET payment_date = $2, amount_paid = $3, crates_returned = $4 WHERE id = $1`,
		p.ID, shared.DateOf(p.Date), p.AmountPaid, p.CratesReturned)
	if err != nil {
		return err
	}
	return requireAffected(tag, "supplier_payment", p.ID)
}

func (t *txRepo) DeleteSupplierPayment(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM supplier_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag, "supplier_payment", id)
}

func (t *txRepo) InsertSellerPayment(ctx context.Context, p SellerPayment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO seller_payments (seller_id, item_id, payment_date, amount_received, crates_returned) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.SellerID, p.ItemID, shared.DateOf(p.Date), p.AmountReceived, p.CratesReturned).Scan(&id)
	return id, err
}

func (t *txRepo) GetSellerPayment(ctx context.Context, id int64) (SellerPayment, error) {
	var p SellerPayment
	err := t.tx.QueryRow(ctx, `SELECT id, seller_id, item_id, payment_date, amount_received, crates_returned FROM seller_payments WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.SellerID, &p.ItemID, &p.Date, &p.AmountReceived, &p.CratesReturned)
	if err != nil {
		return SellerPayment{}, notFound(err, "seller_payment", id)
	}
	return p, nil
}

func (t *txRepo) UpdateSellerPayment(ctx context.Context, p SellerPayment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE seller_payments SET payment_date = $2, amount_received = $3, crates_returned = $4 WHERE id = $1`,
		p.ID, shared.DateOf(p.Date), p.AmountReceived, p.CratesReturned)
	if err != nil {
		return err
	}
	return requireAffected(tag, "seller_payment", p.ID)
}

func (t *txRepo) DeleteSellerPayment(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM seller_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag, "seller_payment", id)
}

func (t *txRepo) InsertDamageEntry(ctx context.Context, e DamageEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO damage_entries (supplier_id, item_id, variety, damage_date, damaged_qty, damaged_returned_qty, supplier_discount_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		e.SupplierID, e.ItemID, e.Variety, shared.DateOf(e.Date), e.DamagedQty, e.DamagedReturnedQty, e.SupplierDiscountAmount).Scan(&id)
	return id, err
}

func (t *txRepo) GetDamageEntry(ctx context.Context, id int64) (DamageEntry, error) {
	var e DamageEntry
	err := t.tx.QueryRow(ctx, `SELECT id, supplier_id, item_id, variety, damage_date, damaged_qty, damaged_returned_qty, supplier_discount_amount
FROM damage_entries WHERE id = $1 FOR UPDATE`, id).
		Scan(&e.ID, &e.SupplierID, &e.ItemID, &e.Variety, &e.Date, &e.DamagedQty, &e.DamagedReturnedQty, &e.SupplierDiscountAmount)
	if err != nil {
		return DamageEntry{}, notFound(err, "damage_entry", id)
	}
	return e, nil
}

func (t *txRepo) UpdateDamageEntry(ctx context.Context, e DamageEntry) error {
	tag, err := t.tx.Exec(ctx, `UPDATE damage_entries SET damaged_qty = $2, damaged_returned_qty = $3, supplier_discount_amount = $4 WHERE id = $1`,
		e.ID, e.DamagedQty, e.DamagedReturnedQty, e.SupplierDiscountAmount)
	if err != nil {
		return err
	}
	return requireAffected(tag, "damage_entry", e.ID)
}

func (t *txRepo) DeleteDamageEntry(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM damage_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(tag, "damage_entry", id)
}
