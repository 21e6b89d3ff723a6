package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

type tx struct {
	state *state
}

var _ ledger.TxRepository = (*tx)(nil)

// Lock is a no-op; WithTx already holds the store mutex.
func (t *tx) Lock(context.Context, ...string) error { return nil }

func (t *tx) ItemExists(_ context.Context, itemID int64) (bool, error) {
	_, ok := t.state.items[itemID]
	return ok, nil
}

func (t *tx) PartyExists(_ context.Context, role shared.Role, partyID int64) (bool, error) {
	_, ok := t.state.parties[pairKey{role: role, party: partyID}]
	return ok, nil
}

func (t *tx) InsertItem(_ context.Context, item ledger.Item) (int64, error) {
	item.ID = t.state.id()
	t.state.items[item.ID] = item
	return item.ID, nil
}

func (t *tx) InsertParty(_ context.Context, party ledger.Party) (int64, error) {
	party.ID = t.state.id()
	t.state.parties[pairKey{role: party.Role, party: party.ID}] = party
	return party.ID, nil
}

// Procurement.

func (t *tx) GetProcurementSessionByDate(_ context.Context, date time.Time) (ledger.ProcurementSession, error) {
	for _, s := range t.state.procurementSessions {
		if s.Date.Equal(shared.DateOf(date)) {
			return s, nil
		}
	}
	return ledger.ProcurementSession{}, shared.NotFound("procurement_session", shared.FormatDate(date))
}

func (t *tx) CreateProcurementSession(_ context.Context, date time.Time) (ledger.ProcurementSession, error) {
	s := ledger.ProcurementSession{ID: t.state.id(), Date: shared.DateOf(date), TotalAmount: decimal.Zero, Status: ledger.SessionOpen}
	t.state.procurementSessions[s.ID] = s
	return s, nil
}

func (t *tx) SummarizeProcurementSession(_ context.Context, sessionID int64) (decimal.Decimal, int, error) {
	total, count := decimal.Zero, 0
	for _, e := range t.state.procurementEntries {
		if e.SessionID == sessionID {
			total = total.Add(e.TotalAmount)
			count++
		}
	}
	return total, count, nil
}

func (t *tx) UpdateProcurementSessionTotal(_ context.Context, sessionID int64, total decimal.Decimal) error {
	s, ok := t.state.procurementSessions[sessionID]
	if !ok {
		return shared.NotFound("procurement_session", sessionID)
	}
	s.TotalAmount = total
	t.state.procurementSessions[sessionID] = s
	return nil
}

func (t *tx) DeleteProcurementSession(_ context.Context, sessionID int64) error {
	delete(t.state.procurementSessions, sessionID)
	return nil
}

func (t *tx) InsertProcurementEntry(_ context.Context, entry ledger.ProcurementEntry) (int64, error) {
	entry.ID = t.state.id()
	entry.Date = shared.DateOf(entry.Date)
	t.state.procurementEntries[entry.ID] = entry
	return entry.ID, nil
}

func (t *tx) GetProcurementEntryForUpdate(_ context.Context, id int64) (ledger.ProcurementEntry, error) {
	e, ok := t.state.procurementEntries[id]
	if !ok {
		return ledger.ProcurementEntry{}, shared.NotFound("procurement_entry", id)
	}
	return e, nil
}

func (t *tx) UpdateProcurementEntry(_ context.Context, entry ledger.ProcurementEntry) error {
	if _, ok := t.state.procurementEntries[entry.ID]; !ok {
		return shared.NotFound("procurement_entry", entry.ID)
	}
	t.state.procurementEntries[entry.ID] = entry
	return nil
}

func (t *tx) DeleteProcurementEntry(_ context.Context, id int64) error {
	if _, ok := t.state.procurementEntries[id]; !ok {
		return shared.NotFound("procurement_entry", id)
	}
	delete(t.state.procurementEntries, id)
	return nil
}

// Sales.

func (t *tx) GetSalesSessionByDate(_ context.Context, date time.Time) (ledger.SalesSession, error) {
	for _, s := range t.state.salesSessions {
		if s.Date.Equal(shared.DateOf(date)) {
			return s, nil
		}
	}
	return ledger.SalesSession{}, shared.NotFound("sales_session", shared.FormatDate(date))
}

func (t *tx) CreateSalesSession(_ context.Context, date time.Time) (ledger.SalesSession, error) {
	s := ledger.SalesSession{ID: t.state.id(), Date: shared.DateOf(date), TotalSalesAmount: decimal.Zero}
	t.state.salesSessions[s.ID] = s
	return s, nil
}

func (t *tx) SummarizeSalesSession(_ context.Context, sessionID int64) (decimal.Decimal, int, int, error) {
	total, count := decimal.Zero, 0
	sellers := make(map[int64]struct{})
	for _, e := range t.state.salesEntries {
		if e.SessionID == sessionID {
			total = total.Add(e.TotalAmount)
			sellers[e.SellerID] = struct{}{}
			count++
		}
	}
	return total, len(sellers), count, nil
}

func (t *tx) UpdateSalesSessionTotals(_ context.Context, sessionID int64, total decimal.Decimal, sellers int) error {
	s, ok := t.state.salesSessions[sessionID]
	if !ok {
		return shared.NotFound("sales_session", sessionID)
	}
	s.TotalSalesAmount = total
	s.TotalSellers = sellers
	t.state.salesSessions[sessionID] = s
	return nil
}

func (t *tx) DeleteSalesSession(_ context.Context, sessionID int64) error {
	delete(t.state.salesSessions, sessionID)
	return nil
}

func (t *tx) withLineIDs(entry ledger.SalesEntry) ledger.SalesEntry {
	lines := make([]ledger.SalesLineItem, len(entry.Lines))
	for i, line := range entry.Lines {
		line.SalesEntryID = entry.ID
		if line.ID == 0 {
			line.ID = t.state.id()
		}
		lines[i] = line
	}
	entry.Lines = lines
	return entry
}

func (t *tx) InsertSalesEntry(_ context.Context, entry ledger.SalesEntry) (int64, error) {
	entry.ID = t.state.id()
	entry.Date = shared.DateOf(entry.Date)
	t.state.salesEntries[entry.ID] = t.withLineIDs(entry)
	return entry.ID, nil
}

func (t *tx) GetSalesEntryForUpdate(_ context.Context, id int64) (ledger.SalesEntry, error) {
	e, ok := t.state.salesEntries[id]
	if !ok {
		return ledger.SalesEntry{}, shared.NotFound("sales_entry", id)
	}
	e.Lines = slices.Clone(e.Lines)
	return e, nil
}

func (t *tx) UpdateSalesEntry(_ context.Context, entry ledger.SalesEntry) error {
	if _, ok := t.state.salesEntries[entry.ID]; !ok {
		return shared.NotFound("sales_entry", entry.ID)
	}
	t.state.salesEntries[entry.ID] = t.withLineIDs(entry)
	return nil
}

func (t *tx) DeleteSalesEntry(_ context.Context, id int64) error {
	if _, ok := t.state.salesEntries[id]; !ok {
		return shared.NotFound("sales_entry", id)
	}
	delete(t.state.salesEntries, id)
	return nil
}

// sellerEntries returns the (seller, item) entries by date then id.
func (t *tx) sellerEntries(sellerID, itemID int64) []ledger.SalesEntry {
	var out []ledger.SalesEntry
	for _, e := range t.state.salesEntries {
		if e.SellerID == sellerID && e.ItemID == itemID {
			e.Lines = slices.Clone(e.Lines)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *tx) ListSalesEntries(_ context.Context, sellerID, itemID int64) ([]ledger.SalesEntry, error) {
	return t.sellerEntries(sellerID, itemID), nil
}

// Payments and damage.

func (t *tx) InsertSupplierPayment(_ context.Context, p ledger.SupplierPayment) (int64, error) {
	p.ID = t.state.id()
	p.Date = shared.DateOf(p.Date)
	t.state.supplierPayments[p.ID] = p
	return p.ID, nil
}

func (t *tx) GetSupplierPayment(_ context.Context, id int64) (ledger.SupplierPayment, error) {
	p, ok := t.state.supplierPayments[id]
	if !ok {
		return ledger.SupplierPayment{}, shared.NotFound("supplier_payment", id)
	}
	return p, nil
}

func (t *tx) UpdateSupplierPayment(_ context.Context, p ledger.SupplierPayment) error {
	if _, ok := t.state.supplierPayments[p.ID]; !ok {
		return shared.NotFound("supplier_payment", p.ID)
	}
	p.Date = shared.DateOf(p.Date)
	t.state.supplierPayments[p.ID] = p
	return nil
}

func (t *tx) DeleteSupplierPayment(_ context.Context, id int64) error {
	if _, ok := t.state.supplierPayments[id]; !ok {
		return shared.NotFound("supplier_payment", id)
	}
	delete(t.state.supplierPayments, id)
	return nil
}

func (t *tx) InsertSellerPayment(_ context.Context, p ledger.SellerPayment) (int64, error) {
	p.ID = t.state.id()
	p.Date = shared.DateOf(p.Date)
	t.state.sellerPayments[p.ID] = p
	return p.ID, nil
}

func (t *tx) GetSellerPayment(_ context.Context, id int64) (ledger.SellerPayment, error) {
	p, ok := t.state.sellerPayments[id]
	if !ok {
		return ledger.SellerPayment{}, shared.NotFound("seller_payment", id)
	}
	return p, nil
}

func (t *tx) UpdateSellerPayment(_ context.Context, p ledger.SellerPayment) error {
	if _, ok := t.state.sellerPayments[p.ID]; !ok {
		return shared.NotFound("seller_payment", p.ID)
	}
	p.Date = shared.DateOf(p.Date)
	t.state.sellerPayments[p.ID] = p
	return nil
}

func (t *tx) DeleteSellerPayment(_ context.Context, id int64) error {
	if _, ok := t.state.sellerPayments[id]; !ok {
		return shared.NotFound("seller_payment", id)
	}
	delete(t.state.sellerPayments, id)
	return nil
}

func (t *tx) InsertDamageEntry(_ context.Context, e ledger.DamageEntry) (int64, error) {
	e.ID = t.state.id()
	e.Date = shared.DateOf(e.Date)
	t.state.damages[e.ID] = e
	return e.ID, nil
}

func (t *tx) GetDamageEntry(_ context.Context, id int64) (ledger.DamageEntry, error) {
	e, ok := t.state.damages[id]
	if !ok {
		return ledger.DamageEntry{}, shared.NotFound("damage_entry", id)
	}
	return e, nil
}

func (t *tx) UpdateDamageEntry(_ context.Context, e ledger.DamageEntry) error {
	if _, ok := t.state.damages[e.ID]; !ok {
		return shared.NotFound("damage_entry", e.ID)
	}
	t.state.damages[e.ID] = e
	return nil
}

func (t *tx) DeleteDamageEntry(_ context.Context, id int64) error {
	if _, ok := t.state.damages[id]; !ok {
		return shared.NotFound("damage_entry", id)
	}
	delete(t.state.damages, id)
	return nil
}

func (t *tx) ActivePairs(_ context.Context, role shared.Role) ([]balances.Pair, error) {
	seen := make(map[balances.Pair]struct{})
	add := func(party, item int64) {
		seen[balances.Pair{Role: role, PartyID: party, ItemID: item}] = struct{}{}
	}
	switch role {
	case shared.RoleSupplier:
		for _, e := range t.state.procurementEntries {
			add(e.SupplierID, e.ItemID)
		}
		for _, p := range t.state.supplierPayments {
			add(p.SupplierID, p.ItemID)
		}
		for _, d := range t.state.damages {
			add(d.SupplierID, d.ItemID)
		}
	case shared.RoleSeller:
		for _, e := range t.state.salesEntries {
			add(e.SellerID, e.ItemID)
		}
		for _, p := range t.state.sellerPayments {
			add(p.SellerID, p.ItemID)
		}
	}
	for k := range t.state.openings {
		if k.role == role {
			add(k.party, k.itemID)
		}
	}
	for k := range t.state.outstanding {
		if k.role == role {
			add(k.party, k.itemID)
		}
	}
	out := make([]balances.Pair, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PartyID != out[j].PartyID {
			return out[i].PartyID < out[j].PartyID
		}
		return out[i].ItemID < out[j].ItemID
	})
	return out, nil
}

// Balances.

func (t *tx) GetOpeningBalance(_ context.Context, role shared.Role, partyID, itemID int64) (balances.OpeningBalance, error) {
	ob, ok := t.state.openings[pairKey{role: role, party: partyID, itemID: itemID}]
	if !ok {
		return balances.OpeningBalance{}, balances.ErrOpeningBalanceNotFound
	}
	return ob, nil
}

func (t *tx) UpsertOpeningBalance(_ context.Context, ob balances.OpeningBalance) error {
	ob.EffectiveFrom = shared.DateOf(ob.EffectiveFrom)
	t.state.openings[pairKey{role: ob.Role, party: ob.PartyID, itemID: ob.ItemID}] = ob
	return nil
}

func (t *tx) DeleteOpeningBalance(_ context.Context, role shared.Role, partyID, itemID int64) error {
	delete(t.state.openings, pairKey{role: role, party: partyID, itemID: itemID})
	return nil
}

func (t *tx) GetOutstanding(_ context.Context, role shared.Role, partyID, itemID int64) (balances.Outstanding, error) {
	o, ok := t.state.outstanding[pairKey{role: role, party: partyID, itemID: itemID}]
	if !ok {
		return balances.Outstanding{}, balances.ErrOutstandingNotFound
	}
	return o, nil
}

func (t *tx) UpsertOutstanding(_ context.Context, o balances.Outstanding) error {
	t.state.outstanding[pairKey{role: o.Role, party: o.PartyID, itemID: o.ItemID}] = o
	return nil
}

func (t *tx) SupplierTotals(_ context.Context, supplierID, itemID int64) (balances.SupplierTotals, error) {
	totals := balances.SupplierTotals{
		ProcuredAmount:   decimal.Zero,
		ProcuredQuantity: decimal.Zero,
		AmountPaid:       decimal.Zero,
		CratesReturned:   decimal.Zero,
		DamageDiscount:   decimal.Zero,
		DamagedReturned:  decimal.Zero,
	}
	for _, e := range t.state.procurementEntries {
		if e.SupplierID == supplierID && e.ItemID == itemID {
			totals.ProcuredAmount = totals.ProcuredAmount.Add(e.TotalAmount)
			totals.ProcuredQuantity = totals.ProcuredQuantity.Add(e.Quantity)
		}
	}
	for _, p := range t.state.supplierPayments {
		if p.SupplierID == supplierID && p.ItemID == itemID {
			totals.AmountPaid = totals.AmountPaid.Add(p.AmountPaid)
			totals.CratesReturned = totals.CratesReturned.Add(p.CratesReturned)
		}
	}
	for _, d := range t.state.damages {
		if d.SupplierID == supplierID && d.ItemID == itemID {
			totals.DamageDiscount = totals.DamageDiscount.Add(d.SupplierDiscountAmount)
			totals.DamagedReturned = totals.DamagedReturned.Add(d.DamagedReturnedQty)
		}
	}
	return totals, nil
}

func (t *tx) SellerTotals(_ context.Context, sellerID, itemID int64, before time.Time) (balances.SellerTotals, error) {
	totals := balances.SellerTotals{
		SoldAmount:     decimal.Zero,
		SoldQuantity:   decimal.Zero,
		AmountPaid:     decimal.Zero,
		Discount:       decimal.Zero,
		EntryCrates:    decimal.Zero,
		AmountReceived: decimal.Zero,
		PaymentCrates:  decimal.Zero,
	}
	counts := func(date time.Time) bool {
		return before.IsZero() || date.Before(shared.DateOf(before))
	}
	for _, e := range t.state.salesEntries {
		if e.SellerID != sellerID || e.ItemID != itemID || !counts(e.Date) {
			continue
		}
		totals.SoldAmount = totals.SoldAmount.Add(e.TotalAmount)
		totals.SoldQuantity = totals.SoldQuantity.Add(e.TotalQuantity)
		totals.AmountPaid = totals.AmountPaid.Add(e.AmountPaid)
		totals.Discount = totals.Discount.Add(e.Discount)
		totals.EntryCrates = totals.EntryCrates.Add(e.CratesReturned)
	}
	for _, p := range t.state.sellerPayments {
		if p.SellerID != sellerID || p.ItemID != itemID || !counts(p.Date) {
			continue
		}
		totals.AmountReceived = totals.AmountReceived.Add(p.AmountReceived)
		totals.PaymentCrates = totals.PaymentCrates.Add(p.CratesReturned)
	}
	return totals, nil
}

func (t *tx) SellerEntriesFrom(_ context.Context, sellerID, itemID int64, from time.Time) ([]balances.RunningEntry, error) {
	var out []balances.RunningEntry
	for _, e := range t.sellerEntries(sellerID, itemID) {
		if !from.IsZero() && e.Date.Before(shared.DateOf(from)) {
			continue
		}
		out = append(out, balances.RunningEntry{
			ID:              e.ID,
			Date:            e.Date,
			TotalQuantity:   e.TotalQuantity,
			TotalAmount:     e.TotalAmount,
			AmountPaid:      e.AmountPaid,
			Discount:        e.Discount,
			CratesReturned:  e.CratesReturned,
			RunningPayment:  e.RunningPaymentOutstanding,
			RunningQuantity: e.RunningQuantityOutstanding,
		})
	}
	return out, nil
}

func (t *tx) SellerPaymentsFrom(_ context.Context, sellerID, itemID int64, from time.Time) ([]balances.PaymentMovement, error) {
	var out []balances.PaymentMovement
	for _, p := range t.state.sellerPayments {
		if p.SellerID != sellerID || p.ItemID != itemID {
			continue
		}
		if !from.IsZero() && p.Date.Before(shared.DateOf(from)) {
			continue
		}
		out = append(out, balances.PaymentMovement{
			ID:             p.ID,
			Date:           p.Date,
			AmountReceived: p.AmountReceived,
			CratesReturned: p.CratesReturned,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) StampRunningBalance(_ context.Context, entryID int64, payment, quantity decimal.Decimal) error {
	e, ok := t.state.salesEntries[entryID]
	if !ok {
		return shared.NotFound("sales_entry", entryID)
	}
	e.RunningPaymentOutstanding = payment
	e.RunningQuantityOutstanding = quantity
	t.state.salesEntries[entryID] = e
	return nil
}

// Inventory.

func (t *tx) GetCurrentForUpdate(_ context.Context, itemID int64, variety string) (inventory.CurrentStock, error) {
	cur, ok := t.state.current[stockKey{itemID: itemID, variety: variety}]
	if !ok {
		return inventory.CurrentStock{}, inventory.ErrStockNotFound
	}
	return cur, nil
}

func (t *tx) UpsertCurrent(_ context.Context, stock inventory.CurrentStock) error {
	t.state.current[stockKey{itemID: stock.ItemID, variety: stock.Variety}] = stock
	return nil
}

func sortCurrent(rows []inventory.CurrentStock) []inventory.CurrentStock {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ItemID != rows[j].ItemID {
			return rows[i].ItemID < rows[j].ItemID
		}
		return rows[i].Variety < rows[j].Variety
	})
	return rows
}

func (t *tx) ListCurrent(_ context.Context, itemID int64) ([]inventory.CurrentStock, error) {
	var out []inventory.CurrentStock
	for _, cur := range t.state.current {
		if cur.ItemID == itemID {
			out = append(out, cur)
		}
	}
	return sortCurrent(out), nil
}

func (t *tx) ListAllCurrent(_ context.Context) ([]inventory.CurrentStock, error) {
	out := make([]inventory.CurrentStock, 0, len(t.state.current))
	for _, cur := range t.state.current {
		out = append(out, cur)
	}
	return sortCurrent(out), nil
}

func (t *tx) GetDaily(_ context.Context, date time.Time, itemID int64, variety string) (inventory.DailyRow, error) {
	row, ok := t.state.daily[dailyKey{day: dayKey(date), itemID: itemID, variety: variety}]
	if !ok {
		return inventory.DailyRow{}, inventory.ErrStockNotFound
	}
	return row, nil
}

// series returns the variety's snapshots by date.
func (t *tx) series(itemID int64, variety string) []inventory.DailyRow {
	var out []inventory.DailyRow
	for _, row := range t.state.daily {
		if row.ItemID == itemID && row.Variety == variety {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (t *tx) LatestDailyBefore(_ context.Context, date time.Time, itemID int64, variety string) (inventory.DailyRow, error) {
	date = shared.DateOf(date)
	rows := t.series(itemID, variety)
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Date.Before(date) {
			return rows[i], nil
		}
	}
	return inventory.DailyRow{}, inventory.ErrStockNotFound
}

func (t *tx) ListDailyAfter(_ context.Context, date time.Time, itemID int64, variety string) ([]inventory.DailyRow, error) {
	date = shared.DateOf(date)
	var out []inventory.DailyRow
	for _, row := range t.series(itemID, variety) {
		if row.Date.After(date) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t *tx) ListDailyOn(_ context.Context, date time.Time, itemID int64) ([]inventory.DailyRow, error) {
	date = shared.DateOf(date)
	var out []inventory.DailyRow
	for _, row := range t.state.daily {
		if row.Date.Equal(date) && (itemID == 0 || row.ItemID == itemID) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Variety < out[j].Variety
	})
	return out, nil
}

func (t *tx) UpsertDaily(_ context.Context, row inventory.DailyRow) error {
	row.Date = shared.DateOf(row.Date)
	t.state.daily[dailyKey{day: dayKey(row.Date), itemID: row.ItemID, variety: row.Variety}] = row
	return nil
}

func (t *tx) GetItemType(_ context.Context, itemID int64, variety string) (inventory.ItemType, error) {
	it, ok := t.state.types[stockKey{itemID: itemID, variety: variety}]
	if !ok {
		return inventory.ItemType{}, inventory.ErrItemTypeNotFound
	}
	return it, nil
}

func (t *tx) UpsertItemType(_ context.Context, it inventory.ItemType) error {
	t.state.types[stockKey{itemID: it.ItemID, variety: it.Variety}] = it
	return nil
}

func (t *tx) ListItemTypes(_ context.Context, itemID int64) ([]inventory.ItemType, error) {
	var out []inventory.ItemType
	for _, it := range t.state.types {
		if itemID == 0 || it.ItemID == itemID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].Variety < out[j].Variety
	})
	return out, nil
}
