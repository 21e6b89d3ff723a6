package balances

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Tolerance is the largest difference still treated as equal when comparing
// recomputed and cached balances.
var Tolerance = decimal.RequireFromString("0.01")

// OpeningBalance is the starting position of a (party, item) ledger.
type OpeningBalance struct {
	Role          shared.Role
	PartyID       int64
	ItemID        int64
	PaymentDue    decimal.Decimal
	QuantityDue   decimal.Decimal
	EffectiveFrom time.Time
}

// Outstanding is the cached aggregate position of a (party, item) ledger.
type Outstanding struct {
	Role        shared.Role     `json:"role"`
	PartyID     int64           `json:"party_id"`
	ItemID      int64           `json:"item_id"`
	PaymentDue  decimal.Decimal `json:"payment_due"`
	QuantityDue decimal.Decimal `json:"quantity_due"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Pair identifies one (party, item) ledger.
type Pair struct {
	Role    shared.Role
	PartyID int64
	ItemID  int64
}

// SupplierTotals are the ledger sums feeding a supplier's outstanding.
type SupplierTotals struct {
	ProcuredAmount   decimal.Decimal
	ProcuredQuantity decimal.Decimal
	AmountPaid       decimal.Decimal
	CratesReturned   decimal.Decimal
	DamageDiscount   decimal.Decimal
	DamagedReturned  decimal.Decimal
}

// SellerTotals are the ledger sums feeding a seller's outstanding.
type SellerTotals struct {
	SoldAmount     decimal.Decimal
	SoldQuantity   decimal.Decimal
	AmountPaid     decimal.Decimal
	Discount       decimal.Decimal
	EntryCrates    decimal.Decimal
	AmountReceived decimal.Decimal
	PaymentCrates  decimal.Decimal
}

// RunningEntry is the slice of a sales entry the running ledger reads and stamps.
type RunningEntry struct {
	ID              int64
	Date            time.Time
	TotalQuantity   decimal.Decimal
	TotalAmount     decimal.Decimal
	AmountPaid      decimal.Decimal
	Discount        decimal.Decimal
	CratesReturned  decimal.Decimal
	RunningPayment  decimal.Decimal
	RunningQuantity decimal.Decimal
}

// PaymentMovement is a standalone seller payment as seen by the running ledger.
type PaymentMovement struct {
	ID             int64
	Date           time.Time
	AmountReceived decimal.Decimal
	CratesReturned decimal.Decimal
}

// Stamp is the running position recorded on one sales entry.
type Stamp struct {
	EntryID  int64
	Date     time.Time
	Payment  decimal.Decimal
	Quantity decimal.Decimal
	Stored   bool
}

var (
	// ErrOpeningBalanceNotFound is returned by stores when no opening balance exists.
	ErrOpeningBalanceNotFound = errors.New("balances: opening balance not found")
	// ErrOutstandingNotFound is returned by stores when no cached row exists.
	ErrOutstandingNotFound = errors.New("balances: outstanding not found")
)

// SupplierDue applies the supplier aggregate formula.
func SupplierDue(opening OpeningBalance, t SupplierTotals) (payment, quantity decimal.Decimal) {
	payment = opening.PaymentDue.
		Add(t.ProcuredAmount).
		Sub(t.AmountPaid).
		Sub(t.DamageDiscount)
	quantity = opening.QuantityDue.
		Add(t.ProcuredQuantity).
		Sub(t.CratesReturned).
		Sub(t.DamagedReturned)
	return payment, quantity
}

// SellerDue applies the seller aggregate formula.
func SellerDue(opening OpeningBalance, t SellerTotals) (payment, quantity decimal.Decimal) {
	payment = opening.PaymentDue.Add(t.PaymentDelta())
	quantity = opening.QuantityDue.Add(t.QuantityDelta())
	return payment, quantity
}

// PaymentDelta is the net money movement of the summed seller activity.
func (t SellerTotals) PaymentDelta() decimal.Decimal {
	return t.SoldAmount.Sub(t.AmountPaid).Sub(t.Discount).Sub(t.AmountReceived)
}

// QuantityDelta is the net crate movement of the summed seller activity.
func (t SellerTotals) QuantityDelta() decimal.Decimal {
	return t.SoldQuantity.Sub(t.EntryCrates).Sub(t.PaymentCrates)
}

// Within reports whether a and b differ by no more than Tolerance.
func Within(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}
