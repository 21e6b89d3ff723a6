package balances

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Store is the transactional persistence port for opening balances, the
// outstanding cache and the seller running ledger.
type Store interface {
	GetOpeningBalance(ctx context.Context, role shared.Role, partyID, itemID int64) (OpeningBalance, error)
	UpsertOpeningBalance(ctx context.Context, ob OpeningBalance) error
	DeleteOpeningBalance(ctx context.Context, role shared.Role, partyID, itemID int64) error

	GetOutstanding(ctx context.Context, role shared.Role, partyID, itemID int64) (Outstanding, error)
	UpsertOutstanding(ctx context.Context, o Outstanding) error

	SupplierTotals(ctx context.Context, supplierID, itemID int64) (SupplierTotals, error)
	// SellerTotals sums activity dated strictly before before; a zero before sums everything.
	SellerTotals(ctx context.Context, sellerID, itemID int64, before time.Time) (SellerTotals, error)
	// SellerEntriesFrom lists entries dated on or after from, by date then insertion order.
	SellerEntriesFrom(ctx context.Context, sellerID, itemID int64, from time.Time) ([]RunningEntry, error)
	// SellerPaymentsFrom lists standalone payments dated on or after from, by date then id.
	SellerPaymentsFrom(ctx context.Context, sellerID, itemID int64, from time.Time) ([]PaymentMovement, error)
	StampRunningBalance(ctx context.Context, entryID int64, payment, quantity decimal.Decimal) error
}
