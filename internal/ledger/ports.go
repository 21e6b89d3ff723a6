package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// RepositoryPort abstracts transactional access to the ledger store.
type RepositoryPort interface {
	// WithTx runs a mutation. Once Lock returns, every read in the
	// transaction observes all commits made by earlier holders of the keys.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// ReadTx runs fn against one consistent read-only snapshot.
	ReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes every store operation a cascade needs inside one
// transaction.
type TxRepository interface {
	inventory.Store
	balances.Store

	// Lock serialises the transaction against others holding any of keys
	// until it ends.
	Lock(ctx context.Context, keys ...string) error

	ItemExists(ctx context.Context, itemID int64) (bool, error)
	PartyExists(ctx context.Context, role shared.Role, partyID int64) (bool, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	InsertParty(ctx context.Context, party Party) (int64, error)

	GetProcurementSessionByDate(ctx context.Context, date time.Time) (ProcurementSession, error)
	CreateProcurementSession(ctx context.Context, date time.Time) (ProcurementSession, error)
	// SummarizeProcurementSession returns the entry total and entry count.
	SummarizeProcurementSession(ctx context.Context, sessionID int64) (decimal.Decimal, int, error)
	UpdateProcurementSessionTotal(ctx context.Context, sessionID int64, total decimal.Decimal) error
	DeleteProcurementSession(ctx context.Context, sessionID int64) error

	InsertProcurementEntry(ctx context.Context, entry ProcurementEntry) (int64, error)
	GetProcurementEntryForUpdate(ctx context.Context, id int64) (ProcurementEntry, error)
	UpdateProcurementEntry(ctx context.Context, entry ProcurementEntry) error
	DeleteProcurementEntry(ctx context.Context, id int64) error

	GetSalesSessionByDate(ctx context.Context, date time.Time) (SalesSession, error)
	CreateSalesSession(ctx context.Context, date time.Time) (SalesSession, error)
	// SummarizeSalesSession returns the amount total, distinct sellers and entry count.
	SummarizeSalesSession(ctx context.Context, sessionID int64) (decimal.Decimal, int, int, error)
	UpdateSalesSessionTotals(ctx context.Context, sessionID int64, total decimal.Decimal, sellers int) error
	DeleteSalesSession(ctx context.Context, sessionID int64) error

	InsertSalesEntry(ctx context.Context, entry SalesEntry) (int64, error)
	GetSalesEntryForUpdate(ctx context.Context, id int64) (SalesEntry, error)
	UpdateSalesEntry(ctx context.Context, entry SalesEntry) error
	DeleteSalesEntry(ctx context.Context, id int64) error
	ListSalesEntries(ctx context.Context, sellerID, itemID int64) ([]SalesEntry, error)

	InsertSupplierPayment(ctx context.Context, p SupplierPayment) (int64, error)
	GetSupplierPayment(ctx context.Context, id int64) (SupplierPayment, error)
	UpdateSupplierPayment(ctx context.Context, p SupplierPayment) error
	DeleteSupplierPayment(ctx context.Context, id int64) error

	InsertSellerPayment(ctx context.Context, p SellerPayment) (int64, error)
	GetSellerPayment(ctx context.Context, id int64) (SellerPayment, error)
	UpdateSellerPayment(ctx context.Context, p SellerPayment) error
	DeleteSellerPayment(ctx context.Context, id int64) error

	InsertDamageEntry(ctx context.Context, e DamageEntry) (int64, error)
	GetDamageEntry(ctx context.Context, id int64) (DamageEntry, error)
	UpdateDamageEntry(ctx context.Context, e DamageEntry) error
	DeleteDamageEntry(ctx context.Context, id int64) error

	// ActivePairs lists every (party, item) of role with ledger rows, an
	// opening balance or a cached outstanding.
	ActivePairs(ctx context.Context, role shared.Role) ([]balances.Pair, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MutationObserver receives the outcome of every top-level mutation.
type MutationObserver interface {
	ObserveMutation(operation string, err error)
}
