package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// QuantityKind describes how an item is counted.
type QuantityKind string

const (
	QuantityCrate  QuantityKind = "crate"
	QuantityWeight QuantityKind = "weight"
	QuantityMixed  QuantityKind = "mixed"
)

// Item is a tradeable product from the external registry.
type Item struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	QuantityKind QuantityKind `json:"quantity_kind"`
	UnitName     string       `json:"unit_name"`
	Active       bool         `json:"active"`
}

// Party is a supplier or a seller from the external registry.
type Party struct {
	ID      int64       `json:"id"`
	Role    shared.Role `json:"role"`
	Name    string      `json:"name"`
	Contact string      `json:"contact"`
	Active  bool        `json:"active"`
}

// SessionStatus enumerates procurement session states.
type SessionStatus string

const (
	SessionOpen SessionStatus = "open"
)

// ProcurementSession groups the procurement entries of one date.
type ProcurementSession struct {
	ID          int64
	Date        time.Time
	TotalAmount decimal.Decimal
	Status      SessionStatus
}

// ProcurementEntry is one purchase line from a supplier.
type ProcurementEntry struct {
	ID          int64           `json:"id"`
	SessionID   int64           `json:"session_id"`
	Date        time.Time       `json:"date"`
	SupplierID  int64           `json:"supplier_id"`
	ItemID      int64           `json:"item_id"`
	Variety     string          `json:"variety"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// SalesSession groups the sales entries of one date.
type SalesSession struct {
	ID               int64
	Date             time.Time
	TotalSalesAmount decimal.Decimal
	TotalSellers     int
}

// SalesLineItem is one variety sold within a sales entry.
type SalesLineItem struct {
	ID           int64           `json:"id"`
	SalesEntryID int64           `json:"sales_entry_id"`
	Variety      string          `json:"variety"`
	Quantity     decimal.Decimal `json:"quantity"`
	SaleRate     decimal.Decimal `json:"sale_rate"`
	Amount       decimal.Decimal `json:"amount"`
}

// SalesEntry is one sale to a seller, carrying its running outstanding.
type SalesEntry struct {
	ID                         int64           `json:"id"`
	SessionID                  int64           `json:"session_id"`
	Date                       time.Time       `json:"date"`
	SellerID                   int64           `json:"seller_id"`
	ItemID                     int64           `json:"item_id"`
	TotalQuantity              decimal.Decimal `json:"total_quantity"`
	TotalAmount                decimal.Decimal `json:"total_amount"`
	AmountPaid                 decimal.Decimal `json:"amount_paid"`
	Discount                   decimal.Decimal `json:"discount"`
	CratesReturned             decimal.Decimal `json:"crates_returned"`
	RunningPaymentOutstanding  decimal.Decimal `json:"running_payment_outstanding"`
	RunningQuantityOutstanding decimal.Decimal `json:"running_quantity_outstanding"`
	Lines                      []SalesLineItem `json:"lines"`
}

// SupplierPayment settles money or crates with a supplier.
type SupplierPayment struct {
	ID             int64           `json:"id"`
	SupplierID     int64           `json:"supplier_id"`
	ItemID         int64           `json:"item_id"`
	Date           time.Time       `json:"date"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	CratesReturned decimal.Decimal `json:"crates_returned"`
}

// SellerPayment settles money or crates received from a seller.
type SellerPayment struct {
	ID             int64           `json:"id"`
	SellerID       int64           `json:"seller_id"`
	ItemID         int64           `json:"item_id"`
	Date           time.Time       `json:"date"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	CratesReturned decimal.Decimal `json:"crates_returned"`
}

// DamageEntry writes off damaged stock against a supplier.
type DamageEntry struct {
	ID                     int64           `json:"id"`
	SupplierID             int64           `json:"supplier_id"`
	ItemID                 int64           `json:"item_id"`
	Variety                string          `json:"variety"`
	Date                   time.Time       `json:"date"`
	DamagedQty             decimal.Decimal `json:"damaged_qty"`
	DamagedReturnedQty     decimal.Decimal `json:"damaged_returned_qty"`
	SupplierDiscountAmount decimal.Decimal `json:"supplier_discount_amount"`
}

// Result is the derived state returned by every mutation.
type Result struct {
	EntryID     int64                `json:"entry_id"`
	Outstanding balances.Outstanding `json:"outstanding"`
}

// AddProcurementInput describes a new procurement entry.
type AddProcurementInput struct {
	Date       time.Time
	SupplierID int64
	ItemID     int64
	Variety    string
	Quantity   decimal.Decimal
	Rate       decimal.Decimal
}

// ProcurementPatch lists the fields an update may change.
type ProcurementPatch struct {
	Quantity *decimal.Decimal
	Rate     *decimal.Decimal
	Variety  *string
}

// SalesLineInput describes one variety sold.
type SalesLineInput struct {
	Variety  string
	Quantity decimal.Decimal
	SaleRate decimal.Decimal
}

// AddSalesInput describes a new sales entry.
type AddSalesInput struct {
	Date           time.Time
	SellerID       int64
	ItemID         int64
	Lines          []SalesLineInput
	CratesReturned decimal.Decimal
	AmountPaid     decimal.Decimal
	Discount       decimal.Decimal
}

// SalesPatch lists the fields an update may change.
type SalesPatch struct {
	AmountPaid     *decimal.Decimal
	Discount       *decimal.Decimal
	CratesReturned *decimal.Decimal
	Lines          []SalesLineInput
}

// SupplierPaymentInput describes a supplier payment.
type SupplierPaymentInput struct {
	SupplierID     int64
	ItemID         int64
	Date           time.Time
	AmountPaid     decimal.Decimal
	CratesReturned decimal.Decimal
}

// SellerPaymentInput describes a seller payment.
type SellerPaymentInput struct {
	SellerID       int64
	ItemID         int64
	Date           time.Time
	AmountReceived decimal.Decimal
	CratesReturned decimal.Decimal
}

// DamageInput describes a damage write-off.
type DamageInput struct {
	SupplierID             int64
	ItemID                 int64
	Variety                string
	Date                   time.Time
	DamagedQty             decimal.Decimal
	DamagedReturnedQty     decimal.Decimal
	SupplierDiscountAmount decimal.Decimal
}

// OpeningBalanceInput describes an opening balance to set.
type OpeningBalanceInput struct {
	Role          shared.Role
	PartyID       int64
	ItemID        int64
	PaymentDue    decimal.Decimal
	QuantityDue   decimal.Decimal
	EffectiveFrom time.Time
}
