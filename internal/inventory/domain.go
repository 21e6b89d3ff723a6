package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CurrentStock is the live per-variety stock view.
type CurrentStock struct {
	ItemID      int64
	Variety     string
	Stock       decimal.Decimal
	AvgRate     decimal.Decimal
	LastUpdated time.Time
}

// DailyRow is the dated snapshot of one variety's stock movement.
type DailyRow struct {
	Date      time.Time
	ItemID    int64
	Variety   string
	Opening   decimal.Decimal
	Purchased decimal.Decimal
	Sold      decimal.Decimal
	Closing   decimal.Decimal
	AvgRate   decimal.Decimal
}

// ItemType registers a variety of an item.
type ItemType struct {
	ItemID    int64
	Variety   string
	FirstSeen time.Time
	LastSeen  time.Time
	Active    bool
}

// Availability is one variety's stock as of a date.
type Availability struct {
	Variety string          `json:"variety"`
	Stock   decimal.Decimal `json:"stock"`
	AvgRate decimal.Decimal `json:"avg_rate"`
}

var (
	// ErrStockNotFound is returned by stores when no stock row exists.
	ErrStockNotFound = errors.New("inventory: stock row not found")
	// ErrItemTypeNotFound is returned by stores when the variety is not registered.
	ErrItemTypeNotFound = errors.New("inventory: item type not found")
)

// recompute refreshes the closing figure from its components, clamped at 0.
func (r *DailyRow) recompute() {
	r.Closing = decimal.Max(r.Opening.Add(r.Purchased).Sub(r.Sold), decimal.Zero)
}

// Shortfall is how far sold exceeds what the day had on hand.
func (r DailyRow) Shortfall() decimal.Decimal {
	return decimal.Max(r.Sold.Sub(r.Opening).Sub(r.Purchased), decimal.Zero)
}
