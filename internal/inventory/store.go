package inventory

import (
	"context"
	"time"
)

// Store is the transactional persistence port for both inventory views and
// the type registry. Implementations run inside the caller's transaction.
type Store interface {
	// GetCurrentForUpdate locks and returns the live row, or ErrStockNotFound.
	GetCurrentForUpdate(ctx context.Context, itemID int64, variety string) (CurrentStock, error)
	UpsertCurrent(ctx context.Context, stock CurrentStock) error
	ListCurrent(ctx context.Context, itemID int64) ([]CurrentStock, error)
	ListAllCurrent(ctx context.Context) ([]CurrentStock, error)

	// GetDaily returns the row dated exactly date, or ErrStockNotFound.
	GetDaily(ctx context.Context, date time.Time, itemID int64, variety string) (DailyRow, error)
	// LatestDailyBefore returns the newest row dated strictly before date, or ErrStockNotFound.
	LatestDailyBefore(ctx context.Context, date time.Time, itemID int64, variety string) (DailyRow, error)
	// ListDailyAfter returns rows dated strictly after date in ascending order.
	ListDailyAfter(ctx context.Context, date time.Time, itemID int64, variety string) ([]DailyRow, error)
	// ListDailyOn returns every row dated exactly date; itemID 0 matches all items.
	ListDailyOn(ctx context.Context, date time.Time, itemID int64) ([]DailyRow, error)
	UpsertDaily(ctx context.Context, row DailyRow) error

	GetItemType(ctx context.Context, itemID int64, variety string) (ItemType, error)
	UpsertItemType(ctx context.Context, t ItemType) error
	// ListItemTypes returns registered varieties; itemID 0 matches all items.
	ListItemTypes(ctx context.Context, itemID int64) ([]ItemType, error)
}
