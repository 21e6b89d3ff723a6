package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate(" 2024-03-09 ")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), got)
	require.Equal(t, "2024-03-09", FormatDate(got))
	require.Empty(t, FormatDate(time.Time{}))

	for _, bad := range []string{"", "09/03/2024", "2024-02-30"} {
		_, err := ParseDate(bad)
		require.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestTodayUsesBusinessTimezone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	now := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Today(now, time.UTC))
	require.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Today(now, kolkata))
}

func TestMinDate(t *testing.T) {
	a := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, a, MinDate(a, b))
	require.Equal(t, a, MinDate(b, a))
	require.Equal(t, b, MinDate(time.Time{}, b))
	require.Equal(t, a, MinDate(a, time.Time{}))
}

func TestErrorsWrap(t *testing.T) {
	violation := fmt.Errorf("sales: %w", &InventoryViolationError{
		ItemID: 7, Variety: "Alphonso", Date: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		Available: decimal.NewFromInt(5), Requested: decimal.NewFromInt(8),
	})
	require.ErrorIs(t, violation, ErrInventoryViolation)
	require.Contains(t, UserSafeMessage(violation), `variety "Alphonso" on 2024-03-09: available 5, requested 8`)

	var nf *NotFoundError
	require.True(t, errors.As(fmt.Errorf("x: %w", NotFound("sales_entry", 3)), &nf))
	require.Equal(t, "sales_entry", nf.Entity)

	require.Equal(t, "quantity: must be positive", Invalid("quantity", "must be %s", "positive").Error())
	require.Equal(t, "concurrent update, please retry", UserSafeMessage(fmt.Errorf("tx: %w", ErrConflict)))
	require.Equal(t, "internal error", UserSafeMessage(errors.New("pq: boom")))
	require.Empty(t, UserSafeMessage(nil))
}

func TestLockKeys(t *testing.T) {
	require.True(t, RoleSeller.Valid())
	require.False(t, Role("buyer").Valid())
	require.Equal(t, "ledger:seller:4:item:2", PartyItemLockKey(RoleSeller, 4, 2))
	require.Equal(t, InventoryLockKey(2, "Alphonso"), InventoryLockKey(2, "alphonso"))
	require.Equal(t, "session:sales:2024-03-02", SessionLockKey("sales", time.Date(2024, time.March, 2, 18, 0, 0, 0, time.UTC)))
}
