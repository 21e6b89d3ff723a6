package shared

import (
	"fmt"
	"strings"
	"time"
)

// Role distinguishes the two kinds of counterparty.
type Role string

const (
	RoleSupplier Role = "supplier"
	RoleSeller   Role = "seller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleSupplier || r == RoleSeller
}

// PartyItemLockKey serialises mutations touching one (party, item) ledger.
func PartyItemLockKey(role Role, partyID, itemID int64) string {
	return fmt.Sprintf("ledger:%s:%d:item:%d", role, partyID, itemID)
}

// InventoryLockKey serialises mutations touching one (item, variety) stock series.
func InventoryLockKey(itemID int64, variety string) string {
	return fmt.Sprintf("inventory:item:%d:%s", itemID, strings.ToLower(variety))
}

// SessionLockKey serialises creating, retotalling and removing the session of
// kind held on date.
func SessionLockKey(kind string, date time.Time) string {
	return fmt.Sprintf("session:%s:%s", kind, FormatDate(date))
}

// IntegrityLockKey guards the single running integrity scan.
func IntegrityLockKey() string {
	return "ledger:integrity:lock"
}
