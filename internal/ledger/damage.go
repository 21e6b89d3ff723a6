package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// DamagePatch lists the fields a damage update may change.
type DamagePatch struct {
	DamagedQty             *decimal.Decimal
	DamagedReturnedQty     *decimal.Decimal
	SupplierDiscountAmount *decimal.Decimal
}

func validateDamage(e DamageEntry) error {
	if e.Variety == "" {
		return shared.Invalid("variety", "required")
	}
	if err := requireNonNegative("damaged_qty", e.DamagedQty); err != nil {
		return err
	}
	if err := requireNonNegative("damaged_returned_qty", e.DamagedReturnedQty); err != nil {
		return err
	}
	if err := requireNonNegative("supplier_discount_amount", e.SupplierDiscountAmount); err != nil {
		return err
	}
	if e.DamagedReturnedQty.GreaterThan(e.DamagedQty) {
		return shared.Invalid("damaged_returned_qty", "cannot exceed damaged_qty")
	}
	if e.DamagedQty.IsZero() && e.SupplierDiscountAmount.IsZero() {
		return shared.Invalid("damaged_qty", "damage entry must record a quantity or a discount")
	}
	return nil
}

// RecordDamageEntry writes off damaged produce against a supplier. The entry
// reduces the supplier's outstanding; stock views are left untouched.
func (s *Service) RecordDamageEntry(ctx context.Context, input DamageInput) (Result, error) {
	if err := requireID("supplier_id", input.SupplierID); err != nil {
		return Result{}, err
	}
	if err := requireID("item_id", input.ItemID); err != nil {
		return Result{}, err
	}
	entry := DamageEntry{
		SupplierID:             input.SupplierID,
		ItemID:                 input.ItemID,
		Variety:                inventory.NormalizeVariety(input.Variety),
		DamagedQty:             input.DamagedQty,
		DamagedReturnedQty:     input.DamagedReturnedQty,
		SupplierDiscountAmount: input.SupplierDiscountAmount,
	}
	if err := validateDamage(entry); err != nil {
		return Result{}, err
	}
	date, err := s.businessDate("date", input.Date)
	if err != nil {
		return Result{}, err
	}
	entry.Date = date

	var result Result
	err = s.mutate(ctx, "damage.add", func(ctx context.Context, c *cascade) error {
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSupplier, entry.SupplierID, entry.ItemID)); err != nil {
			return err
		}
		if err := c.requirePair(ctx, shared.RoleSupplier, entry.SupplierID, entry.ItemID); err != nil {
			return err
		}
		id, err := c.tx.InsertDamageEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("ledger: insert damage entry: %w", err)
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, entry.SupplierID, entry.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "damage.add", "damage_entry", result.EntryID, map[string]any{
		"supplier_id": entry.SupplierID,
		"variety":     entry.Variety,
		"damaged_qty": entry.DamagedQty.String(),
	})
	return result, nil
}

// UpdateDamageEntry changes the quantities or discount of a damage entry.
func (s *Service) UpdateDamageEntry(ctx context.Context, id int64, patch DamagePatch) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.mutate(ctx, "damage.update", func(ctx context.Context, c *cascade) error {
		entry, err := c.tx.GetDamageEntry(ctx, id)
		if err != nil {
			return err
		}
		if patch.DamagedQty != nil {
			entry.DamagedQty = *patch.DamagedQty
		}
		if patch.DamagedReturnedQty != nil {
			entry.DamagedReturnedQty = *patch.DamagedReturnedQty
		}
		if patch.SupplierDiscountAmount != nil {
			entry.SupplierDiscountAmount = *patch.SupplierDiscountAmount
		}
		if err := validateDamage(entry); err != nil {
			return err
		}
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSupplier, entry.SupplierID, entry.ItemID)); err != nil {
			return err
		}
		if err := c.tx.UpdateDamageEntry(ctx, entry); err != nil {
			return fmt.Errorf("ledger: update damage entry: %w", err)
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, entry.SupplierID, entry.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "damage.update", "damage_entry", id, nil)
	return result, nil
}

// DeleteDamageEntry removes a damage entry.
func (s *Service) DeleteDamageEntry(ctx context.Context, id int64) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.mutate(ctx, "damage.delete", func(ctx context.Context, c *cascade) error {
		entry, err := c.tx.GetDamageEntry(ctx, id)
		if err != nil {
			return err
		}
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSupplier, entry.SupplierID, entry.ItemID)); err != nil {
			return err
		}
		if err := c.tx.DeleteDamageEntry(ctx, id); err != nil {
			return fmt.Errorf("ledger: delete damage entry: %w", err)
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, entry.SupplierID, entry.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "damage.delete", "damage_entry", id, nil)
	return result, nil
}
