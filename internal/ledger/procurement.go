package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/produce-ledger/internal/inventory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

func (in *AddProcurementInput) validate() error {
	in.Variety = inventory.NormalizeVariety(in.Variety)
	if err := requireID("supplier_id", in.SupplierID); err != nil {
		return err
	}
	if err := requireID("item_id", in.ItemID); err != nil {
		return err
	}
	if in.Variety == "" {
		return shared.Invalid("variety", "required")
	}
	if err := requirePositive("quantity", in.Quantity); err != nil {
		return err
	}
	return requireNonNegative("rate", in.Rate)
}

func (p *ProcurementPatch) validate() error {
	if p.Quantity != nil {
		if err := requirePositive("quantity", *p.Quantity); err != nil {
			return err
		}
	}
	if p.Rate != nil {
		if err := requireNonNegative("rate", *p.Rate); err != nil {
			return err
		}
	}
	if p.Variety != nil {
		v := inventory.NormalizeVariety(*p.Variety)
		if v == "" {
			return shared.Invalid("variety", "must not be empty")
		}
		p.Variety = &v
	}
	return nil
}

// AddProcurementEntry records a purchase and cascades it into the session
// total, the type registry, both inventory views and the supplier outstanding.
func (s *Service) AddProcurementEntry(ctx context.Context, input AddProcurementInput) (Result, error) {
	if err := input.validate(); err != nil {
		return Result{}, err
	}
	date, err := s.businessDate("date", input.Date)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.mutate(ctx, "procurement.add", func(ctx context.Context, c *cascade) error {
		if err := c.lock(ctx,
			shared.PartyItemLockKey(shared.RoleSupplier, input.SupplierID, input.ItemID),
			shared.InventoryLockKey(input.ItemID, input.Variety),
			shared.SessionLockKey("procurement", date),
		); err != nil {
			return err
		}
		if err := c.requirePair(ctx, shared.RoleSupplier, input.SupplierID, input.ItemID); err != nil {
			return err
		}
		session, err := c.procurementSession(ctx, date)
		if err != nil {
			return err
		}
		entry := ProcurementEntry{
			SessionID:   session.ID,
			Date:        date,
			SupplierID:  input.SupplierID,
			ItemID:      input.ItemID,
			Variety:     input.Variety,
			Quantity:    input.Quantity,
			Rate:        input.Rate,
			TotalAmount: input.Quantity.Mul(input.Rate),
		}
		id, err := c.tx.InsertProcurementEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("ledger: insert procurement entry: %w", err)
		}
		if err := c.refreshProcurementSession(ctx, session.ID); err != nil {
			return err
		}
		if err := c.book.Touch(ctx, entry.ItemID, entry.Variety, date); err != nil {
			return err
		}
		if err := c.book.ApplyProcurement(ctx, entry.ItemID, entry.Variety, date, entry.Quantity, entry.Rate); err != nil {
			return err
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
	s.record(ctx, "procurement.add", "procurement_entry", result.EntryID, map[string]any{
		"supplier_id": input.SupplierID,
		"item_id":     input.ItemID,
		"variety":     input.Variety,
		"quantity":    input.Quantity.String(),
		"rate":        input.Rate.String(),
	})
	return result, nil
}

// UpdateProcurementEntry changes quantity, rate or variety of an entry. Updates
// never accept a force flag.
func (s *Service) UpdateProcurementEntry(ctx context.Context, id int64, patch ProcurementPatch) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	if err := patch.validate(); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.mutate(ctx, "procurement.update", func(ctx context.Context, c *cascade) error {
		old, err := c.tx.GetProcurementEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updated := old
		if patch.Quantity != nil {
			updated.Quantity = *patch.Quantity
		}
		if patch.Rate != nil {
			updated.Rate = *patch.Rate
		}
		if patch.Variety != nil {
			updated.Variety = *patch.Variety
		}
		updated.TotalAmount = updated.Quantity.Mul(updated.Rate)

		if err := c.lock(ctx,
			shared.PartyItemLockKey(shared.RoleSupplier, old.SupplierID, old.ItemID),
			shared.InventoryLockKey(old.ItemID, old.Variety),
			shared.InventoryLockKey(updated.ItemID, updated.Variety),
			shared.SessionLockKey("procurement", old.Date),
		); err != nil {
			return err
		}

		if updated.Variety == old.Variety {
			if err := c.book.AdjustProcurement(ctx, old.ItemID, old.Variety, old.Date, old.Quantity, old.Rate, updated.Quantity, updated.Rate); err != nil {
				return err
			}
		} else {
			if err := c.book.RemoveProcurement(ctx, old.ItemID, old.Variety, old.Date, old.Quantity, old.Rate, false); err != nil {
				return err
			}
			if err := c.book.DeactivateIfEmpty(ctx, old.ItemID, old.Variety); err != nil {
				return err
			}
			if err := c.book.Touch(ctx, updated.ItemID, updated.Variety, updated.Date); err != nil {
				return err
			}
			if err := c.book.ApplyProcurement(ctx, updated.ItemID, updated.Variety, updated.Date, updated.Quantity, updated.Rate); err != nil {
				return err
			}
		}
		if err := c.tx.UpdateProcurementEntry(ctx, updated); err != nil {
			return fmt.Errorf("ledger: update procurement entry: %w", err)
		}
		if err := c.refreshProcurementSession(ctx, updated.SessionID); err != nil {
			return err
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, updated.SupplierID, updated.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "procurement.update", "procurement_entry", id, nil)
	return result, nil
}

// DeleteProcurementEntry removes an entry. With force a stock shortfall is
// clamped at zero instead of failing the deletion.
func (s *Service) DeleteProcurementEntry(ctx context.Context, id int64, force bool) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.mutate(ctx, "procurement.delete", func(ctx context.Context, c *cascade) error {
		old, err := c.tx.GetProcurementEntryForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := c.lock(ctx,
			shared.PartyItemLockKey(shared.RoleSupplier, old.SupplierID, old.ItemID),
			shared.InventoryLockKey(old.ItemID, old.Variety),
			shared.SessionLockKey("procurement", old.Date),
		); err != nil {
			return err
		}
		if err := c.book.RemoveProcurement(ctx, old.ItemID, old.Variety, old.Date, old.Quantity, old.Rate, force); err != nil {
			return err
		}
		if err := c.tx.DeleteProcurementEntry(ctx, id); err != nil {
			return fmt.Errorf("ledger: delete procurement entry: %w", err)
		}
		if err := c.refreshProcurementSession(ctx, old.SessionID); err != nil {
			return err
		}
		if err := c.book.DeactivateIfEmpty(ctx, old.ItemID, old.Variety); err != nil {
			return err
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, old.SupplierID, old.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "procurement.delete", "procurement_entry", id, map[string]any{"force": force})
	return result, nil
}

func (c *cascade) procurementSession(ctx context.Context, date time.Time) (ProcurementSession, error) {
	session, err := c.tx.GetProcurementSessionByDate(ctx, date)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return ProcurementSession{}, fmt.Errorf("ledger: load procurement session: %w", err)
	}
	session, err = c.tx.CreateProcurementSession(ctx, date)
	if err != nil {
		return ProcurementSession{}, fmt.Errorf("ledger: create procurement session: %w", err)
	}
	return session, nil
}

// refreshProcurementSession recomputes the session total, deleting the
// session once its last entry is gone.
func (c *cascade) refreshProcurementSession(ctx context.Context, sessionID int64) error {
	total, count, err := c.tx.SummarizeProcurementSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("ledger: summarize procurement session: %w", err)
	}
	if count == 0 {
		if err := c.tx.DeleteProcurementSession(ctx, sessionID); err != nil {
			return fmt.Errorf("ledger: delete procurement session: %w", err)
		}
		return nil
	}
	if err := c.tx.UpdateProcurementSessionTotal(ctx, sessionID, total); err != nil {
		return fmt.Errorf("ledger: update procurement session: %w", err)
	}
	return nil
}
