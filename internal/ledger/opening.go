package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/odyssey-erp/produce-ledger/internal/balances"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// SetOpeningBalance creates or replaces the opening position of a (party,
// item) ledger. Seller ledgers are restamped from the earlier of the old and
// new effective dates.
func (s *Service) SetOpeningBalance(ctx context.Context, input OpeningBalanceInput) (Result, error) {
	if !input.Role.Valid() {
		return Result{}, shared.Invalid("role", "must be supplier or seller")
	}
	if err := requireID("party_id", input.PartyID); err != nil {
		return Result{}, err
	}
	if err := requireID("item_id", input.ItemID); err != nil {
		return Result{}, err
	}
	if err := requireNonNegative("payment_due", input.PaymentDue); err != nil {
		return Result{}, err
	}
	if err := requireNonNegative("quantity_due", input.QuantityDue); err != nil {
		return Result{}, err
	}
	effective, err := s.businessDate("effective_from", input.EffectiveFrom)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.mutate(ctx, "opening_balance.set", func(ctx context.Context, c *cascade) error {
		if err := c.lock(ctx, shared.PartyItemLockKey(input.Role, input.PartyID, input.ItemID)); err != nil {
			return err
		}
		if err := c.requirePair(ctx, input.Role, input.PartyID, input.ItemID); err != nil {
			return err
		}
		previous, existed, err := c.recalc.Opening(ctx, input.Role, input.PartyID, input.ItemID)
		if err != nil {
			return err
		}
		if err := c.tx.UpsertOpeningBalance(ctx, balances.OpeningBalance{
			Role:          input.Role,
			PartyID:       input.PartyID,
			ItemID:        input.ItemID,
			PaymentDue:    input.PaymentDue,
			QuantityDue:   input.QuantityDue,
			EffectiveFrom: effective,
		}); err != nil {
			return fmt.Errorf("ledger: upsert opening balance: %w", err)
		}
		from := effective
		if existed {
			from = shared.MinDate(previous.EffectiveFrom, effective)
		}
		o, err := c.refreshPair(ctx, input.Role, input.PartyID, input.ItemID, from)
		if err != nil {
			return err
		}
		result = Result{Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "opening_balance.set", "opening_balance", input.PartyID, map[string]any{
		"role":         string(input.Role),
		"item_id":      input.ItemID,
		"payment_due":  input.PaymentDue.String(),
		"quantity_due": input.QuantityDue.String(),
	})
	return result, nil
}

// DeleteOpeningBalance removes the opening position of a (party, item) ledger.
func (s *Service) DeleteOpeningBalance(ctx context.Context, role shared.Role, partyID, itemID int64) (Result, error) {
	if !role.Valid() {
		return Result{}, shared.Invalid("role", "must be supplier or seller")
	}
	if err := requireID("party_id", partyID); err != nil {
		return Result{}, err
	}
	if err := requireID("item_id", itemID); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.mutate(ctx, "opening_balance.delete", func(ctx context.Context, c *cascade) error {
		if err := c.lock(ctx, shared.PartyItemLockKey(role, partyID, itemID)); err != nil {
			return err
		}
		previous, existed, err := c.recalc.Opening(ctx, role, partyID, itemID)
		if err != nil {
			return err
		}
		if !existed {
			return shared.NotFound("opening_balance", fmt.Sprintf("%s/%d/%d", role, partyID, itemID))
		}
		if err := c.tx.DeleteOpeningBalance(ctx, role, partyID, itemID); err != nil {
			return fmt.Errorf("ledger: delete opening balance: %w", err)
		}
		o, err := c.refreshPair(ctx, role, partyID, itemID, previous.EffectiveFrom)
		if err != nil {
			return err
		}
		result = Result{Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "opening_balance.delete", "opening_balance", partyID, map[string]any{
		"role":    string(role),
		"item_id": itemID,
	})
	return result, nil
}

// refreshPair recalculates either side of the ledger after a change dated from.
func (c *cascade) refreshPair(ctx context.Context, role shared.Role, partyID, itemID int64, from time.Time) (balances.Outstanding, error) {
	if role == shared.RoleSupplier {
		return c.recalc.RecalculateSupplierOutstanding(ctx, partyID, itemID)
	}
	return c.refreshSeller(ctx, partyID, itemID, from)
}
