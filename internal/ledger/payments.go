package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// PaymentPatch lists the fields a payment update may change.
type PaymentPatch struct {
	Date           *time.Time
	Amount         *decimal.Decimal
	CratesReturned *decimal.Decimal
}

func validateSettlement(amountField string, amount, crates decimal.Decimal) error {
	if err := requireNonNegative(amountField, amount); err != nil {
		return err
	}
	if err := requireNonNegative("crates_returned", crates); err != nil {
		return err
	}
	if amount.IsZero() && crates.IsZero() {
		return shared.Invalid(amountField, "payment must settle money or crates")
	}
	return nil
}

func (s *Service) patchSettlement(patch PaymentPatch, date *time.Time, amount, crates *decimal.Decimal, amountField string) error {
	if patch.Date != nil {
		d, err := s.businessDate("date", *patch.Date)
		if err != nil {
			return err
		}
		*date = d
	}
	if patch.Amount != nil {
		*amount = *patch.Amount
	}
	if patch.CratesReturned != nil {
		*crates = *patch.CratesReturned
	}
	return validateSettlement(amountField, *amount, *crates)
}

// AddSupplierPayment records a payment to a supplier.
func (s *Service) AddSupplierPayment(ctx context.Context, input SupplierPaymentInput) (Result, error) {
	if err := requireID("supplier_id", input.SupplierID); err != nil {
		return Result{}, err
	}
	if err := requireID("item_id", input.ItemID); err != nil {
		return Result{}, err
	}
	if err := validateSettlement("amount_paid", input.AmountPaid, input.CratesReturned); err != nil {
		return Result{}, err
	}
	date, err := s.businessDate("date", input.Date)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.mutate(ctx, "supplier_payment.add", func(ctx context.Context, c *cascade) error {
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSupplier, input.SupplierID, input.ItemID)); err != nil {
			return err
		}
		if err := c.requirePair(ctx, shared.RoleSupplier, input.SupplierID, input.ItemID); err != nil {
			return err
		}
		id, err := c.tx.InsertSupplierPayment(ctx, SupplierPayment{
			SupplierID:     input.SupplierID,
			ItemID:         input.ItemID,
			Date:           date,
			AmountPaid:     input.AmountPaid,
			CratesReturned: input.CratesReturned,
		})
		if err != nil {
			return fmt.Errorf("ledger: insert supplier payment: %w", err)
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, input.SupplierID, input.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "supplier_payment.add", "supplier_payment", result.EntryID, map[string]any{"amount_paid": input.AmountPaid.String()})
	return result, nil
}

// UpdateSupplierPayment changes a supplier payment.
func (s *Service) UpdateSupplierPayment(ctx context.Context, id int64, patch PaymentPatch) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.mutate(ctx, "supplier_payment.update", func(ctx context.Context, c *cascade) error {
		p, err := c.tx.GetSupplierPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := s.patchSettlement(patch, &p.Date, &p.AmountPaid, &p.CratesReturned, "amount_paid"); err != nil {
			return err
		}
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSupplier, p.SupplierID, p.ItemID)); err != nil {
			return err
		}
		if err := c.tx.UpdateSupplierPayment(ctx, p); err != nil {
			return fmt.Errorf("ledger: update supplier payment: %w", err)
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, p.SupplierID, p.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "supplier_payment.update", "supplier_payment", id, nil)
	return result, nil
}

// DeleteSupplierPayment removes a supplier payment.
func (s *Service) DeleteSupplierPayment(ctx context.Context, id int64) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.mutate(ctx, "supplier_payment.delete", func(ctx context.Context, c *cascade) error {
		p, err := c.tx.GetSupplierPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSupplier, p.SupplierID, p.ItemID)); err != nil {
			return err
		}
		if err := c.tx.DeleteSupplierPayment(ctx, id); err != nil {
			return fmt.Errorf("ledger: delete supplier payment: %w", err)
		}
		o, err := c.recalc.RecalculateSupplierOutstanding(ctx, p.SupplierID, p.ItemID)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "supplier_payment.delete", "supplier_payment", id, nil)
	return result, nil
}

// AddSellerPayment records a standalone payment from a seller. Later running
// balances shift, so the ledger is restamped from the payment date.
func (s *Service) AddSellerPayment(ctx context.Context, input SellerPaymentInput) (Result, error) {
	if err := requireID("seller_id", input.SellerID); err != nil {
		return Result{}, err
	}
	if err := requireID("item_id", input.ItemID); err != nil {
		return Result{}, err
	}
	if err := validateSettlement("amount_received", input.AmountReceived, input.CratesReturned); err != nil {
		return Result{}, err
	}
	date, err := s.businessDate("date", input.Date)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.mutate(ctx, "seller_payment.add", func(ctx context.Context, c *cascade) error {
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSeller, input.SellerID, input.ItemID)); err != nil {
			return err
		}
		if err := c.requirePair(ctx, shared.RoleSeller, input.SellerID, input.ItemID); err != nil {
			return err
		}
		id, err := c.tx.InsertSellerPayment(ctx, SellerPayment{
			SellerID:       input.SellerID,
			ItemID:         input.ItemID,
			Date:           date,
			AmountReceived: input.AmountReceived,
			CratesReturned: input.CratesReturned,
		})
		if err != nil {
			return fmt.Errorf("ledger: insert seller payment: %w", err)
		}
		o, err := c.refreshSeller(ctx, input.SellerID, input.ItemID, date)
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "seller_payment.add", "seller_payment", result.EntryID, map[string]any{"amount_received": input.AmountReceived.String()})
	return result, nil
}

// UpdateSellerPayment changes a seller payment and restamps from the earlier
// of its old and new dates.
func (s *Service) UpdateSellerPayment(ctx context.Context, id int64, patch PaymentPatch) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.mutate(ctx, "seller_payment.update", func(ctx context.Context, c *cascade) error {
		p, err := c.tx.GetSellerPayment(ctx, id)
		if err != nil {
			return err
		}
		oldDate := p.Date
		if err := s.patchSettlement(patch, &p.Date, &p.AmountReceived, &p.CratesReturned, "amount_received"); err != nil {
			return err
		}
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSeller, p.SellerID, p.ItemID)); err != nil {
			return err
		}
		if err := c.tx.UpdateSellerPayment(ctx, p); err != nil {
			return fmt.Errorf("ledger: update seller payment: %w", err)
		}
		o, err := c.refreshSeller(ctx, p.SellerID, p.ItemID, shared.MinDate(oldDate, p.Date))
		if err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "seller_payment.update", "seller_payment", id, nil)
	return result, nil
}

// DeleteSellerPayment removes a seller payment and replays the running ledger
// from its date.
func (s *Service) DeleteSellerPayment(ctx context.Context, id int64) (Result, error) {
	if err := requireID("id", id); err != nil {
		return Result{}, err
	}
	var result Result
	err := s.mutate(ctx, "seller_payment.delete", func(ctx context.Context, c *cascade) error {
		p, err := c.tx.GetSellerPayment(ctx, id)
		if err != nil {
			return err
		}
		if err := c.lock(ctx, shared.PartyItemLockKey(shared.RoleSeller, p.SellerID, p.ItemID)); err != nil {
			return err
		}
		if err := c.tx.DeleteSellerPayment(ctx, id); err != nil {
			return fmt.Errorf("ledger: delete seller payment: %w", err)
		}
		o, err := c.recalc.RecalculateSellerOutstanding(ctx, p.SellerID, p.ItemID)
		if err != nil {
			return err
		}
		if err := c.recalc.RecalculateSubsequentBalancesAfterDeletion(ctx, p.SellerID, p.ItemID, p.Date, 0); err != nil {
			return err
		}
		result = Result{EntryID: id, Outstanding: o}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.record(ctx, "seller_payment.delete", "seller_payment", id, nil)
	return result, nil
}
