package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// RegisterItem seeds an item into the registry.
func (s *Service) RegisterItem(ctx context.Context, item Item) (Item, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return Item{}, shared.Invalid("name", "required")
	}
	switch item.QuantityKind {
	case "":
		item.QuantityKind = QuantityCrate
	case QuantityCrate, QuantityWeight, QuantityMixed:
	default:
		return Item{}, shared.Invalid("quantity_kind", "unknown kind %q", item.QuantityKind)
	}
	item.Active = true
	err := s.mutate(ctx, "item.register", func(ctx context.Context, c *cascade) error {
		id, err := c.tx.InsertItem(ctx, item)
		if err != nil {
			return fmt.Errorf("ledger: insert item: %w", err)
		}
		item.ID = id
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, "item.register", "item", item.ID, map[string]any{"name": item.Name})
	return item, nil
}

// RegisterParty seeds a supplier or seller into the registry.
func (s *Service) RegisterParty(ctx context.Context, party Party) (Party, error) {
	if !party.Role.Valid() {
		return Party{}, shared.Invalid("role", "must be supplier or seller")
	}
	party.Name = strings.TrimSpace(party.Name)
	if party.Name == "" {
		return Party{}, shared.Invalid("name", "required")
	}
	party.Active = true
	err := s.mutate(ctx, string(party.Role)+".register", func(ctx context.Context, c *cascade) error {
		id, err := c.tx.InsertParty(ctx, party)
		if err != nil {
			return fmt.Errorf("ledger: insert %s: %w", party.Role, err)
		}
		party.ID = id
		return nil
	})
	if err != nil {
		return Party{}, err
	}
	s.record(ctx, string(party.Role)+".register", string(party.Role), party.ID, map[string]any{"name": party.Name})
	return party, nil
}
