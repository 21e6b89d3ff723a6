package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/produce-ledger/internal/integrity"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/ledger/memory"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

func TestSeedBuildsConsistentBook(t *testing.T) {
	store := memory.New()
	clock := func() time.Time { return time.Date(2024, 6, 12, 8, 0, 0, 0, time.UTC) }
	svc := ledger.NewService(store, ledger.ServiceConfig{Clock: clock})
	ctx := context.Background()

	book, err := seed(ctx, svc)
	require.NoError(t, err)
	require.Len(t, book.suppliers, 2)
	require.Len(t, book.sellers, 2)

	stock, err := svc.AvailableStock(ctx, book.item, svc.Today())
	require.NoError(t, err)
	byVariety := map[string]string{}
	for _, row := range stock {
		byVariety[row.Variety] = row.Stock.String()
	}
	require.Equal(t, map[string]string{"Alphonso": "90", "Kesar": "30"}, byVariety)

	out, err := svc.Outstanding(ctx, shared.RoleSupplier, book.suppliers[0], book.item)
	require.NoError(t, err)
	require.Equal(t, "36700", out.PaymentDue.String())

	report, err := integrity.NewAuditor(store, integrity.AuditorConfig{Clock: clock}).Check(ctx, false)
	require.NoError(t, err)
	require.True(t, report.Clean(), "%+v", report.Findings)
}
