package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/produce-ledger/internal/app"
	"github.com/odyssey-erp/produce-ledger/internal/ledger"
	"github.com/odyssey-erp/produce-ledger/internal/platform/db"
	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StoreDriver != app.StorePostgres {
		log.Fatalf("seed requires STORE_DRIVER=postgres, got %s", cfg.StoreDriver)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	svc := ledger.NewService(ledger.NewRepository(pool), ledger.ServiceConfig{
		Location: cfg.Location(),
		Audit:    shared.NewAuditLogger(pool),
	})
	book, err := seed(ctx, svc)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("✓ Seed complete: item=%d suppliers=%v sellers=%v at %s\n",
		book.item, book.suppliers, book.sellers, time.Now().Format(time.RFC3339))
}

type seededBook struct {
	item      int64
	suppliers []int64
	sellers   []int64
}

// seed books three trading days ending today so every cascade path has data.
func seed(ctx context.Context, svc *ledger.Service) (seededBook, error) {
	var book seededBook
	today := svc.Today()
	day := func(offset int) time.Time { return today.AddDate(0, 0, offset) }
	d := decimal.RequireFromString

	fmt.Println("→ Seeding registry...")
	item, err := svc.RegisterItem(ctx, ledger.Item{Name: "Mango", QuantityKind: ledger.QuantityCrate, UnitName: "crate"})
	if err != nil {
		return book, fmt.Errorf("register item: %w", err)
	}
	book.item = item.ID
	for _, name := range []string{"Ravi Farms", "Konkan Orchards"} {
		p, err := svc.RegisterParty(ctx, ledger.Party{Role: shared.RoleSupplier, Name: name})
		if err != nil {
			return book, fmt.Errorf("register supplier %s: %w", name, err)
		}
		book.suppliers = append(book.suppliers, p.ID)
	}
	for _, name := range []string{"City Market", "Station Road Stall"} {
		p, err := svc.RegisterParty(ctx, ledger.Party{Role: shared.RoleSeller, Name: name})
		if err != nil {
			return book, fmt.Errorf("register seller %s: %w", name, err)
		}
		book.sellers = append(book.sellers, p.ID)
	}

	fmt.Println("→ Seeding opening balances...")
	if _, err := svc.SetOpeningBalance(ctx, ledger.OpeningBalanceInput{
		Role: shared.RoleSeller, PartyID: book.sellers[0], ItemID: item.ID,
		PaymentDue: d("250"), QuantityDue: d("5"), EffectiveFrom: day(-3),
	}); err != nil {
		return book, fmt.Errorf("opening balance: %w", err)
	}

	fmt.Println("→ Seeding procurement...")
	procurements := []ledger.AddProcurementInput{
		{Date: day(-2), SupplierID: book.suppliers[0], Variety: "Alphonso", Quantity: d("120"), Rate: d("310")},
		{Date: day(-2), SupplierID: book.suppliers[1], Variety: "Kesar", Quantity: d("80"), Rate: d("240")},
		{Date: day(-1), SupplierID: book.suppliers[0], Variety: "Alphonso", Quantity: d("60"), Rate: d("325")},
	}
	for _, in := range procurements {
		in.ItemID = item.ID
		if _, err := svc.AddProcurementEntry(ctx, in); err != nil {
			return book, fmt.Errorf("procurement %s %s: %w", shared.FormatDate(in.Date), in.Variety, err)
		}
	}

	fmt.Println("→ Seeding sales...")
	sales := []ledger.AddSalesInput{
		{Date: day(-2), SellerID: book.sellers[0], Lines: []ledger.SalesLineInput{
			{Variety: "Alphonso", Quantity: d("50"), SaleRate: d("380")},
			{Variety: "Kesar", Quantity: d("20"), SaleRate: d("290")},
		}, AmountPaid: d("15000")},
		{Date: day(-1), SellerID: book.sellers[1], Lines: []ledger.SalesLineInput{
			{Variety: "Kesar", Quantity: d("30"), SaleRate: d("300")},
		}, AmountPaid: d("4000"), CratesReturned: d("10")},
		{Date: day(0), SellerID: book.sellers[0], Lines: []ledger.SalesLineInput{
			{Variety: "Alphonso", Quantity: d("40"), SaleRate: d("390")},
		}, Discount: d("200")},
	}
	for _, in := range sales {
		in.ItemID = item.ID
		if _, err := svc.AddSalesEntry(ctx, in); err != nil {
			return book, fmt.Errorf("sale %s: %w", shared.FormatDate(in.Date), err)
		}
	}

	fmt.Println("→ Seeding payments and damage...")
	if _, err := svc.AddSupplierPayment(ctx, ledger.SupplierPaymentInput{
		SupplierID: book.suppliers[0], ItemID: item.ID, Date: day(-1), AmountPaid: d("20000"), CratesReturned: d("30"),
	}); err != nil {
		return book, fmt.Errorf("supplier payment: %w", err)
	}
	if _, err := svc.AddSellerPayment(ctx, ledger.SellerPaymentInput{
		SellerID: book.sellers[0], ItemID: item.ID, Date: day(-1), AmountReceived: d("5000"), CratesReturned: d("20"),
	}); err != nil {
		return book, fmt.Errorf("seller payment: %w", err)
	}
	if _, err := svc.RecordDamageEntry(ctx, ledger.DamageInput{
		SupplierID: book.suppliers[1], ItemID: item.ID, Variety: "Kesar", Date: day(-1),
		DamagedQty: d("4"), DamagedReturnedQty: d("2"), SupplierDiscountAmount: d("480"),
	}); err != nil {
		return book, fmt.Errorf("damage: %w", err)
	}

	fmt.Println("→ Rolling inventory over...")
	if _, err := svc.RolloverInventory(ctx); err != nil {
		return book, fmt.Errorf("rollover: %w", err)
	}
	return book, nil
}
