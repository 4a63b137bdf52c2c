package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/domain"
	"dokon/backend/internal/store"
)

func TestSettleDebtorClosesAccountAtomically(t *testing.T) {
	databaseURL := os.Getenv("DOKON_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set DOKON_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prd-it-%d", stamp)

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, purchase_price, quantity, location, created_at, updated_at)
		VALUES ($1, 'Integratsiya mahsuloti', 10000, 10, 'dokon', now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	debtor, err := s.CreateDebtor(ctx, domain.Debtor{
		Name:       fmt.Sprintf("IT Qarzdor %d", stamp),
		Phone:      "+998901234567",
		Currency:   domain.CurrencySum,
		DebtAmount: decimal.RequireFromString("24000"),
		DueDate:    time.Now().Add(30 * 24 * time.Hour),
		Products: []domain.DebtLine{
			{ProductID: productID, ProductName: "Integratsiya mahsuloti", SellPrice: decimal.RequireFromString("12000"), Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM debtor_payments WHERE debtor_id = $1`, debtor.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM debtor_products WHERE debtor_id = $1`, debtor.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM debtors WHERE id = $1`, debtor.ID)
	})

	before, err := s.GetBudget(ctx)
	if err != nil {
		t.Fatalf("budget before: %v", err)
	}

	result, err := s.SettleDebtor(ctx, debtor.ID, debtor.Version, domain.PaymentEntry{
		Amount:   decimal.RequireFromString("24000"),
		Currency: domain.CurrencySum,
		RateUsed: decimal.RequireFromString("12650"),
		Method:   domain.PaymentMethodCash,
		PaidAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(result.Sales) != 1 {
		t.Fatalf("expected 1 settlement sale, got %d", len(result.Sales))
	}
	// Profit: (12000 - 10000) * 2.
	if !result.ProfitSum.Equal(decimal.RequireFromString("4000")) {
		t.Fatalf("expected profit 4000, got %s", result.ProfitSum)
	}
	t.Cleanup(func() {
		// Return the settlement profit so repeated runs do not drift the budget.
		_, _ = s.AddToBudget(ctx, result.ProfitSum.Neg())
	})

	if _, err := s.GetDebtorByID(ctx, debtor.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected debtor removed, got %v", err)
	}

	product, err := s.GetProductByID(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 8 {
		t.Fatalf("expected quantity 8 after settlement, got %d", product.Quantity)
	}

	after, err := s.GetBudget(ctx)
	if err != nil {
		t.Fatalf("budget after: %v", err)
	}
	if !after.Total.Sub(before.Total).Equal(decimal.RequireFromString("4000")) {
		t.Fatalf("expected budget to grow by 4000, got %s -> %s", before.Total, after.Total)
	}

	// The settled version is gone; a replay with the old version must fail.
	if _, err := s.SettleDebtor(ctx, debtor.ID, debtor.Version, domain.PaymentEntry{
		Amount:   decimal.RequireFromString("24000"),
		Currency: domain.CurrencySum,
		RateUsed: decimal.RequireFromString("12650"),
	}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected replay to miss the debtor, got %v", err)
	}
}
