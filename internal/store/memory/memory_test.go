package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/domain"
	"dokon/backend/internal/store"
)

func newSeeded(t *testing.T) *Store {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "x")
	t.Setenv("SEED_SELLER_PASSWORD", "x")
	return NewSeeded()
}

func seedDebtor(t *testing.T, s *Store, lines ...domain.DebtLine) *domain.Debtor {
	t.Helper()
	if len(lines) == 0 {
		lines = []domain.DebtLine{
			{ProductID: "prd-non", ProductName: "Non", SellPrice: dec("4000"), Quantity: 2},
		}
	}
	debt := decimal.Zero
	for _, line := range lines {
		debt = debt.Add(line.SellPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	debtor, err := s.CreateDebtor(context.Background(), domain.Debtor{
		Name:       "Aziz Karimov",
		Phone:      "+998901234567",
		Currency:   domain.CurrencySum,
		DebtAmount: debt,
		DueDate:    time.Now().Add(30 * 24 * time.Hour),
		Products:   lines,
	})
	if err != nil {
		t.Fatalf("create debtor: %v", err)
	}
	return debtor
}

func paymentEntry(amount string) domain.PaymentEntry {
	return domain.PaymentEntry{
		Amount:   dec(amount),
		Currency: domain.CurrencySum,
		RateUsed: dec("12650"),
		Method:   domain.PaymentMethodCash,
		PaidAt:   time.Now().UTC(),
	}
}

func TestStaleVersionIsRejected(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)
	ctx := context.Background()

	stale := debtor.Version + 1
	if _, err := s.RecordPartialPayment(ctx, debtor.ID, stale, paymentEntry("1000"), dec("1000")); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict on partial payment, got %v", err)
	}
	if _, err := s.SettleDebtor(ctx, debtor.ID, stale, paymentEntry("8000")); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict on settlement, got %v", err)
	}
	if _, err := s.UpdateDebtorProfile(ctx, debtor.ID, stale, "A", "+998901112233", debtor.DueDate); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict on profile update, got %v", err)
	}
	if _, err := s.ReturnDebtorProduct(ctx, debtor.ID, stale, "prd-non", 1); !errors.Is(err, store.ErrVersionConflict) {
		t.Fatalf("expected version conflict on return, got %v", err)
	}
}

func TestRecordPartialPaymentGuardsOverpayment(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)

	if _, err := s.RecordPartialPayment(context.Background(), debtor.ID, debtor.Version, paymentEntry("9000"), dec("9000")); !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected overpayment rejection under lock, got %v", err)
	}
	after, err := s.GetDebtorByID(context.Background(), debtor.ID)
	if err != nil {
		t.Fatalf("get debtor: %v", err)
	}
	if !after.DebtAmount.Equal(dec("8000")) || len(after.PaymentLog) != 0 {
		t.Fatalf("state changed on rejected payment: %+v", after)
	}
}

func TestSettleDebtorLeavesStateUntouchedOnBadEntry(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)

	entry := paymentEntry("8000")
	entry.Currency = "eur"
	_, err := s.SettleDebtor(context.Background(), debtor.ID, debtor.Version, entry)
	if !errors.Is(err, store.ErrSettlementFailed) {
		t.Fatalf("expected settlement failure for bad currency, got %v", err)
	}

	after, err := s.GetDebtorByID(context.Background(), debtor.ID)
	if err != nil {
		t.Fatalf("debtor must survive failed settlement: %v", err)
	}
	if !after.DebtAmount.Equal(dec("8000")) {
		t.Fatalf("debt changed on failed settlement: %s", after.DebtAmount)
	}
	sales, _ := s.ListSales(context.Background(), time.Time{}, time.Time{})
	if len(sales) != 0 {
		t.Fatalf("failed settlement must not record sales, got %d", len(sales))
	}
	budget, _ := s.GetBudget(context.Background())
	if !budget.Total.IsZero() {
		t.Fatalf("failed settlement must not move the budget, got %s", budget.Total)
	}
}

func TestSettleDebtorRejectsShortPayment(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)

	if _, err := s.SettleDebtor(context.Background(), debtor.ID, debtor.Version, paymentEntry("7000")); !errors.Is(err, store.ErrSettlementFailed) {
		t.Fatalf("expected settlement failure for short payment, got %v", err)
	}
}

func TestSettleDebtorToleratesRoundingRemainder(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)

	// One smallest unit short still settles.
	result, err := s.SettleDebtor(context.Background(), debtor.ID, debtor.Version, paymentEntry("7999.99"))
	if err != nil {
		t.Fatalf("expected rounding remainder to settle: %v", err)
	}
	if len(result.Sales) != 1 {
		t.Fatalf("expected 1 settlement sale, got %d", len(result.Sales))
	}
	if _, err := s.GetDebtorByID(context.Background(), debtor.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected debtor removed, got %v", err)
	}
}

func TestAppendDebtorLineMergesSameProductAndPrice(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)

	line := domain.DebtLine{ProductID: "prd-non", ProductName: "Non", SellPrice: dec("4000"), Quantity: 3}
	updated, err := s.AppendDebtorLine(context.Background(), debtor.ID, debtor.Version, line, dec("12000"))
	if err != nil {
		t.Fatalf("append line: %v", err)
	}
	if len(updated.Products) != 1 {
		t.Fatalf("same product at same price must merge, got %d lines", len(updated.Products))
	}
	if updated.Products[0].Quantity != 5 {
		t.Fatalf("expected merged quantity 5, got %d", updated.Products[0].Quantity)
	}
	if !updated.DebtAmount.Equal(dec("20000")) {
		t.Fatalf("expected debt 20000, got %s", updated.DebtAmount)
	}

	// Different price opens a new line.
	other := domain.DebtLine{ProductID: "prd-non", ProductName: "Non", SellPrice: dec("4500"), Quantity: 1}
	updated, err = s.AppendDebtorLine(context.Background(), debtor.ID, updated.Version, other, dec("4500"))
	if err != nil {
		t.Fatalf("append line: %v", err)
	}
	if len(updated.Products) != 2 {
		t.Fatalf("different price must not merge, got %d lines", len(updated.Products))
	}
}

func TestReturnDeletesDebtorAtZeroDebt(t *testing.T) {
	s := newSeeded(t)
	debtor := seedDebtor(t, s)
	ctx := context.Background()

	// Drop the debt below one unit's value, then return a unit: the debt
	// clamps to zero while a line remains, and the account closes.
	updated, err := s.RecordPartialPayment(ctx, debtor.ID, debtor.Version, paymentEntry("5000"), dec("5000"))
	if err != nil {
		t.Fatalf("partial payment: %v", err)
	}

	result, err := s.ReturnDebtorProduct(ctx, debtor.ID, updated.Version, "prd-non", 1)
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if !result.DebtorDeleted {
		t.Fatalf("expected deletion at zero debt, got %+v", result)
	}
	if _, err := s.GetDebtorByID(ctx, debtor.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected debtor removed, got %v", err)
	}
}

func TestRestockProductUpserts(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	first, err := s.RestockProduct(ctx, "prd-non", "Non", 3)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	second, err := s.RestockProduct(ctx, "prd-non", "", 2)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("restock must reuse the stock row")
	}
	if second.Quantity != 5 {
		t.Fatalf("expected accumulated quantity 5, got %d", second.Quantity)
	}
	if second.ProductName != "Non" {
		t.Fatalf("empty name must not erase the stored one, got %q", second.ProductName)
	}

	if _, err := s.RestockProduct(ctx, "prd-non", "Non", 0); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
}

func TestDecrementProductQuantityFloorsAtZero(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	if err := s.DecrementProductQuantity(ctx, "prd-non", 1000); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	product, err := s.GetProductByID(ctx, "prd-non")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 0 {
		t.Fatalf("quantity must floor at zero, got %d", product.Quantity)
	}
}

func TestListSalesWindow(t *testing.T) {
	s := newSeeded(t)
	ctx := context.Background()

	old := domain.Sale{ProductID: "prd-non", Quantity: 1, Currency: domain.CurrencySum, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	recent := domain.Sale{ProductID: "prd-non", Quantity: 1, Currency: domain.CurrencySum, CreatedAt: time.Now().UTC()}
	if _, err := s.CreateSale(ctx, old); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	created, err := s.CreateSale(ctx, recent)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	sales, err := s.ListSales(ctx, time.Now().UTC().Add(-time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 1 || sales[0].ID != created.ID {
		t.Fatalf("expected only the recent sale, got %d", len(sales))
	}

	all, err := s.ListSales(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both sales with open bounds, got %d", len(all))
	}
	if !all[0].CreatedAt.After(all[1].CreatedAt) {
		t.Fatalf("sales must be newest first")
	}
}
