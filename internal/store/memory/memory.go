package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dokon/backend/internal/currency"
	"dokon/backend/internal/domain"
	"dokon/backend/internal/store"
	"dokon/backend/internal/xid"
)

// settleTolerance is the largest remaining debt that still counts as fully
// paid: one smallest currency unit, to absorb conversion rounding.
var settleTolerance = decimal.New(1, -2)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	stockByProduct  map[string]domain.StoreStock
	debtorsByID     map[string]domain.Debtor
	salesByID       map[string]domain.Sale
	expensesByID    map[string]domain.Expense
	budget          domain.Budget
	rate            domain.ExchangeRate
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"seller", sellerPwd, domain.RoleSeller},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		stockByProduct:  make(map[string]domain.StoreStock),
		debtorsByID:     make(map[string]domain.Debtor),
		salesByID:       make(map[string]domain.Sale),
		expensesByID:    make(map[string]domain.Expense),
		budget:          domain.Budget{Total: decimal.Zero, UpdatedAt: time.Now().UTC()},
		rate:            domain.ExchangeRate{Rate: currency.DefaultRate, UpdatedAt: time.Now().UTC()},
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []domain.Product{
		{ID: "prd-shakar", Name: "Shakar 1kg", PurchasePrice: dec("11500"), Quantity: 80, Location: domain.LocationWarehouse},
		{ID: "prd-guruch", Name: "Guruch 1kg", PurchasePrice: dec("14000"), Quantity: 60, Location: domain.LocationWarehouse},
		{ID: "prd-un", Name: "Un 2kg", PurchasePrice: dec("16500"), Quantity: 45, Location: domain.LocationWarehouse},
		{ID: "prd-yog", Name: "O'simlik yog'i 1L", PurchasePrice: dec("18900"), Quantity: 50, Location: domain.LocationShop},
		{ID: "prd-choy", Name: "Qora choy 100g", PurchasePrice: dec("9800"), Quantity: 120, Location: domain.LocationShop},
		{ID: "prd-cola", Name: "Cola 1.5L", PurchasePrice: dec("10500"), Quantity: 90, Location: domain.LocationShop},
		{ID: "prd-non", Name: "Non", PurchasePrice: dec("3000"), Quantity: 40, Location: domain.LocationShop},
		{ID: "prd-tuxum", Name: "Tuxum 10 dona", PurchasePrice: dec("13500"), Quantity: 70, Location: domain.LocationWarehouse},
		{ID: "prd-sovun", Name: "Sovun", PurchasePrice: dec("5200"), Quantity: 150, Location: domain.LocationShop},
		{ID: "prd-makaron", Name: "Makaron 400g", PurchasePrice: dec("7400"), Quantity: 100, Location: domain.LocationWarehouse},
	}
	for _, p := range seed {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// --- products ---

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Location == b.Location {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Location, b.Location)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Quantity < 0 || product.PurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if product.Location != domain.LocationWarehouse && product.Location != domain.LocationShop {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Quantity < 0 || product.PurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) DecrementProductQuantity(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		return store.ErrValidation
	}
	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	product.Quantity -= qty
	if product.Quantity < 0 {
		product.Quantity = 0
	}
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return nil
}

// --- shop-floor stock ---

func (s *Store) ListStoreStock(_ context.Context) ([]domain.StoreStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stocks := make([]domain.StoreStock, 0, len(s.stockByProduct))
	for _, st := range s.stockByProduct {
		stocks = append(stocks, st)
	}
	slices.SortFunc(stocks, func(a, b domain.StoreStock) int {
		return cmpString(a.ProductName, b.ProductName)
	})
	return stocks, nil
}

func (s *Store) GetStoreStockByProduct(_ context.Context, productID string) (*domain.StoreStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.stockByProduct[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyStock := st
	return &copyStock, nil
}

func (s *Store) RestockProduct(_ context.Context, productID string, productName string, qty int) (*domain.StoreStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if productID == "" || qty <= 0 {
		return nil, store.ErrValidation
	}
	st := s.restockLocked(productID, productName, qty)
	return &st, nil
}

// restockLocked upserts a shop-floor stock row, incrementing quantity when
// the row already exists. Caller must hold s.mu.
func (s *Store) restockLocked(productID string, productName string, qty int) domain.StoreStock {
	now := time.Now().UTC()
	st, exists := s.stockByProduct[productID]
	if !exists {
		st = domain.StoreStock{
			ID:          xid.New("stk"),
			ProductID:   productID,
			ProductName: productName,
		}
	}
	st.Quantity += qty
	if productName != "" {
		st.ProductName = productName
	}
	st.UpdatedAt = now
	s.stockByProduct[productID] = st
	return st
}

// --- debtors ---

func (s *Store) CreateDebtor(_ context.Context, debtor domain.Debtor) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if debtor.Name == "" || debtor.Phone == "" || len(debtor.Products) == 0 {
		return nil, store.ErrValidation
	}
	if !currency.IsValid(debtor.Currency) {
		return nil, store.ErrValidation
	}
	if debtor.ID == "" {
		debtor.ID = xid.New("dbt")
	}
	if _, exists := s.debtorsByID[debtor.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	debtor.Version = 1
	debtor.CreatedAt = now
	debtor.UpdatedAt = now
	if debtor.PaymentLog == nil {
		debtor.PaymentLog = []domain.PaymentEntry{}
	}
	s.debtorsByID[debtor.ID] = cloneDebtor(debtor)
	created := cloneDebtor(debtor)
	return &created, nil
}

func (s *Store) GetDebtorByID(_ context.Context, id string) (*domain.Debtor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debtor, exists := s.debtorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyDebtor := cloneDebtor(debtor)
	return &copyDebtor, nil
}

func (s *Store) FindDebtorByNamePhone(_ context.Context, name string, phone string) (*domain.Debtor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.debtorsByID {
		if strings.EqualFold(d.Name, name) && d.Phone == phone {
			copyDebtor := cloneDebtor(d)
			return &copyDebtor, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListDebtors(_ context.Context) ([]domain.Debtor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	debtors := make([]domain.Debtor, 0, len(s.debtorsByID))
	for _, d := range s.debtorsByID {
		debtors = append(debtors, cloneDebtor(d))
	}
	slices.SortFunc(debtors, func(a, b domain.Debtor) int {
		if a.DueDate.Equal(b.DueDate) {
			return cmpString(a.ID, b.ID)
		}
		if a.DueDate.Before(b.DueDate) {
			return -1
		}
		return 1
	})
	return debtors, nil
}

func (s *Store) UpdateDebtorProfile(_ context.Context, id string, version int64, name string, phone string, dueDate time.Time) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if debtor.Version != version {
		return nil, store.ErrVersionConflict
	}
	if name == "" || phone == "" {
		return nil, store.ErrValidation
	}
	debtor.Name = name
	debtor.Phone = phone
	debtor.DueDate = dueDate
	debtor.Version++
	debtor.UpdatedAt = time.Now().UTC()
	s.debtorsByID[id] = debtor
	updated := cloneDebtor(debtor)
	return &updated, nil
}

func (s *Store) AppendDebtorLine(_ context.Context, id string, version int64, line domain.DebtLine, debtDelta decimal.Decimal) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if debtor.Version != version {
		return nil, store.ErrVersionConflict
	}
	if line.ProductID == "" || line.Quantity <= 0 || debtDelta.IsNegative() {
		return nil, store.ErrValidation
	}

	merged := false
	for i, existing := range debtor.Products {
		if existing.ProductID == line.ProductID && existing.SellPrice.Equal(line.SellPrice) {
			debtor.Products[i].Quantity += line.Quantity
			merged = true
			break
		}
	}
	if !merged {
		debtor.Products = append(debtor.Products, line)
	}
	debtor.DebtAmount = debtor.DebtAmount.Add(debtDelta)
	debtor.Version++
	debtor.UpdatedAt = time.Now().UTC()
	s.debtorsByID[id] = debtor
	updated := cloneDebtor(debtor)
	return &updated, nil
}

func (s *Store) RecordPartialPayment(_ context.Context, id string, version int64, entry domain.PaymentEntry, converted decimal.Decimal) (*domain.Debtor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if debtor.Version != version {
		return nil, store.ErrVersionConflict
	}
	if converted.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrValidation
	}
	if converted.GreaterThan(debtor.DebtAmount) {
		return nil, store.ErrOverpayment
	}

	debtor.PaymentLog = append(debtor.PaymentLog, entry)
	debtor.DebtAmount = debtor.DebtAmount.Sub(converted)
	debtor.Version++
	debtor.UpdatedAt = time.Now().UTC()
	s.debtorsByID[id] = debtor
	updated := cloneDebtor(debtor)
	return &updated, nil
}

// SettleDebtor closes a debtor's account in one atomic step: every debt line
// becomes a credit-settlement sale, product quantities are decremented,
// profit is added to the budget and the debtor record is removed. Lines
// whose product no longer exists are skipped and reported, never failed.
func (s *Store) SettleDebtor(_ context.Context, id string, version int64, entry domain.PaymentEntry) (*store.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if debtor.Version != version {
		return nil, store.ErrVersionConflict
	}

	converted, err := currency.Convert(entry.Amount, entry.Currency, debtor.Currency, entry.RateUsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
	}
	remaining := debtor.DebtAmount.Sub(converted)
	if remaining.GreaterThan(settleTolerance) {
		return nil, fmt.Errorf("%w: payment does not cover remaining debt", store.ErrSettlementFailed)
	}
	if remaining.LessThan(settleTolerance.Neg()) {
		return nil, store.ErrOverpayment
	}

	// Build the full outcome before touching state so a conversion failure
	// on any line leaves the store untouched.
	now := time.Now().UTC()
	result := &store.SettlementResult{ProfitSum: decimal.Zero}
	decrements := map[string]int{}
	dueDate := debtor.DueDate
	for _, line := range debtor.Products {
		product, ok := s.products[line.ProductID]
		if !ok {
			result.Lines = append(result.Lines, domain.LineOutcome{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Status:      domain.LineOutcomeSkippedMissing,
			})
			continue
		}
		total := line.SellPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		totalSum, err := currency.Convert(total, debtor.Currency, domain.CurrencySum, entry.RateUsed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
		}
		buyPrice, err := currency.Convert(product.PurchasePrice, domain.CurrencySum, debtor.Currency, entry.RateUsed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
		}
		profit := line.SellPrice.Sub(buyPrice).Mul(decimal.NewFromInt(int64(line.Quantity)))
		profitSum, err := currency.Convert(profit, debtor.Currency, domain.CurrencySum, entry.RateUsed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
		}

		sale := domain.Sale{
			ID:            xid.New("sal"),
			ProductID:     line.ProductID,
			ProductName:   line.ProductName,
			SellPrice:     line.SellPrice,
			BuyPrice:      buyPrice,
			Quantity:      line.Quantity,
			Currency:      debtor.Currency,
			TotalPrice:    total,
			TotalPriceSum: totalSum,
			PaymentMethod: domain.PaymentMethodCredit,
			DebtorName:    debtor.Name,
			DebtorPhone:   debtor.Phone,
			DebtDueDate:   &dueDate,
			CreatedAt:     now,
		}
		result.Sales = append(result.Sales, sale)
		result.Lines = append(result.Lines, domain.LineOutcome{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Status:      domain.LineOutcomeSettled,
			SaleID:      sale.ID,
		})
		result.ProfitSum = result.ProfitSum.Add(profitSum)
		decrements[line.ProductID] += line.Quantity
	}

	// Apply.
	for _, sale := range result.Sales {
		s.salesByID[sale.ID] = sale
	}
	for productID, qty := range decrements {
		product := s.products[productID]
		product.Quantity -= qty
		if product.Quantity < 0 {
			product.Quantity = 0
		}
		product.UpdatedAt = now
		s.products[productID] = product
	}
	if !result.ProfitSum.IsZero() {
		s.budget.Total = s.budget.Total.Add(result.ProfitSum)
		s.budget.UpdatedAt = now
	}
	delete(s.debtorsByID, id)
	return result, nil
}

func (s *Store) ReturnDebtorProduct(_ context.Context, id string, version int64, productID string, qty int) (*store.ReturnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	debtor, exists := s.debtorsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if debtor.Version != version {
		return nil, store.ErrVersionConflict
	}
	if qty <= 0 {
		return nil, store.ErrValidation
	}

	lineIdx := -1
	for i, line := range debtor.Products {
		if line.ProductID == productID {
			lineIdx = i
			break
		}
	}
	if lineIdx < 0 {
		return nil, fmt.Errorf("%w: product %s not on debtor", store.ErrNotFound, productID)
	}
	line := debtor.Products[lineIdx]
	if qty > line.Quantity {
		return nil, fmt.Errorf("%w: return quantity %d exceeds credited %d", store.ErrValidation, qty, line.Quantity)
	}

	st := s.restockLocked(line.ProductID, line.ProductName, qty)
	stock := st

	reduction := line.SellPrice.Mul(decimal.NewFromInt(int64(qty)))
	debtor.DebtAmount = debtor.DebtAmount.Sub(reduction)
	if debtor.DebtAmount.IsNegative() {
		debtor.DebtAmount = decimal.Zero
	}
	line.Quantity -= qty
	if line.Quantity == 0 {
		debtor.Products = append(debtor.Products[:lineIdx], debtor.Products[lineIdx+1:]...)
	} else {
		debtor.Products[lineIdx] = line
	}

	result := &store.ReturnResult{Restocked: qty, Stock: &stock}
	// Zero lines or zero debt both close the account.
	if len(debtor.Products) == 0 || debtor.DebtAmount.IsZero() {
		delete(s.debtorsByID, id)
		result.DebtorDeleted = true
		return result, nil
	}

	debtor.Version++
	debtor.UpdatedAt = time.Now().UTC()
	s.debtorsByID[id] = debtor
	updated := cloneDebtor(debtor)
	result.Debtor = &updated
	return result, nil
}

func (s *Store) DeleteDebtor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.debtorsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.debtorsByID, id)
	return nil
}

// --- sales ---

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ProductID == "" || sale.Quantity <= 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.salesByID[sale.ID] = sale
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySale := sale
	return &copySale, nil
}

// ListSales returns sales in [from, to), newest first. Zero bounds are
// treated as open.
func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if !from.IsZero() && sale.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[sale.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.salesByID[sale.ID] = sale
	updated := sale
	return &updated, nil
}

// --- budget, expenses, exchange rate ---

func (s *Store) GetBudget(_ context.Context) (*domain.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	budget := s.budget
	return &budget, nil
}

func (s *Store) AddToBudget(_ context.Context, delta decimal.Decimal) (*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budget.Total = s.budget.Total.Add(delta)
	s.budget.UpdatedAt = time.Now().UTC()
	budget := s.budget
	return &budget, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.Reason == "" || expense.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrValidation
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expensesByID))
	for _, e := range s.expensesByID {
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return expenses, nil
}

func (s *Store) GetExchangeRate(_ context.Context) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate := s.rate
	return &rate, nil
}

func (s *Store) SetExchangeRate(_ context.Context, rate decimal.Decimal) (*domain.ExchangeRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrValidation
	}
	s.rate = domain.ExchangeRate{Rate: rate, UpdatedAt: time.Now().UTC()}
	updated := s.rate
	return &updated, nil
}

// --- auth accounts ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// --- helpers ---

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneDebtor(src domain.Debtor) domain.Debtor {
	clone := src
	clone.Products = make([]domain.DebtLine, len(src.Products))
	copy(clone.Products, src.Products)
	clone.PaymentLog = make([]domain.PaymentEntry, len(src.PaymentLog))
	copy(clone.PaymentLog, src.PaymentLog)
	return clone
}
