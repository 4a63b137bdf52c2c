package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"dokon/backend/internal/currency"
	"dokon/backend/internal/domain"
	"dokon/backend/internal/rates"
	"dokon/backend/internal/store"
)

// ErrForbidden is returned when the acting user lacks the required role.
var ErrForbidden = errors.New("admin role required")

// settleTolerance mirrors the store's settlement tolerance: remaining debt
// within one smallest currency unit counts as fully paid.
var settleTolerance = decimal.New(1, -2)

var phonePattern = regexp.MustCompile(`^\+?998\d{9}$`)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	rates    *rates.Provider
	validate *validator.Validate
	timeout  time.Duration
}

func New(repo store.Repository, rateProvider *rates.Provider, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("uzphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})

	return &Service{
		repo:     repo,
		rates:    rateProvider,
		validate: validate,
		timeout:  timeout,
	}
}

// opContext bounds a single operation so a stalled store surfaces as a
// timeout instead of hanging the request.
func (s *Service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func mapTimeout(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrTimeout, err)
	}
	return err
}

func (s *Service) checkStruct(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	return nil
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// currentRate resolves the rate to use for a request: an explicit positive
// rate wins, an omitted (zero) rate falls back to the stored one, and a
// supplied non-positive rate is rejected.
func (s *Service) currentRate(ctx context.Context, requested decimal.Decimal) (decimal.Decimal, error) {
	if requested.GreaterThan(decimal.Zero) {
		return requested, nil
	}
	if !requested.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: %v", store.ErrValidation, currency.ErrInvalidRate)
	}
	return s.rates.Current(ctx)
}

// --- products ---

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.checkStruct(req); err != nil {
		return domain.Product{}, err
	}
	if req.PurchasePrice.IsNegative() {
		return domain.Product{}, fmt.Errorf("%w: purchase price cannot be negative", store.ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		PurchasePrice: req.PurchasePrice,
		Quantity:      req.Quantity,
		Location:      req.Location,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.PurchasePrice != nil {
		if req.PurchasePrice.IsNegative() {
			return domain.Product{}, store.ErrValidation
		}
		updated.PurchasePrice = *req.PurchasePrice
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrValidation
		}
		updated.Quantity = *req.Quantity
	}
	if req.Location != nil {
		if *req.Location != domain.LocationWarehouse && *req.Location != domain.LocationShop {
			return domain.Product{}, store.ErrValidation
		}
		updated.Location = *req.Location
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

// CompareStockLevels lines up warehouse quantities against shop-floor stock
// per product.
func (s *Service) CompareStockLevels(ctx context.Context) ([]domain.StockComparison, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	stocks, err := s.repo.ListStoreStock(ctx)
	if err != nil {
		return nil, err
	}

	shopQty := make(map[string]int, len(stocks))
	for _, st := range stocks {
		shopQty[st.ProductID] = st.Quantity
	}

	comparisons := make([]domain.StockComparison, 0, len(products))
	for _, p := range products {
		c := domain.StockComparison{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ShopQuantity: shopQty[p.ID],
		}
		if p.Location == domain.LocationWarehouse {
			c.WarehouseQuantity = p.Quantity
		} else {
			c.ShopQuantity += p.Quantity
		}
		comparisons = append(comparisons, c)
	}
	return comparisons, nil
}

// --- shop-floor stock ---

func (s *Service) ListStoreStock(ctx context.Context) ([]domain.StoreStock, error) {
	return s.repo.ListStoreStock(ctx)
}

func (s *Service) RestockStore(ctx context.Context, req domain.StockAdjustRequest) (domain.StoreStock, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.StoreStock{}, err
	}
	if err := s.checkStruct(req); err != nil {
		return domain.StoreStock{}, err
	}

	name := ""
	if product, err := s.repo.GetProductByID(ctx, req.ProductID); err == nil {
		name = product.Name
	}
	st, err := s.repo.RestockProduct(ctx, req.ProductID, name, req.Quantity)
	if err != nil {
		return domain.StoreStock{}, err
	}
	return *st, nil
}

// --- debtors ---

func (s *Service) RegisterDebtor(ctx context.Context, req domain.DebtorCreateRequest) (domain.Debtor, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Debtor{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.checkStruct(req); err != nil {
		return domain.Debtor{}, err
	}
	if !req.DueDate.After(time.Now()) {
		return domain.Debtor{}, fmt.Errorf("%w: due date must be in the future", store.ErrValidation)
	}

	debt := decimal.Zero
	lines := make([]domain.DebtLine, 0, len(req.Products))
	for _, line := range req.Products {
		if line.SellPrice.LessThanOrEqual(decimal.Zero) {
			return domain.Debtor{}, fmt.Errorf("%w: sell price must be positive for %s", store.ErrValidation, line.ProductID)
		}
		lineTotal := line.SellPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		debt = debt.Add(lineTotal)
		lines = append(lines, domain.DebtLine{
			ProductID:   line.ProductID,
			ProductName: strings.TrimSpace(line.ProductName),
			SellPrice:   line.SellPrice,
			Quantity:    line.Quantity,
		})
	}

	created, err := s.repo.CreateDebtor(ctx, domain.Debtor{
		Name:       req.Name,
		Phone:      req.Phone,
		Currency:   req.Currency,
		DebtAmount: debt,
		DueDate:    req.DueDate,
		Products:   lines,
	})
	if err != nil {
		return domain.Debtor{}, mapTimeout(ctx, err)
	}
	return *created, nil
}

func (s *Service) ListDebtors(ctx context.Context) ([]domain.Debtor, error) {
	return s.repo.ListDebtors(ctx)
}

func (s *Service) GetDebtor(ctx context.Context, id string) (domain.Debtor, error) {
	debtor, err := s.repo.GetDebtorByID(ctx, id)
	if err != nil {
		return domain.Debtor{}, err
	}
	return *debtor, nil
}

// PayDebt applies a payment to a debtor. A payment covering the whole debt
// (within rounding tolerance) settles the account atomically; a smaller one
// is recorded in the payment log; a larger one is rejected outright.
func (s *Service) PayDebt(ctx context.Context, id string, req domain.DebtPaymentRequest) (domain.DebtPaymentResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.DebtPaymentResponse{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.checkStruct(req); err != nil {
		return domain.DebtPaymentResponse{}, err
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.DebtPaymentResponse{}, fmt.Errorf("%w: payment amount must be positive", store.ErrValidation)
	}

	debtor, err := s.repo.GetDebtorByID(ctx, id)
	if err != nil {
		return domain.DebtPaymentResponse{}, mapTimeout(ctx, err)
	}

	rate, err := s.currentRate(ctx, req.Rate)
	if err != nil {
		return domain.DebtPaymentResponse{}, mapTimeout(ctx, err)
	}
	converted, err := currency.Convert(req.Amount, req.Currency, debtor.Currency, rate)
	if err != nil {
		return domain.DebtPaymentResponse{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	usdEq, err := currency.USDEquivalent(req.Amount, req.Currency, rate)
	if err != nil {
		return domain.DebtPaymentResponse{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	method := req.Method
	if method == "" {
		method = domain.PaymentMethodCash
	}
	entry := domain.PaymentEntry{
		Amount:        req.Amount,
		Currency:      req.Currency,
		RateUsed:      rate,
		USDEquivalent: usdEq,
		Method:        method,
		PaidAt:        time.Now().UTC(),
	}

	remaining := debtor.DebtAmount.Sub(converted)
	switch {
	case remaining.LessThan(settleTolerance.Neg()):
		return domain.DebtPaymentResponse{}, fmt.Errorf("%w: payment %s exceeds debt %s %s",
			store.ErrOverpayment, converted, debtor.DebtAmount, debtor.Currency)

	case remaining.GreaterThan(settleTolerance):
		updated, err := s.repo.RecordPartialPayment(ctx, id, debtor.Version, entry, converted)
		if err != nil {
			return domain.DebtPaymentResponse{}, mapTimeout(ctx, err)
		}
		return domain.DebtPaymentResponse{
			Settled:       false,
			RemainingDebt: updated.DebtAmount,
			Currency:      updated.Currency,
			Debtor:        updated,
		}, nil

	default:
		result, err := s.repo.SettleDebtor(ctx, id, debtor.Version, entry)
		if err != nil {
			return domain.DebtPaymentResponse{}, mapTimeout(ctx, err)
		}
		for _, line := range result.Lines {
			if line.Status == domain.LineOutcomeSkippedMissing {
				log.Printf("[service] WARN: settlement for debtor %s skipped missing product %s", id, line.ProductID)
			}
		}
		return domain.DebtPaymentResponse{
			Settled:       true,
			RemainingDebt: decimal.Zero,
			Currency:      debtor.Currency,
			Lines:         result.Lines,
		}, nil
	}
}

// ReturnDebtProduct takes back a credited product: the item goes onto the
// shop floor, the debt shrinks by its sale value and the debtor disappears
// once nothing is left on the account.
func (s *Service) ReturnDebtProduct(ctx context.Context, id string, req domain.DebtReturnRequest) (domain.DebtReturnResponse, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.DebtReturnResponse{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.checkStruct(req); err != nil {
		return domain.DebtReturnResponse{}, err
	}

	debtor, err := s.repo.GetDebtorByID(ctx, id)
	if err != nil {
		return domain.DebtReturnResponse{}, mapTimeout(ctx, err)
	}
	result, err := s.repo.ReturnDebtorProduct(ctx, id, debtor.Version, req.ProductID, req.Quantity)
	if err != nil {
		return domain.DebtReturnResponse{}, mapTimeout(ctx, err)
	}
	return domain.DebtReturnResponse{
		DebtorDeleted: result.DebtorDeleted,
		Restocked:     result.Restocked,
		Stock:         result.Stock,
		Debtor:        result.Debtor,
	}, nil
}

// UpdateDebtor edits profile fields only. Debt amount, lines and the
// payment log never change through this path.
func (s *Service) UpdateDebtor(ctx context.Context, id string, req domain.DebtorUpdateRequest) (domain.Debtor, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Debtor{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	debtor, err := s.repo.GetDebtorByID(ctx, id)
	if err != nil {
		return domain.Debtor{}, mapTimeout(ctx, err)
	}

	name := debtor.Name
	phone := debtor.Phone
	dueDate := debtor.DueDate
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Debtor{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
	}
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
		if !phonePattern.MatchString(phone) {
			return domain.Debtor{}, fmt.Errorf("%w: phone must match +998XXXXXXXXX", store.ErrValidation)
		}
	}
	if req.DueDate != nil {
		dueDate = *req.DueDate
		if !dueDate.After(time.Now()) {
			return domain.Debtor{}, fmt.Errorf("%w: due date must be in the future", store.ErrValidation)
		}
	}

	updated, err := s.repo.UpdateDebtorProfile(ctx, id, debtor.Version, name, phone, dueDate)
	if err != nil {
		return domain.Debtor{}, mapTimeout(ctx, err)
	}
	return *updated, nil
}

func (s *Service) DeleteDebtor(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteDebtor(ctx, id)
}

// --- sales ---

// RecordSale writes a direct sale. Credit sales open or extend a debtor
// account instead of touching the budget.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Sale{}, err
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.checkStruct(req); err != nil {
		return domain.Sale{}, err
	}
	if req.SellPrice.LessThanOrEqual(decimal.Zero) {
		return domain.Sale{}, fmt.Errorf("%w: sell price must be positive", store.ErrValidation)
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.Sale{}, mapTimeout(ctx, err)
	}
	rate, err := s.rates.Current(ctx)
	if err != nil {
		return domain.Sale{}, mapTimeout(ctx, err)
	}

	qty := decimal.NewFromInt(int64(req.Quantity))
	total := req.SellPrice.Mul(qty)
	totalSum, err := currency.Convert(total, req.Currency, domain.CurrencySum, rate)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	buyPrice, err := currency.Convert(product.PurchasePrice, domain.CurrencySum, req.Currency, rate)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	sale := domain.Sale{
		ProductID:     product.ID,
		ProductName:   product.Name,
		SellPrice:     req.SellPrice,
		BuyPrice:      buyPrice,
		Quantity:      req.Quantity,
		Currency:      req.Currency,
		TotalPrice:    total,
		TotalPriceSum: totalSum,
		PaymentMethod: req.PaymentMethod,
		DebtorName:    strings.TrimSpace(req.DebtorName),
		DebtorPhone:   strings.TrimSpace(req.DebtorPhone),
		DebtDueDate:   req.DebtDueDate,
	}

	if req.PaymentMethod == domain.PaymentMethodCredit {
		if err := s.extendCredit(ctx, sale, rate); err != nil {
			return domain.Sale{}, mapTimeout(ctx, err)
		}
	} else {
		profitSum := totalSum.Sub(product.PurchasePrice.Mul(qty))
		if _, err := s.repo.AddToBudget(ctx, profitSum); err != nil {
			return domain.Sale{}, mapTimeout(ctx, err)
		}
		// Settlement owns the inventory decrement for credited lines.
		if err := s.repo.DecrementProductQuantity(ctx, product.ID, req.Quantity); err != nil {
			log.Printf("[service] WARN: failed to decrement product %s quantity: %v", product.ID, err)
		}
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, mapTimeout(ctx, err)
	}
	return *created, nil
}

// extendCredit books a credit sale against a debtor account, creating the
// account when the buyer is new.
func (s *Service) extendCredit(ctx context.Context, sale domain.Sale, rate decimal.Decimal) error {
	if sale.DebtorName == "" || !phonePattern.MatchString(sale.DebtorPhone) {
		return fmt.Errorf("%w: credit sale needs debtor name and phone", store.ErrValidation)
	}
	if sale.DebtDueDate == nil || !sale.DebtDueDate.After(time.Now()) {
		return fmt.Errorf("%w: credit sale needs a future due date", store.ErrValidation)
	}

	line := domain.DebtLine{
		ProductID:   sale.ProductID,
		ProductName: sale.ProductName,
		SellPrice:   sale.SellPrice,
		Quantity:    sale.Quantity,
	}

	existing, err := s.repo.FindDebtorByNamePhone(ctx, sale.DebtorName, sale.DebtorPhone)
	if errors.Is(err, store.ErrNotFound) {
		_, err := s.repo.CreateDebtor(ctx, domain.Debtor{
			Name:       sale.DebtorName,
			Phone:      sale.DebtorPhone,
			Currency:   sale.Currency,
			DebtAmount: sale.TotalPrice,
			DueDate:    *sale.DebtDueDate,
			Products:   []domain.DebtLine{line},
		})
		return err
	}
	if err != nil {
		return err
	}

	delta, err := currency.Convert(sale.TotalPrice, sale.Currency, existing.Currency, rate)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if existing.Currency != sale.Currency {
		converted, err := currency.Convert(line.SellPrice, sale.Currency, existing.Currency, rate)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		line.SellPrice = converted
	}
	_, err = s.repo.AppendDebtorLine(ctx, existing.ID, existing.Version, line, delta)
	return err
}

// SalesStats aggregates sales for a named period: daily, weekly, monthly,
// yearly or everything when the period is empty.
func (s *Service) SalesStats(ctx context.Context, period string) (domain.SalesStats, error) {
	from, to, err := periodBounds(period, time.Now().UTC())
	if err != nil {
		return domain.SalesStats{}, err
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.SalesStats{}, err
	}

	totalSum := decimal.Zero
	profitSum := decimal.Zero
	for _, sale := range sales {
		totalSum = totalSum.Add(sale.TotalPriceSum)
		profitSum = profitSum.Add(saleProfitSum(sale))
	}
	return domain.SalesStats{
		Period:    period,
		From:      from,
		To:        to,
		SaleCount: len(sales),
		TotalSum:  totalSum,
		ProfitSum: profitSum,
		Sales:     sales,
	}, nil
}

// saleProfitSum computes a sale's profit in sum using the effective rate
// the sale was recorded at.
func saleProfitSum(sale domain.Sale) decimal.Decimal {
	profit := sale.SellPrice.Sub(sale.BuyPrice).Mul(decimal.NewFromInt(int64(sale.Quantity)))
	if sale.Currency == domain.CurrencySum || sale.TotalPrice.IsZero() {
		return profit
	}
	effectiveRate := sale.TotalPriceSum.Div(sale.TotalPrice)
	return profit.Mul(effectiveRate)
}

func periodBounds(period string, now time.Time) (time.Time, time.Time, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case "":
		return time.Time{}, time.Time{}, nil
	case "daily":
		return midnight, midnight.AddDate(0, 0, 1), nil
	case "weekly":
		weekday := int(midnight.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start := midnight.AddDate(0, 0, 1-weekday)
		return start, start.AddDate(0, 0, 7), nil
	case "monthly":
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case "yearly":
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", store.ErrValidation, period)
	}
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteSale(ctx, id)
}

// UpdateSaleCurrency redenominates a recorded sale into the other currency
// at the current rate. The sum-denominated total is recomputed so reports
// stay consistent.
func (s *Service) UpdateSaleCurrency(ctx context.Context, id string, req domain.SaleCurrencyUpdateRequest) (domain.Sale, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Sale{}, err
	}
	if err := s.checkStruct(req); err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.Currency == req.Currency {
		return *sale, nil
	}

	rate, err := s.rates.Current(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	updated := *sale
	for _, field := range []*decimal.Decimal{&updated.SellPrice, &updated.BuyPrice, &updated.TotalPrice} {
		converted, err := currency.Convert(*field, sale.Currency, req.Currency, rate)
		if err != nil {
			return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		*field = converted
	}
	updated.Currency = req.Currency
	totalSum, err := currency.Convert(updated.TotalPrice, updated.Currency, domain.CurrencySum, rate)
	if err != nil {
		return domain.Sale{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	updated.TotalPriceSum = totalSum

	saved, err := s.repo.UpdateSale(ctx, updated)
	if err != nil {
		return domain.Sale{}, err
	}
	return *saved, nil
}

// --- budget, expenses, exchange rate ---

func (s *Service) GetBudget(ctx context.Context) (domain.Budget, error) {
	budget, err := s.repo.GetBudget(ctx)
	if err != nil {
		return domain.Budget{}, err
	}
	return *budget, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Expense{}, err
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.checkStruct(req); err != nil {
		return domain.Expense{}, err
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.Expense{}, fmt.Errorf("%w: expense amount must be positive", store.ErrValidation)
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Reason: req.Reason,
		Amount: req.Amount,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	if _, err := s.repo.AddToBudget(ctx, req.Amount.Neg()); err != nil {
		log.Printf("[service] WARN: expense %s recorded but budget not decremented: %v", created.ID, err)
	}
	return *created, nil
}

func (s *Service) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx)
}

func (s *Service) GetExchangeRate(ctx context.Context) (domain.ExchangeRate, error) {
	rate, err := s.rates.Current(ctx)
	if err != nil {
		return domain.ExchangeRate{}, err
	}
	return domain.ExchangeRate{Rate: rate, UpdatedAt: time.Now().UTC()}, nil
}

func (s *Service) SetExchangeRate(ctx context.Context, req domain.ExchangeRateUpdateRequest) (domain.ExchangeRate, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ExchangeRate{}, err
	}
	updated, err := s.rates.Update(ctx, req.Rate)
	if err != nil {
		if errors.Is(err, currency.ErrInvalidRate) {
			return domain.ExchangeRate{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		return domain.ExchangeRate{}, err
	}
	return domain.ExchangeRate{Rate: updated, UpdatedAt: time.Now().UTC()}, nil
}
