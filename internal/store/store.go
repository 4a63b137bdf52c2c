package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrOverpayment      = errors.New("payment exceeds outstanding debt")
	ErrVersionConflict  = errors.New("record modified concurrently")
	ErrSettlementFailed = errors.New("settlement failed")
	ErrTimeout          = errors.New("operation timed out")
)

// SettlementResult is the store-level outcome of closing a debtor's
// account: the sales written per line and the profit added to the budget.
type SettlementResult struct {
	Lines     []domain.LineOutcome
	Sales     []domain.Sale
	ProfitSum decimal.Decimal
}

// ReturnResult is the store-level outcome of returning a credited product.
type ReturnResult struct {
	DebtorDeleted bool
	Restocked     int
	Stock         *domain.StoreStock
	Debtor        *domain.Debtor
}

type Repository interface {
	// Products.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	DecrementProductQuantity(ctx context.Context, id string, qty int) error

	// Shop-floor stock.
	ListStoreStock(ctx context.Context) ([]domain.StoreStock, error)
	GetStoreStockByProduct(ctx context.Context, productID string) (*domain.StoreStock, error)
	RestockProduct(ctx context.Context, productID string, productName string, qty int) (*domain.StoreStock, error)

	// Debtors. Mutating methods take the caller's last observed version and
	// fail with ErrVersionConflict when the record moved underneath them.
	CreateDebtor(ctx context.Context, debtor domain.Debtor) (*domain.Debtor, error)
	GetDebtorByID(ctx context.Context, id string) (*domain.Debtor, error)
	FindDebtorByNamePhone(ctx context.Context, name string, phone string) (*domain.Debtor, error)
	ListDebtors(ctx context.Context) ([]domain.Debtor, error)
	UpdateDebtorProfile(ctx context.Context, id string, version int64, name string, phone string, dueDate time.Time) (*domain.Debtor, error)
	AppendDebtorLine(ctx context.Context, id string, version int64, line domain.DebtLine, debtDelta decimal.Decimal) (*domain.Debtor, error)
	RecordPartialPayment(ctx context.Context, id string, version int64, entry domain.PaymentEntry, converted decimal.Decimal) (*domain.Debtor, error)
	SettleDebtor(ctx context.Context, id string, version int64, entry domain.PaymentEntry) (*SettlementResult, error)
	ReturnDebtorProduct(ctx context.Context, id string, version int64, productID string, qty int) (*ReturnResult, error)
	DeleteDebtor(ctx context.Context, id string) error

	// Sales.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)

	// Budget, expenses, exchange rate.
	GetBudget(ctx context.Context) (*domain.Budget, error)
	AddToBudget(ctx context.Context, delta decimal.Decimal) (*domain.Budget, error)
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	GetExchangeRate(ctx context.Context) (*domain.ExchangeRate, error)
	SetExchangeRate(ctx context.Context, rate decimal.Decimal) (*domain.ExchangeRate, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
