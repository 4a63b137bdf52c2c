package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CurrencySum = "sum"
	CurrencyUSD = "usd"
)

const (
	PaymentMethodCash        = "naqd"
	PaymentMethodCard        = "plastik"
	PaymentMethodCredit      = "qarz"
	PaymentMethodDebtPayment = "qarzdor_tolovi"
)

const (
	LocationWarehouse = "sklad"
	LocationShop      = "dokon"
)

const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Quantity      int             `json:"quantity"`
	Location      string          `json:"location"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name" validate:"required"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Quantity      int             `json:"quantity" validate:"gte=0"`
	Location      string          `json:"location" validate:"required,oneof=sklad dokon"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
	Quantity      *int             `json:"quantity,omitempty"`
	Location      *string          `json:"location,omitempty"`
}

// StoreStock is the shop-floor quantity for a product, kept separately from
// the warehouse product record so returns can restock items whose product
// entry has since been deleted.
type StoreStock struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DebtLine is one credited product on a debtor's account.
type DebtLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	Quantity    int             `json:"quantity"`
}

// PaymentEntry is an append-only record of a payment applied to a debtor.
type PaymentEntry struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	RateUsed      decimal.Decimal `json:"rate_used"`
	USDEquivalent decimal.Decimal `json:"usd_equivalent"`
	Method        string          `json:"method"`
	PaidAt        time.Time       `json:"paid_at"`
}

type Debtor struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	Currency   string          `json:"currency"`
	DebtAmount decimal.Decimal `json:"debt_amount"`
	DueDate    time.Time       `json:"due_date"`
	Products   []DebtLine      `json:"products"`
	PaymentLog []PaymentEntry  `json:"payment_log"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type DebtorCreateRequest struct {
	Name     string             `json:"name" validate:"required"`
	Phone    string             `json:"phone" validate:"required,uzphone"`
	Currency string             `json:"currency" validate:"required,oneof=sum usd"`
	DueDate  time.Time          `json:"due_date"`
	Products []DebtorCreateLine `json:"products" validate:"required,min=1,dive"`
}

type DebtorCreateLine struct {
	ProductID   string          `json:"product_id" validate:"required"`
	ProductName string          `json:"product_name" validate:"required"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
}

type DebtorUpdateRequest struct {
	Name    *string    `json:"name,omitempty"`
	Phone   *string    `json:"phone,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

type DebtPaymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,oneof=sum usd"`
	Rate     decimal.Decimal `json:"rate"`
	Method   string          `json:"method" validate:"omitempty,oneof=naqd plastik qarzdor_tolovi"`
}

type DebtReturnRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

const (
	LineOutcomeSettled        = "settled"
	LineOutcomeSkippedMissing = "skipped_missing_product"
)

// LineOutcome reports what happened to one debt line during settlement.
type LineOutcome struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Status      string `json:"status"`
	SaleID      string `json:"sale_id,omitempty"`
}

type DebtPaymentResponse struct {
	Settled       bool            `json:"settled"`
	RemainingDebt decimal.Decimal `json:"remaining_debt"`
	Currency      string          `json:"currency"`
	Lines         []LineOutcome   `json:"lines,omitempty"`
	Debtor        *Debtor         `json:"debtor,omitempty"`
}

type DebtReturnResponse struct {
	DebtorDeleted bool        `json:"debtor_deleted"`
	Restocked     int         `json:"restocked"`
	Stock         *StoreStock `json:"stock,omitempty"`
	Debtor        *Debtor     `json:"debtor,omitempty"`
}

type Sale struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	Quantity      int             `json:"quantity"`
	Currency      string          `json:"currency"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	TotalPriceSum decimal.Decimal `json:"total_price_sum"`
	PaymentMethod string          `json:"payment_method"`
	DebtorName    string          `json:"debtor_name,omitempty"`
	DebtorPhone   string          `json:"debtor_phone,omitempty"`
	DebtDueDate   *time.Time      `json:"debt_due_date,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SaleCreateRequest struct {
	ProductID     string          `json:"product_id" validate:"required"`
	SellPrice     decimal.Decimal `json:"sell_price"`
	Quantity      int             `json:"quantity" validate:"gt=0"`
	Currency      string          `json:"currency" validate:"required,oneof=sum usd"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=naqd plastik qarz qarzdor_tolovi"`
	DebtorName    string          `json:"debtor_name,omitempty"`
	DebtorPhone   string          `json:"debtor_phone,omitempty"`
	DebtDueDate   *time.Time      `json:"debt_due_date,omitempty"`
}

type SaleCurrencyUpdateRequest struct {
	Currency string `json:"currency" validate:"required,oneof=sum usd"`
}

// SalesStats aggregates sales over a period.
type SalesStats struct {
	Period    string          `json:"period"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	SaleCount int             `json:"sale_count"`
	TotalSum  decimal.Decimal `json:"total_sum"`
	ProfitSum decimal.Decimal `json:"profit_sum"`
	Sales     []Sale          `json:"sales"`
}

type StockComparison struct {
	ProductID         string `json:"product_id"`
	ProductName       string `json:"product_name"`
	WarehouseQuantity int    `json:"warehouse_quantity"`
	ShopQuantity      int    `json:"shop_quantity"`
}

// Budget is the running cash position in sum.
type Budget struct {
	Total     decimal.Decimal `json:"total"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Expense struct {
	ID        string          `json:"id"`
	Reason    string          `json:"reason"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Reason string          `json:"reason" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// ExchangeRate is the sum-per-USD rate used for all conversions.
type ExchangeRate struct {
	Rate      decimal.Decimal `json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type ExchangeRateUpdateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin seller"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
