package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"dokon/backend/internal/currency"
	"dokon/backend/internal/domain"
	"dokon/backend/internal/store"
	"dokon/backend/internal/xid"
)

var settleTolerance = decimal.New(1, -2)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier covers *sql.DB and *sql.Tx so debtor loading works inside and
// outside transactions.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- products ---

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, purchase_price, quantity, location, created_at, updated_at
		FROM products
		ORDER BY location, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PurchasePrice, &p.Quantity, &p.Location, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Quantity < 0 || product.PurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if product.Location != domain.LocationWarehouse && product.Location != domain.LocationShop {
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, name, purchase_price, quantity, location, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING created_at, updated_at
	`, product.ID, product.Name, product.PurchasePrice, product.Quantity, product.Location).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, purchase_price, quantity, location, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PurchasePrice, &p.Quantity, &p.Location, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Quantity < 0 || product.PurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, purchase_price = $3, quantity = $4, location = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, product.ID, product.Name, product.PurchasePrice, product.Quantity, product.Location).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DecrementProductQuantity(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = GREATEST(quantity - $2, 0), updated_at = now()
		WHERE id = $1
	`, id, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- shop-floor stock ---

func (s *Store) ListStoreStock(ctx context.Context) ([]domain.StoreStock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, updated_at
		FROM store_stocks
		ORDER BY product_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stocks := make([]domain.StoreStock, 0, 64)
	for rows.Next() {
		var st domain.StoreStock
		if err := rows.Scan(&st.ID, &st.ProductID, &st.ProductName, &st.Quantity, &st.UpdatedAt); err != nil {
			return nil, err
		}
		stocks = append(stocks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stocks, nil
}

func (s *Store) GetStoreStockByProduct(ctx context.Context, productID string) (*domain.StoreStock, error) {
	var st domain.StoreStock
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, quantity, updated_at
		FROM store_stocks
		WHERE product_id = $1
	`, productID).Scan(&st.ID, &st.ProductID, &st.ProductName, &st.Quantity, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *Store) RestockProduct(ctx context.Context, productID string, productName string, qty int) (*domain.StoreStock, error) {
	if productID == "" || qty <= 0 {
		return nil, store.ErrValidation
	}

	var st domain.StoreStock
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO store_stocks (id, product_id, product_name, quantity, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (product_id) DO UPDATE
		SET quantity = store_stocks.quantity + EXCLUDED.quantity,
		    product_name = COALESCE(NULLIF(EXCLUDED.product_name, ''), store_stocks.product_name),
		    updated_at = now()
		RETURNING id, product_id, product_name, quantity, updated_at
	`, xid.New("stk"), productID, productName, qty).
		Scan(&st.ID, &st.ProductID, &st.ProductName, &st.Quantity, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// --- debtors ---

func (s *Store) CreateDebtor(ctx context.Context, debtor domain.Debtor) (*domain.Debtor, error) {
	if debtor.Name == "" || debtor.Phone == "" || len(debtor.Products) == 0 {
		return nil, store.ErrValidation
	}
	if !currency.IsValid(debtor.Currency) {
		return nil, store.ErrValidation
	}
	if debtor.ID == "" {
		debtor.ID = xid.New("dbt")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO debtors (id, name, phone, currency, debt_amount, due_date, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,1,now(),now())
		RETURNING version, created_at, updated_at
	`, debtor.ID, debtor.Name, debtor.Phone, debtor.Currency, debtor.DebtAmount, debtor.DueDate).
		Scan(&debtor.Version, &debtor.CreatedAt, &debtor.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	for _, line := range debtor.Products {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO debtor_products (debtor_id, product_id, product_name, sell_price, quantity)
			VALUES ($1,$2,$3,$4,$5)
		`, debtor.ID, line.ProductID, line.ProductName, line.SellPrice, line.Quantity)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if debtor.PaymentLog == nil {
		debtor.PaymentLog = []domain.PaymentEntry{}
	}
	created := debtor
	return &created, nil
}

func (s *Store) GetDebtorByID(ctx context.Context, id string) (*domain.Debtor, error) {
	return loadDebtor(ctx, s.db, id, false)
}

func (s *Store) FindDebtorByNamePhone(ctx context.Context, name string, phone string) (*domain.Debtor, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM debtors
		WHERE lower(name) = lower($1) AND phone = $2
		ORDER BY created_at
		LIMIT 1
	`, name, phone).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return loadDebtor(ctx, s.db, id, false)
}

func (s *Store) ListDebtors(ctx context.Context) ([]domain.Debtor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM debtors ORDER BY due_date, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, 64)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debtors := make([]domain.Debtor, 0, len(ids))
	for _, id := range ids {
		debtor, err := loadDebtor(ctx, s.db, id, false)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		debtors = append(debtors, *debtor)
	}
	return debtors, nil
}

func (s *Store) UpdateDebtorProfile(ctx context.Context, id string, version int64, name string, phone string, dueDate time.Time) (*domain.Debtor, error) {
	if name == "" || phone == "" {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockDebtorVersion(ctx, tx, id, version); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE debtors
		SET name = $2, phone = $3, due_date = $4, version = version + 1, updated_at = now()
		WHERE id = $1
	`, id, name, phone, dueDate)
	if err != nil {
		return nil, txErr(err)
	}

	updated, err := loadDebtor(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, txErr(err)
	}
	return updated, nil
}

func (s *Store) AppendDebtorLine(ctx context.Context, id string, version int64, line domain.DebtLine, debtDelta decimal.Decimal) (*domain.Debtor, error) {
	if line.ProductID == "" || line.Quantity <= 0 || debtDelta.IsNegative() {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockDebtorVersion(ctx, tx, id, version); err != nil {
		return nil, err
	}

	// Merge with an identically priced line, otherwise append.
	res, err := tx.ExecContext(ctx, `
		UPDATE debtor_products
		SET quantity = quantity + $4
		WHERE debtor_id = $1 AND product_id = $2 AND sell_price = $3
	`, id, line.ProductID, line.SellPrice, line.Quantity)
	if err != nil {
		return nil, txErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO debtor_products (debtor_id, product_id, product_name, sell_price, quantity)
			VALUES ($1,$2,$3,$4,$5)
		`, id, line.ProductID, line.ProductName, line.SellPrice, line.Quantity)
		if err != nil {
			return nil, txErr(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE debtors
		SET debt_amount = debt_amount + $2, version = version + 1, updated_at = now()
		WHERE id = $1
	`, id, debtDelta)
	if err != nil {
		return nil, txErr(err)
	}

	updated, err := loadDebtor(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, txErr(err)
	}
	return updated, nil
}

func (s *Store) RecordPartialPayment(ctx context.Context, id string, version int64, entry domain.PaymentEntry, converted decimal.Decimal) (*domain.Debtor, error) {
	if converted.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var debt decimal.Decimal
	var current int64
	err = tx.QueryRowContext(ctx, `
		SELECT debt_amount, version FROM debtors WHERE id = $1 FOR UPDATE
	`, id).Scan(&debt, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if current != version {
		return nil, store.ErrVersionConflict
	}
	if converted.GreaterThan(debt) {
		return nil, store.ErrOverpayment
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO debtor_payments (debtor_id, amount, currency, rate_used, usd_equivalent, method, paid_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, id, entry.Amount, entry.Currency, entry.RateUsed, entry.USDEquivalent, entry.Method, entry.PaidAt)
	if err != nil {
		return nil, txErr(err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE debtors
		SET debt_amount = debt_amount - $2, version = version + 1, updated_at = now()
		WHERE id = $1
	`, id, converted)
	if err != nil {
		return nil, txErr(err)
	}

	updated, err := loadDebtor(ctx, tx, id, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, txErr(err)
	}
	return updated, nil
}

// SettleDebtor closes the account in one serializable transaction: a credit
// sale per line, product decrements, budget profit and debtor removal all
// commit together or not at all. A line whose product row is gone is
// reported as skipped rather than failing the settlement.
func (s *Store) SettleDebtor(ctx context.Context, id string, version int64, entry domain.PaymentEntry) (*store.SettlementResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	debtor, err := loadDebtor(ctx, tx, id, true)
	if err != nil {
		return nil, err
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

	now := time.Now().UTC()
	result := &store.SettlementResult{ProfitSum: decimal.Zero}
	dueDate := debtor.DueDate
	for _, line := range debtor.Products {
		var purchasePrice decimal.Decimal
		err := tx.QueryRowContext(ctx, `
			SELECT purchase_price FROM products WHERE id = $1 FOR UPDATE
		`, line.ProductID).Scan(&purchasePrice)
		if errors.Is(err, sql.ErrNoRows) {
			result.Lines = append(result.Lines, domain.LineOutcome{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Status:      domain.LineOutcomeSkippedMissing,
			})
			continue
		}
		if err != nil {
			return nil, txErr(err)
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		total := line.SellPrice.Mul(qty)
		totalSum, err := currency.Convert(total, debtor.Currency, domain.CurrencySum, entry.RateUsed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
		}
		buyPrice, err := currency.Convert(purchasePrice, domain.CurrencySum, debtor.Currency, entry.RateUsed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrSettlementFailed, err)
		}
		profitSum, err := currency.Convert(line.SellPrice.Sub(buyPrice).Mul(qty), debtor.Currency, domain.CurrencySum, entry.RateUsed)
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
		if err := insertSale(ctx, tx, sale); err != nil {
			return nil, txErr(err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = GREATEST(quantity - $2, 0), updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Quantity)
		if err != nil {
			return nil, txErr(err)
		}

		result.Sales = append(result.Sales, sale)
		result.Lines = append(result.Lines, domain.LineOutcome{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Status:      domain.LineOutcomeSettled,
			SaleID:      sale.ID,
		})
		result.ProfitSum = result.ProfitSum.Add(profitSum)
	}

	if !result.ProfitSum.IsZero() {
		if err := addToBudgetTx(ctx, tx, result.ProfitSum); err != nil {
			return nil, txErr(err)
		}
	}
	if err := deleteDebtorTx(ctx, tx, id); err != nil {
		return nil, txErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, txErr(err)
	}
	return result, nil
}

func (s *Store) ReturnDebtorProduct(ctx context.Context, id string, version int64, productID string, qty int) (*store.ReturnResult, error) {
	if qty <= 0 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockDebtorVersion(ctx, tx, id, version); err != nil {
		return nil, err
	}

	var lineNo int64
	var line domain.DebtLine
	err = tx.QueryRowContext(ctx, `
		SELECT line_no, product_id, product_name, sell_price, quantity
		FROM debtor_products
		WHERE debtor_id = $1 AND product_id = $2
		ORDER BY line_no
		LIMIT 1
		FOR UPDATE
	`, id, productID).Scan(&lineNo, &line.ProductID, &line.ProductName, &line.SellPrice, &line.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s not on debtor", store.ErrNotFound, productID)
		}
		return nil, err
	}
	if qty > line.Quantity {
		return nil, fmt.Errorf("%w: return quantity %d exceeds credited %d", store.ErrValidation, qty, line.Quantity)
	}

	var st domain.StoreStock
	err = tx.QueryRowContext(ctx, `
		INSERT INTO store_stocks (id, product_id, product_name, quantity, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (product_id) DO UPDATE
		SET quantity = store_stocks.quantity + EXCLUDED.quantity,
		    product_name = COALESCE(NULLIF(EXCLUDED.product_name, ''), store_stocks.product_name),
		    updated_at = now()
		RETURNING id, product_id, product_name, quantity, updated_at
	`, xid.New("stk"), line.ProductID, line.ProductName, qty).
		Scan(&st.ID, &st.ProductID, &st.ProductName, &st.Quantity, &st.UpdatedAt)
	if err != nil {
		return nil, txErr(err)
	}

	if qty == line.Quantity {
		_, err = tx.ExecContext(ctx, `DELETE FROM debtor_products WHERE debtor_id = $1 AND line_no = $2`, id, lineNo)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE debtor_products SET quantity = quantity - $3 WHERE debtor_id = $1 AND line_no = $2
		`, id, lineNo, qty)
	}
	if err != nil {
		return nil, txErr(err)
	}

	reduction := line.SellPrice.Mul(decimal.NewFromInt(int64(qty)))
	var remainingDebt decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE debtors
		SET debt_amount = GREATEST(debt_amount - $2, 0), version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING debt_amount
	`, id, reduction).Scan(&remainingDebt)
	if err != nil {
		return nil, txErr(err)
	}

	var remainingLines int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*) FROM debtor_products WHERE debtor_id = $1
	`, id).Scan(&remainingLines)
	if err != nil {
		return nil, err
	}

	result := &store.ReturnResult{Restocked: qty, Stock: &st}
	// Zero lines or zero debt both close the account.
	if remainingLines == 0 || remainingDebt.IsZero() {
		if err := deleteDebtorTx(ctx, tx, id); err != nil {
			return nil, txErr(err)
		}
		result.DebtorDeleted = true
	} else {
		debtor, err := loadDebtor(ctx, tx, id, false)
		if err != nil {
			return nil, err
		}
		result.Debtor = debtor
	}

	if err := tx.Commit(); err != nil {
		return nil, txErr(err)
	}
	return result, nil
}

func (s *Store) DeleteDebtor(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT true FROM debtors WHERE id = $1`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := deleteDebtorTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- sales ---

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ProductID == "" || sale.Quantity <= 0 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if err := insertSale(ctx, s.db, sale); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, sell_price, buy_price, quantity, currency,
		       total_price, total_price_sum, payment_method, debtor_name, debtor_phone,
		       debt_due_date, created_at
		FROM sales
		WHERE id = $1
	`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	query := `
		SELECT id, product_id, product_name, sell_price, buy_price, quantity, currency,
		       total_price, total_price_sum, payment_method, debtor_name, debtor_phone,
		       debt_due_date, created_at
		FROM sales
	`
	args := []any{}
	switch {
	case !from.IsZero() && !to.IsZero():
		query += ` WHERE created_at >= $1 AND created_at < $2`
		args = append(args, from, to)
	case !from.IsZero():
		query += ` WHERE created_at >= $1`
		args = append(args, from)
	case !to.IsZero():
		query += ` WHERE created_at < $1`
		args = append(args, to)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sales
		SET sell_price = $2, buy_price = $3, currency = $4, total_price = $5, total_price_sum = $6
		WHERE id = $1
	`, sale.ID, sale.SellPrice, sale.BuyPrice, sale.Currency, sale.TotalPrice, sale.TotalPriceSum)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := sale
	return &updated, nil
}

// --- budget, expenses, exchange rate ---

func (s *Store) GetBudget(ctx context.Context) (*domain.Budget, error) {
	var budget domain.Budget
	err := s.db.QueryRowContext(ctx, `
		SELECT total, updated_at FROM budgets WHERE id = 1
	`).Scan(&budget.Total, &budget.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &domain.Budget{Total: decimal.Zero, UpdatedAt: time.Now().UTC()}, nil
		}
		return nil, err
	}
	return &budget, nil
}

func (s *Store) AddToBudget(ctx context.Context, delta decimal.Decimal) (*domain.Budget, error) {
	var budget domain.Budget
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO budgets (id, total, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET total = budgets.total + EXCLUDED.total, updated_at = now()
		RETURNING total, updated_at
	`, delta).Scan(&budget.Total, &budget.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &budget, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.Reason == "" || expense.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrValidation
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO expenses (id, reason, amount, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING created_at
	`, expense.ID, expense.Reason, expense.Amount).Scan(&expense.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, reason, amount, created_at
		FROM expenses
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 64)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.Reason, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) GetExchangeRate(ctx context.Context) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	err := s.db.QueryRowContext(ctx, `
		SELECT rate, updated_at FROM exchange_rates WHERE id = 1
	`).Scan(&rate.Rate, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rate, nil
}

func (s *Store) SetExchangeRate(ctx context.Context, rate decimal.Decimal) (*domain.ExchangeRate, error) {
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, store.ErrValidation
	}
	var updated domain.ExchangeRate
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exchange_rates (id, rate, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()
		RETURNING rate, updated_at
	`, rate).Scan(&updated.Rate, &updated.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// --- auth accounts ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = domain.RoleSeller
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES (lower($1), $2, $3, true, now())
	`, user.Username, user.Password, user.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	if username == "" || password == "" {
		return store.ErrValidation
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = lower($1)
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- helpers ---

type saleScanner interface {
	Scan(dest ...any) error
}

func scanSale(row saleScanner) (*domain.Sale, error) {
	var sale domain.Sale
	var debtorName, debtorPhone sql.NullString
	var dueDate sql.NullTime
	err := row.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.SellPrice, &sale.BuyPrice,
		&sale.Quantity, &sale.Currency, &sale.TotalPrice, &sale.TotalPriceSum, &sale.PaymentMethod,
		&debtorName, &debtorPhone, &dueDate, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}
	sale.DebtorName = debtorName.String
	sale.DebtorPhone = debtorPhone.String
	if dueDate.Valid {
		d := dueDate.Time
		sale.DebtDueDate = &d
	}
	return &sale, nil
}

func insertSale(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, sale domain.Sale) error {
	var dueDate any
	if sale.DebtDueDate != nil {
		dueDate = *sale.DebtDueDate
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sales (id, product_id, product_name, sell_price, buy_price, quantity, currency,
			total_price, total_price_sum, payment_method, debtor_name, debtor_phone, debt_due_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.ProductID, sale.ProductName, sale.SellPrice, sale.BuyPrice, sale.Quantity,
		sale.Currency, sale.TotalPrice, sale.TotalPriceSum, sale.PaymentMethod,
		sale.DebtorName, sale.DebtorPhone, dueDate, sale.CreatedAt)
	return err
}

// loadDebtor reads a debtor with lines and payment log. With lock set the
// debtor row is locked FOR UPDATE; the caller must then be inside a tx.
func loadDebtor(ctx context.Context, q querier, id string, lock bool) (*domain.Debtor, error) {
	query := `
		SELECT id, name, phone, currency, debt_amount, due_date, version, created_at, updated_at
		FROM debtors
		WHERE id = $1
	`
	if lock {
		query += ` FOR UPDATE`
	}

	var d domain.Debtor
	err := q.QueryRowContext(ctx, query, id).
		Scan(&d.ID, &d.Name, &d.Phone, &d.Currency, &d.DebtAmount, &d.DueDate, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lineRows, err := q.QueryContext(ctx, `
		SELECT product_id, product_name, sell_price, quantity
		FROM debtor_products
		WHERE debtor_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}
	d.Products = make([]domain.DebtLine, 0, 4)
	for lineRows.Next() {
		var line domain.DebtLine
		if err := lineRows.Scan(&line.ProductID, &line.ProductName, &line.SellPrice, &line.Quantity); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		d.Products = append(d.Products, line)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()

	payRows, err := q.QueryContext(ctx, `
		SELECT amount, currency, rate_used, usd_equivalent, method, paid_at
		FROM debtor_payments
		WHERE debtor_id = $1
		ORDER BY paid_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	d.PaymentLog = make([]domain.PaymentEntry, 0, 4)
	for payRows.Next() {
		var entry domain.PaymentEntry
		if err := payRows.Scan(&entry.Amount, &entry.Currency, &entry.RateUsed, &entry.USDEquivalent, &entry.Method, &entry.PaidAt); err != nil {
			_ = payRows.Close()
			return nil, err
		}
		d.PaymentLog = append(d.PaymentLog, entry)
	}
	if err := payRows.Err(); err != nil {
		_ = payRows.Close()
		return nil, err
	}
	_ = payRows.Close()

	return &d, nil
}

func lockDebtorVersion(ctx context.Context, tx *sql.Tx, id string, version int64) error {
	var current int64
	err := tx.QueryRowContext(ctx, `
		SELECT version FROM debtors WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if current != version {
		return store.ErrVersionConflict
	}
	return nil
}

func deleteDebtorTx(ctx context.Context, tx *sql.Tx, id string) error {
	for _, query := range []string{
		`DELETE FROM debtor_payments WHERE debtor_id = $1`,
		`DELETE FROM debtor_products WHERE debtor_id = $1`,
		`DELETE FROM debtors WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return err
		}
	}
	return nil
}

func addToBudgetTx(ctx context.Context, tx *sql.Tx, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO budgets (id, total, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET total = budgets.total + EXCLUDED.total, updated_at = now()
	`, delta)
	return err
}

// txErr maps a serialization failure onto the version-conflict sentinel so
// callers can retry the way they do for optimistic lock misses.
func txErr(err error) error {
	if isSerializationFailure(err) {
		return store.ErrVersionConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}
