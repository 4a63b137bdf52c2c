package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dokon/backend/internal/cache"
	"dokon/backend/internal/domain"
	"dokon/backend/internal/rates"
	"dokon/backend/internal/service"
	"dokon/backend/internal/store/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "admin-test-pass")
	t.Setenv("SEED_SELLER_PASSWORD", "seller-test-pass")

	repo := memory.NewSeeded()
	provider := rates.NewProvider(repo, cache.NoopRateCache{}, time.Minute)
	svc := service.New(repo, provider, 2*time.Second)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	api := New(svc, auth, "http://127.0.0.1:3000")

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, data
}

func login(t *testing.T, srv *httptest.Server, username, password string) string {
	t.Helper()

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if status != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", status, body)
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: "admin",
		Password: "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doJSON(t, srv, http.MethodGet, "/api/v1/products", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	status, _ = doJSON(t, srv, http.MethodGet, "/api/v1/products", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}
}

func TestSellerCannotReadBudget(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "seller", "seller-test-pass")

	status, _ := doJSON(t, srv, http.MethodGet, "/api/v1/budget", token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403 for seller on budget, got %d", status)
	}
}

func TestDebtorLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "seller", "seller-test-pass")

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/debtors", token, domain.DebtorCreateRequest{
		Name:     "Aziz Karimov",
		Phone:    "+998901234567",
		Currency: domain.CurrencySum,
		DueDate:  time.Now().Add(30 * 24 * time.Hour),
		Products: []domain.DebtorCreateLine{
			{ProductID: "prd-non", ProductName: "Non", SellPrice: decimal.RequireFromString("4000"), Quantity: 2},
		},
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	var created struct {
		Debtor domain.Debtor `json:"debtor"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("decode debtor: %v", err)
	}
	id := created.Debtor.ID
	if id == "" {
		t.Fatalf("expected debtor id in response")
	}

	// Partial payment leaves the account open.
	status, body = doJSON(t, srv, http.MethodPost, "/api/v1/debtors/"+id+"/payments", token, map[string]any{
		"amount":   "3000",
		"currency": "sum",
	})
	if status != http.StatusOK {
		t.Fatalf("partial payment: expected 200, got %d: %s", status, body)
	}
	var payResp domain.DebtPaymentResponse
	if err := json.Unmarshal(body, &payResp); err != nil {
		t.Fatalf("decode payment response: %v", err)
	}
	if payResp.Settled {
		t.Fatalf("partial payment must not settle")
	}

	// Overpayment is rejected with 422.
	status, _ = doJSON(t, srv, http.MethodPost, "/api/v1/debtors/"+id+"/payments", token, map[string]any{
		"amount":   "999999",
		"currency": "sum",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("overpayment: expected 422, got %d", status)
	}

	// Paying the remainder settles and removes the debtor.
	status, body = doJSON(t, srv, http.MethodPost, "/api/v1/debtors/"+id+"/payments", token, map[string]any{
		"amount":   "5000",
		"currency": "sum",
	})
	if status != http.StatusOK {
		t.Fatalf("settlement: expected 200, got %d: %s", status, body)
	}
	if err := json.Unmarshal(body, &payResp); err != nil {
		t.Fatalf("decode settlement response: %v", err)
	}
	if !payResp.Settled {
		t.Fatalf("expected settlement")
	}

	status, _ = doJSON(t, srv, http.MethodGet, "/api/v1/debtors/"+id, token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after settlement, got %d", status)
	}
}

func TestSalesStatsRejectsUnknownPeriod(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "seller", "seller-test-pass")

	status, _ := doJSON(t, srv, http.MethodGet, "/api/v1/sales?period=hourly", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", status)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv, "seller", "seller-test-pass")

	status, _ := doJSON(t, srv, http.MethodPost, "/api/v1/store-stock", token, map[string]any{
		"product_id": "prd-non",
		"quantity":   5,
		"surprise":   true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", status)
	}
}

func TestAdminCreatesSellerAccount(t *testing.T) {
	srv := newTestServer(t)
	adminToken := login(t, srv, "admin", "admin-test-pass")

	status, body := doJSON(t, srv, http.MethodPost, "/api/v1/users/sellers", adminToken, domain.UserCreateRequest{
		Username: "yordamchi",
		Password: "juda-maxfiy-parol",
		Role:     domain.RoleSeller,
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", status, body)
	}

	// The new account can log in immediately.
	token := login(t, srv, "yordamchi", "juda-maxfiy-parol")
	status, _ = doJSON(t, srv, http.MethodGet, "/api/v1/products", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected new seller to list products, got %d", status)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/products", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://127.0.0.1:3000" {
		t.Fatalf("unexpected CORS origin %q", got)
	}
}
