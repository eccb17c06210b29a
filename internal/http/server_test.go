package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"casacore/internal/advisory"
	"casacore/internal/billing"
	"casacore/internal/core"
	"casacore/internal/services"
	"casacore/internal/storage"
)

type fakeAdvisor struct{}

func (fakeAdvisor) AssetGrowthAdvice(ctx context.Context, asset core.Asset) (advisory.GrowthAdvice, error) {
	return advisory.GrowthAdvice{
		AnnualGrowthPct: decimal.RequireFromString("3.5"),
		Reasoning:       "Stable area.",
	}, nil
}

func (fakeAdvisor) ScanReceipt(ctx context.Context, image []byte, mimeType string) ([]advisory.ReceiptLine, error) {
	return []advisory.ReceiptLine{{Description: "Milk", Amount: decimal.RequireFromString("2.5")}}, nil
}

func (fakeAdvisor) Forecast(ctx context.Context, ops []core.FarmOperation) (advisory.FarmForecast, error) {
	return advisory.FarmForecast{ForecastLiters: decimal.RequireFromString("12000")}, nil
}

func newTestServer(t *testing.T, advisor Advisor) (*Server, *services.LedgerService) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}

	norm, err := core.NewNormalizer(decimal.RequireFromString("11.5"))
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}
	ledger := services.NewLedgerService(repo, nil, norm, decimal.RequireFromString("0.70"))
	t.Cleanup(func() { ledger.Close() })

	srv := NewServer(":0", ledger, billing.NewService(billing.Config{}), advisor)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, ledger
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}
}

func TestTransactionFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"id": "acc-1", "name": "Checking", "balance": 1000, "currency": "EUR"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"id": "tx-1", "date": "2025-06-10", "amount": 150, "currency": "EUR",
		  "description": "Groceries", "category": "Groceries", "type": "EXPENSE",
		  "payment_method": "Bank", "from_account_id": "acc-1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create transaction status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/accounts", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list accounts status = %d", rr.Code)
	}
	var accounts []accountResponse
	decodeResponse(t, rr, &accounts)
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if got := accounts[0].Balance.String(); got != "850" {
		t.Errorf("balance after expense = %s, want 850", got)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/transactions/tx-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get transaction status = %d", rr.Code)
	}
	var tx transactionResponse
	decodeResponse(t, rr, &tx)
	if tx.Description != "Groceries" {
		t.Errorf("transaction description = %q, want Groceries", tx.Description)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/accounts/acc-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get account status = %d", rr.Code)
	}
	var account accountResponse
	decodeResponse(t, rr, &account)
	if got := account.Balance.String(); got != "850" {
		t.Errorf("account balance = %s, want 850", got)
	}

	// Delete leaves the balance untouched.
	rr = doJSON(t, srv, http.MethodDelete, "/api/transactions/tx-1", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete transaction status = %d", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodGet, "/api/accounts", "")
	decodeResponse(t, rr, &accounts)
	if got := accounts[0].Balance.String(); got != "850" {
		t.Errorf("balance after delete = %s, want 850", got)
	}
}

func TestCreateTransaction_MissingAccount(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"id": "tx-1", "date": "2025-06-10", "amount": 50, "currency": "EUR",
		  "description": "Groceries", "type": "EXPENSE", "payment_method": "Bank"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteTransaction_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodDelete, "/api/transactions/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestGetTransaction_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodGet, "/api/transactions/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get transaction status = %d, want 404", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodGet, "/api/accounts/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get account status = %d, want 404", rr.Code)
	}
}

func TestWithdraw(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"id": "acc-1", "name": "Checking", "balance": 500, "currency": "EUR"}`)

	rr := doJSON(t, srv, http.MethodPost, "/api/accounts/acc-1/withdraw", `{"amount": 200}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("withdraw status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var audit transactionResponse
	decodeResponse(t, rr, &audit)
	if audit.Type != string(core.Transfer) {
		t.Errorf("audit type = %s, want TRANSFER", audit.Type)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/accounts/acc-1/withdraw", `{"amount": -5}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative withdraw status = %d, want 422", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/accounts/missing/withdraw", `{"amount": 10}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown account withdraw status = %d, want 404", rr.Code)
	}
}

func TestReconcile(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"id": "acc-1", "name": "Checking", "balance": 500, "currency": "EUR"}`)

	rr := doJSON(t, srv, http.MethodPost, "/api/accounts/acc-1/reconcile", `{"balance": 1234.56}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reconcile status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/accounts", "")
	var accounts []accountResponse
	decodeResponse(t, rr, &accounts)
	if got := accounts[0].Balance.String(); got != "1234.56" {
		t.Errorf("reconciled balance = %s, want 1234.56", got)
	}
	if accounts[0].LastReconciledDate == "" {
		t.Error("last reconciled date should be set")
	}
}

func TestBillPaidToggle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/bills",
		`{"id": "bill-1", "name": "Power", "amount": 80, "currency": "EUR", "due_date": "2025-01-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create bill status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/bills/bill-1/paid", `{"paid": true}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("set paid status = %d", rr.Code)
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/bills", "")
	var bills []billResponse
	decodeResponse(t, rr, &bills)
	if len(bills) != 1 || !bills[0].IsPaid {
		t.Fatalf("bill should be paid: %+v", bills)
	}
	if bills[0].Status != string(core.BillPaid) {
		t.Errorf("status = %s, want paid", bills[0].Status)
	}
}

func TestSaveDeal_DerivesCommission(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/deals",
		`{"id": "deal-1", "customer_name": "Ola Nordmann", "total_sale_value": 200000,
		  "commission_pct": 5, "status": "Contracted", "currency": "EUR"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create deal status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var deal dealResponse
	decodeResponse(t, rr, &deal)
	if got := deal.OurGrossCommission.String(); got != "10000" {
		t.Errorf("gross commission = %s, want 10000", got)
	}
	if got := deal.OurNetCommission.String(); got != "7000" {
		t.Errorf("net commission = %s, want 7000", got)
	}
}

func TestDashboard(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	doJSON(t, srv, http.MethodPost, "/api/accounts",
		`{"id": "acc-1", "name": "Checking", "balance": 1000, "currency": "EUR"}`)

	rr := doJSON(t, srv, http.MethodGet, "/api/dashboard", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var d dashboardResponse
	decodeResponse(t, rr, &d)
	if got := d.NetLiquidity.String(); got != "1000" {
		t.Errorf("net liquidity = %s, want 1000", got)
	}
	if len(d.BudgetLines) == 0 {
		t.Error("expected budget lines in dashboard")
	}
}

func TestUpdateConfig(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPut, "/api/config",
		`{"family_name": "Nordmann", "location": "Oslo", "timezone": "Europe/Oslo",
		  "preferred_currency": "NOK", "language": "no"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update config status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, srv, http.MethodGet, "/api/config", "")
	var uc userConfigResponse
	decodeResponse(t, rr, &uc)
	if uc.FamilyName != "Nordmann" {
		t.Errorf("family name = %s, want Nordmann", uc.FamilyName)
	}
	// Subscription status is webhook-driven and must survive profile updates.
	if uc.SubscriptionStatus != string(core.SubscriptionExpired) {
		t.Errorf("subscription status = %s, want expired", uc.SubscriptionStatus)
	}
}

func TestUpdateConfig_RoleChangeRequiresOperator(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPut, "/api/config",
		`{"family_name": "Nordmann", "role": "SUPER_ADMIN"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("role escalation status = %d, want 403", rr.Code)
	}
}

func TestBillingNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/billing/checkout", `{"email": "user@example.com"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("checkout status = %d, want 503", rr.Code)
	}
}

func TestAdvisoryGating(t *testing.T) {
	srv, ledger := newTestServer(t, fakeAdvisor{})
	ctx := context.Background()

	// Default subscription is expired.
	rr := doJSON(t, srv, http.MethodPost, "/api/advisory/farm-forecast", "")
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("forecast without subscription status = %d, want 402", rr.Code)
	}

	if err := ledger.SetSubscriptionStatus(ctx, core.SubscriptionActive); err != nil {
		t.Fatalf("SetSubscriptionStatus() error = %v", err)
	}

	rr = doJSON(t, srv, http.MethodPost, "/api/advisory/farm-forecast", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("forecast status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var forecast advisory.FarmForecast
	decodeResponse(t, rr, &forecast)
	if got := forecast.ForecastLiters.String(); got != "12000" {
		t.Errorf("forecast liters = %s, want 12000", got)
	}
}

func TestAdvisoryNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodPost, "/api/advisory/farm-forecast", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestSyncEndpointsRequireOperator(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rr := doJSON(t, srv, http.MethodGet, "/api/sync/stats", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("sync stats status = %d, want 403", rr.Code)
	}
	rr = doJSON(t, srv, http.MethodPost, "/api/sync/retry", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("sync retry status = %d, want 403", rr.Code)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2025-06-10", false},
		{"2025-06-10T12:30:00Z", false},
		{"", false},
		{"10/06/2025", true},
		{"yesterday", true},
	}
	for _, tt := range tests {
		_, err := parseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}
