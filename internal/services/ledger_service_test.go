package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"casacore/internal/core"
	"casacore/internal/storage"
)

func newTestService(t *testing.T) *LedgerService {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	norm, err := core.NewNormalizer(decimal.RequireFromString("11.5"))
	if err != nil {
		t.Fatalf("NewNormalizer() error = %v", err)
	}
	return NewLedgerService(repo, nil, norm, decimal.RequireFromString("0.70"))
}

func testAccount(id string, balance string) core.BankAccount {
	return core.BankAccount{
		ID:       id,
		Name:     "Checking",
		Balance:  decimal.RequireFromString(balance),
		Currency: core.EUR,
	}
}

func TestLedgerService_RecordTransaction_AppliesBalanceEffect(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateAccount(ctx, testAccount("acc-1", "1000")); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	tx := core.Transaction{
		ID:            "tx-1",
		Date:          time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("150"),
		Currency:      core.EUR,
		Description:   "Groceries",
		Category:      "Groceries",
		Type:          core.Expense,
		PaymentMethod: core.MethodBank,
		FromAccountID: "acc-1",
	}
	if err := svc.RecordTransaction(ctx, tx); err != nil {
		t.Fatalf("RecordTransaction() error = %v", err)
	}

	accounts, err := svc.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(accounts))
	}
	if got := accounts[0].Balance.String(); got != "850" {
		t.Errorf("balance after bank expense = %s, want 850", got)
	}
}

func TestLedgerService_RecordTransaction_Invalid(t *testing.T) {
	svc := newTestService(t)

	tx := core.Transaction{
		ID:            "tx-bad",
		Date:          time.Now(),
		Amount:        decimal.RequireFromString("50"),
		Currency:      core.EUR,
		Description:   "Missing source account",
		Type:          core.Expense,
		PaymentMethod: core.MethodBank,
	}
	err := svc.RecordTransaction(context.Background(), tx)
	if !errors.Is(err, core.ErrMissingFromAccount) {
		t.Errorf("RecordTransaction() error = %v, want ErrMissingFromAccount", err)
	}
}

func TestLedgerService_DeleteTransaction_NoReversal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.CreateAccount(ctx, testAccount("acc-1", "1000")); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	tx := core.Transaction{
		ID:            "tx-1",
		Date:          time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString("200"),
		Currency:      core.EUR,
		Description:   "Insurance",
		Type:          core.Expense,
		PaymentMethod: core.MethodBank,
		FromAccountID: "acc-1",
	}
	if err := svc.RecordTransaction(ctx, tx); err != nil {
		t.Fatalf("RecordTransaction() error = %v", err)
	}

	if err := svc.DeleteTransaction(ctx, "tx-1"); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}

	txs, err := svc.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected 0 transactions after delete, got %d", len(txs))
	}

	// The balance keeps the effect of the deleted transaction.
	accounts, _ := svc.ListAccounts(ctx)
	if got := accounts[0].Balance.String(); got != "800" {
		t.Errorf("balance after delete = %s, want 800 (no reversal)", got)
	}
}

func TestLedgerService_DeleteTransaction_Missing(t *testing.T) {
	svc := newTestService(t)
	err := svc.DeleteTransaction(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteTransaction() error = %v, want ErrNotFound", err)
	}
}

func TestLedgerService_WithdrawToCash(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	if err := svc.CreateAccount(ctx, testAccount("acc-1", "850")); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	audit, err := svc.WithdrawToCash(ctx, "acc-1", decimal.RequireFromString("200"), now)
	if err != nil {
		t.Fatalf("WithdrawToCash() error = %v", err)
	}
	if audit.Type != core.Transfer {
		t.Errorf("audit type = %s, want TRANSFER", audit.Type)
	}
	if audit.Category != core.TransferCategory {
		t.Errorf("audit category = %s, want %s", audit.Category, core.TransferCategory)
	}

	accounts, _ := svc.ListAccounts(ctx)
	if got := accounts[0].Balance.String(); got != "650" {
		t.Errorf("balance after withdrawal = %s, want 650", got)
	}

	d, err := svc.Dashboard(ctx, now)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if got := d.CashOnHand.String(); got != "200" {
		t.Errorf("cash on hand = %s, want 200", got)
	}

	txs, _ := svc.ListTransactions(ctx)
	if len(txs) != 1 {
		t.Fatalf("expected 1 audit transaction, got %d", len(txs))
	}
}

func TestLedgerService_WithdrawToCash_UnknownAccount(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.WithdrawToCash(context.Background(), "ghost", decimal.RequireFromString("50"), time.Now())
	if !errors.Is(err, core.ErrUnknownAccount) {
		t.Errorf("WithdrawToCash() error = %v, want ErrUnknownAccount", err)
	}
}

func TestLedgerService_ReconcileAccount(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)

	if err := svc.CreateAccount(ctx, testAccount("acc-1", "1234")); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if err := svc.ReconcileAccount(ctx, "acc-1", decimal.RequireFromString("1500"), now); err != nil {
		t.Fatalf("ReconcileAccount() error = %v", err)
	}

	accounts, _ := svc.ListAccounts(ctx)
	if got := accounts[0].Balance.String(); got != "1500" {
		t.Errorf("reconciled balance = %s, want 1500", got)
	}
	if !accounts[0].LastReconciledDate.Equal(now) {
		t.Errorf("last reconciled date = %v, want %v", accounts[0].LastReconciledDate, now)
	}
}

func TestLedgerService_SaveDeal_DerivesCommissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	deal := core.RealEstateDeal{
		ID:             "deal-1",
		CustomerName:   "Nordmann",
		TotalSaleValue: decimal.RequireFromString("200000"),
		CommissionPct:  decimal.RequireFromString("5"),
		Status:         core.DealCompleted,
		Currency:       core.EUR,
		SaleDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := svc.SaveDeal(ctx, deal); err != nil {
		t.Fatalf("SaveDeal() error = %v", err)
	}

	deals, err := svc.ListDeals(ctx)
	if err != nil {
		t.Fatalf("ListDeals() error = %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected 1 deal, got %d", len(deals))
	}
	if got := deals[0].OurGrossCommission.String(); got != "10000" {
		t.Errorf("gross commission = %s, want 10000", got)
	}
	if got := deals[0].OurNetCommission.String(); got != "7000" {
		t.Errorf("net commission = %s, want 7000", got)
	}
}

func TestLedgerService_Dashboard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if err := svc.CreateAccount(ctx, testAccount("acc-1", "1000")); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	bill := core.Bill{
		ID:       "bill-1",
		Name:     "Electricity",
		Amount:   decimal.RequireFromString("90"),
		Currency: core.EUR,
		DueDate:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := svc.SaveBill(ctx, bill); err != nil {
		t.Fatalf("SaveBill() error = %v", err)
	}
	member := core.FamilyMember{
		ID:            "fam-1",
		Name:          "Kari",
		MonthlySalary: decimal.RequireFromString("4200"),
	}
	if err := svc.SaveFamilyMember(ctx, member); err != nil {
		t.Fatalf("SaveFamilyMember() error = %v", err)
	}

	d, err := svc.Dashboard(ctx, now)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if got := d.NetLiquidity.String(); got != "1000" {
		t.Errorf("net liquidity = %s, want 1000", got)
	}
	if d.Bills.OverdueCount != 1 {
		t.Errorf("overdue count = %d, want 1", d.Bills.OverdueCount)
	}
	if got := d.HouseholdMonthlyIncome.String(); got != "4200" {
		t.Errorf("household income = %s, want 4200", got)
	}
	if len(d.BudgetLines) == 0 {
		t.Error("expected budget lines from the default budget table")
	}
}

func TestLedgerService_SetBillPaid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bill := core.Bill{
		ID:       "bill-1",
		Name:     "Internet",
		Amount:   decimal.RequireFromString("45"),
		Currency: core.EUR,
		DueDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := svc.SaveBill(ctx, bill); err != nil {
		t.Fatalf("SaveBill() error = %v", err)
	}
	if err := svc.SetBillPaid(ctx, "bill-1", true); err != nil {
		t.Fatalf("SetBillPaid() error = %v", err)
	}

	bills, _ := svc.ListBills(ctx)
	if !bills[0].IsPaid {
		t.Error("bill should be marked paid")
	}
}
