package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"casacore/internal/amqp"
	"casacore/internal/core"
	"casacore/internal/storage"
)

// DefaultBudget is the monthly expense budget table, in the reporting
// currency. TODO: move to user_config once the UI grows a budget editor.
var DefaultBudget = map[string]decimal.Decimal{
	"Groceries":  decimal.NewFromInt(600),
	"Transport":  decimal.NewFromInt(200),
	"Utilities":  decimal.NewFromInt(250),
	"Household":  decimal.NewFromInt(300),
	"Leisure":    decimal.NewFromInt(200),
	"Healthcare": decimal.NewFromInt(150),
}

// LedgerService orchestrates ledger mutations across SQLite and AMQP and
// serves the aggregated dashboard reads. Writes always land locally first;
// the AMQP nudge is best effort and its failure is never surfaced.
type LedgerService struct {
	storage         *storage.SQLiteRepository
	amqpClient      *amqp.Client
	aggregator      core.Aggregator
	commissionSplit decimal.Decimal
	budget          map[string]decimal.Decimal
}

func NewLedgerService(
	storage *storage.SQLiteRepository,
	amqpClient *amqp.Client,
	normalizer core.Normalizer,
	commissionSplit decimal.Decimal,
) *LedgerService {
	return &LedgerService{
		storage:         storage,
		amqpClient:      amqpClient,
		aggregator:      core.NewAggregator(normalizer),
		commissionSplit: commissionSplit,
		budget:          DefaultBudget,
	}
}

// RecordTransaction validates and saves a transaction, applying its
// balance effect atomically, then nudges the sync worker.
func (s *LedgerService) RecordTransaction(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("validate transaction: %w", err)
	}

	if err := s.storage.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}

	s.publishSyncNudge(ctx, storage.TableTransactions, tx.ID, storage.SyncOpUpsert)
	return nil
}

// DeleteTransaction removes a transaction without reversing its balance
// effect. Correcting a balance means recording a new transaction or
// reconciling the account.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.storage.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableTransactions, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.storage.GetTransaction(ctx, id)
}

func (s *LedgerService) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return s.storage.ListTransactions(ctx)
}

// WithdrawToCash moves money from a bank account into cash on hand. All
// three effects (debit, cash credit, audit transfer) commit together.
func (s *LedgerService) WithdrawToCash(ctx context.Context, accountID string, amount decimal.Decimal, now time.Time) (core.Transaction, error) {
	accounts, err := s.storage.ListAccounts(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("list accounts: %w", err)
	}

	w, err := core.NewWithdrawal(accounts, accountID, amount, now)
	if err != nil {
		return core.Transaction{}, err
	}

	if err := s.storage.Withdraw(ctx, w); err != nil {
		return core.Transaction{}, fmt.Errorf("apply withdrawal: %w", err)
	}

	s.publishSyncNudge(ctx, storage.TableBankAccounts, w.AccountID, storage.SyncOpUpsert)
	return w.Audit, nil
}

// ReconcileAccount overwrites a balance with an externally verified
// figure. No compensating transaction is created.
func (s *LedgerService) ReconcileAccount(ctx context.Context, accountID string, balance decimal.Decimal, now time.Time) error {
	if err := s.storage.ReconcileAccount(ctx, accountID, balance, now); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableBankAccounts, accountID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) CreateAccount(ctx context.Context, a core.BankAccount) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validate account: %w", err)
	}
	if err := s.storage.CreateAccount(ctx, a); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	s.publishSyncNudge(ctx, storage.TableBankAccounts, a.ID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	if err := s.storage.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableBankAccounts, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) GetAccount(ctx context.Context, id string) (core.BankAccount, error) {
	return s.storage.GetAccount(ctx, id)
}

func (s *LedgerService) ListAccounts(ctx context.Context) ([]core.BankAccount, error) {
	return s.storage.ListAccounts(ctx)
}

func (s *LedgerService) SaveAsset(ctx context.Context, a core.Asset) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("validate asset: %w", err)
	}
	if err := s.storage.UpsertAsset(ctx, a); err != nil {
		return fmt.Errorf("save asset: %w", err)
	}
	s.publishSyncNudge(ctx, storage.TableAssets, a.ID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) DeleteAsset(ctx context.Context, id string) error {
	if err := s.storage.DeleteAsset(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableAssets, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) ListAssets(ctx context.Context) ([]core.Asset, error) {
	return s.storage.ListAssets(ctx)
}

func (s *LedgerService) SaveBill(ctx context.Context, b core.Bill) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("validate bill: %w", err)
	}
	if err := s.storage.UpsertBill(ctx, b); err != nil {
		return fmt.Errorf("save bill: %w", err)
	}
	s.publishSyncNudge(ctx, storage.TableBills, b.ID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) SetBillPaid(ctx context.Context, id string, paid bool) error {
	if err := s.storage.SetBillPaid(ctx, id, paid); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableBills, id, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) DeleteBill(ctx context.Context, id string) error {
	if err := s.storage.DeleteBill(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableBills, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) ListBills(ctx context.Context) ([]core.Bill, error) {
	return s.storage.ListBills(ctx)
}

// SaveDeal derives both commission figures before persisting, so stored
// deals are always internally consistent with the configured split.
func (s *LedgerService) SaveDeal(ctx context.Context, d core.RealEstateDeal) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("validate deal: %w", err)
	}
	d.OurGrossCommission = core.GrossCommission(d.TotalSaleValue, d.CommissionPct)
	d.OurNetCommission = core.NetCommission(d.OurGrossCommission, s.commissionSplit)

	if err := s.storage.UpsertDeal(ctx, d); err != nil {
		return fmt.Errorf("save deal: %w", err)
	}
	s.publishSyncNudge(ctx, storage.TableDeals, d.ID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) DeleteDeal(ctx context.Context, id string) error {
	if err := s.storage.DeleteDeal(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableDeals, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) ListDeals(ctx context.Context) ([]core.RealEstateDeal, error) {
	return s.storage.ListDeals(ctx)
}

func (s *LedgerService) SaveFarmOperation(ctx context.Context, o core.FarmOperation) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("validate farm operation: %w", err)
	}
	if err := s.storage.UpsertFarmOperation(ctx, o); err != nil {
		return fmt.Errorf("save farm operation: %w", err)
	}
	s.publishSyncNudge(ctx, storage.TableFarmOps, o.ID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) DeleteFarmOperation(ctx context.Context, id string) error {
	if err := s.storage.DeleteFarmOperation(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableFarmOps, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) ListFarmOperations(ctx context.Context) ([]core.FarmOperation, error) {
	return s.storage.ListFarmOperations(ctx)
}

func (s *LedgerService) SaveFamilyMember(ctx context.Context, m core.FamilyMember) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validate family member: %w", err)
	}
	if err := s.storage.UpsertFamilyMember(ctx, m); err != nil {
		return fmt.Errorf("save family member: %w", err)
	}
	s.publishSyncNudge(ctx, storage.TableFamily, m.ID, storage.SyncOpUpsert)
	return nil
}

func (s *LedgerService) DeleteFamilyMember(ctx context.Context, id string) error {
	if err := s.storage.DeleteFamilyMember(ctx, id); err != nil {
		return err
	}
	s.publishSyncNudge(ctx, storage.TableFamily, id, storage.SyncOpDelete)
	return nil
}

func (s *LedgerService) ListFamilyMembers(ctx context.Context) ([]core.FamilyMember, error) {
	return s.storage.ListFamilyMembers(ctx)
}

func (s *LedgerService) GetUserConfig(ctx context.Context) (core.UserConfig, error) {
	return s.storage.GetUserConfig(ctx)
}

func (s *LedgerService) UpdateUserConfig(ctx context.Context, uc core.UserConfig) error {
	return s.storage.UpdateUserConfig(ctx, uc)
}

// Dashboard is the full aggregated read model, recomputed from the record
// collections on every call.
type Dashboard struct {
	NetLiquidity           decimal.Decimal
	CashOnHand             decimal.Decimal
	WealthValue            decimal.Decimal
	MonthlyNet             decimal.Decimal
	MonthlyAverageIncome   decimal.Decimal
	MonthlyAverageExpense  decimal.Decimal
	HouseholdMonthlyIncome decimal.Decimal
	BudgetLines            []core.BudgetLine
	Bills                  core.BillSummary
	BusinessRevenueTotal   decimal.Decimal
	Farm                   core.FarmSummary
}

// Dashboard assembles every aggregate view. A single malformed record
// fails the whole read with an error naming that record.
func (s *LedgerService) Dashboard(ctx context.Context, now time.Time) (Dashboard, error) {
	var d Dashboard

	transactions, err := s.storage.ListTransactions(ctx)
	if err != nil {
		return d, err
	}
	accounts, err := s.storage.ListAccounts(ctx)
	if err != nil {
		return d, err
	}
	assets, err := s.storage.ListAssets(ctx)
	if err != nil {
		return d, err
	}
	bills, err := s.storage.ListBills(ctx)
	if err != nil {
		return d, err
	}
	deals, err := s.storage.ListDeals(ctx)
	if err != nil {
		return d, err
	}
	farmOps, err := s.storage.ListFarmOperations(ctx)
	if err != nil {
		return d, err
	}
	members, err := s.storage.ListFamilyMembers(ctx)
	if err != nil {
		return d, err
	}

	if d.CashOnHand, err = s.storage.CashOnHand(ctx); err != nil {
		return d, err
	}
	if d.NetLiquidity, err = s.aggregator.NetLiquidity(accounts, transactions); err != nil {
		return d, err
	}
	if d.WealthValue, err = s.aggregator.WealthValue(assets, accounts); err != nil {
		return d, err
	}
	if d.MonthlyNet, err = s.aggregator.MonthlyNet(transactions, now); err != nil {
		return d, err
	}
	if d.MonthlyAverageIncome, err = s.aggregator.MonthlyAverage(transactions, core.Income, core.DefaultAverageWindowMonths); err != nil {
		return d, err
	}
	if d.MonthlyAverageExpense, err = s.aggregator.MonthlyAverage(transactions, core.Expense, core.DefaultAverageWindowMonths); err != nil {
		return d, err
	}
	if d.BudgetLines, err = s.aggregator.BudgetVsActual(transactions, s.budget, now); err != nil {
		return d, err
	}
	if d.Bills, err = s.aggregator.BillStatusSummary(bills, now); err != nil {
		return d, err
	}
	if d.BusinessRevenueTotal, err = s.aggregator.BusinessRevenueTotal(deals); err != nil {
		return d, err
	}
	if d.Farm, err = s.aggregator.FarmSummary(farmOps); err != nil {
		return d, err
	}
	d.HouseholdMonthlyIncome = s.aggregator.HouseholdMonthlyIncome(members)

	return d, nil
}

// SetSubscriptionStatus is driven by verified billing webhooks only; the
// regular config update path cannot touch the subscription field.
func (s *LedgerService) SetSubscriptionStatus(ctx context.Context, status core.SubscriptionStatus) error {
	return s.storage.SetSubscriptionStatus(ctx, status)
}

// SyncStats reports queue depth per status for the operator endpoints.
func (s *LedgerService) SyncStats(ctx context.Context) (storage.SyncStats, error) {
	return s.storage.SyncQueueStats(ctx)
}

// RetrySync resets failed queue items to pending. The worker's poll loop
// picks them up; no nudge is published.
func (s *LedgerService) RetrySync(ctx context.Context) (int64, error) {
	return s.storage.RetryFailedSyncs(ctx)
}

func (s *LedgerService) publishSyncNudge(ctx context.Context, table, recordID, operation string) {
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping sync nudge")
		return
	}
	// Queue ID zero means "scan pending"; the worker drains the queue
	// rather than chasing one item.
	if err := s.amqpClient.PublishRecordSync(ctx, 0, table, recordID, operation); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync nudge",
			"table", table, "record_id", recordID, "error", err)
		// Don't fail the request - the record is saved locally and the
		// poll loop will pick the queue item up.
	}
}

// Close closes both storage and AMQP connections
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
