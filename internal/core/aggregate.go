package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FallbackCategory is the bucket for expense categories that do not
	// appear in the budget table.
	FallbackCategory = "Other"

	// DefaultAverageWindowMonths is the window used when the caller does
	// not ask for a specific one.
	DefaultAverageWindowMonths = 3
)

const (
	BudgetOK   BudgetStatus = "OK"
	BudgetOver BudgetStatus = "Over"
)

type (
	BudgetStatus string

	BudgetLine struct {
		Category string
		Budget   decimal.Decimal
		Actual   decimal.Decimal
		Status   BudgetStatus
	}

	BillSummary struct {
		PaidSum      decimal.Decimal
		PendingSum   decimal.Decimal
		OverdueSum   decimal.Decimal
		OverdueCount int
		ProgressPct  decimal.Decimal
	}

	FarmSummary struct {
		IncomeTotal  decimal.Decimal
		ExpenseTotal decimal.Decimal
		Net          decimal.Decimal
	}
)

// AggregationError names the record that stopped an aggregation. Well-typed
// but incomplete records never produce one; only malformed required fields
// and currencies with no conversion rule do.
type AggregationError struct {
	RecordID string
	Reason   string
	Err      error
}

func (e *AggregationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("aggregation failed for record %q: %s: %v", e.RecordID, e.Reason, e.Err)
	}
	return fmt.Sprintf("aggregation failed for record %q: %s", e.RecordID, e.Reason)
}

func (e *AggregationError) Unwrap() error { return e.Err }

// Aggregator derives read-only views from the record collections. Every
// operation is pure, O(n) over its inputs, recomputed in full on each call,
// and never mutates a collection. All sums are normalized to the reporting
// currency first; no sum ever mixes currencies.
type Aggregator struct {
	norm Normalizer
}

func NewAggregator(norm Normalizer) Aggregator {
	return Aggregator{norm: norm}
}

func (a Aggregator) reporting(recordID string, amount decimal.Decimal, currency Currency) (decimal.Decimal, error) {
	v, err := a.norm.ToReporting(amount, currency)
	if err != nil {
		return decimal.Zero, &AggregationError{RecordID: recordID, Reason: "unconvertible currency", Err: err}
	}
	return v, nil
}

// NetLiquidity is the sum of bank balances minus the sum of all recorded
// tax amounts across the full transaction history. The tax side is not
// scoped to an accrual period; that conflation of stock and flow is the
// documented current behavior.
func (a Aggregator) NetLiquidity(accounts []BankAccount, transactions []Transaction) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, acc := range accounts {
		if acc.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: acc.ID, Reason: "missing account id"}
		}
		v, err := a.reporting(acc.ID, acc.Balance, acc.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	for _, tx := range transactions {
		if tx.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: tx.ID, Reason: "missing transaction id"}
		}
		if tx.TaxAmount.IsZero() {
			continue
		}
		v, err := a.reporting(tx.ID, tx.TaxAmount, tx.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Sub(v)
	}
	return total, nil
}

// MonthlyAverage divides the normalized sum of transactions of the given
// type by the window length. An empty input yields zero, not an error.
func (a Aggregator) MonthlyAverage(transactions []Transaction, typ TransactionType, windowMonths int) (decimal.Decimal, error) {
	if windowMonths <= 0 {
		windowMonths = DefaultAverageWindowMonths
	}
	sum := decimal.Zero
	for _, tx := range transactions {
		if tx.Type != typ {
			continue
		}
		if tx.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: tx.ID, Reason: "missing transaction id"}
		}
		v, err := a.reporting(tx.ID, tx.Amount, tx.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(windowMonths))), nil
}

// MonthlyNet is income minus expense for the calendar month of now.
func (a Aggregator) MonthlyNet(transactions []Transaction, now time.Time) (decimal.Decimal, error) {
	net := decimal.Zero
	for _, tx := range transactions {
		if !sameMonth(tx.Date, now) {
			continue
		}
		if tx.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: tx.ID, Reason: "missing transaction id"}
		}
		v, err := a.reporting(tx.ID, tx.Amount, tx.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		switch tx.Type {
		case Income:
			net = net.Add(v)
		case Expense:
			net = net.Sub(v)
		}
	}
	return net, nil
}

// BudgetVsActual buckets the current calendar month's expenses by category
// and compares them against the budget table. Categories missing from the
// table land in the fallback bucket. Over means strictly greater.
func (a Aggregator) BudgetVsActual(transactions []Transaction, budget map[string]decimal.Decimal, now time.Time) ([]BudgetLine, error) {
	actuals := make(map[string]decimal.Decimal, len(budget)+1)
	for _, tx := range transactions {
		if tx.Type != Expense || !sameMonth(tx.Date, now) {
			continue
		}
		if tx.ID == "" {
			return nil, &AggregationError{RecordID: tx.ID, Reason: "missing transaction id"}
		}
		v, err := a.reporting(tx.ID, tx.Amount, tx.Currency)
		if err != nil {
			return nil, err
		}
		cat := tx.Category
		if _, known := budget[cat]; !known {
			cat = FallbackCategory
		}
		actuals[cat] = actuals[cat].Add(v)
	}

	categories := make([]string, 0, len(budget))
	for cat := range budget {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	lines := make([]BudgetLine, 0, len(categories)+1)
	for _, cat := range categories {
		lines = append(lines, newBudgetLine(cat, budget[cat], actuals[cat]))
	}
	if other, ok := actuals[FallbackCategory]; ok {
		if _, budgeted := budget[FallbackCategory]; !budgeted {
			lines = append(lines, newBudgetLine(FallbackCategory, decimal.Zero, other))
		}
	}
	return lines, nil
}

func newBudgetLine(category string, budget, actual decimal.Decimal) BudgetLine {
	status := BudgetOK
	if actual.GreaterThan(budget) {
		status = BudgetOver
	}
	return BudgetLine{Category: category, Budget: budget, Actual: actual, Status: status}
}

// BillStatusSummary sums bills into their derived status buckets. The
// progress percentage is paid count over total count, zero for an empty
// set so there is never a division by zero.
func (a Aggregator) BillStatusSummary(bills []Bill, now time.Time) (BillSummary, error) {
	summary := BillSummary{
		PaidSum:     decimal.Zero,
		PendingSum:  decimal.Zero,
		OverdueSum:  decimal.Zero,
		ProgressPct: decimal.Zero,
	}
	if len(bills) == 0 {
		return summary, nil
	}
	paidCount := 0
	for _, b := range bills {
		if b.ID == "" {
			return BillSummary{}, &AggregationError{RecordID: b.ID, Reason: "missing bill id"}
		}
		v, err := a.reporting(b.ID, b.Amount, b.Currency)
		if err != nil {
			return BillSummary{}, err
		}
		switch b.Status(now) {
		case BillPaid:
			summary.PaidSum = summary.PaidSum.Add(v)
			paidCount++
		case BillOverdue:
			summary.OverdueSum = summary.OverdueSum.Add(v)
			summary.OverdueCount++
		default:
			summary.PendingSum = summary.PendingSum.Add(v)
		}
	}
	summary.ProgressPct = decimal.NewFromInt(int64(paidCount)).
		Div(decimal.NewFromInt(int64(len(bills)))).
		Mul(decimal.NewFromInt(100))
	return summary, nil
}

// BusinessRevenueTotal sums net commission across all deals regardless of
// status. Cancelled deals are included: that is the current behavior and
// it is pinned by tests, not silently corrected.
func (a Aggregator) BusinessRevenueTotal(deals []RealEstateDeal) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, d := range deals {
		if d.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: d.ID, Reason: "missing deal id"}
		}
		v, err := a.reporting(d.ID, d.OurNetCommission, d.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// WealthValue is the normalized sum of asset current values and bank
// balances.
func (a Aggregator) WealthValue(assets []Asset, accounts []BankAccount) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, as := range assets {
		if as.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: as.ID, Reason: "missing asset id"}
		}
		v, err := a.reporting(as.ID, as.CurrentValue, as.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	for _, acc := range accounts {
		if acc.ID == "" {
			return decimal.Zero, &AggregationError{RecordID: acc.ID, Reason: "missing account id"}
		}
		v, err := a.reporting(acc.ID, acc.Balance, acc.Currency)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// HouseholdMonthlyIncome sums salary, benefits and child benefit across
// family members. Member amounts are stored in the reporting currency.
func (a Aggregator) HouseholdMonthlyIncome(members []FamilyMember) decimal.Decimal {
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.MonthlySalary).Add(m.MonthlyBenefits).Add(m.MonthlyChildBenefit)
	}
	return total
}

// FarmSummary totals the farm ledger by operation type.
func (a Aggregator) FarmSummary(ops []FarmOperation) (FarmSummary, error) {
	summary := FarmSummary{
		IncomeTotal:  decimal.Zero,
		ExpenseTotal: decimal.Zero,
		Net:          decimal.Zero,
	}
	for _, op := range ops {
		if op.ID == "" {
			return FarmSummary{}, &AggregationError{RecordID: op.ID, Reason: "missing farm operation id"}
		}
		v, err := a.reporting(op.ID, op.Amount, op.Currency)
		if err != nil {
			return FarmSummary{}, err
		}
		if op.Type == FarmIncome {
			summary.IncomeTotal = summary.IncomeTotal.Add(v)
		} else {
			summary.ExpenseTotal = summary.ExpenseTotal.Add(v)
		}
	}
	summary.Net = summary.IncomeTotal.Sub(summary.ExpenseTotal)
	return summary, nil
}

func sameMonth(date, now time.Time) bool {
	return date.Year() == now.Year() && date.Month() == now.Month()
}
