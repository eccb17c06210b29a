package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"casacore/internal/core"
)

// Mirror table names. The remote mirror exposes one row-shaped table per
// entity; the local schema uses the same names so queue rows carry the
// destination table directly.
const (
	TableTransactions = "transactions"
	TableBankAccounts = "bank_accounts"
	TableAssets       = "assets"
	TableBills        = "bills"
	TableDeals        = "real_estate_deals"
	TableFarmOps      = "farm_operations"
	TableFamily       = "family_members"
)

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Row builders produce the row-shaped payload stored on the sync queue
// and upserted into the mirror. Keys match the remote column names.

func transactionRow(t core.Transaction) map[string]any {
	return map[string]any{
		"id":              t.ID,
		"date":            fmtTime(t.Date),
		"amount":          t.Amount.String(),
		"currency":        string(t.Currency),
		"description":     t.Description,
		"category":        t.Category,
		"type":            string(t.Type),
		"payment_method":  string(t.PaymentMethod),
		"is_accrual":      t.IsAccrual,
		"tax_amount":      t.TaxAmount.String(),
		"from_account_id": t.FromAccountID,
		"to_account_id":   t.ToAccountID,
	}
}

func accountRow(a core.BankAccount) map[string]any {
	return map[string]any{
		"id":                   a.ID,
		"name":                 a.Name,
		"balance":              a.Balance.String(),
		"currency":             string(a.Currency),
		"last_reconciled_date": fmtTime(a.LastReconciledDate),
	}
}

func assetRow(a core.Asset) map[string]any {
	return map[string]any{
		"id":                 a.ID,
		"name":               a.Name,
		"type":               string(a.Type),
		"location":           a.Location,
		"purchase_price":     a.PurchasePrice.String(),
		"current_value":      a.CurrentValue.String(),
		"currency":           string(a.Currency),
		"annual_growth_rate": a.AnnualGrowthRate.String(),
		"purchase_date":      fmtTime(a.PurchaseDate),
		"notes":              a.Notes,
	}
}

func billRow(b core.Bill) map[string]any {
	return map[string]any{
		"id":           b.ID,
		"name":         b.Name,
		"amount":       b.Amount.String(),
		"currency":     string(b.Currency),
		"due_date":     fmtTime(b.DueDate),
		"is_paid":      b.IsPaid,
		"category":     b.Category,
		"is_recurring": b.IsRecurring,
		"frequency":    b.Frequency,
	}
}

func dealRow(d core.RealEstateDeal) map[string]any {
	payouts, _ := json.Marshal(d.CommissionPayouts)
	payments, _ := json.Marshal(d.CustomerPayments)
	return map[string]any{
		"id":                 d.ID,
		"developer_id":       d.DeveloperID,
		"customer_name":      d.CustomerName,
		"total_sale_value":   d.TotalSaleValue.String(),
		"commission_pct":     d.CommissionPct.String(),
		"gross_commission":   d.OurGrossCommission.String(),
		"net_commission":     d.OurNetCommission.String(),
		"status":             string(d.Status),
		"currency":           string(d.Currency),
		"sale_date":          fmtTime(d.SaleDate),
		"commission_payouts": string(payouts),
		"customer_payments":  string(payments),
	}
}

func farmOpRow(o core.FarmOperation) map[string]any {
	return map[string]any{
		"id":          o.ID,
		"date":        fmtTime(o.Date),
		"type":        string(o.Type),
		"category":    o.Category,
		"amount":      o.Amount.String(),
		"description": o.Description,
		"currency":    string(o.Currency),
	}
}

func familyMemberRow(m core.FamilyMember) map[string]any {
	return map[string]any{
		"id":                    m.ID,
		"name":                  m.Name,
		"birth_date":            fmtTime(m.BirthDate),
		"monthly_salary":        m.MonthlySalary.String(),
		"monthly_benefits":      m.MonthlyBenefits.String(),
		"monthly_child_benefit": m.MonthlyChildBenefit.String(),
	}
}
