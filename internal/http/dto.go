package http

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"casacore/internal/core"
	"casacore/internal/services"
)

const dateLayout = "2006-01-02"

// parseDate accepts a plain date or a full RFC 3339 timestamp. Dates are
// the common case; the ledger does not care about time of day.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// orNewID keeps client-supplied ids so retried requests stay idempotent
// upserts, and generates one otherwise.
func orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

type transactionRequest struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Type          string          `json:"type"`
	PaymentMethod string          `json:"payment_method"`
	IsAccrual     bool            `json:"is_accrual"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
}

func (r transactionRequest) toDomain() (core.Transaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:            orNewID(r.ID),
		Date:          date,
		Amount:        r.Amount,
		Currency:      core.Currency(r.Currency),
		Description:   r.Description,
		Category:      r.Category,
		Type:          core.TransactionType(r.Type),
		PaymentMethod: core.PaymentMethod(r.PaymentMethod),
		IsAccrual:     r.IsAccrual,
		TaxAmount:     r.TaxAmount,
		FromAccountID: r.FromAccountID,
		ToAccountID:   r.ToAccountID,
	}, nil
}

type transactionResponse struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Type          string          `json:"type"`
	PaymentMethod string          `json:"payment_method"`
	IsAccrual     bool            `json:"is_accrual"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	FromAccountID string          `json:"from_account_id,omitempty"`
	ToAccountID   string          `json:"to_account_id,omitempty"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Date:          fmtDate(t.Date),
		Amount:        t.Amount,
		Currency:      string(t.Currency),
		Description:   t.Description,
		Category:      t.Category,
		Type:          string(t.Type),
		PaymentMethod: string(t.PaymentMethod),
		IsAccrual:     t.IsAccrual,
		TaxAmount:     t.TaxAmount,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
	}
}

func toTransactionResponses(ts []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

type accountRequest struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

func (r accountRequest) toDomain() core.BankAccount {
	return core.BankAccount{
		ID:       orNewID(r.ID),
		Name:     r.Name,
		Balance:  r.Balance,
		Currency: core.Currency(r.Currency),
	}
}

type accountResponse struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Balance            decimal.Decimal `json:"balance"`
	Currency           string          `json:"currency"`
	LastReconciledDate string          `json:"last_reconciled_date,omitempty"`
}

func toAccountResponse(a core.BankAccount) accountResponse {
	return accountResponse{
		ID:                 a.ID,
		Name:               a.Name,
		Balance:            a.Balance,
		Currency:           string(a.Currency),
		LastReconciledDate: fmtDate(a.LastReconciledDate),
	}
}

type assetRequest struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Location         string          `json:"location"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	Currency         string          `json:"currency"`
	AnnualGrowthRate decimal.Decimal `json:"annual_growth_rate"`
	PurchaseDate     string          `json:"purchase_date"`
	Notes            string          `json:"notes"`
}

func (r assetRequest) toDomain() (core.Asset, error) {
	purchased, err := parseDate(r.PurchaseDate)
	if err != nil {
		return core.Asset{}, err
	}
	return core.Asset{
		ID:               orNewID(r.ID),
		Name:             r.Name,
		Type:             core.AssetType(r.Type),
		Location:         r.Location,
		PurchasePrice:    r.PurchasePrice,
		CurrentValue:     r.CurrentValue,
		Currency:         core.Currency(r.Currency),
		AnnualGrowthRate: r.AnnualGrowthRate,
		PurchaseDate:     purchased,
		Notes:            r.Notes,
	}, nil
}

type assetResponse struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Location         string          `json:"location"`
	PurchasePrice    decimal.Decimal `json:"purchase_price"`
	CurrentValue     decimal.Decimal `json:"current_value"`
	Currency         string          `json:"currency"`
	AnnualGrowthRate decimal.Decimal `json:"annual_growth_rate"`
	PurchaseDate     string          `json:"purchase_date,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

func toAssetResponse(a core.Asset) assetResponse {
	return assetResponse{
		ID:               a.ID,
		Name:             a.Name,
		Type:             string(a.Type),
		Location:         a.Location,
		PurchasePrice:    a.PurchasePrice,
		CurrentValue:     a.CurrentValue,
		Currency:         string(a.Currency),
		AnnualGrowthRate: a.AnnualGrowthRate,
		PurchaseDate:     fmtDate(a.PurchaseDate),
		Notes:            a.Notes,
	}
}

type billRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	DueDate     string          `json:"due_date"`
	IsPaid      bool            `json:"is_paid"`
	Category    string          `json:"category"`
	IsRecurring bool            `json:"is_recurring"`
	Frequency   string          `json:"frequency"`
}

func (r billRequest) toDomain() (core.Bill, error) {
	due, err := parseDate(r.DueDate)
	if err != nil {
		return core.Bill{}, err
	}
	return core.Bill{
		ID:          orNewID(r.ID),
		Name:        r.Name,
		Amount:      r.Amount,
		Currency:    core.Currency(r.Currency),
		DueDate:     due,
		IsPaid:      r.IsPaid,
		Category:    r.Category,
		IsRecurring: r.IsRecurring,
		Frequency:   r.Frequency,
	}, nil
}

type billResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	DueDate     string          `json:"due_date"`
	IsPaid      bool            `json:"is_paid"`
	Status      string          `json:"status"`
	Category    string          `json:"category"`
	IsRecurring bool            `json:"is_recurring"`
	Frequency   string          `json:"frequency,omitempty"`
}

func toBillResponse(b core.Bill, now time.Time) billResponse {
	return billResponse{
		ID:          b.ID,
		Name:        b.Name,
		Amount:      b.Amount,
		Currency:    string(b.Currency),
		DueDate:     fmtDate(b.DueDate),
		IsPaid:      b.IsPaid,
		Status:      string(b.Status(now)),
		Category:    b.Category,
		IsRecurring: b.IsRecurring,
		Frequency:   b.Frequency,
	}
}

type paymentLine struct {
	ID     string          `json:"id"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

func (p paymentLine) toDomain() (core.PaymentLine, error) {
	date, err := parseDate(p.Date)
	if err != nil {
		return core.PaymentLine{}, err
	}
	return core.PaymentLine{ID: orNewID(p.ID), Date: date, Amount: p.Amount, Note: p.Note}, nil
}

func toPaymentLines(lines []core.PaymentLine) []paymentLine {
	out := make([]paymentLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, paymentLine{ID: l.ID, Date: fmtDate(l.Date), Amount: l.Amount, Note: l.Note})
	}
	return out
}

type dealRequest struct {
	ID                string          `json:"id"`
	DeveloperID       string          `json:"developer_id"`
	CustomerName      string          `json:"customer_name"`
	TotalSaleValue    decimal.Decimal `json:"total_sale_value"`
	CommissionPct     decimal.Decimal `json:"commission_pct"`
	Status            string          `json:"status"`
	Currency          string          `json:"currency"`
	SaleDate          string          `json:"sale_date"`
	CommissionPayouts []paymentLine   `json:"commission_payouts"`
	CustomerPayments  []paymentLine   `json:"customer_payments"`
}

func (r dealRequest) toDomain() (core.RealEstateDeal, error) {
	saleDate, err := parseDate(r.SaleDate)
	if err != nil {
		return core.RealEstateDeal{}, err
	}
	payouts := make([]core.PaymentLine, 0, len(r.CommissionPayouts))
	for _, p := range r.CommissionPayouts {
		line, err := p.toDomain()
		if err != nil {
			return core.RealEstateDeal{}, err
		}
		payouts = append(payouts, line)
	}
	payments := make([]core.PaymentLine, 0, len(r.CustomerPayments))
	for _, p := range r.CustomerPayments {
		line, err := p.toDomain()
		if err != nil {
			return core.RealEstateDeal{}, err
		}
		payments = append(payments, line)
	}
	return core.RealEstateDeal{
		ID:                orNewID(r.ID),
		DeveloperID:       r.DeveloperID,
		CustomerName:      r.CustomerName,
		TotalSaleValue:    r.TotalSaleValue,
		CommissionPct:     r.CommissionPct,
		Status:            core.DealStatus(r.Status),
		Currency:          core.Currency(r.Currency),
		SaleDate:          saleDate,
		CommissionPayouts: payouts,
		CustomerPayments:  payments,
	}, nil
}

type dealResponse struct {
	ID                 string          `json:"id"`
	DeveloperID        string          `json:"developer_id,omitempty"`
	CustomerName       string          `json:"customer_name"`
	TotalSaleValue     decimal.Decimal `json:"total_sale_value"`
	CommissionPct      decimal.Decimal `json:"commission_pct"`
	OurGrossCommission decimal.Decimal `json:"our_gross_commission"`
	OurNetCommission   decimal.Decimal `json:"our_net_commission"`
	Status             string          `json:"status"`
	Currency           string          `json:"currency"`
	SaleDate           string          `json:"sale_date,omitempty"`
	CommissionPayouts  []paymentLine   `json:"commission_payouts"`
	CustomerPayments   []paymentLine   `json:"customer_payments"`
}

func toDealResponse(d core.RealEstateDeal) dealResponse {
	return dealResponse{
		ID:                 d.ID,
		DeveloperID:        d.DeveloperID,
		CustomerName:       d.CustomerName,
		TotalSaleValue:     d.TotalSaleValue,
		CommissionPct:      d.CommissionPct,
		OurGrossCommission: d.OurGrossCommission,
		OurNetCommission:   d.OurNetCommission,
		Status:             string(d.Status),
		Currency:           string(d.Currency),
		SaleDate:           fmtDate(d.SaleDate),
		CommissionPayouts:  toPaymentLines(d.CommissionPayouts),
		CustomerPayments:   toPaymentLines(d.CustomerPayments),
	}
}

type farmOperationRequest struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Currency    string          `json:"currency"`
}

func (r farmOperationRequest) toDomain() (core.FarmOperation, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return core.FarmOperation{}, err
	}
	return core.FarmOperation{
		ID:          orNewID(r.ID),
		Date:        date,
		Type:        core.FarmOperationType(r.Type),
		Category:    r.Category,
		Amount:      r.Amount,
		Description: r.Description,
		Currency:    core.Currency(r.Currency),
	}, nil
}

type farmOperationResponse struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Currency    string          `json:"currency"`
}

func toFarmOperationResponse(o core.FarmOperation) farmOperationResponse {
	return farmOperationResponse{
		ID:          o.ID,
		Date:        fmtDate(o.Date),
		Type:        string(o.Type),
		Category:    o.Category,
		Amount:      o.Amount,
		Description: o.Description,
		Currency:    string(o.Currency),
	}
}

type familyMemberRequest struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	BirthDate           string          `json:"birth_date"`
	MonthlySalary       decimal.Decimal `json:"monthly_salary"`
	MonthlyBenefits     decimal.Decimal `json:"monthly_benefits"`
	MonthlyChildBenefit decimal.Decimal `json:"monthly_child_benefit"`
}

func (r familyMemberRequest) toDomain() (core.FamilyMember, error) {
	birth, err := parseDate(r.BirthDate)
	if err != nil {
		return core.FamilyMember{}, err
	}
	return core.FamilyMember{
		ID:                  orNewID(r.ID),
		Name:                r.Name,
		BirthDate:           birth,
		MonthlySalary:       r.MonthlySalary,
		MonthlyBenefits:     r.MonthlyBenefits,
		MonthlyChildBenefit: r.MonthlyChildBenefit,
	}, nil
}

type familyMemberResponse struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	BirthDate           string          `json:"birth_date,omitempty"`
	MonthlySalary       decimal.Decimal `json:"monthly_salary"`
	MonthlyBenefits     decimal.Decimal `json:"monthly_benefits"`
	MonthlyChildBenefit decimal.Decimal `json:"monthly_child_benefit"`
}

func toFamilyMemberResponse(m core.FamilyMember) familyMemberResponse {
	return familyMemberResponse{
		ID:                  m.ID,
		Name:                m.Name,
		BirthDate:           fmtDate(m.BirthDate),
		MonthlySalary:       m.MonthlySalary,
		MonthlyBenefits:     m.MonthlyBenefits,
		MonthlyChildBenefit: m.MonthlyChildBenefit,
	}
}

type userConfigRequest struct {
	FamilyName        string `json:"family_name"`
	Location          string `json:"location"`
	Timezone          string `json:"timezone"`
	PreferredCurrency string `json:"preferred_currency"`
	Language          string `json:"language"`
	Role              string `json:"role"`
}

func (r userConfigRequest) toDomain() core.UserConfig {
	return core.UserConfig{
		FamilyName:        r.FamilyName,
		Location:          r.Location,
		Timezone:          r.Timezone,
		PreferredCurrency: core.Currency(r.PreferredCurrency),
		Language:          r.Language,
		Role:              core.Role(r.Role),
	}
}

type userConfigResponse struct {
	FamilyName         string `json:"family_name"`
	Location           string `json:"location"`
	Timezone           string `json:"timezone"`
	PreferredCurrency  string `json:"preferred_currency"`
	Language           string `json:"language"`
	Role               string `json:"role"`
	SubscriptionStatus string `json:"subscription_status"`
}

func toUserConfigResponse(uc core.UserConfig) userConfigResponse {
	return userConfigResponse{
		FamilyName:         uc.FamilyName,
		Location:           uc.Location,
		Timezone:           uc.Timezone,
		PreferredCurrency:  string(uc.PreferredCurrency),
		Language:           uc.Language,
		Role:               string(uc.Role),
		SubscriptionStatus: string(uc.SubscriptionStatus),
	}
}

type budgetLineResponse struct {
	Category string          `json:"category"`
	Budget   decimal.Decimal `json:"budget"`
	Actual   decimal.Decimal `json:"actual"`
	Status   string          `json:"status"`
}

type billSummaryResponse struct {
	PaidSum      decimal.Decimal `json:"paid_sum"`
	PendingSum   decimal.Decimal `json:"pending_sum"`
	OverdueSum   decimal.Decimal `json:"overdue_sum"`
	OverdueCount int             `json:"overdue_count"`
	ProgressPct  decimal.Decimal `json:"progress_pct"`
}

type farmSummaryResponse struct {
	IncomeTotal  decimal.Decimal `json:"income_total"`
	ExpenseTotal decimal.Decimal `json:"expense_total"`
	Net          decimal.Decimal `json:"net"`
}

type dashboardResponse struct {
	NetLiquidity           decimal.Decimal      `json:"net_liquidity"`
	CashOnHand             decimal.Decimal      `json:"cash_on_hand"`
	WealthValue            decimal.Decimal      `json:"wealth_value"`
	MonthlyNet             decimal.Decimal      `json:"monthly_net"`
	MonthlyAverageIncome   decimal.Decimal      `json:"monthly_average_income"`
	MonthlyAverageExpense  decimal.Decimal      `json:"monthly_average_expense"`
	HouseholdMonthlyIncome decimal.Decimal      `json:"household_monthly_income"`
	BudgetLines            []budgetLineResponse `json:"budget_lines"`
	Bills                  billSummaryResponse  `json:"bills"`
	BusinessRevenueTotal   decimal.Decimal      `json:"business_revenue_total"`
	Farm                   farmSummaryResponse  `json:"farm"`
}

func toDashboardResponse(d services.Dashboard) dashboardResponse {
	lines := make([]budgetLineResponse, 0, len(d.BudgetLines))
	for _, l := range d.BudgetLines {
		lines = append(lines, budgetLineResponse{
			Category: l.Category,
			Budget:   l.Budget,
			Actual:   l.Actual,
			Status:   string(l.Status),
		})
	}
	return dashboardResponse{
		NetLiquidity:           d.NetLiquidity,
		CashOnHand:             d.CashOnHand,
		WealthValue:            d.WealthValue,
		MonthlyNet:             d.MonthlyNet,
		MonthlyAverageIncome:   d.MonthlyAverageIncome,
		MonthlyAverageExpense:  d.MonthlyAverageExpense,
		HouseholdMonthlyIncome: d.HouseholdMonthlyIncome,
		BudgetLines:            lines,
		Bills: billSummaryResponse{
			PaidSum:      d.Bills.PaidSum,
			PendingSum:   d.Bills.PendingSum,
			OverdueSum:   d.Bills.OverdueSum,
			OverdueCount: d.Bills.OverdueCount,
			ProgressPct:  d.Bills.ProgressPct,
		},
		BusinessRevenueTotal: d.BusinessRevenueTotal,
		Farm: farmSummaryResponse{
			IncomeTotal:  d.Farm.IncomeTotal,
			ExpenseTotal: d.Farm.ExpenseTotal,
			Net:          d.Farm.Net,
		},
	}
}
