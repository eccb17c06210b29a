package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "INCOME"
	Expense  TransactionType = "EXPENSE"
	Transfer TransactionType = "TRANSFER"

	MethodBank    PaymentMethod = "Bank"
	MethodCash    PaymentMethod = "Cash"
	MethodOnChain PaymentMethod = "OnChain"

	AssetProperty AssetType = "Property"
	AssetVehicle  AssetType = "Vehicle"
	AssetLand     AssetType = "Land"
	AssetOther    AssetType = "Other"

	DealReserved   DealStatus = "Reserved"
	DealContracted DealStatus = "Contracted"
	DealCompleted  DealStatus = "Completed"
	DealCancelled  DealStatus = "Cancelled"

	FarmIncome  FarmOperationType = "Income"
	FarmExpense FarmOperationType = "Expense"

	RoleUser       Role = "USER"
	RoleSuperAdmin Role = "SUPER_ADMIN"

	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"

	BillPaid    BillState = "paid"
	BillOverdue BillState = "overdue"
	BillPending BillState = "pending"
)

type (
	TransactionType    string
	PaymentMethod      string
	AssetType          string
	DealStatus         string
	FarmOperationType  string
	Role               string
	SubscriptionStatus string
	BillState          string

	// Transaction is a single ledger line. It is never mutated after
	// creation; the only lifecycle operation besides create is delete.
	Transaction struct {
		ID            string
		Date          time.Time
		Amount        decimal.Decimal
		Currency      Currency
		Description   string
		Category      string
		Type          TransactionType
		PaymentMethod PaymentMethod
		IsAccrual     bool
		TaxAmount     decimal.Decimal // zero when not recorded
		FromAccountID string
		ToAccountID   string
	}

	// BankAccount balance is mutated only by transaction effects,
	// withdrawals to cash, and manual reconciliation.
	BankAccount struct {
		ID                 string
		Name               string
		Balance            decimal.Decimal
		Currency           Currency
		LastReconciledDate time.Time
	}

	Asset struct {
		ID               string
		Name             string
		Type             AssetType
		Location         string
		PurchasePrice    decimal.Decimal
		CurrentValue     decimal.Decimal
		Currency         Currency
		AnnualGrowthRate decimal.Decimal // advisory, never auto-applied
		PurchaseDate     time.Time
		Notes            string
	}

	Bill struct {
		ID          string
		Name        string
		Amount      decimal.Decimal
		Currency    Currency
		DueDate     time.Time
		IsPaid      bool
		Category    string
		IsRecurring bool
		Frequency   string
	}

	PaymentLine struct {
		ID     string
		Date   time.Time
		Amount decimal.Decimal
		Note   string
	}

	RealEstateDeal struct {
		ID                 string
		DeveloperID        string
		CustomerName       string
		TotalSaleValue     decimal.Decimal
		CommissionPct      decimal.Decimal
		OurGrossCommission decimal.Decimal
		OurNetCommission   decimal.Decimal
		Status             DealStatus
		Currency           Currency
		SaleDate           time.Time
		CommissionPayouts  []PaymentLine
		CustomerPayments   []PaymentLine
	}

	// FarmOperation is a ledger line for the secondary business unit.
	// Kept in its own collection, no relation to Transaction.
	FarmOperation struct {
		ID          string
		Date        time.Time
		Type        FarmOperationType
		Category    string
		Amount      decimal.Decimal
		Description string
		Currency    Currency
	}

	// FamilyMember monthly amounts are stored in the reporting currency.
	FamilyMember struct {
		ID                  string
		Name                string
		BirthDate           time.Time
		MonthlySalary       decimal.Decimal
		MonthlyBenefits     decimal.Decimal
		MonthlyChildBenefit decimal.Decimal
	}

	UserConfig struct {
		FamilyName         string
		Location           string
		Timezone           string
		PreferredCurrency  Currency
		Language           string
		Role               Role
		SubscriptionStatus SubscriptionStatus
	}
)

var (
	ErrEmptyID            = errors.New("empty record id")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidType        = errors.New("invalid type")
	ErrMissingFromAccount = errors.New("bank expense requires a source account")
	ErrMissingToAccount   = errors.New("bank income requires a destination account")
)

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodBank, MethodCash, MethodOnChain:
		return true
	}
	return false
}

func (t AssetType) Valid() bool {
	switch t {
	case AssetProperty, AssetVehicle, AssetLand, AssetOther:
		return true
	}
	return false
}

func (s DealStatus) Valid() bool {
	switch s {
	case DealReserved, DealContracted, DealCompleted, DealCancelled:
		return true
	}
	return false
}

func (t FarmOperationType) Valid() bool {
	switch t {
	case FarmIncome, FarmExpense:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Currency.Valid() {
		return ErrInvalidCurrency
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !t.Type.Valid() || !t.PaymentMethod.Valid() {
		return ErrInvalidType
	}
	if t.TaxAmount.IsNegative() {
		return errors.New("tax amount cannot be negative")
	}
	// Bank-settled lines must reference the account they touch.
	if t.PaymentMethod == MethodBank {
		if t.Type == Expense && strings.TrimSpace(t.FromAccountID) == "" {
			return ErrMissingFromAccount
		}
		if t.Type == Income && strings.TrimSpace(t.ToAccountID) == "" {
			return ErrMissingToAccount
		}
	}
	return nil
}

func (a BankAccount) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Currency.Valid() {
		return ErrInvalidCurrency
	}
	return nil
}

func (a Asset) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Type.Valid() {
		return ErrInvalidType
	}
	if a.PurchasePrice.IsNegative() || a.CurrentValue.IsNegative() {
		return ErrInvalidAmount
	}
	if !a.Currency.Valid() {
		return ErrInvalidCurrency
	}
	return nil
}

func (b Bill) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !b.Currency.Valid() {
		return ErrInvalidCurrency
	}
	if b.DueDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Status derives the display state. It is never stored: paid wins over any
// date comparison, otherwise a bill due strictly before today is overdue.
func (b Bill) Status(now time.Time) BillState {
	if b.IsPaid {
		return BillPaid
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	due := time.Date(b.DueDate.Year(), b.DueDate.Month(), b.DueDate.Day(), 0, 0, 0, 0, now.Location())
	if due.Before(today) {
		return BillOverdue
	}
	return BillPending
}

func (d RealEstateDeal) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(d.CustomerName) == "" {
		return ErrEmptyName
	}
	if d.TotalSaleValue.IsNegative() {
		return ErrInvalidAmount
	}
	if d.CommissionPct.IsNegative() || d.CommissionPct.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("commission percentage out of range")
	}
	if !d.Status.Valid() {
		return ErrInvalidType
	}
	if !d.Currency.Valid() {
		return ErrInvalidCurrency
	}
	return nil
}

func (o FarmOperation) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return ErrEmptyID
	}
	if o.Date.IsZero() {
		return ErrInvalidDate
	}
	if !o.Type.Valid() {
		return ErrInvalidType
	}
	if !o.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !o.Currency.Valid() {
		return ErrInvalidCurrency
	}
	return nil
}

func (m FamilyMember) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if m.MonthlySalary.IsNegative() || m.MonthlyBenefits.IsNegative() || m.MonthlyChildBenefit.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// GrossCommission applies the deal invariant: gross = total * pct / 100.
func GrossCommission(totalSaleValue, commissionPct decimal.Decimal) decimal.Decimal {
	return totalSaleValue.Mul(commissionPct).Div(decimal.NewFromInt(100))
}

// NetCommission applies the configured split ratio to a gross commission.
func NetCommission(gross, split decimal.Decimal) decimal.Decimal {
	return gross.Mul(split)
}
