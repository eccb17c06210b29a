package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferCategory is the category stamped on the audit transaction a
// cash withdrawal appends.
const TransferCategory = "Transfer"

var (
	ErrUnknownAccount    = errors.New("unknown bank account")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// BalanceEffect returns the account a transaction touches and the signed
// delta it applies to that account's balance. Bank expenses debit the
// source account, bank income credits the destination account. Transfers
// and non-bank settlement never touch a balance through this rule; cash
// movements route through NewWithdrawal instead.
func BalanceEffect(tx Transaction) (accountID string, delta decimal.Decimal) {
	if tx.PaymentMethod != MethodBank {
		return "", decimal.Zero
	}
	switch tx.Type {
	case Expense:
		return tx.FromAccountID, tx.Amount.Neg()
	case Income:
		return tx.ToAccountID, tx.Amount
	default:
		return "", decimal.Zero
	}
}

// Withdrawal is the fully validated effect set of a withdraw-to-cash
// event: one balance debit, one cash-on-hand credit and one TRANSFER
// audit line. Storage applies all three in a single transaction so either
// every effect is observed or none is.
type Withdrawal struct {
	AccountID string
	Amount    decimal.Decimal
	Audit     Transaction
}

// NewWithdrawal validates the preconditions against the known accounts
// and builds the effect set. A violation returns an error before any
// effect exists, so there is never a partial withdrawal.
func NewWithdrawal(accounts []BankAccount, fromAccountID string, amount decimal.Decimal, now time.Time) (Withdrawal, error) {
	if !amount.IsPositive() {
		return Withdrawal{}, ErrNonPositiveAmount
	}
	var source *BankAccount
	for i := range accounts {
		if accounts[i].ID == fromAccountID {
			source = &accounts[i]
			break
		}
	}
	if source == nil {
		return Withdrawal{}, ErrUnknownAccount
	}
	return Withdrawal{
		AccountID: source.ID,
		Amount:    amount,
		Audit: Transaction{
			ID:            uuid.NewString(),
			Date:          now,
			Amount:        amount,
			Currency:      source.Currency,
			Description:   "Cash withdrawal from " + source.Name,
			Category:      TransferCategory,
			Type:          Transfer,
			PaymentMethod: MethodBank,
			FromAccountID: source.ID,
		},
	}, nil
}
