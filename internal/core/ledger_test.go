package core

import (
	"errors"
	"testing"
	"time"
)

func TestBalanceEffect(t *testing.T) {
	expense := Transaction{ID: "t1", Type: Expense, PaymentMethod: MethodBank, Amount: dec("150"), FromAccountID: "a1"}
	accID, delta := BalanceEffect(expense)
	if accID != "a1" || !delta.Equal(dec("-150")) {
		t.Fatalf("expense effect: %s %s", accID, delta)
	}

	income := Transaction{ID: "t2", Type: Income, PaymentMethod: MethodBank, Amount: dec("500"), ToAccountID: "a2"}
	accID, delta = BalanceEffect(income)
	if accID != "a2" || !delta.Equal(dec("500")) {
		t.Fatalf("income effect: %s %s", accID, delta)
	}

	// Transfers and non-bank settlement never touch a balance here.
	transfer := Transaction{ID: "t3", Type: Transfer, PaymentMethod: MethodBank, Amount: dec("10"), FromAccountID: "a1"}
	if accID, delta = BalanceEffect(transfer); accID != "" || !delta.IsZero() {
		t.Fatalf("transfer effect should be empty: %s %s", accID, delta)
	}
	cash := Transaction{ID: "t4", Type: Expense, PaymentMethod: MethodCash, Amount: dec("10")}
	if accID, delta = BalanceEffect(cash); accID != "" || !delta.IsZero() {
		t.Fatalf("cash effect should be empty: %s %s", accID, delta)
	}
}

func TestNewWithdrawal(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	accounts := []BankAccount{{ID: "a1", Name: "Main", Balance: dec("850"), Currency: EUR}}

	w, err := NewWithdrawal(accounts, "a1", dec("200"), now)
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if w.AccountID != "a1" || !w.Amount.Equal(dec("200")) {
		t.Fatalf("withdrawal effect: %+v", w)
	}
	if w.Audit.Type != Transfer || w.Audit.Category != TransferCategory {
		t.Fatalf("audit line must be a TRANSFER with the transfer category: %+v", w.Audit)
	}
	if w.Audit.FromAccountID != "a1" || !w.Audit.Amount.Equal(dec("200")) {
		t.Fatalf("audit line fields: %+v", w.Audit)
	}
	if w.Audit.ID == "" {
		t.Fatalf("audit line needs an id")
	}
}

func TestNewWithdrawalRejectsBadInput(t *testing.T) {
	now := time.Now()
	accounts := []BankAccount{{ID: "a1", Name: "Main", Balance: dec("850"), Currency: EUR}}

	if _, err := NewWithdrawal(accounts, "a1", dec("0"), now); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
	}
	if _, err := NewWithdrawal(accounts, "a1", dec("-5"), now); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
	}
	if _, err := NewWithdrawal(accounts, "nope", dec("10"), now); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}
