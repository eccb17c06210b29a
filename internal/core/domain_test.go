package core

import (
	"errors"
	"testing"
	"time"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		ID:            "t1",
		Date:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Amount:        dec("150"),
		Currency:      EUR,
		Description:   "weekly shop",
		Category:      "Groceries",
		Type:          Expense,
		PaymentMethod: MethodBank,
		FromAccountID: "a1",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"missing id", func(tx *Transaction) { tx.ID = "" }, ErrEmptyID},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, ErrInvalidDate},
		{"zero amount", func(tx *Transaction) { tx.Amount = dec("0") }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = dec("-5") }, ErrInvalidAmount},
		{"bad currency", func(tx *Transaction) { tx.Currency = "XRP" }, ErrInvalidCurrency},
		{"empty description", func(tx *Transaction) { tx.Description = "  " }, ErrEmptyDescription},
		{"bad type", func(tx *Transaction) { tx.Type = "REFUND" }, ErrInvalidType},
		{"bank expense without source", func(tx *Transaction) { tx.FromAccountID = "" }, ErrMissingFromAccount},
		{"bank income without destination", func(tx *Transaction) {
			tx.Type = Income
			tx.ToAccountID = ""
		}, ErrMissingToAccount},
	}
	for _, tc := range cases {
		tx := good
		tc.mutate(&tx)
		if err := tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestTransactionValidateCryptoTagAccepted(t *testing.T) {
	// Crypto tags are valid on records; only the normalizer rejects them.
	tx := Transaction{
		ID:            "t1",
		Date:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Amount:        dec("0.5"),
		Currency:      BTC,
		Description:   "on-chain purchase",
		Type:          Expense,
		PaymentMethod: MethodOnChain,
	}
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestBillStatus(t *testing.T) {
	now := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	yesterday := now.AddDate(0, 0, -1)

	overdue := Bill{ID: "b1", Name: "Power", Amount: dec("100"), Currency: EUR, DueDate: yesterday}
	if got := overdue.Status(now); got != BillOverdue {
		t.Fatalf("expected overdue, got %s", got)
	}

	// Paid wins regardless of the due date.
	overdue.IsPaid = true
	if got := overdue.Status(now); got != BillPaid {
		t.Fatalf("expected paid, got %s", got)
	}

	dueToday := Bill{ID: "b2", Name: "Rent", Amount: dec("900"), Currency: EUR, DueDate: now}
	if got := dueToday.Status(now); got != BillPending {
		t.Fatalf("due today should be pending, got %s", got)
	}
}

func TestDealCommissionInvariant(t *testing.T) {
	gross := GrossCommission(dec("200000"), dec("5"))
	if !gross.Equal(dec("10000")) {
		t.Fatalf("expected gross 10000, got %s", gross)
	}
	net := NetCommission(gross, dec("0.70"))
	if !net.Equal(dec("7000")) {
		t.Fatalf("expected net 7000, got %s", net)
	}
}

func TestDealValidate(t *testing.T) {
	good := RealEstateDeal{
		ID:             "d1",
		CustomerName:   "Olsen",
		TotalSaleValue: dec("200000"),
		CommissionPct:  dec("5"),
		Status:         DealReserved,
		Currency:       EUR,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.CommissionPct = dec("101")
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range commission pct")
	}
	bad = good
	bad.Status = "Pending"
	if !errors.Is(bad.Validate(), ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType for unknown status")
	}
}

func TestFarmOperationValidate(t *testing.T) {
	good := FarmOperation{
		ID:       "f1",
		Date:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Type:     FarmIncome,
		Category: "Milk",
		Amount:   dec("1200"),
		Currency: NOK,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.Type = "Loss"
	if !errors.Is(bad.Validate(), ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType")
	}
}

func TestFamilyMemberValidate(t *testing.T) {
	good := FamilyMember{ID: "m1", Name: "Kari", MonthlySalary: dec("3000")}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := good
	bad.MonthlySalary = dec("-1")
	if !errors.Is(bad.Validate(), ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount")
	}
}
