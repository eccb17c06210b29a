package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"casacore/internal/core"
	"casacore/internal/mirror/memory"
	"casacore/internal/storage"
)

func newTestProcessor(t *testing.T) (*SyncProcessor, *storage.SQLiteRepository, *memory.Store) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	store := memory.NewStore()
	return NewSyncProcessor(repo, store, DefaultSyncProcessorConfig()), repo, store
}

func enqueueTestAccount(t *testing.T, repo *storage.SQLiteRepository, id string) {
	t.Helper()
	account := core.BankAccount{
		ID:       id,
		Name:     "Checking",
		Balance:  decimal.RequireFromString("100"),
		Currency: core.EUR,
	}
	if err := repo.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 5 {
		t.Errorf("expected MaxRetries 5, got %d", config.MaxRetries)
	}
	if config.CleanupAge != 24*time.Hour {
		t.Errorf("expected CleanupAge 24h, got %v", config.CleanupAge)
	}
}

func TestRetryDelay(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour
	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, 30 * time.Second},
		{1, 1 * time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{20, time.Hour},
	}

	for _, tt := range tests {
		if got := retryDelay(tt.attempts, base, max); got != tt.expected {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempts, got, tt.expected)
		}
	}
}

func TestSyncProcessor_ProcessBatch_Upsert(t *testing.T) {
	processor, repo, store := newTestProcessor(t)
	ctx := context.Background()

	enqueueTestAccount(t, repo, "acc-1")
	processor.ProcessBatch(ctx)

	if _, ok := store.Row("bank_accounts", "acc-1"); !ok {
		t.Fatal("account row should be in the mirror after processing")
	}

	stats, err := repo.SyncQueueStats(ctx)
	if err != nil {
		t.Fatalf("SyncQueueStats() error = %v", err)
	}
	if stats.Completed != 1 {
		t.Errorf("completed = %d, want 1", stats.Completed)
	}
	if stats.Pending != 0 {
		t.Errorf("pending = %d, want 0", stats.Pending)
	}
}

func TestSyncProcessor_ProcessBatch_Delete(t *testing.T) {
	processor, repo, store := newTestProcessor(t)
	ctx := context.Background()

	enqueueTestAccount(t, repo, "acc-1")
	processor.ProcessBatch(ctx)

	if err := repo.DeleteAccount(ctx, "acc-1"); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}
	processor.ProcessBatch(ctx)

	if _, ok := store.Row("bank_accounts", "acc-1"); ok {
		t.Error("account row should be gone from the mirror after delete sync")
	}
}

func TestSyncProcessor_ProcessBatch_FailureReschedules(t *testing.T) {
	processor, repo, store := newTestProcessor(t)
	ctx := context.Background()

	enqueueTestAccount(t, repo, "acc-1")
	store.FailNext = errors.New("mirror unavailable")

	processor.ProcessBatch(ctx)

	stats, err := repo.SyncQueueStats(ctx)
	if err != nil {
		t.Fatalf("SyncQueueStats() error = %v", err)
	}
	if stats.Pending != 1 {
		t.Errorf("pending = %d, want 1 (rescheduled)", stats.Pending)
	}
	if stats.Completed != 0 {
		t.Errorf("completed = %d, want 0", stats.Completed)
	}

	// The rescheduled item is not due yet, so another pass is a no-op.
	processor.ProcessBatch(ctx)
	if _, ok := store.Row("bank_accounts", "acc-1"); ok {
		t.Error("item should not be retried before its backoff expires")
	}
}

func TestSyncProcessor_MaxRetriesMarksFailed(t *testing.T) {
	processor, repo, store := newTestProcessor(t)
	processor.config.MaxRetries = 1
	ctx := context.Background()

	enqueueTestAccount(t, repo, "acc-1")
	store.FailNext = errors.New("mirror unavailable")

	processor.ProcessBatch(ctx)

	stats, _ := repo.SyncQueueStats(ctx)
	if stats.Failed != 1 {
		t.Errorf("failed = %d, want 1", stats.Failed)
	}

	// Operator retry puts it back on the queue with a fresh budget.
	n, err := processor.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}
	if n != 1 {
		t.Errorf("RetryFailed() = %d, want 1", n)
	}

	processor.ProcessBatch(ctx)
	if _, ok := store.Row("bank_accounts", "acc-1"); !ok {
		t.Error("account row should sync after operator retry")
	}
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	processor, _, _ := newTestProcessor(t)
	processor.config.PollInterval = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer processor.Stop(context.Background())

	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor, _, _ := newTestProcessor(t)

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}
