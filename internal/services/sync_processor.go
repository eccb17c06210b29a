package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"casacore/internal/mirror"
	"casacore/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending items (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum retry attempts before marking as failed (default: 5)
	MaxRetries int

	// RetryBaseDelay is the first retry delay; it doubles per attempt (default: 30s)
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff (default: 1h)
	RetryMaxDelay time.Duration

	// StaleAge is how long an item may sit in processing before it is
	// considered abandoned by a crashed worker (default: 10m)
	StaleAge time.Duration

	// CleanupInterval is how often to clean up completed items (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    30 * time.Second,
		BatchSize:       10,
		MaxRetries:      5,
		RetryBaseDelay:  30 * time.Second,
		RetryMaxDelay:   time.Hour,
		StaleAge:        10 * time.Minute,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the SQLite sync queue into the remote mirror.
type SyncProcessor struct {
	storage *storage.SQLiteRepository
	mirror  mirror.Writer
	config  SyncProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	kickCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(storage *storage.SQLiteRepository, writer mirror.Writer, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		storage: storage,
		mirror:  writer,
		config:  config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.kickCh = make(chan struct{}, 1)
	p.mu.Unlock()

	// Reset any stale processing items from previous crashes
	if n, err := p.storage.ResetStaleProcessing(ctx, p.config.StaleAge); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Reset stale processing items", "count", n)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Kick asks the loop to process a batch now instead of waiting for the
// next poll tick. Used by the AMQP consumer.
func (p *SyncProcessor) Kick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

// runLoop is the main processing loop
func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-p.kickCh:
			p.ProcessBatch(ctx)
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch processes a single batch of pending items.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) {
	items, err := p.storage.DequeueSyncBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.storage.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, "error", err)
			continue
		}

		if err := p.processItem(ctx, item); err != nil {
			p.handleFailure(ctx, item, err)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
}

// processItem pushes one queue item to the mirror.
func (p *SyncProcessor) processItem(ctx context.Context, item storage.SyncItem) error {
	switch item.Operation {
	case storage.SyncOpUpsert:
		var row map[string]any
		if err := json.Unmarshal(item.Payload, &row); err != nil {
			return fmt.Errorf("decode payload for item %d: %w", item.ID, err)
		}
		if err := p.mirror.UpsertRow(ctx, item.TableName, row); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", item.TableName, item.RecordID, err)
		}
	case storage.SyncOpDelete:
		if err := p.mirror.DeleteRow(ctx, item.TableName, item.RecordID); err != nil {
			return fmt.Errorf("delete %s/%s: %w", item.TableName, item.RecordID, err)
		}
	default:
		return fmt.Errorf("unknown operation: %s", item.Operation)
	}
	return nil
}

// handleSuccess marks an item completed and flips the record's synced flag.
func (p *SyncProcessor) handleSuccess(ctx context.Context, item storage.SyncItem) {
	if err := p.storage.MarkSyncCompleted(ctx, item.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark sync complete",
			"id", item.ID, "error", err)
	}

	if item.Operation == storage.SyncOpUpsert {
		if err := p.storage.MarkRecordSynced(ctx, item.TableName, item.RecordID, true); err != nil {
			slog.WarnContext(ctx, "Failed to mark record as synced",
				"table", item.TableName, "record_id", item.RecordID, "error", err)
			// Don't fail the queue item - the mirror write succeeded
		}
	}

	slog.InfoContext(ctx, "Synced record to mirror",
		"table", item.TableName,
		"record_id", item.RecordID,
		"operation", item.Operation)
}

// handleFailure handles a failed sync attempt with retry logic
func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.SyncItem, processErr error) {
	slog.WarnContext(ctx, "Sync processing failed",
		"id", item.ID,
		"operation", item.Operation,
		"attempt", item.Attempts+1,
		"error", processErr)

	if item.Attempts+1 >= p.config.MaxRetries {
		if err := p.storage.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark sync as failed",
				"id", item.ID, "error", err)
		}

		// The record stays flagged unsynced so the API can surface it.
		if item.Operation == storage.SyncOpUpsert {
			if err := p.storage.MarkRecordSynced(ctx, item.TableName, item.RecordID, false); err != nil {
				slog.ErrorContext(ctx, "Failed to flag record as unsynced",
					"table", item.TableName, "record_id", item.RecordID, "error", err)
			}
		}

		slog.ErrorContext(ctx, "Sync item failed permanently after max retries",
			"id", item.ID,
			"table", item.TableName,
			"record_id", item.RecordID,
			"attempts", item.Attempts+1)
		return
	}

	next := time.Now().Add(retryDelay(item.Attempts, p.config.RetryBaseDelay, p.config.RetryMaxDelay))
	if err := p.storage.RescheduleSync(ctx, item.ID, processErr.Error(), next); err != nil {
		slog.ErrorContext(ctx, "Failed to reschedule sync item",
			"id", item.ID, "error", err)
	}
}

// retryDelay doubles the base delay per completed attempt, capped at max.
func retryDelay(attempts int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

// cleanupCompleted removes old completed items
func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	if _, err := p.storage.CleanupCompletedSyncs(ctx, p.config.CleanupAge); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed syncs", "error", err)
	}
}

// Stats returns current queue statistics
func (p *SyncProcessor) Stats(ctx context.Context) (storage.SyncStats, error) {
	return p.storage.SyncQueueStats(ctx)
}

// RetryFailed resets all failed items for retry
func (p *SyncProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailedSyncs(ctx)
}
