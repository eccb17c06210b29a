// Package worker runs the mirror synchronization side of the system: it
// listens for AMQP nudges and drives the sync processor, with the poll
// loop as backup for lost messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"casacore/internal/amqp"
	"casacore/internal/services"
	"casacore/internal/storage"
)

type SyncWorker struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	processor  *services.SyncProcessor
}

func NewSyncWorker(storage *storage.SQLiteRepository, amqpClient *amqp.Client, processor *services.SyncProcessor) *SyncWorker {
	return &SyncWorker{
		storage:    storage,
		amqpClient: amqpClient,
		processor:  processor,
	}
}

// Run starts the processor, performs the startup sync check and then
// blocks consuming AMQP nudges until the context is cancelled.
func (w *SyncWorker) Run(ctx context.Context) error {
	if err := w.processor.Start(ctx); err != nil {
		return fmt.Errorf("start sync processor: %w", err)
	}
	defer func() {
		if err := w.processor.Stop(context.Background()); err != nil {
			slog.Error("Failed to stop sync processor", "error", err)
		}
	}()

	if err := w.StartupSyncCheck(ctx); err != nil {
		slog.WarnContext(ctx, "Startup sync check failed", "error", err)
	}

	if w.amqpClient == nil {
		slog.InfoContext(ctx, "AMQP not configured, relying on poll loop only")
		<-ctx.Done()
		return ctx.Err()
	}

	return w.amqpClient.ConsumeRecordSync(ctx, func(msg *amqp.RecordSyncMessage) error {
		return w.HandleSyncMessage(ctx, msg)
	})
}

// HandleSyncMessage reacts to a single nudge. The message is only a hint
// that work exists; the queue itself is authoritative, so a kick covers
// both the named item and anything else pending.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync nudge",
		"queue_id", msg.QueueID,
		"table", msg.Table,
		"record_id", msg.RecordID,
		"operation", msg.Operation)

	w.processor.Kick()
	return nil
}

// StartupSyncCheck reports queue state at worker startup and kicks the
// processor if there is a backlog. This recovers from missed AMQP
// messages or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	stats, err := w.storage.SyncQueueStats(ctx)
	if err != nil {
		return fmt.Errorf("get sync queue stats: %w", err)
	}

	if stats.Pending == 0 && stats.Processing == 0 {
		slog.InfoContext(ctx, "No pending sync items found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found sync backlog on startup, processing...",
		"pending", stats.Pending,
		"processing", stats.Processing,
		"failed", stats.Failed)

	w.processor.Kick()
	return nil
}
