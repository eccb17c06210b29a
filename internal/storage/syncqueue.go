package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	SyncOpUpsert = "upsert"
	SyncOpDelete = "delete"

	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

// SyncItem is one queued mirror write. Items are created inside the same
// transaction as the record change they describe.
type SyncItem struct {
	ID            int64
	TableName     string
	RecordID      string
	Operation     string
	Payload       []byte
	Status        string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// syncedTables guards MarkRecordSynced against a queue row naming a table
// without a synced column.
var syncedTables = map[string]bool{
	TableTransactions: true,
	TableBankAccounts: true,
	TableAssets:       true,
	TableBills:        true,
	TableDeals:        true,
	TableFarmOps:      true,
	TableFamily:       true,
}

// DequeueSyncBatch returns up to limit pending items whose retry time has
// passed, oldest first.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int) ([]SyncItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, table_name, record_id, operation, payload, status, attempts, last_error, next_attempt_at, created_at, updated_at
		FROM sync_queue
		WHERE status = ? AND (next_attempt_at = '' OR next_attempt_at <= ?)
		ORDER BY id
		LIMIT ?`,
		SyncStatusPending, fmtTime(time.Now()), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	defer rows.Close()

	var items []SyncItem
	for rows.Next() {
		item, err := scanSyncItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) GetSyncItem(ctx context.Context, id int64) (SyncItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, table_name, record_id, operation, payload, status, attempts, last_error, next_attempt_at, created_at, updated_at
		FROM sync_queue WHERE id = ?`, id)
	item, err := scanSyncItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncItem{}, ErrNotFound
	}
	return item, err
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncStatusProcessing, "")
}

func (r *SQLiteRepository) MarkSyncCompleted(ctx context.Context, id int64) error {
	return r.setSyncStatus(ctx, id, SyncStatusCompleted, "")
}

// MarkSyncFailed is terminal: the item will not be retried until an
// operator calls RetryFailedSyncs.
func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, lastError string) error {
	return r.setSyncStatus(ctx, id, SyncStatusFailed, lastError)
}

// RescheduleSync records a failed attempt and puts the item back in the
// pending state with the given retry time.
func (r *SQLiteRepository) RescheduleSync(ctx context.Context, id int64, lastError string, nextAttempt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ?`,
		SyncStatusPending, lastError, fmtTime(nextAttempt), fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("reschedule sync item %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetStaleProcessing recovers items stranded in the processing state by
// a crashed worker.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := fmtTime(time.Now().Add(-olderThan))
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		SyncStatusPending, fmtTime(time.Now()), SyncStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale sync items: %w", err)
	}
	return res.RowsAffected()
}

// CleanupCompletedSyncs drops completed items older than the cutoff to
// keep the queue table small.
func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := fmtTime(time.Now().Add(-olderThan))
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE status = ? AND updated_at < ?`,
		SyncStatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed sync items: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailedSyncs moves every failed item back to pending with a fresh
// retry budget.
func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = ?, attempts = 0, last_error = '', next_attempt_at = '', updated_at = ?
		WHERE status = ?`,
		SyncStatusPending, fmtTime(time.Now()), SyncStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("retry failed sync items: %w", err)
	}
	return res.RowsAffected()
}

type SyncStats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

func (r *SQLiteRepository) SyncQueueStats(ctx context.Context) (SyncStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return SyncStats{}, fmt.Errorf("sync queue stats: %w", err)
	}
	defer rows.Close()

	var stats SyncStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return SyncStats{}, fmt.Errorf("scan sync stats: %w", err)
		}
		switch status {
		case SyncStatusPending:
			stats.Pending = count
		case SyncStatusProcessing:
			stats.Processing = count
		case SyncStatusCompleted:
			stats.Completed = count
		case SyncStatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// MarkRecordSynced flips the per-record synced flag once the mirror has
// acknowledged the row. Unsynced records are visible as such in the API.
func (r *SQLiteRepository) MarkRecordSynced(ctx context.Context, table, recordID string, synced bool) error {
	if !syncedTables[table] {
		return fmt.Errorf("unknown sync table %q", table)
	}
	flag := 0
	if synced {
		flag = 1
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET synced = ? WHERE id = ?`, table), flag, recordID)
	if err != nil {
		return fmt.Errorf("mark record synced in %s: %w", table, err)
	}
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status, lastError string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		status, lastError, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("set sync status %s on item %d: %w", status, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSyncItem(row rowScanner) (SyncItem, error) {
	var (
		item                   SyncItem
		payload                string
		next, created, updated string
	)
	err := row.Scan(&item.ID, &item.TableName, &item.RecordID, &item.Operation, &payload,
		&item.Status, &item.Attempts, &item.LastError, &next, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncItem{}, err
		}
		return SyncItem{}, fmt.Errorf("scan sync item: %w", err)
	}
	item.Payload = []byte(payload)
	item.NextAttemptAt = parseTime(next)
	item.CreatedAt = parseTime(created)
	item.UpdatedAt = parseTime(updated)
	return item, nil
}
