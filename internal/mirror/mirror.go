// Package mirror defines the remote persistence mirror contract. The
// mirror is a convenience copy of the local ledger, reached through a
// row-shaped REST surface; the local SQLite database stays authoritative.
package mirror

import "context"

type Writer interface {
	// UpsertRow writes one row into the named table, replacing any row
	// with the same id.
	UpsertRow(ctx context.Context, table string, row map[string]any) error

	// DeleteRow removes the row with the given id from the named table.
	// Deleting a missing row is not an error.
	DeleteRow(ctx context.Context, table, id string) error
}
