// Package recordstore declares the contract the push and pull pipelines use
// against the local application record database. The local record store is
// an external collaborator: only this interface matters to the sync core.
// See sqliterecords for the bundled SQLite implementation.
package recordstore

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned by lookups when no matching row exists.
var ErrRecordNotFound = errors.New("recordstore: record not found")

// Tx is a single local-store write transaction, scoped to one push-ack
// writeback or one pull apply.
type Tx interface {
	// GetByRecordID looks up a record by its local id. ok is false if absent.
	GetByRecordID(table, recordID string) (data map[string]any, ok bool, err error)

	// GetByServerID looks up a record by server_id. ok is false if absent.
	GetByServerID(table, serverID string) (recordID string, data map[string]any, ok bool, err error)

	// ApplyPushAck sets sync_status=synced, last_sync_error=nil, and
	// whichever of serverID/serverUpdatedAt are non-nil, on the record at
	// recordID. Returns ErrRecordNotFound if the row is gone; the caller
	// must still ack the queue item in that case.
	ApplyPushAck(table, recordID string, serverID *string, serverUpdatedAt *int64) error

	// CreateFromServer inserts a new record from a server-originated
	// "created" stanza entry: fields are the mapped domain columns
	// (metadata columns already excluded by the caller), plus
	// server_id/server_updated_at/sync_status=synced.
	CreateFromServer(table string, fields map[string]any, serverID string, serverUpdatedAt int64) error

	// OverwriteFromServer overwrites an existing record (identified by its
	// local recordID) with fields plus server sync metadata.
	OverwriteFromServer(table, recordID string, fields map[string]any, serverID string, serverUpdatedAt int64) error

	// SoftDeleteByServerID marks every local record with the given
	// server_id as deleted (sets deleted_at), returning the count affected.
	// Zero matches is not an error.
	SoftDeleteByServerID(table, serverID string) (int, error)
}

// Store opens a single local-store write transaction per call, committing
// on a nil return from fn and rolling back otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}
