// Package queue defines the durable sync queue: a FIFO-ish log of pending
// local mutations waiting to be pushed to the server.
//
// The storage backend is out of scope for this package (see sqlitequeue for
// the bundled implementation); only the Store contract matters to the push
// pipeline and the orchestrator.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Operation identifies the kind of local mutation a queue item represents.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ErrNotFound is returned by Ack and Bump when the item id does not exist.
var ErrNotFound = errors.New("queue: item not found")

// Item is a durable queue row. Payload is a snapshot of the record's fields
// taken at enqueue time, so later local edits don't change what gets pushed.
type Item struct {
	ID           string
	Operation    Operation
	TableName    string
	RecordID     string
	Payload      map[string]any
	RetryCount   int
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store is the durable sync queue contract. Implementations must make
// Enqueue (or EnqueueTx) atomic with the corresponding local record write,
// so that a committed record mutation has exactly one corresponding queue
// row.
type Store interface {
	// Enqueue appends one item in its own transaction.
	Enqueue(ctx context.Context, op Operation, table, recordID string, payload map[string]any) error

	// EnqueueTx appends one item using the caller's transaction, so the
	// queue row and the application's record write commit or roll back
	// together.
	EnqueueTx(tx *sql.Tx, op Operation, table, recordID string, payload map[string]any) error

	// Pending returns items with RetryCount < maxRetries, insertion order.
	Pending(ctx context.Context, maxRetries int) ([]Item, error)

	// Failed returns items with RetryCount >= maxRetries.
	Failed(ctx context.Context, maxRetries int) ([]Item, error)

	// CountAll returns pending+failed item count. Best-effort: returns 0 on
	// any lookup error, since this value is advisory (engine state display).
	CountAll(ctx context.Context) int

	// Ack deletes the item. Returns ErrNotFound if absent.
	Ack(ctx context.Context, id string) error

	// Bump increments RetryCount and sets ErrorMessage. Returns ErrNotFound
	// if absent.
	Bump(ctx context.Context, id string, errText string) error

	// PurgeFailed deletes every item with RetryCount >= maxRetries and
	// returns the number removed.
	PurgeFailed(ctx context.Context, maxRetries int) (int, error)

	// PurgeAll deletes every queue row and returns the number removed.
	PurgeAll(ctx context.Context) (int, error)
}
