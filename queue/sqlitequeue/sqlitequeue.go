// Package sqlitequeue is a SQLite-backed implementation of queue.Store,
// following the table layout and database/sql idioms of the bundled
// record store (see recordstore/sqliterecords).
package sqlitequeue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "github.com/mattn/go-sqlite3"

	"github.com/loonylabs-dev/react-native-offline-sync/queue"
)

// Queue stores sync_queue rows in a *sql.DB that the caller owns (typically
// the same SQLite file as the application's business tables, so queue rows
// commit atomically with the record write in the same transaction).
type Queue struct {
	DB *sql.DB
}

// New wraps db and ensures the sync_queue table exists.
func New(db *sql.DB) (*Queue, error) {
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("sqlitequeue: create table: %w", err)
	}
	return &Queue{DB: db}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id            TEXT PRIMARY KEY,
	operation     TEXT NOT NULL CHECK (operation IN ('CREATE','UPDATE','DELETE')),
	table_name    TEXT NOT NULL,
	record_id     TEXT NOT NULL,
	payload       TEXT,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
)`

func (q *Queue) Enqueue(ctx context.Context, op queue.Operation, table, recordID string, payload map[string]any) error {
	tx, err := q.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitequeue: begin: %w", err)
	}
	defer tx.Rollback()

	if err := q.enqueueTx(tx, op, table, recordID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (q *Queue) EnqueueTx(tx *sql.Tx, op queue.Operation, table, recordID string, payload map[string]any) error {
	return q.enqueueTx(tx, op, table, recordID, payload)
}

func (q *Queue) enqueueTx(tx *sql.Tx, op queue.Operation, table, recordID string, payload map[string]any) error {
	var payloadJSON sql.NullString
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("sqlitequeue: marshal payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}

	now := nowString()
	_, err := tx.Exec(`
		INSERT INTO sync_queue (id, operation, table_name, record_id, payload, retry_count, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?)`,
		uuid.New().String(), string(op), table, recordID, payloadJSON, now, now)
	if err != nil {
		return fmt.Errorf("sqlitequeue: insert: %w", err)
	}
	return nil
}

func (q *Queue) Pending(ctx context.Context, maxRetries int) ([]queue.Item, error) {
	return q.queryItems(ctx, `retry_count < ?`, maxRetries)
}

func (q *Queue) Failed(ctx context.Context, maxRetries int) ([]queue.Item, error) {
	return q.queryItems(ctx, `retry_count >= ?`, maxRetries)
}

func (q *Queue) queryItems(ctx context.Context, where string, maxRetries int) ([]queue.Item, error) {
	rows, err := q.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, operation, table_name, record_id, payload, retry_count, error_message, created_at, updated_at
		FROM sync_queue
		WHERE %s
		ORDER BY rowid`, where), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("sqlitequeue: query: %w", err)
	}
	defer rows.Close()

	var items []queue.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (queue.Item, error) {
	var item queue.Item
	var op, createdAt, updatedAt string
	var payloadJSON, errMsg sql.NullString
	if err := row.Scan(&item.ID, &op, &item.TableName, &item.RecordID, &payloadJSON, &item.RetryCount, &errMsg, &createdAt, &updatedAt); err != nil {
		return item, fmt.Errorf("sqlitequeue: scan: %w", err)
	}
	item.Operation = queue.Operation(op)
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &item.Payload); err != nil {
			return item, fmt.Errorf("sqlitequeue: unmarshal payload: %w", err)
		}
	}
	if errMsg.Valid {
		item.ErrorMessage = &errMsg.String
	}
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)
	return item, nil
}

func (q *Queue) CountAll(ctx context.Context) int {
	var n int
	if err := q.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (q *Queue) Ack(ctx context.Context, id string) error {
	res, err := q.DB.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlitequeue: delete: %w", err)
	}
	return requireAffected(res, queue.ErrNotFound)
}

func (q *Queue) Bump(ctx context.Context, id string, errText string) error {
	res, err := q.DB.ExecContext(ctx, `
		UPDATE sync_queue SET retry_count = retry_count + 1, error_message = ?, updated_at = ?
		WHERE id = ?`, errText, nowString(), id)
	if err != nil {
		return fmt.Errorf("sqlitequeue: bump: %w", err)
	}
	return requireAffected(res, queue.ErrNotFound)
}

func (q *Queue) PurgeFailed(ctx context.Context, maxRetries int) (int, error) {
	res, err := q.DB.ExecContext(ctx, `DELETE FROM sync_queue WHERE retry_count >= ?`, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("sqlitequeue: purge failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *Queue) PurgeAll(ctx context.Context) (int, error) {
	res, err := q.DB.ExecContext(ctx, `DELETE FROM sync_queue`)
	if err != nil {
		return 0, fmt.Errorf("sqlitequeue: purge all: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

var _ queue.Store = (*Queue)(nil)
