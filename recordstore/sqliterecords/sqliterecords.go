// Package sqliterecords is the bundled SQLite implementation of
// recordstore.Store, built on database/sql and PRAGMA table_info.
//
// Every synced domain table is expected to carry a fixed set of sync
// metadata columns in addition to its domain columns: id (primary key),
// server_id, server_updated_at, sync_status, last_sync_error, deleted_at.
package sqliterecords

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/loonylabs-dev/react-native-offline-sync/recordstore"
)

// Store wraps a *sql.DB shared with the application's business tables.
type Store struct {
	DB      *sql.DB
	columns *columnSet
}

// New wraps db. Callers create their own business tables beforehand; this
// package never issues CREATE TABLE for domain tables.
func New(db *sql.DB) *Store {
	return &Store{DB: db, columns: newColumnSet()}
}

func (s *Store) WithTx(ctx context.Context, fn func(recordstore.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqliterecords: begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rtx := &recordsTx{tx: tx, columns: s.columns}
	if err := fn(rtx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqliterecords: commit: %w", err)
	}
	committed = true
	return nil
}

type recordsTx struct {
	tx      *sql.Tx
	columns *columnSet
}

func (t *recordsTx) GetByRecordID(table, recordID string) (map[string]any, bool, error) {
	return t.getOneBy(table, "id", recordID)
}

func (t *recordsTx) GetByServerID(table, serverID string) (string, map[string]any, bool, error) {
	data, ok, err := t.getOneBy(table, "server_id", serverID)
	if !ok || err != nil {
		return "", nil, ok, err
	}
	id, _ := data["id"].(string)
	return id, data, true, nil
}

func (t *recordsTx) getOneBy(table, column, value string) (map[string]any, bool, error) {
	tableLc := strings.ToLower(table)
	query := fmt.Sprintf(`SELECT * FROM "%s" WHERE "%s" = ?`, tableLc, column)
	rows, err := t.tx.Query(query, value)
	if err != nil {
		return nil, false, fmt.Errorf("sqliterecords: query %s.%s: %w", tableLc, column, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	data, err := scanRow(rows)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func scanRow(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("sqliterecords: scan row: %w", err)
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[strings.ToLower(c)] = values[i]
	}
	return out, nil
}

func (t *recordsTx) ApplyPushAck(table, recordID string, serverID *string, serverUpdatedAt *int64) error {
	tableLc := strings.ToLower(table)
	cols, err := t.columns.get(t.tx, tableLc)
	if err != nil {
		return err
	}

	sets := []string{"sync_status = 'synced'", "last_sync_error = NULL"}
	args := []any{}
	if serverID != nil && cols["server_id"] {
		sets = append(sets, "server_id = ?")
		args = append(args, *serverID)
	}
	if serverUpdatedAt != nil && cols["server_updated_at"] {
		sets = append(sets, "server_updated_at = ?")
		args = append(args, *serverUpdatedAt)
	}
	args = append(args, recordID)

	query := fmt.Sprintf(`UPDATE "%s" SET %s WHERE id = ?`, tableLc, strings.Join(sets, ", "))
	res, err := t.tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("sqliterecords: apply push ack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return recordstore.ErrRecordNotFound
	}
	return nil
}

func (t *recordsTx) CreateFromServer(table string, fields map[string]any, serverID string, serverUpdatedAt int64) error {
	tableLc := strings.ToLower(table)
	cols, err := t.columns.get(t.tx, tableLc)
	if err != nil {
		return err
	}

	colNames := make([]string, 0, len(fields)+4)
	placeholders := make([]string, 0, len(fields)+4)
	args := make([]any, 0, len(fields)+4)

	if cols["id"] {
		colNames = append(colNames, "id")
		placeholders = append(placeholders, "?")
		args = append(args, uuid.New().String())
	}

	for k, v := range fields {
		lk := strings.ToLower(k)
		if !cols[lk] || isMetadataColumn(lk) {
			continue
		}
		colNames = append(colNames, lk)
		placeholders = append(placeholders, "?")
		args = append(args, v)
	}

	for col, val := range map[string]any{
		"server_id":         serverID,
		"server_updated_at": serverUpdatedAt,
		"sync_status":       "synced",
		"last_sync_error":   nil,
	} {
		if cols[col] {
			colNames = append(colNames, col)
			placeholders = append(placeholders, "?")
			args = append(args, val)
		}
	}

	query := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		tableLc, strings.Join(colNames, ", "), strings.Join(placeholders, ", "))
	if _, err := t.tx.Exec(query, args...); err != nil {
		return fmt.Errorf("sqliterecords: create from server: %w", err)
	}
	return nil
}

func (t *recordsTx) OverwriteFromServer(table, recordID string, fields map[string]any, serverID string, serverUpdatedAt int64) error {
	tableLc := strings.ToLower(table)
	cols, err := t.columns.get(t.tx, tableLc)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(fields)+4)
	args := make([]any, 0, len(fields)+4)

	for k, v := range fields {
		lk := strings.ToLower(k)
		if !cols[lk] || isMetadataColumn(lk) || lk == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf(`"%s" = ?`, lk))
		args = append(args, v)
	}
	for col, val := range map[string]any{
		"server_id":         serverID,
		"server_updated_at": serverUpdatedAt,
		"sync_status":       "synced",
		"last_sync_error":   nil,
	} {
		if cols[col] {
			sets = append(sets, fmt.Sprintf(`"%s" = ?`, col))
			args = append(args, val)
		}
	}
	args = append(args, recordID)

	query := fmt.Sprintf(`UPDATE "%s" SET %s WHERE id = ?`, tableLc, strings.Join(sets, ", "))
	if _, err := t.tx.Exec(query, args...); err != nil {
		return fmt.Errorf("sqliterecords: overwrite from server: %w", err)
	}
	return nil
}

func (t *recordsTx) SoftDeleteByServerID(table, serverID string) (int, error) {
	tableLc := strings.ToLower(table)
	res, err := t.tx.Exec(fmt.Sprintf(`
		UPDATE "%s" SET deleted_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now')
		WHERE server_id = ?`, tableLc), serverID)
	if err != nil {
		return 0, fmt.Errorf("sqliterecords: soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func isMetadataColumn(col string) bool {
	switch col {
	case "id", "server_id", "server_updated_at", "sync_status", "last_sync_error", "deleted_at", "created_at", "updated_at":
		return true
	default:
		return false
	}
}

var _ recordstore.Store = (*Store)(nil)
