package sqliterecords

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/loonylabs-dev/react-native-offline-sync/recordstore"
)

const createNotesTable = `
CREATE TABLE notes (
	id TEXT PRIMARY KEY,
	title TEXT,
	body TEXT,
	server_id TEXT,
	server_updated_at INTEGER,
	sync_status TEXT NOT NULL DEFAULT 'pending',
	last_sync_error TEXT,
	created_at TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT '',
	deleted_at TEXT
)`

func newTestStore(t *testing.T) *Store {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(createNotesTable)
	require.NoError(t, err)
	return New(db)
}

func TestApplyPushAckUpdatesMetadataAndLeavesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.DB.Exec(`INSERT INTO notes (id, title, sync_status) VALUES ('local-1', 'hi', 'pending')`)
	require.NoError(t, err)

	serverID := "srv-1"
	serverUpdatedAt := int64(123)
	err = s.WithTx(ctx, func(tx recordstore.Tx) error {
		return tx.ApplyPushAck("notes", "local-1", &serverID, &serverUpdatedAt)
	})
	require.NoError(t, err)

	var title, status, gotServerID string
	var gotServerUpdatedAt int64
	require.NoError(t, s.DB.QueryRow(`SELECT title, sync_status, server_id, server_updated_at FROM notes WHERE id = 'local-1'`).
		Scan(&title, &status, &gotServerID, &gotServerUpdatedAt))
	require.Equal(t, "hi", title)
	require.Equal(t, "synced", status)
	require.Equal(t, "srv-1", gotServerID)
	require.Equal(t, int64(123), gotServerUpdatedAt)
}

func TestApplyPushAckMissingRecordReturnsErrRecordNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.WithTx(context.Background(), func(tx recordstore.Tx) error {
		return tx.ApplyPushAck("notes", "missing", nil, nil)
	})
	require.ErrorIs(t, err, recordstore.ErrRecordNotFound)
}

func TestCreateFromServerInsertsNewRowWithGeneratedID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx recordstore.Tx) error {
		return tx.CreateFromServer("notes", map[string]any{"title": "from server", "body": "b"}, "srv-2", 999)
	})
	require.NoError(t, err)

	var id, title, status string
	require.NoError(t, s.DB.QueryRow(`SELECT id, title, sync_status FROM notes WHERE server_id = 'srv-2'`).
		Scan(&id, &title, &status))
	require.NotEmpty(t, id)
	require.Equal(t, "from server", title)
	require.Equal(t, "synced", status)
}

func TestOverwriteFromServerReplacesDomainFieldsAndMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.DB.Exec(`INSERT INTO notes (id, title, server_id, sync_status) VALUES ('local-3', 'old', 'srv-3', 'pending')`)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx recordstore.Tx) error {
		return tx.OverwriteFromServer("notes", "local-3", map[string]any{"title": "new"}, "srv-3", 555)
	})
	require.NoError(t, err)

	var title, status string
	var serverUpdatedAt int64
	require.NoError(t, s.DB.QueryRow(`SELECT title, sync_status, server_updated_at FROM notes WHERE id = 'local-3'`).
		Scan(&title, &status, &serverUpdatedAt))
	require.Equal(t, "new", title)
	require.Equal(t, "synced", status)
	require.Equal(t, int64(555), serverUpdatedAt)
}

func TestGetByServerIDReturnsLocalRecordID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.DB.Exec(`INSERT INTO notes (id, title, server_id) VALUES ('local-4', 'x', 'srv-4')`)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx recordstore.Tx) error {
		recordID, data, ok, err := tx.GetByServerID("notes", "srv-4")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "local-4", recordID)
		require.Equal(t, "x", data["title"])
		return nil
	})
	require.NoError(t, err)
}

func TestSoftDeleteByServerIDSetsDeletedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.DB.Exec(`INSERT INTO notes (id, server_id) VALUES ('local-5', 'srv-5')`)
	require.NoError(t, err)

	var n int
	err = s.WithTx(ctx, func(tx recordstore.Tx) error {
		count, err := tx.SoftDeleteByServerID("notes", "srv-5")
		n = count
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var deletedAt sql.NullString
	require.NoError(t, s.DB.QueryRow(`SELECT deleted_at FROM notes WHERE id = 'local-5'`).Scan(&deletedAt))
	require.True(t, deletedAt.Valid)
}

func TestSoftDeleteByServerIDZeroMatchesIsNotError(t *testing.T) {
	s := newTestStore(t)
	n, err := 0, error(nil)
	err = s.WithTx(context.Background(), func(tx recordstore.Tx) error {
		var innerErr error
		n, innerErr = tx.SoftDeleteByServerID("notes", "does-not-exist")
		return innerErr
	})
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx recordstore.Tx) error {
		if err := tx.CreateFromServer("notes", map[string]any{"title": "x"}, "srv-6", 1); err != nil {
			return err
		}
		return sql.ErrTxDone // force rollback
	})
	require.Error(t, err)

	var count int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM notes WHERE server_id = 'srv-6'`).Scan(&count))
	require.Equal(t, 0, count, "a transaction that returns an error must not commit")
}
