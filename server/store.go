package server

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB opens the server's SQLite database and applies pending goose
// migrations.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("server: open db: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, fmt.Errorf("server: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, fmt.Errorf("server: run migrations: %w", err)
	}
	return db, nil
}

// NoteStore is the server-side counterpart of the client's recordstore: it
// owns the canonical "notes" table every device pushes to and pulls from.
// Unlike the client side, the server never needs column introspection since
// it only ever serves the one table it defines.
type NoteStore struct {
	DB *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{DB: db}
}

// UpsertFromPush applies one pushed change, stamping the row's updated_at
// with now (the caller reuses now as the ack's serverUpdatedAt). The client's local record id
// doubles as the server's primary key; this demo has no separate identity
// translation layer, so ServerID always mirrors RecordID.
func (s *NoteStore) UpsertFromPush(deviceID, operation, recordID string, data map[string]any, now int64) error {
	switch operation {
	case "DELETE":
		_, err := s.DB.Exec(`
			INSERT INTO notes (id, device_id, updated_at, deleted_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at, deleted_at = excluded.deleted_at`,
			recordID, deviceID, now, now)
		if err != nil {
			return fmt.Errorf("server: delete note: %w", err)
		}
		return nil
	default:
		title, _ := data["title"].(string)
		body, _ := data["body"].(string)
		_, err := s.DB.Exec(`
			INSERT INTO notes (id, device_id, title, body, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, NULL)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title, body = excluded.body,
				updated_at = excluded.updated_at, deleted_at = NULL`,
			recordID, deviceID, title, body, now)
		if err != nil {
			return fmt.Errorf("server: upsert note: %w", err)
		}
		return nil
	}
}

// ChangesSince returns every note touched after sinceMillis (or everything,
// if sinceMillis is nil), split into alive rows (reported as "updated",
// letting the client's apply step decide create vs overwrite) and
// tombstones.
func (s *NoteStore) ChangesSince(sinceMillis *int64) (transport.TableChanges, error) {
	var rows *sql.Rows
	var err error
	if sinceMillis != nil {
		rows, err = s.DB.Query(`SELECT id, title, body, updated_at, deleted_at FROM notes WHERE updated_at > ?`, *sinceMillis)
	} else {
		rows, err = s.DB.Query(`SELECT id, title, body, updated_at, deleted_at FROM notes`)
	}
	if err != nil {
		return transport.TableChanges{}, fmt.Errorf("server: query changes: %w", err)
	}
	defer rows.Close()

	var out transport.TableChanges
	for rows.Next() {
		var id, title, body string
		var updatedAt int64
		var deletedAt sql.NullInt64
		if err := rows.Scan(&id, &title, &body, &updatedAt, &deletedAt); err != nil {
			return transport.TableChanges{}, fmt.Errorf("server: scan note: %w", err)
		}
		if deletedAt.Valid {
			out.Deleted = append(out.Deleted, id)
			continue
		}
		out.Updated = append(out.Updated, transport.Record{
			ID:        id,
			UpdatedAt: updatedAt,
			Fields: map[string]any{
				"title": title,
				"body":  body,
			},
		})
	}
	return out, rows.Err()
}
