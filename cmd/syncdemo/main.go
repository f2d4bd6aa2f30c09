// Command syncdemo is a minimal CLI around the sync engine: it keeps a
// local "notes" table in SQLite and talks to syncdemo-server over HTTP.
//
// Usage:
//
//	syncdemo add "title" "body"   adds a note and queues it for push
//	syncdemo list                 lists local notes
//	syncdemo sync                 runs one push+pull cycle
//	syncdemo list-failed          lists sync-queue entries past their retry limit
//	syncdemo purge-failed         deletes sync-queue entries past their retry limit
package main

import (
	"context"
	"database/sql"
	"embed"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/google/uuid"
	"github.com/loonylabs-dev/react-native-offline-sync/internal/jwtauth"
	"github.com/loonylabs-dev/react-native-offline-sync/kv/sqlitekv"
	"github.com/loonylabs-dev/react-native-offline-sync/network"
	"github.com/loonylabs-dev/react-native-offline-sync/orchestrator"
	"github.com/loonylabs-dev/react-native-offline-sync/pull"
	"github.com/loonylabs-dev/react-native-offline-sync/push"
	"github.com/loonylabs-dev/react-native-offline-sync/queue"
	"github.com/loonylabs-dev/react-native-offline-sync/queue/sqlitequeue"
	"github.com/loonylabs-dev/react-native-offline-sync/recordstore/sqliterecords"
	"github.com/loonylabs-dev/react-native-offline-sync/resolver"
	"github.com/loonylabs-dev/react-native-offline-sync/transport/httptransport"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	configPath := flag.String("config", "syncdemo.toml", "path to client config")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: syncdemo [-config path] <add|list|sync|list-failed|purge-failed> ...")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("syncdemo: load config", "error", err)
		os.Exit(1)
	}

	db, err := openDB(cfg.DBPath)
	if err != nil {
		slog.Error("syncdemo: open db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	orch, stopNetSource, err := buildOrchestrator(db, cfg)
	if err != nil {
		slog.Error("syncdemo: build orchestrator", "error", err)
		os.Exit(1)
	}
	defer stopNetSource()

	ctx := context.Background()
	switch args[0] {
	case "add":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: syncdemo add <title> <body>")
			os.Exit(2)
		}
		if err := addNote(ctx, db, orch, args[1], args[2]); err != nil {
			slog.Error("syncdemo: add note", "error", err)
			os.Exit(1)
		}
	case "list":
		if err := listNotes(db); err != nil {
			slog.Error("syncdemo: list notes", "error", err)
			os.Exit(1)
		}
	case "sync":
		result := orch.Sync(ctx)
		if result.Error != nil {
			slog.Error("syncdemo: sync failed", "error", result.Error)
			os.Exit(1)
		}
		fmt.Printf("pushed=%d pulled=%d failed=%d duration_ms=%d\n",
			result.Stats.Pushed, result.Stats.Pulled, result.Stats.Failed, result.Stats.DurationMS)
	case "list-failed":
		if err := listFailedOperations(ctx, orch.Queue, orch.Push.Config.MaxRetries); err != nil {
			slog.Error("syncdemo: list failed", "error", err)
			os.Exit(1)
		}
	case "purge-failed":
		if err := purgeFailedOperations(ctx, orch.Queue, orch.Push.Config.MaxRetries); err != nil {
			slog.Error("syncdemo: purge failed", "error", err)
			os.Exit(1)
		}
		orch.RefreshPendingChanges(ctx)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		os.Exit(2)
	}
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return nil, err
	}
	return db, nil
}

// buildOrchestrator wires the sync engine for one device. The returned stop
// func tears down the network source's background polling goroutine (if
// any) and must be called before the process exits.
func buildOrchestrator(db *sql.DB, cfg Config) (*orchestrator.Orchestrator, func(), error) {
	q, err := sqlitequeue.New(db)
	if err != nil {
		return nil, nil, err
	}
	watermark, err := sqlitekv.New(db)
	if err != nil {
		return nil, nil, err
	}
	records := sqliterecords.New(db)

	auth := jwtauth.New(cfg.JWTSecret)
	transport := httptransport.New(cfg.ServerURL, func(context.Context) (string, error) {
		return auth.IssueToken(cfg.DeviceID, time.Duration(cfg.TokenTTLHr)*time.Hour)
	})

	res, err := resolver.New(resolver.StrategyLastWriteWins, nil)
	if err != nil {
		return nil, nil, err
	}

	pushPipe := push.New(q, records, transport)
	pullPipe := pull.New(records, watermark, transport, res, []string{"notes"})

	netSource, stopSource := buildNetworkSource(cfg)
	netMonitor := network.New(netSource, slog.Default())
	if err := netMonitor.Initialize(context.Background()); err != nil {
		stopSource()
		return nil, nil, err
	}

	orch := orchestrator.New(q, pushPipe, pullPipe, netMonitor)
	orch.Config.EnableBackgroundSync = false
	orch.Initialize(context.Background())
	return orch, stopSource, nil
}

// buildNetworkSource picks between a PollingSource that probes the server
// over HTTP (when PollIntervalSec is configured) and a StaticSource that
// reports always-online, for demo runs with no server to probe.
func buildNetworkSource(cfg Config) (network.Source, func()) {
	if cfg.PollIntervalSec <= 0 {
		return network.NewStaticSource(network.Status{IsConnected: true, IsInternetReachable: network.TriYes}), func() {}
	}

	client := &http.Client{Timeout: 3 * time.Second}
	probe := func(ctx context.Context) (network.Status, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, cfg.ServerURL, nil)
		if err != nil {
			return network.Status{IsConnected: false, IsInternetReachable: network.TriNo}, nil
		}
		resp, err := client.Do(req)
		if err != nil {
			return network.Status{IsConnected: false, IsInternetReachable: network.TriNo}, nil
		}
		resp.Body.Close()
		return network.Status{IsConnected: true, IsInternetReachable: network.TriYes}, nil
	}

	src := network.NewPollingSource(probe, time.Duration(cfg.PollIntervalSec)*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go src.Run(ctx)
	return src, func() {
		src.Stop()
		cancel()
	}
}

func addNote(ctx context.Context, db *sql.DB, orch *orchestrator.Orchestrator, title, body string) error {
	id := uuid.New().String()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO notes (id, title, body) VALUES (?, ?, ?)`, id, title, body); err != nil {
		return err
	}
	if err := orch.QueueOperationTx(tx, queue.OpCreate, "notes", id, map[string]any{"title": title, "body": body}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	orch.RefreshPendingChanges(ctx)
	return nil
}

func listFailedOperations(ctx context.Context, q queue.Store, maxRetries int) error {
	items, err := q.Failed(ctx, maxRetries)
	if err != nil {
		return err
	}
	for _, it := range items {
		errText := ""
		if it.ErrorMessage != nil {
			errText = *it.ErrorMessage
		}
		fmt.Printf("%s\t%s\t%s\t%s\tretries=%d\t%s\n", it.ID, it.Operation, it.TableName, it.RecordID, it.RetryCount, errText)
	}
	return nil
}

func purgeFailedOperations(ctx context.Context, q queue.Store, maxRetries int) error {
	n, err := q.PurgeFailed(ctx, maxRetries)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d failed operation(s)\n", n)
	return nil
}

func listNotes(db *sql.DB) error {
	rows, err := db.Query(`SELECT id, title, body, sync_status FROM notes WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id, title, body, status string
		if err := rows.Scan(&id, &title, &body, &status); err != nil {
			return err
		}
		fmt.Printf("%s\t%-20s\t%-8s\t%s\n", id, title, status, body)
	}
	return rows.Err()
}
