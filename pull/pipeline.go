// Package pull implements the pull pipeline: incremental fetch from the
// server, local application of creates/updates/tombstones, conflict
// resolution, and watermark persistence.
package pull

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/loonylabs-dev/react-native-offline-sync/kv"
	"github.com/loonylabs-dev/react-native-offline-sync/metrics"
	"github.com/loonylabs-dev/react-native-offline-sync/recordstore"
	"github.com/loonylabs-dev/react-native-offline-sync/resolver"
	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

// Config holds pull pipeline configuration.
type Config struct {
	Tables []string
}

// Result is the outcome of one pull() call.
type Result struct {
	Pulled int
}

// Pipeline requests changes since the watermark and applies them locally.
type Pipeline struct {
	Records   recordstore.Store
	Watermark kv.Store
	Transport transport.Puller
	Resolver  resolver.Resolver
	Config    Config
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// New builds a Pipeline over the given tables.
func New(records recordstore.Store, watermark kv.Store, t transport.Puller, res resolver.Resolver, tables []string) *Pipeline {
	return &Pipeline{
		Records:   records,
		Watermark: watermark,
		Transport: t,
		Resolver:  res,
		Config:    Config{Tables: tables},
		Logger:    slog.Default(),
	}
}

// Pull fetches changes since the stored watermark for every configured
// table and applies them locally, advancing the watermark on success.
func (p *Pipeline) Pull(ctx context.Context) (Result, error) {
	lastPulledAt, err := p.readWatermark(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("pull: read watermark: %w", err)
	}

	transportTiming := metrics.Start(ctx, p.Metrics, metrics.OpPull, metrics.StageTransport)
	resp, err := p.Transport.Pull(ctx, transport.PullRequest{
		LastSyncAt: lastPulledAt,
		Tables:     p.Config.Tables,
	})
	transportTiming.Stop(0, err != nil)
	if err != nil {
		return Result{}, fmt.Errorf("pull: transport: %w", err)
	}

	applyTiming := metrics.Start(ctx, p.Metrics, metrics.OpPull, metrics.StageApply)
	var pulled int
	err = p.Records.WithTx(ctx, func(tx recordstore.Tx) error {
		for _, table := range p.Config.Tables {
			stanza, ok := resp.Changes[table]
			if !ok {
				continue
			}
			n, applyErr := p.applyTable(ctx, tx, table, stanza)
			pulled += n
			if applyErr != nil {
				return applyErr
			}
		}
		return nil
	})
	applyTiming.Stop(pulled, err != nil)
	if err != nil {
		return Result{}, fmt.Errorf("pull: apply transaction: %w", err)
	}

	p.writeWatermark(ctx, resp.Timestamp)

	return Result{Pulled: pulled}, nil
}

func (p *Pipeline) applyTable(ctx context.Context, tx recordstore.Tx, table string, stanza transport.TableChanges) (int, error) {
	count := 0

	for _, rec := range stanza.Created {
		if err := p.applyCreated(tx, table, rec); err != nil {
			p.Logger.Warn("pull: skipping record after apply error", "table", table, "server_id", rec.ID, "error", err)
			continue
		}
		count++
	}
	for _, rec := range stanza.Updated {
		if err := p.applyUpdated(ctx, tx, table, rec); err != nil {
			p.Logger.Warn("pull: skipping record after apply error", "table", table, "server_id", rec.ID, "error", err)
			continue
		}
		count++
	}
	for _, serverID := range stanza.Deleted {
		if _, err := tx.SoftDeleteByServerID(table, serverID); err != nil {
			p.Logger.Warn("pull: skipping tombstone after apply error", "table", table, "server_id", serverID, "error", err)
			continue
		}
		count++
	}
	return count, nil
}

// applyCreated applies a "created" entry. One whose server_id already
// exists locally is treated as an update instead.
func (p *Pipeline) applyCreated(tx recordstore.Tx, table string, rec transport.Record) error {
	recordID, _, ok, err := tx.GetByServerID(table, rec.ID)
	if err != nil {
		return err
	}
	if ok {
		return tx.OverwriteFromServer(table, recordID, mapFields(rec.Fields), rec.ID, rec.UpdatedAt)
	}
	return tx.CreateFromServer(table, mapFields(rec.Fields), rec.ID, rec.UpdatedAt)
}

// applyUpdated applies an "updated" entry, routing through conflict
// resolution when the local record has pending edits of its own.
func (p *Pipeline) applyUpdated(ctx context.Context, tx recordstore.Tx, table string, rec transport.Record) error {
	recordID, local, ok, err := tx.GetByServerID(table, rec.ID)
	if err != nil {
		return err
	}
	if !ok {
		return tx.CreateFromServer(table, mapFields(rec.Fields), rec.ID, rec.UpdatedAt)
	}

	if inConflict(local, rec.UpdatedAt) {
		return p.resolveConflict(ctx, tx, table, recordID, local, rec)
	}
	return tx.OverwriteFromServer(table, recordID, mapFields(rec.Fields), rec.ID, rec.UpdatedAt)
}

// inConflict reports whether the local record has uncommitted edits AND the
// server version it last saw is older than the incoming server version.
func inConflict(local map[string]any, serverUpdatedAt int64) bool {
	status, _ := local["sync_status"].(string)
	if status != "pending" {
		return false
	}
	localServerUpdatedAt, ok := asInt64(local["server_updated_at"])
	if !ok {
		return false
	}
	return serverUpdatedAt > localServerUpdatedAt
}

func (p *Pipeline) resolveConflict(ctx context.Context, tx recordstore.Tx, table, recordID string, local map[string]any, rec transport.Record) error {
	localUpdatedAt, _ := asInt64(local["updated_at"])

	cc := resolver.Context{
		Table:           table,
		RecordID:        recordID,
		LocalData:       local,
		ServerData:      rec.Fields,
		LocalUpdatedAt:  localUpdatedAt,
		ServerUpdatedAt: rec.UpdatedAt,
	}

	verdict, err := p.Resolver.Resolve(ctx, cc)
	if err != nil {
		return fmt.Errorf("pull: resolve conflict: %w", err)
	}

	switch verdict.Resolution {
	case resolver.ResolutionLocal:
		return nil
	case resolver.ResolutionServer:
		return tx.OverwriteFromServer(table, recordID, mapFields(rec.Fields), rec.ID, rec.UpdatedAt)
	case resolver.ResolutionMerged:
		return tx.OverwriteFromServer(table, recordID, mapFields(verdict.Merged), rec.ID, rec.UpdatedAt)
	default:
		return fmt.Errorf("pull: resolver returned unknown resolution %v", verdict.Resolution)
	}
}

func (p *Pipeline) readWatermark(ctx context.Context) (*int64, error) {
	raw, ok, err := p.Watermark.Get(ctx, kv.WatermarkKey)
	if err != nil {
		p.Logger.Warn("pull: watermark read failed, treating as absent", "error", err)
		return nil, nil
	}
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.Logger.Warn("pull: watermark value unparsable, treating as absent", "value", raw, "error", err)
		return nil, nil
	}
	return &v, nil
}

// writeWatermark is best-effort: failures are logged, never propagated. A
// dropped watermark update just means the next pull re-fetches more than
// strictly necessary.
func (p *Pipeline) writeWatermark(ctx context.Context, ts int64) {
	if err := p.Watermark.Set(ctx, kv.WatermarkKey, strconv.FormatInt(ts, 10)); err != nil {
		p.Logger.Warn("pull: failed to persist watermark", "timestamp", ts, "error", err)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		// SQLite stores timestamps like updated_at as ISO-8601 text.
		t, err := time.Parse(time.RFC3339Nano, n)
		if err != nil {
			return 0, false
		}
		return t.UnixMilli(), true
	case nil:
		return 0, false
	default:
		return 0, false
	}
}
