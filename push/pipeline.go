// Package push implements the push pipeline: draining the sync queue in
// batches, sending to transport, applying server acknowledgements to local
// records, and accounting retries.
package push

import (
	"context"
	"log/slog"

	"github.com/loonylabs-dev/react-native-offline-sync/metrics"
	"github.com/loonylabs-dev/react-native-offline-sync/queue"
	"github.com/loonylabs-dev/react-native-offline-sync/recordstore"
	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

// Config holds push pipeline tuning knobs.
type Config struct {
	MaxRetries int
	BatchSize  int
}

// DefaultConfig returns conservative defaults suitable for a mobile client.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BatchSize: 50}
}

// Result is the outcome of one push() call.
type Result struct {
	Pushed int
	Failed int
}

// Pipeline drains the queue and sends batches through Pusher.
type Pipeline struct {
	Queue     queue.Store
	Records   recordstore.Store
	Transport transport.Pusher
	Config    Config
	Logger    *slog.Logger
	Metrics   metrics.Recorder
}

// New builds a Pipeline with DefaultConfig; override Config/Logger on the
// returned value as needed.
func New(q queue.Store, records recordstore.Store, t transport.Pusher) *Pipeline {
	return &Pipeline{
		Queue:     q,
		Records:   records,
		Transport: t,
		Config:    DefaultConfig(),
		Logger:    slog.Default(),
	}
}

// Push drains pending items in batches and returns accumulated counts. Each
// item in a batch is acked, bumped, or left queued independently based on
// the transport response for that item.
func (p *Pipeline) Push(ctx context.Context) (Result, error) {
	items, err := p.Queue.Pending(ctx, p.Config.MaxRetries)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	var total Result
	for start := 0; start < len(items); start += p.Config.BatchSize {
		end := start + p.Config.BatchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]

		res, err := p.pushBatch(ctx, batch)
		if err != nil {
			return total, err
		}
		total.Pushed += res.Pushed
		total.Failed += res.Failed
	}
	return total, nil
}

func (p *Pipeline) pushBatch(ctx context.Context, batch []queue.Item) (Result, error) {
	req := transport.PushRequest{Changes: make([]transport.Change, len(batch))}
	for i, item := range batch {
		req.Changes[i] = transport.Change{
			TableName: item.TableName,
			Operation: string(item.Operation),
			RecordID:  item.RecordID,
			Data:      item.Payload,
		}
	}

	transportTiming := metrics.Start(ctx, p.Metrics, metrics.OpPush, metrics.StageTransport)
	resp, err := p.Transport.Push(ctx, req)
	transportTiming.Stop(len(batch), err != nil)
	if err != nil {
		p.bumpWholeBatch(ctx, batch, err.Error())
		return Result{Failed: len(batch)}, nil
	}
	if !resp.Success {
		p.bumpWholeBatch(ctx, batch, "push rejected: success=false")
		return Result{Failed: len(batch)}, nil
	}

	applyTiming := metrics.Start(ctx, p.Metrics, metrics.OpPush, metrics.StageApply)
	var result Result
	for i, item := range batch {
		if i >= len(resp.Results) {
			p.bumpOne(ctx, item, "missing result for item")
			result.Failed++
			continue
		}
		r := resp.Results[i]
		if r.Error != nil {
			p.bumpOne(ctx, item, *r.Error)
			result.Failed++
			continue
		}
		if err := p.applyAck(ctx, item, r); err != nil {
			p.Logger.Error("push: failed to apply ack, leaving item queued", "item", item.ID, "error", err)
			result.Failed++
			continue
		}
		result.Pushed++
	}
	applyTiming.Stop(result.Pushed, result.Failed > 0)
	return result, nil
}

// bumpWholeBatch handles a transport-level or success=false failure: every
// item in the batch is bumped. If Bump itself fails, the error is logged
// and the loop continues; the item keeps its previous retry count and will
// be retried on the next push.
func (p *Pipeline) bumpWholeBatch(ctx context.Context, batch []queue.Item, errText string) {
	for _, item := range batch {
		p.bumpOne(ctx, item, errText)
	}
}

func (p *Pipeline) bumpOne(ctx context.Context, item queue.Item, errText string) {
	if err := p.Queue.Bump(ctx, item.ID, errText); err != nil {
		p.Logger.Error("push: bump failed", "item", item.ID, "error", err)
	}
}

// applyAck applies the server's per-item result to the local record, then
// acks the queue item. It acks even when the local record is gone locally
// (e.g. the user deleted it after the change was queued but before the
// push completed) since there is nothing left to reconcile.
func (p *Pipeline) applyAck(ctx context.Context, item queue.Item, r transport.PushResult) error {
	err := p.Records.WithTx(ctx, func(tx recordstore.Tx) error {
		applyErr := tx.ApplyPushAck(item.TableName, item.RecordID, r.ServerID, r.ServerUpdatedAt)
		if applyErr == recordstore.ErrRecordNotFound {
			p.Logger.Warn("push: local record gone, acking anyway", "table", item.TableName, "record_id", item.RecordID)
			return nil
		}
		return applyErr
	})
	if err != nil {
		return err
	}
	return p.Queue.Ack(ctx, item.ID)
}
