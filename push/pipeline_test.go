package push

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/loonylabs-dev/react-native-offline-sync/queue"
	"github.com/loonylabs-dev/react-native-offline-sync/recordstore"
	"github.com/loonylabs-dev/react-native-offline-sync/transport"
)

type fakeQueue struct {
	items map[string]queue.Item
}

func newFakeQueue(items ...queue.Item) *fakeQueue {
	q := &fakeQueue{items: make(map[string]queue.Item)}
	for _, it := range items {
		q.items[it.ID] = it
	}
	return q
}

func (f *fakeQueue) Enqueue(context.Context, queue.Operation, string, string, map[string]any) error {
	return nil
}
func (f *fakeQueue) EnqueueTx(*sql.Tx, queue.Operation, string, string, map[string]any) error {
	return nil
}

func (f *fakeQueue) Pending(ctx context.Context, maxRetries int) ([]queue.Item, error) {
	var out []queue.Item
	for _, it := range f.items {
		if it.RetryCount < maxRetries {
			out = append(out, it)
		}
	}
	return out, nil
}
func (f *fakeQueue) Failed(ctx context.Context, maxRetries int) ([]queue.Item, error) { return nil, nil }
func (f *fakeQueue) CountAll(ctx context.Context) int                                 { return len(f.items) }

func (f *fakeQueue) Ack(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return queue.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeQueue) Bump(ctx context.Context, id string, errText string) error {
	it, ok := f.items[id]
	if !ok {
		return queue.ErrNotFound
	}
	it.RetryCount++
	it.ErrorMessage = &errText
	f.items[id] = it
	return nil
}
func (f *fakeQueue) PurgeFailed(ctx context.Context, maxRetries int) (int, error) { return 0, nil }
func (f *fakeQueue) PurgeAll(ctx context.Context) (int, error)                    { return 0, nil }

type fakeTx struct {
	acked map[string]bool
	store map[string]bool // recordID -> exists
}

func (t *fakeTx) GetByRecordID(table, recordID string) (map[string]any, bool, error) { return nil, false, nil }
func (t *fakeTx) GetByServerID(table, serverID string) (string, map[string]any, bool, error) {
	return "", nil, false, nil
}
func (t *fakeTx) ApplyPushAck(table, recordID string, serverID *string, serverUpdatedAt *int64) error {
	if !t.store[recordID] {
		return recordstore.ErrRecordNotFound
	}
	t.acked[recordID] = true
	return nil
}
func (t *fakeTx) CreateFromServer(table string, fields map[string]any, serverID string, serverUpdatedAt int64) error {
	return nil
}
func (t *fakeTx) OverwriteFromServer(table, recordID string, fields map[string]any, serverID string, serverUpdatedAt int64) error {
	return nil
}
func (t *fakeTx) SoftDeleteByServerID(table, serverID string) (int, error) { return 0, nil }

type fakeRecords struct {
	store map[string]bool
	acked map[string]bool
}

func newFakeRecords(existing ...string) *fakeRecords {
	r := &fakeRecords{store: make(map[string]bool), acked: make(map[string]bool)}
	for _, id := range existing {
		r.store[id] = true
	}
	return r
}

func (r *fakeRecords) WithTx(ctx context.Context, fn func(recordstore.Tx) error) error {
	tx := &fakeTx{acked: r.acked, store: r.store}
	return fn(tx)
}

type fakeTransport struct {
	resp transport.PushResponse
	err  error
	reqs []transport.PushRequest
}

func (f *fakeTransport) Push(ctx context.Context, req transport.PushRequest) (transport.PushResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func mkItem(recordID string) queue.Item {
	return queue.Item{ID: uuid.New().String(), Operation: queue.OpCreate, TableName: "notes", RecordID: recordID, Payload: map[string]any{"title": "x"}}
}

func TestPushAcksSuccessfulItems(t *testing.T) {
	item := mkItem("rec-1")
	q := newFakeQueue(item)
	records := newFakeRecords("rec-1")
	serverID := "srv-1"
	serverUpdatedAt := int64(1)
	tr := &fakeTransport{resp: transport.PushResponse{
		Success: true,
		Results: []transport.PushResult{{RecordID: "rec-1", ServerID: &serverID, ServerUpdatedAt: &serverUpdatedAt}},
	}}

	p := New(q, records, tr)
	res, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Pushed)
	require.Equal(t, 0, res.Failed)
	require.True(t, records.acked["rec-1"])
	require.Empty(t, q.items, "acked item must be removed from the queue")
}

func TestPushBumpsItemOnPerItemError(t *testing.T) {
	item := mkItem("rec-2")
	q := newFakeQueue(item)
	records := newFakeRecords("rec-2")
	errText := "validation failed"
	tr := &fakeTransport{resp: transport.PushResponse{
		Success: true,
		Results: []transport.PushResult{{RecordID: "rec-2", Error: &errText}},
	}}

	p := New(q, records, tr)
	res, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Pushed)
	require.Equal(t, 1, res.Failed)
	require.Len(t, q.items, 1, "failed item stays queued for retry")
	require.Equal(t, 1, q.items[item.ID].RetryCount)
}

func TestPushBumpsWholeBatchOnTransportError(t *testing.T) {
	item1 := mkItem("rec-3")
	item2 := mkItem("rec-4")
	q := newFakeQueue(item1, item2)
	records := newFakeRecords("rec-3", "rec-4")
	tr := &fakeTransport{err: context.DeadlineExceeded}

	p := New(q, records, tr)
	res, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, res.Pushed)
	require.Equal(t, 2, res.Failed)
	require.Equal(t, 1, q.items[item1.ID].RetryCount)
	require.Equal(t, 1, q.items[item2.ID].RetryCount)
}

func TestPushAcksEvenWhenLocalRecordGone(t *testing.T) {
	item := mkItem("rec-5")
	q := newFakeQueue(item)
	records := newFakeRecords() // no local record
	serverID := "srv-5"
	tr := &fakeTransport{resp: transport.PushResponse{
		Success: true,
		Results: []transport.PushResult{{RecordID: "rec-5", ServerID: &serverID}},
	}}

	p := New(q, records, tr)
	res, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Pushed)
	require.Empty(t, q.items)
}

func TestPushNoPendingItemsIsNoop(t *testing.T) {
	q := newFakeQueue()
	records := newFakeRecords()
	tr := &fakeTransport{}

	p := New(q, records, tr)
	res, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, Result{}, res)
	require.Empty(t, tr.reqs, "Push must not call transport when there is nothing pending")
}

func TestPushBatchesBySize(t *testing.T) {
	items := make([]queue.Item, 0, 5)
	for i := 0; i < 5; i++ {
		items = append(items, mkItem(uuid.New().String()))
	}
	q := newFakeQueue(items...)
	records := newFakeRecords()
	tr := &fakeTransport{resp: transport.PushResponse{Success: true, Results: make([]transport.PushResult, 2)}}

	p := New(q, records, tr)
	p.Config.BatchSize = 2
	_, err := p.Push(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, len(tr.reqs), "5 items at batch size 2 must produce 3 requests")
}
