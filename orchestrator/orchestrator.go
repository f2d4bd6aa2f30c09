// Package orchestrator owns the engine state machine that combines the push
// and pull pipelines, a background ticker, and reconnect-triggered sync. It
// is the only component allowed to mutate State; observers only ever see
// defensive copies.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loonylabs-dev/react-native-offline-sync/network"
	"github.com/loonylabs-dev/react-native-offline-sync/pull"
	"github.com/loonylabs-dev/react-native-offline-sync/push"
	"github.com/loonylabs-dev/react-native-offline-sync/queue"
	"github.com/loonylabs-dev/react-native-offline-sync/retry"
)

// ErrAlreadyInProgress is returned by Sync when a sync attempt is already
// running.
var ErrAlreadyInProgress = errors.New("orchestrator: sync already in progress")

// ErrOffline is returned by Sync when the network monitor reports offline.
var ErrOffline = errors.New("orchestrator: offline")

// Config holds orchestrator tuning knobs.
type Config struct {
	SyncInterval        time.Duration
	MaxRetries          int
	RetryDelayBase      time.Duration
	RetryDelayMax       time.Duration
	EnableBackgroundSync bool
	SyncOnReconnect     bool
}

// DefaultConfig returns conservative defaults suitable for a mobile client.
func DefaultConfig() Config {
	return Config{
		SyncInterval:         5 * time.Minute,
		MaxRetries:           3,
		RetryDelayBase:       1 * time.Second,
		RetryDelayMax:        30 * time.Second,
		EnableBackgroundSync: true,
		SyncOnReconnect:      true,
	}
}

// Orchestrator is the sync engine's single state machine instance.
type Orchestrator struct {
	Queue   queue.Store
	Push    *push.Pipeline
	Pull    *pull.Pipeline
	Network *network.Monitor
	Config  Config
	Logger  *slog.Logger

	mu        sync.Mutex
	state     State
	listeners map[int]Observer
	nextID    int

	wg            sync.WaitGroup
	cancel        context.CancelFunc
	netUnsubscribe func()

	failureStreak int
}

// New builds an Orchestrator with DefaultConfig; override Config/Logger on
// the returned value before calling Initialize.
func New(q queue.Store, pushPipe *push.Pipeline, pullPipe *pull.Pipeline, netMonitor *network.Monitor) *Orchestrator {
	return &Orchestrator{
		Queue:     q,
		Push:      pushPipe,
		Pull:      pullPipe,
		Network:   netMonitor,
		Config:    DefaultConfig(),
		Logger:    slog.Default(),
		state:     State{Status: StatusIdle},
		listeners: make(map[int]Observer),
	}
}

// Initialize refreshes pending_changes, starts the background ticker (if
// enabled), and subscribes to reconnect events (if enabled).
func (o *Orchestrator) Initialize(ctx context.Context) {
	o.refreshPendingChanges(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if o.Config.EnableBackgroundSync {
		o.wg.Add(1)
		go o.tickerLoop(runCtx)
	}
	if o.Config.SyncOnReconnect && o.Network != nil {
		o.netUnsubscribe = o.Network.Subscribe(func(st network.Status) {
			if st.IsConnected && !o.IsSyncing() {
				go func() {
					_ = o.Sync(runCtx)
				}()
			}
		})
	}
}

// Shutdown stops the ticker and unsubscribes from the network monitor. It
// does not interrupt an in-flight sync; Sync observes ctx cancellation on
// its own and returns whenever its current step does.
func (o *Orchestrator) Shutdown() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	if o.netUnsubscribe != nil {
		o.netUnsubscribe()
		o.netUnsubscribe = nil
	}
}

func (o *Orchestrator) tickerLoop(ctx context.Context) {
	defer o.wg.Done()

	interval := o.Config.SyncInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if o.Network != nil && o.Network.IsOnline() && !o.IsSyncing() {
				_ = o.Sync(ctx)
			}
			timer.Reset(o.nextTickDelay(interval))
		}
	}
}

// nextTickDelay returns the larger of interval and an exponential backoff
// (capped at RetryDelayMax) computed from the current streak of consecutive
// sync failures; after a success it is interval again. The backoff only
// lengthens the wait when it exceeds interval, which never happens with
// DefaultConfig (30s cap, 5 minute interval).
func (o *Orchestrator) nextTickDelay(interval time.Duration) time.Duration {
	o.mu.Lock()
	streak := o.failureStreak
	o.mu.Unlock()
	if streak == 0 {
		return interval
	}
	backoff := retry.Backoff(streak-1, o.Config.RetryDelayBase, o.Config.RetryDelayMax)
	if backoff > interval {
		return backoff
	}
	return interval
}

// IsSyncing mirrors state.Status == syncing.
func (o *Orchestrator) IsSyncing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.IsSyncing
}

// State returns a defensive copy of the current engine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Copy()
}

// Subscribe registers an observer invoked with a defensive copy of engine
// state after every mutation. Observer errors/panics are isolated and never
// affect other observers or the state mutation that triggered them.
func (o *Orchestrator) Subscribe(obs Observer) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = obs
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}

// QueueOperation delegates to the queue and refreshes pending_changes in
// engine state.
func (o *Orchestrator) QueueOperation(ctx context.Context, op queue.Operation, table, recordID string, payload map[string]any) error {
	if err := o.Queue.Enqueue(ctx, op, table, recordID, payload); err != nil {
		return err
	}
	o.refreshPendingChanges(ctx)
	return nil
}

// QueueOperationTx enqueues op inside the caller's transaction, so the
// sync-queue entry commits atomically with whatever record mutation tx also
// carries. It does not touch engine state: the enqueue is not durable until
// the caller commits tx, so callers must call RefreshPendingChanges after a
// successful commit.
func (o *Orchestrator) QueueOperationTx(tx *sql.Tx, op queue.Operation, table, recordID string, payload map[string]any) error {
	return o.Queue.EnqueueTx(tx, op, table, recordID, payload)
}

// RefreshPendingChanges recomputes the pending_changes count in engine state
// and notifies observers. Callers that enqueue via QueueOperationTx should
// call this after committing their transaction.
func (o *Orchestrator) RefreshPendingChanges(ctx context.Context) {
	o.refreshPendingChanges(ctx)
}

// TriggerSync is a fire-and-forget manual sync trigger.
func (o *Orchestrator) TriggerSync(ctx context.Context) {
	go func() { _ = o.Sync(ctx) }()
}

// Sync runs one push-then-pull cycle: it refuses to overlap with another
// in-flight sync, bails out early when the network monitor reports offline,
// and otherwise pushes queued changes before pulling server changes,
// updating engine state and pending_changes throughout.
func (o *Orchestrator) Sync(ctx context.Context) Result {
	start := time.Now()

	if !o.tryBeginSync() {
		return Result{Success: false, Error: ErrAlreadyInProgress}
	}
	defer o.finishSync()

	if o.Network != nil && !o.Network.IsOnline() {
		o.recordFailure(ErrOffline)
		return Result{Success: false, Error: ErrOffline, Stats: Stats{DurationMS: time.Since(start).Milliseconds()}}
	}

	var stats Stats
	if o.Push != nil {
		res, err := o.Push.Push(ctx)
		if err != nil {
			o.recordFailure(err)
			return Result{Success: false, Error: err, Stats: Stats{DurationMS: time.Since(start).Milliseconds()}}
		}
		stats.Pushed = res.Pushed
		stats.Failed = res.Failed
	}

	if o.Pull != nil {
		res, err := o.Pull.Pull(ctx)
		if err != nil {
			o.recordFailure(err)
			return Result{Success: false, Error: err, Stats: Stats{Pushed: stats.Pushed, Failed: stats.Failed, DurationMS: time.Since(start).Milliseconds()}}
		}
		stats.Pulled = res.Pulled
	}

	o.refreshPendingChanges(ctx)
	stats.DurationMS = time.Since(start).Milliseconds()
	o.recordSuccess()

	return Result{Success: true, Stats: stats}
}

func (o *Orchestrator) tryBeginSync() bool {
	o.mu.Lock()
	if o.state.IsSyncing {
		o.mu.Unlock()
		return false
	}
	o.state.IsSyncing = true
	o.state.Status = StatusSyncing
	o.mu.Unlock()
	o.publish()
	return true
}

func (o *Orchestrator) finishSync() {
	o.mu.Lock()
	o.state.IsSyncing = false
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) recordSuccess() {
	now := time.Now()
	o.mu.Lock()
	o.state.Status = StatusIdle
	o.state.Error = nil
	o.state.LastSyncAt = &now
	o.failureStreak = 0
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) recordFailure(err error) {
	o.mu.Lock()
	o.state.Status = StatusError
	o.state.Error = err
	o.failureStreak++
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) refreshPendingChanges(ctx context.Context) {
	n := o.Queue.CountAll(ctx)
	o.mu.Lock()
	o.state.PendingChanges = n
	o.mu.Unlock()
	o.publish()
}

// publish fans the current state out to every listener. Listeners are
// invoked outside the state lock so a listener that calls back into the
// orchestrator (e.g. State()) cannot deadlock; panics are caught and
// logged, never blocking other listeners or affecting the state mutation.
func (o *Orchestrator) publish() {
	o.mu.Lock()
	snapshot := o.state.Copy()
	funcs := make([]Observer, 0, len(o.listeners))
	for _, l := range o.listeners {
		funcs = append(funcs, l)
	}
	o.mu.Unlock()

	for _, l := range funcs {
		o.invoke(l, snapshot)
	}
}

func (o *Orchestrator) invoke(obs Observer, st State) {
	defer func() {
		if r := recover(); r != nil {
			o.Logger.Warn("orchestrator: observer panicked", "panic", fmt.Sprint(r))
		}
	}()
	obs(st)
}
