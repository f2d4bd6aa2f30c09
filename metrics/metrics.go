// Package metrics defines a pluggable stage-timing hook the push and pull
// pipelines call at the boundary of each network round trip and apply
// step, so a caller can wire timings into whatever observability stack
// their app already uses without this module depending on one.
package metrics

import (
	"context"
	"time"
)

const (
	OpPush = "push"
	OpPull = "pull"

	StageTransport = "transport"
	StageApply     = "apply"
	StageTotal     = "total"
)

// StageTiming is one measured span within a push or pull cycle.
type StageTiming struct {
	Operation string
	Stage     string
	Duration  time.Duration
	Count     int
	Error     bool
}

// Recorder receives stage timings. Implementations must be safe for
// concurrent use; the pipelines may call ObserveStage from background
// goroutines.
type Recorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

// RecorderFunc adapts a plain function to the Recorder interface.
type RecorderFunc func(ctx context.Context, timing StageTiming)

func (f RecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) { f(ctx, timing) }

// Stopwatch times one stage and reports it to rec on Stop. A nil rec makes
// Stop a no-op, so callers can unconditionally defer sw.Stop(...).
type Stopwatch struct {
	rec       Recorder
	ctx       context.Context
	operation string
	stage     string
	start     time.Time
}

func Start(ctx context.Context, rec Recorder, operation, stage string) *Stopwatch {
	return &Stopwatch{rec: rec, ctx: ctx, operation: operation, stage: stage, start: time.Now()}
}

func (sw *Stopwatch) Stop(count int, hadError bool) {
	if sw == nil || sw.rec == nil {
		return
	}
	sw.rec.ObserveStage(sw.ctx, StageTiming{
		Operation: sw.operation,
		Stage:     sw.stage,
		Duration:  time.Since(sw.start),
		Count:     count,
		Error:     hadError,
	})
}
