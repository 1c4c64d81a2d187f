package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/danielmmetz/hn-apicheck/check"
	"github.com/danielmmetz/hn-apicheck/hn"
	"github.com/danielmmetz/hn-apicheck/sse"
	"github.com/danielmmetz/hn-apicheck/store"
)

// Run triggers.
const (
	TriggerInterval = "interval"
	TriggerManual   = "manual"
	TriggerOnce     = "once"
)

// Runner executes the check suite, records each run and streams its results.
// runs and broker may be nil.
type Runner struct {
	client   *hn.Client
	runs     *store.RunStore
	broker   *sse.Broker
	opts     []check.SuiteOption
	interval time.Duration

	sf   singleflight.Group
	last atomic.Pointer[store.Run]
}

func NewRunner(client *hn.Client, runs *store.RunStore, broker *sse.Broker, interval time.Duration, opts ...check.SuiteOption) *Runner {
	return &Runner{
		client:   client,
		runs:     runs,
		broker:   broker,
		opts:     opts,
		interval: interval,
	}
}

// Start runs the suite immediately and then on every interval until ctx is
// cancelled.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		r.tick(ctx)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("runner: shutting down")
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *Runner) tick(ctx context.Context) {
	if _, _, err := r.RunShared(ctx, TriggerInterval); err != nil {
		slog.Error("runner: scheduled run failed", "error", err)
	}
}

// RunShared is Run, except that callers arriving while a run is in flight
// wait for that run instead of starting another. shared reports whether the
// result came from a run started by someone else.
func (r *Runner) RunShared(ctx context.Context, trigger string) (run *store.Run, shared bool, err error) {
	v, err, shared := r.sf.Do("run", func() (interface{}, error) {
		return r.Run(ctx, trigger)
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*store.Run), shared, nil
}

// Run executes the suite once. Check failures are part of the returned run,
// not errors; err is only set when the run could not be recorded.
func (r *Runner) Run(ctx context.Context, trigger string) (*store.Run, error) {
	started := time.Now()
	run := &store.Run{
		BaseURL:   r.client.BaseURL(),
		Trigger:   trigger,
		StartedAt: started.Unix(),
	}
	if r.runs != nil {
		id, err := r.runs.Create(ctx, run.BaseURL, trigger, run.StartedAt)
		if err != nil {
			return nil, err
		}
		run.ID = id
	}
	r.publish(sse.EventRunStarted, run)
	slog.Info("run started", "run_id", run.ID, "trigger", trigger, "base_url", run.BaseURL)

	rec := &recorder{runner: r, runID: run.ID}
	opts := append([]check.SuiteOption{
		check.WithReporter(check.MultiReporter{check.LogReporter{Logger: slog.Default()}, rec}),
	}, r.opts...)
	results := check.NewSuite(r.client, opts...).Run(ctx)

	run.Summary = check.Summarize(results)
	run.Results = results
	finished := time.Now().Unix()
	run.FinishedAt = &finished

	if r.runs != nil {
		// record the outcome even when the run was cut short
		if err := r.runs.Finish(context.WithoutCancel(ctx), run.ID, finished, run.Summary); err != nil {
			return nil, err
		}
	}
	r.last.Store(run)
	r.publish(sse.EventRunFinished, run)

	slog.Info("run complete",
		"run_id", run.ID,
		"passed", run.Passed,
		"failed", run.Failed,
		"skipped", run.Skipped,
		"errored", run.Errored,
		"elapsed", time.Since(started),
	)
	return run, nil
}

// Last returns the most recently finished run of this process, or nil.
func (r *Runner) Last() *store.Run {
	return r.last.Load()
}

func (r *Runner) publish(eventType string, v any) {
	if r.broker == nil {
		return
	}
	if err := r.broker.Publish(eventType, v); err != nil {
		slog.Error("runner: publish event", "event", eventType, "error", err)
	}
}

// checkEvent is the payload of a check_result event.
type checkEvent struct {
	RunID  int64        `json:"run_id"`
	Seq    int          `json:"seq"`
	Result check.Result `json:"result"`
}

// recorder persists and streams each result as it arrives.
type recorder struct {
	runner *Runner
	runID  int64

	mu  sync.Mutex
	seq int
}

func (rec *recorder) Report(ctx context.Context, res check.Result) {
	rec.mu.Lock()
	seq := rec.seq
	rec.seq++
	rec.mu.Unlock()

	if rec.runner.runs != nil {
		if err := rec.runner.runs.AddResult(context.WithoutCancel(ctx), rec.runID, seq, res); err != nil {
			slog.Error("runner: store result", "run_id", rec.runID, "check", res.Name, "error", err)
		}
	}
	rec.runner.publish(sse.EventCheckResult, checkEvent{RunID: rec.runID, Seq: seq, Result: res})
}
