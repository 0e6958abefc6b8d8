// Package dispatcher runs the scan-and-claim loop: each cycle fetches the
// task documents, decides per task whether to run, retry or fail it out,
// picks a node for each task to run, and hands the claim and the run-now
// request to a detached unit so the loop never waits on a node.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/events"
	"github.com/hugo-lorenzo-mato/elastask/internal/logging"
)

// Dispatcher owns the polling loop for one set of nodes.
type Dispatcher struct {
	store    core.TaskStore
	client   core.NodeClient
	registry *core.Registry
	clock    core.Clock
	bus      *events.EventBus
	logger   *logging.Logger

	cfg   Config
	cfgMu sync.RWMutex

	stats    Stats
	inflight sync.WaitGroup

	mu         sync.RWMutex
	lastReport *CycleReport
	lastOwners core.OwnershipMap
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c core.Clock) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

// WithEventBus publishes cycle and task events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(d *Dispatcher) {
		d.bus = bus
	}
}

// New creates a dispatcher. Zero values in cfg take their defaults.
func New(store core.TaskStore, client core.NodeClient, registry *core.Registry, cfg Config, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("dispatcher: task store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("dispatcher: node client is required")
	}
	if registry == nil || registry.Len() == 0 {
		return nil, core.ErrValidation(core.CodeNoNodes, "dispatcher: at least one node is required")
	}

	d := &Dispatcher{
		store:    store,
		client:   client,
		registry: registry,
		clock:    core.SystemClock{},
		logger:   logging.NewNop(),
		cfg:      cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the configuration currently in effect.
func (d *Dispatcher) Config() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// SetLimits changes capacity, attempt cap and polling interval. The change
// applies from the next cycle on; non-positive values are ignored.
func (d *Dispatcher) SetLimits(l Limits) {
	d.cfgMu.Lock()
	defer d.cfgMu.Unlock()
	if l.Capacity > 0 {
		d.cfg.Capacity = l.Capacity
	}
	if l.MaxAttempts > 0 {
		d.cfg.MaxAttempts = l.MaxAttempts
	}
	if l.PollingInterval > 0 {
		d.cfg.PollingInterval = l.PollingInterval
	}
}

// Nodes returns the registered nodes.
func (d *Dispatcher) Nodes() []core.Node {
	return d.registry.Nodes()
}

// Stats returns a snapshot of the cumulative counters.
func (d *Dispatcher) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// LastReport returns the report of the most recent cycle, or nil before
// the first one.
func (d *Dispatcher) LastReport() *CycleReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastReport == nil {
		return nil
	}
	r := *d.lastReport
	return &r
}

// Ownership returns the per-node task counts seen by the last cycle,
// including that cycle's assignments.
func (d *Dispatcher) Ownership() core.OwnershipMap {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lastOwners == nil {
		return core.OwnershipMap{}
	}
	return d.lastOwners.Clone()
}

// Run repeats cycles until ctx is cancelled. A failed cycle is logged and
// the loop carries on after the usual pause.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		"nodes", d.registry.Len(),
		"capacity", d.Config().Capacity,
		"polling_interval", d.Config().PollingInterval)

	for {
		if _, err := d.RunCycle(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("polling cycle failed", "error", err)
		}

		timer := time.NewTimer(d.Config().PollingInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("dispatcher stopping")
			return nil
		case <-timer.C:
		}
	}
}

// Wait blocks until every detached claim and fail-out unit has finished.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// RunCycle performs one fetch-classify-dispatch pass. Only a failed fetch
// is returned as an error; per-task failures are logged, counted and
// published, and never stop the cycle.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleReport, error) {
	cfg := d.Config()
	cycle := d.stats.Cycles.Add(1)
	start := d.clock.Now()
	logger := d.logger.WithCycle(cycle)

	report := CycleReport{Cycle: cycle, StartedAt: start}
	d.bus.Publish(events.NewCycleStartedEvent(cycle))

	docs, err := d.store.Search(ctx, cfg.PageSize)
	if err != nil {
		d.stats.CycleErrors.Add(1)
		err = fmt.Errorf("fetching tasks: %w", err)
		report.Error = err.Error()
		d.finishCycle(report, nil, err)
		return report, err
	}
	report.Fetched = len(docs)
	d.stats.Fetched.Add(int64(len(docs)))

	plan := Plan(docs, d.registry.Nodes(), cfg.Capacity, cfg.MaxAttempts, start)

	for _, u := range plan.Unparsed {
		logger.Debug("skipping unreadable task document", "task_id", u.ID, "error", u.Err)
		d.bus.Publish(events.NewTaskErrorEvent(u.ID, events.OpParse, u.Err, false))
	}
	report.Unparsed = len(plan.Unparsed)
	d.stats.Unparsed.Add(int64(len(plan.Unparsed)))

	// Detached units must outlive a cancelled loop so shutdown does not
	// abandon a half-made claim.
	detached := context.WithoutCancel(ctx)

	for _, e := range plan.Entries {
		switch {
		case e.Operation == core.OpFail:
			report.FailOuts++
			task := *e.Task
			d.launch(func() { d.failOut(detached, logger, task, cfg.ConditionalClaims) })
		case e.Node != nil:
			report.Claims++
			job := claimJob{
				task:     *e.Task,
				node:     *e.Node,
				op:       e.Operation,
				attempts: e.Attempts,
				now:      start,
				backoff:  cfg.RetryBackoff,
			}
			if cfg.ConditionalClaims && e.Task.Version != nil {
				v := *e.Task.Version
				job.cond = &v
			}
			d.launch(func() { d.claimAndDispatch(detached, logger, job) })
		case e.NoCapacity():
			report.NoCapacity++
			logger.Debug("no node has capacity left", "task_id", e.Task.ID, "operation", e.Operation.String())
		default:
			report.Idle++
		}
	}
	d.stats.NoCapacity.Add(int64(report.NoCapacity))

	report.Duration = d.clock.Now().Sub(start)
	d.finishCycle(report, plan.Owners, nil)

	logger.Debug("cycle complete",
		"fetched", report.Fetched,
		"claims", report.Claims,
		"fail_outs", report.FailOuts,
		"no_capacity", report.NoCapacity,
		"unparsed", report.Unparsed)
	return report, nil
}

func (d *Dispatcher) finishCycle(report CycleReport, owners core.OwnershipMap, err error) {
	d.mu.Lock()
	r := report
	d.lastReport = &r
	if owners != nil {
		d.lastOwners = owners.Clone()
	}
	d.mu.Unlock()

	d.bus.Publish(events.NewCycleCompletedEvent(report.Cycle, events.CycleSummary{
		Fetched:    report.Fetched,
		Unparsed:   report.Unparsed,
		Claimed:    report.Claims,
		FailedOut:  report.FailOuts,
		NoCapacity: report.NoCapacity,
		Err:        err,
		Duration:   report.Duration,
	}))
}

// launch runs fn on its own goroutine, tracked for Wait.
func (d *Dispatcher) launch(fn func()) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		fn()
	}()
}
