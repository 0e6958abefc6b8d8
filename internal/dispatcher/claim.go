package dispatcher

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/events"
	"github.com/hugo-lorenzo-mato/elastask/internal/logging"
)

// claimJob is everything a detached unit needs. It holds copies only; the
// loop keeps no reference to it once launched.
type claimJob struct {
	task     core.Task
	node     core.Node
	op       core.Operation
	attempts int
	now      time.Time
	backoff  time.Duration
	cond     *core.Version
}

// claimAndDispatch claims the task for the node and, once the claim is
// stored, asks the node to run it while marking it running. A failed claim
// ends the unit; a failed run-now does not undo the claim.
func (d *Dispatcher) claimAndDispatch(ctx context.Context, logger *logging.Logger, job claimJob) {
	id := job.task.ID
	log := logger.WithTask(id).WithNode(job.node.ID, job.node.Address)

	patch := core.ClaimPatch(job.node.ID, job.attempts, job.now, job.backoff)
	_, err := d.store.Update(ctx, id, patch, job.cond)
	if err != nil {
		if core.IsCategory(err, core.ErrCatConflict) {
			d.stats.ClaimConflicts.Add(1)
			log.Warn("task changed since it was read, not claiming",
				"operation", events.OpClaim, "conflict", true, "error", err)
		} else {
			d.stats.ClaimFailures.Add(1)
			log.Error("claiming task failed", "operation", events.OpClaim, "error", err)
		}
		d.bus.Publish(events.NewTaskErrorEvent(id, events.OpClaim, err, core.IsRetryable(err)))
		return
	}

	d.stats.Claimed.Add(1)
	log.Info("task claimed", "operation", job.op.String(), "attempts", job.attempts)
	d.bus.Publish(events.NewTaskClaimedEvent(id, job.node.ID, job.node.Address, job.op.String(), job.attempts))

	payload := job.task.RunNowPayload()

	var g errgroup.Group
	g.Go(func() error {
		if err := d.client.RunNow(ctx, job.node, payload); err != nil {
			d.stats.DispatchErrors.Add(1)
			log.Error("sending run-now to node failed", "operation", events.OpDispatch, "error", err)
			d.bus.Publish(events.NewTaskErrorEvent(id, events.OpDispatch, err, core.IsRetryable(err)))
			return err
		}
		d.stats.Dispatched.Add(1)
		log.Debug("task dispatched")
		d.bus.Publish(events.NewTaskDispatchedEvent(id, job.node.ID, job.node.Address))
		return nil
	})
	// The node writes the document itself when it accepts the run, so the
	// running update cannot be tied to the claim's version.
	g.Go(func() error {
		if _, err := d.store.Update(ctx, id, core.RunningPatch(d.clock.Now()), nil); err != nil {
			d.stats.RunFailures.Add(1)
			log.Error("marking task running failed", "operation", events.OpMarkRunning, "error", err)
			d.bus.Publish(events.NewTaskErrorEvent(id, events.OpMarkRunning, err, core.IsRetryable(err)))
			return err
		}
		d.stats.MarkedRunning.Add(1)
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Debug("dispatch unit finished with errors", "error", err)
	}
}

// failOut marks a task that used up its attempts as failed.
func (d *Dispatcher) failOut(ctx context.Context, logger *logging.Logger, task core.Task, conditional bool) {
	log := logger.WithTask(task.ID)

	var cond *core.Version
	if conditional && task.Version != nil {
		v := *task.Version
		cond = &v
	}
	if _, err := d.store.Update(ctx, task.ID, core.FailedPatch(), cond); err != nil {
		d.stats.FailFailures.Add(1)
		log.Error("marking task failed failed", "operation", events.OpMarkFailed,
			"conflict", core.IsCategory(err, core.ErrCatConflict), "error", err)
		d.bus.Publish(events.NewTaskErrorEvent(task.ID, events.OpMarkFailed, err, core.IsRetryable(err)))
		return
	}

	d.stats.FailedOut.Add(1)
	log.Info("task failed out", "attempts", task.Attempts)
	d.bus.Publish(events.NewTaskFailedOutEvent(task.ID, task.Attempts))
}
