package dispatcher

import (
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

// Entry is the decision taken for one parsed task during a cycle.
type Entry struct {
	Task      *core.Task
	Operation core.Operation
	// Node is set when a run or retry was given a node.
	Node *core.Node
	// Attempts is the attempts value the claim writes.
	Attempts int
}

// NoCapacity reports a run or retry that found every node full.
func (e Entry) NoCapacity() bool {
	return (e.Operation == core.OpRun || e.Operation == core.OpRetry) && e.Node == nil
}

// Unparsed is a fetched document that could not be read as a task.
type Unparsed struct {
	ID  string
	Err error
}

// CyclePlan is the outcome of classifying one scan.
type CyclePlan struct {
	// Entries holds every parsed task in fetch order, including those
	// left alone.
	Entries  []Entry
	Unparsed []Unparsed
	// Owners counts tasks per node after this cycle's assignments.
	Owners core.OwnershipMap
}

// Plan classifies docs and picks nodes the way a cycle does, without any
// I/O. Ownership is first counted over the whole scan; then every task due
// to run or retry is given the node with the most room, in fetch order,
// each assignment reducing that node's room for the tasks after it. Tasks
// to fail out never take a node.
func Plan(docs []core.Document, nodes []core.Node, capacity, maxAttempts int, now time.Time) *CyclePlan {
	plan := &CyclePlan{Owners: make(core.OwnershipMap)}

	for _, doc := range docs {
		task, err := core.ParseTask(doc)
		if err != nil {
			plan.Unparsed = append(plan.Unparsed, Unparsed{ID: doc.ID, Err: err})
			continue
		}
		if owner, ok := task.Owner(); ok && owner != "" {
			plan.Owners.Assign(owner)
		}
		plan.Entries = append(plan.Entries, Entry{
			Task:      task,
			Operation: task.ReadyTo(now, maxAttempts),
			Attempts:  task.Attempts,
		})
	}

	for i := range plan.Entries {
		e := &plan.Entries[i]
		switch e.Operation {
		case core.OpRun, core.OpRetry:
		default:
			continue
		}

		node, ok := core.SelectNode(nodes, capacity, plan.Owners)
		if !ok {
			continue
		}
		if e.Operation == core.OpRetry {
			e.Attempts++
		}
		e.Node = &node
		plan.Owners.Assign(node.ID)
	}
	return plan
}

// Counts summarizes the plan.
func (p *CyclePlan) Counts() (claims, failOuts, noCapacity, idle int) {
	for _, e := range p.Entries {
		switch {
		case e.Node != nil:
			claims++
		case e.Operation == core.OpFail:
			failOuts++
		case e.NoCapacity():
			noCapacity++
		default:
			idle++
		}
	}
	return claims, failOuts, noCapacity, idle
}
