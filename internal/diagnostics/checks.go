package diagnostics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

// CheckStatus is the outcome of one check.
type CheckStatus string

const (
	CheckOK   CheckStatus = "ok"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// Check is the result of one connectivity check.
type Check struct {
	Name     string        `json:"name"`
	Target   string        `json:"target"`
	Status   CheckStatus   `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Category string        `json:"category,omitempty"`
	Latency  time.Duration `json:"latency"`
}

// Counter is implemented by stores that can report their document count.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Checker runs the doctor checks.
type Checker struct {
	store       core.TaskStore
	storeTarget string
	client      core.NodeClient
	nodes       []core.Node
	timeout     time.Duration
}

// NewChecker creates a checker. storeTarget is what the report shows for the
// store, e.g. its URL and index or its file path.
func NewChecker(store core.TaskStore, storeTarget string, client core.NodeClient, nodes []core.Node, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		store:       store,
		storeTarget: storeTarget,
		client:      client,
		nodes:       nodes,
		timeout:     timeout,
	}
}

// Run performs every check concurrently and returns the results in a fixed
// order: the store first, then the nodes in registration order.
func (c *Checker) Run(ctx context.Context) []Check {
	results := make([]Check, 1+len(c.nodes))

	var g errgroup.Group
	g.Go(func() error {
		results[0] = c.checkStore(ctx)
		return nil
	})
	for i, n := range c.nodes {
		g.Go(func() error {
			results[1+i] = c.checkNode(ctx, n)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Checker) checkStore(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	check := Check{Name: "task store", Target: c.storeTarget}
	start := time.Now()
	err := c.store.Ping(ctx)
	check.Latency = time.Since(start)
	if err != nil {
		return failed(check, err)
	}

	check.Status = CheckOK
	if counter, ok := c.store.(Counter); ok {
		n, err := counter.Count(ctx)
		if err != nil {
			check.Status = CheckWarn
			check.Detail = fmt.Sprintf("reachable, but counting documents failed: %v", err)
			return check
		}
		check.Detail = fmt.Sprintf("%d task documents", n)
	}
	return check
}

func (c *Checker) checkNode(ctx context.Context, n core.Node) Check {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	check := Check{Name: "node " + shortID(n.ID), Target: n.Address}
	start := time.Now()
	err := c.client.Probe(ctx, n)
	check.Latency = time.Since(start)
	if err != nil {
		return failed(check, err)
	}
	check.Status = CheckOK
	return check
}

func failed(check Check, err error) Check {
	check.Status = CheckFail
	check.Detail = err.Error()
	check.Category = string(core.GetCategory(err))
	return check
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Healthy reports whether no check failed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if c.Status == CheckFail {
			return false
		}
	}
	return true
}
