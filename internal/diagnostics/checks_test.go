package diagnostics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/testutil"
)

type countingStore struct {
	*testutil.MockTaskStore
	n   int
	err error
}

func (s *countingStore) Count(context.Context) (int, error) { return s.n, s.err }

func testNodes(t *testing.T) []core.Node {
	t.Helper()
	r, err := core.NewRegistry([]string{"http://a:5601", "http://b:5601"})
	if err != nil {
		t.Fatal(err)
	}
	return r.Nodes()
}

func TestChecker_AllHealthy(t *testing.T) {
	t.Parallel()
	nodes := testNodes(t)
	store := &countingStore{MockTaskStore: testutil.NewMockTaskStore(), n: 42}
	client := testutil.NewMockNodeClient()

	checks := NewChecker(store, "http://es:9200/.kibana_task_manager", client, nodes, time.Second).Run(context.Background())

	if len(checks) != 3 {
		t.Fatalf("got %d checks, want 3", len(checks))
	}
	if checks[0].Name != "task store" || checks[0].Status != CheckOK || checks[0].Detail != "42 task documents" {
		t.Errorf("store check = %+v", checks[0])
	}
	for i, n := range nodes {
		c := checks[1+i]
		if c.Target != n.Address || c.Status != CheckOK {
			t.Errorf("node check %d = %+v", i, c)
		}
		if !strings.HasPrefix(c.Name, "node ") || len(c.Name) != len("node ")+8 {
			t.Errorf("node check name = %q", c.Name)
		}
	}
	if !Healthy(checks) {
		t.Error("expected healthy")
	}
	if n := client.CallCount("Probe"); n != 2 {
		t.Errorf("Probe called %d times, want 2", n)
	}
}

func TestChecker_StoreUnreachable(t *testing.T) {
	t.Parallel()
	store := testutil.NewMockTaskStore().WithPingError(core.ErrAuth("bad credentials"))

	checks := NewChecker(store, "es", testutil.NewMockNodeClient(), testNodes(t), time.Second).Run(context.Background())

	if checks[0].Status != CheckFail || checks[0].Category != string(core.ErrCatAuth) {
		t.Errorf("store check = %+v", checks[0])
	}
	if Healthy(checks) {
		t.Error("expected unhealthy")
	}
}

func TestChecker_CountFailureIsWarning(t *testing.T) {
	t.Parallel()
	store := &countingStore{MockTaskStore: testutil.NewMockTaskStore(), err: errors.New("index missing")}

	checks := NewChecker(store, "es", testutil.NewMockNodeClient(), nil, time.Second).Run(context.Background())

	if len(checks) != 1 || checks[0].Status != CheckWarn {
		t.Fatalf("checks = %+v", checks)
	}
	if !strings.Contains(checks[0].Detail, "index missing") {
		t.Errorf("detail = %q", checks[0].Detail)
	}
	if !Healthy(checks) {
		t.Error("a warning is not a failure")
	}
}

func TestChecker_NodeDown(t *testing.T) {
	t.Parallel()
	nodes := testNodes(t)
	client := testutil.NewMockNodeClient().WithProbeFunc(func(_ context.Context, n core.Node) error {
		if n.ID == nodes[1].ID {
			return core.ErrNetwork("connection refused")
		}
		return nil
	})

	checks := NewChecker(testutil.NewMockTaskStore(), "es", client, nodes, time.Second).Run(context.Background())

	if checks[1].Status != CheckOK {
		t.Errorf("first node = %+v", checks[1])
	}
	if checks[2].Status != CheckFail || checks[2].Category != string(core.ErrCatNetwork) {
		t.Errorf("second node = %+v", checks[2])
	}
}

func TestChecker_Timeout(t *testing.T) {
	t.Parallel()
	client := testutil.NewMockNodeClient().WithProbeFunc(func(ctx context.Context, _ core.Node) error {
		<-ctx.Done()
		return core.ErrFromTransport("probe", ctx.Err())
	})

	start := time.Now()
	checks := NewChecker(testutil.NewMockTaskStore(), "es", client, testNodes(t), 50*time.Millisecond).Run(context.Background())

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("checks took %v, probes should run concurrently under the timeout", elapsed)
	}
	if checks[1].Category != string(core.ErrCatTimeout) {
		t.Errorf("node check = %+v", checks[1])
	}
}
