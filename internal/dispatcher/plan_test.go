package dispatcher

import (
	"reflect"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/testutil"
)

func planNodes(t *testing.T, n int) []core.Node {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = "http://node" + string(rune('0'+i)) + ":5601"
	}
	r, err := core.NewRegistry(addrs)
	if err != nil {
		t.Fatal(err)
	}
	return r.Nodes()
}

func TestPlan_Classification(t *testing.T) {
	past := testNow.Add(-time.Minute)
	future := testNow.Add(time.Minute)
	docs := []core.Document{
		testutil.NewTaskDoc("due"),
		testutil.NewTaskDoc("later", testutil.WithRunAt(future)),
		testutil.NewTaskDoc("retry", testutil.WithStatus(core.TaskStatusRunning),
			testutil.WithAttempts(1), testutil.WithRetryAt(past)),
		testutil.NewTaskDoc("held", testutil.WithStatus(core.TaskStatusClaiming),
			testutil.WithRetryAt(future)),
		testutil.NewTaskDoc("dead", testutil.WithStatus(core.TaskStatusRunning),
			testutil.WithAttempts(3), testutil.WithRetryAt(past)),
	}

	plan := Plan(docs, planNodes(t, 1), 10, 3, testNow)

	want := map[string]core.Operation{
		"due":   core.OpRun,
		"later": core.OpNone,
		"retry": core.OpRetry,
		"held":  core.OpNone,
		"dead":  core.OpFail,
	}
	if len(plan.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(plan.Entries), len(want))
	}
	for _, e := range plan.Entries {
		if e.Operation != want[e.Task.ID] {
			t.Errorf("%s: operation = %s, want %s", e.Task.ID, e.Operation, want[e.Task.ID])
		}
		if e.Operation == core.OpFail && e.Node != nil {
			t.Errorf("%s: a fail-out must not take a node", e.Task.ID)
		}
	}

	claims, failOuts, noCapacity, idle := plan.Counts()
	if claims != 2 || failOuts != 1 || noCapacity != 0 || idle != 2 {
		t.Errorf("Counts() = %d %d %d %d", claims, failOuts, noCapacity, idle)
	}
}

func TestPlan_AttemptsToWrite(t *testing.T) {
	docs := []core.Document{
		testutil.NewTaskDoc("run", testutil.WithAttempts(1)),
		testutil.NewTaskDoc("retry", testutil.WithStatus(core.TaskStatusRunning), testutil.WithAttempts(1)),
	}
	plan := Plan(docs, planNodes(t, 1), 10, 3, testNow)

	if got := plan.Entries[0].Attempts; got != 1 {
		t.Errorf("run attempts = %d, want unchanged 1", got)
	}
	if got := plan.Entries[1].Attempts; got != 2 {
		t.Errorf("retry attempts = %d, want 2", got)
	}
}

func TestPlan_UnparsedSkipped(t *testing.T) {
	docs := []core.Document{
		{ID: "junk", Source: []byte(`not json`)},
		{ID: "", Source: testutil.NewTaskDoc("x").Source},
		testutil.NewTaskDoc("ok"),
	}
	plan := Plan(docs, planNodes(t, 1), 10, 3, testNow)

	if len(plan.Unparsed) != 2 {
		t.Errorf("unparsed = %d, want 2", len(plan.Unparsed))
	}
	if len(plan.Entries) != 1 || plan.Entries[0].Task.ID != "ok" {
		t.Errorf("entries = %+v", plan.Entries)
	}
}

func TestPlan_OwnersCountedBeforeAssignment(t *testing.T) {
	nodes := planNodes(t, 2)
	future := testNow.Add(time.Hour)
	docs := []core.Document{
		// due first, but node0 already holds two tasks further down the scan
		testutil.NewTaskDoc("due"),
		testutil.NewTaskDoc("h1", testutil.WithStatus(core.TaskStatusRunning),
			testutil.WithOwner(nodes[0].ID), testutil.WithRetryAt(future)),
		testutil.NewTaskDoc("h2", testutil.WithStatus(core.TaskStatusClaiming),
			testutil.WithOwner(nodes[0].ID), testutil.WithRetryAt(future)),
		// failed with its attempts spent: holds nothing and takes no node
		testutil.NewTaskDoc("gone", testutil.WithStatus(core.TaskStatusFailed),
			testutil.WithOwner(nodes[1].ID), testutil.WithAttempts(3)),
	}

	plan := Plan(docs, nodes, 3, 3, testNow)

	if plan.Entries[0].Node == nil || plan.Entries[0].Node.ID != nodes[1].ID {
		t.Fatalf("due task went to %v, want the node with more room", plan.Entries[0].Node)
	}
	if plan.Owners[nodes[0].ID] != 2 || plan.Owners[nodes[1].ID] != 1 {
		t.Errorf("owners = %v", plan.Owners)
	}
	if gone := plan.Entries[3]; gone.Operation != core.OpFail || gone.Node != nil {
		t.Errorf("spent failed task = %s on %v, want fail without a node", gone.Operation, gone.Node)
	}
}

func TestPlan_FailedTaskWithAttemptsLeftIsRetried(t *testing.T) {
	nodes := planNodes(t, 1)
	docs := []core.Document{
		testutil.NewTaskDoc("f", testutil.WithStatus(core.TaskStatusFailed),
			testutil.WithOwner(nodes[0].ID)),
	}

	plan := Plan(docs, nodes, 1, 3, testNow)

	e := plan.Entries[0]
	if e.Operation != core.OpRetry || e.Node == nil || e.Attempts != 1 {
		t.Errorf("entry = %s on %v with %d attempts, want retry on the node with 1 attempt", e.Operation, e.Node, e.Attempts)
	}
	if plan.Owners[nodes[0].ID] != 1 {
		t.Errorf("owners = %v, want only the new assignment", plan.Owners)
	}
}

func TestPlan_CapacityNeverExceeded(t *testing.T) {
	nodes := planNodes(t, 3)
	var docs []core.Document
	for i := 0; i < 20; i++ {
		docs = append(docs, testutil.NewTaskDoc("t"+string(rune('a'+i))))
	}

	for capacity := 0; capacity <= 8; capacity++ {
		plan := Plan(docs, nodes, capacity, 3, testNow)
		claims, _, noCapacity, _ := plan.Counts()

		wantClaims := capacity * len(nodes)
		if wantClaims > len(docs) {
			wantClaims = len(docs)
		}
		if claims != wantClaims {
			t.Errorf("capacity %d: claims = %d, want %d", capacity, claims, wantClaims)
		}
		if claims+noCapacity != len(docs) {
			t.Errorf("capacity %d: %d claims + %d without room != %d", capacity, claims, noCapacity, len(docs))
		}
		for id, n := range plan.Owners {
			if n > capacity {
				t.Errorf("capacity %d: node %s owns %d", capacity, id, n)
			}
		}
	}
}

func TestPlan_MoreCapacityNeverClaimsLess(t *testing.T) {
	nodes := planNodes(t, 2)
	var docs []core.Document
	for i := 0; i < 9; i++ {
		docs = append(docs, testutil.NewTaskDoc("t"+string(rune('a'+i))))
	}

	prev := -1
	for capacity := 1; capacity <= 6; capacity++ {
		claims, _, _, _ := Plan(docs, nodes, capacity, 3, testNow).Counts()
		if claims < prev {
			t.Errorf("capacity %d claimed %d, fewer than %d at capacity %d", capacity, claims, prev, capacity-1)
		}
		prev = claims
	}
}

func TestPlan_Deterministic(t *testing.T) {
	nodes := planNodes(t, 2)
	docs := []core.Document{
		testutil.NewTaskDoc("a"),
		testutil.NewTaskDoc("b", testutil.WithStatus(core.TaskStatusRunning), testutil.WithAttempts(1)),
		testutil.NewTaskDoc("c"),
	}

	assignments := func() []string {
		var out []string
		for _, e := range Plan(docs, nodes, 2, 3, testNow).Entries {
			id := ""
			if e.Node != nil {
				id = e.Node.ID
			}
			out = append(out, e.Task.ID+"="+id)
		}
		return out
	}

	first := assignments()
	for i := 0; i < 5; i++ {
		if got := assignments(); !reflect.DeepEqual(got, first) {
			t.Fatalf("plan changed between runs: %v vs %v", got, first)
		}
	}
}
