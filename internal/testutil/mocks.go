package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

// MockCall records a call to a mock.
type MockCall struct {
	Method    string
	Args      interface{}
	Timestamp time.Time
}

// UpdateCall is one recorded TaskStore.Update.
type UpdateCall struct {
	ID    string
	Patch core.TaskPatch
	Cond  *core.Version
}

// MockTaskStore implements core.TaskStore in memory. Updates are recorded
// but never applied to the stored documents.
type MockTaskStore struct {
	docs       []core.Document
	searchErr  error
	pingErr    error
	updateFunc func(context.Context, string, core.TaskPatch, *core.Version) (core.Version, error)
	updates    []UpdateCall
	calls      []MockCall
	nextSeqNo  int64
	mu         sync.Mutex
}

// NewMockTaskStore creates a store returning docs from every search.
func NewMockTaskStore(docs ...core.Document) *MockTaskStore {
	return &MockTaskStore{
		docs:      docs,
		calls:     make([]MockCall, 0),
		nextSeqNo: 100,
	}
}

// Search returns the configured documents, truncated to size.
func (m *MockTaskStore) Search(ctx context.Context, size int) ([]core.Document, error) {
	m.recordCall("Search", size)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	docs := append([]core.Document{}, m.docs...)
	if size >= 0 && len(docs) > size {
		docs = docs[:size]
	}
	return docs, nil
}

// Update records the call and returns a fresh version unless an update
// function was configured.
func (m *MockTaskStore) Update(ctx context.Context, id string, patch core.TaskPatch, cond *core.Version) (core.Version, error) {
	var condCopy *core.Version
	if cond != nil {
		c := *cond
		condCopy = &c
	}
	m.recordCall("Update", id)

	m.mu.Lock()
	m.updates = append(m.updates, UpdateCall{ID: id, Patch: patch, Cond: condCopy})
	fn := m.updateFunc
	m.nextSeqNo++
	v := core.Version{SeqNo: m.nextSeqNo, PrimaryTerm: 1}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, patch, condCopy)
	}
	return v, nil
}

// Ping returns the configured ping error.
func (m *MockTaskStore) Ping(ctx context.Context) error {
	m.recordCall("Ping", nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// SetDocuments replaces the documents returned by Search.
func (m *MockTaskStore) SetDocuments(docs ...core.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = docs
}

// WithSearchError makes every search fail with err.
func (m *MockTaskStore) WithSearchError(err error) *MockTaskStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchErr = err
	return m
}

// WithPingError makes Ping fail with err.
func (m *MockTaskStore) WithPingError(err error) *MockTaskStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// WithUpdateFunc sets custom update behavior.
func (m *MockTaskStore) WithUpdateFunc(fn func(context.Context, string, core.TaskPatch, *core.Version) (core.Version, error)) *MockTaskStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateFunc = fn
	return m
}

// Updates returns the recorded updates in call order.
func (m *MockTaskStore) Updates() []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]UpdateCall{}, m.updates...)
}

// UpdatesFor returns the recorded updates of one document.
func (m *MockTaskStore) UpdatesFor(id string) []UpdateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []UpdateCall
	for _, u := range m.updates {
		if u.ID == id {
			out = append(out, u)
		}
	}
	return out
}

// Calls returns recorded calls.
func (m *MockTaskStore) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall{}, m.calls...)
}

// CallCount returns number of calls to a method.
func (m *MockTaskStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countCalls(m.calls, method)
}

// Reset clears call history.
func (m *MockTaskStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make([]MockCall, 0)
	m.updates = nil
}

func (m *MockTaskStore) recordCall(method string, args interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:    method,
		Args:      args,
		Timestamp: time.Now(),
	})
}

// RunNowCall is one recorded NodeClient.RunNow.
type RunNowCall struct {
	Node    core.Node
	Payload core.RunNowPayload
}

// MockNodeClient implements core.NodeClient for testing.
type MockNodeClient struct {
	runNowFunc func(context.Context, core.Node, core.RunNowPayload) error
	probeFunc  func(context.Context, core.Node) error
	runs       []RunNowCall
	calls      []MockCall
	mu         sync.Mutex
}

// NewMockNodeClient creates a node client that accepts every request.
func NewMockNodeClient() *MockNodeClient {
	return &MockNodeClient{calls: make([]MockCall, 0)}
}

// RunNow records the request.
func (m *MockNodeClient) RunNow(ctx context.Context, node core.Node, payload core.RunNowPayload) error {
	m.recordCall("RunNow", payload.ID)
	m.mu.Lock()
	m.runs = append(m.runs, RunNowCall{Node: node, Payload: payload})
	fn := m.runNowFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, node, payload)
	}
	return nil
}

// Probe mocks the reachability check.
func (m *MockNodeClient) Probe(ctx context.Context, node core.Node) error {
	m.recordCall("Probe", node.Address)
	m.mu.Lock()
	fn := m.probeFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, node)
	}
	return nil
}

// WithRunNowFunc sets custom run-now behavior.
func (m *MockNodeClient) WithRunNowFunc(fn func(context.Context, core.Node, core.RunNowPayload) error) *MockNodeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runNowFunc = fn
	return m
}

// WithProbeFunc sets custom probe behavior.
func (m *MockNodeClient) WithProbeFunc(fn func(context.Context, core.Node) error) *MockNodeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeFunc = fn
	return m
}

// Runs returns the recorded run-now requests.
func (m *MockNodeClient) Runs() []RunNowCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RunNowCall{}, m.runs...)
}

// RunsTo returns the run-now requests sent to one node.
func (m *MockNodeClient) RunsTo(nodeID string) []RunNowCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunNowCall
	for _, r := range m.runs {
		if r.Node.ID == nodeID {
			out = append(out, r)
		}
	}
	return out
}

// CallCount returns number of calls to a method.
func (m *MockNodeClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countCalls(m.calls, method)
}

func (m *MockNodeClient) recordCall(method string, args interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method:    method,
		Args:      args,
		Timestamp: time.Now(),
	})
}

func countCalls(calls []MockCall, method string) int {
	count := 0
	for _, c := range calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// FixedClock is a core.Clock that only moves when told to.
type FixedClock struct {
	now time.Time
	mu  sync.Mutex
}

// NewFixedClock creates a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the current fixed time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
