package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "tasks.db"), WithRetry(2, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func idleSource(attempts int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"type":"task","task":{"status":"idle","attempts":%d,"taskType":"report"}}`, attempts))
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "t1", idleSource(0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var versions int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPutAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v1, err := s.Put(ctx, "a", idleSource(0))
	require.NoError(t, err)
	v2, err := s.Put(ctx, "b", idleSource(1))
	require.NoError(t, err)
	assert.Less(t, v1.SeqNo, v2.SeqNo)

	docs, err := s.Search(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, v1, *docs[0].Version)

	task, err := core.ParseTask(docs[1])
	require.NoError(t, err)
	assert.Equal(t, 1, task.Attempts)

	docs, err = s.Search(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestPut_RejectsInvalid(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Put(context.Background(), "", idleSource(0))
	assert.Error(t, err)
	_, err = s.Put(context.Background(), "x", json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestUpdate_MergesTaskFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Put(ctx, "a", idleSource(0))
	require.NoError(t, err)

	v, err := s.Update(ctx, "a", core.ClaimPatch("node-1", 1, now, 30*time.Second), nil)
	require.NoError(t, err)

	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, v, *doc.Version)

	var src map[string]interface{}
	require.NoError(t, json.Unmarshal(doc.Source, &src))
	assert.Equal(t, "task", src["type"], "keys outside task are kept")

	task := src["task"].(map[string]interface{})
	assert.Equal(t, "claiming", task["status"])
	assert.Equal(t, "node-1", task["ownerId"])
	assert.Equal(t, float64(1), task["attempts"])
	assert.Equal(t, "report", task["taskType"], "untouched fields are kept")
	assert.Equal(t, "2024-05-01T12:00:30Z", task["retryAt"])
}

func TestUpdate_Conditional(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v0, err := s.Put(ctx, "a", idleSource(0))
	require.NoError(t, err)

	v1, err := s.Update(ctx, "a", core.ClaimPatch("n1", 0, time.Now(), time.Second), &v0)
	require.NoError(t, err)
	assert.Greater(t, v1.SeqNo, v0.SeqNo)

	// a second writer still holding v0 loses
	_, err = s.Update(ctx, "a", core.ClaimPatch("n2", 0, time.Now(), time.Second), &v0)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatConflict))
	assert.ErrorIs(t, err, core.ErrConflict("a"))

	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	task, err := core.ParseTask(doc)
	require.NoError(t, err)
	assert.Equal(t, "n1", task.OwnerID)

	// the version returned by the claim conditions the next write
	_, err = s.Update(ctx, "a", core.RunningPatch(time.Now()), &v1)
	require.NoError(t, err)
}

func TestUpdate_Missing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Update(context.Background(), "nope", core.FailedPatch(), nil)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))

	_, err = s.Get(context.Background(), "nope")
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestUpdate_CreatesTaskObject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, "bare", json.RawMessage(`{"type":"task"}`))
	require.NoError(t, err)

	_, err = s.Update(ctx, "bare", core.FailedPatch(), nil)
	require.NoError(t, err)

	doc, err := s.Get(ctx, "bare")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"task","task":{"status":"failed"}}`, string(doc.Source))
}

func TestUpdate_ConcurrentConditionalClaims(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v0, err := s.Put(ctx, "a", idleSource(0))
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cond := v0
			_, err := s.Update(ctx, "a", core.ClaimPatch("n", 1, time.Now(), time.Second), &cond)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestPing(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- only a comment;\nCREATE INDEX i ON a(x);\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a(x)", stmts[1])
}

func TestIsSQLiteBusy(t *testing.T) {
	assert.False(t, isSQLiteBusy(nil))
	assert.True(t, isSQLiteBusy(errors.New("database is locked")))
	assert.True(t, isSQLiteBusy(errors.New("SQLITE_BUSY: busy")))
	assert.False(t, isSQLiteBusy(errors.New("no such table")))
}

func TestRetryWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	calls := 0
	err := s.retryWrite(ctx, "op", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	err = s.retryWrite(ctx, "op", func() error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")

	err = s.retryWrite(ctx, "op", func() error { return errors.New("SQLITE_BUSY") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op failed after 2 retries")
}
