//go:build go1.18

package core

import (
	"encoding/json"
	"testing"
	"time"
)

// FuzzParseTask checks that parsing never panics and that parsed tasks keep
// the readiness invariants.
func FuzzParseTask(f *testing.F) {
	f.Add(`{"task":{"status":"idle","attempts":0}}`)
	f.Add(`{"task":{"status":"running","attempts":3,"retryAt":"2020-01-01T00:00:00Z"}}`)
	f.Add(`{"task":{"status":"claiming","attempts":"2","ownerId":"n"}}`)
	f.Add(`{"task":{"status":"idle","attempts":1,"runAt":"garbage"}}`)
	f.Add(`{"task":null}`)
	f.Add(`[]`)
	f.Add(``)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f.Fuzz(func(t *testing.T, source string) {
		task, err := ParseTask(Document{ID: "fuzz", Source: json.RawMessage(source)})
		if err != nil {
			if !IsCategory(err, ErrCatValidation) {
				t.Fatalf("parse error has category %s, want validation", GetCategory(err))
			}
			return
		}

		if task.Attempts < 0 {
			t.Fatalf("negative attempts parsed: %d", task.Attempts)
		}

		op := Readiness(task, now, DefaultMaxAttempts)
		if task.Status == TaskStatusIdle && (op == OpRetry || op == OpFail) {
			t.Fatalf("idle task classified %s", op)
		}
		if task.Status != TaskStatusIdle && op == OpRun {
			t.Fatalf("held task classified run")
		}
		if op == OpRetry && task.Attempts >= DefaultMaxAttempts {
			t.Fatalf("task at %d attempts classified retry", task.Attempts)
		}

		if owner, ok := task.Owner(); ok && (task.Status == TaskStatusIdle || task.Status == TaskStatusFailed) {
			t.Fatalf("status %s reported owner %q", task.Status, owner)
		}
	})
}
