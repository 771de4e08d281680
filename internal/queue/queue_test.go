package queue

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldsync/backend/internal/db"
	"github.com/fieldsync/backend/internal/models"
)

func newTestQueue(t *testing.T) (*ActionQueue, string) {
	t.Helper()
	dir := t.TempDir()
	return openQueueAt(t, dir), dir
}

func openQueueAt(t *testing.T, dir string) *ActionQueue {
	t.Helper()
	database, err := db.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	m := db.NewMigrator(database.DB)
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up failed: %v", err)
	}

	return New(db.NewActionStore(database.DB))
}

func TestEnqueueAssignsIDAndDefaults(t *testing.T) {
	q, _ := newTestQueue(t)

	id, err := q.Enqueue(models.ActionAcknowledgeGroup, models.AcknowledgePayload{
		GroupID:    "G-100",
		Signature:  []byte("png-bytes"),
		SignerName: "M. Chen",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected an id")
	}
	if !strings.Contains(id, "-") {
		t.Errorf("id %q should be timestamp-suffix form", id)
	}

	actions, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}

	a := actions[0]
	if a.ID != id {
		t.Errorf("ID = %s, want %s", a.ID, id)
	}
	if a.Kind != models.ActionAcknowledgeGroup {
		t.Errorf("Kind = %s", a.Kind)
	}
	if a.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", a.RetryCount)
	}
	if a.EnqueuedAt == 0 {
		t.Error("EnqueuedAt not set")
	}
}

// Actions come back in the exact order they were enqueued.
func TestListPreservesEnqueueOrder(t *testing.T) {
	q, _ := newTestQueue(t)

	var ids []string
	for _, group := range []string{"G-A", "G-B", "G-C"} {
		id, err := q.Enqueue(models.ActionUpdateStatus, models.StatusPayload{GroupID: group, Status: "delivered"})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, id)
	}

	actions, err := q.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	for i, a := range actions {
		if a.ID != ids[i] {
			t.Errorf("position %d: got %s, want %s", i, a.ID, ids[i])
		}
	}
}

// After a simulated restart the queue reflects exactly the actions that were
// enqueued and not removed.
func TestQueueSurvivesRestart(t *testing.T) {
	q, dir := newTestQueue(t)

	keep, _ := q.Enqueue(models.ActionAcknowledgeGroup, models.AcknowledgePayload{GroupID: "G-1"})
	drop, _ := q.Enqueue(models.ActionUpdateStatus, models.StatusPayload{GroupID: "G-2", Status: "failed"})
	if err := q.Remove(drop); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	reopened := openQueueAt(t, dir)
	actions, err := reopened.List()
	if err != nil {
		t.Fatalf("List after restart failed: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 surviving action, got %d", len(actions))
	}
	if actions[0].ID != keep {
		t.Errorf("survivor = %s, want %s", actions[0].ID, keep)
	}
}

// Removing twice has the same observable effect as removing once.
func TestRemoveIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)

	id, _ := q.Enqueue(models.ActionSubmitSignature, models.SignaturePayload{InvoiceID: "1001"})

	if err := q.Remove(id); err != nil {
		t.Fatalf("first Remove failed: %v", err)
	}
	if err := q.Remove(id); err != nil {
		t.Errorf("second Remove errored: %v", err)
	}

	n, _ := q.Len()
	if n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestIncrementRetry(t *testing.T) {
	q, _ := newTestQueue(t)

	id, _ := q.Enqueue(models.ActionAcknowledgeGroup, models.AcknowledgePayload{GroupID: "G-1"})

	for want := 1; want <= 2; want++ {
		count, err := q.IncrementRetry(id)
		if err != nil {
			t.Fatalf("IncrementRetry failed: %v", err)
		}
		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}
	}

	// Unknown id: no-op, count 0, no error.
	count, err := q.IncrementRetry("missing")
	if err != nil {
		t.Fatalf("IncrementRetry(missing) errored: %v", err)
	}
	if count != 0 {
		t.Errorf("count for unknown id = %d, want 0", count)
	}
}

func TestNewestEnqueueTime(t *testing.T) {
	q, _ := newTestQueue(t)

	zero, err := q.NewestEnqueueTime()
	if err != nil {
		t.Fatalf("NewestEnqueueTime failed: %v", err)
	}
	if !zero.IsZero() {
		t.Errorf("expected zero time for empty queue, got %v", zero)
	}

	q.now = func() time.Time { return time.Unix(1000, 0) }
	q.Enqueue(models.ActionUpdateStatus, models.StatusPayload{GroupID: "G-1", Status: "delivered"})
	q.now = func() time.Time { return time.Unix(2000, 0) }
	q.Enqueue(models.ActionUpdateStatus, models.StatusPayload{GroupID: "G-2", Status: "delivered"})

	newest, err := q.NewestEnqueueTime()
	if err != nil {
		t.Fatalf("NewestEnqueueTime failed: %v", err)
	}
	if newest.Unix() != 2000 {
		t.Errorf("newest = %d, want 2000", newest.Unix())
	}
}

func TestEnqueueRejectsUnencodablePayload(t *testing.T) {
	q, _ := newTestQueue(t)

	if _, err := q.Enqueue(models.ActionAcknowledgeGroup, make(chan int)); err == nil {
		t.Error("expected error for unencodable payload")
	}

	n, _ := q.Len()
	if n != 0 {
		t.Errorf("Len = %d, want 0 after failed enqueue", n)
	}
}
