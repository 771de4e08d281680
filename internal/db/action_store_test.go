package db

import (
	"testing"
	"time"

	"github.com/fieldsync/backend/internal/models"
)

func testAction(id string, kind models.ActionKind) *models.OfflineAction {
	return &models.OfflineAction{
		ID:         id,
		Kind:       kind,
		Payload:    []byte(`{"customer_visit_group":"G-1"}`),
		EnqueuedAt: time.Now().Unix(),
	}
}

func TestActionStoreAppendAndList(t *testing.T) {
	database, _ := openTestDB(t)
	store := NewActionStore(database.DB)

	if err := store.Append(testAction("a1", models.ActionAcknowledgeGroup)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(testAction("a2", models.ActionUpdateStatus)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	actions, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(actions))
	}
	if actions[0].ID != "a1" || actions[1].ID != "a2" {
		t.Errorf("wrong order: %s, %s", actions[0].ID, actions[1].ID)
	}
	if actions[0].Kind != models.ActionAcknowledgeGroup {
		t.Errorf("Kind = %s, want %s", actions[0].Kind, models.ActionAcknowledgeGroup)
	}
	if actions[0].RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", actions[0].RetryCount)
	}
}

// Actions must survive a process restart: close the database, reopen the same
// file, and expect the exact set that was appended and not deleted.
func TestActionStoreDurabilityAcrossReopen(t *testing.T) {
	database, dir := openTestDB(t)
	store := NewActionStore(database.DB)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := store.Append(testAction(id, models.ActionAcknowledgeGroup)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := store.Delete("a2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openAt(t, dir)
	store = NewActionStore(reopened.DB)

	actions, err := store.List()
	if err != nil {
		t.Fatalf("List after reopen failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected 2 actions after reopen, got %d", len(actions))
	}
	if actions[0].ID != "a1" || actions[1].ID != "a3" {
		t.Errorf("wrong survivors: %s, %s", actions[0].ID, actions[1].ID)
	}
}

func TestActionStoreDeleteIsIdempotent(t *testing.T) {
	database, _ := openTestDB(t)
	store := NewActionStore(database.DB)

	if err := store.Append(testAction("a1", models.ActionSubmitSignature)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Delete("a1"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := store.Delete("a1"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if err := store.Delete("never-existed"); err != nil {
		t.Errorf("Delete of unknown id should be a no-op, got %v", err)
	}
}

func TestActionStoreIncrementRetry(t *testing.T) {
	database, _ := openTestDB(t)
	store := NewActionStore(database.DB)

	if err := store.Append(testAction("a1", models.ActionAcknowledgeGroup)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	for want := 1; want <= 3; want++ {
		count, ok, err := store.IncrementRetry("a1")
		if err != nil {
			t.Fatalf("IncrementRetry failed: %v", err)
		}
		if !ok {
			t.Fatal("expected ok for existing action")
		}
		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}
	}

	// Unknown id is a no-op, not an error.
	_, ok, err := store.IncrementRetry("missing")
	if err != nil {
		t.Fatalf("IncrementRetry(missing) errored: %v", err)
	}
	if ok {
		t.Error("expected ok=false for unknown id")
	}
}

func TestActionStoreCount(t *testing.T) {
	database, _ := openTestDB(t)
	store := NewActionStore(database.DB)

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("empty count = %d, want 0", n)
	}

	store.Append(testAction("a1", models.ActionAcknowledgeGroup))
	store.Append(testAction("a2", models.ActionAcknowledgeGroup))

	n, err = store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
