// Package queue provides the durable offline action queue. User intents
// recorded here survive process restarts and are replayed oldest-first by the
// sync coordinator once connectivity returns.
package queue

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldsync/backend/internal/db"
	apperrors "github.com/fieldsync/backend/internal/errors"
	"github.com/fieldsync/backend/internal/logging"
	"github.com/fieldsync/backend/internal/models"
)

// ActionQueue is an append-only, durable list of pending intents. All
// mutations go through one mutex so a concurrent reader never observes a
// half-written queue; the store underneath provides durability.
type ActionQueue struct {
	mu    sync.Mutex
	store *db.ActionStore
	now   func() time.Time
}

// New creates an ActionQueue over the given store.
func New(store *db.ActionStore) *ActionQueue {
	return &ActionQueue{
		store: store,
		now:   time.Now,
	}
}

// newActionID builds a unique action id: enqueue timestamp plus a random
// suffix. The timestamp prefix keeps ids roughly sortable in logs; the suffix
// makes collisions within one millisecond irrelevant.
func (q *ActionQueue) newActionID() string {
	suffix := uuid.NewString()[:8]
	return strconv.FormatInt(q.now().UnixMilli(), 10) + "-" + suffix
}

// Enqueue durably appends an action and returns its id. The payload is
// serialized as JSON. Enqueue fails only when the underlying store is
// unwritable; that error must be surfaced to the caller, since silently
// dropping a user intent is unacceptable.
func (q *ActionQueue) Enqueue(kind models.ActionKind, payload interface{}) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "failed to encode action payload", err)
	}

	action := &models.OfflineAction{
		ID:         q.newActionID(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: q.now().Unix(),
		RetryCount: 0,
	}

	if err := q.store.Append(action); err != nil {
		return "", err
	}

	logging.Info("Enqueued offline action", map[string]interface{}{
		"action_id": action.ID,
		"kind":      string(kind),
	})

	return action.ID, nil
}

// List returns all pending actions in enqueue order. Insertion order is
// semantically meaningful: replay happens oldest-first so acknowledgments
// land before later status changes for the same group.
func (q *ActionQueue) List() ([]models.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.List()
}

// Remove deletes an action by id. Removing a non-existent id is a no-op.
func (q *ActionQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Delete(id); err != nil {
		return err
	}

	logging.Debug("Removed offline action", map[string]interface{}{"action_id": id})
	return nil
}

// IncrementRetry atomically bumps an action's retry count and returns the
// updated value. An unknown id is a no-op reporting count 0.
func (q *ActionQueue) IncrementRetry(id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count, ok, err := q.store.IncrementRetry(id)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return count, nil
}

// Len returns the number of pending actions.
func (q *ActionQueue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Count()
}

// NewestEnqueueTime returns the enqueue time of the most recent pending
// action, or the zero time when the queue is empty. Surfaced to the UI as
// part of the sync status.
func (q *ActionQueue) NewestEnqueueTime() (time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.store.List()
	if err != nil {
		return time.Time{}, err
	}
	var newest int64
	for _, a := range actions {
		if a.EnqueuedAt > newest {
			newest = a.EnqueuedAt
		}
	}
	if newest == 0 {
		return time.Time{}, nil
	}
	return time.Unix(newest, 0), nil
}
