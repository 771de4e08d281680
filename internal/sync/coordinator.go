// Package sync drains the offline action queue against the gateway. The
// coordinator is the only component that removes actions: either because the
// backend accepted them, because their kind is unknown, or because they
// exhausted the retry budget.
package sync

import (
	"context"
	"encoding/json"
	gosync "sync"

	"github.com/fieldsync/backend/internal/cache"
	"github.com/fieldsync/backend/internal/connectivity"
	apperrors "github.com/fieldsync/backend/internal/errors"
	"github.com/fieldsync/backend/internal/gateway"
	"github.com/fieldsync/backend/internal/logging"
	"github.com/fieldsync/backend/internal/models"
	"github.com/fieldsync/backend/internal/queue"
)

// MaxRetries is the per-action retry budget. An action that has failed this
// many replay attempts is dropped as poison so one bad record cannot wedge
// the queue forever.
const MaxRetries = 5

// Coordinator replays queued actions oldest-first. Sync is single-flight:
// concurrent triggers (connectivity transition, periodic timer, manual
// refresh) collapse into one drain.
type Coordinator struct {
	mu      gosync.Mutex
	syncing bool

	queue   *queue.ActionQueue
	gateway gateway.Gateway
	monitor *connectivity.Monitor
	cache   *cache.DeliveryCache
}

// NewCoordinator wires a Coordinator to its collaborators and registers the
// offline-to-online trigger: every transition to online starts a drain in the
// background.
func NewCoordinator(q *queue.ActionQueue, gw gateway.Gateway, monitor *connectivity.Monitor, deliveryCache *cache.DeliveryCache) *Coordinator {
	c := &Coordinator{
		queue:   q,
		gateway: gw,
		monitor: monitor,
		cache:   deliveryCache,
	}

	monitor.OnTransition(func(online bool) {
		if online {
			go c.Sync(context.Background())
		}
	})

	return c
}

// Syncing reports whether a drain is currently in flight.
func (c *Coordinator) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

// Sync drains the queue once. It returns nil without doing anything when a
// drain is already running or the network is unavailable; both are normal
// conditions, not errors. A non-nil return means the queue itself could not
// be read.
func (c *Coordinator) Sync(ctx context.Context) error {
	c.mu.Lock()
	if c.syncing {
		c.mu.Unlock()
		logging.Debug("Sync already in progress, skipping")
		return nil
	}
	c.syncing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()

	if !c.monitor.IsAvailable() {
		logging.Debug("Sync skipped: network unavailable")
		return nil
	}

	actions, err := c.queue.List()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueueDrain, "failed to read pending actions", err)
	}
	if len(actions) == 0 {
		return nil
	}

	logging.Info("Starting sync", map[string]interface{}{"pending": len(actions)})

	synced := 0
	for i := range actions {
		if ctx.Err() != nil {
			break
		}

		action := &actions[i]

		if !models.KnownKind(action.Kind) {
			logging.Warn("Discarding action of unknown kind", map[string]interface{}{
				"action_id": action.ID,
				"kind":      string(action.Kind),
			})
			c.queue.Remove(action.ID)
			continue
		}

		if err := c.dispatch(ctx, action); err != nil {
			c.recordFailure(action, err)
			// A dead network fails every remaining action the same way;
			// stop instead of burning their retry budgets.
			if apperrors.Is(err, apperrors.ErrNetworkUnavailable) {
				c.monitor.Report(false)
				break
			}
			continue
		}

		if err := c.queue.Remove(action.ID); err != nil {
			logging.Error("Failed to remove synced action", err, map[string]interface{}{
				"action_id": action.ID,
			})
			continue
		}
		c.reflectSuccess(action)
		synced++
	}

	logging.Info("Sync finished", map[string]interface{}{
		"synced":  synced,
		"skipped": len(actions) - synced,
	})
	return nil
}

// dispatch replays one action against the gateway. A payload that no longer
// decodes is reported as poison so the failure path drops it immediately.
func (c *Coordinator) dispatch(ctx context.Context, action *models.OfflineAction) error {
	switch action.Kind {
	case models.ActionAcknowledgeGroup:
		var p models.AcknowledgePayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrPoisonAction, "undecodable acknowledge payload", err)
		}
		return c.gateway.SubmitAcknowledgment(ctx, p.GroupID, p.Signature, p.SignerName)

	case models.ActionUpdateStatus:
		var p models.StatusPayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrPoisonAction, "undecodable status payload", err)
		}
		return c.gateway.UpdateDeliveryStatus(ctx, p.GroupID, p.Status)

	case models.ActionSubmitSignature:
		var p models.SignaturePayload
		if err := json.Unmarshal(action.Payload, &p); err != nil {
			return apperrors.Wrap(apperrors.ErrPoisonAction, "undecodable signature payload", err)
		}
		return c.gateway.SubmitSignature(ctx, p.InvoiceID, p.Signature)
	}
	return apperrors.New(apperrors.ErrPoisonAction, "unknown action kind "+string(action.Kind))
}

// recordFailure bumps the retry count and drops the action once the budget is
// exhausted. Poison payloads skip the budget entirely.
func (c *Coordinator) recordFailure(action *models.OfflineAction, cause error) {
	if apperrors.Is(cause, apperrors.ErrPoisonAction) {
		logging.ErrorWithCode("Dropping undecodable action", string(apperrors.ErrPoisonAction), cause,
			map[string]interface{}{"action_id": action.ID})
		c.queue.Remove(action.ID)
		return
	}

	count, err := c.queue.IncrementRetry(action.ID)
	if err != nil {
		logging.Error("Failed to record retry", err, map[string]interface{}{"action_id": action.ID})
		return
	}

	logging.Warn("Action replay failed", map[string]interface{}{
		"action_id": action.ID,
		"kind":      string(action.Kind),
		"retries":   count,
		"cause":     cause.Error(),
	})

	if count >= MaxRetries {
		logging.ErrorWithCode("Dropping action after exhausting retries", string(apperrors.ErrPoisonAction), cause,
			map[string]interface{}{
				"action_id": action.ID,
				"kind":      string(action.Kind),
				"retries":   count,
			})
		c.queue.Remove(action.ID)
	}
}

// reflectSuccess pushes the replayed outcome into the cache so the UI shows
// the delivery as done without waiting for the next full refresh.
func (c *Coordinator) reflectSuccess(action *models.OfflineAction) {
	if c.cache == nil {
		return
	}

	switch action.Kind {
	case models.ActionAcknowledgeGroup:
		var p models.AcknowledgePayload
		if json.Unmarshal(action.Payload, &p) == nil && p.GroupID != "" {
			c.cache.UpdateStatusOptimistically(p.GroupID, models.StatusDelivered)
		}
	case models.ActionUpdateStatus:
		var p models.StatusPayload
		if json.Unmarshal(action.Payload, &p) == nil && p.GroupID != "" && p.Status != "" {
			c.cache.UpdateStatusOptimistically(p.GroupID, models.DeliveryStatus(p.Status))
		}
	}
}
