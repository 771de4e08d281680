// Package services exposes the operations the UI layer calls. The
// DeliveryService composes the queue, cache, gateway, monitor and coordinator
// into one facade and owns the fallback-enqueue policy: submissions that fail
// transiently are recorded as offline actions instead of being lost.
package services

import (
	"context"
	"time"

	"github.com/fieldsync/backend/internal/cache"
	"github.com/fieldsync/backend/internal/connectivity"
	apperrors "github.com/fieldsync/backend/internal/errors"
	"github.com/fieldsync/backend/internal/gateway"
	"github.com/fieldsync/backend/internal/logging"
	"github.com/fieldsync/backend/internal/models"
	"github.com/fieldsync/backend/internal/queue"
	syncpkg "github.com/fieldsync/backend/internal/sync"
)

// Prefetch pacing. Detail records are fetched in small bursts so a long
// delivery list does not saturate the connection right after login.
const (
	prefetchBatchSize = 3
	prefetchPause     = 300 * time.Millisecond
)

// DeliveryService is the application facade over the sync core.
type DeliveryService struct {
	queue       *queue.ActionQueue
	cache       *cache.DeliveryCache
	gateway     gateway.Gateway
	monitor     *connectivity.Monitor
	coordinator *syncpkg.Coordinator
	tokens      gateway.TokenStore
}

// NewDeliveryService wires the facade to its collaborators.
func NewDeliveryService(
	q *queue.ActionQueue,
	deliveryCache *cache.DeliveryCache,
	gw gateway.Gateway,
	monitor *connectivity.Monitor,
	coordinator *syncpkg.Coordinator,
	tokens gateway.TokenStore,
) *DeliveryService {
	return &DeliveryService{
		queue:       q,
		cache:       deliveryCache,
		gateway:     gw,
		monitor:     monitor,
		coordinator: coordinator,
		tokens:      tokens,
	}
}

// Login authenticates against the backend. Login never queues: there is no
// meaningful offline fallback for authentication.
func (s *DeliveryService) Login(ctx context.Context, username, password string) (*gateway.LoginResult, error) {
	return s.gateway.Login(ctx, username, password)
}

// Logout clears the session token and both cache tiers. The offline action
// queue deliberately survives: pending intents belong to the driver's
// completed work, not the session.
func (s *DeliveryService) Logout() error {
	s.tokens.Clear()
	if err := s.cache.InvalidateAll(); err != nil {
		return err
	}
	logging.Info("Logged out, caches cleared")
	return nil
}

// AcknowledgeGroup records a signed delivery confirmation. When the backend
// is reachable it submits immediately; when offline, or when the submission
// fails transiently, the intent is queued for replay and queued=true is
// returned so the UI can say "saved, will sync". Permanent failures
// (validation, expired session) are surfaced and never queued: replaying
// them later cannot succeed.
func (s *DeliveryService) AcknowledgeGroup(ctx context.Context, groupID string, signature []byte, signerName string) (queued bool, err error) {
	if groupID == "" {
		return false, apperrors.New(apperrors.ErrValidation, "visit group id is required")
	}
	if len(signature) == 0 {
		return false, apperrors.New(apperrors.ErrValidation, "signature image is required")
	}

	payload := models.AcknowledgePayload{GroupID: groupID, Signature: signature, SignerName: signerName}

	if !s.monitor.IsAvailable() {
		return s.enqueueFallback(models.ActionAcknowledgeGroup, payload, groupID)
	}

	if err := s.gateway.SubmitAcknowledgment(ctx, groupID, signature, signerName); err != nil {
		if apperrors.Retryable(err) {
			logging.Warn("Acknowledgment submission failed, queueing for replay", map[string]interface{}{
				"group_id": groupID,
				"cause":    err.Error(),
			})
			return s.enqueueFallback(models.ActionAcknowledgeGroup, payload, groupID)
		}
		return false, err
	}

	s.cache.UpdateStatusOptimistically(groupID, models.StatusDelivered)
	return false, nil
}

// UpdateStatus reports a delivery status change, with the same offline
// fallback as AcknowledgeGroup.
func (s *DeliveryService) UpdateStatus(ctx context.Context, groupID string, status models.DeliveryStatus) (queued bool, err error) {
	if groupID == "" {
		return false, apperrors.New(apperrors.ErrValidation, "visit group id is required")
	}
	switch status {
	case models.StatusPending, models.StatusDelivered, models.StatusFailed:
	default:
		return false, apperrors.New(apperrors.ErrValidation, "unknown delivery status "+string(status))
	}

	payload := models.StatusPayload{GroupID: groupID, Status: string(status)}

	if !s.monitor.IsAvailable() {
		s.cache.UpdateStatusOptimistically(groupID, status)
		return s.enqueueFallback(models.ActionUpdateStatus, payload, groupID)
	}

	if err := s.gateway.UpdateDeliveryStatus(ctx, groupID, string(status)); err != nil {
		if apperrors.Retryable(err) {
			s.cache.UpdateStatusOptimistically(groupID, status)
			return s.enqueueFallback(models.ActionUpdateStatus, payload, groupID)
		}
		return false, err
	}

	s.cache.UpdateStatusOptimistically(groupID, status)
	return false, nil
}

// SubmitSignature uploads a signature for a single invoice, with offline
// fallback.
func (s *DeliveryService) SubmitSignature(ctx context.Context, invoiceID string, signature []byte) (queued bool, err error) {
	if invoiceID == "" {
		return false, apperrors.New(apperrors.ErrValidation, "invoice id is required")
	}
	if len(signature) == 0 {
		return false, apperrors.New(apperrors.ErrValidation, "signature image is required")
	}

	payload := models.SignaturePayload{InvoiceID: invoiceID, Signature: signature}

	if !s.monitor.IsAvailable() {
		return s.enqueueFallback(models.ActionSubmitSignature, payload, invoiceID)
	}

	if err := s.gateway.SubmitSignature(ctx, invoiceID, signature); err != nil {
		if apperrors.Retryable(err) {
			return s.enqueueFallback(models.ActionSubmitSignature, payload, invoiceID)
		}
		return false, err
	}
	return false, nil
}

// enqueueFallback records an intent for later replay. A storage failure here
// propagates: losing a signed confirmation silently is the one thing this
// module must never do.
func (s *DeliveryService) enqueueFallback(kind models.ActionKind, payload interface{}, subject string) (bool, error) {
	id, err := s.queue.Enqueue(kind, payload)
	if err != nil {
		return false, err
	}
	logging.Info("Recorded offline action", map[string]interface{}{
		"action_id": id,
		"kind":      string(kind),
		"subject":   subject,
	})
	return true, nil
}

// Deliveries returns the grouped deliveries for the given filters. The cache
// is consulted first unless forceRefresh is set; a gateway failure falls back
// to whatever the cache still holds, so a flaky connection degrades to stale
// data instead of an error screen.
func (s *DeliveryService) Deliveries(ctx context.Context, f gateway.Filters, forceRefresh bool) ([]models.GroupedDelivery, error) {
	if !forceRefresh {
		if groups, ok := s.cache.GetGroups(f); ok {
			return groups, nil
		}
	}

	groups, err := s.gateway.FetchGroupedDeliveries(ctx, f)
	if err != nil {
		if cached, ok := s.cache.GetGroups(f); ok {
			logging.Warn("Serving cached deliveries after fetch failure", map[string]interface{}{
				"cause": err.Error(),
			})
			return cached, nil
		}
		return nil, err
	}

	if putErr := s.cache.PutGroups(groups, f); putErr != nil {
		logging.Error("Failed to cache deliveries", putErr)
	}
	return groups, nil
}

// Routes returns the driver's routes, cache-first.
func (s *DeliveryService) Routes(ctx context.Context) ([]models.Route, error) {
	if routes, ok := s.cache.GetRoutes(); ok {
		return routes, nil
	}

	routes, err := s.gateway.FetchRoutes(ctx)
	if err != nil {
		return nil, err
	}
	if putErr := s.cache.PutRoutes(routes); putErr != nil {
		logging.Error("Failed to cache routes", putErr)
	}
	return routes, nil
}

// InvoiceDetails returns one invoice's detail record, cache-first.
func (s *DeliveryService) InvoiceDetails(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	if invoice, ok := s.cache.GetInvoiceDetails(invoiceID); ok {
		return invoice, nil
	}

	invoice, err := s.gateway.FetchInvoiceDetails(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if putErr := s.cache.PutInvoiceDetails(invoice); putErr != nil {
		logging.Error("Failed to cache invoice details", putErr)
	}
	return invoice, nil
}

// FindDelivery locates a cached delivery by any of its identifying keys.
func (s *DeliveryService) FindDelivery(id string) (*models.GroupedDelivery, bool) {
	return s.cache.FindByAnyKey(id)
}

// Prefetch warms the invoice-details cache in the background so detail
// screens open instantly while offline. Fetches run in small paced batches;
// failures are logged and skipped, never surfaced.
func (s *DeliveryService) Prefetch(invoiceIDs []string) {
	if len(invoiceIDs) == 0 {
		return
	}

	go func() {
		fetched := 0
		for start := 0; start < len(invoiceIDs); start += prefetchBatchSize {
			if !s.monitor.IsAvailable() {
				logging.Debug("Prefetch stopped: network unavailable", map[string]interface{}{
					"fetched": fetched,
				})
				return
			}

			end := start + prefetchBatchSize
			if end > len(invoiceIDs) {
				end = len(invoiceIDs)
			}

			for _, id := range invoiceIDs[start:end] {
				if _, ok := s.cache.GetInvoiceDetails(id); ok {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				invoice, err := s.gateway.FetchInvoiceDetails(ctx, id)
				cancel()
				if err != nil {
					logging.Debug("Prefetch skipped invoice", map[string]interface{}{
						"invoice_id": id,
						"cause":      err.Error(),
					})
					continue
				}
				if putErr := s.cache.PutInvoiceDetails(invoice); putErr != nil {
					logging.Error("Failed to cache prefetched invoice", putErr)
				}
				fetched++
			}

			if end < len(invoiceIDs) {
				time.Sleep(prefetchPause)
			}
		}
		logging.Debug("Prefetch finished", map[string]interface{}{"fetched": fetched})
	}()
}

// SyncStatus is the queue/connectivity snapshot surfaced to the UI.
type SyncStatus struct {
	Online         bool      `json:"online"`
	Syncing        bool      `json:"syncing"`
	PendingActions int       `json:"pending_actions"`
	LastEnqueuedAt time.Time `json:"last_enqueued_at,omitempty"`
}

// Status reports the current sync state.
func (s *DeliveryService) Status() (*SyncStatus, error) {
	pending, err := s.queue.Len()
	if err != nil {
		return nil, err
	}
	newest, err := s.queue.NewestEnqueueTime()
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		Online:         s.monitor.State() == connectivity.Online,
		Syncing:        s.coordinator.Syncing(),
		PendingActions: pending,
		LastEnqueuedAt: newest,
	}, nil
}

// ManualSync triggers an immediate drain, e.g. behind a pull-to-refresh.
func (s *DeliveryService) ManualSync(ctx context.Context) error {
	return s.coordinator.Sync(ctx)
}

// PendingActions returns the queued actions, oldest first.
func (s *DeliveryService) PendingActions() ([]models.OfflineAction, error) {
	return s.queue.List()
}

// PendingCount returns the number of queued actions.
func (s *DeliveryService) PendingCount() (int, error) {
	return s.queue.Len()
}

// Connectivity returns the monitor so the platform layer can feed
// reachability signals into it.
func (s *DeliveryService) Connectivity() *connectivity.Monitor {
	return s.monitor
}
