// Package gateway is the boundary to the delivery backend. The rest of the
// core depends only on the Gateway interface; the HTTP client in this package
// is one implementation of it. Nothing here knows about the offline queue:
// the cycle between "gateway needs the queue on failure" and "queue needs the
// gateway on replay" is broken by keeping fallback-enqueue logic in the
// service layer above.
package gateway

import (
	"context"
	"sync"

	"github.com/fieldsync/backend/internal/models"
)

// Filters narrows a grouped-deliveries fetch. Zero values mean "all".
type Filters struct {
	Date  string // delivery date, YYYY-MM-DD
	Route int    // route number
}

// LoginResult is the successful login response.
type LoginResult struct {
	Token string     `json:"token"`
	User  DriverInfo `json:"user"`
}

// DriverInfo identifies the logged-in driver.
type DriverInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Branches []string `json:"branches"`
	IsActive bool     `json:"is_active"`
}

// Gateway is the abstract contract to the backend. Implementations may fail
// transiently (network, 5xx) or permanently (validation, auth); callers
// distinguish the two through the error codes in internal/errors.
type Gateway interface {
	// Login authenticates the driver and stores the session token.
	Login(ctx context.Context, username, password string) (*LoginResult, error)

	// FetchGroupedDeliveries returns the customer visits matching the filters.
	FetchGroupedDeliveries(ctx context.Context, f Filters) ([]models.GroupedDelivery, error)

	// FetchRoutes returns the driver's routes.
	FetchRoutes(ctx context.Context) ([]models.Route, error)

	// FetchInvoiceDetails returns the detail record for one invoice.
	FetchInvoiceDetails(ctx context.Context, invoiceID string) (*models.Invoice, error)

	// SubmitAcknowledgment uploads the signed confirmation for a visit group.
	// The endpoint is assumed to tolerate duplicate submissions for the same
	// group; replay after a lost response relies on that.
	SubmitAcknowledgment(ctx context.Context, groupID string, signature []byte, signerName string) error

	// UpdateDeliveryStatus reports a status change for a visit group.
	UpdateDeliveryStatus(ctx context.Context, groupID, status string) error

	// SubmitSignature uploads a signature for a single invoice.
	SubmitSignature(ctx context.Context, invoiceID string, signature []byte) error
}

// TokenStore holds the session token. Durable token storage is the platform
// layer's concern; the core only needs get/set/clear.
type TokenStore interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenStore is a goroutine-safe in-memory TokenStore.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryTokenStore creates an empty MemoryTokenStore.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Token returns the stored token, or "" when logged out.
func (s *MemoryTokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores a new session token.
func (s *MemoryTokenStore) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear removes the stored token.
func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}
