// Package cache provides the two-tier read cache over delivery data: a fast
// in-memory tier backed by the persisted store. The memory tier is volatile
// and rebuilt from the persisted tier through promotion on read; it is never
// itself durable.
package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fieldsync/backend/internal/db"
	"github.com/fieldsync/backend/internal/gateway"
	"github.com/fieldsync/backend/internal/logging"
	"github.com/fieldsync/backend/internal/models"
)

// Kind-specific TTLs. An entry is valid iff now - cachedAt < ttl; expired
// entries are treated as absent and deleted on the read that notices. There
// is no background sweep.
const (
	MemoryTTL    = 15 * time.Minute
	PersistedTTL = time.Hour
	RoutesTTL    = 24 * time.Hour
	InvoiceTTL   = 24 * time.Hour
)

// memEntry is one memory-tier snapshot for a filter combination.
type memEntry struct {
	groups   []models.GroupedDelivery
	cachedAt time.Time
}

// copyGroups copies a snapshot so the tier and its callers never share a
// backing array. Readers hold their copy while the optimistic status flip
// writes the tier's own elements.
func copyGroups(groups []models.GroupedDelivery) []models.GroupedDelivery {
	if groups == nil {
		return nil
	}
	out := make([]models.GroupedDelivery, len(groups))
	copy(out, groups)
	return out
}

// DeliveryCache serves grouped-delivery reads without a live connection.
// Grouped deliveries live in both tiers; routes and invoice details are
// persisted-only (they are read rarely enough that sqlite is fast enough).
type DeliveryCache struct {
	mu    sync.Mutex
	store *db.CacheStore
	mem   map[string]*memEntry
	now   func() time.Time
}

// New creates a DeliveryCache over the given persisted store.
func New(store *db.CacheStore) *DeliveryCache {
	return &DeliveryCache{
		store: store,
		mem:   make(map[string]*memEntry),
		now:   time.Now,
	}
}

// Key derives the persisted cache key for a filter combination.
func Key(f gateway.Filters) string {
	date := f.Date
	if date == "" {
		date = "all"
	}
	route := "all"
	if f.Route != 0 {
		route = fmt.Sprintf("%d", f.Route)
	}
	return date + "|" + route
}

// PutGroups writes a snapshot to both tiers, stamped with the current time.
// Prior entries for the same key are overwritten: last write wins, no merge.
func (c *DeliveryCache) PutGroups(groups []models.GroupedDelivery, f gateway.Filters) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := Key(f)

	// The tier keeps its own copy; later caller-side mutation of the put
	// slice must not bleed into cached reads.
	c.mem[key] = &memEntry{groups: copyGroups(groups), cachedAt: now}

	payload, err := json.Marshal(groups)
	if err != nil {
		return err
	}
	if err := c.store.PutGroups(key, payload, now); err != nil {
		return err
	}

	logging.Debug("Cached grouped deliveries", map[string]interface{}{
		"key":   key,
		"count": len(groups),
	})
	return nil
}

// GetGroups checks the memory tier first, then the persisted tier; a
// persisted hit is promoted into memory. A full miss reports ok=false and the
// caller is responsible for fetching and repopulating via PutGroups. Storage
// read failures degrade to misses.
func (c *DeliveryCache) GetGroups(f gateway.Filters) ([]models.GroupedDelivery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getGroupsLocked(Key(f))
}

func (c *DeliveryCache) getGroupsLocked(key string) ([]models.GroupedDelivery, bool) {
	now := c.now()

	if entry, ok := c.mem[key]; ok {
		if now.Sub(entry.cachedAt) < MemoryTTL {
			return copyGroups(entry.groups), true
		}
		// Expired entries are absent; evict eagerly.
		delete(c.mem, key)
	}

	payload, cachedAt, ok, err := c.store.GetGroups(key)
	if err != nil {
		logging.Warn("Persisted cache read failed, treating as miss", map[string]interface{}{"key": key})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if now.Sub(cachedAt) >= PersistedTTL {
		c.store.DeleteGroups(key)
		return nil, false
	}

	var groups []models.GroupedDelivery
	if err := json.Unmarshal(payload, &groups); err != nil {
		logging.Warn("Corrupt cache entry dropped", map[string]interface{}{"key": key})
		c.store.DeleteGroups(key)
		return nil, false
	}

	// Promote into the memory tier with a fresh stamp; the persisted TTL
	// already bounds overall staleness. The unmarshaled slice becomes the
	// tier's own; the caller gets a copy.
	c.mem[key] = &memEntry{groups: groups, cachedAt: now}
	return copyGroups(groups), true
}

// FindByAnyKey locates a cached delivery by primary invoice id, visit-group
// id, or membership in its invoice-number list. Snapshots are scanned in a
// deterministic order (memory tier by sorted key, then persisted tier newest
// first); the first match wins. The result is a copy, never a pointer into
// the tier.
func (c *DeliveryCache) FindByAnyKey(id string) (*models.GroupedDelivery, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	memKeys := make([]string, 0, len(c.mem))
	for key, entry := range c.mem {
		if now.Sub(entry.cachedAt) < MemoryTTL {
			memKeys = append(memKeys, key)
		}
	}
	sort.Strings(memKeys)
	for _, key := range memKeys {
		for i := range c.mem[key].groups {
			if c.mem[key].groups[i].Matches(id) {
				found := c.mem[key].groups[i]
				return &found, true
			}
		}
	}

	// Fall through to every persisted snapshot; a hit promotes the whole
	// snapshot so the next lookup stays in memory.
	keys, err := c.store.GroupKeys()
	if err != nil {
		logging.Warn("Persisted cache scan failed", map[string]interface{}{"id": id})
		return nil, false
	}
	for _, key := range keys {
		groups, ok := c.getGroupsLocked(key)
		if !ok {
			continue
		}
		for i := range groups {
			if groups[i].Matches(id) {
				found := groups[i]
				return &found, true
			}
		}
	}

	return nil, false
}

// UpdateStatusOptimistically flips the matching cached delivery's status in
// the memory tier only. The persisted tier is untouched and the next full
// PutGroups overwrites the flip; this exists purely so the UI reflects a
// just-submitted acknowledgment before the next refresh.
func (c *DeliveryCache) UpdateStatusOptimistically(groupID string, status models.DeliveryStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for _, entry := range c.mem {
		for i := range entry.groups {
			if entry.groups[i].Matches(groupID) {
				entry.groups[i].Status = status
				updated++
			}
		}
	}

	if updated > 0 {
		logging.Debug("Optimistically updated delivery status", map[string]interface{}{
			"group_id": groupID,
			"status":   string(status),
			"entries":  updated,
		})
	}
}

// PutRoutes caches the route list (24h TTL, single entry).
func (c *DeliveryCache) PutRoutes(routes []models.Route) error {
	payload, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	return c.store.PutRoutes(payload, c.now())
}

// GetRoutes returns the cached route list, or ok=false when absent/expired.
func (c *DeliveryCache) GetRoutes() ([]models.Route, bool) {
	payload, cachedAt, ok, err := c.store.GetRoutes()
	if err != nil || !ok {
		return nil, false
	}
	if c.now().Sub(cachedAt) >= RoutesTTL {
		c.store.DeleteRoutes()
		return nil, false
	}
	var routes []models.Route
	if err := json.Unmarshal(payload, &routes); err != nil {
		c.store.DeleteRoutes()
		return nil, false
	}
	return routes, true
}

// PutInvoiceDetails caches one invoice detail record (24h TTL).
func (c *DeliveryCache) PutInvoiceDetails(invoice *models.Invoice) error {
	payload, err := json.Marshal(invoice)
	if err != nil {
		return err
	}
	return c.store.PutInvoice(invoice.ID, payload, c.now())
}

// GetInvoiceDetails returns one cached invoice record, or ok=false.
func (c *DeliveryCache) GetInvoiceDetails(invoiceID string) (*models.Invoice, bool) {
	payload, cachedAt, ok, err := c.store.GetInvoice(invoiceID)
	if err != nil || !ok {
		return nil, false
	}
	if c.now().Sub(cachedAt) >= InvoiceTTL {
		c.store.DeleteInvoice(invoiceID)
		return nil, false
	}
	var invoice models.Invoice
	if err := json.Unmarshal(payload, &invoice); err != nil {
		c.store.DeleteInvoice(invoiceID)
		return nil, false
	}
	return &invoice, true
}

// InvalidateAll clears both tiers. Used on logout.
func (c *DeliveryCache) InvalidateAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem = make(map[string]*memEntry)
	return c.store.InvalidateAll()
}
