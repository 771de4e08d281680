package db

import (
	"database/sql"
	"time"

	apperrors "github.com/fieldsync/backend/internal/errors"
)

// CacheStore owns the persisted cache keyspaces (cached_groups, cached_routes,
// cached_invoices). It stores opaque payload bytes plus the write timestamp;
// TTL policy belongs to the cache layer above, which treats expired rows as
// absent and deletes them on the read that notices.
type CacheStore struct {
	db *sql.DB
}

// routesKey is the single-row key for the routes cache.
const routesKey = "routes"

// NewCacheStore creates a CacheStore over an open database.
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) put(table, keyCol, key string, payload []byte, cachedAt time.Time) error {
	query := "INSERT INTO " + table + " (" + keyCol + ", payload, cached_at) VALUES (?, ?, ?) " +
		"ON CONFLICT(" + keyCol + ") DO UPDATE SET payload = excluded.payload, cached_at = excluded.cached_at"
	if _, err := s.db.Exec(query, key, payload, cachedAt.Unix()); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to write cache entry", err)
	}
	return nil
}

func (s *CacheStore) get(table, keyCol, key string) ([]byte, time.Time, bool, error) {
	var payload []byte
	var cachedAt int64
	query := "SELECT payload, cached_at FROM " + table + " WHERE " + keyCol + " = ?"
	err := s.db.QueryRow(query, key).Scan(&payload, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, apperrors.Wrap(apperrors.ErrStorage, "failed to read cache entry", err)
	}
	return payload, time.Unix(cachedAt, 0), true, nil
}

func (s *CacheStore) delete(table, keyCol, key string) error {
	if _, err := s.db.Exec("DELETE FROM "+table+" WHERE "+keyCol+" = ?", key); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete cache entry", err)
	}
	return nil
}

// PutGroups writes the grouped-delivery payload for one filter-combination key.
func (s *CacheStore) PutGroups(key string, payload []byte, cachedAt time.Time) error {
	return s.put("cached_groups", "cache_key", key, payload, cachedAt)
}

// GetGroups reads the grouped-delivery payload for one filter-combination key.
func (s *CacheStore) GetGroups(key string) ([]byte, time.Time, bool, error) {
	return s.get("cached_groups", "cache_key", key)
}

// DeleteGroups removes one grouped-delivery entry.
func (s *CacheStore) DeleteGroups(key string) error {
	return s.delete("cached_groups", "cache_key", key)
}

// GroupKeys returns every filter-combination key currently persisted, newest
// write first.
func (s *CacheStore) GroupKeys() ([]string, error) {
	rows, err := s.db.Query("SELECT cache_key FROM cached_groups ORDER BY cached_at DESC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list cache keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan cache key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PutRoutes writes the single routes entry.
func (s *CacheStore) PutRoutes(payload []byte, cachedAt time.Time) error {
	return s.put("cached_routes", "cache_key", routesKey, payload, cachedAt)
}

// GetRoutes reads the single routes entry.
func (s *CacheStore) GetRoutes() ([]byte, time.Time, bool, error) {
	return s.get("cached_routes", "cache_key", routesKey)
}

// DeleteRoutes removes the routes entry.
func (s *CacheStore) DeleteRoutes() error {
	return s.delete("cached_routes", "cache_key", routesKey)
}

// PutInvoice writes one invoice-detail entry.
func (s *CacheStore) PutInvoice(invoiceID string, payload []byte, cachedAt time.Time) error {
	return s.put("cached_invoices", "invoice_id", invoiceID, payload, cachedAt)
}

// GetInvoice reads one invoice-detail entry.
func (s *CacheStore) GetInvoice(invoiceID string) ([]byte, time.Time, bool, error) {
	return s.get("cached_invoices", "invoice_id", invoiceID)
}

// DeleteInvoice removes one invoice-detail entry.
func (s *CacheStore) DeleteInvoice(invoiceID string) error {
	return s.delete("cached_invoices", "invoice_id", invoiceID)
}

// InvalidateAll clears every persisted cache keyspace. The offline action
// queue is untouched: pending intents survive logout.
func (s *CacheStore) InvalidateAll() error {
	for _, table := range []string{"cached_groups", "cached_routes", "cached_invoices"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return apperrors.Wrap(apperrors.ErrStorage, "failed to clear "+table, err)
		}
	}
	return nil
}
