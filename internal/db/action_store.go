package db

import (
	"database/sql"

	apperrors "github.com/fieldsync/backend/internal/errors"
	"github.com/fieldsync/backend/internal/models"
)

// ActionStore owns the offline_actions keyspace. It is the only component
// permitted to touch that table; the queue layer above provides the
// behavioral contract (idempotent removal, retry bookkeeping).
type ActionStore struct {
	db *sql.DB
}

// NewActionStore creates an ActionStore over an open database.
func NewActionStore(db *sql.DB) *ActionStore {
	return &ActionStore{db: db}
}

// Append durably records an action at the tail of the queue.
func (s *ActionStore) Append(a *models.OfflineAction) error {
	query := `INSERT INTO offline_actions (id, kind, payload, enqueued_at, retry_count)
			  VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.Exec(query, a.ID, string(a.Kind), []byte(a.Payload), a.EnqueuedAt, a.RetryCount); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to append offline action", err)
	}
	return nil
}

// List returns all pending actions in enqueue order.
func (s *ActionStore) List() ([]models.OfflineAction, error) {
	rows, err := s.db.Query(`SELECT id, kind, payload, enqueued_at, retry_count
							 FROM offline_actions ORDER BY seq`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to list offline actions", err)
	}
	defer rows.Close()

	var actions []models.OfflineAction
	for rows.Next() {
		var a models.OfflineAction
		var kind string
		var payload []byte
		if err := rows.Scan(&a.ID, &kind, &payload, &a.EnqueuedAt, &a.RetryCount); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan offline action", err)
		}
		a.Kind = models.ActionKind(kind)
		a.Payload = payload
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to iterate offline actions", err)
	}
	return actions, nil
}

// Delete removes an action. Deleting an id that does not exist is a no-op.
func (s *ActionStore) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM offline_actions WHERE id = ?", id); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete offline action", err)
	}
	return nil
}

// IncrementRetry atomically bumps retry_count and returns the updated value.
// An unknown id is a no-op and reports ok=false.
func (s *ActionStore) IncrementRetry(id string) (count int, ok bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrStorage, "failed to begin retry update", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE offline_actions SET retry_count = retry_count + 1 WHERE id = ?", id)
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrStorage, "failed to increment retry count", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrStorage, "failed to read rows affected", err)
	}
	if affected == 0 {
		return 0, false, nil
	}

	if err := tx.QueryRow("SELECT retry_count FROM offline_actions WHERE id = ?", id).Scan(&count); err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrStorage, "failed to read retry count", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, apperrors.Wrap(apperrors.ErrStorage, "failed to commit retry update", err)
	}
	return count, true, nil
}

// Count returns the number of pending actions.
func (s *ActionStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM offline_actions").Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count offline actions", err)
	}
	return n, nil
}
