package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hearthshare/larder/pkg/access"
	"github.com/hearthshare/larder/pkg/catalog"
	"github.com/hearthshare/larder/pkg/observability"
	"github.com/hearthshare/larder/pkg/storage"
)

var (
	// ErrOwnCollection is returned when a household subscribes to a
	// collection it already owns.
	ErrOwnCollection = errors.New("cannot subscribe to own collection")
	// ErrPrivateCollection is returned when the target collection is not
	// public.
	ErrPrivateCollection = errors.New("cannot subscribe to private collection")
)

// Stats summarizes a household's subscriptions.
type Stats struct {
	Count              int64      `json:"count"`
	OldestSubscribedAt *time.Time `json:"oldest_subscribed_at,omitempty"`
	NewestSubscribedAt *time.Time `json:"newest_subscribed_at,omitempty"`
}

// Manager creates and removes collection subscriptions.
type Manager struct {
	db        *sql.DB
	txTimeout time.Duration
	cache     *access.Cache
	metrics   *observability.Metrics
}

// NewManager creates a subscription manager. cache and metrics may be nil.
func NewManager(db *sql.DB, txTimeout time.Duration, cache *access.Cache, metrics *observability.Metrics) *Manager {
	return &Manager{db: db, txTimeout: txTimeout, cache: cache, metrics: metrics}
}

// Subscribe subscribes the household to a public collection it does not
// own. Returns true when a subscription was created, false when one already
// existed (idempotent no-op). Subscribing to a missing, owned, or private
// collection is an error.
func (m *Manager) Subscribe(ctx context.Context, householdID, collectionID int64) (bool, error) {
	var created bool

	err := storage.WithTx(ctx, m.db, m.txTimeout, func(tx *storage.Tx) error {
		var ownerID int64
		var public bool
		err := tx.QueryRowContext(ctx,
			`SELECT household_id, public FROM collections WHERE id = $1`,
			collectionID).Scan(&ownerID, &public)
		if err == sql.ErrNoRows {
			return catalog.NewNotFound(catalog.ResourceCollection, collectionID)
		} else if err != nil {
			return fmt.Errorf("failed to load collection: %w", err)
		}

		if ownerID == householdID {
			return ErrOwnCollection
		}
		if !public {
			return ErrPrivateCollection
		}

		var exists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM collection_subscriptions
			 WHERE household_id = $1 AND collection_id = $2)`,
			householdID, collectionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check existing subscription: %w", err)
		}
		if exists {
			// Duplicate subscribe is a no-op, not an error. Rolling back
			// avoids holding the transaction open for nothing.
			return errAlreadySubscribed
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO collection_subscriptions (household_id, collection_id, subscribed_at)
			 VALUES ($1, $2, NOW())`,
			householdID, collectionID)
		if err != nil {
			return fmt.Errorf("failed to insert subscription: %w", err)
		}

		created = true
		return nil
	})

	if errors.Is(err, errAlreadySubscribed) {
		m.record("subscribe", "duplicate")
		return false, nil
	}
	if err != nil {
		m.record("subscribe", "error")
		return false, err
	}

	m.record("subscribe", "created")
	m.invalidate(ctx, householdID)
	return created, nil
}

// errAlreadySubscribed aborts the transaction for the duplicate-subscribe
// no-op path; it never escapes Subscribe.
var errAlreadySubscribed = errors.New("already subscribed")

// Unsubscribe removes the household's subscription. Returns whether a row
// was actually deleted.
func (m *Manager) Unsubscribe(ctx context.Context, householdID, collectionID int64) (bool, error) {
	result, err := m.db.ExecContext(ctx,
		`DELETE FROM collection_subscriptions
		 WHERE household_id = $1 AND collection_id = $2`,
		householdID, collectionID)
	if err != nil {
		m.record("unsubscribe", "error")
		return false, fmt.Errorf("failed to delete subscription: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		m.record("unsubscribe", "absent")
		return false, nil
	}

	m.record("unsubscribe", "deleted")
	m.invalidate(ctx, householdID)
	return true, nil
}

// IsSubscribed reports whether the household subscribes to the collection.
func (m *Manager) IsSubscribed(ctx context.Context, householdID, collectionID int64) (bool, error) {
	var subscribed bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM collection_subscriptions
		 WHERE household_id = $1 AND collection_id = $2)`,
		householdID, collectionID).Scan(&subscribed)
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return subscribed, nil
}

// ListSubscribedCollections returns the collections the household
// subscribes to, most recent first, title as tie-break.
func (m *Manager) ListSubscribedCollections(ctx context.Context, householdID int64) ([]*catalog.Collection, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.household_id, c.parent_id, c.public, c.url_slug,
		       c.created_at, c.updated_at
		FROM collections c
		JOIN collection_subscriptions s ON s.collection_id = c.id
		WHERE s.household_id = $1
		ORDER BY s.subscribed_at DESC, c.title ASC
	`, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed collections: %w", err)
	}
	defer rows.Close()

	var collections []*catalog.Collection
	for rows.Next() {
		c := &catalog.Collection{}
		var parentID sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Title, &c.HouseholdID, &parentID, &c.Public,
			&c.URLSlug, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		if parentID.Valid {
			pid := parentID.Int64
			c.ParentID = &pid
		}
		collections = append(collections, c)
	}

	return collections, rows.Err()
}

// GetStats returns subscription statistics for a household.
func (m *Manager) GetStats(ctx context.Context, householdID int64) (*Stats, error) {
	stats := &Stats{}
	var oldest, newest sql.NullTime
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(subscribed_at), MAX(subscribed_at)
		FROM collection_subscriptions
		WHERE household_id = $1
	`, householdID).Scan(&stats.Count, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestSubscribedAt = &oldest.Time
	}
	if newest.Valid {
		stats.NewestSubscribedAt = &newest.Time
	}
	return stats, nil
}

func (m *Manager) record(operation, outcome string) {
	if m.metrics != nil {
		m.metrics.SubscriptionsTotal.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Manager) invalidate(ctx context.Context, householdID int64) {
	if m.cache != nil {
		m.cache.InvalidateHousehold(ctx, householdID)
	}
}
