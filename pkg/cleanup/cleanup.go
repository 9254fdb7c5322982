package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hearthshare/larder/pkg/observability"
	"github.com/hearthshare/larder/pkg/storage"
)

// Result summarizes one cleanup pass after a recipe delete.
type Result struct {
	JunctionRowsDeleted   int64   `json:"junction_rows_deleted"`
	OrphanedIngredientIDs []int64 `json:"orphaned_ingredient_ids"`
}

// Cleaner removes recipe-ingredient junction rows and orphaned ingredient
// copies.
type Cleaner struct {
	db        *sql.DB
	txTimeout time.Duration
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewCleaner creates a cleaner. metrics and logger may be nil.
func NewCleaner(db *sql.DB, txTimeout time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Cleaner {
	return &Cleaner{db: db, txTimeout: txTimeout, metrics: metrics, logger: logger}
}

// DeleteRecipeIngredients removes every junction row of the recipe and
// returns how many were deleted. Zero rows is not an error.
func (c *Cleaner) DeleteRecipeIngredients(ctx context.Context, recipeID int64) (int64, error) {
	var deleted int64
	err := storage.WithTx(ctx, c.db, c.txTimeout, func(tx *storage.Tx) error {
		var err error
		deleted, err = deleteRecipeIngredientsTx(ctx, tx, recipeID)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.countJunctionRows(deleted)
	return deleted, nil
}

// DeleteOrphanedIngredients removes the household's forked ingredient
// copies that no recipe references anymore and returns their ids. When
// excludeRecipeID is non-nil, references from that recipe do not count as
// keeping an ingredient alive; callers use it when the recipe's own
// junction rows are about to be (or were just) removed.
func (c *Cleaner) DeleteOrphanedIngredients(ctx context.Context, householdID int64, excludeRecipeID *int64) ([]int64, error) {
	var orphans []int64
	err := storage.WithTx(ctx, c.db, c.txTimeout, func(tx *storage.Tx) error {
		var err error
		orphans, err = deleteOrphanedIngredientsTx(ctx, tx, householdID, excludeRecipeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.countOrphans(len(orphans))
	return orphans, nil
}

// PerformCompleteCleanupAfterRecipeDelete removes the deleted recipe's
// junction rows and then any of the household's ingredient copies those
// rows were the last reference to, in a single transaction. A failure at
// either step rolls back both.
func (c *Cleaner) PerformCompleteCleanupAfterRecipeDelete(ctx context.Context, recipeID, householdID int64) (*Result, error) {
	res := &Result{}
	err := storage.WithTx(ctx, c.db, c.txTimeout, func(tx *storage.Tx) error {
		var err error
		res.JunctionRowsDeleted, err = deleteRecipeIngredientsTx(ctx, tx, recipeID)
		if err != nil {
			return err
		}
		res.OrphanedIngredientIDs, err = deleteOrphanedIngredientsTx(ctx, tx, householdID, &recipeID)
		return err
	})
	if err != nil {
		c.countRun("recipe_delete", "error")
		return nil, err
	}

	c.countJunctionRows(res.JunctionRowsDeleted)
	c.countOrphans(len(res.OrphanedIngredientIDs))
	c.countRun("recipe_delete", "success")
	if c.logger != nil {
		c.logger.WithFields(map[string]interface{}{
			"recipe_id":       recipeID,
			"household_id":    householdID,
			"junction_rows":   res.JunctionRowsDeleted,
			"orphans_deleted": len(res.OrphanedIngredientIDs),
		}).Debug("recipe cleanup complete")
	}
	return res, nil
}

// SweepOrphanedIngredients removes every forked ingredient copy, across all
// households, that no recipe references. It backstops the synchronous
// cleanup for deletes that crashed between steps.
func (c *Cleaner) SweepOrphanedIngredients(ctx context.Context) (int64, error) {
	var deleted int64
	err := storage.WithTx(ctx, c.db, c.txTimeout, func(tx *storage.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM ingredients i
			WHERE i.parent_id IS NOT NULL
			  AND NOT EXISTS (
			      SELECT 1 FROM recipe_ingredients ri WHERE ri.ingredient_id = i.id)
		`)
		if err != nil {
			return fmt.Errorf("failed to sweep orphaned ingredients: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		c.countRun("sweep", "error")
		return 0, err
	}

	c.countOrphans(int(deleted))
	c.countRun("sweep", "success")
	return deleted, nil
}

func deleteRecipeIngredientsTx(ctx context.Context, tx *storage.Tx, recipeID int64) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`DELETE FROM recipe_ingredients WHERE recipe_id = $1`, recipeID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete recipe ingredient links: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

func deleteOrphanedIngredientsTx(ctx context.Context, tx *storage.Tx, householdID int64, excludeRecipeID *int64) ([]int64, error) {
	// parent_id IS NOT NULL restricts the delete to forked copies; root
	// ingredients stay even when unreferenced.
	query := `
		DELETE FROM ingredients i
		WHERE i.household_id = $1
		  AND i.parent_id IS NOT NULL
		  AND NOT EXISTS (
		      SELECT 1 FROM recipe_ingredients ri
		      WHERE ri.ingredient_id = i.id`
	args := []interface{}{householdID}
	if excludeRecipeID != nil {
		query += ` AND ri.recipe_id <> $2`
		args = append(args, *excludeRecipeID)
	}
	query += `)
		RETURNING i.id`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete orphaned ingredients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan orphan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *Cleaner) countJunctionRows(n int64) {
	if c.metrics != nil && n > 0 {
		c.metrics.JunctionRowsDeletedTotal.Add(float64(n))
	}
}

func (c *Cleaner) countOrphans(n int) {
	if c.metrics != nil && n > 0 {
		c.metrics.OrphansDeletedTotal.Add(float64(n))
	}
}

func (c *Cleaner) countRun(trigger, outcome string) {
	if c.metrics != nil {
		c.metrics.CleanupRunsTotal.WithLabelValues(trigger, outcome).Inc()
	}
}
