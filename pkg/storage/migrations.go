package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a versioned schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full catalog schema in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create households table",
			SQL: `
				CREATE TABLE IF NOT EXISTS households (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     2,
			Description: "Create collections table",
			SQL: `
				CREATE TABLE IF NOT EXISTS collections (
					id BIGSERIAL PRIMARY KEY,
					title VARCHAR(255) NOT NULL,
					household_id BIGINT NOT NULL REFERENCES households(id) ON DELETE CASCADE,
					parent_id BIGINT REFERENCES collections(id) ON DELETE SET NULL,
					public BOOLEAN NOT NULL DEFAULT FALSE,
					url_slug VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_collections_household_id ON collections(household_id);
				CREATE INDEX idx_collections_parent_id ON collections(parent_id);
				CREATE INDEX idx_collections_public ON collections(public);
				CREATE UNIQUE INDEX idx_collections_household_parent
					ON collections(household_id, parent_id) WHERE parent_id IS NOT NULL;
			`,
		},
		{
			Version:     3,
			Description: "Create recipes table",
			SQL: `
				CREATE TABLE IF NOT EXISTS recipes (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					household_id BIGINT NOT NULL REFERENCES households(id) ON DELETE CASCADE,
					parent_id BIGINT REFERENCES recipes(id) ON DELETE SET NULL,
					description TEXT NOT NULL DEFAULT '',
					instructions TEXT NOT NULL DEFAULT '',
					prep_time_minutes INT NOT NULL DEFAULT 0,
					cook_time_minutes INT NOT NULL DEFAULT 0,
					servings INT NOT NULL DEFAULT 0,
					url_slug VARCHAR(255) NOT NULL UNIQUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_recipes_household_id ON recipes(household_id);
				CREATE INDEX idx_recipes_parent_id ON recipes(parent_id);
				CREATE UNIQUE INDEX idx_recipes_household_parent
					ON recipes(household_id, parent_id) WHERE parent_id IS NOT NULL;
			`,
		},
		{
			Version:     4,
			Description: "Create ingredients table",
			SQL: `
				CREATE TABLE IF NOT EXISTS ingredients (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					household_id BIGINT NOT NULL REFERENCES households(id) ON DELETE CASCADE,
					parent_id BIGINT REFERENCES ingredients(id) ON DELETE SET NULL,
					category VARCHAR(255) NOT NULL DEFAULT '',
					store_location VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_ingredients_household_id ON ingredients(household_id);
				CREATE INDEX idx_ingredients_parent_id ON ingredients(parent_id);
				CREATE UNIQUE INDEX idx_ingredients_household_parent
					ON ingredients(household_id, parent_id) WHERE parent_id IS NOT NULL;
			`,
		},
		{
			Version:     5,
			Description: "Create collection_recipes junction table",
			SQL: `
				CREATE TABLE IF NOT EXISTS collection_recipes (
					collection_id BIGINT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
					recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					display_order INT NOT NULL DEFAULT 0,
					PRIMARY KEY (collection_id, recipe_id)
				);

				CREATE INDEX idx_collection_recipes_recipe_id ON collection_recipes(recipe_id);
			`,
		},
		{
			Version:     6,
			Description: "Create recipe_ingredients junction table",
			SQL: `
				CREATE TABLE IF NOT EXISTS recipe_ingredients (
					id BIGSERIAL PRIMARY KEY,
					recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
					ingredient_id BIGINT NOT NULL REFERENCES ingredients(id) ON DELETE CASCADE,
					quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
					quantity4 DOUBLE PRECISION NOT NULL DEFAULT 0,
					measure_id BIGINT,
					preparation_id BIGINT,
					primary_ingredient BOOLEAN NOT NULL DEFAULT FALSE
				);

				CREATE INDEX idx_recipe_ingredients_recipe_id ON recipe_ingredients(recipe_id);
				CREATE INDEX idx_recipe_ingredients_ingredient_id ON recipe_ingredients(ingredient_id);
			`,
		},
		{
			Version:     7,
			Description: "Create collection_subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS collection_subscriptions (
					household_id BIGINT NOT NULL REFERENCES households(id) ON DELETE CASCADE,
					collection_id BIGINT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
					subscribed_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (household_id, collection_id)
				);

				CREATE INDEX idx_collection_subscriptions_collection_id
					ON collection_subscriptions(collection_id);
			`,
		},
		{
			Version:     8,
			Description: "Create admins table",
			SQL: `
				CREATE TABLE IF NOT EXISTS admins (
					user_id BIGINT PRIMARY KEY,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own
// transaction, recording applied versions in larder_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS larder_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM larder_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO larder_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
