package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/quatton/expodist/pkg/db/migrations"
	"github.com/quatton/expodist/pkg/dlog"
)

// Migrate applies the pending exposure schema migrations and returns the
// applied group. The group ID is zero when the schema was up to date.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	logger := dlog.FromContext(ctx)
	migrator := migrate.NewMigrator(db, migrations.Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock migrations: %w", err)
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.Warn("Unlocking migrations failed", "error", err)
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	if group.IsZero() {
		logger.Info("Exposure schema is up to date")
	} else {
		logger.Info("Migrated exposure schema", "group", group.ID, "migrations", len(group.Migrations))
	}
	return group, nil
}
