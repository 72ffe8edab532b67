package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrations holds every schema migration of the reference subgraphs.
var Migrations = migrate.NewMigrations()

// Migrate applies pending migrations and returns the applied group id, zero
// when the database was already current.
func Migrate(ctx context.Context, db *bun.DB) (int64, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return 0, fmt.Errorf("init migrations: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	return group.ID, nil
}

func createTable(ctx context.Context, db *bun.DB, model any) error {
	_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
	return err
}

func dropTable(ctx context.Context, db *bun.DB, model any) error {
	_, err := db.NewDropTable().Model(model).IfExists().Exec(ctx)
	return err
}

func createUniqueIndex(ctx context.Context, db *bun.DB, model any, name string, columns ...string) error {
	_, err := db.NewCreateIndex().
		Model(model).
		Index(name).
		Unique().
		IfNotExists().
		Column(columns...).
		Exec(ctx)
	return err
}
