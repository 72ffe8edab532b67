package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000002, down_20261001000002)
}

// up_20261001000002 creates the employees table with per-org unique emails
func up_20261001000002(ctx context.Context, db *bun.DB) error {
	if err := createTable(ctx, db, (*Employee)(nil)); err != nil {
		return fmt.Errorf("create employees table: %w", err)
	}
	if err := createUniqueIndex(ctx, db, (*Employee)(nil), "idx_employees_org_email", "org_id", "email"); err != nil {
		return fmt.Errorf("create employees email index: %w", err)
	}
	return nil
}

func down_20261001000002(ctx context.Context, db *bun.DB) error {
	if err := dropTable(ctx, db, (*Employee)(nil)); err != nil {
		return fmt.Errorf("drop employees table: %w", err)
	}
	return nil
}
