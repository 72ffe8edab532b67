package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000001, down_20261001000001)
}

// up_20261001000001 creates the users table
func up_20261001000001(ctx context.Context, db *bun.DB) error {
	if err := createTable(ctx, db, (*User)(nil)); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func down_20261001000001(ctx context.Context, db *bun.DB) error {
	if err := dropTable(ctx, db, (*User)(nil)); err != nil {
		return fmt.Errorf("drop users table: %w", err)
	}
	return nil
}
