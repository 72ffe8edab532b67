package store

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000003, down_20261001000003)
}

// up_20261001000003 creates the attendance table. The unique index enforces
// one record per employee per day within an org.
func up_20261001000003(ctx context.Context, db *bun.DB) error {
	if err := createTable(ctx, db, (*AttendanceRecord)(nil)); err != nil {
		return fmt.Errorf("create attendance table: %w", err)
	}
	if err := createUniqueIndex(ctx, db, (*AttendanceRecord)(nil), "idx_attendance_daily", "org_id", "employee_id", "day"); err != nil {
		return fmt.Errorf("create attendance daily index: %w", err)
	}
	return nil
}

func down_20261001000003(ctx context.Context, db *bun.DB) error {
	if err := dropTable(ctx, db, (*AttendanceRecord)(nil)); err != nil {
		return fmt.Errorf("drop attendance table: %w", err)
	}
	return nil
}
