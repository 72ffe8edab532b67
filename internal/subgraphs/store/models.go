package store

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an account of the auth subgraph.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           string    `bun:"id,pk"`
	Email        string    `bun:"email,notnull,unique"`
	Name         string    `bun:"name,notnull"`
	PasswordHash string    `bun:"password_hash,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Employee belongs to exactly one organization; email is unique per org.
type Employee struct {
	bun.BaseModel `bun:"table:employees,alias:e"`

	ID         string    `bun:"id,pk"`
	OrgID      string    `bun:"org_id,notnull"`
	Name       string    `bun:"name,notnull"`
	Email      string    `bun:"email,notnull"`
	Role       *string   `bun:"role"`
	Department *string   `bun:"department"`
	CreatedBy  string    `bun:"created_by,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Attendance statuses.
const (
	StatusPresent = "PRESENT"
)

// AttendanceRecord is one employee's attendance for one day. Date is
// YYYY-MM-DD in UTC.
type AttendanceRecord struct {
	bun.BaseModel `bun:"table:attendance,alias:a"`

	ID         string     `bun:"id,pk"`
	OrgID      string     `bun:"org_id,notnull"`
	EmployeeID string     `bun:"employee_id,notnull"`
	Date       string     `bun:"day,notnull"`
	CheckIn    *time.Time `bun:"check_in"`
	CheckOut   *time.Time `bun:"check_out"`
	Status     string     `bun:"status,notnull"`
	CreatedBy  string     `bun:"created_by,notnull"`
}
