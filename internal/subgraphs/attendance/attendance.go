// Package attendance is the daily check-in/check-out subgraph.
package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/store"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/tenancy"
)

// Schema is the attendance subgraph SDL.
const Schema = `
type Query {
  attendance(employeeId: ID!, date: String!): Attendance
}

type Mutation {
  checkIn(employeeId: ID!): Attendance!
  checkOut(employeeId: ID!): Attendance!
}

type Attendance {
  id: ID!
  employeeId: ID!
  date: String!
  checkIn: String
  checkOut: String
  status: String!
}
`

// DateLayout is the format of Attendance.date.
const DateLayout = "2006-01-02"

var (
	ErrAlreadyCheckedIn  = errors.New("employee has already checked in today")
	ErrNotCheckedIn      = errors.New("employee has not checked in today")
	ErrAlreadyCheckedOut = errors.New("employee has already checked out today")
	ErrInvalidDate       = errors.New("date must be formatted as YYYY-MM-DD")
)

// Resolver is the root resolver of the attendance subgraph.
type Resolver struct {
	db  *bun.DB
	now func() time.Time
	log *zap.Logger
}

// NewResolver returns a Resolver over db. A nil clock uses time.Now.
func NewResolver(db *bun.DB, now func() time.Time, log *zap.Logger) *Resolver {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{db: db, now: now, log: log}
}

// Attendance returns the record of one employee for one day.
func (r *Resolver) Attendance(ctx context.Context, args struct {
	EmployeeID graphql.ID
	Date       string
}) (*Resolved, error) {
	id, err := tenancy.RequireOrg(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(DateLayout, args.Date); err != nil {
		return nil, ErrInvalidDate
	}

	rec, err := r.find(ctx, id.OrgID, string(args.EmployeeID), args.Date)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Resolved{rec}, nil
}

type employeeArgs struct {
	EmployeeID graphql.ID
}

// CheckIn opens today's record. An employee checks in at most once a day.
func (r *Resolver) CheckIn(ctx context.Context, args employeeArgs) (*Resolved, error) {
	id, err := tenancy.RequireOrg(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	day := now.Format(DateLayout)
	employeeID := string(args.EmployeeID)

	_, err = r.find(ctx, id.OrgID, employeeID, day)
	switch {
	case err == nil:
		return nil, ErrAlreadyCheckedIn
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	rec := &store.AttendanceRecord{
		ID:         store.NewID(),
		OrgID:      id.OrgID,
		EmployeeID: employeeID,
		Date:       day,
		CheckIn:    &now,
		Status:     store.StatusPresent,
		CreatedBy:  id.UserID,
	}
	if _, err := r.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		// Lost a race with a concurrent check-in.
		if store.IsUniqueViolation(err) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	r.log.Info("checked in",
		zap.String("employee_id", employeeID),
		zap.String("org_id", id.OrgID),
		zap.String("date", day),
	)
	return &Resolved{rec}, nil
}

// CheckOut closes today's record.
func (r *Resolver) CheckOut(ctx context.Context, args employeeArgs) (*Resolved, error) {
	id, err := tenancy.RequireOrg(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	rec, err := r.find(ctx, id.OrgID, string(args.EmployeeID), now.Format(DateLayout))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotCheckedIn
	}
	if err != nil {
		return nil, err
	}
	if rec.CheckOut != nil {
		return nil, ErrAlreadyCheckedOut
	}

	rec.CheckOut = &now
	_, err = r.db.NewUpdate().
		Model(rec).
		Column("check_out").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("update attendance: %w", err)
	}
	return &Resolved{rec}, nil
}

func (r *Resolver) find(ctx context.Context, orgID, employeeID, day string) (*store.AttendanceRecord, error) {
	rec := new(store.AttendanceRecord)
	err := r.db.NewSelect().
		Model(rec).
		Where("org_id = ?", orgID).
		Where("employee_id = ?", employeeID).
		Where("day = ?", day).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return rec, nil
}

// Resolved resolves Attendance.
type Resolved struct {
	rec *store.AttendanceRecord
}

func (r *Resolved) ID() graphql.ID         { return graphql.ID(r.rec.ID) }
func (r *Resolved) EmployeeID() graphql.ID { return graphql.ID(r.rec.EmployeeID) }
func (r *Resolved) Date() string           { return r.rec.Date }
func (r *Resolved) CheckIn() *string       { return timestamp(r.rec.CheckIn) }
func (r *Resolved) CheckOut() *string      { return timestamp(r.rec.CheckOut) }
func (r *Resolved) Status() string         { return r.rec.Status }

func timestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
