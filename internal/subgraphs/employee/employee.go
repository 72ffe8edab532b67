// Package employee is the employee directory subgraph. Every record is scoped
// to the caller's organization.
package employee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/store"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/tenancy"
)

// Schema is the employee subgraph SDL.
const Schema = `
type Query {
  employees: [Employee!]!
  employee(id: ID!): Employee
}

type Mutation {
  createEmployee(name: String!, email: String!, role: String, department: String): Employee!
}

type Employee {
  id: ID!
  orgId: ID!
  name: String!
  email: String!
  role: String
  department: String
}
`

var (
	ErrOtherOrg       = errors.New("employee belongs to another organization")
	ErrDuplicateEmail = errors.New("an employee with this email already exists in the organization")
	ErrMissingField   = errors.New("name and email are required")
)

// Resolver is the root resolver of the employee subgraph.
type Resolver struct {
	db  *bun.DB
	log *zap.Logger
}

// NewResolver returns a Resolver over db.
func NewResolver(db *bun.DB, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{db: db, log: log}
}

// Employees lists the caller's organization.
func (r *Resolver) Employees(ctx context.Context) ([]*Resolved, error) {
	id, err := tenancy.RequireOrg(ctx)
	if err != nil {
		return nil, err
	}

	var rows []store.Employee
	err = r.db.NewSelect().
		Model(&rows).
		Where("org_id = ?", id.OrgID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	out := make([]*Resolved, 0, len(rows))
	for i := range rows {
		out = append(out, &Resolved{&rows[i]})
	}
	return out, nil
}

// Employee returns one employee of the caller's organization.
func (r *Resolver) Employee(ctx context.Context, args struct{ ID graphql.ID }) (*Resolved, error) {
	id, err := tenancy.RequireOrg(ctx)
	if err != nil {
		return nil, err
	}

	e := new(store.Employee)
	err = r.db.NewSelect().Model(e).Where("id = ?", string(args.ID)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	if e.OrgID != id.OrgID {
		return nil, ErrOtherOrg
	}
	return &Resolved{e}, nil
}

type createArgs struct {
	Name       string
	Email      string
	Role       *string
	Department *string
}

// CreateEmployee adds an employee to the caller's organization.
func (r *Resolver) CreateEmployee(ctx context.Context, args createArgs) (*Resolved, error) {
	id, err := tenancy.RequireOrg(ctx)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(args.Name)
	email := strings.ToLower(strings.TrimSpace(args.Email))
	if name == "" || email == "" {
		return nil, ErrMissingField
	}

	e := &store.Employee{
		ID:         store.NewID(),
		OrgID:      id.OrgID,
		Name:       name,
		Email:      email,
		Role:       args.Role,
		Department: args.Department,
		CreatedBy:  id.UserID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(e).Exec(ctx); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create employee: %w", err)
	}

	r.log.Info("employee created",
		zap.String("employee_id", e.ID),
		zap.String("org_id", e.OrgID),
		zap.String("created_by", e.CreatedBy),
	)
	return &Resolved{e}, nil
}

// Resolved resolves Employee.
type Resolved struct {
	e *store.Employee
}

func (r *Resolved) ID() graphql.ID      { return graphql.ID(r.e.ID) }
func (r *Resolved) OrgID() graphql.ID   { return graphql.ID(r.e.OrgID) }
func (r *Resolved) Name() string        { return r.e.Name }
func (r *Resolved) Email() string       { return r.e.Email }
func (r *Resolved) Role() *string       { return r.e.Role }
func (r *Resolved) Department() *string { return r.e.Department }
