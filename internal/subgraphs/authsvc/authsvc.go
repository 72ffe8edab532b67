// Package authsvc is the auth subgraph: registration, login and the current user.
package authsvc

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

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/auth"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/store"
	"github.com/AdityaSrivastav5/ems-plus-plus/internal/subgraphs/tenancy"
)

// Schema is the auth subgraph SDL.
const Schema = `
type Query {
  me: User
}

type Mutation {
  register(email: String!, password: String!, name: String!): AuthPayload!
  login(email: String!, password: String!): AuthPayload!
}

type User {
  id: ID!
  email: String!
  name: String!
}

type AuthPayload {
  token: String!
  user: User!
}
`

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrMissingField       = errors.New("email, password and name are required")
)

// Resolver is the root resolver of the auth subgraph.
type Resolver struct {
	db     *bun.DB
	issuer *auth.Issuer
	log    *zap.Logger
}

// NewResolver returns a Resolver storing users in db and signing with issuer.
func NewResolver(db *bun.DB, issuer *auth.Issuer, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{db: db, issuer: issuer, log: log}
}

// Me returns the caller, or nil when the gateway asserted no identity.
func (r *Resolver) Me(ctx context.Context) (*UserResolver, error) {
	id := tenancy.FromContext(ctx)
	if id.UserID == "" {
		return nil, nil
	}
	u, err := r.userBy(ctx, "id = ?", id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &UserResolver{u}, nil
}

type registerArgs struct {
	Email    string
	Password string
	Name     string
}

// Register creates an account and signs the caller in.
func (r *Resolver) Register(ctx context.Context, args registerArgs) (*PayloadResolver, error) {
	email := normalizeEmail(args.Email)
	name := strings.TrimSpace(args.Name)
	if email == "" || args.Password == "" || name == "" {
		return nil, ErrMissingField
	}

	hash, err := auth.HashPassword(args.Password)
	if err != nil {
		return nil, err
	}
	u := &store.User{
		ID:           store.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := r.db.NewInsert().Model(u).Exec(ctx); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	r.log.Info("user registered", zap.String("user_id", u.ID))
	return r.payload(u)
}

type loginArgs struct {
	Email    string
	Password string
}

// Login exchanges credentials for a signed token.
func (r *Resolver) Login(ctx context.Context, args loginArgs) (*PayloadResolver, error) {
	u, err := r.userBy(ctx, "email = ?", normalizeEmail(args.Email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.ComparePassword(u.PasswordHash, args.Password) {
		return nil, ErrInvalidCredentials
	}
	return r.payload(u)
}

func (r *Resolver) payload(u *store.User) (*PayloadResolver, error) {
	token, err := r.issuer.Issue(auth.Principal{SubjectID: u.ID, Email: u.Email})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &PayloadResolver{token: token, user: u}, nil
}

func (r *Resolver) userBy(ctx context.Context, where string, arg any) (*store.User, error) {
	u := new(store.User)
	err := r.db.NewSelect().Model(u).Where(where, arg).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserResolver resolves User.
type UserResolver struct {
	u *store.User
}

func (u *UserResolver) ID() graphql.ID { return graphql.ID(u.u.ID) }
func (u *UserResolver) Email() string  { return u.u.Email }
func (u *UserResolver) Name() string   { return u.u.Name }

// PayloadResolver resolves AuthPayload.
type PayloadResolver struct {
	token string
	user  *store.User
}

func (p *PayloadResolver) Token() string       { return p.token }
func (p *PayloadResolver) User() *UserResolver { return &UserResolver{p.user} }
