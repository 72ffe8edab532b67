package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
)

// DefaultTokenTTL is used when the configuration does not set one.
const DefaultTokenTTL = 7 * 24 * time.Hour

// PasswordCost is the bcrypt work factor for stored passwords.
const PasswordCost = 10

// Issuer signs HS256 bearer tokens accepted by Verifier.
type Issuer struct {
	secret   []byte
	ttl      time.Duration
	issuer   string
	audience string
	now      func() time.Time
}

// NewIssuer builds an Issuer from the shared secret in cfg.
func NewIssuer(cfg config.AuthConfig) (*Issuer, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("token issuing requires auth.jwt_secret")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}, nil
}

// Issue returns a signed token for p.
func (i *Issuer) Issue(p Principal) (string, error) {
	if p.SubjectID == "" {
		return "", ErrNoSubject
	}

	now := i.now()
	claims := jwt.MapClaims{
		"userId": p.SubjectID,
		"sub":    p.SubjectID,
		"iat":    now.Unix(),
		"exp":    now.Add(i.ttl).Unix(),
		"jti":    uuid.NewString(),
	}
	if p.Email != "" {
		claims["email"] = p.Email
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}
	if i.audience != "" {
		claims["aud"] = i.audience
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches hash.
func ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
