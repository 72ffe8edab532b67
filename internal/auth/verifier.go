package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
)

var (
	// ErrNoCredential is returned by Inspect for an empty credential.
	ErrNoCredential = errors.New("no credential")
	// ErrNoSubject is returned when a valid token carries neither userId nor sub.
	ErrNoSubject = errors.New("token has no subject")
	// ErrUnknownKey is returned when a token's kid matches no configured public key.
	ErrUnknownKey = errors.New("no verification key for token")
)

var (
	hmacMethods   = []string{"HS256", "HS384", "HS512"}
	publicMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
)

// Verifier validates bearer credentials and extracts a Principal.
//
// A Verifier is safe for concurrent use. It holds no per-request state, so
// verifying the same credential twice yields equal results.
type Verifier struct {
	secret  []byte
	keys    *jose.JSONWebKeySet
	parser  *jwt.Parser
	methods []string
}

// NewVerifier constructs a Verifier from auth configuration. At least one of
// JWTSecret or JWKSFile must be provided.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{}

	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
		v.methods = append(v.methods, hmacMethods...)
	}
	if cfg.JWKSFile != "" {
		keys, err := LoadJWKS(cfg.JWKSFile)
		if err != nil {
			return nil, err
		}
		v.keys = keys
		v.methods = append(v.methods, publicMethods...)
	}
	if len(v.methods) == 0 {
		return nil, errors.New("verifier requires a jwt secret or a jwks file")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	v.parser = jwt.NewParser(opts...)

	return v, nil
}

// LoadJWKS reads a JSON Web Key Set from disk. Private keys are reduced to
// their public halves.
func LoadJWKS(path string) (*jose.JSONWebKeySet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwks file: %w", err)
	}

	var set jose.JSONWebKeySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("parse jwks file: %w", err)
	}
	if len(set.Keys) == 0 {
		return nil, fmt.Errorf("jwks file %s contains no keys", path)
	}

	for i, k := range set.Keys {
		if !k.IsPublic() {
			set.Keys[i] = k.Public()
		}
	}
	return &set, nil
}

// Verify returns the Principal for credential, or nil for an absent or invalid
// credential. It never returns an error: failed verification is anonymous.
func (v *Verifier) Verify(credential string) *Principal {
	p, err := v.Inspect(credential)
	if err != nil {
		return nil
	}
	return p
}

// Inspect is Verify with the failure reason exposed, for logging and metrics.
func (v *Verifier) Inspect(credential string) (*Principal, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(credential, claims, v.keyFunc); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return principalFromClaims(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if v.secret == nil {
			return nil, ErrUnknownKey
		}
		return v.secret, nil
	}

	if v.keys == nil {
		return nil, ErrUnknownKey
	}

	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		if len(v.keys.Keys) == 1 {
			return v.keys.Keys[0].Key, nil
		}
		return nil, fmt.Errorf("%w: token has no kid", ErrUnknownKey)
	}

	matches := v.keys.Key(kid)
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}
	return matches[0].Key, nil
}

// tokenClaims is the identity payload. userId is what the auth service issues;
// sub is accepted for tokens minted elsewhere.
type tokenClaims struct {
	UserID  string `mapstructure:"userId"`
	Subject string `mapstructure:"sub"`
	Email   string `mapstructure:"email"`
}

func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	var tc tokenClaims
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &tc,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(claims)); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}

	subject := tc.UserID
	if subject == "" {
		subject = tc.Subject
	}
	if subject == "" {
		return nil, ErrNoSubject
	}

	return &Principal{SubjectID: subject, Email: tc.Email}, nil
}
