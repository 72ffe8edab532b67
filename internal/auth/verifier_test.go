package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/config"
)

const testSecret = "test-secret"

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)
	return v
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"lowercase scheme", "bearer abc", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", ""},
		{"no token", "Bearer", ""},
		{"empty token", "Bearer ", ""},
		{"three parts", "Bearer abc def", ""},
		{"double space", "Bearer  abc", ""},
		{"token only", "abc.def.ghi", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractBearer(tt.header))
		})
	}
}

func TestVerify_ValidToken(t *testing.T) {
	v := newTestVerifier(t)
	token := signHS256(t, testSecret, jwt.MapClaims{
		"userId": "u1",
		"email":  "u1@example.com",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	p := v.Verify(token)
	require.NotNil(t, p)
	assert.Equal(t, "u1", p.SubjectID)
	assert.Equal(t, "u1@example.com", p.Email)
}

func TestVerify_NumericUserIDAndSubFallback(t *testing.T) {
	v := newTestVerifier(t)

	p := v.Verify(signHS256(t, testSecret, jwt.MapClaims{"userId": 42}))
	require.NotNil(t, p)
	assert.Equal(t, "42", p.SubjectID)

	p = v.Verify(signHS256(t, testSecret, jwt.MapClaims{"sub": "subject-7"}))
	require.NotNil(t, p)
	assert.Equal(t, "subject-7", p.SubjectID)
	assert.Empty(t, p.Email)
}

func TestVerify_FailuresAreAnonymous(t *testing.T) {
	v := newTestVerifier(t)

	tests := []struct {
		name       string
		credential string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signHS256(t, "other-secret", jwt.MapClaims{"userId": "u1"})},
		{"expired", signHS256(t, testSecret, jwt.MapClaims{
			"userId": "u1",
			"exp":    time.Now().Add(-time.Minute).Unix(),
		})},
		{"no subject", signHS256(t, testSecret, jwt.MapClaims{"email": "x@example.com"})},
		{"alg none", func() string {
			s, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "u1"}).
				SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Nil(t, v.Verify(tt.credential))
			})
			_, err := v.Inspect(tt.credential)
			assert.Error(t, err)
		})
	}
}

func TestVerify_Idempotent(t *testing.T) {
	v := newTestVerifier(t)
	token := signHS256(t, testSecret, jwt.MapClaims{"userId": "u1", "email": "a@b.c"})

	first := v.Verify(token)
	second := v.Verify(token)
	require.NotNil(t, first)
	assert.Equal(t, first, second)

	bad := "Bearer nope"
	assert.Equal(t, v.Verify(bad), v.Verify(bad))
}

func TestVerify_IssuerAndAudience(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{JWTSecret: testSecret, Issuer: "ems", Audience: "gateway"})
	require.NoError(t, err)

	good := signHS256(t, testSecret, jwt.MapClaims{"userId": "u1", "iss": "ems", "aud": "gateway"})
	assert.NotNil(t, v.Verify(good))

	wrongIssuer := signHS256(t, testSecret, jwt.MapClaims{"userId": "u1", "iss": "other", "aud": "gateway"})
	assert.Nil(t, v.Verify(wrongIssuer))

	missingAudience := signHS256(t, testSecret, jwt.MapClaims{"userId": "u1", "iss": "ems"})
	assert.Nil(t, v.Verify(missingAudience))
}

func TestVerify_Leeway(t *testing.T) {
	v, err := NewVerifier(config.AuthConfig{JWTSecret: testSecret, Leeway: time.Minute})
	require.NoError(t, err)

	justExpired := signHS256(t, testSecret, jwt.MapClaims{
		"userId": "u1",
		"exp":    time.Now().Add(-10 * time.Second).Unix(),
	})
	assert.NotNil(t, v.Verify(justExpired))
}

func writeJWKS(t *testing.T, keys ...jose.JSONWebKey) string {
	t.Helper()
	raw, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(path, raw, 0600))
	return path
}

func TestVerify_JWKS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// The private half is accepted in the file and reduced to its public key.
	path := writeJWKS(t, jose.JSONWebKey{Key: priv, KeyID: "k1", Algorithm: "RS256", Use: "sig"})

	v, err := NewVerifier(config.AuthConfig{JWKSFile: path})
	require.NoError(t, err)

	sign := func(kid string) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "svc-1"})
		if kid != "" {
			tok.Header["kid"] = kid
		}
		s, err := tok.SignedString(priv)
		require.NoError(t, err)
		return s
	}

	p := v.Verify(sign("k1"))
	require.NotNil(t, p)
	assert.Equal(t, "svc-1", p.SubjectID)

	// Single key sets accept tokens without kid.
	assert.NotNil(t, v.Verify(sign("")))

	_, err = v.Inspect(sign("unknown"))
	assert.ErrorIs(t, err, ErrUnknownKey)

	// HMAC tokens are rejected when no secret is configured.
	assert.Nil(t, v.Verify(signHS256(t, testSecret, jwt.MapClaims{"userId": "u1"})))
}

func TestNewVerifier_Errors(t *testing.T) {
	_, err := NewVerifier(config.AuthConfig{})
	assert.Error(t, err)

	_, err = NewVerifier(config.AuthConfig{JWKSFile: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"keys":[]}`), 0600))
	_, err = NewVerifier(config.AuthConfig{JWKSFile: empty})
	assert.Error(t, err)
}
