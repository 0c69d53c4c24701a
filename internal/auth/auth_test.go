package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/robertarktes/ticket-marketplace/internal/auth"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-of-reasonable-length"

var ada = auth.Principal{ID: "user-42", Name: "Ada", Email: "ada@example.com"}

func TestVerify_HS256(t *testing.T) {
	v, err := auth.NewVerifier(secret, "", "")
	require.NoError(t, err)

	token, err := auth.IssueToken(secret, ada, "", time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ada, p)
}

func TestVerify_Rejects(t *testing.T) {
	v, err := auth.NewVerifier(secret, "", "issuer-a")
	require.NoError(t, err)

	expired, err := auth.IssueToken(secret, ada, "issuer-a", -time.Minute)
	require.NoError(t, err)
	wrongSecret, err := auth.IssueToken("another-secret", ada, "issuer-a", time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := auth.IssueToken(secret, ada, "issuer-b", time.Hour)
	require.NoError(t, err)
	noSubject, err := auth.IssueToken(secret, auth.Principal{Name: "ghost"}, "issuer-a", time.Hour)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"garbage":      "not.a.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrUnauthorized))
		})
	}
}

func TestVerify_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := auth.NewVerifier("", string(pubPEM), "")
	require.NoError(t, err)

	claims := auth.Claims{
		Name: ada.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ada.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ada.ID, p.ID)

	// An HMAC token must not be accepted when a public key is configured.
	hmacToken, err := auth.IssueToken(secret, ada, "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(hmacToken)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestNewVerifier_RequiresKey(t *testing.T) {
	_, err := auth.NewVerifier("", "", "")
	assert.Error(t, err)

	_, err = auth.NewVerifier("", "not a pem", "")
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, ok := auth.BearerToken("Bearer abc.def.ghi")
	assert.True(t, ok)
	assert.Equal(t, "abc.def.ghi", token)

	_, ok = auth.BearerToken("Basic dXNlcjpwYXNz")
	assert.False(t, ok)
	_, ok = auth.BearerToken("Bearer")
	assert.False(t, ok)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := auth.PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := auth.ContextWithPrincipal(context.Background(), ada)
	p, ok := auth.PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, ada, p)
}
