package auth

import (
	"context"
	"crypto/rsa"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-marketplace/internal/domain"
)

// Principal is the authenticated caller as asserted by the identity provider.
type Principal struct {
	ID    string
	Name  string
	Email string
}

type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
}

// NewVerifier accepts either an HMAC secret or a PEM encoded RSA public key.
// When both are set the public key wins.
func NewVerifier(secret, publicKeyPEM, issuer string) (*Verifier, error) {
	v := &Verifier{issuer: issuer}
	if publicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, errors.Wrap(err, "parse jwt public key")
		}
		v.publicKey = key
		return v, nil
	}
	if secret == "" {
		return nil, errors.New("jwt secret or public key is required")
	}
	v.secret = []byte(secret)
	return v, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.publicKey != nil {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.Newf("unexpected signing method %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Newf("unexpected signing method %v", token.Header["alg"])
	}
	return v.secret, nil
}

// Verify checks the signature and registered claims of tokenString. Every
// failure is reported as domain.ErrUnauthorized.
func (v *Verifier) Verify(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return Principal{}, errors.Mark(errors.Wrap(err, "invalid token"), domain.ErrUnauthorized)
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, errors.Wrap(domain.ErrUnauthorized, "token has no subject")
	}

	return Principal{ID: claims.Subject, Name: claims.Name, Email: claims.Email}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// IssueToken signs an HS256 token for p. Used by tests and local tooling.
func IssueToken(secret string, p Principal, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  p.Name,
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
