// Package auth verifies bearer tokens and carries the caller's identity
// through request contexts.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RoleSuperuser = "superuser"
	RoleAdmin     = "admin"
	RoleUser      = "user"
)

// Claims identify the caller. OrganizationID is set for organization admins.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string `json:"organization_id,omitempty"`
	Role           string `json:"role"`
}

func (c *Claims) UserID() string { return c.Subject }

func (c *Claims) IsSuperuser() bool { return c.Role == RoleSuperuser }

// AdminOf reports whether the caller administers organizationID.
func (c *Claims) AdminOf(organizationID string) bool {
	return c.IsSuperuser() || (c.Role == RoleAdmin && c.OrganizationID != "" && c.OrganizationID == organizationID)
}

// Verifier checks HS256 tokens against a shared secret, or RS256 tokens
// against keys from a JWKS endpoint.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	issuer string
}

func NewHS256Verifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func NewJWKSVerifier(client *JWKSClient, issuer string) *Verifier {
	return &Verifier{jwks: client, issuer: issuer}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var keyFunc jwt.Keyfunc
	if v.jwks != nil {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
		keyFunc = v.jwks.Keyfunc
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		keyFunc = func(*jwt.Token) (any, error) { return v.secret, nil }
	}

	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// SignHS256 issues a token for subject valid for ttl.
func SignHS256(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
