// Package auth resolves opaque bearer tokens to user ids. Verification is
// modeled as a TokenVerifier interface with two variants tried in declared
// order: standard JWTs signed by the auth backend's shared secret, and
// opaque service tokens introspected against the auth backend itself.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/errors"
)

// TokenVerifier resolves one bearer token format to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// StandardJWTVerifier accepts HMAC-signed (HS256/HS384/HS512) JWTs whose
// subject claim carries the auth identity id.
type StandardJWTVerifier struct {
	secret []byte
}

func NewStandardJWTVerifier(secret string) *StandardJWTVerifier {
	return &StandardJWTVerifier{secret: []byte(secret)}
}

func (v *StandardJWTVerifier) Verify(_ context.Context, token string) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("jwt verification not configured")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("invalid jwt: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("jwt has no subject")
	}
	return sub, nil
}

// OpaqueServiceTokenVerifier introspects tokens the core cannot decode
// locally against the external auth backend.
type OpaqueServiceTokenVerifier struct {
	backendURL string
	client     *http.Client
}

func NewOpaqueServiceTokenVerifier(backendURL string) *OpaqueServiceTokenVerifier {
	return &OpaqueServiceTokenVerifier{
		backendURL: strings.TrimRight(backendURL, "/"),
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (v *OpaqueServiceTokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if v.backendURL == "" {
		return "", fmt.Errorf("auth backend not configured")
	}
	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, v.backendURL+"/api/v1/auth/introspect", bytes.NewReader(body),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("introspection rejected: %d", resp.StatusCode)
	}
	var out struct {
		Active bool   `json:"active"`
		UserID string `json:"user_id"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", err
	}
	if !out.Active || out.UserID == "" {
		return "", fmt.Errorf("token inactive")
	}
	return out.UserID, nil
}

// TokenResolver tries each verifier in declared order and returns the first
// match.
type TokenResolver struct {
	verifiers []TokenVerifier
}

// NewTokenResolver builds the default resolver from config: JWT first, then
// opaque introspection.
func NewTokenResolver(cfg *config.Config) *TokenResolver {
	var verifiers []TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifiers = append(verifiers, NewStandardJWTVerifier(cfg.Auth.JWTSecret))
	}
	if cfg.Auth.BackendURL != "" {
		verifiers = append(verifiers, NewOpaqueServiceTokenVerifier(cfg.Auth.BackendURL))
	}
	return &TokenResolver{verifiers: verifiers}
}

// NewTokenResolverWith builds a resolver over explicit verifiers, used by tests.
func NewTokenResolverWith(verifiers ...TokenVerifier) *TokenResolver {
	return &TokenResolver{verifiers: verifiers}
}

// Resolve maps a bearer token to a user id or an auth taxonomy error.
func (r *TokenResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", errors.NewAuthMissingError("missing bearer token")
	}
	for _, v := range r.verifiers {
		if userID, err := v.Verify(ctx, token); err == nil {
			return userID, nil
		}
	}
	return "", errors.NewAuthInvalidError("bearer token rejected")
}
