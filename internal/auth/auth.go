// Package auth validates OIDC bearer tokens against the issuer's JWKS and
// gates admin routes on a role claim. When no issuer is configured the
// middleware is a no-op and every request is anonymous.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/apkhub/apkhub-server/internal/config"
)

// User is the authenticated principal attached to the request context.
type User struct {
	Subject string
	Name    string
	Roles   []string
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validator checks bearer tokens. The zero value is unusable; construct
// with New.
type Validator struct {
	keyfunc   jwt.Keyfunc
	issuer    string
	audience  string
	rolePath  []string
	adminRole string
	log       *slog.Logger
}

type discoveryDocument struct {
	JWKSURI string `json:"jwks_uri"`
}

// New fetches the issuer's discovery document and JWKS once at startup.
// The JWKS is refreshed in the background by keyfunc.
func New(ctx context.Context, cfg config.OIDCConfig, log *slog.Logger) (*Validator, error) {
	if log == nil {
		log = slog.Default()
	}

	jwksURI, err := discoverJWKS(ctx, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURI, err)
	}

	return &Validator{
		keyfunc:   kf.Keyfunc,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		rolePath:  strings.Split(cfg.RoleClaimPath, "."),
		adminRole: cfg.AdminRole,
		log:       log,
	}, nil
}

func discoverJWKS(ctx context.Context, issuer string) (string, error) {
	url := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build discovery request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OIDC discovery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OIDC discovery returned status %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", fmt.Errorf("discovery document has no jwks_uri")
	}
	return doc.JWKSURI, nil
}

// Validate parses and verifies a bearer token, returning the principal.
func (v *Validator) Validate(tokenString string) (*User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(60*time.Second),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	user := &User{Roles: rolesAt(claims, v.rolePath)}
	if sub, ok := claims["sub"].(string); ok {
		user.Subject = sub
	}
	if name, ok := claims["preferred_username"].(string); ok {
		user.Name = name
	}
	return user, nil
}

// rolesAt walks a dot-separated claim path and collects the string values
// of the array found there. A missing or malformed claim yields no roles.
func rolesAt(claims map[string]any, path []string) []string {
	var node any = map[string]any(claims)
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[key]
	}

	list, ok := node.([]any)
	if !ok {
		return nil
	}
	var roles []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}
