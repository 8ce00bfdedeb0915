// Package auth decides who may restore backups.
//
// A Principal is resolved once per request (from an API key) and stored in
// the request context. Routes then ask the Policy whether the principal holds
// the Capability they need. The restore engine itself never authorizes.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

// Role is the coarse permission level of a principal.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

// Capability is a single permission checked by a route.
type Capability string

const (
	// CapRestoreRun allows starting a restore, which can delete data.
	CapRestoreRun Capability = "restore:run"
	// CapRestoreRead allows listing tables, previewing plans and reading run history.
	CapRestoreRead Capability = "restore:read"
)

// Principal is the authenticated caller.
type Principal struct {
	ID   string
	Role Role
}

// Anonymous is used when authentication is disabled.
var Anonymous = Principal{ID: "anonymous", Role: RoleAdmin}

// ErrUnauthenticated is returned when no principal could be resolved.
var ErrUnauthenticated = errors.New("authentication required")

// ErrForbidden is returned when a principal lacks a capability.
var ErrForbidden = errors.New("capability not granted")

// Policy maps roles to capabilities.
type Policy struct {
	grants map[Role]map[Capability]bool
}

// DefaultPolicy grants viewers read access and admins everything.
func DefaultPolicy() *Policy {
	return &Policy{grants: map[Role]map[Capability]bool{
		RoleAdmin:  {CapRestoreRun: true, CapRestoreRead: true},
		RoleViewer: {CapRestoreRead: true},
	}}
}

// Authorize returns nil if p holds c.
func (pol *Policy) Authorize(p Principal, c Capability) error {
	if p.ID == "" {
		return ErrUnauthenticated
	}
	if !pol.grants[p.Role][c] {
		return fmt.Errorf("%w: %s lacks %s", ErrForbidden, p.ID, c)
	}
	return nil
}

// KeyRing resolves API keys to principals.
type KeyRing struct {
	keys []apiKey
}

type apiKey struct {
	secret    []byte
	principal Principal
}

// ParseKeys builds a KeyRing from "key:role" entries. A missing role means
// viewer. The principal ID is a short, non-secret prefix of the key.
func ParseKeys(entries []string) (*KeyRing, error) {
	ring := &KeyRing{}
	for i, entry := range entries {
		key, role, _ := strings.Cut(strings.TrimSpace(entry), ":")
		if key == "" {
			return nil, fmt.Errorf("api key %d: empty key", i)
		}
		r := Role(role)
		switch r {
		case "":
			r = RoleViewer
		case RoleAdmin, RoleViewer:
		default:
			return nil, fmt.Errorf("api key %d: unknown role %q", i, role)
		}
		ring.keys = append(ring.keys, apiKey{
			secret:    []byte(key),
			principal: Principal{ID: "key:" + keyPrefix(key), Role: r},
		})
	}
	return ring, nil
}

// Len returns the number of configured keys.
func (k *KeyRing) Len() int {
	return len(k.keys)
}

// Lookup returns the principal of key. Every configured key is compared in
// constant time so timing does not reveal which key matched.
func (k *KeyRing) Lookup(key string) (Principal, bool) {
	var (
		found Principal
		match int
	)
	for _, ak := range k.keys {
		if subtle.ConstantTimeCompare([]byte(key), ak.secret) == 1 {
			found = ak.principal
			match = 1
		}
	}
	return found, match == 1
}

func keyPrefix(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}

type contextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the principal stored in ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}
