// Package permission resolves the set of modules a role may invoke.
//
// Lower level numbers are more privileged. A role sees its own grants plus
// the grants of every role whose level is greater than or equal to its own,
// so level 0 sees everything granted anywhere.
package permission

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	roleDatamodel "github.com/frahmantamala/scriptdeck/internal/core/datamodel/role"
)

// RoleStore is the slice of role persistence the resolver needs.
// FindRole returns (nil, nil) for an unknown id.
type RoleStore interface {
	FindRole(ctx context.Context, id string) (*roleDatamodel.Role, error)
	FindRolesFromLevel(ctx context.Context, level int) ([]*roleDatamodel.Role, error)
}

type Resolver struct {
	store  RoleStore
	cache  *expirable.LRU[string, map[string]struct{}]
	logger *slog.Logger
}

type Option func(*Resolver)

// WithCache keeps resolved sets for at most ttl. A zero ttl or size leaves
// the resolver reading the store on every call.
func WithCache(size int, ttl time.Duration) Option {
	return func(r *Resolver) {
		if size <= 0 || ttl <= 0 {
			return
		}
		r.cache = expirable.NewLRU[string, map[string]struct{}](size, nil, ttl)
	}
}

func NewResolver(store RoleStore, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AccessibleModules returns the sorted module ids roleID may invoke. An
// unknown role has no access and is not an error.
func (r *Resolver) AccessibleModules(ctx context.Context, roleID string) ([]string, error) {
	set, err := r.resolve(ctx, roleID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// HasAccess fails closed: any store error means no access.
func (r *Resolver) HasAccess(ctx context.Context, roleID, moduleID string) bool {
	set, err := r.resolve(ctx, roleID)
	if err != nil {
		r.logger.Error("permission resolution failed, denying access",
			"role", roleID,
			"module", moduleID,
			"error", err)
		return false
	}
	_, ok := set[moduleID]
	return ok
}

// Invalidate drops every cached set. Call after any role, permission or
// module change.
func (r *Resolver) Invalidate() {
	if r != nil && r.cache != nil {
		r.cache.Purge()
	}
}

func (r *Resolver) resolve(ctx context.Context, roleID string) (map[string]struct{}, error) {
	if r.cache != nil {
		if set, ok := r.cache.Get(roleID); ok {
			return set, nil
		}
	}

	role, err := r.store.FindRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		r.logger.Warn("permission lookup for unknown role", "role", roleID)
		return map[string]struct{}{}, nil
	}

	roles, err := r.store.FindRolesFromLevel(ctx, role.Level)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	for _, rl := range roles {
		for _, p := range rl.Permissions {
			set[p.ModuleID] = struct{}{}
		}
	}
	if r.cache != nil {
		r.cache.Add(roleID, set)
	}
	return set, nil
}
