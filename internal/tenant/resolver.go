package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry is the source of truth for tenant records (the master database).
type Registry interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// Context is the per-call tenant identity plus connection descriptor. It is
// never persisted.
type Context struct {
	TenantID   uuid.UUID
	Tenant     *models.Tenant
	Descriptor models.Descriptor
}

type cachedEntry struct {
	tenant    *models.Tenant
	fetchedAt time.Time
}

// Resolver resolves tenant identities against the registry with a short-TTL
// in-process cache. Within the TTL a stale entry is served as-is (fail-open);
// a deactivated tenant is cut off at the next refresh.
type Resolver struct {
	registry Registry
	ttl      time.Duration
	log      *zap.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]cachedEntry

	now func() time.Time // test hook
}

func NewResolver(registry Registry, ttl time.Duration, log *zap.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		ttl:      ttl,
		log:      log,
		cache:    make(map[uuid.UUID]cachedEntry),
		now:      time.Now,
	}
}

// Resolve returns the tenant context for id. Returns
// apperrors.ErrUnauthenticated for the zero id and
// apperrors.ErrTenantUnavailable when the record is missing or inactive.
// Failed lookups are never cached.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) (*Context, error) {
	if id == uuid.Nil {
		return nil, apperrors.ErrUnauthenticated
	}

	r.mu.RLock()
	entry, ok := r.cache[id]
	r.mu.RUnlock()

	if ok && r.now().Sub(entry.fetchedAt) < r.ttl {
		return contextFor(entry.tenant), nil
	}

	t, err := r.registry.GetByID(ctx, id)
	if err != nil {
		r.log.Error("tenant registry lookup failed", zap.String("tenant_id", id.String()), zap.Error(err))
		return nil, apperrors.ErrTenantUnavailable
	}
	if t == nil || !t.Active {
		return nil, apperrors.ErrTenantUnavailable
	}

	r.mu.Lock()
	r.cache[id] = cachedEntry{tenant: t, fetchedAt: r.now()}
	r.mu.Unlock()

	return contextFor(t), nil
}

// Invalidate drops the cached record so the next Resolve hits the registry.
func (r *Resolver) Invalidate(id uuid.UUID) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

func contextFor(t *models.Tenant) *Context {
	return &Context{
		TenantID:   t.ID,
		Tenant:     t,
		Descriptor: t.Descriptor(),
	}
}
