package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatsuite/backend/internal/apperrors"
	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type fakeRegistry struct {
	tenants map[uuid.UUID]*models.Tenant
	err     error
	calls   int
}

func (f *fakeRegistry) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tenants[id], nil
}

func activeTenant(id uuid.UUID) *models.Tenant {
	return &models.Tenant{
		ID: id, Name: "acme", Active: true,
		DBHost: "db1.internal", DBPort: 5432, DBUser: "acme", DBPassword: "pw", DBName: "acme_prod",
	}
}

func TestResolveCachesWithinTTL(t *testing.T) {
	id := uuid.New()
	reg := &fakeRegistry{tenants: map[uuid.UUID]*models.Tenant{id: activeTenant(id)}}
	r := NewResolver(reg, 60*time.Second, zap.NewNop())

	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		tc, err := r.Resolve(context.Background(), id)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if tc.TenantID != id || tc.Descriptor.Host != "db1.internal" {
			t.Fatalf("unexpected context: %+v", tc)
		}
	}
	if reg.calls != 1 {
		t.Errorf("registry hit %d times within TTL, want 1", reg.calls)
	}

	// Past the TTL the registry is consulted again.
	now = now.Add(61 * time.Second)
	if _, err := r.Resolve(context.Background(), id); err != nil {
		t.Fatalf("Resolve after TTL: %v", err)
	}
	if reg.calls != 2 {
		t.Errorf("registry hit %d times after TTL, want 2", reg.calls)
	}
}

func TestResolveServesStaleWithinTTL(t *testing.T) {
	id := uuid.New()
	tn := activeTenant(id)
	reg := &fakeRegistry{tenants: map[uuid.UUID]*models.Tenant{id: tn}}
	r := NewResolver(reg, 60*time.Second, zap.NewNop())

	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	if _, err := r.Resolve(context.Background(), id); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// Deactivate in the registry; the cache still answers (fail-open).
	tn.Active = false
	now = now.Add(30 * time.Second)
	if _, err := r.Resolve(context.Background(), id); err != nil {
		t.Fatalf("stale entry within TTL should still resolve: %v", err)
	}

	// After the TTL the deactivation takes effect.
	now = now.Add(31 * time.Second)
	if _, err := r.Resolve(context.Background(), id); !errors.Is(err, apperrors.ErrTenantUnavailable) {
		t.Errorf("Resolve past TTL = %v, want ErrTenantUnavailable", err)
	}
}

func TestResolveInactiveTenant(t *testing.T) {
	id := uuid.New()
	tn := activeTenant(id)
	tn.Active = false
	reg := &fakeRegistry{tenants: map[uuid.UUID]*models.Tenant{id: tn}}
	r := NewResolver(reg, 60*time.Second, zap.NewNop())

	if _, err := r.Resolve(context.Background(), id); !errors.Is(err, apperrors.ErrTenantUnavailable) {
		t.Fatalf("Resolve = %v, want ErrTenantUnavailable", err)
	}

	// Failed lookups are not cached.
	if _, err := r.Resolve(context.Background(), id); !errors.Is(err, apperrors.ErrTenantUnavailable) {
		t.Fatalf("second Resolve = %v, want ErrTenantUnavailable", err)
	}
	if reg.calls != 2 {
		t.Errorf("registry hit %d times, want 2 (no negative caching)", reg.calls)
	}
}

func TestResolveMissingTenant(t *testing.T) {
	reg := &fakeRegistry{tenants: map[uuid.UUID]*models.Tenant{}}
	r := NewResolver(reg, 60*time.Second, zap.NewNop())

	if _, err := r.Resolve(context.Background(), uuid.New()); !errors.Is(err, apperrors.ErrTenantUnavailable) {
		t.Errorf("Resolve = %v, want ErrTenantUnavailable", err)
	}
}

func TestResolveRegistryError(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("connection refused")}
	r := NewResolver(reg, 60*time.Second, zap.NewNop())

	if _, err := r.Resolve(context.Background(), uuid.New()); !errors.Is(err, apperrors.ErrTenantUnavailable) {
		t.Errorf("Resolve = %v, want ErrTenantUnavailable", err)
	}
}

func TestResolveNilID(t *testing.T) {
	reg := &fakeRegistry{}
	r := NewResolver(reg, 60*time.Second, zap.NewNop())

	if _, err := r.Resolve(context.Background(), uuid.Nil); !errors.Is(err, apperrors.ErrUnauthenticated) {
		t.Errorf("Resolve(nil id) = %v, want ErrUnauthenticated", err)
	}
	if reg.calls != 0 {
		t.Errorf("registry consulted for nil id")
	}
}
