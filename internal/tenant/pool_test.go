package tenant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// lazyPool builds a pgx pool that never dials; good enough to stand in for a
// tenant client in pool lifecycle tests.
func lazyPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig("postgres://u:p@127.0.0.1:1/unreachable")
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.MinConns = 0
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return pool
}

func TestGetOrCreateConcurrentSingleClient(t *testing.T) {
	var calls atomic.Int32
	shared := lazyPool(t)

	p := NewPool(func(ctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error) {
		calls.Add(1)
		return shared, nil
	}, zap.NewNop())
	defer p.Close()

	tenantID := uuid.New()
	desc := models.Descriptor{Host: "db1", Port: 5432, User: "u", Password: "p", Database: "d"}

	const n = 50
	results := make([]*pgxpool.Pool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := p.GetOrCreate(context.Background(), tenantID, desc)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
	for i, r := range results {
		if r != shared {
			t.Errorf("caller %d got a different client", i)
		}
	}
}

func TestGetOrCreateFirstWriterWins(t *testing.T) {
	var descs []models.Descriptor
	p := NewPool(func(ctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error) {
		descs = append(descs, desc)
		return lazyPool(t), nil
	}, zap.NewNop())
	defer p.Close()

	tenantID := uuid.New()
	first := models.Descriptor{Host: "db1", Database: "d"}
	second := models.Descriptor{Host: "db2", Database: "d"}

	a, err := p.GetOrCreate(context.Background(), tenantID, first)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	b, err := p.GetOrCreate(context.Background(), tenantID, second)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if a != b {
		t.Error("repeat call returned a different client")
	}
	if len(descs) != 1 || descs[0].Host != "db1" {
		t.Errorf("factory descriptors = %v, want single call with db1", descs)
	}
}

func TestGetOrCreateFailureNotCached(t *testing.T) {
	var calls int
	p := NewPool(func(ctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return lazyPool(t), nil
	}, zap.NewNop())
	defer p.Close()

	tenantID := uuid.New()
	desc := models.Descriptor{Host: "db1"}

	if _, err := p.GetOrCreate(context.Background(), tenantID, desc); err == nil {
		t.Fatal("expected first creation to fail")
	}
	if _, err := p.GetOrCreate(context.Background(), tenantID, desc); err != nil {
		t.Fatalf("second creation should retry the factory: %v", err)
	}
	if calls != 2 {
		t.Errorf("factory called %d times, want 2", calls)
	}
}

func TestInvalidateForcesRecreation(t *testing.T) {
	var calls int
	p := NewPool(func(ctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error) {
		calls++
		return lazyPool(t), nil
	}, zap.NewNop())
	defer p.Close()

	tenantID := uuid.New()
	desc := models.Descriptor{Host: "db1"}

	if _, err := p.GetOrCreate(context.Background(), tenantID, desc); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	p.Invalidate(tenantID)
	if _, err := p.GetOrCreate(context.Background(), tenantID, desc); err != nil {
		t.Fatalf("GetOrCreate after invalidate: %v", err)
	}
	if calls != 2 {
		t.Errorf("factory called %d times, want 2", calls)
	}
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	p := NewPool(func(ctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error) {
		return lazyPool(t), nil
	}, zap.NewNop())

	tenantID := uuid.New()
	if _, err := p.GetOrCreate(context.Background(), tenantID, models.Descriptor{Host: "db1"}); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	p.Close()
	p.Close() // idempotent

	if _, err := p.GetOrCreate(context.Background(), tenantID, models.Descriptor{Host: "db1"}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("GetOrCreate after close = %v, want ErrPoolClosed", err)
	}
}
