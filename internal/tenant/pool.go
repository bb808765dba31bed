package tenant

import (
	"context"
	"errors"
	"sync"

	"github.com/chatsuite/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("tenant client pool is closed")

// Factory creates the data client for one tenant database. The production
// factory dials pgx and applies tenant migrations; tests inject their own.
type Factory func(ctx context.Context, desc models.Descriptor) (*pgxpool.Pool, error)

type poolEntry struct {
	once sync.Once
	pool *pgxpool.Pool
	err  error
}

// Pool caches one live data client per tenant id for the process lifetime.
// Get-or-insert is atomic: concurrent first callers for an unseen tenant
// share a single factory call. The descriptor of the first caller wins;
// rotation goes through Invalidate, never through automatic re-creation.
type Pool struct {
	factory Factory
	log     *zap.Logger

	mu      sync.Mutex
	entries map[uuid.UUID]*poolEntry
	closed  bool
}

func NewPool(factory Factory, log *zap.Logger) *Pool {
	return &Pool{
		factory: factory,
		log:     log,
		entries: make(map[uuid.UUID]*poolEntry),
	}
}

func (p *Pool) GetOrCreate(ctx context.Context, tenantID uuid.UUID, desc models.Descriptor) (*pgxpool.Pool, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	e, ok := p.entries[tenantID]
	if !ok {
		e = &poolEntry{}
		p.entries[tenantID] = e
	}
	p.mu.Unlock()

	e.once.Do(func() {
		e.pool, e.err = p.factory(ctx, desc)
		if e.err == nil {
			p.log.Info("tenant client created", zap.String("tenant_id", tenantID.String()))
		}
	})

	if e.err != nil {
		// A failed creation must not pin the tenant id forever.
		p.mu.Lock()
		if p.entries[tenantID] == e {
			delete(p.entries, tenantID)
		}
		p.mu.Unlock()
		return nil, e.err
	}
	return e.pool, nil
}

// Invalidate closes and removes one tenant's client. The explicit path for
// credential rotation: the next GetOrCreate rebuilds from a fresh descriptor.
func (p *Pool) Invalidate(tenantID uuid.UUID) {
	p.mu.Lock()
	e, ok := p.entries[tenantID]
	if ok {
		delete(p.entries, tenantID)
	}
	p.mu.Unlock()

	if ok && e.pool != nil {
		e.pool.Close()
		p.log.Info("tenant client invalidated", zap.String("tenant_id", tenantID.String()))
	}
}

// Close releases every pooled client, best-effort. Called once at process
// shutdown; further GetOrCreate calls fail with ErrPoolClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	for id, e := range entries {
		if e.pool != nil {
			e.pool.Close()
			p.log.Info("tenant client closed", zap.String("tenant_id", id.String()))
		}
	}
}
