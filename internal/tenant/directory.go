package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aurum-saas/aurum-server/internal/models"
	"github.com/aurum-saas/aurum-server/internal/storage"
)

// Directory resolves tenant identifiers (id or subdomain) to tenant records,
// caching snapshots for a fixed TTL to keep registry round trips off the
// request path.
type Directory struct {
	store storage.Store
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]*directoryEntry

	now func() time.Time
}

type directoryEntry struct {
	tenant    *models.Tenant
	expiresAt time.Time
}

// NewDirectory creates a directory over the tenant registry store
func NewDirectory(store storage.Store, ttl time.Duration) *Directory {
	return &Directory{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]*directoryEntry),
		now:     time.Now,
	}
}

// Resolve resolves an identifier (tenant id or subdomain) to a tenant.
// Lookup order: cache, registry by id, registry by subdomain. A registry hit
// is cached under both aliases. Misses are never cached, so a tenant created
// moments ago is visible immediately.
func (d *Directory) Resolve(ctx context.Context, identifier string) (*models.Tenant, error) {
	if t := d.cached(identifier); t != nil {
		return t, nil
	}

	var (
		tenant *models.Tenant
		err    error
	)

	if id, parseErr := uuid.Parse(identifier); parseErr == nil {
		tenant, err = d.store.GetTenant(ctx, id)
	} else {
		err = storage.ErrNotFound
	}

	if errors.Is(err, storage.ErrNotFound) {
		tenant, err = d.store.GetTenantBySubdomain(ctx, identifier)
	}

	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}

	d.Prime(tenant)
	return tenant, nil
}

// Prime caches a tenant snapshot under both its aliases. Used on resolve and
// by the provisioner right after onboarding.
func (d *Directory) Prime(tenant *models.Tenant) {
	expires := d.now().Add(d.ttl)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[tenant.ID.String()] = &directoryEntry{tenant: tenant, expiresAt: expires}
	if tenant.Subdomain != "" {
		d.entries[tenant.Subdomain] = &directoryEntry{tenant: tenant, expiresAt: expires}
	}
}

// Invalidate drops the cache entry for an identifier. When the entry is
// found, every alias of the same tenant is dropped with it, so a stale
// snapshot can never survive under the other key. Safe to call repeatedly.
func (d *Directory) Invalidate(identifier string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[identifier]
	if !ok {
		return
	}

	delete(d.entries, entry.tenant.ID.String())
	delete(d.entries, entry.tenant.Subdomain)
	delete(d.entries, identifier)
}

// InvalidateAll clears the whole cache
func (d *Directory) InvalidateAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]*directoryEntry)
}

// StartSweeper periodically evicts expired entries until ctx is done.
// Expired entries are also skipped on read, so the sweeper is optional.
func (d *Directory) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.sweep()
			}
		}
	}()
}

func (d *Directory) cached(identifier string) *models.Tenant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.entries[identifier]
	if !ok {
		return nil
	}
	if d.now().After(entry.expiresAt) {
		return nil
	}
	return entry.tenant
}

func (d *Directory) sweep() {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for key, entry := range d.entries {
		if now.After(entry.expiresAt) {
			delete(d.entries, key)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().Int("removed", removed).Msg("Tenant directory sweep")
	}
}
