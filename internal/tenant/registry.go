package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Handle is a live connection pool bound to one tenant's schema. The DSN
// carries search_path, so every physical connection in the pool operates
// against the bound schema for the handle's whole lifetime.
type Handle struct {
	DB         *sql.DB
	TenantID   uuid.UUID
	SchemaName string

	expiresAt time.Time
}

// RegistryConfig carries the tunables of the connection registry.
type RegistryConfig struct {
	BaseDSN        string
	TTL            time.Duration
	AcquireTimeout time.Duration
	HealthTimeout  time.Duration
	MaxOpenConns   int
	MaxIdleConns   int
}

// Registry hands out schema-bound connection handles for validated tenants,
// one cached handle per tenant id, with TTL-based expiry.
//
// Concurrent acquires for the same tenant are serialized by a per-tenant
// creation lock, so a race past an expired entry cannot leak duplicate
// connections.
type Registry struct {
	validator *Validator
	cfg       RegistryConfig

	mu      sync.Mutex
	handles map[uuid.UUID]*Handle

	// locks entries are kept for the life of the process (bounded by the
	// tenant count) so an in-flight Acquire never races a pruned lock;
	// Cleanup resets them once the request paths have stopped.
	locks map[uuid.UUID]*sync.Mutex

	// open is the connection factory, replaceable in tests.
	open func(dsn string) (*sql.DB, error)
	now  func() time.Time
}

// NewRegistry creates a connection registry
func NewRegistry(validator *Validator, cfg RegistryConfig) *Registry {
	return &Registry{
		validator: validator,
		cfg:       cfg,
		handles:   make(map[uuid.UUID]*Handle),
		locks:     make(map[uuid.UUID]*sync.Mutex),
		open: func(dsn string) (*sql.DB, error) {
			return sql.Open("postgres", dsn)
		},
		now: time.Now,
	}
}

// Acquire returns a live handle bound to the tenant's schema.
//
// The tenant is validated on every call, before the cache is consulted:
// a suspended or deactivated tenant is refused even while a pre-suspension
// handle is still cached. Validation failures propagate verbatim.
func (r *Registry) Acquire(ctx context.Context, tenantID uuid.UUID) (*Handle, error) {
	tenant, err := r.validator.Validate(ctx, tenantID.String())
	if err != nil {
		return nil, err
	}

	lock := r.creationLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if h := r.cachedHandle(tenantID); h != nil {
		return h, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.AcquireTimeout)
	defer cancel()

	dsn, err := tenantDSN(r.cfg.BaseDSN, tenant.SchemaName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	db, err := r.open(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	db.SetMaxOpenConns(r.cfg.MaxOpenConns)
	db.SetMaxIdleConns(r.cfg.MaxIdleConns)

	// A handle that cannot answer a ping is never cached.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	handle := &Handle{
		DB:         db,
		TenantID:   tenantID,
		SchemaName: tenant.SchemaName,
		expiresAt:  r.now().Add(r.cfg.TTL),
	}

	r.mu.Lock()
	r.handles[tenantID] = handle
	r.mu.Unlock()

	log.Debug().
		Str("tenant_id", tenantID.String()).
		Str("schema", tenant.SchemaName).
		Msg("Opened tenant connection")

	return handle, nil
}

// WithConnection acquires a handle and invokes fn with it, propagating fn's
// error unchanged. Preferred over Acquire so callers never hold a handle
// beyond one unit of work.
func (r *Registry) WithConnection(ctx context.Context, tenantID uuid.UUID, fn func(db *sql.DB) error) error {
	handle, err := r.Acquire(ctx, tenantID)
	if err != nil {
		return err
	}
	return fn(handle.DB)
}

// RawQuery runs an ad-hoc query against the tenant's schema and returns the
// rows as generic maps. Unless the query manages search_path itself, it runs
// inside a transaction that pins search_path first; the handle's DSN already
// binds the schema, so the directive is redundant but harmless.
func (r *Registry) RawQuery(ctx context.Context, tenantID uuid.UUID, query string, args ...interface{}) ([]map[string]interface{}, error) {
	handle, err := r.Acquire(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if strings.Contains(strings.ToLower(query), "search_path") {
		rows, err := handle.DB.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return collectRows(rows)
	}

	tx, err := handle.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("SET LOCAL search_path TO %s", quoteIdent(handle.SchemaName))); err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	result, err := collectRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// HealthCheck performs a trivial round trip on the tenant's connection.
// It reports false on any failure, including timeout; it never panics.
func (r *Registry) HealthCheck(ctx context.Context, tenantID uuid.UUID) bool {
	defer func() {
		_ = recover()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	handle, err := r.Acquire(ctx, tenantID)
	if err != nil {
		return false
	}

	var one int
	if err := handle.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return false
	}
	return one == 1
}

// Invalidate closes and drops the cached handle for a tenant, if any.
// Called when a tenant is suspended, deactivated or otherwise mutated.
func (r *Registry) Invalidate(tenantID uuid.UUID) {
	r.mu.Lock()
	handle, ok := r.handles[tenantID]
	if ok {
		delete(r.handles, tenantID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := handle.DB.Close(); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID.String()).
			Msg("Failed to close tenant connection")
	}
}

// Cleanup disconnects every cached handle. Disconnect errors are logged per
// handle and do not stop the sweep; this is the best-effort shutdown path
// wired to SIGINT/SIGTERM.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[uuid.UUID]*Handle)
	r.locks = make(map[uuid.UUID]*sync.Mutex)
	r.mu.Unlock()

	for tenantID, handle := range handles {
		if err := handle.DB.Close(); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", tenantID.String()).
				Str("schema", handle.SchemaName).
				Msg("Failed to close tenant connection during cleanup")
		}
	}

	if len(handles) > 0 {
		log.Info().Int("handles", len(handles)).Msg("Tenant connections cleaned up")
	}
}

// StartSweeper periodically closes expired handles until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	now := r.now()

	r.mu.Lock()
	var expired []*Handle
	for tenantID, handle := range r.handles {
		if now.After(handle.expiresAt) {
			expired = append(expired, handle)
			delete(r.handles, tenantID)
		}
	}
	r.mu.Unlock()

	for _, handle := range expired {
		if err := handle.DB.Close(); err != nil {
			log.Warn().Err(err).
				Str("tenant_id", handle.TenantID.String()).
				Msg("Failed to close expired tenant connection")
		}
	}
}

func (r *Registry) cachedHandle(tenantID uuid.UUID) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle, ok := r.handles[tenantID]
	if !ok {
		return nil
	}
	if r.now().After(handle.expiresAt) {
		delete(r.handles, tenantID)
		go handle.DB.Close()
		return nil
	}
	return handle
}

func (r *Registry) creationLock(tenantID uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[tenantID] = lock
	}
	return lock
}

// tenantDSN binds a schema to the shared DSN. lib/pq passes unrecognized
// parameters to the server as run-time parameters, so search_path in the DSN
// pins the schema for every connection the pool opens.
func tenantDSN(base, schemaName string) (string, error) {
	if strings.Contains(base, "://") {
		u, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schemaName)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	// Keyword/value DSN form.
	return base + " search_path=" + schemaName, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func collectRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}

	return result, rows.Err()
}
