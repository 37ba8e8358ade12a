// Copyright 2026 The OpenEnroll Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/openenroll/openenroll/internal/observability/logger"
	"github.com/openenroll/openenroll/internal/observability/metrics"
	"github.com/openenroll/openenroll/internal/store/sqlite"
	"go.opentelemetry.io/otel/metric"
)

// Config holds registry construction parameters.
type Config struct {
	// Root is the directory holding one SQLite artifact per tenant.
	Root string
	// MaxOpenHandles bounds the number of concurrently open handles (M).
	MaxOpenHandles int
	// BusyTimeout is passed through to each SQLite handle.
	BusyTimeout time.Duration
	// ReleaseTimeout caps how long Release waits for in-flight operations.
	ReleaseTimeout time.Duration
}

// Registry maps tenant ids to live storage handles under a fixed bound.
// Handles are opened lazily on first Acquire, reference-counted while
// operations are in flight, and evicted strictly least-recently-used when
// the bound is reached. The registry is the sole owner with authority to
// close a handle; it never closes one whose refcount is nonzero.
//
// The mutex guards only the cache map itself. It is never held while
// opening, closing, or using a handle: a slot being opened is published as
// a pending entry first, then filled in outside the lock.
type Registry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
	cfg     Config
	closed  bool
	now     func() time.Time

	handlesOpen metric.Int64UpDownCounter
	opens       metric.Int64Counter
	evictions   metric.Int64Counter
	exhaustions metric.Int64Counter
}

type entry struct {
	tenantID string
	db       *sqlite.DB
	refs     int
	lastUsed time.Time
	err      error
	ready    chan struct{} // closed when open/provision finishes
	gone     chan struct{} // closed when the slot is vacated
	removing bool
}

func (e *entry) pending() bool {
	select {
	case <-e.ready:
		return false
	default:
		return true
	}
}

// Handle is a leased reference to one tenant's storage. Callers must call
// Release when done; the underlying connection stays cached in the
// registry until evicted.
type Handle struct {
	reg     *Registry
	entry   *entry
	release sync.Once
}

// DB returns the underlying storage handle
func (h *Handle) DB() *sqlite.DB {
	return h.entry.db
}

// TenantID returns the tenant this handle belongs to
func (h *Handle) TenantID() string {
	return h.entry.tenantID
}

// Release returns the lease. Safe to call more than once.
func (h *Handle) Release() {
	h.release.Do(func() {
		r := h.reg
		r.mu.Lock()
		h.entry.refs--
		h.entry.lastUsed = r.now()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
}

// NewRegistry creates a registry over the given storage root. The root
// directory is created if missing. meter may be nil (no metrics).
func NewRegistry(cfg Config, meter *metrics.Meter) (*Registry, error) {
	if cfg.MaxOpenHandles < 1 {
		return nil, fmt.Errorf("registry bound must be at least 1, got %d", cfg.MaxOpenHandles)
	}
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = 30 * time.Second
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create tenant storage root: %w", err)
	}

	r := &Registry{
		entries: make(map[string]*entry),
		cfg:     cfg,
		now:     time.Now,
	}
	r.cond = sync.NewCond(&r.mu)

	if meter != nil {
		r.handlesOpen, _ = meter.CreateUpDownCounter("tenant_handles_open", "Live tenant storage handles")
		r.opens, _ = meter.CreateCounter("tenant_handle_opens_total", "Tenant storage handles opened")
		r.evictions, _ = meter.CreateCounter("tenant_handle_evictions_total", "Tenant storage handles evicted")
		r.exhaustions, _ = meter.CreateCounter("tenant_registry_exhausted_total", "Acquires failed because every cached handle was pinned")
	}
	return r, nil
}

// Acquire returns a leased handle for the tenant, opening one if needed.
// Fails with ErrTenantNotFound when no storage artifact exists,
// ErrRegistryExhausted when the cache is full of pinned handles, and
// ErrStorageUnavailable on engine-level open failures (never auto-retried).
func (r *Registry) Acquire(ctx context.Context, tenantID string) (*Handle, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	for {
		if r.closed {
			r.mu.Unlock()
			return nil, ErrRegistryClosed
		}
		e, ok := r.entries[tenantID]
		if !ok {
			break
		}
		if e.pending() {
			// Another caller is opening this tenant; piggyback on it.
			r.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-e.ready:
			}
			r.mu.Lock()
			continue
		}
		if e.removing {
			// Teardown in progress; wait for the slot to clear, then
			// re-evaluate (the artifact is usually gone afterwards).
			r.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-e.gone:
			}
			r.mu.Lock()
			continue
		}
		e.refs++
		e.lastUsed = r.now()
		r.mu.Unlock()
		return &Handle{reg: r, entry: e}, nil
	}

	// Miss: reserve the slot before doing any I/O.
	victim, err := r.makeRoomLocked()
	if err != nil {
		r.mu.Unlock()
		r.count(r.exhaustions)
		return nil, err
	}
	e := r.reserveLocked(tenantID)
	r.mu.Unlock()

	r.closeEvicted(victim)

	path := ArtifactPath(r.cfg.Root, tenantID)
	var db *sqlite.DB
	if _, statErr := os.Stat(path); statErr != nil {
		err = fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	} else {
		db, err = sqlite.Open(ctx, path, sqlite.Config{BusyTimeout: r.cfg.BusyTimeout})
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	return r.finishOpen(e, db, err)
}

// Provision creates the tenant's storage artifact, bootstraps its schema,
// caches the handle and returns it pinned. The slot is held exclusively for
// the whole creation so a concurrent Acquire can never observe a
// half-provisioned tenant.
func (r *Registry) Provision(ctx context.Context, tenantID string) (*Handle, error) {
	if err := ValidateID(tenantID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if _, ok := r.entries[tenantID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTenantAlreadyExists, tenantID)
	}
	victim, err := r.makeRoomLocked()
	if err != nil {
		r.mu.Unlock()
		r.count(r.exhaustions)
		return nil, err
	}
	e := r.reserveLocked(tenantID)
	r.mu.Unlock()

	r.closeEvicted(victim)

	db, err := sqlite.Create(ctx, ArtifactPath(r.cfg.Root, tenantID), sqlite.Config{BusyTimeout: r.cfg.BusyTimeout})
	if err != nil {
		if os.IsExist(err) {
			err = fmt.Errorf("%w: %s", ErrTenantAlreadyExists, tenantID)
		} else {
			err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	h, err := r.finishOpen(e, db, err)
	if err == nil {
		slog.Info("tenant provisioned",
			logger.Component("registry"),
			logger.TenantID(tenantID),
			logger.Artifact(db.Path()),
		)
	}
	return h, err
}

// Release force-closes a tenant's cached handle, waiting (up to the
// configured timeout) for in-flight leases to drain. Used during tenant
// deletion; a no-op if the tenant has no cached handle.
func (r *Registry) Release(ctx context.Context, tenantID string) error {
	if err := ValidateID(tenantID); err != nil {
		return err
	}
	e, err := r.claimForRemoval(ctx, tenantID)
	if err != nil || e == nil {
		return err
	}
	defer r.vacate(e)

	return r.closeEntry(e)
}

// Destroy force-closes the tenant's handle and deletes its storage
// artifact. The slot stays held until the artifact is gone, so a racing
// Acquire cannot resurrect the tenant in between.
func (r *Registry) Destroy(ctx context.Context, tenantID string) error {
	if err := ValidateID(tenantID); err != nil {
		return err
	}
	e, err := r.claimForRemoval(ctx, tenantID)
	if err != nil {
		return err
	}
	if e != nil {
		defer r.vacate(e)
		if err := r.closeEntry(e); err != nil {
			return err
		}
	}

	path := ArtifactPath(r.cfg.Root, tenantID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
		}
		return fmt.Errorf("failed to remove tenant artifact: %w", err)
	}

	slog.Info("tenant destroyed", logger.Component("registry"), logger.TenantID(tenantID))
	return nil
}

// Shutdown closes every cached handle. New Acquires fail afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		e, err := r.claimForRemoval(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if e == nil {
			continue
		}
		if err := r.closeEntry(e); err != nil && firstErr == nil {
			firstErr = err
		}
		r.vacate(e)
	}
	return firstErr
}

// OpenHandles reports the number of cached handles (including pending).
func (r *Registry) OpenHandles() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// reserveLocked publishes a pending entry so concurrent callers wait
// instead of opening the same artifact twice.
func (r *Registry) reserveLocked(tenantID string) *entry {
	e := &entry{
		tenantID: tenantID,
		ready:    make(chan struct{}),
		gone:     make(chan struct{}),
	}
	r.entries[tenantID] = e
	return e
}

// makeRoomLocked evicts the least-recently-used unpinned entry when the
// cache is full. It returns the victim for the caller to close once the
// lock is dropped.
func (r *Registry) makeRoomLocked() (*entry, error) {
	if len(r.entries) < r.cfg.MaxOpenHandles {
		return nil, nil
	}

	var victim *entry
	for _, e := range r.entries {
		if e.refs > 0 || e.removing || e.pending() {
			continue
		}
		if victim == nil || e.lastUsed.Before(victim.lastUsed) {
			victim = e
		}
	}
	if victim == nil {
		return nil, ErrRegistryExhausted
	}

	delete(r.entries, victim.tenantID)
	close(victim.gone)
	return victim, nil
}

func (r *Registry) closeEvicted(victim *entry) {
	if victim == nil {
		return
	}
	if err := victim.db.Close(); err != nil {
		slog.Warn("failed to close evicted tenant handle",
			logger.Component("registry"),
			logger.TenantID(victim.tenantID),
			logger.Error(err),
		)
	}
	r.count(r.evictions)
	r.gauge(-1)
	slog.Debug("tenant handle evicted", logger.Component("registry"), logger.TenantID(victim.tenantID))
}

// finishOpen publishes the result of an open/provision that ran outside
// the lock and returns the pinned handle on success.
func (r *Registry) finishOpen(e *entry, db *sqlite.DB, err error) (*Handle, error) {
	r.mu.Lock()
	if err != nil {
		e.err = err
		delete(r.entries, e.tenantID)
		close(e.gone)
		close(e.ready)
		r.cond.Broadcast()
		r.mu.Unlock()
		return nil, err
	}
	e.db = db
	e.refs = 1
	e.lastUsed = r.now()
	close(e.ready)
	r.mu.Unlock()

	r.count(r.opens)
	r.gauge(1)
	return &Handle{reg: r, entry: e}, nil
}

// claimForRemoval takes exclusive hold of a tenant's slot, draining
// in-flight leases. Returns (nil, nil) when the tenant has no cached
// handle.
func (r *Registry) claimForRemoval(ctx context.Context, tenantID string) (*entry, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.ReleaseTimeout)
	defer cancel()
	stop := context.AfterFunc(waitCtx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		e, ok := r.entries[tenantID]
		if !ok {
			return nil, nil
		}
		if e.pending() {
			r.mu.Unlock()
			select {
			case <-waitCtx.Done():
				r.mu.Lock()
				return nil, fmt.Errorf("tenant %s still opening: %w", tenantID, waitCtx.Err())
			case <-e.ready:
			}
			r.mu.Lock()
			continue
		}
		if e.removing {
			// Someone else is already tearing this slot down.
			return nil, nil
		}
		e.removing = true
		for e.refs > 0 {
			if waitCtx.Err() != nil {
				e.removing = false
				return nil, fmt.Errorf("tenant %s has in-flight operations: %w", tenantID, waitCtx.Err())
			}
			r.cond.Wait()
		}
		return e, nil
	}
}

// closeEntry closes a claimed entry's handle outside the registry lock.
func (r *Registry) closeEntry(e *entry) error {
	if e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	r.gauge(-1)
	return nil
}

// vacate removes a claimed entry from the map and wakes waiters.
func (r *Registry) vacate(e *entry) {
	r.mu.Lock()
	delete(r.entries, e.tenantID)
	close(e.gone)
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Registry) count(c metric.Int64Counter) {
	if c != nil {
		c.Add(context.Background(), 1)
	}
}

func (r *Registry) gauge(delta int64) {
	if r.handlesOpen != nil {
		r.handlesOpen.Add(context.Background(), delta)
	}
}
