// Package cache is the two-tier registry cache: an in-process snapshot in
// front of a durable envelope store, invalidated by TTL and by a
// fingerprint of the manifest path set.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vulnlab"
)

// Envelope is the persisted unit: a full snapshot plus everything needed
// to decide whether it is still trustworthy. It is written whole or not at
// all; the store contract forbids partial writes.
type Envelope struct {
	Snapshot    vulnlab.Snapshot `json:"environments"`
	CapturedAt  time.Time        `json:"timestamp"`
	Fingerprint string           `json:"fingerprint"`
	Root        string           `json:"root"`
}

// EnvelopeStore persists envelopes keyed by scan root.
//
// Load's bool reports presence; a corrupt record may surface as an error,
// which the cache treats the same as absence. Store must replace
// atomically.
type EnvelopeStore interface {
	Load(root string) (Envelope, bool, error)
	Store(env Envelope) error
	Delete(root string) error
}

// Cache owns both tiers. The registry is its only writer.
type Cache struct {
	store EnvelopeStore
	root  string
	ttl   time.Duration

	// Now is the clock; tests substitute it to exercise TTL expiry.
	Now func() time.Time

	mu    sync.Mutex
	mem   vulnlab.Snapshot
	memOK bool
}

// New creates a cache for one scan root.
func New(store EnvelopeStore, root string, ttl time.Duration) *Cache {
	return &Cache{store: store, root: root, ttl: ttl, Now: time.Now}
}

// Load returns the cached snapshot if any tier still holds a valid one.
//
// The in-process tier wins without touching disk. The durable tier is
// rejected when expired, when recorded for a different root, or when the
// manifest set under the root has changed since it was captured: adding
// or removing a manifest shifts the fingerprint without requiring a parse.
// Store errors and corrupt envelopes degrade to a miss, never a failure.
func (c *Cache) Load() (vulnlab.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.memOK {
		return c.mem.Clone(), true
	}

	env, ok, err := c.store.Load(c.root)
	if err != nil {
		slog.Warn("registry cache unreadable, rebuilding", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	if env.Root != c.root {
		slog.Info("registry cache written for different root", "cached", env.Root, "current", c.root)
		return nil, false
	}
	if age := c.Now().Sub(env.CapturedAt); age > c.ttl {
		slog.Info("registry cache expired", "age", age, "ttl", c.ttl)
		return nil, false
	}
	fp, err := Fingerprint(c.root)
	if err != nil || fp != env.Fingerprint {
		slog.Info("manifest set changed since cache was written")
		return nil, false
	}

	c.mem = env.Snapshot
	c.memOK = true
	return c.mem.Clone(), true
}

// Store publishes a fresh snapshot to both tiers.
func (c *Cache) Store(snap vulnlab.Snapshot) error {
	fp, err := Fingerprint(c.root)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", c.root, err)
	}

	c.mu.Lock()
	c.mem = snap.Clone()
	c.memOK = true
	c.mu.Unlock()

	env := Envelope{
		Snapshot:    snap,
		CapturedAt:  c.Now(),
		Fingerprint: fp,
		Root:        c.root,
	}
	if err := c.store.Store(env); err != nil {
		return fmt.Errorf("persist registry cache: %w", err)
	}
	return nil
}

// Invalidate drops both tiers; the next Load is guaranteed to miss.
func (c *Cache) Invalidate() error {
	c.mu.Lock()
	c.mem = nil
	c.memOK = false
	c.mu.Unlock()

	if err := c.store.Delete(c.root); err != nil {
		return fmt.Errorf("delete registry cache: %w", err)
	}
	return nil
}

// UpdateStatus flips one record's status in the in-process tier only.
// Lifecycle transitions must not force a rescan, and the durable envelope
// keeps scan-time statuses; live state is reconciled separately.
func (c *Cache) UpdateStatus(id string, status vulnlab.Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.memOK {
		return false
	}
	i := c.mem.Find(id)
	if i < 0 {
		return false
	}
	c.mem[i].Status = status
	return true
}

// ReconcileStatuses applies live running/stopped knowledge to the
// in-process tier. Identifiers present in running are marked running, the
// rest stopped.
func (c *Cache) ReconcileStatuses(running map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.memOK {
		return
	}
	for i := range c.mem {
		if running[c.mem[i].ID] {
			c.mem[i].Status = vulnlab.StatusRunning
		} else {
			c.mem[i].Status = vulnlab.StatusStopped
		}
	}
}
