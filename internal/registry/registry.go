// Package registry is the orchestrator's core: it owns the environment
// snapshot, decides when a rescan is due, and fronts the lifecycle driver
// with per-environment serialization.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vulnlab"
	"vulnlab/internal/cache"
	"vulnlab/internal/compose"
	"vulnlab/internal/docker"
	"vulnlab/internal/scan"
)

// Lifecycle is the registry's view of the compose driver.
type Lifecycle interface {
	Resolve(id string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Pull(ctx context.Context, id string) (*compose.Stream, error)
	CheckImages(ctx context.Context, id string) compose.ImageCheck
	WaitReady(ctx context.Context, id string, timeout time.Duration) (compose.Ready, error)
}

// Engine is the registry's view of the container engine. It may be absent;
// every use degrades gracefully.
type Engine interface {
	RunningProjectDirs(ctx context.Context) (map[string]bool, error)
	RunningContainers(ctx context.Context) ([]docker.ContainerInfo, error)
}

// Dependencies wires a Registry. Scanner, Cache and Lifecycle are
// mandatory; Engine and Tracer default to absent and the global tracer.
type Dependencies struct {
	Root      string
	Scanner   *scan.Scanner
	Cache     *cache.Cache
	Lifecycle Lifecycle
	Engine    Engine
	Tracer    trace.Tracer
}

// Registry coordinates scans, the cache and lifecycle operations.
type Registry struct {
	root      string
	scanner   *scan.Scanner
	cache     *cache.Cache
	lifecycle Lifecycle
	engine    Engine
	tracer    trace.Tracer

	// rebuild coalesces concurrent snapshot rebuilds into one scan.
	rebuildMu sync.Mutex
	rebuild   *rebuildCall

	// locks serialize lifecycle operations per environment.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a Registry. Root is resolved to an absolute path so engine
// labels, which always carry absolute working directories, can be mapped
// back to identifiers.
func New(deps Dependencies) *Registry {
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("vulnlab/registry")
	}
	root := deps.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Registry{
		root:      root,
		scanner:   deps.Scanner,
		cache:     deps.Cache,
		lifecycle: deps.Lifecycle,
		engine:    deps.Engine,
		tracer:    deps.Tracer,
		locks:     make(map[string]*sync.Mutex),
	}
}

// List returns the environment snapshot, serving from cache unless force
// is set or no valid cache exists. Statuses are reconciled against the
// engine on every call, best-effort.
func (r *Registry) List(ctx context.Context, force bool) (vulnlab.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "registry.list", trace.WithAttributes(
		attribute.Bool("force", force),
	))
	defer span.End()

	if !force {
		if snap, ok := r.cache.Load(); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			r.reconcile(ctx, snap)
			return snap, nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	snap, err := r.rebuildSnapshot(ctx)
	if err != nil {
		spanFail(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("environments", len(snap)))
	return snap, nil
}

func spanFail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Refresh drops the cache and rescans.
func (r *Registry) Refresh(ctx context.Context) (vulnlab.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "registry.refresh")
	defer span.End()

	if err := r.cache.Invalidate(); err != nil {
		slog.Warn("cache invalidation failed, rescanning anyway", "err", err)
	}
	snap, err := r.rebuildSnapshot(ctx)
	if err != nil {
		spanFail(span, err)
		return nil, err
	}
	return snap, nil
}

// Stats computes aggregate counts from the current snapshot.
func (r *Registry) Stats(ctx context.Context) (vulnlab.Stats, error) {
	snap, err := r.List(ctx, false)
	if err != nil {
		return vulnlab.Stats{}, err
	}
	return vulnlab.ComputeStats(snap), nil
}

// Start brings an environment up and, on success, marks it running.
func (r *Registry) Start(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "registry.start", trace.WithAttributes(
		attribute.String("environment", id),
	))
	defer span.End()

	unlock := r.lock(id)
	defer unlock()

	if err := r.lifecycle.Start(ctx, id); err != nil {
		spanFail(span, err)
		return err
	}
	r.cache.UpdateStatus(id, vulnlab.StatusRunning)
	return nil
}

// Stop tears an environment down and, on success, marks it stopped.
func (r *Registry) Stop(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "registry.stop", trace.WithAttributes(
		attribute.String("environment", id),
	))
	defer span.End()

	unlock := r.lock(id)
	defer unlock()

	if err := r.lifecycle.Stop(ctx, id); err != nil {
		spanFail(span, err)
		return err
	}
	r.cache.UpdateStatus(id, vulnlab.StatusStopped)
	return nil
}

// CheckImages reports which of an environment's images are missing locally.
func (r *Registry) CheckImages(ctx context.Context, id string) compose.ImageCheck {
	return r.lifecycle.CheckImages(ctx, id)
}

// Pull starts an image pull and returns its output stream.
func (r *Registry) Pull(ctx context.Context, id string) (*compose.Stream, error) {
	return r.lifecycle.Pull(ctx, id)
}

// WaitReady polls an environment's published ports until one answers.
func (r *Registry) WaitReady(ctx context.Context, id string, timeout time.Duration) (compose.Ready, error) {
	return r.lifecycle.WaitReady(ctx, id, timeout)
}

// Running lists running containers through the engine.
func (r *Registry) Running(ctx context.Context) ([]docker.ContainerInfo, error) {
	if r.engine == nil {
		return []docker.ContainerInfo{}, nil
	}
	return r.engine.RunningContainers(ctx)
}

func (r *Registry) lock(id string) func() {
	r.locksMu.Lock()
	mu, ok := r.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[id] = mu
	}
	r.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

type rebuildCall struct {
	done chan struct{}
	snap vulnlab.Snapshot
	err  error
}

// rebuildSnapshot scans the root and publishes the result. Concurrent
// callers share one in-flight scan instead of stacking up rescans.
func (r *Registry) rebuildSnapshot(ctx context.Context) (vulnlab.Snapshot, error) {
	r.rebuildMu.Lock()
	if call := r.rebuild; call != nil {
		r.rebuildMu.Unlock()
		select {
		case <-call.done:
			if call.err != nil {
				return nil, call.err
			}
			return call.snap.Clone(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &rebuildCall{done: make(chan struct{})}
	r.rebuild = call
	r.rebuildMu.Unlock()

	snap, err := r.scanAndStore(ctx)
	call.snap, call.err = snap, err
	close(call.done)

	r.rebuildMu.Lock()
	r.rebuild = nil
	r.rebuildMu.Unlock()

	if err != nil {
		return nil, err
	}
	return snap.Clone(), nil
}

func (r *Registry) scanAndStore(ctx context.Context) (vulnlab.Snapshot, error) {
	ctx, span := r.tracer.Start(ctx, "registry.scan")
	defer span.End()

	snap, err := r.scanner.Scan(ctx)
	if err != nil {
		err = fmt.Errorf("scan %s: %w", r.root, err)
		spanFail(span, err)
		return nil, err
	}

	if running, ok := r.runningIdentifiers(ctx); ok {
		applyStatuses(snap, running)
	}

	if err := r.cache.Store(snap); err != nil {
		slog.Warn("snapshot not persisted", "err", err)
	}
	span.SetAttributes(attribute.Int("environments", len(snap)))
	return snap, nil
}

// reconcile overlays live engine state on a cache-served snapshot, both in
// the returned copy and in the cache's memory tier. Engine failures leave
// statuses as they were.
func (r *Registry) reconcile(ctx context.Context, snap vulnlab.Snapshot) {
	running, ok := r.runningIdentifiers(ctx)
	if !ok {
		return
	}
	r.cache.ReconcileStatuses(running)
	applyStatuses(snap, running)
}

func applyStatuses(snap vulnlab.Snapshot, running map[string]bool) {
	for i := range snap {
		if running[snap[i].ID] {
			snap[i].Status = vulnlab.StatusRunning
		} else {
			snap[i].Status = vulnlab.StatusStopped
		}
	}
}

// runningIdentifiers maps compose working directories with running
// containers back to environment identifiers under the root.
func (r *Registry) runningIdentifiers(ctx context.Context) (map[string]bool, bool) {
	if r.engine == nil {
		return nil, false
	}
	dirs, err := r.engine.RunningProjectDirs(ctx)
	if err != nil {
		slog.Debug("engine unavailable, keeping cached statuses", "err", err)
		return nil, false
	}

	running := make(map[string]bool, len(dirs))
	for dir := range dirs {
		rel, err := filepath.Rel(r.root, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		running[filepath.ToSlash(rel)] = true
	}
	return running, true
}
