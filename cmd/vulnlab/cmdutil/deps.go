// Package cmdutil builds the dependency graph shared by every vulnlab
// subcommand.
package cmdutil

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"vulnlab/config"
	"vulnlab/internal/adapter/sqlite"
	"vulnlab/internal/cache"
	"vulnlab/internal/compose"
	"vulnlab/internal/docker"
	"vulnlab/internal/registry"
	"vulnlab/internal/scan"
)

// Deps is the wired dependency graph for one command invocation.
type Deps struct {
	Config   *config.Config
	Registry *registry.Registry

	store  *sqlite.EnvelopeStore
	engine *docker.Client
}

// Close releases the cache database and the engine connection.
func (d *Deps) Close() {
	if d.store != nil {
		_ = d.store.Close()
	}
	if d.engine != nil {
		_ = d.engine.Close()
	}
}

// Build loads the configuration and assembles the registry. A missing
// docker daemon is not fatal: scans then skip local-image checks and
// statuses stay as cached.
func Build() (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildWith(cfg)
}

// BuildWith assembles the registry for an already-loaded configuration.
func BuildWith(cfg *config.Config) (*Deps, error) {
	// One canonical root: cache envelopes and engine labels both key on
	// the absolute path.
	if abs, err := filepath.Abs(cfg.Root); err == nil {
		cfg.Root = abs
	}

	store, err := sqlite.Open(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	deps := &Deps{Config: cfg, store: store}

	var engine registry.Engine
	var inspector scan.ImageInspector
	if client, err := docker.NewClient(); err != nil {
		slog.Warn("docker engine unavailable, image checks disabled", "err", err)
	} else {
		deps.engine = client
		engine = client
		inspector = client
	}

	driver := &compose.Driver{
		Root:      cfg.Root,
		Runner:    compose.ExecRunner{},
		Inspector: inspector,
		Style:     cfg.Compose,
	}

	deps.Registry = registry.New(registry.Dependencies{
		Root:      cfg.Root,
		Scanner:   &scan.Scanner{Root: cfg.Root, Inspector: inspector, Workers: cfg.ScanWorkers},
		Cache:     cache.New(store, cfg.Root, cfg.CacheTTL),
		Lifecycle: driver,
		Engine:    engine,
	})
	return deps, nil
}
