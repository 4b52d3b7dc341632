package fake

import (
	"context"
	"sync"

	"vulnlab/internal/docker"
)

// Engine is an in-memory container engine view: scripted project
// directories and container listings.
type Engine struct {
	CallRecorder
	mu         sync.Mutex
	dirs       map[string]bool
	containers []docker.ContainerInfo

	RunningProjectDirsErr func(ctx context.Context) error
	RunningContainersErr  func(ctx context.Context) error
}

// NewEngine creates an engine with nothing running.
func NewEngine() *Engine {
	return &Engine{dirs: make(map[string]bool)}
}

// SetRunningDir marks a compose working directory as having running
// containers.
func (e *Engine) SetRunningDir(dir string, running bool) {
	e.mu.Lock()
	if running {
		e.dirs[dir] = true
	} else {
		delete(e.dirs, dir)
	}
	e.mu.Unlock()
}

// SetContainers replaces the scripted container listing.
func (e *Engine) SetContainers(containers []docker.ContainerInfo) {
	e.mu.Lock()
	e.containers = append([]docker.ContainerInfo(nil), containers...)
	e.mu.Unlock()
}

func (e *Engine) RunningProjectDirs(ctx context.Context) (map[string]bool, error) {
	e.record("RunningProjectDirs")
	if e.RunningProjectDirsErr != nil {
		if err := e.RunningProjectDirsErr(ctx); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]bool, len(e.dirs))
	for dir := range e.dirs {
		out[dir] = true
	}
	return out, nil
}

func (e *Engine) RunningContainers(ctx context.Context) ([]docker.ContainerInfo, error) {
	e.record("RunningContainers")
	if e.RunningContainersErr != nil {
		if err := e.RunningContainersErr(ctx); err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]docker.ContainerInfo(nil), e.containers...), nil
}
