package heapcore

import (
	"context"
	"sync"

	"github.com/outofforest/parallel"
	"github.com/pkg/errors"

	"github.com/outofforest/heapcore/gc"
	"github.com/outofforest/heapcore/mapping"
)

// Config stores configuration of the runtime.
type Config struct {
	Registry  mapping.Config
	Collector gc.Config
}

// New creates runtime owning the registry of mappings and the collector reclaiming them.
func New(config Config) (*Runtime, error) {
	r := &Runtime{
		registry: mapping.NewRegistry(config.Registry),
	}

	config.Collector.Lock = &r.mu
	collector, err := gc.NewCollector(r.registry, config.Collector)
	if err != nil {
		return nil, errors.Wrap(err, "creating collector failed")
	}
	r.collector = collector

	return r, nil
}

// Runtime ties the registry to the collector. Values may be touched only by the goroutine holding the lock.
type Runtime struct {
	mu        sync.Mutex
	registry  *mapping.Registry
	collector *gc.Collector
}

// Lock takes the global lock.
func (r *Runtime) Lock() {
	r.mu.Lock()
}

// Unlock releases the global lock.
func (r *Runtime) Unlock() {
	r.mu.Unlock()
}

// Registry returns the registry of mappings.
func (r *Runtime) Registry() *mapping.Registry {
	return r.registry
}

// Collect runs one collection cycle.
func (r *Runtime) Collect(ctx context.Context) (gc.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.collector.Collect(ctx)
}

// Run runs the collector periodically until context is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("collector", parallel.Fail, r.collector.Run)
		return nil
	})
}

// Close releases resources of the runtime. Run must have returned before.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.collector.Close()
}
