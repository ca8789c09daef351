// Package teamflow provides a top-level convenience entry point for creating
// an orchestration engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/teamflow"
//
//	eng, err := teamflow.New(
//	    teamflow.WithRunner(myRunner),
//	    teamflow.WithProfiles(researcher, writer),
//	)
//	id, err := eng.Start(ctx, &engine.TeamConfiguration{...})
//
// This is a thin wrapper around [engine.New]; both produce identical results.
// Use this package when you prefer the shorter import path and sensible
// defaults (in-process memory, no persistence, nop logging).
package teamflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/teamflow/bus"
	"github.com/BaSui01/teamflow/engine"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/persistence"
	"github.com/BaSui01/teamflow/profile"
)

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	registry *profile.Registry
	profiles []*profile.AgentProfile
	runner   engine.Runner
	store    persistence.ExecutionStore
	memory   memory.Store
	busCfg   bus.Config
	workers  int
	logger   *zap.Logger
}

// WithRunner sets the agent runner that executes dispatched tasks.
// A runner is required; [New] fails without one.
func WithRunner(r engine.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithRegistry sets a pre-built profile registry. Overrides [WithProfiles].
func WithRegistry(r *profile.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithProfiles registers the given agent profiles into a fresh registry.
func WithProfiles(profiles ...*profile.AgentProfile) Option {
	return func(o *options) { o.profiles = append(o.profiles, profiles...) }
}

// WithExecutionStore sets the persistence sink for execution snapshots.
// Defaults to none (executions are held in memory only).
func WithExecutionStore(s persistence.ExecutionStore) Option {
	return func(o *options) { o.store = s }
}

// WithMemoryStore sets the shared-memory backend. Defaults to the in-process
// store.
func WithMemoryStore(s memory.Store) Option {
	return func(o *options) { o.memory = s }
}

// WithBusConfig sets message-bus queue sizing and content limits.
func WithBusConfig(cfg bus.Config) Option {
	return func(o *options) { o.busCfg = cfg }
}

// WithMaxWorkers caps the dispatch worker pool.
func WithMaxWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates an [engine.Engine] with minimal configuration.
func New(opts ...Option) (*engine.Engine, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.runner == nil {
		return nil, fmt.Errorf("runner is required: use WithRunner")
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	registry := o.registry
	if registry == nil {
		registry = profile.NewRegistry(profile.WithLogger(o.logger))
		for _, p := range o.profiles {
			if err := registry.Register(p); err != nil {
				return nil, fmt.Errorf("register profile %s: %w", p.ID, err)
			}
		}
	} else if len(o.profiles) > 0 {
		return nil, fmt.Errorf("WithRegistry and WithProfiles are mutually exclusive")
	}

	return engine.New(engine.Options{
		Registry:   registry,
		Runner:     o.runner,
		Store:      o.store,
		Memory:     o.memory,
		Bus:        o.busCfg,
		MaxWorkers: o.workers,
		Logger:     o.logger,
	})
}
