package profile

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// outcomeWeight is the EWMA coefficient applied to the newest outcome when
// RecordOutcome folds feedback into PerformanceScore.
const outcomeWeight = 0.2

// Registry is an in-memory, mutex-guarded store of versioned agent profiles.
// Versions are append-only: Update publishes version n+1 and retains every
// prior version.
type Registry struct {
	mu       sync.RWMutex
	versions map[string][]*AgentProfile // id -> versions ascending
	order    []string                   // registration order
	policy   UpdatePolicy
	now      func() time.Time
	logger   *zap.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithUpdatePolicy sets the feedback policy (default manual).
func WithUpdatePolicy(policy UpdatePolicy) RegistryOption {
	return func(r *Registry) { r.policy = policy }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty profile registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		versions: make(map[string][]*AgentProfile),
		policy:   UpdateManual,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "profile_registry"))
	return r
}

// Register validates and stores a new profile as version 1.
func (r *Registry) Register(p *AgentProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[p.ID]; exists {
		return fmt.Errorf("profile %s already registered", p.ID)
	}

	stored := p.Clone()
	stored.Version = 1
	stored.CreatedAt = r.now()
	stored.UpdatedAt = stored.CreatedAt

	r.versions[p.ID] = []*AgentProfile{stored}
	r.order = append(r.order, p.ID)
	r.logger.Debug("profile registered", zap.String("agent_id", p.ID))
	return nil
}

// Update publishes a new version of an existing profile. The previous
// versions remain readable through GetVersion and History.
func (r *Registry) Update(p *AgentProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history, exists := r.versions[p.ID]
	if !exists {
		return fmt.Errorf("profile %s not found", p.ID)
	}

	latest := history[len(history)-1]
	stored := p.Clone()
	stored.Version = latest.Version + 1
	stored.CreatedAt = latest.CreatedAt
	stored.UpdatedAt = r.now()

	r.versions[p.ID] = append(history, stored)
	r.logger.Debug("profile updated",
		zap.String("agent_id", p.ID),
		zap.Int("version", stored.Version),
	)
	return nil
}

// Get returns the latest version of the profile.
func (r *Registry) Get(id string) (*AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history, exists := r.versions[id]
	if !exists {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	return history[len(history)-1].Clone(), nil
}

// GetVersion returns one specific version of the profile.
func (r *Registry) GetVersion(id string, version int) (*AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history, exists := r.versions[id]
	if !exists {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	if version < 1 || version > len(history) {
		return nil, fmt.Errorf("profile %s version %d not found", id, version)
	}
	return history[version-1].Clone(), nil
}

// History returns every version of the profile in ascending order.
func (r *Registry) History(id string) ([]*AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history, exists := r.versions[id]
	if !exists {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	out := make([]*AgentProfile, len(history))
	for i, v := range history {
		out[i] = v.Clone()
	}
	return out, nil
}

// List returns the latest version of every profile in registration order.
func (r *Registry) List() []*AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*AgentProfile, 0, len(r.order))
	for _, id := range r.order {
		history := r.versions[id]
		out = append(out, history[len(history)-1].Clone())
	}
	return out
}

// RecordOutcome folds a task outcome into the agent's PerformanceScore when
// the registry runs with UpdateAfterExecution. quality is in [0, 1]; failed
// outcomes contribute zero regardless of quality. A new profile version is
// published for each recorded outcome.
func (r *Registry) RecordOutcome(agentID string, success bool, quality float64) error {
	if r.policy != UpdateAfterExecution {
		return nil
	}
	if quality < 0 {
		quality = 0
	} else if quality > 1 {
		quality = 1
	}
	if !success {
		quality = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	history, exists := r.versions[agentID]
	if !exists {
		return fmt.Errorf("profile %s not found", agentID)
	}

	latest := history[len(history)-1]
	next := latest.Clone()
	// EWMA: new = (1-w)*old + w*outcome
	next.PerformanceScore = (1-outcomeWeight)*latest.PerformanceScore + outcomeWeight*quality
	next.Version = latest.Version + 1
	next.UpdatedAt = r.now()

	r.versions[agentID] = append(history, next)
	r.logger.Debug("outcome recorded",
		zap.String("agent_id", agentID),
		zap.Bool("success", success),
		zap.Float64("score", next.PerformanceScore),
	)
	return nil
}
