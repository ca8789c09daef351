package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TeamMemory is the engine-facing façade over a Store for one execution.
// It enforces visibility: an agent sees its own private region, the
// execution's team region and global. A cross-agent private read reports
// absence, never an authorization error.
type TeamMemory struct {
	store       Store
	executionID string
	agents      map[string]struct{}
	logger      *zap.Logger
}

// NewTeamMemory binds a store to one execution and its team members.
func NewTeamMemory(store Store, executionID string, agentIDs []string, logger *zap.Logger) *TeamMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	agents := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		agents[id] = struct{}{}
	}
	return &TeamMemory{
		store:       store,
		executionID: executionID,
		agents:      agents,
		logger:      logger.With(zap.String("component", "team_memory"), zap.String("execution_id", executionID)),
	}
}

// visible reports whether the agent may touch the scope. Invisible scopes
// behave as absent.
func (m *TeamMemory) visible(agentID string, scope Scope) bool {
	switch scope.Kind {
	case ScopePrivate:
		return scope.Owner == agentID
	case ScopeTeam:
		return scope.Owner == m.executionID
	case ScopeGlobal:
		return true
	default:
		return false
	}
}

// Put writes on behalf of an agent after the visibility check.
func (m *TeamMemory) Put(ctx context.Context, agentID string, scope Scope, key, content string, payload any, ttl time.Duration) (*Item, error) {
	if !m.visible(agentID, scope) {
		return nil, ErrNotFound
	}
	return m.store.Put(ctx, scope, key, content, payload, ttl)
}

// Get reads on behalf of an agent; invisible scopes read as absent.
func (m *TeamMemory) Get(ctx context.Context, agentID string, scope Scope, key string) (*Item, error) {
	if !m.visible(agentID, scope) {
		return nil, ErrNotFound
	}
	return m.store.Get(ctx, scope, key)
}

// Delete removes a key on behalf of an agent.
func (m *TeamMemory) Delete(ctx context.Context, agentID string, scope Scope, key string) error {
	if !m.visible(agentID, scope) {
		return ErrNotFound
	}
	return m.store.Delete(ctx, scope, key)
}

// Keys lists keys in a scope visible to the agent.
func (m *TeamMemory) Keys(ctx context.Context, agentID string, scope Scope, pattern string) ([]string, error) {
	if !m.visible(agentID, scope) {
		return nil, nil
	}
	return m.store.Keys(ctx, scope, pattern)
}

// PutTeam writes into the execution's team scope on behalf of the engine.
func (m *TeamMemory) PutTeam(ctx context.Context, key, content string, payload any) (*Item, error) {
	return m.store.Put(ctx, TeamScope(m.executionID), key, content, payload, 0)
}

// GetTeam reads from the execution's team scope.
func (m *TeamMemory) GetTeam(ctx context.Context, key string) (*Item, error) {
	return m.store.Get(ctx, TeamScope(m.executionID), key)
}

// Teardown drops the team region and every member's private region.
// The global region survives.
func (m *TeamMemory) Teardown(ctx context.Context) error {
	var firstErr error
	if err := m.store.DropScope(ctx, TeamScope(m.executionID)); err != nil {
		firstErr = err
	}
	for agentID := range m.agents {
		if err := m.store.DropScope(ctx, PrivateScope(agentID)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		m.logger.Warn("memory teardown incomplete", zap.Error(firstErr))
	}
	return firstErr
}
