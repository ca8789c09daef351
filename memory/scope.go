// Package memory provides scoped shared memory for team executions:
// private per-agent regions, per-execution team regions, and a global
// region surviving executions.
package memory

import (
	"fmt"
	"strings"
)

// ScopeKind classifies a memory scope.
type ScopeKind string

const (
	ScopePrivate ScopeKind = "private"
	ScopeTeam    ScopeKind = "team"
	ScopeGlobal  ScopeKind = "global"
)

// Scope identifies a memory region: private:<agent_id>, team:<execution_id>
// or global.
type Scope struct {
	Kind  ScopeKind
	Owner string // agent id for private, execution id for team, empty for global
}

// PrivateScope returns the private scope of an agent.
func PrivateScope(agentID string) Scope {
	return Scope{Kind: ScopePrivate, Owner: agentID}
}

// TeamScope returns the team scope of an execution.
func TeamScope(executionID string) Scope {
	return Scope{Kind: ScopeTeam, Owner: executionID}
}

// GlobalScope returns the global scope.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// String renders the canonical scope form.
func (s Scope) String() string {
	switch s.Kind {
	case ScopeGlobal:
		return "global"
	default:
		return fmt.Sprintf("%s:%s", s.Kind, s.Owner)
	}
}

// Validate checks the scope shape.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		if s.Owner != "" {
			return fmt.Errorf("global scope must not carry an owner")
		}
		return nil
	case ScopePrivate, ScopeTeam:
		if s.Owner == "" {
			return fmt.Errorf("%s scope requires an owner", s.Kind)
		}
		return nil
	default:
		return fmt.Errorf("invalid scope kind: %q", s.Kind)
	}
}

// ParseScope parses "private:<agent>", "team:<execution>" or "global".
func ParseScope(raw string) (Scope, error) {
	if raw == "global" {
		return GlobalScope(), nil
	}
	kind, owner, found := strings.Cut(raw, ":")
	if !found || owner == "" {
		return Scope{}, fmt.Errorf("invalid scope: %q", raw)
	}
	switch ScopeKind(kind) {
	case ScopePrivate:
		return PrivateScope(owner), nil
	case ScopeTeam:
		return TeamScope(owner), nil
	default:
		return Scope{}, fmt.Errorf("invalid scope kind: %q", kind)
	}
}
