package task

import (
	"fmt"
	"sort"
	"sync"
)

// DependencyPolicy controls how a task failure propagates to dependents.
type DependencyPolicy string

const (
	// DependencyPolicyFailFast blocks every transitive dependent of a
	// failed task.
	DependencyPolicyFailFast DependencyPolicy = "fail_fast"
	// DependencyPolicySkipAndContinue treats a failure as a satisfied
	// dependency; the failed task contributes no output downstream.
	DependencyPolicySkipAndContinue DependencyPolicy = "skip_and_continue"
)

// Scheduler drives one Graph through the task lifecycle. All mutations go
// through Mark* methods so the status table stays consistent.
type Scheduler struct {
	mu      sync.RWMutex
	graph   *Graph
	policy  DependencyPolicy
	results map[string]*Result
}

// NewScheduler wraps a built graph. Tasks with satisfied (absent)
// dependencies start ready, the rest pending.
func NewScheduler(g *Graph, policy DependencyPolicy) *Scheduler {
	if policy == "" {
		policy = DependencyPolicyFailFast
	}
	s := &Scheduler{
		graph:   g,
		policy:  policy,
		results: make(map[string]*Result),
	}
	s.mu.Lock()
	s.refreshReadyLocked()
	s.mu.Unlock()
	return s
}

// Policy returns the active dependency policy.
func (s *Scheduler) Policy() DependencyPolicy {
	return s.policy
}

// Graph returns the underlying graph.
func (s *Scheduler) Graph() *Graph {
	return s.graph
}

// Ready returns ready tasks ordered by priority descending, insertion
// order within equal priority.
func (s *Scheduler) Ready() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ready []*Task
	for _, id := range s.graph.order {
		t := s.graph.tasks[id]
		if t.Status == StatusReady {
			ready = append(ready, t.Clone())
		}
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	return ready
}

// MarkAssigned transitions ready -> assigned and records the assignee.
func (s *Scheduler) MarkAssigned(id, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.graph.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if !CanTransition(t.Status, StatusAssigned) {
		return &ErrInvalidTransition{TaskID: id, From: t.Status, To: StatusAssigned}
	}
	t.Status = StatusAssigned
	t.AssignedTo = agentID
	return nil
}

// MarkStarted transitions assigned -> in_progress.
func (s *Scheduler) MarkStarted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.graph.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if !CanTransition(t.Status, StatusInProgress) {
		return &ErrInvalidTransition{TaskID: id, From: t.Status, To: StatusInProgress}
	}
	t.Status = StatusInProgress
	return nil
}

// MarkFinished records the terminal result of a task and propagates
// readiness or blockage to dependents. A second result for the same task
// is rejected.
func (s *Scheduler) MarkFinished(id string, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.graph.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if result == nil {
		return fmt.Errorf("task %s: nil result", id)
	}
	if _, dup := s.results[id]; dup {
		return fmt.Errorf("task %s already has a result", id)
	}
	if result.Status != StatusCompleted && result.Status != StatusFailed && result.Status != StatusCancelled {
		return fmt.Errorf("task %s: result status %s is not terminal", id, result.Status)
	}
	if !CanTransition(t.Status, result.Status) {
		return &ErrInvalidTransition{TaskID: id, From: t.Status, To: result.Status}
	}

	t.Status = result.Status
	s.results[id] = result

	switch result.Status {
	case StatusCompleted:
		// unblocks both pending dependents and dependents blocked by an
		// earlier failure that this retry has now repaired
		s.refreshReadyLocked()
	case StatusFailed:
		if s.policy == DependencyPolicyFailFast {
			s.blockDependentsLocked(id)
		} else {
			s.refreshReadyLocked()
		}
	}
	return nil
}

// Requeue returns a failed task to the ready set for a recovery retry.
// The superseded result is discarded so the retry can record a fresh one.
func (s *Scheduler) Requeue(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.graph.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if !CanTransition(t.Status, StatusReady) {
		return &ErrInvalidTransition{TaskID: id, From: t.Status, To: StatusReady}
	}
	t.Status = StatusReady
	delete(s.results, id)
	return nil
}

// Unassign returns an assigned task to ready (fallback re-route).
func (s *Scheduler) Unassign(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.graph.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	if t.Status != StatusAssigned {
		return &ErrInvalidTransition{TaskID: id, From: t.Status, To: StatusReady}
	}
	t.Status = StatusReady
	t.AssignedTo = ""
	return nil
}

// CancelPending cancels every task that has not finished. Completed tasks
// and their results are retained. Returns the cancelled IDs.
func (s *Scheduler) CancelPending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []string
	for _, id := range s.graph.order {
		t := s.graph.tasks[id]
		if t.Status.IsTerminal() {
			continue
		}
		t.Status = StatusCancelled
		cancelled = append(cancelled, id)
	}
	return cancelled
}

// Result returns the recorded result for a task.
func (s *Scheduler) Result(id string) (*Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// Results returns a copy of all recorded results keyed by task ID.
func (s *Scheduler) Results() map[string]*Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*Result, len(s.results))
	for id, r := range s.results {
		out[id] = r
	}
	return out
}

// Status returns the current status of a task.
func (s *Scheduler) Status(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.graph.tasks[id]
	if !ok {
		return "", false
	}
	return t.Status, true
}

// Snapshot returns the current status of every task.
func (s *Scheduler) Snapshot() map[string]Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Status, len(s.graph.order))
	for id, t := range s.graph.tasks {
		out[id] = t.Status
	}
	return out
}

// Counts tallies tasks per status.
func (s *Scheduler) Counts() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Status]int)
	for _, t := range s.graph.tasks {
		out[t.Status]++
	}
	return out
}

// Done reports whether the graph can make no further progress: nothing is
// ready, assigned, or in progress. Remaining pending/blocked tasks are
// stuck behind failures and only a recovery retry can revive them.
func (s *Scheduler) Done() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.graph.tasks {
		switch t.Status {
		case StatusReady, StatusAssigned, StatusInProgress:
			return false
		}
	}
	return true
}

// DependencyOutputs collects upstream outputs for a task. Failed
// dependencies under skip-and-continue appear with an explicit nil.
func (s *Scheduler) DependencyOutputs(id string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.graph.tasks[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(t.DependsOn))
	for _, dep := range t.DependsOn {
		if r, exists := s.results[dep]; exists && r.Status == StatusCompleted {
			out[dep] = r.Output
		} else {
			out[dep] = nil
		}
	}
	return out
}

// refreshReadyLocked promotes pending and blocked tasks whose dependencies
// are now satisfied under the active policy.
func (s *Scheduler) refreshReadyLocked() {
	for _, id := range s.graph.order {
		t := s.graph.tasks[id]
		if t.Status != StatusPending && t.Status != StatusBlocked {
			continue
		}
		if s.depsSatisfiedLocked(t) {
			t.Status = StatusReady
		}
	}
}

func (s *Scheduler) depsSatisfiedLocked(t *Task) bool {
	for _, dep := range t.DependsOn {
		d := s.graph.tasks[dep]
		switch s.policy {
		case DependencyPolicySkipAndContinue:
			if !d.Status.IsTerminal() {
				return false
			}
		default:
			if d.Status != StatusCompleted {
				return false
			}
		}
	}
	return true
}

// blockDependentsLocked blocks every transitive dependent of a failed task.
func (s *Scheduler) blockDependentsLocked(id string) {
	for _, dep := range s.graph.TransitiveDependents(id) {
		t := s.graph.tasks[dep]
		if t.Status.IsTerminal() || t.Status == StatusInProgress {
			continue
		}
		t.Status = StatusBlocked
	}
}
