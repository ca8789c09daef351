package task

import (
	"fmt"
	"strings"
)

// Graph is an id-indexed task DAG. It is built only through GraphBuilder,
// which guarantees unique IDs, resolved dependencies and acyclicity.
type Graph struct {
	tasks      map[string]*Task
	order      []string            // insertion order
	dependents map[string][]string // id -> tasks depending on it
}

// GraphBuilder accumulates tasks and validates the whole graph at Build.
type GraphBuilder struct {
	tasks []*Task
	errs  []error
}

// NewGraphBuilder creates an empty builder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{}
}

// Add appends a task to the graph under construction.
func (b *GraphBuilder) Add(t *Task) *GraphBuilder {
	if err := t.Validate(); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.tasks = append(b.tasks, t.Clone())
	return b
}

// Build validates and freezes the graph: non-empty, unique IDs, no unknown
// dependencies, no cycles.
func (b *GraphBuilder) Build() (*Graph, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.tasks) == 0 {
		return nil, fmt.Errorf("graph has no tasks")
	}

	g := &Graph{
		tasks:      make(map[string]*Task, len(b.tasks)),
		dependents: make(map[string][]string),
	}

	for _, t := range b.tasks {
		if _, dup := g.tasks[t.ID]; dup {
			return nil, fmt.Errorf("duplicate task ID: %s", t.ID)
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}

	for _, t := range b.tasks {
		for _, dep := range t.DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				return nil, fmt.Errorf("task %s depends on unknown task %s", t.ID, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	if cycle := g.detectCycle(); cycle != nil {
		return nil, fmt.Errorf("dependency cycle detected: %s", strings.Join(cycle, " -> "))
	}

	return g, nil
}

// detectCycle runs DFS with a recursion stack and returns the members of
// the first cycle found, nil when the graph is acyclic.
func (g *Graph) detectCycle() []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		visited[id] = true
		recStack[id] = true
		path = append(path, id)

		for _, dep := range g.tasks[id].DependsOn {
			if !visited[dep] {
				if visit(dep, path) {
					return true
				}
			} else if recStack[dep] {
				// trim the path to the cycle entry point
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.order {
		if !visited[id] {
			if visit(id, nil) {
				return cycle
			}
		}
	}
	return nil
}

// Get returns the task by ID.
func (g *Graph) Get(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	return len(g.order)
}

// IDs returns task IDs in insertion order.
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// TransitiveDependents returns every task reachable downstream of id.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.dependents[cur] {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
				walk(dep)
			}
		}
	}
	walk(id)
	return out
}
