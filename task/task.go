package task

import (
	"fmt"
	"time"
)

// Task is one unit of work inside a team execution. DependsOn references
// other task IDs in the same graph.
type Task struct {
	ID              string         `json:"id" yaml:"id"`
	Type            string         `json:"type,omitempty" yaml:"type,omitempty"`
	Description     string         `json:"description,omitempty" yaml:"description,omitempty"`
	Priority        int            `json:"priority,omitempty" yaml:"priority,omitempty"`
	DependsOn       []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	ToolsRequired   []string       `json:"tools_required,omitempty" yaml:"tools_required,omitempty"`
	QualityCriteria []string       `json:"quality_criteria,omitempty" yaml:"quality_criteria,omitempty"`
	AssignedTo      string         `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	Status          Status         `json:"status" yaml:"status"`
	Metadata        map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	cp.DependsOn = append([]string(nil), t.DependsOn...)
	cp.ToolsRequired = append([]string(nil), t.ToolsRequired...)
	cp.QualityCriteria = append([]string(nil), t.QualityCriteria...)
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Validate checks the task's structural fields.
func (t *Task) Validate() error {
	if t == nil {
		return fmt.Errorf("task is nil")
	}
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return fmt.Errorf("task %s depends on itself", t.ID)
		}
	}
	return nil
}

// Result records the terminal outcome of one task. Exactly one Result
// exists per terminal task and it is never mutated after MarkFinished.
type Result struct {
	TaskID     string        `json:"task_id"`
	AgentID    string        `json:"agent_id"`
	Status     Status        `json:"status"`
	Output     any           `json:"output,omitempty"`
	Stance     string        `json:"stance,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Error      string        `json:"error,omitempty"`
	Attempts   int           `json:"attempts"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}
