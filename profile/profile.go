// Package profile defines agent profiles, the versioned registry, and
// team compatibility scoring.
package profile

import (
	"fmt"
	"time"
)

// PersonalityVector models an agent along the five OCEAN dimensions.
// Each component lies in [0, 1].
type PersonalityVector struct {
	Openness          float64 `json:"openness" yaml:"openness"`
	Conscientiousness float64 `json:"conscientiousness" yaml:"conscientiousness"`
	Extraversion      float64 `json:"extraversion" yaml:"extraversion"`
	Agreeableness     float64 `json:"agreeableness" yaml:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism" yaml:"neuroticism"`
}

// Validate checks that every component is within [0, 1].
func (p PersonalityVector) Validate() error {
	components := map[string]float64{
		"openness":          p.Openness,
		"conscientiousness": p.Conscientiousness,
		"extraversion":      p.Extraversion,
		"agreeableness":     p.Agreeableness,
		"neuroticism":       p.Neuroticism,
	}
	for name, v := range components {
		if v < 0 || v > 1 {
			return fmt.Errorf("personality %s out of range [0,1]: %v", name, v)
		}
	}
	return nil
}

// Skill is a named capability with a proficiency level in [0, 100].
type Skill struct {
	Name     string  `json:"name" yaml:"name"`
	Level    float64 `json:"level" yaml:"level"`
	Category string  `json:"category,omitempty" yaml:"category,omitempty"`
}

// UpdatePolicy controls how performance feedback flows back into a profile.
type UpdatePolicy string

const (
	// UpdateManual leaves PerformanceScore untouched until an explicit Update.
	UpdateManual UpdatePolicy = "manual"
	// UpdateAfterExecution folds task outcomes into PerformanceScore via EWMA.
	UpdateAfterExecution UpdatePolicy = "after_execution"
)

// AgentProfile describes one agent: identity, personality, skills and tool
// grants. Profiles are versioned; a stored version is never mutated.
type AgentProfile struct {
	ID                 string            `json:"id" yaml:"id"`
	Name               string            `json:"name" yaml:"name"`
	Role               string            `json:"role,omitempty" yaml:"role,omitempty"`
	Personality        PersonalityVector `json:"personality" yaml:"personality"`
	Skills             []Skill           `json:"skills,omitempty" yaml:"skills,omitempty"`
	Tools              []string          `json:"tools,omitempty" yaml:"tools,omitempty"`
	CommunicationStyle string            `json:"communication_style,omitempty" yaml:"communication_style,omitempty"`
	DecisionStyle      string            `json:"decision_style,omitempty" yaml:"decision_style,omitempty"`
	PerformanceScore   float64           `json:"performance_score" yaml:"performance_score"`
	Version            int               `json:"version" yaml:"version"`
	CreatedAt          time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" yaml:"updated_at"`
}

// Validate checks structural invariants before a profile enters the registry.
func (p *AgentProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("profile is nil")
	}
	if p.ID == "" {
		return fmt.Errorf("profile ID is required")
	}
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if err := p.Personality.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	seen := make(map[string]struct{}, len(p.Skills))
	for _, s := range p.Skills {
		if s.Name == "" {
			return fmt.Errorf("profile %s: skill name is required", p.ID)
		}
		if s.Level < 0 || s.Level > 100 {
			return fmt.Errorf("profile %s: skill %s level out of range [0,100]: %v", p.ID, s.Name, s.Level)
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("profile %s: duplicate skill %s", p.ID, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	if p.PerformanceScore < 0 || p.PerformanceScore > 1 {
		return fmt.Errorf("profile %s: performance score out of range [0,1]: %v", p.ID, p.PerformanceScore)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate freely without touching
// the registry's stored versions.
func (p *AgentProfile) Clone() *AgentProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Skills = make([]Skill, len(p.Skills))
	copy(cp.Skills, p.Skills)
	cp.Tools = make([]string, len(p.Tools))
	copy(cp.Tools, p.Tools)
	return &cp
}

// SkillLevel returns the level for a named skill, 0 when absent.
func (p *AgentProfile) SkillLevel(name string) float64 {
	for _, s := range p.Skills {
		if s.Name == name {
			return s.Level
		}
	}
	return 0
}

// HasTool reports whether the profile grants the named tool.
func (p *AgentProfile) HasTool(name string) bool {
	for _, t := range p.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// HasTools reports whether every required tool is granted.
func (p *AgentProfile) HasTools(required []string) bool {
	for _, name := range required {
		if !p.HasTool(name) {
			return false
		}
	}
	return true
}
