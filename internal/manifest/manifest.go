// Package manifest parses YAML cycle manifests: the task definition plus
// per-phase dependency declarations that gate phase entry.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/cycled/internal/cycle"
)

// ParseError wraps manifest parsing and validation failures.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return "invalid manifest: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// PhaseSpec declares how one phase runs.
type PhaseSpec struct {
	// DependsOn lists phases that must have completed before this one may
	// start.
	DependsOn []string `yaml:"depends_on"`

	// Instructions is free-form guidance passed through to the executor.
	Instructions string `yaml:"instructions"`
}

// Manifest is the parsed document.
type Manifest struct {
	ID                 string               `yaml:"id"`
	Title              string               `yaml:"title"`
	Description        string               `yaml:"description"`
	Requirements       []string             `yaml:"requirements"`
	Constraints        []string             `yaml:"constraints"`
	AcceptanceCriteria []string             `yaml:"acceptance_criteria"`
	Metadata           map[string]any       `yaml:"metadata"`
	Phases             map[string]PhaseSpec `yaml:"phases"`
}

// ParseFile reads and validates a manifest from path.
func ParseFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	m, err := parse(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return m, nil
}

// ParseString parses and validates a manifest document.
func ParseString(doc string) (*Manifest, error) {
	m, err := parse([]byte(doc))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return m, nil
}

func parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest requires an id")
	}
	if m.Description == "" && m.Title == "" {
		return nil, fmt.Errorf("manifest requires a title or description")
	}
	for name, spec := range m.Phases {
		if _, err := cycle.ParsePhase(name); err != nil {
			return nil, err
		}
		for _, dep := range spec.DependsOn {
			if _, err := cycle.ParsePhase(dep); err != nil {
				return nil, fmt.Errorf("phase %s dependency: %w", name, err)
			}
		}
	}
	return &m, nil
}

// Task converts the manifest into the task record a cycle operates on.
func (m *Manifest) Task() cycle.TaskRecord {
	task := cycle.TaskRecord{
		"id":          m.ID,
		"description": m.Description,
	}
	if m.Description == "" {
		task["description"] = m.Title
	}
	if m.Title != "" {
		task["title"] = m.Title
	}
	if len(m.Requirements) > 0 {
		task["requirements"] = toAnyList(m.Requirements)
	}
	if len(m.Constraints) > 0 {
		task["constraints"] = toAnyList(m.Constraints)
	}
	if len(m.AcceptanceCriteria) > 0 {
		task["acceptance_criteria"] = toAnyList(m.AcceptanceCriteria)
	}
	for k, v := range m.Metadata {
		if _, exists := task[k]; !exists {
			task[k] = v
		}
	}
	return task
}

func toAnyList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
