package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run against one collection.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario checks.
	Description string `yaml:"description"`

	// Collection declares the collection the steps run against.
	Collection CollectionSpec `yaml:"collection"`

	// IDs fixes the auto-generated ids, in order. Ids past the end of the
	// list fall back to id-0001, id-0002, ...
	IDs []string `yaml:"ids,omitempty"`

	// Steps run in order against a fresh store.
	Steps []Step `yaml:"steps"`
}

// CollectionSpec mirrors the collection options a scenario may set.
type CollectionSpec struct {
	Name        string   `yaml:"name"`
	PrimaryKeys []string `yaml:"primary_keys,omitempty"`
	LookupKeys  []string `yaml:"lookup_keys,omitempty"`
}

// Step is one collection operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Fields is the create input.
	Fields map[string]string `yaml:"fields,omitempty"`

	// ID is the find_by_id argument.
	ID string `yaml:"id,omitempty"`

	// Field and Value select lookup entries.
	Field string `yaml:"field,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Limit and Reverse tune find_by_lookup.
	Limit   int64 `yaml:"limit,omitempty"`
	Reverse bool  `yaml:"reverse,omitempty"`

	// Expect is checked against the step outcome when set.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome a step should have. Unset fields are not
// checked.
type Expect struct {
	// Found applies to find_by_id and find_one_by_lookup.
	Found *bool `yaml:"found,omitempty"`

	// ID is the id of the created or found record.
	ID string `yaml:"id,omitempty"`

	// Fields is a subset match against the created or found record.
	Fields map[string]string `yaml:"fields,omitempty"`

	// Count is the number of records returned, or deleted for delete_all.
	Count *int `yaml:"count,omitempty"`

	// IDs is the exact id order of a multi-record result.
	IDs []string `yaml:"ids,omitempty"`

	// Error is the expected error kind; see ErrorKind.
	Error string `yaml:"error,omitempty"`
}

// Step operations.
const (
	OpCreate          = "create"
	OpFindByID        = "find_by_id"
	OpFindOneByLookup = "find_one_by_lookup"
	OpFindByLookup    = "find_by_lookup"
	OpFindAll         = "find_all"
	OpDeleteAll       = "delete_all"
)

var validOps = map[string]bool{
	OpCreate:          true,
	OpFindByID:        true,
	OpFindOneByLookup: true,
	OpFindByLookup:    true,
	OpFindAll:         true,
	OpDeleteAll:       true,
}

// LoadScenario reads a scenario file. Unknown YAML fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Collection.Name == "" {
		return fmt.Errorf("collection.name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if !validOps[step.Op] {
			return fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		switch step.Op {
		case OpFindByID:
			if step.ID == "" {
				return fmt.Errorf("step %d: %s requires id", i+1, step.Op)
			}
		case OpFindOneByLookup, OpFindByLookup:
			if step.Field == "" {
				return fmt.Errorf("step %d: %s requires field", i+1, step.Op)
			}
		}
		if step.Expect != nil && step.Expect.Error != "" && !validErrorKinds[step.Expect.Error] {
			return fmt.Errorf("step %d: unknown error kind %q", i+1, step.Expect.Error)
		}
	}
	return nil
}
