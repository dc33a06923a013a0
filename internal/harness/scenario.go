package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end automation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Project is the CUE project file or directory. Relative paths are
	// resolved against the scenario file.
	Project string `yaml:"project"`

	// Fixture is an optional YAML fixture applied before the flow.
	Fixture string `yaml:"fixture,omitempty"`

	// User initiates every action. Defaults to id "scenario".
	User User `yaml:"user,omitempty"`

	// MaxSteps overrides the engine's steps quota per root flow.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Flow contains the user actions, run in order. Each action is
	// committed and its cascades drained before the next one.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace and the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// User is the initiator of the scenario's actions.
type User struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email,omitempty"`
}

// Step actions.
const (
	ActionCreate = "create"
	ActionPatch  = "patch"
	ActionRemove = "remove"
	ActionLink   = "link"
	ActionUnlink = "unlink"
)

// Step is one user action.
type Step struct {
	Action string `yaml:"action"`

	// Ref names the created document or link for later steps and
	// assertions.
	Ref string `yaml:"ref,omitempty"`

	// Collection and Data describe a created document.
	Collection string         `yaml:"collection,omitempty"`
	Data       map[string]any `yaml:"data,omitempty"`

	// Document is the ref or id a patch or remove targets.
	Document string `yaml:"document,omitempty"`

	// Attribute and Value describe a patch. A missing value clears the
	// attribute.
	Attribute string `yaml:"attribute,omitempty"`
	Value     any    `yaml:"value,omitempty"`

	// LinkType and Documents describe a created link.
	LinkType  string   `yaml:"link_type,omitempty"`
	Documents []string `yaml:"documents,omitempty"`

	// Link is the ref or id an unlink targets.
	Link string `yaml:"link,omitempty"`

	// Interactive marks the action as coming from a live client, so side
	// effects of its first-level tasks are surfaced.
	Interactive bool `yaml:"interactive,omitempty"`

	// ExpectError makes the step pass only when its commit fails with an
	// error containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Trigger, Schema, Entity and Changed select trace events
	// (trace_contains, trace_count).
	Trigger string   `yaml:"trigger,omitempty"`
	Schema  string   `yaml:"schema,omitempty"`
	Entity  string   `yaml:"entity,omitempty"`
	Changed []string `yaml:"changed,omitempty"`

	// Count is the expected number (trace_count, document_count,
	// link_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Document, Expect and Removed check one document (final_state).
	Document string         `yaml:"document,omitempty"`
	Expect   map[string]any `yaml:"expect,omitempty"`
	Removed  bool           `yaml:"removed,omitempty"`

	// Collection and LinkType name the counted schema object.
	Collection string `yaml:"collection,omitempty"`
	LinkType   string `yaml:"link_type,omitempty"`

	// Text and Level match a user message; Text also matches task errors.
	Text  string `yaml:"text,omitempty"`
	Level string `yaml:"level,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertDocumentCount = "document_count"
	AssertLinkCount     = "link_count"
	AssertMessage       = "message"
	AssertTaskError     = "task_error"
)

// LoadScenario reads and parses a scenario YAML file. Project and fixture
// paths are resolved relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Project = resolve(base, scenario.Project)
	scenario.Fixture = resolve(base, scenario.Fixture)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Project == "" {
		return fmt.Errorf("project is required")
	}
	if _, err := os.Stat(s.Project); os.IsNotExist(err) {
		return fmt.Errorf("project not found: %s", s.Project)
	}
	if s.Fixture != "" {
		if _, err := os.Stat(s.Fixture); os.IsNotExist(err) {
			return fmt.Errorf("fixture not found: %s", s.Fixture)
		}
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	switch s.Action {
	case ActionCreate:
		if s.Collection == "" {
			return fmt.Errorf("flow[%d]: collection is required for create", index)
		}
	case ActionPatch:
		if s.Document == "" || s.Attribute == "" {
			return fmt.Errorf("flow[%d]: document and attribute are required for patch", index)
		}
	case ActionRemove:
		if s.Document == "" {
			return fmt.Errorf("flow[%d]: document is required for remove", index)
		}
	case ActionLink:
		if s.LinkType == "" || len(s.Documents) != 2 {
			return fmt.Errorf("flow[%d]: link_type and two documents are required for link", index)
		}
	case ActionUnlink:
		if s.Link == "" {
			return fmt.Errorf("flow[%d]: link is required for unlink", index)
		}
	case "":
		return fmt.Errorf("flow[%d]: action is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, s.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		if a.Trigger == "" && a.Schema == "" && a.Entity == "" {
			return fmt.Errorf("assertions[%d]: trigger, schema or entity is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Document == "" {
			return fmt.Errorf("assertions[%d]: document is required for final_state", index)
		}
		if len(a.Expect) == 0 && !a.Removed {
			return fmt.Errorf("assertions[%d]: expect or removed is required for final_state", index)
		}
	case AssertDocumentCount:
		if a.Collection == "" {
			return fmt.Errorf("assertions[%d]: collection is required for document_count", index)
		}
	case AssertLinkCount:
		if a.LinkType == "" {
			return fmt.Errorf("assertions[%d]: link_type is required for link_count", index)
		}
	case AssertMessage, AssertTaskError:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
