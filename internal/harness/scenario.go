package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/roster/internal/match"
	"github.com/roach88/roster/internal/merge"
	"github.com/roach88/roster/internal/model"
	"github.com/roach88/roster/internal/testutil"
)

// Scenario defines one reconciliation test: a canonical extract, the
// downstream directory it is reconciled against, injected faults, and
// assertions on the resulting plans, reports and final directory state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is the fixed id of the first run. Later runs get "-2", "-3"
	// suffixes. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Target names the downstream directory. Defaults to "acs".
	Target string `yaml:"target,omitempty"`

	Region         string        `yaml:"region,omitempty"`
	ActiveStatuses []string      `yaml:"active_statuses,omitempty"`
	Fields         []FieldPolicy `yaml:"fields,omitempty"`
	TiePolicy      string        `yaml:"tie_policy,omitempty"`
	Threshold      float64       `yaml:"threshold,omitempty"`
	SuspendOrphans bool          `yaml:"suspend_orphans,omitempty"`

	// Runs is how many consecutive passes to execute against the same
	// directory. Defaults to 1.
	Runs int `yaml:"runs,omitempty"`

	Canonical  []model.RawRecord        `yaml:"canonical"`
	Downstream []model.DownstreamEntity `yaml:"downstream,omitempty"`
	Faults     []testutil.Fault         `yaml:"faults,omitempty"`

	// Assertions validate plans, reports and the final directory.
	Assertions []Assertion `yaml:"assertions"`
}

// FieldPolicy is the YAML form of merge.FieldPolicy.
type FieldPolicy struct {
	Field string `yaml:"field"`
	Kind  string `yaml:"kind,omitempty"`
}

// Assertion validates one aspect of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "report": report counters equal Counts; Cancelled if set
	// - "plan_contains": an action of Kind for Entity is planned
	// - "plan_count": exactly Count actions of Kind are planned
	// - "patch": the update for Entity carries exactly Expect
	// - "failure": Entity failed with ErrorKind
	// - "downstream": the record with MatchKey (or ID) has Expect fields
	Type string `yaml:"type"`

	// Run selects the run, 1-based. Zero means the last run.
	Run int `yaml:"run,omitempty"`

	Kind      string            `yaml:"kind,omitempty"`
	Entity    string            `yaml:"entity,omitempty"`
	Count     int               `yaml:"count,omitempty"`
	Counts    map[string]int    `yaml:"counts,omitempty"`
	Cancelled *bool             `yaml:"cancelled,omitempty"`
	ErrorKind string            `yaml:"error_kind,omitempty"`
	MatchKey  string            `yaml:"match_key,omitempty"`
	ID        string            `yaml:"id,omitempty"`
	Expect    map[string]string `yaml:"expect,omitempty"`
	Suspended *bool             `yaml:"suspended,omitempty"`
	Absent    bool              `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertReport       = "report"
	AssertPlanContains = "plan_contains"
	AssertPlanCount    = "plan_count"
	AssertPatch        = "patch"
	AssertFailure      = "failure"
	AssertDownstream   = "downstream"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:" vs "assertions:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	applyDefaults(&scenario)
	return &scenario, nil
}

func applyDefaults(s *Scenario) {
	if s.RunID == "" {
		s.RunID = "test-run-default"
	}
	if s.Target == "" {
		s.Target = "acs"
	}
	if s.Runs == 0 {
		s.Runs = 1
	}
	if s.TiePolicy == "" {
		s.TiePolicy = string(match.TieFirst)
	}
	if s.Threshold == 0 {
		s.Threshold = match.DefaultThreshold
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Runs < 0 {
		return fmt.Errorf("runs must be non-negative")
	}
	if s.TiePolicy != "" && !match.TiePolicy(s.TiePolicy).Valid() {
		return fmt.Errorf("unknown tie_policy %q", s.TiePolicy)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, f := range s.Fields {
		if f.Field == "" {
			return fmt.Errorf("fields[%d]: field is required", i)
		}
		if f.Kind != "" && !merge.Kind(f.Kind).Valid() {
			return fmt.Errorf("fields[%d]: unknown kind %q", i, f.Kind)
		}
	}

	for i, f := range s.Faults {
		switch f.Op {
		case "create", "update", "suspend", "remove":
		default:
			return fmt.Errorf("faults[%d]: unknown op %q", i, f.Op)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], s); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, s *Scenario) error {
	runs := s.Runs
	if runs == 0 {
		runs = 1
	}
	if a.Run < 0 || a.Run > runs {
		return fmt.Errorf("assertions[%d]: run %d out of range 1..%d", index, a.Run, runs)
	}

	switch a.Type {
	case AssertReport:
		if len(a.Counts) == 0 && a.Cancelled == nil {
			return fmt.Errorf("assertions[%d]: counts or cancelled is required for report", index)
		}
		for k := range a.Counts {
			if _, ok := reportCounter(k); !ok {
				return fmt.Errorf("assertions[%d]: unknown report counter %q", index, k)
			}
		}
	case AssertPlanContains:
		if !validKind(a.Kind) || a.Entity == "" {
			return fmt.Errorf("assertions[%d]: kind and entity are required for plan_contains", index)
		}
	case AssertPlanCount:
		if !validKind(a.Kind) {
			return fmt.Errorf("assertions[%d]: kind is required for plan_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for plan_count", index)
		}
	case AssertPatch:
		if a.Entity == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: entity and expect are required for patch", index)
		}
	case AssertFailure:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for failure", index)
		}
	case AssertDownstream:
		if a.MatchKey == "" && a.ID == "" {
			return fmt.Errorf("assertions[%d]: match_key or id is required for downstream", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func validKind(kind string) bool {
	for _, k := range model.ActionKinds {
		if string(k) == kind {
			return true
		}
	}
	return false
}
