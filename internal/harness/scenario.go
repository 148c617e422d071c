package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is one YAML-defined end-to-end test fixture, matching the
// teacher's Setup/Flow/Assertions YAML shape but with steps drawn from
// this engine's own vocabulary (mutate, query, sync, disconnect).
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`

	// Clients names every client timeline the scenario needs; each is
	// created fresh (empty storage and timeline journals) before Steps
	// run.
	Clients []string `yaml:"clients"`

	Steps []Step `yaml:"steps"`
}

// Step is one action in a scenario. Exactly one of Mutate, Query,
// Disconnect, Reconnect, or Sync is meaningful per step, selected the way
// the teacher's FlowStep picks one of invoke/expect by which field is set
// rather than a tag field.
type Step struct {
	// Client selects which named client this step applies to. Required
	// for Mutate, Query, Disconnect and Reconnect steps; ignored for Sync
	// (which always drains every connected client).
	Client string `yaml:"client,omitempty"`

	Mutate *MutateStep `yaml:"mutate,omitempty"`

	Query      string `yaml:"query,omitempty"`
	ExpectRows *int   `yaml:"expect_rows,omitempty"`

	// ExpectErr, if set, asserts the prior Mutate step failed with an
	// error whose message contains this substring (spec §8 scenario 5,
	// "Reducer error").
	ExpectErr string `yaml:"expect_err,omitempty"`

	// Disconnect marks Client as offline: its mutations still apply
	// locally (instant feedback, spec §2) but are held back from the
	// coordinator until a later Reconnect step.
	Disconnect bool `yaml:"disconnect,omitempty"`
	Reconnect  bool `yaml:"reconnect,omitempty"`

	// Sync drains every currently-connected client's pending timeline
	// into the coordinator, applies the scheduler in fair arrival order,
	// commits the resulting storage entry, and pushes it back to every
	// connected client, which then reverts and rebases (spec §2's "push,
	// apply, push back, rebase" control flow).
	Sync bool `yaml:"sync,omitempty"`
}

// MutateStep is one mutation submission. Args is decoded as a generic YAML
// mapping and re-marshaled to JSON before being handed to a reducer, so the
// scenario file can express arbitrary reducer argument shapes without the
// harness knowing any application's mutation schema, matching spec.md's
// insistence that mutation payloads stay opaque to the engine.
type MutateStep struct {
	Tag  string         `yaml:"tag"`
	Args map[string]any `yaml:"args,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: load scenario %s: %w", path, err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("harness: parse scenario %s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("harness: scenario %s: missing name", path)
	}
	return &sc, nil
}
