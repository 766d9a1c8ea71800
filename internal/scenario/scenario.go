// Package scenario runs YAML-described verification scenarios against
// freshly deployed contract instances.
package scenario

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pendergraft/contraharness/internal/validation"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Sentinel errors
var (
	ErrInvalidScenario  = errors.New("invalid scenario")
	ErrUnknownScenario  = errors.New("unknown built-in scenario")
	ErrExpectation      = errors.New("expectation failed")
	ErrNondeterministic = errors.New("scenario outcome differs between runs")
)

// Scenario is a named list of steps, executed Runs times against fresh deployments
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Runs        int    `yaml:"runs,omitempty"`
	Steps       []Step `yaml:"steps"`
}

// Step is one action. Exactly one of Deploy, Call, Send and Invoke is set.
type Step struct {
	Deploy string `yaml:"deploy,omitempty"`
	Call   string `yaml:"call,omitempty"`
	Send   string `yaml:"send,omitempty"`
	Invoke string `yaml:"invoke,omitempty"`

	// As names the instance created by a deploy step
	As string `yaml:"as,omitempty"`
	// On is the instance a call, send or invoke step targets
	On   string   `yaml:"on,omitempty"`
	Args []string `yaml:"args,omitempty"`

	// DistinctFrom requires a deployed address to differ from another instance
	DistinctFrom    string             `yaml:"distinctFrom,omitempty"`
	ExpectLength    *int               `yaml:"expectLength,omitempty"`
	ExpectMinLength *int               `yaml:"expectMinLength,omitempty"`
	ExpectEqual     *string            `yaml:"expectEqual,omitempty"`
	ExpectRevert    *RevertExpectation `yaml:"expectRevert,omitempty"`
	AllowRevert     bool               `yaml:"allowRevert,omitempty"`
	Log             bool               `yaml:"log,omitempty"`
}

// Action returns the step's action and its target (contract or method)
func (s Step) Action() (string, string) {
	switch {
	case s.Deploy != "":
		return ActionDeploy, s.Deploy
	case s.Call != "":
		return ActionCall, s.Call
	case s.Send != "":
		return ActionSend, s.Send
	case s.Invoke != "":
		return ActionInvoke, s.Invoke
	}
	return "", ""
}

// Step actions
const (
	ActionDeploy = "deploy"
	ActionCall   = "call"
	ActionSend   = "send"
	ActionInvoke = "invoke"
)

// RevertExpectation is written as `expectRevert: true` (any reason) or
// `expectRevert: "reason"`.
type RevertExpectation struct {
	Reason string
}

// UnmarshalYAML accepts a bool or a string
func (r *RevertExpectation) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expectRevert must be true or a reason string")
	}
	if value.Tag == "!!bool" {
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		if !b {
			return fmt.Errorf("expectRevert: false is not allowed, omit the field instead")
		}
		return nil
	}
	r.Reason = value.Value
	return nil
}

// MarshalYAML writes true for any reason
func (r RevertExpectation) MarshalYAML() (any, error) {
	if r.Reason == "" {
		return true, nil
	}
	return r.Reason, nil
}

// Parse decodes and validates a scenario document
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if s.Runs == 0 {
		s.Runs = 1
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a scenario file
func Load(file string) (*Scenario, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return s, nil
}

// Builtin returns a scenario shipped with the binary
func Builtin(name string) (*Scenario, error) {
	data, err := builtinFS.ReadFile(path.Join("builtin", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownScenario, name, strings.Join(BuiltinNames(), ", "))
	}
	return Parse(data)
}

// BuiltinNames lists the built-in scenarios
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Contracts returns the distinct contract names deployed by the scenario
func (s *Scenario) Contracts() []string {
	seen := make(map[string]bool)
	var names []string
	for _, step := range s.Steps {
		if step.Deploy != "" && !seen[step.Deploy] {
			seen[step.Deploy] = true
			names = append(names, step.Deploy)
		}
	}
	return names
}

// Validate checks structure before anything is executed
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if s.Runs < 1 {
		return fmt.Errorf("%w: runs must be at least 1", ErrInvalidScenario)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := step.validate(aliases); err != nil {
			return fmt.Errorf("%w: step %d: %v", ErrInvalidScenario, i+1, err)
		}
	}
	return nil
}

func (s Step) validate(aliases map[string]bool) error {
	actions := 0
	for _, v := range []string{s.Deploy, s.Call, s.Send, s.Invoke} {
		if v != "" {
			actions++
		}
	}
	if actions != 1 {
		return errors.New("exactly one of deploy, call, send or invoke is required")
	}
	if s.ExpectRevert != nil && s.AllowRevert {
		return errors.New("expectRevert and allowRevert are mutually exclusive")
	}
	if s.ExpectLength != nil && *s.ExpectLength < 0 || s.ExpectMinLength != nil && *s.ExpectMinLength < 0 {
		return errors.New("expected lengths must not be negative")
	}

	action, target := s.Action()
	if action == ActionDeploy {
		if err := validation.ValidateContractName(target); err != nil {
			return err
		}
		if s.DistinctFrom != "" && !aliases[s.DistinctFrom] {
			return fmt.Errorf("distinctFrom refers to unknown instance %q", s.DistinctFrom)
		}
		alias := s.As
		if alias == "" {
			alias = target
		}
		aliases[alias] = true
		return nil
	}

	if err := validation.ValidateMethodName(target); err != nil {
		return err
	}
	if s.On == "" {
		return fmt.Errorf("%s %s: on is required", action, target)
	}
	if !aliases[s.On] {
		return fmt.Errorf("%s %s: unknown instance %q", action, target, s.On)
	}
	if s.DistinctFrom != "" || s.As != "" {
		return fmt.Errorf("%s %s: as and distinctFrom only apply to deploy steps", action, target)
	}
	return nil
}
