// Package chains defines how compiled contract artifacts are discovered and
// parsed from the output of a build tool.
package chains

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Builder parses artifacts from a specific build tool
type Builder interface {
	// Metadata
	Name() string        // "foundry", "hardhat"
	DisplayName() string // "Foundry", "Hardhat"

	// Detection
	Detect(dir string) (bool, error)
	ConfigFile() string // "foundry.toml", "hardhat.config.ts"

	// Artifact handling
	OutputDir(dir string) string
	Discover(dir string, opts DiscoverOptions) ([]string, error)
	Parse(artifactPath string) (*Artifact, error)
}

// DiscoverOptions configures artifact discovery
type DiscoverOptions struct {
	// Contracts to include (empty = all project contracts). Listing a
	// contract also admits it when it comes from a dependency.
	Contracts []string
	// Patterns to exclude (e.g., "Test*", "Mock*")
	Exclude []string
}

// Artifact is one compiled contract as emitted by a build tool
type Artifact struct {
	Name             string          `json:"name"`
	SourcePath       string          `json:"sourcePath"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	Compiler         string          `json:"compiler,omitempty"`
	// Libraries lists fully qualified library names the bytecode must be linked against
	Libraries []string `json:"libraries,omitempty"`
}

// Deployable reports whether the artifact carries creation code
func (a *Artifact) Deployable() bool {
	code := strings.TrimPrefix(a.Bytecode, "0x")
	return code != ""
}

// CodeMatch describes how on-chain runtime code compares to an artifact
type CodeMatch struct {
	Match     bool   `json:"match"`
	MatchType string `json:"matchType"` // "full", "partial", "none"
	Message   string `json:"message"`
}

// Match types
const (
	MatchFull    = "full"
	MatchPartial = "partial"
	MatchNone    = "none"
)

// Excluded reports whether a contract name matches any exclude pattern.
// Patterns match as prefix, suffix or glob.
func Excluded(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasPrefix(name, pattern) || strings.HasSuffix(name, pattern) {
			return true
		}
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}

// Included reports whether a contract is in the explicit include list
func Included(name string, contracts []string) bool {
	for _, c := range contracts {
		if c == name {
			return true
		}
	}
	return false
}

// DetectBuilder returns the first builder that recognises dir
func DetectBuilder(dir string, builders []Builder) (Builder, error) {
	for _, b := range builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no supported builder detected in %s", dir)
}
