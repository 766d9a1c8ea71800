// Package foundry provides the Foundry builder for EVM contracts.
package foundry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/contraharness/internal/chains"
)

// Builder implements chains.Builder for Foundry projects
type Builder struct{}

// New creates a new Foundry builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "foundry"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Foundry"
}

// ConfigFile returns the config file name
func (b *Builder) ConfigFile() string {
	return "foundry.toml"
}

// OutputDir returns the out directory of a Foundry project
func (b *Builder) OutputDir(dir string) string {
	return filepath.Join(dir, "out")
}

// Detect checks if a directory is a Foundry project
func (b *Builder) Detect(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, b.ConfigFile()))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Discover finds all contract artifacts in a Foundry project
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]string, error) {
	outDir := b.OutputDir(dir)
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("out directory not found - run 'forge build' first")
	}

	var artifacts []string
	seen := make(map[string]bool)

	err := filepath.Walk(outDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "build-info" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		// out/{Source}.sol/{Contract}.json
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}

		contractName := strings.TrimSuffix(info.Name(), ".json")
		if len(opts.Contracts) > 0 && !chains.Included(contractName, opts.Contracts) {
			return nil
		}
		if chains.Excluded(contractName, opts.Exclude) {
			return nil
		}

		sourcePath, err := artifactSourcePath(path)
		if err != nil {
			return nil // Skip artifacts we can't read
		}

		// Only include contracts from src/, unless explicitly listed
		if !strings.HasPrefix(sourcePath, "src/") && !chains.Included(contractName, opts.Contracts) {
			return nil
		}

		key := sourcePath + ":" + contractName
		if seen[key] {
			return nil
		}
		seen[key] = true
		artifacts = append(artifacts, path)
		return nil
	})

	sort.Strings(artifacts)
	return artifacts, err
}

// Parse parses a Foundry artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	raw, err := readArtifact(artifactPath)
	if err != nil {
		return nil, err
	}

	// Non-fatal, continue without metadata
	var metadata Metadata
	if raw.RawMetadata != "" {
		_ = json.Unmarshal([]byte(raw.RawMetadata), &metadata)
	}

	return &chains.Artifact{
		Name:             strings.TrimSuffix(filepath.Base(artifactPath), ".json"),
		SourcePath:       firstKey(metadata.Settings.CompilationTarget),
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode.Object,
		DeployedBytecode: raw.DeployedBytecode.Object,
		Compiler:         metadata.Compiler.Version,
		Libraries:        raw.Bytecode.LinkReferences.Names(),
	}, nil
}

func readArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw Artifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}
	return &raw, nil
}

// artifactSourcePath reads an artifact and returns its compilation target
func artifactSourcePath(path string) (string, error) {
	raw, err := readArtifact(path)
	if err != nil {
		return "", err
	}
	if raw.RawMetadata == "" {
		return "", fmt.Errorf("no metadata")
	}

	var metadata Metadata
	if err := json.Unmarshal([]byte(raw.RawMetadata), &metadata); err != nil {
		return "", err
	}
	return firstKey(metadata.Settings.CompilationTarget), nil
}

// firstKey returns the first key from a map in sorted order
func firstKey(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return keys[0]
}
