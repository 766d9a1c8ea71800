// Package hardhat provides the Hardhat builder for EVM contracts.
package hardhat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pendergraft/contraharness/internal/chains"
)

// ArtifactFormat is the _format tag of Hardhat contract artifacts
const ArtifactFormat = "hh-sol-artifact-1"

// configFiles are checked in order during detection
var configFiles = []string{"hardhat.config.ts", "hardhat.config.js", "hardhat.config.cjs"}

// Builder implements chains.Builder for Hardhat projects
type Builder struct{}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// ConfigFile returns the canonical config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// OutputDir returns the artifacts directory of a Hardhat project
func (b *Builder) OutputDir(dir string) string {
	return filepath.Join(dir, "artifacts")
}

// Detect checks if a directory is a Hardhat project
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// Discover finds all contract artifacts in a Hardhat project
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]string, error) {
	outDir := b.OutputDir(dir)
	if _, err := os.Stat(outDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("artifacts directory not found - run 'npx hardhat compile' first")
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

		// Debug files sit next to every artifact (Contract.dbg.json)
		name := info.Name()
		if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".dbg.json") {
			return nil
		}

		// artifacts/{sourceName}/{Contract}.json where sourceName ends in .sol
		if !strings.HasSuffix(filepath.Dir(path), ".sol") {
			return nil
		}

		contractName := strings.TrimSuffix(name, ".json")
		if len(opts.Contracts) > 0 && !chains.Included(contractName, opts.Contracts) {
			return nil
		}
		if chains.Excluded(contractName, opts.Exclude) {
			return nil
		}

		raw, err := readArtifact(path)
		if err != nil {
			return nil // not a contract artifact
		}

		// Project sources live under contracts/; dependencies need an explicit listing
		if !strings.HasPrefix(raw.SourceName, "contracts/") && !chains.Included(contractName, opts.Contracts) {
			return nil
		}

		// The same name from another source is kept; the registry
		// resolves it as source.sol:Name
		key := raw.SourceName + ":" + contractName
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

// Parse parses a Hardhat artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	raw, err := readArtifact(artifactPath)
	if err != nil {
		return nil, err
	}

	name := raw.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	return &chains.Artifact{
		Name:             name,
		SourcePath:       raw.SourceName,
		ABI:              raw.ABI,
		Bytecode:         raw.Bytecode,
		DeployedBytecode: raw.DeployedBytecode,
		Compiler:         readCompilerVersion(artifactPath),
		Libraries:        raw.LinkReferences.Names(),
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
	if raw.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", raw.Format)
	}
	return &raw, nil
}

// readCompilerVersion follows the debug file to the build-info and reads the
// long solc version. Missing files are not an error.
func readCompilerVersion(artifactPath string) string {
	dbgPath := strings.TrimSuffix(artifactPath, ".json") + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		return ""
	}
	var dbg DebugFile
	if err := json.Unmarshal(data, &dbg); err != nil || dbg.BuildInfo == "" {
		return ""
	}

	data, err = os.ReadFile(filepath.Join(filepath.Dir(dbgPath), dbg.BuildInfo))
	if err != nil {
		return ""
	}
	var info struct {
		SolcLongVersion string `json:"solcLongVersion"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return ""
	}
	return info.SolcLongVersion
}
