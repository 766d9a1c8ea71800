// Package contracts resolves compiled contract definitions by name.
package contracts

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/chains/evm"
)

// Sentinel errors
var (
	ErrUnknownContract = errors.New("unknown contract")
	ErrNotDeployable   = errors.New("contract is not deployable")
)

// Definition is a compiled contract: ABI plus creation and runtime bytecode
type Definition struct {
	Name             string
	SourcePath       string
	Compiler         string
	ABI              abi.ABI
	RawABI           []byte
	Bytecode         []byte
	DeployedBytecode string // hex, compared against on-chain code

	unlinked []string
	abstract bool
}

// Deployable returns nil if the definition can be used in a creation transaction
func (d *Definition) Deployable() error {
	if d.abstract {
		return fmt.Errorf("%w: %s has no creation bytecode (interface or abstract contract)", ErrNotDeployable, d.Name)
	}
	if len(d.unlinked) > 0 {
		return fmt.Errorf("%w: %s needs linked libraries: %s", ErrNotDeployable, d.Name, strings.Join(d.unlinked, ", "))
	}
	return nil
}

// NewDefinition builds a definition from a parsed build artifact
func NewDefinition(a *chains.Artifact) (*Definition, error) {
	rawABI := a.ABI
	if len(rawABI) == 0 {
		rawABI = []byte("[]")
	}
	parsed, err := abi.JSON(strings.NewReader(string(rawABI)))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI of %s: %w", a.Name, err)
	}

	def := &Definition{
		Name:             a.Name,
		SourcePath:       a.SourcePath,
		Compiler:         a.Compiler,
		ABI:              parsed,
		RawABI:           rawABI,
		DeployedBytecode: a.DeployedBytecode,
		abstract:         !a.Deployable(),
	}

	if evm.HasLibraryPlaceholders(a.Bytecode) {
		def.unlinked = a.Libraries
		if len(def.unlinked) == 0 {
			def.unlinked = []string{"<unknown>"}
		}
		return def, nil
	}
	if !def.abstract {
		def.Bytecode = common.FromHex(a.Bytecode)
	}
	return def, nil
}

// Registry is a read-only lookup of contract definitions, loaded once
type Registry struct {
	byName map[string]*Definition
}

// NewRegistry creates a registry from already-built definitions
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{byName: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		// The first definition of a name keeps the bare name
		if _, ok := r.byName[d.Name]; !ok {
			r.byName[d.Name] = d
		}
		if d.SourcePath != "" {
			r.byName[d.SourcePath+":"+d.Name] = d
		}
	}
	return r
}

// LoadOptions configures where artifacts are read from
type LoadOptions struct {
	Dir      string
	Builder  string // empty = auto-detect
	Discover chains.DiscoverOptions
}

// Load discovers and parses every artifact in a project directory
func Load(opts LoadOptions, logger *slog.Logger) (*Registry, error) {
	var (
		builder chains.Builder
		err     error
	)
	if opts.Builder != "" {
		builder, err = evm.BuilderByName(opts.Builder)
	} else {
		builder, err = evm.DetectBuilder(opts.Dir)
	}
	if err != nil {
		return nil, err
	}

	paths, err := builder.Discover(opts.Dir, opts.Discover)
	if err != nil {
		return nil, fmt.Errorf("discovering %s artifacts: %w", builder.DisplayName(), err)
	}

	defs := make([]*Definition, 0, len(paths))
	for _, path := range paths {
		artifact, err := builder.Parse(path)
		if err != nil {
			logger.Warn("skipping artifact", "path", path, "error", err)
			continue
		}
		def, err := NewDefinition(artifact)
		if err != nil {
			logger.Warn("skipping artifact", "path", path, "error", err)
			continue
		}
		defs = append(defs, def)
	}

	first := make(map[string]*Definition, len(defs))
	for _, d := range defs {
		kept, ok := first[d.Name]
		if !ok {
			first[d.Name] = d
			continue
		}
		logger.Warn("contract name defined in more than one source, qualify it as source.sol:Name",
			"contract", d.Name,
			"resolves_to", kept.SourcePath+":"+d.Name,
			"shadowed", d.SourcePath+":"+d.Name)
	}

	logger.Debug("contract registry loaded", "builder", builder.Name(), "dir", opts.Dir, "contracts", len(defs))
	return NewRegistry(defs...), nil
}

// Resolve returns the deployable definition for a contract name.
// Both "Name" and "source/path.sol:Name" are accepted.
func (r *Registry) Resolve(name string) (*Definition, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := def.Deployable(); err != nil {
		return nil, err
	}
	return def, nil
}

// Lookup returns a definition without requiring it to be deployable, for
// attaching to existing instances of abstract or linked contracts.
func (r *Registry) Lookup(name string) (*Definition, error) {
	def, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, name)
	}
	return def, nil
}

// List returns the definitions sorted by name
func (r *Registry) List() []*Definition {
	seen := make(map[*Definition]bool, len(r.byName))
	defs := make([]*Definition, 0, len(r.byName))
	for _, d := range r.byName {
		if seen[d] {
			continue
		}
		seen[d] = true
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}
