package harness

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/chains/evm"
	"github.com/pendergraft/contraharness/internal/contracts"
)

// ErrNoCode is returned when attaching to an address without code
var ErrNoCode = errors.New("no contract code at address")

// Deployer publishes contract definitions to the ledger
type Deployer struct {
	e        *engine
	registry Resolver
	out      io.Writer
}

// NewDeployer creates a Deployer over the injected ledger, registry and signer
func NewDeployer(deps Deps, opts Options) *Deployer {
	out := deps.Out
	if out == nil {
		out = io.Discard
	}
	return &Deployer{
		e:        newEngine(deps, opts),
		registry: deps.Registry,
		out:      out,
	}
}

// PendingDeployment is a submitted creation transaction. The Instance only
// exists once Wait returns successfully.
type PendingDeployment struct {
	*PendingTx
	Definition *contracts.Definition
	// Address is where the contract will live, derived from sender and nonce
	Address common.Address

	args []any
	d    *Deployer
}

// Deploy resolves name, submits its creation transaction and blocks until
// it is confirmed.
func (d *Deployer) Deploy(ctx context.Context, name string, args ...any) (*Instance, error) {
	pending, err := d.Submit(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return pending.Wait(ctx)
}

// ParseConstructorArgs converts string arguments to the constructor's input types
func (d *Deployer) ParseConstructorArgs(name string, raw []string) ([]any, error) {
	def, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	args, err := ParseArgs(def.ABI.Constructor.Inputs, raw)
	if err != nil {
		return nil, &Error{Kind: KindResolution, Op: "deploy", Contract: name, Err: err}
	}
	return args, nil
}

// Submit resolves name and sends the creation transaction without waiting
func (d *Deployer) Submit(ctx context.Context, name string, args ...any) (*PendingDeployment, error) {
	def, err := d.resolve(name)
	if err != nil {
		return nil, err
	}

	packed, err := def.ABI.Pack("", args...)
	if err != nil {
		return nil, &Error{Kind: KindResolution, Op: "deploy", Contract: name, Err: ErrInvalidArguments, Cause: err}
	}
	data := make([]byte, 0, len(def.Bytecode)+len(packed))
	data = append(append(data, def.Bytecode...), packed...)

	p, err := d.e.submit(ctx, txRequest{
		op:       "deploy",
		contract: def.Name,
		data:     data,
		abi:      &def.ABI,
	})
	if err != nil {
		return nil, err
	}

	return &PendingDeployment{
		PendingTx:  p,
		Definition: def,
		Address:    crypto.CreateAddress(p.From, p.Nonce),
		args:       args,
		d:          d,
	}, nil
}

// Wait blocks until the creation transaction confirms and returns the Instance
func (p *PendingDeployment) Wait(ctx context.Context) (*Instance, error) {
	receipt, err := p.PendingTx.Wait(ctx)
	if err != nil {
		return nil, err
	}

	d, def := p.d, p.Definition
	inst := &Instance{
		Name:       def.Name,
		Address:    receipt.ContractAddress,
		ABI:        def.ABI,
		Definition: def,
		TxHash:     receipt.TxHash,
		Block:      receipt.BlockNumber.Uint64(),
		confirmed:  true,
	}
	if d.e.opts.CodeCheck {
		inst.CodeMatch = d.checkCode(ctx, inst)
	}

	fmt.Fprintf(d.out, "%s deployed to: %s\n", def.Name, inst.Address.Hex())

	rec := DeploymentRecord{
		Contract:     def.Name,
		Address:      inst.Address,
		Deployer:     p.From,
		TxHash:       inst.TxHash,
		Block:        inst.Block,
		Args:         formatArgs(p.args),
		ReleaseLabel: d.e.opts.ReleaseLabel,
	}
	if inst.CodeMatch != nil {
		rec.CodeMatch = inst.CodeMatch.MatchType
	}
	d.e.recordDeployment(ctx, rec)
	return inst, nil
}

// At attaches to an existing deployment after checking that code exists there
func (d *Deployer) At(ctx context.Context, name string, addr common.Address) (*Instance, error) {
	def, err := d.registry.Lookup(name)
	if err != nil {
		return nil, &Error{Kind: KindResolution, Op: "attach", Contract: name, Err: err}
	}

	code, err := d.e.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, d.e.classify(ctx, txRequest{op: "attach", contract: name}, err)
	}
	if len(code) == 0 {
		return nil, &Error{Kind: KindProtocol, Op: "attach", Contract: name, Err: ErrNoCode, Cause: fmt.Errorf("address %s", addr.Hex())}
	}

	inst := &Instance{
		Name:       def.Name,
		Address:    addr,
		ABI:        def.ABI,
		Definition: def,
		confirmed:  true,
	}
	if d.e.opts.CodeCheck {
		match := evm.CompareCode(code, def.DeployedBytecode)
		inst.CodeMatch = &match
	}
	return inst, nil
}

func (d *Deployer) resolve(name string) (*contracts.Definition, error) {
	def, err := d.registry.Resolve(name)
	if err != nil {
		return nil, &Error{Kind: KindResolution, Op: "deploy", Contract: name, Err: err}
	}
	return def, nil
}

// checkCode compares the runtime code at the new address with the artifact.
// A mismatch is reported, not fatal.
func (d *Deployer) checkCode(ctx context.Context, inst *Instance) *chains.CodeMatch {
	if inst.Definition.DeployedBytecode == "" {
		return nil
	}
	code, err := d.e.client.CodeAt(ctx, inst.Address, nil)
	if err != nil {
		d.e.logger.Warn("could not read deployed code", "contract", inst.Name, "address", inst.Address.Hex(), "error", err)
		return nil
	}
	match := evm.CompareCode(code, inst.Definition.DeployedBytecode)
	if match.Match {
		d.e.logger.Debug("deployed code verified", "contract", inst.Name, "match", match.MatchType)
	} else {
		d.e.logger.Warn("deployed code differs from artifact", "contract", inst.Name, "address", inst.Address.Hex(), "reason", match.Message)
	}
	return &match
}

func formatArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = FormatValue(a)
	}
	return out
}
