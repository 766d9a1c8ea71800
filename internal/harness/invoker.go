package harness

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Invoker calls methods on confirmed instances
type Invoker struct {
	e *engine
}

// NewInvoker creates an Invoker over the injected ledger and signer
func NewInvoker(deps Deps, opts Options) *Invoker {
	return &Invoker{e: newEngine(deps, opts)}
}

// Result is the outcome of Invoke
type Result struct {
	Method   string
	ReadOnly bool
	Values   []any          // decoded outputs of a read-only call
	Receipt  *types.Receipt // receipt of a confirmed transaction
}

// RevertOutcome describes the revert observed by ExpectRevert
type RevertOutcome struct {
	Reason  string
	TxHash  common.Hash    // zero when the revert was caught before submission
	Receipt *types.Receipt // nil when the revert was caught before submission
}

// prepare checks the instance, resolves the method and packs the arguments.
// It performs no ledger traffic.
func (iv *Invoker) prepare(op string, inst *Instance, method string, args []any) (abi.Method, []byte, error) {
	if !inst.Confirmed() {
		return abi.Method{}, nil, &Error{Kind: KindProtocol, Op: op, Contract: inst.label(), Method: method, Err: ErrNotConfirmed}
	}
	m, err := inst.Method(method)
	if err != nil {
		herr := err.(*Error)
		herr.Op = op
		return abi.Method{}, nil, herr
	}
	input, err := inst.ABI.Pack(m.Name, args...)
	if err != nil {
		return abi.Method{}, nil, &Error{Kind: KindResolution, Op: op, Contract: inst.Name, Method: m.Name, Err: ErrInvalidArguments, Cause: err}
	}
	return m, input, nil
}

// Call executes a method with eth_call against the latest state. No
// transaction is submitted.
func (iv *Invoker) Call(ctx context.Context, inst *Instance, method string, args ...any) ([]any, error) {
	m, input, err := iv.prepare(InvocationCall, inst, method, args)
	if err != nil {
		return nil, err
	}

	req := txRequest{op: InvocationCall, contract: inst.Name, method: m.Name, to: &inst.Address, abi: &inst.ABI}
	out, err := iv.e.client.CallContract(ctx, ethereum.CallMsg{
		From: iv.e.signer.Address(),
		To:   &inst.Address,
		Data: input,
	}, nil)
	if err != nil {
		herr := iv.e.classify(ctx, req, err)
		iv.record(ctx, inst, m.Name, InvocationCall, common.Hash{}, 0, herr)
		return nil, herr
	}

	values, err := m.Outputs.Unpack(out)
	if err != nil {
		herr := req.fail(KindResolution, fmt.Errorf("decoding result: %w", err))
		iv.record(ctx, inst, m.Name, InvocationCall, common.Hash{}, 0, herr)
		return nil, herr
	}
	iv.record(ctx, inst, m.Name, InvocationCall, common.Hash{}, 0, nil)
	return values, nil
}

// Submit sends a transaction calling method without waiting for it
func (iv *Invoker) Submit(ctx context.Context, inst *Instance, method string, args ...any) (*PendingTx, error) {
	m, input, err := iv.prepare(InvocationSend, inst, method, args)
	if err != nil {
		return nil, err
	}
	return iv.e.submit(ctx, txRequest{
		op:       InvocationSend,
		contract: inst.Name,
		method:   m.Name,
		to:       &inst.Address,
		data:     input,
		abi:      &inst.ABI,
	})
}

// Transact sends a transaction calling method and blocks until it is
// confirmed. Reverts are returned as KindRevert errors.
func (iv *Invoker) Transact(ctx context.Context, inst *Instance, method string, args ...any) (*types.Receipt, error) {
	p, err := iv.Submit(ctx, inst, method, args...)
	if err != nil {
		if KindOf(err) != KindResolution && KindOf(err) != KindProtocol {
			iv.record(ctx, inst, method, InvocationSend, common.Hash{}, 0, err)
		}
		return nil, err
	}

	receipt, err := p.Wait(ctx)
	var block uint64
	if receipt != nil {
		block = receipt.BlockNumber.Uint64()
	}
	iv.record(ctx, inst, p.req.method, InvocationSend, p.Hash, block, err)
	if err != nil {
		return receipt, err
	}
	return receipt, nil
}

// ExpectRevert sends a transaction that must revert. With a non-empty
// reason the revert reason must match it exactly. A revert caught by gas
// estimation counts: the transaction would revert deterministically.
func (iv *Invoker) ExpectRevert(ctx context.Context, inst *Instance, method, reason string, args ...any) (*RevertOutcome, error) {
	receipt, err := iv.Transact(ctx, inst, method, args...)
	if err == nil {
		return nil, &Error{Kind: KindRevert, Op: InvocationSend, Contract: inst.Name, Method: method, TxHash: receipt.TxHash, Err: ErrExpectedRevert}
	}

	got, ok := IsRevert(err)
	if !ok {
		return nil, err
	}
	if reason != "" && got != reason {
		return nil, &Error{
			Kind:     KindRevert,
			Op:       InvocationSend,
			Contract: inst.Name,
			Method:   method,
			Err:      ErrRevertMismatch,
			Cause:    fmt.Errorf("want %q, got %q", reason, got),
		}
	}

	outcome := &RevertOutcome{Reason: got, Receipt: receipt}
	if receipt != nil {
		outcome.TxHash = receipt.TxHash
	}
	return outcome, nil
}

// Invoke dispatches on state mutability: view and pure methods are called,
// everything else is sent as a transaction.
func (iv *Invoker) Invoke(ctx context.Context, inst *Instance, method string, args ...any) (*Result, error) {
	if !inst.Confirmed() {
		return nil, &Error{Kind: KindProtocol, Op: "invoke", Contract: inst.label(), Method: method, Err: ErrNotConfirmed}
	}
	m, err := inst.Method(method)
	if err != nil {
		return nil, err
	}

	if m.IsConstant() {
		values, err := iv.Call(ctx, inst, method, args...)
		if err != nil {
			return nil, err
		}
		return &Result{Method: m.Name, ReadOnly: true, Values: values}, nil
	}

	receipt, err := iv.Transact(ctx, inst, method, args...)
	if err != nil {
		return nil, err
	}
	return &Result{Method: m.Name, Receipt: receipt}, nil
}

func (iv *Invoker) record(ctx context.Context, inst *Instance, method, kind string, tx common.Hash, block uint64, err error) {
	status, reason := invocationStatus(err)
	iv.e.recordInvocation(ctx, InvocationRecord{
		Contract:     inst.Name,
		Address:      inst.Address,
		Method:       method,
		Kind:         kind,
		TxHash:       tx,
		Status:       status,
		RevertReason: reason,
		Block:        block,
	})
}

// ParseMethodArgs converts string arguments to the input types of method
func ParseMethodArgs(inst *Instance, method string, raw []string) ([]any, error) {
	m, err := inst.Method(method)
	if err != nil {
		return nil, err
	}
	args, err := ParseArgs(m.Inputs, raw)
	if err != nil {
		return nil, &Error{Kind: KindResolution, Op: "invoke", Contract: inst.Name, Method: m.Name, Err: err}
	}
	return args, nil
}
