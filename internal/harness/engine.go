package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/contraharness/internal/contracts"
	"github.com/pendergraft/contraharness/internal/ledger"
	"github.com/pendergraft/contraharness/internal/signer"
)

// Resolver looks up contract definitions by name
type Resolver interface {
	Resolve(name string) (*contracts.Definition, error)
	Lookup(name string) (*contracts.Definition, error)
}

// TxSigner signs transactions and hands out nonces for its account
type TxSigner interface {
	signer.Signer
	NextNonce(ctx context.Context, src signer.NonceSource) (uint64, error)
	ResetNonce()
}

// Options tunes submission and confirmation
type Options struct {
	Confirmations    int
	PollInterval     time.Duration
	Timeout          time.Duration
	FallbackGasLimit uint64
	CodeCheck        bool
	ReleaseLabel     string
}

// DefaultOptions returns one confirmation, 1s polling and a 2 minute timeout
func DefaultOptions() Options {
	return Options{
		Confirmations:    1,
		PollInterval:     time.Second,
		Timeout:          2 * time.Minute,
		FallbackGasLimit: 6_000_000,
		CodeCheck:        true,
	}
}

// Deps are the collaborators injected into the Deployer and Invoker
type Deps struct {
	Client    ledger.Client
	Registry  Resolver
	Signer    TxSigner
	Logger    *slog.Logger
	Observers []Observer
	Recorder  Recorder // optional
	Out       io.Writer
}

// engine builds, signs, submits and waits for transactions
type engine struct {
	client    ledger.Client
	signer    TxSigner
	opts      Options
	logger    *slog.Logger
	observers []Observer
	recorder  Recorder
}

func newEngine(deps Deps, opts Options) *engine {
	def := DefaultOptions()
	if opts.Confirmations < 1 {
		opts.Confirmations = def.Confirmations
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.FallbackGasLimit == 0 {
		opts.FallbackGasLimit = def.FallbackGasLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &engine{
		client:    deps.Client,
		signer:    deps.Signer,
		opts:      opts,
		logger:    logger,
		observers: deps.Observers,
		recorder:  deps.Recorder,
	}
}

// txRequest describes a transaction before it is built
type txRequest struct {
	op       string
	contract string
	method   string
	to       *common.Address
	data     []byte
	value    *big.Int
	abi      *abi.ABI
}

func (r txRequest) event(state State) Event {
	return Event{Op: r.op, Contract: r.contract, Method: r.method, State: state}
}

func (r txRequest) fail(kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: r.op, Contract: r.contract, Method: r.method, Err: err}
}

// PendingTx is a submitted transaction awaiting confirmation
type PendingTx struct {
	Hash  common.Hash
	Tx    *types.Transaction
	From  common.Address
	Nonce uint64

	req         txRequest
	submittedAt time.Time
	e           *engine
}

func (e *engine) emit(ev Event) {
	for _, o := range e.observers {
		o.Observe(ev)
	}
}

// submit builds, signs and sends a transaction
func (e *engine) submit(ctx context.Context, req txRequest) (*PendingTx, error) {
	e.emit(req.event(StateConstructed))

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, e.abort(req, e.classify(ctx, req, err))
	}

	gas, err := e.estimate(ctx, req, gasPrice)
	if err != nil {
		return nil, e.abort(req, e.classify(ctx, req, err))
	}

	nonce, err := e.signer.NextNonce(ctx, e.client)
	if err != nil {
		return nil, e.abort(req, e.classify(ctx, req, err))
	}

	value := req.value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       req.to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.data,
	})
	signed, err := e.signer.SignTransaction(ctx, tx)
	if err != nil {
		e.signer.ResetNonce()
		return nil, e.abort(req, req.fail(KindRejected, err))
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		e.signer.ResetNonce()
		herr := e.classify(ctx, req, err)
		herr.TxHash = signed.Hash()
		ev := req.event(StateFailed)
		ev.TxHash, ev.Err = signed.Hash(), herr
		e.emit(ev)
		return nil, herr
	}

	p := &PendingTx{
		Hash:        signed.Hash(),
		Tx:          signed,
		From:        e.signer.Address(),
		Nonce:       nonce,
		req:         req,
		submittedAt: time.Now(),
		e:           e,
	}
	ev := req.event(StateSubmitted)
	ev.TxHash = p.Hash
	e.emit(ev)
	ev.State = StatePending
	e.emit(ev)
	return p, nil
}

// abort reports a transaction that failed before it reached the ledger
func (e *engine) abort(req txRequest, herr *Error) *Error {
	ev := req.event(StateFailed)
	if herr.Kind == KindRevert {
		ev.State = StateReverted
	}
	ev.Err = herr
	e.emit(ev)
	return herr
}

// estimate returns the gas limit. Reverting estimates fail the submission,
// other estimate failures fall back to the configured limit.
func (e *engine) estimate(ctx context.Context, req txRequest, gasPrice *big.Int) (uint64, error) {
	gas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     e.signer.Address(),
		To:       req.to,
		GasPrice: gasPrice,
		Value:    req.value,
		Data:     req.data,
	})
	if err == nil {
		return gas + gas/5, nil
	}
	if isRevertError(err) || ledger.IsNetworkError(err) || ctx.Err() != nil {
		return 0, e.classify(ctx, req, err)
	}

	e.logger.Warn("gas estimation failed, using fallback limit",
		"contract", req.contract,
		"method", req.method,
		"gas", e.opts.FallbackGasLimit,
		"error", err)
	return e.opts.FallbackGasLimit, nil
}

// classify maps a ledger error onto the harness taxonomy
func (e *engine) classify(ctx context.Context, req txRequest, err error) *Error {
	var herr *Error
	if errors.As(err, &herr) {
		return herr
	}
	switch {
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return req.fail(KindCancelled, err)
	case errors.Is(err, ledger.ErrNoSlotBeforeDeadline):
		return req.fail(KindCancelled, err)
	case isRevertError(err):
		rev := req.fail(KindRevert, ErrReverted)
		rev.Cause = err
		rev.Reason = revertReason(err, req.abi)
		return rev
	case ledger.IsNetworkError(err):
		return req.fail(KindNetwork, err)
	}
	return req.fail(KindRejected, err)
}

// Wait blocks until the transaction is confirmed, reverted, the timeout
// elapses or ctx is done. A reverted transaction returns its receipt along
// with a KindRevert error.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	e := p.e
	receipt, err := e.waitConfirmed(ctx, p)
	if err != nil {
		ev := p.req.event(StateFailed)
		if KindOf(err) == KindTimeout {
			ev.State = StateTimedOut
		}
		ev.TxHash, ev.Err, ev.Elapsed = p.Hash, err, time.Since(p.submittedAt)
		e.emit(ev)
		return nil, err
	}

	ev := p.req.event(StateConfirmed)
	ev.TxHash, ev.Block, ev.Elapsed = p.Hash, receipt.BlockNumber.Uint64(), time.Since(p.submittedAt)

	if receipt.Status == types.ReceiptStatusFailed {
		herr := p.req.fail(KindRevert, ErrReverted)
		herr.TxHash = p.Hash
		herr.Reason = e.replayReason(ctx, p, receipt)
		ev.State, ev.Err = StateReverted, herr
		e.emit(ev)
		return receipt, herr
	}

	e.emit(ev)
	return receipt, nil
}

// waitConfirmed polls for the receipt until it is buried under the
// configured number of confirmations.
func (e *engine) waitConfirmed(ctx context.Context, p *PendingTx) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	mined := false
	for {
		receipt, err := e.client.TransactionReceipt(waitCtx, p.Hash)
		switch {
		case err == nil:
			if !mined {
				mined = true
				ev := p.req.event(StateMined)
				ev.TxHash, ev.Block, ev.Elapsed = p.Hash, receipt.BlockNumber.Uint64(), time.Since(p.submittedAt)
				e.emit(ev)
			}
			head, err := e.client.BlockNumber(waitCtx)
			if err != nil {
				return nil, e.waitError(ctx, waitCtx, p, err)
			}
			if head+1 >= receipt.BlockNumber.Uint64()+uint64(e.opts.Confirmations) {
				return receipt, nil
			}
		case errors.Is(err, ethereum.NotFound):
			// still pending
		default:
			return nil, e.waitError(ctx, waitCtx, p, err)
		}

		select {
		case <-waitCtx.Done():
			return nil, e.waitError(ctx, waitCtx, p, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// waitError tells apart caller cancellation, our own timeout and network loss
func (e *engine) waitError(parent, waitCtx context.Context, p *PendingTx, err error) *Error {
	var herr *Error
	switch {
	case parent.Err() != nil:
		herr = p.req.fail(KindCancelled, parent.Err())
	case waitCtx.Err() != nil, errors.Is(err, ledger.ErrNoSlotBeforeDeadline):
		herr = p.req.fail(KindTimeout, ErrConfirmationTimeout)
		herr.Cause = fmt.Errorf("not confirmed after %s", e.opts.Timeout)
	case ledger.IsNetworkError(err):
		herr = p.req.fail(KindNetwork, err)
	default:
		herr = p.req.fail(KindRejected, err)
	}
	herr.TxHash = p.Hash
	return herr
}

// replayReason re-executes a reverted transaction as a call at its block to
// recover the revert reason. Returns "" when the ledger gives none.
func (e *engine) replayReason(ctx context.Context, p *PendingTx, receipt *types.Receipt) string {
	_, err := e.client.CallContract(ctx, ethereum.CallMsg{
		From:     p.From,
		To:       p.Tx.To(),
		Gas:      p.Tx.Gas(),
		GasPrice: p.Tx.GasPrice(),
		Value:    p.Tx.Value(),
		Data:     p.Tx.Data(),
	}, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	if !isRevertError(err) {
		e.logger.Debug("could not replay reverted transaction", "tx", p.Hash.Hex(), "error", err)
		return ""
	}
	return revertReason(err, p.req.abi)
}
