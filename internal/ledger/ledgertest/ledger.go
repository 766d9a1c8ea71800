// Package ledgertest provides an in-memory ledger implementing ledger.Client
// for deterministic tests: contracts are Go handlers, mining is automatic or
// manual, and network faults can be injected per method.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultChainID is the chain id used when none is given
const DefaultChainID = 31337

// DefaultGasEstimate is returned by EstimateGas for calls that do not revert
const DefaultGasEstimate = 150_000

// Env is what a handler sees while executing
type Env struct {
	Address  common.Address
	Caller   common.Address
	Value    *big.Int
	Block    uint64
	ReadOnly bool
	// Storage survives across calls unless the call reverts. Handlers must
	// replace values rather than mutate them in place.
	Storage map[string]any
}

// Handler executes calldata against a contract
type Handler func(env *Env, input []byte) ([]byte, error)

// Constructor runs once at creation with the ABI-encoded constructor arguments
type Constructor func(env *Env, args []byte) error

// Template binds creation bytecode to the contract it creates
type Template struct {
	InitCode    []byte
	RuntimeCode []byte
	Constructor Constructor
	Handler     Handler
}

type contract struct {
	code    []byte
	handler Handler
	storage map[string]any
}

type pendingTx struct {
	tx   *types.Transaction
	from common.Address
}

// Ledger is an in-memory ledger. The zero value is not usable; call New.
type Ledger struct {
	mu sync.Mutex

	chainID   *big.Int
	signer    types.Signer
	head      uint64
	autoMine  bool
	gasPrice  *big.Int
	templates []Template

	nonces    map[common.Address]uint64
	contracts map[common.Address]*contract
	pending   []pendingTx
	known     map[common.Hash]bool
	receipts  map[common.Hash]*types.Receipt

	faults map[string][]error
	calls  map[string]int

	estimateErr error
}

// Option configures a Ledger
type Option func(*Ledger)

// WithChainID sets the chain id
func WithChainID(id int64) Option {
	return func(l *Ledger) {
		l.chainID = big.NewInt(id)
	}
}

// WithManualMining keeps submitted transactions pending until Mine is called
func WithManualMining() Option {
	return func(l *Ledger) {
		l.autoMine = false
	}
}

// New creates a ledger at block 0
func New(opts ...Option) *Ledger {
	l := &Ledger{
		chainID:   big.NewInt(DefaultChainID),
		autoMine:  true,
		gasPrice:  big.NewInt(1_000_000_000),
		nonces:    make(map[common.Address]uint64),
		contracts: make(map[common.Address]*contract),
		known:     make(map[common.Hash]bool),
		receipts:  make(map[common.Hash]*types.Receipt),
		faults:    make(map[string][]error),
		calls:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.signer = types.LatestSignerForChainID(l.chainID)
	return l
}

// Register adds a contract template matched by creation bytecode prefix
func (l *Ledger) Register(t Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates = append(l.templates, t)
}

// FailNext makes the next len(errs) calls of method fail with the given errors
func (l *Ledger) FailNext(method string, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[method] = append(l.faults[method], errs...)
}

// SetEstimateError makes EstimateGas fail with err (nil clears it)
func (l *Ledger) SetEstimateError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.estimateErr = err
}

// Calls returns how many times a method was invoked, faults included
func (l *Ledger) Calls(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// TotalCalls returns the number of invocations across all methods
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.calls {
		total += n
	}
	return total
}

// Head returns the current block number
func (l *Ledger) Head() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.head
}

// PendingCount returns the number of submitted but unmined transactions
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Storage returns a copy of a contract's storage
func (l *Ledger) Storage(addr common.Address) map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[addr]
	if !ok {
		return nil
	}
	return copyStorage(c.storage)
}

// Mine includes all pending transactions in a new block and returns its number
func (l *Ledger) Mine() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mineLocked()
}

// Advance mines n empty blocks
func (l *Ledger) Advance(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < n; i++ {
		l.head++
	}
}

// enter records a call and returns an injected fault, if any
func (l *Ledger) enter(method string) error {
	l.calls[method]++
	if errs := l.faults[method]; len(errs) > 0 {
		l.faults[method] = errs[1:]
		return errs[0]
	}
	return nil
}

// ChainID implements ledger.Client
func (l *Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_chainId"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.chainID), nil
}

// BlockNumber implements ledger.Client
func (l *Ledger) BlockNumber(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_blockNumber"); err != nil {
		return 0, err
	}
	return l.head, nil
}

// PendingNonceAt implements ledger.Client
func (l *Ledger) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_getTransactionCount"); err != nil {
		return 0, err
	}
	return l.nonces[account], nil
}

// SuggestGasPrice implements ledger.Client
func (l *Ledger) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_gasPrice"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(l.gasPrice), nil
}

// EstimateGas implements ledger.Client. Calls that revert return the revert
// error with its data, as nodes do.
func (l *Ledger) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_estimateGas"); err != nil {
		return 0, err
	}
	if l.estimateErr != nil {
		return 0, l.estimateErr
	}

	if msg.To == nil {
		tmpl, args := l.match(msg.Data)
		if tmpl != nil && tmpl.Constructor != nil {
			env := &Env{Caller: msg.From, Value: msg.Value, Block: l.head + 1, ReadOnly: true, Storage: map[string]any{}}
			if err := tmpl.Constructor(env, args); err != nil {
				return 0, asRevert(err)
			}
		}
		return DefaultGasEstimate, nil
	}

	if _, err := l.execute(msg.From, *msg.To, msg.Value, msg.Data, true); err != nil {
		return 0, err
	}
	return DefaultGasEstimate, nil
}

// SendTransaction implements ledger.Client
func (l *Ledger) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_sendRawTransaction"); err != nil {
		return err
	}

	if l.known[tx.Hash()] {
		return errors.New("already known")
	}
	if tx.ChainId().Cmp(l.chainID) != 0 {
		return fmt.Errorf("invalid chain id: have %s, want %s", tx.ChainId(), l.chainID)
	}
	from, err := types.Sender(l.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	expected := l.nonces[from]
	switch {
	case tx.Nonce() < expected:
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", expected, tx.Nonce())
	case tx.Nonce() > expected:
		return fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", expected, tx.Nonce())
	}

	l.nonces[from] = expected + 1
	l.known[tx.Hash()] = true
	l.pending = append(l.pending, pendingTx{tx: tx, from: from})

	if l.autoMine {
		l.mineLocked()
	}
	return nil
}

// TransactionReceipt implements ledger.Client. Unmined transactions return
// ethereum.NotFound.
func (l *Ledger) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	receipt, ok := l.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	cp := *receipt
	return &cp, nil
}

// CallContract implements ledger.Client. State changes are discarded.
func (l *Ledger) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_call"); err != nil {
		return nil, err
	}
	if msg.To == nil {
		// Creation calls run the constructor and return the runtime code
		tmpl, args := l.match(msg.Data)
		if tmpl == nil {
			return common.CopyBytes(msg.Data), nil
		}
		if tmpl.Constructor != nil {
			env := &Env{Caller: msg.From, Value: msg.Value, Block: l.head, ReadOnly: true, Storage: map[string]any{}}
			if err := tmpl.Constructor(env, args); err != nil {
				return nil, asRevert(err)
			}
		}
		return common.CopyBytes(tmpl.RuntimeCode), nil
	}
	return l.execute(msg.From, *msg.To, msg.Value, msg.Data, true)
}

// CodeAt implements ledger.Client
func (l *Ledger) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter("eth_getCode"); err != nil {
		return nil, err
	}
	c, ok := l.contracts[account]
	if !ok {
		return nil, nil
	}
	return common.CopyBytes(c.code), nil
}

func (l *Ledger) mineLocked() uint64 {
	l.head++
	block := l.head
	blockHash := crypto.Keccak256Hash(new(big.Int).SetUint64(block).Bytes(), l.chainID.Bytes())

	var cumulative uint64
	for i, p := range l.pending {
		receipt := &types.Receipt{
			Type:              p.tx.Type(),
			Status:            types.ReceiptStatusSuccessful,
			TxHash:            p.tx.Hash(),
			GasUsed:           21_000,
			EffectiveGasPrice: p.tx.GasPrice(),
			BlockHash:         blockHash,
			BlockNumber:       new(big.Int).SetUint64(block),
			TransactionIndex:  uint(i),
			Logs:              []*types.Log{},
		}

		var err error
		if p.tx.To() == nil {
			receipt.ContractAddress = crypto.CreateAddress(p.from, p.tx.Nonce())
			err = l.create(p.from, receipt.ContractAddress, p.tx.Value(), p.tx.Data(), block)
		} else {
			_, err = l.execute(p.from, *p.tx.To(), p.tx.Value(), p.tx.Data(), false)
		}
		if err != nil {
			receipt.Status = types.ReceiptStatusFailed
		}

		cumulative += receipt.GasUsed
		receipt.CumulativeGasUsed = cumulative
		l.receipts[receipt.TxHash] = receipt
	}
	l.pending = nil
	return block
}

// match finds the template whose init code prefixes data and returns the trailing arguments
func (l *Ledger) match(data []byte) (*Template, []byte) {
	for i := range l.templates {
		t := &l.templates[i]
		if len(data) >= len(t.InitCode) && string(data[:len(t.InitCode)]) == string(t.InitCode) {
			return t, data[len(t.InitCode):]
		}
	}
	return nil, nil
}

func (l *Ledger) create(from, addr common.Address, value *big.Int, data []byte, block uint64) error {
	c := &contract{code: common.CopyBytes(data), storage: map[string]any{}}

	if tmpl, args := l.match(data); tmpl != nil {
		c.code = common.CopyBytes(tmpl.RuntimeCode)
		c.handler = tmpl.Handler
		if tmpl.Constructor != nil {
			env := &Env{Address: addr, Caller: from, Value: value, Block: block, Storage: c.storage}
			if err := tmpl.Constructor(env, args); err != nil {
				return err
			}
		}
	}

	l.contracts[addr] = c
	return nil
}

func (l *Ledger) execute(from, to common.Address, value *big.Int, input []byte, readOnly bool) ([]byte, error) {
	c, ok := l.contracts[to]
	if !ok || c.handler == nil {
		// Calls to accounts without a handler succeed with empty output
		return nil, nil
	}

	env := &Env{
		Address:  to,
		Caller:   from,
		Value:    value,
		Block:    l.head,
		ReadOnly: readOnly,
		Storage:  copyStorage(c.storage),
	}
	out, err := c.handler(env, input)
	if err != nil {
		return nil, asRevert(err)
	}
	if !readOnly {
		c.storage = env.Storage
	}
	return out, nil
}

func copyStorage(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
