// Package ledger provides the capability set the harness needs from a ledger
// node, and a production implementation over JSON-RPC.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrChainIDMismatch is returned when the node serves a different chain than configured
var ErrChainIDMismatch = errors.New("chain id mismatch")

// Client is the set of ledger operations used by the harness.
// *ethclient.Client satisfies it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Options configures a dialled client
type Options struct {
	URL            string
	ChainID        int64 // 0 accepts the node's chain id
	RequestTimeout time.Duration
	RequestsPerSec int
	Burst          int
	Retry          RetryPolicy
	OnRetry        func(method string)
}

// Conn is a dialled ledger connection
type Conn struct {
	*Resilient
	chainID *big.Int
	rpc     *ethclient.Client
}

// ChainIDValue returns the verified chain id of the connection
func (c *Conn) ChainIDValue() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Close closes the underlying RPC connection
func (c *Conn) Close() {
	c.rpc.Close()
}

// Dial connects to a node, wraps it with retry and rate limiting, and checks
// that it serves the configured chain.
func Dial(ctx context.Context, opts Options, logger *slog.Logger) (*Conn, error) {
	rpcClient, err := ethclient.DialContext(ctx, opts.URL)
	if err != nil {
		return nil, &NetworkError{Method: "dial", Err: err}
	}

	resilient := NewResilient(rpcClient, ResilientOptions{
		RequestTimeout: opts.RequestTimeout,
		RequestsPerSec: opts.RequestsPerSec,
		Burst:          opts.Burst,
		Retry:          opts.Retry,
		OnRetry:        opts.OnRetry,
	}, logger)

	chainID, err := resilient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("reading chain id from %s: %w", opts.URL, err)
	}
	if opts.ChainID != 0 && chainID.Cmp(big.NewInt(opts.ChainID)) != 0 {
		rpcClient.Close()
		return nil, fmt.Errorf("%w: configured %d, node reports %s", ErrChainIDMismatch, opts.ChainID, chainID)
	}

	logger.Debug("connected to ledger", "url", opts.URL, "chain_id", chainID)
	return &Conn{Resilient: resilient, chainID: chainID, rpc: rpcClient}, nil
}
