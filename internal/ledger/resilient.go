package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds retries of network errors
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when a policy has no attempts configured
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 250 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// ResilientOptions configures a Resilient client
type ResilientOptions struct {
	RequestTimeout time.Duration
	RequestsPerSec int
	Burst          int
	Retry          RetryPolicy
	OnRetry        func(method string)
}

// ErrNoSlotBeforeDeadline is returned when the rate limiter cannot grant a
// request before the context deadline. It matches context.DeadlineExceeded.
var ErrNoSlotBeforeDeadline = fmt.Errorf("no request slot before deadline: %w", context.DeadlineExceeded)

// Resilient wraps a Client with outbound rate limiting, a per-request
// timeout and bounded exponential-backoff retries of network errors.
type Resilient struct {
	next    Client
	limiter *rate.Limiter
	timeout time.Duration
	policy  RetryPolicy
	onRetry func(method string)
	logger  *slog.Logger
}

// NewResilient wraps next
func NewResilient(next Client, opts ResilientOptions, logger *slog.Logger) *Resilient {
	policy := opts.Retry
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSec > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), burst)
	}

	return &Resilient{
		next:    next,
		limiter: limiter,
		timeout: opts.RequestTimeout,
		policy:  policy,
		onRetry: opts.OnRetry,
		logger:  logger,
	}
}

func (r *Resilient) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.policy.MaxAttempts-1)), ctx)
}

// do runs call until it succeeds, fails permanently, or retries are exhausted
func (r *Resilient) do(ctx context.Context, method string, call func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return backoff.Permanent(ctxErr)
				}
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrNoSlotBeforeDeadline, err))
			}
		}

		reqCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		err := call(reqCtx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		if !IsNetworkError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if r.onRetry != nil {
			r.onRetry(method)
		}
		r.logger.Warn("rpc request failed, retrying",
			"method", method,
			"attempt", attempts,
			"max_attempts", r.policy.MaxAttempts,
			"retry_in", next,
			"error", err)
	}

	err := backoff.RetryNotify(operation, r.newBackOff(ctx), notify)
	if err == nil {
		if attempts > 1 {
			r.logger.Info("rpc request succeeded after retry", "method", method, "attempts", attempts)
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	if errors.Is(err, ErrNoSlotBeforeDeadline) {
		return err
	}
	if IsNetworkError(err) {
		return &NetworkError{Method: method, Attempts: attempts, Err: err}
	}
	return err
}

// ChainID returns the chain id served by the node
func (r *Resilient) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := r.do(ctx, "eth_chainId", func(ctx context.Context) (err error) {
		id, err = r.next.ChainID(ctx)
		return err
	})
	return id, err
}

// BlockNumber returns the current head
func (r *Resilient) BlockNumber(ctx context.Context) (uint64, error) {
	var n uint64
	err := r.do(ctx, "eth_blockNumber", func(ctx context.Context) (err error) {
		n, err = r.next.BlockNumber(ctx)
		return err
	})
	return n, err
}

// PendingNonceAt returns the next nonce for account, including pending transactions
func (r *Resilient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := r.do(ctx, "eth_getTransactionCount", func(ctx context.Context) (err error) {
		nonce, err = r.next.PendingNonceAt(ctx, account)
		return err
	})
	return nonce, err
}

// SuggestGasPrice returns the node's gas price suggestion
func (r *Resilient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := r.do(ctx, "eth_gasPrice", func(ctx context.Context) (err error) {
		price, err = r.next.SuggestGasPrice(ctx)
		return err
	})
	return price, err
}

// EstimateGas estimates the gas needed by msg
func (r *Resilient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := r.do(ctx, "eth_estimateGas", func(ctx context.Context) (err error) {
		gas, err = r.next.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// SendTransaction submits a signed transaction. A transaction the node
// already knows counts as submitted.
func (r *Resilient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return r.do(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		err := r.next.SendTransaction(ctx, tx)
		if IsAlreadyKnown(err) {
			r.logger.Debug("transaction already known to node", "tx", tx.Hash())
			return nil
		}
		return err
	})
}

// TransactionReceipt returns the receipt, or ethereum.NotFound while pending
func (r *Resilient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := r.do(ctx, "eth_getTransactionReceipt", func(ctx context.Context) (err error) {
		receipt, err = r.next.TransactionReceipt(ctx, txHash)
		return err
	})
	return receipt, err
}

// CallContract executes a read-only call
func (r *Resilient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := r.do(ctx, "eth_call", func(ctx context.Context) (err error) {
		out, err = r.next.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

// CodeAt returns the runtime code at account
func (r *Resilient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	var code []byte
	err := r.do(ctx, "eth_getCode", func(ctx context.Context) (err error) {
		code, err = r.next.CodeAt(ctx, account, blockNumber)
		return err
	})
	return code, err
}
