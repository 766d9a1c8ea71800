package harness

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraharness/internal/contracts"
	"github.com/pendergraft/contraharness/internal/ledger"
)

// Kind classifies a harness failure
type Kind string

// Error kinds
const (
	// KindResolution covers unknown contracts, unknown methods and arguments
	// that do not fit the ABI. Never retried.
	KindResolution Kind = "resolution"
	// KindNetwork is a transport failure that outlived the retry budget
	KindNetwork Kind = "network"
	// KindRevert is chain-logic failure: the transaction or call reverted
	KindRevert Kind = "revert"
	// KindRejected is a node refusing a transaction (nonce, funds, fee)
	KindRejected Kind = "rejected"
	// KindTimeout means confirmation did not arrive in time. The
	// transaction may still be mined later.
	KindTimeout Kind = "timeout"
	// KindCancelled means the caller's context ended the wait
	KindCancelled Kind = "cancelled"
	// KindProtocol is misuse of the harness, such as calling through an
	// instance that is not confirmed
	KindProtocol Kind = "protocol"
)

// Sentinel errors
var (
	ErrUnknownContract     = contracts.ErrUnknownContract
	ErrNotDeployable       = contracts.ErrNotDeployable
	ErrUnknownMethod       = errors.New("unknown method")
	ErrInvalidArguments    = errors.New("invalid arguments")
	ErrReverted            = errors.New("execution reverted")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrNotConfirmed        = errors.New("instance is not confirmed")
	ErrExpectedRevert      = errors.New("expected revert, transaction succeeded")
	ErrRevertMismatch      = errors.New("revert reason mismatch")
	ErrNetwork             = ledger.ErrNetwork
)

// Error is a classified failure of a deploy or invocation
type Error struct {
	Kind     Kind
	Op       string // "deploy", "call", "send"
	Contract string
	Method   string
	TxHash   common.Hash
	Reason   string // revert reason, when the ledger supplied one
	Err      error  // sentinel or verbatim cause
	Cause    error  // underlying error when Err is a sentinel
}

func (e *Error) Error() string {
	target := e.Contract
	if e.Method != "" {
		target += "." + e.Method
	}
	msg := e.Op + " " + target + ": " + e.Err.Error()
	if e.Kind == KindRevert && e.Reason != "" {
		msg += ": " + e.Reason
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.TxHash != (common.Hash{}) {
		msg += fmt.Sprintf(" (tx %s)", e.TxHash.Hex())
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	errs := []error{e.Err}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// KindOf returns the kind of a harness error, or "" for other errors
func KindOf(err error) Kind {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return ""
}

// IsRevert reports whether err is a revert and returns its reason
func IsRevert(err error) (string, bool) {
	var herr *Error
	if errors.As(err, &herr) && herr.Kind == KindRevert {
		return herr.Reason, true
	}
	return "", false
}
