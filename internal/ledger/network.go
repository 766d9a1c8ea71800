package ledger

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrNetwork matches every NetworkError via errors.Is
var ErrNetwork = errors.New("network error")

// NetworkError is a transport failure that persisted through all retries.
// The underlying error is kept verbatim.
type NetworkError struct {
	Method   string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return e.Method + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is reports ErrNetwork as a match
func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// Patterns of transport errors worth retrying
var recoverablePatterns = []string{
	"connection reset by peer",
	"connection refused",
	"temporary failure",
	"network is unreachable",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
	"no such host",
	"connection timed out",
	"dial tcp",
	"unexpected eof",
	"server closed idle connection",
	"too many requests",
}

// IsNetworkError reports whether err is a transient transport failure.
// Node-side rejections (reverts, nonce errors, unknown receipts) are not.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.HasSuffix(msg, ": eof") || msg == "eof" {
		return true
	}
	for _, pattern := range recoverablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsAlreadyKnown reports whether a send failed only because the node already
// has the transaction in its pool.
func IsAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
