package harness

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// State is a transaction lifecycle state
type State string

// Lifecycle states. Confirmed, Reverted, TimedOut and Failed are terminal.
const (
	StateConstructed State = "constructed"
	StateSubmitted   State = "submitted"
	StatePending     State = "pending"
	StateMined       State = "mined"
	StateConfirmed   State = "confirmed"
	StateReverted    State = "reverted"
	StateTimedOut    State = "timed_out"
	StateFailed      State = "failed"
)

// Terminal reports whether no further transitions follow
func (s State) Terminal() bool {
	switch s {
	case StateConfirmed, StateReverted, StateTimedOut, StateFailed:
		return true
	}
	return false
}

// Event is one lifecycle transition
type Event struct {
	Op       string // "deploy" or "send"
	Contract string
	Method   string
	TxHash   common.Hash
	State    State
	Block    uint64
	Elapsed  time.Duration // since submission
	Err      error
}

// Observer receives lifecycle transitions. Implementations must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

// Observe calls f
func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}

// LogObserver logs every transition at debug level and terminal failures at warn
type LogObserver struct {
	Logger *slog.Logger
}

// Observe implements Observer
func (o LogObserver) Observe(ev Event) {
	attrs := []any{
		"op", ev.Op,
		"contract", ev.Contract,
		"state", ev.State,
	}
	if ev.Method != "" {
		attrs = append(attrs, "method", ev.Method)
	}
	if ev.TxHash != (common.Hash{}) {
		attrs = append(attrs, "tx", ev.TxHash.Hex())
	}
	if ev.Block != 0 {
		attrs = append(attrs, "block", ev.Block)
	}
	if ev.Elapsed > 0 {
		attrs = append(attrs, "elapsed", ev.Elapsed)
	}

	switch ev.State {
	case StateReverted, StateTimedOut, StateFailed:
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		o.Logger.Warn("transaction did not confirm", attrs...)
	case StateConfirmed:
		o.Logger.Info("transaction confirmed", attrs...)
	default:
		o.Logger.Debug("transaction state changed", attrs...)
	}
}
