package metrics

import (
	"context"

	"github.com/pendergraft/contraharness/internal/harness"
)

// Observer counts terminal transaction states and confirmation latency
type Observer struct{}

var _ harness.Observer = Observer{}

// Observe implements harness.Observer.
func (Observer) Observe(ev harness.Event) {
	if !enabled || !ev.State.Terminal() {
		return
	}
	transactionsTotal.WithLabelValues(ev.Op, ev.Contract, string(ev.State)).Inc()
	if ev.State == harness.StateConfirmed && ev.Elapsed > 0 {
		confirmationSeconds.WithLabelValues(ev.Op).Observe(ev.Elapsed.Seconds())
	}
}

// RPCRetry records a retried ledger request. It matches the ledger OnRetry hook.
func RPCRetry(method string) {
	if !enabled {
		return
	}
	rpcRetriesTotal.WithLabelValues(method).Inc()
}

// Recorder counts invocations before handing records to Next, which may be nil.
type Recorder struct {
	Next harness.Recorder
}

var _ harness.Recorder = Recorder{}

// RecordDeployment implements harness.Recorder.
func (r Recorder) RecordDeployment(ctx context.Context, rec harness.DeploymentRecord) error {
	if r.Next == nil {
		return nil
	}
	return r.Next.RecordDeployment(ctx, rec)
}

// RecordInvocation implements harness.Recorder.
func (r Recorder) RecordInvocation(ctx context.Context, rec harness.InvocationRecord) error {
	if enabled {
		invocationsTotal.WithLabelValues(rec.Contract, rec.Method, rec.Kind, rec.Status).Inc()
	}
	if r.Next == nil {
		return nil
	}
	return r.Next.RecordInvocation(ctx, rec)
}
