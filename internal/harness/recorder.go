package harness

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Invocation kinds
const (
	InvocationCall = "call"
	InvocationSend = "send"
)

// Invocation statuses
const (
	StatusOK       = "ok"
	StatusReverted = "reverted"
	StatusFailed   = "failed"
)

// DeploymentRecord describes a confirmed deployment for the journal
type DeploymentRecord struct {
	Contract     string
	ChainID      int64
	Address      common.Address
	Deployer     common.Address
	TxHash       common.Hash
	Block        uint64
	Args         []string
	ReleaseLabel string
	CodeMatch    string
}

// InvocationRecord describes a call or transaction against an instance
type InvocationRecord struct {
	Contract     string
	ChainID      int64
	Address      common.Address
	Method       string
	Kind         string
	TxHash       common.Hash
	Status       string
	RevertReason string
	Block        uint64
}

// Recorder persists deployments and invocations. Failures to record are
// logged and never fail the run.
type Recorder interface {
	RecordDeployment(ctx context.Context, rec DeploymentRecord) error
	RecordInvocation(ctx context.Context, rec InvocationRecord) error
}

func (e *engine) recordDeployment(ctx context.Context, rec DeploymentRecord) {
	if e.recorder == nil {
		return
	}
	rec.ChainID = e.signer.ChainID().Int64()
	if err := e.recorder.RecordDeployment(ctx, rec); err != nil {
		e.logger.Warn("failed to record deployment", "contract", rec.Contract, "address", rec.Address.Hex(), "error", err)
	}
}

func (e *engine) recordInvocation(ctx context.Context, rec InvocationRecord) {
	if e.recorder == nil {
		return
	}
	rec.ChainID = e.signer.ChainID().Int64()
	if err := e.recorder.RecordInvocation(ctx, rec); err != nil {
		e.logger.Warn("failed to record invocation", "contract", rec.Contract, "method", rec.Method, "error", err)
	}
}

// invocationStatus maps an invocation error to a journal status
func invocationStatus(err error) (string, string) {
	if err == nil {
		return StatusOK, ""
	}
	if reason, ok := IsRevert(err); ok {
		return StatusReverted, reason
	}
	return StatusFailed, ""
}
