package domain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraharness/internal/harness"
)

// Journal records harness activity through the deployment service
type Journal struct {
	svc Service
}

var _ harness.Recorder = (*Journal)(nil)

// NewJournal creates a recorder backed by svc
func NewJournal(svc Service) *Journal {
	return &Journal{svc: svc}
}

// RecordDeployment implements harness.Recorder
func (j *Journal) RecordDeployment(ctx context.Context, rec harness.DeploymentRecord) error {
	req := RecordRequest{
		Contract:     rec.Contract,
		ChainID:      rec.ChainID,
		Address:      rec.Address.Hex(),
		TxHash:       hashString(rec.TxHash),
		BlockNumber:  int64(rec.Block),
		Args:         rec.Args,
		ReleaseLabel: rec.ReleaseLabel,
		CodeMatch:    rec.CodeMatch,
	}
	if rec.Deployer != (common.Address{}) {
		req.DeployerAddress = rec.Deployer.Hex()
	}
	_, err := j.svc.Record(ctx, req)
	// A redeploy on a reset dev chain can reuse an address
	if errors.Is(err, ErrAlreadyRecorded) {
		return nil
	}
	return err
}

// RecordInvocation implements harness.Recorder
func (j *Journal) RecordInvocation(ctx context.Context, rec harness.InvocationRecord) error {
	_, err := j.svc.RecordInvocation(ctx, InvocationRequest{
		ChainID:      rec.ChainID,
		Address:      rec.Address.Hex(),
		Method:       rec.Method,
		Kind:         rec.Kind,
		TxHash:       hashString(rec.TxHash),
		Status:       rec.Status,
		RevertReason: rec.RevertReason,
		BlockNumber:  int64(rec.Block),
	})
	return err
}

func hashString(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
