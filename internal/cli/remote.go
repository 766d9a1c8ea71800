package cli

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraharness/internal/harness"
	"github.com/pendergraft/contraharness/pkg/client"
)

// remoteJournal records harness activity on a journal server
type remoteJournal struct {
	client *client.Client
}

var _ harness.Recorder = remoteJournal{}

func (r remoteJournal) RecordDeployment(ctx context.Context, rec harness.DeploymentRecord) error {
	req := client.DeploymentRequest{
		Contract:     rec.Contract,
		ChainID:      rec.ChainID,
		Address:      rec.Address.Hex(),
		TxHash:       hexOrEmpty(rec.TxHash),
		BlockNumber:  int64(rec.Block),
		Args:         rec.Args,
		ReleaseLabel: rec.ReleaseLabel,
		CodeMatch:    rec.CodeMatch,
	}
	if rec.Deployer != (common.Address{}) {
		req.DeployerAddress = rec.Deployer.Hex()
	}
	_, err := r.client.RecordDeployment(ctx, req)
	if client.IsConflict(err) {
		return nil
	}
	return err
}

func (r remoteJournal) RecordInvocation(ctx context.Context, rec harness.InvocationRecord) error {
	return r.client.RecordInvocation(ctx, rec.ChainID, rec.Address.Hex(), client.Invocation{
		Method:       rec.Method,
		Kind:         rec.Kind,
		Status:       rec.Status,
		TxHash:       hexOrEmpty(rec.TxHash),
		RevertReason: rec.RevertReason,
		BlockNumber:  int64(rec.Block),
	})
}

func hexOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
