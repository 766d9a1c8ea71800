//go:build e2e

package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/nftgame/nftgametest"
	"github.com/pendergraft/contraharness/pkg/client"
)

// TestHarness_RecordsIntoPostgres deploys and exercises NFTGame with the
// Postgres journal as recorder, then reads the records over HTTP.
func TestHarness_RecordsIntoPostgres(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	game, err := h.deployer.Deploy(ctx, nftgametest.Name)
	require.NoError(t, err)

	_, err = h.invoker.Call(ctx, game, "getHashes")
	require.NoError(t, err)

	opponent := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	_, err = h.invoker.Transact(ctx, game, "createLobby", opponent, common.Big1)
	require.NoError(t, err)

	outcome, err := h.invoker.ExpectRevert(ctx, game, "createLobby", nftgametest.ReasonSelfChallenge, h.signer.Address(), common.Big0)
	require.NoError(t, err)
	assert.Equal(t, nftgametest.ReasonSelfChallenge, outcome.Reason)

	c := newClient("")

	d, err := c.GetDeployment(ctx, h.chainID, game.Address.Hex())
	require.NoError(t, err)
	assert.Equal(t, nftgametest.Name, d.ContractName)
	assert.Equal(t, strings.ToLower(h.signer.Address().Hex()), d.DeployerAddress)
	assert.Equal(t, "1.0.0", d.ReleaseLabel)
	assert.Equal(t, "full", d.CodeMatch)
	assert.NotEmpty(t, d.TxHash)
	assert.Positive(t, d.BlockNumber)

	invs, err := c.ListInvocations(ctx, h.chainID, game.Address.Hex())
	require.NoError(t, err)
	require.Len(t, invs.Data, 3)

	assert.Equal(t, "getHashes", invs.Data[0].Method)
	assert.Equal(t, "call", invs.Data[0].Kind)
	assert.Equal(t, "ok", invs.Data[0].Status)

	assert.Equal(t, "createLobby", invs.Data[1].Method)
	assert.Equal(t, "send", invs.Data[1].Kind)
	assert.Equal(t, "ok", invs.Data[1].Status)
	assert.NotEmpty(t, invs.Data[1].TxHash)

	assert.Equal(t, "reverted", invs.Data[2].Status)
	assert.Equal(t, nftgametest.ReasonSelfChallenge, invs.Data[2].RevertReason)
}

// TestHarness_LatestAcrossDeploys checks that the newest release wins
// regardless of deploy order.
func TestHarness_LatestAcrossDeploys(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.deployer.Deploy(ctx, nftgametest.Name)
	require.NoError(t, err)
	second, err := h.deployer.Deploy(ctx, nftgametest.Name)
	require.NoError(t, err)
	require.NotEqual(t, first.Address, second.Address)

	// Both carry 1.0.0; a later 1.0.1 recorded by hand must win
	recordDeployment(t, client.DeploymentRequest{
		Contract:     nftgametest.Name,
		ChainID:      h.chainID,
		Address:      randomAddress(t),
		ReleaseLabel: "1.0.1",
	})

	latest, err := newClient("").LatestDeployment(ctx, nftgametest.Name, h.chainID)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", latest.ReleaseLabel)

	resp, err := newClient("").ListDeployments(ctx, client.ListOptions{ChainID: h.chainID})
	require.NoError(t, err)
	assert.Len(t, resp.Data, 3)
}
