//go:build e2e

package e2e

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/pkg/client"
)

// TestJournal_RecordAndGet records a deployment and reads it back
func TestJournal_RecordAndGet(t *testing.T) {
	ctx := context.Background()
	chainID := uniqueChainID(t)
	address := randomAddress(t)
	deployer := randomAddress(t)

	resp := recordDeployment(t, client.DeploymentRequest{
		Contract:        "NFTGame",
		ChainID:         chainID,
		Address:         address,
		DeployerAddress: deployer,
		TxHash:          "0x" + strings.Repeat("ab", 32),
		BlockNumber:     42,
		ReleaseLabel:    "v1.0.0",
		CodeMatch:       "full",
	})
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, chainID, resp.ChainID)

	c := newClient("")

	t.Run("get by checksummed address", func(t *testing.T) {
		d, err := c.GetDeployment(ctx, chainID, address)
		require.NoError(t, err)
		assert.Equal(t, "NFTGame", d.ContractName)
		assert.Equal(t, strings.ToLower(address), d.Address)
		assert.Equal(t, strings.ToLower(deployer), d.DeployerAddress)
		assert.Equal(t, int64(42), d.BlockNumber)
		assert.Equal(t, "1.0.0", d.ReleaseLabel, "leading v is stripped")
		assert.Equal(t, "full", d.CodeMatch)
		assert.NotEmpty(t, d.CreatedAt)
	})

	t.Run("get by lowercase address", func(t *testing.T) {
		d, err := c.GetDeployment(ctx, chainID, strings.ToLower(address))
		require.NoError(t, err)
		assert.Equal(t, resp.ID, d.ID)
	})

	t.Run("same address on another chain is a different deployment", func(t *testing.T) {
		_, err := c.GetDeployment(ctx, chainID+1, address)
		assert.True(t, client.IsNotFound(err), "got %v", err)
	})

	t.Run("recording twice conflicts", func(t *testing.T) {
		_, err := newClient(testAPIKey).RecordDeployment(ctx, client.DeploymentRequest{
			Contract: "NFTGame",
			ChainID:  chainID,
			Address:  strings.ToLower(address),
		})
		assert.True(t, client.IsConflict(err), "got %v", err)
		assertHTTPError(t, err, "ALREADY_EXISTS")
	})
}

// TestJournal_Validation checks that malformed records are rejected
func TestJournal_Validation(t *testing.T) {
	ctx := context.Background()
	c := newClient(testAPIKey)

	tests := []struct {
		name string
		req  client.DeploymentRequest
	}{
		{"bad address", client.DeploymentRequest{Contract: "NFTGame", ChainID: 1, Address: "0x1234"}},
		{"missing contract", client.DeploymentRequest{ChainID: 1, Address: randomAddress(t)}},
		{"zero chain", client.DeploymentRequest{Contract: "NFTGame", Address: randomAddress(t)}},
		{"bad release", client.DeploymentRequest{Contract: "NFTGame", ChainID: 1, Address: randomAddress(t), ReleaseLabel: "latest"}},
		{"bad tx hash", client.DeploymentRequest{Contract: "NFTGame", ChainID: 1, Address: randomAddress(t), TxHash: "0xabc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.RecordDeployment(ctx, tt.req)
			assertHTTPError(t, err, "INVALID_REQUEST")
		})
	}
}

// TestJournal_ListAndPaginate lists deployments with filters and cursors
func TestJournal_ListAndPaginate(t *testing.T) {
	ctx := context.Background()
	chainID := uniqueChainID(t)

	for _, label := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		recordDeployment(t, client.DeploymentRequest{
			Contract:     "NFTGame",
			ChainID:      chainID,
			Address:      randomAddress(t),
			ReleaseLabel: label,
		})
	}
	recordDeployment(t, client.DeploymentRequest{Contract: "Token", ChainID: chainID, Address: randomAddress(t)})

	c := newClient("")

	t.Run("filter by contract", func(t *testing.T) {
		resp, err := c.ListDeployments(ctx, client.ListOptions{Contract: "NFTGame", ChainID: chainID})
		require.NoError(t, err)
		assert.Len(t, resp.Data, 3)
		for _, d := range resp.Data {
			assert.Equal(t, "NFTGame", d.ContractName)
		}
	})

	t.Run("filter by release", func(t *testing.T) {
		resp, err := c.ListDeployments(ctx, client.ListOptions{ChainID: chainID, ReleaseLabel: "1.1.0"})
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "1.1.0", resp.Data[0].ReleaseLabel)
	})

	t.Run("pages cover every deployment once", func(t *testing.T) {
		seen := make(map[string]bool)
		opts := client.ListOptions{ChainID: chainID, Limit: 3}
		for {
			resp, err := c.ListDeployments(ctx, opts)
			require.NoError(t, err)
			for _, d := range resp.Data {
				assert.False(t, seen[d.Address], "duplicate %s", d.Address)
				seen[d.Address] = true
			}
			if !resp.Pagination.HasMore {
				break
			}
			opts.Cursor = resp.Pagination.NextCursor
		}
		assert.Len(t, seen, 4)
	})

	t.Run("invalid cursor", func(t *testing.T) {
		_, err := c.ListDeployments(ctx, client.ListOptions{ChainID: chainID, Cursor: "not-a-cursor"})
		assertHTTPError(t, err, "INVALID_REQUEST")
	})
}

// TestJournal_Latest returns the highest stable release label
func TestJournal_Latest(t *testing.T) {
	ctx := context.Background()
	chainID := uniqueChainID(t)

	want := randomAddress(t)
	recordDeployment(t, client.DeploymentRequest{Contract: "NFTGame", ChainID: chainID, Address: randomAddress(t), ReleaseLabel: "1.0.0"})
	recordDeployment(t, client.DeploymentRequest{Contract: "NFTGame", ChainID: chainID, Address: want, ReleaseLabel: "1.10.0"})
	recordDeployment(t, client.DeploymentRequest{Contract: "NFTGame", ChainID: chainID, Address: randomAddress(t), ReleaseLabel: "1.9.0"})
	recordDeployment(t, client.DeploymentRequest{Contract: "NFTGame", ChainID: chainID, Address: randomAddress(t), ReleaseLabel: "2.0.0-rc.1"})
	recordDeployment(t, client.DeploymentRequest{Contract: "NFTGame", ChainID: chainID, Address: randomAddress(t)})

	c := newClient("")
	d, err := c.LatestDeployment(ctx, "NFTGame", chainID)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(want), d.Address)
	assert.Equal(t, "1.10.0", d.ReleaseLabel)

	_, err = c.LatestDeployment(ctx, "Unknown", chainID)
	assert.True(t, client.IsNotFound(err), "got %v", err)
}

// TestJournal_Invocations records invocations and lists them oldest first
func TestJournal_Invocations(t *testing.T) {
	ctx := context.Background()
	chainID := uniqueChainID(t)
	address := randomAddress(t)
	recordDeployment(t, client.DeploymentRequest{Contract: "NFTGame", ChainID: chainID, Address: address})

	w := newClient(testAPIKey)
	require.NoError(t, w.RecordInvocation(ctx, chainID, address, client.Invocation{
		Method: "getHashes",
		Kind:   "call",
		Status: "ok",
	}))
	require.NoError(t, w.RecordInvocation(ctx, chainID, address, client.Invocation{
		Method:       "createLobby",
		Kind:         "send",
		Status:       "reverted",
		TxHash:       "0x" + strings.Repeat("cd", 32),
		RevertReason: "NFTGame: cannot challenge yourself",
		BlockNumber:  7,
	}))

	resp, err := newClient("").ListInvocations(ctx, chainID, address)
	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "getHashes", resp.Data[0].Method)
	assert.Equal(t, "call", resp.Data[0].Kind)
	assert.Equal(t, "createLobby", resp.Data[1].Method)
	assert.Equal(t, "reverted", resp.Data[1].Status)
	assert.Equal(t, "NFTGame: cannot challenge yourself", resp.Data[1].RevertReason)
	assert.Equal(t, int64(7), resp.Data[1].BlockNumber)

	t.Run("unknown kind is rejected", func(t *testing.T) {
		err := w.RecordInvocation(ctx, chainID, address, client.Invocation{Method: "getHashes", Kind: "delegatecall", Status: "ok"})
		assertHTTPError(t, err, "INVALID_REQUEST")
	})
}
