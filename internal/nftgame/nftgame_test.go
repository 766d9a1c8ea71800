package nftgame

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/harness"
	"github.com/pendergraft/contraharness/internal/nftgame/nftgametest"
	"github.com/pendergraft/contraharness/internal/signer"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func setup(t *testing.T) (*harness.Deployer, *harness.Invoker, *bytes.Buffer, common.Address) {
	t.Helper()
	s, err := signer.NewLocalSigner(devKey, big.NewInt(31337))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	deps := harness.Deps{
		Client:   nftgametest.NewLedger(),
		Registry: nftgametest.Registry(),
		Signer:   s,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Out:      out,
	}
	opts := harness.DefaultOptions()
	opts.PollInterval = 2 * time.Millisecond
	return harness.NewDeployer(deps, opts), harness.NewInvoker(deps, opts), out, s.Address()
}

func TestGame(t *testing.T) {
	d, iv, out, self := setup(t)
	ctx := context.Background()

	game, err := Deploy(ctx, d, iv)
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, game.Address())
	assert.Equal(t, "NFTGame deployed to: "+game.Address().Hex()+"\n", out.String())

	hashes, err := game.GetHashes(ctx)
	require.NoError(t, err)
	assert.Empty(t, hashes)

	receipt, err := game.CreateLobby(ctx, common.Address{}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	hashes, err = game.GetHashes(ctx)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	assert.Equal(t, nftgametest.LobbyHash(self, common.Address{}, new(big.Int), 0), hashes[0])

	_, err = game.CreateLobby(ctx, self, big.NewInt(1))
	reason, ok := harness.IsRevert(err)
	require.True(t, ok)
	assert.Equal(t, nftgametest.ReasonSelfChallenge, reason)
}

func TestGame_UnconfirmedInstance(t *testing.T) {
	_, iv, _, _ := setup(t)

	game := New(&harness.Instance{}, iv)
	_, err := game.GetHashes(context.Background())
	assert.True(t, errors.Is(err, harness.ErrNotConfirmed))
}
