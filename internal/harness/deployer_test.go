package harness

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/contracts"
	"github.com/pendergraft/contraharness/internal/ledger/ledgertest"
	"github.com/pendergraft/contraharness/internal/nftgame/nftgametest"
)

func TestDeploy_PrintsAddressLine(t *testing.T) {
	f := newFixture(t, fixtureConfig{})

	inst := f.deployGame(t)

	want := crypto.CreateAddress(devAddress(t), 0)
	assert.Equal(t, want, inst.Address)
	assert.NotEqual(t, common.Address{}, inst.Address)
	assert.True(t, inst.Confirmed())
	assert.Equal(t, uint64(1), inst.Block)
	assert.Equal(t, fmt.Sprintf("NFTGame deployed to: %s\n", want.Hex()), f.out.String())

	require.NotNil(t, inst.CodeMatch)
	assert.Equal(t, chains.MatchFull, inst.CodeMatch.MatchType)
}

func TestDeploy_DistinctAddresses(t *testing.T) {
	f := newFixture(t, fixtureConfig{})

	first := f.deployGame(t)
	second := f.deployGame(t)

	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.TxHash, second.TxHash)
	assert.Equal(t, 2, f.ledger.Calls("eth_sendRawTransaction"))
}

func TestDeploy_ResolutionErrors(t *testing.T) {
	abstract, err := contracts.NewDefinition(&chains.Artifact{
		Name:     "IGame",
		ABI:      []byte(nftgametest.ABI),
		Bytecode: "0x",
	})
	require.NoError(t, err)

	tests := []struct {
		name     string
		contract string
		args     []any
		wantErr  error
	}{
		{"unknown contract", "Missing", nil, ErrUnknownContract},
		{"interface", "IGame", nil, ErrNotDeployable},
		{"unexpected arguments", nftgametest.Name, []any{big.NewInt(1)}, ErrInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureConfig{extra: []*contracts.Definition{abstract}})

			inst, err := f.deployer.Deploy(context.Background(), tt.contract, tt.args...)
			require.Error(t, err)
			assert.Nil(t, inst)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, KindResolution, KindOf(err))

			// Nothing reached the ledger
			assert.Equal(t, 0, f.ledger.TotalCalls())
			assert.Empty(t, f.out.String())
		})
	}
}

func TestDeploy_RevertCaughtByEstimate(t *testing.T) {
	f := newFixture(t, fixtureConfig{
		extra:     []*contracts.Definition{brokenDefinition(t)},
		templates: []ledgertest.Template{brokenTemplate()},
	})

	_, err := f.deployer.Deploy(context.Background(), "Broken")
	require.Error(t, err)

	reason, ok := IsRevert(err)
	require.True(t, ok)
	assert.Equal(t, "Broken: constructor disabled", reason)
	assert.ErrorIs(t, err, ErrReverted)
	assert.Equal(t, 0, f.ledger.Calls("eth_sendRawTransaction"))
	assert.Empty(t, f.out.String())

	// Observers still see the revert as the terminal transition
	assert.Equal(t, []State{StateConstructed, StateReverted}, f.events.states())
	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, "Broken", last.Contract)
	assert.ErrorIs(t, last.Err, ErrReverted)
}

func TestDeploy_RevertOnChainReplaysReason(t *testing.T) {
	f := newFixture(t, fixtureConfig{
		extra:     []*contracts.Definition{brokenDefinition(t)},
		templates: []ledgertest.Template{brokenTemplate()},
	})
	// Estimation fails without revert data, so the transaction goes out
	// with the fallback limit and reverts on chain.
	f.ledger.SetEstimateError(errors.New("gas required exceeds allowance (30000000)"))

	_, err := f.deployer.Deploy(context.Background(), "Broken")
	require.Error(t, err)

	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindRevert, herr.Kind)
	assert.Equal(t, "Broken: constructor disabled", herr.Reason)
	assert.NotEqual(t, common.Hash{}, herr.TxHash)
	assert.Contains(t, err.Error(), "Broken: constructor disabled")

	assert.Equal(t, 1, f.ledger.Calls("eth_sendRawTransaction"))
	assert.Contains(t, f.events.states(), StateReverted)
	assert.Empty(t, f.out.String())
	assert.Empty(t, f.recorder.deployments)
}

func TestDeploy_EstimateFallbackUsesConfiguredLimit(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.ledger.SetEstimateError(errTestEstimateUnsupported)

	pending, err := f.deployer.Submit(context.Background(), nftgametest.Name)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000_000), pending.Tx.Gas())

	inst, err := pending.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pending.Address, inst.Address)
}

func TestDeploy_GasHeadroom(t *testing.T) {
	f := newFixture(t, fixtureConfig{})

	pending, err := f.deployer.Submit(context.Background(), nftgametest.Name)
	require.NoError(t, err)
	assert.Equal(t, uint64(ledgertest.DefaultGasEstimate*6/5), pending.Tx.Gas())
	assert.Equal(t, uint8(types.LegacyTxType), pending.Tx.Type())
}

func TestDeploy_LifecycleEvents(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	f.deployGame(t)

	assert.Equal(t, []State{
		StateConstructed,
		StateSubmitted,
		StatePending,
		StateMined,
		StateConfirmed,
	}, f.events.states())
}

func TestDeploy_RecordsJournalEntry(t *testing.T) {
	opts := fastOptions()
	opts.ReleaseLabel = "1.0.0"
	f := newFixture(t, fixtureConfig{opts: opts})

	inst := f.deployGame(t)

	require.Len(t, f.recorder.deployments, 1)
	rec := f.recorder.deployments[0]
	assert.Equal(t, "NFTGame", rec.Contract)
	assert.Equal(t, int64(ledgertest.DefaultChainID), rec.ChainID)
	assert.Equal(t, inst.Address, rec.Address)
	assert.Equal(t, devAddress(t), rec.Deployer)
	assert.Equal(t, inst.TxHash, rec.TxHash)
	assert.Equal(t, "1.0.0", rec.ReleaseLabel)
	assert.Equal(t, chains.MatchFull, rec.CodeMatch)
	assert.Empty(t, rec.Args)
}

func TestDeploy_ManualMining(t *testing.T) {
	opts := fastOptions()
	opts.Confirmations = 2
	f := newFixture(t, fixtureConfig{opts: opts, ledgerOpts: []ledgertest.Option{ledgertest.WithManualMining()}})
	ctx := context.Background()

	pending, err := f.deployer.Submit(ctx, nftgametest.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.PendingCount())

	// No code before the block is mined
	code, err := f.ledger.CodeAt(ctx, pending.Address, nil)
	require.NoError(t, err)
	assert.Empty(t, code)

	f.ledger.Mine()
	f.ledger.Advance(1)

	inst, err := pending.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending.Address, inst.Address)
	assert.Equal(t, uint64(1), inst.Block)
}

func TestAt(t *testing.T) {
	f := newFixture(t, fixtureConfig{})
	deployed := f.deployGame(t)
	ctx := context.Background()

	inst, err := f.deployer.At(ctx, nftgametest.Name, deployed.Address)
	require.NoError(t, err)
	assert.True(t, inst.Confirmed())
	assert.Equal(t, deployed.Address, inst.Address)
	assert.Equal(t, common.Hash{}, inst.TxHash)

	_, err = f.deployer.At(ctx, nftgametest.Name, common.HexToAddress("0x1234"))
	assert.ErrorIs(t, err, ErrNoCode)
	assert.Equal(t, KindProtocol, KindOf(err))

	_, err = f.deployer.At(ctx, "Missing", deployed.Address)
	assert.ErrorIs(t, err, ErrUnknownContract)
}

func TestParseConstructorArgs(t *testing.T) {
	f := newFixture(t, fixtureConfig{})

	args, err := f.deployer.ParseConstructorArgs(nftgametest.Name, nil)
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = f.deployer.ParseConstructorArgs(nftgametest.Name, []string{"1"})
	assert.ErrorIs(t, err, ErrInvalidArguments)
	assert.Equal(t, KindResolution, KindOf(err))
}
