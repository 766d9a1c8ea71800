package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/contracts"
	"github.com/pendergraft/contraharness/internal/ledger"
	"github.com/pendergraft/contraharness/internal/ledger/ledgertest"
	"github.com/pendergraft/contraharness/internal/nftgame/nftgametest"
	"github.com/pendergraft/contraharness/internal/signer"
)

// Hardhat's first dev account
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastOptions() Options {
	return Options{
		Confirmations:    1,
		PollInterval:     2 * time.Millisecond,
		Timeout:          time.Second,
		FallbackGasLimit: 3_000_000,
		CodeCheck:        true,
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	states := make([]State, len(l.events))
	for i, ev := range l.events {
		states[i] = ev.State
	}
	return states
}

type memRecorder struct {
	deployments []DeploymentRecord
	invocations []InvocationRecord
}

func (r *memRecorder) RecordDeployment(_ context.Context, rec DeploymentRecord) error {
	r.deployments = append(r.deployments, rec)
	return nil
}

func (r *memRecorder) RecordInvocation(_ context.Context, rec InvocationRecord) error {
	r.invocations = append(r.invocations, rec)
	return nil
}

type fixture struct {
	ledger   *ledgertest.Ledger
	signer   *signer.LocalSigner
	deployer *Deployer
	invoker  *Invoker
	out      *bytes.Buffer
	events   *eventLog
	recorder *memRecorder
}

type fixtureConfig struct {
	ledgerOpts []ledgertest.Option
	opts       Options
	extra      []*contracts.Definition
	templates  []ledgertest.Template
	// wrap decorates the client, e.g. with the retrying wrapper
	wrap func(ledger.Client) ledger.Client
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()
	if cfg.opts == (Options{}) {
		cfg.opts = fastOptions()
	}

	fake := nftgametest.NewLedger(cfg.ledgerOpts...)
	for _, tmpl := range cfg.templates {
		fake.Register(tmpl)
	}
	var client ledger.Client = fake
	if cfg.wrap != nil {
		client = cfg.wrap(fake)
	}

	s, err := signer.NewLocalSigner(devKey, big.NewInt(ledgertest.DefaultChainID))
	require.NoError(t, err)

	f := &fixture{
		ledger:   fake,
		signer:   s,
		out:      &bytes.Buffer{},
		events:   &eventLog{},
		recorder: &memRecorder{},
	}
	deps := Deps{
		Client:    client,
		Registry:  nftgametest.Registry(cfg.extra...),
		Signer:    s,
		Logger:    discardLogger(),
		Observers: []Observer{f.events},
		Recorder:  f.recorder,
		Out:       f.out,
	}
	f.deployer = NewDeployer(deps, cfg.opts)
	f.invoker = NewInvoker(deps, cfg.opts)
	return f
}

func (f *fixture) deployGame(t *testing.T) *Instance {
	t.Helper()
	inst, err := f.deployer.Deploy(context.Background(), nftgametest.Name)
	require.NoError(t, err)
	return inst
}

// estimation failing without revert data forces the fallback gas limit
var errTestEstimateUnsupported = errors.New("method eth_estimateGas not supported")

// a contract whose constructor always reverts
var brokenInit = []byte{0xde, 0xad, 0xbe, 0xef}

func brokenDefinition(t *testing.T) *contracts.Definition {
	t.Helper()
	def, err := contracts.NewDefinition(brokenArtifact())
	require.NoError(t, err)
	return def
}

func brokenArtifact() *chains.Artifact {
	return &chains.Artifact{
		Name:       "Broken",
		SourcePath: "contracts/Broken.sol",
		ABI:        []byte(`[{"type":"constructor","inputs":[],"stateMutability":"nonpayable"}]`),
		Bytecode:   hexutil.Encode(brokenInit),
	}
}

func brokenTemplate() ledgertest.Template {
	return ledgertest.Template{
		InitCode:    brokenInit,
		RuntimeCode: []byte{0x00},
		Constructor: func(env *ledgertest.Env, args []byte) error {
			return ledgertest.Revert("Broken: constructor disabled")
		},
	}
}

func devAddress(t *testing.T) common.Address {
	t.Helper()
	key, err := crypto.HexToECDSA(devKey)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}
