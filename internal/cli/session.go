package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pendergraft/contraharness/internal/config"
	"github.com/pendergraft/contraharness/internal/contracts"
	deploymentsDomain "github.com/pendergraft/contraharness/internal/deployments/domain"
	"github.com/pendergraft/contraharness/internal/harness"
	"github.com/pendergraft/contraharness/internal/ledger"
	"github.com/pendergraft/contraharness/internal/observability/metrics"
	"github.com/pendergraft/contraharness/internal/signer"
	"github.com/pendergraft/contraharness/internal/storage"
	"github.com/pendergraft/contraharness/internal/validation"
	"github.com/pendergraft/contraharness/pkg/client"
)

// dialLedger connects to the configured network. It returns the client, the
// chain id transactions are signed for and a close function.
var dialLedger = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ledger.Client, *big.Int, func(), error) {
	conn, err := ledger.Dial(ctx, ledger.Options{
		URL:            cfg.Network.RPCURL,
		ChainID:        cfg.Network.ChainID,
		RequestTimeout: cfg.Network.Timeout(),
		RequestsPerSec: cfg.Network.RequestsPerSec,
		Burst:          cfg.Network.Burst,
		Retry: ledger.RetryPolicy{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			InitialInterval: time.Duration(cfg.Retry.InitialIntervalMs) * time.Millisecond,
			MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMs) * time.Millisecond,
		},
		OnRetry: metrics.RPCRetry,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return conn, conn.ChainIDValue(), conn.Close, nil
}

// promptKey reads a private key from the terminal without echo
var promptKey = func() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", signer.ErrNoKey
	}
	fmt.Fprint(os.Stderr, "Private key: ")
	key, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading key: %w", err)
	}
	if strings.TrimSpace(string(key)) == "" {
		return "", signer.ErrNoKey
	}
	return strings.TrimSpace(string(key)), nil
}

// session holds everything a command needs to talk to the network
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *contracts.Registry
	client   ledger.Client
	signer   *signer.LocalSigner
	deployer *harness.Deployer
	invoker  *harness.Invoker

	closers []func()
}

// openSession loads the registry, runs preflight against it, acquires the
// signing key and dials the network, in that order. Nothing is sent until
// all of them succeed.
func openSession(cmd *cobra.Command, preflight func(*contracts.Registry) error) (*session, error) {
	cfg, project, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if release != "" {
		if err := validation.ValidateReleaseLabel(release); err != nil {
			return nil, err
		}
	}
	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())

	s := &session{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	s.registry, err = loadRegistry(cfg, project, logger)
	if err != nil {
		return nil, err
	}
	if preflight != nil {
		if err := preflight(s.registry); err != nil {
			return nil, err
		}
	}

	key, err := acquireKey(cfg)
	if err != nil {
		return nil, err
	}

	conn, id, closeFn, err := dialLedger(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Network.RPCURL, err)
	}
	s.client = conn
	s.closers = append(s.closers, closeFn)

	s.signer, err = signer.NewLocalSigner(key, id)
	if err != nil {
		return nil, err
	}

	recorder := metrics.Recorder{}
	switch {
	case record && cfg.Journal.URL != "":
		recorder.Next = remoteJournal{client: client.New(cfg.Journal.URL, cfg.Journal.APIKey)}
		logger.Debug("recording to journal server", "url", cfg.Journal.URL)
	case record:
		journal, closeStore, err := openJournal(cmd.Context(), cfg, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, closeStore)
		recorder.Next = journal
	}

	deps := harness.Deps{
		Client:    s.client,
		Registry:  s.registry,
		Signer:    s.signer,
		Logger:    logger,
		Observers: []harness.Observer{harness.LogObserver{Logger: logger}, metrics.Observer{}},
		Recorder:  recorder,
		Out:       cmd.OutOrStdout(),
	}
	opts := harness.Options{
		Confirmations:    cfg.Confirm.Confirmations,
		PollInterval:     cfg.Confirm.PollInterval(),
		Timeout:          cfg.Confirm.ConfirmTimeout(),
		FallbackGasLimit: cfg.Confirm.FallbackGasLimit,
		CodeCheck:        cfg.Confirm.CodeCheck,
		ReleaseLabel:     release,
	}
	s.deployer = harness.NewDeployer(deps, opts)
	s.invoker = harness.NewInvoker(deps, opts)

	logger.Debug("session ready", "signer", s.signer.Address().Hex(), "chain_id", id, "contracts", len(s.registry.List()))
	ok = true
	return s, nil
}

// Close releases the ledger connection and the journal, newest first
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if s.closers[i] != nil {
			s.closers[i]()
		}
	}
	s.closers = nil
}

// resolveAll fails with a resolution error for the first name that cannot be deployed
func resolveAll(names ...string) func(*contracts.Registry) error {
	return func(r *contracts.Registry) error {
		for _, name := range names {
			if _, err := r.Resolve(name); err != nil {
				return &harness.Error{Kind: harness.KindResolution, Op: "deploy", Contract: name, Err: err}
			}
		}
		return nil
	}
}

func loadRegistry(cfg *config.Config, project *ProjectConfig, logger *slog.Logger) (*contracts.Registry, error) {
	registry, err := contracts.Load(contracts.LoadOptions{
		Dir:      cfg.Project.Dir,
		Builder:  cfg.Project.Builder,
		Discover: project.DiscoverOptions(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("loading contracts from %s: %w", cfg.Project.Dir, err)
	}
	return registry, nil
}

func acquireKey(cfg *config.Config) (string, error) {
	key, err := signer.LoadKey(cfg.Network.PrivateKey, cfg.Network.KeyFile)
	if errors.Is(err, signer.ErrNoKey) {
		key, err = promptKey()
	}
	if err != nil {
		if errors.Is(err, signer.ErrNoKey) {
			return "", fmt.Errorf("%w (set PRIVATE_KEY or --key-file)", err)
		}
		return "", err
	}
	return key, nil
}

// openStore opens and migrates the configured journal backend
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deploymentsDomain.Journal, func(), error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	journal := deploymentsDomain.NewJournal(deploymentsDomain.NewService(store))
	return journal, func() { store.Close() }, nil
}
