//go:build e2e

package e2e

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contraharness/internal/config"
	deploymentsDomain "github.com/pendergraft/contraharness/internal/deployments/domain"
	"github.com/pendergraft/contraharness/internal/harness"
	"github.com/pendergraft/contraharness/internal/ledger/ledgertest"
	"github.com/pendergraft/contraharness/internal/nftgame/nftgametest"
	"github.com/pendergraft/contraharness/internal/observability/metrics"
	"github.com/pendergraft/contraharness/internal/server"
	"github.com/pendergraft/contraharness/internal/signer"
	"github.com/pendergraft/contraharness/internal/storage"
	"github.com/pendergraft/contraharness/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// testAPIKey is the write key the in-process server accepts
const testAPIKey = "ch_key_e2e_0123456789abcdef"

// Hardhat's first dev account
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("contraharness"),
		postgres.WithUsername("contraharness"),
		postgres.WithPassword("contraharness"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the journal server in-process against Postgres
func startServerE(connString string) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:   8080,
			Host:   "0.0.0.0",
			APIKey: testAPIKey,
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
		},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Metrics:   config.MetricsConfig{Enabled: true},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	metrics.Init(cfg.Metrics.Enabled, "contraharness-e2e")
	srv := server.New(cfg, store, logger)

	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a journal client for the test server
func newClient(apiKey string) *client.Client {
	return client.New(testCtx.TestServer.URL, apiKey)
}

// randomAddress returns a fresh address so tests never collide on the shared database
func randomAddress(t *testing.T) string {
	t.Helper()
	var b [20]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	return common.BytesToAddress(b[:]).Hex()
}

// uniqueChainID returns a chain id no other test uses
func uniqueChainID(t *testing.T) int64 {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000_000))
	require.NoError(t, err)
	return 1_000_000 + n.Int64()
}

// recordDeployment records a deployment through the API and fails the test on error
func recordDeployment(t *testing.T, req client.DeploymentRequest) *client.RecordResponse {
	t.Helper()
	resp, err := newClient(testAPIKey).RecordDeployment(context.Background(), req)
	require.NoError(t, err, "Failed to record deployment")
	return resp
}

// testHarness is a deployer and invoker over an in-memory ledger on its own
// chain id, recording into the Postgres journal.
type testHarness struct {
	chainID  int64
	signer   *signer.LocalSigner
	deployer *harness.Deployer
	invoker  *harness.Invoker
}

// newHarness gives every caller a distinct chain so that deterministic
// contract addresses never collide in the shared database.
func newHarness(t *testing.T) *testHarness {
	t.Helper()
	chainID := uniqueChainID(t)
	s, err := signer.NewLocalSigner(devKey, big.NewInt(chainID))
	require.NoError(t, err)

	deps := harness.Deps{
		Client:   nftgametest.NewLedger(ledgertest.WithChainID(chainID)),
		Registry: nftgametest.Registry(),
		Signer:   s,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Recorder: deploymentsDomain.NewJournal(deploymentsDomain.NewService(testCtx.Store)),
		Out:      io.Discard,
	}
	opts := harness.Options{
		Confirmations:    1,
		PollInterval:     5 * time.Millisecond,
		Timeout:          5 * time.Second,
		FallbackGasLimit: 3_000_000,
		CodeCheck:        true,
		ReleaseLabel:     "1.0.0",
	}
	return &testHarness{
		chainID:  chainID,
		signer:   s,
		deployer: harness.NewDeployer(deps, opts),
		invoker:  harness.NewInvoker(deps, opts),
	}
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
