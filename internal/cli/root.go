package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	projectDir    string
	builderName   string
	rpcURL        string
	chainID       int64
	keyFile       string
	confirmations int
	timeout       time.Duration
	record        bool
	release       string
	logLevel      string
)

// Execute runs the CLI
func Execute(ctx context.Context, version string) error {
	return newRootCmd(version).ExecuteContext(ctx)
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contraharness",
		Short: "Deploy and exercise EVM contracts",
		Long: `Contraharness deploys compiled contracts to an EVM network, invokes their
methods and verifies scenarios against fresh deployments.

Settings are read from the environment, then from contraharness.toml, then
from command line flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: contraharness.toml)")
	pf.StringVar(&projectDir, "project", "", "project directory holding build artifacts")
	pf.StringVar(&builderName, "builder", "", "build tool: hardhat or foundry (default: auto-detect)")
	pf.StringVar(&rpcURL, "rpc-url", "", "JSON-RPC endpoint")
	pf.Int64Var(&chainID, "chain-id", 0, "expected chain id (0 accepts the node's)")
	pf.StringVar(&keyFile, "key-file", "", "file holding the hex private key")
	pf.IntVar(&confirmations, "confirmations", 0, "blocks to wait for after inclusion")
	pf.DurationVar(&timeout, "timeout", 0, "confirmation timeout (e.g. 90s)")
	pf.BoolVar(&record, "record", false, "record deployments and invocations in the journal")
	pf.StringVar(&release, "release", "", "semver release label for recorded deployments")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createInvokeCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createContractsCmd())
	rootCmd.AddCommand(createDeploymentsCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}
