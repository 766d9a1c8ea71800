package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/config"
)

// defaultConfigFile is the project config looked up in the working directory
const defaultConfigFile = "contraharness.toml"

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	RPCURL    string      `toml:"rpc_url,omitempty"`
	ChainID   int64       `toml:"chain_id,omitempty"`
	KeyFile   string      `toml:"key_file,omitempty"`
	Project   string      `toml:"project,omitempty"`
	Builder   string      `toml:"builder,omitempty"`
	Contracts []string    `toml:"contracts,omitempty"`
	Exclude   []string    `toml:"exclude,omitempty"`
	Confirm   ConfirmTOML `toml:"confirm,omitempty"`
	Journal   JournalTOML `toml:"journal,omitempty"`
}

// ConfirmTOML overrides the confirmation wait
type ConfirmTOML struct {
	Confirmations  int `toml:"confirmations,omitempty"`
	TimeoutSec     int `toml:"timeout,omitempty"`
	PollIntervalMs int `toml:"poll_interval_ms,omitempty"`
}

// JournalTOML selects the journal backend
type JournalTOML struct {
	Storage    string `toml:"storage,omitempty"`
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// DiscoverOptions returns the include and exclude lists for artifact discovery
func (p *ProjectConfig) DiscoverOptions() chains.DiscoverOptions {
	if p == nil {
		return chains.DiscoverOptions{}
	}
	return chains.DiscoverOptions{Contracts: p.Contracts, Exclude: p.Exclude}
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a contraharness.toml configuration file in the current directory.

The file holds the network endpoint, the artifact location and the
confirmation settings. Private keys are never written to it.

EXAMPLES:
  # Create config for a local node
  contraharness config init

  # Create config for another endpoint
  contraharness config init --rpc-url https://rpc.example.com --chain-id 11155111

  # Overwrite existing config
  contraharness config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigFile
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	url := "http://127.0.0.1:8545"
	if rpcURL != "" {
		url = rpcURL
	}
	dir := "."
	if projectDir != "" {
		dir = projectDir
	}

	content := fmt.Sprintf(`# contraharness project configuration

rpc_url = %q
chain_id = %d
project = %q
# builder = "hardhat"

# Private keys are read from PRIVATE_KEY or a key file, never from this file
# key_file = "~/.secrets/deployer.key"

# Contracts to load (empty = all project contracts)
# contracts = ["NFTGame"]
exclude = ["Test", "Mock"]

[confirm]
confirmations = 1
timeout = 120
poll_interval_ms = 1000

[journal]
storage = "sqlite"
sqlite_path = "./data/contraharness.db"
`, url, chainID, dir)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)
	return nil
}

func runConfigShow(cmd *cobra.Command) error {
	cfg, project, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	source := "(none)"
	if path, ok := projectConfigPath(); ok {
		source = path
	}

	key := "(not set)"
	if cfg.Network.PrivateKey != "" {
		key = maskSecret(cfg.Network.PrivateKey)
	} else if cfg.Network.KeyFile != "" {
		key = "file " + cfg.Network.KeyFile
	}
	apiKey := "(not set)"
	if cfg.Server.APIKey != "" {
		apiKey = maskSecret(cfg.Server.APIKey)
	}

	fmt.Fprintf(out, "Project config:  %s\n", source)
	fmt.Fprintf(out, "RPC URL:         %s\n", cfg.Network.RPCURL)
	fmt.Fprintf(out, "Chain ID:        %s\n", chainIDLabel(cfg.Network.ChainID))
	fmt.Fprintf(out, "Signing key:     %s\n", key)
	fmt.Fprintf(out, "Project dir:     %s\n", cfg.Project.Dir)
	fmt.Fprintf(out, "Builder:         %s\n", orDefault(cfg.Project.Builder, "auto-detect"))
	if project != nil && len(project.Contracts) > 0 {
		fmt.Fprintf(out, "Contracts:       %v\n", project.Contracts)
	}
	if project != nil && len(project.Exclude) > 0 {
		fmt.Fprintf(out, "Exclude:         %v\n", project.Exclude)
	}
	fmt.Fprintf(out, "Confirmations:   %d\n", cfg.Confirm.Confirmations)
	fmt.Fprintf(out, "Confirm timeout: %s\n", cfg.Confirm.ConfirmTimeout())
	fmt.Fprintf(out, "Poll interval:   %s\n", cfg.Confirm.PollInterval())
	fmt.Fprintf(out, "Journal:         %s\n", journalLabel(cfg.Storage))
	fmt.Fprintf(out, "Server API key:  %s\n", apiKey)

	return nil
}

// loadConfig layers the environment, the project TOML and changed flags
func loadConfig(cmd *cobra.Command) (*config.Config, *ProjectConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	project, err := loadProjectConfig()
	if err != nil {
		return nil, nil, err
	}
	if project != nil {
		applyProjectConfig(cfg, project)
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, project, nil
}

func applyProjectConfig(cfg *config.Config, p *ProjectConfig) {
	if p.RPCURL != "" {
		cfg.Network.RPCURL = p.RPCURL
	}
	if p.ChainID != 0 {
		cfg.Network.ChainID = p.ChainID
	}
	if p.KeyFile != "" {
		cfg.Network.KeyFile = p.KeyFile
	}
	if p.Project != "" {
		cfg.Project.Dir = p.Project
	}
	if p.Builder != "" {
		cfg.Project.Builder = p.Builder
	}
	if p.Confirm.Confirmations != 0 {
		cfg.Confirm.Confirmations = p.Confirm.Confirmations
	}
	if p.Confirm.TimeoutSec != 0 {
		cfg.Confirm.TimeoutSec = p.Confirm.TimeoutSec
	}
	if p.Confirm.PollIntervalMs != 0 {
		cfg.Confirm.PollIntervalMs = p.Confirm.PollIntervalMs
	}
	if p.Journal.Storage != "" {
		cfg.Storage.Type = p.Journal.Storage
	}
	if p.Journal.SQLitePath != "" {
		cfg.Storage.SQLite.Path = p.Journal.SQLitePath
	}
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("rpc-url") {
		cfg.Network.RPCURL = rpcURL
	}
	if flags.Changed("chain-id") {
		cfg.Network.ChainID = chainID
	}
	if flags.Changed("key-file") {
		cfg.Network.KeyFile = keyFile
		cfg.Network.PrivateKey = ""
	}
	if flags.Changed("project") {
		cfg.Project.Dir = projectDir
	}
	if flags.Changed("builder") {
		cfg.Project.Builder = builderName
	}
	if flags.Changed("confirmations") {
		cfg.Confirm.Confirmations = confirmations
	}
	if flags.Changed("timeout") {
		cfg.Confirm.TimeoutSec = int(timeout.Round(time.Second) / time.Second)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
}

// projectConfigPath returns the --config path or the default file if it exists
func projectConfigPath() (string, bool) {
	if cfgFile != "" {
		return cfgFile, true
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, true
	}
	return "", false
}

// loadProjectConfig returns nil when no project config exists. An explicit
// --config path that cannot be read is an error.
func loadProjectConfig() (*ProjectConfig, error) {
	path, ok := projectConfigPath()
	if !ok {
		return nil, nil
	}
	p, err := loadProjectConfigFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && cfgFile == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return p, nil
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p ProjectConfig
	if _, err := toml.Decode(string(data), &p); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &p, nil
}

// maskSecret keeps the first six and last four characters of a secret
func maskSecret(s string) string {
	if len(s) <= 12 {
		return "****"
	}
	return s[:6] + "..." + s[len(s)-4:]
}

func chainIDLabel(id int64) string {
	if id == 0 {
		return "(any)"
	}
	return fmt.Sprintf("%d", id)
}

func journalLabel(s config.StorageConfig) string {
	if s.Type == "postgres" {
		return "postgres"
	}
	return "sqlite " + s.SQLite.Path
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
