package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	deploymentsDomain "github.com/pendergraft/contraharness/internal/deployments/domain"
)

func createDeploymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployments",
		Short: "Inspect the deployment journal",
		Long: `Inspect deployments recorded with --record or through the HTTP API.

The journal is SQLite by default (SQLITE_PATH) or PostgreSQL when
DATABASE_URL is set.`,
	}

	cmd.AddCommand(createDeploymentsListCmd())
	cmd.AddCommand(createDeploymentsInfoCmd())
	cmd.AddCommand(createDeploymentsLatestCmd())

	return cmd
}

func createDeploymentsListCmd() *cobra.Command {
	var contract, label, cursor string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments",
		Long: `List recorded deployments, newest first.

EXAMPLES:
  contraharness deployments list
  contraharness deployments list --contract NFTGame --chain-id 31337
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentsList(cmd, contract, label, limit, cursor)
		},
	}

	cmd.Flags().StringVar(&contract, "contract", "", "filter by contract name")
	cmd.Flags().StringVar(&label, "label", "", "filter by release label")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of deployments")
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")

	return cmd
}

func createDeploymentsInfoCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "info <chain-id> <address>",
		Short: "Show a deployment and its invocations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid chain id %q", args[0])
			}
			return runDeploymentsInfo(cmd, id, args[1], limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of invocations")

	return cmd
}

func createDeploymentsLatestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "latest <contract>",
		Short: "Show the deployment with the highest release label",
		Long: `Show the deployment of a contract with the highest release label on the
chain selected by --chain-id (or CHAIN_ID).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploymentsLatest(cmd, args[0])
		},
	}
}

// openService opens the journal store behind the deployments service
func openService(cmd *cobra.Command) (deploymentsDomain.Service, int64, func(), error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, 0, nil, err
	}
	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())

	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, 0, nil, err
	}
	return deploymentsDomain.NewService(store), cfg.Network.ChainID, func() { store.Close() }, nil
}

func runDeploymentsList(cmd *cobra.Command, contract, label string, limit int, cursor string) error {
	svc, chain, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := svc.List(cmd.Context(), deploymentsDomain.ListFilter{
		Contract:     contract,
		ChainID:      chain,
		ReleaseLabel: label,
	}, deploymentsDomain.PaginationParams{Limit: limit, Cursor: cursor})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(result.Deployments) == 0 {
		fmt.Fprintln(out, "No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTRACT\tCHAIN\tADDRESS\tBLOCK\tRELEASE\tCREATED")
	for _, d := range result.Deployments {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n",
			d.ContractName, d.ChainID, d.Address, d.BlockNumber, orDefault(d.ReleaseLabel, "-"), d.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if result.HasMore {
		fmt.Fprintf(out, "\nMore results: --cursor %s\n", result.NextCursor)
	}
	return nil
}

func runDeploymentsInfo(cmd *cobra.Command, chain int64, address string, limit int) error {
	svc, _, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	d, err := svc.Get(ctx, chain, address)
	if err != nil {
		return err
	}
	invocations, err := svc.Invocations(ctx, chain, address, deploymentsDomain.PaginationParams{Limit: limit})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printDeployment(out, d)

	fmt.Fprintln(out)
	if len(invocations.Invocations) == 0 {
		fmt.Fprintln(out, "No invocations recorded")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tKIND\tSTATUS\tBLOCK\tTX")
	for _, inv := range invocations.Invocations {
		status := inv.Status
		if inv.RevertReason != "" {
			status += " (" + inv.RevertReason + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", inv.Method, inv.Kind, status, inv.BlockNumber, orDefault(inv.TxHash, "-"))
	}
	return w.Flush()
}

func runDeploymentsLatest(cmd *cobra.Command, contract string) error {
	svc, chain, closeFn, err := openService(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if chain == 0 {
		return fmt.Errorf("--chain-id is required")
	}
	d, err := svc.Latest(cmd.Context(), contract, chain)
	if err != nil {
		return err
	}
	printDeployment(cmd.OutOrStdout(), d)
	return nil
}

func printDeployment(out io.Writer, d *deploymentsDomain.Deployment) {
	fmt.Fprintf(out, "Contract:   %s\n", d.ContractName)
	fmt.Fprintf(out, "Chain ID:   %d\n", d.ChainID)
	fmt.Fprintf(out, "Address:    %s\n", d.Address)
	fmt.Fprintf(out, "Deployer:   %s\n", orDefault(d.DeployerAddress, "-"))
	fmt.Fprintf(out, "Tx:         %s\n", orDefault(d.TxHash, "-"))
	fmt.Fprintf(out, "Block:      %d\n", d.BlockNumber)
	if len(d.Args) > 0 {
		fmt.Fprintf(out, "Args:       %s\n", strings.Join(d.Args, ", "))
	}
	fmt.Fprintf(out, "Release:    %s\n", orDefault(d.ReleaseLabel, "-"))
	fmt.Fprintf(out, "Code match: %s\n", orDefault(d.CodeMatch, "-"))
	fmt.Fprintf(out, "Recorded:   %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
}
