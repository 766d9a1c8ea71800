package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func createContractsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contracts",
		Short: "List contracts found in the project",
		Long: `List the contract definitions read from the project's build artifacts.

Contracts without creation bytecode or with unlinked libraries are listed
but cannot be deployed; they can still be used with invoke.

EXAMPLES:
  contraharness contracts
  contraharness contracts --project ../game --builder hardhat
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContracts(cmd)
		},
	}
}

func runContracts(cmd *cobra.Command) error {
	cfg, project, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())

	registry, err := loadRegistry(cfg, project, logger)
	if err != nil {
		return err
	}

	defs := registry.List()
	out := cmd.OutOrStdout()
	if len(defs) == 0 {
		fmt.Fprintln(out, "No contracts found")
		fmt.Fprintln(out, "\nMake sure the project has been compiled.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tCOMPILER\tDEPLOYABLE")
	for _, def := range defs {
		deployable := "yes"
		if def.Deployable() != nil {
			deployable = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", def.Name, def.SourcePath, orDefault(def.Compiler, "-"), deployable)
	}
	return w.Flush()
}
