package cli

import (
	"github.com/spf13/cobra"
)

func createDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <contract> [args...]",
		Short: "Deploy a contract and wait for confirmation",
		Long: `Deploy a compiled contract and wait until the deployment is confirmed.

On success one line is printed to stdout:

  <Name> deployed to: <address>

Constructor arguments are given in ABI order. Arrays and tuples use
[a,b] and (a,b) syntax.

EXAMPLES:
  # Deploy from a Hardhat project against a local node
  contraharness deploy NFTGame

  # Deploy with constructor arguments and record it in the journal
  contraharness deploy Token "Game Token" GAME 1000000 --record --release 1.2.0
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, args[0], args[1:])
		},
	}

	return cmd
}

func runDeploy(cmd *cobra.Command, name string, raw []string) error {
	s, err := openSession(cmd, resolveAll(name))
	if err != nil {
		return err
	}
	defer s.Close()

	args, err := s.deployer.ParseConstructorArgs(name, raw)
	if err != nil {
		return err
	}

	_, err = s.deployer.Deploy(cmd.Context(), name, args...)
	return err
}
