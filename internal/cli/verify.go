package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraharness/internal/scenario"
)

func createVerifyCmd() *cobra.Command {
	var builtin string
	var runs int

	cmd := &cobra.Command{
		Use:   "verify [scenario.yaml]",
		Short: "Run a scenario against fresh deployments",
		Long: fmt.Sprintf(`Run a verification scenario.

Without a file the built-in scenario named by --builtin is run. Every run
deploys fresh instances; with more than one run the outcome of each step
must be the same in every run.

Built-in scenarios: %s

EXAMPLES:
  # Deploy NFTGame, read its hashes, create a lobby, deploy again
  contraharness verify

  # Run a custom scenario three times
  contraharness verify scenarios/lobby.yaml --runs 3
`, strings.Join(scenario.BuiltinNames(), ", ")),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return runVerify(cmd, file, builtin, runs)
		},
	}

	cmd.Flags().StringVar(&builtin, "builtin", "nftgame", "built-in scenario to run when no file is given")
	cmd.Flags().IntVar(&runs, "runs", 0, "override the scenario's number of runs")

	return cmd
}

func runVerify(cmd *cobra.Command, file, builtin string, runs int) error {
	var (
		s   *scenario.Scenario
		err error
	)
	if file != "" {
		s, err = scenario.Load(file)
	} else {
		s, err = scenario.Builtin(builtin)
	}
	if err != nil {
		return err
	}
	if runs > 0 {
		s.Runs = runs
	}
	if err := s.Validate(); err != nil {
		return err
	}

	sess, err := openSession(cmd, resolveAll(s.Contracts()...))
	if err != nil {
		return err
	}
	defer sess.Close()

	runner := scenario.NewRunner(sess.deployer, sess.invoker, sess.registry, scenario.RunnerOptions{
		Sender: sess.signer.Address(),
		Out:    cmd.OutOrStdout(),
		Logger: sess.logger,
	})
	_, err = runner.Run(cmd.Context(), s)
	return err
}
