package cli

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/contraharness/internal/contracts"
	"github.com/pendergraft/contraharness/internal/harness"
	"github.com/pendergraft/contraharness/internal/validation"
)

// anyReason is the --expect-revert value when no reason is given
const anyReason = "*"

func createInvokeCmd() *cobra.Command {
	var expectRevert string

	cmd := &cobra.Command{
		Use:   "invoke <contract> <address> <method> [args...]",
		Short: "Call or send a method on a deployed contract",
		Long: `Invoke a method on an existing deployment.

View and pure methods are executed with eth_call and their return values
are printed. Other methods are sent as transactions and the confirmed
block is printed.

With --expect-revert the transaction must revert. A bare flag accepts any
revert reason; --expect-revert=<reason> requires that exact reason.

EXAMPLES:
  contraharness invoke NFTGame 0x5FbDB2315678afecb367f032d93F642f64180aa3 getHashes
  contraharness invoke NFTGame 0x5FbD...0aa3 createLobby 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 100
  contraharness invoke NFTGame 0x5FbD...0aa3 createLobby $ME 0 --expect-revert="NFTGame: cannot challenge yourself"
`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var want *string
			if cmd.Flags().Changed("expect-revert") {
				reason := expectRevert
				if reason == anyReason {
					reason = ""
				}
				want = &reason
			}
			return runInvoke(cmd, args[0], args[1], args[2], args[3:], want)
		},
	}

	cmd.Flags().StringVar(&expectRevert, "expect-revert", "", "require the transaction to revert, optionally with this reason")
	cmd.Flags().Lookup("expect-revert").NoOptDefVal = anyReason

	return cmd
}

// runInvoke attaches to address and runs method. A non-nil expectRevert
// requires a revert; an empty reason accepts any.
func runInvoke(cmd *cobra.Command, name, address, method string, raw []string, expectRevert *string) error {
	if err := validation.ValidateAddress(address); err != nil {
		return err
	}
	if err := validation.ValidateMethodName(method); err != nil {
		return err
	}

	s, err := openSession(cmd, func(r *contracts.Registry) error {
		if _, err := r.Lookup(name); err != nil {
			return &harness.Error{Kind: harness.KindResolution, Op: "attach", Contract: name, Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	inst, err := s.deployer.At(ctx, name, common.HexToAddress(address))
	if err != nil {
		return err
	}
	args, err := harness.ParseMethodArgs(inst, method, raw)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if expectRevert != nil {
		outcome, err := s.invoker.ExpectRevert(ctx, inst, method, *expectRevert, args...)
		if err != nil {
			return err
		}
		if outcome.Reason == "" {
			fmt.Fprintf(out, "%s: reverted\n", method)
		} else {
			fmt.Fprintf(out, "%s: reverted: %s\n", method, outcome.Reason)
		}
		return nil
	}

	res, err := s.invoker.Invoke(ctx, inst, method, args...)
	if err != nil {
		return err
	}
	if res.ReadOnly {
		fmt.Fprintf(out, "%s: %s\n", res.Method, harness.FormatValues(res.Values))
		return nil
	}
	fmt.Fprintf(out, "%s: confirmed in block %d (tx %s)\n", res.Method, res.Receipt.BlockNumber.Uint64(), res.Receipt.TxHash.Hex())
	return nil
}
