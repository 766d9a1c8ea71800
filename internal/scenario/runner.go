package scenario

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/contraharness/internal/harness"
)

// Outcome of a step, compared across runs
const (
	OutcomeOK       = "ok"
	OutcomeReverted = "reverted"
)

// StepResult is what one step produced
type StepResult struct {
	Index   int
	Action  string
	Target  string
	Outcome string // "ok" or "reverted"
	Reason  string // revert reason, if any
	Address common.Address
	TxHash  common.Hash
	Block   uint64
	Values  []any
}

// Signature identifies the outcome for determinism checks. Addresses,
// hashes and return values are excluded: fresh instances differ in those.
func (r StepResult) Signature() string {
	sig := fmt.Sprintf("%d:%s %s=%s", r.Index, r.Action, r.Target, r.Outcome)
	if r.Reason != "" {
		sig += "(" + r.Reason + ")"
	}
	return sig
}

// RunResult is one execution of every step
type RunResult struct {
	Run      int
	Steps    []StepResult
	Duration time.Duration
}

// Signature joins the step signatures
func (r RunResult) Signature() string {
	parts := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		parts[i] = s.Signature()
	}
	return strings.Join(parts, "; ")
}

// Report is the result of a scenario
type Report struct {
	Scenario string
	Runs     []RunResult
}

// Runner executes scenarios through a Deployer and an Invoker
type Runner struct {
	deployer *harness.Deployer
	invoker  *harness.Invoker
	registry harness.Resolver
	sender   common.Address
	out      io.Writer
	logger   *slog.Logger
}

// RunnerOptions configures a Runner
type RunnerOptions struct {
	// Sender is substituted for the $sender argument
	Sender common.Address
	Out    io.Writer
	Logger *slog.Logger
}

// NewRunner creates a Runner
func NewRunner(d *harness.Deployer, iv *harness.Invoker, registry harness.Resolver, opts RunnerOptions) *Runner {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		deployer: d,
		invoker:  iv,
		registry: registry,
		sender:   opts.Sender,
		out:      out,
		logger:   logger,
	}
}

// Preflight resolves every contract the scenario deploys so that a missing
// definition fails the scenario before any transaction is sent.
func (r *Runner) Preflight(s *Scenario) error {
	for _, name := range s.Contracts() {
		if _, err := r.registry.Resolve(name); err != nil {
			return &harness.Error{Kind: harness.KindResolution, Op: "deploy", Contract: name, Err: err}
		}
	}
	return nil
}

// Run executes the scenario s.Runs times and checks that every run has the
// same outcome signature.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Report, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := r.Preflight(s); err != nil {
		return nil, err
	}

	report := &Report{Scenario: s.Name}
	for run := 1; run <= s.Runs; run++ {
		r.logger.Info("running scenario", "scenario", s.Name, "run", run, "of", s.Runs)
		result, err := r.runOnce(ctx, s, run)
		if err != nil {
			return report, fmt.Errorf("scenario %s run %d: %w", s.Name, run, err)
		}
		report.Runs = append(report.Runs, result)

		if run > 1 {
			want, got := report.Runs[0].Signature(), result.Signature()
			if want != got {
				return report, fmt.Errorf("%w: run 1 [%s], run %d [%s]", ErrNondeterministic, want, run, got)
			}
		}
	}

	r.logger.Info("scenario passed", "scenario", s.Name, "runs", s.Runs)
	return report, nil
}

func (r *Runner) runOnce(ctx context.Context, s *Scenario, run int) (RunResult, error) {
	start := time.Now()
	result := RunResult{Run: run}
	instances := make(map[string]*harness.Instance)

	for i, step := range s.Steps {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		action, target := step.Action()
		res := StepResult{Index: i + 1, Action: action, Target: target}

		var err error
		if action == ActionDeploy {
			err = r.deploy(ctx, step, instances, &res)
		} else {
			err = r.invoke(ctx, step, instances, &res)
		}
		if err != nil {
			return result, fmt.Errorf("step %d (%s %s): %w", i+1, action, target, err)
		}

		r.logger.Debug("step finished", "step", i+1, "action", action, "target", target, "outcome", res.Outcome)
		result.Steps = append(result.Steps, res)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (r *Runner) deploy(ctx context.Context, step Step, instances map[string]*harness.Instance, res *StepResult) error {
	args, err := r.deployer.ParseConstructorArgs(step.Deploy, r.substitute(step.Args, instances))
	if err != nil {
		return err
	}

	inst, err := r.deployer.Deploy(ctx, step.Deploy, args...)
	if err != nil {
		reason, reverted := harness.IsRevert(err)
		if !reverted || !revertAccepted(step, reason) {
			return err
		}
		res.Outcome, res.Reason = OutcomeReverted, reason
		return nil
	}
	if step.ExpectRevert != nil {
		return fmt.Errorf("%w: expected deployment to revert", ErrExpectation)
	}

	if inst.Address == (common.Address{}) {
		return fmt.Errorf("%w: deployment returned the zero address", ErrExpectation)
	}
	if step.DistinctFrom != "" {
		other := instances[step.DistinctFrom]
		if other != nil && other.Address == inst.Address {
			return fmt.Errorf("%w: address %s equals %s", ErrExpectation, inst.Address.Hex(), step.DistinctFrom)
		}
	}

	alias := step.As
	if alias == "" {
		alias = step.Deploy
	}
	instances[alias] = inst
	res.Outcome = OutcomeOK
	res.Address, res.TxHash, res.Block = inst.Address, inst.TxHash, inst.Block
	return nil
}

func (r *Runner) invoke(ctx context.Context, step Step, instances map[string]*harness.Instance, res *StepResult) error {
	inst := instances[step.On]
	if inst == nil {
		// the target deployment reverted under allowRevert
		return fmt.Errorf("%w: instance %q was not deployed", ErrExpectation, step.On)
	}
	_, method := step.Action()
	args, err := harness.ParseMethodArgs(inst, method, r.substitute(step.Args, instances))
	if err != nil {
		return err
	}
	res.Address = inst.Address

	var (
		values  []any
		receipt *types.Receipt
	)
	switch {
	case step.Send != "" && step.ExpectRevert != nil:
		outcome, err := r.invoker.ExpectRevert(ctx, inst, method, step.ExpectRevert.Reason, args...)
		if err != nil {
			return err
		}
		res.Outcome, res.Reason, res.TxHash = OutcomeReverted, outcome.Reason, outcome.TxHash
		r.logResult(step, method, res)
		return nil
	case step.Call != "":
		values, err = r.invoker.Call(ctx, inst, method, args...)
	case step.Send != "":
		receipt, err = r.invoker.Transact(ctx, inst, method, args...)
	default:
		var result *harness.Result
		result, err = r.invoker.Invoke(ctx, inst, method, args...)
		if result != nil {
			values, receipt = result.Values, result.Receipt
		}
	}

	if err != nil {
		reason, reverted := harness.IsRevert(err)
		if !reverted || !revertAccepted(step, reason) {
			if reverted && step.ExpectRevert != nil {
				return fmt.Errorf("%w: expected revert %q: %v", ErrExpectation, step.ExpectRevert.Reason, err)
			}
			return err
		}
		res.Outcome, res.Reason = OutcomeReverted, reason
		r.logResult(step, method, res)
		return nil
	}
	if step.ExpectRevert != nil {
		return fmt.Errorf("%w: expected %s to revert", ErrExpectation, method)
	}

	res.Outcome, res.Values = OutcomeOK, values
	if receipt != nil {
		res.TxHash, res.Block = receipt.TxHash, receipt.BlockNumber.Uint64()
	}
	if err := checkValues(step, values); err != nil {
		return err
	}
	r.logResult(step, method, res)
	return nil
}

// revertAccepted reports whether a revert with reason satisfies the step
func revertAccepted(step Step, reason string) bool {
	if step.AllowRevert {
		return true
	}
	if step.ExpectRevert == nil {
		return false
	}
	return step.ExpectRevert.Reason == "" || step.ExpectRevert.Reason == reason
}

func checkValues(step Step, values []any) error {
	if step.ExpectLength == nil && step.ExpectMinLength == nil && step.ExpectEqual == nil {
		return nil
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: method returned no values", ErrExpectation)
	}
	first := values[0]

	if step.ExpectLength != nil || step.ExpectMinLength != nil {
		n, ok := length(first)
		if !ok {
			return fmt.Errorf("%w: %T has no length", ErrExpectation, first)
		}
		if step.ExpectLength != nil && n != *step.ExpectLength {
			return fmt.Errorf("%w: length %d, want %d", ErrExpectation, n, *step.ExpectLength)
		}
		if step.ExpectMinLength != nil && n < *step.ExpectMinLength {
			return fmt.Errorf("%w: length %d, want at least %d", ErrExpectation, n, *step.ExpectMinLength)
		}
	}
	if step.ExpectEqual != nil {
		if got := harness.FormatValue(first); got != *step.ExpectEqual {
			return fmt.Errorf("%w: got %s, want %s", ErrExpectation, got, *step.ExpectEqual)
		}
	}
	return nil
}

func length(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String, reflect.Map:
		return rv.Len(), true
	}
	return 0, false
}

// substitute replaces $<instance> with its address and $sender with the signer address
func (r *Runner) substitute(args []string, instances map[string]*harness.Instance) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a
		if !strings.HasPrefix(a, "$") {
			continue
		}
		name := a[1:]
		if name == "sender" {
			out[i] = r.sender.Hex()
		} else if inst := instances[name]; inst != nil {
			out[i] = inst.Address.Hex()
		}
	}
	return out
}

func (r *Runner) logResult(step Step, method string, res *StepResult) {
	if !step.Log {
		return
	}
	label := step.On + "." + method
	switch {
	case res.Outcome == OutcomeReverted && res.Reason != "":
		fmt.Fprintf(r.out, "%s: reverted: %s\n", label, res.Reason)
	case res.Outcome == OutcomeReverted:
		fmt.Fprintf(r.out, "%s: reverted\n", label)
	case res.TxHash != (common.Hash{}):
		fmt.Fprintf(r.out, "%s: confirmed in block %d (tx %s)\n", label, res.Block, res.TxHash.Hex())
	default:
		fmt.Fprintf(r.out, "%s: %s\n", label, harness.FormatValues(res.Values))
	}
}
