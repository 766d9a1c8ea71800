package ledgertest

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// MethodFunc implements one ABI method over decoded arguments
type MethodFunc func(env *Env, args []any) ([]any, error)

// ABIHandler dispatches calldata to methods by selector, unpacking inputs
// and packing outputs with the given ABI. Unknown selectors revert without data.
func ABIHandler(parsed abi.ABI, methods map[string]MethodFunc) Handler {
	return func(env *Env, input []byte) ([]byte, error) {
		if len(input) < 4 {
			return nil, RevertWithData(nil)
		}
		method, err := parsed.MethodById(input[:4])
		if err != nil {
			return nil, RevertWithData(nil)
		}
		impl, ok := methods[method.Name]
		if !ok {
			return nil, RevertWithData(nil)
		}

		args, err := method.Inputs.Unpack(input[4:])
		if err != nil {
			return nil, RevertWithData(nil)
		}
		out, err := impl(env, args)
		if err != nil {
			return nil, err
		}
		packed, err := method.Outputs.Pack(out...)
		if err != nil {
			return nil, fmt.Errorf("packing %s outputs: %w", method.Name, err)
		}
		return packed, nil
	}
}

// MustABI parses an ABI JSON document or panics
func MustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
