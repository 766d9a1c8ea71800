package ledgertest

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Solidity error selectors
var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0} // Error(string)
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71} // Panic(uint256)
)

// RevertError mirrors the JSON-RPC error nodes return for reverted
// execution: code 3 with the revert data hex-encoded.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason != "" {
		return "execution reverted: " + e.Reason
	}
	return "execution reverted"
}

// ErrorCode implements rpc.Error
func (e *RevertError) ErrorCode() int {
	return 3
}

// ErrorData implements rpc.DataError
func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(e.Data)
}

// Revert returns an error that reverts with Error(reason)
func Revert(reason string) error {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}
	return &RevertError{Reason: reason, Data: append(append([]byte{}, errorSelector...), packed...)}
}

// Panic returns an error that reverts with Panic(code)
func Panic(code uint64) error {
	uintType, _ := abi.NewType("uint256", "", nil)
	packed, err := abi.Arguments{{Type: uintType}}.Pack(new(big.Int).SetUint64(code))
	if err != nil {
		panic(err)
	}
	return &RevertError{Data: append(append([]byte{}, panicSelector...), packed...)}
}

// RevertWithData reverts with raw data, e.g. a custom error
func RevertWithData(data []byte) error {
	return &RevertError{Data: data}
}

// asRevert converts any handler error into a RevertError
func asRevert(err error) error {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert
	}
	return Revert(err.Error())
}
