package harness

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	errorSelector = []byte{0x08, 0xc3, 0x79, 0xa0} // Error(string)
	panicSelector = []byte{0x4e, 0x48, 0x7b, 0x71} // Panic(uint256)
)

// Solidity panic codes
var panicReasons = map[uint64]string{
	0x00: "generic panic",
	0x01: "assert(false)",
	0x11: "arithmetic underflow or overflow",
	0x12: "division or modulo by zero",
	0x21: "enum overflow",
	0x22: "invalid encoded storage byte array",
	0x31: "out-of-bounds array access; popping on an empty array",
	0x32: "out-of-bounds access of an array or bytesN",
	0x41: "out of memory",
	0x51: "uninitialized function",
}

const revertPrefix = "execution reverted"

// Hardhat reports reverts from eth_sendRawTransaction in its own words
const (
	vmExceptionPrefix = "vm exception while processing transaction"
	reasonStringTag   = "reverted with reason string '"
)

// revertData extracts the raw revert data carried by a JSON-RPC error
func revertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch data := dataErr.ErrorData().(type) {
	case string:
		b, decodeErr := hexutil.Decode(data)
		if decodeErr != nil {
			return nil, false
		}
		return b, true
	case []byte:
		return data, true
	}
	return nil, false
}

// isRevertError reports whether err signals reverted execution
func isRevertError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := revertData(err); ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, revertPrefix) || strings.Contains(msg, vmExceptionPrefix)
}

// revertReason decodes the reason from a revert error. Custom errors are
// matched against the contract ABI.
func revertReason(err error, contractABI *abi.ABI) string {
	if data, ok := revertData(err); ok && len(data) > 0 {
		if reason := decodeRevert(data, contractABI); reason != "" {
			return reason
		}
	}

	// Some nodes only put the reason in the message
	msg := err.Error()
	if i := strings.Index(msg, revertPrefix+": "); i >= 0 {
		return msg[i+len(revertPrefix)+2:]
	}
	if i := strings.Index(msg, reasonStringTag); i >= 0 {
		return strings.TrimSuffix(msg[i+len(reasonStringTag):], "'")
	}
	return ""
}

func decodeRevert(data []byte, contractABI *abi.ABI) string {
	if len(data) < 4 {
		return ""
	}
	switch {
	case bytes.Equal(data[:4], errorSelector):
		reason, err := abi.UnpackRevert(data)
		if err == nil {
			return reason
		}
	case bytes.Equal(data[:4], panicSelector):
		if len(data) < 36 {
			return ""
		}
		code := new(big.Int).SetBytes(data[4:36])
		if code.IsUint64() {
			if text, ok := panicReasons[code.Uint64()]; ok {
				return fmt.Sprintf("panic: %s (0x%x)", text, code)
			}
		}
		return fmt.Sprintf("panic: code 0x%x", code)
	}

	if contractABI != nil {
		for _, abiErr := range contractABI.Errors {
			if !bytes.Equal(abiErr.ID[:4], data[:4]) {
				continue
			}
			values, err := abiErr.Inputs.Unpack(data[4:])
			if err != nil {
				return abiErr.Name
			}
			parts := make([]string, len(values))
			for i, v := range values {
				parts[i] = FormatValue(v)
			}
			return abiErr.Name + "(" + strings.Join(parts, ", ") + ")"
		}
	}
	return "custom error " + hexutil.Encode(data[:4])
}
