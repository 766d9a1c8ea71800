package harness

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/contracts"
)

// Instance is a confirmed deployment: an address plus the ABI to talk to it.
// Instances are only produced by the Deployer; a zero Instance is not
// confirmed and every call through it fails with ErrNotConfirmed.
type Instance struct {
	Name       string
	Address    common.Address
	ABI        abi.ABI
	Definition *contracts.Definition
	TxHash     common.Hash // zero for attached instances
	Block      uint64
	CodeMatch  *chains.CodeMatch

	confirmed bool
}

// Confirmed reports whether the deployment transaction has confirmed
func (i *Instance) Confirmed() bool {
	return i != nil && i.confirmed
}

// Method resolves a method by name or by signature ("createLobby(address,uint256)")
func (i *Instance) Method(name string) (abi.Method, error) {
	if m, ok := i.ABI.Methods[name]; ok {
		return m, nil
	}
	for _, m := range i.ABI.Methods {
		if m.Sig == name {
			return m, nil
		}
	}
	return abi.Method{}, &Error{
		Kind:     KindResolution,
		Op:       "resolve",
		Contract: i.Name,
		Method:   name,
		Err:      ErrUnknownMethod,
	}
}

func (i *Instance) label() string {
	if i == nil {
		return "<nil>"
	}
	if i.Name != "" {
		return i.Name
	}
	return i.Address.Hex()
}
