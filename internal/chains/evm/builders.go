// Package evm groups the EVM build tool integrations and bytecode helpers.
package evm

import (
	"fmt"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/chains/evm/foundry"
	"github.com/pendergraft/contraharness/internal/chains/evm/hardhat"
)

// Builders returns all supported builders in detection order
func Builders() []chains.Builder {
	return []chains.Builder{
		hardhat.New(),
		foundry.New(),
	}
}

// BuilderByName returns the builder with the given name
func BuilderByName(name string) (chains.Builder, error) {
	for _, b := range Builders() {
		if b.Name() == name {
			return b, nil
		}
	}
	return nil, fmt.Errorf("unknown builder %q (supported: hardhat, foundry)", name)
}

// DetectBuilder detects which builder is used in the given directory
func DetectBuilder(dir string) (chains.Builder, error) {
	return chains.DetectBuilder(dir, Builders())
}
