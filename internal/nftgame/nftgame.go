// Package nftgame is a typed wrapper over a deployed NFTGame instance.
package nftgame

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/contraharness/internal/harness"
)

// ContractName is the name NFTGame is resolved by
const ContractName = "NFTGame"

// Methods
const (
	MethodGetHashes   = "getHashes"
	MethodCreateLobby = "createLobby"
)

// Game calls NFTGame methods through an Invoker
type Game struct {
	inst    *harness.Instance
	invoker *harness.Invoker
}

// Deploy publishes a new NFTGame and wraps it
func Deploy(ctx context.Context, d *harness.Deployer, iv *harness.Invoker) (*Game, error) {
	inst, err := d.Deploy(ctx, ContractName)
	if err != nil {
		return nil, err
	}
	return New(inst, iv), nil
}

// New wraps a confirmed instance
func New(inst *harness.Instance, iv *harness.Invoker) *Game {
	return &Game{inst: inst, invoker: iv}
}

// Address returns the contract address
func (g *Game) Address() common.Address {
	return g.inst.Address
}

// Instance returns the underlying instance
func (g *Game) Instance() *harness.Instance {
	return g.inst
}

// GetHashes returns the lobby hashes. No transaction is submitted.
func (g *Game) GetHashes(ctx context.Context) ([][32]byte, error) {
	values, err := g.invoker.Call(ctx, g.inst, MethodGetHashes)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getHashes: expected 1 return value, got %d", len(values))
	}
	hashes, ok := values[0].([][32]byte)
	if !ok {
		return nil, fmt.Errorf("getHashes: unexpected return type %T", values[0])
	}
	return hashes, nil
}

// CreateLobby creates a lobby against opponent with the given stake and
// waits for confirmation. The zero address opens the lobby to anyone.
func (g *Game) CreateLobby(ctx context.Context, opponent common.Address, stake *big.Int) (*types.Receipt, error) {
	if stake == nil {
		stake = new(big.Int)
	}
	return g.invoker.Transact(ctx, g.inst, MethodCreateLobby, opponent, stake)
}
