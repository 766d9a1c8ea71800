// Package nftgametest provides an NFTGame stand-in for the in-memory ledger.
//
// The contract's own logic is not part of this repository. The stand-in
// keeps a list of lobby hashes: createLobby appends
// keccak256(creator, opponent, stake, index) and reverts when the creator
// names itself as the opponent.
package nftgametest

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/contraharness/internal/chains"
	"github.com/pendergraft/contraharness/internal/contracts"
	"github.com/pendergraft/contraharness/internal/ledger/ledgertest"
)

// Name is the contract name as it appears in build artifacts
const Name = "NFTGame"

// ABI is the NFTGame interface exercised by the harness
const ABI = `[
	{"type":"constructor","inputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"getHashes","inputs":[],"outputs":[{"name":"","type":"bytes32[]"}],"stateMutability":"view"},
	{"type":"function","name":"createLobby","inputs":[{"name":"opponent","type":"address"},{"name":"stake","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"LobbyCreated","inputs":[{"name":"hash","type":"bytes32","indexed":true}],"anonymous":false}
]`

// ReasonSelfChallenge is the revert reason of createLobby(creator, _)
const ReasonSelfChallenge = "NFTGame: cannot challenge yourself"

// Bytecode stand-ins. Only the prefix matters to the ledger.
var (
	InitCode    = common.FromHex("0x608060405234801561001057600080fd5b50")
	RuntimeCode = common.FromHex("0x6080604052348015600f57600080fd5b506004361060325760003560e01c")
)

// Artifact returns a Hardhat-style artifact for NFTGame
func Artifact() *chains.Artifact {
	return &chains.Artifact{
		Name:             Name,
		SourcePath:       "contracts/NFTGame.sol",
		ABI:              json.RawMessage(ABI),
		Bytecode:         hexutil.Encode(InitCode),
		DeployedBytecode: hexutil.Encode(RuntimeCode),
		Compiler:         "0.8.4+commit.c7e474f2",
	}
}

// Definition returns the compiled NFTGame definition
func Definition() *contracts.Definition {
	def, err := contracts.NewDefinition(Artifact())
	if err != nil {
		panic(err)
	}
	return def
}

// Registry returns a registry holding NFTGame plus any extra definitions
func Registry(extra ...*contracts.Definition) *contracts.Registry {
	return contracts.NewRegistry(append([]*contracts.Definition{Definition()}, extra...)...)
}

// Template returns the ledger template implementing NFTGame
func Template() ledgertest.Template {
	parsed := ledgertest.MustABI(ABI)
	return ledgertest.Template{
		InitCode:    InitCode,
		RuntimeCode: RuntimeCode,
		Handler: ledgertest.ABIHandler(parsed, map[string]ledgertest.MethodFunc{
			"getHashes": func(env *ledgertest.Env, _ []any) ([]any, error) {
				return []any{Hashes(env.Storage)}, nil
			},
			"createLobby": func(env *ledgertest.Env, args []any) ([]any, error) {
				opponent := args[0].(common.Address)
				stake := args[1].(*big.Int)
				if opponent == env.Caller {
					return nil, ledgertest.Revert(ReasonSelfChallenge)
				}
				hashes := Hashes(env.Storage)
				next := make([][32]byte, len(hashes), len(hashes)+1)
				copy(next, hashes)
				next = append(next, LobbyHash(env.Caller, opponent, stake, len(hashes)))
				env.Storage["hashes"] = next
				return nil, nil
			},
		}),
	}
}

// NewLedger returns an in-memory ledger with NFTGame registered
func NewLedger(opts ...ledgertest.Option) *ledgertest.Ledger {
	l := ledgertest.New(opts...)
	l.Register(Template())
	return l
}

// Hashes reads the lobby hashes out of contract storage
func Hashes(storage map[string]any) [][32]byte {
	hashes, _ := storage["hashes"].([][32]byte)
	if hashes == nil {
		return [][32]byte{}
	}
	return hashes
}

// LobbyHash is the hash the stand-in records for a lobby
func LobbyHash(creator, opponent common.Address, stake *big.Int, index int) [32]byte {
	return crypto.Keccak256Hash(
		creator.Bytes(),
		opponent.Bytes(),
		common.BigToHash(stake).Bytes(),
		common.BigToHash(big.NewInt(int64(index))).Bytes(),
	)
}
