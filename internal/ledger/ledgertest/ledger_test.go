package ledgertest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterABI = `[
	{"type":"function","name":"count","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"add","inputs":[{"name":"n","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"}
]`

var counterInit = []byte{0xc0, 0xde}

func counterTemplate() Template {
	parsed := MustABI(counterABI)
	return Template{
		InitCode:    counterInit,
		RuntimeCode: []byte{0x60, 0x00},
		Handler: ABIHandler(parsed, map[string]MethodFunc{
			"count": func(env *Env, args []any) ([]any, error) {
				n, _ := env.Storage["count"].(*big.Int)
				if n == nil {
					n = new(big.Int)
				}
				return []any{n}, nil
			},
			"add": func(env *Env, args []any) ([]any, error) {
				n := args[0].(*big.Int)
				if n.Sign() == 0 {
					return nil, Revert("zero")
				}
				cur, _ := env.Storage["count"].(*big.Int)
				if cur == nil {
					cur = new(big.Int)
				}
				env.Storage["count"] = new(big.Int).Add(cur, n)
				return nil, nil
			},
		}),
	}
}

func signed(t *testing.T, nonce uint64, to *common.Address, data []byte) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	tx, err := types.SignTx(
		types.NewTx(&types.LegacyTx{Nonce: nonce, To: to, GasPrice: big.NewInt(1), Gas: 200000, Data: data}),
		types.LatestSignerForChainID(big.NewInt(DefaultChainID)), key)
	require.NoError(t, err)
	return tx, crypto.PubkeyToAddress(key.PublicKey)
}

func TestLedger_DeployAndCall(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Register(counterTemplate())
	parsed := MustABI(counterABI)

	tx, from := signed(t, 0, nil, counterInit)
	require.NoError(t, l.SendTransaction(ctx, tx))

	receipt, err := l.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, crypto.CreateAddress(from, 0), receipt.ContractAddress)
	assert.Equal(t, uint64(1), receipt.BlockNumber.Uint64())

	addr := receipt.ContractAddress
	code, err := l.CodeAt(ctx, addr, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x00}, code)

	input, err := parsed.Pack("add", big.NewInt(5))
	require.NoError(t, err)
	tx, _ = signed(t, 1, &addr, input)
	require.NoError(t, l.SendTransaction(ctx, tx))

	out, err := l.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: parsed.Methods["count"].ID}, nil)
	require.NoError(t, err)
	values, err := parsed.Unpack("count", out)
	require.NoError(t, err)
	assert.Equal(t, int64(5), values[0].(*big.Int).Int64())
}

func TestLedger_RevertDiscardsState(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Register(counterTemplate())
	parsed := MustABI(counterABI)

	tx, from := signed(t, 0, nil, counterInit)
	require.NoError(t, l.SendTransaction(ctx, tx))
	addr := crypto.CreateAddress(from, 0)

	input, err := parsed.Pack("add", big.NewInt(0))
	require.NoError(t, err)

	_, err = l.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &addr, Data: input})
	require.Error(t, err)
	var dataErr rpc.DataError
	require.True(t, errors.As(err, &dataErr))
	assert.Contains(t, dataErr.ErrorData().(string), "0x08c379a0")

	tx, _ = signed(t, 1, &addr, input)
	require.NoError(t, l.SendTransaction(ctx, tx))
	receipt, err := l.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
	assert.Empty(t, l.Storage(addr))
}

func TestLedger_ManualMining(t *testing.T) {
	ctx := context.Background()
	l := New(WithManualMining())

	tx, _ := signed(t, 0, nil, []byte{0x00})
	require.NoError(t, l.SendTransaction(ctx, tx))
	assert.Equal(t, 1, l.PendingCount())

	_, err := l.TransactionReceipt(ctx, tx.Hash())
	assert.ErrorIs(t, err, ethereum.NotFound)

	nonce, err := l.PendingNonceAt(ctx, crypto.PubkeyToAddress(mustKey(t).PublicKey))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	assert.Equal(t, uint64(1), l.Mine())
	receipt, err := l.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), receipt.BlockNumber.Uint64())
}

func TestLedger_NonceAndDuplicateChecks(t *testing.T) {
	ctx := context.Background()
	l := New()

	tx, _ := signed(t, 1, nil, []byte{0x00})
	err := l.SendTransaction(ctx, tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too high")

	tx, _ = signed(t, 0, nil, []byte{0x00})
	require.NoError(t, l.SendTransaction(ctx, tx))
	err = l.SendTransaction(ctx, tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already known")
}

func TestLedger_FailNext(t *testing.T) {
	l := New()
	l.FailNext("eth_blockNumber", errors.New("connection refused"))

	_, err := l.BlockNumber(context.Background())
	assert.EqualError(t, err, "connection refused")
	_, err = l.BlockNumber(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, l.Calls("eth_blockNumber"))
}

func TestRevertEncoding(t *testing.T) {
	err := Revert("stake must be positive")
	var revert *RevertError
	require.ErrorAs(t, err, &revert)

	reason, unpackErr := abi.UnpackRevert(revert.Data)
	require.NoError(t, unpackErr)
	assert.Equal(t, "stake must be positive", reason)
	assert.Equal(t, "execution reverted: stake must be positive", err.Error())

	panicked := Panic(0x11)
	require.ErrorAs(t, panicked, &revert)
	assert.Equal(t, []byte{0x4e, 0x48, 0x7b, 0x71}, revert.Data[:4])
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	return key
}
